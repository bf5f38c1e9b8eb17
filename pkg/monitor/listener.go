package monitor

//go:generate mockery -name StatusListener
//go:generate mockery -name ProgressListener

import (
	"github.com/gridsync/gridsync/pkg/events"
)

// Subscriber receives every event decoded by the Handler.
type Subscriber interface {
	HandleEvent(events.Event)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(events.Event)

func (f SubscriberFunc) HandleEvent(ev events.Event) {
	f(ev)
}

// StatusListener is notified by the OperationsMonitor when the status of a
// folder, or the overall status, changes.
type StatusListener interface {
	FolderStatusChanged(folder string, status Status)
	OverallStatusChanged(status Status)
}

// ProgressListener is notified by the ProgressMonitor as transfers in a folder
// are queued and finished.
type ProgressListener interface {
	// ProgressUpdated is called after every queued or finished transfer.
	ProgressUpdated(folder string, finished, queued int)

	// FilesUpdated is called with the paths of a completed batch.
	FilesUpdated(folder string, paths []string)
}

// StatusListenerFuncs implements StatusListener with optional functions.
// Nil functions are skipped.
type StatusListenerFuncs struct {
	FolderFunc  func(folder string, status Status)
	OverallFunc func(status Status)
}

func (f StatusListenerFuncs) FolderStatusChanged(folder string, status Status) {
	if f.FolderFunc != nil {
		f.FolderFunc(folder, status)
	}
}

func (f StatusListenerFuncs) OverallStatusChanged(status Status) {
	if f.OverallFunc != nil {
		f.OverallFunc(status)
	}
}

// ProgressListenerFuncs implements ProgressListener with optional functions.
// Nil functions are skipped.
type ProgressListenerFuncs struct {
	ProgressFunc func(folder string, finished, queued int)
	FilesFunc    func(folder string, paths []string)
}

func (f ProgressListenerFuncs) ProgressUpdated(folder string, finished, queued int) {
	if f.ProgressFunc != nil {
		f.ProgressFunc(folder, finished, queued)
	}
}

func (f ProgressListenerFuncs) FilesUpdated(folder string, paths []string) {
	if f.FilesFunc != nil {
		f.FilesFunc(folder, paths)
	}
}
