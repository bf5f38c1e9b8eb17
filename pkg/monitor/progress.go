package monitor

import (
	"github.com/gridsync/gridsync/pkg/events"
)

type batch struct {
	queued   []string
	finished []string
}

// ProgressMonitor tracks how many of the transfers queued in each folder have
// finished. Once every queued transfer in a folder has finished, the batch is
// reported and a new one begins.
//
// Like OperationsMonitor, it must only receive events from one goroutine.
type ProgressMonitor struct {
	batches  map[string]*batch
	listener ProgressListener
}

// NewProgressMonitor creates a ProgressMonitor that notifies `listener`.
func NewProgressMonitor(listener ProgressListener) *ProgressMonitor {
	if listener == nil {
		listener = ProgressListenerFuncs{}
	}
	return &ProgressMonitor{
		batches:  map[string]*batch{},
		listener: listener,
	}
}

// HandleEvent updates the batch of the folder referenced by `ev`.
func (m *ProgressMonitor) HandleEvent(ev events.Event) {
	var b *batch
	switch ev := ev.(type) {
	case events.UploadQueued:
		b = m.batch(ev.Folder)
		b.queued = append(b.queued, ev.Relpath)
	case events.DownloadQueued:
		b = m.batch(ev.Folder)
		b.queued = append(b.queued, ev.Relpath)
	case events.UploadFinished:
		b = m.batch(ev.Folder)
		b.finished = append(b.finished, ev.Relpath)
	case events.DownloadFinished:
		b = m.batch(ev.Folder)
		b.finished = append(b.finished, ev.Relpath)
	default:
		return
	}

	folder := ev.FolderName()
	m.listener.ProgressUpdated(folder, len(b.finished), len(b.queued))
	if len(b.queued) > 0 && len(b.finished) == len(b.queued) {
		m.listener.FilesUpdated(folder, b.finished)
		m.batches[folder] = &batch{}
	}
}

// Progress returns the number of finished and queued transfers in the
// current batch for `folder`.
func (m *ProgressMonitor) Progress(folder string) (finished, queued int) {
	b, ok := m.batches[folder]
	if !ok {
		return 0, 0
	}
	return len(b.finished), len(b.queued)
}

func (m *ProgressMonitor) batch(folder string) *batch {
	b, ok := m.batches[folder]
	if !ok {
		b = &batch{}
		m.batches[folder] = b
	}
	return b
}
