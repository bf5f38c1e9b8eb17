package monitor

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/gridsync/gridsync/pkg/events"
)

// FolderError is an error reported by the daemon for a folder.
type FolderError struct {
	Summary   string
	Timestamp float64
}

// FolderState is the OperationsMonitor's view of a single folder.
type FolderState struct {
	Status Status

	// Uploading and Downloading are the relative paths with transfers in
	// flight.
	Uploading   []string
	Downloading []string

	// Errors are never cleared. The daemon doesn't publish an event that
	// resolves an error.
	Errors []FolderError

	// LastScan and LastPoll are the timestamps of the most recent completed
	// scan and poll. They're only meaningful if Scanned and Polled are set.
	LastScan float64
	LastPoll float64
	Scanned  bool
	Polled   bool
}

// OperationsMonitor derives the status of each folder, and the overall
// status, from the events published by the daemon.
//
// It isn't safe for concurrent use. All events must be delivered from the
// same goroutine, which is what Handler.Run does.
type OperationsMonitor struct {
	folders  map[string]*FolderState
	overall  Status
	health   events.ConnectionChanged
	listener StatusListener
	log      *logrus.Logger
}

// NewOperationsMonitor creates an OperationsMonitor that notifies `listener`
// of status changes.
func NewOperationsMonitor(log *logrus.Logger, listener StatusListener) *OperationsMonitor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if listener == nil {
		listener = StatusListenerFuncs{}
	}
	return &OperationsMonitor{
		folders:  map[string]*FolderState{},
		overall:  StatusLoading,
		listener: listener,
		log:      log,
	}
}

// HandleEvent updates the folder referenced by `ev` and notifies the
// listener if its status changed.
func (m *OperationsMonitor) HandleEvent(ev events.Event) {
	switch ev := ev.(type) {
	case events.FolderAdded:
		m.folder(ev.Folder)
		return
	case events.FolderLeft:
		m.setStatus(ev.Folder, m.folder(ev.Folder), StatusStoredRemotely)
		return
	case events.ConnectionChanged:
		m.health = ev
		return
	case events.UploadStarted:
		f := m.folder(ev.Folder)
		f.Uploading = append(f.Uploading, ev.Relpath)
	case events.UploadFinished:
		f := m.folder(ev.Folder)
		f.Uploading = removeFirst(f.Uploading, ev.Relpath)
	case events.DownloadStarted:
		f := m.folder(ev.Folder)
		f.Downloading = append(f.Downloading, ev.Relpath)
	case events.DownloadFinished:
		f := m.folder(ev.Folder)
		f.Downloading = removeFirst(f.Downloading, ev.Relpath)
	case events.ScanCompleted:
		f := m.folder(ev.Folder)
		f.Scanned = true
		f.LastScan = ev.Timestamp
	case events.PollCompleted:
		f := m.folder(ev.Folder)
		f.Polled = true
		f.LastPoll = ev.Timestamp
	case events.ErrorOccurred:
		f := m.folder(ev.Folder)
		f.Errors = append(f.Errors, FolderError{
			Summary:   ev.Summary,
			Timestamp: ev.Timestamp,
		})
		m.log.WithFields(logrus.Fields{
			"folder":  ev.Folder,
			"summary": ev.Summary,
		}).Warn("Daemon reported a folder error")
	default:
		// Queued transfers and invitations don't affect the folder status.
		return
	}

	m.updateStatus(ev.FolderName())
}

// updateStatus recomputes the status of `name`.
func (m *OperationsMonitor) updateStatus(name string) {
	f := m.folder(name)
	switch {
	case len(f.Uploading) > 0 || len(f.Downloading) > 0:
		m.setStatus(name, f, StatusSyncing)
	case len(f.Errors) > 0:
		m.setStatus(name, f, StatusError)
	case !f.Scanned || !f.Polled:
		// Don't claim the folder is up to date before we've heard back from
		// both the local scanner and the remote poller at least once.
	default:
		m.setStatus(name, f, StatusUpToDate)
	}
}

func (m *OperationsMonitor) setStatus(name string, f *FolderState, status Status) {
	if f.Status == status {
		return
	}

	m.log.WithFields(logrus.Fields{
		"folder": name,
		"from":   f.Status,
		"to":     status,
	}).Debug("Folder status changed")
	f.Status = status
	m.listener.FolderStatusChanged(name, status)
	m.updateOverall()
}

// updateOverall recomputes the overall status. Folders that only exist
// remotely aren't synced locally, so they don't count towards it.
func (m *OperationsMonitor) updateOverall() {
	var active, syncing, errored, upToDate int
	for _, f := range m.folders {
		switch f.Status {
		case StatusStoredRemotely:
			continue
		case StatusSyncing:
			syncing++
		case StatusError:
			errored++
		case StatusUpToDate:
			upToDate++
		}
		active++
	}

	var overall Status
	switch {
	case syncing > 0:
		overall = StatusSyncing
	case errored > 0:
		overall = StatusError
	case active > 0 && upToDate == active:
		overall = StatusUpToDate
	default:
		return
	}

	m.overall = overall
	m.listener.OverallStatusChanged(overall)
}

// folder returns the state of `name`, creating it if this is the first time
// the folder has been referenced.
func (m *OperationsMonitor) folder(name string) *FolderState {
	f, ok := m.folders[name]
	if !ok {
		f = &FolderState{Status: StatusLoading}
		m.folders[name] = f
	}
	return f
}

// Folders returns the names of all known folders in sorted order.
func (m *OperationsMonitor) Folders() (names []string) {
	for name := range m.folders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Folder returns a copy of the state of `name`.
func (m *OperationsMonitor) Folder(name string) (FolderState, bool) {
	f, ok := m.folders[name]
	if !ok {
		return FolderState{}, false
	}

	cpy := *f
	cpy.Uploading = append([]string(nil), f.Uploading...)
	cpy.Downloading = append([]string(nil), f.Downloading...)
	cpy.Errors = append([]FolderError(nil), f.Errors...)
	return cpy, true
}

// Status returns the status of `name`. Unknown folders are Loading.
func (m *OperationsMonitor) Status(name string) Status {
	if f, ok := m.folders[name]; ok {
		return f.Status
	}
	return StatusLoading
}

// Overall returns the most recently computed overall status.
func (m *OperationsMonitor) Overall() Status {
	return m.overall
}

// Health returns the most recent connection-changed event. The zero value
// means the daemon hasn't reported its connections yet.
func (m *OperationsMonitor) Health() events.ConnectionChanged {
	return m.health
}

func removeFirst(slc []string, val string) []string {
	for i, s := range slc {
		if s == val {
			return append(slc[:i], slc[i+1:]...)
		}
	}
	return slc
}
