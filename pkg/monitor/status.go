package monitor

// Status is the sync state of a folder, or of all folders together.
type Status int

const (
	// StatusLoading is the state of a folder that hasn't finished its first
	// scan and poll.
	StatusLoading Status = iota
	StatusSyncing
	StatusUpToDate
	StatusError

	// StatusStoredRemotely is the state of a folder that was removed from
	// this device but still exists on the grid.
	StatusStoredRemotely

	// StatusWaiting is reserved for folders that are blocked on the grid.
	// The monitors never compute it; it's part of the status vocabulary
	// shared with the presentation layer.
	StatusWaiting
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "Loading"
	case StatusSyncing:
		return "Syncing"
	case StatusUpToDate:
		return "Up to date"
	case StatusError:
		return "Error"
	case StatusStoredRemotely:
		return "Stored remotely"
	case StatusWaiting:
		return "Waiting"
	default:
		return "Unknown"
	}
}
