package events

// Kind is the discriminator of an event record.
type Kind string

// The kinds of events published by the daemon.
const (
	KindFolderAdded      Kind = "folder-added"
	KindFolderLeft       Kind = "folder-left"
	KindUploadQueued     Kind = "upload-queued"
	KindUploadStarted    Kind = "upload-started"
	KindUploadFinished   Kind = "upload-finished"
	KindDownloadQueued   Kind = "download-queued"
	KindDownloadStarted  Kind = "download-started"
	KindDownloadFinished Kind = "download-finished"
	KindScanCompleted    Kind = "scan-completed"
	KindPollCompleted    Kind = "poll-completed"
	KindErrorOccurred    Kind = "error-occurred"
	KindConnectionChange Kind = "connection-changed"

	KindInviteCreated          Kind = "invite-created"
	KindInviteWelcomed         Kind = "invite-welcomed"
	KindInviteCodeCreated      Kind = "invite-code-created"
	KindInviteVersionsReceived Kind = "invite-versions-received"
	KindInviteSucceeded        Kind = "invite-succeeded"
	KindInviteFailed           Kind = "invite-failed"
	KindInviteRejected         Kind = "invite-rejected"
	KindInviteCancelled        Kind = "invite-cancelled"
)

// Event is a single decoded record from the status feed. The concrete type is
// one of the variants defined in this package.
type Event interface {
	Kind() Kind

	// FolderName is the folder the event refers to. It's empty for global
	// events such as ConnectionChanged.
	FolderName() string

	// Time is the time the event occurred, in seconds since the epoch. If
	// the daemon didn't send a timestamp, it's the time the event was
	// received.
	Time() float64

	event()
}

// Header contains the fields shared by every event.
type Header struct {
	Folder    string
	Timestamp float64
}

func (h Header) FolderName() string { return h.Folder }
func (h Header) Time() float64      { return h.Timestamp }
func (Header) event()               {}

// Transfer contains the fields shared by upload and download events.
type Transfer struct {
	Header
	Relpath string
}

// Invite contains the fields shared by the invitation events.
type Invite struct {
	Header
	ID              string
	ParticipantName string
	Mode            string
}

type FolderAdded struct{ Header }
type FolderLeft struct{ Header }

type UploadQueued struct{ Transfer }
type UploadStarted struct{ Transfer }
type UploadFinished struct{ Transfer }

type DownloadQueued struct{ Transfer }
type DownloadStarted struct{ Transfer }
type DownloadFinished struct{ Transfer }

type ScanCompleted struct{ Header }
type PollCompleted struct{ Header }

// ErrorOccurred reports a problem the daemon hit while syncing a folder.
type ErrorOccurred struct {
	Header
	Summary string
}

// ConnectionChanged reports the health of the daemon's connections to the
// storage grid.
type ConnectionChanged struct {
	Header
	Connected int
	Desired   int
	Happy     bool
}

type InviteCreated struct{ Invite }

// InviteWelcomed carries the welcome message sent by the rendezvous server.
type InviteWelcomed struct {
	Invite
	Welcome map[string]interface{}
}

// InviteCodeCreated carries the code that the other participant needs to
// accept the invitation.
type InviteCodeCreated struct {
	Invite
	Code string
}

// InviteVersionsReceived carries the protocol versions offered by the peer,
// as sent by the daemon.
type InviteVersionsReceived struct {
	Invite
	Versions interface{}
}

type InviteSucceeded struct{ Invite }

type InviteFailed struct {
	Invite
	Reason string
}

type InviteRejected struct {
	Invite
	Reason string
}

type InviteCancelled struct{ Invite }

func (FolderAdded) Kind() Kind            { return KindFolderAdded }
func (FolderLeft) Kind() Kind             { return KindFolderLeft }
func (UploadQueued) Kind() Kind           { return KindUploadQueued }
func (UploadStarted) Kind() Kind          { return KindUploadStarted }
func (UploadFinished) Kind() Kind         { return KindUploadFinished }
func (DownloadQueued) Kind() Kind         { return KindDownloadQueued }
func (DownloadStarted) Kind() Kind        { return KindDownloadStarted }
func (DownloadFinished) Kind() Kind       { return KindDownloadFinished }
func (ScanCompleted) Kind() Kind          { return KindScanCompleted }
func (PollCompleted) Kind() Kind          { return KindPollCompleted }
func (ErrorOccurred) Kind() Kind          { return KindErrorOccurred }
func (ConnectionChanged) Kind() Kind      { return KindConnectionChange }
func (InviteCreated) Kind() Kind          { return KindInviteCreated }
func (InviteWelcomed) Kind() Kind         { return KindInviteWelcomed }
func (InviteCodeCreated) Kind() Kind      { return KindInviteCodeCreated }
func (InviteVersionsReceived) Kind() Kind { return KindInviteVersionsReceived }
func (InviteSucceeded) Kind() Kind        { return KindInviteSucceeded }
func (InviteFailed) Kind() Kind           { return KindInviteFailed }
func (InviteRejected) Kind() Kind         { return KindInviteRejected }
func (InviteCancelled) Kind() Kind        { return KindInviteCancelled }
