package events

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/gridsync/gridsync/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// UnknownKindError is returned for records whose kind isn't one of the known
// event kinds. A missing kind is reported with an empty Kind.
type UnknownKindError struct {
	Kind string
}

func (err UnknownKindError) Error() string {
	if err.Kind == "" {
		return "event has no kind"
	}
	return fmt.Sprintf("unknown event kind %q", err.Kind)
}

// MalformedEventError is returned for records that have a known kind but
// can't be decoded into it.
type MalformedEventError struct {
	Kind  string
	Cause error
}

func (err MalformedEventError) Error() string {
	return fmt.Sprintf("malformed %q event: %s", err.Kind, err.Cause)
}

func (err MalformedEventError) Unwrap() error {
	return err.Cause
}

type envelope struct {
	Events []jsoniter.RawMessage `json:"events"`
}

// record is the union of all fields that appear on the wire.
type record struct {
	Kind            string                 `json:"kind"`
	Folder          string                 `json:"folder"`
	Timestamp       *float64               `json:"timestamp"`
	Relpath         string                 `json:"relpath"`
	Summary         string                 `json:"summary"`
	Connected       int                    `json:"connected"`
	Desired         int                    `json:"desired"`
	Happy           bool                   `json:"happy"`
	ID              string                 `json:"id"`
	ParticipantName string                 `json:"participant-name"`
	Mode            string                 `json:"mode"`
	Welcome         map[string]interface{} `json:"welcome"`
	Code            string                 `json:"code"`
	Versions        interface{}            `json:"versions"`
	Reason          string                 `json:"reason"`
}

// ParseMessage decodes one message from the status feed. It returns every
// event that could be decoded, in order, along with an error for each record
// that couldn't. If the message itself isn't a valid envelope, the only
// error describes why.
func ParseMessage(msg []byte, now time.Time) (evs []Event, errs []error) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, []error{errors.WithContext(err, "decode envelope")}
	}

	for _, raw := range env.Events {
		ev, err := Parse(raw, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		evs = append(evs, ev)
	}
	return evs, errs
}

// Parse decodes a single event record. `now` is used as the timestamp if the
// record doesn't have one.
func Parse(raw []byte, now time.Time) (Event, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		// Recover the kind, if there is one, so that the error is more useful.
		kind := json.Get(raw, "kind").ToString()
		if !isKnown(Kind(kind)) {
			return nil, UnknownKindError{kind}
		}
		return nil, MalformedEventError{Kind: kind, Cause: err}
	}

	kind := Kind(rec.Kind)
	if !isKnown(kind) {
		return nil, UnknownKindError{rec.Kind}
	}

	if err := rec.validate(kind); err != nil {
		return nil, MalformedEventError{Kind: rec.Kind, Cause: err}
	}

	header := Header{Folder: rec.Folder, Timestamp: epochSeconds(now)}
	if rec.Timestamp != nil {
		header.Timestamp = *rec.Timestamp
	}
	transfer := Transfer{Header: header, Relpath: rec.Relpath}
	invite := Invite{
		Header:          header,
		ID:              rec.ID,
		ParticipantName: rec.ParticipantName,
		Mode:            rec.Mode,
	}

	switch kind {
	case KindFolderAdded:
		return FolderAdded{header}, nil
	case KindFolderLeft:
		return FolderLeft{header}, nil
	case KindUploadQueued:
		return UploadQueued{transfer}, nil
	case KindUploadStarted:
		return UploadStarted{transfer}, nil
	case KindUploadFinished:
		return UploadFinished{transfer}, nil
	case KindDownloadQueued:
		return DownloadQueued{transfer}, nil
	case KindDownloadStarted:
		return DownloadStarted{transfer}, nil
	case KindDownloadFinished:
		return DownloadFinished{transfer}, nil
	case KindScanCompleted:
		return ScanCompleted{header}, nil
	case KindPollCompleted:
		return PollCompleted{header}, nil
	case KindErrorOccurred:
		return ErrorOccurred{Header: header, Summary: rec.Summary}, nil
	case KindConnectionChange:
		return ConnectionChanged{
			Header:    header,
			Connected: rec.Connected,
			Desired:   rec.Desired,
			Happy:     rec.Happy,
		}, nil
	case KindInviteCreated:
		return InviteCreated{invite}, nil
	case KindInviteWelcomed:
		return InviteWelcomed{Invite: invite, Welcome: rec.Welcome}, nil
	case KindInviteCodeCreated:
		return InviteCodeCreated{Invite: invite, Code: rec.Code}, nil
	case KindInviteVersionsReceived:
		return InviteVersionsReceived{Invite: invite, Versions: rec.Versions}, nil
	case KindInviteSucceeded:
		return InviteSucceeded{invite}, nil
	case KindInviteFailed:
		return InviteFailed{Invite: invite, Reason: rec.Reason}, nil
	case KindInviteRejected:
		return InviteRejected{Invite: invite, Reason: rec.Reason}, nil
	case KindInviteCancelled:
		return InviteCancelled{invite}, nil
	}

	// Unreachable as long as isKnown and the switch agree.
	return nil, UnknownKindError{rec.Kind}
}

func (rec record) validate(kind Kind) error {
	if kind != KindConnectionChange && rec.Folder == "" {
		return errors.MissingFieldError{Field: "folder"}
	}

	switch kind {
	case KindUploadQueued, KindUploadStarted, KindUploadFinished,
		KindDownloadQueued, KindDownloadStarted, KindDownloadFinished:
		if rec.Relpath == "" {
			return errors.MissingFieldError{Field: "relpath"}
		}
	case KindInviteCreated, KindInviteWelcomed, KindInviteCodeCreated,
		KindInviteVersionsReceived, KindInviteSucceeded, KindInviteFailed,
		KindInviteRejected, KindInviteCancelled:
		if rec.ID == "" {
			return errors.MissingFieldError{Field: "id"}
		}
	}
	return nil
}

var knownKinds = map[Kind]struct{}{
	KindFolderAdded:            {},
	KindFolderLeft:             {},
	KindUploadQueued:           {},
	KindUploadStarted:          {},
	KindUploadFinished:         {},
	KindDownloadQueued:         {},
	KindDownloadStarted:        {},
	KindDownloadFinished:       {},
	KindScanCompleted:          {},
	KindPollCompleted:          {},
	KindErrorOccurred:          {},
	KindConnectionChange:       {},
	KindInviteCreated:          {},
	KindInviteWelcomed:         {},
	KindInviteCodeCreated:      {},
	KindInviteVersionsReceived: {},
	KindInviteSucceeded:        {},
	KindInviteFailed:           {},
	KindInviteRejected:         {},
	KindInviteCancelled:        {},
}

func isKnown(kind Kind) bool {
	_, ok := knownKinds[kind]
	return ok
}

func epochSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}
