package monitor

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/gridsync/gridsync/pkg/events"
)

// Handler decodes messages from the daemon's status feed and forwards each
// event to the operations and progress monitors, followed by any additional
// subscribers.
type Handler struct {
	operations  *OperationsMonitor
	progress    *ProgressMonitor
	subscribers []Subscriber

	clock clockwork.Clock
	log   *logrus.Logger
}

// NewHandler creates a Handler that feeds the given monitors.
func NewHandler(log *logrus.Logger, operations *OperationsMonitor,
	progress *ProgressMonitor) *Handler {

	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		operations: operations,
		progress:   progress,
		clock:      clockwork.NewRealClock(),
		log:        log,
	}
}

// Subscribe registers `s` to receive every event after the monitors have
// processed it. It must be called before Run.
func (h *Handler) Subscribe(s Subscriber) {
	h.subscribers = append(h.subscribers, s)
}

// Handle forwards a decoded event. A listener that panics is logged, and
// the event is still passed to the rest.
func (h *Handler) Handle(ev events.Event) {
	if h.operations != nil {
		h.forward(ev, h.operations)
	}
	if h.progress != nil {
		h.forward(ev, h.progress)
	}
	for _, s := range h.subscribers {
		h.forward(ev, s)
	}
}

func (h *Handler) forward(ev events.Event, s Subscriber) {
	defer func() {
		if r := recover(); r != nil {
			h.log.WithFields(logrus.Fields{
				"kind":   ev.Kind(),
				"folder": ev.FolderName(),
				"panic":  r,
			}).Error("Event listener panicked")
		}
	}()
	s.HandleEvent(ev)
}

// HandleMessage decodes a message from the status feed and handles each of
// its events in order. Records that can't be decoded are logged and skipped.
func (h *Handler) HandleMessage(msg string) {
	evs, errs := events.ParseMessage([]byte(msg), h.clock.Now())
	for _, err := range errs {
		h.log.WithError(err).Warn("Dropping unusable event from daemon")
	}

	for _, ev := range evs {
		h.Handle(ev)
	}
}

// Run handles messages from `msgs` until the channel is closed or the context
// is cancelled. It's the only goroutine that touches the monitors' state.
func (h *Handler) Run(ctx context.Context, msgs <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			h.HandleMessage(msg)
		}
	}
}
