package stream

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/gridsync/gridsync/pkg/errors"
)

// dial opens a websocket connection. It's mocked out for unit testing.
var dial = func(ctx context.Context, url string, header http.Header) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	return conn, err
}

// SubscriptionSpec describes the feed to subscribe to.
type SubscriptionSpec struct {
	// URL is the ws:// or wss:// address of the feed.
	URL string

	// Headers are sent with every connection attempt.
	Headers map[string]string

	// Consumer receives every text message. It's called from the
	// connection goroutine, so it should return quickly.
	Consumer func(msg string)
}

// Reader keeps a connection to a websocket feed open, and reconnects
// whenever the connection fails.
type Reader struct {
	url      string
	headers  http.Header
	consumer func(string)
	clock    clockwork.Clock
	log      *logrus.Logger
	backoff  *backoff

	lock    sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
	conn    *websocket.Conn
}

// New validates `spec` and creates a Reader for it. The feed isn't
// contacted until Start is called.
func New(spec SubscriptionSpec) (*Reader, error) {
	if spec.Consumer == nil {
		return nil, errors.MissingFieldError{Field: "consumer"}
	}

	feedURL, err := parseURL(spec.URL)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	for k, v := range spec.Headers {
		headers.Set(k, v)
	}

	return &Reader{
		url:      feedURL,
		headers:  headers,
		consumer: spec.Consumer,
		clock:    clockwork.NewRealClock(),
		log:      logrus.StandardLogger(),
		backoff:  newBackoff(),
		done:     make(chan struct{}),
	}, nil
}

// parseURL checks that `raw` is a websocket URL that can be dialed. Hosts
// that mean "every interface" are rewritten to the loopback address since
// they can't be connected to.
func parseURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.InvalidURLError{URL: raw, Reason: err.Error()}
	}

	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", errors.InvalidURLError{URL: raw, Reason: "scheme must be ws or wss"}
	}

	host := u.Hostname()
	if host == "" {
		return "", errors.InvalidURLError{URL: raw, Reason: "missing host"}
	}

	port := u.Port()
	if port != "" {
		if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
			return "", errors.InvalidURLError{URL: raw, Reason: "bad port"}
		}
	}

	if host == "0.0.0.0" || host == "::" {
		u.Host = "127.0.0.1"
		if port != "" {
			u.Host = net.JoinHostPort("127.0.0.1", port)
		}
	}
	return u.String(), nil
}

// Start connects to the feed in the background. Calling it more than once,
// or after Stop, has no effect.
func (r *Reader) Start() {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.started || r.stopped {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.started = true
	r.cancel = cancel
	go r.run(ctx)
}

// Stop closes the connection and disables reconnects. Once Stop returns, no
// more messages are passed to the consumer and no more connection attempts
// are made. It's safe to call multiple times, but must not be called from
// the consumer.
func (r *Reader) Stop() {
	r.lock.Lock()
	if r.stopped {
		r.lock.Unlock()
		return
	}

	r.stopped = true
	if r.cancel != nil {
		r.cancel()
	}
	if r.conn != nil {
		r.conn.Close()
	}
	started := r.started
	r.lock.Unlock()

	if started {
		<-r.done
	}
	r.log.WithField("url", r.url).Debug("Stopped stream reader")
}

// Connected returns whether there is currently an open connection to the
// feed.
func (r *Reader) Connected() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.conn != nil
}

func (r *Reader) run(ctx context.Context) {
	defer close(r.done)

	for {
		if r.connectOnce(ctx) {
			r.backoff.reset()
		}

		delay := r.backoff.next()
		r.log.WithFields(logrus.Fields{
			"url":   r.url,
			"delay": delay,
		}).Debug("Waiting to reconnect")

		select {
		case <-ctx.Done():
			return
		case <-r.clock.After(delay):
		}
	}
}

// connectOnce connects to the feed and reads messages until the connection
// fails. It returns whether the connection was established.
func (r *Reader) connectOnce(ctx context.Context) bool {
	log := r.log.WithFields(logrus.Fields{
		"url":        r.url,
		"connection": uuid.New().String(),
	})

	conn, err := dial(ctx, r.url, r.headers)
	if err != nil {
		if ctx.Err() == nil {
			log.WithError(err).Warn("Failed to connect to event stream")
		}
		return false
	}

	r.lock.Lock()
	if r.stopped {
		r.lock.Unlock()
		conn.Close()
		return false
	}
	r.conn = conn
	r.lock.Unlock()

	defer func() {
		r.lock.Lock()
		r.conn = nil
		r.lock.Unlock()
		conn.Close()
	}()

	log.Info("Connected to event stream")
	for {
		msgType, data, err := conn.ReadMessage()
		if ctx.Err() != nil {
			return true
		}

		if err != nil {
			log.WithError(err).Warn("Lost connection to event stream")
			return true
		}

		switch msgType {
		case websocket.TextMessage:
			if !utf8.Valid(data) {
				log.Warn("Dropped text message that isn't valid UTF-8")
				continue
			}
			r.consume(log, string(data))
		case websocket.BinaryMessage:
			log.WithField("size", len(data)).Warn("Dropped binary message")
		}
	}
}

func (r *Reader) consume(log *logrus.Entry, msg string) {
	defer func() {
		if p := recover(); p != nil {
			log.WithField("panic", p).Error("Stream consumer panicked")
		}
	}()
	r.consumer(msg)
}
