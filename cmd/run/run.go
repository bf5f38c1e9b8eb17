package run

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/gridsync/gridsync/cmd/util"
	"github.com/gridsync/gridsync/pkg/config"
	"github.com/gridsync/gridsync/pkg/daemon"
	"github.com/gridsync/gridsync/pkg/errors"
	"github.com/gridsync/gridsync/pkg/monitor"
	"github.com/gridsync/gridsync/pkg/stream"
	"github.com/gridsync/gridsync/pkg/supervisor"
)

// messageBuffer is how many messages from the status feed can be queued
// before the reader waits for the handler to catch up.
const messageBuffer = 1024

// New creates a new `run` command.
func New() *cobra.Command {
	var configPath, logPath string
	cobraCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon and monitor its status",
		Long: `Start the sync daemon, restart it whenever it exits, and print the
status of each synced folder as it changes.

The daemon is stopped when "run" is interrupted.`,
		Run: func(_ *cobra.Command, _ []string) {
			cfg, err := config.Parse(configPath)
			if err != nil {
				util.HandleFatalError(err)
			}

			if logPath != "" {
				logFile, err := setupLogFile(logPath)
				if err != nil {
					util.HandleFatalError(errors.WithContext(err, "open log file"))
				}
				defer logFile.Close()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
			defer stop()

			if err := run(ctx, cfg, os.Stdout); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cobraCmd.Flags().StringVar(&configPath, "config", "",
		"Path to the gridsync config. Defaults to "+config.DefaultPath)
	cobraCmd.Flags().StringVar(&logPath, "log-file", "",
		"Write logs to this file rather than to the terminal.")
	return cobraCmd
}

func setupLogFile(path string) (io.Closer, error) {
	logFile, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	log.SetFormatter(&log.TextFormatter{
		// Show the full timestamp rather than the time elapsed since gridsync
		// started. This makes correlating logs with the daemon's easier.
		FullTimestamp: true,

		// Disable colors since we'll be logging to a file.
		DisableColors: true,
	})
	log.SetOutput(logFile)
	return logFile, nil
}

// run supervises the daemon and prints its status until `ctx` is cancelled.
func run(ctx context.Context, cfg config.Client, out io.Writer) error {
	unlock, err := acquireLock(cfg.LockFile)
	if err != nil {
		return err
	}
	defer unlock()

	sup, err := supervisor.New(supervisor.ProcessSpec{
		Args:            cfg.Daemon.Command,
		RestartDelay:    cfg.Daemon.RestartDelay(),
		ReadyTrigger:    cfg.Daemon.ReadyTrigger,
		StdoutCollector: daemonLogger("stdout"),
		StderrCollector: daemonLogger("stderr"),
		PidFile:         cfg.Daemon.PidFile,
	})
	if err != nil {
		return errors.WithContext(err, "create supervisor")
	}

	pid, err := sup.Start(ctx)
	defer sup.Stop()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.WithContext(err, "start daemon")
	}
	log.WithField("pid", pid).Info("Started sync daemon")

	printer := newStatusPrinter(out)
	handler := monitor.NewHandler(log.StandardLogger(),
		monitor.NewOperationsMonitor(log.StandardLogger(), printer),
		monitor.NewProgressMonitor(printer))
	handler.Subscribe(printer)

	handlerCtx, cancelHandler := context.WithCancel(ctx)
	defer cancelHandler()

	msgs := make(chan string, messageBuffer)
	go func() {
		defer util.HandlePanic()
		handler.Run(handlerCtx, msgs)
	}()

	return subscribe(ctx, cfg, msgs)
}

// subscribe forwards the daemon's status feed to `msgs` until `ctx` is
// cancelled. If the daemon moves to a new endpoint or rotates its token, the
// subscription is replaced.
func subscribe(ctx context.Context, cfg config.Client, msgs chan<- string) error {
	var endpointChanged <-chan struct{}
	if cfg.Stream.URL == "" {
		var err error
		endpointChanged, err = daemon.WatchEndpoint(ctx,
			cfg.Daemon.EndpointFile, cfg.Daemon.TokenFile)
		if err != nil {
			return errors.WithContext(err, "watch daemon endpoint")
		}
	}

	var current daemon.Endpoint
	var reader *stream.Reader
	var cancelReader context.CancelFunc
	stopReader := func() {
		if reader != nil {
			cancelReader()
			reader.Stop()
			reader = nil
		}
	}
	defer stopReader()

	for {
		endpoint, err := getEndpoint(ctx, cfg)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.WithContext(err, "find daemon endpoint")
		}

		// The headers can't be changed once a reader starts, so a new token
		// needs a new reader even if the address is the same.
		if reader == nil || !endpoint.Equal(current) {
			stopReader()

			var readerCtx context.Context
			readerCtx, cancelReader = context.WithCancel(ctx)
			reader, err = stream.New(stream.SubscriptionSpec{
				URL:      endpoint.URL,
				Headers:  endpoint.Headers,
				Consumer: enqueue(readerCtx, msgs),
			})
			if err != nil {
				cancelReader()
				return errors.WithContext(err, "subscribe to daemon")
			}

			log.WithField("url", endpoint.URL).Info("Subscribing to daemon status")
			reader.Start()
			current = endpoint
		}

		select {
		case <-ctx.Done():
			return nil
		case <-endpointChanged:
			log.Info("Daemon endpoint changed")
		}
	}
}

func getEndpoint(ctx context.Context, cfg config.Client) (daemon.Endpoint, error) {
	if cfg.Stream.URL != "" {
		return daemon.Endpoint{
			URL:     cfg.Stream.URL,
			Headers: cfg.Stream.Headers,
		}, nil
	}

	endpoint, err := daemon.WaitForEndpoint(ctx, cfg.Daemon.EndpointFile,
		cfg.Daemon.TokenFile, cfg.Stream.Path)
	if err != nil {
		return daemon.Endpoint{}, err
	}

	for k, v := range cfg.Stream.Headers {
		endpoint.Headers[k] = v
	}
	return endpoint, nil
}

// enqueue returns a stream consumer that passes messages to the handler. It
// blocks while the queue is full so that no messages are lost.
func enqueue(ctx context.Context, msgs chan<- string) func(string) {
	return func(msg string) {
		select {
		case msgs <- msg:
		case <-ctx.Done():
		}
	}
}

func daemonLogger(output string) func(string) {
	logger := log.WithField("stream", output)
	return func(line string) {
		logger.Debug(line)
	}
}

// acquireLock makes sure that only one client supervises the daemon at a
// time. It returns a function that releases the lock.
func acquireLock(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.WithContext(err, "make lock directory")
	}

	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.WithContext(err, "lock")
	}

	if !locked {
		return nil, errors.NewFriendlyError("Another gridsync client is already "+
			"running. It holds the lock at %q.", path)
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			log.WithError(err).Warn("Failed to release lock")
		}
	}, nil
}
