package supervisor

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/gridsync/gridsync/pkg/errors"
)

// Mocked out for unit testing.
var (
	startCommand = (*exec.Cmd).Start
	waitCommand  = (*exec.Cmd).Wait
	kill         = unix.Kill
)

// maxLineLength is the longest output line that is delivered to a
// collector. Longer lines are discarded along with the rest of that stream.
const maxLineLength = 1024 * 1024

// ProcessSpec describes the process to supervise.
type ProcessSpec struct {
	// Args is the command to run. Args[0] is the executable.
	Args []string

	// RestartDelay is how long to wait after the process exits before
	// launching it again.
	RestartDelay time.Duration

	// ReadyTrigger, if set, makes Start block until a line containing it
	// is printed on stdout or stderr.
	ReadyTrigger string

	// StdoutCollector and StderrCollector receive each line of output.
	StdoutCollector func(line string)
	StderrCollector func(line string)

	// PidFile is where the pid of the running process is recorded.
	PidFile string
}

// Supervisor runs a single process, and restarts it whenever it exits until
// Stop is called.
type Supervisor struct {
	spec  ProcessSpec
	clock clockwork.Clock
	log   *logrus.Logger

	// lock guards all the following fields. It's held while the process is
	// being launched or stopped so that a restart can't race with Stop.
	lock      sync.Mutex
	keepAlive bool
	current   *exec.Cmd
	pid       int
	restarts  int
	timer     clockwork.Timer
}

// New validates `spec` and creates a Supervisor for it. The process isn't
// launched until Start is called.
func New(spec ProcessSpec) (*Supervisor, error) {
	if len(spec.Args) == 0 || spec.Args[0] == "" {
		return nil, errors.MissingFieldError{Field: "args"}
	}

	if spec.PidFile == "" {
		return nil, errors.MissingFieldError{Field: "pidFile"}
	}

	if spec.RestartDelay < 0 {
		return nil, errors.New("restart delay must not be negative")
	}

	return &Supervisor{
		spec:  spec,
		clock: clockwork.NewRealClock(),
		log:   logrus.StandardLogger(),
	}, nil
}

// Start launches the process and returns its pid. Any process left over
// from a previous run, as recorded in the pidfile, is stopped first.
//
// If a ReadyTrigger is set, Start blocks until the trigger is printed.
// It's an error if the process exits, or `ctx` is cancelled, before then.
// The process is still supervised in that case, so callers should Stop it.
func (s *Supervisor) Start(ctx context.Context) (int, error) {
	s.lock.Lock()
	if pidfileExists(s.spec.PidFile) {
		s.log.WithField("pidFile", s.spec.PidFile).Info(
			"Stopping process left over from a previous run")
		s.stopLocked()
	}

	s.keepAlive = true
	l, err := s.launchLocked()
	s.lock.Unlock()
	if err != nil {
		return 0, err
	}

	if err := s.waitReady(ctx, l); err != nil {
		return 0, err
	}
	return l.pid, nil
}

// Stop terminates the process recorded in the pidfile and disables
// restarts. It's safe to call multiple times, and before Start.
func (s *Supervisor) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.stopLocked()
}

// PID returns the pid of the most recently launched process.
func (s *Supervisor) PID() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.pid
}

// Restarts returns how many times the process has been automatically
// restarted.
func (s *Supervisor) Restarts() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.restarts
}

func (s *Supervisor) stopLocked() {
	s.keepAlive = false
	s.current = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	log := s.log.WithField("pidFile", s.spec.PidFile)
	var notFound errors.FileNotFound
	pid, err := readPidfile(s.spec.PidFile)
	switch {
	case errors.As(err, &notFound):
		log.Debug("No pidfile. Nothing to stop")
		return
	case err != nil:
		log.WithError(err).Warn("Failed to read pidfile. Removing it")
		s.removePidfile()
		return
	}

	log = log.WithField("pid", pid)
	switch err := kill(pid, unix.SIGTERM); {
	case errors.Is(err, unix.ESRCH):
		log.Debug("Process already gone")
	case err != nil:
		log.WithError(err).Warn("Failed to signal process")
	default:
		log.Info("Stopped process")
	}
	s.removePidfile()
}

func (s *Supervisor) removePidfile() {
	if err := removePidfile(s.spec.PidFile); err != nil {
		s.log.WithError(err).WithField("pidFile", s.spec.PidFile).
			Warn("Failed to remove pidfile")
	}
}

// launch tracks the progress of a single process.
type launch struct {
	pid    int
	ready  chan struct{}
	exited chan struct{}
}

func (s *Supervisor) launchLocked() (*launch, error) {
	cmd := exec.Command(s.spec.Args[0], s.spec.Args[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.WithContext(err, "stdout pipe")
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.WithContext(err, "stderr pipe")
	}

	if err := startCommand(cmd); err != nil {
		return nil, errors.WithContext(err, "start process")
	}

	l := &launch{
		pid:    cmd.Process.Pid,
		ready:  make(chan struct{}),
		exited: make(chan struct{}),
	}
	log := s.log.WithFields(logrus.Fields{
		"pid":  l.pid,
		"args": s.spec.Args,
	})

	if err := writePidfile(s.spec.PidFile, l.pid); err != nil {
		_ = cmd.Process.Kill()
		_ = waitCommand(cmd)
		return nil, errors.WithContext(err, "write pidfile")
	}

	s.current = cmd
	s.pid = l.pid
	log.Info("Launched process")

	var readyOnce sync.Once
	onLine := func(line string) {
		if s.spec.ReadyTrigger != "" && strings.Contains(line, s.spec.ReadyTrigger) {
			readyOnce.Do(func() { close(l.ready) })
		}
	}

	var pumps errgroup.Group
	pumps.Go(func() error {
		return s.pump(stdout, "stdout", s.spec.StdoutCollector, onLine)
	})
	pumps.Go(func() error {
		return s.pump(stderr, "stderr", s.spec.StderrCollector, onLine)
	})

	go func() {
		// The pipes must be drained before calling Wait.
		if err := pumps.Wait(); err != nil {
			log.WithError(err).Warn("Failed to read process output")
		}

		exitErr := waitCommand(cmd)
		close(l.exited)
		s.onExit(cmd, log, exitErr)
	}()

	return l, nil
}

func (s *Supervisor) waitReady(ctx context.Context, l *launch) error {
	if s.spec.ReadyTrigger == "" {
		return nil
	}

	select {
	case <-l.ready:
		return nil
	case <-l.exited:
		// Both may be ready if the trigger was the last thing printed.
		select {
		case <-l.ready:
			return nil
		default:
		}
		return errors.New("process exited before becoming ready")
	case <-ctx.Done():
		return errors.WithContext(ctx.Err(), "wait for ready trigger")
	}
}

// pump reads `r` line by line until EOF, and passes each line to `collector`
// and `onLine`.
func (s *Supervisor) pump(r io.Reader, stream string,
	collector func(string), onLine func(string)) error {

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)
	for scanner.Scan() {
		line := scanner.Text()
		s.collect(stream, collector, line)
		onLine(line)
	}

	if err := scanner.Err(); err != nil {
		// Keep draining so that the process doesn't block writing to a full
		// pipe.
		_, _ = io.Copy(io.Discard, r)
		return errors.WithContext(err, stream)
	}
	return nil
}

func (s *Supervisor) collect(stream string, collector func(string), line string) {
	if collector == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{
				"stream": stream,
				"panic":  r,
			}).Error("Output collector panicked")
		}
	}()
	collector(line)
}

func (s *Supervisor) onExit(cmd *exec.Cmd, log *logrus.Entry, exitErr error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	log = log.WithField("exitErr", exitErr)
	if !s.keepAlive || s.current != cmd {
		log.Info("Process exited")
		return
	}

	s.current = nil
	log.WithField("delay", s.spec.RestartDelay).Warn(
		"Process exited unexpectedly. Restarting")
	s.scheduleRestartLocked()
}

func (s *Supervisor) scheduleRestartLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.clock.AfterFunc(s.spec.RestartDelay, s.restart)
}

func (s *Supervisor) restart() {
	s.lock.Lock()
	if !s.keepAlive {
		s.lock.Unlock()
		return
	}

	s.timer = nil
	s.restarts++
	l, err := s.launchLocked()
	if err != nil {
		s.log.WithError(err).WithField("delay", s.spec.RestartDelay).
			Error("Failed to restart process. Retrying")
		s.scheduleRestartLocked()
		s.lock.Unlock()
		return
	}
	s.lock.Unlock()

	// If the process exits before it's ready, the exit watcher schedules the
	// next restart.
	if err := s.waitReady(context.Background(), l); err != nil {
		s.log.WithError(err).Warn("Restarted process never became ready")
	}
}
