package supervisor

import (
	"context"
	"os/exec"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/gridsync/gridsync/pkg/errors"
)

const testPidFile = "/run/gridsync/daemon.pid"

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		spec     ProcessSpec
		expError error
	}{
		{
			name:     "NoArgs",
			spec:     ProcessSpec{PidFile: testPidFile},
			expError: errors.MissingFieldError{Field: "args"},
		},
		{
			name:     "EmptyExecutable",
			spec:     ProcessSpec{Args: []string{""}, PidFile: testPidFile},
			expError: errors.MissingFieldError{Field: "args"},
		},
		{
			name:     "NoPidFile",
			spec:     ProcessSpec{Args: []string{"tahoe", "run"}},
			expError: errors.MissingFieldError{Field: "pidFile"},
		},
		{
			name: "NegativeDelay",
			spec: ProcessSpec{
				Args:         []string{"tahoe", "run"},
				PidFile:      testPidFile,
				RestartDelay: -time.Second,
			},
			expError: errors.New("restart delay must not be negative"),
		},
		{
			name: "ZeroDelay",
			spec: ProcessSpec{
				Args:    []string{"tahoe", "run"},
				PidFile: testPidFile,
			},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			s, err := New(test.spec)
			if test.expError != nil {
				assert.Equal(t, test.expError, err)
				assert.Nil(t, s)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, s)
			}
		})
	}
}

func TestStartWritesPidfile(t *testing.T) {
	s, hook := newTestSupervisor(t, ProcessSpec{
		Args: []string{"sleep", "30"},
	})

	pid, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.NotZero(t, pid)
	assert.Equal(t, pid, s.PID())
	assertPidfile(t, pid)

	s.Stop()
	assert.False(t, pidfileExists(testPidFile))
	assert.Eventually(t, func() bool {
		return unix.Kill(pid, 0) == unix.ESRCH
	}, 5*time.Second, 10*time.Millisecond)

	// The process was stopped on purpose, so it shouldn't be restarted.
	assert.Eventually(t, func() bool {
		return hasEntry(hook, logrus.InfoLevel, "Process exited")
	}, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, s.Restarts())
}

func TestReadyTrigger(t *testing.T) {
	var stdout, stderr lineRecorder
	s, _ := newTestSupervisor(t, ProcessSpec{
		Args: []string{"sh", "-c",
			`echo starting; sleep 0.2; echo "daemon READY" >&2; exec sleep 30`},
		ReadyTrigger:    "READY",
		StdoutCollector: stdout.collect,
		StderrCollector: stderr.collect,
	})
	defer s.Stop()

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	// The line that contained the trigger is always collected before Start
	// returns.
	assert.Equal(t, []string{"daemon READY"}, stderr.get())
	assert.Equal(t, []string{"starting"}, stdout.get())
}

func TestExitBeforeReady(t *testing.T) {
	s, _ := newTestSupervisor(t, ProcessSpec{
		Args:         []string{"sh", "-c", "echo nope; exit 1"},
		ReadyTrigger: "READY",
		RestartDelay: time.Hour,
	})
	s.clock = clockwork.NewFakeClock()
	defer s.Stop()

	_, err := s.Start(context.Background())
	assert.EqualError(t, err, "process exited before becoming ready")
}

func TestStartCancelled(t *testing.T) {
	s, _ := newTestSupervisor(t, ProcessSpec{
		Args:         []string{"sleep", "30"},
		ReadyTrigger: "READY",
	})
	defer s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Start(ctx)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

// A process that exits is relaunched, and the new pid is recorded.
func TestRestartAfterExit(t *testing.T) {
	s, _ := newTestSupervisor(t, ProcessSpec{
		Args: []string{"sh", "-c", "sleep 0.1"},
	})

	firstPid, err := s.Start(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		pid, err := readPidfile(testPidFile)
		return err == nil && pid != firstPid && s.Restarts() >= 1
	}, 5*time.Second, 10*time.Millisecond)

	s.Stop()
	restarts := s.Restarts()
	assert.Never(t, func() bool {
		return s.Restarts() != restarts
	}, 500*time.Millisecond, 50*time.Millisecond)
	assert.False(t, pidfileExists(testPidFile))
}

func TestStopCancelsRestart(t *testing.T) {
	s, _ := newTestSupervisor(t, ProcessSpec{
		Args:         []string{"sh", "-c", "exit 0"},
		RestartDelay: 10 * time.Second,
	})
	clock := clockwork.NewFakeClock()
	s.clock = clock

	var starts countingStart
	startCommand = starts.start
	defer func() { startCommand = (*exec.Cmd).Start }()

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	// Wait for the exit watcher to schedule the restart.
	clock.BlockUntil(1)
	s.Stop()
	clock.Advance(time.Minute)

	assert.Never(t, func() bool {
		return starts.get() != 1
	}, 200*time.Millisecond, 20*time.Millisecond)
	assert.Zero(t, s.Restarts())
}

func TestRestartFailureIsRetried(t *testing.T) {
	s, hook := newTestSupervisor(t, ProcessSpec{
		Args:         []string{"sh", "-c", "exit 0"},
		RestartDelay: 5 * time.Second,
	})
	clock := clockwork.NewFakeClock()
	s.clock = clock
	defer s.Stop()

	// The first restart fails to spawn.
	var starts countingStart
	starts.failOn = map[int]bool{2: true}
	startCommand = starts.start
	defer func() { startCommand = (*exec.Cmd).Start }()

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	clock.BlockUntil(1)

	clock.Advance(5 * time.Second)
	assert.Eventually(t, func() bool {
		return starts.get() == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return hasEntry(hook, logrus.ErrorLevel, "Failed to restart process. Retrying")
	}, 5*time.Second, 10*time.Millisecond)

	clock.BlockUntil(1)
	clock.Advance(5 * time.Second)
	assert.Eventually(t, func() bool {
		return starts.get() == 3
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, s.Restarts())
}

func TestStartStopsPreviousRun(t *testing.T) {
	s, _ := newTestSupervisor(t, ProcessSpec{
		Args: []string{"sleep", "30"},
	})
	require.NoError(t, writePidfile(testPidFile, 4242))

	var signals signalRecorder
	kill = func(pid int, sig syscall.Signal) error {
		signals.record(pid, sig)
		if pid == 4242 {
			return unix.ESRCH
		}
		return unix.Kill(pid, sig)
	}
	defer func() { kill = unix.Kill }()

	pid, err := s.Start(context.Background())
	require.NoError(t, err)
	assertPidfile(t, pid)

	s.Stop()
	assert.Equal(t, []signal{
		{4242, unix.SIGTERM},
		{pid, unix.SIGTERM},
	}, signals.get())
}

func TestStop(t *testing.T) {
	tests := []struct {
		name       string
		pidfile    *string
		killErr    error
		expSignals []signal
		expLevel   logrus.Level
		expMessage string
	}{
		{
			name:       "NoPidfile",
			expLevel:   logrus.DebugLevel,
			expMessage: "No pidfile. Nothing to stop",
		},
		{
			name:       "UnparseablePidfile",
			pidfile:    strPtr("garbage"),
			expLevel:   logrus.WarnLevel,
			expMessage: "Failed to read pidfile. Removing it",
		},
		{
			name:       "ProcessGone",
			pidfile:    strPtr("4242"),
			killErr:    unix.ESRCH,
			expSignals: []signal{{4242, unix.SIGTERM}},
			expLevel:   logrus.DebugLevel,
			expMessage: "Process already gone",
		},
		{
			name:       "PermissionDenied",
			pidfile:    strPtr("1"),
			killErr:    unix.EPERM,
			expSignals: []signal{{1, unix.SIGTERM}},
			expLevel:   logrus.WarnLevel,
			expMessage: "Failed to signal process",
		},
		{
			name:       "Stopped",
			pidfile:    strPtr("4242"),
			expSignals: []signal{{4242, unix.SIGTERM}},
			expLevel:   logrus.InfoLevel,
			expMessage: "Stopped process",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			s, hook := newTestSupervisor(t, ProcessSpec{
				Args: []string{"tahoe", "run"},
			})
			if test.pidfile != nil {
				require.NoError(t, afero.WriteFile(fs, testPidFile, []byte(*test.pidfile), 0644))
			}

			var signals signalRecorder
			kill = func(pid int, sig syscall.Signal) error {
				signals.record(pid, sig)
				return test.killErr
			}
			defer func() { kill = unix.Kill }()

			s.Stop()
			assert.Equal(t, test.expSignals, signals.get())
			assert.False(t, pidfileExists(testPidFile))
			assert.True(t, hasEntry(hook, test.expLevel, test.expMessage))

			// Stopping again is a no-op.
			s.Stop()
			assert.Equal(t, test.expSignals, signals.get())
		})
	}
}

func TestCollectorPanic(t *testing.T) {
	var stderr lineRecorder
	s, hook := newTestSupervisor(t, ProcessSpec{
		Args: []string{"sh", "-c",
			`echo one; echo two; echo "oops" >&2; echo READY; exec sleep 30`},
		ReadyTrigger:    "READY",
		StdoutCollector: func(string) { panic("collector bug") },
		StderrCollector: stderr.collect,
	})
	defer s.Stop()

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, hasEntry(hook, logrus.ErrorLevel, "Output collector panicked"))
	assert.Eventually(t, func() bool {
		return len(stderr.get()) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func newTestSupervisor(t *testing.T, spec ProcessSpec) (*Supervisor, *logrusTest.Hook) {
	fs = afero.NewMemMapFs()
	if spec.PidFile == "" {
		spec.PidFile = testPidFile
	}

	s, err := New(spec)
	require.NoError(t, err)

	logger, hook := logrusTest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s.log = logger
	return s, hook
}

func assertPidfile(t *testing.T, exp int) {
	pid, err := readPidfile(testPidFile)
	require.NoError(t, err)
	assert.Equal(t, exp, pid)
}

func hasEntry(hook *logrusTest.Hook, level logrus.Level, msg string) bool {
	for _, entry := range hook.AllEntries() {
		if entry.Level == level && entry.Message == msg {
			return true
		}
	}
	return false
}

type lineRecorder struct {
	lock  sync.Mutex
	lines []string
}

func (r *lineRecorder) collect(line string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.lines = append(r.lines, line)
}

func (r *lineRecorder) get() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.lines...)
}

type signal struct {
	pid int
	sig syscall.Signal
}

type signalRecorder struct {
	lock    sync.Mutex
	signals []signal
}

func (r *signalRecorder) record(pid int, sig syscall.Signal) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.signals = append(r.signals, signal{pid, sig})
}

func (r *signalRecorder) get() []signal {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]signal(nil), r.signals...)
}

// countingStart counts calls to startCommand, and fails the calls whose
// number is in failOn.
type countingStart struct {
	lock   sync.Mutex
	calls  int
	failOn map[int]bool
}

func (c *countingStart) start(cmd *exec.Cmd) error {
	c.lock.Lock()
	c.calls++
	fail := c.failOn[c.calls]
	c.lock.Unlock()

	if fail {
		return errors.New("exec format error")
	}
	return cmd.Start()
}

func (c *countingStart) get() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.calls
}
