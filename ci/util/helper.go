package util

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/ghodss/yaml"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/gridsync/gridsync/pkg/config"
	"github.com/gridsync/gridsync/pkg/errors"
)

// TestHelper contains methods commonly used during integration tests.
type TestHelper struct {
	// Dir holds the daemon's files and the client's config.
	Dir        string
	ConfigPath string
	LogPath    string
	Config     config.Client

	gridsyncPath string
}

// NewTestHelper builds the gridsync CLI and the fake daemon, and writes a
// config that runs the fake daemon from a fresh directory.
func NewTestHelper(t *testing.T, repoRoot string) *TestHelper {
	binDir := t.TempDir()
	dir := t.TempDir()

	for pkg, out := range map[string]string{
		".":              "gridsync",
		"./ci/fakedaemon": "fakedaemon",
	} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(binDir, out), pkg)
		cmd.Dir = repoRoot
		output, err := cmd.CombinedOutput()
		require.NoError(t, err, "build %s: %s", pkg, output)
	}

	delay := 0.5
	helper := &TestHelper{
		Dir:        dir,
		ConfigPath: filepath.Join(dir, "gridsync.yaml"),
		LogPath:    filepath.Join(dir, "gridsync.log"),
		Config: config.Client{
			Version: config.SupportedVersion,
			Daemon: config.Daemon{
				Command:             []string{filepath.Join(binDir, "fakedaemon"), "--dir", dir},
				RestartDelaySeconds: &delay,
				ReadyTrigger:        "fakedaemon: ready",
				PidFile:             filepath.Join(dir, "daemon.pid"),
				EndpointFile:        filepath.Join(dir, "api_endpoint"),
				TokenFile:           filepath.Join(dir, "api_token"),
			},
			LockFile: filepath.Join(dir, "gridsync.lock"),
		},
		gridsyncPath: filepath.Join(binDir, "gridsync"),
	}

	configBytes, err := yaml.Marshal(helper.Config)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(helper.ConfigPath, configBytes, 0644))
	return helper
}

// Start starts the given gridsync command. It returns the command's output,
// and a channel for obtaining any errors after starting the command. The
// command is interrupted when `ctx` is cancelled.
func (helper *TestHelper) Start(ctx context.Context, args ...string) (
	*Output, chan error, error) {

	args = append(args, "--config", helper.ConfigPath)
	cmd := exec.Command(helper.gridsyncPath, args...)

	stdout := &Output{}
	cmd.Stdout = stdout
	stderr := bytes.NewBuffer(nil)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	stdout.Pid = cmd.Process.Pid

	errChan := make(chan error, 1)
	go func() {
		waitErr := make(chan error)
		go func() {
			waitErr <- cmd.Wait()
			close(waitErr)
		}()

		defer close(errChan)
		select {
		case <-ctx.Done():
			if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
				errChan <- errors.WithContext(err, "interrupt")
				return
			}
			if err := <-waitErr; err != nil {
				errChan <- fmt.Errorf("exited uncleanly (%s): stderr: %s", err, stderr)
			}
		case err := <-waitErr:
			errChan <- fmt.Errorf("crashed (%s): stderr: %s", err, stderr)
		}
	}()
	return stdout, errChan, nil
}

// Run runs the given gridsync command, and returns its stdout.
func (helper *TestHelper) Run(ctx context.Context, args ...string) ([]byte, error) {
	args = append(args, "--config", helper.ConfigPath)
	return exec.CommandContext(ctx, helper.gridsyncPath, args...).Output()
}

// DaemonPid returns the pid recorded in the daemon's pidfile.
func (helper *TestHelper) DaemonPid() (int, error) {
	contents, err := os.ReadFile(helper.Config.Daemon.PidFile)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(contents)))
}

// ProcessExists returns whether there's a running process with the given
// pid.
func ProcessExists(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// Output is a thread-safe buffer for a command's output.
type Output struct {
	// Pid is the pid of the command writing the output.
	Pid int

	lock sync.Mutex
	buf  bytes.Buffer
}

var _ io.Writer = &Output{}

func (o *Output) Write(p []byte) (int, error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.buf.Write(p)
}

func (o *Output) String() string {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.buf.String()
}

// WaitForOutput blocks until `expOutput` has been written `count` times, or
// `ctx` has expired.
func (o *Output) WaitForOutput(ctx context.Context, expOutput string, count int) error {
	ok := TestWithRetry(ctx, nil, func() bool {
		return strings.Count(o.String(), expOutput) >= count
	})
	if !ok {
		log.WithField("output", o.String()).Info("Output so far")
		return errors.New(fmt.Sprintf("never saw %q %d times", expOutput, count))
	}
	return nil
}

// TestWithRetry runs `test` until it succeeds, or `ctx` expires. The delay
// between attempts doubles up to two seconds, and `trigger` forces an
// immediate retry.
func TestWithRetry(ctx context.Context, trigger chan struct{}, test func() bool) bool {
	maxSleepTime := 2 * time.Second
	sleepTime := 100 * time.Millisecond
	for {
		if test() {
			return true
		}

		select {
		case <-ctx.Done():
			return test()
		case <-time.After(sleepTime):
			sleepTime *= 2
			if sleepTime > maxSleepTime {
				sleepTime = maxSleepTime
			}
		case <-trigger:
		}
	}
}
