package restart

import (
	"context"
	"syscall"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsync/gridsync/ci/util"
)

// Test kills the daemon, and checks that it's restarted and that the client
// subscribes to the new daemon's endpoint.
func Test(t *testing.T, helper *util.TestHelper) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	runCtx, cancelRun := context.WithCancel(ctx)
	log.Info("Starting gridsync run")
	out, runErr, err := helper.Start(runCtx, "run", "--log-file", helper.LogPath)
	require.NoError(t, err, "start gridsync run")

	require.NoError(t, out.WaitForOutput(ctx, "Docs: updated a.txt", 1))
	firstPid, err := helper.DaemonPid()
	require.NoError(t, err)

	log.Info("Killing the daemon")
	require.NoError(t, syscall.Kill(firstPid, syscall.SIGKILL))

	restarted := util.TestWithRetry(ctx, nil, func() bool {
		pid, err := helper.DaemonPid()
		return err == nil && pid != firstPid && util.ProcessExists(pid)
	})
	require.True(t, restarted, "daemon never restarted")

	// The restarted daemon listens on a new port, and publishes the same
	// events again.
	require.NoError(t, out.WaitForOutput(ctx, "Docs: updated a.txt", 2))

	secondPid, err := helper.DaemonPid()
	require.NoError(t, err)

	log.Info("Interrupting gridsync run")
	cancelRun()
	assert.NoError(t, <-runErr)

	stopped := util.TestWithRetry(ctx, nil, func() bool {
		return !util.ProcessExists(secondPid)
	})
	assert.True(t, stopped, "daemon should be stopped when gridsync exits")

	_, err = helper.DaemonPid()
	assert.Error(t, err, "pidfile should be removed")
}
