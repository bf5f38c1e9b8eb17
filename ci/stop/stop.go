package stop

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

// Test checks that `gridsync stop` cleans up a daemon left behind by a client
// that was killed, and that a new client replaces a left over daemon.
func Test(t *testing.T, helper *util.TestHelper) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	firstPid := startAndAbandon(ctx, t, helper)

	log.Info("Starting a new client")
	runCtx, cancelRun := context.WithCancel(ctx)
	out, runErr, err := helper.Start(runCtx, "run", "--log-file", helper.LogPath)
	require.NoError(t, err, "start gridsync run")
	require.NoError(t, out.WaitForOutput(ctx, "Docs: updated a.txt", 1))

	// The new client stops the daemon that was left running.
	assert.True(t, util.TestWithRetry(ctx, nil, func() bool {
		return !util.ProcessExists(firstPid)
	}), "left over daemon should be stopped")

	cancelRun()
	assert.NoError(t, <-runErr)

	secondPid := startAndAbandon(ctx, t, helper)

	log.Info("Running gridsync stop")
	output, err := helper.Run(ctx, "stop")
	require.NoError(t, err)
	assert.Contains(t, string(output), "Stopped the sync daemon.")

	assert.True(t, util.TestWithRetry(ctx, nil, func() bool {
		return !util.ProcessExists(secondPid)
	}), "gridsync stop should stop the daemon")

	_, err = helper.DaemonPid()
	assert.Error(t, err, "pidfile should be removed")
}

// startAndAbandon starts `gridsync run`, and then kills it without giving it
// a chance to stop the daemon. It returns the daemon's pid.
func startAndAbandon(ctx context.Context, t *testing.T, helper *util.TestHelper) int {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	log.Info("Starting gridsync run")
	out, _, err := helper.Start(runCtx, "run")
	require.NoError(t, err, "start gridsync run")
	require.NoError(t, out.WaitForOutput(ctx, "Docs: updated a.txt", 1))

	clientPid := out.Pid
	daemonPid, err := helper.DaemonPid()
	require.NoError(t, err)

	log.Info("Killing gridsync run")
	require.NoError(t, syscall.Kill(clientPid, syscall.SIGKILL))
	require.True(t, util.TestWithRetry(ctx, nil, func() bool {
		return !util.ProcessExists(clientPid)
	}))
	require.True(t, util.ProcessExists(daemonPid), "daemon should outlive the client")
	return daemonPid
}
