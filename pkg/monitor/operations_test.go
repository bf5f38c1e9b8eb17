package monitor_test

import (
	"testing"
	"time"

	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsync/gridsync/pkg/events"
	"github.com/gridsync/gridsync/pkg/monitor"
	"github.com/gridsync/gridsync/pkg/monitor/mocks"
)

func mustParse(t *testing.T, raw string) events.Event {
	ev, err := events.Parse([]byte(raw), time.Now())
	require.NoError(t, err)
	return ev
}

func newTestOperationsMonitor(listener monitor.StatusListener) *monitor.OperationsMonitor {
	log, _ := logrusTest.NewNullLogger()
	return monitor.NewOperationsMonitor(log, listener)
}

func TestUploadMarksFolderSyncing(t *testing.T) {
	listener := &mocks.StatusListener{}
	listener.On("FolderStatusChanged", "F", monitor.StatusSyncing).Once()
	listener.On("OverallStatusChanged", monitor.StatusSyncing).Once()
	m := newTestOperationsMonitor(listener)

	m.HandleEvent(mustParse(t, `{"kind":"upload-started","folder":"F","relpath":"a.txt"}`))
	assert.Equal(t, monitor.StatusSyncing, m.Status("F"))

	// The folder hasn't been scanned or polled yet, so finishing the upload
	// can't make it up to date. The mock panics on any further calls.
	m.HandleEvent(mustParse(t, `{"kind":"upload-finished","folder":"F","relpath":"a.txt"}`))
	assert.Equal(t, monitor.StatusSyncing, m.Status("F"))

	listener.AssertExpectations(t)
}

func TestUpToDateRequiresScanAndPoll(t *testing.T) {
	listener := &mocks.StatusListener{}
	listener.On("FolderStatusChanged", "F", monitor.StatusUpToDate).Once()
	listener.On("OverallStatusChanged", monitor.StatusUpToDate).Once()
	m := newTestOperationsMonitor(listener)

	m.HandleEvent(mustParse(t, `{"kind":"folder-added","folder":"F"}`))
	m.HandleEvent(mustParse(t, `{"kind":"scan-completed","folder":"F","timestamp":10}`))
	assert.Equal(t, monitor.StatusLoading, m.Status("F"))
	listener.AssertNotCalled(t, "FolderStatusChanged", "F", monitor.StatusUpToDate)

	m.HandleEvent(mustParse(t, `{"kind":"poll-completed","folder":"F","timestamp":11}`))
	assert.Equal(t, monitor.StatusUpToDate, m.Status("F"))
	assert.Equal(t, monitor.StatusUpToDate, m.Overall())

	state, ok := m.Folder("F")
	require.True(t, ok)
	assert.Equal(t, 10.0, state.LastScan)
	assert.Equal(t, 11.0, state.LastPoll)

	// More scans don't re-notify.
	m.HandleEvent(mustParse(t, `{"kind":"scan-completed","folder":"F","timestamp":12}`))
	listener.AssertExpectations(t)
}

func TestSyncingTakesPrecedenceOverErrors(t *testing.T) {
	var folderStatuses []monitor.Status
	m := newTestOperationsMonitor(monitor.StatusListenerFuncs{
		FolderFunc: func(_ string, status monitor.Status) {
			folderStatuses = append(folderStatuses, status)
		},
	})

	m.HandleEvent(mustParse(t, `{"kind":"error-occurred","folder":"F","summary":"permission denied"}`))
	m.HandleEvent(mustParse(t, `{"kind":"download-started","folder":"F","relpath":"b"}`))
	m.HandleEvent(mustParse(t, `{"kind":"upload-started","folder":"F","relpath":"a"}`))
	m.HandleEvent(mustParse(t, `{"kind":"download-finished","folder":"F","relpath":"b"}`))
	assert.Equal(t, monitor.StatusSyncing, m.Status("F"))
	m.HandleEvent(mustParse(t, `{"kind":"upload-finished","folder":"F","relpath":"a"}`))

	// Scans and polls don't clear errors.
	m.HandleEvent(mustParse(t, `{"kind":"scan-completed","folder":"F"}`))
	m.HandleEvent(mustParse(t, `{"kind":"poll-completed","folder":"F"}`))

	assert.Equal(t, []monitor.Status{
		monitor.StatusError,
		monitor.StatusSyncing,
		monitor.StatusError,
	}, folderStatuses)

	state, _ := m.Folder("F")
	require.Len(t, state.Errors, 1)
	assert.Equal(t, "permission denied", state.Errors[0].Summary)
}

func TestFinishUntrackedPath(t *testing.T) {
	m := newTestOperationsMonitor(nil)
	m.HandleEvent(mustParse(t, `{"kind":"upload-started","folder":"F","relpath":"a"}`))
	m.HandleEvent(mustParse(t, `{"kind":"upload-finished","folder":"F","relpath":"never-started"}`))

	state, _ := m.Folder("F")
	assert.Equal(t, []string{"a"}, state.Uploading)
	assert.Equal(t, monitor.StatusSyncing, state.Status)
}

func TestDuplicatePathsInFlight(t *testing.T) {
	m := newTestOperationsMonitor(nil)
	m.HandleEvent(mustParse(t, `{"kind":"upload-started","folder":"F","relpath":"a"}`))
	m.HandleEvent(mustParse(t, `{"kind":"upload-started","folder":"F","relpath":"a"}`))
	m.HandleEvent(mustParse(t, `{"kind":"upload-finished","folder":"F","relpath":"a"}`))
	assert.Equal(t, monitor.StatusSyncing, m.Status("F"))

	m.HandleEvent(mustParse(t, `{"kind":"upload-finished","folder":"F","relpath":"a"}`))
	state, _ := m.Folder("F")
	assert.Empty(t, state.Uploading)
}

func TestOverallStatus(t *testing.T) {
	upToDate := func(folder string) []string {
		return []string{
			`{"kind":"scan-completed","folder":"` + folder + `"}`,
			`{"kind":"poll-completed","folder":"` + folder + `"}`,
		}
	}

	tests := []struct {
		name       string
		events     []string
		expOverall []monitor.Status
	}{
		{
			name:   "AllUpToDate",
			events: append(upToDate("A"), upToDate("B")...),
			expOverall: []monitor.Status{
				monitor.StatusUpToDate,
				monitor.StatusUpToDate,
			},
		},
		{
			name: "OneLoading",
			events: append(upToDate("A"),
				`{"kind":"folder-added","folder":"B"}`,
				`{"kind":"scan-completed","folder":"B"}`),
			expOverall: []monitor.Status{monitor.StatusUpToDate},
		},
		{
			name: "MixedLoadingNotifiesNothing",
			events: []string{
				`{"kind":"folder-added","folder":"A"}`,
				`{"kind":"folder-added","folder":"B"}`,
				`{"kind":"scan-completed","folder":"B"}`,
				`{"kind":"poll-completed","folder":"B"}`,
			},
			expOverall: nil,
		},
		{
			name: "ErrorBeatsUpToDate",
			events: append(upToDate("A"),
				`{"kind":"error-occurred","folder":"B","summary":"oops"}`),
			expOverall: []monitor.Status{
				monitor.StatusUpToDate,
				monitor.StatusError,
			},
		},
		{
			name: "SyncingBeatsError",
			events: []string{
				`{"kind":"error-occurred","folder":"A","summary":"oops"}`,
				`{"kind":"upload-started","folder":"B","relpath":"x"}`,
			},
			expOverall: []monitor.Status{
				monitor.StatusError,
				monitor.StatusSyncing,
			},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			var overall []monitor.Status
			m := newTestOperationsMonitor(monitor.StatusListenerFuncs{
				OverallFunc: func(status monitor.Status) {
					overall = append(overall, status)
				},
			})
			for _, raw := range test.events {
				m.HandleEvent(mustParse(t, raw))
			}
			assert.Equal(t, test.expOverall, overall)
		})
	}
}

func TestFolderLeft(t *testing.T) {
	var overall []monitor.Status
	m := newTestOperationsMonitor(monitor.StatusListenerFuncs{
		OverallFunc: func(status monitor.Status) {
			overall = append(overall, status)
		},
	})

	m.HandleEvent(mustParse(t, `{"kind":"scan-completed","folder":"A"}`))
	m.HandleEvent(mustParse(t, `{"kind":"poll-completed","folder":"A"}`))
	m.HandleEvent(mustParse(t, `{"kind":"folder-added","folder":"B"}`))
	m.HandleEvent(mustParse(t, `{"kind":"folder-left","folder":"B"}`))

	assert.Equal(t, monitor.StatusStoredRemotely, m.Status("B"))
	assert.Equal(t, []string{"A", "B"}, m.Folders())

	// B only exists on the grid, so it doesn't stop the overall status from
	// being up to date.
	assert.Equal(t, []monitor.Status{
		monitor.StatusUpToDate,
		monitor.StatusUpToDate,
	}, overall)
}

func TestConnectionHealth(t *testing.T) {
	m := newTestOperationsMonitor(nil)
	m.HandleEvent(mustParse(t, `{"kind":"connection-changed","connected":2,"desired":3,"happy":false}`))

	health := m.Health()
	assert.Equal(t, 2, health.Connected)
	assert.Equal(t, 3, health.Desired)
	assert.False(t, health.Happy)
	assert.Empty(t, m.Folders())
}
