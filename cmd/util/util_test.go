package util

import (
	"bytes"
	"os"
	"testing"

	log "github.com/sirupsen/logrus"
	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"github.com/gridsync/gridsync/pkg/errors"
)

func TestHandleFatalError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		expOutput string
		expLevel  log.Level
	}{
		{
			name: "Friendly",
			err: errors.WithContext(
				errors.NewFriendlyError("The gridsync config file doesn't exist."),
				"parse config"),
			expOutput: "The gridsync config file doesn't exist.\n",
			expLevel:  log.DebugLevel,
		},
		{
			name:     "Unfriendly",
			err:      errors.WithContext(errors.New("permission denied"), "start daemon"),
			expLevel: log.ErrorLevel,
		},
	}

	hook := logrusTest.NewGlobal()
	log.SetLevel(log.DebugLevel)
	defer log.SetLevel(log.InfoLevel)

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			hook.Reset()

			var out bytes.Buffer
			stderr = &out
			defer func() { stderr = os.Stderr }()

			var exitCode *int
			exit = func(code int) { exitCode = &code }
			defer func() { exit = os.Exit }()

			HandleFatalError(test.err)
			assert.Equal(t, test.expOutput, out.String())
			if assert.NotNil(t, exitCode) {
				assert.Equal(t, 1, *exitCode)
			}

			if assert.NotNil(t, hook.LastEntry()) {
				assert.Equal(t, test.expLevel, hook.LastEntry().Level)
				assert.Equal(t, test.err, hook.LastEntry().Data[log.ErrorKey])
			}
		})
	}
}

func TestHandlePanic(t *testing.T) {
	hook := logrusTest.NewGlobal()

	assert.PanicsWithValue(t, "boom", func() {
		defer HandlePanic()
		panic("boom")
	})

	if assert.NotNil(t, hook.LastEntry()) {
		assert.Equal(t, "Unexpected panic", hook.LastEntry().Message)
		assert.Equal(t, "boom", hook.LastEntry().Data["panic"])
	}

	// Nothing happens if there's no panic.
	assert.NotPanics(t, func() {
		defer HandlePanic()
	})
}
