package daemon

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/gridsync/gridsync/pkg/errors"
	"github.com/gridsync/gridsync/pkg/fswatch"
)

// Mocked out for unit testing.
var watch = fswatch.Watch

// WatchEndpoint sends an event on the returned channel whenever the endpoint
// or token file changes, which happens when the daemon restarts.
func WatchEndpoint(ctx context.Context, endpointFile, tokenFile string) (<-chan struct{}, error) {
	return watch(ctx, endpointPaths(endpointFile, tokenFile)...)
}

// WaitForEndpoint blocks until the daemon has written its endpoint and token
// files, and then returns the feed's address.
func WaitForEndpoint(ctx context.Context, endpointFile, tokenFile, path string) (Endpoint, error) {
	// Start watching before the first attempt so that a write between the
	// attempt and the watch isn't missed.
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	changes, err := watch(watchCtx, endpointPaths(endpointFile, tokenFile)...)
	if err != nil {
		return Endpoint{}, errors.WithContext(err, "watch endpoint")
	}

	for {
		endpoint, err := Discover(endpointFile, tokenFile, path)
		if err == nil {
			return endpoint, nil
		}

		var notWritten NotWrittenError
		if !errors.As(err, &notWritten) {
			return Endpoint{}, err
		}
		log.WithField("path", notWritten.Path).Debug("Waiting for daemon to write file")

		select {
		case <-ctx.Done():
			return Endpoint{}, errors.WithContext(ctx.Err(), "wait for endpoint")
		case _, ok := <-changes:
			if !ok {
				return Endpoint{}, errors.New("endpoint watcher stopped")
			}
		}
	}
}

func endpointPaths(endpointFile, tokenFile string) []string {
	if tokenFile == "" {
		return []string{endpointFile}
	}
	return []string{endpointFile, tokenFile}
}
