package fswatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/gridsync/gridsync/pkg/errors"
)

var fs = afero.NewOsFs()

// Watch watches the files at `paths`. It sends an event on the returned
// channel whenever one of them is created, written, renamed or removed. The
// channel is closed once `ctx` is cancelled.
// The files don't need to exist yet, but their parent directories do.
func Watch(ctx context.Context, paths ...string) (<-chan struct{}, error) {
	files, err := absPaths(paths)
	if err != nil {
		return nil, errors.WithContext(err, "resolve paths")
	}

	dirs, err := getDirsToWatch(files)
	if err != nil {
		return nil, errors.WithContext(err, "get paths")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			// Close the watcher so that we release the file handlers for the
			// previously added paths.
			if err := watcher.Close(); err != nil {
				log.WithError(err).Warn("Failed to close file watcher")
			}

			return nil, errors.WithContext(err, fmt.Sprintf("watch %q", dir))
		}
	}

	go func() {
		<-ctx.Done()
		if err := watcher.Close(); err != nil {
			log.WithError(err).Warn("Failed to close file watcher")
		}
	}()

	go func() {
		for err := range watcher.Errors {
			log.WithError(err).Warn("File watcher error")
		}
	}()

	matches := func(ev fsnotify.Event) bool {
		_, ok := files[filepath.Clean(ev.Name)]
		return ok
	}
	return combineUpdates(ctx, watcher.Events, matches), nil
}

// combineUpdates coalesces the events that match into a channel that holds
// at most one pending notification.
func combineUpdates(ctx context.Context, updates <-chan fsnotify.Event,
	matches func(fsnotify.Event) bool) chan struct{} {

	combined := make(chan struct{}, 1)
	go func() {
		defer close(combined)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-updates:
				if !ok {
					return
				}

				if !matches(ev) {
					continue
				}

				select {
				case combined <- struct{}{}:
				default:
				}
			}
		}
	}()
	return combined
}

func absPaths(paths []string) (map[string]struct{}, error) {
	files := map[string]struct{}{}
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		files[abs] = struct{}{}
	}
	return files, nil
}

// getDirsToWatch returns the parent directories of `files`. The directories
// are watched rather than the files themselves so that we notice files that
// are created after the watch starts, or that are replaced by a rename.
func getDirsToWatch(files map[string]struct{}) (dirs []string, err error) {
	seen := map[string]struct{}{}
	for file := range files {
		dir := filepath.Dir(file)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}

		fi, err := fs.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.FileNotFound{Path: dir}
			}
			return nil, errors.WithContext(err, "stat")
		}

		if !fi.IsDir() {
			return nil, errors.New(fmt.Sprintf("%s is not a directory", dir))
		}
		dirs = append(dirs, dir)
	}

	sort.Strings(dirs)
	return dirs, nil
}
