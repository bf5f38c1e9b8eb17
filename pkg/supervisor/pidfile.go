package supervisor

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/gridsync/gridsync/pkg/errors"
)

// fs is used for mock tests. It will be overridden by afero.NewMemMapFs()
// in the tests.
var fs = afero.NewOsFs()

// writePidfile records `pid` at `path`. The pid is written to a temporary
// file and renamed into place so that readers never see a partial write.
func writePidfile(path string, pid int) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.WithContext(err, "make parent")
	}

	tmpPath := path + ".tmp"
	if err := afero.WriteFile(fs, tmpPath, []byte(strconv.Itoa(pid)), 0644); err != nil {
		return errors.WithContext(err, "write")
	}

	if err := fs.Rename(tmpPath, path); err != nil {
		_ = fs.Remove(tmpPath)
		return errors.WithContext(err, "rename")
	}
	return nil
}

// readPidfile returns the pid recorded at `path`. It returns
// errors.FileNotFound if there is no pidfile.
func readPidfile(path string) (int, error) {
	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.FileNotFound{Path: path}
		}
		return 0, errors.WithContext(err, "read")
	}

	pidStr := strings.TrimSpace(string(contents))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, errors.WithContext(err, "parse")
	}

	// Signalling 0 or a negative pid targets process groups.
	if pid <= 0 {
		return 0, errors.New("pid must be positive")
	}
	return pid, nil
}

func pidfileExists(path string) bool {
	exists, _ := afero.Exists(fs, path)
	return exists
}

// removePidfile removes the pidfile if it exists.
func removePidfile(path string) error {
	if err := fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
