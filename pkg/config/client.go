package config

import (
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/gridsync/gridsync/pkg/errors"
)

const (
	// DefaultPath is the default path to the gridsync client config.
	DefaultPath = "~/.gridsync.yaml"

	// InitialVersion is the first version of the client config. Config
	// files that do not specify a version will default to this version.
	InitialVersion = "v1alpha1"

	// SupportedVersion is the version of the client config supported by
	// this binary.
	SupportedVersion = "v1alpha1"

	// DefaultRestartDelay is how long to wait before restarting the daemon
	// if the config doesn't say.
	DefaultRestartDelay = time.Second

	defaultPidFile      = "~/.gridsync/daemon.pid"
	defaultEndpointFile = "~/.gridsync/api_endpoint"
	defaultLockFile     = "~/.gridsync/gridsync.lock"
)

// Client is the configuration of the gridsync client. It's only ever read.
type Client struct {
	Version string `json:"version,omitempty"`
	Daemon  Daemon `json:"daemon"`
	Stream  Stream `json:"stream,omitempty"`

	// LockFile prevents multiple clients from supervising the same daemon.
	LockFile string `json:"lockFile,omitempty"`
}

// Daemon describes how to run the sync daemon, and where it advertises its
// API.
type Daemon struct {
	Command             []string `json:"command"`
	RestartDelaySeconds *float64 `json:"restartDelaySeconds,omitempty"`
	ReadyTrigger        string   `json:"readyTrigger,omitempty"`
	PidFile             string   `json:"pidFile,omitempty"`
	EndpointFile        string   `json:"endpointFile,omitempty"`
	TokenFile           string   `json:"tokenFile,omitempty"`
}

// Stream configures the subscription to the daemon's status feed.
type Stream struct {
	// URL overrides the address discovered from the daemon's endpoint file.
	URL     string            `json:"url,omitempty"`
	Path    string            `json:"path,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// RestartDelay returns how long to wait before restarting the daemon.
func (d Daemon) RestartDelay() time.Duration {
	if d.RestartDelaySeconds == nil {
		return DefaultRestartDelay
	}
	return time.Duration(*d.RestartDelaySeconds * float64(time.Second))
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// Parse parses the client config at `path`, or at DefaultPath if `path` is
// empty. Unset paths are defaulted, and relative paths are resolved
// relative to the config file.
func Parse(path string) (Client, error) {
	if path == "" {
		path = DefaultPath
	}

	path, err := homedirExpand(path)
	if err != nil {
		return Client{}, errors.WithContext(err, "expand config path")
	}

	config, err := readClient(path)
	if err != nil {
		return Client{}, err
	}

	setDefault(&config.Daemon.PidFile, defaultPidFile)
	setDefault(&config.Daemon.EndpointFile, defaultEndpointFile)
	setDefault(&config.LockFile, defaultLockFile)

	// Evaluate relative paths relative to the config path.
	for _, p := range []*string{
		&config.Daemon.PidFile,
		&config.Daemon.EndpointFile,
		&config.Daemon.TokenFile,
		&config.LockFile,
	} {
		if *p, err = resolvePath(*p, filepath.Dir(path)); err != nil {
			return Client{}, errors.WithContext(err, "expand path")
		}
	}
	return config, nil
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func resolvePath(path, relativeTo string) (string, error) {
	if path == "" {
		return "", nil
	}

	path, err := homedirExpand(path)
	if err != nil {
		return "", err
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(relativeTo, path)
	}
	return path, nil
}
