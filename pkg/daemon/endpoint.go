// Package daemon locates the API of a running sync daemon. The daemon
// advertises where it's listening by writing an endpoint file, and writes the
// token required to use the API to a separate token file.
package daemon

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/afero"

	"github.com/gridsync/gridsync/pkg/errors"
)

// DefaultStatusPath is the path of the daemon's status feed.
const DefaultStatusPath = "/v1/status"

var fs = afero.NewOsFs()

// NotWrittenError is returned when the daemon hasn't written one of its
// files yet.
type NotWrittenError struct {
	Path string
}

func (err NotWrittenError) Error() string {
	return fmt.Sprintf("daemon hasn't written %q yet", err.Path)
}

// Endpoint is the information needed to subscribe to the daemon's status
// feed.
type Endpoint struct {
	URL     string
	Headers map[string]string
}

// Equal returns whether subscribing to `e` and `other` would be
// indistinguishable to the daemon.
func (e Endpoint) Equal(other Endpoint) bool {
	if e.URL != other.URL || len(e.Headers) != len(other.Headers) {
		return false
	}
	for k, v := range e.Headers {
		if otherV, ok := other.Headers[k]; !ok || otherV != v {
			return false
		}
	}
	return true
}

// Discover reads the daemon's endpoint and token files, and returns the
// websocket address of the feed at `path`. If `tokenFile` is empty, no
// authorization is sent.
func Discover(endpointFile, tokenFile, path string) (Endpoint, error) {
	raw, err := readFile(endpointFile)
	if err != nil {
		return Endpoint{}, errors.WithContext(err, "read endpoint")
	}

	addr, err := feedURL(raw, path)
	if err != nil {
		return Endpoint{}, errors.WithContext(err, "parse endpoint")
	}

	headers := map[string]string{}
	if tokenFile != "" {
		token, err := readFile(tokenFile)
		if err != nil {
			return Endpoint{}, errors.WithContext(err, "read token")
		}
		headers["Authorization"] = "Bearer " + token
	}

	return Endpoint{URL: addr, Headers: headers}, nil
}

// feedURL converts an endpoint description into the websocket address of
// the feed at `path`. The endpoint is either a "tcp:HOST:PORT" string, or
// an http(s) URL.
func feedURL(endpoint, path string) (string, error) {
	if path == "" {
		path = DefaultStatusPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	scheme := "ws"
	var hostPort string
	switch {
	case strings.HasPrefix(endpoint, "tcp:"):
		hostPort = strings.TrimPrefix(endpoint, "tcp:")
	case strings.HasPrefix(endpoint, "http://"), strings.HasPrefix(endpoint, "https://"):
		u, err := url.Parse(endpoint)
		if err != nil {
			return "", err
		}
		if u.Scheme == "https" {
			scheme = "wss"
		}
		hostPort = u.Host
	default:
		return "", errors.New(fmt.Sprintf("unsupported endpoint %q", endpoint))
	}

	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		return "", err
	}

	if host == "" || port == "" {
		return "", errors.New(fmt.Sprintf("endpoint %q must include a host and port", endpoint))
	}

	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
	return u.String(), nil
}

// readFile returns the trimmed contents of `path`. Empty files are treated
// as not written yet since the daemon may be in the middle of writing them.
func readFile(path string) (string, error) {
	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NotWrittenError{Path: path}
		}
		return "", err
	}

	trimmed := strings.TrimSpace(string(contents))
	if trimmed == "" {
		return "", NotWrittenError{Path: path}
	}
	return trimmed, nil
}
