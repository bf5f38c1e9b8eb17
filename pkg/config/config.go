package config

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"

	"github.com/gridsync/gridsync/pkg/errors"
)

// decodeErrTemplate is shown when the YAML can't be decoded into a Client.
// The yaml library doesn't say where in the file the problem is, so the
// parser's message is passed on as is.
const decodeErrTemplate = "The gridsync config %q could not be parsed.\n" +
	"Check that every field is spelled correctly and has the right type.\n\n" +
	"The parser reported:\n" +
	"%s"

// VersionError is returned for configs written for a different version of
// gridsync.
type VersionError struct {
	Path, Expected, Actual string
}

func (err VersionError) Error() string {
	return err.FriendlyMessage()
}

func (err VersionError) FriendlyMessage() string {
	return fmt.Sprintf("The gridsync config %q is for a different version of "+
		"gridsync.\nExpected version %q, but got %q.",
		err.Path, err.Expected, err.Actual)
}

// readClient reads and validates the config at `path`. The version is checked
// before unknown fields so that a config from another release is reported
// as such rather than as a typo.
func readClient(path string) (Client, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return Client{}, errors.NewFriendlyError("The gridsync config "+
				"file doesn't exist at %q. Please create it with the "+
				"command used to run the sync daemon.", path)
		}
		return Client{}, errors.WithContext(err, "read config")
	}

	client := Client{Version: InitialVersion}
	if err := yaml.Unmarshal(raw, &client); err != nil {
		return Client{}, errors.NewFriendlyError(decodeErrTemplate, path, err)
	}

	if err := client.validate(path); err != nil {
		return Client{}, err
	}

	if err := yaml.UnmarshalStrict(raw, &client, yaml.DisallowUnknownFields); err != nil {
		return Client{}, errors.NewFriendlyError(decodeErrTemplate, path, err)
	}
	return client, nil
}

func (c Client) validate(path string) error {
	if c.Version != SupportedVersion {
		return VersionError{Path: path, Expected: SupportedVersion, Actual: c.Version}
	}

	if len(c.Daemon.Command) == 0 || c.Daemon.Command[0] == "" {
		return errors.NewFriendlyError(
			"The gridsync config %q doesn't set daemon.command.", path)
	}

	if c.Daemon.RestartDelay() < 0 {
		return errors.NewFriendlyError(
			"The gridsync config %q sets a negative daemon.restartDelaySeconds.", path)
	}
	return nil
}
