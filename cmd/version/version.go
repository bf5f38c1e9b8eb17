package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridsync/gridsync/pkg/version"
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of gridsync.",
		Long:  "Print the version of gridsync, as a git tag or commit hash.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(versionString())
		},
	}
}

func versionString() string {
	if !version.IsRelease() {
		return "gridsync version: development build"
	}
	return "gridsync version: " + version.Version
}
