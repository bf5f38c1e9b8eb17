package stop

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridsync/gridsync/cmd/util"
	"github.com/gridsync/gridsync/pkg/config"
	"github.com/gridsync/gridsync/pkg/errors"
	"github.com/gridsync/gridsync/pkg/supervisor"
)

// New creates a new `stop` command.
func New() *cobra.Command {
	var configPath string
	cobraCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a sync daemon left running by a previous client",
		Long: `Stop the sync daemon recorded in the pidfile.

This is only needed if a previous "gridsync run" exited without stopping the
daemon, for example because it was killed.`,
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(configPath); err != nil {
				util.HandleFatalError(err)
			}
			fmt.Println("Stopped the sync daemon.")
		},
	}
	cobraCmd.Flags().StringVar(&configPath, "config", "",
		"Path to the gridsync config. Defaults to "+config.DefaultPath)
	return cobraCmd
}

func run(configPath string) error {
	cfg, err := config.Parse(configPath)
	if err != nil {
		return err
	}

	sup, err := supervisor.New(supervisor.ProcessSpec{
		Args:    cfg.Daemon.Command,
		PidFile: cfg.Daemon.PidFile,
	})
	if err != nil {
		return errors.WithContext(err, "create supervisor")
	}

	sup.Stop()
	return nil
}
