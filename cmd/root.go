// Package cmd holds the command line of the avocado binary: the server,
// an interactive client and the version report.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fzft/go-avocado/config"
	"github.com/fzft/go-avocado/log"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
}

// loadConfig reads --config, or the defaults without one, and applies
// --log-level on top.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(o.ConfigPath); err != nil {
			return nil, err
		}
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	return cfg, cfg.Validate()
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "avocado",
		Short: "avocado - an embedded key value server",
		Long: `avocado serves a Redis compatible subset of commands. Connections are
multiplexed over a few event loops and commands execute on named worker
queues.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (.toml, .yaml or .yml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override log.level (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewCliCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	cobra.OnFinalize(log.Sync)
	return cmd
}
