package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fzft/go-avocado/log"
	"github.com/fzft/go-avocado/node"
	"github.com/fzft/go-avocado/version"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		bind string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("bind") {
				cfg.Server.Bind = bind
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := log.InitLogger(cfg.Log.Options()); err != nil {
				return err
			}
			log.Logger.Info("starting", zap.String("version", version.String()), zap.String("config", rootOpts.ConfigPath))

			srv, err := node.NewServer(cfg, log.Logger)
			if err != nil {
				return err
			}
			return srv.Run()
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "override server.bind")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	return cmd
}
