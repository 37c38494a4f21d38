package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/daemon"
)

func newServeCmd(g *globals) *cobra.Command {
	var port int
	var host string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the poller, watcher and HTTP API",
		Long: `Run docindex in the foreground. Categories are polled immediately and then
every poll_interval seconds; file changes trigger an early poll. The HTTP
API listens on server.host:server.port until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.setup(cmd, true)
			if err != nil {
				return err
			}
			defer e.cleanup()

			if cmd.Flags().Changed("port") {
				e.cfg.Server.Port = port
			}
			if cmd.Flags().Changed("host") {
				e.cfg.Server.Host = host
			}

			d, err := daemon.New(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			return d.Run(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Override server.port")
	cmd.Flags().StringVar(&host, "host", "", "Override server.host")
	return cmd
}
