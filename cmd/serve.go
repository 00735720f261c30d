package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"testrig/scenario-engine/internal/sink"
	"testrig/scenario-engine/pkg/logger"
)

var serveAddress string

// serveCmd runs the report sink server.
var serveCmd = &cobra.Command{
	Use:          "serve",
	Short:        "Run the report sink server",
	Long:         `Run the HTTP report sink. Webhook reporters post finished scenario reports here; the server keeps the most recent ones in memory and exposes them under /api/v1/runs along with /metrics.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if serveAddress != "" {
			cfg.Sink.Address = serveAddress
		}

		server := sink.NewServer(cfg.Sink)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- server.Listen() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			logger.Info("shutting down report sink")
			return server.Shutdown()
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "listen address (overrides config)")
}
