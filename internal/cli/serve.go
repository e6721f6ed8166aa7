package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/becutandavid/podcasts-backend/internal/metrics"
	chiTransport "github.com/becutandavid/podcasts-backend/internal/transport/chi"
	"github.com/becutandavid/podcasts-backend/internal/version"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Bootstrap the vector index and serve health and metrics",
		Long: `Connect to the vector database, create or adopt the collection index and serve
the ops endpoints (/healthz, /livez, /version, /metrics) until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, cleanup, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			metrics.RegisterHTTPMetrics()

			cfg := app.cfg
			app.logger.Info("Starting podcasts backend",
				zap.String("version", version.Version),
				zap.String("commit", version.Commit),
				zap.String("env", opts.env),
				zap.String("db_driver", cfg.Database.Driver),
				zap.String("collection", cfg.Collection.Name),
			)

			srv := chiTransport.NewServer(app.health, chiTransport.Config{
				Port:            cfg.HTTP.Port,
				ReadTimeout:     time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
				WriteTimeout:    time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
				ShutdownTimeout: time.Duration(cfg.HTTP.ShutdownSec) * time.Second,
			}, app.logger)

			if err := srv.Run(ctx); err != nil {
				return err
			}
			app.logger.Info("Server stopped gracefully")
			return nil
		},
	}
}
