// Package cli provides the podcasts command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/becutandavid/podcasts-backend/internal/config"
	logpkg "github.com/becutandavid/podcasts-backend/internal/logger"
	"github.com/becutandavid/podcasts-backend/internal/version"
)

// DefaultTimeout bounds every command except serve.
const DefaultTimeout = 5 * time.Minute

type rootOptions struct {
	configPath string
	env        string
	timeout    time.Duration
}

// NewRootCommand builds the podcasts command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "podcasts",
		Short: "Semantic search over podcast episodes",
		Long: `Podcasts indexes episode descriptions as embeddings in a Valkey/Redis vector
index and answers natural-language queries with results grouped by podcast.

Example usage:
  podcasts index --files 'data/**/*.yaml'     # Import the catalog and index episodes
  podcasts query -q "history of modal jazz"    # Search, grouped by podcast
  podcasts serve                               # Serve /healthz and /metrics`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default is config/<env>.yaml)")
	root.PersistentFlags().StringVar(&opts.env, "env", config.GetEnv(), "environment: local, dev, prod")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", DefaultTimeout, "timeout for a single command")

	root.AddCommand(
		newServeCommand(opts),
		newIndexCommand(opts),
		newQueryCommand(opts),
		newDeleteCommand(opts),
	)
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (o *rootOptions) loadConfig() (config.Config, error) {
	if o.configPath != "" {
		return config.LoadFile(o.configPath)
	}
	return config.Load(o.env)
}

// open loads configuration, builds the logger and the application.
// The caller must call the returned cleanup.
func (o *rootOptions) open(ctx context.Context) (*App, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger, err := logpkg.NewLogger(o.env, cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return app, func() {
		app.Close()
		_ = logger.Sync()
	}, nil
}

// withTimeout runs fn against a fresh App under the --timeout deadline.
func (o *rootOptions) withTimeout(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	app, cleanup, err := o.open(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := fn(ctx, app); err != nil {
		app.logger.Debug("Command failed", zap.String("command", cmd.Name()), zap.Error(err))
		return err
	}
	return nil
}
