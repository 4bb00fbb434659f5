// Command catalogctl browses the creature catalog from a terminal using
// the same pipeline and local store as the API server.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"creature-catalog-api/internal/app"
	"creature-catalog-api/internal/config"
	"creature-catalog-api/internal/logging"
	"creature-catalog-api/internal/telemetry"
)

// appFactory builds the pipeline a command runs against
type appFactory func(ctx context.Context) (*app.App, error)

func main() {
	if err := newRootCmd(defaultApp).Execute(); err != nil {
		os.Exit(1)
	}
}

// defaultApp loads the environment configuration. Logs go to stderr so
// command output stays machine readable, and metrics export is off.
func defaultApp(ctx context.Context) (*app.App, error) {
	cfg := config.LoadConfig()
	cfg.MetricsExporter = telemetry.ExporterNone

	logger := logging.NewLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)
	return app.New(ctx, cfg, app.WithLogger(logger))
}

func newRootCmd(factory appFactory) *cobra.Command {
	root := &cobra.Command{
		Use:   "catalogctl",
		Short: "Browse and manage the local creature catalog",
		Long: `catalogctl reads the remote creature catalog through the local cache.

Available commands:
  page   - Print one page of list entries
  show   - Print the detail of one creature
  browse - Load pages, enrich them and print the filtered view
  export - Write the filtered view to a JSON file
  cache  - Inspect, clear or warm the local cache`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newPageCmd(factory),
		newShowCmd(factory),
		newBrowseCmd(factory),
		newExportCmd(factory),
		newCacheCmd(factory),
	)
	return root
}

// withApp builds the pipeline, runs fn and shuts the pipeline down
func withApp(cmd *cobra.Command, factory appFactory, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := factory(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(context.Background()); closeErr != nil {
			slog.Warn("Failed to close catalog pipeline", "error", closeErr)
		}
	}()

	return fn(ctx, a)
}
