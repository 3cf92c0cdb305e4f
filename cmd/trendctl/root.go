package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"trendradar/internal/app"
	"trendradar/internal/config"
	"trendradar/internal/logger"
)

// opener builds the pipeline for a single command invocation.
type opener func(ctx context.Context, verbose bool) (*app.App, error)

func openFromEnv(ctx context.Context, verbose bool) (*app.App, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	return app.Build(ctx, cfg, logger.New(level, "console"))
}

func newRootCmd(open opener) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "trendctl",
		Short: "Operate the trending topics pipeline",
		Long: `trendctl runs refreshes against the configured store and inspects the persisted snapshot.

It reads the same TRENDING_* environment (and .env file) as the API server.

Example usage:
  trendctl refresh --wait      # Fetch, cluster, persist and wait for LLM refinement
  trendctl topics              # List topics of the latest snapshot
  trendctl topic <id>          # Show one topic with its posts
  trendctl status              # Show snapshot age and staleness`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	withApp := func(run func(cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context(), verbose)
			if err != nil {
				return err
			}
			defer a.Close()
			return run(cmd, a, args)
		}
	}

	root.AddCommand(
		newRefreshCmd(withApp),
		newTopicsCmd(withApp),
		newTopicCmd(withApp),
		newStatusCmd(withApp),
	)
	return root
}

type appRunner func(run func(cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
