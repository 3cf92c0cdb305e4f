package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"trendradar/internal/app"
)

func newRefreshCmd(withApp appRunner) *cobra.Command {
	var wait, ifStale bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch posts, build and persist a fresh snapshot",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), app.RefreshTimeout)
			defer cancel()

			if ifStale {
				res, refreshed, err := a.Orchestrator.RefreshIfStale(ctx)
				if err != nil {
					return err
				}
				if !refreshed {
					fmt.Fprintln(cmd.OutOrStdout(), "snapshot is fresh, nothing to do")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "persisted %d topics / %d posts at %s\n", res.Topics, res.Posts, res.CachedAt.Format(time.RFC3339))
			} else {
				res, err := a.Orchestrator.Refresh(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "persisted %d topics / %d posts at %s\n", res.Topics, res.Posts, res.CachedAt.Format(time.RFC3339))
			}

			if wait {
				a.Orchestrator.Wait()
				st := a.Orchestrator.Status()
				fmt.Fprintf(cmd.OutOrStdout(), "phase %s, snapshot %s\n", st.Phase, st.LastSnapshot.Format(time.RFC3339))
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the LLM refinement to finish")
	cmd.Flags().BoolVar(&ifStale, "if-stale", false, "only refresh when the snapshot is missing or expired")
	return cmd
}

func newTopicsCmd(withApp appRunner) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "topics",
		Aliases: []string{"ls"},
		Short:   "List topics of the latest snapshot",
		Args:    cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
			topics, err := a.Store.AllTopics(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), topics)
			}
			if len(topics) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no topics yet, run `trendctl refresh`")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPOSTS\tCATEGORY\tSENTIMENT\tTITLE")
			for _, t := range topics {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", t.ID, t.PostCount, t.Category, t.Sentiment, t.Title)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newTopicCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "topic <id>",
		Short: "Show a topic and its posts",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			topic, err := a.Store.TopicByID(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("topic %s: %w", args[0], err)
			}
			posts, err := a.Store.PostsForTopic(cmd.Context(), topic.ID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"topic": topic, "posts": posts})
		}),
	}
}

func newStatusCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show snapshot age and staleness",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
			ctx := cmd.Context()
			latest, ok, err := a.Store.LatestCachedAt(ctx)
			if err != nil {
				return err
			}
			stale, err := a.Orchestrator.IsStale(ctx)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "snapshot: none")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "snapshot: %s (%s old)\n", latest.Format(time.RFC3339), time.Since(latest).Round(time.Second))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stale: %t\n", stale)
			return nil
		}),
	}
}
