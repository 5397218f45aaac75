package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"podsift/internal/catalog"
	"podsift/internal/config"
)

func newEpisodesCommand(ctx *commandContext) *cobra.Command {
	episodesCmd := &cobra.Command{
		Use:   "episodes",
		Short: "Inspect and manage episodes",
	}
	episodesCmd.AddCommand(newEpisodesListCommand(ctx))
	episodesCmd.AddCommand(newEpisodesRetryCommand(ctx))
	episodesCmd.AddCommand(newEpisodesShowCommand(ctx))
	return episodesCmd
}

func newEpisodesListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List episodes, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []catalog.Status
			if statusFlag != "" {
				status, ok := catalog.ParseStatus(statusFlag)
				if !ok {
					return fmt.Errorf("unknown status %q (valid: %s)", statusFlag, statusNames())
				}
				statuses = append(statuses, status)
			}

			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				episodes, err := store.ListEpisodes(cmd.Context(), limit, statuses...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(episodes) == 0 {
					fmt.Fprintln(out, "No episodes match.")
					return nil
				}

				headers := []string{"ID", "Status", "Title", "Published", "Words", "Failures"}
				rows := make([][]string, 0, len(episodes))
				for _, ep := range episodes {
					rows = append(rows, []string{
						fmt.Sprintf("%d", ep.ID),
						string(ep.Status),
						truncate(ep.Title, 48),
						formatTimePtr(ep.PublishedAt),
						fmt.Sprintf("%d", ep.WordCount),
						fmt.Sprintf("%d", ep.FailureCount),
					})
				}
				fmt.Fprintln(out, renderTable(out, headers, rows, []columnAlignment{
					alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight,
				}))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by lifecycle status")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum episodes to list (0 = all)")
	return cmd
}

func newEpisodesRetryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry [id...]",
		Short: "Move failed episodes back to pending",
		Long: `Move failed episodes back to pending so the next run reprocesses them.
With no arguments every failed episode is retried. This is the only path out
of the failed status; runs never retry failed episodes on their own.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid episode id %q", arg)
				}
				ids = append(ids, id)
			}

			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				retried, err := store.RetryFailed(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d episode(s).\n", retried)
				return nil
			})
		},
	}
	return cmd
}

func newEpisodesShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one episode in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid episode id %q", args[0])
			}

			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				ep, err := store.GetEpisodeByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Episode %d (%s)\n", ep.ID, ep.Status)
				fmt.Fprintf(out, "  GUID:        %s\n", ep.GUID)
				fmt.Fprintf(out, "  Title:       %s\n", ep.Title)
				fmt.Fprintf(out, "  Published:   %s\n", formatTimePtr(ep.PublishedAt))
				fmt.Fprintf(out, "  Audio URL:   %s\n", ep.AudioURL)
				if ep.AudioPath != "" {
					fmt.Fprintf(out, "  Audio file:  %s\n", ep.AudioPath)
				}
				if ep.WordCount > 0 {
					fmt.Fprintf(out, "  Transcript:  %d words in %d chunk(s)\n", ep.WordCount, ep.ChunkCount)
				}
				if len(ep.Scores) > 0 {
					fmt.Fprintf(out, "  Scores:\n")
					for topic, score := range ep.Scores {
						fmt.Fprintf(out, "    %-20s %.2f\n", topic, score)
					}
				}
				if ep.FailureCount > 0 {
					fmt.Fprintf(out, "  Failures:    %d (last: %s)\n", ep.FailureCount, ep.FailureReason)
				}
				return nil
			})
		},
	}
}

func statusNames() string {
	statuses := catalog.AllStatuses()
	names := make([]string, len(statuses))
	for i, status := range statuses {
		names[i] = string(status)
	}
	return strings.Join(names, ", ")
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}
