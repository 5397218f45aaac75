package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"podsift/internal/catalog"
	"podsift/internal/config"
)

func newDigestsCommand(ctx *commandContext) *cobra.Command {
	digestsCmd := &cobra.Command{
		Use:   "digests",
		Short: "Inspect assembled digests",
	}
	digestsCmd.AddCommand(newDigestsListCommand(ctx))
	digestsCmd.AddCommand(newDigestsShowCommand(ctx))
	return digestsCmd
}

func newDigestsListCommand(ctx *commandContext) *cobra.Command {
	var dateFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List digests, optionally for one date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				digests, err := store.ListDigests(cmd.Context(), dateFlag)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(digests) == 0 {
					fmt.Fprintln(out, "No digests yet.")
					return nil
				}

				headers := []string{"Date", "Topic", "Episodes", "Avg Score", "Audio", "Published"}
				rows := make([][]string, 0, len(digests))
				for _, d := range digests {
					rows = append(rows, []string{
						d.Date,
						d.Topic,
						fmt.Sprintf("%d", d.EpisodeCount),
						fmt.Sprintf("%.2f", d.AverageScore),
						yesNo(d.AudioPath != ""),
						formatTimePtr(d.PublishedAt),
					})
				}
				fmt.Fprintln(out, renderTable(out, headers, rows, []columnAlignment{
					alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft,
				}))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dateFlag, "date", "", "Show digests for one date (YYYY-MM-DD)")
	return cmd
}

func newDigestsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <topic> <date>",
		Short: "Show one digest including its script",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				d, err := store.GetDigest(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Digest: %s / %s\n", d.Topic, d.Date)
				fmt.Fprintf(out, "  Episodes:  %d (ids %v)\n", d.EpisodeCount, d.EpisodeIDs)
				fmt.Fprintf(out, "  Avg score: %.2f\n", d.AverageScore)
				if d.AudioPath != "" {
					fmt.Fprintf(out, "  Audio:     %s\n", d.AudioPath)
				}
				if d.ExternalURL != "" {
					fmt.Fprintf(out, "  URL:       %s\n", d.ExternalURL)
				}
				if d.PublishedAt != nil {
					fmt.Fprintf(out, "  Published: %s\n", formatTimePtr(d.PublishedAt))
				}
				if d.Script != "" {
					fmt.Fprintf(out, "\n%s\n", d.Script)
				}
				return nil
			})
		},
	}
}
