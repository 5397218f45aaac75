package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"podsift/internal/catalog"
	"podsift/internal/config"
)

func newFeedsCommand(ctx *commandContext) *cobra.Command {
	feedsCmd := &cobra.Command{
		Use:   "feeds",
		Short: "Manage subscribed feeds",
	}
	feedsCmd.AddCommand(newFeedsListCommand(ctx))
	feedsCmd.AddCommand(newFeedsAddCommand(ctx))
	feedsCmd.AddCommand(newFeedsActivateCommand(ctx))
	return feedsCmd
}

func newFeedsListCommand(ctx *commandContext) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				feeds, err := store.ListFeeds(cmd.Context(), activeOnly)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(feeds) == 0 {
					fmt.Fprintln(out, "No feeds known yet. Add subscriptions and run 'podsift run --phase discover'.")
					return nil
				}

				headers := []string{"ID", "Title", "URL", "Active", "Failures", "Last Checked"}
				rows := make([][]string, 0, len(feeds))
				for _, feed := range feeds {
					rows = append(rows, []string{
						fmt.Sprintf("%d", feed.ID),
						feed.Title,
						feed.URL,
						yesNo(feed.Active),
						fmt.Sprintf("%d", feed.ConsecutiveFailures),
						formatTimePtr(feed.LastCheckedAt),
					})
				}
				fmt.Fprintln(out, renderTable(out, headers, rows, []columnAlignment{
					alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft,
				}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Show only active feeds")
	return cmd
}

func newFeedsAddCommand(ctx *commandContext) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Register a feed directly in the catalog",
		Long: `Register a feed directly in the catalog. Feeds listed in the
subscriptions file are registered automatically during discovery; this command
exists for one-off additions.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				feed, err := store.UpsertFeed(cmd.Context(), args[0], title)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Feed %d: %s\n", feed.ID, feed.URL)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Feed title")
	return cmd
}

func newFeedsActivateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <url>",
		Short: "Re-activate a feed deactivated by repeated failures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				if err := store.ReactivateFeed(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Feed re-activated: %s\n", args[0])
				return nil
			})
		},
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func formatTimePtr(value *time.Time) string {
	if value == nil {
		return "-"
	}
	return value.UTC().Format("2006-01-02 15:04")
}
