package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"podsift/internal/catalog"
	"podsift/internal/config"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show episode counts per lifecycle status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				counts, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Catalog: %s\n", store.Path())
				fmt.Fprint(out, renderStatusCounts(out, counts))
				return nil
			})
		},
	}
}

// renderStatusCounts renders per-status episode counts in lifecycle order.
func renderStatusCounts(out io.Writer, counts map[catalog.Status]int) string {
	rows := make([][]string, 0, len(counts))
	total := 0
	for _, status := range catalog.AllStatuses() {
		count := counts[status]
		total += count
		rows = append(rows, []string{string(status), fmt.Sprintf("%d", count)})
	}
	rows = append(rows, []string{"total", fmt.Sprintf("%d", total)})

	var b strings.Builder
	b.WriteString(renderTable(out, []string{"Status", "Episodes"}, rows, []columnAlignment{alignLeft, alignRight}))
	b.WriteString("\n")
	return b.String()
}
