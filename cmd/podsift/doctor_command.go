package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"podsift/internal/deps"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that required external tools are installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			statuses := deps.CheckBinaries(deps.Requirements(cfg))

			headers := []string{"Tool", "Command", "Status", "Notes"}
			rows := make([][]string, 0, len(statuses))
			for _, status := range statuses {
				state := "ok"
				if !status.Available {
					state = "missing"
					if status.Optional {
						state = "missing (optional)"
					}
				}
				notes := status.Description
				if status.Detail != "" {
					notes = status.Detail
				}
				rows = append(rows, []string{status.Name, status.Command, state, notes})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(out, headers, rows, []columnAlignment{
				alignLeft, alignLeft, alignLeft, alignLeft,
			}))

			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
			}
			fmt.Fprintln(out, "All required tools are available.")
			return nil
		},
	}
}
