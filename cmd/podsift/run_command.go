package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"podsift/internal/catalog"
	"podsift/internal/config"
	"podsift/internal/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var phaseNames []string
	var dryRun bool
	var limit int
	var chunkLimit int
	var dateFlag string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the processing pipeline",
		Long: `Run the processing pipeline: discover new episodes, transcribe them in
chunks, score transcripts against the subscribed topics, and assemble
per-topic digests. Use --phase to run a subset of phases.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			phases, err := pipeline.ParsePhases(phaseNames)
			if err != nil {
				return err
			}

			var runDate time.Time
			if dateFlag != "" {
				runDate, err = time.Parse(catalog.DateFormat, dateFlag)
				if err != nil {
					return fmt.Errorf("invalid --date %q (want YYYY-MM-DD): %w", dateFlag, err)
				}
			}

			logger, err := ctx.newLogger()
			if err != nil {
				return err
			}

			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				runner, err := ctx.buildRunner(cfg, store, logger)
				if err != nil {
					return err
				}

				summary, err := runner.Run(cmd.Context(), pipeline.Options{
					Phases:     phases,
					DryRun:     dryRun,
					Limit:      limit,
					ChunkLimit: chunkLimit,
					RunDate:    runDate,
				})
				if summary != nil {
					printRunSummary(cmd, summary)
				}
				if err != nil {
					return err
				}
				if summary.Failed() {
					return fmt.Errorf("run %s finished with failures", summary.RunID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&phaseNames, "phase", nil, "Phases to run (default: all, in pipeline order)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report intended actions without writing anything")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum episodes per phase (0 = no limit)")
	cmd.Flags().IntVar(&chunkLimit, "chunk-limit", 0, "Maximum chunks per episode (0 = no limit)")
	cmd.Flags().StringVar(&dateFlag, "date", "", "Digest date as YYYY-MM-DD (default: today)")
	return cmd
}

func printRunSummary(cmd *cobra.Command, summary *pipeline.Summary) {
	out := cmd.OutOrStdout()

	headers := []string{"Phase", "Processed", "Failed"}
	rows := make([][]string, 0, len(summary.Phases))
	for _, phase := range summary.Phases {
		rows = append(rows, []string{
			string(phase.Phase),
			fmt.Sprintf("%d", phase.Processed),
			fmt.Sprintf("%d", phase.Failed),
		})
	}
	fmt.Fprintln(out, renderTable(out, headers, rows, []columnAlignment{alignLeft, alignRight, alignRight}))

	for _, phase := range summary.Phases {
		for _, failure := range phase.Failures {
			fmt.Fprintf(out, "  %s: %s\n", phase.Phase, failure)
		}
	}

	if len(summary.StatusCounts) > 0 {
		fmt.Fprint(out, renderStatusCounts(out, summary.StatusCounts))
	}
	if summary.DryRun {
		fmt.Fprintln(out, "Dry run: nothing was written.")
	}
}
