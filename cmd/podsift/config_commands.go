package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"podsift/internal/config"
	"podsift/internal/subscriptions"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigPathCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create sample configuration and subscriptions files",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)

			subsPath := filepath.Join(dir, "subscriptions.yaml")
			if _, err := os.Stat(subsPath); os.IsNotExist(err) {
				if err := os.WriteFile(subsPath, []byte(subscriptions.Sample), 0o644); err != nil {
					return fmt.Errorf("create sample subscriptions: %w", err)
				}
				fmt.Fprintf(out, "Wrote sample subscriptions to %s\n", subsPath)
			}

			fmt.Fprintln(out, "Edit the files to set your feeds, topics, and scoring api_key (or export PODSIFT_SCORING_API_KEY).")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Data dir:        %s\n", cfg.Paths.DataDir)
			fmt.Fprintf(out, "Audio dir:       %s\n", cfg.Paths.AudioDir)
			fmt.Fprintf(out, "Work dir:        %s\n", cfg.Paths.WorkDir)
			fmt.Fprintf(out, "Subscriptions:   %s\n", cfg.Paths.SubscriptionsPath)
			fmt.Fprintf(out, "Database:        %s\n", cfg.DatabasePath())
			fmt.Fprintf(out, "Chunk seconds:   %d\n", cfg.Transcription.ChunkSeconds)
			fmt.Fprintf(out, "Chunk retries:   %d\n", cfg.Transcription.MaxChunkRetries)
			fmt.Fprintf(out, "Scoring model:   %s\n", cfg.Scoring.Model)
			fmt.Fprintf(out, "Scoring workers: %d\n", cfg.Scoring.WorkerCount)
			fmt.Fprintf(out, "Threshold:       %.2f\n", cfg.Scoring.DefaultThreshold)
			fmt.Fprintf(out, "Lookback days:   %d\n", cfg.Digest.LookbackDays)
			fmt.Fprintf(out, "Max episodes:    %d\n", cfg.Digest.MaxEpisodes)
			fmt.Fprintf(out, "API key set:     %s\n", yesNo(strings.TrimSpace(cfg.Scoring.APIKey) != ""))
			return nil
		},
	}
}

func newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the default configuration file path",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
