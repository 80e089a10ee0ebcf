package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"bdrtools/internal/config"
	"bdrtools/internal/harvest"
	"bdrtools/internal/logging"
	"bdrtools/internal/preflight"
)

func newHarvestCommand(ctx *commandContext) *cobra.Command {
	var outputDir string
	var limit int

	cmd := &cobra.Command{
		Use:   "harvest <collection-pid>",
		Short: "Harvest extracted text for every member of a collection",
		Long: `Harvest downloads the extracted-text file of every member of a collection
into a fresh run directory, appending each payload to a combined text file
and recording every pid in a JSON listing. An interrupted run resumes on the
next invocation: prior state is copied forward and ledgered pids are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			resolvedDir, err := config.ExpandPath(outputDir)
			if err != nil {
				return fmt.Errorf("resolve output dir: %w", err)
			}
			if err := os.MkdirAll(resolvedDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			if err := runPreflight(logger, resolvedDir); err != nil {
				return err
			}

			client, err := ctx.newClient()
			if err != nil {
				return err
			}

			prog := newProgressHandle("Harvesting", logger)
			defer prog.Close()

			runs := harvest.NewRunManager(resolvedDir, harvest.WithRunLogger(logger))
			harvester := harvest.New(client, runs,
				harvest.WithLogger(logger),
				harvest.WithPageRows(cfg.Harvest.PageRows),
				harvest.WithAppendLimit(limit),
				harvest.WithProgress(prog.Step))

			result, err := harvester.Run(runCtx, strings.TrimSpace(args[0]))
			prog.Close()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run directory: %s\n", result.RunDir)
			if result.Resumed {
				fmt.Fprintf(out, "Resumed from: %s\n", result.ResumedFrom)
			}
			fmt.Fprintf(out, "Members: %d  Processed: %d  Appended this run: %d (total %d)\n",
				result.TotalMembers, result.Counts.Processed, result.Appended, result.TotalAppended)
			fmt.Fprintf(out, "No text: %d  Forbidden: %d\n", result.Counts.NoText, result.Counts.Forbidden)
			fmt.Fprintf(out, "Combined text: %s (%s)\n", result.CombinedTextPath, fileSize(result.CombinedTextPath))
			fmt.Fprintf(out, "Listing: %s\n", result.ListingPath)
			fmt.Fprintf(out, "Completed: %s\n", yesNo(result.Completed))
			if !result.Completed {
				fmt.Fprintln(out, "Run the same command again to resume.")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory run directories are created under")
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many appended items across all runs (0 = unlimited)")
	_ = cmd.MarkFlagRequired("output-dir")
	return cmd
}

func runPreflight(logger *slog.Logger, outputDir string) error {
	results := preflight.RunAll(outputDir)
	for _, result := range results {
		switch {
		case !result.Passed:
			logger.Error("preflight check failed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
		case result.Warning:
			logger.Warn("preflight warning",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
		default:
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
		}
	}
	if preflight.Failed(results) {
		return fmt.Errorf("output directory %s is not usable; see log for failed checks", outputDir)
	}
	return nil
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return humanize.Bytes(0)
	}
	return humanize.Bytes(uint64(info.Size()))
}
