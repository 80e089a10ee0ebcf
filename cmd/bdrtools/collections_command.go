package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"bdrtools/internal/config"
	"bdrtools/internal/discovery"
)

func newCollectionsCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Find collections that contain extracted text",
		Long: `Collections scans every item carrying an EXTRACTED_TEXT zip entry and
aggregates the count per collection, resolving parent works for items with no
direct collection membership. The scan checkpoints after every page and
resumes from the checkpoint when interrupted.`,
		Args: cobra.NoArgs,
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

			resolved, err := config.ExpandPath(output)
			if err != nil {
				return fmt.Errorf("resolve output path: %w", err)
			}

			client, err := ctx.newClient()
			if err != nil {
				return err
			}

			prog := newProgressHandle("Scanning", logger)
			defer prog.Close()

			scanner := discovery.NewScanner(client, resolved,
				discovery.WithLogger(logger),
				discovery.WithPageRows(cfg.Harvest.PageRows),
				discovery.WithProgress(prog.Step))

			result, err := scanner.Run(runCtx)
			prog.Close()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.Resumed {
				fmt.Fprintln(out, "Resumed from checkpoint.")
			}
			fmt.Fprintf(out, "Matched %d item(s) across %d collection(s).\n", result.Items, result.Collections)
			fmt.Fprintf(out, "Collections written to %s\n", result.OutputPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "extracted_text_collections.json", "Destination file for the collection list")
	return cmd
}
