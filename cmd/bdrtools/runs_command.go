package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"bdrtools/internal/config"
	"bdrtools/internal/harvest"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var outputDir string
	var collectionPID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List harvest run directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolvedDir, err := config.ExpandPath(outputDir)
			if err != nil {
				return fmt.Errorf("resolve output dir: %w", err)
			}
			runs, err := harvest.ListRuns(resolvedDir, strings.TrimSpace(collectionPID))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, runViews(runs))
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintf(out, "No runs found under %s\n", resolvedDir)
				return nil
			}
			headers := []string{"Run", "Collection", "Created", "Updated", "Done", "Processed", "Appended", "Size"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				cp := run.Checkpoint
				rows = append(rows, []string{
					run.Name,
					cp.CollectionPID,
					cp.CreatedAt,
					cp.UpdatedAt,
					yesNo(cp.Completed),
					fmt.Sprintf("%d/%d", cp.Counts.Processed, cp.Counts.TotalMembers),
					strconv.Itoa(cp.Counts.Appended),
					humanize.Bytes(uint64(run.CombinedSize)),
				})
			}
			fmt.Fprintln(out, renderTable(headers, rows, aligns))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory run directories live under")
	cmd.Flags().StringVar(&collectionPID, "collection", "", "Only show runs for this collection pid")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	_ = cmd.MarkFlagRequired("output-dir")
	return cmd
}

type runView struct {
	Run               string         `json:"run"`
	CollectionPID     string         `json:"collection_pid"`
	CreatedAt         string         `json:"created_at"`
	UpdatedAt         string         `json:"updated_at"`
	Completed         bool           `json:"completed"`
	Counts            harvest.Counts `json:"counts"`
	CombinedSizeBytes int64          `json:"combined_size_bytes"`
}

func runViews(runs []harvest.RunInfo) []runView {
	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		cp := run.Checkpoint
		views = append(views, runView{
			Run:               run.Name,
			CollectionPID:     cp.CollectionPID,
			CreatedAt:         cp.CreatedAt,
			UpdatedAt:         cp.UpdatedAt,
			Completed:         cp.Completed,
			Counts:            cp.Counts,
			CombinedSizeBytes: run.CombinedSize,
		})
	}
	return views
}
