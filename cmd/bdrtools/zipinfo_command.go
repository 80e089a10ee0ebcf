package main

import (
	"github.com/spf13/cobra"

	"bdrtools/internal/zipinfo"
)

func newZipInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "zipinfo <item-pid>",
		Short: "Summarize the zip manifests of an item and its parts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.newClient()
			if err != nil {
				return err
			}
			report, err := zipinfo.Summarize(cmd.Context(), client, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, report)
		},
	}
}
