package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"parcel/internal/app"
	"parcel/internal/staging"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove stale and orphaned temp directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.Clean(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				printCleanResult(out, "stale", report.Stale)
				printCleanResult(out, "orphaned", report.Orphaned)
				if n := len(report.Stale.Errors) + len(report.Orphaned.Errors); n > 0 {
					return fmt.Errorf("%d temp director(ies) could not be removed", n)
				}
				return nil
			})
		},
	}
}

func printCleanResult(out io.Writer, label string, res staging.CleanStaleResult) {
	fmt.Fprintf(out, "Removed %d %s temp director(ies)\n", len(res.Removed), label)
	for _, path := range res.Removed {
		fmt.Fprintf(out, "  %s\n", path)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(out, "  %s: %v\n", e.Path, e.Error)
	}
}
