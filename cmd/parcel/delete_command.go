package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"parcel/internal/app"
)

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <upload-id>...",
		Aliases: []string{"rm"},
		Short:   "Delete uploads and every file they produced",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				out := cmd.OutOrStdout()
				missing := 0
				for _, arg := range args {
					id := strings.TrimSpace(arg)
					removed, err := a.Registry.Delete(cmd.Context(), id)
					if err != nil {
						return err
					}
					if !removed {
						missing++
						fmt.Fprintf(out, "Upload %s not found\n", id)
						continue
					}
					fmt.Fprintf(out, "Deleted upload %s\n", id)
				}
				if missing > 0 {
					return fmt.Errorf("%d upload(s) not found", missing)
				}
				return nil
			})
		},
	}
}
