package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"parcel/internal/app"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		owner   string
		page    int
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List uploads, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				result, err := a.Registry.List(cmd.Context(), owner, page, limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, result)
				}

				out := cmd.OutOrStdout()
				if len(result.Jobs) == 0 {
					fmt.Fprintln(out, "No uploads found")
					return nil
				}
				rows := make([][]string, 0, len(result.Jobs))
				for _, job := range result.Jobs {
					rows = append(rows, []string{
						shortID(job.ID),
						job.File.Name,
						string(job.Status),
						strconv.Itoa(job.Progress) + "%",
						formatBytes(job.File.Size),
						formatTime(job.StartedAt),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "File", "Status", "Progress", "Size", "Started"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}))
				p := result.Pagination
				fmt.Fprintf(out, "Page %d of %d (%d uploads)\n", p.Page, max(p.Pages, 1), p.Total)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Only show uploads for this owner")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "Uploads per page")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
