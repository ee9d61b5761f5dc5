package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"parcel/internal/app"
	"parcel/internal/jobs"
	"parcel/internal/services"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status <upload-id>",
		Short: "Show the state of one upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				job, err := a.Registry.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				if job == nil {
					return services.Wrap(services.ErrNotFound, "status", "get", "upload "+id+" not found", nil)
				}
				if jsonOut {
					return writeJSON(cmd, job)
				}
				printJob(cmd, job)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func printJob(cmd *cobra.Command, job *jobs.Job) {
	out := cmd.OutOrStdout()
	rows := [][]string{
		{"ID", job.ID},
		{"Status", string(job.Status)},
		{"Progress", strconv.Itoa(job.Progress) + "%"},
		{"File", job.File.Name},
		{"Type", valueOrDash(job.File.Type)},
		{"Size", formatBytes(job.File.Size)},
		{"Owner", valueOrDash(job.OwnerID)},
		{"Batch", valueOrDash(job.BatchID)},
		{"Hash", valueOrDash(job.FileHash)},
		{"Path", valueOrDash(job.FinalPath)},
		{"Started", formatTime(job.StartedAt)},
		{"Completed", formatTime(job.CompletedAt)},
	}
	if job.Error != "" {
		rows = append(rows, []string{"Error", fmt.Sprintf("%s (%s)", job.Error, job.ErrorKind)})
	}
	fmt.Fprintln(out, renderTable(out, []string{"Field", "Value"}, rows, nil))

	if len(job.ProcessedFiles) > 0 {
		fmt.Fprintln(out, renderArtifacts(out, job.ProcessedFiles))
	}
	for _, failure := range job.ProcessingFailures {
		fmt.Fprintf(out, "Artifact %s %s failed: %s\n", failure.Kind, failure.Suffix, failure.Error)
	}
}
