package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"parcel/internal/app"
	"parcel/internal/bundle"
)

func newBundleCommand(ctx *commandContext) *cobra.Command {
	var (
		opts        bundle.Options
		licenseFile string
		jsonOut     bool
	)

	cmd := &cobra.Command{
		Use:   "bundle <upload-id>...",
		Short: "Package completed uploads into a zip bundle",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if path := strings.TrimSpace(licenseFile); path != "" {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read license file: %w", err)
				}
				opts.LicenseText = string(data)
				opts.IncludeLicense = true
			}
			refs := make([]bundle.Ref, 0, len(args))
			for _, arg := range args {
				refs = append(refs, bundle.Ref{JobID: strings.TrimSpace(arg)})
			}

			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Bundles.Create(cmd.Context(), refs, opts)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, res)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created bundle %s\n", res.BundleID)
				fmt.Fprintf(out, "  Path:     %s\n", res.Path)
				fmt.Fprintf(out, "  Size:     %s\n", formatBytes(res.Size))
				fmt.Fprintf(out, "  Hash:     %s\n", res.Hash)
				fmt.Fprintf(out, "  Download: %s\n", res.DownloadURL)
				fmt.Fprintf(out, "  Files:    %d of %d requested\n", len(res.Metadata.Files), len(refs))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "Bundle name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "Bundle description")
	cmd.Flags().BoolVar(&opts.IncludeReadme, "readme", false, "Include a generated README.md")
	cmd.Flags().BoolVar(&opts.IncludeLicense, "license", false, "Include LICENSE.txt")
	cmd.Flags().StringVar(&opts.License, "license-name", "", "License name shown in the README")
	cmd.Flags().StringVar(&licenseFile, "license-file", "", "File whose contents become LICENSE.txt")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
