package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"parcel/internal/app"
	"parcel/internal/config"
	"parcel/internal/events"
	"parcel/internal/jobs"
	"parcel/internal/pipeline"
	"parcel/internal/processing"
	"parcel/internal/services"
)

type uploadFlags struct {
	owner       string
	mimeType    string
	concurrency int
	thumbnails  bool
	sizes       []string
	optimize    bool
	format      string
	quality     int
	extractText bool
	preview     bool
	pdf         bool
	failOnError bool
	jsonOut     bool
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var flags uploadFlags

	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload one or more files through the pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			files := make([]pipeline.File, 0, len(args))
			for _, arg := range args {
				file, err := localFile(arg, flags.mimeType)
				if err != nil {
					return err
				}
				files = append(files, file)
			}

			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				stopProgress := watchProgress(cmd, a.Bus)
				defer stopProgress()

				if len(files) == 1 {
					return runSingleUpload(cmd, a, files[0], opts, flags.jsonOut)
				}
				return runBatchUpload(cmd, a, files, opts, flags.jsonOut)
			})
		},
	}

	cmd.Flags().StringVar(&flags.owner, "owner", "", "Owner id recorded on each upload")
	cmd.Flags().StringVar(&flags.mimeType, "type", "", "MIME type to declare instead of detecting it")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "Uploads per wave (default from config)")
	cmd.Flags().BoolVar(&flags.thumbnails, "thumbnails", false, "Generate image thumbnails")
	cmd.Flags().StringSliceVar(&flags.sizes, "size", nil, "Thumbnail size as WIDTHxHEIGHT[:suffix] (repeatable)")
	cmd.Flags().BoolVar(&flags.optimize, "optimize", false, "Generate an optimized image variant")
	cmd.Flags().StringVar(&flags.format, "format", "", "Output format for image variants")
	cmd.Flags().IntVar(&flags.quality, "quality", 0, "Quality for image variants (1-100)")
	cmd.Flags().BoolVar(&flags.extractText, "extract-text", false, "Extract document text")
	cmd.Flags().BoolVar(&flags.preview, "preview", false, "Render a document preview")
	cmd.Flags().BoolVar(&flags.pdf, "pdf", false, "Convert documents to PDF")
	cmd.Flags().BoolVar(&flags.failOnError, "strict", false, "Fail the upload when any artifact fails")
	cmd.Flags().BoolVar(&flags.jsonOut, "json", false, "Output results as JSON")
	return cmd
}

func (f uploadFlags) options() (pipeline.Options, error) {
	opts := pipeline.Options{
		OwnerID:     strings.TrimSpace(f.owner),
		Concurrency: f.concurrency,
	}
	opts.Processing.FailOnError = f.failOnError

	if f.thumbnails || f.optimize || len(f.sizes) > 0 {
		sizes, err := parseSizes(f.sizes)
		if err != nil {
			return opts, err
		}
		if f.quality < 0 || f.quality > 100 {
			return opts, fmt.Errorf("--quality must be between 1 and 100")
		}
		opts.Processing.Image = &processing.ImageOptions{
			GenerateThumbnails: f.thumbnails || len(sizes) > 0,
			ThumbnailSizes:     sizes,
			Optimize:           f.optimize,
			Format:             f.format,
			Quality:            f.quality,
		}
	}
	if f.extractText || f.preview || f.pdf {
		opts.Processing.Document = &processing.DocumentOptions{
			ExtractText:     f.extractText,
			GeneratePreview: f.preview,
			ConvertToPDF:    f.pdf,
		}
	}
	return opts, nil
}

// parseSizes parses WIDTHxHEIGHT[:suffix] values.
func parseSizes(values []string) ([]processing.ThumbnailSize, error) {
	sizes := make([]processing.ThumbnailSize, 0, len(values))
	for _, raw := range values {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		dims, suffix, _ := strings.Cut(value, ":")
		w, h, ok := strings.Cut(strings.ToLower(dims), "x")
		if !ok {
			return nil, fmt.Errorf("invalid size %q (expected WIDTHxHEIGHT[:suffix])", raw)
		}
		width, errW := strconv.Atoi(w)
		height, errH := strconv.Atoi(h)
		if errW != nil || errH != nil || width <= 0 || height <= 0 {
			return nil, fmt.Errorf("invalid size %q (expected positive integers)", raw)
		}
		sizes = append(sizes, processing.ThumbnailSize{Width: width, Height: height, Suffix: strings.TrimSpace(suffix)})
	}
	return sizes, nil
}

func localFile(arg, mimeOverride string) (pipeline.File, error) {
	path, err := config.ExpandPath(arg)
	if err != nil {
		return pipeline.File{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return pipeline.File{}, fmt.Errorf("inspect %q: %w", path, err)
	}
	if info.IsDir() {
		return pipeline.File{}, fmt.Errorf("%s is a directory", path)
	}
	mimeType := strings.TrimSpace(mimeOverride)
	if mimeType == "" {
		mimeType, err = detectMimeType(path)
		if err != nil {
			return pipeline.File{}, err
		}
	}
	return pipeline.File{
		Info: services.FileInfo{
			Name:         filepath.Base(path),
			Size:         info.Size(),
			Type:         mimeType,
			LastModified: info.ModTime().UTC(),
		},
		Open: func(context.Context) (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// extensionTypes covers common upload types the platform MIME table may lack.
var extensionTypes = map[string]string{
	".md":   "text/markdown",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".zip":  "application/zip",
}

func detectMimeType(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := extensionTypes[ext]; ok {
		return t, nil
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return stripParams(t), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read %q: %w", path, err)
	}
	return stripParams(http.DetectContentType(head[:n])), nil
}

func stripParams(mimeType string) string {
	if base, _, err := mime.ParseMediaType(mimeType); err == nil {
		return base
	}
	return mimeType
}

func runSingleUpload(cmd *cobra.Command, a *app.App, file pipeline.File, opts pipeline.Options, jsonOut bool) error {
	res, err := a.Processor.Upload(cmd.Context(), file, opts)
	if err != nil {
		if jsonOut && res != nil {
			_ = writeJSON(cmd, map[string]any{
				"success":  false,
				"uploadId": res.UploadID,
				"error":    err.Error(),
				"kind":     services.KindOf(err),
			})
		}
		return fmt.Errorf("upload %s: %w", file.Info.Name, err)
	}
	if jsonOut {
		return writeJSON(cmd, res)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Uploaded %s as %s\n", file.Info.Name, res.UploadID)
	fmt.Fprintf(out, "  Path: %s\n", res.File.Path)
	fmt.Fprintf(out, "  URL:  %s\n", res.File.URL)
	fmt.Fprintf(out, "  Hash: %s\n", res.File.Hash)
	if len(res.Processed) > 0 {
		fmt.Fprintln(out, renderArtifacts(out, res.Processed))
	}
	for _, failure := range res.Failures {
		fmt.Fprintf(out, "  Artifact %s %s failed: %s\n", failure.Kind, failure.Suffix, failure.Error)
	}
	return nil
}

func runBatchUpload(cmd *cobra.Command, a *app.App, files []pipeline.File, opts pipeline.Options, jsonOut bool) error {
	res, err := a.Processor.UploadBatch(cmd.Context(), files, opts)
	if err != nil {
		return err
	}
	if jsonOut {
		if err := writeJSON(cmd, res); err != nil {
			return err
		}
	} else {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Batch %s: %d of %d uploaded in %d wave(s)\n", res.BatchID, res.Successful, res.TotalFiles, res.Waves)
		rows := make([][]string, 0, res.TotalFiles)
		for _, r := range res.Results {
			name := filepath.Base(r.File.Path)
			if r.File.Metadata != nil {
				name = r.File.Metadata.OriginalName
			}
			rows = append(rows, []string{name, r.UploadID, "completed", shortHash(r.File.Hash)})
		}
		for _, e := range res.Errors {
			rows = append(rows, []string{e.File, valueOrDash(e.UploadID), "failed", e.Error})
		}
		fmt.Fprintln(out, renderTable(out, []string{"File", "Upload", "Status", "Hash / Error"}, rows, nil))
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", res.Failed, res.TotalFiles)
	}
	return nil
}

func renderArtifacts(out io.Writer, artifacts []processing.Artifact) string {
	rows := make([][]string, 0, len(artifacts))
	for _, artifact := range artifacts {
		dims := "-"
		if artifact.Width > 0 && artifact.Height > 0 {
			dims = fmt.Sprintf("%dx%d", artifact.Width, artifact.Height)
		}
		rows = append(rows, []string{string(artifact.Kind), valueOrDash(artifact.Suffix), dims, formatBytes(artifact.Size), artifact.Path})
	}
	return renderTable(out, []string{"Kind", "Suffix", "Size", "Bytes", "Path"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft})
}

// watchProgress prints progress milestones to stderr when it is a terminal.
func watchProgress(cmd *cobra.Command, bus *events.Bus) func() {
	errOut := cmd.ErrOrStderr()
	if !isTerminal(errOut) {
		return func() {}
	}
	var (
		mu    sync.Mutex
		names = make(map[string]string)
	)
	return bus.Subscribe(func(evt events.Event) {
		mu.Lock()
		defer mu.Unlock()
		if job, ok := evt.Payload.(*jobs.Job); ok && job != nil {
			names[evt.Subject] = job.File.Name
		}
		switch evt.Type {
		case events.UploadProgress:
			fmt.Fprintf(errOut, "  %-32s %3d%%\n", names[evt.Subject], evt.Progress)
		case events.UploadFailed:
			fmt.Fprintf(errOut, "  %-32s failed: %s\n", names[evt.Subject], evt.Error)
		}
	}, events.ForTypes(events.UploadStarted, events.UploadProgress, events.UploadFailed))
}
