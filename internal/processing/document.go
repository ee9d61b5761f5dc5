package processing

import (
	"context"
	"errors"
	"os"
	"strings"

	"parcel/internal/services"
)

var (
	errNoPreviewRenderer = errors.New("no preview renderer configured")
	errNoConverter       = errors.New("no pdf converter configured")
	errNoExtractor       = errors.New("no text extractor configured")
)

// DocumentStrategy extracts text, renders previews, and converts to PDF.
type DocumentStrategy struct {
	Extractor services.TextExtractor
	Previewer services.PreviewRenderer
	Converter services.PDFConverter
}

// Process implements Strategy.
func (s *DocumentStrategy) Process(ctx context.Context, out Output, req Request) (Outcome, error) {
	opts := req.Options.Document
	if opts == nil {
		return Outcome{}, nil
	}
	var outcome Outcome

	if opts.ExtractText {
		part, err := s.extractText(ctx, out, req)
		if err != nil {
			return outcome, err
		}
		outcome.merge(part)
	}

	if opts.GeneratePreview {
		part, err := s.run(ctx, out, req, KindPreview, "preview", ".png", func(dst string) error {
			if s.Previewer == nil {
				return errNoPreviewRenderer
			}
			return s.Previewer.RenderPreview(ctx, req.SourcePath, dst)
		})
		if err != nil {
			return outcome, err
		}
		outcome.merge(part)
	}

	if opts.ConvertToPDF && !isPDF(req) {
		part, err := s.run(ctx, out, req, KindPDF, "pdf", ".pdf", func(dst string) error {
			if s.Converter == nil {
				return errNoConverter
			}
			return s.Converter.ConvertToPDF(ctx, req.SourcePath, dst)
		})
		if err != nil {
			return outcome, err
		}
		outcome.merge(part)
	}
	return outcome, nil
}

func (s *DocumentStrategy) extractText(ctx context.Context, out Output, req Request) (Outcome, error) {
	return s.run(ctx, out, req, KindText, "text", ".txt", func(dst string) error {
		if s.Extractor == nil {
			return errNoExtractor
		}
		text, err := s.Extractor.ExtractText(ctx, req.SourcePath, req.MimeType)
		if err != nil {
			return err
		}
		return os.WriteFile(dst, []byte(text), 0o644)
	})
}

// run executes one sub-operation writing to its artifact path. Context
// failures abort the request; anything else is recorded as a scoped failure.
func (s *DocumentStrategy) run(ctx context.Context, out Output, req Request, kind ArtifactKind, suffix, ext string, op func(dst string) error) (Outcome, error) {
	if err := services.FromContext(ctx, stageName); err != nil {
		return Outcome{}, err
	}
	dst := out.Path(req.JobID, req.OriginalName, suffix, ext)
	if err := op(dst); err != nil {
		_ = os.Remove(dst)
		if ctxErr := services.FromContext(ctx, stageName); ctxErr != nil {
			return Outcome{}, ctxErr
		}
		return Outcome{Failures: []ArtifactFailure{{Kind: kind, Suffix: suffix, Error: err.Error()}}}, nil
	}
	artifact, err := out.describe(kind, dst)
	if err != nil {
		return Outcome{Failures: []ArtifactFailure{{Kind: kind, Suffix: suffix, Error: "no output written: " + err.Error()}}}, nil
	}
	artifact.Suffix = suffix
	artifact.Format = strings.TrimPrefix(ext, ".")
	if kind == KindText {
		artifact.TextPath = dst
	}
	return Outcome{Artifacts: []Artifact{artifact}}, nil
}

func isPDF(req Request) bool {
	if strings.EqualFold(strings.TrimSpace(req.MimeType), "application/pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(req.OriginalName), ".pdf")
}
