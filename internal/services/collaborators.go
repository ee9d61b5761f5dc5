package services

import (
	"context"
	"time"
)

// FileInfo is the client-declared description of an upload. It is captured
// once at intake and never changes.
type FileInfo struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	Type         string    `json:"type"`
	LastModified time.Time `json:"lastModified"`
}

// Verdict is the answer a Scanner gives for one file.
type Verdict struct {
	Clean  bool
	Threat string
}

// Scanner inspects a staged file and reports whether it may proceed.
type Scanner interface {
	Scan(ctx context.Context, path string) (Verdict, error)
}

// VariantSpec describes one derived image the generator should write.
type VariantSpec struct {
	Width    int
	Height   int
	Suffix   string
	Format   string
	Quality  int
	Optimize bool
}

// ImageVariantGenerator writes a resized or optimized copy of src to dst.
type ImageVariantGenerator interface {
	GenerateVariant(ctx context.Context, src, dst string, spec VariantSpec) error
}

// PreviewRenderer writes a preview image for a document.
type PreviewRenderer interface {
	RenderPreview(ctx context.Context, src, dst string) error
}

// PDFConverter writes a PDF rendition of a non-PDF document.
type PDFConverter interface {
	ConvertToPDF(ctx context.Context, src, dst string) error
}

// TextExtractor returns the plain text content of a document.
type TextExtractor interface {
	ExtractText(ctx context.Context, path, mimeType string) (string, error)
}
