package processing

import (
	"context"
	"strings"
)

// Category groups MIME types that share a processing strategy.
type Category string

const (
	CategoryNone     Category = ""
	CategoryImage    Category = "image"
	CategoryDocument Category = "document"
)

// CategoryOf maps a MIME type to its processing category.
func CategoryOf(mimeType string) Category {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return CategoryImage
	case mimeType == "application/pdf",
		strings.Contains(mimeType, "document"),
		mimeType == "text/plain",
		mimeType == "text/markdown":
		return CategoryDocument
	default:
		return CategoryNone
	}
}

// ArtifactKind names what a derived file is.
type ArtifactKind string

const (
	KindThumbnail ArtifactKind = "thumbnail"
	KindOptimized ArtifactKind = "optimized"
	KindText      ArtifactKind = "text"
	KindPreview   ArtifactKind = "preview"
	KindPDF       ArtifactKind = "pdf"
)

// ThumbnailSize is one requested thumbnail variant.
type ThumbnailSize struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Suffix string `json:"suffix"`
}

// DefaultThumbnailSizes are used when thumbnails are requested without sizes.
func DefaultThumbnailSizes() []ThumbnailSize {
	return []ThumbnailSize{
		{Width: 150, Height: 150, Suffix: "thumb"},
		{Width: 400, Height: 400, Suffix: "medium"},
		{Width: 800, Height: 600, Suffix: "large"},
	}
}

// ImageOptions toggles image sub-operations.
type ImageOptions struct {
	GenerateThumbnails bool            `json:"generateThumbnails"`
	ThumbnailSizes     []ThumbnailSize `json:"thumbnailSizes,omitempty"`
	Optimize           bool            `json:"optimize"`
	Format             string          `json:"format,omitempty"`
	Quality            int             `json:"quality,omitempty"`
}

// DocumentOptions toggles document sub-operations.
type DocumentOptions struct {
	ExtractText     bool `json:"extractText"`
	GeneratePreview bool `json:"generatePreview"`
	ConvertToPDF    bool `json:"convertToPdf"`
}

// Options carries the per-upload processing request. A nil section means no
// processing of that category.
type Options struct {
	Image    *ImageOptions    `json:"image,omitempty"`
	Document *DocumentOptions `json:"document,omitempty"`
	// FailOnError turns any sub-operation failure into a job failure.
	FailOnError bool `json:"failOnError,omitempty"`
}

// Request is one processing invocation.
type Request struct {
	JobID        string
	SourcePath   string
	OriginalName string
	MimeType     string
	Options      Options
}

// Artifact describes one derived file.
type Artifact struct {
	Kind      ArtifactKind `json:"kind"`
	Path      string       `json:"path"`
	URL       string       `json:"url,omitempty"`
	Size      int64        `json:"size"`
	Width     int          `json:"width,omitempty"`
	Height    int          `json:"height,omitempty"`
	Suffix    string       `json:"suffix,omitempty"`
	Optimized bool         `json:"optimized,omitempty"`
	Format    string       `json:"format,omitempty"`
	TextPath  string       `json:"textPath,omitempty"`
}

// ArtifactFailure records a requested artifact that could not be produced.
type ArtifactFailure struct {
	Kind   ArtifactKind `json:"kind"`
	Suffix string       `json:"suffix,omitempty"`
	Error  string       `json:"error"`
}

// Outcome is what a strategy produced.
type Outcome struct {
	Artifacts []Artifact
	Failures  []ArtifactFailure
}

func (o *Outcome) merge(other Outcome) {
	o.Artifacts = append(o.Artifacts, other.Artifacts...)
	o.Failures = append(o.Failures, other.Failures...)
}

// Strategy processes one category of upload. Sub-operation failures belong
// in Outcome.Failures; a returned error aborts the whole request.
type Strategy interface {
	Process(ctx context.Context, out Output, req Request) (Outcome, error)
}
