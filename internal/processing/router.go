package processing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"parcel/internal/fileutil"
	"parcel/internal/logging"
	"parcel/internal/services"
)

const stageName = "process"

// Router dispatches requests to the strategy registered for their category.
type Router struct {
	out    Output
	logger *slog.Logger

	mu         sync.RWMutex
	strategies map[Category]Strategy
}

// NewRouter constructs an empty router writing artifacts under out.Dir.
func NewRouter(out Output, logger *slog.Logger) *Router {
	return &Router{
		out:        out,
		logger:     logging.NewComponentLogger(logger, "processing"),
		strategies: make(map[Category]Strategy),
	}
}

// Collaborators are the external codecs the default strategies call.
type Collaborators struct {
	Images    services.ImageVariantGenerator
	Text      services.TextExtractor
	Previews  services.PreviewRenderer
	Converter services.PDFConverter
}

// NewDefaultRouter registers the image and document strategies. Nil image,
// text, and converter collaborators fall back to the built-in placeholders;
// a nil preview renderer leaves previews unavailable.
func NewDefaultRouter(out Output, collab Collaborators, logger *slog.Logger) *Router {
	if collab.Images == nil {
		collab.Images = CopyVariantGenerator{}
	}
	if collab.Text == nil {
		collab.Text = BuiltinExtractor{}
	}
	if collab.Converter == nil {
		collab.Converter = CopyPDFConverter{}
	}
	r := NewRouter(out, logger)
	r.Register(CategoryImage, &ImageStrategy{Generator: collab.Images})
	r.Register(CategoryDocument, &DocumentStrategy{
		Extractor: collab.Text,
		Previewer: collab.Previews,
		Converter: collab.Converter,
	})
	return r
}

// Register installs or replaces the strategy for category.
func (r *Router) Register(category Category, strategy Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if strategy == nil {
		delete(r.strategies, category)
		return
	}
	r.strategies[category] = strategy
}

// Process runs the strategy for req's MIME category. Types with no strategy
// produce an empty outcome. When req.Options.FailOnError is set, the first
// failure discards every produced artifact and is returned as ErrProcessing.
func (r *Router) Process(ctx context.Context, req Request) (Outcome, error) {
	if err := services.FromContext(ctx, stageName); err != nil {
		return Outcome{}, err
	}
	category := CategoryOf(req.MimeType)
	r.mu.RLock()
	strategy, ok := r.strategies[category]
	r.mu.RUnlock()
	if !ok || category == CategoryNone {
		return Outcome{}, nil
	}

	if err := os.MkdirAll(r.out.Dir, 0o755); err != nil {
		return Outcome{}, services.Wrap(services.ErrIO, stageName, "mkdir", r.out.Dir, err)
	}

	outcome, err := strategy.Process(ctx, r.out, req)
	if err != nil {
		removeArtifacts(outcome.Artifacts)
		if ctxErr := services.FromContext(ctx, stageName); ctxErr != nil {
			return Outcome{}, ctxErr
		}
		if services.KindOf(err) == services.KindUnknown {
			err = services.Wrap(services.ErrProcessing, stageName, string(category), "strategy failed", err)
		}
		return Outcome{}, err
	}

	for _, failure := range outcome.Failures {
		r.logger.Warn("artifact generation failed",
			logging.String(logging.FieldJobID, req.JobID),
			logging.String("artifact_kind", string(failure.Kind)),
			logging.String("suffix", failure.Suffix),
			logging.String("reason", failure.Error),
			logging.String(logging.FieldEventType, "artifact_failed"),
			logging.String(logging.FieldErrorHint, "check the codec for this artifact kind"),
			logging.String(logging.FieldImpact, "upload completes without this artifact"),
		)
	}
	if len(outcome.Failures) > 0 && req.Options.FailOnError {
		removeArtifacts(outcome.Artifacts)
		first := outcome.Failures[0]
		return Outcome{}, services.Wrap(services.ErrProcessing, stageName, string(first.Kind),
			fmt.Sprintf("%d artifact(s) failed: %s", len(outcome.Failures), first.Error), nil)
	}
	return outcome, nil
}

func removeArtifacts(artifacts []Artifact) {
	for _, artifact := range artifacts {
		_, _ = fileutil.RemoveIfExists(artifact.Path)
	}
}
