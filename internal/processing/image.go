package processing

import (
	"context"
	"fmt"
	"os"
	"strings"

	"parcel/internal/services"
)

const optimizedSuffix = "optimized"

// ImageStrategy produces thumbnail and optimized variants.
type ImageStrategy struct {
	Generator services.ImageVariantGenerator
}

// Process implements Strategy.
func (s *ImageStrategy) Process(ctx context.Context, out Output, req Request) (Outcome, error) {
	opts := req.Options.Image
	if opts == nil {
		return Outcome{}, nil
	}
	var outcome Outcome
	ext := Ext(req.OriginalName, opts.Format)
	used := make(map[string]struct{})
	if opts.Optimize {
		claimSuffix(optimizedSuffix, used)
	}

	if opts.GenerateThumbnails {
		sizes := opts.ThumbnailSizes
		if len(sizes) == 0 {
			sizes = DefaultThumbnailSizes()
		}
		for _, size := range sizes {
			suffix := strings.TrimSpace(size.Suffix)
			if suffix == "" {
				suffix = fmt.Sprintf("%dx%d", size.Width, size.Height)
			}
			suffix = claimSuffix(suffix, used)
			spec := services.VariantSpec{
				Width:   size.Width,
				Height:  size.Height,
				Suffix:  suffix,
				Format:  opts.Format,
				Quality: opts.Quality,
			}
			part, err := s.variant(ctx, out, req, KindThumbnail, ext, spec)
			if err != nil {
				return outcome, err
			}
			outcome.merge(part)
		}
	}

	if opts.Optimize {
		spec := services.VariantSpec{
			Suffix:   optimizedSuffix,
			Format:   opts.Format,
			Quality:  opts.Quality,
			Optimize: true,
		}
		part, err := s.variant(ctx, out, req, KindOptimized, ext, spec)
		if err != nil {
			return outcome, err
		}
		outcome.merge(part)
	}
	return outcome, nil
}

func (s *ImageStrategy) variant(ctx context.Context, out Output, req Request, kind ArtifactKind, ext string, spec services.VariantSpec) (Outcome, error) {
	if err := services.FromContext(ctx, stageName); err != nil {
		return Outcome{}, err
	}
	fail := func(err error) Outcome {
		return Outcome{Failures: []ArtifactFailure{{Kind: kind, Suffix: spec.Suffix, Error: err.Error()}}}
	}
	if s.Generator == nil {
		return fail(fmt.Errorf("no image generator configured")), nil
	}

	dst := out.Path(req.JobID, req.OriginalName, spec.Suffix, ext)
	if err := s.Generator.GenerateVariant(ctx, req.SourcePath, dst, spec); err != nil {
		_ = os.Remove(dst)
		if ctxErr := services.FromContext(ctx, stageName); ctxErr != nil {
			return Outcome{}, ctxErr
		}
		return fail(err), nil
	}
	artifact, err := out.describe(kind, dst)
	if err != nil {
		return fail(fmt.Errorf("generator wrote no output: %w", err)), nil
	}
	artifact.Width = spec.Width
	artifact.Height = spec.Height
	artifact.Suffix = spec.Suffix
	artifact.Optimized = spec.Optimize
	artifact.Format = strings.TrimPrefix(ext, ".")
	return Outcome{Artifacts: []Artifact{artifact}}, nil
}
