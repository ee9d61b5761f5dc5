// Package app wires configuration, the job store, and the pipeline
// collaborators into one handle the CLI drives.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"parcel/internal/bundle"
	"parcel/internal/config"
	"parcel/internal/events"
	"parcel/internal/jobs"
	"parcel/internal/logging"
	"parcel/internal/pipeline"
	"parcel/internal/preflight"
	"parcel/internal/processing"
	"parcel/internal/scanning"
	"parcel/internal/services"
	"parcel/internal/staging"
	"parcel/internal/storage"
)

// App holds the long-lived components of a parcel process.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Bus       *events.Bus
	Store     jobs.Store
	Registry  *jobs.Registry
	Layout    *storage.Layout
	Stager    *staging.Stager
	Processor *pipeline.Processor
	Bundles   *bundle.Assembler

	unsubscribe func()
}

type options struct {
	scanner       services.Scanner
	collaborators processing.Collaborators
	store         jobs.Store
	skipPreflight bool
}

// Option customizes New.
type Option func(*options)

// WithScanner replaces the built-in signature scanner.
func WithScanner(scanner services.Scanner) Option {
	return func(o *options) { o.scanner = scanner }
}

// WithCollaborators supplies external image and document codecs.
func WithCollaborators(collab processing.Collaborators) Option {
	return func(o *options) { o.collaborators = collab }
}

// WithStore uses store instead of opening the configured backend. The App
// still closes it.
func WithStore(store jobs.Store) Option {
	return func(o *options) { o.store = store }
}

// WithoutPreflight skips directory checks.
func WithoutPreflight() Option {
	return func(o *options) { o.skipPreflight = true }
}

// New creates the upload directories, opens the job store, and constructs
// the pipeline.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "app", "init", "config is required", nil)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "app", "init", "ensure directories", err)
	}
	if !o.skipPreflight {
		var problems []string
		for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
			if strings.HasSuffix(result.Name, "free space") {
				logger.Warn("preflight check failed",
					logging.String("check", result.Name),
					logging.String("detail", result.Detail),
					logging.String(logging.FieldEventType, "preflight_warning"),
					logging.String(logging.FieldImpact, "large uploads may fail"),
				)
				continue
			}
			problems = append(problems, fmt.Sprintf("%s: %s", result.Name, result.Detail))
		}
		if len(problems) > 0 {
			return nil, services.Wrap(services.ErrConfiguration, "app", "preflight", strings.Join(problems, "; "), nil)
		}
	}

	store := o.store
	if store == nil {
		var err error
		store, err = openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	bus := events.NewBus(0)
	registry := jobs.NewRegistry(store, bus, logger, jobs.WithTempRoot(cfg.Paths.TempDir))
	layout := storage.NewLayout(cfg)
	stager := staging.NewStager(cfg.Paths.TempDir)

	scanner := o.scanner
	if scanner == nil && cfg.Pipeline.ScanEnabled {
		scanner = scanning.NewSignatureScanner(cfg.Pipeline.ScanSignatures...)
	}
	router := processing.NewDefaultRouter(processing.Output{Dir: layout.ProcessedDir(), URL: layout.URL}, o.collaborators, logger)

	proc, err := pipeline.New(cfg, pipeline.Dependencies{
		Registry: registry,
		Stager:   stager,
		Router:   router,
		Layout:   layout,
		Scanner:  scanner,
		Bus:      bus,
		Logger:   logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Bus:       bus,
		Store:     store,
		Registry:  registry,
		Layout:    layout,
		Stager:    stager,
		Processor: proc,
		Bundles:   bundle.NewAssembler(registry, layout, cfg.Bundle, bus, logger),
	}
	a.unsubscribe = bus.Subscribe(newEventLogger(logger))
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config) (jobs.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendMemory:
		return jobs.NewMemoryStore(), nil
	default:
		store, err := jobs.OpenSQLite(ctx, cfg.StorePath())
		if err != nil {
			if errors.Is(err, jobs.ErrStoreLocked) {
				return nil, services.Wrap(services.ErrConfiguration, "app", "open store", "another parcel process is running", err)
			}
			return nil, services.Wrap(services.ErrIO, "app", "open store", cfg.StorePath(), err)
		}
		return store, nil
	}
}

// Close releases the job store.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

// CleanReport lists what Clean removed.
type CleanReport struct {
	Stale    staging.CleanStaleResult
	Orphaned staging.CleanStaleResult
}

// Clean removes per-job temp directories older than the configured max age,
// skipping jobs still in flight. With a persistent store it also removes
// directories that belong to no known job.
func (a *App) Clean(ctx context.Context) (CleanReport, error) {
	var report CleanReport
	active, err := a.Registry.ActiveIDs(ctx)
	if err != nil {
		return report, err
	}
	logger := logging.NewComponentLogger(a.Logger, "cleanup")
	report.Stale = staging.CleanStale(ctx, a.Stager.Root(), a.Config.TempMaxAge(), active, logger)

	if a.Config.Store.Backend == config.StoreBackendSQLite {
		known, err := a.Registry.KnownIDs(ctx)
		if err != nil {
			return report, err
		}
		report.Orphaned = staging.CleanOrphaned(ctx, a.Stager.Root(), known, logger)
	}
	return report, nil
}
