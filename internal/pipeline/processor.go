package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"parcel/internal/config"
	"parcel/internal/events"
	"parcel/internal/fileutil"
	"parcel/internal/hashing"
	"parcel/internal/jobs"
	"parcel/internal/logging"
	"parcel/internal/processing"
	"parcel/internal/retry"
	"parcel/internal/scanning"
	"parcel/internal/services"
	"parcel/internal/staging"
	"parcel/internal/storage"
	"parcel/internal/validation"
)

// Dependencies are the collaborators a Processor drives.
type Dependencies struct {
	Registry *jobs.Registry
	Stager   *staging.Stager
	Router   *processing.Router
	Layout   *storage.Layout
	// Scanner is optional; nil skips the scan stage.
	Scanner services.Scanner
	Bus     *events.Bus
	Logger  *slog.Logger
}

// Processor runs uploads end to end.
type Processor struct {
	cfg       *config.Config
	registry  *jobs.Registry
	validator *validation.Validator
	stager    *staging.Stager
	scanner   services.Scanner
	router    *processing.Router
	layout    *storage.Layout
	bus       *events.Bus
	logger    *slog.Logger
	sampler   *logging.ProgressSampler
}

// New constructs a Processor from configuration and collaborators.
func New(cfg *config.Config, deps Dependencies) (*Processor, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "config is required", nil)
	}
	if deps.Registry == nil || deps.Stager == nil || deps.Router == nil || deps.Layout == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "registry, stager, router, and layout are required", nil)
	}
	return &Processor{
		cfg:       cfg,
		registry:  deps.Registry,
		validator: validation.New(cfg.Limits.MaxFileSize, cfg.Limits.AllowedMimeTypes),
		stager:    deps.Stager,
		scanner:   deps.Scanner,
		router:    deps.Router,
		layout:    deps.Layout,
		bus:       deps.Bus,
		logger:    logging.NewComponentLogger(deps.Logger, "pipeline"),
		sampler:   logging.NewProgressSampler(25),
	}, nil
}

// Registry exposes the job registry the processor writes to.
func (p *Processor) Registry() *jobs.Registry { return p.registry }

// Upload runs one file through the pipeline. On failure the job is left in
// the failed state with its files removed, and the stage error is returned
// alongside the job id.
func (p *Processor) Upload(ctx context.Context, file File, opts Options) (*UploadResult, error) {
	return p.upload(ctx, file, opts, "")
}

func (p *Processor) upload(ctx context.Context, file File, opts Options, batchID string) (*UploadResult, error) {
	job, err := p.registry.Create(ctx, file.Info, opts.OwnerID, batchID)
	if err != nil {
		return nil, err
	}
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("upload started",
		logging.String("file_name", file.Info.Name),
		logging.Int64("file_size", file.Info.Size),
		logging.String("file_type", file.Info.Type),
		logging.String(logging.FieldEventType, "upload_start"),
	)
	start := time.Now()

	run := &uploadRun{proc: p, job: job, file: file, opts: opts, logger: logger}
	result, err := run.execute(ctx)
	if err != nil {
		failure := p.fail(ctx, run, err)
		return &UploadResult{Success: false, UploadID: job.ID}, failure
	}

	p.sampler.Forget(job.ID)
	logger.Info("upload completed",
		logging.String("final_path", result.File.Path),
		logging.String("file_hash", result.File.Hash),
		logging.Int("artifacts", len(result.Processed)),
		logging.Int("artifact_failures", len(result.Failures)),
		logging.Duration("duration", time.Since(start)),
		logging.String(logging.FieldEventType, "upload_complete"),
	)
	return result, nil
}

// uploadRun carries one upload's state between stages.
type uploadRun struct {
	proc   *Processor
	job    *jobs.Job
	file   File
	opts   Options
	logger *slog.Logger

	tempPath  string
	finalPath string
	artifacts []processing.Artifact
}

func (r *uploadRun) execute(ctx context.Context) (*UploadResult, error) {
	p := r.proc
	id := r.job.ID
	info := r.file.Info

	if err := p.runStage(ctx, StageValidate, func(ctx context.Context) error {
		return p.validator.Validate(ctx, info, r.opts.Validator)
	}); err != nil {
		return nil, err
	}

	if err := p.runStage(ctx, StageStage, func(ctx context.Context) error {
		path, err := p.stager.Stage(ctx, id, info, r.file.Open)
		if err != nil {
			return err
		}
		r.tempPath = path
		return nil
	}); err != nil {
		return nil, err
	}
	if _, err := p.registry.MarkProcessing(ctx, id); err != nil {
		return nil, err
	}
	if err := p.progress(ctx, r, jobs.ProgressStaged, func(j *jobs.Job) { j.TempPath = r.tempPath }); err != nil {
		return nil, err
	}

	if p.scanner != nil {
		if err := p.runStage(ctx, StageScan, func(ctx context.Context) error {
			return scanning.Check(ctx, p.scanner, r.tempPath)
		}); err != nil {
			return nil, err
		}
		if err := p.progress(ctx, r, jobs.ProgressScanned, nil); err != nil {
			return nil, err
		}
	}

	var hash string
	if err := p.runStage(ctx, StageHash, func(ctx context.Context) error {
		sum, err := hashing.File(ctx, r.tempPath)
		if err != nil {
			return err
		}
		hash = sum
		return nil
	}); err != nil {
		return nil, err
	}
	if err := p.progress(ctx, r, jobs.ProgressHashed, func(j *jobs.Job) { j.FileHash = hash }); err != nil {
		return nil, err
	}

	procOpts := r.opts.Processing
	if p.cfg.Pipeline.FailOnProcessingError {
		procOpts.FailOnError = true
	}
	var outcome processing.Outcome
	if err := p.runStage(ctx, StageProcess, func(ctx context.Context) error {
		out, err := p.router.Process(ctx, processing.Request{
			JobID:        id,
			SourcePath:   r.tempPath,
			OriginalName: info.Name,
			MimeType:     info.Type,
			Options:      procOpts,
		})
		if err != nil {
			return err
		}
		outcome = out
		r.artifacts = out.Artifacts
		return nil
	}); err != nil {
		return nil, err
	}
	if err := p.progress(ctx, r, jobs.ProgressProcessed, func(j *jobs.Job) {
		j.ProcessedFiles = outcome.Artifacts
		j.ProcessingFailures = outcome.Failures
	}); err != nil {
		return nil, err
	}

	var meta *storage.Metadata
	if err := p.runStage(ctx, StageFinalize, func(ctx context.Context) error {
		dst, m, err := p.layout.Finalize(ctx, id, r.tempPath, info, len(outcome.Artifacts))
		if dst != "" {
			r.finalPath = dst
		}
		if err != nil {
			return err
		}
		meta = m
		return nil
	}); err != nil {
		return nil, err
	}
	if err := p.progress(ctx, r, jobs.ProgressFinalized, func(j *jobs.Job) {
		j.TempPath = ""
		j.FinalPath = r.finalPath
	}); err != nil {
		return nil, err
	}

	done, err := p.registry.Complete(ctx, id, r.finalPath, meta)
	if err != nil {
		return nil, err
	}
	return &UploadResult{
		Success:  true,
		UploadID: id,
		File: StoredFile{
			Path:     done.FinalPath,
			URL:      p.layout.URL(done.FinalPath),
			Hash:     done.FileHash,
			Metadata: done.Metadata,
		},
		Processed: outcome.Artifacts,
		Failures:  outcome.Failures,
	}, nil
}

func (p *Processor) progress(ctx context.Context, r *uploadRun, percent int, fn func(*jobs.Job)) error {
	if err := services.FromContext(ctx, "progress"); err != nil {
		return err
	}
	job, err := p.registry.Progress(ctx, r.job.ID, percent, fn)
	if err != nil {
		return err
	}
	if p.sampler.ShouldLog(job.ID, job.Progress, string(job.Status)) {
		r.logger.Debug("upload progress",
			logging.Int("progress", job.Progress),
			logging.String("status", string(job.Status)),
			logging.String(logging.FieldEventType, "upload_progress"),
		)
	}
	return nil
}

// runStage applies the stage deadline and retry policy around op and maps
// context expiry onto cancelled or timeout errors.
func (p *Processor) runStage(ctx context.Context, name string, op func(context.Context) error) error {
	if err := services.FromContext(ctx, name); err != nil {
		return err
	}
	stageCtx := services.WithStage(ctx, name)
	if timeout := p.cfg.StageTimeout(name); timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(stageCtx, timeout)
		defer cancel()
	}
	logger := logging.WithContext(stageCtx, p.logger)
	logger.Debug("stage started", logging.String(logging.FieldEventType, "stage_start"))
	start := time.Now()

	baseDelay, maxDelay := p.cfg.RetryDelays()
	policy := retry.Policy{
		Attempts:  p.cfg.StageRetryAttempts(name),
		BaseDelay: baseDelay,
		MaxDelay:  maxDelay,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logger.Warn("stage attempt failed; retrying",
				logging.Int("attempt", attempt),
				logging.Duration("backoff", delay),
				logging.Error(err),
				logging.String(logging.FieldEventType, "stage_retry"),
				logging.String(logging.FieldErrorHint, "transient io failure; will retry"),
			)
		},
	}
	err := retry.Do(stageCtx, policy, op)
	if err != nil {
		if ctxErr := services.FromContext(stageCtx, name); ctxErr != nil && !isContextTagged(err) {
			err = ctxErr
		}
		return err
	}
	logger.Debug("stage completed",
		logging.Duration("duration", time.Since(start)),
		logging.String(logging.FieldEventType, "stage_complete"),
	)
	return nil
}

func isContextTagged(err error) bool {
	return errors.Is(err, services.ErrCancelled) || errors.Is(err, services.ErrTimeout)
}

// fail removes every file the upload created, records the failure, and
// returns the classified error.
func (p *Processor) fail(ctx context.Context, r *uploadRun, cause error) error {
	// Bookkeeping must still run when ctx is what failed the upload.
	cleanupCtx := context.WithoutCancel(ctx)
	if services.KindOf(cause) == services.KindUnknown {
		if ctxErr := services.FromContext(ctx, "pipeline"); ctxErr != nil {
			cause = ctxErr
		}
	}

	removed := 0
	for _, artifact := range r.artifacts {
		if ok, _ := fileutil.RemoveIfExists(artifact.Path); ok {
			removed++
		}
	}
	for _, path := range []string{r.tempPath, r.finalPath} {
		if path == "" {
			continue
		}
		if ok, _ := fileutil.RemoveIfExists(path); ok {
			removed++
		}
	}
	if err := p.stager.Remove(r.job.ID); err != nil {
		r.logger.Warn("temp cleanup failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "cleanup_failed"),
			logging.String(logging.FieldErrorHint, "run parcel clean to reclaim temp space"),
		)
	}

	kind := services.KindOf(cause)
	r.logger.Error("upload failed",
		logging.String(logging.FieldErrorKind, string(kind)),
		logging.Int("files_removed", removed),
		logging.Error(cause),
		logging.String(logging.FieldEventType, "upload_failed"),
	)
	p.sampler.Forget(r.job.ID)

	if _, err := p.registry.Fail(cleanupCtx, r.job.ID, cause); err != nil {
		r.logger.Error("failed to persist upload failure", logging.Error(err))
	}
	return cause
}
