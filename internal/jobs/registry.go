package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"parcel/internal/events"
	"parcel/internal/fileutil"
	"parcel/internal/logging"
	"parcel/internal/services"
	"parcel/internal/storage"
)

// Default listing window.
const (
	DefaultPage  = 1
	DefaultLimit = 20
)

// Registry is the single writer for job state. All mutations go through it so
// lifecycle rules hold and every transition is announced on the bus.
type Registry struct {
	store    Store
	bus      *events.Bus
	logger   *slog.Logger
	tempRoot string
	now      func() time.Time

	// mu serializes read-modify-write cycles against the store.
	mu sync.Mutex
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithTempRoot lets Delete remove the per-job temp directory {root}/{id}.
func WithTempRoot(root string) RegistryOption {
	return func(r *Registry) { r.tempRoot = root }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry constructs a Registry over store. A nil bus disables events.
func NewRegistry(store Store, bus *events.Bus, logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:  store,
		bus:    bus,
		logger: logging.NewComponentLogger(logger, "jobs"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store exposes the underlying store.
func (r *Registry) Store() Store { return r.store }

// Create registers a new job in the uploading state and emits upload:started.
func (r *Registry) Create(ctx context.Context, file services.FileInfo, ownerID, batchID string) (*Job, error) {
	now := r.now()
	job := &Job{
		ID:        uuid.NewString(),
		Status:    StatusUploading,
		File:      file,
		OwnerID:   ownerID,
		BatchID:   batchID,
		StartedAt: now,
		UpdatedAt: now,
	}
	r.mu.Lock()
	err := r.store.Put(ctx, job)
	r.mu.Unlock()
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "intake", "create job", "", err)
	}
	r.publish(events.UploadStarted, job)
	return job.Clone(), nil
}

// Update applies fn to a copy of the job and persists it when the result
// respects the lifecycle rules. No event is published.
func (r *Registry) Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(ctx, id, fn)
}

func (r *Registry) updateLocked(ctx context.Context, id string, fn func(*Job) error) (*Job, error) {
	current, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "jobs", "load", id, err)
	}
	if current == nil {
		return nil, services.Wrap(services.ErrNotFound, "jobs", "load", "job "+id, nil)
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := checkMutation(current, next); err != nil {
		return nil, err
	}
	next.UpdatedAt = r.now()
	if err := r.store.Put(ctx, next); err != nil {
		return nil, services.Wrap(services.ErrIO, "jobs", "save", id, err)
	}
	return next.Clone(), nil
}

// Progress raises the job's progress, applying fn first when non-nil, and
// emits upload:progress.
func (r *Registry) Progress(ctx context.Context, id string, percent int, fn func(*Job)) (*Job, error) {
	job, err := r.Update(ctx, id, func(j *Job) error {
		if fn != nil {
			fn(j)
		}
		j.Progress = percent
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.publish(events.UploadProgress, job)
	return job, nil
}

// MarkProcessing moves an uploading job to processing.
func (r *Registry) MarkProcessing(ctx context.Context, id string) (*Job, error) {
	return r.Update(ctx, id, func(j *Job) error {
		if j.Status != StatusUploading {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusProcessing)
		}
		j.Status = StatusProcessing
		return nil
	})
}

// Complete finalizes a processing job and emits upload:completed.
func (r *Registry) Complete(ctx context.Context, id, finalPath string, meta *storage.Metadata) (*Job, error) {
	job, err := r.Update(ctx, id, func(j *Job) error {
		j.Status = StatusCompleted
		j.Progress = ProgressDone
		j.TempPath = ""
		j.FinalPath = finalPath
		j.Metadata = meta
		j.Error = ""
		j.ErrorKind = ""
		j.CompletedAt = r.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.publish(events.UploadCompleted, job)
	return job, nil
}

// Fail records cause on a non-terminal job and emits upload:failed.
func (r *Registry) Fail(ctx context.Context, id string, cause error) (*Job, error) {
	if cause == nil {
		cause = errors.New("unknown failure")
	}
	job, err := r.Update(ctx, id, func(j *Job) error {
		j.Status = StatusFailed
		j.Error = cause.Error()
		j.ErrorKind = services.KindOf(cause)
		j.Metadata = nil
		j.CompletedAt = r.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.publish(events.UploadFailed, job)
	return job, nil
}

// Get returns the job or nil when it does not exist.
func (r *Registry) Get(ctx context.Context, id string) (*Job, error) {
	job, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "jobs", "get", id, err)
	}
	return job, nil
}

// List pages through jobs owned by ownerID in insertion order. An empty
// owner lists every job. Page and limit default to 1 and 20.
func (r *Registry) List(ctx context.Context, ownerID string, page, limit int) (Page, error) {
	if page <= 0 {
		page = DefaultPage
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	jobs, total, err := r.store.List(ctx, ListFilter{
		OwnerID: ownerID,
		Offset:  (page - 1) * limit,
		Limit:   limit,
	})
	if err != nil {
		return Page{}, services.Wrap(services.ErrIO, "jobs", "list", "", err)
	}
	if jobs == nil {
		jobs = []*Job{}
	}
	return Page{
		Jobs: jobs,
		Pagination: Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: (total + limit - 1) / limit,
		},
	}, nil
}

// Delete removes every file the job created and then the job itself. An
// unknown id returns false without error.
func (r *Registry) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	job, err := r.store.Get(ctx, id)
	if err != nil {
		r.mu.Unlock()
		return false, services.Wrap(services.ErrIO, "jobs", "delete", id, err)
	}
	if job == nil {
		r.mu.Unlock()
		return false, nil
	}

	var firstErr error
	for _, path := range job.OwnedPaths() {
		if _, err := fileutil.RemoveIfExists(path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.tempRoot != "" {
		if err := os.RemoveAll(filepath.Join(r.tempRoot, id)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		r.mu.Unlock()
		return false, services.Wrap(services.ErrIO, "jobs", "delete", "remove files", firstErr)
	}

	removed, err := r.store.Delete(ctx, id)
	r.mu.Unlock()
	if err != nil {
		return false, services.Wrap(services.ErrIO, "jobs", "delete", id, err)
	}
	if removed {
		r.logger.Info("upload deleted",
			logging.String(logging.FieldJobID, id),
			logging.Int("files_removed", len(job.OwnedPaths())),
			logging.String(logging.FieldEventType, "upload_deleted"),
		)
		r.bus.Publish(events.Event{Type: events.UploadDeleted, Subject: id, BatchID: job.BatchID, Payload: job})
	}
	return removed, nil
}

// ActiveIDs returns the IDs of jobs still uploading or processing.
func (r *Registry) ActiveIDs(ctx context.Context) (map[string]struct{}, error) {
	return r.ids(ctx, ListFilter{Statuses: []Status{StatusUploading, StatusProcessing}})
}

// KnownIDs returns the IDs of every stored job.
func (r *Registry) KnownIDs(ctx context.Context) (map[string]struct{}, error) {
	return r.ids(ctx, ListFilter{})
}

func (r *Registry) ids(ctx context.Context, filter ListFilter) (map[string]struct{}, error) {
	jobs, _, err := r.store.List(ctx, filter)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "jobs", "list", "", err)
	}
	out := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		out[job.ID] = struct{}{}
	}
	return out, nil
}

func (r *Registry) publish(eventType events.Type, job *Job) {
	evt := events.Event{
		Type:     eventType,
		Subject:  job.ID,
		BatchID:  job.BatchID,
		Progress: job.Progress,
		Error:    job.Error,
		Payload:  job.Clone(),
	}
	r.bus.Publish(evt)
}
