package staging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"parcel/internal/fileutil"
	"parcel/internal/services"
)

const stageName = "stage"

// Opener returns a fresh reader over the upload payload. It may be called more
// than once when a stage is retried.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// Stager writes upload payloads into per-job temp directories.
type Stager struct {
	tempDir string
}

// NewStager constructs a Stager rooted at tempDir.
func NewStager(tempDir string) *Stager {
	return &Stager{tempDir: tempDir}
}

// Root returns the temp root.
func (s *Stager) Root() string { return s.tempDir }

// JobDir returns the directory owned by jobID.
func (s *Stager) JobDir(jobID string) string {
	return filepath.Join(s.tempDir, jobID)
}

// Path returns where Stage writes the payload for jobID and name.
func (s *Stager) Path(jobID, name string) string {
	return filepath.Join(s.JobDir(jobID), fileutil.SanitizeName(name))
}

// Stage copies the payload to {temp}/{jobID}/{sanitized name} and verifies the
// written byte count against the declared size. Partial output is removed on
// any failure.
func (s *Stager) Stage(ctx context.Context, jobID string, file services.FileInfo, open Opener) (string, error) {
	if open == nil {
		return "", services.Wrap(services.ErrIO, stageName, "open", "no payload source", nil)
	}
	if err := services.FromContext(ctx, stageName); err != nil {
		return "", err
	}

	dir := s.JobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrIO, stageName, "mkdir", dir, err)
	}
	dst := s.Path(jobID, file.Name)

	src, err := open(ctx)
	if err != nil {
		return "", services.Wrap(services.ErrIO, stageName, "open", "read payload", err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", services.Wrap(services.ErrIO, stageName, "create", dst, err)
	}

	// One byte past the declared size is enough to detect an oversized payload.
	limited := io.LimitReader(fileutil.Reader(ctx, src), file.Size+1)
	written, copyErr := io.Copy(out, limited)
	closeErr := out.Close()

	switch {
	case copyErr != nil:
		_ = os.Remove(dst)
		if ctxErr := services.FromContext(ctx, stageName); ctxErr != nil {
			return "", ctxErr
		}
		return "", services.Wrap(services.ErrIO, stageName, "write", dst, copyErr)
	case closeErr != nil:
		_ = os.Remove(dst)
		return "", services.Wrap(services.ErrIO, stageName, "close", dst, closeErr)
	case written != file.Size:
		_ = os.Remove(dst)
		return "", services.Wrap(services.ErrValidation, stageName, "size",
			fmt.Sprintf("payload size does not match declared size %d", file.Size), nil)
	}
	return dst, nil
}

// Remove deletes the job's temp directory and everything in it.
func (s *Stager) Remove(jobID string) error {
	if jobID == "" {
		return nil
	}
	if err := os.RemoveAll(s.JobDir(jobID)); err != nil {
		return services.Wrap(services.ErrIO, stageName, "cleanup", jobID, err)
	}
	return nil
}
