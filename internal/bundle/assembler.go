package bundle

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"parcel/internal/config"
	"parcel/internal/events"
	"parcel/internal/fileutil"
	"parcel/internal/hashing"
	"parcel/internal/jobs"
	"parcel/internal/logging"
	"parcel/internal/services"
	"parcel/internal/storage"
)

const stageName = "bundle"

// JobSource resolves job ids. jobs.Registry satisfies it.
type JobSource interface {
	Get(ctx context.Context, id string) (*jobs.Job, error)
}

// Ref selects one job for a bundle. Metadata is merged over the job's own
// metadata in the manifest entry.
type Ref struct {
	JobID    string         `json:"jobId"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Options describe the bundle being built.
type Options struct {
	Name           string
	Description    string
	IncludeReadme  bool
	IncludeLicense bool
	// License is the short license name printed in the README.
	License string
	// LicenseText replaces the default LICENSE.txt body.
	LicenseText string
}

// Result is returned for a successfully written bundle.
type Result struct {
	BundleID    string   `json:"bundleId"`
	Path        string   `json:"path"`
	URL         string   `json:"url"`
	Size        int64    `json:"size"`
	Hash        string   `json:"hash"`
	Metadata    Manifest `json:"metadata"`
	DownloadURL string   `json:"downloadUrl"`
}

// Assembler builds bundles from finalized jobs.
type Assembler struct {
	source   JobSource
	layout   *storage.Layout
	defaults config.Bundle
	bus      *events.Bus
	logger   *slog.Logger
	now      func() time.Time
}

// NewAssembler constructs an Assembler writing under layout's bundles dir.
func NewAssembler(source JobSource, layout *storage.Layout, defaults config.Bundle, bus *events.Bus, logger *slog.Logger) *Assembler {
	return &Assembler{
		source:   source,
		layout:   layout,
		defaults: defaults,
		bus:      bus,
		logger:   logging.NewComponentLogger(logger, "bundle"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create assembles refs into {bundles}/{id}.zip. Manifest entries follow the
// order of refs.
func (a *Assembler) Create(ctx context.Context, refs []Ref, opts Options) (*Result, error) {
	bundleID := uuid.NewString()
	logger := a.logger.With(logging.String(logging.FieldBundleID, bundleID))
	logger.Info("bundle started",
		logging.Int("refs", len(refs)),
		logging.String(logging.FieldEventType, "bundle_start"),
	)

	result, err := a.create(ctx, bundleID, refs, opts, logger)
	if err != nil {
		_, _ = fileutil.RemoveIfExists(a.layout.BundlePath(bundleID))
		switch services.KindOf(err) {
		case services.KindBundle, services.KindCancelled, services.KindTimeout:
		default:
			err = services.Wrap(services.ErrBundle, stageName, "create", bundleID, err)
		}
		logger.Error("bundle failed",
			logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
			logging.Error(err),
			logging.String(logging.FieldEventType, "bundle_failed"),
		)
		a.bus.Publish(events.Event{Type: events.BundleFailed, Subject: bundleID, Error: err.Error()})
		return nil, err
	}

	logger.Info("bundle created",
		logging.Int("files", len(result.Metadata.Files)),
		logging.Int64("size_bytes", result.Size),
		logging.String("hash", result.Hash),
		logging.String(logging.FieldEventType, "bundle_created"),
	)
	a.bus.Publish(events.Event{Type: events.BundleCreated, Subject: bundleID, Payload: *result})
	return result, nil
}

func (a *Assembler) create(ctx context.Context, bundleID string, refs []Ref, opts Options, logger *slog.Logger) (*Result, error) {
	manifest := Manifest{
		ID:          bundleID,
		Name:        opts.Name,
		Description: opts.Description,
		CreatedAt:   a.now(),
		Files:       []ManifestEntry{},
	}
	used := map[string]struct{}{
		readmeName:   {},
		licenseName:  {},
		manifestName: {},
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, ref := range refs {
		if err := services.FromContext(ctx, stageName); err != nil {
			return nil, err
		}
		job, err := a.source.Get(ctx, ref.JobID)
		if err != nil {
			return nil, err
		}
		if job == nil || job.FinalPath == "" {
			logger.Debug("skipping job without final file", logging.String(logging.FieldJobID, ref.JobID))
			continue
		}
		name := uniqueName(fileutil.SanitizeName(job.File.Name), used)
		added, err := addFile(ctx, zw, name, job.FinalPath, manifest.CreatedAt)
		if err != nil {
			return nil, err
		}
		if !added {
			delete(used, name)
			logger.Debug("skipping job with missing final file",
				logging.String(logging.FieldJobID, ref.JobID),
				logging.String("final_path", job.FinalPath),
			)
			continue
		}

		meta := job.Metadata.Fields()
		if meta == nil && len(ref.Metadata) > 0 {
			meta = make(map[string]any, len(ref.Metadata))
		}
		maps.Copy(meta, ref.Metadata)
		manifest.Files = append(manifest.Files, ManifestEntry{
			Name:         name,
			OriginalName: job.File.Name,
			Size:         job.File.Size,
			Type:         job.File.Type,
			Hash:         job.FileHash,
			Metadata:     meta,
		})
	}

	license := opts.License
	if license == "" {
		license = a.defaults.DefaultLicense
	}
	if opts.IncludeReadme {
		if err := addBytes(zw, readmeName, []byte(renderReadme(manifest, license)), manifest.CreatedAt); err != nil {
			return nil, err
		}
	}
	if opts.IncludeLicense {
		text := opts.LicenseText
		if text == "" {
			text = a.defaults.DefaultLicenseText
		}
		if err := addBytes(zw, licenseName, []byte(renderLicense(text, manifest.CreatedAt)), manifest.CreatedAt); err != nil {
			return nil, err
		}
	}
	manifestJSON, err := encodeManifest(manifest)
	if err != nil {
		return nil, err
	}
	if err := addBytes(zw, manifestName, manifestJSON, manifest.CreatedAt); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, services.Wrap(services.ErrBundle, stageName, "zip", "close archive", err)
	}

	path := a.layout.BundlePath(bundleID)
	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return nil, services.Wrap(services.ErrIO, stageName, "write", path, err)
	}
	hash, err := hashing.File(ctx, path)
	if err != nil {
		return nil, err
	}

	return &Result{
		BundleID:    bundleID,
		Path:        path,
		URL:         a.layout.URL(path),
		Size:        int64(buf.Len()),
		Hash:        hash,
		Metadata:    manifest,
		DownloadURL: a.layout.DownloadURL(bundleID),
	}, nil
}

// addFile streams src into the archive. A missing src reports false.
func addFile(ctx context.Context, zw *zip.Writer, name, src string, modified time.Time) (bool, error) {
	f, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, services.Wrap(services.ErrIO, stageName, "open", src, err)
	}
	defer f.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return false, services.Wrap(services.ErrBundle, stageName, "zip", name, err)
	}
	if _, err := io.Copy(w, fileutil.Reader(ctx, f)); err != nil {
		if ctxErr := services.FromContext(ctx, stageName); ctxErr != nil {
			return false, ctxErr
		}
		return false, services.Wrap(services.ErrIO, stageName, "read", src, err)
	}
	return true, nil
}

func addBytes(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return services.Wrap(services.ErrBundle, stageName, "zip", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return services.Wrap(services.ErrBundle, stageName, "zip", name, err)
	}
	return nil
}

// writeAtomic writes data to a temp file beside path and renames it into
// place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".bundle-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
