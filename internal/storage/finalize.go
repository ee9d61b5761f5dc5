package storage

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"parcel/internal/fileutil"
	"parcel/internal/services"
)

const stageName = "finalize"

// Stats is the on-disk stat snapshot of a finalized file.
type Stats struct {
	Size     int64     `json:"size"`
	Mode     string    `json:"mode"`
	Modified time.Time `json:"modified"`
}

// Metadata is the record built when an upload is finalized.
type Metadata struct {
	OriginalName   string    `json:"originalName"`
	Size           int64     `json:"size"`
	Type           string    `json:"type"`
	LastModified   time.Time `json:"lastModified"`
	UploadedAt     time.Time `json:"uploadedAt"`
	ProcessedCount int       `json:"processedCount"`
	Stats          Stats     `json:"stats"`
}

// Fields renders the metadata as a generic map for manifest merging.
func (m *Metadata) Fields() map[string]any {
	if m == nil {
		return nil
	}
	return map[string]any{
		"originalName":   m.OriginalName,
		"size":           m.Size,
		"type":           m.Type,
		"lastModified":   m.LastModified.UTC().Format(time.RFC3339),
		"uploadedAt":     m.UploadedAt.UTC().Format(time.RFC3339),
		"processedCount": m.ProcessedCount,
		"stats": map[string]any{
			"size":     m.Stats.Size,
			"mode":     m.Stats.Mode,
			"modified": m.Stats.Modified.UTC().Format(time.RFC3339),
		},
	}
}

// Finalize moves the staged file into content storage under
// {jobID}_{sanitized name}, removes the now-empty per-job temp directory,
// and builds the metadata record.
func (l *Layout) Finalize(ctx context.Context, jobID, tempPath string, file services.FileInfo, processedCount int) (string, *Metadata, error) {
	if err := services.FromContext(ctx, stageName); err != nil {
		return "", nil, err
	}
	if tempPath == "" {
		return "", nil, services.Wrap(services.ErrIO, stageName, "move", "no staged file", nil)
	}

	dst := l.FinalPath(jobID, file.Name)
	if err := fileutil.Move(ctx, tempPath, dst); err != nil {
		if ctxErr := services.FromContext(ctx, stageName); ctxErr != nil {
			return "", nil, ctxErr
		}
		return "", nil, services.Wrap(services.ErrIO, stageName, "move", dst, err)
	}
	// Only succeeds when the job directory is empty.
	_ = os.Remove(filepath.Dir(tempPath))

	info, err := os.Stat(dst)
	if err != nil {
		return dst, nil, services.Wrap(services.ErrIO, stageName, "stat", dst, err)
	}
	meta := &Metadata{
		OriginalName:   file.Name,
		Size:           file.Size,
		Type:           file.Type,
		LastModified:   file.LastModified,
		UploadedAt:     time.Now().UTC(),
		ProcessedCount: processedCount,
		Stats: Stats{
			Size:     info.Size(),
			Mode:     info.Mode().String(),
			Modified: info.ModTime().UTC(),
		},
	}
	return dst, meta, nil
}
