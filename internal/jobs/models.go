package jobs

import (
	"time"

	"parcel/internal/processing"
	"parcel/internal/services"
	"parcel/internal/storage"
)

// Status represents the lifecycle of an upload job.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Progress milestones reported as the pipeline advances.
const (
	ProgressStaged    = 25
	ProgressScanned   = 40
	ProgressHashed    = 50
	ProgressProcessed = 75
	ProgressFinalized = 90
	ProgressDone      = 100
)

var statusRank = map[Status]int{
	StatusUploading:  0,
	StatusProcessing: 1,
	StatusCompleted:  2,
	StatusFailed:     2,
}

// IsTerminal reports whether no further mutation is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsActive reports whether the job is still in flight.
func (s Status) IsActive() bool {
	return s == StatusUploading || s == StatusProcessing
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// ParseStatus converts a string into a Status.
func ParseStatus(value string) (Status, bool) {
	status := Status(value)
	return status, status.Valid()
}

// Job is one tracked upload.
type Job struct {
	ID                 string                       `json:"id"`
	Status             Status                       `json:"status"`
	File               services.FileInfo            `json:"file"`
	OwnerID            string                       `json:"ownerId,omitempty"`
	BatchID            string                       `json:"batchId,omitempty"`
	Progress           int                          `json:"progress"`
	TempPath           string                       `json:"tempPath,omitempty"`
	FinalPath          string                       `json:"finalPath,omitempty"`
	FileHash           string                       `json:"fileHash,omitempty"`
	ProcessedFiles     []processing.Artifact        `json:"processedFiles,omitempty"`
	ProcessingFailures []processing.ArtifactFailure `json:"processingFailures,omitempty"`
	Metadata           *storage.Metadata            `json:"metadata,omitempty"`
	Error              string                       `json:"error,omitempty"`
	ErrorKind          services.ErrorKind           `json:"errorKind,omitempty"`
	StartedAt          time.Time                    `json:"startedAt"`
	CompletedAt        time.Time                    `json:"completedAt,omitzero"`
	UpdatedAt          time.Time                    `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share mutable state with the
// registry.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	clone := *j
	if j.ProcessedFiles != nil {
		clone.ProcessedFiles = append([]processing.Artifact(nil), j.ProcessedFiles...)
	}
	if j.ProcessingFailures != nil {
		clone.ProcessingFailures = append([]processing.ArtifactFailure(nil), j.ProcessingFailures...)
	}
	if j.Metadata != nil {
		meta := *j.Metadata
		clone.Metadata = &meta
	}
	return &clone
}

// OwnedPaths lists every file the job may have created on disk.
func (j *Job) OwnedPaths() []string {
	paths := make([]string, 0, 2+2*len(j.ProcessedFiles))
	if j.TempPath != "" {
		paths = append(paths, j.TempPath)
	}
	if j.FinalPath != "" {
		paths = append(paths, j.FinalPath)
	}
	for _, artifact := range j.ProcessedFiles {
		if artifact.Path != "" {
			paths = append(paths, artifact.Path)
		}
		if artifact.TextPath != "" && artifact.TextPath != artifact.Path {
			paths = append(paths, artifact.TextPath)
		}
	}
	return paths
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// Page is a listing result.
type Page struct {
	Jobs       []*Job     `json:"uploads"`
	Pagination Pagination `json:"pagination"`
}
