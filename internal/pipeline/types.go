package pipeline

import (
	"parcel/internal/processing"
	"parcel/internal/services"
	"parcel/internal/staging"
	"parcel/internal/storage"
	"parcel/internal/validation"
)

// Stage names used for logging, timeouts, and retry overrides.
const (
	StageValidate = "validate"
	StageStage    = "stage"
	StageScan     = "scan"
	StageHash     = "hash"
	StageProcess  = "process"
	StageFinalize = "finalize"
)

// File is one upload: the declared description plus a way to read its bytes.
type File struct {
	Info services.FileInfo
	Open staging.Opener
}

// Options apply to a single upload or to every file in a batch.
type Options struct {
	OwnerID    string
	Validator  validation.Predicate
	Processing processing.Options
	// Concurrency overrides pipeline.concurrency for batches.
	Concurrency int
}

// StoredFile describes the finalized upload.
type StoredFile struct {
	Path     string            `json:"path"`
	URL      string            `json:"url"`
	Hash     string            `json:"hash"`
	Metadata *storage.Metadata `json:"metadata"`
}

// UploadResult is returned for a successful upload.
type UploadResult struct {
	Success   bool                         `json:"success"`
	UploadID  string                       `json:"uploadId"`
	File      StoredFile                   `json:"file"`
	Processed []processing.Artifact        `json:"processed"`
	Failures  []processing.ArtifactFailure `json:"processingFailures,omitempty"`
}

// BatchError records one file that failed inside a batch.
type BatchError struct {
	File     string             `json:"file"`
	UploadID string             `json:"uploadId,omitempty"`
	Error    string             `json:"error"`
	Kind     services.ErrorKind `json:"kind"`
}

// BatchResult summarizes a batch. Results and Errors keep input order.
type BatchResult struct {
	BatchID    string         `json:"batchId"`
	TotalFiles int            `json:"totalFiles"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Waves      int            `json:"waves"`
	Results    []UploadResult `json:"results"`
	Errors     []BatchError   `json:"errors"`
}
