// Package pipeline drives a single upload through validate, stage, scan,
// hash, process, and finalize, and fans batches of uploads out in
// concurrency-bounded waves.
//
// Every stage runs under the caller's context plus an optional per-stage
// deadline, is retried with exponential backoff when it fails with a
// transient io error, and on failure moves the job to failed after removing
// every file the job created. Progress milestones are persisted through
// jobs.Registry, which also publishes the lifecycle events observers consume.
package pipeline
