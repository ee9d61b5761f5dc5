package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrTerminal is returned when mutating a completed or failed job.
	ErrTerminal = errors.New("job is in a terminal state")
	// ErrInvalidTransition is returned for status regressions or skips.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrHashConflict is returned when a second, different hash is recorded.
	ErrHashConflict = errors.New("file hash already set")
	// ErrProgressRegression is returned when progress would decrease.
	ErrProgressRegression = errors.New("progress cannot decrease")
	// ErrStoreLocked is returned when another process holds the job store.
	ErrStoreLocked = errors.New("job store is locked by another process")
)

// checkMutation enforces the lifecycle rules between two snapshots of a job.
func checkMutation(before, after *Job) error {
	if before.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminal, before.ID, before.Status)
	}
	if after.ID != before.ID {
		return fmt.Errorf("%w: job id is immutable", ErrInvalidTransition)
	}
	if after.File != before.File {
		return fmt.Errorf("%w: file snapshot is immutable", ErrInvalidTransition)
	}
	if !after.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, after.Status)
	}
	if statusRank[after.Status] < statusRank[before.Status] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, before.Status, after.Status)
	}
	if after.Status == StatusCompleted && before.Status != StatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, before.Status, after.Status)
	}
	if before.FileHash != "" && after.FileHash != before.FileHash {
		return fmt.Errorf("%w: %s", ErrHashConflict, before.ID)
	}
	if after.Progress < before.Progress {
		return fmt.Errorf("%w: %d -> %d", ErrProgressRegression, before.Progress, after.Progress)
	}
	if after.Progress > ProgressDone {
		return fmt.Errorf("%w: progress %d out of range", ErrInvalidTransition, after.Progress)
	}
	return nil
}
