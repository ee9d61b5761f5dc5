package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrScan          = errors.New("scan rejected")
	ErrProcessing    = errors.New("processing error")
	ErrIO            = errors.New("io error")
	ErrBundle        = errors.New("bundle error")
	ErrCancelled     = errors.New("cancelled")
	ErrTimeout       = errors.New("timeout")
	ErrNotFound      = errors.New("not found")
	ErrConfiguration = errors.New("configuration error")
)

// ErrorKind classifies a failure for the job record and logs.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindScan          ErrorKind = "scan"
	KindProcessing    ErrorKind = "processing"
	KindIO            ErrorKind = "io"
	KindBundle        ErrorKind = "bundle"
	KindCancelled     ErrorKind = "cancelled"
	KindTimeout       ErrorKind = "timeout"
	KindNotFound      ErrorKind = "not_found"
	KindConfiguration ErrorKind = "configuration"
	KindUnknown       ErrorKind = "unknown"
)

var markerKinds = []struct {
	marker error
	kind   ErrorKind
}{
	{ErrCancelled, KindCancelled},
	{ErrTimeout, KindTimeout},
	{ErrValidation, KindValidation},
	{ErrScan, KindScan},
	{ErrProcessing, KindProcessing},
	{ErrBundle, KindBundle},
	{ErrNotFound, KindNotFound},
	{ErrConfiguration, KindConfiguration},
	{ErrIO, KindIO},
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf reports the classification of err. Cancellation and deadline errors
// from the context package are recognised even when untagged.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	for _, mk := range markerKinds {
		if errors.Is(err, mk.marker) {
			return mk.kind
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return KindUnknown
}

// Retryable reports whether err is a transient failure worth another attempt.
// Only io failures qualify; validation and scan verdicts are terminal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return KindOf(err) == KindIO
}

// FromContext converts a finished context into a tagged error. It returns nil
// while ctx is still live.
func FromContext(ctx context.Context, stage string) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(ErrTimeout, stage, "", "stage deadline exceeded", err)
	}
	return Wrap(ErrCancelled, stage, "", "cancelled", err)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
