// Package validation enforces intake limits on an upload before any bytes
// touch the disk.
package validation

import (
	"context"
	"fmt"
	"strings"

	"parcel/internal/services"
)

const stageName = "validate"

// Verdict is the answer a caller-supplied predicate gives.
type Verdict struct {
	Valid  bool
	Reason string
}

// Predicate is an optional caller check run after the built-in limits.
type Predicate func(ctx context.Context, file services.FileInfo) (Verdict, error)

// Validator checks declared size and MIME type against configured limits.
type Validator struct {
	maxSize int64
	allowed map[string]struct{}
}

// New constructs a Validator. Types are compared case-insensitively.
func New(maxSize int64, allowedTypes []string) *Validator {
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			allowed[t] = struct{}{}
		}
	}
	return &Validator{maxSize: maxSize, allowed: allowed}
}

// MaxSize reports the configured size ceiling in bytes.
func (v *Validator) MaxSize() int64 { return v.maxSize }

// Validate runs size, type, and predicate checks in that order and stops at the
// first failure. It performs no filesystem I/O.
func (v *Validator) Validate(ctx context.Context, file services.FileInfo, predicate Predicate) error {
	if file.Size < 0 {
		return services.Wrap(services.ErrValidation, stageName, "size", "declared size is negative", nil)
	}
	if v.maxSize > 0 && file.Size > v.maxSize {
		return services.Wrap(services.ErrValidation, stageName, "size",
			fmt.Sprintf("file size %d exceeds maximum of %d bytes", file.Size, v.maxSize), nil)
	}
	mimeType := normalizeType(file.Type)
	if _, ok := v.allowed[mimeType]; !ok {
		return services.Wrap(services.ErrValidation, stageName, "type",
			fmt.Sprintf("file type %q is not allowed", file.Type), nil)
	}
	if predicate == nil {
		return nil
	}
	if err := services.FromContext(ctx, stageName); err != nil {
		return err
	}
	verdict, err := predicate(ctx, file)
	if err != nil {
		return services.Wrap(services.ErrValidation, stageName, "custom", "custom validator failed", err)
	}
	if !verdict.Valid {
		reason := strings.TrimSpace(verdict.Reason)
		if reason == "" {
			reason = "rejected by custom validator"
		}
		return services.Wrap(services.ErrValidation, stageName, "custom", reason, nil)
	}
	return nil
}

// normalizeType drops MIME parameters such as "; charset=utf-8".
func normalizeType(mimeType string) string {
	if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
