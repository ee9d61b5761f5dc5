package logging

import (
	"strings"
	"sync"
)

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when a job changes status or crosses a percentage bucket. It tracks each job
// independently so interleaved batch uploads sample correctly.
type ProgressSampler struct {
	bucketSize int

	mu   sync.Mutex
	seen map[string]progressMark
}

type progressMark struct {
	status string
	bucket int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 25%) or when the status changes.
func NewProgressSampler(bucketSize int) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 25
	}
	return &ProgressSampler{bucketSize: bucketSize, seen: make(map[string]progressMark)}
}

// ShouldLog reports whether a progress event for jobID should be logged.
func (s *ProgressSampler) ShouldLog(jobID string, percent int, status string) bool {
	if s == nil {
		return true
	}
	status = strings.TrimSpace(status)
	bucket := percent / s.bucketSize
	if percent >= 100 {
		bucket = 100 / s.bucketSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.seen[jobID]
	if !ok {
		s.seen[jobID] = progressMark{status: status, bucket: bucket}
		return true
	}
	emit := false
	if status != "" && status != last.status {
		last.status = status
		emit = true
	}
	if bucket > last.bucket {
		last.bucket = bucket
		emit = true
	}
	s.seen[jobID] = last
	return emit
}

// Forget drops state for a job once it reaches a terminal status.
func (s *ProgressSampler) Forget(jobID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.seen, jobID)
	s.mu.Unlock()
}
