package jobs

import (
	"context"
	"sync"
)

// ListFilter selects jobs for Store.List. Zero values match everything; a
// zero Limit returns every match after Offset.
type ListFilter struct {
	OwnerID  string
	BatchID  string
	Statuses []Status
	Offset   int
	Limit    int
}

func (f ListFilter) matches(job *Job) bool {
	if f.OwnerID != "" && job.OwnerID != f.OwnerID {
		return false
	}
	if f.BatchID != "" && job.BatchID != f.BatchID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, status := range f.Statuses {
		if job.Status == status {
			return true
		}
	}
	return false
}

// Store persists jobs. Implementations return copies, keep insertion order
// for List, and return (nil, nil) from Get for unknown IDs.
type Store interface {
	Get(ctx context.Context, id string) (*Job, error)
	Put(ctx context.Context, job *Job) error
	// List returns the requested page and the total number of matches.
	List(ctx context.Context, filter ListFilter) ([]*Job, int, error)
	Delete(ctx context.Context, id string) (bool, error)
	Close() error
}

// MemoryStore keeps jobs in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id].Clone(), nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, job *Job) error {
	if job == nil || job.ID == "" {
		return ErrInvalidTransition
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		m.order = append(m.order, job.ID)
	}
	m.jobs[job.ID] = job.Clone()
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, filter ListFilter) ([]*Job, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*Job
	for _, id := range m.order {
		if job := m.jobs[id]; filter.matches(job) {
			matched = append(matched, job)
		}
	}
	total := len(matched)
	start := min(max(filter.Offset, 0), total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	out := make([]*Job, 0, end-start)
	for _, job := range matched[start:end] {
		out = append(out, job.Clone())
	}
	return out, total, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return false, nil
	}
	delete(m.jobs, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
