// Package events is the process-wide lifecycle event bus.
//
// Publish stamps each event with a sequence number, keeps a bounded history
// for late observers, and delivers synchronously to every matching
// subscriber. Subscriptions are scoped by subject, batch, or event type and
// return an unsubscribe func so listeners never outlive their interest.
package events

import (
	"sync"
	"time"
)

// Type names a lifecycle event.
type Type string

const (
	UploadStarted   Type = "upload:started"
	UploadProgress  Type = "upload:progress"
	UploadCompleted Type = "upload:completed"
	UploadFailed    Type = "upload:failed"
	UploadDeleted   Type = "upload:deleted"
	BatchStarted    Type = "batch:started"
	BatchCompleted  Type = "batch:completed"
	BundleCreated   Type = "bundle:created"
	BundleFailed    Type = "bundle:failed"
)

// Event is one published notification. Payload is a snapshot of the relevant
// record (job, batch result, or bundle result) taken at publish time.
type Event struct {
	Sequence  uint64    `json:"seq"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"ts"`
	// Subject is the job or bundle ID the event concerns.
	Subject  string `json:"subject,omitempty"`
	BatchID  string `json:"batchId,omitempty"`
	Progress int    `json:"progress,omitempty"`
	Error    string `json:"error,omitempty"`
	Payload  any    `json:"payload,omitempty"`
}

// Handler receives delivered events. Handlers run on the publisher's
// goroutine and must not block for long.
type Handler func(Event)

// Option narrows a subscription.
type Option func(*filter)

type filter struct {
	subject string
	batchID string
	types   map[Type]struct{}
}

// ForSubject limits delivery to events about one job or bundle.
func ForSubject(id string) Option {
	return func(f *filter) { f.subject = id }
}

// ForBatch limits delivery to events tagged with batchID.
func ForBatch(batchID string) Option {
	return func(f *filter) { f.batchID = batchID }
}

// ForTypes limits delivery to the listed event types.
func ForTypes(types ...Type) Option {
	return func(f *filter) {
		if f.types == nil {
			f.types = make(map[Type]struct{}, len(types))
		}
		for _, t := range types {
			f.types[t] = struct{}{}
		}
	}
}

func (f filter) matches(evt Event) bool {
	if f.subject != "" && evt.Subject != f.subject {
		return false
	}
	if f.batchID != "" && evt.BatchID != f.batchID {
		return false
	}
	if len(f.types) > 0 {
		if _, ok := f.types[evt.Type]; !ok {
			return false
		}
	}
	return true
}

type subscription struct {
	id      uint64
	filter  filter
	handler Handler
}

// Bus fans events out to subscribers and remembers the most recent ones.
type Bus struct {
	mu       sync.Mutex
	capacity int
	buffer   []Event
	nextSeq  uint64
	nextSub  uint64
	subs     []subscription
}

// NewBus constructs a bus keeping at most capacity events of history.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 256
	}
	return &Bus{capacity: capacity}
}

// Publish stamps evt and delivers it. A nil bus discards events.
func (b *Bus) Publish(evt Event) Event {
	if b == nil {
		return evt
	}
	b.mu.Lock()
	b.nextSeq++
	evt.Sequence = b.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if len(b.buffer) == b.capacity {
		copy(b.buffer, b.buffer[1:])
		b.buffer = b.buffer[:b.capacity-1]
	}
	b.buffer = append(b.buffer, evt)
	subs := append([]subscription(nil), b.subs...)
	b.mu.Unlock()

	for _, sub := range subs {
		if sub.filter.matches(evt) {
			sub.handler(evt)
		}
	}
	return evt
}

// Subscribe registers handler for events matching every option. The returned
// func removes the subscription and is safe to call more than once.
func (b *Bus) Subscribe(handler Handler, opts ...Option) func() {
	if b == nil || handler == nil {
		return func() {}
	}
	var f filter
	for _, opt := range opts {
		opt(&f)
	}
	b.mu.Lock()
	b.nextSub++
	id := b.nextSub
	b.subs = append(b.subs, subscription{id: id, filter: f, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, sub := range b.subs {
				if sub.id == id {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Subscribers reports how many subscriptions are live.
func (b *Bus) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Recent returns up to limit of the newest buffered events, oldest first.
func (b *Bus) Recent(limit int) []Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > len(b.buffer) {
		limit = len(b.buffer)
	}
	out := make([]Event, limit)
	copy(out, b.buffer[len(b.buffer)-limit:])
	return out
}

// Since returns buffered events with a sequence greater than seq.
func (b *Bus) Since(seq uint64) []Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, evt := range b.buffer {
		if evt.Sequence > seq {
			out := make([]Event, len(b.buffer)-i)
			copy(out, b.buffer[i:])
			return out
		}
	}
	return nil
}
