package mailbox

import (
	"context"
	"sync"
)

// Mailbox is a single-slot buffer where the latest job always wins.
// It is NOT a queue. It holds at most one pending job.
// Put() overwrites any existing job. Take() blocks until a job is available
// or the context ends.
type Mailbox[T any] struct {
	mu     sync.Mutex
	job    *T
	notify chan struct{}
}

// New creates an empty mailbox.
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{notify: make(chan struct{}, 1)}
}

// Put stores a job in the mailbox, replacing any existing job.
// It never blocks. It reports whether a pending job was replaced.
func (m *Mailbox[T]) Put(j T) (replaced bool) {
	m.mu.Lock()
	replaced = m.job != nil
	m.job = &j
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return replaced
}

// Take blocks until a job is available, then returns it and clears the slot.
func (m *Mailbox[T]) Take(ctx context.Context) (T, error) {
	for {
		if j := m.TryTake(); j != nil {
			return *j, nil
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-m.notify:
		}
	}
}

// TryTake returns the job if present, or nil if empty.
// It never blocks.
func (m *Mailbox[T]) TryTake() *T {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.job == nil {
		return nil
	}

	j := m.job
	m.job = nil
	return j
}

// HasJob reports whether a job is currently waiting.
func (m *Mailbox[T]) HasJob() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.job != nil
}
