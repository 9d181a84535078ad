package util

import (
	"context"
	"sync"
)

// Mailbox is an unbounded FIFO queue with a single consumer. Producers never
// block, so it can be fed from callbacks that run on goroutines the consumer
// may itself be waiting on.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
	closed bool
}

// NewMailbox creates an empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{signal: make(chan struct{}, 1)}
}

// Push appends v. It reports false if the mailbox is closed.
func (m *Mailbox[T]) Push(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, v)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// Pop blocks until an item is available, the mailbox is closed, or ctx is
// cancelled. ok is false in the latter two cases; items still queued at
// close are dropped.
func (m *Mailbox[T]) Pop(ctx context.Context) (v T, ok bool) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return v, false
		}
		if len(m.items) > 0 {
			v = m.items[0]
			var zero T
			m.items[0] = zero
			m.items = m.items[1:]
			m.mu.Unlock()
			return v, true
		}
		m.mu.Unlock()

		select {
		case <-m.signal:
		case <-ctx.Done():
			return v, false
		}
	}
}

// Close wakes the consumer and rejects further pushes. Safe to call more than once.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.items = nil
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// Len returns the number of queued items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
