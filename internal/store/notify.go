package store

import (
	"context"
	"sync"

	"github.com/1ureka/telecall/internal/util"
)

// subscription delivers values to fn on its own goroutine, in push order.
type subscription[T any] struct {
	box    *util.Mailbox[T]
	cancel context.CancelFunc
	once   sync.Once
}

func newSubscription[T any](fn func(T)) *subscription[T] {
	ctx, cancel := context.WithCancel(context.Background())
	s := &subscription[T]{box: util.NewMailbox[T](), cancel: cancel}
	go func() {
		for {
			v, ok := s.box.Pop(ctx)
			if !ok {
				return
			}
			fn(v)
		}
	}()
	return s
}

func (s *subscription[T]) push(v T) { s.box.Push(v) }

func (s *subscription[T]) stop() {
	s.once.Do(func() {
		s.cancel()
		s.box.Close()
	})
}

// notifier is the subscriber registry shared by the backends. Callers hold
// their own write lock around mutation + publish so every subscriber sees
// changes in commit order.
type notifier struct {
	mu      sync.Mutex
	docs    map[string]map[*subscription[Snapshot]]struct{}
	entries map[string]map[*subscription[Entry]]struct{}
}

func newNotifier() *notifier {
	return &notifier{
		docs:    make(map[string]map[*subscription[Snapshot]]struct{}),
		entries: make(map[string]map[*subscription[Entry]]struct{}),
	}
}

func (n *notifier) watchDoc(path string, fn func(Snapshot)) (*subscription[Snapshot], Unsubscribe) {
	sub := newSubscription(fn)

	n.mu.Lock()
	if n.docs[path] == nil {
		n.docs[path] = make(map[*subscription[Snapshot]]struct{})
	}
	n.docs[path][sub] = struct{}{}
	n.mu.Unlock()

	return sub, func() {
		n.mu.Lock()
		delete(n.docs[path], sub)
		if len(n.docs[path]) == 0 {
			delete(n.docs, path)
		}
		n.mu.Unlock()
		sub.stop()
	}
}

func (n *notifier) watchEntries(key string, fn func(Entry)) (*subscription[Entry], Unsubscribe) {
	sub := newSubscription(fn)

	n.mu.Lock()
	if n.entries[key] == nil {
		n.entries[key] = make(map[*subscription[Entry]]struct{})
	}
	n.entries[key][sub] = struct{}{}
	n.mu.Unlock()

	return sub, func() {
		n.mu.Lock()
		delete(n.entries[key], sub)
		if len(n.entries[key]) == 0 {
			delete(n.entries, key)
		}
		n.mu.Unlock()
		sub.stop()
	}
}

func (n *notifier) publishDoc(snap Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.docs[snap.Path] {
		sub.push(Snapshot{Path: snap.Path, Exists: snap.Exists, Fields: snap.Fields.Clone()})
	}
}

func (n *notifier) publishEntry(key string, e Entry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.entries[key] {
		sub.push(Entry{ID: e.ID, Seq: e.Seq, Fields: e.Fields.Clone()})
	}
}

// close stops every subscription.
func (n *notifier) close() {
	n.mu.Lock()
	docs, entries := n.docs, n.entries
	n.docs = make(map[string]map[*subscription[Snapshot]]struct{})
	n.entries = make(map[string]map[*subscription[Entry]]struct{})
	n.mu.Unlock()

	for _, subs := range docs {
		for sub := range subs {
			sub.stop()
		}
	}
	for _, subs := range entries {
		for sub := range subs {
			sub.stop()
		}
	}
}
