package store

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Store. It backs tests and single-host demos, and
// is the default backend of the signaling server.
type Memory struct {
	mu      sync.Mutex
	docs    map[string]Fields
	entries map[string][]Entry
	seq     int64
	closed  bool

	notify *notifier
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		docs:    make(map[string]Fields),
		entries: make(map[string][]Entry),
		notify:  newNotifier(),
	}
}

func (m *Memory) Set(ctx context.Context, path string, fields Fields) error {
	if err := checkPath(path); err != nil {
		return err
	}
	norm, err := Normalize(fields)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return err
	}

	m.docs[path] = norm
	m.notify.publishDoc(Snapshot{Path: path, Exists: true, Fields: norm})
	return nil
}

func (m *Memory) Update(ctx context.Context, path string, fields Fields) error {
	if err := checkPath(path); err != nil {
		return err
	}
	norm, err := Normalize(fields)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return err
	}

	doc, ok := m.docs[path]
	if !ok {
		return ErrNotFound
	}
	merged := doc.Clone()
	for k, v := range norm {
		merged[k] = v
	}
	m.docs[path] = merged
	m.notify.publishDoc(Snapshot{Path: path, Exists: true, Fields: merged})
	return nil
}

func (m *Memory) Get(ctx context.Context, path string) (Snapshot, error) {
	if err := checkPath(path); err != nil {
		return Snapshot{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return Snapshot{}, err
	}
	return m.snapshot(path), nil
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	if err := checkPath(path); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return err
	}

	_, existed := m.docs[path]
	delete(m.docs, path)
	for key := range m.entries {
		if strings.HasPrefix(key, path+"#") {
			delete(m.entries, key)
		}
	}
	if existed {
		m.notify.publishDoc(Snapshot{Path: path})
	}
	return nil
}

func (m *Memory) Watch(ctx context.Context, path string, fn func(Snapshot)) (Unsubscribe, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return nil, err
	}

	sub, unsub := m.notify.watchDoc(path, fn)
	sub.push(m.snapshot(path))
	return unsub, nil
}

func (m *Memory) Append(ctx context.Context, path, collection string, fields Fields) (string, error) {
	if err := checkCollection(collection); err != nil {
		return "", err
	}
	norm, err := Normalize(fields)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return "", err
	}

	m.seq++
	e := Entry{ID: uuid.NewString(), Seq: m.seq, Fields: norm}
	key := collectionKey(path, collection)
	m.entries[key] = append(m.entries[key], e)
	m.notify.publishEntry(key, e)
	return e.ID, nil
}

func (m *Memory) WatchAppends(ctx context.Context, path, collection string, fn func(Entry)) (Unsubscribe, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return nil, err
	}

	key := collectionKey(path, collection)
	sub, unsub := m.notify.watchEntries(key, fn)
	for _, e := range m.entries[key] {
		sub.push(Entry{ID: e.ID, Seq: e.Seq, Fields: e.Fields.Clone()})
	}
	return unsub, nil
}

// Close stops every subscription; later operations fail with ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.notify.close()
	return nil
}

// snapshot must be called with m.mu held.
func (m *Memory) snapshot(path string) Snapshot {
	doc, ok := m.docs[path]
	if !ok {
		return Snapshot{Path: path}
	}
	return Snapshot{Path: path, Exists: true, Fields: doc.Clone()}
}

func (m *Memory) usable(ctx context.Context) error {
	if m.closed {
		return ErrClosed
	}
	return ctx.Err()
}
