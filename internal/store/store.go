// Package store defines the document store the two call participants share:
// documents addressed by path, each with append-only sub-collections, and
// real-time subscriptions on both.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Update when the document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrClosed is returned by every operation after the store is closed.
	ErrClosed = errors.New("store closed")
)

// Fields holds a document's top-level fields. Values are JSON-shaped.
type Fields map[string]any

// Snapshot is the state of a document at one point in time.
type Snapshot struct {
	Path   string
	Exists bool
	Fields Fields
}

// Entry is one element of an append-only sub-collection.
type Entry struct {
	ID     string
	Seq    int64
	Fields Fields
}

// Unsubscribe stops a subscription. Deliveries already in progress may
// complete; no new ones start. Safe to call more than once.
type Unsubscribe func()

// Store is the shared document store.
type Store interface {
	// Set creates or replaces every field of the document at path.
	Set(ctx context.Context, path string, fields Fields) error
	// Update merges fields into an existing document. It fails with
	// ErrNotFound if the document does not exist.
	Update(ctx context.Context, path string, fields Fields) error
	// Get reads the document at path. A missing document is not an error.
	Get(ctx context.Context, path string) (Snapshot, error)
	// Delete removes the document and its sub-collections.
	Delete(ctx context.Context, path string) error
	// Watch delivers the current state of the document, then every change,
	// in order, until unsubscribed.
	Watch(ctx context.Context, path string, fn func(Snapshot)) (Unsubscribe, error)
	// Append adds an entry to the collection under path (empty path for a
	// root collection) and returns its ID.
	Append(ctx context.Context, path, collection string, fields Fields) (string, error)
	// WatchAppends delivers every entry of the collection exactly once in
	// append order: first those already present, then each new one.
	WatchAppends(ctx context.Context, path, collection string, fn func(Entry)) (Unsubscribe, error)
}

// Normalize converts fields to their JSON shape so every backend stores and
// returns identical values. The result shares nothing with the input.
func Normalize(fields Fields) (Fields, error) {
	if fields == nil {
		return Fields{}, nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("normalize fields: %w", err)
	}
	var out Fields
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalize fields: %w", err)
	}
	return out, nil
}

// Clone returns a deep copy of normalized fields.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case Fields:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

func checkPath(path string) error {
	if path == "" {
		return fmt.Errorf("document path is empty")
	}
	return nil
}

func checkCollection(collection string) error {
	if collection == "" {
		return fmt.Errorf("collection name is empty")
	}
	return nil
}

func collectionKey(path, collection string) string {
	return path + "#" + collection
}
