// Package signaling exposes a document store over WebSocket so the two
// participants of a call can share one CallSession from different hosts.
package signaling

import (
	"errors"

	"github.com/1ureka/telecall/internal/store"
)

// Op identifies the kind of signaling message.
type Op string

// Requests, sent by the client. Each carries a request ID; watch requests
// carry the client-chosen subscription ID in Sub.
const (
	OpSet          Op = "set"
	OpUpdate       Op = "update"
	OpGet          Op = "get"
	OpDelete       Op = "delete"
	OpAppend       Op = "append"
	OpWatch        Op = "watch"
	OpWatchAppends Op = "watch_appends"
	OpUnwatch      Op = "unwatch"
)

// Server to client.
const (
	OpResult   Op = "result"
	OpSnapshot Op = "snapshot"
	OpEntry    Op = "entry"
)

// Error codes carried in Message.Error for errors the client maps back to
// store sentinels. Anything else is passed through as text.
const (
	codeNotFound = "not_found"
	codeClosed   = "closed"
)

// Message is the JSON structure exchanged over the WebSocket.
type Message struct {
	Op         Op             `json:"op"`
	ID         string         `json:"id,omitempty"`
	Sub        string         `json:"sub,omitempty"`
	Path       string         `json:"path,omitempty"`
	Collection string         `json:"collection,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	Exists     bool           `json:"exists,omitempty"`
	EntryID    string         `json:"entryId,omitempty"`
	Seq        int64          `json:"seq,omitempty"`
	Error      string         `json:"error,omitempty"`
}

func errorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, store.ErrNotFound):
		return codeNotFound
	case errors.Is(err, store.ErrClosed):
		return codeClosed
	default:
		return err.Error()
	}
}

func codeError(code string) error {
	switch code {
	case "":
		return nil
	case codeNotFound:
		return store.ErrNotFound
	case codeClosed:
		return store.ErrClosed
	default:
		return errors.New(code)
	}
}

func (m Message) snapshot() store.Snapshot {
	s := store.Snapshot{Path: m.Path, Exists: m.Exists}
	if m.Exists {
		s.Fields = fieldsOf(m.Fields)
	}
	return s
}

func (m Message) entry() store.Entry {
	return store.Entry{ID: m.EntryID, Seq: m.Seq, Fields: fieldsOf(m.Fields)}
}

func fieldsOf(m map[string]any) store.Fields {
	if m == nil {
		return store.Fields{}
	}
	return store.Fields(m)
}
