// Package storetest provides a conformance suite for store.Store
// implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/1ureka/telecall/internal/store"
)

// Factory returns a fresh, empty store. Cleanup is registered by the factory.
type Factory func(t *testing.T) store.Store

// Run exercises every store operation against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("SetGet", func(t *testing.T) { testSetGet(t, newStore(t)) })
	t.Run("SetReplaces", func(t *testing.T) { testSetReplaces(t, newStore(t)) })
	t.Run("UpdateMerges", func(t *testing.T) { testUpdateMerges(t, newStore(t)) })
	t.Run("UpdateMissing", func(t *testing.T) { testUpdateMissing(t, newStore(t)) })
	t.Run("WatchDocument", func(t *testing.T) { testWatchDocument(t, newStore(t)) })
	t.Run("WatchMissingDocument", func(t *testing.T) { testWatchMissingDocument(t, newStore(t)) })
	t.Run("Unsubscribe", func(t *testing.T) { testUnsubscribe(t, newStore(t)) })
	t.Run("AppendOrder", func(t *testing.T) { testAppendOrder(t, newStore(t)) })
	t.Run("WatchAppendsBacklog", func(t *testing.T) { testWatchAppendsBacklog(t, newStore(t)) })
	t.Run("DeleteClearsCollections", func(t *testing.T) { testDeleteClearsCollections(t, newStore(t)) })
	t.Run("RootCollection", func(t *testing.T) { testRootCollection(t, newStore(t)) })
}

const (
	docPath = "cases/c1/calls/active_call"
	timeout = 5 * time.Second
)

// ---------------------------------------------------------------------------
// Recorders
// ---------------------------------------------------------------------------

// snapshots collects watch deliveries for assertions.
type snapshots struct {
	mu   sync.Mutex
	list []store.Snapshot
	ch   chan struct{}
}

func newSnapshots() *snapshots { return &snapshots{ch: make(chan struct{}, 1024)} }

func (s *snapshots) add(snap store.Snapshot) {
	s.mu.Lock()
	s.list = append(s.list, snap)
	s.mu.Unlock()
	s.ch <- struct{}{}
}

// wait blocks until at least n snapshots were delivered and returns them.
func (s *snapshots) wait(t *testing.T, n int) []store.Snapshot {
	t.Helper()
	deadline := time.After(timeout)
	for {
		s.mu.Lock()
		if len(s.list) >= n {
			out := append([]store.Snapshot(nil), s.list...)
			s.mu.Unlock()
			return out
		}
		s.mu.Unlock()

		select {
		case <-s.ch:
		case <-deadline:
			t.Fatalf("timed out waiting for %d snapshots, got %d", n, s.count())
		}
	}
}

func (s *snapshots) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}

type entries struct {
	mu   sync.Mutex
	list []store.Entry
	ch   chan struct{}
}

func newEntries() *entries { return &entries{ch: make(chan struct{}, 1024)} }

func (e *entries) add(entry store.Entry) {
	e.mu.Lock()
	e.list = append(e.list, entry)
	e.mu.Unlock()
	e.ch <- struct{}{}
}

func (e *entries) wait(t *testing.T, n int) []store.Entry {
	t.Helper()
	deadline := time.After(timeout)
	for {
		e.mu.Lock()
		if len(e.list) >= n {
			out := append([]store.Entry(nil), e.list...)
			e.mu.Unlock()
			return out
		}
		got := len(e.list)
		e.mu.Unlock()

		select {
		case <-e.ch:
		case <-deadline:
			t.Fatalf("timed out waiting for %d entries, got %d", n, got)
		}
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func testSetGet(t *testing.T, s store.Store) {
	ctx := context.Background()

	snap, err := s.Get(ctx, docPath)
	if err != nil {
		t.Fatalf("Get on missing document failed: %v", err)
	}
	if snap.Exists {
		t.Fatal("missing document reported as existing")
	}

	if err := s.Set(ctx, docPath, store.Fields{
		"status": "calling",
		"offer":  map[string]any{"type": "offer", "sdp": "v=0"},
	}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	snap, err = s.Get(ctx, docPath)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !snap.Exists || snap.Fields["status"] != "calling" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	offer, ok := snap.Fields["offer"].(map[string]any)
	if !ok || offer["sdp"] != "v=0" {
		t.Errorf("nested field mismatch: %#v", snap.Fields["offer"])
	}
}

func testSetReplaces(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustSet(t, s, store.Fields{"status": "accepted", "answer": map[string]any{"sdp": "x"}})
	mustSet(t, s, store.Fields{"status": "calling"})

	snap, _ := s.Get(ctx, docPath)
	if _, ok := snap.Fields["answer"]; ok {
		t.Error("Set should replace the whole document")
	}
}

func testUpdateMerges(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustSet(t, s, store.Fields{"status": "calling", "callType": "video"})

	if err := s.Update(ctx, docPath, store.Fields{"status": "accepted", "answer": map[string]any{"sdp": "a"}}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	snap, _ := s.Get(ctx, docPath)
	if snap.Fields["status"] != "accepted" || snap.Fields["callType"] != "video" {
		t.Errorf("merge mismatch: %v", snap.Fields)
	}
	if _, ok := snap.Fields["answer"]; !ok {
		t.Error("answer missing after Update")
	}
}

func testUpdateMissing(t *testing.T, s store.Store) {
	err := s.Update(context.Background(), docPath, store.Fields{"status": "ended"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Update on missing document: got %v, want ErrNotFound", err)
	}
}

func testWatchDocument(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustSet(t, s, store.Fields{"status": "calling"})

	rec := newSnapshots()
	unsub, err := s.Watch(ctx, docPath, rec.add)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer unsub()

	if err := s.Update(ctx, docPath, store.Fields{"status": "accepted"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := s.Update(ctx, docPath, store.Fields{"status": "connected"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := s.Delete(ctx, docPath); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	got := rec.wait(t, 4)
	want := []string{"calling", "accepted", "connected"}
	for i, status := range want {
		if !got[i].Exists || got[i].Fields["status"] != status {
			t.Errorf("snapshot %d: got %+v, want status %s", i, got[i], status)
		}
	}
	if got[3].Exists {
		t.Error("delete should be delivered as a non-existent snapshot")
	}
}

func testWatchMissingDocument(t *testing.T, s store.Store) {
	rec := newSnapshots()
	unsub, err := s.Watch(context.Background(), docPath, rec.add)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer unsub()

	if got := rec.wait(t, 1); got[0].Exists {
		t.Error("first snapshot of a missing document should not exist")
	}

	mustSet(t, s, store.Fields{"status": "calling"})
	if got := rec.wait(t, 2); !got[1].Exists {
		t.Error("creation not delivered")
	}
}

func testUnsubscribe(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustSet(t, s, store.Fields{"status": "calling"})

	rec := newSnapshots()
	unsub, err := s.Watch(ctx, docPath, rec.add)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	rec.wait(t, 1)
	unsub()
	unsub()

	mustSet(t, s, store.Fields{"status": "ended"})
	time.Sleep(100 * time.Millisecond)
	if n := rec.count(); n != 1 {
		t.Errorf("got %d snapshots after unsubscribe, want 1", n)
	}
}

func testAppendOrder(t *testing.T, s store.Store) {
	ctx := context.Background()

	rec := newEntries()
	unsub, err := s.WatchAppends(ctx, docPath, "offerCandidates", rec.add)
	if err != nil {
		t.Fatalf("WatchAppends failed: %v", err)
	}
	defer unsub()

	ids := make(map[string]bool)
	for i := range 20 {
		id, err := s.Append(ctx, docPath, "offerCandidates", store.Fields{"candidate": fmt.Sprintf("c%d", i)})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if ids[id] {
			t.Fatalf("duplicate entry id %s", id)
		}
		ids[id] = true
	}
	// Other collections must not leak into this subscription.
	if _, err := s.Append(ctx, docPath, "answerCandidates", store.Fields{"candidate": "other"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got := rec.wait(t, 20)
	for i, e := range got {
		if want := fmt.Sprintf("c%d", i); e.Fields["candidate"] != want {
			t.Errorf("entry %d: got %v, want %s", i, e.Fields["candidate"], want)
		}
		if i > 0 && e.Seq <= got[i-1].Seq {
			t.Errorf("entry %d: seq %d not after %d", i, e.Seq, got[i-1].Seq)
		}
	}
	time.Sleep(50 * time.Millisecond)
	if n := len(rec.wait(t, 20)); n != 20 {
		t.Errorf("got %d entries, want 20", n)
	}
}

func testWatchAppendsBacklog(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := range 3 {
		if _, err := s.Append(ctx, docPath, "offerCandidates", store.Fields{"candidate": fmt.Sprintf("early%d", i)}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	rec := newEntries()
	unsub, err := s.WatchAppends(ctx, docPath, "offerCandidates", rec.add)
	if err != nil {
		t.Fatalf("WatchAppends failed: %v", err)
	}
	defer unsub()

	if _, err := s.Append(ctx, docPath, "offerCandidates", store.Fields{"candidate": "late"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got := rec.wait(t, 4)
	want := []string{"early0", "early1", "early2", "late"}
	for i := range want {
		if got[i].Fields["candidate"] != want[i] {
			t.Errorf("entry %d: got %v, want %s", i, got[i].Fields["candidate"], want[i])
		}
	}
}

func testDeleteClearsCollections(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustSet(t, s, store.Fields{"status": "ended"})
	if _, err := s.Append(ctx, docPath, "answerCandidates", store.Fields{"candidate": "stale"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if err := s.Delete(ctx, docPath); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	// Deleting a missing document is not an error.
	if err := s.Delete(ctx, docPath); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}

	rec := newEntries()
	unsub, err := s.WatchAppends(ctx, docPath, "answerCandidates", rec.add)
	if err != nil {
		t.Fatalf("WatchAppends failed: %v", err)
	}
	defer unsub()

	if _, err := s.Append(ctx, docPath, "answerCandidates", store.Fields{"candidate": "fresh"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	got := rec.wait(t, 1)
	if got[0].Fields["candidate"] != "fresh" {
		t.Errorf("stale entry survived delete: %v", got[0].Fields)
	}
}

func testRootCollection(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.Append(ctx, "", "notifications", store.Fields{"type": "call", "read": false}); err != nil {
		t.Fatalf("Append to root collection failed: %v", err)
	}

	rec := newEntries()
	unsub, err := s.WatchAppends(ctx, "", "notifications", rec.add)
	if err != nil {
		t.Fatalf("WatchAppends failed: %v", err)
	}
	defer unsub()

	got := rec.wait(t, 1)
	if got[0].Fields["type"] != "call" || got[0].Fields["read"] != false {
		t.Errorf("unexpected notification: %v", got[0].Fields)
	}
}

func mustSet(t *testing.T, s store.Store, fields store.Fields) {
	t.Helper()
	if err := s.Set(context.Background(), docPath, fields); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
}
