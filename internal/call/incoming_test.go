package call

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/1ureka/telecall/internal/protocol"
	"github.com/1ureka/telecall/internal/store"
)

func TestWatchIncoming(t *testing.T) {
	st := store.NewMemory()
	defer st.Close()
	ctx := context.Background()
	path := protocol.SessionPath(testCase)

	var (
		mu   sync.Mutex
		seen []string
	)
	unsub, err := WatchIncoming(ctx, st, testCase, func(sess *protocol.Session) {
		mu.Lock()
		defer mu.Unlock()
		if sess == nil {
			seen = append(seen, "none")
			return
		}
		seen = append(seen, string(sess.Status)+"/"+sess.CallerName)
	})
	if err != nil {
		t.Fatalf("WatchIncoming failed: %v", err)
	}
	defer unsub()

	offer := protocol.Description{Type: protocol.SDPOffer, SDP: "v=0"}
	fields, err := protocol.EncodeSession(protocol.NewOffer(offer, protocol.CallAudio, "Nurse Joy", time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Set(ctx, path, fields); err != nil {
		t.Fatal(err)
	}
	if err := st.Update(ctx, path, protocol.StatusUpdate(protocol.StatusEnded, time.Now())); err != nil {
		t.Fatal(err)
	}
	// Still not ringing: no repeat.
	if err := st.Delete(ctx, path); err != nil {
		t.Fatal(err)
	}

	want := []string{"none", "calling/Nurse Joy", "none"}
	eventually(t, "incoming updates", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= len(want)
	})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(want) {
		t.Fatalf("got %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("update %d: got %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestWaitForIncomingCancelled(t *testing.T) {
	st := store.NewMemory()
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := WaitForIncoming(ctx, st, testCase); err == nil {
		t.Fatal("expected timeout")
	}
}

func TestWatchIncomingRejectsBadCase(t *testing.T) {
	st := store.NewMemory()
	defer st.Close()
	if _, err := WatchIncoming(context.Background(), st, "a/b", func(*protocol.Session) {}); err == nil {
		t.Fatal("expected invalid case id error")
	}
}
