package signaling

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/1ureka/telecall/internal/store"
	"github.com/1ureka/telecall/internal/store/storetest"
)

// newTestServer serves a fresh memory store and returns its ws:// address.
func newTestServer(t *testing.T, pin string) (*Server, string) {
	t.Helper()
	mem := store.NewMemory()
	srv := NewServer(mem, pin)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		hs.Close()
		mem.Close()
	})
	return srv, "ws" + strings.TrimPrefix(hs.URL, "http")
}

func dial(t *testing.T, base, pin string) *Client {
	t.Helper()
	wsURL, err := NormalizeURL(base, pin)
	if err != nil {
		t.Fatalf("NormalizeURL failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, wsURL)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		_, base := newTestServer(t, "4821")
		return dial(t, base, "4821")
	})
}

func TestWrongPIN(t *testing.T) {
	_, base := newTestServer(t, "4821")

	for _, pin := range []string{"", "0000"} {
		wsURL, _ := NormalizeURL(base, pin)
		_, err := Dial(context.Background(), wsURL)
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("pin %q: got %v, want ErrUnauthorized", pin, err)
		}
	}
}

// TestSharedSession: a write by one client reaches another client's watch.
func TestSharedSession(t *testing.T) {
	_, base := newTestServer(t, "")
	a, b := dial(t, base, ""), dial(t, base, "")
	ctx := context.Background()
	path := "cases/c1/calls/active_call"

	got := make(chan store.Snapshot, 8)
	unsub, err := b.Watch(ctx, path, func(s store.Snapshot) { got <- s })
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer unsub()

	if err := a.Set(ctx, path, store.Fields{"status": "calling"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	want := []bool{false, true}
	for i, exists := range want {
		select {
		case s := <-got:
			if s.Exists != exists || s.Path != path {
				t.Errorf("snapshot %d: %+v", i, s)
			}
			if exists && s.Fields["status"] != "calling" {
				t.Errorf("snapshot %d status: %v", i, s.Fields["status"])
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("snapshot %d not delivered", i)
		}
	}
}

// TestServerCloseDisconnects: clients observe the server going away and
// further operations fail with store.ErrClosed.
func TestServerCloseDisconnects(t *testing.T) {
	srv, base := newTestServer(t, "")
	c := dial(t, base, "")

	srv.Close()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not notice the server closing")
	}

	if err := c.Set(context.Background(), "cases/c1/calls/active_call", store.Fields{}); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Set after disconnect: got %v, want ErrClosed", err)
	}
}

func TestNormalizeURL(t *testing.T) {
	testCases := []struct {
		raw, pin string
		want     string
	}{
		{"example.devtunnels.ms", "", "wss://example.devtunnels.ms/ws"},
		{"https://example.devtunnels.ms/some/path", "", "wss://example.devtunnels.ms/ws"},
		{"ws://127.0.0.1:8080", "1234", "ws://127.0.0.1:8080/ws?pin=1234"},
		{"  wss://host:9000/ws  ", "", "wss://host:9000/ws"},
	}
	for _, tc := range testCases {
		got, err := NormalizeURL(tc.raw, tc.pin)
		if err != nil {
			t.Errorf("%q: %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q: got %q, want %q", tc.raw, got, tc.want)
		}
	}

	if _, err := NormalizeURL("://", ""); err == nil {
		t.Error("expected error for an empty host")
	}
}

func TestGeneratePIN(t *testing.T) {
	pin := GeneratePIN(6)
	if len(pin) != 6 {
		t.Fatalf("got %q", pin)
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit in %q", pin)
		}
	}
}
