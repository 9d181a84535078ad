package signaling

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// ErrUnauthorized is returned by Dial when the server rejects the PIN.
var ErrUnauthorized = errors.New("signaling server rejected the PIN")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connect dials the given WebSocket URL and returns the connection.
func connect(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	return conn, nil
}

// NormalizeURL validates a raw server address and turns it into the
// signaling endpoint, e.g. "example.devtunnels.ms" becomes
// "wss://example.devtunnels.ms/ws". A non-empty pin is added as a query
// parameter.
func NormalizeURL(raw, pin string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	scheme := "wss"
	if u.Scheme == "ws" || u.Scheme == "wss" {
		scheme = u.Scheme
	}
	out := url.URL{Scheme: scheme, Host: u.Host, Path: "/ws"}
	if pin != "" {
		out.RawQuery = url.Values{"pin": {pin}}.Encode()
	}
	return out.String(), nil
}

// GeneratePIN returns a random numeric PIN of the specified length.
func GeneratePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}
