package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/1ureka/telecall/internal/call"
	"github.com/1ureka/telecall/internal/config"
	"github.com/1ureka/telecall/internal/signaling"
	"github.com/1ureka/telecall/internal/util"
)

// hangupTimeout bounds the final status write after Ctrl+C.
const hangupTimeout = 5 * time.Second

// ErrServerLost is returned when the signaling connection drops mid-call.
var ErrServerLost = errors.New("lost connection to the signaling server")

// dial connects to the configured signaling server.
func dial(ctx context.Context, cfg *config.Config) (*signaling.Client, error) {
	wsURL, err := signaling.NormalizeURL(cfg.ServerURL, cfg.PIN)
	if err != nil {
		return nil, err
	}
	util.LogInfo("connecting to signaling server %s", cfg.ServerURL)
	c, err := signaling.Dial(ctx, wsURL)
	if err != nil {
		return nil, err
	}
	util.LogDebug("WS connected: %s", wsURL)
	return c, nil
}

// observer renders state changes and reports the first failure.
type observer struct {
	render func(call.State)
	failed chan struct{}
	once   sync.Once
}

func newObserver() *observer {
	return &observer{render: newRenderer(), failed: make(chan struct{})}
}

func (o *observer) onChange(s call.State) {
	o.render(s)
	if s.Phase == call.PhaseFailed {
		o.once.Do(func() { close(o.failed) })
	}
}

// runCall waits until the call ends:
//   - ctx cancelled (Ctrl+C): hang up for both sides
//   - failure: dismiss the failure and return it
//   - signaling connection lost: end locally
func runCall(ctx context.Context, ctrl *call.Controller, obs *observer, conn *signaling.Client) error {
	select {
	case <-ctrl.Done():
		return nil

	case <-obs.failed:
		err := ctrl.State().Err
		ctrl.Close()
		return fmt.Errorf("call failed: %w", err)

	case <-conn.Done():
		ctrl.Close()
		return ErrServerLost

	case <-ctx.Done():
		hctx, cancel := context.WithTimeout(context.Background(), hangupTimeout)
		defer cancel()
		util.LogInfo("hanging up")
		return ctrl.Hangup(hctx)
	}
}
