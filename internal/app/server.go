// Package app contains the top-level orchestration for the serve, call and
// answer roles.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/1ureka/telecall/internal/config"
	"github.com/1ureka/telecall/internal/signaling"
	"github.com/1ureka/telecall/internal/store"
	"github.com/1ureka/telecall/internal/util"
)

// pinLength is the length of PINs generated for "--pin auto".
const pinLength = 6

// closer is a store that owns resources.
type closer interface {
	store.Store
	Close() error
}

// openStore opens the server's backing store: SQLite when a database path
// is configured, memory otherwise.
func openStore(cfg *config.Config) (closer, error) {
	if cfg.DBPath == "" {
		util.LogInfo("keeping call sessions in memory")
		return store.NewMemory(), nil
	}
	s, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	util.LogInfo("call sessions persisted to %s", cfg.DBPath)
	return s, nil
}

// RunServer runs the signaling server until ctx is cancelled:
//  1. Open the backing store
//  2. Start the WS server
//  3. Print the connection info
//  4. Serve until shutdown
func RunServer(ctx context.Context, cfg *config.Config) (err error) {
	// 1. Store.
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	// 2. WS server.
	pin := cfg.PIN
	if pin == "auto" {
		pin = signaling.GeneratePIN(pinLength)
	}
	srv := signaling.NewServer(st, pin)
	addr, err := srv.Start(cfg.ListenAddr)
	if err != nil {
		st.Close()
		return err
	}
	defer func() {
		err = errors.Join(err, srv.Close(), st.Close())
	}()

	// 3. Connection info.
	printServerInfo(addr.String(), pin)

	// 4. Serve.
	<-ctx.Done()
	util.LogInfo("shutting down signaling server")
	return nil
}
