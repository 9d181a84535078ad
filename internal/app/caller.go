package app

import (
	"context"
	"fmt"
	"time"

	"github.com/1ureka/telecall/internal/call"
	"github.com/1ureka/telecall/internal/config"
	"github.com/1ureka/telecall/internal/protocol"
	"github.com/1ureka/telecall/internal/store"
	"github.com/1ureka/telecall/internal/util"
)

// RunCaller places a call and keeps it up until it ends:
//  1. Connect to the signaling server
//  2. Start the controller (publishes the offer)
//  3. Notify the other participant, if configured
//  4. Wait for the end of the call; Ctrl+C hangs up
func RunCaller(ctx context.Context, cfg *config.Config) error {
	// 1. Signaling.
	conn, err := dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	// 2. Controller.
	ctrl, err := call.New(call.Options{
		CaseID:     cfg.CaseID,
		Role:       call.RoleCaller,
		CallType:   cfg.CallType,
		CallerName: cfg.CallerName,
	}, controllerDeps(cfg, conn))
	if err != nil {
		return err
	}
	obs := newObserver()
	ctrl.OnChange(obs.onChange)
	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	defer ctrl.Close()

	// 3. Notification.
	if cfg.NotifyUser != "" {
		if err := notify(ctx, conn, cfg.NotifyUser, cfg.CallType); err != nil {
			util.LogWarning("failed to notify %s: %v", cfg.NotifyUser, err)
		}
	}

	// 4. Call.
	util.StartStatsReporter(ctx)
	return runCall(ctx, ctrl, obs, conn)
}

// notify appends the incoming-call notice for userID.
func notify(ctx context.Context, st store.Store, userID string, callType protocol.CallType) error {
	fields, err := protocol.EncodeNotification(protocol.NewCallNotification(userID, callType, time.Now()))
	if err != nil {
		return err
	}
	if _, err := st.Append(ctx, "", protocol.NotificationsCollection, fields); err != nil {
		return fmt.Errorf("append notification: %w", err)
	}
	util.LogInfo("notified %s", userID)
	return nil
}
