package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/telecall/internal/call"
	"github.com/1ureka/telecall/internal/config"
	"github.com/1ureka/telecall/internal/protocol"
	"github.com/1ureka/telecall/internal/store"
	"github.com/1ureka/telecall/internal/util"
)

// Decider chooses whether to accept an incoming call.
type Decider func(ctx context.Context, sess *protocol.Session) (bool, error)

// AutoAccept accepts every call.
func AutoAccept(context.Context, *protocol.Session) (bool, error) { return true, nil }

// PromptAccept asks on the console.
func PromptAccept(_ context.Context, sess *protocol.Session) (bool, error) {
	return pterm.DefaultInteractiveConfirm.
		WithDefaultText(describeIncoming(sess) + ". Accept?").
		WithDefaultValue(true).
		Show()
}

// RunReceiver waits for a call on the case and answers it:
//  1. Connect to the signaling server
//  2. Wait until the case has a call to present
//  3. Start the controller and let decide accept or decline
//  4. Wait for the end of the call; Ctrl+C hangs up
func RunReceiver(ctx context.Context, cfg *config.Config, decide Decider) error {
	// 1. Signaling.
	conn, err := dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	if cfg.NotifyUser != "" {
		unsub, err := watchNotifications(ctx, conn, cfg.NotifyUser, time.Now())
		if err != nil {
			util.LogWarning("failed to watch notifications: %v", err)
		} else {
			defer unsub()
		}
	}

	// 2. Incoming call.
	util.LogInfo("waiting for a call on case %s", cfg.CaseID)
	sess, err := call.WaitForIncoming(ctx, conn, cfg.CaseID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	// 3. Controller.
	ctrl, err := call.New(call.Options{
		CaseID:     cfg.CaseID,
		Role:       call.RoleReceiver,
		CallType:   sess.CallType,
		CallerName: sess.CallerName,
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

	accept, err := decide(ctx, sess)
	if err != nil {
		return fmt.Errorf("incoming call prompt: %w", err)
	}
	select {
	case <-ctrl.Done():
		util.LogInfo("the caller hung up")
		return nil
	default:
	}
	if !accept {
		dctx, cancel := context.WithTimeout(context.Background(), hangupTimeout)
		defer cancel()
		return ctrl.Decline(dctx)
	}
	if err := ctrl.Accept(); err != nil {
		if errors.Is(err, call.ErrInvalidTransition) {
			util.LogInfo("the caller hung up")
			return nil
		}
		return err
	}

	// 4. Call.
	util.StartStatsReporter(ctx)
	return runCall(ctx, ctrl, obs, conn)
}

// watchNotifications logs notifications for userID created after since.
func watchNotifications(ctx context.Context, st store.Store, userID string, since time.Time) (store.Unsubscribe, error) {
	return st.WatchAppends(ctx, "", protocol.NotificationsCollection, func(e store.Entry) {
		n, err := protocol.DecodeNotification(e.Fields)
		if err != nil {
			util.LogDebug("ignoring notification %s: %v", e.ID, err)
			return
		}
		if n.TargetUserID != userID || n.CreatedAt.Before(since) {
			return
		}
		pterm.Info.Printfln("%s: %s", n.Title, n.Message)
	})
}
