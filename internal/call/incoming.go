package call

import (
	"context"
	"fmt"

	"github.com/1ureka/telecall/internal/protocol"
	"github.com/1ureka/telecall/internal/store"
	"github.com/1ureka/telecall/internal/util"
)

// WatchIncoming reports whether the case currently has a call to present
// to the receiver: fn gets the session while its status is calling,
// accepted or connected, and nil otherwise (including when the document
// does not exist). Consecutive identical answers are not repeated.
func WatchIncoming(ctx context.Context, st store.Store, caseID string, fn func(*protocol.Session)) (store.Unsubscribe, error) {
	if err := protocol.ValidateCaseID(caseID); err != nil {
		return nil, err
	}

	showing := false
	first := true
	return st.Watch(ctx, protocol.SessionPath(caseID), func(snap store.Snapshot) {
		var sess *protocol.Session
		if snap.Exists {
			decoded, err := protocol.DecodeSession(snap.Fields)
			if err != nil {
				util.LogWarning("ignoring unreadable call session: %v", err)
			} else if decoded.Status.Ringing() {
				sess = decoded
			}
		}

		ringing := sess != nil
		if !first && !ringing && !showing {
			return
		}
		first = false
		showing = ringing
		fn(sess)
	})
}

// WaitForIncoming blocks until the case has a call to present and returns
// its session.
func WaitForIncoming(ctx context.Context, st store.Store, caseID string) (*protocol.Session, error) {
	found := make(chan *protocol.Session, 1)
	unsub, err := WatchIncoming(ctx, st, caseID, func(sess *protocol.Session) {
		if sess == nil {
			return
		}
		select {
		case found <- sess:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("watch incoming calls: %w", err)
	}
	defer unsub()

	select {
	case sess := <-found:
		return sess, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
