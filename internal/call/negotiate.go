package call

import (
	"context"
	"errors"
	"fmt"

	"github.com/1ureka/telecall/internal/media"
	"github.com/1ureka/telecall/internal/protocol"
	"github.com/1ureka/telecall/internal/store"
	"github.com/1ureka/telecall/internal/util"
)

// negotiate runs one attempt to completion. Any error of a live attempt
// fails the call; errors caused by teardown are dropped.
func (c *Controller) negotiate(a *attempt) {
	err := c.runAttempt(a)
	if err == nil || errors.Is(err, errAborted) || a.ctx.Err() != nil {
		return
	}
	c.fail(a, err)
}

// runAttempt:
//  1. Create the peer connection
//  2. Acquire local media through the fallback ladder (skipped for listeners)
//  3. Attach local tracks, bind the preview and the remote sink
//  4. Run the role-specific signaling
func (c *Controller) runAttempt(a *attempt) error {
	c.setLabel(a, LabelConnectingDevices)

	// 1. Peer connection.
	peer, err := c.deps.NewPeer()
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	if !c.attach(a, func() { a.peer = peer }) {
		peer.Close()
		return errAborted
	}

	// 2. Local media.
	c.mu.Lock()
	listenerOnly := c.caps.ListenerOnly
	c.mu.Unlock()

	var stream *media.Stream
	if !listenerOnly {
		var caps Capabilities
		stream, caps, err = acquireMedia(a.ctx, c.deps.Capturer, c.opts.CallType)
		if err != nil {
			return errAborted
		}
		if !c.attach(a, func() { c.adoptMedia(a, stream, caps) }) {
			stream.Stop()
			return errAborted
		}
	}

	// 3. Tracks and sinks.
	for _, track := range stream.Tracks() {
		if err := peer.AddTrack(track); err != nil {
			return fmt.Errorf("attach local %s track: %w", track.Kind(), err)
		}
	}
	if c.deps.Preview != nil && c.opts.CallType == protocol.CallVideo && len(stream.TracksOf(media.KindVideo)) > 0 {
		c.deps.Preview.Preview(stream)
	}
	peer.OnTrack(func(r media.Remote) {
		if a.ctx.Err() != nil || c.deps.Remote == nil {
			return
		}
		c.deps.Remote.Bind(r)
	})

	// 4. Signaling.
	if c.opts.Role == RoleCaller {
		return c.startCaller(a, peer)
	}
	return c.startReceiver(a, peer)
}

// startCaller clears any previous session, publishes the offer and waits
// for the answer through the session watch.
func (c *Controller) startCaller(a *attempt, peer Peer) error {
	st := c.deps.Store

	if err := st.Delete(a.ctx, c.path); err != nil {
		return fmt.Errorf("clear previous session: %w", err)
	}

	peer.OnICECandidate(c.publishCandidate(a, protocol.OfferCandidates))

	offer, err := peer.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := peer.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}

	fields, err := protocol.EncodeSession(protocol.NewOffer(offer, c.opts.CallType, c.opts.CallerName, c.deps.Now()))
	if err != nil {
		return err
	}
	if err := st.Set(a.ctx, c.path, fields); err != nil {
		return fmt.Errorf("publish offer: %w", err)
	}
	c.setLabel(a, LabelCalling)
	c.log.Info("offer published, waiting for answer")

	unsub, err := st.Watch(a.ctx, c.path, func(s store.Snapshot) {
		c.inbox.Push(event{gen: a.gen, snapshot: &s})
	})
	if err != nil {
		return fmt.Errorf("watch session: %w", err)
	}
	if !c.attach(a, func() { a.unsubs = append(a.unsubs, unsub) }) {
		unsub()
		return errAborted
	}

	return c.watchCandidates(a, protocol.AnswerCandidates)
}

// startReceiver answers the stored offer.
func (c *Controller) startReceiver(a *attempt, peer Peer) error {
	st := c.deps.Store

	peer.OnICECandidate(c.publishCandidate(a, protocol.AnswerCandidates))

	snap, err := st.Get(a.ctx, c.path)
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	if !snap.Exists {
		return ErrNoOffer
	}
	sess, err := protocol.DecodeSession(snap.Fields)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}
	if !sess.Status.CanAdvanceTo(protocol.StatusAccepted) {
		c.log.Info("call session is already %s", sess.Status)
		c.endLocal()
		return errAborted
	}
	if sess.Offer == nil {
		return ErrNoOffer
	}
	if err := sess.Offer.Validate(protocol.SDPOffer); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}

	if err := c.setRemote(a, *sess.Offer); err != nil {
		return err
	}

	answer, err := peer.CreateAnswer()
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := peer.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}

	c.setLabel(a, LabelConnecting)
	written, err := c.advanceSession(a.ctx, protocol.StatusAccepted, protocol.AnswerUpdate(answer, c.deps.Now()))
	if err != nil {
		return fmt.Errorf("publish answer: %w", err)
	}
	if !written {
		c.log.Info("call ended before the answer was published")
		c.endLocal()
		return errAborted
	}
	c.setLabel(a, LabelConnected)
	c.log.Info("answer published")

	return c.watchCandidates(a, protocol.OfferCandidates)
}

// advanceSession applies fields only while the stored session can still move
// to next. It reports false, without writing, when the session is gone or
// already at or past next. The check and the write are not atomic; a
// concurrent hang-up between them is still seen by the session watch.
func (c *Controller) advanceSession(ctx context.Context, next protocol.Status, fields store.Fields) (bool, error) {
	snap, err := c.deps.Store.Get(ctx, c.path)
	if err != nil {
		return false, fmt.Errorf("read session: %w", err)
	}
	if !snap.Exists {
		return false, nil
	}
	sess, err := protocol.DecodeSession(snap.Fields)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}
	if !sess.Status.CanAdvanceTo(next) {
		return false, nil
	}
	if err := c.deps.Store.Update(ctx, c.path, fields); err != nil {
		return false, err
	}
	return true, nil
}

// setRemote applies the remote description and drains the candidates that
// were waiting for it, atomically with respect to incoming candidates.
func (c *Controller) setRemote(a *attempt, d protocol.Description) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a.detached || a.peer == nil {
		return errAborted
	}
	if err := a.peer.SetRemoteDescription(d); err != nil {
		return fmt.Errorf("set remote %s: %w", d.Type, err)
	}
	if n := a.queue.drain(a.peer); n > 0 {
		c.log.Debug("applied %d queued candidate(s)", n)
	}
	return nil
}

// watchCandidates subscribes to the other participant's candidates.
func (c *Controller) watchCandidates(a *attempt, collection string) error {
	unsub, err := c.deps.Store.WatchAppends(a.ctx, c.path, collection, func(e store.Entry) {
		c.inbox.Push(event{gen: a.gen, entry: &e})
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", collection, err)
	}
	if !c.attach(a, func() { a.unsubs = append(a.unsubs, unsub) }) {
		unsub()
		return errAborted
	}
	return nil
}

// publishCandidate returns the local candidate handler for an attempt.
func (c *Controller) publishCandidate(a *attempt, collection string) func(protocol.Candidate) {
	return func(cand protocol.Candidate) {
		if a.ctx.Err() != nil {
			return
		}
		fields, err := protocol.EncodeCandidate(cand)
		if err != nil {
			c.log.Warning("failed to encode local candidate: %v", err)
			return
		}
		if _, err := c.deps.Store.Append(a.ctx, c.path, collection, fields); err != nil {
			if a.ctx.Err() == nil {
				c.log.Warning("failed to publish local candidate: %v", err)
			}
			return
		}
		util.Stats.AddCandidateSent()
	}
}

// attach runs fn under the controller lock unless the attempt was torn
// down, and reports whether it ran.
func (c *Controller) attach(a *attempt, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a.detached {
		return false
	}
	fn()
	return true
}

// adoptMedia records the acquisition outcome. c.mu must be held.
func (c *Controller) adoptMedia(a *attempt, stream *media.Stream, caps Capabilities) {
	a.stream = stream
	c.caps = caps
	if !caps.HasCamera {
		c.videoEnabled = false
	}
	for _, t := range stream.TracksOf(media.KindAudio) {
		t.SetEnabled(c.micEnabled)
	}
	for _, t := range stream.TracksOf(media.KindVideo) {
		t.SetEnabled(c.videoEnabled)
	}
	c.emitLocked()
}
