// Package call implements the call signaling controller: one participant's
// view of a one-to-one call negotiated through a shared CallSession document.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/1ureka/telecall/internal/media"
	"github.com/1ureka/telecall/internal/protocol"
	"github.com/1ureka/telecall/internal/store"
	"github.com/1ureka/telecall/internal/util"
)

var (
	// ErrNoOffer is the failure when the receiver finds no offer to answer.
	ErrNoOffer = errors.New("no call offer found")
	// ErrMalformedSession is the failure when the session cannot be used.
	ErrMalformedSession = errors.New("malformed call session")
	// ErrInvalidTransition is returned by commands not valid in the current phase.
	ErrInvalidTransition = errors.New("invalid call state transition")
	// ErrControlUnavailable is returned by toggles that are disabled.
	ErrControlUnavailable = errors.New("control unavailable")

	errAborted = errors.New("attempt torn down")
)

// Peer is the peer connection a call negotiates over.
type Peer interface {
	AddTrack(track media.Track) error
	OnTrack(fn func(media.Remote))
	OnICECandidate(fn func(protocol.Candidate))
	CreateOffer() (protocol.Description, error)
	CreateAnswer() (protocol.Description, error)
	SetLocalDescription(d protocol.Description) error
	SetRemoteDescription(d protocol.Description) error
	HasRemoteDescription() bool
	AddICECandidate(c protocol.Candidate) error
	Close() error
}

// PeerFactory creates the peer connection for one negotiation attempt.
type PeerFactory func() (Peer, error)

// Options identify the call.
type Options struct {
	CaseID     string
	Role       Role
	CallType   protocol.CallType
	CallerName string
}

// Deps are the collaborators of a controller. Remote and Preview are optional.
type Deps struct {
	Store    store.Store
	Capturer media.Capturer
	NewPeer  PeerFactory
	Remote   media.RemoteSink
	Preview  media.PreviewSink
	Now      func() time.Time
}

// Controller drives one participant through a call.
//
// Store notifications are queued on a single mailbox and handled in order
// by one goroutine. Each negotiation attempt runs on its own goroutine and
// owns its peer connection, local stream and subscriptions; tearing an
// attempt down releases all three exactly once.
type Controller struct {
	opts Options
	deps Deps
	path string
	log  util.CallLog

	ctx    context.Context
	cancel context.CancelFunc
	inbox  *util.Mailbox[event]

	mu           sync.Mutex
	started      bool
	phase        Phase
	label        string
	callerName   string
	caps         Capabilities
	micEnabled   bool
	videoEnabled bool
	err          error
	cur          *attempt
	gen          int
	watch        store.Unsubscribe // receiver's session watch

	changes  *util.Mailbox[State]
	onChange func(State)

	done     chan struct{}
	doneOnce sync.Once
}

// event is one store notification.
type event struct {
	gen      int // 0 for the receiver's session watch
	snapshot *store.Snapshot
	entry    *store.Entry
}

// attempt is one run of negotiation.
type attempt struct {
	gen    int
	ctx    context.Context
	cancel context.CancelFunc
	log    util.CallLog

	// Guarded by Controller.mu.
	peer     Peer
	stream   *media.Stream
	unsubs   []store.Unsubscribe
	queue    candidateQueue
	answered bool
	detached bool
}

// New creates a controller. The caller starts in PhaseActive, the receiver
// in PhaseIncoming. Nothing happens until Start.
func New(opts Options, deps Deps) (*Controller, error) {
	if err := protocol.ValidateCaseID(opts.CaseID); err != nil {
		return nil, err
	}
	if opts.Role != RoleCaller && opts.Role != RoleReceiver {
		return nil, fmt.Errorf("invalid role %q", opts.Role)
	}
	if opts.CallType != protocol.CallAudio && opts.CallType != protocol.CallVideo {
		return nil, fmt.Errorf("invalid call type %q", opts.CallType)
	}
	if deps.Store == nil || deps.Capturer == nil || deps.NewPeer == nil {
		return nil, fmt.Errorf("store, capturer and peer factory are required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		opts:         opts,
		deps:         deps,
		path:         protocol.SessionPath(opts.CaseID),
		log:          util.NewCallLog(string(opts.Role), opts.CaseID),
		ctx:          ctx,
		cancel:       cancel,
		inbox:        util.NewMailbox[event](),
		phase:        PhaseIncoming,
		label:        LabelInitializing,
		callerName:   opts.CallerName,
		micEnabled:   true,
		videoEnabled: opts.CallType == protocol.CallVideo,
		changes:      util.NewMailbox[State](),
		done:         make(chan struct{}),
	}
	if opts.Role == RoleCaller {
		c.phase = PhaseActive
	}
	return c, nil
}

// OnChange registers fn to receive every state change, in order, on a
// dedicated goroutine. It must be called before Start.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Start begins the controller's work: the caller starts negotiating, the
// receiver starts watching the session for a remote hang-up.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("controller already started")
	}
	c.started = true
	fn := c.onChange
	ended := c.phase == PhaseEnded
	c.mu.Unlock()

	go c.deliverChanges(fn)
	if ended {
		return nil
	}
	go c.run()

	if c.opts.Role == RoleReceiver {
		unsub, err := c.deps.Store.Watch(ctx, c.path, func(s store.Snapshot) {
			c.inbox.Push(event{snapshot: &s})
		})
		if err != nil {
			c.endLocal()
			return fmt.Errorf("watch session: %w", err)
		}
		c.mu.Lock()
		if c.phase == PhaseEnded {
			c.mu.Unlock()
			unsub()
			return nil
		}
		c.watch = unsub
		c.emitLocked()
		c.mu.Unlock()
		return nil
	}

	c.mu.Lock()
	a := c.newAttemptLocked()
	c.emitLocked()
	c.mu.Unlock()
	go c.negotiate(a)
	return nil
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Done is closed once the controller reaches PhaseEnded.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

// Accept moves an incoming call to active and starts negotiation.
func (c *Controller) Accept() error {
	c.mu.Lock()
	if !c.started || c.phase != PhaseIncoming {
		phase := c.phase
		c.mu.Unlock()
		return fmt.Errorf("%w: accept in %s", ErrInvalidTransition, phase)
	}
	c.phase = PhaseActive
	a := c.newAttemptLocked()
	c.emitLocked()
	c.mu.Unlock()

	c.log.Info("call accepted")
	go c.negotiate(a)
	return nil
}

// Decline rejects an incoming call: the session is marked ended and the
// controller tears down, even if the write fails.
func (c *Controller) Decline(ctx context.Context) error {
	c.mu.Lock()
	phase := c.phase
	c.mu.Unlock()
	if phase != PhaseIncoming {
		return fmt.Errorf("%w: decline in %s", ErrInvalidTransition, phase)
	}
	return c.hangup(ctx)
}

// Hangup ends the call for both participants: the session is marked ended
// and the controller tears down, even if the write fails.
func (c *Controller) Hangup(ctx context.Context) error {
	c.mu.Lock()
	phase := c.phase
	c.mu.Unlock()
	if phase == PhaseEnded {
		return nil
	}
	return c.hangup(ctx)
}

func (c *Controller) hangup(ctx context.Context) error {
	err := c.deps.Store.Update(ctx, c.path, protocol.StatusUpdate(protocol.StatusEnded, c.deps.Now()))
	if errors.Is(err, store.ErrNotFound) {
		err = nil
	}
	if err != nil {
		c.log.Error("failed to mark call ended: %v", err)
		err = fmt.Errorf("mark session ended: %w", err)
	}
	c.endLocal()
	return err
}

// Close tears the controller down without writing to the session. It is
// how the failure view is dismissed.
func (c *Controller) Close() {
	c.endLocal()
}

// Restart tears down the current negotiation attempt and starts a new call
// with a fresh offer. Only the caller can restart. The new attempt clears
// the previous session first, so a receiver of the old session sees it
// disappear and ends; the new offer then rings again.
func (c *Controller) Restart() error {
	if c.opts.Role != RoleCaller {
		return fmt.Errorf("%w: restart as %s", ErrInvalidTransition, c.opts.Role)
	}
	c.mu.Lock()
	if !c.started || c.phase != PhaseActive {
		phase := c.phase
		c.mu.Unlock()
		return fmt.Errorf("%w: restart in %s", ErrInvalidTransition, phase)
	}
	release := c.cur.detach()
	a := c.newAttemptLocked()
	c.emitLocked()
	c.mu.Unlock()

	release()
	go c.negotiate(a)
	return nil
}

// ---------------------------------------------------------------------------
// Event loop
// ---------------------------------------------------------------------------

func (c *Controller) run() {
	for {
		ev, ok := c.inbox.Pop(c.ctx)
		if !ok {
			return
		}
		switch {
		case ev.snapshot != nil:
			c.onSession(ev.gen, *ev.snapshot)
		case ev.entry != nil:
			c.onCandidate(ev.gen, *ev.entry)
		}
	}
}

// onSession handles a session document change.
func (c *Controller) onSession(gen int, snap store.Snapshot) {
	if gen != 0 && !c.isCurrent(gen) {
		return
	}
	if !snap.Exists {
		c.log.Info("call session removed")
		c.endLocal()
		return
	}

	sess, err := protocol.DecodeSession(snap.Fields)
	if err != nil {
		c.log.Warning("ignoring unreadable call session: %v", err)
		return
	}
	if sess.Status == protocol.StatusEnded {
		c.log.Info("call ended by the other participant")
		c.endLocal()
		return
	}

	if c.opts.Role == RoleReceiver {
		c.mu.Lock()
		if sess.CallerName != "" && sess.CallerName != c.callerName && c.phase != PhaseEnded {
			c.callerName = sess.CallerName
			c.emitLocked()
		}
		c.mu.Unlock()
		return
	}

	if sess.Answer != nil {
		c.applyAnswer(gen, sess)
	}
}

// applyAnswer sets the receiver's answer as the caller's remote description,
// once per attempt, and advances the session to connected.
func (c *Controller) applyAnswer(gen int, sess *protocol.Session) {
	c.mu.Lock()
	a := c.cur
	if a == nil || a.gen != gen || a.detached || a.peer == nil || a.answered || a.peer.HasRemoteDescription() {
		c.mu.Unlock()
		return
	}
	if err := sess.Answer.Validate(protocol.SDPAnswer); err != nil {
		c.mu.Unlock()
		c.fail(a, fmt.Errorf("%w: %v", ErrMalformedSession, err))
		return
	}
	if err := a.peer.SetRemoteDescription(*sess.Answer); err != nil {
		c.mu.Unlock()
		c.fail(a, fmt.Errorf("set remote answer: %w", err))
		return
	}
	a.answered = true
	n := a.queue.drain(a.peer)
	c.label = LabelConnected
	c.emitLocked()
	c.mu.Unlock()

	c.log.Info("call answered, %d queued candidate(s) applied", n)

	// The snapshot may be stale; never write over an ended session.
	written, err := c.advanceSession(a.ctx, protocol.StatusConnected, protocol.StatusUpdate(protocol.StatusConnected, c.deps.Now()))
	if err != nil && a.ctx.Err() == nil {
		c.log.Warning("failed to mark call connected: %v", err)
	} else if !written && err == nil {
		c.log.Debug("session moved on before it could be marked connected")
	}
}

func (c *Controller) isCurrent(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur != nil && c.cur.gen == gen && !c.cur.detached
}

// onCandidate handles a remote candidate entry.
func (c *Controller) onCandidate(gen int, e store.Entry) {
	cand, err := protocol.DecodeCandidate(e.Fields)
	if err != nil {
		c.log.Warning("ignoring candidate %s: %v", e.ID, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	a := c.cur
	if a == nil || a.gen != gen || a.detached || a.peer == nil {
		return
	}
	if a.queue.offer(a.peer, cand) {
		c.log.Debug("queued remote candidate %s until the remote description is set", e.ID)
	}
}

// ---------------------------------------------------------------------------
// Teardown
// ---------------------------------------------------------------------------

// newAttemptLocked replaces the current attempt. c.mu must be held and the
// previous attempt already detached.
func (c *Controller) newAttemptLocked() *attempt {
	c.gen++
	ctx, cancel := context.WithCancel(c.ctx)
	a := &attempt{gen: c.gen, ctx: ctx, cancel: cancel, log: c.log}
	c.cur = a
	c.err = nil
	c.label = LabelInitializing
	return a
}

// detach marks the attempt torn down and returns the function releasing its
// resources. Must be called with Controller.mu held; the release function
// must be called without it. Safe on a nil or already detached attempt.
func (a *attempt) detach() func() {
	if a == nil || a.detached {
		return func() {}
	}
	a.detached = true
	a.cancel()

	peer, stream, unsubs := a.peer, a.stream, a.unsubs
	a.peer, a.stream, a.unsubs = nil, nil, nil
	a.queue = candidateQueue{}

	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
		if peer != nil {
			if err := peer.Close(); err != nil {
				a.log.Debug("peer close: %v", err)
			}
		}
		stream.Stop()
	}
}

// fail moves the active call to PhaseFailed and tears the attempt down.
// Failures of a superseded or already torn down attempt are ignored.
func (c *Controller) fail(a *attempt, err error) {
	c.mu.Lock()
	if a != c.cur || a.detached || !c.phase.CanTransitionTo(PhaseFailed) {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseFailed
	c.label = LabelFailed
	c.err = err
	release := a.detach()
	c.emitLocked()
	c.mu.Unlock()

	c.log.Error("call failed: %v", err)
	release()
}

// endLocal moves to PhaseEnded and releases everything. Idempotent.
func (c *Controller) endLocal() {
	c.mu.Lock()
	if c.phase == PhaseEnded {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseEnded
	c.label = LabelEnded
	release := c.cur.detach()
	watch := c.watch
	c.watch = nil
	c.emitLocked()
	c.mu.Unlock()

	release()
	if watch != nil {
		watch()
	}
	c.doneOnce.Do(func() {
		close(c.done)
		c.inbox.Close()
		c.cancel()
	})
}

// ---------------------------------------------------------------------------
// State reporting
// ---------------------------------------------------------------------------

func (c *Controller) stateLocked() State {
	return State{
		Role:         c.opts.Role,
		Phase:        c.phase,
		Label:        c.label,
		CallType:     c.opts.CallType,
		CallerName:   c.callerName,
		Caps:         c.caps,
		MicEnabled:   c.micEnabled,
		VideoEnabled: c.videoEnabled,
		Err:          c.err,
	}
}

// emitLocked queues the current state for OnChange. c.mu must be held so
// observers see changes in commit order.
func (c *Controller) emitLocked() {
	st := c.stateLocked()
	c.log.Debug("%s (%s)", st.Phase, st.Label)
	c.changes.Push(st)
}

func (c *Controller) deliverChanges(fn func(State)) {
	for {
		st, ok := c.changes.Pop(context.Background())
		if !ok {
			return
		}
		if fn != nil {
			fn(st)
		}
		if st.Phase == PhaseEnded {
			c.changes.Close()
			return
		}
	}
}

// setLabel updates the progress label while a is current.
func (c *Controller) setLabel(a *attempt, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a != c.cur || a.detached {
		return
	}
	c.label = label
	c.emitLocked()
}
