package call

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/telecall/internal/media"
	"github.com/1ureka/telecall/internal/protocol"
	"github.com/1ureka/telecall/internal/store"
)

// Compile-time interface checks.
var (
	_ Peer           = (*fakePeer)(nil)
	_ media.Track    = (*fakeTrack)(nil)
	_ media.Capturer = (*fakeCapturer)(nil)
)

// ---------------------------------------------------------------------------
// Peer
// ---------------------------------------------------------------------------

// fakePeer is an in-memory peer connection. Its SDP lists the kinds of the
// tracks added before the description was created; once it holds both
// descriptions it reports one remote track per kind listed by the other
// side. After SetLocalDescription it trickles numCandidates local
// candidates with random delays in [0, 10ms).
type fakePeer struct {
	id            string
	numCandidates int

	mu           sync.Mutex
	tracks       []media.Track
	onTrack      func(media.Remote)
	onCandidate  func(protocol.Candidate)
	local        *protocol.Description
	remote       *protocol.Description
	applied      []protocol.Candidate
	appliedEarly int
	remoteSets   int
	closes       int
	firedTracks  bool
	done         chan struct{}
}

func newFakePeer(id string, numCandidates int) *fakePeer {
	return &fakePeer{id: id, numCandidates: numCandidates, done: make(chan struct{})}
}

func (p *fakePeer) AddTrack(track media.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closes > 0 {
		return fmt.Errorf("closed")
	}
	p.tracks = append(p.tracks, track)
	return nil
}

func (p *fakePeer) OnTrack(fn func(media.Remote)) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnICECandidate(fn func(protocol.Candidate)) {
	p.mu.Lock()
	p.onCandidate = fn
	p.mu.Unlock()
}

func (p *fakePeer) CreateOffer() (protocol.Description, error) {
	return p.describe(protocol.SDPOffer), nil
}

func (p *fakePeer) CreateAnswer() (protocol.Description, error) {
	p.mu.Lock()
	hasRemote := p.remote != nil
	p.mu.Unlock()
	if !hasRemote {
		return protocol.Description{}, fmt.Errorf("answer without remote offer")
	}
	return p.describe(protocol.SDPAnswer), nil
}

func (p *fakePeer) describe(t protocol.SDPType) protocol.Description {
	p.mu.Lock()
	defer p.mu.Unlock()
	var kinds []string
	for _, tr := range p.tracks {
		kinds = append(kinds, string(tr.Kind()))
	}
	return protocol.Description{Type: t, SDP: "fake:" + p.id + ":" + strings.Join(kinds, ",")}
}

func (p *fakePeer) SetLocalDescription(d protocol.Description) error {
	p.mu.Lock()
	if p.closes > 0 {
		p.mu.Unlock()
		return fmt.Errorf("closed")
	}
	p.local = &d
	n := p.numCandidates
	p.mu.Unlock()

	go p.trickle(n)
	p.maybeFireTracks()
	return nil
}

func (p *fakePeer) trickle(n int) {
	for i := range n {
		select {
		case <-time.After(time.Duration(rand.IntN(10)) * time.Millisecond):
		case <-p.done:
			return
		}
		p.mu.Lock()
		fn := p.onCandidate
		p.mu.Unlock()
		if fn != nil {
			fn(protocol.Candidate{Candidate: fmt.Sprintf("candidate:%s:%d", p.id, i)})
		}
	}
}

func (p *fakePeer) SetRemoteDescription(d protocol.Description) error {
	p.mu.Lock()
	if p.closes > 0 {
		p.mu.Unlock()
		return fmt.Errorf("closed")
	}
	p.remote = &d
	p.remoteSets++
	p.mu.Unlock()

	p.maybeFireTracks()
	return nil
}

func (p *fakePeer) maybeFireTracks() {
	p.mu.Lock()
	if p.firedTracks || p.local == nil || p.remote == nil {
		p.mu.Unlock()
		return
	}
	p.firedTracks = true
	fn := p.onTrack
	parts := strings.SplitN(p.remote.SDP, ":", 3)
	p.mu.Unlock()

	if fn == nil || len(parts) != 3 || parts[2] == "" {
		return
	}
	for _, kind := range strings.Split(parts[2], ",") {
		go fn(media.Remote{Kind: media.Kind(kind), ID: parts[1] + "-" + kind, StreamID: parts[1]})
	}
}

func (p *fakePeer) HasRemoteDescription() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote != nil
}

func (p *fakePeer) AddICECandidate(c protocol.Candidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		p.appliedEarly++
		return fmt.Errorf("remote description not set")
	}
	p.applied = append(p.applied, c)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closes == 0 {
		close(p.done)
	}
	p.closes++
	return nil
}

func (p *fakePeer) snapshot() (applied []protocol.Candidate, early, remoteSets, closes, tracks int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.Candidate(nil), p.applied...), p.appliedEarly, p.remoteSets, p.closes, len(p.tracks)
}

// peerLog records every peer a controller created.
type peerLog struct {
	mu    sync.Mutex
	peers []*fakePeer
}

func (l *peerLog) factory(prefix string, numCandidates int) PeerFactory {
	return func() (Peer, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		p := newFakePeer(fmt.Sprintf("%s%d", prefix, len(l.peers)), numCandidates)
		l.peers = append(l.peers, p)
		return p, nil
	}
}

func (l *peerLog) list() []*fakePeer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*fakePeer(nil), l.peers...)
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

type fakeTrack struct {
	kind    media.Kind
	mu      sync.Mutex
	enabled bool
	stopped int
}

func (t *fakeTrack) ID() string               { return "fake-" + string(t.kind) }
func (t *fakeTrack) Kind() media.Kind         { return t.kind }
func (t *fakeTrack) Local() webrtc.TrackLocal { return nil }

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped++
	t.enabled = false
}

func (t *fakeTrack) stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// fakeCapturer grants requests for the devices it has and records every
// request it receives.
type fakeCapturer struct {
	mic, cam bool

	mu       sync.Mutex
	requests []media.Constraints
	tracks   []*fakeTrack
}

func (f *fakeCapturer) Capture(_ context.Context, c media.Constraints) (*media.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)

	if c.Audio && !f.mic {
		return nil, &media.DeviceError{Kind: media.KindAudio, Reason: "permission denied"}
	}
	if c.Video && !f.cam {
		return nil, &media.DeviceError{Kind: media.KindVideo, Reason: "not found"}
	}

	var tracks []media.Track
	if c.Audio {
		t := &fakeTrack{kind: media.KindAudio, enabled: true}
		f.tracks = append(f.tracks, t)
		tracks = append(tracks, t)
	}
	if c.Video {
		t := &fakeTrack{kind: media.KindVideo, enabled: true}
		f.tracks = append(f.tracks, t)
		tracks = append(tracks, t)
	}
	return media.NewStream(fmt.Sprintf("stream-%d", len(f.requests)), tracks...), nil
}

func (f *fakeCapturer) recorded() ([]media.Constraints, []*fakeTrack) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]media.Constraints(nil), f.requests...), append([]*fakeTrack(nil), f.tracks...)
}

// sinkRecorder collects remote tracks and preview bindings.
type sinkRecorder struct {
	mu       sync.Mutex
	kinds    []media.Kind
	previews int
}

func (s *sinkRecorder) Bind(r media.Remote) {
	s.mu.Lock()
	s.kinds = append(s.kinds, r.Kind)
	s.mu.Unlock()
}

func (s *sinkRecorder) Preview(*media.Stream) {
	s.mu.Lock()
	s.previews++
	s.mu.Unlock()
}

func (s *sinkRecorder) has(kind media.Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (s *sinkRecorder) previewCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previews
}

func (s *sinkRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.kinds)
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// storeOp is one recorded write.
type storeOp struct {
	op     string
	fields store.Fields
}

// recordingStore records the writes one participant makes to a shared store.
type recordingStore struct {
	store.Store
	mu  sync.Mutex
	ops []storeOp
}

func (r *recordingStore) record(op string, fields store.Fields) {
	r.mu.Lock()
	r.ops = append(r.ops, storeOp{op: op, fields: fields})
	r.mu.Unlock()
}

func (r *recordingStore) Set(ctx context.Context, path string, fields store.Fields) error {
	r.record("set", fields)
	return r.Store.Set(ctx, path, fields)
}

func (r *recordingStore) Update(ctx context.Context, path string, fields store.Fields) error {
	r.record("update", fields)
	return r.Store.Update(ctx, path, fields)
}

func (r *recordingStore) Delete(ctx context.Context, path string) error {
	r.record("delete", nil)
	return r.Store.Delete(ctx, path)
}

func (r *recordingStore) writes() []storeOp {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]storeOp(nil), r.ops...)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const waitTimeout = 5 * time.Second

// eventually polls cond until it holds or the timeout expires.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDone(t *testing.T, c *Controller, who string) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(waitTimeout):
		t.Fatalf("%s did not end (state %+v)", who, c.State())
	}
}

// heldWatchStore never delivers session changes on its own; the test hands
// snapshots to the watchers with deliver, as a late notification would.
type heldWatchStore struct {
	store.Store
	mu       sync.Mutex
	watchers []func(store.Snapshot)
}

func (h *heldWatchStore) Watch(_ context.Context, _ string, fn func(store.Snapshot)) (store.Unsubscribe, error) {
	h.mu.Lock()
	h.watchers = append(h.watchers, fn)
	h.mu.Unlock()
	return func() {}, nil
}

func (h *heldWatchStore) watching() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}

func (h *heldWatchStore) deliver(s store.Snapshot) {
	h.mu.Lock()
	fns := append(([]func(store.Snapshot))(nil), h.watchers...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}
