// Package transport adapts a pion PeerConnection to the operations a call
// needs: media tracks, offer/answer and trickled ICE candidates.
package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/telecall/internal/media"
	"github.com/1ureka/telecall/internal/protocol"
	"github.com/1ureka/telecall/internal/util"
)

// ErrClosed is returned by operations on a closed Peer.
var ErrClosed = errors.New("peer connection closed")

// Peer wraps a single PeerConnection.
//
// Close is idempotent and may be called from any goroutine; callbacks
// registered before Close stop firing once it returns.
type Peer struct {
	pc *webrtc.PeerConnection

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
	closed  bool
	onState func(webrtc.PeerConnectionState)

	closeOnce sync.Once
	closeErr  error
}

// NewPeer creates a Peer backed by a new PeerConnection configured with cfg.
func NewPeer(cfg Config) (*Peer, error) {
	pc, err := newPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{pc: pc, pcState: webrtc.PeerConnectionStateNew}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		p.mu.Lock()
		p.pcState = state
		fn := p.onState
		p.mu.Unlock()
		if fn != nil {
			fn(state)
		}
	})

	return p, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Close shuts down the PeerConnection. Later calls return the first result.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.closeErr = p.pc.Close()
	})
	return p.closeErr
}

// ConnectionState returns the last observed PeerConnection state.
func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pcState
}

// OnConnectionStateChange registers fn for connection state changes.
func (p *Peer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

func (p *Peer) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

// AddTrack attaches a local track and drains its RTCP feedback.
func (p *Peer) AddTrack(track media.Track) error {
	if p.isClosed() {
		return ErrClosed
	}

	sender, err := p.pc.AddTrack(track.Local())
	if err != nil {
		return fmt.Errorf("add %s track: %w", track.Kind(), err)
	}

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// OnTrack registers fn for every remote track.
func (p *Peer) OnTrack(fn func(media.Remote)) {
	p.pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if p.isClosed() {
			return
		}
		util.LogDebug("remote %s track %s", tr.Kind().String(), tr.ID())
		fn(media.Remote{
			Kind:     media.Kind(tr.Kind().String()),
			ID:       tr.ID(),
			StreamID: tr.StreamID(),
			Track:    tr,
		})
	})
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (p *Peer) CreateOffer() (protocol.Description, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return protocol.Description{}, err
	}
	return toDescription(offer), nil
}

// CreateAnswer generates an SDP answer.
func (p *Peer) CreateAnswer() (protocol.Description, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.Description{}, err
	}
	return toDescription(answer), nil
}

// SetLocalDescription applies the local SDP and starts gathering.
func (p *Peer) SetLocalDescription(d protocol.Description) error {
	return p.pc.SetLocalDescription(fromDescription(d))
}

// SetRemoteDescription applies the remote SDP.
func (p *Peer) SetRemoteDescription(d protocol.Description) error {
	return p.pc.SetRemoteDescription(fromDescription(d))
}

// HasRemoteDescription reports whether a remote description was applied.
func (p *Peer) HasRemoteDescription() bool {
	return p.pc.RemoteDescription() != nil
}

// OnICECandidate registers fn for every gathered local candidate. The end
// of gathering is not reported.
func (p *Peer) OnICECandidate(fn func(protocol.Candidate)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || p.isClosed() {
			return
		}
		fn(toCandidate(c.ToJSON()))
	})
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (p *Peer) AddICECandidate(c protocol.Candidate) error {
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

func toDescription(sd webrtc.SessionDescription) protocol.Description {
	return protocol.Description{Type: protocol.SDPType(sd.Type.String()), SDP: sd.SDP}
}

func fromDescription(d protocol.Description) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(string(d.Type)), SDP: d.SDP}
}

func toCandidate(init webrtc.ICECandidateInit) protocol.Candidate {
	return protocol.Candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}
