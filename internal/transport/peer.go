package transport

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// STUN servers for ICE candidate gathering. No TURN: calls rely on direct
// connectivity between the two participants.
var stunServers = []string{
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
}

// candidatePoolSize is the ICE candidate pre-gathering hint.
const candidatePoolSize = 10

// Config selects the ICE servers of a peer connection.
type Config struct {
	ICEServers        []string
	CandidatePoolSize uint8
	// Loopback also gathers 127.0.0.1 candidates, for calls on one host.
	Loopback bool
}

// DefaultConfig returns the public Google STUN servers with a pool of 10.
func DefaultConfig() Config {
	return Config{
		ICEServers:        append([]string(nil), stunServers...),
		CandidatePoolSize: candidatePoolSize,
	}
}

// newPeerConnection creates a PeerConnection for cfg with the default
// codecs and interceptors. An empty server list restricts gathering to host
// candidates.
func newPeerConnection(cfg Config) (*webrtc.PeerConnection, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(cfg.Loopback)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	)

	config := webrtc.Configuration{
		ICECandidatePoolSize: cfg.CandidatePoolSize,
	}
	if len(cfg.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{
			{URLs: cfg.ICEServers},
		}
	}
	return api.NewPeerConnection(config)
}
