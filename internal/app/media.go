package app

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/telecall/internal/call"
	"github.com/1ureka/telecall/internal/config"
	"github.com/1ureka/telecall/internal/media"
	"github.com/1ureka/telecall/internal/store"
	"github.com/1ureka/telecall/internal/transport"
	"github.com/1ureka/telecall/internal/util"
)

// rtpBufferSize fits one RTP packet on a typical MTU.
const rtpBufferSize = 1500

// remoteSink drains remote tracks, counting received bytes for the stats
// reporter. The console has nowhere to render media.
type remoteSink struct{}

func (remoteSink) Bind(r media.Remote) {
	util.LogSuccess("receiving remote %s (stream %s)", r.Kind, r.StreamID)
	if r.Track == nil {
		return
	}
	go func() {
		buf := make([]byte, rtpBufferSize)
		for {
			n, _, err := r.Track.Read(buf)
			if err != nil {
				util.LogDebug("remote %s track ended: %v", r.Kind, err)
				return
			}
			util.Stats.AddRecv(n)
		}
	}()
}

// previewSink reports the local camera preview.
type previewSink struct{}

func (previewSink) Preview(s *media.Stream) {
	util.LogInfo("local preview on (%d video track(s))", len(s.TracksOf(media.KindVideo)))
}

// devices maps the configured devices to capture sources.
func devices(cfg *config.Config) media.Devices {
	var d media.Devices
	if cfg.Microphone {
		d.Microphone = media.Silence()
	}
	if cfg.Camera {
		d.Camera = media.Blank()
	}
	return d
}

// peerConfig builds the peer connection settings from cfg.
func peerConfig(cfg *config.Config) transport.Config {
	pc := transport.DefaultConfig()
	if len(cfg.STUNServers) > 0 {
		pc.ICEServers = cfg.STUNServers
	}
	pc.CandidatePoolSize = uint8(cfg.CandidatePoolSize)
	return pc
}

// newPeerFactory returns a factory for pion peer connections that log
// their connection state.
func newPeerFactory(pc transport.Config) call.PeerFactory {
	return func() (call.Peer, error) {
		p, err := transport.NewPeer(pc)
		if err != nil {
			return nil, err
		}
		p.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
			switch state {
			case webrtc.PeerConnectionStateConnected:
				util.LogSuccess("peer connection established")
			case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
				util.LogWarning("peer connection %s", state.String())
			default:
				util.LogDebug("peer connection state: %s", state.String())
			}
		})
		return p, nil
	}
}

// controllerDeps wires the controller to st and this host's media.
func controllerDeps(cfg *config.Config, st store.Store) call.Deps {
	return call.Deps{
		Store:    st,
		Capturer: media.NewCapturer(devices(cfg)),
		NewPeer:  newPeerFactory(peerConfig(cfg)),
		Remote:   remoteSink{},
		Preview:  previewSink{},
	}
}
