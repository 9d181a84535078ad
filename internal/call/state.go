package call

import (
	"github.com/1ureka/telecall/internal/protocol"
)

// Role is the participant's part in the call.
type Role string

const (
	RoleCaller   Role = "caller"
	RoleReceiver Role = "receiver"
)

// Phase is the controller's lifecycle phase.
type Phase int

const (
	// PhaseIncoming: the receiver is deciding whether to accept.
	PhaseIncoming Phase = iota
	// PhaseActive: media acquisition, negotiation or an established call.
	PhaseActive
	// PhaseFailed: signaling failed; the error stays on screen until closed.
	PhaseFailed
	// PhaseEnded: torn down.
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseIncoming:
		return "incoming"
	case PhaseActive:
		return "active"
	case PhaseFailed:
		return "failed"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

var validTransitions = map[Phase][]Phase{
	PhaseIncoming: {PhaseActive, PhaseEnded},
	PhaseActive:   {PhaseFailed, PhaseEnded},
	PhaseFailed:   {PhaseEnded},
}

// CanTransitionTo reports whether the phase may move to next.
func (p Phase) CanTransitionTo(next Phase) bool {
	for _, allowed := range validTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (p Phase) IsTerminal() bool {
	return len(validTransitions[p]) == 0
}

// Labels shown to the user while the call progresses.
const (
	LabelInitializing      = "Initializing..."
	LabelConnectingDevices = "Connecting Devices..."
	LabelCalling           = "Calling..."
	LabelConnecting        = "Connecting..."
	LabelConnected         = "Connected"
	LabelFailed            = "Call Failed"
	LabelEnded             = "Call Ended"
)

// Capabilities is the outcome of local media acquisition. It is replaced
// as a whole, never mutated.
type Capabilities struct {
	HasCamera    bool
	ListenerOnly bool
}

// State is a snapshot of the controller.
type State struct {
	Role         Role
	Phase        Phase
	Label        string
	CallType     protocol.CallType
	CallerName   string
	Caps         Capabilities
	MicEnabled   bool
	VideoEnabled bool
	Err          error
}

// CanToggleMic reports whether the microphone control is usable.
func (s State) CanToggleMic() bool {
	return s.Phase == PhaseActive && !s.Caps.ListenerOnly
}

// CanToggleVideo reports whether the camera control is usable.
func (s State) CanToggleVideo() bool {
	return s.CanToggleMic() && s.CallType == protocol.CallVideo && s.Caps.HasCamera
}

// ModeLabel is the short media mode shown next to the call status.
func (s State) ModeLabel() string {
	switch {
	case s.Caps.ListenerOnly && s.CallType == protocol.CallAudio:
		return "Mic Failed"
	case s.Caps.ListenerOnly:
		return "Listener Mode"
	case s.CallType == protocol.CallAudio:
		return "Audio Only"
	case !s.Caps.HasCamera:
		return "No Camera"
	default:
		return "Video"
	}
}
