package app

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pterm/pterm"

	"github.com/1ureka/telecall/internal/call"
	"github.com/1ureka/telecall/internal/protocol"
)

// printServerInfo prints the box shown when the signaling server is up.
func printServerInfo(addr, pin string) {
	if pin == "" {
		pin = "(none)"
	}
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║       Call Signaling Server (WS)         ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Addr : %-32s ║\n", addr)
	fmt.Printf("║  PIN  : %-32s ║\n", pin)
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Println("║  Tip: forward this port to reach it      ║")
	fmt.Println("║  from another network                    ║")
	fmt.Println("╚══════════════════════════════════════════╝")
	fmt.Println()
}

// describeIncoming is the one-line summary of an incoming call.
func describeIncoming(sess *protocol.Session) string {
	return incomingLine(sess.CallType, sess.CallerName)
}

func incomingLine(callType protocol.CallType, from string) string {
	if from == "" {
		from = "unknown caller"
	}
	return fmt.Sprintf("Incoming %s call from %s", callType, from)
}

// stateLine is the console rendering of a controller state.
func stateLine(s call.State) string {
	if s.Phase == call.PhaseIncoming {
		return incomingLine(s.CallType, s.CallerName)
	}

	var b strings.Builder
	b.WriteString(s.Label)
	if s.Phase == call.PhaseActive && s.Label != call.LabelInitializing && s.Label != call.LabelConnectingDevices {
		fmt.Fprintf(&b, "  [%s", s.ModeLabel())
		if s.CanToggleMic() && !s.MicEnabled {
			b.WriteString(", muted")
		}
		if s.CanToggleVideo() && !s.VideoEnabled {
			b.WriteString(", camera off")
		}
		b.WriteString("]")
	}
	if s.Phase == call.PhaseFailed && s.Err != nil {
		fmt.Fprintf(&b, ": %v", s.Err)
	}
	return b.String()
}

// newRenderer returns an OnChange observer printing each distinct state line.
func newRenderer() func(call.State) {
	var (
		mu   sync.Mutex
		last string
	)
	return func(s call.State) {
		line := stateLine(s)
		mu.Lock()
		defer mu.Unlock()
		if line == last {
			return
		}
		last = line

		switch {
		case s.Phase == call.PhaseFailed:
			pterm.Error.Println(line)
		case s.Phase == call.PhaseEnded:
			pterm.Info.Println(line)
		case s.Label == call.LabelConnected:
			pterm.Success.Println(line)
		case s.Phase == call.PhaseIncoming:
			pterm.Warning.Println(line)
		default:
			pterm.Info.Println(line)
		}
	}
}
