package call

import (
	"fmt"

	"github.com/1ureka/telecall/internal/media"
)

// ToggleMic mutes or unmutes the local audio without renegotiation and
// returns the new state.
func (c *Controller) ToggleMic() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.stateLocked().CanToggleMic() {
		return c.micEnabled, fmt.Errorf("%w: microphone", ErrControlUnavailable)
	}
	c.micEnabled = !c.micEnabled
	c.applyLocked(media.KindAudio, c.micEnabled)
	c.emitLocked()
	return c.micEnabled, nil
}

// ToggleVideo turns the local camera on or off without renegotiation and
// returns the new state.
func (c *Controller) ToggleVideo() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.stateLocked().CanToggleVideo() {
		return c.videoEnabled, fmt.Errorf("%w: camera", ErrControlUnavailable)
	}
	c.videoEnabled = !c.videoEnabled
	c.applyLocked(media.KindVideo, c.videoEnabled)
	c.emitLocked()
	return c.videoEnabled, nil
}

func (c *Controller) applyLocked(kind media.Kind, enabled bool) {
	if c.cur == nil {
		return
	}
	for _, t := range c.cur.stream.TracksOf(kind) {
		t.SetEnabled(enabled)
	}
}
