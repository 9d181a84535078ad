// Package media provides local capture and remote track handling for calls.
package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Kind is the media kind of a track.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Constraints selects which devices a capture request asks for.
type Constraints struct {
	Audio bool
	Video bool
}

func (c Constraints) String() string {
	return fmt.Sprintf("{audio: %t, video: %t}", c.Audio, c.Video)
}

// ErrDeviceUnavailable is wrapped by every capture failure.
var ErrDeviceUnavailable = errors.New("device unavailable")

// DeviceError reports which device a capture request could not obtain.
type DeviceError struct {
	Kind   Kind
	Reason string // "not found", "permission denied", ...
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s device unavailable: %s", e.Kind, e.Reason)
}

func (e *DeviceError) Unwrap() error { return ErrDeviceUnavailable }

// Track is a local media track.
type Track interface {
	ID() string
	Kind() Kind
	// Enabled reports whether the track transmits media.
	Enabled() bool
	// SetEnabled mutes or unmutes the track without renegotiation.
	SetEnabled(enabled bool)
	// Stop releases the underlying device. A stopped track stays stopped.
	Stop()
	// Local returns the track handed to the peer connection.
	Local() webrtc.TrackLocal
}

// Stream groups the tracks returned by one capture request.
type Stream struct {
	id     string
	tracks []Track
}

// NewStream groups tracks under the stream id.
func NewStream(id string, tracks ...Track) *Stream {
	return &Stream{id: id, tracks: tracks}
}

func (s *Stream) ID() string { return s.id }

// Tracks returns every track of the stream.
func (s *Stream) Tracks() []Track {
	if s == nil {
		return nil
	}
	return s.tracks
}

// TracksOf returns the tracks of the given kind.
func (s *Stream) TracksOf(kind Kind) []Track {
	var out []Track
	for _, t := range s.Tracks() {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// Stop stops every track. Safe on a nil stream.
func (s *Stream) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// Capturer obtains local media.
type Capturer interface {
	// Capture returns a stream satisfying every requested constraint or an
	// error wrapping ErrDeviceUnavailable. It never returns a partial stream.
	Capture(ctx context.Context, c Constraints) (*Stream, error)
}

// Remote is a track received from the other participant.
type Remote struct {
	Kind     Kind
	ID       string
	StreamID string
	Track    *webrtc.TrackRemote // nil outside a real peer connection
}

// RemoteSink renders remote tracks.
type RemoteSink interface {
	Bind(r Remote)
}

// PreviewSink renders the local camera preview.
type PreviewSink interface {
	Preview(s *Stream)
}
