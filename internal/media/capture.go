package media

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/telecall/internal/util"
)

// Devices lists the capture sources present on this host. A nil source is
// an absent (or denied) device.
type Devices struct {
	Microphone Source
	Camera     Source
}

// DeviceCapturer is a Capturer over pion sample tracks fed by Sources.
type DeviceCapturer struct {
	devices Devices
}

var _ Capturer = (*DeviceCapturer)(nil)

// NewCapturer creates a capturer over the given devices.
func NewCapturer(devices Devices) *DeviceCapturer {
	return &DeviceCapturer{devices: devices}
}

var (
	opusCodec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	vp8Codec  = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
)

func (d *DeviceCapturer) Capture(ctx context.Context, c Constraints) (*Stream, error) {
	if !c.Audio && !c.Video {
		return nil, fmt.Errorf("capture %s: no media requested", c)
	}
	if c.Audio && d.devices.Microphone == nil {
		return nil, &DeviceError{Kind: KindAudio, Reason: "not found"}
	}
	if c.Video && d.devices.Camera == nil {
		return nil, &DeviceError{Kind: KindVideo, Reason: "not found"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamID := uuid.NewString()
	var tracks []Track

	if c.Audio {
		t, err := newSampleTrack(KindAudio, opusCodec, streamID, d.devices.Microphone)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	if c.Video {
		t, err := newSampleTrack(KindVideo, vp8Codec, streamID, d.devices.Camera)
		if err != nil {
			NewStream(streamID, tracks...).Stop()
			return nil, err
		}
		tracks = append(tracks, t)
	}

	util.LogDebug("captured %s as stream %s", c, streamID)
	return NewStream(streamID, tracks...), nil
}

// sampleTrack pumps samples from a Source into a pion sample track while
// enabled. Disabled tracks keep draining the source so unmuting resumes
// with fresh media.
type sampleTrack struct {
	kind    Kind
	local   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool

	cancel context.CancelFunc
	once   sync.Once
}

func newSampleTrack(kind Kind, codec webrtc.RTPCodecCapability, streamID string, src Source) (*sampleTrack, error) {
	local, err := webrtc.NewTrackLocalStaticSample(codec, string(kind)+"-"+uuid.NewString(), streamID)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", kind, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &sampleTrack{kind: kind, local: local, cancel: cancel}
	t.enabled.Store(true)

	go t.pump(ctx, src)
	return t, nil
}

func (t *sampleTrack) pump(ctx context.Context, src Source) {
	for {
		sample, err := src.NextSample(ctx)
		if err != nil {
			return
		}
		if !t.enabled.Load() {
			continue
		}
		if err := t.local.WriteSample(sample); err != nil {
			util.LogDebug("%s track write failed: %v", t.kind, err)
			continue
		}
		util.Stats.AddSent(len(sample.Data))
	}
}

func (t *sampleTrack) ID() string               { return t.local.ID() }
func (t *sampleTrack) Kind() Kind               { return t.kind }
func (t *sampleTrack) Enabled() bool            { return t.enabled.Load() }
func (t *sampleTrack) SetEnabled(enabled bool)  { t.enabled.Store(enabled) }
func (t *sampleTrack) Local() webrtc.TrackLocal { return t.local }

func (t *sampleTrack) Stop() {
	t.once.Do(func() {
		t.enabled.Store(false)
		t.cancel()
	})
}
