package media

import (
	"context"
	"time"

	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// Source produces encoded samples for a local track.
type Source interface {
	// NextSample blocks until the next sample is ready or ctx is done.
	NextSample(ctx context.Context) (pionmedia.Sample, error)
}

// opusSilence is a single Opus frame encoding 20ms of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Silence returns a microphone source that emits Opus silence every 20ms.
func Silence() Source {
	return &silenceSource{interval: 20 * time.Millisecond}
}

type silenceSource struct {
	interval time.Duration
	next     time.Time
}

func (s *silenceSource) NextSample(ctx context.Context) (pionmedia.Sample, error) {
	now := time.Now()
	if s.next.IsZero() || s.next.Before(now) {
		s.next = now
	}
	s.next = s.next.Add(s.interval)

	timer := time.NewTimer(time.Until(s.next))
	defer timer.Stop()
	select {
	case <-timer.C:
		return pionmedia.Sample{Data: append([]byte(nil), opusSilence...), Duration: s.interval}, nil
	case <-ctx.Done():
		return pionmedia.Sample{}, ctx.Err()
	}
}

// Blank returns a camera source that is present but produces no frames,
// for hosts without a capture driver.
func Blank() Source {
	return blankSource{}
}

type blankSource struct{}

func (blankSource) NextSample(ctx context.Context) (pionmedia.Sample, error) {
	<-ctx.Done()
	return pionmedia.Sample{}, ctx.Err()
}
