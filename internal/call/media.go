package call

import (
	"context"

	"github.com/1ureka/telecall/internal/media"
	"github.com/1ureka/telecall/internal/protocol"
	"github.com/1ureka/telecall/internal/util"
)

// acquireMedia walks the fallback ladder: audio (plus video for video
// calls), then audio alone, then no media at all. Device failures never
// escape; only cancellation does.
func acquireMedia(ctx context.Context, capturer media.Capturer, callType protocol.CallType) (*media.Stream, Capabilities, error) {
	want := media.Constraints{Audio: true, Video: callType == protocol.CallVideo}

	stream, err := capturer.Capture(ctx, want)
	if err == nil {
		return stream, Capabilities{HasCamera: want.Video}, nil
	}
	if ctx.Err() != nil {
		return nil, Capabilities{}, ctx.Err()
	}

	if want.Video {
		util.LogWarning("camera unavailable (%v), retrying with audio only", err)
		stream, err = capturer.Capture(ctx, media.Constraints{Audio: true})
		if err == nil {
			return stream, Capabilities{}, nil
		}
		if ctx.Err() != nil {
			return nil, Capabilities{}, ctx.Err()
		}
	}

	util.LogWarning("microphone unavailable (%v), joining as listener", err)
	return nil, Capabilities{ListenerOnly: true}, nil
}
