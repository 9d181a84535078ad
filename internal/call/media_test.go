package call

import (
	"context"
	"slices"
	"testing"

	"github.com/1ureka/telecall/internal/media"
	"github.com/1ureka/telecall/internal/protocol"
)

func TestAcquireMediaLadder(t *testing.T) {
	av := media.Constraints{Audio: true, Video: true}
	a := media.Constraints{Audio: true}

	testCases := []struct {
		name     string
		callType protocol.CallType
		mic, cam bool
		requests []media.Constraints
		caps     Capabilities
		kinds    []media.Kind
	}{
		{"video full", protocol.CallVideo, true, true, []media.Constraints{av}, Capabilities{HasCamera: true}, []media.Kind{media.KindAudio, media.KindVideo}},
		{"video no camera", protocol.CallVideo, true, false, []media.Constraints{av, a}, Capabilities{}, []media.Kind{media.KindAudio}},
		{"video nothing", protocol.CallVideo, false, false, []media.Constraints{av, a}, Capabilities{ListenerOnly: true}, nil},
		{"video camera only", protocol.CallVideo, false, true, []media.Constraints{av, a}, Capabilities{ListenerOnly: true}, nil},
		{"audio with mic", protocol.CallAudio, true, true, []media.Constraints{a}, Capabilities{}, []media.Kind{media.KindAudio}},
		{"audio no mic", protocol.CallAudio, false, true, []media.Constraints{a}, Capabilities{ListenerOnly: true}, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			capt := &fakeCapturer{mic: tc.mic, cam: tc.cam}
			stream, caps, err := acquireMedia(context.Background(), capt, tc.callType)
			if err != nil {
				t.Fatalf("acquireMedia failed: %v", err)
			}
			if caps != tc.caps {
				t.Errorf("caps: got %+v, want %+v", caps, tc.caps)
			}
			reqs, _ := capt.recorded()
			if !slices.Equal(reqs, tc.requests) {
				t.Errorf("requests: got %v, want %v", reqs, tc.requests)
			}
			var kinds []media.Kind
			for _, tr := range stream.Tracks() {
				kinds = append(kinds, tr.Kind())
			}
			if !slices.Equal(kinds, tc.kinds) {
				t.Errorf("tracks: got %v, want %v", kinds, tc.kinds)
			}
		})
	}
}

func TestAcquireMediaCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	capt := &fakeCapturer{}
	if _, _, err := acquireMedia(ctx, capt, protocol.CallVideo); err == nil {
		t.Fatal("expected cancellation error")
	}
	if reqs, _ := capt.recorded(); len(reqs) != 1 {
		t.Errorf("got %d requests after cancellation, want 1", len(reqs))
	}
}
