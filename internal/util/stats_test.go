package util

import "testing"

func TestFormatBytes(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{5 * 1024 * 1024, " 5.0 MiB"},
	}

	for _, tc := range testCases {
		if got := formatBytes(tc.in); got != tc.want {
			t.Errorf("formatBytes(%v): got %q, want %q", tc.in, got, tc.want)
		}
		if len(formatBytes(tc.in)) != 8 {
			t.Errorf("formatBytes(%v) is not 8 chars wide", tc.in)
		}
	}
}

func TestFormatStats(t *testing.T) {
	got := formatStats(0, 2048, 3, 5)
	want := "Media In:  0.0   B/s | Out:  2.0 KiB/s | ICE:  3↑  5↓"
	if got != want {
		t.Errorf("formatStats: got %q, want %q", got, want)
	}
}
