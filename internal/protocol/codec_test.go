package protocol

import (
	"testing"
	"time"
)

// TestSessionFieldNames verifies the document keeps the field names both
// participants depend on.
func TestSessionFieldNames(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewOffer(Description{Type: SDPOffer, SDP: "v=0"}, CallVideo, "Dr. Lin", at)

	fields, err := EncodeSession(s)
	if err != nil {
		t.Fatalf("EncodeSession failed: %v", err)
	}

	for _, key := range []string{FieldStatus, FieldCallType, FieldCallerName, FieldOffer, FieldCreatedAt, FieldUpdatedAt} {
		if _, ok := fields[key]; !ok {
			t.Errorf("missing field %q in %v", key, fields)
		}
	}
	if _, ok := fields[FieldAnswer]; ok {
		t.Errorf("answer should be omitted before the receiver answers")
	}
	if fields[FieldStatus] != "calling" {
		t.Errorf("status: got %v, want calling", fields[FieldStatus])
	}

	offer, ok := fields[FieldOffer].(map[string]any)
	if !ok {
		t.Fatalf("offer has shape %T, want map", fields[FieldOffer])
	}
	if offer["type"] != "offer" || offer["sdp"] != "v=0" {
		t.Errorf("offer mismatch: %v", offer)
	}
}

// TestDecodeSessionAfterAnswer verifies a full session survives the field
// representation, including a merged answer update.
func TestDecodeSessionAfterAnswer(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	fields, err := EncodeSession(NewOffer(Description{Type: SDPOffer, SDP: "offer-sdp"}, CallAudio, "Nurse", at))
	if err != nil {
		t.Fatalf("EncodeSession failed: %v", err)
	}
	for k, v := range AnswerUpdate(Description{Type: SDPAnswer, SDP: "answer-sdp"}, at.Add(time.Second)) {
		fields[k] = v
	}

	s, err := DecodeSession(fields)
	if err != nil {
		t.Fatalf("DecodeSession failed: %v", err)
	}
	if s.Status != StatusAccepted {
		t.Errorf("status: got %q, want accepted", s.Status)
	}
	if s.CallType != CallAudio || s.CallerName != "Nurse" {
		t.Errorf("unexpected session: %+v", s)
	}
	if err := s.Offer.Validate(SDPOffer); err != nil {
		t.Errorf("offer invalid: %v", err)
	}
	if err := s.Answer.Validate(SDPAnswer); err != nil {
		t.Errorf("answer invalid: %v", err)
	}
	if !s.CreatedAt.Equal(at) {
		t.Errorf("createdAt: got %v, want %v", s.CreatedAt, at)
	}
	if !s.UpdatedAt.Equal(at.Add(time.Second)) {
		t.Errorf("updatedAt: got %v", s.UpdatedAt)
	}
}

func TestDecodeSessionUnknownStatus(t *testing.T) {
	if _, err := DecodeSession(map[string]any{"status": "ringing"}); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestDescriptionValidate(t *testing.T) {
	testCases := []struct {
		name    string
		desc    *Description
		wantErr bool
	}{
		{"nil", nil, true},
		{"wrong type", &Description{Type: SDPAnswer, SDP: "v=0"}, true},
		{"empty sdp", &Description{Type: SDPOffer, SDP: "  "}, true},
		{"ok", &Description{Type: SDPOffer, SDP: "v=0"}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.desc.Validate(SDPOffer)
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate: got err=%v, wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestCandidateFields(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	c := Candidate{Candidate: "candidate:1 1 udp 2130706431 10.0.0.2 50000 typ host", SDPMid: &mid, SDPMLineIndex: &idx}

	fields, err := EncodeCandidate(c)
	if err != nil {
		t.Fatalf("EncodeCandidate failed: %v", err)
	}
	if _, ok := fields["sdpMLineIndex"]; !ok {
		t.Errorf("sdpMLineIndex missing: %v", fields)
	}

	got, err := DecodeCandidate(fields)
	if err != nil {
		t.Fatalf("DecodeCandidate failed: %v", err)
	}
	if got.Candidate != c.Candidate || *got.SDPMid != mid || *got.SDPMLineIndex != idx {
		t.Errorf("candidate mismatch: %+v", got)
	}

	if _, err := DecodeCandidate(map[string]any{"sdpMid": "0"}); err == nil {
		t.Error("expected error for empty candidate line")
	}
}

// TestStatusAdvance verifies the status only moves forward, except to ended.
func TestStatusAdvance(t *testing.T) {
	testCases := []struct {
		from, to Status
		want     bool
	}{
		{StatusIdle, StatusCalling, true},
		{StatusCalling, StatusAccepted, true},
		{StatusAccepted, StatusConnected, true},
		{StatusConnected, StatusEnded, true},
		{StatusCalling, StatusEnded, true},
		{StatusEnded, StatusEnded, true},
		{StatusAccepted, StatusCalling, false},
		{StatusConnected, StatusAccepted, false},
		{StatusEnded, StatusConnected, false},
		{StatusCalling, StatusCalling, false},
		{Status("bogus"), StatusCalling, false},
		{Status(""), StatusAccepted, true},
	}

	for _, tc := range testCases {
		if got := tc.from.CanAdvanceTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestRinging(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusIdle:      false,
		StatusCalling:   true,
		StatusAccepted:  true,
		StatusConnected: true,
		StatusEnded:     false,
	} {
		if got := status.Ringing(); got != want {
			t.Errorf("%s.Ringing(): got %v, want %v", status, got, want)
		}
	}
}

func TestParseCallType(t *testing.T) {
	if ct, err := ParseCallType(" Video "); err != nil || ct != CallVideo {
		t.Errorf("ParseCallType(Video): got %q, %v", ct, err)
	}
	if _, err := ParseCallType("screen"); err == nil {
		t.Error("expected error for unknown call type")
	}
}

func TestCallNotification(t *testing.T) {
	n := NewCallNotification("patient-7", CallVideo, time.Now())
	if n.Title != "Incoming video call" || n.Type != "call" || n.Read {
		t.Errorf("unexpected notification: %+v", n)
	}
	fields, err := EncodeNotification(n)
	if err != nil {
		t.Fatalf("EncodeNotification failed: %v", err)
	}
	if fields["targetUserId"] != "patient-7" || fields["read"] != false {
		t.Errorf("unexpected fields: %v", fields)
	}

	back, err := DecodeNotification(fields)
	if err != nil {
		t.Fatalf("DecodeNotification failed: %v", err)
	}
	if back.TargetUserID != n.TargetUserID || back.Title != n.Title || !back.CreatedAt.Equal(n.CreatedAt) {
		t.Errorf("decoded %+v, want %+v", back, n)
	}
}

func TestValidateCaseID(t *testing.T) {
	if err := ValidateCaseID("case-42"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, bad := range []string{"", "a/b", "a b"} {
		if err := ValidateCaseID(bad); err == nil {
			t.Errorf("ValidateCaseID(%q): expected error", bad)
		}
	}
	if got := SessionPath("c1"); got != "cases/c1/calls/active_call" {
		t.Errorf("SessionPath: got %q", got)
	}
}
