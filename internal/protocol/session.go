// Package protocol defines the CallSession document shared by the two
// participants of a call, together with the candidate sequences and the
// notification record written alongside it.
package protocol

import (
	"fmt"
	"strings"
	"time"
)

// Sub-collection names under a CallSession document. The caller appends to
// OfferCandidates, the receiver to AnswerCandidates.
const (
	OfferCandidates  = "offerCandidates"
	AnswerCandidates = "answerCandidates"
)

// Field names of the CallSession document.
const (
	FieldStatus     = "status"
	FieldCallType   = "callType"
	FieldCallerName = "callerName"
	FieldOffer      = "offer"
	FieldAnswer     = "answer"
	FieldCreatedAt  = "createdAt"
	FieldUpdatedAt  = "updatedAt"
)

// SessionPath returns the location of the single active CallSession of a case.
func SessionPath(caseID string) string {
	return "cases/" + caseID + "/calls/active_call"
}

// ValidateCaseID rejects identifiers that cannot be embedded in a document path.
func ValidateCaseID(caseID string) error {
	if caseID == "" {
		return fmt.Errorf("case id is empty")
	}
	if strings.ContainsAny(caseID, "/ \t\n") {
		return fmt.Errorf("case id %q contains a path separator or whitespace", caseID)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

// Status is the lifecycle marker stored in the document. StatusIdle is never
// written; it stands for "no document".
type Status string

const (
	StatusIdle      Status = "idle"
	StatusCalling   Status = "calling"
	StatusAccepted  Status = "accepted"
	StatusConnected Status = "connected"
	StatusEnded     Status = "ended"
)

var statusRank = map[Status]int{
	StatusIdle:      0,
	StatusCalling:   1,
	StatusAccepted:  2,
	StatusConnected: 3,
	StatusEnded:     4,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanAdvanceTo reports whether a session in status s may be moved to next.
// Statuses only move forward; ended is reachable from anywhere. A missing
// status counts as idle.
func (s Status) CanAdvanceTo(next Status) bool {
	if next == StatusEnded {
		return true
	}
	if s == "" {
		s = StatusIdle
	}
	from, ok1 := statusRank[s]
	to, ok2 := statusRank[next]
	return ok1 && ok2 && to > from
}

// Ringing reports whether the session should be presented to the receiver.
func (s Status) Ringing() bool {
	return s == StatusCalling || s == StatusAccepted || s == StatusConnected
}

// ---------------------------------------------------------------------------
// Call type
// ---------------------------------------------------------------------------

// CallType selects whether video is requested at all.
type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

// ParseCallType parses "audio" or "video" (case-insensitive).
func ParseCallType(raw string) (CallType, error) {
	switch CallType(strings.ToLower(strings.TrimSpace(raw))) {
	case CallAudio:
		return CallAudio, nil
	case CallVideo:
		return CallVideo, nil
	}
	return "", fmt.Errorf("invalid call type %q: must be audio or video", raw)
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

// SDPType is the type tag of a session description.
type SDPType string

const (
	SDPOffer  SDPType = "offer"
	SDPAnswer SDPType = "answer"
)

// Description is a session description as stored in the document.
type Description struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

// Validate checks that d carries a description of the expected type.
func (d *Description) Validate(want SDPType) error {
	if d == nil {
		return fmt.Errorf("missing %s", want)
	}
	if d.Type != want {
		return fmt.Errorf("description type is %q, want %q", d.Type, want)
	}
	if strings.TrimSpace(d.SDP) == "" {
		return fmt.Errorf("%s has an empty sdp", want)
	}
	return nil
}

// Candidate mirrors RTCIceCandidateInit.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Session is the CallSession document.
type Session struct {
	Status     Status       `json:"status"`
	CallType   CallType     `json:"callType,omitempty"`
	CallerName string       `json:"callerName,omitempty"`
	Offer      *Description `json:"offer,omitempty"`
	Answer     *Description `json:"answer,omitempty"`
	CreatedAt  time.Time    `json:"createdAt,omitzero"`
	UpdatedAt  time.Time    `json:"updatedAt,omitzero"`
}

// NewOffer builds the document the caller writes when it starts a call.
func NewOffer(offer Description, callType CallType, callerName string, at time.Time) *Session {
	return &Session{
		Status:     StatusCalling,
		CallType:   callType,
		CallerName: callerName,
		Offer:      &offer,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

// Notification is the in-app notice for the call's counterpart.
type Notification struct {
	TargetUserID string    `json:"targetUserId"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Link         string    `json:"link"`
	Read         bool      `json:"read"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NotificationsCollection is the root collection notifications are appended to.
const NotificationsCollection = "notifications"

// NewCallNotification builds the "incoming call" notice for targetUserID.
func NewCallNotification(targetUserID string, callType CallType, at time.Time) Notification {
	return Notification{
		TargetUserID: targetUserID,
		Type:         "call",
		Title:        fmt.Sprintf("Incoming %s call", callType),
		Message:      "Tap to join consultation",
		Link:         "/patient/chat",
		CreatedAt:    at,
	}
}
