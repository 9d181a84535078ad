package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Documents travel as flat field maps holding JSON-shaped values (string,
// float64, bool, nil, []any, map[string]any). The helpers below convert the
// typed records to and from that shape.

// EncodeSession converts a full session into document fields.
func EncodeSession(s *Session) (map[string]any, error) {
	return toFields(s)
}

// DecodeSession converts document fields into a session. Unknown fields are
// ignored; an unknown status is an error.
func DecodeSession(fields map[string]any) (*Session, error) {
	var s Session
	if err := fromFields(fields, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.Status != "" && !s.Status.Valid() {
		return nil, fmt.Errorf("decode session: unknown status %q", s.Status)
	}
	return &s, nil
}

// AnswerUpdate is the partial update the receiver applies after answering.
func AnswerUpdate(answer Description, at time.Time) map[string]any {
	return map[string]any{
		FieldAnswer: map[string]any{
			"type": string(answer.Type),
			"sdp":  answer.SDP,
		},
		FieldStatus:    string(StatusAccepted),
		FieldUpdatedAt: at.UTC().Format(time.RFC3339Nano),
	}
}

// StatusUpdate is a partial update that only moves the status.
func StatusUpdate(status Status, at time.Time) map[string]any {
	return map[string]any{
		FieldStatus:    string(status),
		FieldUpdatedAt: at.UTC().Format(time.RFC3339Nano),
	}
}

// EncodeCandidate converts a candidate into entry fields.
func EncodeCandidate(c Candidate) (map[string]any, error) {
	return toFields(c)
}

// DecodeCandidate converts entry fields into a candidate.
func DecodeCandidate(fields map[string]any) (Candidate, error) {
	var c Candidate
	if err := fromFields(fields, &c); err != nil {
		return Candidate{}, fmt.Errorf("decode candidate: %w", err)
	}
	if c.Candidate == "" {
		return Candidate{}, fmt.Errorf("decode candidate: empty candidate line")
	}
	return c, nil
}

// EncodeNotification converts a notification into entry fields.
func EncodeNotification(n Notification) (map[string]any, error) {
	return toFields(n)
}

// DecodeNotification converts entry fields into a notification.
func DecodeNotification(fields map[string]any) (Notification, error) {
	var n Notification
	if err := fromFields(fields, &n); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	return n, nil
}

func toFields(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func fromFields(fields map[string]any, v any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
