package domain

import (
	"fmt"
	"time"
)

type SessionState int

const (
	SessionIdle SessionState = iota
	SessionNegotiating
	SessionConnected
	SessionFailed
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionNegotiating:
		return "negotiating"
	case SessionConnected:
		return "connected"
	case SessionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SessionState) UnmarshalText(text []byte) error {
	for _, st := range []SessionState{SessionIdle, SessionNegotiating, SessionConnected, SessionFailed} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// SessionSnapshot is a point-in-time copy of a session's observable fields.
// LatencyMs is nil until a negotiation completes and again after a reset.
type SessionSnapshot struct {
	SourceID  SourceID     `json:"source_id"`
	State     SessionState `json:"state"`
	LatencyMs *int64       `json:"latency_ms"`
	LastError string       `json:"last_error,omitempty"`
	Tracks    int          `json:"tracks"`
	Changed   time.Time    `json:"changed_at"`
}

// SlotView describes one pool slot for presentation.
type SlotView struct {
	ID      SlotID          `json:"id"`
	Source  StreamSource    `json:"source"`
	Active  bool            `json:"active"`
	Session SessionSnapshot `json:"session"`
}
