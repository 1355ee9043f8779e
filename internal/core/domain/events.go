package domain

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventSessionState EventType = "session.state"
	EventPoolChanged  EventType = "pool.changed"
)

// ViewerEvent is pushed to dashboards and to other viewer instances.
type ViewerEvent struct {
	Type       EventType       `json:"type"`
	InstanceID string          `json:"instance_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	SourceID   SourceID        `json:"source_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type SessionStatePayload struct {
	Previous SessionState    `json:"previous"`
	Session  SessionSnapshot `json:"session"`
}

type PoolChangedPayload struct {
	Slots  []SlotView `json:"slots"`
	Layout LayoutView `json:"layout"`
}

func NewSessionStateEvent(prev SessionState, snap SessionSnapshot) (ViewerEvent, error) {
	payload, err := json.Marshal(SessionStatePayload{Previous: prev, Session: snap})
	if err != nil {
		return ViewerEvent{}, err
	}
	return ViewerEvent{
		Type:      EventSessionState,
		Timestamp: snap.Changed,
		SourceID:  snap.SourceID,
		Payload:   payload,
	}, nil
}

func NewPoolChangedEvent(slots []SlotView, layout LayoutView) (ViewerEvent, error) {
	payload, err := json.Marshal(PoolChangedPayload{Slots: slots, Layout: layout})
	if err != nil {
		return ViewerEvent{}, err
	}
	return ViewerEvent{Type: EventPoolChanged, Timestamp: time.Now(), Payload: payload}, nil
}
