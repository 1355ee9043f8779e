package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrSourceNotFound   = errors.New("stream source not found")
	ErrSourceExists     = errors.New("stream source already exists")
	ErrSlotNotFound     = errors.New("slot not found")
	ErrPoolFull         = errors.New("session pool is at max concurrency")
	ErrSourceActive     = errors.New("stream source already has an active slot")
	ErrStaleNegotiation = errors.New("negotiation result discarded: session handle was released")
	ErrPoolClosed       = errors.New("session pool is closed")
	ErrSessionClosed    = errors.New("session was removed from the pool")
	ErrInvalidSource    = errors.New("invalid stream source")
)

// NoSinkError is returned by connect when the session has no render target.
type NoSinkError struct {
	SourceID SourceID
}

func (e *NoSinkError) Error() string {
	return fmt.Sprintf("no video sink available for source %s", e.SourceID)
}

// SignalingError means the WHEP endpoint rejected the offer or could not be
// reached. Status is zero when no HTTP response was received.
type SignalingError struct {
	Status  int
	URL     string
	Timeout bool
	Cause   error
}

func (e *SignalingError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("signaling timed out: %s", e.URL)
	case e.Status != 0:
		return fmt.Sprintf("HTTP error! status: %d (%s)", e.Status, http.StatusText(e.Status))
	case e.Cause != nil:
		return fmt.Sprintf("signaling failed: %v", e.Cause)
	default:
		return "signaling failed"
	}
}

func (e *SignalingError) Unwrap() error { return e.Cause }

// ConnectionLostError is recorded when transport drops after media flowed.
type ConnectionLostError struct {
	State string
}

func (e *ConnectionLostError) Error() string {
	if e.State == "" {
		return "Connection lost"
	}
	return fmt.Sprintf("Connection lost (%s)", e.State)
}

// MalformedAnswerError means the remote returned SDP that could not be applied.
type MalformedAnswerError struct {
	Cause error
}

func (e *MalformedAnswerError) Error() string {
	if e.Cause == nil {
		return "remote returned an unusable SDP answer"
	}
	return fmt.Sprintf("remote returned an unusable SDP answer: %v", e.Cause)
}

func (e *MalformedAnswerError) Unwrap() error { return e.Cause }

// ErrNothingPersisted is returned by a source repository that has no saved list.
var ErrNothingPersisted = errors.New("no persisted stream sources")
