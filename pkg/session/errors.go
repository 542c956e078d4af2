package session

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateSession = errors.New("session: duplicate session")
	ErrClosed           = errors.New("session: closed")
	ErrStarted          = errors.New("session: already started")
	ErrNoRedial         = errors.New("session: signaling channel can't be restored")
)

// NegotiationError means the media side rejected a description
// or couldn't make one.
type NegotiationError struct {
	CameraId string
	Op       string
	Err      error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation [%s] %s: %v", e.CameraId, e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// TransportError means the signaling channel or the ICE transport broke.
type TransportError struct {
	CameraId string
	Reason   string
	Err      error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("transport [%s] %s", e.CameraId, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// AdapterUnavailableError is returned when a camera has no pipeline adapter bound.
// It is a configuration error and never retried.
type AdapterUnavailableError struct {
	CameraId string
	Err      error
}

func (e *AdapterUnavailableError) Error() string {
	msg := fmt.Sprintf("no pipeline adapter for camera [%s]", e.CameraId)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AdapterUnavailableError) Unwrap() error { return e.Err }

// FatalError means the session gave up after all the reconnection attempts.
type FatalError struct {
	CameraId  string
	SessionId string
	Attempts  int
	Err       error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("session [%s/%s] closed after %d reconnection attempts: %v",
		e.CameraId, e.SessionId, e.Attempts, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
