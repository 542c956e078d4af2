package api

import (
	"fmt"

	"github.com/goccy/go-json"
)

// SignalingError marks a message that can't be understood.
// Such messages are dropped and never change session state.
type SignalingError struct {
	Type   Type
	Reason string
	Err    error
}

func (e *SignalingError) Error() string {
	msg := "signaling: " + e.Reason
	if e.Type != "" {
		msg += fmt.Sprintf(" [%s]", e.Type)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SignalingError) Unwrap() error { return e.Err }

// wire is the flat JSON form of all messages.
type wire struct {
	T         Type       `json:"type"`
	SDP       *string    `json:"sdp,omitempty"`
	Candidate *Candidate `json:"candidate,omitempty"`
	CameraId  *string    `json:"camera_id,omitempty"`
	Status    string     `json:"status,omitempty"`
}

// Encode serializes a message into its wire form.
func Encode(m Message) ([]byte, error) {
	var w wire
	switch v := m.(type) {
	case RequestOffer:
		w.T = TypeRequestOffer
	case Offer:
		w.T, w.SDP = TypeOffer, &v.SDP
	case Answer:
		w.T, w.SDP = TypeAnswer, &v.SDP
	case IceCandidate:
		c := v.Candidate
		w.T, w.Candidate = TypeIceCandidate, &c
	case Welcome:
		w.T, w.CameraId, w.Status = TypeWelcome, &v.CameraId, v.Status
	default:
		return nil, fmt.Errorf("api: can't encode %T", m)
	}
	return json.Marshal(w)
}

// Decode parses one wire message. Any failure is a *SignalingError.
func Decode(data []byte) (Message, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &SignalingError{Reason: "malformed message", Err: err}
	}
	if w.T == "" {
		return nil, &SignalingError{Reason: "no message type"}
	}
	if !w.T.known() {
		return nil, &SignalingError{Type: w.T, Reason: "unknown message type"}
	}
	switch w.T {
	case TypeRequestOffer:
		return RequestOffer{}, nil
	case TypeOffer, TypeAnswer:
		if w.SDP == nil {
			return nil, &SignalingError{Type: w.T, Reason: "no sdp"}
		}
		if w.T == TypeOffer {
			return Offer{SDP: *w.SDP}, nil
		}
		return Answer{SDP: *w.SDP}, nil
	case TypeIceCandidate:
		if w.Candidate == nil {
			return nil, &SignalingError{Type: w.T, Reason: "no candidate"}
		}
		return IceCandidate{Candidate: *w.Candidate}, nil
	default: // welcome
		if w.CameraId == nil {
			return nil, &SignalingError{Type: w.T, Reason: "no camera id"}
		}
		return Welcome{CameraId: *w.CameraId, Status: w.Status}, nil
	}
}
