// Package api defines the signaling protocol spoken between
// camera orchestrators and their viewers.
//
// Each message is a JSON object tagged with its type:
//
//	{"type":"request-offer"}
//	{"type":"offer","sdp":"<SDP text>"}
//	{"type":"answer","sdp":"<SDP text>"}
//	{"type":"ice-candidate","candidate":{"candidate":"<ice-str>","sdpMLineIndex":0,"sdpMid":"0"}}
//	{"type":"welcome","camera_id":"<id>","status":"ready"}
//
// SDP and candidate strings are opaque here, they are only carried
// between the signaling channel and the media pipeline.
package api

type Type string

const (
	TypeRequestOffer Type = "request-offer"
	TypeOffer        Type = "offer"
	TypeAnswer       Type = "answer"
	TypeIceCandidate Type = "ice-candidate"
	TypeWelcome      Type = "welcome"
)

// Welcome statuses.
const (
	StatusReady       = "ready"
	StatusUnavailable = "unavailable"
)

// Message is one of the five signaling messages.
type Message interface {
	Type() Type
}

type (
	RequestOffer struct{}
	Offer        struct{ SDP string }
	Answer       struct{ SDP string }
	IceCandidate struct{ Candidate Candidate }
	Welcome      struct {
		CameraId string
		Status   string
	}
)

// Candidate is a trickled ICE candidate in the browser RTCIceCandidateInit form.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
	SDPMid        *string `json:"sdpMid"`
}

func (RequestOffer) Type() Type { return TypeRequestOffer }
func (Offer) Type() Type        { return TypeOffer }
func (Answer) Type() Type       { return TypeAnswer }
func (IceCandidate) Type() Type { return TypeIceCandidate }
func (Welcome) Type() Type      { return TypeWelcome }

func (t Type) known() bool {
	switch t {
	case TypeRequestOffer, TypeOffer, TypeAnswer, TypeIceCandidate, TypeWelcome:
		return true
	}
	return false
}
