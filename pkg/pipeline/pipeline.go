// Package pipeline describes the media side of a camera session.
//
// An Adapter stands for the media machinery of one camera. For every
// negotiation it hands out a Peer that produces and consumes session
// descriptions and ICE candidates and reports transport state changes
// through its Events channel. Orchestrators never look into the media,
// they only ferry opaque SDP and candidate strings.
package pipeline

import (
	"errors"

	"github.com/pion/rtp"
)

// TransportState is the peer connection state as seen by the orchestrator.
type TransportState int

const (
	StateConnecting TransportState = iota
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s TransportState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SDPKind tells which side of the offer/answer exchange the description belongs to.
type SDPKind string

const (
	KindOffer  SDPKind = "offer"
	KindAnswer SDPKind = "answer"
)

// Candidate is an opaque ICE candidate.
type Candidate struct {
	Candidate     string
	SDPMLineIndex *uint16
	SDPMid        *string
}

// Event is raised by a Peer.
type Event interface{ event() }

type (
	// OfferCreated completes Peer.CreateOffer.
	OfferCreated struct{ SDP string }
	// AnswerCreated completes Peer.CreateAnswer.
	AnswerCreated struct{ SDP string }
	// LocalCandidate is a gathered local ICE candidate.
	LocalCandidate struct{ Candidate Candidate }
	// StateChanged reports a transport state change.
	StateChanged struct{ State TransportState }
	// Failure reports a failed asynchronous operation.
	Failure struct {
		Op  string
		Err error
	}
)

func (OfferCreated) event()   {}
func (AnswerCreated) event()  {}
func (LocalCandidate) event() {}
func (StateChanged) event()   {}
func (Failure) event()        {}

// Peer is the media handle of a single negotiation.
type Peer interface {
	// CreateOffer starts making a local offer, the result comes as OfferCreated or Failure.
	CreateOffer()
	// CreateAnswer starts making a local answer, the result comes as AnswerCreated or Failure.
	CreateAnswer()
	SetRemoteDescription(sdp string, kind SDPKind) error
	AddIceCandidate(c Candidate) error
	// Events is closed when the peer is closed.
	Events() <-chan Event
	Stats() (Stats, error)
	Close() error
}

// Adapter is the media pipeline of one camera.
type Adapter interface {
	Start() error
	Stop() error
	NewPeer() (Peer, error)
}

// Stream is the remote media received by a viewer.
type Stream interface {
	Id() string
	Kind() string
	MimeType() string
	ReadRTP() (*rtp.Packet, error)
}

// StreamFunc is called for every remote stream of a camera.
type StreamFunc func(cameraId string, stream Stream)

// Factory makes the adapter of a camera.
type Factory func(cameraId string, onStream StreamFunc) (Adapter, error)

// Stats is a snapshot of transport counters.
type Stats struct {
	BytesSent       uint64
	BytesReceived   uint64
	PacketsSent     uint32
	PacketsReceived uint32
	// RoundTripTime of the nominated candidate pair, in seconds.
	RoundTripTime float64
}

var ErrClosed = errors.New("pipeline: peer is closed")
