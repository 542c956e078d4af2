// Package pipelinetest provides in-memory pipeline adapters for tests.
package pipelinetest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/camstream/camstream/pkg/pipeline"
)

// Remote is a remote description applied to a Peer.
type Remote struct {
	SDP  string
	Kind pipeline.SDPKind
}

// Peer is a scripted pipeline.Peer.
// CreateOffer and CreateAnswer complete immediately with Offer and Answer.
type Peer struct {
	Offer  string
	Answer string
	// FailRemote makes SetRemoteDescription fail.
	FailRemote error

	mu     sync.Mutex
	ops    []string
	events chan pipeline.Event
	closed bool
}

func NewPeer(offer, answer string) *Peer {
	return &Peer{Offer: offer, Answer: answer, events: make(chan pipeline.Event, 64)}
}

func (p *Peer) CreateOffer() {
	p.record("create-offer")
	p.Emit(pipeline.OfferCreated{SDP: p.Offer})
}

func (p *Peer) CreateAnswer() {
	p.record("create-answer")
	p.Emit(pipeline.AnswerCreated{SDP: p.Answer})
}

func (p *Peer) SetRemoteDescription(sdp string, kind pipeline.SDPKind) error {
	if p.FailRemote != nil {
		return p.FailRemote
	}
	p.record(fmt.Sprintf("remote %s %s", kind, sdp))
	return nil
}

func (p *Peer) AddIceCandidate(c pipeline.Candidate) error {
	p.record("candidate " + c.Candidate)
	return nil
}

func (p *Peer) Events() <-chan pipeline.Event { return p.events }

func (p *Peer) Stats() (pipeline.Stats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return pipeline.Stats{}, pipeline.ErrClosed
	}
	return pipeline.Stats{BytesSent: 1000, PacketsSent: 10, RoundTripTime: 0.01}, nil
}

func (p *Peer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.events)
	return nil
}

// Emit raises an event, it returns false when the peer is closed.
func (p *Peer) Emit(ev pipeline.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.events <- ev:
		return true
	default:
		return false
	}
}

func (p *Peer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Ops returns the calls made to the peer in order.
func (p *Peer) Ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ops...)
}

func (p *Peer) record(op string) {
	p.mu.Lock()
	p.ops = append(p.ops, op)
	p.mu.Unlock()
}

// Adapter is an in-memory pipeline.Adapter handing out scripted peers.
type Adapter struct {
	CameraId string
	Offer    string
	Answer   string
	// PeerErr makes NewPeer fail.
	PeerErr error

	mu      sync.Mutex
	peers   []*Peer
	running bool
	starts  int
	stops   int
}

func NewAdapter(cameraId string) *Adapter {
	return &Adapter{CameraId: cameraId, Offer: "offer-" + cameraId, Answer: "answer-" + cameraId}
}

func (a *Adapter) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = true
	a.starts++
	return nil
}

func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	a.stops++
	return nil
}

func (a *Adapter) NewPeer() (pipeline.Peer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.PeerErr != nil {
		return nil, a.PeerErr
	}
	p := NewPeer(a.Offer, a.Answer)
	a.peers = append(a.peers, p)
	return p, nil
}

func (a *Adapter) Peers() []*Peer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Peer(nil), a.peers...)
}

// LastPeer returns the most recent peer or nil.
func (a *Adapter) LastPeer() *Peer {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.peers) == 0 {
		return nil
	}
	return a.peers[len(a.peers)-1]
}

func (a *Adapter) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Counts returns how many times the adapter was started and stopped.
func (a *Adapter) Counts() (starts, stops int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.starts, a.stops
}

var ErrUnavailable = errors.New("pipelinetest: no such camera")

// Factory makes and remembers adapters, cameras listed in Unavailable fail.
type Factory struct {
	Unavailable map[string]bool

	mu       sync.Mutex
	adapters map[string][]*Adapter
}

func (f *Factory) Make(cameraId string, _ pipeline.StreamFunc) (pipeline.Adapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unavailable[cameraId] {
		return nil, ErrUnavailable
	}
	if f.adapters == nil {
		f.adapters = make(map[string][]*Adapter)
	}
	a := NewAdapter(cameraId)
	f.adapters[cameraId] = append(f.adapters[cameraId], a)
	return a, nil
}

// Adapter returns the last adapter made for the camera or nil.
func (f *Factory) Adapter(cameraId string) *Adapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.adapters[cameraId]
	if len(l) == 0 {
		return nil
	}
	return l[len(l)-1]
}

// Made returns how many adapters were made for the camera.
func (f *Factory) Made(cameraId string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.adapters[cameraId])
}
