package webrtc

import (
	"sync"

	"github.com/camstream/camstream/pkg/logger"
	"github.com/camstream/camstream/pkg/pipeline"
	"github.com/pion/webrtc/v3"
)

// Peer is a pipeline.Peer over a pion peer connection.
type Peer struct {
	conn *webrtc.PeerConnection
	log  *logger.Logger

	// mu keeps the events in order, a local description
	// is reported before its candidates
	mu     sync.Mutex
	events chan pipeline.Event
	quit   chan struct{}
	closed bool
	once   sync.Once
}

const eventQueue = 32

func newPeer(conn *webrtc.PeerConnection, log *logger.Logger) *Peer {
	p := &Peer{
		conn:   conn,
		log:    log,
		events: make(chan pipeline.Event, eventQueue),
		quit:   make(chan struct{}),
	}
	conn.OnICECandidate(p.handleICECandidate)
	conn.OnConnectionStateChange(p.handleState)
	return p
}

func (p *Peer) CreateOffer() {
	go func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		offer, err := p.conn.CreateOffer(nil)
		if err != nil {
			p.emitLocked(pipeline.Failure{Op: "create offer", Err: err})
			return
		}
		if err = p.conn.SetLocalDescription(offer); err != nil {
			p.emitLocked(pipeline.Failure{Op: "set local offer", Err: err})
			return
		}
		p.log.Debug().Msg("Created Offer")
		p.emitLocked(pipeline.OfferCreated{SDP: offer.SDP})
	}()
}

func (p *Peer) CreateAnswer() {
	go func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		answer, err := p.conn.CreateAnswer(nil)
		if err != nil {
			p.emitLocked(pipeline.Failure{Op: "create answer", Err: err})
			return
		}
		if err = p.conn.SetLocalDescription(answer); err != nil {
			p.emitLocked(pipeline.Failure{Op: "set local answer", Err: err})
			return
		}
		p.log.Debug().Msg("Created Answer")
		p.emitLocked(pipeline.AnswerCreated{SDP: answer.SDP})
	}()
}

func (p *Peer) SetRemoteDescription(sdp string, kind pipeline.SDPKind) error {
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if kind == pipeline.KindOffer {
		desc.Type = webrtc.SDPTypeOffer
	}
	if err := p.conn.SetRemoteDescription(desc); err != nil {
		p.log.Error().Err(err).Msg("Set remote description from peer failed")
		return err
	}
	p.log.Debug().Msgf("Set Remote Description (%v)", kind)
	return nil
}

func (p *Peer) AddIceCandidate(c pipeline.Candidate) error {
	init := webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
	if err := p.conn.AddICECandidate(init); err != nil {
		return err
	}
	p.log.Debug().Str("candidate", c.Candidate).Msg("Ice")
	return nil
}

func (p *Peer) Events() <-chan pipeline.Event { return p.events }

// Stats reads the transport counters and the round trip time
// of the nominated candidate pair.
func (p *Peer) Stats() (pipeline.Stats, error) {
	var out pipeline.Stats
	if p.isClosed() {
		return out, pipeline.ErrClosed
	}
	for _, s := range p.conn.GetStats() {
		switch st := s.(type) {
		case webrtc.TransportStats:
			out.BytesSent += st.BytesSent
			out.BytesReceived += st.BytesReceived
			out.PacketsSent += st.PacketsSent
			out.PacketsReceived += st.PacketsReceived
		case webrtc.ICECandidatePairStats:
			if st.Nominated {
				out.RoundTripTime = st.CurrentRoundTripTime
			}
		}
	}
	return out, nil
}

func (p *Peer) Close() error {
	var err error
	p.once.Do(func() {
		close(p.quit)
		p.mu.Lock()
		p.closed = true
		close(p.events)
		p.mu.Unlock()
		err = p.conn.Close()
		p.log.Debug().Msg("WebRTC stop")
	})
	return err
}

func (p *Peer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Peer) emit(ev pipeline.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emitLocked(ev)
}

func (p *Peer) emitLocked(ev pipeline.Event) {
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	case <-p.quit:
	}
}

func (p *Peer) handleICECandidate(ice *webrtc.ICECandidate) {
	// ICE gathering finish condition
	if ice == nil {
		p.log.Debug().Msg("ICE gathering was complete probably")
		return
	}
	c := ice.ToJSON()
	p.log.Debug().Str("candidate", c.Candidate).Msg("ICE")
	p.emit(pipeline.LocalCandidate{Candidate: pipeline.Candidate{
		Candidate:     c.Candidate,
		SDPMLineIndex: c.SDPMLineIndex,
		SDPMid:        c.SDPMid,
	}})
}

func (p *Peer) handleState(state webrtc.PeerConnectionState) {
	p.log.Debug().Str(".state", state.String()).Msg("Peer")
	var ts pipeline.TransportState
	switch state {
	case webrtc.PeerConnectionStateConnecting:
		ts = pipeline.StateConnecting
	case webrtc.PeerConnectionStateConnected:
		ts = pipeline.StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		ts = pipeline.StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		p.log.Error().Msgf("WebRTC connection fail! ice: %v, gathering: %v, signalling: %v",
			p.conn.ICEConnectionState(), p.conn.ICEGatheringState(), p.conn.SignalingState())
		ts = pipeline.StateFailed
	case webrtc.PeerConnectionStateClosed:
		ts = pipeline.StateClosed
	default:
		return
	}
	p.emit(pipeline.StateChanged{State: ts})
}
