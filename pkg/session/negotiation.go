package session

import (
	"context"

	"github.com/camstream/camstream/pkg/api"
	"github.com/camstream/camstream/pkg/pipeline"
	"github.com/camstream/camstream/pkg/signaling"
)

func (s *Session) onInbound(in inbound) {
	if in.gen != s.chGen {
		return
	}
	if in.closed {
		s.onChannelClosed(in.reason)
		return
	}
	if in.err != nil {
		s.log.Warn().Err(in.err).Msg("message dropped")
		s.setError(in.err)
		return
	}
	switch m := in.msg.(type) {
	case api.RequestOffer:
		s.onRequestOffer()
	case api.Offer:
		s.onOffer(m.SDP)
	case api.Answer:
		s.onAnswer(m.SDP)
	case api.IceCandidate:
		s.onRemoteCandidate(pipeline.Candidate{
			Candidate:     m.Candidate.Candidate,
			SDPMLineIndex: m.Candidate.SDPMLineIndex,
			SDPMid:        m.Candidate.SDPMid,
		})
	case api.Welcome:
		s.onWelcome(m)
	}
}

func (s *Session) unexpected(t api.Type) {
	s.log.Warn().Msgf("unexpected %v in %v, dropped", t, s.State())
}

// onRequestOffer starts the negotiation on the offerer side.
// A request in the middle of a negotiation means the viewer
// has lost the connection and wants to start over.
func (s *Session) onRequestOffer() {
	if s.role != Offerer {
		s.unexpected(api.TypeRequestOffer)
		return
	}
	switch s.State() {
	case Idle:
	case OfferRequested:
		s.log.Debug().Msg("offer is on its way")
		return
	case OfferSent, Negotiating, Connected:
		s.closePeer()
		s.setState(Disconnected)
		s.sup.cancel()
	case Disconnected:
		s.sup.cancel()
	default:
		return
	}
	s.setState(OfferRequested)
	s.makeOffer()
}

func (s *Session) makeOffer() {
	s.closePeer()
	if err := s.newPeer(); err != nil {
		s.fail(&NegotiationError{CameraId: s.cameraId, Op: "new peer", Err: err})
		return
	}
	s.peer.CreateOffer()
}

// onOffer applies a remote offer on the answerer side.
func (s *Session) onOffer(sdp string) {
	if s.role != Answerer {
		s.unexpected(api.TypeOffer)
		return
	}
	switch s.State() {
	case OfferRequested:
		s.sup.cancel()
	case OfferSent, Negotiating, Connected:
		s.log.Info().Msg("renegotiation")
		s.closePeer()
		s.setState(Disconnected)
		fallthrough
	case Disconnected:
		s.sup.cancel()
		s.setState(OfferRequested)
	default:
		s.unexpected(api.TypeOffer)
		return
	}
	if s.peer == nil || s.remoteSet {
		s.closePeer()
		if err := s.newPeer(); err != nil {
			s.fail(&NegotiationError{CameraId: s.cameraId, Op: "new peer", Err: err})
			return
		}
	}
	if err := s.peer.SetRemoteDescription(sdp, pipeline.KindOffer); err != nil {
		s.fail(&NegotiationError{CameraId: s.cameraId, Op: "set remote offer", Err: err})
		return
	}
	s.remoteSet = true
	s.flushCandidates()
	s.setState(OfferSent)
	s.peer.CreateAnswer()
}

// onAnswer applies the viewer answer on the offerer side.
func (s *Session) onAnswer(sdp string) {
	if s.role != Offerer || s.State() != OfferSent {
		s.unexpected(api.TypeAnswer)
		return
	}
	if err := s.peer.SetRemoteDescription(sdp, pipeline.KindAnswer); err != nil {
		s.fail(&NegotiationError{CameraId: s.cameraId, Op: "set remote answer", Err: err})
		return
	}
	s.remoteSet = true
	s.setState(Negotiating)
	s.flushCandidates()
}

// onRemoteCandidate applies a remote candidate or keeps it
// until the remote description is known.
func (s *Session) onRemoteCandidate(c pipeline.Candidate) {
	if s.peer == nil || !s.remoteSet {
		s.pending = append(s.pending, c)
		return
	}
	if err := s.peer.AddIceCandidate(c); err != nil {
		s.log.Warn().Err(err).Msg("remote candidate")
	}
}

func (s *Session) flushCandidates() {
	if len(s.pending) > 0 {
		s.log.Debug().Msgf("applying %v early candidates", len(s.pending))
	}
	for _, c := range s.pending {
		if err := s.peer.AddIceCandidate(c); err != nil {
			s.log.Warn().Err(err).Msg("remote candidate")
		}
	}
	s.pending = nil
}

// onWelcome confirms the camera binding on the answerer side
// and asks for an offer.
func (s *Session) onWelcome(w api.Welcome) {
	if s.role != Answerer {
		s.unexpected(api.TypeWelcome)
		return
	}
	if w.CameraId != s.cameraId {
		s.shutdown(&TransportError{CameraId: s.cameraId, Reason: "bound to camera " + w.CameraId})
		return
	}
	if w.Status != api.StatusReady {
		s.shutdown(&AdapterUnavailableError{CameraId: s.cameraId})
		return
	}
	switch {
	case s.awaitWelcome:
		s.awaitWelcome = false
		s.restart()
	case s.State() == Idle:
		s.setState(OfferRequested)
		s.send(api.RequestOffer{})
	default:
		s.log.Debug().Msg("welcome again")
	}
}

func (s *Session) onEvent(ev pipeline.Event) {
	switch e := ev.(type) {
	case pipeline.OfferCreated:
		if s.role != Offerer || s.State() != OfferRequested {
			return
		}
		s.send(api.Offer{SDP: e.SDP})
		s.setState(OfferSent)
	case pipeline.AnswerCreated:
		if s.role != Answerer || s.State() != OfferSent {
			return
		}
		s.send(api.Answer{SDP: e.SDP})
		s.setState(Negotiating)
	case pipeline.LocalCandidate:
		s.send(api.IceCandidate{Candidate: api.Candidate{
			Candidate:     e.Candidate.Candidate,
			SDPMLineIndex: e.Candidate.SDPMLineIndex,
			SDPMid:        e.Candidate.SDPMid,
		}})
	case pipeline.StateChanged:
		s.onTransport(e.State)
	case pipeline.Failure:
		s.fail(&NegotiationError{CameraId: s.cameraId, Op: e.Op, Err: e.Err})
	}
}

func (s *Session) onTransport(state pipeline.TransportState) {
	s.log.Debug().Msgf("transport %v", state)
	switch state {
	case pipeline.StateConnected:
		if s.State() != Negotiating {
			return
		}
		s.setState(Connected)
		s.sup.reset()
		s.syncAttempts()
		s.log.Info().Msg("connected")
	case pipeline.StateDisconnected, pipeline.StateFailed, pipeline.StateClosed:
		switch s.State() {
		case OfferSent, Negotiating, Connected:
			s.fail(&TransportError{CameraId: s.cameraId, Reason: "ice " + state.String()})
		}
	}
}

func (s *Session) onChannelClosed(reason signaling.Reason) {
	s.log.Info().Msgf("signaling channel closed (%v)", reason)
	s.lost = true
	if s.conf.Redial == nil {
		var err error
		if reason != signaling.ClientInitiated {
			err = &TransportError{CameraId: s.cameraId, Reason: "channel " + string(reason), Err: ErrNoRedial}
			s.setError(err)
		}
		s.shutdown(nil)
		return
	}
	s.fail(&TransportError{CameraId: s.cameraId, Reason: "channel " + string(reason)})
}

// fail hands a broken negotiation to the supervisor.
// Failures before an offer is out keep the session where it is.
func (s *Session) fail(err error) {
	s.log.Warn().Err(err).Msg("negotiation failed")
	s.setError(err)
	// events of this peer are of no use anymore
	s.gen++
	switch s.State() {
	case OfferSent, Negotiating, Connected:
		s.setState(Disconnected)
	case Closed:
		return
	}
	if s.sup.timer != nil {
		return
	}
	delay, attempt, ok := s.sup.schedule(func(n int) {
		select {
		case s.retries <- n:
		case <-s.done:
		}
	})
	if !ok {
		s.log.Error().Msgf("giving up after %v attempts", s.sup.attempts)
		s.shutdown(&FatalError{
			CameraId:  s.cameraId,
			SessionId: s.id.String(),
			Attempts:  s.sup.attempts,
			Err:       err,
		})
		return
	}
	s.syncAttempts()
	s.log.Info().Msgf("reconnect #%v in %v", attempt, delay)
}

func (s *Session) onRetry(ctx context.Context, attempt int) {
	if attempt != s.sup.attempts || s.sup.timer == nil {
		return
	}
	s.sup.fired()
	s.closePeer()
	if s.lost {
		ch, err := s.conf.Redial(ctx)
		if ctx.Err() != nil {
			// the session is going down
			if ch != nil {
				ch.Close()
			}
			return
		}
		if err != nil {
			s.fail(&TransportError{CameraId: s.cameraId, Reason: "redial", Err: err})
			return
		}
		s.lost = false
		s.attach(ch)
		if s.role == Answerer {
			s.awaitWelcome = true
			return
		}
	}
	s.restart()
}

// restart begins a new negotiation round.
func (s *Session) restart() {
	switch s.State() {
	case Disconnected:
		s.setState(OfferRequested)
	case Idle:
		if s.role == Offerer {
			// wait for the viewer to ask
			return
		}
		s.setState(OfferRequested)
	}
	if s.role == Offerer {
		s.makeOffer()
		return
	}
	s.send(api.RequestOffer{})
}
