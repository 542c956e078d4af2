package session

import (
	"context"
	"sync"
	"time"

	"github.com/camstream/camstream/pkg/api"
	"github.com/camstream/camstream/pkg/logger"
	"github.com/camstream/camstream/pkg/network"
	"github.com/camstream/camstream/pkg/pipeline"
	"github.com/camstream/camstream/pkg/signaling"
)

// Channel is the signaling channel of a session.
type Channel interface {
	Send(m api.Message) error
	OnMessage(fn func(m api.Message, err error))
	OnClose(fn func(reason signaling.Reason))
	Close()
}

// Redial restores a lost signaling channel.
type Redial func(ctx context.Context) (Channel, error)

// PeerSource makes the media handles for negotiations.
type PeerSource interface {
	NewPeer() (pipeline.Peer, error)
}

type Config struct {
	CameraId string
	Role     Role
	Peers    PeerSource
	Policy   Policy
	Clock    Clock
	Timers   *Timers
	// Redial is optional, without it a lost channel ends the session.
	Redial Redial
	Log    *logger.Logger

	// OnState is called on every state change.
	OnState func(s *Session, from, to State)
	// OnError is called for every error the session has survived or died of.
	OnError func(s *Session, err error)
	// OnClose is called once when the session has been closed.
	// The error is a *FatalError when the reconnection attempts are exhausted.
	OnClose func(s *Session, err error)
}

// Status is a snapshot of the session health.
type Status struct {
	SessionId         string     `json:"sessionId"`
	CameraId          string     `json:"cameraId"`
	Role              Role       `json:"role"`
	State             State      `json:"state"`
	ReconnectAttempts int        `json:"reconnectAttempts"`
	CreatedAt         time.Time  `json:"createdAt"`
	LastTransitionAt  time.Time  `json:"lastTransitionAt"`
	ConnectedSince    *time.Time `json:"connectedSince,omitempty"`
	LastError         string     `json:"lastError,omitempty"`
}

// Session is a single negotiated connection between a camera and a viewer.
// All its negotiation state is owned by one goroutine, see run.
type Session struct {
	id       network.Uid
	cameraId string
	role     Role
	conf     Config
	log      *logger.Logger

	// owned by the session goroutine
	ch           Channel
	chGen        uint64
	lost         bool
	awaitWelcome bool
	peer         pipeline.Peer
	gen          uint64
	remoteSet    bool
	pending      []pipeline.Candidate
	sup          supervisor
	closeErr     error

	mu       sync.Mutex
	status   Status
	statPeer pipeline.Peer

	inbox   chan inbound
	events  chan peerEvent
	retries chan int
	quit    chan struct{}
	done    chan struct{}

	runMu    sync.Mutex
	started  bool
	finished bool
	cancel   context.CancelFunc
	quitOnce sync.Once
}

type inbound struct {
	gen    uint64
	msg    api.Message
	err    error
	closed bool
	reason signaling.Reason
}

type peerEvent struct {
	gen uint64
	ev  pipeline.Event
}

const queueSize = 64

// New makes a session in the IDLE state.
func New(id network.Uid, conf Config) *Session {
	if conf.Clock == nil {
		conf.Clock = RealClock
	}
	if conf.Timers == nil {
		conf.Timers = &Timers{}
	}
	if conf.Policy == (Policy{}) {
		conf.Policy = DefaultPolicy()
	}
	if conf.Log == nil {
		conf.Log = logger.Default()
	}
	now := conf.Clock.Now()
	s := &Session{
		id:       id,
		cameraId: conf.CameraId,
		role:     conf.Role,
		conf:     conf,
		log: conf.Log.Extend(conf.Log.With().
			Str(logger.CameraField, conf.CameraId).
			Str(logger.SessionField, id.Short()).
			Str(logger.RoleField, conf.Role.String())),
		sup: supervisor{policy: conf.Policy, clock: conf.Clock, timers: conf.Timers},
		status: Status{
			SessionId:        id.String(),
			CameraId:         conf.CameraId,
			Role:             conf.Role,
			State:            Idle,
			CreatedAt:        now,
			LastTransitionAt: now,
		},
		inbox:   make(chan inbound, queueSize),
		events:  make(chan peerEvent, queueSize),
		retries: make(chan int, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	return s
}

func (s *Session) Id() network.Uid  { return s.id }
func (s *Session) CameraId() string { return s.cameraId }
func (s *Session) Role() Role       { return s.role }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.State
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	if st.ConnectedSince != nil {
		t := *st.ConnectedSince
		st.ConnectedSince = &t
	}
	return st
}

// Stats returns the transport counters of the current peer.
func (s *Session) Stats() (pipeline.Stats, error) {
	s.mu.Lock()
	p := s.statPeer
	s.mu.Unlock()
	if p == nil {
		return pipeline.Stats{}, nil
	}
	return p.Stats()
}

// Running tells whether the session goroutine has been started and not yet finished.
func (s *Session) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.started && !s.finished
}

// Done is closed when the session has been closed and cleaned up.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start binds the signaling channel and starts the negotiation goroutine.
// The session lives until Disconnect, ctx cancellation or a fatal error.
func (s *Session) Start(ctx context.Context, ch Channel) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.finished {
		return ErrClosed
	}
	if s.started {
		return ErrStarted
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.attach(ch)
	go s.run(ctx)
	return nil
}

// Disconnect cancels any pending reconnection or redial in progress and
// tears the session down. It returns when the session is closed.
// Disconnecting a closed session does nothing.
func (s *Session) Disconnect() {
	s.runMu.Lock()
	if s.finished {
		s.runMu.Unlock()
		<-s.done
		return
	}
	if !s.started {
		s.finished = true
		s.runMu.Unlock()
		s.setState(Closed)
		s.finish()
		return
	}
	cancel := s.cancel
	s.runMu.Unlock()
	s.quitOnce.Do(func() { close(s.quit) })
	cancel()
	<-s.done
}

func (s *Session) attach(ch Channel) {
	s.chGen++
	gen := s.chGen
	s.ch = ch
	ch.OnMessage(func(m api.Message, err error) { s.post(inbound{gen: gen, msg: m, err: err}) })
	ch.OnClose(func(r signaling.Reason) { s.post(inbound{gen: gen, closed: true, reason: r}) })
}

func (s *Session) post(in inbound) {
	select {
	case s.inbox <- in:
	case <-s.done:
	}
}

func (s *Session) run(ctx context.Context) {
	s.log.Debug().Msg("session start")
	for s.State() != Closed {
		select {
		case <-ctx.Done():
			s.shutdown(nil)
		case <-s.quit:
			s.shutdown(nil)
		case in := <-s.inbox:
			s.onInbound(in)
		case e := <-s.events:
			if e.gen == s.gen {
				s.onEvent(e.ev)
			}
		case n := <-s.retries:
			s.onRetry(ctx, n)
		}
	}
	s.runMu.Lock()
	s.finished = true
	s.runMu.Unlock()
	s.cancel()
	s.finish()
}

func (s *Session) finish() {
	if s.conf.OnClose != nil {
		s.conf.OnClose(s, s.closeErr)
	}
	s.log.Debug().Msg("session end")
	close(s.done)
}

// shutdown moves the session into CLOSED releasing everything it holds.
func (s *Session) shutdown(err error) {
	s.sup.cancel()
	s.closePeer()
	if s.ch != nil {
		s.ch.Close()
	}
	if err != nil {
		s.setError(err)
	}
	s.closeErr = err
	s.setState(Closed)
}

func (s *Session) setState(to State) bool {
	s.mu.Lock()
	from := s.status.State
	if from == to {
		s.mu.Unlock()
		return true
	}
	if !CanTransition(from, to) {
		s.mu.Unlock()
		s.log.Error().Msgf("illegal transition %v -> %v", from, to)
		return false
	}
	now := s.conf.Clock.Now()
	s.status.State = to
	s.status.LastTransitionAt = now
	switch to {
	case Connected:
		s.status.ConnectedSince = &now
	default:
		s.status.ConnectedSince = nil
	}
	s.mu.Unlock()

	s.log.Debug().Str(logger.StateField, to.String()).Msgf("%v -> %v", from, to)
	if s.conf.OnState != nil {
		s.conf.OnState(s, from, to)
	}
	return true
}

func (s *Session) setError(err error) {
	s.mu.Lock()
	s.status.LastError = err.Error()
	s.mu.Unlock()
	if s.conf.OnError != nil {
		s.conf.OnError(s, err)
	}
}

func (s *Session) syncAttempts() {
	s.mu.Lock()
	s.status.ReconnectAttempts = s.sup.attempts
	s.mu.Unlock()
}

func (s *Session) newPeer() error {
	p, err := s.conf.Peers.NewPeer()
	if err != nil {
		return err
	}
	s.gen++
	s.peer = p
	s.mu.Lock()
	s.statPeer = p
	s.mu.Unlock()
	go s.forward(p, s.gen)
	return nil
}

// forward pipes peer events into the session goroutine.
func (s *Session) forward(p pipeline.Peer, gen uint64) {
	for ev := range p.Events() {
		select {
		case s.events <- peerEvent{gen: gen, ev: ev}:
		case <-s.done:
			return
		}
	}
}

// closePeer tears down the current peer along with the candidates
// queued for it. Its late events are ignored. Without a peer the queued
// candidates belong to the coming negotiation and are kept.
func (s *Session) closePeer() {
	s.gen++
	s.remoteSet = false
	if s.peer == nil {
		return
	}
	if err := s.peer.Close(); err != nil {
		s.log.Debug().Err(err).Msg("peer close")
	}
	s.peer = nil
	s.mu.Lock()
	s.statPeer = nil
	s.mu.Unlock()
	s.pending = nil
}

func (s *Session) send(m api.Message) {
	if s.ch == nil || s.lost {
		s.log.Debug().Msgf("no channel for %v", m.Type())
		return
	}
	if err := s.ch.Send(m); err != nil {
		s.log.Warn().Err(err).Msgf("send %v", m.Type())
	}
}
