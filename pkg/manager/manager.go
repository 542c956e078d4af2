// Package manager runs the sessions of many cameras side by side.
//
// A manager binds each camera to a single pipeline adapter and creates
// sessions on it: on the server one session per viewer channel, on the
// viewer one session per camera. Sessions fail independently, only the
// AdapterUnavailableError and FatalError of a session are surfaced on Errors.
package manager

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/camstream/camstream/pkg/cameras"
	"github.com/camstream/camstream/pkg/logger"
	"github.com/camstream/camstream/pkg/network"
	"github.com/camstream/camstream/pkg/pipeline"
	"github.com/camstream/camstream/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrClosed   = errors.New("manager: closed")
	ErrNoDialer = errors.New("manager: no dialer")
)

const errorQueue = 64

type Manager struct {
	role       session.Role
	factory    pipeline.Factory
	dial       Dialer
	policy     session.Policy
	clock      session.Clock
	log        *logger.Logger
	registerer prometheus.Registerer
	multi      bool

	reg      *session.Registry
	bindings *Bindings
	timers   *session.Timers
	metrics  *metrics
	errs     chan error
	closed   atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	// mu serializes the camera changes
	mu   sync.Mutex
	done bool
}

// Summary is the aggregate health of the sessions.
type Summary struct {
	TotalSessions int `json:"totalSessions"`
	Connected     int `json:"connected"`
	Disconnected  int `json:"disconnected"`
	// Closed counts all the sessions closed so far.
	Closed int64 `json:"closed"`
}

// ConnectionStats are the transport counters of a camera session.
type ConnectionStats struct {
	CameraId        string        `json:"cameraId"`
	SessionId       string        `json:"sessionId"`
	State           session.State `json:"state"`
	BytesSent       uint64        `json:"bytesSent"`
	BytesReceived   uint64        `json:"bytesReceived"`
	PacketsSent     uint32        `json:"packetsSent"`
	PacketsReceived uint32        `json:"packetsReceived"`
	RoundTripTime   float64       `json:"roundTripTime"`
	ConnectedFor    time.Duration `json:"connectedFor"`
}

// New makes a manager of the role. The offerer role is the server side,
// the answerer role is the viewer side which needs a dialer.
func New(role session.Role, factory pipeline.Factory, opts ...Option) *Manager {
	m := &Manager{
		role:     role,
		factory:  factory,
		policy:   session.DefaultPolicy(),
		clock:    session.RealClock,
		log:      logger.Default(),
		bindings: NewBindings(),
		timers:   &session.Timers{},
		errs:     make(chan error, errorQueue),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.reg = session.NewRegistry(m.multi)
	m.metrics = newMetrics(m.registerer)
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Errors delivers the user-visible failures of the sessions.
func (m *Manager) Errors() <-chan error { return m.errs }

// PendingTimers returns the number of scheduled reconnections.
func (m *Manager) PendingTimers() int { return m.timers.Pending() }

func (m *Manager) Registry() *session.Registry { return m.reg }

// AddCamera binds the camera to a new adapter made by the factory.
// Adding a camera twice does nothing.
func (m *Manager) AddCamera(cameraId string, onStream pipeline.StreamFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return ErrClosed
	}
	if m.bindings.Has(cameraId) {
		m.log.Warn().Str(logger.CameraField, cameraId).Msg("Camera has been added already")
		return nil
	}
	adapter, err := m.factory(cameraId, onStream)
	if err != nil {
		err = &session.AdapterUnavailableError{CameraId: cameraId, Err: err}
		m.report(err)
		return err
	}
	m.bindings.bind(cameraId, adapter)
	m.metrics.cameras.Set(float64(m.bindings.Len()))
	m.log.Info().Str(logger.CameraField, cameraId).Msg("Camera added")
	if m.role == session.Answerer {
		if _, err := m.newSession(cameraId); err != nil && !errors.Is(err, session.ErrDuplicateSession) {
			return err
		}
	}
	return nil
}

// Available tells whether the camera has a pipeline adapter.
func (m *Manager) Available(cameraId string) bool { return m.bindings.Has(cameraId) }

// Cameras returns the bound cameras in order.
func (m *Manager) Cameras() []string {
	ids := m.bindings.Cameras()
	sort.Strings(ids)
	return ids
}

// Connect starts the adapter of the camera. On the viewer side it also
// dials the signaling channel and starts the camera session unless it runs already.
func (m *Manager) Connect(ctx context.Context, cameraId string) error {
	b := m.bindings.get(cameraId)
	if b == nil {
		err := &session.AdapterUnavailableError{CameraId: cameraId}
		m.report(err)
		return err
	}
	if err := b.start(); err != nil {
		err = &session.AdapterUnavailableError{CameraId: cameraId, Err: err}
		m.report(err)
		return err
	}
	if m.role == session.Offerer {
		return nil
	}
	if m.dial == nil {
		return ErrNoDialer
	}

	if m.isClosed() {
		return ErrClosed
	}

	var ch session.Channel
	// a session found closing is replaced once
	for try := 0; try < 2; try++ {
		s := m.cameraSession(cameraId)
		if s == nil {
			var err error
			if s, err = m.newSession(cameraId); err != nil {
				return err
			}
		}
		if s.Running() {
			return nil
		}
		if ch == nil {
			var err error
			if ch, err = m.dial(ctx, cameraId); err != nil {
				err = &session.TransportError{CameraId: cameraId, Reason: "dial", Err: err}
				m.metrics.error(err)
				return err
			}
		}
		err := s.Start(m.ctx, ch)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, session.ErrStarted):
			ch.Close()
			return nil
		case !errors.Is(err, session.ErrClosed):
			ch.Close()
			return err
		}
		<-s.Done()
	}
	ch.Close()
	return session.ErrClosed
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// Accept starts a server side session of the camera on a viewer channel.
func (m *Manager) Accept(cameraId string, ch session.Channel) (*session.Session, error) {
	b := m.bindings.get(cameraId)
	if b == nil {
		err := &session.AdapterUnavailableError{CameraId: cameraId}
		m.report(err)
		return nil, err
	}
	if err := b.start(); err != nil {
		err = &session.AdapterUnavailableError{CameraId: cameraId, Err: err}
		m.report(err)
		return nil, err
	}
	s, err := m.newSession(cameraId)
	if err != nil {
		return nil, err
	}
	if err = s.Start(m.ctx, ch); err != nil {
		s.Disconnect()
		return nil, err
	}
	return s, nil
}

// Disconnect closes all the sessions of the camera.
func (m *Manager) Disconnect(cameraId string) {
	for _, s := range m.reg.ListByCamera(cameraId) {
		s.Disconnect()
	}
}

// RemoveCamera closes the camera sessions and releases its adapter.
func (m *Manager) RemoveCamera(cameraId string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.bindings.unbind(cameraId)
	m.Disconnect(cameraId)
	if b == nil {
		return
	}
	if err := b.stop(); err != nil {
		m.log.Warn().Err(err).Str(logger.CameraField, cameraId).Msg("Camera stop")
	}
	m.metrics.cameras.Set(float64(m.bindings.Len()))
	m.log.Info().Str(logger.CameraField, cameraId).Msg("Camera removed")
}

// ConnectAll connects all the cameras at once. A failing camera doesn't
// stop the others. The failures are joined in the result, only the
// unavailable adapters also go to Errors.
func (m *Manager) ConnectAll(ctx context.Context) error {
	ids := m.bindings.Cameras()
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			if err := m.Connect(ctx, id); err != nil {
				m.log.Warn().Err(err).Str(logger.CameraField, id).Msg("Connect")
				errs[i] = err
			}
		}(i, id)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// DisconnectAll closes every session at once. Afterwards the registry
// is empty and no reconnection is pending.
func (m *Manager) DisconnectAll() {
	var wg sync.WaitGroup
	for _, s := range m.reg.List() {
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			s.Disconnect()
		}(s)
	}
	wg.Wait()
}

// Close closes all the sessions and stops the adapters.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return
	}
	m.done = true
	m.mu.Unlock()

	m.DisconnectAll()
	for _, id := range m.bindings.Cameras() {
		if b := m.bindings.unbind(id); b != nil {
			if err := b.stop(); err != nil {
				m.log.Warn().Err(err).Str(logger.CameraField, id).Msg("Camera stop")
			}
		}
	}
	m.metrics.cameras.Set(0)
	m.cancel()
}

// Sync brings the cameras in line with the configuration: enabled cameras
// are added, the missing and disabled ones are removed.
func (m *Manager) Sync(list []cameras.Camera, onStream pipeline.StreamFunc) {
	want := make(map[string]bool, len(list))
	for _, c := range list {
		if c.Enabled {
			want[c.Id] = true
		}
	}
	for _, id := range m.bindings.Cameras() {
		if !want[id] {
			m.RemoveCamera(id)
		}
	}
	for _, c := range list {
		if !c.Enabled || m.bindings.Has(c.Id) {
			continue
		}
		if err := m.AddCamera(c.Id, onStream); err != nil {
			m.log.Warn().Err(err).Str(logger.CameraField, c.Id).Msg("Camera")
		}
	}
}

// Status returns the latest session of each camera.
func (m *Manager) Status() map[string]session.Status {
	out := make(map[string]session.Status)
	for _, s := range m.reg.List() {
		st := s.Status()
		if old, ok := out[st.CameraId]; ok && old.CreatedAt.After(st.CreatedAt) {
			continue
		}
		out[st.CameraId] = st
	}
	return out
}

// Sessions returns the status of every session ordered by camera.
func (m *Manager) Sessions() []session.Status {
	list := m.reg.List()
	out := make([]session.Status, 0, len(list))
	for _, s := range list {
		out = append(out, s.Status())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CameraId != out[j].CameraId {
			return out[i].CameraId < out[j].CameraId
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *Manager) Summary() Summary {
	sum := Summary{Closed: m.closed.Load()}
	for _, s := range m.reg.List() {
		sum.TotalSessions++
		switch s.State() {
		case session.Connected:
			sum.Connected++
		case session.Disconnected:
			sum.Disconnected++
		}
	}
	return sum
}

// Stats returns the transport counters of the first connected session of the camera.
func (m *Manager) Stats(cameraId string) (*ConnectionStats, bool) {
	for _, s := range m.reg.ListByCamera(cameraId) {
		st := s.Status()
		if st.State != session.Connected {
			continue
		}
		ps, err := s.Stats()
		if err != nil {
			m.log.Debug().Err(err).Str(logger.CameraField, cameraId).Msg("Stats")
			continue
		}
		cs := &ConnectionStats{
			CameraId:        cameraId,
			SessionId:       st.SessionId,
			State:           st.State,
			BytesSent:       ps.BytesSent,
			BytesReceived:   ps.BytesReceived,
			PacketsSent:     ps.PacketsSent,
			PacketsReceived: ps.PacketsReceived,
			RoundTripTime:   ps.RoundTripTime,
		}
		if st.ConnectedSince != nil {
			cs.ConnectedFor = m.clock.Now().Sub(*st.ConnectedSince)
		}
		return cs, true
	}
	return nil, false
}

// cameraSession returns the live session of a camera on the viewer side.
func (m *Manager) cameraSession(cameraId string) *session.Session {
	for _, s := range m.reg.ListByCamera(cameraId) {
		if s.State() != session.Closed {
			return s
		}
	}
	return nil
}

func (m *Manager) newSession(cameraId string) (*session.Session, error) {
	b := m.bindings.get(cameraId)
	if b == nil {
		return nil, &session.AdapterUnavailableError{CameraId: cameraId}
	}
	conf := session.Config{
		CameraId: cameraId,
		Role:     m.role,
		Peers:    b.adapter,
		Policy:   m.policy,
		Clock:    m.clock,
		Timers:   m.timers,
		Log:      m.log,
		OnState:  func(_ *session.Session, from, to session.State) { m.metrics.transition(from, to) },
		OnError:  func(_ *session.Session, err error) { m.metrics.error(err) },
		OnClose:  m.onClose,
	}
	if m.role == session.Answerer && m.dial != nil {
		conf.Redial = func(ctx context.Context) (session.Channel, error) { return m.dial(ctx, cameraId) }
	}
	s, err := m.reg.Create(cameraId, m.role, func(id network.Uid) *session.Session { return session.New(id, conf) })
	if err != nil {
		return nil, err
	}
	m.metrics.sessions.WithLabelValues(session.Idle.String()).Inc()
	return s, nil
}

func (m *Manager) onClose(s *session.Session, err error) {
	m.reg.Remove(s.Id())
	m.closed.Add(1)
	m.metrics.sessions.WithLabelValues(session.Closed.String()).Dec()
	var fatal *session.FatalError
	var unavailable *session.AdapterUnavailableError
	switch {
	case errors.As(err, &fatal):
		m.metrics.fatal.Inc()
		m.report(err)
	case errors.As(err, &unavailable):
		m.report(err)
	}
}

// report surfaces an error, it is dropped when nobody reads them.
func (m *Manager) report(err error) {
	select {
	case m.errs <- err:
	default:
		m.log.Warn().Err(err).Msg("Error queue is full")
	}
}
