package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/camstream/camstream/pkg/api"
	"github.com/camstream/camstream/pkg/cameras"
	"github.com/camstream/camstream/pkg/logger"
	"github.com/camstream/camstream/pkg/pipeline"
	"github.com/camstream/camstream/pkg/pipeline/pipelinetest"
	"github.com/camstream/camstream/pkg/session"
	"github.com/camstream/camstream/pkg/signaling"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type channel struct {
	mu        sync.Mutex
	onMessage func(api.Message, error)
	onClose   func(signaling.Reason)
	closed    bool
	sent      chan api.Message
}

func newChannel() *channel { return &channel{sent: make(chan api.Message, 64)} }

func (c *channel) Send(m api.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return signaling.ErrChannelClosed
	}
	c.sent <- m
	return nil
}

func (c *channel) OnMessage(fn func(api.Message, error)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

func (c *channel) OnClose(fn func(signaling.Reason)) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

func (c *channel) Close() { c.end(signaling.ClientInitiated) }

func (c *channel) end(r signaling.Reason) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	fn := c.onClose
	c.mu.Unlock()
	if fn != nil {
		fn(r)
	}
}

func (c *channel) deliver(m api.Message) {
	c.mu.Lock()
	fn := c.onMessage
	c.mu.Unlock()
	fn(m, nil)
}

func (c *channel) expect(t *testing.T) api.Message {
	t.Helper()
	select {
	case m := <-c.sent:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message sent")
	}
	return nil
}

// dialer hands out fresh channels, cameras in fail can't be dialed.
type dialer struct {
	mu    sync.Mutex
	fail  map[string]bool
	chans map[string][]*channel
}

func (d *dialer) dial(_ context.Context, cameraId string) (session.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail[cameraId] {
		return nil, errors.New("connection refused")
	}
	if d.chans == nil {
		d.chans = make(map[string][]*channel)
	}
	c := newChannel()
	d.chans[cameraId] = append(d.chans[cameraId], c)
	return c, nil
}

func (d *dialer) last(cameraId string) *channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.chans[cameraId]
	if len(l) == 0 {
		return nil
	}
	return l[len(l)-1]
}

func (d *dialer) refuse(cameraId string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail == nil {
		d.fail = make(map[string]bool)
	}
	d.fail[cameraId] = true
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %v", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newManager(t *testing.T, role session.Role, f *pipelinetest.Factory, opts ...Option) *Manager {
	t.Helper()
	m := New(role, f.Make, append([]Option{WithLogger(logger.NewNop())}, opts...)...)
	t.Cleanup(m.Close)
	return m
}

func TestAddCameraTwice(t *testing.T) {
	f := &pipelinetest.Factory{}
	m := newManager(t, session.Answerer, f)

	for i := 0; i < 2; i++ {
		if err := m.AddCamera("cam1", nil); err != nil {
			t.Fatal(err)
		}
	}
	if f.Made("cam1") != 1 {
		t.Errorf("adapters made = %v, want 1", f.Made("cam1"))
	}
	if n := m.Registry().Len(); n != 1 {
		t.Errorf("sessions = %v, want 1", n)
	}
	st, ok := m.Status()["cam1"]
	if !ok || st.State != session.Idle || st.Role != session.Answerer {
		t.Errorf("status = %+v", st)
	}
}

func TestAdapterUnavailable(t *testing.T) {
	f := &pipelinetest.Factory{Unavailable: map[string]bool{"cam2": true}}
	m := newManager(t, session.Answerer, f, WithDialer((&dialer{}).dial))

	err := m.AddCamera("cam2", nil)
	var ae *session.AdapterUnavailableError
	if !errors.As(err, &ae) || ae.CameraId != "cam2" {
		t.Fatalf("expected an unavailable adapter, got %v", err)
	}
	select {
	case e := <-m.Errors():
		if !errors.As(e, &ae) {
			t.Errorf("reported %v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("the error is not reported")
	}

	if err := m.Connect(context.Background(), "cam2"); !errors.As(err, &ae) {
		t.Errorf("connect to an unknown camera = %v", err)
	}
	if m.Available("cam2") {
		t.Error("camera should not be available")
	}
}

func TestConnectAllIsolation(t *testing.T) {
	f := &pipelinetest.Factory{}
	d := &dialer{}
	d.refuse("cam2")
	m := newManager(t, session.Answerer, f, WithDialer(d.dial))
	for _, id := range []string{"cam1", "cam2", "cam3"} {
		if err := m.AddCamera(id, nil); err != nil {
			t.Fatal(err)
		}
	}

	err := m.ConnectAll(context.Background())
	var te *session.TransportError
	if !errors.As(err, &te) || te.CameraId != "cam2" {
		t.Fatalf("expected a transport error of cam2, got %v", err)
	}
	if n := testutil.ToFloat64(m.metrics.errors.WithLabelValues("transport")); n != 1 {
		t.Errorf("transport errors = %v, want 1", n)
	}
	select {
	case e := <-m.Errors():
		t.Errorf("a dial failure is not a session failure: %v", e)
	default:
	}

	for _, id := range []string{"cam1", "cam3"} {
		ch := d.last(id)
		if ch == nil {
			t.Fatalf("%v was not dialed", id)
		}
		ch.deliver(api.Welcome{CameraId: id, Status: api.StatusReady})
		if _, ok := ch.expect(t).(api.RequestOffer); !ok {
			t.Errorf("%v: expected a request-offer", id)
		}
		if !f.Adapter(id).Running() {
			t.Errorf("%v: adapter is not running", id)
		}
	}
	waitFor(t, "offer requests", func() bool {
		st := m.Status()
		return st["cam1"].State == session.OfferRequested && st["cam3"].State == session.OfferRequested
	})
	if st := m.Status()["cam2"]; st.State != session.Idle {
		t.Errorf("cam2 state = %v", st.State)
	}

	// connecting again doesn't dial a running session
	if err := m.Connect(context.Background(), "cam1"); err != nil {
		t.Fatal(err)
	}
	d.mu.Lock()
	n := len(d.chans["cam1"])
	d.mu.Unlock()
	if n != 1 {
		t.Errorf("cam1 dialed %v times", n)
	}
}

// handshake runs a server session up to CONNECTED.
func handshake(t *testing.T, m *Manager, f *pipelinetest.Factory, ch *channel) *session.Session {
	t.Helper()
	s, err := m.Accept("cam1", ch)
	if err != nil {
		t.Fatal(err)
	}
	ch.deliver(api.RequestOffer{})
	if _, ok := ch.expect(t).(api.Offer); !ok {
		t.Fatal("expected an offer")
	}
	waitFor(t, "offer sent", func() bool { return s.State() == session.OfferSent })
	ch.deliver(api.Answer{SDP: "answer"})
	waitFor(t, "negotiating", func() bool { return s.State() == session.Negotiating })
	f.Adapter("cam1").LastPeer().Emit(pipeline.StateChanged{State: pipeline.StateConnected})
	waitFor(t, "connected", func() bool { return s.State() == session.Connected })
	return s
}

func TestServerSessions(t *testing.T) {
	f := &pipelinetest.Factory{}
	reg := prometheus.NewRegistry()
	m := newManager(t, session.Offerer, f, WithMultiViewer(true), WithMetrics(reg))
	if err := m.AddCamera("cam1", nil); err != nil {
		t.Fatal(err)
	}
	if m.Registry().Len() != 0 {
		t.Fatal("the server makes sessions per viewer only")
	}

	first := handshake(t, m, f, newChannel())
	second, err := m.Accept("cam1", newChannel())
	if err != nil {
		t.Fatal(err)
	}

	sum := m.Summary()
	if sum.TotalSessions != 2 || sum.Connected != 1 || sum.Disconnected != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if got := len(m.Sessions()); got != 2 {
		t.Errorf("sessions = %v", got)
	}
	if st := m.Status()["cam1"]; st.SessionId != second.Id().String() {
		t.Errorf("status should show the latest session, got %v", st.SessionId)
	}

	stats, ok := m.Stats("cam1")
	if !ok {
		t.Fatal("no stats of a connected session")
	}
	if stats.SessionId != first.Id().String() || stats.BytesSent != 1000 {
		t.Errorf("stats = %+v", stats)
	}
	if _, ok := m.Stats("cam2"); ok {
		t.Error("stats of an unknown camera")
	}

	if v := testutil.ToFloat64(m.metrics.sessions.WithLabelValues(session.Connected.String())); v != 1 {
		t.Errorf("connected gauge = %v", v)
	}
	if v := testutil.ToFloat64(m.metrics.cameras); v != 1 {
		t.Errorf("cameras gauge = %v", v)
	}

	m.DisconnectAll()
	if m.Registry().Len() != 0 || m.PendingTimers() != 0 {
		t.Errorf("sessions = %v, timers = %v", m.Registry().Len(), m.PendingTimers())
	}
	if sum := m.Summary(); sum.TotalSessions != 0 || sum.Closed != 2 {
		t.Errorf("summary after disconnect = %+v", sum)
	}
	if !f.Adapter("cam1").Running() {
		t.Error("disconnecting sessions should keep the adapter")
	}
}

func TestSingleViewer(t *testing.T) {
	f := &pipelinetest.Factory{}
	m := newManager(t, session.Offerer, f)
	if err := m.AddCamera("cam1", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Accept("cam1", newChannel()); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Accept("cam1", newChannel()); !errors.Is(err, session.ErrDuplicateSession) {
		t.Errorf("expected a duplicate session, got %v", err)
	}
}

func TestDisconnectAllWithPendingRetries(t *testing.T) {
	f := &pipelinetest.Factory{}
	m := newManager(t, session.Offerer, f,
		WithMultiViewer(true),
		WithPolicy(session.Policy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}))
	if err := m.AddCamera("cam1", nil); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		s := handshake(t, m, f, newChannel())
		f.Adapter("cam1").LastPeer().Emit(pipeline.StateChanged{State: pipeline.StateFailed})
		waitFor(t, "disconnected", func() bool { return s.State() == session.Disconnected })
	}
	if m.PendingTimers() != 3 {
		t.Fatalf("timers = %v", m.PendingTimers())
	}
	if sum := m.Summary(); sum.Disconnected != 3 {
		t.Errorf("summary = %+v", sum)
	}

	m.DisconnectAll()
	if m.Registry().Len() != 0 || m.PendingTimers() != 0 {
		t.Errorf("sessions = %v, timers = %v", m.Registry().Len(), m.PendingTimers())
	}
}

func TestFatalIsReported(t *testing.T) {
	f := &pipelinetest.Factory{}
	d := &dialer{}
	m := newManager(t, session.Answerer, f,
		WithDialer(d.dial),
		WithPolicy(session.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}))
	if err := m.AddCamera("cam1", nil); err != nil {
		t.Fatal(err)
	}
	if err := m.Connect(context.Background(), "cam1"); err != nil {
		t.Fatal(err)
	}
	ch := d.last("cam1")
	ch.deliver(api.Welcome{CameraId: "cam1", Status: api.StatusReady})
	ch.expect(t)

	d.refuse("cam1")
	ch.end(signaling.Timeout)

	select {
	case err := <-m.Errors():
		var fatal *session.FatalError
		if !errors.As(err, &fatal) || fatal.CameraId != "cam1" {
			t.Errorf("expected a fatal error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no fatal error")
	}
	waitFor(t, "registry cleanup", func() bool { return m.Registry().Len() == 0 })
	if m.PendingTimers() != 0 {
		t.Errorf("timers = %v", m.PendingTimers())
	}
	if v := testutil.ToFloat64(m.metrics.fatal); v != 1 {
		t.Errorf("fatal counter = %v", v)
	}
}

func TestSync(t *testing.T) {
	f := &pipelinetest.Factory{}
	m := newManager(t, session.Offerer, f)

	m.Sync([]cameras.Camera{
		{Id: "cam1", Enabled: true},
		{Id: "cam2", Enabled: true},
		{Id: "cam3"},
	}, nil)
	if got := m.Cameras(); len(got) != 2 || got[0] != "cam1" || got[1] != "cam2" {
		t.Fatalf("cameras = %v", got)
	}
	if err := m.Connect(context.Background(), "cam2"); err != nil {
		t.Fatal(err)
	}

	m.Sync([]cameras.Camera{
		{Id: "cam1", Enabled: true},
		{Id: "cam2"},
		{Id: "cam3", Enabled: true},
	}, nil)
	if got := m.Cameras(); len(got) != 2 || got[0] != "cam1" || got[1] != "cam3" {
		t.Fatalf("cameras = %v", got)
	}
	if f.Made("cam1") != 1 {
		t.Errorf("cam1 was rebuilt %v times", f.Made("cam1"))
	}
	if _, stops := f.Adapter("cam2").Counts(); stops != 1 {
		t.Errorf("cam2 stops = %v", stops)
	}
}

func TestClose(t *testing.T) {
	f := &pipelinetest.Factory{}
	m := New(session.Offerer, f.Make, WithLogger(logger.NewNop()))
	if err := m.AddCamera("cam1", nil); err != nil {
		t.Fatal(err)
	}
	s, err := m.Accept("cam1", newChannel())
	if err != nil {
		t.Fatal(err)
	}
	m.Close()
	m.Close()

	if s.State() != session.Closed {
		t.Errorf("session state = %v", s.State())
	}
	if f.Adapter("cam1").Running() {
		t.Error("adapter is still running")
	}
	if err := m.AddCamera("cam2", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("add after close = %v", err)
	}
}
