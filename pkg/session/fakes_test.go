package session

import (
	"sync"
	"testing"
	"time"

	"github.com/camstream/camstream/pkg/api"
	"github.com/camstream/camstream/pkg/signaling"
)

type fakeChannel struct {
	mu        sync.Mutex
	onMessage func(api.Message, error)
	onClose   func(signaling.Reason)
	closed    bool
	sent      chan api.Message
}

func newFakeChannel() *fakeChannel { return &fakeChannel{sent: make(chan api.Message, 64)} }

func (c *fakeChannel) Send(m api.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return signaling.ErrChannelClosed
	}
	c.sent <- m
	return nil
}

func (c *fakeChannel) OnMessage(fn func(api.Message, error)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

func (c *fakeChannel) OnClose(fn func(signaling.Reason)) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

func (c *fakeChannel) Close() { c.end(signaling.ClientInitiated) }

func (c *fakeChannel) end(r signaling.Reason) {
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

func (c *fakeChannel) deliver(m api.Message) { c.handler()(m, nil) }
func (c *fakeChannel) deliverErr(err error)  { c.handler()(nil, err) }

func (c *fakeChannel) handler() func(api.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onMessage
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// expect waits for the next sent message.
func (c *fakeChannel) expect(t *testing.T) api.Message {
	t.Helper()
	select {
	case m := <-c.sent:
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("no message was sent")
	}
	return nil
}

type fakeTimer struct {
	clock *fakeClock
	delay time.Duration
	f     func()
	done  bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// fakeClock runs timers only on demand.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		out = append(out, t.delay)
	}
	return out
}

// fire runs the i-th timer if it is still pending.
func (c *fakeClock) fire(i int) bool {
	c.mu.Lock()
	if i >= len(c.timers) || c.timers[i].done {
		c.mu.Unlock()
		return false
	}
	t := c.timers[i]
	t.done = true
	c.now = c.now.Add(t.delay)
	c.mu.Unlock()
	t.f()
	return true
}

// waitTimers waits until n timers have been scheduled.
func (c *fakeClock) waitTimers(t *testing.T, n int) {
	t.Helper()
	waitFor(t, func() bool { return len(c.delays()) >= n }, "%v timers", n)
}

func waitFor(t *testing.T, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for "+format, args...)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	waitFor(t, func() bool { return s.State() == want }, "state %v, have %v", want, s.State())
}

type transition struct{ from, to State }

// journal records everything a session reports through its hooks.
type journal struct {
	mu       sync.Mutex
	moves    []transition
	errs     []error
	closed   int
	closeErr error
}

func (j *journal) hook(c *Config) {
	c.OnState = func(_ *Session, from, to State) {
		j.mu.Lock()
		j.moves = append(j.moves, transition{from, to})
		j.mu.Unlock()
	}
	c.OnError = func(_ *Session, err error) {
		j.mu.Lock()
		j.errs = append(j.errs, err)
		j.mu.Unlock()
	}
	prev := c.OnClose
	c.OnClose = func(s *Session, err error) {
		j.mu.Lock()
		j.closed++
		j.closeErr = err
		j.mu.Unlock()
		if prev != nil {
			prev(s, err)
		}
	}
}

func (j *journal) transitions() []transition {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]transition(nil), j.moves...)
}

func (j *journal) errors() []error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]error(nil), j.errs...)
}

func (j *journal) closes() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closed, j.closeErr
}
