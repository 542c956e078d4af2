package session

import (
	"sync/atomic"
	"time"
)

// Policy is the reconnection policy.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Delay returns the wait before the reconnection that follows
// n failed attempts: base * 2^n, capped at MaxDelay.
func (p Policy) Delay(n int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Timer is a scheduled function call that can be cancelled.
type Timer interface {
	// Stop prevents the call, it returns false if the call
	// has already been made or the timer was stopped.
	Stop() bool
}

// Clock schedules delayed calls.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time                            { return time.Now() }
func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// Timers counts pending reconnection timers across sessions.
type Timers struct{ n atomic.Int32 }

func (t *Timers) Pending() int { return int(t.n.Load()) }
func (t *Timers) add()         { t.n.Add(1) }
func (t *Timers) done()        { t.n.Add(-1) }
