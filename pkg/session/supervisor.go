package session

import "time"

// supervisor schedules bounded backed-off reconnection attempts of a session.
// It is owned by the session goroutine, only the timer callback runs elsewhere.
type supervisor struct {
	policy   Policy
	clock    Clock
	timers   *Timers
	attempts int
	timer    Timer
}

// schedule plans the next attempt and returns its delay and number.
// It returns false when the attempts are exhausted.
func (s *supervisor) schedule(fire func(attempt int)) (time.Duration, int, bool) {
	if s.attempts >= s.policy.MaxAttempts {
		return 0, s.attempts, false
	}
	s.cancel()
	delay := s.policy.Delay(s.attempts)
	s.attempts++
	attempt := s.attempts
	s.timers.add()
	s.timer = s.clock.AfterFunc(delay, func() {
		s.timers.done()
		fire(attempt)
	})
	return delay, attempt, true
}

// cancel stops the pending timer, if any.
func (s *supervisor) cancel() {
	if s.timer == nil {
		return
	}
	if s.timer.Stop() {
		s.timers.done()
	}
	s.timer = nil
}

// fired forgets the timer that has just gone off.
func (s *supervisor) fired() { s.timer = nil }

func (s *supervisor) reset() { s.attempts = 0 }
