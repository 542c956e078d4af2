package manager

import (
	"context"

	"github.com/camstream/camstream/pkg/config"
	"github.com/camstream/camstream/pkg/logger"
	"github.com/camstream/camstream/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
)

// Dialer opens the signaling channel of a camera on the viewer side.
type Dialer func(ctx context.Context, cameraId string) (session.Channel, error)

type Option func(*Manager)

func WithDialer(d Dialer) Option { return func(m *Manager) { m.dial = d } }

func WithPolicy(p session.Policy) Option { return func(m *Manager) { m.policy = p } }

// WithClock replaces the clock of the reconnection timers.
func WithClock(c session.Clock) Option { return func(m *Manager) { m.clock = c } }

func WithLogger(l *logger.Logger) Option { return func(m *Manager) { m.log = l } }

func WithMetrics(reg prometheus.Registerer) Option { return func(m *Manager) { m.registerer = reg } }

// WithMultiViewer lets a camera have many sessions of the same role.
func WithMultiViewer(multi bool) Option { return func(m *Manager) { m.multi = multi } }

// WithSessionConfig applies the configured reconnection policy and viewer mode.
func WithSessionConfig(conf config.Session) Option {
	return func(m *Manager) {
		p := session.DefaultPolicy()
		if conf.MaxAttempts > 0 {
			p.MaxAttempts = conf.MaxAttempts
		}
		if conf.BaseDelay > 0 {
			p.BaseDelay = conf.BaseDelay
		}
		if conf.MaxDelay > 0 {
			p.MaxDelay = conf.MaxDelay
		}
		m.policy = p
		m.multi = conf.MultiViewer
	}
}
