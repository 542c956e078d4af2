package manager

import (
	"errors"

	"github.com/camstream/camstream/pkg/api"
	"github.com/camstream/camstream/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	sessions   *prometheus.GaugeVec
	reconnects prometheus.Counter
	fatal      prometheus.Counter
	errors     *prometheus.CounterVec
	cameras    prometheus.Gauge
}

// newMetrics registers the collectors in reg, a nil reg keeps them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		sessions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "camstream",
			Name:      "sessions",
			Help:      "Live sessions by negotiation state.",
		}, []string{"state"}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: "camstream",
			Name:      "reconnects_total",
			Help:      "Reconnection attempts.",
		}),
		fatal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "camstream",
			Name:      "fatal_sessions_total",
			Help:      "Sessions closed after all the reconnection attempts.",
		}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "camstream",
			Name:      "session_errors_total",
			Help:      "Session errors by kind.",
		}, []string{"kind"}),
		cameras: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "camstream",
			Name:      "cameras",
			Help:      "Cameras with a bound pipeline adapter.",
		}),
	}
}

func (m *metrics) transition(from, to session.State) {
	m.sessions.WithLabelValues(from.String()).Dec()
	m.sessions.WithLabelValues(to.String()).Inc()
	if from == session.Disconnected && to == session.OfferRequested {
		m.reconnects.Inc()
	}
}

func (m *metrics) error(err error) { m.errors.WithLabelValues(errorKind(err)).Inc() }

func errorKind(err error) string {
	var (
		se *api.SignalingError
		ne *session.NegotiationError
		te *session.TransportError
		ae *session.AdapterUnavailableError
		fe *session.FatalError
	)
	switch {
	case errors.As(err, &fe):
		return "fatal"
	case errors.As(err, &se):
		return "signaling"
	case errors.As(err, &ne):
		return "negotiation"
	case errors.As(err, &te):
		return "transport"
	case errors.As(err, &ae):
		return "adapter_unavailable"
	}
	return "other"
}
