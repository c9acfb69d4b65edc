package mxe

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "mxe"

// metrics are the client's Prometheus collectors. A nil *metrics is valid
// and records nothing.
type metrics struct {
	sessions      *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	keyAttempts   *prometheus.CounterVec
	pending       prometheus.Gauge
	duration      prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_total",
			Help:      "Computation sessions by terminal outcome.",
		}, []string{"outcome", "reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "session_transitions_total",
			Help:      "Session state transitions by target state.",
		}, []string{"state"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "notifications_total",
			Help:      "Result notifications by correlation outcome.",
		}, []string{"result"}),
		keyAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cluster_key_attempts_total",
			Help:      "Cluster public key lookups by result.",
		}, []string{"result"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pending_requests",
			Help:      "Requests awaiting a result notification.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time from session start to a terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.sessions, err = register(reg, m.sessions); err != nil {
		return nil, err
	}
	if m.transitions, err = register(reg, m.transitions); err != nil {
		return nil, err
	}
	if m.notifications, err = register(reg, m.notifications); err != nil {
		return nil, err
	}
	if m.keyAttempts, err = register(reg, m.keyAttempts); err != nil {
		return nil, err
	}
	if m.pending, err = register(reg, m.pending); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing the collector already registered under
// the same descriptor so several clients can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *metrics) transition(s State) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(s.String()).Inc()
}

func (m *metrics) finished(reason FailureReason, seconds float64) {
	if m == nil {
		return
	}
	if reason == "" {
		m.sessions.WithLabelValues("decrypted", "").Inc()
	} else {
		m.sessions.WithLabelValues("failed", string(reason)).Inc()
	}
	m.duration.Observe(seconds)
}

func (m *metrics) notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *metrics) keyAttempt(err error) {
	if m == nil {
		return
	}
	if err == nil {
		m.keyAttempts.WithLabelValues("found").Inc()
	} else {
		m.keyAttempts.WithLabelValues("unavailable").Inc()
	}
}

func (m *metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
