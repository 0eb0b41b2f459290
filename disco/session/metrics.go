package session

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records handshake outcomes. A nil *Metrics records nothing.
type Metrics struct {
	Handshakes *prometheus.CounterVec   // pattern, role, result
	Latency    *prometheus.HistogramVec // pattern, role
	Tickets    *prometheus.CounterVec   // event
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disco",
			Name:      "handshakes_total",
			Help:      "Framed handshakes by pattern, role and result.",
		}, []string{"pattern", "role", "result"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "disco",
			Name:      "handshake_duration_seconds",
			Help:      "Time from Hello to an established session.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"pattern", "role"}),
		Tickets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "disco",
			Name:      "tickets_total",
			Help:      "Resumption tickets issued, redeemed and rejected.",
		}, []string{"event"}),
	}
	for _, c := range []prometheus.Collector{m.Handshakes, m.Latency, m.Tickets} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// result maps an error to a short label value.
func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPatternRejected), errors.Is(err, ErrResumeNotPSK):
		return "rejected"
	case errors.Is(err, ErrTicketExpired), errors.Is(err, ErrTicketInvalid), errors.Is(err, ErrTicketNotFound):
		return "bad_ticket"
	}
	return "error"
}

func (m *Metrics) observeHandshake(pattern, role string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.Handshakes.WithLabelValues(pattern, role, result(err)).Inc()
	if err == nil {
		m.Latency.WithLabelValues(pattern, role).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ticket(event string) {
	if m == nil {
		return
	}
	m.Tickets.WithLabelValues(event).Inc()
}
