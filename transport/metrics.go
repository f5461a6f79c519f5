package transport

import "github.com/prometheus/client_golang/prometheus"

// poolMetrics exposes pool and connection counters. A nil *poolMetrics is a
// valid no-op sink, so instrumentation stays optional.
type poolMetrics struct {
	connsCreated *prometheus.CounterVec
	connsBad     prometheus.Counter
	requests     prometheus.Counter
	authFrames   prometheus.Counter
}

func newPoolMetrics(reg prometheus.Registerer) *poolMetrics {
	if reg == nil {
		return nil
	}
	m := &poolMetrics{
		connsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dax_connections_created_total",
			Help: "Connections opened, by endpoint.",
		}, []string{"endpoint"}),
		connsBad: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dax_connections_bad_total",
			Help: "Connections flagged bad and removed from the pool.",
		}),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dax_requests_total",
			Help: "Application request/reply round trips.",
		}),
		authFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dax_auth_frames_total",
			Help: "Authorize-connection frames emitted.",
		}),
	}
	reg.MustRegister(m.connsCreated, m.connsBad, m.requests, m.authFrames)
	return m
}

func (m *poolMetrics) incCreated(ep Endpoint) {
	if m != nil {
		m.connsCreated.WithLabelValues(ep.String()).Inc()
	}
}

func (m *poolMetrics) incBad() {
	if m != nil {
		m.connsBad.Inc()
	}
}

func (m *poolMetrics) incRequests() {
	if m != nil {
		m.requests.Inc()
	}
}

func (m *poolMetrics) incAuthFrames() {
	if m != nil {
		m.authFrames.Inc()
	}
}
