package metrics

import "github.com/prometheus/client_golang/prometheus"

// SyncMetrics exposes counters/histograms for the realtime sync engine.
type SyncMetrics struct {
	eventsTotal    *prometheus.CounterVec
	reconnectTotal prometheus.Counter
	refetchTotal   *prometheus.CounterVec
	commandLatency *prometheus.HistogramVec
}

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	m := &SyncMetrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "praxis",
			Subsystem: "sync",
			Name:      "events_total",
			Help:      "Total realtime events by name and outcome",
		}, []string{"event", "outcome"}),
		reconnectTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "praxis",
			Subsystem: "sync",
			Name:      "reconnects_total",
			Help:      "Total realtime channel reconnect attempts",
		}),
		refetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "praxis",
			Subsystem: "sync",
			Name:      "refetch_total",
			Help:      "Total store refetches triggered by invalidation",
		}, []string{"store"}),
		commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "praxis",
			Subsystem: "sync",
			Name:      "command_latency_seconds",
			Help:      "Latency of user-initiated commands against the backend",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.eventsTotal, m.reconnectTotal, m.refetchTotal, m.commandLatency)
	return m
}

func (m *SyncMetrics) ObserveEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(event, outcome).Inc()
}

func (m *SyncMetrics) ObserveReconnect() {
	if m == nil {
		return
	}
	m.reconnectTotal.Inc()
}

func (m *SyncMetrics) ObserveRefetch(store string) {
	if m == nil {
		return
	}
	m.refetchTotal.WithLabelValues(store).Inc()
}

func (m *SyncMetrics) ObserveCommandLatency(command string, seconds float64) {
	if m == nil {
		return
	}
	m.commandLatency.WithLabelValues(command).Observe(seconds)
}
