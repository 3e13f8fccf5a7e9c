package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the pipeline's Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	sessionsActive  prometheus.Gauge
	ingestions      *prometheus.CounterVec
	chats           *prometheus.CounterVec
	sessionsExpired *prometheus.CounterVec
	retrieval       prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "resumerag",
			Name:      "sessions_active",
			Help:      "Number of sessions currently registered.",
		}),
		ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resumerag",
			Name:      "ingestions_total",
			Help:      "Document ingestions by result code.",
		}, []string{"result"}),
		chats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resumerag",
			Name:      "chats_total",
			Help:      "Chat turns by result code.",
		}, []string{"result"}),
		sessionsExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resumerag",
			Name:      "sessions_expired_total",
			Help:      "Sessions removed, by reason.",
		}, []string{"reason"}),
		retrieval: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "resumerag",
			Name:      "retrieval_duration_seconds",
			Help:      "Time spent retrieving chunks for a query.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
	for _, c := range []prometheus.Collector{m.sessionsActive, m.ingestions, m.chats, m.sessionsExpired, m.retrieval} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) SetSessionsActive(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

func (m *Metrics) IngestionDone(result string) {
	if m == nil {
		return
	}
	m.ingestions.WithLabelValues(result).Inc()
}

func (m *Metrics) ChatDone(result string) {
	if m == nil {
		return
	}
	m.chats.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionRemoved(reason string) {
	if m == nil {
		return
	}
	m.sessionsExpired.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveRetrieval(d time.Duration) {
	if m == nil {
		return
	}
	m.retrieval.Observe(d.Seconds())
}
