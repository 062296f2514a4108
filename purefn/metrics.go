package purefn

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus counters shared by every Memo configured with them.
// Each series is labeled with the Memo's id.
type Metrics struct {
	Lookups   *prometheus.CounterVec
	Stores    *prometheus.CounterVec
	Evictions *prometheus.CounterVec
	Failures  *prometheus.CounterVec
}

// NewMetrics registers the memo counters with reg. A nil reg registers with the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "automemo",
			Name:      "lookups_total",
			Help:      "Cache lookups by tier and result.",
		}, []string{"memo", "tier", "result"}),
		Stores: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "automemo",
			Name:      "stores_total",
			Help:      "Results stored, by tier.",
		}, []string{"memo", "tier"}),
		Evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "automemo",
			Name:      "evictions_total",
			Help:      "Entries removed after their key or value was reclaimed.",
		}, []string{"memo", "tier"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "automemo",
			Name:      "failures_total",
			Help:      "Calls that failed validation or whose function failed.",
		}, []string{"memo", "stage"}),
	}
}

func (m *Metrics) observe(memo string, kind EventKind, tier Tier) {
	switch kind {
	case EventHit:
		m.Lookups.WithLabelValues(memo, string(tier), "hit").Inc()
	case EventMiss:
		m.Lookups.WithLabelValues(memo, "", "miss").Inc()
	case EventStore:
		m.Stores.WithLabelValues(memo, string(tier)).Inc()
	case EventEvict:
		m.Evictions.WithLabelValues(memo, string(tier)).Inc()
	}
}
