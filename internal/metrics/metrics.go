// Package metrics exposes the gateway's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter the gateway records. A nil *Metrics is
// valid and records nothing, which keeps tests quiet.
type Metrics struct {
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheFallbacks *prometheus.CounterVec
	ReplayOutcomes *prometheus.CounterVec
}

// New registers the gateway counters on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vidgate_cache_hits_total",
			Help: "Cache hits served, by partition kind.",
		}, []string{"partition"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vidgate_cache_misses_total",
			Help: "Cache misses that went to the network, by partition kind.",
		}, []string{"partition"}),
		CacheFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vidgate_cache_fallbacks_total",
			Help: "Network failures answered from cache or the offline page.",
		}, []string{"partition"}),
		ReplayOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vidgate_replay_outcomes_total",
			Help: "Mutation queue replay outcomes (delivered, dropped, retained).",
		}, []string{"outcome"}),
	}
}

// Hit records a cache hit for a partition kind.
func (m *Metrics) Hit(partition string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(partition).Inc()
}

// Miss records a cache miss for a partition kind.
func (m *Metrics) Miss(partition string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(partition).Inc()
}

// Fallback records a network failure answered from a fallback source.
func (m *Metrics) Fallback(partition string) {
	if m == nil {
		return
	}
	m.CacheFallbacks.WithLabelValues(partition).Inc()
}

// Replay records one mutation replay outcome.
func (m *Metrics) Replay(outcome string) {
	if m == nil {
		return
	}
	m.ReplayOutcomes.WithLabelValues(outcome).Inc()
}
