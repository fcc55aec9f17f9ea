// Package metrics registers the prometheus instruments shared by the relay
// services and exposes the scrape handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TurnsTotal counts completed chat turns by terminal status
	// ("ok" or the fault kind).
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_turns_total",
		Help: "Chat turns processed, by terminal status.",
	}, []string{"status"})

	// TurnDuration observes end-to-end turn latency on the worker.
	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_turn_duration_seconds",
		Help:    "End-to-end chat turn latency.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// RoutingDecisions counts affinity resolutions by mode: "sticky" when
	// the stored assignment was honored, "hashed" when a fresh instance was
	// selected.
	RoutingDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_routing_decisions_total",
		Help: "Affinity resolutions, by decision mode.",
	}, []string{"mode"})

	// ForwardRetries counts /route forwards that were retried against a
	// re-resolved worker after the first attempt failed.
	ForwardRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_route_forward_retries_total",
		Help: "Route forwards retried after an unreachable worker.",
	})

	// CacheHits / CacheMisses / CacheEvictions track the per-worker
	// workflow cache.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_workflow_cache_hits_total",
		Help: "Workflow cache lookups served from cache.",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_workflow_cache_misses_total",
		Help: "Workflow cache lookups that built a new workflow.",
	})
	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_workflow_cache_evictions_total",
		Help: "Workflow cache entries evicted by capacity or idleness.",
	})

	// ProbeFailures counts failed health probes.
	ProbeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_probe_failures_total",
		Help: "Worker health probes that failed.",
	})
)

// Handler returns the prometheus scrape endpoint.
func Handler() http.Handler { return promhttp.Handler() }
