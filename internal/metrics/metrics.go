// Package metrics declares the Prometheus collectors exposed at /metrics,
// grounded on the prometheus.NewCounterVec/NewHistogramVec + MustRegister
// pattern in cmd/server/main.go.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TickDuration observes how long each matcher tick took.
	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "matchmaking_tick_duration_seconds",
		Help:    "Duration of a single matcher tick.",
		Buckets: prometheus.DefBuckets,
	})

	// MatchOutcomesTotal counts terminal match outcomes by kind:
	// confirmed, game_creation_failed, penalty_applied, opponent_declined.
	MatchOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchmaking_match_outcomes_total",
		Help: "Count of terminal match outcomes by kind.",
	}, []string{"outcome"})

	// RemoteCallDuration observes outbound Game/Users service call
	// latency, labeled by service and whether the result was a fallback.
	RemoteCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "matchmaking_remote_call_duration_seconds",
		Help:    "Duration of outbound Game/Users service calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "fallback"})

	// QueueSize reports the current count of waiting players.
	QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matchmaking_queue_size",
		Help: "Current number of players in WaitingByUser.",
	})

	// PendingMatches reports the current count of in-flight ready checks.
	PendingMatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matchmaking_pending_matches",
		Help: "Current number of PendingMatch entries awaiting resolution.",
	})
)

func init() {
	prometheus.MustRegister(TickDuration, MatchOutcomesTotal, RemoteCallDuration, QueueSize, PendingMatches)
}

// ObserveTick records a tick's wall-clock duration and current queue
// shape.
func ObserveTick(duration time.Duration, waiting, pending int) {
	TickDuration.Observe(duration.Seconds())
	QueueSize.Set(float64(waiting))
	PendingMatches.Set(float64(pending))
}

// ObserveRemoteCall records outbound call latency.
func ObserveRemoteCall(service string, duration time.Duration, fallback bool) {
	label := "false"
	if fallback {
		label = "true"
	}
	RemoteCallDuration.WithLabelValues(service, label).Observe(duration.Seconds())
}

// ObserveOutcome increments the terminal-outcome counter for one match.
func ObserveOutcome(outcome string) {
	MatchOutcomesTotal.WithLabelValues(outcome).Inc()
}
