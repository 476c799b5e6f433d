package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bidOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_bid_operations_total",
			Help: "Join and bid attempts by outcome",
		},
		[]string{"operation", "outcome"},
	)

	bidDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auction_bid_duration_seconds",
			Help:    "Latency of join and bid operations including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	conflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_conflict_retries_total",
			Help: "Operations retried after a concurrency conflict",
		},
	)

	transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_transitions_total",
			Help: "Auction state transitions claimed by this instance",
		},
		[]string{"from", "to"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auction_sweep_duration_seconds",
			Help:    "Duration of scheduler sweeps",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)

	sweepFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_sweep_failures_total",
			Help: "Auctions that failed to transition during a sweep",
		},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_events_total",
			Help: "Events handled by the notification bus",
		},
		[]string{"topic", "status"},
	)

	eventQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auction_event_queue_depth",
			Help: "Events waiting in the notification bus buffer",
		},
	)

	wsClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auction_ws_clients",
			Help: "Connected websocket subscribers",
		},
	)
)

// Track a join or bid outcome and its latency
func TrackBidOperation(operation, outcome string, d time.Duration) {
	bidOperations.WithLabelValues(operation, outcome).Inc()
	bidDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// Track a retry caused by ErrConcurrencyConflict
func TrackConflictRetry() {
	conflictRetries.Inc()
}

// Track a claimed transition
func TrackTransition(from, to string) {
	transitions.WithLabelValues(from, to).Inc()
}

// Track a finished sweep and how many auctions failed in it
func TrackSweep(d time.Duration, failures int) {
	sweepDuration.Observe(d.Seconds())
	sweepFailures.Add(float64(failures))
}

// Track an event; status is one of queued, dropped, delivered, failed
func TrackEvent(topic, status string) {
	eventsPublished.WithLabelValues(topic, status).Inc()
}

// SetEventQueueDepth records the bus buffer length
func SetEventQueueDepth(n int) {
	eventQueueDepth.Set(float64(n))
}

// AddWSClients adjusts the connected websocket subscriber gauge
func AddWSClients(delta int) {
	wsClients.Add(float64(delta))
}
