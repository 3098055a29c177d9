package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for PortView. Created once in main
// and passed down; components accept nil and guard every use so tests run
// without a registry.
type Metrics struct {
	// --- Feed ---
	EventsRouted          *prometheus.CounterVec
	EventsDropped         *prometheus.CounterVec
	SnapshotsEmitted      prometheus.Counter
	SnapshotBuildDuration prometheus.Histogram

	// --- Request lifecycle & watchdog ---
	OutstandingRequests *prometheus.GaugeVec
	StaleWarnings       *prometheus.CounterVec

	// --- FX acquisition ---
	FXRatesApplied        *prometheus.CounterVec
	FXSubscriptionsActive prometheus.Gauge

	// --- Bridge ---
	BridgePublishes     prometheus.Counter
	BridgePublishErrors prometheus.Counter

	// --- HTTP / websocket ---
	HTTPRequests *prometheus.CounterVec
	WSClients    prometheus.Gauge
	WSDrops      prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	buildBuckets := []float64{
		0.000005, 0.00001, 0.000025, 0.00005, 0.0001,
		0.00025, 0.0005, 0.001, 0.002, 0.005,
	}

	return &Metrics{
		EventsRouted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "portview_events_routed_total",
			Help: "Upstream events routed by the feed",
		}, []string{"event_type"}),

		EventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "portview_events_dropped_total",
			Help: "Events dropped (malformed, account mismatch, bad value)",
		}, []string{"reason"}),

		SnapshotsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "portview_snapshots_emitted_total",
			Help: "Snapshots emitted to the consumer callback",
		}),

		SnapshotBuildDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "portview_snapshot_build_duration_seconds",
			Help:    "Time to materialize one snapshot",
			Buckets: buildBuckets,
		}),

		OutstandingRequests: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "portview_outstanding_requests",
			Help: "Upstream requests awaiting a terminal event",
		}, []string{"kind"}),

		StaleWarnings: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "portview_stale_warnings_total",
			Help: "Watchdog staleness warnings emitted",
		}, []string{"kind"}),

		FXRatesApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "portview_fx_rates_applied_total",
			Help: "Live-derived FX rates forwarded to the projection",
		}, []string{"currency"}),

		FXSubscriptionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "portview_fx_subscriptions_active",
			Help: "Open FX quote subscriptions",
		}),

		BridgePublishes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "portview_bridge_publishes_total",
			Help: "Snapshots published to NATS",
		}),

		BridgePublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "portview_bridge_publish_errors_total",
			Help: "Snapshot publishes dropped on error",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "portview_http_requests_total",
			Help: "HTTP requests served",
		}, []string{"endpoint", "status"}),

		WSClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "portview_ws_clients",
			Help: "Connected websocket clients",
		}),

		WSDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "portview_ws_drops_total",
			Help: "Websocket messages dropped to slow clients",
		}),
	}
}
