package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "disaster_alert"

// Metrics holds the Prometheus counters, histograms, and gauges for collection
// and alerting.
type Metrics struct {
	// Collector metrics.
	CollectorRunning       prometheus.Gauge
	CollectorCycles        *prometheus.CounterVec // labels: outcome={completed,overlap_skipped}
	CollectorCycleDuration prometheus.Histogram
	AdapterRecords         *prometheus.CounterVec   // labels: adapter, outcome={fetched,dropped,inserted,merged,skipped,failed}
	AdapterFailures        *prometheus.CounterVec   // labels: adapter, kind={transient,malformed,other}
	AdapterDuration        *prometheus.HistogramVec // labels: adapter
	GridCells              *prometheus.CounterVec   // labels: adapter, outcome={ok,failed}

	// Feed client metrics.
	FeedRequests        *prometheus.CounterVec   // labels: host, outcome={success,transient,malformed}
	FeedRequestDuration *prometheus.HistogramVec // labels: host

	// Alert matcher metrics.
	AlertCycles             *prometheus.CounterVec // labels: outcome={completed,failed,overlap_skipped}
	AlertCycleDuration      prometheus.Histogram
	AlertCandidates         prometheus.Gauge
	AlertsPublished         prometheus.Counter
	AlertSubscriberFailures prometheus.Counter
	AlertHubDropped         prometheus.Counter

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		CollectorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collector_running",
			Help:      "1 while a collection cycle is in progress.",
		}),
		CollectorCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collector_cycles_total",
			Help:      "Collection cycles by outcome.",
		}, []string{"outcome"}),
		CollectorCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collector_cycle_duration_seconds",
			Help:      "Duration of a complete collection cycle.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		AdapterRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_records_total",
			Help:      "Records handled per adapter by outcome.",
		}, []string{"adapter", "outcome"}),
		AdapterFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_failures_total",
			Help:      "Whole-adapter fetch failures by error kind.",
		}, []string{"adapter", "kind"}),
		AdapterDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "adapter_duration_seconds",
			Help:      "Duration of one adapter's fetch and ingest.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"adapter"}),
		GridCells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grid_cells_total",
			Help:      "Grid cells sampled per adapter by outcome.",
		}, []string{"adapter", "outcome"}),
		FeedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_requests_total",
			Help:      "Upstream feed requests by host and outcome.",
		}, []string{"host", "outcome"}),
		FeedRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_request_duration_seconds",
			Help:      "Upstream feed request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"host"}),
		AlertCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_cycles_total",
			Help:      "Alert matching cycles by outcome.",
		}, []string{"outcome"}),
		AlertCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "alert_cycle_duration_seconds",
			Help:      "Duration of a complete alert matching cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		AlertCandidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert_candidate_events",
			Help:      "Active in-scope events considered in the last alert cycle.",
		}),
		AlertsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_published_total",
			Help:      "Region alert messages published.",
		}),
		AlertSubscriberFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_subscriber_failures_total",
			Help:      "Subscribers whose match or publish failed.",
		}),
		AlertHubDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_hub_dropped_total",
			Help:      "In-process alert deliveries dropped because a subscriber buffer was full.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Reverse geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when address enrichment is enabled, 0 otherwise.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.CollectorRunning,
		m.CollectorCycles,
		m.CollectorCycleDuration,
		m.AdapterRecords,
		m.AdapterFailures,
		m.AdapterDuration,
		m.GridCells,
		m.FeedRequests,
		m.FeedRequestDuration,
		m.AlertCycles,
		m.AlertCycleDuration,
		m.AlertCandidates,
		m.AlertsPublished,
		m.AlertSubscriberFailures,
		m.AlertHubDropped,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
