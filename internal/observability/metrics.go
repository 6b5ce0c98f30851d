package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the watchdog.
type Metrics struct {
	WatchdogState   prometheus.Gauge
	LocationEnabled prometheus.Gauge
	ProviderChanges prometheus.Counter

	// Availability polling and location publishing.
	AvailabilityChecks     *prometheus.CounterVec // labels: outcome={available,unavailable,error}
	LocationPublishes      *prometheus.CounterVec // labels: source={device,fallback,skipped}
	LocationLookupDuration prometheus.Histogram

	// Adapters.
	DeviceMessages *prometheus.CounterVec // labels: kind={providers,availability,fix}, outcome={ok,invalid,error}
	SinkMessages   *prometheus.CounterVec // labels: outcome={written,dropped,error}
}

// NewMetrics creates and registers all watchdog metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.WatchdogState,
		m.LocationEnabled,
		m.ProviderChanges,
		m.AvailabilityChecks,
		m.LocationPublishes,
		m.LocationLookupDuration,
		m.DeviceMessages,
		m.SinkMessages,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		WatchdogState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "biedra_watchdog",
			Name:      "state",
			Help:      "Current watchdog state: 0 disabled, 1 enabled/unavailable, 2 enabled/available, 3 stopped.",
		}),
		LocationEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "biedra_watchdog",
			Name:      "location_enabled",
			Help:      "1 when a GPS or network provider is enabled, 0 otherwise.",
		}),
		ProviderChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "biedra_watchdog",
			Name:      "provider_changes_total",
			Help:      "Total provider state re-evaluations.",
		}),
		AvailabilityChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "biedra_watchdog",
			Name:      "availability_checks_total",
			Help:      "Location availability queries by outcome.",
		}, []string{"outcome"}),
		LocationPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "biedra_watchdog",
			Name:      "location_publishes_total",
			Help:      "Location publish attempts by resulting source.",
		}, []string{"source"}),
		LocationLookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "biedra_watchdog",
			Name:      "location_lookup_duration_seconds",
			Help:      "Duration of last-known-location lookups.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		DeviceMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "biedra_watchdog",
			Name:      "device_messages_total",
			Help:      "Device bridge messages by kind and outcome.",
		}, []string{"kind", "outcome"}),
		SinkMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "biedra_watchdog",
			Name:      "sink_messages_total",
			Help:      "Position sink messages by outcome.",
		}, []string{"outcome"}),
	}
}
