package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ExpirySweepStatusOK    = "ok"
	ExpirySweepStatusError = "error"
)

// ExpiryMetrics exposes the expiry sweep on the Prometheus registry.
type ExpiryMetrics struct {
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
	licenses *prometheus.GaugeVec
	lastRun  prometheus.Gauge
}

var (
	expiryMetricsOnce sync.Once
	expiryMetrics     *ExpiryMetrics
)

// ExpiryWithConfig returns the process-wide expiry sweep metrics.
func ExpiryWithConfig(cfg Config) *ExpiryMetrics {
	expiryMetricsOnce.Do(func() {
		expiryMetrics = NewExpiryMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return expiryMetrics
}

// NewExpiryMetrics registers the sweep collectors on registerer.
func NewExpiryMetrics(registerer prometheus.Registerer, cfg Config) *ExpiryMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "netbox-license"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &ExpiryMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "license_expiry_sweep_runs_total",
			Help:        "Expiry sweep runs by outcome.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "license_expiry_sweep_duration_seconds",
			Help:        "Expiry sweep latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			ConstLabels: constLabels,
		}),
		licenses: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "license_expiry_licenses",
			Help:        "Licenses inside the sweep horizon by expiry status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "license_expiry_sweep_last_run_timestamp_seconds",
			Help:        "Unix time of the last completed expiry sweep.",
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(m.runs, m.duration, m.licenses, m.lastRun)
	return m
}

// RecordRun records one sweep. finishedAt is only stored for successful runs.
func (m *ExpiryMetrics) RecordRun(status string, elapsed time.Duration, finishedAt time.Time) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.duration.Observe(elapsed.Seconds())
	if status == ExpirySweepStatusOK {
		m.lastRun.Set(float64(finishedAt.Unix()))
	}
}

// SetLicenses replaces the per-status gauge values. Statuses missing from
// counts drop to zero.
func (m *ExpiryMetrics) SetLicenses(statuses []string, counts map[string]int) {
	if m == nil {
		return
	}
	for _, status := range statuses {
		m.licenses.WithLabelValues(status).Set(float64(counts[status]))
	}
}
