package scanjob

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/scanbridge/metric"
)

// Metrics holds Prometheus metrics for the job controller
type Metrics struct {
	jobsActive   prometheus.Gauge
	jobsTotal    *prometheus.CounterVec
	jobsRejected prometheus.Counter
	jobDuration  prometheus.Histogram
}

// newMetrics creates and registers job controller metrics
func newMetrics(registry *metric.MetricsRegistry, componentName string) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		jobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "scanbridge",
			Subsystem: "scanjob",
			Name:      "jobs_active",
			Help:      "Number of scan jobs currently in the registry",
		}),

		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scanbridge",
			Subsystem: "scanjob",
			Name:      "jobs_total",
			Help:      "Total scan jobs by terminal outcome",
		}, []string{"outcome"}),

		jobsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scanbridge",
			Subsystem: "scanjob",
			Name:      "jobs_rejected_total",
			Help:      "Scan requests rejected because a job was already running",
		}),

		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scanbridge",
			Subsystem: "scanjob",
			Name:      "job_duration_seconds",
			Help:      "Wall-clock duration of scan jobs",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
	}

	_ = registry.RegisterGauge(componentName, "jobs_active", metrics.jobsActive)
	_ = registry.RegisterCounterVec(componentName, "jobs_total", metrics.jobsTotal)
	_ = registry.RegisterCounter(componentName, "jobs_rejected", metrics.jobsRejected)
	_ = registry.RegisterHistogram(componentName, "job_duration", metrics.jobDuration)

	return metrics
}
