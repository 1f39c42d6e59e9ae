package gateway

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/scanbridge/metric"
)

// Metrics holds Prometheus metrics for the Gateway component
type Metrics struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	originsRejected   prometheus.Counter
	messagesReceived  *prometheus.CounterVec
	eventsSent        *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
}

// newMetrics creates and registers Gateway metrics
func newMetrics(registry *metric.MetricsRegistry, componentName string) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "scanbridge",
			Subsystem: "gateway",
			Name:      "connections_active",
			Help:      "Number of active WebSocket connections",
		}),

		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scanbridge",
			Subsystem: "gateway",
			Name:      "connections_total",
			Help:      "Total number of WebSocket connections accepted",
		}),

		originsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scanbridge",
			Subsystem: "gateway",
			Name:      "origins_rejected_total",
			Help:      "Total upgrade attempts rejected by the origin allow-list",
		}),

		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scanbridge",
			Subsystem: "gateway",
			Name:      "messages_received_total",
			Help:      "Total commands received, by command type",
		}, []string{"component", "type"}),

		eventsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scanbridge",
			Subsystem: "gateway",
			Name:      "events_sent_total",
			Help:      "Total events sent to clients, by event type",
		}, []string{"component", "type"}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scanbridge",
			Subsystem: "gateway",
			Name:      "errors_total",
			Help:      "Total errors by type",
		}, []string{"component", "type"}),
	}

	registry.RegisterGauge(componentName, "connections_active", metrics.connectionsActive)
	registry.RegisterCounter(componentName, "connections_total", metrics.connectionsTotal)
	registry.RegisterCounter(componentName, "origins_rejected", metrics.originsRejected)
	registry.RegisterCounterVec(componentName, "messages_received", metrics.messagesReceived)
	registry.RegisterCounterVec(componentName, "events_sent", metrics.eventsSent)
	registry.RegisterCounterVec(componentName, "errors_total", metrics.errorsTotal)

	return metrics
}
