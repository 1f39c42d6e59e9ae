package metric

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/scanbridge/component"
	"github.com/c360/scanbridge/errors"
)

// HealthReporter lets the metrics server expose the health of other
// components on /healthz without importing them.
type HealthReporter interface {
	Meta() component.Metadata
	Health() component.HealthStatus
}

// Server serves prometheus metrics and aggregate health over HTTP.
type Server struct {
	port      int
	path      string
	registry  *MetricsRegistry
	reporters []HealthReporter

	server    *http.Server
	startTime time.Time
	mu        sync.Mutex // protects server field
}

// NewServer creates a metrics server for the provided registry. Components
// passed as reporters contribute to the /healthz response.
func NewServer(port int, registry *MetricsRegistry, reporters ...HealthReporter) *Server {
	return &Server{
		port:      port,
		path:      "/metrics",
		registry:  registry,
		reporters: reporters,
	}
}

// Meta returns component metadata
func (s *Server) Meta() component.Metadata {
	return component.Metadata{
		Name:        "metrics-server",
		Type:        "service",
		Description: "Prometheus metrics and health endpoints",
		Version:     "1.0.0",
	}
}

// Health returns current health status
func (s *Server) Health() component.HealthStatus {
	s.mu.Lock()
	running := s.server != nil
	started := s.startTime
	s.mu.Unlock()

	uptime := time.Duration(0)
	if running && !started.IsZero() {
		uptime = time.Since(started)
	}

	return component.HealthStatus{
		Healthy:   running,
		LastCheck: time.Now(),
		Uptime:    uptime,
	}
}

// Initialize implements component.LifecycleComponent
func (s *Server) Initialize() error {
	if s.registry == nil {
		return errors.WrapFatal(
			fmt.Errorf("nil registry"),
			"metric_server", "Initialize", "metrics registry not provided")
	}
	return nil
}

// Start starts the metrics HTTP server
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted,
			"metric_server", "Start", "check started state")
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(
		s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	))
	mux.HandleFunc("/healthz", s.handleHealth)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.startTime = time.Now()

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't crash
			slog.Error("Metrics server failed", "error", err, "port", s.port)
		}
	}()

	return nil
}

// Stop shuts the metrics server down gracefully
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := s.server.Shutdown(ctx)
	s.server = nil
	if err != nil {
		return errors.WrapTransient(err, "metric_server", "Stop", "shutdown http server")
	}
	return nil
}

// handleHealth reports aggregate component health as JSON
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	healthy := true
	body := "{"
	for i, r := range s.reporters {
		h := r.Health()
		if !h.Healthy {
			healthy = false
		}
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf("%q:%v", r.Meta().Name, h.Healthy)
	}
	body += "}"

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_, _ = w.Write([]byte(body))
}
