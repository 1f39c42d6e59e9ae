// Package gateway provides the WebSocket server component. It admits
// connections through the origin allow-list, assigns each one a client id,
// decodes inbound commands, and routes them to device discovery or the scan
// job controller. Events flow back only to the connection that caused them.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/scanbridge/component"
	"github.com/c360/scanbridge/discovery"
	"github.com/c360/scanbridge/errors"
	"github.com/c360/scanbridge/metric"
	"github.com/c360/scanbridge/protocol"
	"github.com/c360/scanbridge/scanjob"
)

// Config holds the gateway's network settings.
type Config struct {
	// Port is the TCP port to listen on. Zero picks an ephemeral port,
	// useful in tests.
	Port int

	// Path is the HTTP path serving WebSocket upgrades.
	Path string

	// AllowedOrigins is the origin allow-list. See OriginPolicy.
	AllowedOrigins []string
}

// Gateway is the WebSocket server component.
type Gateway struct {
	name   string
	config Config
	origin *OriginPolicy

	jobs    *scanjob.Controller
	devices *discovery.Discoverer

	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener

	conns   map[string]*connection
	connsMu sync.RWMutex

	// Lifecycle management
	started     atomic.Bool
	startTime   time.Time
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lifecycleMu sync.Mutex

	errorCount atomic.Int64
	logger     *slog.Logger
	metrics    *Metrics
}

var (
	_ component.LifecycleComponent = (*Gateway)(nil)
	_ scanjob.Emitter              = (*connection)(nil)
)

// NewGateway creates the WebSocket server component.
func NewGateway(
	name string,
	config Config,
	jobs *scanjob.Controller,
	devices *discovery.Discoverer,
	metricsRegistry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*Gateway, error) {
	origin, err := NewOriginPolicy(config.AllowedOrigins)
	if err != nil {
		return nil, err
	}
	if config.Path == "" {
		config.Path = "/"
	}
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{
		name:    name,
		config:  config,
		origin:  origin,
		jobs:    jobs,
		devices: devices,
		conns:   make(map[string]*connection),
		logger:  logger.With("component", name),
		metrics: newMetrics(metricsRegistry, name),
	}

	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     g.checkOrigin,
	}

	return g, nil
}

// Meta returns component metadata
func (g *Gateway) Meta() component.Metadata {
	return component.Metadata{
		Name:        g.name,
		Type:        "gateway",
		Description: "WebSocket server bridging scanner hardware to browser clients",
		Version:     "1.0.0",
	}
}

// Health returns current health status
func (g *Gateway) Health() component.HealthStatus {
	started := g.started.Load()

	uptime := time.Duration(0)
	if started && !g.startTime.IsZero() {
		uptime = time.Since(g.startTime)
	}

	return component.HealthStatus{
		Healthy:    started,
		LastCheck:  time.Now(),
		ErrorCount: int(g.errorCount.Load()),
		Uptime:     uptime,
	}
}

// Initialize initializes the component (no-op, everything happens in
// NewGateway and Start)
func (g *Gateway) Initialize() error {
	return nil
}

// Start binds the listener and begins serving WebSocket upgrades.
func (g *Gateway) Start(ctx context.Context) error {
	g.lifecycleMu.Lock()
	defer g.lifecycleMu.Unlock()

	if g.started.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "gateway", "Start", "check started state")
	}

	componentCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", g.config.Port))
	if err != nil {
		cancel()
		return errors.WrapFatal(err, "gateway", "Start", "bind listener")
	}
	g.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(g.config.Path, func(w http.ResponseWriter, r *http.Request) {
		g.handleWebSocket(componentCtx, w, r)
	})
	g.httpServer = &http.Server{Handler: mux}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			g.trackError("server_error")
			g.logger.Error("WebSocket server failed", "error", err)
		}
	}()

	g.startTime = time.Now()
	g.started.Store(true)
	g.logger.Info("Gateway listening", "addr", listener.Addr().String(), "path", g.config.Path)
	return nil
}

// Stop shuts the server down: no new upgrades, then every open connection is
// closed, which drives each read loop through its disconnect cleanup.
func (g *Gateway) Stop(timeout time.Duration) error {
	g.lifecycleMu.Lock()
	defer g.lifecycleMu.Unlock()

	if !g.started.Load() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_ = g.httpServer.Shutdown(ctx)

	g.connsMu.Lock()
	for _, conn := range g.conns {
		conn.close()
	}
	g.connsMu.Unlock()

	g.cancel()

	doneCh := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout),
			"gateway", "Stop", "wait for goroutines")
	}

	g.started.Store(false)
	return nil
}

// Addr returns the bound listen address. Only valid after Start.
func (g *Gateway) Addr() string {
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

// ConnectionCount returns the number of open client connections.
func (g *Gateway) ConnectionCount() int {
	g.connsMu.RLock()
	defer g.connsMu.RUnlock()
	return len(g.conns)
}

// checkOrigin enforces the origin allow-list during the upgrade handshake.
func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if g.origin.Allow(origin) {
		return true
	}

	g.logger.Warn("Rejected connection from disallowed origin", "origin", origin)
	if g.metrics != nil {
		g.metrics.originsRejected.Inc()
	}
	return false
}

// handleWebSocket upgrades an HTTP request and hands the connection to its
// read and write loops.
func (g *Gateway) handleWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	sock, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error, including the 403 for a
		// rejected origin.
		g.trackError("upgrade_error")
		return
	}

	conn := newConnection(uuid.NewString(), sock, g.logger)
	if g.metrics != nil {
		conn.sent = func(eventType string) {
			g.metrics.eventsSent.WithLabelValues(g.name, eventType).Inc()
		}
	}

	g.connsMu.Lock()
	g.conns[conn.id] = conn
	g.connsMu.Unlock()

	if g.metrics != nil {
		g.metrics.connectionsActive.Inc()
		g.metrics.connectionsTotal.Inc()
	}
	g.logger.Info("Client connected", "conn_id", conn.id, "remote", r.RemoteAddr)

	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		conn.writeLoop()
	}()
	go g.readLoop(ctx, conn)

	conn.Emit(protocol.NewConnected(conn.id))
}

// readLoop consumes commands from one connection until it closes, then runs
// the disconnect cleanup: the connection's active job, if any, is terminated
// without emitting events.
func (g *Gateway) readLoop(ctx context.Context, conn *connection) {
	defer g.wg.Done()
	defer func() {
		conn.close()

		g.connsMu.Lock()
		delete(g.conns, conn.id)
		g.connsMu.Unlock()

		g.jobs.HandleDisconnect(conn.id)

		if g.metrics != nil {
			g.metrics.connectionsActive.Dec()
		}
		g.logger.Info("Client disconnected", "conn_id", conn.id)
	}()

	for {
		_, data, err := conn.sock.ReadMessage()
		if err != nil {
			return
		}
		g.dispatch(ctx, conn, data)
	}
}

// dispatch decodes one inbound message and routes it. Protocol errors are
// reported to the offending connection only.
func (g *Gateway) dispatch(ctx context.Context, conn *connection, data []byte) {
	cmd, err := protocol.ParseCommand(data)
	if err != nil {
		g.trackError("parse_error")
		conn.Emit(protocol.NewError("invalid message format"))
		return
	}

	if g.metrics != nil {
		g.metrics.messagesReceived.WithLabelValues(g.name, cmd.Type).Inc()
	}

	switch cmd.Type {
	case protocol.CmdPing:
		conn.Emit(protocol.NewPong())

	case protocol.CmdDiscover:
		conn.Emit(protocol.NewDiscovering())
		// Discovery shells out and can take a while. Run it off the read
		// loop so the client can still cancel or ping meanwhile.
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			conn.Emit(protocol.NewScanners(g.devices.Discover(ctx)))
		}()

	case protocol.CmdScan:
		if err := g.jobs.StartScan(ctx, conn.id, cmd.Settings, conn); err != nil {
			g.trackError("scan_rejected")
			conn.Emit(protocol.NewError(scanErrorMessage(err)))
		}

	case protocol.CmdCancel:
		if err := g.jobs.Cancel(conn.id); err != nil {
			conn.Emit(protocol.NewError("no scan in progress"))
		}

	default:
		g.trackError("unknown_command")
		conn.Emit(protocol.NewError(fmt.Sprintf("unknown command type: %s", cmd.Type)))
	}
}

// scanErrorMessage maps a scan rejection to the client-facing message.
func scanErrorMessage(err error) string {
	if errors.Is(err, errors.ErrJobInProgress) {
		return "scan already in progress"
	}
	return fmt.Sprintf("failed to start scan: %v", err)
}

// trackError increments error counters (both atomic and metrics)
func (g *Gateway) trackError(errorType string) {
	g.errorCount.Add(1)
	if g.metrics != nil {
		g.metrics.errorsTotal.WithLabelValues(g.name, errorType).Inc()
	}
}
