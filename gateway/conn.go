package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/scanbridge/protocol"
)

const (
	// sendQueueSize bounds the per-connection outbound queue. Progress events
	// are small and infrequent, so a stalled client hits the write deadline
	// long before this fills.
	sendQueueSize = 64

	// writeTimeout is the per-message write deadline. A client that cannot
	// drain within it gets disconnected.
	writeTimeout = 10 * time.Second
)

// connection is one client session. All outbound events funnel through the
// send queue so a single writer goroutine owns the socket writes.
type connection struct {
	id     string
	sock   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger

	// sent is an optional hook invoked with the event type after an event is
	// queued, used for metrics.
	sent func(eventType string)
}

func newConnection(id string, sock *websocket.Conn, logger *slog.Logger) *connection {
	return &connection{
		id:     id,
		sock:   sock,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Emit queues an event for delivery to this connection. It is safe to call
// from any goroutine and becomes a no-op once the connection is closed.
func (c *connection) Emit(ev protocol.Event) {
	data, err := protocol.Encode(ev)
	if err != nil {
		c.logger.Error("Failed to encode event",
			"conn_id", c.id, "event", ev.EventType(), "error", err)
		return
	}

	select {
	case c.send <- data:
		if c.sent != nil {
			c.sent(ev.EventType())
		}
	case <-c.done:
	}
}

// writeLoop is the sole socket writer. It runs until the connection closes.
func (c *connection) writeLoop() {
	for {
		select {
		case data := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// close shuts the socket down exactly once. Closing the socket also unblocks
// the read loop.
func (c *connection) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.sock.Close()
	})
}
