package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"classpulse/pkg/types"
)

// Connection wraps one live WebSocket tied to a single (learner, session)
// pair. All writes funnel through a single writer goroutine so concurrent
// broadcasts, heartbeats, and inline replies never race on the socket.
type Connection struct {
	id          string
	learnerID   string
	sessionID   string
	connectedAt time.Time

	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once

	mu            sync.RWMutex // protects lastHeartbeat
	lastHeartbeat time.Time
}

// NewConnection creates a connection wrapper and starts its writer goroutine.
// The identifying pair is fixed at creation; a registration never migrates.
func NewConnection(conn *websocket.Conn, learnerID, sessionID string, bufferSize int, writeTimeout time.Duration) *Connection {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	c := &Connection{
		id:            uuid.New().String(),
		learnerID:     learnerID,
		sessionID:     sessionID,
		connectedAt:   now,
		conn:          conn,
		writeCh:       make(chan []byte, bufferSize),
		writeTimeout:  writeTimeout,
		ctx:           ctx,
		cancel:        cancel,
		lastHeartbeat: now,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the single writer goroutine. writeCh is never closed; a
// transport failure tears the connection down instead, so late producers
// observe the cancelled context rather than a closed channel.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON marshals v and queues it for the writer goroutine.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close tears the connection down exactly once. The writer goroutine and
// the heartbeat task observe the cancelled context and exit.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// CloseWithCode sends a close frame with the given status code and reason
// before tearing down. Used for cap refusal, stale sweeps, and admin
// disconnects so clients see why they were dropped.
func (c *Connection) CloseWithCode(code int, reason string) error {
	deadline := time.Now().Add(c.writeTimeout)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	return c.Close()
}

// Touch records a successful heartbeat delivery.
func (c *Connection) Touch() {
	c.mu.Lock()
	c.lastHeartbeat = time.Now()
	c.mu.Unlock()
}

// LastHeartbeat returns the time of the most recent successful heartbeat.
func (c *Connection) LastHeartbeat() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastHeartbeat
}

// Done is closed when the connection is shut down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// ID returns the registration's unique identifier.
func (c *Connection) ID() string { return c.id }

// LearnerID returns the learner this connection belongs to.
func (c *Connection) LearnerID() string { return c.learnerID }

// SessionID returns the session this connection observes.
func (c *Connection) SessionID() string { return c.sessionID }

// ConnectedAt returns when the connection registered.
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// Info summarizes the registration for the admin surface.
func (c *Connection) Info() types.ConnectionInfo {
	return types.ConnectionInfo{
		ID:            c.id,
		LearnerID:     c.learnerID,
		SessionID:     c.sessionID,
		ConnectedAt:   c.connectedAt,
		LastHeartbeat: c.LastHeartbeat(),
	}
}
