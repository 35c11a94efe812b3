// Package realtime maintains the websocket channel to the scoring backend.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// sessionCookieName matches the cookie the HTTP client rides on.
const sessionCookieName = "mp_session"

// Event is one realtime message from the backend. Scoring progress events
// carry a 0..1 fraction for the phase in flight.
type Event struct {
	Type     string   `json:"type"`
	ReportID string   `json:"reportId,omitempty"`
	Progress *float64 `json:"progress,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// AuthState is the read-only view of authentication the connector observes.
// The connector never writes authentication state.
type AuthState interface {
	Authenticated() bool
	Rehydrated() bool
}

// Connector owns the realtime channel. Connect is idempotent; a dropped or
// failed connection schedules at most one pending retry, cancelled by
// Disconnect or by authentication going away.
type Connector struct {
	url     string
	auth    AuthState
	session func() string
	handler func(Event)
	logger  *slog.Logger
	backoff Backoff
	retry   retryState

	mu         sync.Mutex
	conn       *websocket.Conn
	connected  bool
	connecting bool
	closed     bool
}

// New creates a connector for the socket endpoint. session supplies the
// current cookie value at dial time; handler receives every decoded event.
func New(url string, auth AuthState, session func() string, handler func(Event), logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		url:     url,
		auth:    auth,
		session: session,
		handler: handler,
		logger:  logger,
		backoff: DefaultBackoff(),
	}
}

// SetBackoff overrides the retry policy. Must be called before Connect.
func (c *Connector) SetBackoff(b Backoff) {
	c.backoff = b
}

// Connect establishes the channel. It is a no-op when already connected or
// connecting, and refuses to dial before persisted state has rehydrated or
// while unauthenticated: racing a stale auth flag is how ghost connections
// happen.
func (c *Connector) Connect() error {
	if !c.auth.Rehydrated() {
		return errors.New("persisted state has not finished rehydrating")
	}
	if !c.auth.Authenticated() {
		return errors.New("not authenticated")
	}

	c.mu.Lock()
	if c.connected || c.connecting {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.closed = false
	c.mu.Unlock()

	header := http.Header{}
	if s := c.session(); s != "" {
		header.Set("Cookie", fmt.Sprintf("%s=%s", sessionCookieName, s))
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(c.url, header)

	c.mu.Lock()
	c.connecting = false
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("realtime connect failed", "error", err)
		c.scheduleRetry()
		return fmt.Errorf("realtime connect: %w", err)
	}
	if c.closed {
		// Disconnect raced the dial; drop the connection.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.retry.reset()
	c.logger.Info("realtime channel connected")
	go c.readLoop(conn)
	return nil
}

// Disconnect tears down the channel, resets the connection flags, and
// cancels any pending retry.
func (c *Connector) Disconnect() {
	c.retry.cancel()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.connecting = false
	c.closed = true
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
		c.logger.Info("realtime channel disconnected")
	}
}

// Connected reports whether the channel is up.
func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// RetryPending reports whether a reconnect timer is armed.
func (c *Connector) RetryPending() bool {
	return c.retry.isPending()
}

func (c *Connector) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasClosed := c.closed
			if c.conn == conn {
				c.conn = nil
				c.connected = false
			}
			c.mu.Unlock()

			if !wasClosed {
				c.logger.Warn("realtime channel dropped", "error", err)
				c.scheduleRetry()
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.logger.Debug("discarding malformed realtime event", "error", err)
			continue
		}
		if c.handler != nil {
			c.handler(ev)
		}
	}
}

// scheduleRetry arms at most one reconnect timer, and only while the user is
// still authenticated when it fires.
func (c *Connector) scheduleRetry() {
	armed := c.retry.schedule(c.backoff, func() {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed || !c.auth.Authenticated() {
			return
		}
		if err := c.Connect(); err != nil {
			c.logger.Warn("realtime reconnect failed", "error", err)
		}
	})
	if armed {
		c.logger.Info("realtime reconnect scheduled")
	}
}
