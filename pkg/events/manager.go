package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/webforge-labs/webforge/pkg/logbus"
)

// DefaultWriteTimeout bounds a single WebSocket send.
const DefaultWriteTimeout = 5 * time.Second

// ConnectionManager manages WebSocket connections and their app log feeds.
// Each process has one ConnectionManager instance.
type ConnectionManager struct {
	bus *logbus.Bus

	// Active connections: connection_id → *Connection
	connections map[string]*Connection
	mu          sync.RWMutex

	// Write timeout for WebSocket sends
	writeTimeout time.Duration
}

// Connection represents a single WebSocket client.
//
// rooms is accessed WITHOUT a lock. This is safe because all reads and
// writes (join, leave, unregisterConnection) happen on the single goroutine
// that owns this connection (HandleConnection's read loop and its deferred
// cleanup). Forwarder goroutines hold their own *logbus.Subscription and
// never touch the map.
type Connection struct {
	ID     string
	Conn   *websocket.Conn
	rooms  map[int64]*logbus.Subscription // appID → live log feed
	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnectionManager creates a manager that bridges the given log bus to
// WebSocket clients.
func NewConnectionManager(bus *logbus.Bus, writeTimeout time.Duration) *ConnectionManager {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &ConnectionManager{
		bus:          bus,
		connections:  make(map[string]*Connection),
		writeTimeout: writeTimeout,
	}
}

// HandleConnection manages the lifecycle of a single WebSocket connection.
// Called by the WebSocket HTTP handler after upgrade. Blocks until the
// connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)

	c := &Connection{
		ID:     connID,
		Conn:   conn,
		rooms:  make(map[int64]*logbus.Subscription),
		ctx:    ctx,
		cancel: cancel,
	}

	m.registerConnection(c)
	defer m.unregisterConnection(c)

	m.sendJSON(c, map[string]string{
		"type":         FrameConnectionEstablished,
		"connectionId": connID,
	})

	// Read loop — process client messages until connection closes
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// Connection closed or error — exit read loop
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message",
				"connection_id", connID, "error", err)
			continue
		}

		m.handleClientMessage(c, &msg)
	}
}

// ActiveConnections returns the count of active WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Shutdown closes every active connection. The HTTP server's own shutdown
// waits for the handler goroutines to finish their cleanup.
func (m *ConnectionManager) Shutdown() {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		_ = c.Conn.Close(websocket.StatusGoingAway, "server shutting down")
		c.cancel()
	}
}

// handleClientMessage dispatches a client message to the appropriate handler.
func (m *ConnectionManager) handleClientMessage(c *Connection, msg *ClientMessage) {
	switch msg.Action {
	case ActionJoinApp:
		if msg.AppID <= 0 {
			m.sendJSON(c, map[string]string{"type": FrameError, "message": "appId is required to join"})
			return
		}
		m.join(c, msg.AppID)

	case ActionLeaveApp:
		if msg.AppID <= 0 {
			m.sendJSON(c, map[string]string{"type": FrameError, "message": "appId is required to leave"})
			return
		}
		m.leave(c, msg.AppID)

	case ActionPing:
		m.sendJSON(c, map[string]string{"type": FramePong})
	}
}

// join subscribes the connection to an app's log feed. The bus preloads its
// replay ring into the subscription channel, so the forwarder delivers
// buffered history first, then live events, in publish order. The ack is
// written before the forwarder starts so it always precedes the replay.
// Joining an already-joined app just re-acks.
func (m *ConnectionManager) join(c *Connection, appID int64) {
	if _, exists := c.rooms[appID]; exists {
		m.sendJSON(c, map[string]any{"type": FrameAppJoined, "appId": appID})
		return
	}

	sub := m.bus.Subscribe(appID, 0)
	c.rooms[appID] = sub

	m.sendJSON(c, map[string]any{"type": FrameAppJoined, "appId": appID})
	go m.forward(c, appID, sub)
}

// leave drops the connection's subscription to an app's log feed. Leaving
// an app that was never joined is a no-op.
func (m *ConnectionManager) leave(c *Connection, appID int64) {
	sub, exists := c.rooms[appID]
	if !exists {
		return
	}
	sub.Cancel()
	delete(c.rooms, appID)
	m.sendJSON(c, map[string]any{"type": FrameAppLeft, "appId": appID})
}

// forward copies one subscription's events onto the socket until the
// subscription is cancelled or a write fails. A failed write marks the whole
// connection dead: cancelling the context unblocks the read loop, whose
// deferred cleanup tears down every subscription.
func (m *ConnectionManager) forward(c *Connection, appID int64, sub *logbus.Subscription) {
	for evt := range sub.Events() {
		data, err := json.Marshal(LogFrame{Type: FrameTerminalLog, LogEvent: evt})
		if err != nil {
			slog.Warn("Failed to marshal log frame",
				"connection_id", c.ID, "app_id", appID, "error", err)
			continue
		}
		if err := m.sendRaw(c, data); err != nil {
			slog.Warn("Failed to send log event, dropping connection",
				"connection_id", c.ID, "app_id", appID, "error", err)
			c.cancel()
			return
		}
	}
}

// registerConnection adds a connection to the tracking map.
func (m *ConnectionManager) registerConnection(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

// unregisterConnection removes a connection and cancels all its log feeds.
func (m *ConnectionManager) unregisterConnection(c *Connection) {
	for appID, sub := range c.rooms {
		sub.Cancel()
		delete(c.rooms, appID)
	}

	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()

	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

// sendJSON marshals and sends a JSON message to a single connection.
func (m *ConnectionManager) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket message",
			"connection_id", c.ID, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		slog.Warn("Failed to send WebSocket message",
			"connection_id", c.ID, "error", err)
	}
}

// sendRaw sends raw bytes to a single connection with a write timeout.
func (m *ConnectionManager) sendRaw(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}
