package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hearth-home/hearth/internal/device"
	"github.com/hearth-home/hearth/internal/infrastructure/config"
	"github.com/hearth-home/hearth/internal/infrastructure/logging"
)

// WebSocket message types sent to viewers.
const (
	WSTypeInitialData = "initial_data"
	WSTypeFullRefresh = "full_refresh"
	WSTypeModeChange  = "mode_change"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 64

	// wsWriteWait bounds each connection write, data and pings alike.
	wsWriteWait = 10 * time.Second
)

// wsEnvelope is the wire shape of every hub-to-viewer message.
type wsEnvelope struct {
	Type    string          `json:"type"`
	Mode    string          `json:"mode,omitempty"`
	Devices []device.Device `json:"devices,omitempty"`
}

// DeviceLister is the read surface the hub needs for the connect-time
// snapshot.
type DeviceLister interface {
	List(ctx context.Context, filter device.Filter) ([]device.Device, error)
}

// Hub manages WebSocket viewers and fans broadcasts out to them.
//
// Delivery is at-most-once per viewer: a viewer whose send buffer is
// full, or whose connection write fails, is pruned and must reconnect
// for a fresh snapshot. Per-viewer ordering follows the hub's issue
// order because each viewer drains a single FIFO channel.
type Hub struct {
	cfg     config.WebSocketConfig
	store   DeviceLister
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected viewer.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a WebSocket hub backed by the given device store.
func NewHub(cfg config.WebSocketConfig, store DeviceLister, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects all viewers.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a viewer and sends it the initial_data snapshot of the
// full device list. The snapshot is the viewer's consistency baseline;
// everything after it arrives as refresh hints.
func (h *Hub) Register(ctx context.Context, client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())

	devices, err := h.store.List(ctx, device.Filter{})
	if err != nil {
		h.logger.Error("initial snapshot failed", "error", err)
		h.prune(client)
		return
	}
	data, err := json.Marshal(wsEnvelope{Type: WSTypeInitialData, Devices: devices})
	if err != nil {
		h.logger.Error("failed to marshal initial snapshot", "error", err)
		h.prune(client)
		return
	}
	if !client.trySend(data) {
		h.prune(client)
	}
}

// Unregister removes a viewer from the hub. It is idempotent: only the
// call that actually removes the client from the map closes the send
// channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// FullRefresh tells every viewer that device state changed and a re-fetch
// is needed. Called by the change notifier on a write-timestamp delta.
func (h *Hub) FullRefresh() {
	h.broadcast(wsEnvelope{Type: WSTypeFullRefresh})
}

// ModeChange tells every viewer the active home mode changed.
func (h *Hub) ModeChange(mode string) {
	h.broadcast(wsEnvelope{Type: WSTypeModeChange, Mode: mode})
}

// broadcast serialises msg once and hands the bytes to every viewer's
// send buffer. Viewers that cannot accept the message are pruned.
func (h *Hub) broadcast(msg wsEnvelope) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	// Snapshot the client set under the hub lock, release before sending
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if !client.trySend(data) {
			h.prune(client)
		}
	}
	if len(clients) > 0 {
		h.logger.Debug("broadcast sent", "type", msg.Type, "recipients", len(clients))
	}
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// prune drops a viewer that can no longer keep up.
func (h *Hub) prune(client *WSClient) {
	h.Unregister(client)
	if client.conn != nil {
		client.conn.Close()
	}
}

// closeAll disconnects all viewers and closes their send channels so
// writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades the HTTP connection and registers the viewer.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}

	s.hub.Register(r.Context(), client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// readPump drains the connection so close frames and pongs are
// processed. Viewers are read-only; inbound payloads are discarded.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	}
}

// writePump writes buffered messages to the connection and sends a
// protocol-level ping once the connection has been idle for the
// configured ping interval. Every application write resets the idle
// window, so a busy connection is never pinged.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
			ticker.Reset(pingInterval)
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend attempts to queue data for the viewer. It reports false when
// the buffer is full; a closed channel (client disconnected during
// broadcast) is absorbed and reported as delivered.
func (c *WSClient) trySend(data []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = true
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}
