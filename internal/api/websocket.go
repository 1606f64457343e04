package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/ptl-core/internal/infrastructure/config"
	"github.com/nerrad567/ptl-core/internal/infrastructure/logging"
	"github.com/nerrad567/ptl-core/internal/ptl/orchestrator"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// ChannelAll subscribes a client to every channel.
	ChannelAll = "*"
)

const (
	// wsSendBufferSize is the per-client outbound queue. A client that falls
	// this far behind loses events rather than slowing the broadcaster.
	wsSendBufferSize = 256

	wsDefaultPingInterval   = 30 * time.Second
	wsDefaultPongTimeout    = 10 * time.Second
	wsDefaultMaxMessageSize = 8192
)

// wsChannels are the channels a client may subscribe to.
var wsChannels = map[string]bool{
	orchestrator.ChannelEvents: true,
	orchestrator.ChannelAlarms: true,
	ChannelAll:                 true,
}

// WSMessage is the envelope of every frame exchanged with a client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe requests.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsRequest is an inbound frame; the payload is decoded per type.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans orchestrator events out to WebSocket clients. It implements
// orchestrator.Broadcaster.
type Hub struct {
	logger  *logging.Logger
	timing  wsTiming
	mu      sync.RWMutex
	clients map[string]*WSClient
	dropped atomic.Uint64
}

// wsTiming is the keepalive and size policy, with defaults applied.
type wsTiming struct {
	ping    time.Duration
	pong    time.Duration
	maxSize int64
}

// WSClient is one connected subscriber.
type WSClient struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	done     chan struct{}
	stopOnce sync.Once

	mu            sync.RWMutex
	subscriptions map[string]bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a hub. Zero config values fall back to a 30s ping, a 10s
// pong timeout and 8 KiB inbound messages.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	t := wsTiming{
		ping:    time.Duration(cfg.PingInterval) * time.Second,
		pong:    time.Duration(cfg.PongTimeout) * time.Second,
		maxSize: int64(cfg.MaxMessageSize),
	}
	if t.ping <= 0 {
		t.ping = wsDefaultPingInterval
	}
	if t.pong <= 0 {
		t.pong = wsDefaultPongTimeout
	}
	if t.maxSize <= 0 {
		t.maxSize = wsDefaultMaxMessageSize
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		logger:  logger,
		timing:  t,
		clients: make(map[string]*WSClient),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*WSClient)
	h.mu.Unlock()

	for _, c := range clients {
		c.stop()
	}
	if len(clients) > 0 {
		h.logger.Info("websocket clients disconnected", "clients", len(clients))
	}
}

func (h *Hub) register(c *WSClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "client", c.id, "clients", n)
}

func (h *Hub) unregister(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()
	c.stop()
	h.logger.Debug("websocket client disconnected", "client", c.id, "clients", n)
}

// Broadcast sends payload as an event to every client subscribed to channel.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		ID:        uuid.NewString(),
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast", "channel", channel, "error", err)
		return
	}

	// Client locks are taken after the hub lock is released.
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if c.subscribed(channel) && !c.enqueue(data) {
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were discarded for slow clients.
func (h *Hub) Dropped() uint64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

// handleWebSocket upgrades the request and attaches the client to the hub.
// Clients receive nothing until they subscribe.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err, "request_id", requestID(r.Context()))
		return
	}

	c := &WSClient{
		id:            uuid.NewString(),
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		done:          make(chan struct{}),
		subscriptions: make(map[string]bool),
	}
	s.hub.register(c)

	go c.writeLoop()
	go c.readLoop()
}

// stop ends both pumps; the write loop sends a close frame and closes the
// connection. Safe to call more than once.
func (c *WSClient) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// enqueue queues data without blocking. It reports false when the client is
// gone or its queue is full.
func (c *WSClient) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) readLoop() {
	defer c.hub.unregister(c)

	t := c.hub.timing
	c.conn.SetReadLimit(t.maxSize)
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(t.ping + t.pong)) }
	_ = extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "client", c.id, "error", err)
			}
			return
		}
		// Browsers may not answer protocol pings; any frame keeps the client alive.
		_ = extend()
		c.handle(data)
	}
}

func (c *WSClient) writeLoop() {
	t := c.hub.timing
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // read loop sees the error and unregisters
	}()

	for {
		select {
		case <-c.done:
			//nolint:errcheck // best-effort close frame
			c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(t.pong))
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(t.pong))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.stop()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(t.pong))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.stop()
				return
			}
		}
	}
}

// handle dispatches one inbound frame.
func (c *WSClient) handle(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch req.Type {
	case WSTypeSubscribe:
		c.updateSubscriptions(req, true)
	case WSTypeUnsubscribe:
		c.updateSubscriptions(req, false)
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	default:
		c.reply(req.ID, WSTypeError, errorPayload("unknown message type: "+req.Type))
	}
}

// updateSubscriptions adds or removes the requested channels. Unknown
// channels reject the whole request.
func (c *WSClient) updateSubscriptions(req wsRequest, add bool) {
	var p WSSubscribePayload
	if err := json.Unmarshal(req.Payload, &p); err != nil || len(p.Channels) == 0 {
		c.reply(req.ID, WSTypeError, errorPayload("payload must list channels"))
		return
	}
	for _, ch := range p.Channels {
		if !wsChannels[ch] {
			c.reply(req.ID, WSTypeError, map[string]any{
				"message":  "unknown channel: " + ch,
				"channels": knownChannels(),
			})
			return
		}
	}

	c.mu.Lock()
	for _, ch := range p.Channels {
		if add {
			c.subscriptions[ch] = true
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	key := "unsubscribed"
	if add {
		key = "subscribed"
	}
	c.hub.logger.Debug("websocket "+key, "client", c.id, "channels", p.Channels)
	c.reply(req.ID, WSTypeResponse, map[string]any{key: p.Channels})
}

func (c *WSClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriptions[ChannelAll] || c.subscriptions[channel]
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}

func knownChannels() []string {
	out := make([]string, 0, len(wsChannels))
	for ch := range wsChannels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}
