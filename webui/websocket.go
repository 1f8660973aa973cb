package webui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"sd_backend/imagegen"
)

// ErrHubClosed is returned by Close when the hub was never started.
var ErrHubClosed = errors.New("webui: event hub is closed")

// HubConfig configures the EventHub.
type HubConfig struct {
	PingInterval time.Duration // default 30s
	PongWait     time.Duration // default 60s
	WriteWait    time.Duration // default 10s

	// MaxMessageSize bounds client-to-server frames; clients only send
	// control frames.
	MaxMessageSize int64

	BroadcastBufferSize  int
	ClientSendBufferSize int
}

// DefaultHubConfig returns the default configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval:         30 * time.Second,
		PongWait:             60 * time.Second,
		WriteWait:            10 * time.Second,
		MaxMessageSize:       512,
		BroadcastBufferSize:  256,
		ClientSendBufferSize: 64,
	}
}

// HubStats counts hub activity.
type HubStats struct {
	Clients     int   `json:"clients"`
	Connections int64 `json:"connections"`
	Published   int64 `json:"published"`
	Dropped     int64 `json:"dropped"`
}

// EventHub pushes gallery events to websocket clients.
//
// Thread-Safety:
//   - Publish never blocks; a full buffer drops the event
//   - a client whose send buffer fills up is disconnected
//   - client registration happens on the hub goroutine only
type EventHub struct {
	config   HubConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*hubClient

	broadcast  chan WSMessage
	register   chan *websocket.Conn
	unregister chan *websocket.Conn

	cancel  context.CancelFunc
	done    chan struct{}
	startMu sync.Mutex
	started bool

	connections atomic.Int64
	published   atomic.Int64
	dropped     atomic.Int64
}

type hubClient struct {
	connectedAt time.Time
	remoteAddr  string
	send        chan []byte
}

// NewEventHub creates a hub. Call Start before serving connections.
func NewEventHub(config HubConfig, logger *zap.Logger) *EventHub {
	defaults := DefaultHubConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.PongWait <= 0 {
		config.PongWait = defaults.PongWait
	}
	if config.WriteWait <= 0 {
		config.WriteWait = defaults.WriteWait
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}
	if config.BroadcastBufferSize <= 0 {
		config.BroadcastBufferSize = defaults.BroadcastBufferSize
	}
	if config.ClientSendBufferSize <= 0 {
		config.ClientSendBufferSize = defaults.ClientSendBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EventHub{
		config:     config,
		logger:     logger,
		clients:    make(map[*websocket.Conn]*hubClient),
		broadcast:  make(chan WSMessage, config.BroadcastBufferSize),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are enforced by the CORS middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start runs the hub loop in the background. Calling it twice is a no-op.
func (h *EventHub) Start() {
	h.startMu.Lock()
	defer h.startMu.Unlock()
	if h.started {
		return
	}
	h.started = true

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.run(ctx)
}

// Close disconnects every client and stops the loop, waiting up to ctx.
func (h *EventHub) Close(ctx context.Context) error {
	h.startMu.Lock()
	started := h.started
	h.startMu.Unlock()
	if !started {
		return ErrHubClosed
	}

	h.cancel()
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *EventHub) run(ctx context.Context) {
	defer close(h.done)

	ping := time.NewTicker(h.config.PingInterval)
	defer ping.Stop()

	h.logger.Debug("event hub started")
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			h.logger.Debug("event hub stopped")
			return
		case conn := <-h.register:
			h.addClient(conn)
		case conn := <-h.unregister:
			h.removeClient(conn)
		case msg := <-h.broadcast:
			h.broadcastToAll(msg)
		case <-ping.C:
			h.pingAll()
		}
	}
}

// HandleConnection upgrades an HTTP request to a websocket client.
func (h *EventHub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	// The 101 response is written on the hijacked connection, so headers
	// set by middleware have to be passed explicitly.
	header := http.Header{}
	if id := w.Header().Get(RequestIDHeader); id != "" {
		header.Set(RequestIDHeader, id)
	}
	conn, err := h.upgrader.Upgrade(w, r, header)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		return
	}

	conn.SetReadLimit(h.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	})

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}
	go h.readPump(conn)
}

// Publish queues msg for every client. It reports false when the event
// was dropped because the buffer is full.
func (h *EventHub) Publish(msg WSMessage) bool {
	select {
	case h.broadcast <- msg:
		h.published.Inc()
		return true
	default:
		h.dropped.Inc()
		h.logger.Warn("event buffer full, dropping event", zap.String("type", msg.Type))
		return false
	}
}

// PublishImageDeleted announces a deleted image.
func (h *EventHub) PublishImageDeleted(id string) {
	h.Publish(NewImageDeletedMessage(id))
}

// GenerationObserver publishes image.generated for every image of a
// successful generation.
func (h *EventHub) GenerationObserver() imagegen.Observer {
	return func(ctx context.Context, r imagegen.Report) {
		if r.Err != nil {
			return
		}
		for _, img := range r.Images {
			h.Publish(NewImageGeneratedMessage(r.RequestID, img))
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Stats returns hub counters.
func (h *EventHub) Stats() HubStats {
	return HubStats{
		Clients:     h.ClientCount(),
		Connections: h.connections.Load(),
		Published:   h.published.Load(),
		Dropped:     h.dropped.Load(),
	}
}

func (h *EventHub) addClient(conn *websocket.Conn) {
	client := &hubClient{
		connectedAt: time.Now(),
		remoteAddr:  conn.RemoteAddr().String(),
		send:        make(chan []byte, h.config.ClientSendBufferSize),
	}

	h.clientsMu.Lock()
	h.clients[conn] = client
	total := len(h.clients)
	h.clientsMu.Unlock()

	h.connections.Inc()
	go h.writePump(conn, client.send)

	h.logger.Info("websocket client connected",
		zap.String("remote_addr", client.remoteAddr),
		zap.Int("clients", total))
}

func (h *EventHub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	client, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(client.send)
	}
	total := len(h.clients)
	h.clientsMu.Unlock()

	if ok {
		h.logger.Info("websocket client disconnected",
			zap.String("remote_addr", client.remoteAddr),
			zap.Duration("connected_for", time.Since(client.connectedAt)),
			zap.Int("clients", total))
	}
}

func (h *EventHub) broadcastToAll(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal event", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	var slow []*websocket.Conn
	h.clientsMu.RLock()
	for conn, client := range h.clients {
		select {
		case client.send <- data:
		default:
			slow = append(slow, conn)
		}
	}
	h.clientsMu.RUnlock()

	for _, conn := range slow {
		h.logger.Warn("websocket client too slow, disconnecting",
			zap.String("remote_addr", conn.RemoteAddr().String()))
		h.removeClient(conn)
	}
}

// pingAll writes ping frames directly; gorilla allows WriteControl
// concurrently with the writer goroutine.
func (h *EventHub) pingAll() {
	deadline := time.Now().Add(h.config.WriteWait)

	h.clientsMu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clientsMu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			h.removeClient(conn)
		}
	}
}

func (h *EventHub) closeAllClients() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for conn, client := range h.clients {
		close(client.send)
		delete(h.clients, conn)
	}
}

// readPump discards client frames; it exists to process pongs and notice
// disconnects.
func (h *EventHub) readPump(conn *websocket.Conn) {
	defer func() {
		select {
		case h.unregister <- conn:
		case <-h.done:
		}
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
	}
}

// writePump owns all data writes to conn. It sends a close frame when the
// hub closes the send channel.
func (h *EventHub) writePump(conn *websocket.Conn, send <-chan []byte) {
	defer conn.Close()

	for message := range send {
		conn.SetWriteDeadline(time.Now().Add(h.config.WriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
			return
		}
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(h.config.WriteWait))
}
