package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eduardohotta/cortex/internal/metrics"
)

const (
	eventBufferSize = 64
	writeWait       = 5 * time.Second
)

// EventHub mirrors every emitted JSON line to websocket subscribers. A
// subscriber that cannot keep up is disconnected; the emitter never waits.
type EventHub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	clients map[*subscriber]struct{}
	closed  bool
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.send) })
}

// NewEventHub creates an empty hub. m may be nil.
func NewEventHub(logger *slog.Logger, m *metrics.Metrics) *EventHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger.With("component", "server.events"),
		metrics: m,
		clients: make(map[*subscriber]struct{}),
	}
}

// Publish queues line for every subscriber
func (h *EventHub) Publish(line []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.clients {
		select {
		case s.send <- line:
		default:
			h.logger.Warn("event subscriber too slow, disconnecting",
				slog.String("remote_addr", s.conn.RemoteAddr().String()),
			)
			h.removeLocked(s)
		}
	}
}

// ServeHTTP upgrades the request and streams events until the peer leaves
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, eventBufferSize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[s] = struct{}{}
	h.metrics.SetWebSocketClients(len(h.clients))
	h.mu.Unlock()

	h.logger.Debug("event subscriber connected", slog.String("remote_addr", conn.RemoteAddr().String()))

	go h.writeLoop(s)
	h.readLoop(s)
}

// readLoop discards inbound messages and notices the peer going away
func (h *EventHub) readLoop(s *subscriber) {
	defer h.remove(s)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) writeLoop(s *subscriber) {
	defer s.conn.Close()
	for line := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, line); err != nil {
			h.remove(s)
			return
		}
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *EventHub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *EventHub) removeLocked(s *subscriber) {
	if _, ok := h.clients[s]; !ok {
		return
	}
	delete(h.clients, s)
	s.stop()
	h.metrics.SetWebSocketClients(len(h.clients))
}

// Clients returns the number of connected subscribers
func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber and rejects new ones
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.clients {
		h.removeLocked(s)
	}
}
