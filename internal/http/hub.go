package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"voice-session-client/internal/observability/logging"
	"voice-session-client/internal/render"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	// viewers are local tools
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub pushes a snapshot of the conversation document to every connected
// websocket viewer whenever the document changes.
type Hub struct {
	doc        *render.Document
	logger     zerolog.Logger
	changed    chan struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	closeOnce  sync.Once

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

// NewHub creates a hub and subscribes it to doc. Call Run to start it and
// Close to stop it.
func NewHub(doc *render.Document) *Hub {
	h := &Hub{
		doc:        doc,
		logger:     logging.WithComponent("conversation-hub"),
		changed:    make(chan struct{}, 1),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		clients:    make(map[*websocket.Conn]bool),
	}
	doc.OnScroll(h.notify)
	return h
}

func (h *Hub) notify() {
	select {
	case h.changed <- struct{}{}:
	default:
	}
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops Run and disconnects every viewer.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Run serves registrations and broadcasts until Close.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
			h.send(conn, h.doc.Snapshot())
			h.logger.Info().Int("clients", h.Clients()).Msg("viewer connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
			h.logger.Info().Int("clients", h.Clients()).Msg("viewer disconnected")

		case <-h.changed:
			snap := h.doc.Snapshot()
			h.mu.RLock()
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				conns = append(conns, conn)
			}
			h.mu.RUnlock()
			for _, conn := range conns {
				h.send(conn, snap)
			}
		}
	}
}

func (h *Hub) send(conn *websocket.Conn, snap render.Snapshot) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(snap); err != nil {
		h.logger.Debug().Err(err).Msg("viewer write failed")
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}
}

// ServeHTTP upgrades the request and registers the viewer. Messages from
// the viewer are read and discarded until it goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
