package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"flow-field/internal/config"
)

const (
	// MaxWSClients caps WebSocket clients across all IPs
	MaxWSClients = 500

	// wsWriteWait bounds a single write to a slow client
	wsWriteWait = 5 * time.Second
)

// Field change events pushed to WebSocket clients
const (
	EventFieldCreated = "field:created"
	EventFieldUpdated = "field:updated"
	EventFieldDeleted = "field:deleted"
)

// wsEvent is the JSON frame sent to clients.
type wsEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// wsClient is one subscriber; ip holds its ConnLimiter slot.
type wsClient struct {
	conn *websocket.Conn
	ip   string
}

// WebSocketHub fans field events out to every connected client. Run owns
// the connection writes; everything else talks to it through channels.
type WebSocketHub struct {
	clients    map[*websocket.Conn]*wsClient
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *websocket.Conn
	stop       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex

	upgrader  websocket.Upgrader
	conns     *ConnLimiter
}

// NewWebSocketHub creates a hub accepting maxPerIP connections per client IP
// from the given origins.
func NewWebSocketHub(maxPerIP int, allowedOrigins []string) *WebSocketHub {
	if maxPerIP <= 0 {
		maxPerIP = config.DefaultRateLimit().MaxWSPerIP
	}
	h := &WebSocketHub{
		clients:    make(map[*websocket.Conn]*wsClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
		stop:       make(chan struct{}),
		conns:      NewConnLimiter(maxPerIP),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin
			if origin == "" || IsAllowedOrigin(origin, allowedOrigins) {
				return true
			}
			log.WithField("origin", origin).Warn("WebSocket connection rejected")
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// Run processes registrations and broadcasts until Stop is called.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.mu.Unlock()

			log.WithFields(log.Fields{"ip": client.ip, "total": count}).Info("WebSocket client connected")
			UpdateWSConnections(count)

		case conn := <-h.unregister:
			h.remove(conn)

		case message := <-h.broadcast:
			h.mu.RLock()
			var failed []*websocket.Conn
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					failed = append(failed, conn)
				}
			}
			h.mu.RUnlock()

			for _, conn := range failed {
				h.remove(conn)
			}
			IncrementWSMessages()

		case <-h.stop:
			h.mu.Lock()
			for conn, client := range h.clients {
				h.conns.Release(client.ip)
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			UpdateWSConnections(0)
			return
		}
	}
}

func (h *WebSocketHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	client, ok := h.clients[conn]
	if ok {
		// Release the connection slot for this IP
		h.conns.Release(client.ip)
		delete(h.clients, conn)
	}
	count := len(h.clients)
	h.mu.Unlock()

	conn.Close()
	if ok {
		log.WithField("remaining", count).Info("WebSocket client disconnected")
		UpdateWSConnections(count)
	}
}

// Stop closes every connection and ends Run.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}

// Broadcast sends an event to all connected clients. Events are dropped
// when the hub is backed up.
func (h *WebSocketHub) Broadcast(event string, data interface{}) {
	payload, err := json.Marshal(wsEvent{Event: event, Data: data})
	if err != nil {
		log.WithError(err).WithField("event", event).Error("WebSocket event encoding failed")
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		log.WithField("event", event).Debug("WebSocket event dropped")
	}
}

// ClientCount returns the number of subscribed clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades r and subscribes it to field events. Clients are
// refused once the global or per-IP cap is reached.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if total := h.ClientCount(); total >= MaxWSClients {
		log.WithField("total", total).Warn("WebSocket connection rejected: total limit reached")
		RecordConnectionRejected("ws_total_limit")
		writeError(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	if !h.conns.Acquire(ip) {
		log.WithField("ip", ip).Warn("WebSocket connection rejected: per-IP limit reached")
		RecordConnectionRejected("ws_ip_limit")
		writeError(w, "too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("WebSocket upgrade failed")
		h.conns.Release(ip)
		return
	}

	select {
	case h.register <- &wsClient{conn: conn, ip: ip}:
	case <-h.stop:
		h.conns.Release(ip)
		conn.Close()
		return
	}

	// Drain client frames so close and ping control messages are handled
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.stop:
			}
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
