// Package notifications fans out reminder lifecycle events to websocket subscribers.
package notifications

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/invoicereminder/internal/monitoring"
	"github.com/charlesng35/invoicereminder/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	defaultBufferSize = 32
)

// Event names published by the reminder engine.
const (
	EventReminderScheduled = "reminder.scheduled"
	EventReminderSent      = "reminder.sent"
	EventReminderFailed    = "reminder.failed"
	EventReminderCancelled = "reminder.cancelled"
	EventInvoicePaid       = "invoice.paid"
)

// Event represents a payload delivered to subscribers.
type Event struct {
	Event      string    `json:"event"`
	InvoiceID  string    `json:"invoice_id,omitempty"`
	ReminderID string    `json:"reminder_id,omitempty"`
	Data       any       `json:"data,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher delivers events for an owner. A nil Publisher is never called.
type Publisher interface {
	Publish(userID string, event Event)
}

// Hub fan-outs events to the websocket connections of each owner.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub constructs a hub instance.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOriginOrLoopback,
		},
		log: logger.WithModule("notifications"),
	}
}

// Serve upgrades the HTTP connection to a WebSocket and registers the owner's subscriber.
func (h *Hub) Serve(userID string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{
		hub:    h,
		socket: conn,
		userID: userID,
		send:   make(chan Event, defaultBufferSize),
	}
	h.addClient(cl)

	go cl.writeLoop()
	cl.readLoop()
}

// Publish delivers an event to all subscribers of the provided owner.
func (h *Hub) Publish(userID string, event Event) {
	if userID == "" {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	monitoring.RecordRealtimeEvent(event.Event)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for cl := range h.clients[userID] {
		select {
		case cl.send <- event:
		default:
			// Slow subscriber; drop rather than stall the dispatcher.
		}
	}
}

// Subscribers returns the number of live connections for an owner.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) addClient(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[cl.userID] == nil {
		h.clients[cl.userID] = make(map[*client]struct{})
	}
	h.clients[cl.userID][cl] = struct{}{}
	monitoring.RecordRealtimeConnection(1)
}

func (h *Hub) removeClient(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[cl.userID]; ok {
		if _, present := clients[cl]; present {
			monitoring.RecordRealtimeConnection(-1)
		}
		delete(clients, cl)
		if len(clients) == 0 {
			delete(h.clients, cl.userID)
		}
	}
}

type client struct {
	hub    *Hub
	socket *websocket.Conn
	userID string
	send   chan Event
	once   sync.Once
}

// readLoop only drains control frames; subscribers never send data.
func (c *client) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.socket.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket closed unexpectedly", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(event); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		c.hub.removeClient(c)
		close(c.send)
		_ = c.socket.Close()
	})
}

func sameOriginOrLoopback(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originHost := hostWithoutPort(origin)
	return originHost == hostWithoutPort(r.Host) || isLoopback(originHost)
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
