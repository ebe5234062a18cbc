// Package handlers provides HTTP and WebSocket handlers for the gateway
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/linkflow-ai/notifyhub/internal/notification/domain/model"
	"github.com/linkflow-ai/notifyhub/internal/platform/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512 * 1024
	sendBufferSize = 256
)

var ErrHubStopped = errors.New("hub stopped")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one connected push channel. Clients with the same UserID are
// the devices of one user.
type Client struct {
	ID     string
	UserID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
}

type outbound struct {
	from   *Client
	userID string
	all    bool
	data   []byte
}

// Hub fans frames out to connected clients. All membership changes and
// deliveries happen on the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     logger.Logger

	mu    sync.RWMutex
	count int
}

// NewHub creates a new WebSocket hub
func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     log,
	}
}

// Run serves the hub until ctx is done, then disconnects every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.setCount()
			h.logger.Debug("Push client connected", "client_id", client.ID, "user_id", client.UserID)

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return
		}
	}
}

func (h *Hub) deliver(msg outbound) {
	for client := range h.clients {
		if client == msg.from || (!msg.all && client.UserID != msg.userID) {
			continue
		}
		select {
		case client.send <- msg.data:
		default:
			h.logger.Warn("Push client too slow, disconnecting", "client_id", client.ID)
			h.remove(client)
		}
	}
}

func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.setCount()
	h.logger.Debug("Push client disconnected", "client_id", client.ID)
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}

// ClientCount reports the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Health fails once the hub has stopped serving
func (h *Hub) Health(context.Context) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
		return nil
	}
}

// Push sends n to every client of userID, or to every client when userID
// is empty
func (h *Hub) Push(n model.Notification, userID string) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return h.enqueue(outbound{userID: userID, all: userID == "", data: data})
}

func (h *Hub) enqueue(msg outbound) error {
	select {
	case h.broadcast <- msg:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// ServeHTTP upgrades the request and attaches a client. The user is taken
// from the userId query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		ID:     uuid.New().String(),
		UserID: r.URL.Query().Get("userId"),
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		hub:    h,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump relays valid frames from this client to the user's other
// clients
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket read failed", "client_id", c.ID, "error", err)
			}
			return
		}

		if _, err := model.DecodeInbound(message); err != nil {
			c.hub.logger.Debug("Dropping malformed frame", "client_id", c.ID, "error", err)
			continue
		}

		if err := c.hub.enqueue(outbound{from: c, userID: c.UserID, data: message}); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
