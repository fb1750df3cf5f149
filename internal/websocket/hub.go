package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

// ErrHubClosed is returned when a connection arrives after the hub stopped.
var ErrHubClosed = errors.New("websocket hub is closed")

// Message represents a WebSocket message
type Message struct {
	Type      string    `json:"type"`
	Room      string    `json:"room"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID   string
	Room string
	Conn *websocket.Conn
	Send chan *Message
	Hub  *Hub

	closeOnce sync.Once
}

// Hub fans messages out to the clients of a room.
type Hub struct {
	rooms   map[string]map[*Client]bool
	clients map[string]*Client

	Register   chan *Client
	Unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}

	upgrader websocket.Upgrader
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewHub creates a new WebSocket hub. checkOrigin may be nil to accept any origin.
func NewHub(checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logging.Component("websocket"),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToRoom(message)

		case <-ctx.Done():
			h.logger.Info("hub shutting down")
			close(h.done)
			h.shutdown()
			return
		}
	}
}

// Broadcast queues a message for room. It never blocks; when the queue is
// full the message is dropped.
func (h *Hub) Broadcast(room, msgType string, payload any) {
	msg := &Message{Type: msgType, Room: room, Payload: payload, Timestamp: time.Now()}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast queue full, dropping message", "room", room, "type", msgType)
	}
}

// ServeWS upgrades the request and attaches the connection to room until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, room string, initial ...*Message) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:   uuid.NewString(),
		Room: room,
		Conn: conn,
		Send: make(chan *Message, sendBuffer+len(initial)),
		Hub:  h,
	}
	for _, msg := range initial {
		client.Send <- msg
	}

	select {
	case h.Register <- client:
	case <-h.done:
		conn.Close()
		return ErrHubClosed
	}
	go client.WritePump()
	client.ReadPump()
	return nil
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	if h.rooms[client.Room] == nil {
		h.rooms[client.Room] = make(map[*Client]bool)
	}
	h.rooms[client.Room][client] = true

	h.logger.Debug("client joined", "client", client.ID, "room", client.Room, "size", len(h.rooms[client.Room]))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, client.ID)

	clients, ok := h.rooms[client.Room]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	client.close()

	if len(clients) == 0 {
		delete(h.rooms, client.Room)
	}
	h.logger.Debug("client left", "client", client.ID, "room", client.Room, "size", len(clients))
}

// broadcastToRoom sends a message to all clients in a room
func (h *Hub) broadcastToRoom(msg *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[msg.Room] {
		select {
		case client.Send <- msg:
		default:
			h.logger.Warn("client send channel full, dropping message", "client", client.ID)
		}
	}
}

// GetRoomSize returns the number of clients in a room
func (h *Hub) GetRoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		client.close()
		if client.Conn != nil {
			client.Conn.Close()
		}
	}

	h.rooms = make(map[string]map[*Client]bool)
	h.clients = make(map[string]*Client)
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// ReadPump keeps the connection alive and discards anything the client sends.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Debug("read error", "client", c.ID, "error", err)
			}
			return
		}
	}
}

// WritePump pumps messages from hub to WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.Hub.logger.Warn("failed to marshal message", "type", message.Type, "error", err)
				continue
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
