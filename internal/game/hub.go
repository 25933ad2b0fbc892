package game

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/contrib/websocket"
)

// Publisher is the realtime fan-out capability the engine depends on.
// Delivery is best effort: the engine never blocks on it and never treats a
// publish failure as a settlement failure.
type Publisher interface {
	Publish(topic string, event interface{})
}

// NopPublisher discards events, for tests.
type NopPublisher struct{}

func (NopPublisher) Publish(topic string, event interface{}) {}

// Event is the wire shape of every broadcast message.
type Event struct {
	Topic string      `json:"topic"`
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
}

type Client struct {
	conn   *websocket.Conn
	userID string
	mu     sync.Mutex
}

// Hub fans broadcast events out to connected websocket clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *log.Logger
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 100),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.WithPrefix("hub"),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client connected", "user", client.userID, "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.conn.Close()
				h.logger.Debug("client disconnected", "user", client.userID, "total", len(h.clients))
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("marshal broadcast", "err", err)
				continue
			}
			h.mu.RLock()
			for client := range h.clients {
				go client.send(data) // non-blocking fan-out
			}
			h.mu.RUnlock()
		}
	}
}

// Publish implements Publisher. A full broadcast queue drops the event
// rather than stalling the caller.
func (h *Hub) Publish(topic string, event interface{}) {
	if e, ok := event.(Event); ok {
		h.enqueue(e)
		return
	}
	h.enqueue(Event{Topic: topic, Data: event})
}

func (h *Hub) enqueue(e Event) {
	select {
	case h.broadcast <- e:
	default:
		h.logger.Warn("broadcast queue full, dropping event", "topic", e.Topic)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	c.conn.WriteMessage(websocket.TextMessage, data)
}

func (h *Hub) RegisterClient(conn *websocket.Conn, userID string) {
	h.register <- &Client{conn: conn, userID: userID}
}

func (h *Hub) UnregisterClient(conn *websocket.Conn) {
	h.mu.RLock()
	for client := range h.clients {
		if client.conn == conn {
			h.mu.RUnlock()
			h.unregister <- client
			return
		}
	}
	h.mu.RUnlock()
}
