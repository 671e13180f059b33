package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/brightclass/api/internal/model"
)

// Client represents a WebSocket subscriber watching one thread.
type Client struct {
	GroupKey string
	Conn     *websocket.Conn
	Send     chan []byte
}

// Hub maintains active WebSocket connections grouped by thread. It is
// a push companion to the polling read path: subscribers get status
// events as they happen, but the poll endpoint remains the source of
// truth.
type Hub struct {
	// Clients grouped by thread/tool group key
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	GroupKey string
	Message  []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.GroupKey] == nil {
				h.clients[client.GroupKey] = make(map[*Client]bool)
			}
			h.clients[client.GroupKey][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.GroupKey]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.GroupKey)
					}
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.clients[msg.GroupKey]; ok {
				for client := range clients {
					select {
					case client.Send <- msg.Message:
					default:
						close(client.Send)
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastStatus notifies thread subscribers of a job status change.
func (h *Hub) BroadcastStatus(job *model.Job) {
	msg := model.WSStatusMessage{
		Type:        model.WSMessageTypeStatus,
		JobID:       job.ID,
		GroupKey:    job.GroupKey,
		Status:      job.Status,
		UpdatedAt:   job.UpdatedAt,
		HasResult:   job.Result != nil,
		ErrorOutput: job.ErrorMessage,
		CompletedAt: job.CompletedAt,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal status message: %v", err)
		return
	}

	h.broadcast <- &BroadcastMessage{GroupKey: job.GroupKey, Message: data}
}

// HandleConnection manages a WebSocket connection lifecycle.
func (h *Hub) HandleConnection(conn *websocket.Conn, groupKey string) {
	client := &Client{
		GroupKey: groupKey,
		Conn:     conn,
		Send:     make(chan []byte, 64),
	}
	h.Register(client)
	defer h.Unregister(client)

	go func() {
		for msg := range client.Send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(24 * time.Hour))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
