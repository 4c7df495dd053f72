package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"aicca-realtime/internal/pkg/logger"
)

var ErrClientNotConnected = errors.New("client not connected")

// ConnectionInfo describes one live session socket.
type ConnectionInfo struct {
	ClientID     string    `json:"client_id"`
	ConnectedAt  time.Time `json:"connected_at"`
	MessageCount int64     `json:"message_count"`
}

// Hub tracks the live connection of every client id. A client that
// reconnects under the same id replaces its previous socket.
type Hub struct {
	// Registered clients: ClientID -> Client
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}

	mu sync.RWMutex

	logger logger.ILogger
}

func NewHub(log logger.ILogger) *Hub {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		clients:    make(map[string]*Client),
		logger:     log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				client.shutdown()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if previous, ok := h.clients[client.id]; ok {
				previous.shutdown()
				h.logger.Info("Hub", "Client replaced previous connection", map[string]interface{}{"client_id": client.id})
			}
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"client_id": client.id})

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.id]; ok && current == client {
				delete(h.clients, client.id)
				h.logger.Info("Hub", "Client unregistered", map[string]interface{}{"client_id": client.id})
			}
			client.shutdown()
			h.mu.Unlock()
		}
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
		c.shutdown()
	}
}

// Send delivers msg to the live connection of clientID.
func (h *Hub) Send(clientID string, msg interface{}) error {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return ErrClientNotConnected
	}
	return client.Reply(msg)
}

// Broadcast sends msg to every connected client except exclude.
func (h *Hub) Broadcast(msg interface{}, exclude string) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Hub", "Failed to marshal broadcast", map[string]interface{}{"error": err.Error()})
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, client := range h.clients {
		if id == exclude {
			continue
		}
		if err := client.enqueue(data); err != nil {
			h.logger.Warn("Hub", "Dropping broadcast for client", map[string]interface{}{"client_id": id, "error": err.Error()})
		}
	}
}

func (h *Hub) Connections() []ConnectionInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]ConnectionInfo, 0, len(h.clients))
	for _, client := range h.clients {
		infos = append(infos, client.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ClientID < infos[j].ClientID })
	return infos
}
