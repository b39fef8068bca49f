package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/gokselkaptan/takas-app-sub005/internal/goroutine"
	"github.com/gokselkaptan/takas-app-sub005/internal/logger"
)

// NotificationSaver persists broadcast events so offline users see them
// later.
type NotificationSaver interface {
	Record(ctx context.Context, userID uuid.UUID, payload interface{}) error
}

// Hub fans swap events out to the connected websocket clients of a user.
type Hub struct {
	mu         sync.RWMutex
	clients    map[uuid.UUID]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	saver      NotificationSaver
	ctx        context.Context
}

type message struct {
	userID  uuid.UUID
	payload []byte
}

func NewHub(ctx context.Context) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 32),
		ctx:        ctx,
	}
}

// SetNotificationSaver installs the persistence hook.
func (h *Hub) SetNotificationSaver(saver NotificationSaver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saver = saver
}

// Run is the hub main loop. Call it once in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.send(msg.userID, msg.payload)
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastToUser sends an event to every connection of the user and
// records it as a notification. The wire format is {"type": ..., "data": ...}.
func (h *Hub) BroadcastToUser(userID uuid.UUID, event string, data interface{}) error {
	payload := map[string]interface{}{
		"type": event,
		"data": data,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ws: marshal message: %w", err)
	}

	h.mu.RLock()
	saver := h.saver
	ctx := h.ctx
	h.mu.RUnlock()

	if saver != nil {
		// Persist asynchronously so a slow database never blocks delivery.
		goroutine.SafeGo(func() {
			if err := saver.Record(ctx, userID, payload); err != nil {
				logger.Log.WithError(err).Warn("ws: store notification failed")
			}
		})
	}

	h.broadcast <- message{userID: userID, payload: raw}
	return nil
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]struct{})
	}
	h.clients[client.userID][client] = struct{}{}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.userID)
		}
	}
}

func (h *Hub) send(userID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
			// Slow consumer: drop the connection instead of the hub.
			goroutine.SafeGo(client.Close)
		}
	}
}
