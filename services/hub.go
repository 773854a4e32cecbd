package services

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Message is the wire envelope for everything sent over a race socket.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub tracks each participant's live connection, keyed by room and user.
// Fan-out happens synchronously per event, so the order the room actor
// emits events in is the order every member's send queue sees them.
type Hub struct {
	rooms map[string]map[string]*Client
	mutex sync.RWMutex

	register   chan *Client
	unregister chan *Client

	log zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        logger.With().Str("component", "hub").Logger(),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.mutex.Lock()
	roomClients, ok := h.rooms[client.roomID]
	if !ok {
		roomClients = make(map[string]*Client)
		h.rooms[client.roomID] = roomClients
	}
	old := roomClients[client.userID]
	roomClients[client.userID] = client
	count := len(roomClients)
	h.mutex.Unlock()

	// A reconnect replaces the stale connection for the same user.
	if old != nil {
		old.closeSend()
	}

	h.log.Info().Str("room_id", client.roomID).Str("user_id", client.userID).
		Int("room_clients", count).Msg("client registered")
}

func (h *Hub) handleUnregister(client *Client) {
	h.mutex.Lock()
	current := false
	if roomClients, ok := h.rooms[client.roomID]; ok {
		if roomClients[client.userID] == client {
			delete(roomClients, client.userID)
			current = true
			if len(roomClients) == 0 {
				delete(h.rooms, client.roomID)
			}
		}
	}
	h.mutex.Unlock()

	client.closeSend()

	// Only the connection that still represents the user counts as a
	// disconnect; a replaced connection from a reconnect does not.
	if current {
		h.log.Info().Str("room_id", client.roomID).Str("user_id", client.userID).Msg("client disconnected")
		client.room.Disconnect(client.userID)
	}
}

func (h *Hub) BroadcastToRoom(roomID string, eventType string, payload interface{}) {
	h.BroadcastToRoomExcept(roomID, "", eventType, payload)
}

func (h *Hub) BroadcastToRoomExcept(roomID, exceptUserID string, eventType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: eventType, Payload: payload})
	if err != nil {
		h.log.Error().Err(err).Str("event", eventType).Msg("marshaling broadcast")
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for userID, client := range h.rooms[roomID] {
		if userID == exceptUserID {
			continue
		}
		client.enqueue(data)
	}
}

func (h *Hub) SendToPlayer(roomID, userID string, eventType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: eventType, Payload: payload})
	if err != nil {
		h.log.Error().Err(err).Str("event", eventType).Msg("marshaling message")
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if client, ok := h.rooms[roomID][userID]; ok {
		client.enqueue(data)
	}
}

// IsConnected reports whether a user currently holds a live connection in
// the room.
func (h *Hub) IsConnected(roomID, userID string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	_, ok := h.rooms[roomID][userID]
	return ok
}
