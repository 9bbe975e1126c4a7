// Package hub fans lobby events out to server-sent event subscribers.
package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// clientBuffer is how many undelivered events a subscriber may lag behind.
const clientBuffer = 16

// Event represents a real-time event sent to the members of a lobby.
type Event struct {
	Type    string      `json:"type"`
	LobbyID uint        `json:"lobby_id"`
	Payload interface{} `json:"payload"`
	SentAt  time.Time   `json:"sent_at"`
}

// Client is one subscriber connection. The SSE handler reads encoded
// events from it until it is closed.
type Client chan []byte

// NewClient creates a buffered subscriber channel.
func NewClient() Client {
	return make(Client, clientBuffer)
}

// Hub manages the subscribers of every lobby.
type Hub struct {
	lobbies map[uint]map[Client]bool
	mu      sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		lobbies: make(map[uint]map[Client]bool),
	}
}

// Subscribe adds a client to a lobby.
func (h *Hub) Subscribe(lobbyID uint, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.lobbies[lobbyID]; !ok {
		h.lobbies[lobbyID] = make(map[Client]bool)
	}
	h.lobbies[lobbyID][client] = true
}

// Unsubscribe removes a client from a lobby and closes it.
func (h *Hub) Unsubscribe(lobbyID uint, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.lobbies[lobbyID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client)
			if len(clients) == 0 {
				delete(h.lobbies, lobbyID)
			}
		}
	}
}

// Subscribers returns the number of clients listening to a lobby.
func (h *Hub) Subscribers(lobbyID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.lobbies[lobbyID])
}

// Broadcast sends an event to all clients in a lobby.
func (h *Hub) Broadcast(lobbyID uint, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.lobbies[lobbyID]
	if !ok {
		return
	}

	messageBytes, err := json.Marshal(event)
	if err != nil {
		log.Printf("hub: failed to encode %s event for lobby %d: %v", event.Type, lobbyID, err)
		return
	}

	for client := range clients {
		// A slow client misses events rather than stalling the publisher.
		select {
		case client <- messageBytes:
		default:
			log.Printf("hub: dropped %s event for a slow subscriber of lobby %d", event.Type, lobbyID)
		}
	}
}

// Publish implements service.Publisher.
func (h *Hub) Publish(lobbyID uint, eventType string, payload any) {
	h.Broadcast(lobbyID, Event{
		Type:    eventType,
		LobbyID: lobbyID,
		Payload: payload,
		SentAt:  time.Now().UTC(),
	})
}

// Close disconnects every subscriber, ending their streams.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for lobbyID, clients := range h.lobbies {
		for client := range clients {
			close(client)
		}
		delete(h.lobbies, lobbyID)
	}
}
