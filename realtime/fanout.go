// Package realtime is the best-effort live-update layer. Rooms are plain
// string names; there is no delivery guarantee or replay — clients reconcile
// by re-querying on reconnect.
package realtime

import (
	"context"
	"sync"
	"time"
)

const GlobalRoom = "keys:global"

func UserRoom(userID string) string { return "user:" + userID }
func RoleRoom(role string) string   { return "role:" + role }

type Event struct {
	Type      string         `json:"type"`
	KeyNumber string         `json:"keyNumber,omitempty"`
	At        time.Time      `json:"at"`
	Data      map[string]any `json:"data,omitempty"`
}

// Fanout is injected into the lifecycle engine and the notifier; production
// uses the Redis implementation, tests use the Hub directly.
type Fanout interface {
	Publish(ctx context.Context, room string, ev Event) error
}

// Hub routes events to in-process subscribers (the SSE handlers). It also
// implements Fanout so single-process deployments and tests can skip Redis.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	ch    chan Event
	rooms map[string]struct{}
}

func NewHub() *Hub { return &Hub{clients: make(map[string]*client)} }

// Subscribe registers clientID on the given rooms and returns its event
// channel. Slow consumers drop events rather than block the hub.
func (h *Hub) Subscribe(clientID string, rooms ...string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &client{ch: make(chan Event, 32), rooms: make(map[string]struct{}, len(rooms))}
	for _, room := range rooms {
		c.rooms[room] = struct{}{}
	}
	h.clients[clientID] = c
	return c.ch
}

func (h *Hub) JoinRoom(clientID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		c.rooms[room] = struct{}{}
	}
}

func (h *Hub) LeaveRoom(clientID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		delete(c.rooms, room)
	}
}

func (h *Hub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		close(c.ch)
		delete(h.clients, clientID)
	}
}

// Deliver pushes ev to every subscriber of room.
func (h *Hub) Deliver(room string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		if _, ok := c.rooms[room]; !ok {
			continue
		}
		select {
		case c.ch <- ev:
		default: // drop for slow consumer
		}
	}
}

func (h *Hub) Publish(_ context.Context, room string, ev Event) error {
	h.Deliver(room, ev)
	return nil
}
