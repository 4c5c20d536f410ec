package gateway

import (
	"context"
	"log/slog"
	"sync"

	"github.com/squadlink/voice-backend/internal/shared"
)

// client is one connected user's outbound half.
type client interface {
	UserID() string
	Send(msg *Message)
	Close() error
}

// Hub routes events to room channels and private user channels. A user
// has at most one live connection; a newer one evicts the older.
type Hub struct {
	logger *slog.Logger

	mu    sync.RWMutex
	users map[string]client            // user id -> connection
	rooms map[string]map[string]client // room id -> user id -> connection
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger.With("component", "gateway_hub"),
		users:  make(map[string]client),
		rooms:  make(map[string]map[string]client),
	}
}

// Register attaches a user's connection, evicting any previous one.
func (h *Hub) Register(c client) {
	h.mu.Lock()
	prev := h.users[c.UserID()]
	h.users[c.UserID()] = c
	h.mu.Unlock()

	if prev != nil && prev != c {
		_ = prev.Close()
	}
}

// Unregister detaches the connection if it is still the current one.
func (h *Hub) Unregister(c client) {
	h.mu.Lock()
	if h.users[c.UserID()] == c {
		delete(h.users, c.UserID())
	}
	for _, members := range h.rooms {
		if members[c.UserID()] == c {
			delete(members, c.UserID())
		}
	}
	h.mu.Unlock()
}

// Subscribe puts a connection on a room channel.
func (h *Hub) Subscribe(roomID string, c client) {
	h.mu.Lock()
	members := h.rooms[roomID]
	if members == nil {
		members = make(map[string]client)
		h.rooms[roomID] = members
	}
	members[c.UserID()] = c
	h.mu.Unlock()
}

// Unsubscribe takes a user off a room channel without touching their
// private channel.
func (h *Hub) Unsubscribe(roomID, userID string) {
	h.mu.Lock()
	if members := h.rooms[roomID]; members != nil {
		delete(members, userID)
	}
	h.mu.Unlock()
}

// BroadcastRoom delivers an event to everyone subscribed to the room.
func (h *Hub) BroadcastRoom(roomID string, msg *Message) {
	h.mu.RLock()
	members := make([]client, 0, len(h.rooms[roomID]))
	for _, c := range h.rooms[roomID] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.Send(msg)
	}
}

// SendUser delivers an event to one user's private channel.
func (h *Hub) SendUser(userID string, msg *Message) error {
	h.mu.RLock()
	c := h.users[userID]
	h.mu.RUnlock()
	if c == nil {
		return shared.ErrNotFound
	}
	c.Send(msg)
	return nil
}

// CloseRoom tells the room it is gone and drops its channel.
func (h *Hub) CloseRoom(roomID string) {
	h.BroadcastRoom(roomID, NewEvent(EventRoomDestroyed, RoomEventPayload{RoomID: roomID}))

	h.mu.Lock()
	delete(h.rooms, roomID)
	h.mu.Unlock()
}

// BroadcastSpeaking implements the speaking monitor's notifier.
func (h *Hub) BroadcastSpeaking(roomID, userID string, speaking bool) {
	h.BroadcastRoom(roomID, NewEvent(EventUserSpeaking, SpeakingPayload{UserID: userID, Speaking: speaking}))
}

// Counts reports live connections and active room channels.
func (h *Hub) Counts() (connections, rooms int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users), len(h.rooms)
}

// SendRoutingUpdate implements the client-enforced strategy's notifier.
// Listen lists are private: they go to the listener's channel only.
func (h *Hub) SendRoutingUpdate(_ context.Context, userID string, allowedSpeakerIDs []string) error {
	return h.SendUser(userID, NewEvent(EventAudioRoutingUpdate, RoutingUpdatePayload{AllowedSpeakerIDs: allowedSpeakerIDs}))
}
