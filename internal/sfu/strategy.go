package sfu

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/squadlink/voice-backend/internal/policy"
)

// ServerEnforced applies decisions by pausing and resuming consumers on
// the SFU itself. Pairs without a consumer are skipped; the consumer is
// created paused when the listener subscribes and picked up by the next
// pass.
type ServerEnforced struct {
	registry *Registry
}

func NewServerEnforced(registry *Registry) *ServerEnforced {
	return &ServerEnforced{registry: registry}
}

func (s *ServerEnforced) Apply(_ context.Context, room policy.RoomSnapshot, decisions []PairDecision) error {
	for _, d := range decisions {
		consumer, ok := s.registry.ConsumerFor(room.ID, d.Listener.ID, d.ProducerID)
		if !ok {
			continue
		}
		if d.Allowed {
			consumer.Resume()
		} else {
			consumer.Pause()
		}
	}
	return nil
}

// RoutingNotifier delivers a listener's allowed-speaker set to that
// listener's private channel. It must never broadcast the set room-wide.
type RoutingNotifier interface {
	SendRoutingUpdate(ctx context.Context, userID string, allowedSpeakerIDs []string) error
}

// ClientEnforced pushes each listener's allowed-speaker list over
// signaling and trusts the client media layer to honor it. Used when the
// RTC backbone offers no per-pair forwarding control to the server.
// Unchanged lists are not resent.
type ClientEnforced struct {
	notifier RoutingNotifier
	logger   *slog.Logger

	mu       sync.Mutex
	lastSent map[string]map[string]string // room id -> listener id -> fingerprint
}

func NewClientEnforced(notifier RoutingNotifier, logger *slog.Logger) *ClientEnforced {
	return &ClientEnforced{
		notifier: notifier,
		logger:   logger.With("component", "listen_list"),
		lastSent: make(map[string]map[string]string),
	}
}

func (s *ClientEnforced) Apply(ctx context.Context, room policy.RoomSnapshot, decisions []PairDecision) error {
	allowed := make(map[string][]string, len(room.Users))
	for _, u := range room.Users {
		allowed[u.ID] = nil
	}
	for _, d := range decisions {
		if d.Allowed {
			allowed[d.Listener.ID] = append(allowed[d.Listener.ID], d.Speaker.ID)
		}
	}

	s.mu.Lock()
	sent := s.lastSent[room.ID]
	if sent == nil {
		sent = make(map[string]string)
		s.lastSent[room.ID] = sent
	}
	s.mu.Unlock()

	for _, u := range room.Users {
		ids := allowed[u.ID]
		sort.Strings(ids)
		fingerprint := strings.Join(ids, ",")

		s.mu.Lock()
		prev, seen := sent[u.ID]
		s.mu.Unlock()
		if seen && prev == fingerprint {
			continue
		}

		if ids == nil {
			ids = []string{}
		}
		if err := s.notifier.SendRoutingUpdate(ctx, u.ID, ids); err != nil {
			s.logger.Error("routing update push failed", "room_id", room.ID, "user_id", u.ID, "error", err)
			continue
		}

		s.mu.Lock()
		sent[u.ID] = fingerprint
		s.mu.Unlock()
	}
	return nil
}

// Forget drops delivery state for a torn-down room so a recreated room
// with the same id starts fresh.
func (s *ClientEnforced) Forget(roomID string) {
	s.mu.Lock()
	delete(s.lastSent, roomID)
	s.mu.Unlock()
}
