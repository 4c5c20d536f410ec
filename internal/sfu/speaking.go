package sfu

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultSampleInterval = 300 * time.Millisecond
	defaultLevelThreshold = -60.0 // dBov
)

// SpeakingNotifier broadcasts the speaking indicator to a room. A nil
// userID (empty string) with speaking=false means the room went silent.
type SpeakingNotifier interface {
	BroadcastSpeaking(roomID, userID string, speaking bool)
}

// Monitor samples producer audio levels on a fixed interval per room and
// emits speaking-indicator transitions. Each watched room owns one task
// with a cancellation handle tied to room teardown.
type Monitor struct {
	registry  *Registry
	notifier  SpeakingNotifier
	interval  time.Duration
	threshold float64
	logger    *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	current map[string]string // room id -> loudest speaking user, "" when silent
}

func NewMonitor(registry *Registry, notifier SpeakingNotifier, logger *slog.Logger) *Monitor {
	return &Monitor{
		registry:  registry,
		notifier:  notifier,
		interval:  defaultSampleInterval,
		threshold: defaultLevelThreshold,
		logger:    logger.With("component", "speaking_monitor"),
		cancels:   make(map[string]context.CancelFunc),
		current:   make(map[string]string),
	}
}

// Watch starts the sampling task for a room. Idempotent.
func (m *Monitor) Watch(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cancels[roomID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancels[roomID] = cancel
	go m.run(ctx, roomID)
	m.logger.Debug("speaking monitor started", "room_id", roomID)
}

// Stop cancels the room's sampling task. Called on room teardown.
func (m *Monitor) Stop(roomID string) {
	m.mu.Lock()
	cancel, ok := m.cancels[roomID]
	if ok {
		delete(m.cancels, roomID)
		delete(m.current, roomID)
	}
	m.mu.Unlock()
	if ok {
		cancel()
		m.logger.Debug("speaking monitor stopped", "room_id", roomID)
	}
}

func (m *Monitor) run(ctx context.Context, roomID string) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(roomID)
		}
	}
}

func (m *Monitor) sample(roomID string) {
	producers := m.registry.Producers(roomID)

	loudestUser := ""
	loudestLevel := m.threshold
	for userID, p := range producers {
		if level := p.AudioLevel(); level > loudestLevel {
			loudestUser = userID
			loudestLevel = level
		}
	}

	m.mu.Lock()
	prev := m.current[roomID]
	if prev == loudestUser {
		m.mu.Unlock()
		return
	}
	m.current[roomID] = loudestUser
	m.mu.Unlock()

	if loudestUser != "" {
		m.notifier.BroadcastSpeaking(roomID, loudestUser, true)
	} else {
		m.notifier.BroadcastSpeaking(roomID, "", false)
	}
}
