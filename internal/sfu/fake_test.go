package sfu

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/squadlink/voice-backend/internal/policy"
	"github.com/squadlink/voice-backend/internal/shared"
)

// In-memory media plane for tests. Producers hand out settable audio
// levels and consumers count pause/resume transitions so idempotence is
// observable.

var fakeIDs atomic.Int64

func nextFakeID(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, fakeIDs.Add(1))
}

type fakeEngine struct {
	mu      sync.Mutex
	routers []*fakeRouter
	closed  bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{}
}

func (e *fakeEngine) NewRouter(roomID string) (Router, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	router := &fakeRouter{roomID: roomID}
	e.routers = append(e.routers, router)
	return router, nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

type fakeRouter struct {
	roomID string
	closed atomic.Bool
}

func (r *fakeRouter) Capabilities() Capabilities {
	return Capabilities{Codecs: []string{webrtc.MimeTypeOpus}}
}

func (r *fakeRouter) CanConsume(caps Capabilities) bool {
	return caps.Supports(webrtc.MimeTypeOpus)
}

func (r *fakeRouter) NewTransport(dir Direction) (Transport, error) {
	return &fakeTransport{id: nextFakeID("trans_"), dir: dir}, nil
}

func (r *fakeRouter) Close() error {
	r.closed.Store(true)
	return nil
}

type fakeTransport struct {
	id  string
	dir Direction

	mu        sync.Mutex
	closed    bool
	closedFns []func()
}

func (t *fakeTransport) ID() string           { return t.id }
func (t *fakeTransport) Direction() Direction { return t.dir }

func (t *fakeTransport) Connect(_ context.Context, _ webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}, nil
}

func (t *fakeTransport) Answer(_ context.Context, _ webrtc.SessionDescription) error {
	return nil
}

func (t *fakeTransport) Producer(_ context.Context) (Producer, error) {
	if t.dir != DirectionSend {
		return nil, errWrongDirection
	}
	return &fakeProducer{id: nextFakeID("prod_"), level: levelSilence}, nil
}

func (t *fakeTransport) Consume(_ context.Context, p Producer) (Consumer, error) {
	if t.dir != DirectionRecv {
		return nil, errWrongDirection
	}
	c := &fakeConsumer{id: nextFakeID("cons_"), producerID: p.ID()}
	c.paused.Store(true)
	return c, nil
}

func (t *fakeTransport) OnNegotiationNeeded(_ func(offer webrtc.SessionDescription)) {}

func (t *fakeTransport) OnClosed(fn func()) {
	t.mu.Lock()
	t.closedFns = append(t.closedFns, fn)
	t.mu.Unlock()
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	fns := t.closedFns
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type fakeProducer struct {
	id     string
	closed atomic.Bool

	mu    sync.Mutex
	level float64
}

func (p *fakeProducer) ID() string { return p.id }

func (p *fakeProducer) AudioLevel() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *fakeProducer) setLevel(level float64) {
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
}

func (p *fakeProducer) Close() error {
	p.closed.Store(true)
	return nil
}

type fakeConsumer struct {
	id         string
	producerID string
	paused     atomic.Bool
	closed     atomic.Bool

	transitions atomic.Int64
}

func (c *fakeConsumer) ID() string         { return c.id }
func (c *fakeConsumer) ProducerID() string { return c.producerID }

func (c *fakeConsumer) Pause() {
	if c.paused.CompareAndSwap(false, true) {
		c.transitions.Add(1)
	}
}

func (c *fakeConsumer) Resume() {
	if c.paused.CompareAndSwap(true, false) {
		c.transitions.Add(1)
	}
}

func (c *fakeConsumer) Paused() bool { return c.paused.Load() }

func (c *fakeConsumer) Close() error {
	c.closed.Store(true)
	return nil
}

// fakeSnapshots serves canned room snapshots to the reconciler.
type fakeSnapshots struct {
	mu    sync.Mutex
	rooms map[string]policy.RoomSnapshot
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{rooms: make(map[string]policy.RoomSnapshot)}
}

func (f *fakeSnapshots) set(snap policy.RoomSnapshot) {
	f.mu.Lock()
	f.rooms[snap.ID] = snap
	f.mu.Unlock()
}

func (f *fakeSnapshots) Snapshot(_ context.Context, roomID string) (policy.RoomSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.rooms[roomID]
	if !ok {
		return policy.RoomSnapshot{}, shared.ErrNotFound
	}
	return snap, nil
}

type routingUpdate struct {
	userID   string
	speakers []string
}

type fakeRoutingNotifier struct {
	mu      sync.Mutex
	updates []routingUpdate
	fail    bool
}

func (f *fakeRoutingNotifier) SendRoutingUpdate(_ context.Context, userID string, allowed []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("push failed")
	}
	f.updates = append(f.updates, routingUpdate{userID: userID, speakers: allowed})
	return nil
}

func (f *fakeRoutingNotifier) take() []routingUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.updates
	f.updates = nil
	return out
}

type speakingEvent struct {
	roomID   string
	userID   string
	speaking bool
}

type fakeSpeakingNotifier struct {
	mu     sync.Mutex
	events []speakingEvent
}

func (f *fakeSpeakingNotifier) BroadcastSpeaking(roomID, userID string, speaking bool) {
	f.mu.Lock()
	f.events = append(f.events, speakingEvent{roomID: roomID, userID: userID, speaking: speaking})
	f.mu.Unlock()
}

func (f *fakeSpeakingNotifier) take() []speakingEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.events
	f.events = nil
	return out
}
