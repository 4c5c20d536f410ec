package sfu

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/squadlink/voice-backend/internal/shared"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(newFakeEngine(), testLogger())
}

// produceFor wires a send transport and producer for one user.
func produceFor(t *testing.T, r *Registry, roomID, userID string) Producer {
	t.Helper()
	transport, err := r.CreateTransport(roomID, userID, DirectionSend)
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}
	producer, err := r.Produce(context.Background(), roomID, transport.ID(), userID)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	return producer
}

// consumeFor subscribes listener to speaker over a fresh recv transport.
func consumeFor(t *testing.T, r *Registry, roomID, listenerID, speakerID string) ConsumeResult {
	t.Helper()
	transport, err := r.CreateTransport(roomID, listenerID, DirectionRecv)
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}
	result, err := r.Consume(context.Background(), roomID, transport.ID(), speakerID, listenerID, Capabilities{Codecs: []string{webrtc.MimeTypeOpus}})
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	return result
}

func TestProduceReplacesPreviousProducer(t *testing.T) {
	r := newTestRegistry(t)

	transport, err := r.CreateTransport("room1", "u1", DirectionSend)
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}

	first, err := r.Produce(context.Background(), "room1", transport.ID(), "u1")
	if err != nil {
		t.Fatalf("first Produce: %v", err)
	}
	second, err := r.Produce(context.Background(), "room1", transport.ID(), "u1")
	if err != nil {
		t.Fatalf("second Produce: %v", err)
	}

	if first.ID() == second.ID() {
		t.Fatal("expected a fresh producer on re-produce")
	}
	if !first.(*fakeProducer).closed.Load() {
		t.Error("replaced producer should be closed")
	}

	producers := r.Producers("room1")
	if got := producers["u1"]; got == nil || got.ID() != second.ID() {
		t.Errorf("registry should hold the replacement producer, got %v", got)
	}
}

func TestProduceReplacementClosesStaleConsumers(t *testing.T) {
	r := newTestRegistry(t)
	produceFor(t, r, "room1", "speaker")
	result := consumeFor(t, r, "room1", "listener", "speaker")

	stale, ok := r.ConsumerFor("room1", "listener", result.ProducerID)
	if !ok {
		t.Fatal("consumer not registered")
	}

	produceFor(t, r, "room1", "speaker")

	if !stale.(*fakeConsumer).closed.Load() {
		t.Error("consumer of the replaced producer should be closed")
	}
	if _, ok := r.ConsumerFor("room1", "listener", result.ProducerID); ok {
		t.Error("stale consumer should be dropped from the registry")
	}
}

func TestConsumeUnknownProducer(t *testing.T) {
	r := newTestRegistry(t)
	transport, err := r.CreateTransport("room1", "listener", DirectionRecv)
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}

	_, err = r.Consume(context.Background(), "room1", transport.ID(), "ghost", "listener", Capabilities{Codecs: []string{webrtc.MimeTypeOpus}})
	if !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestConsumeIncompatibleCapabilities(t *testing.T) {
	r := newTestRegistry(t)
	produceFor(t, r, "room1", "speaker")
	transport, err := r.CreateTransport("room1", "listener", DirectionRecv)
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}

	_, err = r.Consume(context.Background(), "room1", transport.ID(), "speaker", "listener", Capabilities{Codecs: []string{"audio/PCMU"}})
	if !errors.Is(err, shared.ErrIncompatibleCapability) {
		t.Errorf("expected ErrIncompatibleCapability, got %v", err)
	}
}

func TestConsumeStartsPaused(t *testing.T) {
	r := newTestRegistry(t)
	produceFor(t, r, "room1", "speaker")
	result := consumeFor(t, r, "room1", "listener", "speaker")

	consumer, ok := r.ConsumerFor("room1", "listener", result.ProducerID)
	if !ok {
		t.Fatal("consumer not registered")
	}
	if !consumer.Paused() {
		t.Error("new consumers must start paused")
	}
}

func TestResumeAndPauseMissingConsumerIsNoop(t *testing.T) {
	r := newTestRegistry(t)
	r.ResumeConsumer("room1", "listener", "prod_missing")
	r.PauseConsumer("room1", "listener", "prod_missing")
}

func TestRemoveUserSweepsAllState(t *testing.T) {
	r := newTestRegistry(t)

	p1 := produceFor(t, r, "room1", "u1")
	produceFor(t, r, "room1", "u2")

	// u1 listens to u2, u2 listens to u1.
	r1 := consumeFor(t, r, "room1", "u1", "u2")
	r2 := consumeFor(t, r, "room1", "u2", "u1")

	own, _ := r.ConsumerFor("room1", "u1", r1.ProducerID)
	orphaned, _ := r.ConsumerFor("room1", "u2", r2.ProducerID)

	r.RemoveUser("room1", "u1")

	if !p1.(*fakeProducer).closed.Load() {
		t.Error("departing user's producer should be closed")
	}
	if !own.(*fakeConsumer).closed.Load() {
		t.Error("departing user's consumers should be closed")
	}
	if !orphaned.(*fakeConsumer).closed.Load() {
		t.Error("other users' subscriptions to the departed stream should be closed")
	}
	if _, ok := r.ProducerFor("room1", "u1"); ok {
		t.Error("producer lookup should miss after removal")
	}
	if _, ok := r.ConsumerFor("room1", "u2", r2.ProducerID); ok {
		t.Error("orphaned consumer should be dropped from the registry")
	}
	if _, ok := r.ProducerFor("room1", "u2"); !ok {
		t.Error("remaining user's producer must survive")
	}
}

func TestRemoveUserUnknownRoomIsNoop(t *testing.T) {
	r := newTestRegistry(t)
	r.RemoveUser("ghost-room", "u1")
}

func TestDestroyRoom(t *testing.T) {
	r := newTestRegistry(t)

	p := produceFor(t, r, "room1", "u1")
	produceFor(t, r, "room1", "u2")
	result := consumeFor(t, r, "room1", "u2", "u1")
	c, _ := r.ConsumerFor("room1", "u2", result.ProducerID)

	r.DestroyRoom("room1")

	if !p.(*fakeProducer).closed.Load() {
		t.Error("producers should be closed on room destroy")
	}
	if !c.(*fakeConsumer).closed.Load() {
		t.Error("consumers should be closed on room destroy")
	}
	if got := r.Producers("room1"); got != nil {
		t.Errorf("destroyed room should have no producers, got %v", got)
	}

	// Destroying again is safe.
	r.DestroyRoom("room1")
}

func TestTransportCloseCascadesToRegistry(t *testing.T) {
	r := newTestRegistry(t)
	transport, err := r.CreateTransport("room1", "u1", DirectionSend)
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}

	if err := transport.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err = r.ConnectTransport(context.Background(), "room1", transport.ID(), webrtc.SessionDescription{})
	if !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("dead transport should be gone from the registry, got %v", err)
	}
}

func TestSendTransportCloseRetiresProducer(t *testing.T) {
	r := newTestRegistry(t)

	transport, err := r.CreateTransport("room1", "speaker", DirectionSend)
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}
	producer, err := r.Produce(context.Background(), "room1", transport.ID(), "speaker")
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	result := consumeFor(t, r, "room1", "listener", "speaker")
	consumer, _ := r.ConsumerFor("room1", "listener", result.ProducerID)

	if err := transport.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if !producer.(*fakeProducer).closed.Load() {
		t.Error("producer should die with its transport")
	}
	if _, ok := r.ProducerFor("room1", "speaker"); ok {
		t.Error("producer lookup should miss after transport death")
	}
	if !consumer.(*fakeConsumer).closed.Load() {
		t.Error("subscriptions to the dead stream should be closed")
	}
	if _, ok := r.ConsumerFor("room1", "listener", result.ProducerID); ok {
		t.Error("consumer lookup should miss after transport death")
	}

	_, err = r.Consume(context.Background(), "room1", transport.ID(), "speaker", "listener", Capabilities{Codecs: []string{webrtc.MimeTypeOpus}})
	if !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("consuming a dead stream should report absence, got %v", err)
	}
}

func TestSendTransportCloseKeepsReplacementProducer(t *testing.T) {
	r := newTestRegistry(t)

	first, err := r.CreateTransport("room1", "speaker", DirectionSend)
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}
	if _, err := r.Produce(context.Background(), "room1", first.ID(), "speaker"); err != nil {
		t.Fatalf("Produce: %v", err)
	}

	// The speaker reproduces on a fresh transport, then the old one dies.
	replacement := produceFor(t, r, "room1", "speaker")
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, ok := r.ProducerFor("room1", "speaker")
	if !ok || got.ID() != replacement.ID() {
		t.Errorf("replacement producer must survive the old transport, got %v", got)
	}
}

func TestRecvTransportCloseDropsItsConsumers(t *testing.T) {
	r := newTestRegistry(t)
	produceFor(t, r, "room1", "s1")
	produceFor(t, r, "room1", "s2")

	transport, err := r.CreateTransport("room1", "listener", DirectionRecv)
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}
	result, err := r.Consume(context.Background(), "room1", transport.ID(), "s1", "listener", Capabilities{Codecs: []string{webrtc.MimeTypeOpus}})
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	other := consumeFor(t, r, "room1", "listener", "s2")

	if err := transport.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, ok := r.ConsumerFor("room1", "listener", result.ProducerID); ok {
		t.Error("consumers on the dead transport should be dropped")
	}
	if _, ok := r.ConsumerFor("room1", "listener", other.ProducerID); !ok {
		t.Error("consumers on other transports must survive")
	}
}

func TestRouterCapabilities(t *testing.T) {
	r := newTestRegistry(t)
	caps, err := r.RouterCapabilities("room1")
	if err != nil {
		t.Fatalf("RouterCapabilities: %v", err)
	}
	if !caps.Supports(webrtc.MimeTypeOpus) {
		t.Errorf("router should advertise opus, got %v", caps.Codecs)
	}
}
