package sfu

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/squadlink/voice-backend/internal/shared"
)

// Registry owns every live media object, sharded by room so teardown of a
// room is a clean sweep and lock contention stays room-local.
type Registry struct {
	engine Engine
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*roomState
}

type roomState struct {
	router Router

	mu         sync.RWMutex
	transports map[string]*transportEntry     // transport id -> entry
	producers  map[string]Producer            // user id -> producer
	consumers  map[string]map[string]Consumer // listener id -> producer id -> consumer
	userTrans  map[string][]string            // user id -> owned transport ids
	prodTrans  map[string]string              // user id -> transport the producer rides
	consTrans  map[string]string              // consumer id -> transport it rides
}

type transportEntry struct {
	transport Transport
	userID    string
	dir       Direction
}

func NewRegistry(engine Engine, logger *slog.Logger) *Registry {
	return &Registry{
		engine: engine,
		logger: logger.With("component", "sfu_registry"),
		rooms:  make(map[string]*roomState),
	}
}

// getOrCreateRoom lazily creates the room shard and its router. Idempotent.
func (r *Registry) getOrCreateRoom(roomID string) (*roomState, error) {
	r.mu.RLock()
	rs, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok {
		return rs, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rs, ok := r.rooms[roomID]; ok {
		return rs, nil
	}

	router, err := r.engine.NewRouter(roomID)
	if err != nil {
		return nil, err
	}

	rs = &roomState{
		router:     router,
		transports: make(map[string]*transportEntry),
		producers:  make(map[string]Producer),
		consumers:  make(map[string]map[string]Consumer),
		userTrans:  make(map[string][]string),
		prodTrans:  make(map[string]string),
		consTrans:  make(map[string]string),
	}
	r.rooms[roomID] = rs
	r.logger.Info("router created", "room_id", roomID)
	return rs, nil
}

func (r *Registry) room(roomID string) (*roomState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.rooms[roomID]
	return rs, ok
}

// RouterCapabilities returns the room router's codec capabilities,
// creating the router on first use.
func (r *Registry) RouterCapabilities(roomID string) (Capabilities, error) {
	rs, err := r.getOrCreateRoom(roomID)
	if err != nil {
		return Capabilities{}, err
	}
	return rs.router.Capabilities(), nil
}

// CreateTransport creates a transport on the room's router, bound to the
// given user. Transport death cascades into registry cleanup.
func (r *Registry) CreateTransport(roomID, userID string, dir Direction) (Transport, error) {
	rs, err := r.getOrCreateRoom(roomID)
	if err != nil {
		return nil, err
	}

	transport, err := rs.router.NewTransport(dir)
	if err != nil {
		return nil, err
	}

	rs.mu.Lock()
	rs.transports[transport.ID()] = &transportEntry{transport: transport, userID: userID, dir: dir}
	rs.userTrans[userID] = append(rs.userTrans[userID], transport.ID())
	rs.mu.Unlock()

	transport.OnClosed(func() {
		r.dropTransport(roomID, transport.ID())
	})

	return transport, nil
}

// ConnectTransport applies the client's offer and returns the answer.
func (r *Registry) ConnectTransport(ctx context.Context, roomID, transportID string, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	entry, ok := r.transport(roomID, transportID)
	if !ok {
		return webrtc.SessionDescription{}, shared.ErrNotFound
	}
	return entry.transport.Connect(ctx, offer)
}

// AnswerTransport applies the client's answer to a renegotiation offer
// the server pushed earlier.
func (r *Registry) AnswerTransport(ctx context.Context, roomID, transportID string, answer webrtc.SessionDescription) error {
	entry, ok := r.transport(roomID, transportID)
	if !ok {
		return shared.ErrNotFound
	}
	return entry.transport.Answer(ctx, answer)
}

// Produce attaches the user's inbound audio stream arriving on a send
// transport. A second produce for the same user replaces the first.
func (r *Registry) Produce(ctx context.Context, roomID, transportID, userID string) (Producer, error) {
	rs, ok := r.room(roomID)
	if !ok {
		return nil, shared.ErrNotFound
	}

	entry, ok := r.transport(roomID, transportID)
	if !ok {
		return nil, shared.ErrNotFound
	}

	producer, err := entry.transport.Producer(ctx)
	if err != nil {
		return nil, err
	}

	rs.mu.Lock()
	prev := rs.producers[userID]
	rs.producers[userID] = producer
	rs.prodTrans[userID] = transportID
	rs.mu.Unlock()

	if prev != nil && prev.ID() != producer.ID() {
		r.retireProducer(rs, prev)
	}

	return producer, nil
}

// ConsumeResult is what the signaling layer returns to a subscribing client.
type ConsumeResult struct {
	ConsumerID string       `json:"consumer_id"`
	ProducerID string       `json:"producer_id"`
	Codecs     Capabilities `json:"codecs"`
}

// Consume subscribes a listener to a speaker's stream on a recv transport.
// The consumer starts paused; the reconciler decides when it plays.
func (r *Registry) Consume(ctx context.Context, roomID, transportID, speakerID, listenerID string, caps Capabilities) (ConsumeResult, error) {
	rs, ok := r.room(roomID)
	if !ok {
		return ConsumeResult{}, shared.ErrNotFound
	}

	rs.mu.RLock()
	producer := rs.producers[speakerID]
	rs.mu.RUnlock()
	if producer == nil {
		return ConsumeResult{}, shared.ErrNotFound
	}

	if !rs.router.CanConsume(caps) {
		return ConsumeResult{}, shared.ErrIncompatibleCapability
	}

	entry, ok := r.transport(roomID, transportID)
	if !ok {
		return ConsumeResult{}, shared.ErrNotFound
	}

	consumer, err := entry.transport.Consume(ctx, producer)
	if err != nil {
		return ConsumeResult{}, err
	}

	rs.mu.Lock()
	if rs.consumers[listenerID] == nil {
		rs.consumers[listenerID] = make(map[string]Consumer)
	}
	rs.consumers[listenerID][producer.ID()] = consumer
	rs.consTrans[consumer.ID()] = transportID
	rs.mu.Unlock()

	return ConsumeResult{
		ConsumerID: consumer.ID(),
		ProducerID: producer.ID(),
		Codecs:     rs.router.Capabilities(),
	}, nil
}

// ResumeConsumer resumes the (listener, producer) subscription if it
// exists. Missing consumers are a no-op, matching on-demand subscription.
func (r *Registry) ResumeConsumer(roomID, listenerID, producerID string) {
	if c, ok := r.ConsumerFor(roomID, listenerID, producerID); ok {
		c.Resume()
	}
}

func (r *Registry) PauseConsumer(roomID, listenerID, producerID string) {
	if c, ok := r.ConsumerFor(roomID, listenerID, producerID); ok {
		c.Pause()
	}
}

// ProducerFor returns the active producer for a user, if any.
func (r *Registry) ProducerFor(roomID, userID string) (Producer, bool) {
	rs, ok := r.room(roomID)
	if !ok {
		return nil, false
	}
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	p, ok := rs.producers[userID]
	return p, ok
}

// ConsumerFor returns the consumer delivering producerID to listenerID.
func (r *Registry) ConsumerFor(roomID, listenerID, producerID string) (Consumer, bool) {
	rs, ok := r.room(roomID)
	if !ok {
		return nil, false
	}
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	c, ok := rs.consumers[listenerID][producerID]
	return c, ok
}

// Producers returns a snapshot of user id -> producer for one room.
func (r *Registry) Producers(roomID string) map[string]Producer {
	rs, ok := r.room(roomID)
	if !ok {
		return nil
	}
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make(map[string]Producer, len(rs.producers))
	for userID, p := range rs.producers {
		out[userID] = p
	}
	return out
}

func (r *Registry) transport(roomID, transportID string) (*transportEntry, bool) {
	rs, ok := r.room(roomID)
	if !ok {
		return nil, false
	}
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	entry, ok := rs.transports[transportID]
	return entry, ok
}

// dropTransport removes a dead transport and everything that rode on it,
// so later lookups report absence instead of touching dead handles.
func (r *Registry) dropTransport(roomID, transportID string) {
	rs, ok := r.room(roomID)
	if !ok {
		return
	}

	rs.mu.Lock()
	entry, ok := rs.transports[transportID]
	if !ok {
		rs.mu.Unlock()
		return
	}
	delete(rs.transports, transportID)

	userID := entry.userID
	owned := rs.userTrans[userID]
	for i, id := range owned {
		if id == transportID {
			rs.userTrans[userID] = append(owned[:i], owned[i+1:]...)
			break
		}
	}

	// Media that rode the dead transport dies with it.
	var producer Producer
	var stale []Consumer
	switch entry.dir {
	case DirectionSend:
		if rs.prodTrans[userID] == transportID {
			producer = rs.producers[userID]
			delete(rs.producers, userID)
			delete(rs.prodTrans, userID)
			if producer != nil {
				for _, byProducer := range rs.consumers {
					if c, ok := byProducer[producer.ID()]; ok {
						stale = append(stale, c)
						delete(byProducer, producer.ID())
						delete(rs.consTrans, c.ID())
					}
				}
			}
		}
	case DirectionRecv:
		for producerID, c := range rs.consumers[userID] {
			if rs.consTrans[c.ID()] != transportID {
				continue
			}
			stale = append(stale, c)
			delete(rs.consumers[userID], producerID)
			delete(rs.consTrans, c.ID())
		}
	}
	rs.mu.Unlock()

	for _, c := range stale {
		_ = c.Close()
	}
	if producer != nil {
		_ = producer.Close()
	}

	r.logger.Debug("transport dropped", "room_id", roomID, "transport_id", transportID, "user_id", userID)
}

// RemoveUser tears down a departing user's producer, consumers,
// subscriptions held by others to their stream, and transports.
func (r *Registry) RemoveUser(roomID, userID string) {
	rs, ok := r.room(roomID)
	if !ok {
		return
	}

	rs.mu.Lock()
	producer := rs.producers[userID]
	delete(rs.producers, userID)
	delete(rs.prodTrans, userID)

	ownConsumers := rs.consumers[userID]
	delete(rs.consumers, userID)
	for _, c := range ownConsumers {
		delete(rs.consTrans, c.ID())
	}

	// Other listeners' subscriptions to this user's stream.
	var orphaned []Consumer
	if producer != nil {
		for _, byProducer := range rs.consumers {
			if c, ok := byProducer[producer.ID()]; ok {
				orphaned = append(orphaned, c)
				delete(byProducer, producer.ID())
				delete(rs.consTrans, c.ID())
			}
		}
	}

	transportIDs := rs.userTrans[userID]
	delete(rs.userTrans, userID)
	transports := make([]Transport, 0, len(transportIDs))
	for _, id := range transportIDs {
		if entry, ok := rs.transports[id]; ok {
			transports = append(transports, entry.transport)
			delete(rs.transports, id)
		}
	}
	rs.mu.Unlock()

	for _, c := range ownConsumers {
		_ = c.Close()
	}
	for _, c := range orphaned {
		_ = c.Close()
	}
	if producer != nil {
		_ = producer.Close()
	}
	for _, t := range transports {
		_ = t.Close()
	}

	r.logger.Info("user media state removed", "room_id", roomID, "user_id", userID)
}

// DestroyRoom sweeps the whole shard, router included. Safe to call for
// rooms that never had media state.
func (r *Registry) DestroyRoom(roomID string) {
	r.mu.Lock()
	rs, ok := r.rooms[roomID]
	if ok {
		delete(r.rooms, roomID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	rs.mu.Lock()
	consumers := rs.consumers
	producers := rs.producers
	transports := rs.transports
	rs.consumers = make(map[string]map[string]Consumer)
	rs.producers = make(map[string]Producer)
	rs.transports = make(map[string]*transportEntry)
	rs.userTrans = make(map[string][]string)
	rs.prodTrans = make(map[string]string)
	rs.consTrans = make(map[string]string)
	rs.mu.Unlock()

	for _, byProducer := range consumers {
		for _, c := range byProducer {
			_ = c.Close()
		}
	}
	for _, p := range producers {
		_ = p.Close()
	}
	for _, entry := range transports {
		_ = entry.transport.Close()
	}
	_ = rs.router.Close()

	r.logger.Info("room media state destroyed", "room_id", roomID)
}

// Stats reports live media object counts across all rooms.
type Stats struct {
	Rooms      int
	Transports int
	Producers  int
	Consumers  int
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	rooms := make([]*roomState, 0, len(r.rooms))
	for _, rs := range r.rooms {
		rooms = append(rooms, rs)
	}
	r.mu.RUnlock()

	s := Stats{Rooms: len(rooms)}
	for _, rs := range rooms {
		rs.mu.RLock()
		s.Transports += len(rs.transports)
		s.Producers += len(rs.producers)
		for _, byProducer := range rs.consumers {
			s.Consumers += len(byProducer)
		}
		rs.mu.RUnlock()
	}
	return s
}

// retireProducer closes a replaced producer and every subscription that
// was still attached to it.
func (r *Registry) retireProducer(rs *roomState, prev Producer) {
	rs.mu.Lock()
	var stale []Consumer
	for _, byProducer := range rs.consumers {
		if c, ok := byProducer[prev.ID()]; ok {
			stale = append(stale, c)
			delete(byProducer, prev.ID())
			delete(rs.consTrans, c.ID())
		}
	}
	rs.mu.Unlock()

	for _, c := range stale {
		_ = c.Close()
	}
	_ = prev.Close()
}
