package sfu

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/squadlink/voice-backend/internal/policy"
	"github.com/squadlink/voice-backend/internal/shared"
)

// SnapshotProvider supplies the current room membership on demand. It is
// the only view this package has of the persistence layer.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, roomID string) (policy.RoomSnapshot, error)
}

// PairDecision is one reconciliation verdict: may listener hear speaker.
type PairDecision struct {
	Listener   policy.UserSnapshot
	Speaker    policy.UserSnapshot
	ProducerID string
	Allowed    bool
}

// Strategy applies a full set of pair decisions to one data plane.
// Implementations must be idempotent: applying the same decisions twice
// produces no further side effects.
type Strategy interface {
	Apply(ctx context.Context, room policy.RoomSnapshot, decisions []PairDecision) error
}

// Reconciler recomputes pairwise audio policy for a room whenever its
// state changes. Passes for the same room are serialized; a stale pass may
// briefly apply an outdated decision, and the pass triggered by the later
// event corrects it.
type Reconciler struct {
	snapshots SnapshotProvider
	registry  *Registry
	engine    *policy.Engine
	strategy  Strategy
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewReconciler(snapshots SnapshotProvider, registry *Registry, engine *policy.Engine, strategy Strategy, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		snapshots: snapshots,
		registry:  registry,
		engine:    engine,
		strategy:  strategy,
		logger:    logger.With("component", "reconciler"),
		locks:     make(map[string]*sync.Mutex),
	}
}

func (r *Reconciler) roomLock(roomID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[roomID] = lock
	}
	return lock
}

// Reconcile walks every (listener, speaker) pair in the room and brings
// the data plane in line with current policy. A deleted room degrades to a
// no-op.
func (r *Reconciler) Reconcile(ctx context.Context, roomID string) error {
	lock := r.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := r.snapshots.Snapshot(ctx, roomID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	producers := r.registry.Producers(roomID)

	var decisions []PairDecision
	for _, listener := range snap.Users {
		for _, speaker := range snap.Users {
			if listener.ID == speaker.ID {
				continue
			}
			producer, ok := producers[speaker.ID]
			if !ok {
				continue
			}
			// A disabled mic silences the speaker regardless of policy.
			allowed := speaker.MicEnabled &&
				r.engine.ListenerGate(listener, snap) &&
				r.engine.CanHear(listener, speaker, snap)
			decisions = append(decisions, PairDecision{
				Listener:   listener,
				Speaker:    speaker,
				ProducerID: producer.ID(),
				Allowed:    allowed,
			})
		}
	}

	return r.strategy.Apply(ctx, snap, decisions)
}

// Trigger runs a reconciliation pass in the background. Mutation paths
// call this after committing state; failures are logged, never returned to
// the mutating request.
func (r *Reconciler) Trigger(roomID string) {
	go func() {
		if err := r.Reconcile(context.Background(), roomID); err != nil {
			r.logger.Error("reconciliation failed", "room_id", roomID, "error", err)
		}
	}()
}

// Forget releases per-room reconciler state after room teardown.
func (r *Reconciler) Forget(roomID string) {
	r.mu.Lock()
	delete(r.locks, roomID)
	r.mu.Unlock()
	if s, ok := r.strategy.(interface{ Forget(roomID string) }); ok {
		s.Forget(roomID)
	}
}
