package bootstrap

import (
	"context"
	"log/slog"

	"github.com/squadlink/voice-backend/internal/gateway"
	"github.com/squadlink/voice-backend/internal/presence"
	"github.com/squadlink/voice-backend/internal/room"
	"github.com/squadlink/voice-backend/internal/sfu"
	"github.com/squadlink/voice-backend/internal/team"
	"github.com/squadlink/voice-backend/internal/user"
	"go.uber.org/fx"
)

// Notifier fans REST-side state changes out to the realtime layer: room
// events to subscribed sockets, and a reconcile pass so audio routing
// catches up with the new state.
type Notifier struct {
	hub        *gateway.Hub
	registry   *sfu.Registry
	reconciler *sfu.Reconciler
	monitor    *sfu.Monitor
	presence   *presence.Store
	logger     *slog.Logger
}

func NewNotifier(hub *gateway.Hub, registry *sfu.Registry, reconciler *sfu.Reconciler, monitor *sfu.Monitor, presenceStore *presence.Store, logger *slog.Logger) *Notifier {
	return &Notifier{
		hub:        hub,
		registry:   registry,
		reconciler: reconciler,
		monitor:    monitor,
		presence:   presenceStore,
		logger:     logger.With("component", "notifier"),
	}
}

func (n *Notifier) RoomStateChanged(_ context.Context, roomID string) {
	n.hub.BroadcastRoom(roomID, gateway.NewEvent(gateway.EventRoomUpdated, gateway.RoomEventPayload{RoomID: roomID}))
	n.reconciler.Trigger(roomID)
}

// RoomDestroyed tears down everything the room held across the realtime
// layer. Order matters: media first so no track outlives its router.
func (n *Notifier) RoomDestroyed(ctx context.Context, roomID string) {
	n.registry.DestroyRoom(roomID)
	n.monitor.Stop(roomID)
	n.reconciler.Forget(roomID)
	n.hub.CloseRoom(roomID)
	if err := n.presence.ForgetRoom(ctx, roomID); err != nil {
		n.logger.Error("presence cleanup failed", "error", err, "room_id", roomID)
	}
}

// UserLeftRoom tears down the leaver's footprint while their socket
// stays up: room channel, media state, and any listen list the client
// still holds. The snapshot no longer contains them, so the reconcile
// pass alone would leave all of that in place.
func (n *Notifier) UserLeftRoom(ctx context.Context, roomID, userID string) {
	n.hub.Unsubscribe(roomID, userID)
	n.registry.RemoveUser(roomID, userID)
	if err := n.hub.SendRoutingUpdate(ctx, userID, []string{}); err != nil {
		n.logger.Debug("leaver routing reset skipped", "error", err, "user_id", userID)
	}
	n.reconciler.Trigger(roomID)
}

func (n *Notifier) ForceCallChanged(_ context.Context, roomID string, active bool) {
	n.hub.BroadcastRoom(roomID, gateway.NewEvent(gateway.EventForceCallStatus, gateway.ForceCallPayload{Active: active}))
	n.reconciler.Trigger(roomID)
}

func (n *Notifier) MuteAllIssued(_ context.Context, roomID string) {
	n.hub.BroadcastRoom(roomID, gateway.NewEvent(gateway.EventForceMuteAll, gateway.RoomEventPayload{RoomID: roomID}))
	n.reconciler.Trigger(roomID)
}

var NotifierModule = fx.Options(
	fx.Provide(
		NewNotifier,
		func(n *Notifier) user.Notifier { return n },
		func(n *Notifier) team.Notifier { return n },
		func(n *Notifier) room.Notifier { return n },
	),
)
