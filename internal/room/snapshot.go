package room

import (
	"context"

	"github.com/squadlink/voice-backend/internal/policy"
	"github.com/squadlink/voice-backend/internal/user"
)

// Snapshots assembles the policy engine's view of a room: the persisted
// membership merged with the process-local force-call flag.
type Snapshots struct {
	rooms *Store
	users *user.Store
	force *ForceCalls
}

func NewSnapshots(rooms *Store, users *user.Store, force *ForceCalls) *Snapshots {
	return &Snapshots{rooms: rooms, users: users, force: force}
}

func (s *Snapshots) Snapshot(ctx context.Context, roomID string) (policy.RoomSnapshot, error) {
	r, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return policy.RoomSnapshot{}, err
	}

	members, err := s.users.ListByRoom(ctx, roomID)
	if err != nil {
		return policy.RoomSnapshot{}, err
	}

	snap := policy.RoomSnapshot{
		ID:        r.ID,
		Status:    r.Status,
		LeaderID:  r.LeaderID,
		ForceCall: s.force.Active(r.ID),
		Users:     make([]policy.UserSnapshot, 0, len(members)),
	}
	for i := range members {
		snap.Users = append(snap.Users, members[i].Snapshot())
	}
	return snap, nil
}
