package room

import (
	"context"
	"errors"

	"github.com/squadlink/voice-backend/internal/policy"
	"github.com/squadlink/voice-backend/internal/team"
	"github.com/squadlink/voice-backend/internal/user"
)

var (
	ErrRoomFull      = errors.New("room: room is at capacity")
	ErrAlreadyInRoom = errors.New("room: user is already in another room")
	ErrNotInRoom     = errors.New("room: user is not in this room")
	ErrBadStatus     = errors.New("room: unknown room status")
)

// Service owns room membership and command: joins, departures, leadership
// and mission status. The first joiner takes command; when the leader
// leaves, command passes to the longest-standing member.
type Service struct {
	rooms   *Store
	teams   *team.Store
	teamSvc *team.Service
	users   *user.Store
	force   *ForceCalls
}

func NewService(rooms *Store, teams *team.Store, teamSvc *team.Service, users *user.Store, force *ForceCalls) *Service {
	return &Service{
		rooms:   rooms,
		teams:   teams,
		teamSvc: teamSvc,
		users:   users,
		force:   force,
	}
}

// Create makes a room in preparing state and seeds the default squads.
func (s *Service) Create(ctx context.Context, name string, capacity int) (*Room, []team.Team, error) {
	r := &Room{Name: name, Capacity: capacity}
	if err := s.rooms.Create(ctx, r); err != nil {
		return nil, nil, err
	}
	teams, err := s.teams.CreateDefaults(ctx, r.ID)
	if err != nil {
		return nil, nil, err
	}
	return r, teams, nil
}

// Join puts the user into the room. The first joiner becomes leader.
// Rejoining the same room is a no-op.
func (s *Service) Join(ctx context.Context, roomID, userID string) error {
	r, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if u.RoomID == r.ID {
		return nil
	}
	if u.RoomID != "" {
		return ErrAlreadyInRoom
	}

	members, err := s.users.ListByRoom(ctx, r.ID)
	if err != nil {
		return err
	}
	if len(members) >= r.Capacity {
		return ErrRoomFull
	}

	role := policy.RoleMember
	if len(members) == 0 {
		role = policy.RoleLeader
	}
	if err := s.users.EnterRoom(ctx, u.ID, r.ID, role); err != nil {
		return err
	}
	if role == policy.RoleLeader {
		return s.rooms.SetLeader(ctx, r.ID, u.ID)
	}
	return nil
}

// Leave removes the user from the room. A departing leader hands command
// to the longest-standing remaining member; the last member out tears the
// room down. Returns true when the room was destroyed.
func (s *Service) Leave(ctx context.Context, roomID, userID string) (destroyed bool, err error) {
	r, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return false, err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if u.RoomID != r.ID {
		return false, ErrNotInRoom
	}

	if err := s.teamSvc.Leave(ctx, u.ID); err != nil {
		return false, err
	}
	if err := s.users.LeaveRoom(ctx, u.ID); err != nil {
		return false, err
	}

	remaining, err := s.users.ListByRoom(ctx, r.ID)
	if err != nil {
		return false, err
	}
	if len(remaining) == 0 {
		return true, s.Destroy(ctx, r.ID)
	}

	if r.LeaderID == u.ID {
		successor := remaining[0]
		if err := s.promoteToLeader(ctx, r.ID, &successor); err != nil {
			return false, err
		}
	}
	return false, nil
}

// Destroy deletes the room, its squads and the members' tactical state.
func (s *Service) Destroy(ctx context.Context, roomID string) error {
	if err := s.users.ClearRoom(ctx, roomID); err != nil {
		return err
	}
	if err := s.teams.DeleteByRoom(ctx, roomID); err != nil {
		return err
	}
	if err := s.rooms.Delete(ctx, roomID); err != nil {
		return err
	}
	s.force.Forget(roomID)
	return nil
}

// SetStatus flips the room between preparing and assaulting.
func (s *Service) SetStatus(ctx context.Context, roomID string, status policy.RoomStatus) error {
	if status != policy.StatusPreparing && status != policy.StatusAssaulting {
		return ErrBadStatus
	}
	return s.rooms.SetStatus(ctx, roomID, status)
}

// TransferLeader hands command to another member of the room. The old
// leader becomes a regular member and keeps their squad.
func (s *Service) TransferLeader(ctx context.Context, roomID, targetID string) error {
	r, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if target.RoomID != r.ID {
		return ErrNotInRoom
	}
	if r.LeaderID == target.ID {
		return nil
	}

	if r.LeaderID != "" {
		if old, err := s.users.GetByID(ctx, r.LeaderID); err == nil && old.Role == policy.RoleLeader {
			if err := s.users.SetRole(ctx, old.ID, policy.RoleMember); err != nil {
				return err
			}
		}
	}
	return s.promoteToLeader(ctx, r.ID, target)
}

// MuteAll switches every mic in the room off except the leader's.
func (s *Service) MuteAll(ctx context.Context, roomID, leaderID string) error {
	return s.users.MuteAllInRoom(ctx, roomID, leaderID)
}

// SetForceCall raises or drops the all-hands override.
func (s *Service) SetForceCall(roomID string, active bool) {
	s.force.Set(roomID, active)
}

// promoteToLeader makes the user the room leader, surrendering any
// captaincy first since the two roles are exclusive.
func (s *Service) promoteToLeader(ctx context.Context, roomID string, u *user.User) error {
	if u.Role == policy.RoleCaptain && u.TeamID != "" {
		if err := s.teamSvc.PassCaptaincy(ctx, u.TeamID, u.ID); err != nil {
			return err
		}
	}
	if err := s.users.SetRole(ctx, u.ID, policy.RoleLeader); err != nil {
		return err
	}
	return s.rooms.SetLeader(ctx, roomID, u.ID)
}
