package team

import (
	"context"
	"errors"

	"github.com/squadlink/voice-backend/internal/policy"
	"github.com/squadlink/voice-backend/internal/user"
)

var (
	ErrNotInRoom     = errors.New("team: user is not in the team's room")
	ErrTeamDisabled  = errors.New("team: team is disabled")
	ErrTeamFull      = errors.New("team: team is full")
	ErrNotOnTeam     = errors.New("team: user is not on this team")
	ErrLeaderCaptain = errors.New("team: the room leader cannot hold a captaincy")
)

// Service owns squad membership: joins, departures and the captaincy
// chain. The first member of a captainless squad is promoted, the leader
// never is.
type Service struct {
	teams *Store
	users *user.Store
}

func NewService(teams *Store, users *user.Store) *Service {
	return &Service{teams: teams, users: users}
}

// Join moves a user onto a squad, leaving their current one first.
// Idempotent for a user already on the squad.
func (s *Service) Join(ctx context.Context, userID, teamID string) error {
	t, err := s.teams.GetByID(ctx, teamID)
	if err != nil {
		return err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if u.RoomID == "" || u.RoomID != t.RoomID {
		return ErrNotInRoom
	}
	if !t.Enabled {
		return ErrTeamDisabled
	}
	if u.TeamID == t.ID {
		return nil
	}

	count, err := s.users.CountByTeam(ctx, t.ID)
	if err != nil {
		return err
	}
	if count >= int64(t.MaxMembers) {
		return ErrTeamFull
	}

	if u.TeamID != "" {
		if err := s.Leave(ctx, userID); err != nil {
			return err
		}
	}

	if err := s.users.SetTeam(ctx, u.ID, t.ID); err != nil {
		return err
	}

	if t.CaptainID == "" && u.Role != policy.RoleLeader {
		if err := s.users.SetRole(ctx, u.ID, policy.RoleCaptain); err != nil {
			return err
		}
		return s.teams.SetCaptain(ctx, t.ID, u.ID)
	}
	return nil
}

// Leave detaches a user from their squad. A departing captain hands the
// captaincy to the longest-standing remaining member.
func (s *Service) Leave(ctx context.Context, userID string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.TeamID == "" {
		return nil
	}

	t, err := s.teams.GetByID(ctx, u.TeamID)
	if err != nil {
		return err
	}

	if err := s.users.SetTeam(ctx, u.ID, ""); err != nil {
		return err
	}
	if u.Role == policy.RoleCaptain {
		if err := s.users.SetRole(ctx, u.ID, policy.RoleMember); err != nil {
			return err
		}
	}

	if t.CaptainID == u.ID {
		return s.PassCaptaincy(ctx, t.ID, u.ID)
	}
	return nil
}

// SetCaptain demotes the current captain and promotes the target in one
// logical step, so the squad never has two captains.
func (s *Service) SetCaptain(ctx context.Context, teamID, targetID string) error {
	t, err := s.teams.GetByID(ctx, teamID)
	if err != nil {
		return err
	}
	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return err
	}

	if target.TeamID != t.ID {
		return ErrNotOnTeam
	}
	if target.Role == policy.RoleLeader {
		return ErrLeaderCaptain
	}
	if t.CaptainID == target.ID {
		return nil
	}

	if t.CaptainID != "" {
		if prev, err := s.users.GetByID(ctx, t.CaptainID); err == nil && prev.Role == policy.RoleCaptain {
			if err := s.users.SetRole(ctx, prev.ID, policy.RoleMember); err != nil {
				return err
			}
		}
	}

	if err := s.users.SetRole(ctx, target.ID, policy.RoleCaptain); err != nil {
		return err
	}
	return s.teams.SetCaptain(ctx, t.ID, target.ID)
}

// PassCaptaincy hands a squad's captaincy to its longest-standing member,
// skipping the named user and the leader. With no eligible member the
// squad goes captainless.
func (s *Service) PassCaptaincy(ctx context.Context, teamID, skipUserID string) error {
	members, err := s.users.ListByTeam(ctx, teamID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.ID == skipUserID || m.Role == policy.RoleLeader {
			continue
		}
		if err := s.users.SetRole(ctx, m.ID, policy.RoleCaptain); err != nil {
			return err
		}
		return s.teams.SetCaptain(ctx, teamID, m.ID)
	}
	return s.teams.SetCaptain(ctx, teamID, "")
}
