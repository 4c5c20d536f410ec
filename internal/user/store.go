package user

import (
	"context"
	"errors"

	"github.com/squadlink/voice-backend/internal/policy"
	"github.com/squadlink/voice-backend/internal/shared"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&User{})
}

func (s *Store) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = shared.NewID("user_")
	}
	return s.db.WithContext(ctx).Create(u).Error
}

func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &u, err
}

func (s *Store) ListByRoom(ctx context.Context, roomID string) ([]User, error) {
	var users []User
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("created_at asc").Find(&users).Error
	return users, err
}

func (s *Store) ListByTeam(ctx context.Context, teamID string) ([]User, error) {
	var users []User
	err := s.db.WithContext(ctx).Where("team_id = ?", teamID).Order("created_at asc").Find(&users).Error
	return users, err
}

func (s *Store) CountByTeam(ctx context.Context, teamID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&User{}).Where("team_id = ?", teamID).Count(&n).Error
	return n, err
}

// Update applies a partial update to the caller's own profile and flags.
func (s *Store) Update(ctx context.Context, id string, name *string, mic, speaker *bool) (*User, error) {
	updates := map[string]interface{}{}
	if name != nil {
		updates["name"] = *name
	}
	if mic != nil {
		updates["mic_enabled"] = *mic
	}
	if speaker != nil {
		updates["speaker_enabled"] = *speaker
	}
	if len(updates) > 0 {
		result := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, shared.ErrNotFound
		}
	}
	return s.GetByID(ctx, id)
}

// EnterRoom binds the user to a room with no team and no role.
func (s *Store) EnterRoom(ctx context.Context, id, roomID string, role policy.Role) error {
	result := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"room_id": roomID,
		"team_id": "",
		"role":    role,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// LeaveRoom clears all tactical state for the user.
func (s *Store) LeaveRoom(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"room_id":         "",
		"team_id":         "",
		"role":            policy.RoleNone,
		"mic_enabled":     true,
		"speaker_enabled": true,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ClearRoom resets every member of a destroyed room in one statement.
func (s *Store) ClearRoom(ctx context.Context, roomID string) error {
	return s.db.WithContext(ctx).Model(&User{}).Where("room_id = ?", roomID).Updates(map[string]interface{}{
		"room_id":         "",
		"team_id":         "",
		"role":            policy.RoleNone,
		"mic_enabled":     true,
		"speaker_enabled": true,
	}).Error
}

func (s *Store) SetTeam(ctx context.Context, id, teamID string) error {
	result := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("team_id", teamID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *Store) SetRole(ctx context.Context, id string, role policy.Role) error {
	result := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("role", role)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// MuteAllInRoom switches every mic in the room off except the named user's.
func (s *Store) MuteAllInRoom(ctx context.Context, roomID, exceptID string) error {
	return s.db.WithContext(ctx).Model(&User{}).
		Where("room_id = ? AND id <> ?", roomID, exceptID).
		Update("mic_enabled", false).Error
}
