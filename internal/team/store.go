package team

import (
	"context"
	"errors"

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
	return s.db.AutoMigrate(&Team{})
}

// CreateDefaults seeds a fresh room with the standard squads.
func (s *Store) CreateDefaults(ctx context.Context, roomID string) ([]Team, error) {
	teams := make([]Team, 0, len(DefaultColors))
	for _, color := range DefaultColors {
		teams = append(teams, Team{
			ID:         shared.NewID("team_"),
			RoomID:     roomID,
			Color:      color,
			Enabled:    true,
			MaxMembers: DefaultMaxMembers,
		})
	}
	if err := s.db.WithContext(ctx).Create(&teams).Error; err != nil {
		return nil, err
	}
	return teams, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*Team, error) {
	var t Team
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &t, err
}

func (s *Store) ListByRoom(ctx context.Context, roomID string) ([]Team, error) {
	var teams []Team
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("created_at asc").Find(&teams).Error
	return teams, err
}

func (s *Store) SetCaptain(ctx context.Context, id, captainID string) error {
	result := s.db.WithContext(ctx).Model(&Team{}).Where("id = ?", id).Update("captain_id", captainID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *Store) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result := s.db.WithContext(ctx).Model(&Team{}).Where("id = ?", id).Update("enabled", enabled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteByRoom removes a destroyed room's teams.
func (s *Store) DeleteByRoom(ctx context.Context, roomID string) error {
	return s.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&Team{}).Error
}
