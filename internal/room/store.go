package room

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
	return s.db.AutoMigrate(&Room{})
}

func (s *Store) Create(ctx context.Context, r *Room) error {
	if r.ID == "" {
		r.ID = shared.NewID("room_")
	}
	if r.Status == "" {
		r.Status = policy.StatusPreparing
	}
	if r.Capacity <= 0 {
		r.Capacity = DefaultCapacity
	}
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *Store) GetByID(ctx context.Context, id string) (*Room, error) {
	var r Room
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &r, err
}

func (s *Store) List(ctx context.Context) ([]Room, error) {
	var rooms []Room
	err := s.db.WithContext(ctx).Order("created_at desc").Find(&rooms).Error
	return rooms, err
}

func (s *Store) SetStatus(ctx context.Context, id string, status policy.RoomStatus) error {
	result := s.db.WithContext(ctx).Model(&Room{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *Store) SetLeader(ctx context.Context, id, leaderID string) error {
	result := s.db.WithContext(ctx).Model(&Room{}).Where("id = ?", id).Update("leader_id", leaderID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&Room{}).Error
}
