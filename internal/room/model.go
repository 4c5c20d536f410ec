package room

import (
	"time"

	"github.com/squadlink/voice-backend/internal/policy"
)

const DefaultCapacity = 20

type Room struct {
	ID        string            `gorm:"primaryKey" json:"id"`
	Name      string            `gorm:"not null" json:"name"`
	Status    policy.RoomStatus `gorm:"default:preparing" json:"status"`
	LeaderID  string            `json:"leader_id,omitempty"`
	Capacity  int               `gorm:"default:20" json:"capacity"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
