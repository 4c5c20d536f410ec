package user

import (
	"time"

	"github.com/squadlink/voice-backend/internal/policy"
)

type User struct {
	ID             string      `gorm:"primaryKey" json:"id"`
	Name           string      `gorm:"not null" json:"name"`
	RoomID         string      `gorm:"index" json:"room_id,omitempty"`
	TeamID         string      `gorm:"index" json:"team_id,omitempty"`
	Role           policy.Role `json:"role,omitempty"`
	MicEnabled     bool        `gorm:"default:true" json:"mic_enabled"`
	SpeakerEnabled bool        `gorm:"default:true" json:"speaker_enabled"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Snapshot converts the record into the policy engine's view.
func (u *User) Snapshot() policy.UserSnapshot {
	return policy.UserSnapshot{
		ID:             u.ID,
		TeamID:         u.TeamID,
		Role:           u.Role,
		MicEnabled:     u.MicEnabled,
		SpeakerEnabled: u.SpeakerEnabled,
	}
}
