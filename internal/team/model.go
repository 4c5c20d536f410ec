package team

import "time"

// DefaultColors are the squads every room starts with.
var DefaultColors = []string{"red", "yellow", "green"}

const DefaultMaxMembers = 5

type Team struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	RoomID     string    `gorm:"not null;index" json:"room_id"`
	Color      string    `gorm:"not null" json:"color"`
	Enabled    bool      `gorm:"default:true" json:"enabled"`
	CaptainID  string    `json:"captain_id,omitempty"`
	MaxMembers int       `gorm:"default:5" json:"max_members"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
