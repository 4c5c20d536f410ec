package dto

type TeamDetail struct {
	ID         string   `json:"id" example:"team_red123"`
	RoomID     string   `json:"room_id" example:"room_abc123"`
	Color      string   `json:"color" example:"red"`
	Enabled    bool     `json:"enabled" example:"true"`
	CaptainID  string   `json:"captain_id,omitempty" example:"user_abc123"`
	MaxMembers int      `json:"max_members" example:"5"`
	MemberIDs  []string `json:"member_ids"`
}

type SetCaptainRequest struct {
	UserID string `json:"user_id" example:"user_def456"`
}

type EnableTeamRequest struct {
	Enabled bool `json:"enabled" example:"true"`
}
