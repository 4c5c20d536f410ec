package dto

type GuestLoginRequest struct {
	Name string `json:"name" example:"Raven-6"`
}

type GuestLoginResponse struct {
	Token string     `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	User  MeResponse `json:"user"`
}

type MeResponse struct {
	ID             string `json:"id" example:"user_abc123"`
	Name           string `json:"name" example:"Raven-6"`
	RoomID         string `json:"room_id,omitempty" example:"room_abc123"`
	TeamID         string `json:"team_id,omitempty" example:"team_red123"`
	Role           string `json:"role,omitempty" example:"captain"`
	MicEnabled     bool   `json:"mic_enabled" example:"true"`
	SpeakerEnabled bool   `json:"speaker_enabled" example:"true"`
}

type UpdateMeRequest struct {
	Name           *string `json:"name,omitempty" example:"Raven-6"`
	MicEnabled     *bool   `json:"mic_enabled,omitempty" example:"false"`
	SpeakerEnabled *bool   `json:"speaker_enabled,omitempty" example:"true"`
}
