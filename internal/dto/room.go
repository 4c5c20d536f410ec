package dto

type CreateRoomRequest struct {
	Name     string `json:"name" example:"Operation Nightfall"`
	Capacity int    `json:"capacity,omitempty" example:"20"`
}

type RoomSummary struct {
	ID        string `json:"id" example:"room_abc123"`
	Name      string `json:"name" example:"Operation Nightfall"`
	Status    string `json:"status" example:"preparing"`
	Capacity  int    `json:"capacity" example:"20"`
	UserCount int    `json:"user_count" example:"7"`
}

type RoomDetail struct {
	ID        string       `json:"id" example:"room_abc123"`
	Name      string       `json:"name" example:"Operation Nightfall"`
	Status    string       `json:"status" example:"assaulting"`
	LeaderID  string       `json:"leader_id,omitempty" example:"user_abc123"`
	Capacity  int          `json:"capacity" example:"20"`
	ForceCall bool         `json:"force_call" example:"false"`
	Teams     []TeamDetail `json:"teams"`
	Users     []MeResponse `json:"users"`
}

type SetStatusRequest struct {
	Status string `json:"status" example:"assaulting"`
}

type TransferLeaderRequest struct {
	UserID string `json:"user_id" example:"user_def456"`
}

type ForceCallRequest struct {
	Active bool `json:"active" example:"true"`
}

type RTCTokenResponse struct {
	Token    string `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	URL      string `json:"url" example:"wss://rtc.squadlink.io"`
	Room     string `json:"room" example:"room_abc123"`
	Identity string `json:"identity" example:"user_abc123"`
}
