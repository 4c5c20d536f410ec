package policy

type Role string

const (
	RoleNone    Role = ""
	RoleMember  Role = "member"
	RoleCaptain Role = "captain"
	RoleLeader  Role = "leader"
)

type RoomStatus string

const (
	StatusPreparing  RoomStatus = "preparing"
	StatusAssaulting RoomStatus = "assaulting"
)

// UserSnapshot is the tactical view of one connected user, detached from the
// database record so policy evaluation stays deterministic.
type UserSnapshot struct {
	ID             string
	TeamID         string
	Role           Role
	MicEnabled     bool
	SpeakerEnabled bool
}

func (u UserSnapshot) HasTeam() bool {
	return u.TeamID != ""
}

// RoomSnapshot is an immutable view of a room and its members at one point
// in time. ForceCall is process-local state, merged in by the provider.
type RoomSnapshot struct {
	ID        string
	Status    RoomStatus
	LeaderID  string
	ForceCall bool
	Users     []UserSnapshot
}

func (r RoomSnapshot) User(id string) (UserSnapshot, bool) {
	for _, u := range r.Users {
		if u.ID == id {
			return u, true
		}
	}
	return UserSnapshot{}, false
}
