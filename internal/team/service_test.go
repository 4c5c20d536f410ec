package team

import (
	"context"
	"testing"

	"github.com/squadlink/voice-backend/internal/policy"
	"github.com/squadlink/voice-backend/internal/user"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	teams   *Store
	users   *user.Store
	service *Service
	roomID  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	teams := NewStore(db)
	if err := teams.Migrate(); err != nil {
		t.Fatalf("team migration failed: %v", err)
	}
	users := user.NewStore(db)
	if err := users.Migrate(); err != nil {
		t.Fatalf("user migration failed: %v", err)
	}

	return &fixture{
		teams:   teams,
		users:   users,
		service: NewService(teams, users),
		roomID:  "room_test",
	}
}

func (f *fixture) addUser(t *testing.T, name string, role policy.Role) *user.User {
	t.Helper()
	u := &user.User{Name: name, MicEnabled: true, SpeakerEnabled: true}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := f.users.EnterRoom(context.Background(), u.ID, f.roomID, role); err != nil {
		t.Fatalf("enter room: %v", err)
	}
	return u
}

func (f *fixture) seedTeams(t *testing.T) []Team {
	t.Helper()
	teams, err := f.teams.CreateDefaults(context.Background(), f.roomID)
	if err != nil {
		t.Fatalf("seed teams: %v", err)
	}
	return teams
}

func TestCreateDefaults(t *testing.T) {
	f := newFixture(t)
	teams := f.seedTeams(t)

	if len(teams) != 3 {
		t.Fatalf("expected 3 default teams, got %d", len(teams))
	}
	colors := map[string]bool{}
	for _, tm := range teams {
		colors[tm.Color] = true
		if !tm.Enabled {
			t.Errorf("team %s should start enabled", tm.Color)
		}
		if tm.MaxMembers != DefaultMaxMembers {
			t.Errorf("team %s max members = %d, want %d", tm.Color, tm.MaxMembers, DefaultMaxMembers)
		}
	}
	for _, c := range DefaultColors {
		if !colors[c] {
			t.Errorf("missing default team %q", c)
		}
	}
}

func TestJoinFirstMemberBecomesCaptain(t *testing.T) {
	f := newFixture(t)
	teams := f.seedTeams(t)
	ctx := context.Background()

	first := f.addUser(t, "first", policy.RoleMember)
	second := f.addUser(t, "second", policy.RoleMember)

	if err := f.service.Join(ctx, first.ID, teams[0].ID); err != nil {
		t.Fatalf("Join first: %v", err)
	}
	if err := f.service.Join(ctx, second.ID, teams[0].ID); err != nil {
		t.Fatalf("Join second: %v", err)
	}

	got, _ := f.users.GetByID(ctx, first.ID)
	if got.Role != policy.RoleCaptain {
		t.Errorf("first joiner role = %q, want captain", got.Role)
	}
	got, _ = f.users.GetByID(ctx, second.ID)
	if got.Role != policy.RoleMember {
		t.Errorf("second joiner role = %q, want member", got.Role)
	}
	tm, _ := f.teams.GetByID(ctx, teams[0].ID)
	if tm.CaptainID != first.ID {
		t.Errorf("captain id = %q, want %q", tm.CaptainID, first.ID)
	}
}

func TestJoinLeaderNeverBecomesCaptain(t *testing.T) {
	f := newFixture(t)
	teams := f.seedTeams(t)
	ctx := context.Background()

	leader := f.addUser(t, "leader", policy.RoleLeader)
	if err := f.service.Join(ctx, leader.ID, teams[0].ID); err != nil {
		t.Fatalf("Join: %v", err)
	}

	got, _ := f.users.GetByID(ctx, leader.ID)
	if got.Role != policy.RoleLeader {
		t.Errorf("leader role = %q, must stay leader", got.Role)
	}
	tm, _ := f.teams.GetByID(ctx, teams[0].ID)
	if tm.CaptainID != "" {
		t.Errorf("captainless squad expected, got %q", tm.CaptainID)
	}

	// The next non-leader joiner takes the captaincy.
	member := f.addUser(t, "member", policy.RoleMember)
	if err := f.service.Join(ctx, member.ID, teams[0].ID); err != nil {
		t.Fatalf("Join member: %v", err)
	}
	tm, _ = f.teams.GetByID(ctx, teams[0].ID)
	if tm.CaptainID != member.ID {
		t.Errorf("captain = %q, want %q", tm.CaptainID, member.ID)
	}
}

func TestJoinRejections(t *testing.T) {
	f := newFixture(t)
	teams := f.seedTeams(t)
	ctx := context.Background()

	outsider := &user.User{Name: "outsider", MicEnabled: true, SpeakerEnabled: true}
	f.users.Create(ctx, outsider)
	if err := f.service.Join(ctx, outsider.ID, teams[0].ID); err != ErrNotInRoom {
		t.Errorf("join outside room = %v, want ErrNotInRoom", err)
	}

	f.teams.SetEnabled(ctx, teams[1].ID, false)
	member := f.addUser(t, "member", policy.RoleMember)
	if err := f.service.Join(ctx, member.ID, teams[1].ID); err != ErrTeamDisabled {
		t.Errorf("join disabled team = %v, want ErrTeamDisabled", err)
	}

	for i := 0; i < DefaultMaxMembers; i++ {
		u := f.addUser(t, "filler", policy.RoleMember)
		if err := f.service.Join(ctx, u.ID, teams[2].ID); err != nil {
			t.Fatalf("filler join: %v", err)
		}
	}
	if err := f.service.Join(ctx, member.ID, teams[2].ID); err != ErrTeamFull {
		t.Errorf("join full team = %v, want ErrTeamFull", err)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	f := newFixture(t)
	teams := f.seedTeams(t)
	ctx := context.Background()

	u := f.addUser(t, "member", policy.RoleMember)
	if err := f.service.Join(ctx, u.ID, teams[0].ID); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := f.service.Join(ctx, u.ID, teams[0].ID); err != nil {
		t.Errorf("repeat Join should be a no-op, got %v", err)
	}
}

func TestJoinSwitchesTeams(t *testing.T) {
	f := newFixture(t)
	teams := f.seedTeams(t)
	ctx := context.Background()

	captain := f.addUser(t, "captain", policy.RoleMember)
	successor := f.addUser(t, "successor", policy.RoleMember)
	f.service.Join(ctx, captain.ID, teams[0].ID)
	f.service.Join(ctx, successor.ID, teams[0].ID)

	if err := f.service.Join(ctx, captain.ID, teams[1].ID); err != nil {
		t.Fatalf("switch: %v", err)
	}

	// Old squad's captaincy passed on; the mover is captain of the new one.
	oldTeam, _ := f.teams.GetByID(ctx, teams[0].ID)
	if oldTeam.CaptainID != successor.ID {
		t.Errorf("old squad captain = %q, want %q", oldTeam.CaptainID, successor.ID)
	}
	newTeam, _ := f.teams.GetByID(ctx, teams[1].ID)
	if newTeam.CaptainID != captain.ID {
		t.Errorf("new squad captain = %q, want %q", newTeam.CaptainID, captain.ID)
	}
	got, _ := f.users.GetByID(ctx, successor.ID)
	if got.Role != policy.RoleCaptain {
		t.Errorf("successor role = %q, want captain", got.Role)
	}
}

func TestLeaveCaptainSuccession(t *testing.T) {
	f := newFixture(t)
	teams := f.seedTeams(t)
	ctx := context.Background()

	captain := f.addUser(t, "captain", policy.RoleMember)
	member := f.addUser(t, "member", policy.RoleMember)
	f.service.Join(ctx, captain.ID, teams[0].ID)
	f.service.Join(ctx, member.ID, teams[0].ID)

	if err := f.service.Leave(ctx, captain.ID); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	got, _ := f.users.GetByID(ctx, captain.ID)
	if got.TeamID != "" || got.Role != policy.RoleMember {
		t.Errorf("departed captain should be a teamless member, got %+v", got)
	}
	tm, _ := f.teams.GetByID(ctx, teams[0].ID)
	if tm.CaptainID != member.ID {
		t.Errorf("captaincy should pass to %q, got %q", member.ID, tm.CaptainID)
	}
	got, _ = f.users.GetByID(ctx, member.ID)
	if got.Role != policy.RoleCaptain {
		t.Errorf("successor role = %q, want captain", got.Role)
	}
}

func TestLeaveLastMemberClearsCaptaincy(t *testing.T) {
	f := newFixture(t)
	teams := f.seedTeams(t)
	ctx := context.Background()

	captain := f.addUser(t, "captain", policy.RoleMember)
	f.service.Join(ctx, captain.ID, teams[0].ID)

	if err := f.service.Leave(ctx, captain.ID); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	tm, _ := f.teams.GetByID(ctx, teams[0].ID)
	if tm.CaptainID != "" {
		t.Errorf("empty squad keeps no captain, got %q", tm.CaptainID)
	}
}

func TestLeaveWithoutTeamIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u := f.addUser(t, "drifter", policy.RoleMember)
	if err := f.service.Leave(ctx, u.ID); err != nil {
		t.Errorf("Leave without a team should be a no-op, got %v", err)
	}
}

func TestSetCaptainSwap(t *testing.T) {
	f := newFixture(t)
	teams := f.seedTeams(t)
	ctx := context.Background()

	captain := f.addUser(t, "captain", policy.RoleMember)
	member := f.addUser(t, "member", policy.RoleMember)
	f.service.Join(ctx, captain.ID, teams[0].ID)
	f.service.Join(ctx, member.ID, teams[0].ID)

	if err := f.service.SetCaptain(ctx, teams[0].ID, member.ID); err != nil {
		t.Fatalf("SetCaptain: %v", err)
	}

	gotOld, _ := f.users.GetByID(ctx, captain.ID)
	if gotOld.Role != policy.RoleMember {
		t.Errorf("old captain role = %q, want member", gotOld.Role)
	}
	gotNew, _ := f.users.GetByID(ctx, member.ID)
	if gotNew.Role != policy.RoleCaptain {
		t.Errorf("new captain role = %q, want captain", gotNew.Role)
	}
	tm, _ := f.teams.GetByID(ctx, teams[0].ID)
	if tm.CaptainID != member.ID {
		t.Errorf("team captain = %q, want %q", tm.CaptainID, member.ID)
	}
}

func TestSetCaptainRejections(t *testing.T) {
	f := newFixture(t)
	teams := f.seedTeams(t)
	ctx := context.Background()

	leader := f.addUser(t, "leader", policy.RoleLeader)
	f.service.Join(ctx, leader.ID, teams[0].ID)

	drifter := f.addUser(t, "drifter", policy.RoleMember)

	if err := f.service.SetCaptain(ctx, teams[0].ID, drifter.ID); err != ErrNotOnTeam {
		t.Errorf("off-team target = %v, want ErrNotOnTeam", err)
	}
	if err := f.service.SetCaptain(ctx, teams[0].ID, leader.ID); err != ErrLeaderCaptain {
		t.Errorf("leader target = %v, want ErrLeaderCaptain", err)
	}
}

func TestSetCaptainIdempotent(t *testing.T) {
	f := newFixture(t)
	teams := f.seedTeams(t)
	ctx := context.Background()

	captain := f.addUser(t, "captain", policy.RoleMember)
	f.service.Join(ctx, captain.ID, teams[0].ID)

	if err := f.service.SetCaptain(ctx, teams[0].ID, captain.ID); err != nil {
		t.Errorf("re-appointing the captain should be a no-op, got %v", err)
	}
	got, _ := f.users.GetByID(ctx, captain.ID)
	if got.Role != policy.RoleCaptain {
		t.Errorf("captain role = %q, want captain", got.Role)
	}
}
