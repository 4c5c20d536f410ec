package sfu

import (
	"context"
	"testing"

	"github.com/squadlink/voice-backend/internal/policy"
)

// assaultRoom builds a mid-mission room: leader on no team, a captain and
// member per team, one unassigned straggler. Everyone has mic and speaker on.
func assaultRoom(id string) policy.RoomSnapshot {
	return policy.RoomSnapshot{
		ID:       id,
		Status:   policy.StatusAssaulting,
		LeaderID: "leader",
		Users: []policy.UserSnapshot{
			{ID: "leader", Role: policy.RoleLeader, MicEnabled: true, SpeakerEnabled: true},
			{ID: "cap-red", TeamID: "red", Role: policy.RoleCaptain, MicEnabled: true, SpeakerEnabled: true},
			{ID: "mem-red", TeamID: "red", Role: policy.RoleMember, MicEnabled: true, SpeakerEnabled: true},
			{ID: "cap-blue", TeamID: "blue", Role: policy.RoleCaptain, MicEnabled: true, SpeakerEnabled: true},
			{ID: "mem-blue", TeamID: "blue", Role: policy.RoleMember, MicEnabled: true, SpeakerEnabled: true},
			{ID: "loner", Role: policy.RoleNone, MicEnabled: true, SpeakerEnabled: true},
		},
	}
}

type reconcilerFixture struct {
	registry   *Registry
	snapshots  *fakeSnapshots
	reconciler *Reconciler
}

// newReconcilerFixture wires a registry, server-enforced strategy and
// reconciler, then produces and fully cross-subscribes every user in snap.
func newReconcilerFixture(t *testing.T, snap policy.RoomSnapshot) *reconcilerFixture {
	t.Helper()

	registry := newTestRegistry(t)
	snapshots := newFakeSnapshots()
	snapshots.set(snap)

	rec := NewReconciler(snapshots, registry, policy.NewEngine(true), NewServerEnforced(registry), testLogger())

	for _, u := range snap.Users {
		produceFor(t, registry, snap.ID, u.ID)
	}
	for _, listener := range snap.Users {
		for _, speaker := range snap.Users {
			if listener.ID == speaker.ID {
				continue
			}
			consumeFor(t, registry, snap.ID, listener.ID, speaker.ID)
		}
	}

	return &reconcilerFixture{registry: registry, snapshots: snapshots, reconciler: rec}
}

func (f *reconcilerFixture) consumer(t *testing.T, roomID, listenerID, speakerID string) *fakeConsumer {
	t.Helper()
	producer, ok := f.registry.ProducerFor(roomID, speakerID)
	if !ok {
		t.Fatalf("no producer for %s", speakerID)
	}
	c, ok := f.registry.ConsumerFor(roomID, listenerID, producer.ID())
	if !ok {
		t.Fatalf("no consumer %s -> %s", listenerID, speakerID)
	}
	return c.(*fakeConsumer)
}

func TestReconcileAppliesAssaultPolicy(t *testing.T) {
	snap := assaultRoom("room1")
	f := newReconcilerFixture(t, snap)

	if err := f.reconciler.Reconcile(context.Background(), "room1"); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	cases := []struct {
		listener, speaker string
		hear              bool
	}{
		{"leader", "cap-red", true},
		{"cap-red", "leader", true},
		{"cap-red", "cap-blue", true},
		{"cap-red", "mem-red", true},
		{"mem-red", "cap-red", true},
		{"mem-red", "mem-blue", false},
		{"mem-red", "leader", false},
		{"leader", "mem-red", false},
		{"loner", "mem-red", false},
		{"mem-red", "loner", false},
	}
	for _, tc := range cases {
		c := f.consumer(t, "room1", tc.listener, tc.speaker)
		if got := !c.Paused(); got != tc.hear {
			t.Errorf("%s hears %s = %v, want %v", tc.listener, tc.speaker, got, tc.hear)
		}
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	snap := assaultRoom("room1")
	f := newReconcilerFixture(t, snap)

	if err := f.reconciler.Reconcile(context.Background(), "room1"); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	before := map[string]int64{}
	for _, listener := range snap.Users {
		for _, speaker := range snap.Users {
			if listener.ID == speaker.ID {
				continue
			}
			c := f.consumer(t, "room1", listener.ID, speaker.ID)
			before[listener.ID+"/"+speaker.ID] = c.transitions.Load()
		}
	}

	if err := f.reconciler.Reconcile(context.Background(), "room1"); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	for _, listener := range snap.Users {
		for _, speaker := range snap.Users {
			if listener.ID == speaker.ID {
				continue
			}
			c := f.consumer(t, "room1", listener.ID, speaker.ID)
			if got := c.transitions.Load(); got != before[listener.ID+"/"+speaker.ID] {
				t.Errorf("%s -> %s transitioned on a no-change pass", listener.ID, speaker.ID)
			}
		}
	}
}

func TestReconcileStatusFlipRetunesRoom(t *testing.T) {
	snap := assaultRoom("room1")
	snap.Status = policy.StatusPreparing
	f := newReconcilerFixture(t, snap)

	if err := f.reconciler.Reconcile(context.Background(), "room1"); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if f.consumer(t, "room1", "mem-red", "mem-blue").Paused() {
		t.Fatal("preparing rooms are a free-for-all")
	}

	snap.Status = policy.StatusAssaulting
	f.snapshots.set(snap)
	if err := f.reconciler.Reconcile(context.Background(), "room1"); err != nil {
		t.Fatalf("Reconcile after flip: %v", err)
	}
	if !f.consumer(t, "room1", "mem-red", "mem-blue").Paused() {
		t.Error("cross-team member audio must stop when the assault starts")
	}
	if f.consumer(t, "room1", "mem-red", "cap-red").Paused() {
		t.Error("own-captain audio must keep flowing")
	}
}

func TestReconcileForceCallOpensEverything(t *testing.T) {
	snap := assaultRoom("room1")
	snap.ForceCall = true
	f := newReconcilerFixture(t, snap)

	if err := f.reconciler.Reconcile(context.Background(), "room1"); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	for _, listener := range snap.Users {
		for _, speaker := range snap.Users {
			if listener.ID == speaker.ID {
				continue
			}
			if f.consumer(t, "room1", listener.ID, speaker.ID).Paused() {
				t.Errorf("force-call must open %s -> %s", speaker.ID, listener.ID)
			}
		}
	}
}

func TestReconcileMutedSpeakerStaysSilent(t *testing.T) {
	snap := assaultRoom("room1")
	for i := range snap.Users {
		if snap.Users[i].ID == "cap-red" {
			snap.Users[i].MicEnabled = false
		}
	}
	f := newReconcilerFixture(t, snap)

	if err := f.reconciler.Reconcile(context.Background(), "room1"); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if !f.consumer(t, "room1", "mem-red", "cap-red").Paused() {
		t.Error("a muted mic must silence the speaker even for allowed pairs")
	}
	if !f.consumer(t, "room1", "leader", "cap-red").Paused() {
		t.Error("a muted captain must not reach the leader")
	}
}

func TestReconcileMissingRoomIsNoop(t *testing.T) {
	registry := newTestRegistry(t)
	rec := NewReconciler(newFakeSnapshots(), registry, policy.NewEngine(true), NewServerEnforced(registry), testLogger())

	if err := rec.Reconcile(context.Background(), "gone"); err != nil {
		t.Errorf("deleted room should reconcile to a no-op, got %v", err)
	}
}

func TestReconcileSkipsSpeakersWithoutProducer(t *testing.T) {
	snap := assaultRoom("room1")
	registry := newTestRegistry(t)
	snapshots := newFakeSnapshots()
	snapshots.set(snap)
	rec := NewReconciler(snapshots, registry, policy.NewEngine(true), NewServerEnforced(registry), testLogger())

	// Only one user ever produced.
	produceFor(t, registry, "room1", "cap-red")

	if err := rec.Reconcile(context.Background(), "room1"); err != nil {
		t.Errorf("silent users must not fail the pass: %v", err)
	}
}

func TestClientEnforcedSendsListenLists(t *testing.T) {
	snap := assaultRoom("room1")
	notifier := &fakeRoutingNotifier{}
	strategy := NewClientEnforced(notifier, testLogger())

	decisions := []PairDecision{
		{Listener: mustUser(snap, "mem-red"), Speaker: mustUser(snap, "cap-red"), ProducerID: "p1", Allowed: true},
		{Listener: mustUser(snap, "mem-red"), Speaker: mustUser(snap, "mem-blue"), ProducerID: "p2", Allowed: false},
		{Listener: mustUser(snap, "cap-red"), Speaker: mustUser(snap, "mem-red"), ProducerID: "p3", Allowed: true},
	}
	if err := strategy.Apply(context.Background(), snap, decisions); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	updates := notifier.take()
	if len(updates) != len(snap.Users) {
		t.Fatalf("every user gets a first-pass update, got %d of %d", len(updates), len(snap.Users))
	}
	byUser := map[string][]string{}
	for _, u := range updates {
		byUser[u.userID] = u.speakers
	}
	if got := byUser["mem-red"]; len(got) != 1 || got[0] != "cap-red" {
		t.Errorf("mem-red listen list = %v, want [cap-red]", got)
	}
	if got, ok := byUser["loner"]; !ok || got == nil || len(got) != 0 {
		t.Errorf("isolated users get an explicit empty list, got %v", got)
	}
}

func TestClientEnforcedSkipsUnchangedLists(t *testing.T) {
	snap := assaultRoom("room1")
	notifier := &fakeRoutingNotifier{}
	strategy := NewClientEnforced(notifier, testLogger())

	decisions := []PairDecision{
		{Listener: mustUser(snap, "mem-red"), Speaker: mustUser(snap, "cap-red"), ProducerID: "p1", Allowed: true},
	}
	if err := strategy.Apply(context.Background(), snap, decisions); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	notifier.take()

	if err := strategy.Apply(context.Background(), snap, decisions); err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if updates := notifier.take(); len(updates) != 0 {
		t.Errorf("unchanged lists must not be resent, got %v", updates)
	}

	// A changed verdict reaches only the affected listener.
	decisions[0].Allowed = false
	if err := strategy.Apply(context.Background(), snap, decisions); err != nil {
		t.Fatalf("third Apply: %v", err)
	}
	updates := notifier.take()
	if len(updates) != 1 || updates[0].userID != "mem-red" {
		t.Errorf("only the changed listener should be pushed, got %v", updates)
	}
}

func TestClientEnforcedForgetResendsAfterTeardown(t *testing.T) {
	snap := assaultRoom("room1")
	notifier := &fakeRoutingNotifier{}
	strategy := NewClientEnforced(notifier, testLogger())

	if err := strategy.Apply(context.Background(), snap, nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	notifier.take()

	strategy.Forget("room1")

	if err := strategy.Apply(context.Background(), snap, nil); err != nil {
		t.Fatalf("Apply after Forget: %v", err)
	}
	if updates := notifier.take(); len(updates) != len(snap.Users) {
		t.Errorf("a recreated room starts with a full push, got %d updates", len(updates))
	}
}

func mustUser(snap policy.RoomSnapshot, id string) policy.UserSnapshot {
	u, ok := snap.User(id)
	if !ok {
		panic("unknown test user " + id)
	}
	return u
}
