package session

import (
	"testing"
	"time"

	"github.com/louisbranch/initiative.watch/internal/session/event"
)

func intptr(v int) *int { return &v }

func testModel() Model {
	return Model{
		ID:       "s1",
		Name:     "Sunless Citadel",
		JoinCode: "XK39",
		Flags:    Flags{GMPresent: true},
		Roster: []RosterEntry{
			{
				ID:   "c1",
				Kind: KindCharacter,
				Name: "Aramil",
				HP:   HitPoints{Current: 20, Max: 20},
			},
			{
				ID:         "c2",
				Kind:       KindCharacter,
				Name:       "Bruenor",
				HP:         HitPoints{Current: 15, Max: 15},
				Initiative: intptr(12),
				Effects: []StatusEffect{
					{ID: "f1", EntityID: "c2", Type: "blessed", Rounds: intptr(3)},
				},
				EffectCount: 1,
			},
		},
		Events: []event.Event{
			{ID: "e1", Seq: "10", Type: event.TypeSessionCreated, CreatedAt: time.Unix(100, 0)},
		},
	}
}

func TestApplyRosterSummaryHydrationScenario(t *testing.T) {
	model := testModel()
	summary := RosterSummary{
		Flags: Flags{GMPresent: true},
		Entries: []RosterEntry{
			{ID: "c1", Kind: KindCharacter, Name: "Aramil", HP: HitPoints{Current: 18, Max: 20}, Initiative: intptr(15)},
			{ID: "c2", Kind: KindCharacter, Name: "Bruenor", HP: HitPoints{Current: 15, Max: 15}, Initiative: intptr(12)},
		},
	}

	got := ApplyRosterSummary(model, summary)

	a, ok := got.Entry("c1")
	if !ok {
		t.Fatal("expected entry c1")
	}
	if a.HP.Current != 18 || a.HP.Max != 20 {
		t.Errorf("c1 hp = %d/%d, want 18/20", a.HP.Current, a.HP.Max)
	}
	if a.Initiative == nil || *a.Initiative != 15 {
		t.Errorf("c1 initiative = %v, want 15", a.Initiative)
	}
	b, _ := got.Entry("c2")
	if b.HP.Current != 15 || b.Initiative == nil || *b.Initiative != 12 {
		t.Errorf("c2 changed unexpectedly: hp %d initiative %v", b.HP.Current, b.Initiative)
	}
}

func TestApplyRosterSummaryPreservesEventLog(t *testing.T) {
	model := testModel()
	got := ApplyRosterSummary(model, RosterSummary{Entries: nil})
	if len(got.Events) != 1 || got.Events[0].ID != "e1" {
		t.Fatalf("event log changed: %v", got.Events)
	}
}

func TestApplyRosterSummaryAuthoritativeForMembership(t *testing.T) {
	model := testModel()
	summary := RosterSummary{
		Entries: []RosterEntry{
			{ID: "m1", Kind: KindMonster, Name: "Goblin", HP: HitPoints{Current: 7, Max: 7}},
			{ID: "c2", Kind: KindCharacter, Name: "Bruenor", HP: HitPoints{Current: 15, Max: 15}},
		},
	}

	got := ApplyRosterSummary(model, summary)

	if len(got.Roster) != 2 {
		t.Fatalf("expected 2 roster entries, got %d", len(got.Roster))
	}
	// Order is reconstructed from the summary, and c1 is dropped.
	if got.Roster[0].ID != "m1" || got.Roster[1].ID != "c2" {
		t.Errorf("roster order = %s,%s, want m1,c2", got.Roster[0].ID, got.Roster[1].ID)
	}
	if _, ok := got.Entry("c1"); ok {
		t.Error("expected c1 to be dropped")
	}
}

func TestApplyRosterSummaryIdempotent(t *testing.T) {
	model := testModel()
	summary := RosterSummary{
		Flags:   Flags{EncounterActive: true, CombatRound: 2},
		Entries: []RosterEntry{{ID: "c1", Kind: KindCharacter, Name: "Aramil", HP: HitPoints{Current: 9, Max: 20}}},
	}

	once := ApplyRosterSummary(model, summary)
	twice := ApplyRosterSummary(once, summary)

	if len(once.Roster) != len(twice.Roster) || once.Flags != twice.Flags {
		t.Fatal("second apply changed the model")
	}
	a1, _ := once.Entry("c1")
	a2, _ := twice.Entry("c1")
	if a1.HP != a2.HP {
		t.Fatalf("second apply changed hp: %v vs %v", a1.HP, a2.HP)
	}
}

func TestApplyCombatSnapshotPartialFields(t *testing.T) {
	model := testModel()
	snapshot := CombatSnapshot{
		Flags: Flags{EncounterActive: true, CombatRound: 1, ActiveTurnActorID: "c2", GMPresent: true},
		Actors: []CombatActorDelta{
			{ID: "c2", Kind: KindCharacter, CurrentHP: intptr(11)},
		},
	}

	got := ApplyCombatSnapshot(model, snapshot)

	b, _ := got.Entry("c2")
	if b.HP.Current != 11 {
		t.Errorf("c2 hp = %d, want 11", b.HP.Current)
	}
	if b.HP.Max != 15 {
		t.Errorf("c2 max hp = %d, want unchanged 15", b.HP.Max)
	}
	if b.Name != "Bruenor" {
		t.Errorf("c2 name = %q, want unchanged", b.Name)
	}
	if len(b.Effects) != 1 || b.Effects[0].ID != "f1" {
		t.Errorf("c2 effects destroyed: %v", b.Effects)
	}
	if b.Initiative == nil || *b.Initiative != 12 {
		t.Errorf("c2 initiative = %v, want unchanged 12", b.Initiative)
	}
	if !got.Flags.EncounterActive || got.Flags.CombatRound != 1 || got.Flags.ActiveTurnActorID != "c2" {
		t.Errorf("flags not applied: %+v", got.Flags)
	}
}

func TestApplyCombatSnapshotSkipsUnknownActors(t *testing.T) {
	model := testModel()
	snapshot := CombatSnapshot{
		Actors: []CombatActorDelta{
			{ID: "m9", Kind: KindMonster, CurrentHP: intptr(4)},
		},
	}

	got := ApplyCombatSnapshot(model, snapshot)

	if len(got.Roster) != 2 {
		t.Fatalf("expected roster unchanged, got %d entries", len(got.Roster))
	}
	if _, ok := got.Entry("m9"); ok {
		t.Error("expected unknown actor to be skipped")
	}
}

func TestApplyCombatSnapshotIdempotent(t *testing.T) {
	model := testModel()
	snapshot := CombatSnapshot{
		Flags: Flags{EncounterActive: true, CombatRound: 3},
		Actors: []CombatActorDelta{
			{ID: "c1", Kind: KindCharacter, CurrentHP: intptr(5), Initiative: intptr(18), EffectCount: intptr(2)},
		},
	}

	once := ApplyCombatSnapshot(model, snapshot)
	twice := ApplyCombatSnapshot(once, snapshot)

	a1, _ := once.Entry("c1")
	a2, _ := twice.Entry("c1")
	if a1.HP != a2.HP || *a1.Initiative != *a2.Initiative || a1.EffectCount != a2.EffectCount {
		t.Fatal("second apply changed the entry")
	}
}

func TestApplyCombatSnapshotDoesNotMutateInput(t *testing.T) {
	model := testModel()
	snapshot := CombatSnapshot{
		Actors: []CombatActorDelta{{ID: "c1", CurrentHP: intptr(1)}},
	}

	_ = ApplyCombatSnapshot(model, snapshot)

	a, _ := model.Entry("c1")
	if a.HP.Current != 20 {
		t.Fatalf("input model mutated: hp %d", a.HP.Current)
	}
}

func TestCloneIsDeep(t *testing.T) {
	model := testModel()
	clone := model.Clone()

	clone.Roster[1].Effects[0].Type = "cursed"
	clone.Roster[1].HP.Current = 1
	*clone.Roster[1].Initiative = 99

	b, _ := model.Entry("c2")
	if b.Effects[0].Type != "blessed" {
		t.Error("clone shares effects slice with original")
	}
	if b.HP.Current != 15 {
		t.Error("clone shares hp with original")
	}
	if *b.Initiative != 12 {
		t.Error("clone shares initiative pointer with original")
	}
}

func TestKindIsValid(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindCharacter, true},
		{KindMonster, true},
		{Kind(""), false},
		{Kind("npc"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.IsValid(); got != tt.want {
				t.Errorf("Kind(%q).IsValid() = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}
