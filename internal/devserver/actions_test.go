package devserver

import (
	"testing"

	"github.com/louisbranch/initiative.watch/internal/devserver/dice"
	"github.com/louisbranch/initiative.watch/internal/gateway"
	"github.com/louisbranch/initiative.watch/internal/platform/errors"
	"github.com/louisbranch/initiative.watch/internal/session"
	"github.com/louisbranch/initiative.watch/internal/session/event"
)

func intptr(v int) *int { return &v }

func engineState() session.Model {
	return session.Model{
		ID:   "s1",
		Name: "Goblin Ambush",
		Roster: []session.RosterEntry{
			{ID: "c1", Kind: session.KindCharacter, Name: "Aramil", HP: session.HitPoints{Current: 20, Max: 20}, Initiative: intptr(15)},
			{ID: "c2", Kind: session.KindCharacter, Name: "Bruenor", HP: session.HitPoints{Current: 18, Max: 18}, Initiative: intptr(10)},
			{ID: "m1", Kind: session.KindMonster, Name: "Goblin", HP: session.HitPoints{Current: 7, Max: 7}, Initiative: intptr(12)},
		},
	}
}

func TestApplySetHPClamps(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  int
	}{
		{"below zero", -5, 0},
		{"within range", 12, 12},
		{"above max", 99, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := applyAction(engineState(), gateway.ActionSetHP, map[string]any{
				"characterId": "c1",
				"currentHp":   tt.value,
			})
			if err != nil {
				t.Fatalf("apply set-hp: %v", err)
			}
			entry, _ := outcome.state.Entry("c1")
			if entry.HP.Current != tt.want {
				t.Errorf("current hp = %d, want %d", entry.HP.Current, tt.want)
			}
			if outcome.result["currentHp"] != tt.want {
				t.Errorf("result currentHp = %v, want %d", outcome.result["currentHp"], tt.want)
			}
			if len(outcome.events) != 1 || outcome.events[0].Type != event.TypeHPChanged {
				t.Errorf("events = %+v, want one hp_changed", outcome.events)
			}
		})
	}
}

func TestApplySetHPTempRaisesCeiling(t *testing.T) {
	outcome, err := applyAction(engineState(), gateway.ActionSetHP, map[string]any{
		"characterId": "c1",
		"currentHp":   float64(25),
		"tempHp":      float64(5),
	})
	if err != nil {
		t.Fatalf("apply set-hp: %v", err)
	}
	entry, _ := outcome.state.Entry("c1")
	if entry.HP.Current != 25 || entry.HP.Temp != 5 {
		t.Fatalf("hp = %+v, want current 25 temp 5", entry.HP)
	}
}

func TestApplySetHPErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    errors.Code
	}{
		{"missing character", map[string]any{"currentHp": float64(5)}, errors.CodeActionInvalid},
		{"unknown character", map[string]any{"characterId": "ghost", "currentHp": float64(5)}, errors.CodeActorNotFound},
		{"missing hp", map[string]any{"characterId": "c1"}, errors.CodeInvalidHP},
		{"fractional hp", map[string]any{"characterId": "c1", "currentHp": 5.5}, errors.CodeInvalidHP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := applyAction(engineState(), gateway.ActionSetHP, tt.payload)
			if errors.CodeOf(err) != tt.want {
				t.Errorf("code = %v, want %v", errors.CodeOf(err), tt.want)
			}
		})
	}
}

func TestApplySetInitiativeRespectsLock(t *testing.T) {
	state := engineState()
	state.Flags.InitiativeLocked = true

	_, err := applyAction(state, gateway.ActionSetInitiative, map[string]any{
		"characterId": "c1",
		"initiative":  float64(18),
	})
	if errors.CodeOf(err) != errors.CodeInitiativeLocked {
		t.Fatalf("code = %v, want INITIATIVE_LOCKED", errors.CodeOf(err))
	}
}

func TestApplyRollInitiativeScopes(t *testing.T) {
	outcome, err := applyAction(engineState(), gateway.ActionRollInitiative, map[string]any{
		"scope": gateway.RollScopeMonsters,
		"seed":  float64(7),
	})
	if err != nil {
		t.Fatalf("apply roll-initiative: %v", err)
	}

	want := dice.RollInitiative(dice.InitiativeRequest{Seed: 7}).Total
	goblin, _ := outcome.state.Entry("m1")
	if goblin.Initiative == nil || *goblin.Initiative != want {
		t.Errorf("goblin initiative = %v, want %d", goblin.Initiative, want)
	}
	// Characters keep their values under the monsters scope.
	aramil, _ := outcome.state.Entry("c1")
	if aramil.Initiative == nil || *aramil.Initiative != 15 {
		t.Errorf("aramil initiative = %v, want 15", aramil.Initiative)
	}
	if len(outcome.events) != 1 || outcome.events[0].Type != event.TypeInitiativeRolled {
		t.Errorf("events = %+v, want one initiative.rolled", outcome.events)
	}
}

func TestApplyRollInitiativeSelfRequiresCharacter(t *testing.T) {
	_, err := applyAction(engineState(), gateway.ActionRollInitiative, map[string]any{
		"scope": gateway.RollScopeSelf,
	})
	if errors.CodeOf(err) != errors.CodeActionInvalid {
		t.Fatalf("code = %v, want ACTION_INVALID", errors.CodeOf(err))
	}
}

func TestApplyRollInitiativeRejectsUnknownScope(t *testing.T) {
	_, err := applyAction(engineState(), gateway.ActionRollInitiative, map[string]any{
		"scope": "everyone",
	})
	if errors.CodeOf(err) != errors.CodeInvalidRollScope {
		t.Fatalf("code = %v, want INVALID_ROLL_SCOPE", errors.CodeOf(err))
	}
}

func TestApplyStartEncounter(t *testing.T) {
	outcome, err := applyAction(engineState(), gateway.ActionStartEncounter, nil)
	if err != nil {
		t.Fatalf("apply start-encounter: %v", err)
	}
	flags := outcome.state.Flags
	if !flags.EncounterActive || flags.CombatRound != 1 {
		t.Fatalf("flags = %+v, want active round 1", flags)
	}
	// Highest initiative goes first.
	if flags.ActiveTurnActorID != "c1" {
		t.Fatalf("active turn = %q, want c1", flags.ActiveTurnActorID)
	}

	_, err = applyAction(outcome.state, gateway.ActionStartEncounter, nil)
	if errors.CodeOf(err) != errors.CodeEncounterActive {
		t.Fatalf("restart code = %v, want ENCOUNTER_ACTIVE", errors.CodeOf(err))
	}
}

func TestApplyStartEncounterNeedsInitiative(t *testing.T) {
	state := engineState()
	for i := range state.Roster {
		state.Roster[i].Initiative = nil
	}
	_, err := applyAction(state, gateway.ActionStartEncounter, nil)
	if errors.CodeOf(err) != errors.CodeActionInvalid {
		t.Fatalf("code = %v, want ACTION_INVALID", errors.CodeOf(err))
	}
}

func TestApplyAdvanceEncounterFollowsInitiativeOrder(t *testing.T) {
	state := engineState()
	state.Flags.EncounterActive = true
	state.Flags.CombatRound = 1
	state.Flags.ActiveTurnActorID = "c1"

	outcome, err := applyAction(state, gateway.ActionAdvanceEncounter, nil)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	// Order by initiative: c1 (15), m1 (12), c2 (10).
	if outcome.state.Flags.ActiveTurnActorID != "m1" {
		t.Fatalf("active turn = %q, want m1", outcome.state.Flags.ActiveTurnActorID)
	}
	if outcome.state.Flags.CombatRound != 1 {
		t.Fatalf("round = %d, want 1", outcome.state.Flags.CombatRound)
	}
}

func TestApplyAdvanceEncounterWrapTicksEffects(t *testing.T) {
	state := engineState()
	state.Flags.EncounterActive = true
	state.Flags.CombatRound = 1
	state.Flags.ActiveTurnActorID = "c2" // last in initiative order
	state.Roster[0].Effects = []session.StatusEffect{
		{ID: "f1", EntityID: "c1", Type: "blessed", Rounds: intptr(1)},
		{ID: "f2", EntityID: "c1", Type: "poisoned", Rounds: intptr(3)},
		{ID: "f3", EntityID: "c1", Type: "cursed"},
	}
	state.Roster[0].EffectCount = 3

	outcome, err := applyAction(state, gateway.ActionAdvanceEncounter, nil)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if outcome.state.Flags.CombatRound != 2 {
		t.Fatalf("round = %d, want 2", outcome.state.Flags.CombatRound)
	}
	if outcome.state.Flags.ActiveTurnActorID != "c1" {
		t.Fatalf("active turn = %q, want c1", outcome.state.Flags.ActiveTurnActorID)
	}

	aramil, _ := outcome.state.Entry("c1")
	if len(aramil.Effects) != 2 || aramil.EffectCount != 2 {
		t.Fatalf("effects = %+v, want blessed expired", aramil.Effects)
	}
	if remaining := aramil.Effects[0]; remaining.ID != "f2" || *remaining.Rounds != 2 {
		t.Fatalf("poisoned = %+v, want 2 rounds left", remaining)
	}
	// Effects without a round count never expire.
	if aramil.Effects[1].ID != "f3" {
		t.Fatalf("effects = %+v, want cursed retained", aramil.Effects)
	}

	var expired int
	for _, evt := range outcome.events {
		if evt.Type == event.TypeEffectExpired {
			expired++
			if evt.Payload["effectId"] != "f1" {
				t.Errorf("expired effectId = %v, want f1", evt.Payload["effectId"])
			}
		}
	}
	if expired != 1 {
		t.Fatalf("expired events = %d, want 1", expired)
	}
}

func TestApplyEndEncounter(t *testing.T) {
	_, err := applyAction(engineState(), gateway.ActionEndEncounter, nil)
	if errors.CodeOf(err) != errors.CodeEncounterInactive {
		t.Fatalf("code = %v, want ENCOUNTER_INACTIVE", errors.CodeOf(err))
	}

	state := engineState()
	state.Flags.EncounterActive = true
	state.Flags.CombatRound = 3
	state.Flags.ActiveTurnActorID = "c1"
	outcome, err := applyAction(state, gateway.ActionEndEncounter, nil)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	flags := outcome.state.Flags
	if flags.EncounterActive || flags.CombatRound != 0 || flags.ActiveTurnActorID != "" {
		t.Fatalf("flags = %+v, want cleared", flags)
	}
}

func TestApplyAndRemoveEffect(t *testing.T) {
	outcome, err := applyAction(engineState(), gateway.ActionApplyEffect, map[string]any{
		"characterId": "m1",
		"type":        "stunned",
		"rounds":      float64(2),
	})
	if err != nil {
		t.Fatalf("apply effect: %v", err)
	}
	goblin, _ := outcome.state.Entry("m1")
	if len(goblin.Effects) != 1 || goblin.EffectCount != 1 {
		t.Fatalf("effects = %+v, want one", goblin.Effects)
	}
	effectID, _ := outcome.result["effectId"].(string)
	if effectID == "" {
		t.Fatal("expected generated effect id in result")
	}

	removed, err := applyAction(outcome.state, gateway.ActionRemoveEffect, map[string]any{
		"effectId": effectID,
	})
	if err != nil {
		t.Fatalf("remove effect: %v", err)
	}
	goblin, _ = removed.state.Entry("m1")
	if len(goblin.Effects) != 0 || goblin.EffectCount != 0 {
		t.Fatalf("effects = %+v, want none", goblin.Effects)
	}

	_, err = applyAction(removed.state, gateway.ActionRemoveEffect, map[string]any{
		"effectId": effectID,
	})
	if errors.CodeOf(err) != errors.CodeEffectNotFound {
		t.Fatalf("code = %v, want EFFECT_NOT_FOUND", errors.CodeOf(err))
	}
}

func TestApplyActionRejectsUnknownType(t *testing.T) {
	_, err := applyAction(engineState(), gateway.ActionType("fireball"), nil)
	if errors.CodeOf(err) != errors.CodeActionUnknown {
		t.Fatalf("code = %v, want ACTION_UNKNOWN", errors.CodeOf(err))
	}
}

func TestApplyActionDoesNotMutateInput(t *testing.T) {
	state := engineState()
	if _, err := applyAction(state, gateway.ActionSetHP, map[string]any{
		"characterId": "c1",
		"currentHp":   float64(1),
	}); err != nil {
		t.Fatalf("apply set-hp: %v", err)
	}
	entry, _ := state.Entry("c1")
	if entry.HP.Current != 20 {
		t.Fatalf("input state mutated: hp = %d", entry.HP.Current)
	}
}
