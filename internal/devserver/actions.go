package devserver

import (
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/louisbranch/initiative.watch/internal/devserver/dice"
	"github.com/louisbranch/initiative.watch/internal/devserver/random"
	"github.com/louisbranch/initiative.watch/internal/gateway"
	"github.com/louisbranch/initiative.watch/internal/platform/errors"
	"github.com/louisbranch/initiative.watch/internal/platform/id"
	"github.com/louisbranch/initiative.watch/internal/session"
	"github.com/louisbranch/initiative.watch/internal/session/event"
)

// actionOutcome is the engine's answer to one applied action: the new state,
// the result payload echoed to the caller, and the journal events to append.
type actionOutcome struct {
	state  session.Model
	result map[string]any
	events []event.Event
}

// applyAction executes one mutating action against a copy of the session
// state. It never touches storage; the caller persists the outcome. undo-last
// is resolved by the caller because it needs the undo stack.
func applyAction(state session.Model, actionType gateway.ActionType, payload map[string]any) (actionOutcome, error) {
	state = state.Clone()

	switch actionType {
	case gateway.ActionSetHP:
		return applySetHP(state, payload)
	case gateway.ActionSetInitiative:
		return applySetInitiative(state, payload)
	case gateway.ActionRollInitiative:
		return applyRollInitiative(state, payload)
	case gateway.ActionLockInitiative:
		return applyLockInitiative(state, true)
	case gateway.ActionUnlockInitiative:
		return applyLockInitiative(state, false)
	case gateway.ActionResetInitiative:
		return applyResetInitiative(state)
	case gateway.ActionStartEncounter:
		return applyStartEncounter(state)
	case gateway.ActionAdvanceEncounter:
		return applyAdvanceEncounter(state)
	case gateway.ActionEndEncounter:
		return applyEndEncounter(state)
	case gateway.ActionApplyEffect:
		return applyApplyEffect(state, payload)
	case gateway.ActionRemoveEffect:
		return applyRemoveEffect(state, payload)
	default:
		return actionOutcome{}, errors.WithMetadata(errors.CodeActionUnknown, "unknown action type", map[string]string{
			"action_type": string(actionType),
		})
	}
}

func applySetHP(state session.Model, payload map[string]any) (actionOutcome, error) {
	entry, idx, err := targetEntry(state, payload)
	if err != nil {
		return actionOutcome{}, err
	}
	value, ok := payloadInt(payload, "currentHp")
	if !ok {
		return actionOutcome{}, errors.New(errors.CodeInvalidHP, "currentHp must be an integer")
	}
	if temp, ok := payloadInt(payload, "tempHp"); ok {
		if temp < 0 {
			return actionOutcome{}, errors.New(errors.CodeInvalidHP, "tempHp must be non-negative")
		}
		entry.HP.Temp = temp
	}

	from := entry.HP.Current
	ceiling := entry.HP.Max + entry.HP.Temp
	entry.HP.Current = clamp(value, 0, ceiling)
	state.Roster[idx] = entry

	evt := newEvent(event.TypeHPChanged, fmt.Sprintf("%s's HP set to %d", entry.Name, entry.HP.Current), entry.ID, map[string]any{
		"characterId": entry.ID,
		"from":        from,
		"to":          entry.HP.Current,
	})
	return actionOutcome{
		state: state,
		result: map[string]any{
			"characterId": entry.ID,
			"currentHp":   entry.HP.Current,
		},
		events: []event.Event{evt},
	}, nil
}

func applySetInitiative(state session.Model, payload map[string]any) (actionOutcome, error) {
	if state.Flags.InitiativeLocked {
		return actionOutcome{}, errors.New(errors.CodeInitiativeLocked, "initiative order is locked")
	}
	entry, idx, err := targetEntry(state, payload)
	if err != nil {
		return actionOutcome{}, err
	}
	value, ok := payloadInt(payload, "initiative")
	if !ok {
		return actionOutcome{}, errors.New(errors.CodeActionInvalid, "initiative must be an integer")
	}

	entry.Initiative = &value
	state.Roster[idx] = entry

	evt := newEvent(event.TypeInitiativeSet, fmt.Sprintf("%s's initiative set to %d", entry.Name, value), entry.ID, map[string]any{
		"characterId": entry.ID,
		"initiative":  value,
	})
	return actionOutcome{
		state: state,
		result: map[string]any{
			"characterId": entry.ID,
			"initiative":  value,
		},
		events: []event.Event{evt},
	}, nil
}

func applyRollInitiative(state session.Model, payload map[string]any) (actionOutcome, error) {
	if state.Flags.InitiativeLocked {
		return actionOutcome{}, errors.New(errors.CodeInitiativeLocked, "initiative order is locked")
	}

	scope := payloadString(payload, "scope")
	if scope == "" {
		scope = gateway.RollScopeCharacters
	}

	var targets []int
	switch scope {
	case gateway.RollScopeCharacters, gateway.RollScopeMonsters:
		kind := session.KindCharacter
		if scope == gateway.RollScopeMonsters {
			kind = session.KindMonster
		}
		for i, entry := range state.Roster {
			if entry.Kind == kind {
				targets = append(targets, i)
			}
		}
	case gateway.RollScopeSelf:
		_, idx, err := targetEntry(state, payload)
		if err != nil {
			return actionOutcome{}, err
		}
		targets = append(targets, idx)
	default:
		return actionOutcome{}, errors.WithMetadata(errors.CodeInvalidRollScope, "unknown roll scope", map[string]string{
			"scope": scope,
		})
	}

	modifier, _ := payloadInt(payload, "modifier")

	var rolls []map[string]any
	var events []event.Event
	for _, idx := range targets {
		seed, err := rollSeed(payload)
		if err != nil {
			return actionOutcome{}, err
		}
		rolled := dice.RollInitiative(dice.InitiativeRequest{Modifier: modifier, Seed: seed})

		entry := state.Roster[idx]
		total := rolled.Total
		entry.Initiative = &total
		state.Roster[idx] = entry

		rolls = append(rolls, map[string]any{
			"characterId": entry.ID,
			"die":         rolled.Die,
			"total":       total,
			"seed":        seed,
		})
		events = append(events, newEvent(event.TypeInitiativeRolled, fmt.Sprintf("%s rolls initiative: %d", entry.Name, total), entry.ID, map[string]any{
			"characterId": entry.ID,
			"die":         rolled.Die,
			"total":       total,
			"seed":        seed,
		}))
	}

	return actionOutcome{
		state: state,
		result: map[string]any{
			"scope": scope,
			"rolls": rolls,
		},
		events: events,
	}, nil
}

func applyLockInitiative(state session.Model, locked bool) (actionOutcome, error) {
	state.Flags.InitiativeLocked = locked

	eventType := event.TypeInitiativeLocked
	message := "Initiative order locked"
	if !locked {
		eventType = event.TypeInitiativeUnlocked
		message = "Initiative order unlocked"
	}
	return actionOutcome{
		state:  state,
		result: map[string]any{"initiativeLocked": locked},
		events: []event.Event{newEvent(eventType, message, "", nil)},
	}, nil
}

func applyResetInitiative(state session.Model) (actionOutcome, error) {
	for i := range state.Roster {
		state.Roster[i].Initiative = nil
	}
	state.Flags.InitiativeLocked = false

	return actionOutcome{
		state:  state,
		result: map[string]any{"initiativeLocked": false},
		events: []event.Event{newEvent(event.TypeInitiativeReset, "Initiative order reset", "", nil)},
	}, nil
}

func applyStartEncounter(state session.Model) (actionOutcome, error) {
	if state.Flags.EncounterActive {
		return actionOutcome{}, errors.New(errors.CodeEncounterActive, "an encounter is already active")
	}
	order := initiativeOrder(state)
	if len(order) == 0 {
		return actionOutcome{}, errors.New(errors.CodeActionInvalid, "no roster entries have initiative")
	}

	state.Flags.EncounterActive = true
	state.Flags.CombatRound = 1
	state.Flags.ActiveTurnActorID = state.Roster[order[0]].ID

	evt := newEvent(event.TypeEncounterStarted, "Encounter started", state.Flags.ActiveTurnActorID, map[string]any{
		"activeTurnActorId": state.Flags.ActiveTurnActorID,
		"combatRound":       1,
	})
	return actionOutcome{
		state: state,
		result: map[string]any{
			"activeTurnActorId": state.Flags.ActiveTurnActorID,
			"combatRound":       1,
		},
		events: []event.Event{evt},
	}, nil
}

func applyAdvanceEncounter(state session.Model) (actionOutcome, error) {
	if !state.Flags.EncounterActive {
		return actionOutcome{}, errors.New(errors.CodeEncounterInactive, "no encounter is active")
	}
	order := initiativeOrder(state)
	if len(order) == 0 {
		return actionOutcome{}, errors.New(errors.CodeActionInvalid, "no roster entries have initiative")
	}

	position := 0
	for i, idx := range order {
		if state.Roster[idx].ID == state.Flags.ActiveTurnActorID {
			position = i
			break
		}
	}

	var events []event.Event
	next := position + 1
	if next >= len(order) {
		next = 0
		state.Flags.CombatRound++
		state, events = tickEffects(state)
	}
	state.Flags.ActiveTurnActorID = state.Roster[order[next]].ID

	events = append(events, newEvent(event.TypeEncounterAdvanced, fmt.Sprintf("Round %d: %s's turn", state.Flags.CombatRound, state.Roster[order[next]].Name), state.Flags.ActiveTurnActorID, map[string]any{
		"activeTurnActorId": state.Flags.ActiveTurnActorID,
		"combatRound":       state.Flags.CombatRound,
	}))
	return actionOutcome{
		state: state,
		result: map[string]any{
			"activeTurnActorId": state.Flags.ActiveTurnActorID,
			"combatRound":       state.Flags.CombatRound,
		},
		events: events,
	}, nil
}

// tickEffects decrements round-scoped effect durations at the top of a new
// round and expires the ones that reach zero.
func tickEffects(state session.Model) (session.Model, []event.Event) {
	var events []event.Event
	for i := range state.Roster {
		entry := &state.Roster[i]
		kept := entry.Effects[:0]
		for _, effect := range entry.Effects {
			if effect.Rounds == nil {
				kept = append(kept, effect)
				continue
			}
			remaining := *effect.Rounds - 1
			if remaining > 0 {
				effect.Rounds = &remaining
				kept = append(kept, effect)
				continue
			}
			events = append(events, newEvent(event.TypeEffectExpired, fmt.Sprintf("%s is no longer %s", entry.Name, effect.Type), entry.ID, map[string]any{
				"characterId": entry.ID,
				"effectId":    effect.ID,
				"effectType":  effect.Type,
			}))
		}
		entry.Effects = kept
		entry.EffectCount = len(kept)
	}
	return state, events
}

func applyEndEncounter(state session.Model) (actionOutcome, error) {
	if !state.Flags.EncounterActive {
		return actionOutcome{}, errors.New(errors.CodeEncounterInactive, "no encounter is active")
	}

	rounds := state.Flags.CombatRound
	state.Flags.EncounterActive = false
	state.Flags.CombatRound = 0
	state.Flags.ActiveTurnActorID = ""

	evt := newEvent(event.TypeEncounterEnded, fmt.Sprintf("Encounter ended after %d rounds", rounds), "", map[string]any{
		"rounds": rounds,
	})
	return actionOutcome{
		state:  state,
		result: map[string]any{"rounds": rounds},
		events: []event.Event{evt},
	}, nil
}

func applyApplyEffect(state session.Model, payload map[string]any) (actionOutcome, error) {
	entry, idx, err := targetEntry(state, payload)
	if err != nil {
		return actionOutcome{}, err
	}
	effectType := payloadString(payload, "type")
	if effectType == "" {
		return actionOutcome{}, errors.New(errors.CodeActionInvalid, "effect type is required")
	}

	effect := session.StatusEffect{
		EntityID: entry.ID,
		Type:     effectType,
		Duration: payloadString(payload, "duration"),
	}
	if rounds, ok := payloadInt(payload, "rounds"); ok {
		if rounds <= 0 {
			return actionOutcome{}, errors.New(errors.CodeActionInvalid, "rounds must be positive")
		}
		effect.Rounds = &rounds
	}
	effect.ID, err = id.NewID()
	if err != nil {
		return actionOutcome{}, errors.Wrap(errors.CodeUnknown, "generate effect id", err)
	}

	entry.Effects = append(entry.Effects, effect)
	entry.EffectCount = len(entry.Effects)
	state.Roster[idx] = entry

	evt := newEvent(event.TypeEffectApplied, fmt.Sprintf("%s is %s", entry.Name, effectType), entry.ID, map[string]any{
		"characterId": entry.ID,
		"effectId":    effect.ID,
		"effectType":  effectType,
	})
	return actionOutcome{
		state: state,
		result: map[string]any{
			"characterId": entry.ID,
			"effectId":    effect.ID,
		},
		events: []event.Event{evt},
	}, nil
}

func applyRemoveEffect(state session.Model, payload map[string]any) (actionOutcome, error) {
	effectID := payloadString(payload, "effectId")
	if effectID == "" {
		return actionOutcome{}, errors.New(errors.CodeActionInvalid, "effectId is required")
	}

	for i := range state.Roster {
		entry := &state.Roster[i]
		for j, effect := range entry.Effects {
			if effect.ID != effectID {
				continue
			}
			entry.Effects = append(entry.Effects[:j], entry.Effects[j+1:]...)
			entry.EffectCount = len(entry.Effects)

			evt := newEvent(event.TypeEffectRemoved, fmt.Sprintf("%s is no longer %s", entry.Name, effect.Type), entry.ID, map[string]any{
				"characterId": entry.ID,
				"effectId":    effect.ID,
				"effectType":  effect.Type,
			})
			return actionOutcome{
				state: state,
				result: map[string]any{
					"characterId": entry.ID,
					"effectId":    effect.ID,
				},
				events: []event.Event{evt},
			}, nil
		}
	}

	return actionOutcome{}, errors.WithMetadata(errors.CodeEffectNotFound, "effect not found", map[string]string{
		"effect_id": effectID,
	})
}

// initiativeOrder returns roster indexes sorted by initiative, highest
// first, ties resolved by roster order. Entries without initiative are
// excluded from the turn order.
func initiativeOrder(state session.Model) []int {
	var order []int
	for i, entry := range state.Roster {
		if entry.Initiative != nil {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return *state.Roster[order[a]].Initiative > *state.Roster[order[b]].Initiative
	})
	return order
}

func targetEntry(state session.Model, payload map[string]any) (session.RosterEntry, int, error) {
	characterID := payloadString(payload, "characterId")
	if characterID == "" {
		return session.RosterEntry{}, 0, errors.New(errors.CodeActionInvalid, "characterId is required")
	}
	for i, entry := range state.Roster {
		if entry.ID == characterID {
			return entry, i, nil
		}
	}
	return session.RosterEntry{}, 0, errors.WithMetadata(errors.CodeActorNotFound, "roster entry not found", map[string]string{
		"character_id": characterID,
	})
}

func newEvent(eventType event.Type, message, actorID string, payload map[string]any) event.Event {
	eventID, err := id.NewID()
	if err != nil {
		// crypto/rand failures are not recoverable here; fall back to a
		// timestamp id so the journal append still succeeds.
		log.Printf("generate event id: %v", err)
		eventID = fmt.Sprintf("evt-%d", time.Now().UnixNano())
	}
	return event.Event{
		ID:        eventID,
		Type:      eventType,
		Message:   message,
		ActorID:   actorID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// rollSeed uses the caller-provided seed when present so rolls can be
// reproduced, otherwise draws a fresh cryptographic seed.
func rollSeed(payload map[string]any) (int64, error) {
	if raw, ok := payload["seed"]; ok {
		if value, ok := asInt64(raw); ok {
			return value, nil
		}
		return 0, errors.New(errors.CodeActionInvalid, "seed must be an integer")
	}
	seed, err := random.NewSeed()
	if err != nil {
		return 0, errors.Wrap(errors.CodeUnknown, "generate roll seed", err)
	}
	return seed, nil
}

func payloadString(payload map[string]any, key string) string {
	value, _ := payload[key].(string)
	return value
}

func payloadInt(payload map[string]any, key string) (int, bool) {
	raw, ok := payload[key]
	if !ok {
		return 0, false
	}
	value, ok := asInt64(raw)
	if !ok {
		return 0, false
	}
	return int(value), true
}

// asInt64 accepts the numeric shapes JSON decoding produces.
func asInt64(raw any) (int64, bool) {
	switch value := raw.(type) {
	case float64:
		if value != math.Trunc(value) {
			return 0, false
		}
		return int64(value), true
	case int:
		return int64(value), true
	case int64:
		return value, true
	default:
		return 0, false
	}
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
