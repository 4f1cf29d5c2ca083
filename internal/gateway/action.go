package gateway

// ActionType identifies one mutating session command. The same vocabulary is
// used by the unified action endpoint (as the actionType field) and by the
// legacy per-action endpoints (as the trailing path segment).
type ActionType string

const (
	// ActionSetHP sets a roster entry's current hit points.
	ActionSetHP ActionType = "set-hp"
	// ActionSetInitiative assigns a roster entry's initiative value.
	ActionSetInitiative ActionType = "set-initiative"
	// ActionRollInitiative rolls initiative for a scope of actors.
	ActionRollInitiative ActionType = "roll-initiative"
	// ActionLockInitiative freezes the initiative order.
	ActionLockInitiative ActionType = "lock-initiative"
	// ActionUnlockInitiative unfreezes the initiative order.
	ActionUnlockInitiative ActionType = "unlock-initiative"
	// ActionResetInitiative clears all initiative values.
	ActionResetInitiative ActionType = "reset-initiative"
	// ActionStartEncounter begins a combat encounter.
	ActionStartEncounter ActionType = "start-encounter"
	// ActionAdvanceEncounter advances to the next turn.
	ActionAdvanceEncounter ActionType = "advance-encounter"
	// ActionEndEncounter ends the combat encounter.
	ActionEndEncounter ActionType = "end-encounter"
	// ActionUndoLast reverts the most recent reversible action.
	ActionUndoLast ActionType = "undo-last"
	// ActionApplyEffect applies a status effect to a roster entry.
	ActionApplyEffect ActionType = "apply-effect"
	// ActionRemoveEffect removes a status effect from a roster entry.
	ActionRemoveEffect ActionType = "remove-effect"
)

// Roll scopes accepted by ActionRollInitiative payloads.
const (
	RollScopeCharacters = "characters"
	RollScopeMonsters   = "monsters"
	RollScopeSelf       = "self"
)

// KnownActions enumerates every action type the legacy protocol exposes.
var KnownActions = []ActionType{
	ActionSetHP,
	ActionSetInitiative,
	ActionRollInitiative,
	ActionLockInitiative,
	ActionUnlockInitiative,
	ActionResetInitiative,
	ActionStartEncounter,
	ActionAdvanceEncounter,
	ActionEndEncounter,
	ActionUndoLast,
	ActionApplyEffect,
	ActionRemoveEffect,
}

// IsValid reports whether the action type is part of the known vocabulary.
func (a ActionType) IsValid() bool {
	for _, known := range KnownActions {
		if a == known {
			return true
		}
	}
	return false
}

// UnifiedAction is the request body of the unified action endpoint.
type UnifiedAction struct {
	// IdempotencyKey identifies one logical command attempt so the server
	// can deduplicate retried deliveries.
	IdempotencyKey string `json:"idempotencyKey"`
	// ActionType selects the command.
	ActionType ActionType `json:"actionType"`
	// Payload carries action-specific parameters.
	Payload map[string]any `json:"payload,omitempty"`
}

// ActionResult is the response of both the unified and the legacy action
// endpoints.
type ActionResult struct {
	// ActionType echoes the executed command.
	ActionType ActionType `json:"actionType"`
	// Result carries action-specific result data for optimistic updates.
	Result map[string]any `json:"result,omitempty"`
	// Replayed reports whether the server deduplicated the idempotency key
	// and returned a previously recorded result.
	Replayed bool `json:"replayed,omitempty"`
}
