// Package event defines the session event journal: immutable event records,
// the sequence-token total order, and the bounded merge buffer the client
// folds poll results into.
package event

import (
	"strings"
	"time"
)

// Type identifies the kind of a session event.
type Type string

// Combat events.
const (
	// TypeEncounterStarted records the start of a combat encounter.
	TypeEncounterStarted Type = "combat.encounter_started"
	// TypeEncounterAdvanced records a turn advance within an encounter.
	TypeEncounterAdvanced Type = "combat.encounter_advanced"
	// TypeEncounterEnded records the end of a combat encounter.
	TypeEncounterEnded Type = "combat.encounter_ended"
	// TypeHPChanged records a hit-point change on a roster entry.
	TypeHPChanged Type = "combat.hp_changed"
	// TypeActionUndone records the reversal of the most recent action.
	TypeActionUndone Type = "combat.action_undone"
)

// Initiative events.
const (
	// TypeInitiativeSet records a manual initiative assignment.
	TypeInitiativeSet Type = "initiative.set"
	// TypeInitiativeRolled records a rolled initiative batch.
	TypeInitiativeRolled Type = "initiative.rolled"
	// TypeInitiativeLocked records the initiative order being locked.
	TypeInitiativeLocked Type = "initiative.locked"
	// TypeInitiativeUnlocked records the initiative order being unlocked.
	TypeInitiativeUnlocked Type = "initiative.unlocked"
	// TypeInitiativeReset records all initiative values being cleared.
	TypeInitiativeReset Type = "initiative.reset"
)

// Effect events.
const (
	// TypeEffectApplied records a status effect being applied.
	TypeEffectApplied Type = "effect.applied"
	// TypeEffectRemoved records a status effect being removed.
	TypeEffectRemoved Type = "effect.removed"
	// TypeEffectExpired records a status effect expiring from round automation.
	TypeEffectExpired Type = "effect.expired"
)

// Session events.
const (
	// TypeSessionCreated records the creation of a session.
	TypeSessionCreated Type = "session.created"
	// TypeRosterChanged records a roster membership change.
	TypeRosterChanged Type = "session.roster_changed"
)

// Category returns the dotted prefix grouping related event types.
func (t Type) Category() string {
	value := string(t)
	idx := strings.Index(value, ".")
	if idx == -1 {
		return value
	}
	return value[:idx]
}

// IsValid reports whether the type is non-empty. Unknown dotted types are
// allowed: the server may emit types newer than this client.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Event is one immutable record in the session journal.
//
// Two events with equal ID are the same event regardless of other field
// differences; Merge resolves which copy is kept.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`
	// Seq is the server-assigned sequence token, present only once the
	// server has durably ordered the event. Compared via CompareSeq.
	Seq string `json:"seq,omitempty"`
	// Type identifies the kind of event.
	Type Type `json:"type"`
	// Message is the human-readable journal line.
	Message string `json:"message"`
	// Payload holds event-specific structured data.
	Payload map[string]any `json:"payload,omitempty"`
	// ActorID identifies the roster entry or participant that originated
	// the event, when known.
	ActorID string `json:"actorId,omitempty"`
	// CreatedAt is when the event was created. It is the ordering fallback
	// for events without a sequence token.
	CreatedAt time.Time `json:"createdAt"`
}
