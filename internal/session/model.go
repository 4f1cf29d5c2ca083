// Package session defines the in-memory combat session model and the pure
// merge functions that fold server snapshots into it.
package session

import (
	"github.com/louisbranch/initiative.watch/internal/session/event"
)

// Kind discriminates the two roster entry variants.
type Kind string

const (
	// KindCharacter is a player character roster entry.
	KindCharacter Kind = "character"
	// KindMonster is a monster roster entry.
	KindMonster Kind = "monster"
)

// IsValid reports whether the kind is one of the known variants.
func (k Kind) IsValid() bool {
	return k == KindCharacter || k == KindMonster
}

// HitPoints holds the hit-point state of a roster entry.
type HitPoints struct {
	// Current is the current hit-point total.
	Current int `json:"current"`
	// Max is the maximum hit-point snapshot.
	Max int `json:"max"`
	// Temp is the temporary hit-point pool.
	Temp int `json:"temp"`
}

// StatusEffect is an active timed effect on a roster entry.
//
// Effects are created by apply-effect commands and removed by remove-effect
// commands or by the server's round-advance automation. The client only
// observes removals via events and snapshots; it never expires effects
// itself.
type StatusEffect struct {
	// ID uniquely identifies the effect instance.
	ID string `json:"id"`
	// EntityID is the roster entry the effect is attached to.
	EntityID string `json:"entityId"`
	// Type is the effect-type tag (e.g. "poisoned", "blessed").
	Type string `json:"type"`
	// Duration is the human-readable duration descriptor.
	Duration string `json:"duration,omitempty"`
	// Rounds is the remaining round count, nil for indefinite effects.
	Rounds *int `json:"rounds,omitempty"`
	// Payload may encode automation: per-tick damage formula, saving-throw
	// parameters. Opaque to the client.
	Payload map[string]any `json:"payload,omitempty"`
}

// RosterEntry is one character or monster participant and its combat state.
type RosterEntry struct {
	// ID is the stable entity identifier.
	ID string `json:"id"`
	// Kind discriminates character from monster.
	Kind Kind `json:"kind"`
	// Name is the display name.
	Name string `json:"name"`
	// Class is the character class, empty for monsters.
	Class string `json:"class,omitempty"`
	// HP is the hit-point state.
	HP HitPoints `json:"hp"`
	// Initiative is the rolled or assigned initiative, nil when unset.
	Initiative *int `json:"initiative"`
	// Effects are the active status effects.
	Effects []StatusEffect `json:"effects"`
	// EffectCount mirrors len(Effects) in full snapshots; combat deltas may
	// carry the count without the effect bodies.
	EffectCount int `json:"effectCount"`
}

// Flags are the top-level combat flags of a session.
type Flags struct {
	// InitiativeLocked reports whether the initiative order is frozen.
	InitiativeLocked bool `json:"initiativeLocked"`
	// EncounterActive reports whether a combat encounter is running.
	EncounterActive bool `json:"encounterActive"`
	// CombatRound is the current round number, zero outside encounters.
	CombatRound int `json:"combatRound"`
	// ActiveTurnActorID is the roster entry whose turn it is.
	ActiveTurnActorID string `json:"activeTurnActorId,omitempty"`
	// GMPresent reports whether an active game-master connection exists.
	GMPresent bool `json:"gmPresent"`
}

// Model is the aggregate in-memory representation of one session.
//
// The model has a single logical owner (tracker.View); every update is a
// pure merge producing a new value that the owner swaps in atomically.
type Model struct {
	// ID is the session identifier.
	ID string `json:"id"`
	// Name is the session display name.
	Name string `json:"name"`
	// JoinCode is the shareable join code.
	JoinCode string `json:"joinCode,omitempty"`
	// Flags are the top-level combat flags.
	Flags Flags `json:"flags"`
	// Roster is the ordered collection of participants.
	Roster []RosterEntry `json:"roster"`
	// Events is the bounded, deduplicated, ordered journal buffer.
	Events []event.Event `json:"events,omitempty"`
}

// Entry returns the roster entry with the given id.
func (m Model) Entry(id string) (RosterEntry, bool) {
	for _, entry := range m.Roster {
		if entry.ID == id {
			return entry, true
		}
	}
	return RosterEntry{}, false
}

// HighestEventSeq returns the cursor for the next incremental event fetch.
func (m Model) HighestEventSeq() string {
	return event.HighestSeq(m.Events)
}

// Clone returns a deep copy of the model. Events are immutable records and
// are shared; roster entries and their effects are copied.
func (m Model) Clone() Model {
	out := m
	out.Roster = cloneRoster(m.Roster)
	out.Events = append([]event.Event(nil), m.Events...)
	return out
}

func cloneRoster(roster []RosterEntry) []RosterEntry {
	if roster == nil {
		return nil
	}
	out := make([]RosterEntry, len(roster))
	for i, entry := range roster {
		out[i] = cloneEntry(entry)
	}
	return out
}

func cloneEntry(entry RosterEntry) RosterEntry {
	out := entry
	if entry.Initiative != nil {
		value := *entry.Initiative
		out.Initiative = &value
	}
	if entry.Effects != nil {
		out.Effects = append([]StatusEffect(nil), entry.Effects...)
	}
	return out
}
