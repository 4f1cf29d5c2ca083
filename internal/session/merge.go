package session

// RosterSummary is the cheap roster-level snapshot the server returns while
// no encounter is running. It enumerates every roster entry with its
// character-level fields and the top-level flags, but never the event log.
type RosterSummary struct {
	Flags   Flags         `json:"flags"`
	Entries []RosterEntry `json:"entries"`
}

// CombatActorDelta is a partial view of one roster entry, carried by combat
// snapshots. Absent optional fields mean "unchanged". Used only for merging;
// never stored standalone.
type CombatActorDelta struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	CurrentHP   *int   `json:"currentHp,omitempty"`
	MaxHP       *int   `json:"maxHp,omitempty"`
	Initiative  *int   `json:"initiative,omitempty"`
	EffectCount *int   `json:"effectCount,omitempty"`
}

// CombatSnapshot enumerates the actors currently relevant to combat
// automation plus the combat flags.
type CombatSnapshot struct {
	Flags  Flags              `json:"flags"`
	Actors []CombatActorDelta `json:"actors"`
}

// ApplyRosterSummary folds a roster-summary snapshot into the model.
//
// The summary is authoritative for roster membership and order: entries
// absent from it are dropped, entries new to it are inserted, and per-entity
// fields are replaced wholesale. The event log and session identity are left
// untouched. Idempotent: applying the same summary twice yields the same
// model as applying it once.
func ApplyRosterSummary(m Model, summary RosterSummary) Model {
	out := m
	out.Flags = summary.Flags
	out.Roster = cloneRoster(summary.Entries)
	for i := range out.Roster {
		out.Roster[i].EffectCount = len(out.Roster[i].Effects)
	}
	return out
}

// ApplyCombatSnapshot folds a combat-actor delta into the model.
//
// The delta is never authoritative for membership or for fields it does not
// carry: absent fields are left unchanged, unknown actor ids are skipped (a
// delta carries too little information to construct a full roster entry),
// and effects lists and names are never cleared. Idempotent.
func ApplyCombatSnapshot(m Model, snapshot CombatSnapshot) Model {
	out := m
	out.Flags = snapshot.Flags
	out.Roster = cloneRoster(m.Roster)

	for _, actor := range snapshot.Actors {
		pos := -1
		for i := range out.Roster {
			if out.Roster[i].ID == actor.ID {
				pos = i
				break
			}
		}
		if pos == -1 {
			continue
		}
		entry := &out.Roster[pos]
		if actor.CurrentHP != nil {
			entry.HP.Current = *actor.CurrentHP
		}
		if actor.MaxHP != nil {
			entry.HP.Max = *actor.MaxHP
		}
		if actor.Initiative != nil {
			value := *actor.Initiative
			entry.Initiative = &value
		}
		if actor.EffectCount != nil {
			entry.EffectCount = *actor.EffectCount
		}
	}
	return out
}
