// Package tracker runs the client side of one open session: the view that
// owns the in-memory model, the poll scheduler that keeps it fresh, the
// connectivity monitor, and the facade wiring them to the command
// dispatcher.
package tracker

import (
	"sync"

	"github.com/louisbranch/initiative.watch/internal/session"
	"github.com/louisbranch/initiative.watch/internal/session/event"
)

// View is the single owner of one session's model. All merges are pure
// functions producing a new model value that is swapped in under the lock,
// so readers always observe a consistent state.
//
// Every merge is guarded by the session identity: a poll response that
// resolves after the view closed, or after the view switched sessions, is
// discarded rather than merged.
type View struct {
	mu        sync.Mutex
	sessionID string
	model     session.Model
	hydrated  bool
	closed    bool
}

// NewView creates the view for one session.
func NewView(sessionID string) *View {
	return &View{sessionID: sessionID}
}

// SessionID returns the session this view is bound to.
func (v *View) SessionID() string {
	return v.sessionID
}

// Hydrate installs a full session snapshot. Returns false when the snapshot
// belongs to another session or the view already closed.
func (v *View) Hydrate(model session.Model) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || model.ID != v.sessionID {
		return false
	}
	v.model = model.Clone()
	v.model.Events = event.Merge(nil, model.Events)
	v.hydrated = true
	return true
}

// Hydrated reports whether a full snapshot has been installed.
func (v *View) Hydrated() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hydrated
}

// ApplyRosterSummary merges a roster-summary snapshot.
func (v *View) ApplyRosterSummary(sessionID string, summary session.RosterSummary) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.accepts(sessionID) {
		return false
	}
	v.model = session.ApplyRosterSummary(v.model, summary)
	return true
}

// ApplyCombatSnapshot merges a combat-actor delta snapshot.
func (v *View) ApplyCombatSnapshot(sessionID string, snapshot session.CombatSnapshot) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.accepts(sessionID) {
		return false
	}
	v.model = session.ApplyCombatSnapshot(v.model, snapshot)
	return true
}

// MergeEvents folds an event batch into the journal buffer and returns the
// events that were not previously present, newest first.
func (v *View) MergeEvents(sessionID string, batch []event.Event) ([]event.Event, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.accepts(sessionID) {
		return nil, false
	}

	known := make(map[string]struct{}, len(v.model.Events))
	for _, evt := range v.model.Events {
		known[evt.ID] = struct{}{}
	}
	v.model.Events = event.Merge(v.model.Events, batch)

	var added []event.Event
	for _, evt := range v.model.Events {
		if _, ok := known[evt.ID]; !ok {
			added = append(added, evt)
		}
	}
	return added, true
}

// Snapshot returns a deep copy of the model and whether it is hydrated.
func (v *View) Snapshot() (session.Model, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.model.Clone(), v.hydrated
}

// EncounterActive reports the combat flag used to pick the poll shape.
func (v *View) EncounterActive() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.model.Flags.EncounterActive
}

// EventCursor returns the highest known sequence token.
func (v *View) EventCursor() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.model.HighestEventSeq()
}

// Close marks the view closed. Later merges are discarded.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
}

// Closed reports whether the view has been closed.
func (v *View) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func (v *View) accepts(sessionID string) bool {
	return !v.closed && v.hydrated && sessionID == v.sessionID
}
