// Package devserver implements a reference remote-authority server for
// development and integration testing. It serves the session snapshot,
// summary, combat, and event endpoints plus both the unified and the legacy
// action protocols against a SQLite store.
package devserver

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"github.com/louisbranch/initiative.watch/internal/devserver/storage/sqlite"
	"github.com/louisbranch/initiative.watch/internal/gateway"
	"github.com/louisbranch/initiative.watch/internal/platform/errors"
	"github.com/louisbranch/initiative.watch/internal/platform/id"
	"github.com/louisbranch/initiative.watch/internal/session"
	"github.com/louisbranch/initiative.watch/internal/session/event"
)

const gmRole = "gm"

// Server handles the remote-authority HTTP surface.
type Server struct {
	store      *sqlite.Store
	legacyOnly bool

	// mu serializes action application so the read-modify-write against the
	// store stays consistent without per-session row locking.
	mu sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithLegacyOnly makes the unified action endpoint answer 404 so clients
// exercise the per-action fallback protocol.
func WithLegacyOnly(enabled bool) Option {
	return func(s *Server) {
		s.legacyOnly = enabled
	}
}

// New creates a Server backed by the given store.
func New(store *sqlite.Store, opts ...Option) *Server {
	s := &Server{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler for all server routes.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/sessions", s.handleCreateSession).Methods(http.MethodPost)
	r.HandleFunc("/v1/sessions/{id}", s.handleFullSession).Methods(http.MethodGet)
	r.HandleFunc("/v1/sessions/{id}/summary", s.handleSummary).Methods(http.MethodGet)
	r.HandleFunc("/v1/sessions/{id}/combat", s.handleCombat).Methods(http.MethodGet)
	r.HandleFunc("/v1/sessions/{id}/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/v1/sessions/{id}/actions", s.handleUnifiedAction).Methods(http.MethodPost)
	r.HandleFunc("/v1/sessions/{id}/actions/{action}", s.handleLegacyAction).Methods(http.MethodPost)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createSessionRequest seeds a new session with a roster.
type createSessionRequest struct {
	Name     string                `json:"name"`
	JoinCode string                `json:"joinCode,omitempty"`
	Roster   []session.RosterEntry `json:"roster,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errors.Wrap(errors.CodeInvalidRequest, "decode request body", err))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, errors.New(errors.CodeInvalidRequest, "session name is required"))
		return
	}

	sessionID, err := id.NewID()
	if err != nil {
		writeError(w, r, errors.Wrap(errors.CodeUnknown, "generate session id", err))
		return
	}

	state := session.Model{
		ID:       sessionID,
		Name:     req.Name,
		JoinCode: req.JoinCode,
		Roster:   req.Roster,
	}
	state.Flags.GMPresent = r.Header.Get(gateway.RoleHeader) == gmRole
	for i := range state.Roster {
		if strings.TrimSpace(state.Roster[i].ID) == "" {
			entryID, err := id.NewID()
			if err != nil {
				writeError(w, r, errors.Wrap(errors.CodeUnknown, "generate roster entry id", err))
				return
			}
			state.Roster[i].ID = entryID
		}
		if !state.Roster[i].Kind.IsValid() {
			writeError(w, r, errors.WithMetadata(errors.CodeActorInvalidKind, "unknown roster entry kind", map[string]string{
				"kind": string(state.Roster[i].Kind),
			}))
			return
		}
		state.Roster[i].EffectCount = len(state.Roster[i].Effects)
	}

	if err := s.store.SaveSession(r.Context(), state); err != nil {
		writeError(w, r, err)
		return
	}
	created := newEvent(event.TypeSessionCreated, fmt.Sprintf("Session %q created", state.Name), "", nil)
	stamped, err := s.store.AppendEvents(r.Context(), state.ID, []event.Event{created})
	if err != nil {
		writeError(w, r, err)
		return
	}
	state.Events = stamped

	log.Printf("session %s created with %d roster entries", state.ID, len(state.Roster))
	writeJSON(w, http.StatusCreated, state)
}

func (s *Server) handleFullSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	state, err := s.store.LoadSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	events, err := s.store.EventsSince(r.Context(), sessionID, "", event.BufferLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	state.Events = events
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	state, err := s.store.LoadSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session.RosterSummary{
		Flags:   state.Flags,
		Entries: state.Roster,
	})
}

func (s *Server) handleCombat(w http.ResponseWriter, r *http.Request) {
	state, err := s.store.LoadSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	snapshot := session.CombatSnapshot{Flags: state.Flags}
	for _, entry := range state.Roster {
		current := entry.HP.Current
		max := entry.HP.Max
		count := entry.EffectCount
		delta := session.CombatActorDelta{
			ID:          entry.ID,
			Kind:        entry.Kind,
			CurrentHP:   &current,
			MaxHP:       &max,
			EffectCount: &count,
		}
		if entry.Initiative != nil {
			value := *entry.Initiative
			delta.Initiative = &value
		}
		snapshot.Actors = append(snapshot.Actors, delta)
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if _, err := s.store.LoadSession(r.Context(), sessionID); err != nil {
		writeError(w, r, err)
		return
	}

	limit := event.BufferLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, r, errors.New(errors.CodeInvalidRequest, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	events, err := s.store.EventsSince(r.Context(), sessionID, r.URL.Query().Get("after"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if events == nil {
		events = []event.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleUnifiedAction(w http.ResponseWriter, r *http.Request) {
	if s.legacyOnly {
		writeError(w, r, errors.New(errors.CodeNotFound, "unified actions are not supported"))
		return
	}

	sessionID := mux.Vars(r)["id"]
	var action gateway.UnifiedAction
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		writeError(w, r, errors.Wrap(errors.CodeInvalidRequest, "decode request body", err))
		return
	}
	if strings.TrimSpace(action.IdempotencyKey) == "" {
		writeError(w, r, errors.New(errors.CodeInvalidRequest, "idempotencyKey is required"))
		return
	}
	if !action.ActionType.IsValid() {
		writeError(w, r, errors.WithMetadata(errors.CodeActionUnknown, "unknown action type", map[string]string{
			"action_type": string(action.ActionType),
		}))
		return
	}
	if err := requireGM(r); err != nil {
		writeError(w, r, err)
		return
	}

	storedType, storedResult, found, err := s.store.LookupAction(r.Context(), sessionID, action.IdempotencyKey)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if found {
		writeJSON(w, http.StatusOK, gateway.ActionResult{
			ActionType: gateway.ActionType(storedType),
			Result:     storedResult,
			Replayed:   true,
		})
		return
	}

	result, err := s.execute(r, sessionID, action.ActionType, action.Payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.SaveAction(r.Context(), sessionID, action.IdempotencyKey, string(action.ActionType), result); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gateway.ActionResult{
		ActionType: action.ActionType,
		Result:     result,
	})
}

func (s *Server) handleLegacyAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["id"]
	actionType := gateway.ActionType(vars["action"])
	if !actionType.IsValid() {
		writeError(w, r, errors.WithMetadata(errors.CodeActionUnknown, "unknown action type", map[string]string{
			"action_type": string(actionType),
		}))
		return
	}
	if err := requireGM(r); err != nil {
		writeError(w, r, err)
		return
	}

	var payload map[string]any
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, r, errors.Wrap(errors.CodeInvalidRequest, "decode request body", err))
			return
		}
	}

	// Legacy endpoints carry no idempotency key: a retried delivery applies
	// the action again.
	result, err := s.execute(r, sessionID, actionType, payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gateway.ActionResult{
		ActionType: actionType,
		Result:     result,
	})
}

// execute runs one action against the stored session state and persists the
// outcome. The server-wide lock keeps the load-apply-save cycle atomic.
func (s *Server) execute(r *http.Request, sessionID string, actionType gateway.ActionType, payload map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := r.Context()
	state, err := s.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if actionType == gateway.ActionUndoLast {
		undoneType, restored, found, err := s.store.PopUndo(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errors.New(errors.CodeNothingToUndo, "nothing to undo")
		}
		if err := s.store.SaveSession(ctx, restored); err != nil {
			return nil, err
		}
		undone := newEvent(event.TypeActionUndone, fmt.Sprintf("Undid %s", undoneType), "", map[string]any{
			"undoneAction": undoneType,
		})
		if _, err := s.store.AppendEvents(ctx, sessionID, []event.Event{undone}); err != nil {
			return nil, err
		}
		return map[string]any{"undoneAction": undoneType}, nil
	}

	outcome, err := applyAction(state, actionType, payload)
	if err != nil {
		return nil, err
	}

	if err := s.store.PushUndo(ctx, sessionID, string(actionType), state); err != nil {
		return nil, err
	}
	if err := s.store.SaveSession(ctx, outcome.state); err != nil {
		return nil, err
	}
	if _, err := s.store.AppendEvents(ctx, sessionID, outcome.events); err != nil {
		return nil, err
	}
	return outcome.result, nil
}

func requireGM(r *http.Request) error {
	if r.Header.Get(gateway.RoleHeader) != gmRole {
		return errors.New(errors.CodeGMRequired, "action requires the gm role")
	}
	return nil
}

// errorResponse is the error body shape shared with the client.
type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.CodeOf(err)
	message := err.Error()
	if appErr, ok := err.(*errors.Error); ok {
		message = appErr.Message
	}

	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		if generated, idErr := id.NewID(); idErr == nil {
			requestID = generated
		}
	}

	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorResponse{
		Code:      string(code),
		Message:   message,
		RequestID: requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}
