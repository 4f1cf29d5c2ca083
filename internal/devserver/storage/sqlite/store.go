// Package sqlite provides a SQLite-backed session store for the
// development authority server.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/initiative.watch/internal/devserver/storage/sqlite/migrations"
	"github.com/louisbranch/initiative.watch/internal/platform/errors"
	sqlitemigrate "github.com/louisbranch/initiative.watch/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/initiative.watch/internal/session"
	"github.com/louisbranch/initiative.watch/internal/session/event"

	_ "modernc.org/sqlite"
)

// UndoDepth bounds how many prior states the undo stack retains per session.
const UndoDepth = 20

// Store persists session state, the event journal, idempotency records,
// and the undo stack in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite session store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveSession upserts the session state. Events are stored separately and
// stripped from the serialized state.
func (s *Store) SaveSession(ctx context.Context, state session.Model) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(state.ID) == "" {
		return fmt.Errorf("session id is required")
	}

	state.Events = nil
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}

	now := toMillis(time.Now())
	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO sessions (id, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		state.ID,
		string(payload),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession reads the session state without its event journal.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (session.Model, error) {
	if err := ctx.Err(); err != nil {
		return session.Model{}, err
	}

	var payload string
	row := s.sqlDB.QueryRowContext(ctx, `SELECT state FROM sessions WHERE id = ?`, sessionID)
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return session.Model{}, errors.WithMetadata(errors.CodeSessionNotFound, "session not found", map[string]string{"session_id": sessionID})
		}
		return session.Model{}, fmt.Errorf("load session: %w", err)
	}

	var state session.Model
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return session.Model{}, fmt.Errorf("unmarshal session state: %w", err)
	}
	return state, nil
}

// AppendEvents assigns each event its per-session sequence number and
// persists it. The returned slice carries the stamped sequence tokens.
func (s *Store) AppendEvents(ctx context.Context, sessionID string, events []event.Event) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append events: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int64
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events WHERE session_id = ?`, sessionID)
	if err := row.Scan(&next); err != nil {
		return nil, fmt.Errorf("read event sequence: %w", err)
	}

	stamped := make([]event.Event, 0, len(events))
	for _, evt := range events {
		next++
		evt.Seq = strconv.FormatInt(next, 10)
		if evt.CreatedAt.IsZero() {
			evt.CreatedAt = time.Now().UTC()
		}

		payload := "{}"
		if evt.Payload != nil {
			raw, err := json.Marshal(evt.Payload)
			if err != nil {
				return nil, fmt.Errorf("marshal event payload: %w", err)
			}
			payload = string(raw)
		}

		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO events (session_id, seq, id, type, message, actor_id, payload, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID,
			next,
			evt.ID,
			string(evt.Type),
			evt.Message,
			evt.ActorID,
			payload,
			toMillis(evt.CreatedAt),
		); err != nil {
			return nil, fmt.Errorf("insert event: %w", err)
		}
		stamped = append(stamped, evt)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append events: %w", err)
	}
	return stamped, nil
}

// EventsSince returns up to limit events with sequence tokens greater than
// after, newest first. An empty after returns the newest events.
func (s *Store) EventsSince(ctx context.Context, sessionID, after string, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = event.BufferLimit
	}

	var afterSeq int64
	if trimmed := strings.TrimSpace(after); trimmed != "" {
		parsed, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, errors.WithMetadata(errors.CodeInvalidRequest, "invalid event cursor", map[string]string{"cursor": after})
		}
		afterSeq = parsed
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT seq, id, type, message, actor_id, payload, created_at
		 FROM events
		 WHERE session_id = ? AND seq > ?
		 ORDER BY seq DESC
		 LIMIT ?`,
		sessionID,
		afterSeq,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			seq       int64
			evt       event.Event
			eventType string
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&seq, &evt.ID, &eventType, &evt.Message, &evt.ActorID, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.Seq = strconv.FormatInt(seq, 10)
		evt.Type = event.Type(eventType)
		evt.CreatedAt = fromMillis(createdAt)
		if payload != "" && payload != "{}" {
			if err := json.Unmarshal([]byte(payload), &evt.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal event payload: %w", err)
			}
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// LookupAction returns a previously stored action result for the
// idempotency key, if one exists.
func (s *Store) LookupAction(ctx context.Context, sessionID, key string) (actionType string, result map[string]any, found bool, err error) {
	if err := ctx.Err(); err != nil {
		return "", nil, false, err
	}

	var payload string
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT action_type, result FROM actions WHERE session_id = ? AND idempotency_key = ?`,
		sessionID,
		key,
	)
	if err := row.Scan(&actionType, &payload); err != nil {
		if err == sql.ErrNoRows {
			return "", nil, false, nil
		}
		return "", nil, false, fmt.Errorf("lookup action: %w", err)
	}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			return "", nil, false, fmt.Errorf("unmarshal action result: %w", err)
		}
	}
	return actionType, result, true, nil
}

// SaveAction records an executed action so replays with the same
// idempotency key return the stored result.
func (s *Store) SaveAction(ctx context.Context, sessionID, key, actionType string, result map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload := "{}"
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal action result: %w", err)
		}
		payload = string(raw)
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO actions (session_id, idempotency_key, action_type, result, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID,
		key,
		actionType,
		payload,
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save action: %w", err)
	}
	return nil
}

// PushUndo saves the pre-action state, trimming the stack to UndoDepth.
func (s *Store) PushUndo(ctx context.Context, sessionID, actionType string, state session.Model) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	state.Events = nil
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal undo state: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin push undo: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var top int64
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) FROM undo_stack WHERE session_id = ?`, sessionID)
	if err := row.Scan(&top); err != nil {
		return fmt.Errorf("read undo position: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO undo_stack (session_id, position, action_type, state) VALUES (?, ?, ?, ?)`,
		sessionID,
		top+1,
		actionType,
		string(payload),
	); err != nil {
		return fmt.Errorf("push undo: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM undo_stack WHERE session_id = ? AND position <= ?`,
		sessionID,
		top+1-UndoDepth,
	); err != nil {
		return fmt.Errorf("trim undo stack: %w", err)
	}

	return tx.Commit()
}

// PopUndo removes and returns the most recent undo entry. It reports
// found=false when the stack is empty.
func (s *Store) PopUndo(ctx context.Context, sessionID string) (actionType string, state session.Model, found bool, err error) {
	if err := ctx.Err(); err != nil {
		return "", session.Model{}, false, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return "", session.Model{}, false, fmt.Errorf("begin pop undo: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		position int64
		payload  string
	)
	row := tx.QueryRowContext(
		ctx,
		`SELECT position, action_type, state FROM undo_stack WHERE session_id = ? ORDER BY position DESC LIMIT 1`,
		sessionID,
	)
	if err := row.Scan(&position, &actionType, &payload); err != nil {
		if err == sql.ErrNoRows {
			return "", session.Model{}, false, nil
		}
		return "", session.Model{}, false, fmt.Errorf("read undo entry: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return "", session.Model{}, false, fmt.Errorf("unmarshal undo state: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM undo_stack WHERE session_id = ? AND position = ?`,
		sessionID,
		position,
	); err != nil {
		return "", session.Model{}, false, fmt.Errorf("pop undo: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", session.Model{}, false, fmt.Errorf("commit pop undo: %w", err)
	}
	return actionType, state, true, nil
}
