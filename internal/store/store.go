// Package store owns session and streaming-state records and the
// lifecycle transitions between them. It is the single writer of session
// status and cancellation flags; drivers, the UI and the sweeper all
// coordinate through it rather than through locks.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/stratuscode/stratuscode/internal/event"
	"github.com/stratuscode/stratuscode/internal/logging"
	"github.com/stratuscode/stratuscode/pkg/types"
)

// ErrNotFound is returned by reads when a record does not exist.
// Mutations never return it: a concurrently deleted session is an expected
// race and mutating it is a silent no-op.
var ErrNotFound = errors.New("not found")

// RecoveredNote is attached to a session the sweeper force-reset.
const RecoveredNote = "recovered after agent timeout"

// DefaultTitle marks a session whose title has not been set from a message.
const DefaultTitle = "New Session"

// Store is the SQLite-backed session store.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// New opens (creating if necessary) the store at dbPath.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	// WAL so the UI can read while a turn writes. The _pragma form is the
	// one modernc/sqlite applies; it runs on every pooled connection, which
	// busy_timeout in particular needs.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping store: %w", err)
	}

	s := &Store{db: db, log: logging.Component("store")}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'idle',
		cancel_requested INTEGER NOT NULL DEFAULT 0,
		run_id TEXT NOT NULL DEFAULT '',
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		context_used INTEGER NOT NULL DEFAULT 0,
		context_limit INTEGER NOT NULL DEFAULT 0,
		last_message TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		title_generated INTEGER NOT NULL DEFAULT 0,
		agent_mode TEXT NOT NULL DEFAULT '',
		error_note TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_running ON sessions(status) WHERE status = 'running';

	CREATE TABLE IF NOT EXISTS streaming_states (
		session_id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		parts TEXT NOT NULL DEFAULT '[]',
		stage TEXT NOT NULL DEFAULT 'waiting',
		pending_question TEXT NOT NULL DEFAULT '',
		pending_answer TEXT NOT NULL DEFAULT '',
		is_streaming INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func generateID() string {
	return ulid.Make().String()
}

// CreateSession creates a new idle session.
func (s *Store) CreateSession(ctx context.Context, title string) (*types.Session, error) {
	if title == "" {
		title = DefaultTitle
	}

	now := nowMillis()
	session := &types.Session{
		ID:        generateID(),
		Status:    types.StatusIdle,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, status, title, created_at, updated_at) VALUES (?, 'idle', ?, ?, ?)`,
		session.ID, session.Title, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	event.Publish(event.Event{
		Type: event.SessionUpdated,
		Data: event.SessionUpdatedData{Session: session},
	})
	return session, nil
}

const sessionColumns = `id, status, cancel_requested, run_id, input_tokens, output_tokens,
	context_used, context_limit, last_message, title, title_generated, agent_mode,
	error_note, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*types.Session, error) {
	var sess types.Session
	var status string
	var cancelRequested, titleGen int
	var contextUsed, contextLimit int64
	err := row.Scan(
		&sess.ID, &status, &cancelRequested, &sess.RunID,
		&sess.Tokens.Input, &sess.Tokens.Output,
		&contextUsed, &contextLimit,
		&sess.LastMessage, &sess.Title, &titleGen, &sess.AgentMode,
		&sess.ErrorNote, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sess.Status = types.SessionStatus(status)
	sess.CancelRequested = cancelRequested != 0
	sess.TitleGenerated = titleGen != 0
	if contextLimit > 0 {
		sess.Tokens.Context = &types.ContextUsage{
			Used:    contextUsed,
			Limit:   contextLimit,
			Percent: contextUsed * 100 / contextLimit,
		}
	}
	return &sess, nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return sess, nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]*types.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// ListRunning returns sessions with status=running via the partial index.
// The sweeper calls this continuously, so it must never scan the table.
func (s *Store) ListRunning(ctx context.Context) ([]*types.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE status = 'running'`)
	if err != nil {
		return nil, fmt.Errorf("query running sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan running session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session and its streaming state.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM streaming_states WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete streaming state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return tx.Commit()
}

// PrepareTurn atomically readies a session for a new turn: clears the
// cancellation flag, marks it running under a fresh run ID, and replaces
// any previous streaming state with an empty one. A reader can never
// observe status=running alongside a stale or missing streaming state.
//
// An empty returned run ID means the session does not exist (it may have
// been deleted concurrently); callers treat that as "do nothing".
func (s *Store) PrepareTurn(ctx context.Context, sessionID, title, lastMessage, agentMode string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin prepare turn: %w", err)
	}
	defer tx.Rollback()

	var (
		prevLastMessage string
		titleGenerated  int
	)
	err = tx.QueryRowContext(ctx,
		`SELECT last_message, title_generated FROM sessions WHERE id = ?`, sessionID,
	).Scan(&prevLastMessage, &titleGenerated)
	if errors.Is(err, sql.ErrNoRows) {
		s.log.Debug().Str("session_id", sessionID).Msg("prepare turn on missing session")
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session: %w", err)
	}

	runID := generateID()
	now := nowMillis()

	// The title is a first-message placeholder: set it only before any
	// message exists, and never clobber an AI-generated one.
	if prevLastMessage == "" && title != "" && titleGenerated == 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET title = ? WHERE id = ?`, title, sessionID); err != nil {
			return "", fmt.Errorf("set placeholder title: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'running',
			cancel_requested = 0,
			run_id = ?,
			last_message = ?,
			agent_mode = CASE WHEN ? != '' THEN ? ELSE agent_mode END,
			error_note = '',
			updated_at = ?
		WHERE id = ?`,
		runID, lastMessage, agentMode, agentMode, now, sessionID,
	)
	if err != nil {
		return "", fmt.Errorf("mark running: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM streaming_states WHERE session_id = ?`, sessionID); err != nil {
		return "", fmt.Errorf("clear streaming state: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO streaming_states (session_id, run_id, parts, stage, is_streaming, updated_at)
		VALUES (?, ?, '[]', 'waiting', 1, ?)`,
		sessionID, runID, now,
	)
	if err != nil {
		return "", fmt.Errorf("create streaming state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit prepare turn: %w", err)
	}

	s.publishSession(ctx, sessionID)
	event.Publish(event.Event{
		Type: event.StreamUpdated,
		Data: event.StreamUpdatedData{SessionID: sessionID, Stage: types.StageWaiting, IsStreaming: true},
	})
	return runID, nil
}

// RequestCancel signals cooperative cancellation: status flips to idle
// right away so the UI reflects it, but isStreaming is left untouched.
// The driver still owns saving its partial output before calling Finish.
func (s *Store) RequestCancel(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = 'idle', cancel_requested = 1, updated_at = ? WHERE id = ?`,
		nowMillis(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.publishSession(ctx, sessionID)
	}
	return nil
}

// IsCancelRequested is the driver's poll between tool calls.
func (s *Store) IsCancelRequested(ctx context.Context, sessionID string) (bool, error) {
	var cancel int
	err := s.db.QueryRowContext(ctx,
		`SELECT cancel_requested FROM sessions WHERE id = ?`, sessionID).Scan(&cancel)
	if errors.Is(err, sql.ErrNoRows) {
		// Deleted session: nothing left to cancel, tell the driver to stop.
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return cancel != 0, nil
}

// ForceReset is the unconditional hard reset used only by recovery paths.
func (s *Store) ForceReset(ctx context.Context, sessionID string) error {
	return s.forceReset(ctx, sessionID, "")
}

func (s *Store) forceReset(ctx context.Context, sessionID, errorNote string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin force reset: %w", err)
	}
	defer tx.Rollback()

	now := nowMillis()
	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET
			status = 'idle',
			cancel_requested = 0,
			error_note = CASE WHEN ? != '' THEN ? ELSE error_note END,
			updated_at = ?
		WHERE id = ?`,
		errorNote, errorNote, now, sessionID,
	)
	if err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE streaming_states SET is_streaming = 0, updated_at = ? WHERE session_id = ?`,
		now, sessionID); err != nil {
		return fmt.Errorf("reset streaming state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit force reset: %w", err)
	}

	s.publishSession(ctx, sessionID)
	return nil
}

// Finish terminates streaming at turn end (success, error, or the save
// after a cancellation). Idempotent and commutative with the sweeper.
func (s *Store) Finish(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE streaming_states SET is_streaming = 0, updated_at = ? WHERE session_id = ?`,
		nowMillis(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("finish streaming: %w", err)
	}

	event.Publish(event.Event{
		Type: event.StreamUpdated,
		Data: event.StreamUpdatedData{SessionID: sessionID, IsStreaming: false},
	})
	return nil
}

// RecoverStale force-resets a running session whose heartbeat has frozen
// for longer than threshold. Returns true only when a reset happened.
func (s *Store) RecoverStale(ctx context.Context, sessionID string, threshold time.Duration) (bool, error) {
	var (
		status           string
		sessionUpdatedAt int64
		runID            string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, updated_at, run_id FROM sessions WHERE id = ?`, sessionID,
	).Scan(&status, &sessionUpdatedAt, &runID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read session for recovery: %w", err)
	}
	if types.SessionStatus(status) != types.StatusRunning {
		return false, nil
	}

	heartbeat := sessionUpdatedAt
	var streamUpdatedAt int64
	err = s.db.QueryRowContext(ctx,
		`SELECT updated_at FROM streaming_states WHERE session_id = ?`, sessionID,
	).Scan(&streamUpdatedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("read streaming heartbeat: %w", err)
	}
	if streamUpdatedAt > heartbeat {
		heartbeat = streamUpdatedAt
	}

	elapsed := nowMillis() - heartbeat
	if elapsed < threshold.Milliseconds() {
		return false, nil
	}

	if err := s.forceReset(ctx, sessionID, RecoveredNote); err != nil {
		return false, err
	}

	s.log.Warn().
		Str("session_id", sessionID).
		Int64("elapsed_ms", elapsed).
		Msg("recovered stale session")
	event.Publish(event.Event{
		Type: event.SessionRecovered,
		Data: event.SessionRecoveredData{SessionID: sessionID, RunID: runID, ElapsedMs: elapsed},
	})
	return true, nil
}

// AddTokenUsage increments token counters. Atomic SQL increments, so
// counters never lose updates and never decrement.
func (s *Store) AddTokenUsage(ctx context.Context, sessionID string, input, output int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			input_tokens = input_tokens + ?,
			output_tokens = output_tokens + ?,
			updated_at = ?
		WHERE id = ?`,
		input, output, nowMillis(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("add token usage: %w", err)
	}
	return nil
}

// SetContextUsage records current context-window consumption.
func (s *Store) SetContextUsage(ctx context.Context, sessionID string, used, limit int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET context_used = ?, context_limit = ?, updated_at = ? WHERE id = ?`,
		used, limit, nowMillis(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("set context usage: %w", err)
	}
	return nil
}

// SetGeneratedTitle stores an AI-generated title and pins it so later
// placeholder writes never overwrite it.
func (s *Store) SetGeneratedTitle(ctx context.Context, sessionID, title string) error {
	if title == "" {
		return nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ?, title_generated = 1, updated_at = ? WHERE id = ?`,
		title, nowMillis(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("set generated title: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.publishSession(ctx, sessionID)
	}
	return nil
}

func (s *Store) publishSession(ctx context.Context, sessionID string) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return
	}
	event.Publish(event.Event{
		Type: event.SessionUpdated,
		Data: event.SessionUpdatedData{Session: sess},
	})
}

// GetStreamingState retrieves the live transcript for a session.
func (s *Store) GetStreamingState(ctx context.Context, sessionID string) (*types.StreamingState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, run_id, parts, stage, pending_question, pending_answer, is_streaming, updated_at
		FROM streaming_states WHERE session_id = ?`, sessionID)

	var (
		state       types.StreamingState
		partsJSON   string
		stage       string
		isStreaming int
	)
	err := row.Scan(
		&state.SessionID, &state.RunID, &partsJSON, &stage,
		&state.PendingQuestion, &state.PendingAnswer, &isStreaming, &state.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan streaming state: %w", err)
	}

	state.Stage = types.Stage(stage)
	state.IsStreaming = isStreaming != 0
	state.Parts, err = types.UnmarshalParts([]byte(partsJSON))
	if err != nil {
		return nil, fmt.Errorf("decode parts: %w", err)
	}
	return &state, nil
}

// SaveParts persists the ordered transcript and bumps the heartbeat.
func (s *Store) SaveParts(ctx context.Context, sessionID string, parts []types.Part) error {
	if parts == nil {
		parts = []types.Part{}
	}
	data, err := json.Marshal(parts)
	if err != nil {
		return fmt.Errorf("encode parts: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE streaming_states SET parts = ?, updated_at = ? WHERE session_id = ?`,
		string(data), nowMillis(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("save parts: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Orphaned driver after a newer PrepareTurn, or deleted session.
		s.log.Debug().Str("session_id", sessionID).Msg("save parts on missing streaming state")
		return nil
	}

	event.Publish(event.Event{
		Type: event.StreamUpdated,
		Data: event.StreamUpdatedData{SessionID: sessionID, PartCount: len(parts), IsStreaming: true},
	})
	return nil
}

// SetStage updates the advisory stage hint and bumps the heartbeat.
func (s *Store) SetStage(ctx context.Context, sessionID string, stage types.Stage) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE streaming_states SET stage = ?, updated_at = ? WHERE session_id = ?`,
		string(stage), nowMillis(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("set stage: %w", err)
	}

	event.Publish(event.Event{
		Type: event.StreamUpdated,
		Data: event.StreamUpdatedData{SessionID: sessionID, Stage: stage, IsStreaming: true},
	})
	return nil
}

// SetPendingQuestion parks a question for the UI and clears any stale
// answer.
func (s *Store) SetPendingQuestion(ctx context.Context, sessionID, question string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE streaming_states SET pending_question = ?, pending_answer = '', updated_at = ? WHERE session_id = ?`,
		question, nowMillis(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("set pending question: %w", err)
	}
	return nil
}

// AnswerPendingQuestion is the UI's write path for a parked question.
func (s *Store) AnswerPendingQuestion(ctx context.Context, sessionID, answer string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE streaming_states SET pending_answer = ?, updated_at = ? WHERE session_id = ?`,
		answer, nowMillis(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("answer pending question: %w", err)
	}
	return nil
}

// TakePendingAnswer returns the answer (if any) and clears the exchange.
func (s *Store) TakePendingAnswer(ctx context.Context, sessionID string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin take answer: %w", err)
	}
	defer tx.Rollback()

	var answer string
	err = tx.QueryRowContext(ctx,
		`SELECT pending_answer FROM streaming_states WHERE session_id = ?`, sessionID,
	).Scan(&answer)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read pending answer: %w", err)
	}
	if answer == "" {
		return "", nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE streaming_states SET pending_question = '', pending_answer = '', updated_at = ? WHERE session_id = ?`,
		nowMillis(), sessionID); err != nil {
		return "", fmt.Errorf("clear pending answer: %w", err)
	}
	return answer, tx.Commit()
}
