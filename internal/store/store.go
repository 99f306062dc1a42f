package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/internal/config"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Store provides a PostgreSQL implementation of the Recorder interface.
type Store struct {
	pool DBPool
	log  *zap.Logger
	now  func() time.Time
}

var _ Recorder = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS sessions (
    id               TEXT PRIMARY KEY,
    task             TEXT NOT NULL,
    device           TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL,
    step_count       INTEGER NOT NULL DEFAULT 0,
    message          TEXT NOT NULL DEFAULT '',
    pending_question TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS session_steps (
    session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    step         INTEGER NOT NULL,
    kind         TEXT NOT NULL,
    action       JSONB NOT NULL,
    outcome      JSONB NOT NULL,
    sub_goal_id  INTEGER NOT NULL DEFAULT 0,
    loop_warning TEXT NOT NULL DEFAULT '',
    error        TEXT NOT NULL DEFAULT '',
    recorded_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (session_id, step)
);
CREATE INDEX IF NOT EXISTS sessions_updated_at_idx ON sessions (updated_at);
`

// EnsureSchema creates the archive tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("failed to create session schema: %w", err)
	}
	return nil
}

// CreateSession inserts a running session. An empty ID is filled with a UUID.
func (s *Store) CreateSession(ctx context.Context, sess Session) (Session, error) {
	sess = prepareSession(sess, s.now())
	_, err := s.pool.Exec(ctx, `
        INSERT INTO sessions (id, task, device, status, step_count, message, pending_question, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`,
		sess.ID, sess.Task, sess.Device, string(sess.Status), sess.StepCount, sess.Message, sess.PendingQuestion, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("failed to insert session: %w", err)
	}
	return sess, nil
}

// RecordStep appends a step and touches the session's update time.
func (s *Store) RecordStep(ctx context.Context, rec StepRecord) error {
	action, outcome, err := encodePayload(rec)
	if err != nil {
		return fmt.Errorf("failed to encode step payload: %w", err)
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = s.now()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, `
        INSERT INTO session_steps (session_id, step, kind, action, outcome, sub_goal_id, loop_warning, error, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`,
		rec.SessionID, rec.Step, string(rec.Action.Kind), action, outcome, rec.SubGoalID, rec.LoopWarning, rec.Error, rec.RecordedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert step %d: %w", rec.Step, err)
	}
	tag, err := tx.Exec(ctx, `UPDATE sessions SET updated_at = $2 WHERE id = $1;`, rec.SessionID, rec.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, rec.SessionID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateStatus overwrites the session's status fields.
func (s *Store) UpdateStatus(ctx context.Context, id string, u StatusUpdate) error {
	tag, err := s.pool.Exec(ctx, `
        UPDATE sessions SET status = $2, step_count = $3, message = $4, pending_question = $5, updated_at = $6
        WHERE id = $1;`,
		id, string(u.Status), u.StepCount, u.Message, u.PendingQuestion, s.now())
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const sessionColumns = `id, task, device, status, step_count, message, pending_question, created_at, updated_at`

func scanSession(row pgx.Row) (Session, error) {
	var sess Session
	var status string
	err := row.Scan(&sess.ID, &sess.Task, &sess.Device, &status, &sess.StepCount,
		&sess.Message, &sess.PendingQuestion, &sess.CreatedAt, &sess.UpdatedAt)
	sess.Status = Status(status)
	return sess, err
}

// GetSession loads a session and its steps in step order.
func (s *Store) GetSession(ctx context.Context, id string) (Session, []StepRecord, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1;`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Session{}, nil, fmt.Errorf("failed to query session: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
        SELECT step, action, outcome, sub_goal_id, loop_warning, error, recorded_at
        FROM session_steps
        WHERE session_id = $1
        ORDER BY step ASC;`, id)
	if err != nil {
		return Session{}, nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		rec := StepRecord{SessionID: id}
		var action, outcome []byte
		if err := rows.Scan(&rec.Step, &action, &outcome, &rec.SubGoalID, &rec.LoopWarning, &rec.Error, &rec.RecordedAt); err != nil {
			return Session{}, nil, fmt.Errorf("failed to scan step row: %w", err)
		}
		if err := decodePayload(&rec, action, outcome); err != nil {
			return Session{}, nil, fmt.Errorf("failed to decode step %d: %w", rec.Step, err)
		}
		steps = append(steps, rec)
	}
	if err := rows.Err(); err != nil {
		return Session{}, nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return sess, steps, nil
}

// ListSessions returns matching sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context, f Filter) ([]Session, error) {
	query, args := buildListQuery(f, func(n int) string { return "$" + strconv.Itoa(n) })
	rows, err := s.pool.Query(ctx, `SELECT `+sessionColumns+` FROM sessions`+query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// DeleteSession removes a session; steps go with it via ON DELETE CASCADE.
func (s *Store) DeleteSession(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1;`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// PruneSessions removes finished sessions older than the cutoff.
func (s *Store) PruneSessions(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE updated_at < $1 AND status = ANY($2);`, cutoff, finishedStatuses)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	removed := int(tag.RowsAffected())
	if removed > 0 {
		s.log.Info("Pruned archived sessions", zap.Int("removed", removed), zap.Time("cutoff", cutoff))
	}
	return removed, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// -- Shared helpers --

func prepareSession(sess Session, now time.Time) Session {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Status == "" {
		sess.Status = StatusRunning
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	return sess
}

// buildListQuery renders the WHERE/ORDER/LIMIT tail for ListSessions with
// backend-specific placeholders.
func buildListQuery(f Filter, placeholder func(n int) string) (string, []any) {
	var where []string
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, "status = "+placeholder(len(args)))
	}
	if f.Device != "" {
		args = append(args, f.Device)
		where = append(where, "device = "+placeholder(len(args)))
	}

	var b strings.Builder
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY updated_at DESC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		b.WriteString(" LIMIT " + placeholder(len(args)))
	}
	b.WriteString(";")
	return b.String(), args
}

// Open builds the recorder selected by cfg.Type. "none" or an empty type
// returns a nil Recorder and no error.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Recorder, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "sqlite":
		s, err := NewSQLite(ctx, cfg.SQLite.Path, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		s, err := New(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store type %q", cfg.Type)
	}
}
