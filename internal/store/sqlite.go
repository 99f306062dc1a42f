package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite" // Registers the pure-Go "sqlite" driver.
	"go.uber.org/zap"
)

// SQLiteStore archives sessions in an embedded database file. Timestamps
// are stored as Unix nanoseconds.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

var _ Recorder = (*SQLiteStore)(nil)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		task TEXT NOT NULL,
		device TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		step_count INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		pending_question TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS session_steps (
		session_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		kind TEXT NOT NULL,
		action TEXT NOT NULL,
		outcome TEXT NOT NULL,
		sub_goal_id INTEGER NOT NULL DEFAULT 0,
		loop_warning TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		recorded_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, step)
	);`,
	`CREATE INDEX IF NOT EXISTS sessions_updated_at_idx ON sessions (updated_at);`,
}

// NewSQLite opens (or creates) the database at path. ":memory:" keeps the
// archive in memory for the life of the process.
func NewSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection serializes writers and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)

	for _, q := range sqliteSchema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create session schema: %w", err)
		}
	}
	return &SQLiteStore{
		db:  db,
		log: logger.Named("store.sqlite"),
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateSession inserts a running session. An empty ID is filled with a UUID.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess Session) (Session, error) {
	sess = prepareSession(sess, s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, task, device, status, step_count, message, pending_question, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		sess.ID, sess.Task, sess.Device, string(sess.Status), sess.StepCount, sess.Message, sess.PendingQuestion,
		sess.CreatedAt.UnixNano(), sess.UpdatedAt.UnixNano())
	if err != nil {
		return Session{}, fmt.Errorf("failed to insert session: %w", err)
	}
	return sess, nil
}

// RecordStep appends a step and touches the session's update time.
func (s *SQLiteStore) RecordStep(ctx context.Context, rec StepRecord) error {
	action, outcome, err := encodePayload(rec)
	if err != nil {
		return fmt.Errorf("failed to encode step payload: %w", err)
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = s.now()
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?;`, rec.RecordedAt.UnixNano(), rec.SessionID)
		if err != nil {
			return fmt.Errorf("failed to touch session: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, rec.SessionID)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_steps (session_id, step, kind, action, outcome, sub_goal_id, loop_warning, error, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
			rec.SessionID, rec.Step, string(rec.Action.Kind), string(action), string(outcome),
			rec.SubGoalID, rec.LoopWarning, rec.Error, rec.RecordedAt.UnixNano()); err != nil {
			return fmt.Errorf("failed to insert step %d: %w", rec.Step, err)
		}
		return nil
	})
}

// UpdateStatus overwrites the session's status fields.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, u StatusUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, step_count = ?, message = ?, pending_question = ?, updated_at = ?
		WHERE id = ?;`,
		string(u.Status), u.StepCount, u.Message, u.PendingQuestion, s.now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSession(row rowScanner) (Session, error) {
	var sess Session
	var status string
	var created, updated int64
	if err := row.Scan(&sess.ID, &sess.Task, &sess.Device, &status, &sess.StepCount,
		&sess.Message, &sess.PendingQuestion, &created, &updated); err != nil {
		return Session{}, err
	}
	sess.Status = Status(status)
	sess.CreatedAt = time.Unix(0, created).UTC()
	sess.UpdatedAt = time.Unix(0, updated).UTC()
	return sess, nil
}

// GetSession loads a session and its steps in step order.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (Session, []StepRecord, error) {
	sess, err := scanSQLiteSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?;`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Session{}, nil, fmt.Errorf("failed to query session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT step, action, outcome, sub_goal_id, loop_warning, error, recorded_at
		FROM session_steps WHERE session_id = ? ORDER BY step ASC;`, id)
	if err != nil {
		return Session{}, nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		rec := StepRecord{SessionID: id}
		var action, outcome string
		var recorded int64
		if err := rows.Scan(&rec.Step, &action, &outcome, &rec.SubGoalID, &rec.LoopWarning, &rec.Error, &recorded); err != nil {
			return Session{}, nil, fmt.Errorf("failed to scan step row: %w", err)
		}
		rec.RecordedAt = time.Unix(0, recorded).UTC()
		if err := decodePayload(&rec, []byte(action), []byte(outcome)); err != nil {
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
func (s *SQLiteStore) ListSessions(ctx context.Context, f Filter) ([]Session, error) {
	query, args := buildListQuery(f, func(int) string { return "?" })
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions`+query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSQLiteSession(rows)
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

// DeleteSession removes a session and its steps.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_steps WHERE session_id = ?;`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?;`, id)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return deleted, nil
}

// PruneSessions removes finished sessions older than the cutoff.
func (s *SQLiteStore) PruneSessions(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan).UnixNano()
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(finishedStatuses)), ", ")
	args := []any{cutoff}
	for _, st := range finishedStatuses {
		args = append(args, st)
	}
	match := `FROM sessions WHERE updated_at < ? AND status IN (` + marks + `)`

	var removed int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_steps WHERE session_id IN (SELECT id `+match+`);`, args...); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE `+match+`;`, args...)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		removed = int(n)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	if removed > 0 {
		s.log.Info("Pruned archived sessions", zap.Int("removed", removed))
	}
	return removed, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}
	return tx.Commit()
}
