package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// Session is one connection to a machine, from open to disconnect or quit.
type Session struct {
	ID         string
	Machine    string
	Port       string
	ConfigHash string
	StartedAt  time.Time
	EndedAt    *time.Time
	EndReason  *string
}

// Sessions records connection lifetimes so audit rows can be grouped per run.
type Sessions struct {
	db *sql.DB
}

func NewSessions(db *sql.DB) *Sessions {
	return &Sessions{db: db}
}

// Start inserts a new session and returns its id.
func (s *Sessions) Start(ctx context.Context, machine, port, configHash string) (string, error) {
	if machine == "" {
		return "", fmt.Errorf("machine is empty")
	}
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions(id, machine, port, config_hash, started_at)
VALUES(?, ?, ?, ?, ?);
`, id, machine, port, configHash, now)
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	return id, nil
}

// End stamps the session with its end time and reason.
func (s *Sessions) End(ctx context.Context, id, reason string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
UPDATE sessions SET ended_at = ?, end_reason = ? WHERE id = ?;
`, now, reason, id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Get loads one session.
func (s *Sessions) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, machine, port, config_hash, started_at, ended_at, end_reason
FROM sessions WHERE id = ?;
`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

// List returns the most recent sessions, newest first.
func (s *Sessions) List(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, machine, port, config_hash, started_at, ended_at, end_reason
FROM sessions ORDER BY rowid DESC LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess       Session
		configHash sql.NullString
		startedAtS string
		endedAtS   sql.NullString
		endReason  sql.NullString
	)
	if err := row.Scan(&sess.ID, &sess.Machine, &sess.Port, &configHash, &startedAtS, &endedAtS, &endReason); err != nil {
		return nil, err
	}

	sess.ConfigHash = configHash.String
	if t, err := time.Parse(time.RFC3339Nano, startedAtS); err == nil {
		sess.StartedAt = t
	}
	if endedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, endedAtS.String); err == nil {
			sess.EndedAt = &t
		}
	}
	if endReason.Valid {
		sess.EndReason = &endReason.String
	}
	return &sess, nil
}
