package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteSink stores records in the audit_log table, tagged with the session
// that produced them. The schema is created by storage.OpenSQLite.
type SQLiteSink struct {
	db        *sql.DB
	sessionID string
	timeout   time.Duration
}

func NewSQLiteSink(db *sql.DB, sessionID string) *SQLiteSink {
	return &SQLiteSink{db: db, sessionID: sessionID, timeout: 2 * time.Second}
}

func (s *SQLiteSink) Write(r Record) error {
	at := r.At
	if at.IsZero() {
		at = time.Now()
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO audit_log(session_id, sink, level, message, at)
VALUES(?, ?, ?, ?, ?);
`, s.sessionID, string(r.Stream), r.Level.String(), r.Message, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Query returns the records of one stream for a session, oldest first.
func Query(ctx context.Context, db *sql.DB, sessionID string, stream Stream) ([]Record, error) {
	rows, err := db.QueryContext(ctx, `
SELECT sink, level, message, at FROM audit_log
WHERE session_id = ? AND sink = ?
ORDER BY id;
`, sessionID, string(stream))
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r             Record
			sink, lvl, at string
		)
		if err := rows.Scan(&sink, &lvl, &r.Message, &at); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.Stream = Stream(sink)
		if l, err := ParseLevel(lvl); err == nil {
			r.Level = l
		}
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			r.At = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
