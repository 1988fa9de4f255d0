package inspect

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattjoyce/gwiz/internal/audit"
	"github.com/mattjoyce/gwiz/internal/storage"
)

// Report is the structured JSON representation of a session report.
type Report struct {
	SessionID  string         `json:"session_id"`
	Machine    string         `json:"machine"`
	Port       string         `json:"port"`
	ConfigHash string         `json:"config_hash,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    *time.Time     `json:"ended_at,omitempty"`
	EndReason  string         `json:"end_reason,omitempty"`
	Duration   string         `json:"duration,omitempty"`
	Counts     map[string]int `json:"counts"`
	Problems   []Line         `json:"problems"`
}

// Line is one audit record as shown in a report.
type Line struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// BuildReport renders a terminal-friendly report for a session.
func BuildReport(ctx context.Context, db *sql.DB, sessionID string) (string, error) {
	report, err := gatherReportData(ctx, db, sessionID)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Session Report\n")
	fmt.Fprintf(&out, "Session ID  : %s\n", report.SessionID)
	fmt.Fprintf(&out, "Machine     : %s\n", report.Machine)
	fmt.Fprintf(&out, "Port        : %s\n", report.Port)
	fmt.Fprintf(&out, "Config hash : %s\n", renderUnset(report.ConfigHash, "<none>"))
	fmt.Fprintf(&out, "Started     : %s\n", report.StartedAt.Local().Format(time.DateTime))
	if report.EndedAt != nil {
		fmt.Fprintf(&out, "Ended       : %s (%s)\n", report.EndedAt.Local().Format(time.DateTime), renderUnset(report.EndReason, "no reason"))
		fmt.Fprintf(&out, "Duration    : %s\n", report.Duration)
	} else {
		fmt.Fprintf(&out, "Ended       : <open>\n")
	}
	fmt.Fprintf(&out, "\n")

	for _, stream := range streams {
		fmt.Fprintf(&out, "%-11s : %d records\n", stream, report.Counts[string(stream)])
	}

	if len(report.Problems) > 0 {
		fmt.Fprintf(&out, "\nProblems\n")
		for _, p := range report.Problems {
			fmt.Fprintf(&out, "  %s %-7s %s\n", p.At.Local().Format(time.TimeOnly), p.Level, p.Message)
		}
	}

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

// BuildJSONReport returns the machine-readable JSON session report.
func BuildJSONReport(ctx context.Context, db *sql.DB, sessionID string) (string, error) {
	report, err := gatherReportData(ctx, db, sessionID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

// WriteMachineLog writes the session's acknowledged instructions as a
// replayable G-code program.
func WriteMachineLog(ctx context.Context, db *sql.DB, sessionID string, w io.Writer) (int, error) {
	records, err := audit.Query(ctx, db, sessionID, audit.StreamMachine)
	if err != nil {
		return 0, err
	}
	for _, r := range records {
		if _, err := fmt.Fprintln(w, r.Message); err != nil {
			return 0, fmt.Errorf("write machine log: %w", err)
		}
	}
	return len(records), nil
}

var streams = []audit.Stream{audit.StreamMachine, audit.StreamDiagnostic, audit.StreamDebug}

func gatherReportData(ctx context.Context, db *sql.DB, sessionID string) (*Report, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}

	sess, err := storage.NewSessions(db).Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %q: %w", sessionID, err)
	}

	report := &Report{
		SessionID:  sess.ID,
		Machine:    sess.Machine,
		Port:       sess.Port,
		ConfigHash: sess.ConfigHash,
		StartedAt:  sess.StartedAt,
		EndedAt:    sess.EndedAt,
		Counts:     make(map[string]int, len(streams)),
		Problems:   make([]Line, 0),
	}
	if sess.EndReason != nil {
		report.EndReason = *sess.EndReason
	}
	if sess.EndedAt != nil {
		report.Duration = sess.EndedAt.Sub(sess.StartedAt).Round(time.Second).String()
	}

	for _, stream := range streams {
		records, err := audit.Query(ctx, db, sessionID, stream)
		if err != nil {
			return nil, err
		}
		report.Counts[string(stream)] = len(records)
		if stream != audit.StreamDiagnostic {
			continue
		}
		for _, r := range records {
			if r.Level < audit.LevelWarn {
				continue
			}
			report.Problems = append(report.Problems, Line{Level: r.Level.String(), Message: r.Message, At: r.At})
		}
	}

	return report, nil
}

func renderUnset(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
