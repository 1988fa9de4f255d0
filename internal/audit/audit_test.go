package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/gwiz/internal/gcode"
	"github.com/mattjoyce/gwiz/internal/log"
	"github.com/mattjoyce/gwiz/internal/pile"
	"github.com/mattjoyce/gwiz/internal/storage"
)

func TestMain(m *testing.M) {
	log.Setup(log.Options{Level: "ERROR"}) // Suppress logs in tests
	os.Exit(m.Run())
}

type memSink struct {
	records []Record
	err     error
}

func (s *memSink) Write(r Record) error {
	s.records = append(s.records, r)
	return s.err
}

func entry(cmd string) *gcode.Entry {
	e := gcode.NewEntry(gcode.Command(cmd))
	return &e
}

func TestRouterRouting(t *testing.T) {
	tests := []struct {
		name   string
		in     pile.AckEntry
		stream Stream
		level  Level
		msg    string
	}{
		{
			name:   "acknowledged command",
			in:     pile.AckEntry{Entry: entry("G1 X10"), Kind: pile.AckOK, Payload: "ok"},
			stream: StreamMachine, level: LevelInfo, msg: "G1 X10",
		},
		{
			name:   "unsolicited comment",
			in:     pile.AckEntry{Kind: pile.AckEcho, Payload: "; hello"},
			stream: StreamMachine, level: LevelWarn, msg: "; hello",
		},
		{
			name:   "status",
			in:     pile.AckEntry{Kind: pile.AckStatus, Payload: "start"},
			stream: StreamMachine, level: LevelInfo, msg: ";; start",
		},
		{
			name:   "retired comment",
			in:     pile.AckEntry{Entry: entry("; layer 2"), Kind: pile.AckComment, Payload: "; layer 2"},
			stream: StreamMachine, level: LevelWarn, msg: "; layer 2",
		},
		{
			name:   "echo",
			in:     pile.AckEntry{Kind: pile.AckEcho, Payload: "echo:SD card ok"},
			stream: StreamDiagnostic, level: LevelDebug, msg: `<echo "echo:SD card ok">`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var machine, diag, debug memSink
			r := &Router{Machine: &machine, Diagnostic: &diag, Debug: &debug}
			require.NoError(t, r.Route(tt.in))

			all := append(append(machine.records, diag.records...), debug.records...)
			require.Len(t, all, 1)
			assert.Equal(t, tt.stream, all[0].Stream)
			assert.Equal(t, tt.level, all[0].Level)
			assert.Equal(t, tt.msg, all[0].Message)
		})
	}
}

func TestRouterErrorGoesToDiagnosticAndDebug(t *testing.T) {
	var machine, diag, debug memSink
	r := &Router{Machine: &machine, Diagnostic: &diag, Debug: &debug}
	require.NoError(t, r.Route(pile.AckEntry{Entry: entry("G1"), Kind: pile.AckError, Payload: pile.PayloadUnknownCommand}))

	assert.Empty(t, machine.records)
	require.Len(t, diag.records, 1)
	require.Len(t, debug.records, 1)
	assert.Equal(t, "Unknown command:G1", diag.records[0].Message)
	assert.Equal(t, LevelError, diag.records[0].Level)
	assert.Equal(t, LevelDebug, debug.records[0].Level)
}

func TestRouterWithNilSinks(t *testing.T) {
	r := &Router{}
	assert.NoError(t, r.Route(pile.AckEntry{Entry: entry("G28"), Kind: pile.AckOK, Payload: "ok"}))
}

func TestMultiSinkTriesEverySink(t *testing.T) {
	boom := errors.New("boom")
	a := &memSink{err: boom}
	b := &memSink{}
	err := MultiSink{a, nil, b}.Write(Record{Message: "x"})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.records, 1)
	assert.Len(t, b.records, 1)
}

func TestLevelFilter(t *testing.T) {
	next := &memSink{}
	f := LevelFilter{Min: LevelWarn, Next: next}
	require.NoError(t, f.Write(Record{Level: LevelInfo}))
	require.NoError(t, f.Write(Record{Level: LevelError}))
	assert.Len(t, next.records, 1)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"WARN":    LevelWarn,
		"error":   LevelError,
		"25":      Level(25),
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestFileSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "machine.log")

	s, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Write(Record{Level: LevelInfo, Message: "G28"}))
	require.NoError(t, s.Close())

	s, err = OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Write(Record{Level: LevelWarn, Message: "; layer 1"}))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "INFO\tG28\nWARNING\t; layer 1\n", string(data))
}

func TestSQLiteSinkPersistsPerSession(t *testing.T) {
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	id, err := storage.NewSessions(db).Start(ctx, "prusa", "/dev/ttyACM0", "")
	require.NoError(t, err)

	s := NewSQLiteSink(db, id)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Write(Record{Stream: StreamMachine, Level: LevelInfo, Message: "G28", At: at}))
	require.NoError(t, s.Write(Record{Stream: StreamMachine, Level: LevelInfo, Message: "G1 Z5"}))
	require.NoError(t, s.Write(Record{Stream: StreamDebug, Level: LevelDebug, Message: "noise"}))

	got, err := Query(ctx, db, id, StreamMachine)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "G28", got[0].Message)
	assert.Equal(t, LevelInfo, got[0].Level)
	assert.True(t, at.Equal(got[0].At))
	assert.Equal(t, "G1 Z5", got[1].Message)
}

func TestAckLogRoutesThroughRouter(t *testing.T) {
	machine := &memSink{err: errors.New("read-only filesystem")}
	ack := pile.NewAckLog(&Router{Machine: machine}, 0)

	ack.Append(pile.AckEntry{Entry: entry("G28"), Kind: pile.AckOK, Payload: "ok"})

	assert.Equal(t, 1, ack.Len())
	require.Len(t, machine.records, 1)
	assert.Equal(t, "G28", machine.records[0].Message)
}
