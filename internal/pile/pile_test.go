package pile

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/gwiz/internal/gcode"
	"github.com/mattjoyce/gwiz/internal/log"
	"github.com/mattjoyce/gwiz/internal/queue"
)

func TestMain(m *testing.M) {
	log.Setup(log.Options{Level: "ERROR"}) // Suppress logs in tests
	os.Exit(m.Run())
}

type recordingRouter struct {
	routed []AckEntry
	err    error
	panic  bool
}

func (r *recordingRouter) Route(e AckEntry) error {
	if r.panic {
		panic("sink exploded")
	}
	r.routed = append(r.routed, e)
	return r.err
}

func commands(entries []gcode.Entry) []gcode.Command {
	out := make([]gcode.Command, len(entries))
	for i, e := range entries {
		out[i] = e.Command
	}
	return out
}

func TestAckLogAppendSurvivesSinkFailure(t *testing.T) {
	tests := []struct {
		name   string
		router *recordingRouter
	}{
		{name: "error", router: &recordingRouter{err: errors.New("disk full")}},
		{name: "panic", router: &recordingRouter{panic: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewAckLog(tt.router, 0)
			l.Append(AckEntry{Kind: AckStatus, Payload: "start"})
			l.Append(AckEntry{Kind: AckStatus, Payload: "echo"})

			assert.Equal(t, 2, l.Len())
			require.Len(t, l.Tail(10), 2)
			assert.Equal(t, "echo", l.Tail(1)[0].Payload)
		})
	}
}

func TestAckLogStampsAndRetains(t *testing.T) {
	router := &recordingRouter{}
	l := NewAckLog(router, 3)
	for _, p := range []string{"a", "b", "c", "d", "e"} {
		l.Append(AckEntry{Kind: AckEcho, Payload: p})
	}

	assert.Equal(t, 5, l.Len())
	tail := l.Tail(10)
	require.Len(t, tail, 3)
	assert.Equal(t, "c", tail[0].Payload)
	assert.False(t, tail[0].At.IsZero())
	assert.Len(t, router.routed, 5)
}

func TestInFlightRetiresLeadingComments(t *testing.T) {
	ack := NewAckLog(nil, 0)
	var retired []gcode.Command
	p := NewInFlight(5, ack, func(e gcode.Entry) { retired = append(retired, e.Command) })

	p.Push(gcode.NewEntry("; layer 1"))
	p.Push(gcode.NewEntry(";; note"))
	assert.Equal(t, 1, p.Len(), "first comment retired when the second arrives")

	p.Push(gcode.NewEntry("G28"))
	assert.Equal(t, []gcode.Command{"G28"}, commands(p.Snapshot()))

	records := ack.Tail(10)
	require.Len(t, records, 2)
	for i, want := range []gcode.Command{"; layer 1", ";; note"} {
		assert.Equal(t, AckComment, records[i].Kind)
		require.NotNil(t, records[i].Entry)
		assert.Equal(t, want, records[i].Entry.Command)
	}
	assert.Equal(t, []gcode.Command{"; layer 1", ";; note"}, retired)
}

func TestInFlightCommentBehindCommandStays(t *testing.T) {
	p := NewInFlight(5, NewAckLog(nil, 0), nil)
	p.Push(gcode.NewEntry("G28"))
	p.Push(gcode.NewEntry("; after"))
	p.Push(gcode.NewEntry("G1 X1"))
	assert.Equal(t, 3, p.Len())

	e, err := p.Retire()
	require.NoError(t, err)
	assert.Equal(t, gcode.Command("G28"), e.Command)
}

func TestInFlightSaturation(t *testing.T) {
	p := NewInFlight(2, NewAckLog(nil, 0), nil)
	assert.False(t, p.Saturated())
	p.Push(gcode.NewEntry("G1"))
	p.Push(gcode.NewEntry("G2"))
	assert.True(t, p.Saturated())

	p.SetCapacity(4)
	assert.False(t, p.Saturated())
	assert.Equal(t, 4, p.Capacity())

	_, err := NewInFlight(1, NewAckLog(nil, 0), nil).Retire()
	assert.ErrorIs(t, err, queue.ErrEmpty)
}

func TestPendingEditing(t *testing.T) {
	p := NewPending("user", 3)
	require.NoError(t, p.Add("G1 X1", queue.Tail))
	require.NoError(t, p.Add("G1 X3", queue.Tail))
	require.NoError(t, p.Add("G28", queue.Head))
	require.NoError(t, p.Add("G1 X2", queue.At(2)))

	assert.Equal(t, []gcode.Command{"G28", "G1 X1", "G1 X2", "G1 X3"}, commands(p.Snapshot()))
	assert.True(t, p.Saturated(), "soft limit exceeded but append still accepted")

	removed, err := p.Delete(1)
	require.NoError(t, err)
	assert.Equal(t, gcode.Command("G1 X1"), removed.Command)

	next, err := p.Pop()
	require.NoError(t, err)
	assert.Equal(t, gcode.Command("G28"), next.Command)

	p.Clear()
	assert.Equal(t, 0, p.Len())
}

func TestProgramPile(t *testing.T) {
	p := NewProgram("part.gcode", []gcode.Command{"G28", "G1 Z5"}, DefaultPendingDisplay)
	assert.Equal(t, "part.gcode", p.Name())
	assert.Equal(t, 2, p.Len())
	e, err := p.Pop()
	require.NoError(t, err)
	assert.Equal(t, gcode.Command("G28"), e.Command)
}

func TestInFlightSettle(t *testing.T) {
	ack := NewAckLog(nil, 0)
	p := NewInFlight(5, ack, nil)
	p.Push(gcode.NewEntry("G28"))
	p.Push(gcode.NewEntry("; trailing"))

	p.Settle()
	assert.Equal(t, 2, p.Len(), "comment behind a command waits")

	_, err := p.Retire()
	require.NoError(t, err)
	p.Settle()
	assert.Equal(t, 0, p.Len())
	require.Len(t, ack.Tail(1), 1)
	assert.Equal(t, AckComment, ack.Tail(1)[0].Kind)
}
