package api

import (
	"encoding/json"
	"time"

	"github.com/mattjoyce/gwiz/internal/dispatch"
	"github.com/mattjoyce/gwiz/internal/gcode"
	"github.com/mattjoyce/gwiz/internal/pile"
)

// CommandsRequest is the JSON body for POST /commands.
type CommandsRequest struct {
	Commands []string `json:"commands"`
	// Position is "tail" (default), "head" or a pending offset.
	Position json.RawMessage `json:"position,omitempty"`
}

// CommandsResponse is returned once commands are queued.
type CommandsResponse struct {
	Queued  int `json:"queued"`
	Pending int `json:"pending"`
}

// ControlResponse is returned by POST /control/{action}.
type ControlResponse struct {
	Action  string `json:"action"`
	Running bool   `json:"running"`
	Flushed int    `json:"flushed,omitempty"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Machine       string `json:"machine"`
	Connection    string `json:"connection"`
	Ready         bool   `json:"ready"`
	Running       bool   `json:"running"`
	Pending       int    `json:"pending"`
	InFlight      int    `json:"in_flight"`
}

// EntryView is one queued command.
type EntryView struct {
	Command    string    `json:"command"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// AckView is one acknowledged-log record.
type AckView struct {
	Command string    `json:"command,omitempty"`
	Kind    string    `json:"kind"`
	Payload string    `json:"payload"`
	At      time.Time `json:"at"`
}

// HeaterView is the last reading of one heater.
type HeaterView struct {
	Label   string   `json:"label"`
	Current float64  `json:"current"`
	Target  *float64 `json:"target,omitempty"`
	Power   *int     `json:"power,omitempty"`
}

// ProgramView is a loaded program.
type ProgramView struct {
	Name      string      `json:"name"`
	Remaining int         `json:"remaining"`
	Head      []EntryView `json:"head"`
}

// NoticeView is an operator message.
type NoticeView struct {
	At      time.Time `json:"at"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// SnapshotResponse is returned by GET /snapshot.
type SnapshotResponse struct {
	Machine          string        `json:"machine"`
	Connection       string        `json:"connection"`
	State            string        `json:"state"`
	Ready            bool          `json:"ready"`
	Running          bool          `json:"running"`
	Position         string        `json:"position,omitempty"`
	Heaters          []HeaterView  `json:"heaters"`
	Pending          []EntryView   `json:"pending"`
	PendingOverflow  bool          `json:"pending_overflow"`
	Programs         []ProgramView `json:"programs"`
	InFlight         []EntryView   `json:"in_flight"`
	InFlightCapacity int           `json:"in_flight_capacity"`
	Acked            []AckView     `json:"acked"`
	AckTotal         int           `json:"ack_total"`
	Notices          []NoticeView  `json:"notices"`
	UnmatchedErrors  int           `json:"unmatched_errors"`
}

func entryViews(entries []gcode.Entry) []EntryView {
	out := make([]EntryView, len(entries))
	for i, e := range entries {
		out[i] = EntryView{Command: string(e.Command), EnqueuedAt: e.EnqueuedAt}
	}
	return out
}

func ackViews(entries []pile.AckEntry) []AckView {
	out := make([]AckView, len(entries))
	for i, a := range entries {
		v := AckView{Kind: string(a.Kind), Payload: a.Payload, At: a.At}
		if a.Entry != nil {
			v.Command = string(a.Entry.Command)
		}
		out[i] = v
	}
	return out
}

func snapshotResponse(snap dispatch.Snapshot) SnapshotResponse {
	resp := SnapshotResponse{
		Machine:          snap.Machine.Name,
		Connection:       string(snap.Machine.Status),
		State:            snap.State.String(),
		Ready:            snap.Machine.Ready,
		Running:          snap.Machine.Running,
		Position:         snap.Machine.Position,
		Heaters:          make([]HeaterView, 0, len(snap.Machine.Heaters)),
		Pending:          entryViews(snap.Pending),
		PendingOverflow:  snap.PendingOverflow,
		Programs:         make([]ProgramView, len(snap.Programs)),
		InFlight:         entryViews(snap.InFlight),
		InFlightCapacity: snap.InFlightCapacity,
		Acked:            ackViews(snap.Acked),
		AckTotal:         snap.AckTotal,
		Notices:          make([]NoticeView, len(snap.Notices)),
		UnmatchedErrors:  snap.UnmatchedErrors,
	}
	for _, h := range snap.Machine.Heaters {
		v := HeaterView{Label: h.Label, Current: h.Current}
		if h.HasTarget {
			target := h.Target
			v.Target = &target
		}
		if h.HasPower {
			power := h.Power
			v.Power = &power
		}
		resp.Heaters = append(resp.Heaters, v)
	}
	for i, p := range snap.Programs {
		resp.Programs[i] = ProgramView{Name: p.Name, Remaining: p.Remaining, Head: entryViews(p.Head)}
	}
	for i, n := range snap.Notices {
		resp.Notices[i] = NoticeView{At: n.At, Level: string(n.Level), Message: n.Message}
	}
	return resp
}
