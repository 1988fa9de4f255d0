package events

// Type names an event stream.
type Type string

const (
	PileChanged     Type = "pile.changed"
	MachineStatus   Type = "machine.status"
	MachinePosition Type = "machine.position"
	Telemetry       Type = "telemetry"
	Notice          Type = "notice"
	PollSkipped     Type = "poll.skipped"
)

// PollSkip is the payload of PollSkipped.
type PollSkip struct {
	Command string `json:"command"`
	Reason  string `json:"reason"`
}

// PileCounts is the payload of PileChanged.
type PileCounts struct {
	Pending  int `json:"pending"`
	Programs int `json:"programs"`
	InFlight int `json:"in_flight"`
	Acked    int `json:"acked"`
}

// StatusChange is the payload of MachineStatus.
type StatusChange struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Running bool   `json:"running"`
}

// PositionReport is the payload of MachinePosition.
type PositionReport struct {
	Position string `json:"position"`
}

// HeaterReading is one heater inside a Telemetry payload.
type HeaterReading struct {
	Label   string   `json:"label"`
	Current float64  `json:"current"`
	Target  *float64 `json:"target,omitempty"`
	Power   *int     `json:"power,omitempty"`
}

// NoticeLevel grades operator notices.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeWarn  NoticeLevel = "warn"
	NoticeError NoticeLevel = "error"
)

// NoticeMessage is the payload of Notice.
type NoticeMessage struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}
