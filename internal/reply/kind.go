// Package reply classifies lines of device output.
//
// The device protocol is a loosely specified, firmware-dependent text stream
// (modelled on Marlin) with no framing beyond the newline. Classify is total:
// every line maps to exactly one Kind and nothing here panics or returns an
// error, so an unexpected line degrades to KindStatus rather than stopping a
// live session.
//
// See https://reprap.org/wiki/G-code#Replies_from_the_RepRap_machine_to_the_host_computer
package reply

// Kind tags a classified device line.
type Kind int

const (
	// KindStatus is the fallback for anything unrecognised.
	KindStatus Kind = iota
	// KindAck is a line starting with "ok". It retires the oldest in-flight
	// command and may carry telemetry ("ok T:...").
	KindAck
	// KindTempReport is telemetry without an ack (" T:...").
	KindTempReport
	// KindHeartbeat is "wait" or "echo:busy: processing".
	KindHeartbeat
	// KindPosition is an M114 style "X:... Y:... Count ..." report.
	KindPosition
	// KindUnknownCommand is "echo:Unknown command: ..." naming a rejected command.
	KindUnknownCommand
	// KindEcho is any other "echo:" line.
	KindEcho
	// KindMiscStatus is a "//" host message.
	KindMiscStatus
	// KindReady is "pages_ready".
	KindReady
	// KindStart is "start", sent by the firmware after boot.
	KindStart
)

var kindNames = map[Kind]string{
	KindStatus:         "status",
	KindAck:            "ack",
	KindTempReport:     "temp_report",
	KindHeartbeat:      "heartbeat",
	KindPosition:       "position",
	KindUnknownCommand: "unknown_command",
	KindEcho:           "echo",
	KindMiscStatus:     "misc_status",
	KindReady:          "ready",
	KindStart:          "start",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "invalid"
}

// Reply is the result of classifying one line.
type Reply struct {
	Kind Kind
	// Raw is the line as received, without its terminator.
	Raw string
	// Command is the rejected command text for KindUnknownCommand.
	Command string
	// Position is the report truncated before " Count " for KindPosition.
	Position string
	// Telemetry is set for KindTempReport and for acks of the form "ok T:".
	Telemetry *Telemetry
	// TelemetryErr records why a telemetry line could not be parsed.
	TelemetryErr error
}

// HasTelemetry reports whether the line carried a temperature report,
// parsed or not.
func (r Reply) HasTelemetry() bool {
	return r.Telemetry != nil || r.TelemetryErr != nil
}
