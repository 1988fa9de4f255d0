package reply

import "strings"

const (
	prefixOK             = "ok"
	prefixOKTemp         = "ok T:"
	prefixTemp           = " T:"
	prefixPosition       = "X:"
	prefixUnknownCommand = "echo:Unknown command:"
	prefixEcho           = "echo:"
	prefixMisc           = "//"
	positionCountMarker  = " Count "
)

var heartbeats = map[string]struct{}{
	"wait":                  {},
	"echo:busy: processing": {},
}

// Classify maps one line of device output to a Reply. A trailing "\n" or
// "\r\n" is tolerated.
func Classify(line string) Reply {
	line = strings.TrimRight(line, "\r\n")
	r := Reply{Raw: line}

	switch {
	case strings.HasPrefix(line, prefixOK):
		r.Kind = KindAck
		if strings.HasPrefix(line, prefixOKTemp) {
			r.Telemetry, r.TelemetryErr = ParseTelemetry(line[len(prefixOK):])
		}
	case isHeartbeat(line):
		r.Kind = KindHeartbeat
	case strings.HasPrefix(line, prefixPosition):
		r.Kind = KindPosition
		r.Position, _, _ = strings.Cut(line, positionCountMarker)
	case strings.HasPrefix(line, prefixTemp):
		r.Kind = KindTempReport
		r.Telemetry, r.TelemetryErr = ParseTelemetry(line)
	case strings.HasPrefix(line, prefixUnknownCommand):
		r.Kind = KindUnknownCommand
		r.Command = unknownCommandText(line[len(prefixUnknownCommand):])
	case strings.HasPrefix(line, prefixEcho):
		r.Kind = KindEcho
	case strings.HasPrefix(line, prefixMisc):
		r.Kind = KindMiscStatus
	case line == "pages_ready":
		r.Kind = KindReady
	case line == "start":
		r.Kind = KindStart
	default:
		r.Kind = KindStatus
	}
	return r
}

func isHeartbeat(line string) bool {
	_, ok := heartbeats[line]
	return ok
}

// unknownCommandText extracts the command Marlin quotes in
// `echo:Unknown command: "G1 X"`. Unquoted reports fall back to the
// trimmed remainder.
func unknownCommandText(rest string) string {
	_, quoted, ok := strings.Cut(rest, `"`)
	if !ok {
		return strings.TrimSpace(rest)
	}
	text, _, _ := strings.Cut(quoted, `"`)
	return text
}
