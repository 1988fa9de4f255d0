package dispatch

// State is the position of the loop in its reply/drain cycle.
type State int

const (
	AwaitingReply State = iota
	Ready
	Draining
)

func (s State) String() string {
	switch s {
	case AwaitingReply:
		return "awaiting_reply"
	case Ready:
		return "ready"
	case Draining:
		return "draining"
	default:
		return "invalid"
	}
}

// Status is the connection health shown to the operator.
type Status string

const (
	StatusUnknown Status = "UNK"
	StatusOK      Status = "OK"
	StatusErrored Status = "ERR"
)
