package orchestrator

// State is the orchestrator lifecycle phase.
type State int

const (
	// StateIdle: the wake listener holds the capture lease, or is waiting to
	// be restarted after a fault.
	StateIdle State = iota

	// StateAwaitingCommand: a recognition session holds the capture lease.
	StateAwaitingCommand

	// StateDispatching: a transcript is being resolved and executed. No lease
	// is held.
	StateDispatching

	// StateStopped is terminal.
	StateStopped
)

// String returns the lower-case state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCommand:
		return "awaiting_command"
	case StateDispatching:
		return "dispatching"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText implements [encoding.TextMarshaler] so states serialise by
// name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
