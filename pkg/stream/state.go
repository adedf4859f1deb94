package stream

// ConnectionState describes the lifecycle of a camera connection.
// Failed is terminal: a failed reader is never resurrected on its own
// and must be restarted explicitly (see Manager.RestartCamera).
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Streaming
	Reconnecting
	Failed
)

// String returns a human-readable state name.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a snapshot of a reader's connection state.
// RetryCount resets to 0 on every successful connect.
type Status struct {
	State      ConnectionState
	RetryCount int
	LastError  error
}
