package chat

// ConnectionState is the lifecycle state of the assistant channel.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Failed
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// TimedSession captures the state of a guided meditation session.
type TimedSession struct {
	SoundIndex       int  `json:"soundIndex"`
	TotalSeconds     int  `json:"totalSeconds"`
	RemainingSeconds int  `json:"remainingSeconds"`
	Active           bool `json:"active"`
}

// Elapsed returns how many seconds of the session have run.
func (s TimedSession) Elapsed() int {
	if s.TotalSeconds <= s.RemainingSeconds {
		return 0
	}
	return s.TotalSeconds - s.RemainingSeconds
}
