package chat

const (
	DefaultSessionMinutes = 5
	DefaultSoundIndex     = 1
	MinSoundIndex         = 1
	MaxSoundIndex         = 10
)

// ActionCommand is a side effect requested by the assistant. The concrete
// variants are CallAction and MeditateAction.
type ActionCommand interface {
	actionName() string
}

// CallAction asks the client to place a phone call.
type CallAction struct {
	Target string
}

// MeditateAction asks the client to start a timed meditation session.
type MeditateAction struct {
	DurationMinutes int
	SoundIndex      int
}

func (CallAction) actionName() string     { return "call" }
func (MeditateAction) actionName() string { return "meditate" }

// ActionName returns the wire name of the command.
func ActionName(cmd ActionCommand) string {
	if cmd == nil {
		return ""
	}
	return cmd.actionName()
}

// ClampSoundIndex keeps a sound selection inside the bundled range.
func ClampSoundIndex(idx int) int {
	if idx < MinSoundIndex {
		return MinSoundIndex
	}
	if idx > MaxSoundIndex {
		return MaxSoundIndex
	}
	return idx
}
