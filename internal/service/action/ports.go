package action

import "context"

// ContactDirectory resolves a contact display name to a dialable number.
// Implementations return ErrContactNotFound when nothing matches.
type ContactDirectory interface {
	LookupNumber(ctx context.Context, displayName string) (string, error)
}

// CallPlacer performs the platform "place call" side effect.
type CallPlacer interface {
	// CanPlaceCalls reports whether the user granted call permission.
	CanPlaceCalls() bool
	PlaceCall(ctx context.Context, number string) error
}

// AudioPlayer starts looping playback of a bundled meditation sound.
type AudioPlayer interface {
	PlayLoop(soundIndex int) (AudioLoop, error)
}

// AudioLoop is a playing sound. Stop halts playback; Release frees it.
type AudioLoop interface {
	Stop()
	Release()
}
