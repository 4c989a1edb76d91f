package player

import "errors"

// Failure causes the command layer pattern-matches with errors.Is.
// These are reported outcomes, not crashes; transient transport errors
// are wrapped separately and the reconciliation loop swallows them.
var (
	ErrNoDevice          = errors.New("no playback device available")
	ErrNoPlaylist        = errors.New("no matching playlist")
	ErrAmbiguousPlaylist = errors.New("more than one matching playlist")
	ErrQueueNotEmpty     = errors.New("queue is not empty")
	ErrPlaybackActive    = errors.New("something is already playing")
)
