package player

import (
	"context"

	"github.com/juckr/djspot/internal/music"
)

// Device is one of the remote session's playback outputs.
type Device struct {
	ID     string
	Name   string
	Active bool
}

// Playback is a point-in-time snapshot of what the remote device
// reports it is doing.
type Playback struct {
	Track      music.Track
	IsPlaying  bool
	ProgressMs int
}

type Playlist struct {
	ID    string
	Name  string
	Owner string
}

// Gateway abstracts the remote playback device's transport. The
// concrete implementation lives in internal/spotify; tests use a fake.
// Any call may fail with a transport error, which the engine treats as
// non-fatal: log and carry on.
type Gateway interface {
	Search(ctx context.Context, query string, limit int) ([]music.Track, error)
	Devices(ctx context.Context) ([]Device, error)
	Resume(ctx context.Context, uri, deviceID string) error
	Pause(ctx context.Context) error
	SeekTo(ctx context.Context, positionMs int) error
	// CurrentPlayback returns nil when nothing is loaded on the device.
	CurrentPlayback(ctx context.Context) (*Playback, error)
	SetVolume(ctx context.Context, percent int) error
	// EnqueueNative pushes a track onto the device's own queue. The
	// native queue is best-effort seeding only, never authoritative.
	EnqueueNative(ctx context.Context, uri string) error
	SkipNext(ctx context.Context) error
	SearchPlaylists(ctx context.Context, query string, limit int) ([]Playlist, error)
	PlaylistTracks(ctx context.Context, playlistID string, limit int) ([]music.Track, error)
}
