package player

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/juckr/djspot/internal/music"
)

const (
	// DefaultPollInterval is how often the reconciliation loop asks the
	// remote device what it is actually doing.
	DefaultPollInterval = 3 * time.Second

	// volumeUnset marks the remembered volume before any volume command
	// has been issued.
	volumeUnset = -1

	// autoPlaySeedLimit caps how many shuffled discovery tracks are fed
	// into one autoplay run.
	autoPlaySeedLimit = 20
)

type Options struct {
	PollInterval      time.Duration
	DiscoveryPlaylist string // exact playlist name autoplay looks for
	DiscoveryOwner    string // exact owner display name
	HistorySize       int
}

// Player maintains the authoritative local play queue and reconciles
// it against the remote device. The device's native queue is unreliable
// (no clearing or reordering), so the queue lives here and the device
// is only ever told to play one track at a time.
//
// A single mutex guards the queue and the playback session so that
// "read state, decide, dequeue, play" sequences are atomic with respect
// to the reconciliation tick. Events are collected under the lock and
// dispatched after release, which keeps per-tick ordering while letting
// subscribers call back into the engine.
type Player struct {
	gw   Gateway
	disp *dispatcher
	opts Options

	mu      sync.Mutex
	queue   music.Queue
	history *music.History
	current *music.Track
	state   State
	volume  int

	cancel context.CancelFunc
	done   chan struct{}
}

func NewPlayer(gw Gateway, opts Options) *Player {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.DiscoveryPlaylist == "" {
		opts.DiscoveryPlaylist = "Discover Weekly"
	}
	if opts.DiscoveryOwner == "" {
		opts.DiscoveryOwner = "Spotify"
	}
	return &Player{
		gw:      gw,
		disp:    newDispatcher(),
		opts:    opts,
		history: music.NewHistory(opts.HistorySize),
		volume:  volumeUnset,
	}
}

// Subscribe registers fn for all engine events and returns its
// unsubscribe function.
func (p *Player) Subscribe(fn Subscriber) func() {
	return p.disp.subscribe(fn)
}

// Search delegates to the gateway. An empty result is not an error.
func (p *Player) Search(ctx context.Context, query string, limit int) ([]music.Track, error) {
	return p.gw.Search(ctx, query, limit)
}

// Enqueue appends to the local queue. It does not start playback; the
// reconciliation loop picks the track up once the device goes idle.
func (p *Player) Enqueue(t music.Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue.Enqueue(t)
}

func (p *Player) ClearQueue() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue.Clear()
}

func (p *Player) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// UpcomingTracks returns a copy of up to n queued tracks, front first.
// n <= 0 means all.
func (p *Player) UpcomingTracks(n int) []music.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Peek(n)
}

// Current returns a copy of the track the engine believes is playing.
func (p *Player) Current() *music.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	cp := *p.current
	return &cp
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// PlayNow starts t on the remote device immediately, bypassing the
// queue.
func (p *Player) PlayNow(ctx context.Context, t music.Track) error {
	p.mu.Lock()
	evs, err := p.playLocked(ctx, t)
	p.mu.Unlock()
	p.disp.emit(evs...)
	return err
}

// playLocked resolves an output device, tells the gateway to play t and
// commits it as the current track. Caller must hold p.mu; returned
// events must be emitted after unlocking.
func (p *Player) playLocked(ctx context.Context, t music.Track) ([]Event, error) {
	dev, err := p.pickDevice(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.gw.Resume(ctx, t.SourceURI, dev.ID); err != nil {
		return nil, fmt.Errorf("resume playback: %w", err)
	}
	slog.Info("playing", "device", dev.Name, "track", t.Title)

	cp := t
	p.current = &cp
	return []Event{{Kind: EventPlayStart, Track: t}}, nil
}

// pickDevice prefers the currently active device, falling back to the
// first available one.
func (p *Player) pickDevice(ctx context.Context) (Device, error) {
	devices, err := p.gw.Devices(ctx)
	if err != nil {
		return Device{}, fmt.Errorf("list devices: %w", err)
	}
	if len(devices) == 0 {
		return Device{}, ErrNoDevice
	}
	for _, d := range devices {
		if d.Active {
			return d, nil
		}
	}
	return devices[0], nil
}

// Next advances the queue. With an empty queue it defers to the
// device's own skip control and returns no track; no local event fires
// because the engine has nothing to attribute.
func (p *Player) Next(ctx context.Context) (*music.Track, error) {
	p.mu.Lock()
	t, ok := p.queue.Dequeue()
	if !ok {
		p.mu.Unlock()
		return nil, p.gw.SkipNext(ctx)
	}
	evs, err := p.playLocked(ctx, t)
	p.mu.Unlock()
	p.disp.emit(evs...)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *Player) Pause(ctx context.Context) error {
	return p.gw.Pause(ctx)
}

// Stop pauses the device and seeks to end-of-track, an explicit and
// immediate "ended" that the next tick resolves through the normal
// end-of-track path. It returns the track that was playing, if any.
func (p *Player) Stop(ctx context.Context) (*music.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := math.MaxInt32
	if p.current != nil {
		pos = p.current.DurationMs
	}
	if err := p.gw.Pause(ctx); err != nil {
		return nil, fmt.Errorf("pause: %w", err)
	}
	if err := p.gw.SeekTo(ctx, pos); err != nil {
		return nil, fmt.Errorf("seek: %w", err)
	}
	if p.current == nil {
		return nil, nil
	}
	cp := *p.current
	return &cp, nil
}

// Mute remembers the current volume and sets the device to 0. An unset
// volume is remembered as 100 so a later unmute has something sane to
// restore.
func (p *Player) Mute(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	old := p.volume
	if p.volume == volumeUnset {
		p.volume = 100
	}
	if err := p.gw.SetVolume(ctx, 0); err != nil {
		p.volume = old
		return fmt.Errorf("set volume: %w", err)
	}
	return nil
}

func (p *Player) Unmute(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := p.volume
	if v == volumeUnset {
		v = 100
	}
	if err := p.gw.SetVolume(ctx, v); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}
	return nil
}

// SetVolume clamps v to [0,100]. Effect-or-rollback: on gateway failure
// the remembered volume is restored to its pre-call value.
func (p *Player) SetVolume(ctx context.Context, v int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	old := p.volume
	p.volume = clampVolume(v)
	if err := p.gw.SetVolume(ctx, p.volume); err != nil {
		p.volume = old
		return fmt.Errorf("set volume: %w", err)
	}
	return nil
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// AutoPlay seeds playback from the canonical discovery playlist. It is
// only valid when the queue is empty and nothing is playing. The
// playlist match must be unique on exact name and owner; its tracks are
// shuffled, the first played directly and the remainder best-effort
// pushed onto the device's native queue.
func (p *Player) AutoPlay(ctx context.Context) error {
	p.mu.Lock()
	if p.queue.Len() > 0 {
		p.mu.Unlock()
		return ErrQueueNotEmpty
	}
	// current alone is the "something is playing" signal: it is set the
	// moment playback starts and cleared on every end-of-track path,
	// while the polled state lags until the next tick.
	if p.current != nil {
		p.mu.Unlock()
		return ErrPlaybackActive
	}

	evs, err := p.autoPlayLocked(ctx)
	p.mu.Unlock()
	p.disp.emit(evs...)
	return err
}

func (p *Player) autoPlayLocked(ctx context.Context) ([]Event, error) {
	playlists, err := p.gw.SearchPlaylists(ctx, p.opts.DiscoveryPlaylist, 10)
	if err != nil {
		return nil, fmt.Errorf("search playlists: %w", err)
	}
	var matches []Playlist
	for _, pl := range playlists {
		if pl.Name == p.opts.DiscoveryPlaylist && pl.Owner == p.opts.DiscoveryOwner {
			matches = append(matches, pl)
		}
	}
	switch {
	case len(matches) == 0:
		return nil, fmt.Errorf("%w: %q by %q", ErrNoPlaylist, p.opts.DiscoveryPlaylist, p.opts.DiscoveryOwner)
	case len(matches) > 1:
		return nil, fmt.Errorf("%w: %q by %q", ErrAmbiguousPlaylist, p.opts.DiscoveryPlaylist, p.opts.DiscoveryOwner)
	}

	tracks, err := p.gw.PlaylistTracks(ctx, matches[0].ID, 0)
	if err != nil {
		return nil, fmt.Errorf("playlist tracks: %w", err)
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: playlist %q is empty", ErrNoPlaylist, p.opts.DiscoveryPlaylist)
	}

	rand.Shuffle(len(tracks), func(i, j int) {
		tracks[i], tracks[j] = tracks[j], tracks[i]
	})
	if len(tracks) > autoPlaySeedLimit {
		tracks = tracks[:autoPlaySeedLimit]
	}

	evs, err := p.playLocked(ctx, tracks[0])
	if err != nil {
		return nil, err
	}
	for _, t := range tracks[1:] {
		if err := p.gw.EnqueueNative(ctx, t.SourceURI); err != nil {
			slog.Warn("native enqueue failed", "track", t.Title, "err", err)
		}
	}
	return evs, nil
}
