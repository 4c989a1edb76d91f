package player

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/juckr/djspot/internal/music"
)

type State int

const (
	// StateUnknown means the last poll failed or was ambiguous. It
	// never triggers a transition.
	StateUnknown State = iota
	// StateStopped covers both "nothing loaded" and "paused at
	// position zero".
	StateStopped
	StatePlaying
	// StateEnded means the device reports progress at or past the
	// track's duration.
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

type EventKind int

const (
	EventPlayStart EventKind = iota
	EventPlayEnd
	EventStateChanged
	EventOutOfSync
)

func (k EventKind) String() string {
	switch k {
	case EventPlayStart:
		return "play-start"
	case EventPlayEnd:
		return "play-end"
	case EventStateChanged:
		return "state-changed"
	case EventOutOfSync:
		return "playback-out-of-sync"
	default:
		return "unknown"
	}
}

// Event carries the track relevant to the transition; State is only
// meaningful for EventStateChanged.
type Event struct {
	Kind  EventKind
	Track music.Track
	State State
}

type Subscriber func(Event)

// dispatcher is an explicit publish/subscribe registry. Delivery is
// synchronous and fire-and-forget: a panicking subscriber is recovered
// so it cannot starve the others or the reconciliation loop.
type dispatcher struct {
	mu   sync.Mutex
	next int
	subs map[int]Subscriber
}

func newDispatcher() *dispatcher {
	return &dispatcher{subs: make(map[int]Subscriber)}
}

func (d *dispatcher) subscribe(fn Subscriber) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.next
	d.next++
	d.subs[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.subs, id)
	}
}

// emit delivers events in order, each to every subscriber in
// subscription order.
func (d *dispatcher) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	d.mu.Lock()
	ids := make([]int, 0, len(d.subs))
	for id := range d.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]Subscriber, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, d.subs[id])
	}
	d.mu.Unlock()

	for _, ev := range events {
		for _, fn := range subs {
			deliver(fn, ev)
		}
	}
}

func deliver(fn Subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event subscriber panic recovered", "event", ev.Kind, "panic", r)
		}
	}()
	fn(ev)
}
