package player

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestReconcileClassifiesNothingLoadedAsStopped(t *testing.T) {
	gw := newFakeGateway()
	gw.playback = nil
	p := NewPlayer(gw, Options{})
	events, _ := collectEvents(p)

	p.reconcile(context.Background())

	assert.Equal(t, StateStopped, p.State())
	require.Len(t, *events, 1)
	assert.Equal(t, EventStateChanged, (*events)[0].Kind)
	assert.Equal(t, StateStopped, (*events)[0].State)
}

func TestReconcilePollFailureTriggersNothing(t *testing.T) {
	gw := newFakeGateway()
	p := NewPlayer(gw, Options{})
	ctx := context.Background()

	a := track("a")
	require.NoError(t, p.PlayNow(ctx, a))
	gw.playback = &Playback{Track: a, IsPlaying: true, ProgressMs: 1000}
	p.reconcile(ctx)
	require.Equal(t, StatePlaying, p.State())

	events, _ := collectEvents(p)
	gw.pollErr = errTransport
	for i := 0; i < 5; i++ {
		p.reconcile(ctx)
	}
	assert.Equal(t, StatePlaying, p.State())
	assert.NotNil(t, p.Current())
	assert.Empty(t, *events)

	// loop recovers as soon as polls succeed again
	gw.pollErr = nil
	p.reconcile(ctx)
	assert.Equal(t, StatePlaying, p.State())
}

func TestReconcileEndedAdvancesQueue(t *testing.T) {
	gw := newFakeGateway()
	p := NewPlayer(gw, Options{})
	ctx := context.Background()

	a, b := track("a"), track("b")
	require.NoError(t, p.PlayNow(ctx, a))
	p.Enqueue(b)

	gw.playback = &Playback{Track: a, IsPlaying: true, ProgressMs: 1000}
	p.reconcile(ctx)

	events, _ := collectEvents(p)
	gw.playback = &Playback{Track: a, IsPlaying: true, ProgressMs: a.DurationMs}
	p.reconcile(ctx)

	require.Equal(t, []EventKind{EventStateChanged, EventPlayEnd, EventPlayStart}, kinds(*events))
	assert.Equal(t, StateEnded, (*events)[0].State)
	assert.Equal(t, "a", (*events)[1].Track.ID)
	assert.Equal(t, "b", (*events)[2].Track.ID)

	require.NotNil(t, p.Current())
	assert.Equal(t, "b", p.Current().ID)
	assert.Equal(t, 0, p.QueueLen())

	// a went to history, not back into the queue
	prev, ok := p.history.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", prev.ID)
}

func TestReconcileStoppedWithEmptyQueueJustEndsTrack(t *testing.T) {
	gw := newFakeGateway()
	p := NewPlayer(gw, Options{})
	ctx := context.Background()

	a := track("a")
	require.NoError(t, p.PlayNow(ctx, a))

	events, _ := collectEvents(p)
	gw.playback = &Playback{Track: a, IsPlaying: false, ProgressMs: 0}
	p.reconcile(ctx)

	require.Equal(t, []EventKind{EventStateChanged, EventPlayEnd}, kinds(*events))
	assert.Nil(t, p.Current())
	assert.Equal(t, StateStopped, p.State())
}

func TestReconcileDriftEmitsPlayEndThenOutOfSync(t *testing.T) {
	gw := newFakeGateway()
	p := NewPlayer(gw, Options{})
	ctx := context.Background()

	a := track("a")
	require.NoError(t, p.PlayNow(ctx, a))
	gw.playback = &Playback{Track: a, IsPlaying: true, ProgressMs: 1000}
	p.reconcile(ctx)

	p.Enqueue(track("b"))

	events, _ := collectEvents(p)
	foreign := track("x")
	gw.playback = &Playback{Track: foreign, IsPlaying: true, ProgressMs: 5000}
	p.reconcile(ctx)

	// exactly one play-end for the old track, then exactly one
	// out-of-sync for the observed one, within the same tick
	require.Equal(t, []EventKind{EventPlayEnd, EventOutOfSync}, kinds(*events))
	assert.Equal(t, "a", (*events)[0].Track.ID)
	assert.Equal(t, "x", (*events)[1].Track.ID)
	assert.Nil(t, p.Current())

	// non-empty local queue: engine issues the explicit stop
	assert.Contains(t, gw.calls, "Pause")
	require.NotEmpty(t, gw.seeks)
	assert.Equal(t, foreign.DurationMs, gw.seeks[len(gw.seeks)-1])
}

func TestReconcileDriftWithEmptyQueueSkipsExplicitStop(t *testing.T) {
	gw := newFakeGateway()
	p := NewPlayer(gw, Options{})
	ctx := context.Background()

	a := track("a")
	require.NoError(t, p.PlayNow(ctx, a))
	gw.playback = &Playback{Track: a, IsPlaying: true, ProgressMs: 1000}
	p.reconcile(ctx)

	events, _ := collectEvents(p)
	gw.playback = &Playback{Track: track("x"), IsPlaying: true, ProgressMs: 5000}
	p.reconcile(ctx)

	require.Equal(t, []EventKind{EventPlayEnd, EventOutOfSync}, kinds(*events))
	assert.NotContains(t, gw.calls, "Pause")
	assert.Empty(t, gw.seeks)
}

func TestReconcileEndedWinsOverStopped(t *testing.T) {
	// paused at the very end: both "ended" and "stopped at zero" could
	// never match at once, but ended must win whenever it matches
	a := track("a")
	st := classify(&Playback{Track: a, IsPlaying: false, ProgressMs: a.DurationMs})
	assert.Equal(t, StateEnded, st)
}

func TestClassifyTable(t *testing.T) {
	a := track("a")
	cases := []struct {
		name string
		pb   *Playback
		want State
	}{
		{"no snapshot", nil, StateStopped},
		{"no concrete track", &Playback{}, StateStopped},
		{"paused at zero", &Playback{Track: a, IsPlaying: false, ProgressMs: 0}, StateStopped},
		{"paused mid-track", &Playback{Track: a, IsPlaying: false, ProgressMs: 1234}, StatePlaying},
		{"playing mid-track", &Playback{Track: a, IsPlaying: true, ProgressMs: 1234}, StatePlaying},
		{"progress within epsilon of end", &Playback{Track: a, IsPlaying: true, ProgressMs: a.DurationMs - 1}, StateEnded},
		{"progress past end", &Playback{Track: a, IsPlaying: true, ProgressMs: a.DurationMs + 500}, StateEnded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classify(tc.pb))
		})
	}
}

func TestStartCloseLifecycle(t *testing.T) {
	gw := newFakeGateway()
	gw.playback = nil
	p := NewPlayer(gw, Options{PollInterval: 5 * time.Millisecond})

	ctx := context.Background()
	p.Start(ctx)
	p.Start(ctx) // second start is a no-op

	deadline := time.Now().Add(2 * time.Second)
	for gw.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.NotZero(t, gw.callCount(), "loop never polled")

	p.Close()
	p.Close() // idempotent

	n := gw.callCount()
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, n, gw.callCount(), "loop still polling after Close")
}
