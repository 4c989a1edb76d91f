package player

import (
	"context"
	"log/slog"
	"time"
)

// endEpsilonMs compensates for poll-granularity rounding when deciding
// whether a track has run out.
const endEpsilonMs = 1

// Start begins the reconciliation loop. Calling it on a running player
// is a no-op.
func (p *Player) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go p.run(ctx, done)
}

// Close stops the loop and waits for the current tick to finish. It is
// idempotent.
func (p *Player) Close() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Player) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	slog.Info("reconciliation loop started", "interval", p.opts.PollInterval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciliation loop stopped")
			return
		case <-ticker.C:
			p.reconcile(ctx)
		}
	}
}

// reconcile runs one poll-and-classify cycle. A failed poll classifies
// as unknown: it is logged and nothing else happens, so a single bad
// poll never halts future polling and an unbounded run of failures only
// costs log lines.
func (p *Player) reconcile(ctx context.Context) {
	pb, err := p.gw.CurrentPlayback(ctx)
	if err != nil {
		slog.Warn("playback poll failed", "err", err)
		return
	}

	p.mu.Lock()
	evs := p.applyLocked(ctx, pb)
	p.mu.Unlock()
	p.disp.emit(evs...)
}

// classify maps a device snapshot onto a playback state. Ended wins
// over stopped: "ended naturally" advances the queue while "externally
// paused" does not carry that meaning.
func classify(pb *Playback) State {
	if pb == nil || pb.Track.ID == "" {
		return StateStopped
	}
	ended := pb.ProgressMs >= pb.Track.DurationMs-endEpsilonMs
	stopped := !pb.IsPlaying && pb.ProgressMs == 0
	switch {
	case ended:
		return StateEnded
	case stopped:
		return StateStopped
	default:
		return StatePlaying
	}
}

// applyLocked applies one observed snapshot to the session. Caller
// holds p.mu; returned events must be emitted after unlocking, in
// order.
func (p *Player) applyLocked(ctx context.Context, pb *Playback) []Event {
	var evs []Event

	st := classify(pb)
	if st != p.state {
		ev := Event{Kind: EventStateChanged, State: st}
		if pb != nil {
			ev.Track = pb.Track
		}
		evs = append(evs, ev)
	}
	p.state = st

	switch st {
	case StatePlaying:
		if p.current != nil && p.current.ID == pb.Track.ID {
			break
		}
		// Drift: something outside the bot changed what is playing.
		// Close out our track first, then report the observed one.
		evs = append(evs, p.endCurrentLocked()...)
		evs = append(evs, Event{Kind: EventOutOfSync, Track: pb.Track})

		if p.queue.Len() > 0 {
			// Explicit stop so the engine regains authority instead of
			// fighting the external change; the next tick sees Ended
			// and advances the queue.
			if err := p.gw.Pause(ctx); err != nil {
				slog.Warn("pause after drift failed", "err", err)
			} else if err := p.gw.SeekTo(ctx, pb.Track.DurationMs); err != nil {
				slog.Warn("seek after drift failed", "err", err)
			}
		}

	case StateStopped, StateEnded:
		evs = append(evs, p.endCurrentLocked()...)

		if t, ok := p.queue.Dequeue(); ok {
			played, err := p.playLocked(ctx, t)
			if err != nil {
				slog.Error("failed to start next track", "track", t.Title, "err", err)
				break
			}
			evs = append(evs, played...)
		}
	}

	return evs
}

// endCurrentLocked pushes the current track onto history, clears it and
// returns the play-end event for it, if there was one.
func (p *Player) endCurrentLocked() []Event {
	if p.current == nil {
		return nil
	}
	t := *p.current
	p.history.Push(t)
	p.current = nil
	return []Event{{Kind: EventPlayEnd, Track: t}}
}
