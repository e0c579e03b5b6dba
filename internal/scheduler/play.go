/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"os"

	"github.com/friendsincode/grimnir_jukebox/internal/choose"
	"github.com/friendsincode/grimnir_jukebox/internal/events"
	"github.com/friendsincode/grimnir_jukebox/internal/player"
	"github.com/friendsincode/grimnir_jukebox/internal/queue"
	"github.com/friendsincode/grimnir_jukebox/internal/speaker"
	"github.com/friendsincode/grimnir_jukebox/internal/supervisor"
	"github.com/friendsincode/grimnir_jukebox/internal/telemetry"
)

// play starts the head of the queue if nothing is playing. Entries that
// hard-fail go straight to history and the next one is tried; a soft
// failure leaves the head alone for the next tick.
func (s *Scheduler) play(ctx context.Context) {
	for {
		if s.playing != nil || !s.playingEnabled || s.shuttingDown {
			return
		}
		e := s.store.Head()
		if e == nil {
			s.requestCandidate(ctx)
			return
		}
		if e.Origin == queue.OriginRandom && !s.randomEnabled {
			return
		}

		switch out := s.start(ctx, e); out {
		case softFail:
			telemetry.StartFailures.WithLabelValues(out.String()).Inc()
			s.logger.Debug().Str("id", e.ID).Str("track", e.Track).Msg("cannot start yet, will retry")
			return
		case hardFail:
			telemetry.StartFailures.WithLabelValues(out.String()).Inc()
			s.logger.Error().Str("id", e.ID).Str("track", e.Track).Msg("cannot play track, dropping it")
			s.abandon(e)
			e.State = queue.StateFailed
			s.store.RecordPlayed(e)
			s.publish(events.EventFailed, e, nil)
			if s.recorder != nil {
				s.recorder.LogPlayed(e.Snapshot())
			}
			continue
		}

		s.store.Detach(e)
		e.State = queue.StateStarted
		e.Played = s.now()
		e.Sofar = 0
		s.playing = e
		telemetry.TracksStarted.WithLabelValues(e.Origin.String()).Inc()
		s.logger.Info().Str("id", e.ID).Str("track", e.Track).Str("origin", e.Origin.String()).Msg("playing")
		if err := s.lib.MarkPlayed(e.Track, e.Played); err != nil {
			s.logger.Warn().Err(err).Str("track", e.Track).Msg("recording played time")
		}
		s.publish(events.EventPlaying, e, nil)

		s.padQueue(ctx)
		if next := s.store.Head(); next != nil {
			s.prepare(ctx, next)
		}
		return
	}
}

// start hands e to its player. Raw entries are decoded ahead and the
// speaker is told to play them; it accepts PLAY before the data arrives.
func (s *Scheduler) start(ctx context.Context, e *queue.Entry) (out outcome) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler", "scheduler.start")
	defer func() {
		telemetry.AddSpanAttributes(span, map[string]any{
			"entry.id": e.ID,
			"track":    e.Track,
			"outcome":  out.String(),
		})
		span.End()
	}()

	if e.Binding == nil {
		e.Binding = s.table.Match(e.Track)
	}
	if e.Binding == nil {
		s.logger.Error().Str("track", e.Track).Msg("no player found")
		return hardFail
	}
	if !e.Binding.Raw() {
		return s.launch(ctx, e, false)
	}
	if s.speaker == nil {
		s.logger.Error().Str("track", e.Track).Str("module", e.Binding.Module).Msg("raw player needs a speaker")
		return hardFail
	}
	if out := s.prepare(ctx, e); out != startOK {
		return out
	}
	if err := s.send(speaker.Message{Type: speaker.Play, ID: e.ID}); err != nil {
		s.logger.Warn().Err(err).Str("id", e.ID).Msg("telling speaker to play")
		return softFail
	}
	return startOK
}

// prepare starts the decoder of a raw entry so its audio is ready before
// it reaches the playing slot.
func (s *Scheduler) prepare(ctx context.Context, e *queue.Entry) outcome {
	if e.Prepared || e.Preparing || e.Process != nil {
		return startOK
	}
	if e.Binding == nil {
		e.Binding = s.table.Match(e.Track)
	}
	if e.Binding == nil {
		return hardFail
	}
	if !e.Binding.Raw() {
		return startOK
	}
	if s.speaker == nil || s.streams == nil {
		return hardFail
	}
	out := s.launch(ctx, e, true)
	if out == startOK {
		e.Preparing = true
	}
	return out
}

func (s *Scheduler) launch(ctx context.Context, e *queue.Entry, raw bool) outcome {
	b := e.Binding
	opts, args, err := supervisor.ParseOptions(b.Args)
	if err != nil {
		s.logger.Error().Err(err).Str("module", b.Module).Str("pattern", b.Pattern).Msg("bad player configuration")
		return hardFail
	}
	argv, env, err := b.Player.Command(args, e.Track, e.Track)
	if err != nil {
		s.logger.Error().Err(err).Str("module", b.Module).Str("pattern", b.Pattern).Msg("building player command")
		return hardFail
	}

	cmd := supervisor.Command{
		EntryID: e.ID,
		Tag:     b.Tag,
		Argv:    argv,
		Env:     env,
		Options: opts,
	}
	if raw {
		id := e.ID
		cmd.Stdout = func(ctx context.Context) (*os.File, error) {
			return s.streams.Open(ctx, id)
		}
	}

	proc, err := s.launcher.Start(ctx, cmd)
	if err != nil {
		if errors.Is(err, supervisor.ErrNoExecutable) {
			s.logger.Error().Err(err).Str("track", e.Track).Msg("starting player")
			return hardFail
		}
		s.logger.Warn().Err(err).Str("track", e.Track).Msg("starting player")
		return softFail
	}
	e.Process = proc
	e.Killed = 0
	s.procs[proc] = e
	return startOK
}

// abandon stops the decoder of a raw entry and tells the speaker to drop
// whatever it has buffered. Entries without a process are left alone.
func (s *Scheduler) abandon(e *queue.Entry) {
	if e.Process == nil || !e.Binding.Raw() {
		return
	}
	e.Killed = s.cfg.KillSignal
	if err := e.Process.Signal(e.Killed); err != nil {
		s.logger.Warn().Err(err).Str("id", e.ID).Msg("signalling decoder")
	}
	e.Process = nil
	if err := s.send(speaker.Message{Type: speaker.Cancel, ID: e.ID}); err != nil {
		s.logger.Warn().Err(err).Str("id", e.ID).Msg("cancelling speaker stream")
	}
	e.Prepared, e.Preparing = false, false
}

// finished moves the playing entry to history and starts the next one.
func (s *Scheduler) finished(ctx context.Context, e *queue.Entry) {
	switch e.State {
	case queue.StateOK:
		s.publish(events.EventCompleted, e, nil)
	case queue.StateFailed:
		s.publish(events.EventFailed, e, nil)
	case queue.StateScratched:
		s.publish(events.EventScratched, e, events.Payload{"who": e.Scratched})
	}
	telemetry.TracksFinished.WithLabelValues(e.State.String()).Inc()
	s.logger.Info().Str("id", e.ID).Str("track", e.Track).Str("state", e.State.String()).Msg("finished")

	e.FixSofar(s.now())
	s.store.RecordPlayed(e)
	if s.recorder != nil {
		s.recorder.LogPlayed(e.Snapshot())
	}
	if s.playing == e {
		s.playing = nil
	}
	s.play(ctx)
}

func (s *Scheduler) handleExit(ctx context.Context, ex supervisor.Exit) {
	e := s.procs[ex.Process]
	delete(s.procs, ex.Process)
	if e == nil {
		s.logger.Debug().Str("entry", ex.EntryID).Str("exit", ex.String()).Msg("exit of unknown process")
		return
	}
	if e.Process != nil && e.Process != ex.Process {
		// An abandoned decoder exiting after its replacement started.
		s.logger.Debug().Str("id", e.ID).Str("exit", ex.String()).Msg("exit of superseded process")
		return
	}
	e.Process = nil
	e.WaitStatus = ex.Status()

	switch {
	case ex.Success():
		telemetry.SubprocessExits.WithLabelValues("ok").Inc()
	case ex.Signal != 0 && ex.Signal == e.Killed:
		telemetry.SubprocessExits.WithLabelValues("killed").Inc()
		s.logger.Debug().Str("id", e.ID).Str("exit", ex.String()).Msg("player stopped")
	default:
		telemetry.SubprocessExits.WithLabelValues("failed").Inc()
		s.logger.Error().Str("id", e.ID).Str("track", e.Track).Str("exit", ex.String()).Msg("player failed")
	}

	raw := e.Binding.Raw()
	if raw && !ex.Success() {
		e.Preparing = false
	}
	if e != s.playing {
		// Never started; leave it to be retried.
		return
	}
	playing := e.State == queue.StateStarted || e.State == queue.StatePaused
	deliberate := ex.Signal != 0 && ex.Signal == e.Killed

	if raw {
		if ex.Success() || deliberate {
			return
		}
		if playing {
			e.State = queue.StateFailed
		}
		// The speaker never saw any data, so it will never report the end.
		if !e.Prepared {
			if err := s.send(speaker.Message{Type: speaker.Cancel, ID: e.ID}); err != nil {
				s.logger.Warn().Err(err).Str("id", e.ID).Msg("cancelling speaker stream")
			}
			s.finished(ctx, e)
		}
		return
	}

	if playing {
		if ex.Success() {
			e.State = queue.StateOK
		} else {
			e.State = queue.StateFailed
		}
	}
	s.finished(ctx, e)
}

func (s *Scheduler) handleSpeaker(ctx context.Context, m speaker.Message) {
	switch m.Type {
	case speaker.Arrived:
		e := s.store.Lookup(m.ID)
		if e == nil {
			s.logger.Debug().Str("id", m.ID).Msg("arrival for unknown entry")
			return
		}
		e.Prepared = true
		e.Preparing = false
		s.play(ctx)

	case speaker.Playing, speaker.Paused:
		if s.playing != nil && s.playing.ID == m.ID {
			s.playing.Sofar = m.Data
		}

	case speaker.Finished, speaker.Stillborn, speaker.Unknown:
		e := s.playing
		if e == nil || e.ID != m.ID {
			s.logger.Debug().Str("id", m.ID).Str("type", m.Type.String()).Msg("speaker report for entry not playing")
			return
		}
		if e.State == queue.StateStarted || e.State == queue.StatePaused {
			if m.Type == speaker.Finished {
				e.State = queue.StateOK
			} else {
				s.logger.Error().Str("id", e.ID).Str("track", e.Track).Str("type", m.Type.String()).Msg("speaker could not play track")
				e.State = queue.StateFailed
			}
		}
		e.Prepared = false
		s.finished(ctx, e)

	default:
		s.logger.Warn().Str("type", m.Type.String()).Msg("unexpected speaker message")
	}
}

// padQueue asks for a random track while the queue is shorter than the pad.
func (s *Scheduler) padQueue(ctx context.Context) {
	if s.store.Len() < s.cfg.QueuePad {
		s.requestCandidate(ctx)
	}
}

// requestCandidate runs one chooser pass on its own goroutine. At most one
// pass is in flight; the result comes back through s.candidates.
func (s *Scheduler) requestCandidate(ctx context.Context) {
	if s.inFlight || !s.randomEnabled || s.shuttingDown {
		return
	}
	s.inFlight = true
	live := s.store.LiveTracks()
	go func() {
		track, err := s.lib.RandomTrack(ctx, live)
		select {
		case s.candidates <- candidate{track: track, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (s *Scheduler) handleCandidate(ctx context.Context, c candidate) {
	s.inFlight = false
	if c.err != nil {
		if errors.Is(c.err, choose.ErrNoCandidate) {
			s.logger.Debug().Msg("no track eligible for random play")
		} else {
			s.logger.Warn().Err(c.err).Msg("choosing random track")
		}
		return
	}
	if s.shuttingDown || !s.randomEnabled {
		return
	}
	e := s.store.Add(c.track, "", queue.WhereEnd, queue.OriginRandom)
	s.logger.Debug().Str("id", e.ID).Str("track", e.Track).Msg("random track queued")
	if s.playing != nil && s.store.Head() == e {
		s.prepare(ctx, e)
	}
	s.play(ctx)
	s.padQueue(ctx)
}

// ensureNextScratch pre-arms a scratch replacement: an entry with a
// reserved ID that is not in the queue, prepared ahead of need.
func (s *Scheduler) ensureNextScratch(ctx context.Context) {
	if s.nextScratch != nil || len(s.cfg.Scratch) == 0 || s.shuttingDown {
		return
	}
	track := s.cfg.Scratch[s.rng.IntN(len(s.cfg.Scratch))]
	e := s.store.Add(track, "", queue.WhereNowhere, queue.OriginScratch)
	s.nextScratch = e
	if out := s.prepare(ctx, e); out != startOK {
		s.logger.Warn().Str("track", track).Str("outcome", out.String()).Msg("preparing scratch track")
	}
}

func (s *Scheduler) dropNextScratch() {
	if s.nextScratch == nil {
		return
	}
	s.abandon(s.nextScratch)
	s.store.Release(s.nextScratch)
	s.nextScratch = nil
}

func (s *Scheduler) scratch(ctx context.Context, who, id string) error {
	e := s.playing
	if e == nil || (e.State != queue.StateStarted && e.State != queue.StatePaused) {
		return ErrNotPlaying
	}
	if id != "" && id != e.ID {
		return ErrNotPlaying
	}
	paused := e.State == queue.StatePaused
	e.State = queue.StateScratched
	e.Scratched = who
	e.FixSofar(s.now())
	s.logger.Info().Str("id", e.ID).Str("track", e.Track).Str("who", who).Msg("scratched")

	hadProcess := s.stopPlayer(e, paused)
	raw := e.Binding.Raw()
	if raw {
		if err := s.send(speaker.Message{Type: speaker.Cancel, ID: e.ID}); err != nil {
			s.logger.Warn().Err(err).Str("id", e.ID).Msg("cancelling speaker stream")
		}
	}

	if s.playingEnabled && s.nextScratch != nil {
		ns := s.nextScratch
		s.nextScratch = nil
		s.store.Insert(ns, queue.WhereStart)
		s.ensureNextScratch(ctx)
	}

	// Otherwise the process exit or the speaker's FINISHED completes it.
	if !hadProcess && !raw {
		s.finished(ctx, e)
	}
	return nil
}

func (s *Scheduler) pause(who string) error {
	e := s.playing
	if e == nil {
		return ErrNotPlaying
	}
	switch e.State {
	case queue.StatePaused:
		return nil
	case queue.StateStarted:
	default:
		return ErrNotPlaying
	}
	if err := s.pausePlayer(e, true); err != nil {
		return err
	}
	e.MarkPaused(s.now())
	e.State = queue.StatePaused
	s.logger.Info().Str("id", e.ID).Str("who", who).Msg("paused")
	s.publish(events.EventPaused, e, events.Payload{"who": who})
	return nil
}

func (s *Scheduler) resume(who string) error {
	e := s.playing
	if e == nil {
		return ErrNotPlaying
	}
	switch e.State {
	case queue.StateStarted:
		return nil
	case queue.StatePaused:
	default:
		return ErrNotPlaying
	}
	if err := s.pausePlayer(e, false); err != nil {
		return err
	}
	e.MarkResumed(s.now())
	e.State = queue.StateStarted
	s.logger.Info().Str("id", e.ID).Str("who", who).Msg("resumed")
	s.publish(events.EventResumed, e, events.Payload{"who": who})
	return nil
}

func (s *Scheduler) pausePlayer(e *queue.Entry, pause bool) error {
	if e.Binding.Raw() {
		t := speaker.Resume
		if pause {
			t = speaker.Pause
		}
		return s.send(speaker.Message{Type: t, ID: e.ID})
	}
	pauser, ok := e.Binding.Player.(player.Pauser)
	if !ok || e.Process == nil {
		return ErrCannotPause
	}
	if pause {
		return pauser.Pause(e.Process)
	}
	return pauser.Resume(e.Process)
}

// quit stops everything on shutdown. The playing entry goes to history
// as quitting; queued decoders are killed but their entries stay queued.
func (s *Scheduler) quit() {
	s.shuttingDown = true
	if e := s.playing; e != nil {
		s.stopPlayer(e, e.State == queue.StatePaused)
		e.State = queue.StateQuitting
		s.finished(context.Background(), e)
	}
	for _, e := range s.store.Entries() {
		s.kill(e)
	}
	if s.nextScratch != nil {
		s.kill(s.nextScratch)
	}
}

// stopPlayer sends the kill signal to the playing entry's process group
// and reports whether there was a process. A paused entry is un-paused
// afterwards: a stopped group only acts on the signal once continued, and
// the speaker would otherwise stay paused for the next raw entry.
func (s *Scheduler) stopPlayer(e *queue.Entry, paused bool) bool {
	if paused && e.Binding.Raw() {
		if err := s.send(speaker.Message{Type: speaker.Resume, ID: e.ID}); err != nil {
			s.logger.Warn().Err(err).Str("id", e.ID).Msg("resuming speaker")
		}
	}
	if e.Process == nil {
		return false
	}
	e.Killed = s.cfg.KillSignal
	if err := e.Process.Signal(e.Killed); err != nil {
		s.logger.Warn().Err(err).Str("id", e.ID).Msg("signalling player")
	}
	if paused && e.Binding != nil && !e.Binding.Raw() {
		if pauser, ok := e.Binding.Player.(player.Pauser); ok {
			if err := pauser.Resume(e.Process); err != nil {
				s.logger.Warn().Err(err).Str("id", e.ID).Msg("continuing paused player")
			}
		}
	}
	e.Process = nil
	return true
}

func (s *Scheduler) kill(e *queue.Entry) {
	if e.Process == nil {
		return
	}
	e.Killed = s.cfg.KillSignal
	if err := e.Process.Signal(e.Killed); err != nil {
		s.logger.Warn().Err(err).Str("id", e.ID).Msg("signalling player")
	}
	e.Process = nil
	e.Prepared, e.Preparing = false, false
}
