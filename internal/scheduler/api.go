/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"fmt"
	"slices"

	"github.com/friendsincode/grimnir_jukebox/internal/config"
	"github.com/friendsincode/grimnir_jukebox/internal/player"
	"github.com/friendsincode/grimnir_jukebox/internal/queue"
	"github.com/friendsincode/grimnir_jukebox/internal/speaker"
)

// Enqueue adds track for submitter ahead of any trailing random entries.
func (s *Scheduler) Enqueue(ctx context.Context, track, submitter string) (queue.Entry, error) {
	var out queue.Entry
	err := s.do(ctx, func(ctx context.Context) error {
		canonical, err := s.lib.Resolve(track)
		if err != nil {
			return fmt.Errorf("enqueue %s: %w", track, err)
		}
		e := s.store.Add(canonical, submitter, queue.WhereBeforeRandom, queue.OriginUser)
		s.logger.Info().Str("id", e.ID).Str("track", e.Track).Str("submitter", submitter).Msg("queued")
		if s.playing != nil && s.store.Head() == e {
			s.prepare(ctx, e)
		}
		s.play(ctx)
		out = e.Snapshot()
		return nil
	})
	return out, err
}

// Remove deletes a queued entry.
func (s *Scheduler) Remove(ctx context.Context, id, who string) error {
	return s.do(ctx, func(ctx context.Context) error {
		e := s.store.Find(id)
		if e == nil {
			return fmt.Errorf("%w: %s", ErrNoSuchEntry, id)
		}
		s.abandon(e)
		s.store.Remove(e, who)
		s.logger.Info().Str("id", e.ID).Str("track", e.Track).Str("who", who).Msg("removed from queue")
		s.prepareHead(ctx)
		return nil
	})
}

// Move shifts a queued entry delta places toward the head and returns
// the part of delta that could not be applied.
func (s *Scheduler) Move(ctx context.Context, id string, delta int, who string) (int, error) {
	var left int
	err := s.do(ctx, func(ctx context.Context) error {
		e := s.store.Find(id)
		if e == nil {
			return fmt.Errorf("%w: %s", ErrNoSuchEntry, id)
		}
		head := s.store.Head()
		left = s.store.Move(e, delta, who)
		if s.store.Head() != head {
			s.prepareHead(ctx)
		}
		return nil
	})
	return left, err
}

// MoveAfter places the entries ids, in order, after target. An empty
// target means the head of the queue.
func (s *Scheduler) MoveAfter(ctx context.Context, target string, ids []string, who string) error {
	return s.do(ctx, func(ctx context.Context) error {
		var anchor *queue.Entry
		if target != "" {
			if anchor = s.store.Find(target); anchor == nil {
				return fmt.Errorf("%w: %s", ErrNoSuchEntry, target)
			}
		}
		entries := make([]*queue.Entry, 0, len(ids))
		for _, id := range ids {
			e := s.store.Find(id)
			if e == nil {
				return fmt.Errorf("%w: %s", ErrNoSuchEntry, id)
			}
			entries = append(entries, e)
		}
		head := s.store.Head()
		s.store.MoveAfter(anchor, entries, who)
		if s.store.Head() != head {
			s.prepareHead(ctx)
		}
		return nil
	})
}

// Scratch stops the playing entry. A non-empty id must match it.
func (s *Scheduler) Scratch(ctx context.Context, who, id string) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.scratch(ctx, who, id)
	})
}

// Pause pauses the playing entry.
func (s *Scheduler) Pause(ctx context.Context, who string) error {
	return s.do(ctx, func(context.Context) error {
		return s.pause(who)
	})
}

// Resume resumes a paused entry.
func (s *Scheduler) Resume(ctx context.Context, who string) error {
	return s.do(ctx, func(context.Context) error {
		return s.resume(who)
	})
}

// Playing returns a copy of the playing entry, or nil.
func (s *Scheduler) Playing(ctx context.Context) (*queue.Entry, error) {
	var out *queue.Entry
	err := s.do(ctx, func(context.Context) error {
		if s.playing == nil {
			return nil
		}
		s.playing.FixSofar(s.now())
		snap := s.playing.Snapshot()
		out = &snap
		return nil
	})
	return out, err
}

// Queue returns copies of the queued entries in order.
func (s *Scheduler) Queue(ctx context.Context) ([]queue.Entry, error) {
	var out []queue.Entry
	err := s.do(ctx, func(context.Context) error {
		out = s.store.Queue()
		return nil
	})
	return out, err
}

// History returns copies of the recently played entries, oldest first.
func (s *Scheduler) History(ctx context.Context) ([]queue.Entry, error) {
	var out []queue.Entry
	err := s.do(ctx, func(context.Context) error {
		out = s.store.History()
		return nil
	})
	return out, err
}

// State reports whether playing and random play are enabled.
func (s *Scheduler) State(ctx context.Context) (playing, random bool, err error) {
	err = s.do(ctx, func(context.Context) error {
		playing, random = s.playingEnabled, s.randomEnabled
		return nil
	})
	return
}

// EnablePlaying allows new entries to start.
func (s *Scheduler) EnablePlaying(ctx context.Context, who string) error {
	return s.setFlag(ctx, PrefPlaying, true, who)
}

// DisablePlaying stops new entries from starting. The playing one carries on.
func (s *Scheduler) DisablePlaying(ctx context.Context, who string) error {
	return s.setFlag(ctx, PrefPlaying, false, who)
}

// EnableRandom turns random play on.
func (s *Scheduler) EnableRandom(ctx context.Context, who string) error {
	return s.setFlag(ctx, PrefRandomPlay, true, who)
}

// DisableRandom turns random play off. Random entries already queued stay
// but are not started.
func (s *Scheduler) DisableRandom(ctx context.Context, who string) error {
	return s.setFlag(ctx, PrefRandomPlay, false, who)
}

func (s *Scheduler) setFlag(ctx context.Context, key string, enabled bool, who string) error {
	return s.do(ctx, func(ctx context.Context) error {
		value := "no"
		if enabled {
			value = "yes"
		}
		if err := s.lib.SetGlobalPref(key, value, who); err != nil {
			return err
		}
		switch key {
		case PrefPlaying:
			s.playingEnabled = enabled
		case PrefRandomPlay:
			s.randomEnabled = enabled
		}
		s.publishState()
		s.padQueue(ctx)
		s.play(ctx)
		return nil
	})
}

// Reload switches to a new playback configuration. Entries already
// bound to a player keep it. The scratch replacement is re-armed when its
// track left the scratch list.
func (s *Scheduler) Reload(ctx context.Context, cfg *config.Playback) error {
	table, err := player.NewTable(cfg.Players)
	if err != nil {
		return fmt.Errorf("reload players: %w", err)
	}
	return s.do(ctx, func(ctx context.Context) error {
		s.reload(ctx, cfg, table)
		return nil
	})
}

func (s *Scheduler) reload(ctx context.Context, cfg *config.Playback, table *player.Table) {
	s.cfg = cfg
	s.table = table
	s.store.SetHistoryLimit(cfg.History)
	// An armed scratch track that is still listed stays prepared.
	if ns := s.nextScratch; ns != nil && !slices.Contains(cfg.Scratch, ns.Track) {
		s.dropNextScratch()
	}
	s.ensureNextScratch(ctx)
	if s.speaker != nil {
		if err := s.send(speaker.Message{Type: speaker.Reload}); err != nil {
			s.logger.Warn().Err(err).Msg("telling speaker to reload")
		}
	}
	s.logger.Info().Int("players", table.Len()).Int("queue_pad", cfg.QueuePad).Msg("playback configuration reloaded")
	s.padQueue(ctx)
	s.play(ctx)
}

func (s *Scheduler) prepareHead(ctx context.Context) {
	if s.playing == nil {
		return
	}
	if head := s.store.Head(); head != nil {
		s.prepare(ctx, head)
	}
}
