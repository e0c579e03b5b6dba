/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler is the playback controller. One goroutine, Run, owns
// the queue, the playing slot and the play/random flags; everything else
// talks to it through channels.
package scheduler

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"time"

	"github.com/friendsincode/grimnir_jukebox/internal/config"
	"github.com/friendsincode/grimnir_jukebox/internal/events"
	"github.com/friendsincode/grimnir_jukebox/internal/player"
	"github.com/friendsincode/grimnir_jukebox/internal/queue"
	"github.com/friendsincode/grimnir_jukebox/internal/speaker"
	"github.com/friendsincode/grimnir_jukebox/internal/supervisor"
	"github.com/friendsincode/grimnir_jukebox/internal/telemetry"
	"github.com/rs/zerolog"
)

var (
	ErrNotPlaying  = errors.New("nothing is playing")
	ErrNoSuchEntry = errors.New("no such queue entry")
	ErrCannotPause = errors.New("player cannot pause")
	ErrStopped     = errors.New("scheduler stopped")
	ErrNoSpeaker   = errors.New("no speaker configured")
)

// Global preferences holding the play and random flags. Anything other
// than "no" means enabled.
const (
	PrefPlaying    = "playing"
	PrefRandomPlay = "random-play"
)

// Launcher starts player processes and reports their exits.
type Launcher interface {
	Start(ctx context.Context, cmd supervisor.Command) (supervisor.Process, error)
	Exits() <-chan supervisor.Exit
}

// SpeakerLink carries messages to and from the speaker.
type SpeakerLink interface {
	Send(m speaker.Message) error
	Messages() <-chan speaker.Message
}

// StreamOpener opens the socket a raw decoder writes into.
type StreamOpener interface {
	Open(ctx context.Context, id string) (*os.File, error)
}

// Library is the track database as the scheduler needs it.
type Library interface {
	Resolve(track string) (string, error)
	MarkPlayed(track string, when time.Time) error
	GlobalPref(key string) (string, error)
	SetGlobalPref(key, value, who string) error
	RandomTrack(ctx context.Context, live map[string]struct{}) (string, error)
}

// Recorder persists the queue and the play log.
type Recorder interface {
	Save(queued, history []queue.Entry)
	LogPlayed(e queue.Entry)
}

// Deps are the collaborators of a Scheduler. Speaker, Streams and
// Recorder may be nil.
type Deps struct {
	Store    *queue.Store
	Library  Library
	Launcher Launcher
	Speaker  SpeakerLink
	Streams  StreamOpener
	Recorder Recorder
	Bus      *events.Bus
	Logger   zerolog.Logger
}

type outcome int

const (
	startOK outcome = iota
	hardFail
	softFail
)

func (o outcome) String() string {
	switch o {
	case hardFail:
		return "hard"
	case softFail:
		return "soft"
	default:
		return "ok"
	}
}

type candidate struct {
	track string
	err   error
}

// Scheduler drives queue entries through their players.
type Scheduler struct {
	logger   zerolog.Logger
	store    *queue.Store
	lib      Library
	launcher Launcher
	speaker  SpeakerLink
	streams  StreamOpener
	recorder Recorder
	bus      *events.Bus

	cfg   *config.Playback
	table *player.Table

	playing     *queue.Entry
	nextScratch *queue.Entry
	procs       map[supervisor.Process]*queue.Entry

	playingEnabled bool
	randomEnabled  bool
	shuttingDown   bool
	inFlight       bool
	lastGen        uint64

	requests   chan func(context.Context)
	candidates chan candidate
	stopped    chan struct{}

	rng *rand.Rand
	now func() time.Time

	playInterval time.Duration
	padInterval  time.Duration
}

// New creates a scheduler. Call Run to start it.
func New(cfg *config.Playback, table *player.Table, deps Deps) *Scheduler {
	return &Scheduler{
		logger:         deps.Logger.With().Str("component", "scheduler").Logger(),
		store:          deps.Store,
		lib:            deps.Library,
		launcher:       deps.Launcher,
		speaker:        deps.Speaker,
		streams:        deps.Streams,
		recorder:       deps.Recorder,
		bus:            deps.Bus,
		cfg:            cfg,
		table:          table,
		procs:          make(map[supervisor.Process]*queue.Entry),
		playingEnabled: true,
		randomEnabled:  true,
		requests:       make(chan func(context.Context)),
		candidates:     make(chan candidate, 1),
		stopped:        make(chan struct{}),
		rng:            rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x6a756b65)),
		now:            time.Now,
		playInterval:   time.Second,
		padInterval:    2 * time.Second,
	}
}

// Run executes the event loop until ctx is cancelled. On the way out the
// playing entry is marked as quitting and every player is signalled.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.stopped)

	s.loadFlags()
	s.logger.Info().
		Bool("playing", s.playingEnabled).
		Bool("random", s.randomEnabled).
		Int("queued", s.store.Len()).
		Msg("scheduler started")

	s.ensureNextScratch(ctx)
	s.play(ctx)
	s.padQueue(ctx)
	s.afterEvent()

	playTick := time.NewTicker(s.playInterval)
	defer playTick.Stop()
	padTick := time.NewTicker(s.padInterval)
	defer padTick.Stop()

	var speakerMsgs <-chan speaker.Message
	if s.speaker != nil {
		speakerMsgs = s.speaker.Messages()
	}

	for {
		select {
		case <-ctx.Done():
			s.quit()
			s.afterEvent()
			s.logger.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-playTick.C:
			s.play(ctx)
		case <-padTick.C:
			s.padQueue(ctx)
		case ex := <-s.launcher.Exits():
			s.handleExit(ctx, ex)
		case m, ok := <-speakerMsgs:
			if !ok {
				s.logger.Error().Msg("speaker link closed")
				speakerMsgs = nil
				continue
			}
			s.handleSpeaker(ctx, m)
		case c := <-s.candidates:
			s.handleCandidate(ctx, c)
		case fn := <-s.requests:
			fn(ctx)
		}
		s.afterEvent()
	}
}

// do runs fn on the loop and waits for its result.
func (s *Scheduler) do(ctx context.Context, fn func(context.Context) error) error {
	done := make(chan error, 1)
	req := func(loopCtx context.Context) { done <- fn(loopCtx) }
	select {
	case s.requests <- req:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loadFlags() {
	s.playingEnabled = s.flag(PrefPlaying)
	s.randomEnabled = s.flag(PrefRandomPlay)
}

func (s *Scheduler) flag(key string) bool {
	v, err := s.lib.GlobalPref(key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("reading global preference, assuming enabled")
		return true
	}
	return v != "no"
}

// afterEvent persists the queue when it changed and refreshes gauges.
func (s *Scheduler) afterEvent() {
	if gen := s.store.Generation(); gen != s.lastGen {
		s.lastGen = gen
		if s.recorder != nil {
			s.recorder.Save(s.store.Queue(), s.store.History())
		}
	}
	telemetry.QueueLength.Set(float64(s.store.Len()))
	telemetry.HistoryLength.Set(float64(s.store.HistoryLen()))
	if s.playingEnabled {
		telemetry.PlayingEnabled.Set(1)
	} else {
		telemetry.PlayingEnabled.Set(0)
	}
}

func (s *Scheduler) publish(eventType events.EventType, e *queue.Entry, extra events.Payload) {
	payload := events.Payload{
		"id":     e.ID,
		"track":  e.Track,
		"origin": e.Origin.String(),
		"state":  e.State.String(),
	}
	if e.Submitter != "" {
		payload["submitter"] = e.Submitter
	}
	if !e.Played.IsZero() {
		payload["played"] = e.Played
	}
	for k, v := range extra {
		payload[k] = v
	}
	s.bus.Publish(eventType, payload)
}

func (s *Scheduler) publishState() {
	s.bus.Publish(events.EventState, events.Payload{
		"playing": s.playingEnabled,
		"random":  s.randomEnabled,
	})
}

func (s *Scheduler) send(m speaker.Message) error {
	if s.speaker == nil {
		return ErrNoSpeaker
	}
	return s.speaker.Send(m)
}
