/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package queue

import (
	"fmt"
	"syscall"
	"time"

	"github.com/friendsincode/grimnir_jukebox/internal/player"
	"github.com/friendsincode/grimnir_jukebox/internal/supervisor"
)

// State is the playback state of an entry.
type State int

const (
	StateUnplayed State = iota
	StateStarted
	StatePaused
	StateOK
	StateFailed
	StateScratched
	StateQuitting
)

var stateNames = [...]string{"unplayed", "started", "paused", "ok", "failed", "scratched", "quitting"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether the entry has finished one way or another.
func (s State) Terminal() bool {
	return s == StateOK || s == StateFailed || s == StateScratched || s == StateQuitting
}

// ParseState is the inverse of State.String.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", name)
}

// Origin records why an entry is in the queue.
type Origin int

const (
	OriginUser Origin = iota
	OriginRandom
	OriginScratch
)

var originNames = [...]string{"user", "random", "scratch"}

func (o Origin) String() string {
	if int(o) < len(originNames) {
		return originNames[o]
	}
	return fmt.Sprintf("origin(%d)", int(o))
}

// ParseOrigin is the inverse of Origin.String.
func ParseOrigin(name string) (Origin, error) {
	for i, n := range originNames {
		if n == name {
			return Origin(i), nil
		}
	}
	return 0, fmt.Errorf("unknown origin %q", name)
}

// Where selects the insertion point for Add.
type Where int

const (
	WhereStart        Where = iota // head of the queue
	WhereEnd                       // tail of the queue
	WhereBeforeRandom              // before the trailing run of random entries
	WhereNowhere                   // not inserted; the ID is still reserved
)

// Entry is one pending, playing or historical track.
type Entry struct {
	ID        string
	Track     string
	Submitter string
	Origin    Origin
	State     State

	When     time.Time // when queued
	Played   time.Time // when started
	Expected time.Time // estimated start, for display

	// Sofar is how many seconds have been played.
	Sofar int64

	LastPaused  time.Time
	LastResumed time.Time
	UpToPause   int64

	Scratched  string // who scratched it
	WaitStatus int    // last player exit, wait(2) encoding
	Killed     syscall.Signal

	// Prepared is set once the speaker holds decoded audio; Preparing while
	// the decoder is still running.
	Prepared  bool
	Preparing bool

	Binding *player.Binding
	Process supervisor.Process
}

// MarkPaused records a pause at now for elapsed-time bookkeeping.
func (e *Entry) MarkPaused(now time.Time) {
	e.UpToPause = e.elapsed(now)
	e.LastPaused = now
	e.LastResumed = time.Time{}
}

// MarkResumed records a resume at now.
func (e *Entry) MarkResumed(now time.Time) {
	e.LastResumed = now
}

// FixSofar recomputes Sofar for players that do not report progress themselves.
func (e *Entry) FixSofar(now time.Time) {
	if e.Binding.Raw() {
		return
	}
	switch e.State {
	case StatePaused:
		e.Sofar = e.UpToPause
	case StateStarted:
		e.Sofar = e.elapsed(now)
	}
}

func (e *Entry) elapsed(now time.Time) int64 {
	if !e.LastResumed.IsZero() {
		return e.UpToPause + int64(now.Sub(e.LastResumed)/time.Second)
	}
	if !e.LastPaused.IsZero() {
		return e.UpToPause
	}
	return int64(now.Sub(e.Played) / time.Second)
}

// Snapshot returns a copy without the live process or binding.
func (e *Entry) Snapshot() Entry {
	c := *e
	c.Process = nil
	c.Binding = nil
	return c
}
