/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package queue

import (
	"container/list"
	"math/big"
	"time"

	"github.com/friendsincode/grimnir_jukebox/internal/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store holds the pending queue and the bounded history of played entries.
// It is not safe for concurrent use; the scheduler loop owns it.
type Store struct {
	logger zerolog.Logger
	bus    *events.Bus

	pending *list.List // of *Entry
	recent  *list.List // of *Entry
	elems   map[*Entry]*list.Element
	live    map[string]*Entry // every entry whose ID is reserved

	historyLimit int
	generation   uint64

	newID func() string
	now   func() time.Time
}

// NewStore creates an empty store keeping at most historyLimit played entries.
func NewStore(historyLimit int, bus *events.Bus, logger zerolog.Logger) *Store {
	if historyLimit < 1 {
		historyLimit = 1
	}
	return &Store{
		logger:       logger.With().Str("component", "queue").Logger(),
		bus:          bus,
		pending:      list.New(),
		recent:       list.New(),
		elems:        make(map[*Entry]*list.Element),
		live:         make(map[string]*Entry),
		historyLimit: historyLimit,
		newID:        newID,
		now:          time.Now,
	}
}

// newID encodes a random UUID in base 62, which keeps IDs short enough for
// the speaker protocol's fixed ID field.
func newID() string {
	u := uuid.New()
	return new(big.Int).SetBytes(u[:]).Text(62)
}

// Add creates an entry for track and inserts it at where.
func (s *Store) Add(track, submitter string, where Where, origin Origin) *Entry {
	e := &Entry{
		ID:        s.uniqueID(),
		Track:     track,
		Submitter: submitter,
		Origin:    origin,
		State:     StateUnplayed,
		When:      s.now(),
	}
	s.live[e.ID] = e
	if where != WhereNowhere {
		s.Insert(e, where)
	}
	return e
}

func (s *Store) uniqueID() string {
	for {
		id := s.newID()
		if _, taken := s.live[id]; !taken && id != "" {
			return id
		}
		s.logger.Warn().Str("id", id).Msg("generated queue ID already live, retrying")
	}
}

// Insert links an entry created with WhereNowhere (or detached) into the queue.
func (s *Store) Insert(e *Entry, where Where) {
	if _, queued := s.elems[e]; queued || where == WhereNowhere {
		return
	}
	s.live[e.ID] = e
	switch where {
	case WhereStart:
		s.elems[e] = s.pending.PushFront(e)
	case WhereEnd:
		s.elems[e] = s.pending.PushBack(e)
	case WhereBeforeRandom:
		mark := s.pending.Back()
		for mark != nil && mark.Value.(*Entry).Origin == OriginRandom {
			mark = mark.Prev()
		}
		if mark == nil {
			s.elems[e] = s.pending.PushFront(e)
		} else {
			s.elems[e] = s.pending.InsertAfter(e, mark)
		}
	}
	s.touch()
	s.publish(events.EventQueued, e, "")
}

// Remove unlinks e from the queue and releases its ID.
func (s *Store) Remove(e *Entry, who string) {
	if el, ok := s.elems[e]; ok {
		s.pending.Remove(el)
		delete(s.elems, e)
		s.touch()
		s.publish(events.EventRemoved, e, who)
	}
	s.Release(e)
}

// Detach unlinks e from the queue but keeps its ID reserved, for the entry
// about to become the playing one.
func (s *Store) Detach(e *Entry) {
	if el, ok := s.elems[e]; ok {
		s.pending.Remove(el)
		delete(s.elems, e)
		s.touch()
	}
}

// Release frees e's ID. It is a no-op for entries still queued or in history.
func (s *Store) Release(e *Entry) {
	if _, queued := s.elems[e]; queued {
		return
	}
	if s.inHistory(e) {
		return
	}
	if s.live[e.ID] == e {
		delete(s.live, e.ID)
	}
}

// Move shifts e delta places toward the head (delta > 0) or the tail
// (delta < 0). It stops at either end and returns the part of delta it
// could not use.
func (s *Store) Move(e *Entry, delta int, who string) int {
	el, ok := s.elems[e]
	if !ok {
		return delta
	}
	moved := 0
	for delta > 0 && el.Prev() != nil {
		s.pending.MoveBefore(el, el.Prev())
		delta--
		moved++
	}
	for delta < 0 && el.Next() != nil {
		s.pending.MoveAfter(el, el.Next())
		delta++
		moved++
	}
	if moved > 0 {
		s.touch()
		s.logger.Info().Str("id", e.ID).Str("track", e.Track).Str("who", who).Int("moved", moved).Msg("queue entry moved")
		s.publish(events.EventMoved, e, who)
	}
	return delta
}

// MoveAfter splices entries, in order, directly after target, or at the
// head when target is nil. If target is itself being moved the nearest
// earlier entry that is not being moved becomes the anchor.
func (s *Store) MoveAfter(target *Entry, entries []*Entry, who string) {
	moving := make(map[*Entry]bool, len(entries))
	for _, e := range entries {
		if _, ok := s.elems[e]; ok {
			moving[e] = true
		}
	}
	if len(moving) == 0 {
		return
	}

	var anchor *list.Element
	if target != nil {
		anchor = s.elems[target]
		for anchor != nil && moving[anchor.Value.(*Entry)] {
			anchor = anchor.Prev()
		}
	}

	placed := make(map[*Entry]bool, len(moving))
	for _, e := range entries {
		if !moving[e] || placed[e] {
			continue
		}
		placed[e] = true
		el := s.elems[e]
		if anchor == nil {
			s.pending.MoveToFront(el)
		} else {
			s.pending.MoveAfter(el, anchor)
		}
		anchor = el
		s.logger.Info().Str("id", e.ID).Str("track", e.Track).Str("who", who).Msg("queue entry moved")
		s.publish(events.EventMoved, e, who)
	}
	s.touch()
}

// RecordPlayed appends e to the history, evicting the oldest entries first
// so that the history never exceeds its limit.
func (s *Store) RecordPlayed(e *Entry) {
	s.Detach(e)
	for s.recent.Len() >= s.historyLimit {
		s.evictOldest()
	}
	s.recent.PushBack(e)
	s.live[e.ID] = e
	s.touch()
	s.publish(events.EventRecentAdded, e, "")
}

func (s *Store) evictOldest() {
	front := s.recent.Front()
	if front == nil {
		return
	}
	old := s.recent.Remove(front).(*Entry)
	if s.live[old.ID] == old {
		delete(s.live, old.ID)
	}
	s.logger.Info().Str("id", old.ID).Str("track", old.Track).Msg("expired from history")
	s.publish(events.EventRecentRemoved, old, "")
}

// SetHistoryLimit changes the history bound, evicting immediately if needed.
func (s *Store) SetHistoryLimit(limit int) {
	if limit < 1 {
		limit = 1
	}
	s.historyLimit = limit
	changed := false
	for s.recent.Len() > s.historyLimit {
		s.evictOldest()
		changed = true
	}
	if changed {
		s.touch()
	}
}

// Find returns the queued entry with the given ID.
func (s *Store) Find(id string) *Entry {
	e := s.live[id]
	if e == nil {
		return nil
	}
	if _, queued := s.elems[e]; !queued {
		return nil
	}
	return e
}

// Lookup returns any live entry with the given ID: queued, playing,
// pre-armed or in history.
func (s *Store) Lookup(id string) *Entry {
	return s.live[id]
}

// Head returns the first queued entry, or nil.
func (s *Store) Head() *Entry {
	if front := s.pending.Front(); front != nil {
		return front.Value.(*Entry)
	}
	return nil
}

// Len returns the number of queued entries.
func (s *Store) Len() int {
	return s.pending.Len()
}

// HistoryLen returns the number of entries in history.
func (s *Store) HistoryLen() int {
	return s.recent.Len()
}

// Entries returns the queued entries in order.
func (s *Store) Entries() []*Entry {
	return collect(s.pending)
}

// Queue returns copies of the queued entries in order.
func (s *Store) Queue() []Entry {
	return snapshot(s.pending)
}

// History returns copies of the history, oldest first.
func (s *Store) History() []Entry {
	return snapshot(s.recent)
}

// LiveTracks returns the set of tracks belonging to any live entry.
func (s *Store) LiveTracks() map[string]struct{} {
	tracks := make(map[string]struct{}, len(s.live))
	for _, e := range s.live {
		tracks[e.Track] = struct{}{}
	}
	return tracks
}

// Generation increases whenever the queue or history changes.
func (s *Store) Generation() uint64 {
	return s.generation
}

// Restore loads persisted queue and history entries into an empty store.
// Entries whose ID is already live are dropped.
func (s *Store) Restore(queued, history []Entry) {
	for i := range history {
		e := history[i]
		if !s.reserve(&e) {
			continue
		}
		for s.recent.Len() >= s.historyLimit {
			s.evictOldest()
		}
		s.recent.PushBack(&e)
	}
	for i := range queued {
		e := queued[i]
		e.State = StateUnplayed
		e.Prepared, e.Preparing = false, false
		if !s.reserve(&e) {
			continue
		}
		s.elems[&e] = s.pending.PushBack(&e)
	}
	s.touch()
}

func (s *Store) reserve(e *Entry) bool {
	if e.ID == "" {
		e.ID = s.uniqueID()
	}
	if _, taken := s.live[e.ID]; taken {
		s.logger.Warn().Str("id", e.ID).Str("track", e.Track).Msg("dropping restored entry with duplicate ID")
		return false
	}
	e.Process, e.Binding = nil, nil
	s.live[e.ID] = e
	return true
}

func (s *Store) inHistory(e *Entry) bool {
	for el := s.recent.Front(); el != nil; el = el.Next() {
		if el.Value.(*Entry) == e {
			return true
		}
	}
	return false
}

func (s *Store) touch() {
	s.generation++
}

func (s *Store) publish(eventType events.EventType, e *Entry, who string) {
	payload := events.Payload{
		"id":     e.ID,
		"track":  e.Track,
		"origin": e.Origin.String(),
		"state":  e.State.String(),
	}
	if e.Submitter != "" {
		payload["submitter"] = e.Submitter
	}
	if who != "" {
		payload["who"] = who
	}
	s.bus.Publish(eventType, payload)
}

func collect(l *list.List) []*Entry {
	out := make([]*Entry, 0, l.Len())
	for el := l.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*Entry))
	}
	return out
}

func snapshot(l *list.List) []Entry {
	out := make([]Entry, 0, l.Len())
	for el := l.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*Entry).Snapshot())
	}
	return out
}
