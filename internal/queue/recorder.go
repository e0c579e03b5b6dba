/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/grimnir_jukebox/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type snapshotSet struct {
	queued  []Entry
	history []Entry
}

// Recorder persists the queue and history to the database from its own
// goroutine so the scheduler never waits on storage. Only the latest
// snapshot is written; intermediate ones are dropped.
type Recorder struct {
	db     *gorm.DB
	logger zerolog.Logger

	pending chan snapshotSet
	plays   chan models.PlayLog
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	now func() time.Time
}

// NewRecorder creates a recorder; call Start before Save.
func NewRecorder(db *gorm.DB, logger zerolog.Logger) *Recorder {
	return &Recorder{
		db:      db,
		logger:  logger.With().Str("component", "queue-recorder").Logger(),
		pending: make(chan snapshotSet, 1),
		plays:   make(chan models.PlayLog, 64),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
}

// Start launches the writer goroutine.
func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.loop()
}

// Close flushes outstanding writes and stops the writer.
func (r *Recorder) Close() error {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
	return nil
}

// Save queues a snapshot for writing, replacing any unwritten one.
func (r *Recorder) Save(queued, history []Entry) {
	snap := snapshotSet{queued: queued, history: history}
	for {
		select {
		case r.pending <- snap:
			return
		default:
		}
		select {
		case <-r.pending:
		default:
		}
	}
}

// LogPlayed appends e to the play log. It never blocks; if the writer is
// badly behind the record is dropped and logged.
func (r *Recorder) LogPlayed(e Entry) {
	rec := models.PlayLog{
		ID:          uuid.NewString(),
		EntryID:     e.ID,
		Track:       e.Track,
		Submitter:   e.Submitter,
		Origin:      e.Origin.String(),
		State:       e.State.String(),
		ScratchedBy: e.Scratched,
		StartedAt:   e.Played,
		EndedAt:     r.now(),
		WaitStatus:  e.WaitStatus,
	}
	select {
	case r.plays <- rec:
	default:
		r.logger.Warn().Str("track", e.Track).Msg("play log backlog full, dropping record")
	}
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	ctx := context.Background()
	for {
		select {
		case snap := <-r.pending:
			r.writeSnapshot(ctx, snap)
		case rec := <-r.plays:
			r.writePlay(ctx, rec)
		case <-r.stop:
			r.drain(ctx)
			return
		}
	}
}

func (r *Recorder) drain(ctx context.Context) {
	for {
		select {
		case snap := <-r.pending:
			r.writeSnapshot(ctx, snap)
		case rec := <-r.plays:
			r.writePlay(ctx, rec)
		default:
			return
		}
	}
}

func (r *Recorder) writeSnapshot(ctx context.Context, snap snapshotSet) {
	if err := r.Write(ctx, snap.queued, snap.history); err != nil {
		r.logger.Error().Err(err).Msg("failed to persist queue")
	}
}

func (r *Recorder) writePlay(ctx context.Context, rec models.PlayLog) {
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		r.logger.Error().Err(err).Str("track", rec.Track).Msg("failed to append play log")
	}
}

// Write replaces the stored queue and history in one transaction.
func (r *Recorder) Write(ctx context.Context, queued, history []Entry) error {
	rows := make([]models.QueueEntry, 0, len(queued)+len(history))
	for i, e := range queued {
		rows = append(rows, toRecord(models.QueueListPending, i, e))
	}
	for i, e := range history {
		rows = append(rows, toRecord(models.QueueListRecent, i, e))
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("list IN ?", []string{models.QueueListPending, models.QueueListRecent}).
			Delete(&models.QueueEntry{}).Error; err != nil {
			return fmt.Errorf("clear queue: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("write queue: %w", err)
		}
		return nil
	})
}

// Load reads the stored queue and history, both in their saved order.
func (r *Recorder) Load(ctx context.Context) (queued, history []Entry, err error) {
	var rows []models.QueueEntry
	if err := r.db.WithContext(ctx).Order("list, position").Find(&rows).Error; err != nil {
		return nil, nil, fmt.Errorf("load queue: %w", err)
	}
	for _, row := range rows {
		e, err := fromRecord(row)
		if err != nil {
			r.logger.Warn().Err(err).Str("id", row.EntryID).Msg("skipping unreadable queue row")
			continue
		}
		switch row.List {
		case models.QueueListPending:
			queued = append(queued, e)
		case models.QueueListRecent:
			history = append(history, e)
		}
	}
	return queued, history, nil
}

// PlayLog returns the most recent play log records, newest first.
func (r *Recorder) PlayLog(ctx context.Context, limit int) ([]models.PlayLog, error) {
	var out []models.PlayLog
	if err := r.db.WithContext(ctx).Order("ended_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load play log: %w", err)
	}
	return out, nil
}

func toRecord(list string, pos int, e Entry) models.QueueEntry {
	rec := models.QueueEntry{
		List:        list,
		Position:    pos,
		EntryID:     e.ID,
		Track:       e.Track,
		Submitter:   e.Submitter,
		Origin:      e.Origin.String(),
		State:       e.State.String(),
		QueuedAt:    e.When,
		Sofar:       e.Sofar,
		ScratchedBy: e.Scratched,
		WaitStatus:  e.WaitStatus,
	}
	if !e.Played.IsZero() {
		played := e.Played
		rec.PlayedAt = &played
	}
	return rec
}

func fromRecord(rec models.QueueEntry) (Entry, error) {
	origin, err := ParseOrigin(rec.Origin)
	if err != nil {
		return Entry{}, err
	}
	state, err := ParseState(rec.State)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		ID:         rec.EntryID,
		Track:      rec.Track,
		Submitter:  rec.Submitter,
		Origin:     origin,
		State:      state,
		When:       rec.QueuedAt,
		Sofar:      rec.Sofar,
		Scratched:  rec.ScratchedBy,
		WaitStatus: rec.WaitStatus,
	}
	if rec.PlayedAt != nil {
		e.Played = *rec.PlayedAt
	}
	return e, nil
}
