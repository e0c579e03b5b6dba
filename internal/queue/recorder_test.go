package queue

import (
	"context"
	"testing"
	"time"

	"github.com/friendsincode/grimnir_jukebox/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.QueueEntry{}, &models.PlayLog{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestRecorderWriteLoadRoundTrip(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	r := NewRecorder(db, zerolog.Nop())
	ctx := context.Background()

	queued := []Entry{
		{ID: "q1", Track: "/music/a.ogg", Submitter: "alice", Origin: OriginUser, State: StateUnplayed, When: time.Unix(100, 0)},
		{ID: "q2", Track: "/music/b.ogg", Origin: OriginRandom, State: StateUnplayed, When: time.Unix(200, 0)},
	}
	history := []Entry{
		{ID: "h1", Track: "/music/c.ogg", Origin: OriginUser, State: StateOK, Played: time.Unix(50, 0), Sofar: 180},
		{ID: "h2", Track: "/music/d.ogg", Origin: OriginScratch, State: StateScratched, Scratched: "bob", WaitStatus: 9},
	}
	if err := r.Write(ctx, queued, history); err != nil {
		t.Fatalf("write: %v", err)
	}

	gotQueue, gotHistory, err := r.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(gotQueue) != 2 || gotQueue[0].ID != "q1" || gotQueue[1].ID != "q2" {
		t.Fatalf("unexpected queue %+v", gotQueue)
	}
	if gotQueue[0].Submitter != "alice" || gotQueue[1].Origin != OriginRandom {
		t.Fatalf("queue fields not preserved: %+v", gotQueue)
	}
	if len(gotHistory) != 2 || gotHistory[0].ID != "h1" || gotHistory[1].ID != "h2" {
		t.Fatalf("unexpected history %+v", gotHistory)
	}
	if gotHistory[0].Sofar != 180 || !gotHistory[0].Played.Equal(time.Unix(50, 0)) {
		t.Fatalf("history timing not preserved: %+v", gotHistory[0])
	}
	if gotHistory[1].State != StateScratched || gotHistory[1].Scratched != "bob" || gotHistory[1].WaitStatus != 9 {
		t.Fatalf("history outcome not preserved: %+v", gotHistory[1])
	}
	if !gotHistory[1].Played.IsZero() {
		t.Fatalf("unplayed entry should have zero play time, got %v", gotHistory[1].Played)
	}

	// A second write replaces the first.
	if err := r.Write(ctx, queued[1:], nil); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	gotQueue, gotHistory, err = r.Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(gotQueue) != 1 || gotQueue[0].ID != "q2" || len(gotHistory) != 0 {
		t.Fatalf("unexpected state after rewrite: %+v %+v", gotQueue, gotHistory)
	}
}

func TestRecorderLoadSkipsUnreadableRows(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	r := NewRecorder(db, zerolog.Nop())
	rows := []models.QueueEntry{
		{List: models.QueueListPending, Position: 0, EntryID: "ok", Track: "a", Origin: "user", State: "unplayed"},
		{List: models.QueueListPending, Position: 1, EntryID: "bad", Track: "b", Origin: "martian", State: "unplayed"},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	queued, _, err := r.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(queued) != 1 || queued[0].ID != "ok" {
		t.Fatalf("unexpected queue %+v", queued)
	}
}

func TestRecorderSaveAndLogFlushOnClose(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	r := NewRecorder(db, zerolog.Nop())
	r.Start()

	for i := 0; i < 5; i++ {
		r.Save([]Entry{{ID: "q", Track: "t", State: StateUnplayed, Origin: OriginUser}}, nil)
	}
	r.Save([]Entry{{ID: "final", Track: "t", State: StateUnplayed, Origin: OriginUser}}, nil)
	r.LogPlayed(Entry{ID: "p1", Track: "/music/a.ogg", Origin: OriginUser, State: StateOK, Played: time.Unix(10, 0)})

	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	queued, _, err := r.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(queued) != 1 || queued[0].ID != "final" {
		t.Fatalf("expected latest snapshot to win, got %+v", queued)
	}

	plays, err := r.PlayLog(context.Background(), 10)
	if err != nil {
		t.Fatalf("play log: %v", err)
	}
	if len(plays) != 1 || plays[0].EntryID != "p1" || plays[0].State != "ok" {
		t.Fatalf("unexpected play log %+v", plays)
	}
}
