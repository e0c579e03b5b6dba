package trackdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/friendsincode/grimnir_jukebox/internal/choose"
	"github.com/rs/zerolog"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTracksAndAliases(t *testing.T) {
	db := openTestDB(t)
	noticed := time.Unix(1_700_000_000, 0)
	db.now = func() time.Time { return noticed }

	added, err := db.AddTrack("/music/a.ogg")
	if err != nil || !added {
		t.Fatalf("add = %v, %v", added, err)
	}
	added, err = db.AddTrack("/music/a.ogg")
	if err != nil || added {
		t.Fatalf("second add = %v, %v", added, err)
	}
	if err := db.AddAlias("/music/alias.ogg", "/music/a.ogg"); err != nil {
		t.Fatalf("alias: %v", err)
	}

	got, err := db.Resolve("/music/alias.ogg")
	if err != nil || got != "/music/a.ogg" {
		t.Fatalf("resolve alias = %q, %v", got, err)
	}
	got, err = db.Resolve("/music/a.ogg")
	if err != nil || got != "/music/a.ogg" {
		t.Fatalf("resolve track = %q, %v", got, err)
	}
	if _, err := db.Resolve("/music/missing.ogg"); !errors.Is(err, ErrNoSuchTrack) {
		t.Fatalf("expected ErrNoSuchTrack, got %v", err)
	}
	if ok, err := db.Exists("/music/missing.ogg"); err != nil || ok {
		t.Fatalf("exists missing = %v, %v", ok, err)
	}

	when, err := db.Noticed("/music/a.ogg")
	if err != nil || !when.Equal(noticed) {
		t.Fatalf("noticed = %v, %v", when, err)
	}
}

func TestPrefs(t *testing.T) {
	db := openTestDB(t)
	if err := db.SetPref("/music/a.ogg", "tags", "rock"); err != nil {
		t.Fatalf("set pref: %v", err)
	}
	if v, err := db.Pref("/music/a.ogg", "tags"); err != nil || v != "rock" {
		t.Fatalf("pref = %q, %v", v, err)
	}
	if err := db.SetPref("/music/a.ogg", "tags", ""); err != nil {
		t.Fatalf("unset pref: %v", err)
	}
	if v, _ := db.Pref("/music/a.ogg", "tags"); v != "" {
		t.Fatalf("expected unset pref, got %q", v)
	}

	if v, err := db.GlobalPref("playing"); err != nil || v != "" {
		t.Fatalf("unset global = %q, %v", v, err)
	}
	if err := db.SetGlobalPref("playing", "no", "alice"); err != nil {
		t.Fatalf("set global: %v", err)
	}
	if v, _ := db.GlobalPref("playing"); v != "no" {
		t.Fatalf("global = %q", v)
	}
}

func TestScanBuildsCandidates(t *testing.T) {
	db := openTestDB(t)
	db.SetCollections([]string{"/music/"})
	for _, track := range []string{"/music/a.ogg", "/elsewhere/b.ogg"} {
		if _, err := db.AddTrack(track); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := db.AddAlias("/music/c.ogg", "/music/a.ogg"); err != nil {
		t.Fatalf("alias: %v", err)
	}
	played := time.Unix(1_700_000_500, 0)
	if err := db.MarkPlayed("/music/a.ogg", played); err != nil {
		t.Fatalf("mark played: %v", err)
	}

	got := map[string]choose.Candidate{}
	err := db.Scan(context.Background(), func(c choose.Candidate) error {
		got[c.Track] = c
		return nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	a := got["/music/a.ogg"]
	if !a.InCollection || a.Alias || a.Prefs["played_time"] != "1700000500" || a.Noticed.IsZero() {
		t.Fatalf("unexpected candidate %+v", a)
	}
	if got["/elsewhere/b.ogg"].InCollection {
		t.Fatal("track outside the collections should not be in a collection")
	}
	if !got["/music/c.ogg"].Alias {
		t.Fatal("alias not flagged")
	}

	stop := errors.New("stop")
	calls := 0
	err = db.Scan(context.Background(), func(choose.Candidate) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("scan should stop on callback error, got %v after %d calls", err, calls)
	}
}

func TestRescan(t *testing.T) {
	root := t.TempDir()
	write := func(name string) string {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		return path
	}
	a := write("a.ogg")
	b := write("sub/b.ogg")

	db := openTestDB(t)
	db.SetCollections([]string{root})
	stats, err := db.Rescan(context.Background())
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if stats.Seen != 2 || stats.Added != 2 || stats.Removed != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if err := db.AddAlias(filepath.Join(root, "b-alias.ogg"), b); err != nil {
		t.Fatalf("alias: %v", err)
	}

	if err := os.Remove(b); err != nil {
		t.Fatalf("remove: %v", err)
	}
	stats, err = db.Rescan(context.Background())
	if err != nil {
		t.Fatalf("second rescan: %v", err)
	}
	if stats.Seen != 1 || stats.Added != 0 || stats.Removed != 2 {
		t.Fatalf("unexpected stats after removal %+v", stats)
	}
	if ok, _ := db.Exists(b); ok {
		t.Fatal("vanished track still present")
	}
	if ok, _ := db.Exists(a); !ok {
		t.Fatal("surviving track forgotten")
	}
}

func TestLibraryMarkPlayedFollowsAlias(t *testing.T) {
	db := openTestDB(t)
	db.SetCollections([]string{"/music"})
	if _, err := db.AddTrack("/music/a.ogg"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := db.AddAlias("/music/alias.ogg", "/music/a.ogg"); err != nil {
		t.Fatalf("alias: %v", err)
	}
	lib := NewLibrary(db, choose.NewService(db, choose.Policy{}, zerolog.Nop()))
	if err := lib.MarkPlayed("/music/alias.ogg", time.Unix(42, 0)); err != nil {
		t.Fatalf("mark played: %v", err)
	}
	if v, _ := db.Pref("/music/a.ogg", "played_time"); v != "42" {
		t.Fatalf("played_time = %q", v)
	}

	track, err := lib.RandomTrack(context.Background(), nil)
	if err != nil || track != "/music/a.ogg" {
		t.Fatalf("random track = %q, %v", track, err)
	}
	if _, err := lib.RandomTrack(context.Background(), map[string]struct{}{"/music/a.ogg": {}}); !errors.Is(err, choose.ErrNoCandidate) {
		t.Fatalf("expected ErrNoCandidate, got %v", err)
	}
}
