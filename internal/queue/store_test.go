package queue

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/friendsincode/grimnir_jukebox/internal/events"
	"github.com/rs/zerolog"
)

func newTestStore(historyLimit int) *Store {
	return NewStore(historyLimit, events.NewBus(), zerolog.Nop())
}

func tracks(entries []*Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Track
	}
	return out
}

func assertOrder(t *testing.T, s *Store, want ...string) {
	t.Helper()
	got := tracks(s.Entries())
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("queue order = %v, want %v", got, want)
	}
}

func TestAddPositions(t *testing.T) {
	s := newTestStore(10)
	s.Add("u1", "alice", WhereEnd, OriginUser)
	s.Add("r1", "", WhereEnd, OriginRandom)
	s.Add("r2", "", WhereEnd, OriginRandom)
	s.Add("u2", "bob", WhereBeforeRandom, OriginUser)
	s.Add("s1", "", WhereStart, OriginScratch)
	nowhere := s.Add("n1", "", WhereNowhere, OriginScratch)

	assertOrder(t, s, "s1", "u1", "u2", "r1", "r2")
	if s.Find(nowhere.ID) != nil {
		t.Fatal("nowhere entry should not be findable in the queue")
	}
	if s.Lookup(nowhere.ID) != nowhere {
		t.Fatal("nowhere entry should keep its ID reserved")
	}
	if nowhere.State != StateUnplayed {
		t.Fatalf("new entries start unplayed, got %s", nowhere.State)
	}
}

func TestAddBeforeRandomEdgeCases(t *testing.T) {
	s := newTestStore(10)
	s.Add("u1", "alice", WhereBeforeRandom, OriginUser)
	assertOrder(t, s, "u1")

	s = newTestStore(10)
	s.Add("r1", "", WhereEnd, OriginRandom)
	s.Add("r2", "", WhereEnd, OriginRandom)
	s.Add("u1", "alice", WhereBeforeRandom, OriginUser)
	assertOrder(t, s, "u1", "r1", "r2")

	s = newTestStore(10)
	s.Add("r1", "", WhereEnd, OriginRandom)
	s.Add("u1", "alice", WhereEnd, OriginUser)
	s.Add("u2", "bob", WhereBeforeRandom, OriginUser)
	assertOrder(t, s, "r1", "u1", "u2")
}

func TestIDsUniqueAmongLiveEntries(t *testing.T) {
	s := newTestStore(5)
	ids := []string{"a", "a", "b", "a", "b", "c"}
	s.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	e1 := s.Add("t1", "", WhereEnd, OriginUser)
	e2 := s.Add("t2", "", WhereEnd, OriginUser)
	e3 := s.Add("t3", "", WhereEnd, OriginUser)
	if e1.ID != "a" || e2.ID != "b" || e3.ID != "c" {
		t.Fatalf("unexpected IDs %q %q %q", e1.ID, e2.ID, e3.ID)
	}

	s = newTestStore(20)
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		e := s.Add(fmt.Sprintf("t%d", i), "", WhereEnd, OriginUser)
		if seen[e.ID] {
			t.Fatalf("duplicate ID %q", e.ID)
		}
		if len(e.ID) == 0 || len(e.ID) > 23 {
			t.Fatalf("ID %q does not fit the speaker protocol", e.ID)
		}
		seen[e.ID] = true
		if i%3 == 0 {
			s.RecordPlayed(e)
		}
	}
}

func TestRemoveReleasesIDButDetachDoesNot(t *testing.T) {
	s := newTestStore(5)
	removed := s.Add("t1", "", WhereEnd, OriginUser)
	detached := s.Add("t2", "", WhereEnd, OriginUser)

	s.Remove(removed, "alice")
	if s.Lookup(removed.ID) != nil {
		t.Fatal("removed entry should release its ID")
	}
	s.Detach(detached)
	if s.Find(detached.ID) != nil {
		t.Fatal("detached entry should not be queued")
	}
	if s.Lookup(detached.ID) != detached {
		t.Fatal("detached entry should keep its ID")
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", s.Len())
	}
}

func TestMoveStopsAtEnds(t *testing.T) {
	s := newTestStore(5)
	s.Add("a", "", WhereEnd, OriginUser)
	s.Add("b", "", WhereEnd, OriginUser)
	c := s.Add("c", "", WhereEnd, OriginUser)

	if left := s.Move(c, math.MaxInt, "alice"); left != math.MaxInt-2 {
		t.Fatalf("leftover = %d, want %d", left, math.MaxInt-2)
	}
	assertOrder(t, s, "c", "a", "b")

	if left := s.Move(c, -1, "alice"); left != 0 {
		t.Fatalf("leftover = %d, want 0", left)
	}
	assertOrder(t, s, "a", "c", "b")

	if left := s.Move(c, -5, "alice"); left != -4 {
		t.Fatalf("leftover = %d, want -4", left)
	}
	assertOrder(t, s, "a", "b", "c")
}

func TestNoOpMoveIsNotPublished(t *testing.T) {
	bus := events.NewBus()
	s := NewStore(5, bus, zerolog.Nop())
	head := s.Add("a", "", WhereEnd, OriginUser)
	s.Add("b", "", WhereEnd, OriginUser)
	moved := bus.Subscribe(events.EventMoved)

	gen := s.Generation()
	if left := s.Move(head, 3, "alice"); left != 3 {
		t.Fatalf("leftover = %d, want 3", left)
	}
	if s.Generation() != gen {
		t.Fatal("no-op move should not change the generation")
	}
	select {
	case p := <-moved:
		t.Fatalf("unexpected move event %v", p)
	default:
	}

	s.Move(head, -1, "alice")
	select {
	case p := <-moved:
		if p["who"] != "alice" {
			t.Fatalf("unexpected payload %v", p)
		}
	default:
		t.Fatal("expected move event")
	}
}

func TestMoveAfter(t *testing.T) {
	tests := []struct {
		name   string
		target string
		move   []string
		want   []string
	}{
		{name: "to head", target: "", move: []string{"d", "b"}, want: []string{"d", "b", "a", "c", "e"}},
		{name: "after target", target: "a", move: []string{"e", "c"}, want: []string{"a", "e", "c", "b", "d"}},
		{name: "target among moved", target: "c", move: []string{"c", "e"}, want: []string{"a", "b", "c", "e", "d"}},
		{name: "target and predecessors moved", target: "b", move: []string{"b", "a", "e"}, want: []string{"b", "a", "e", "c", "d"}},
		{name: "duplicates ignored", target: "d", move: []string{"a", "a"}, want: []string{"b", "c", "d", "a", "e"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(5)
			byTrack := map[string]*Entry{}
			for _, name := range []string{"a", "b", "c", "d", "e"} {
				byTrack[name] = s.Add(name, "", WhereEnd, OriginUser)
			}
			var entries []*Entry
			for _, name := range tt.move {
				entries = append(entries, byTrack[name])
			}
			s.MoveAfter(byTrack[tt.target], entries, "alice")
			assertOrder(t, s, tt.want...)
		})
	}
}

func TestRecordPlayedBoundsHistory(t *testing.T) {
	bus := events.NewBus()
	s := NewStore(3, bus, zerolog.Nop())
	evicted := bus.Subscribe(events.EventRecentRemoved)

	var played []*Entry
	for i := 0; i < 6; i++ {
		e := s.Add(fmt.Sprintf("t%d", i), "", WhereEnd, OriginUser)
		s.Detach(e)
		e.State = StateOK
		s.RecordPlayed(e)
		played = append(played, e)
		if s.HistoryLen() > 3 {
			t.Fatalf("history length %d exceeds limit", s.HistoryLen())
		}
	}

	history := s.History()
	if len(history) != 3 || history[0].Track != "t3" || history[2].Track != "t5" {
		t.Fatalf("unexpected history %v", history)
	}
	for i, want := range []string{"t0", "t1", "t2"} {
		select {
		case p := <-evicted:
			if p["track"] != want {
				t.Fatalf("eviction %d = %v, want %s", i, p["track"], want)
			}
		default:
			t.Fatalf("missing eviction %d", i)
		}
		if s.Lookup(played[i].ID) != nil {
			t.Fatalf("evicted entry %s should release its ID", want)
		}
	}
	if s.Lookup(played[5].ID) == nil {
		t.Fatal("entry in history should keep its ID")
	}

	s.SetHistoryLimit(1)
	if s.HistoryLen() != 1 || s.History()[0].Track != "t5" {
		t.Fatalf("unexpected history after shrinking: %v", s.History())
	}
}

func TestLiveTracksIncludesDetachedAndHistory(t *testing.T) {
	s := newTestStore(5)
	s.Add("queued", "", WhereEnd, OriginUser)
	playing := s.Add("playing", "", WhereEnd, OriginUser)
	s.Detach(playing)
	old := s.Add("old", "", WhereEnd, OriginUser)
	s.RecordPlayed(old)

	live := s.LiveTracks()
	for _, name := range []string{"queued", "playing", "old"} {
		if _, ok := live[name]; !ok {
			t.Fatalf("expected %s in live tracks", name)
		}
	}
}

func TestRestoreDropsDuplicates(t *testing.T) {
	s := newTestStore(2)
	s.Restore(
		[]Entry{{ID: "q1", Track: "a", State: StateStarted, Prepared: true}, {ID: "h1", Track: "dup"}},
		[]Entry{{ID: "h0", Track: "x"}, {ID: "h1", Track: "y"}, {ID: "h2", Track: "z"}},
	)
	if s.Len() != 1 {
		t.Fatalf("expected duplicate queue entry dropped, got %d entries", s.Len())
	}
	head := s.Head()
	if head.State != StateUnplayed || head.Prepared {
		t.Fatalf("restored queue entries should be reset, got %+v", head)
	}
	if s.HistoryLen() != 2 || s.History()[0].Track != "y" {
		t.Fatalf("unexpected restored history %v", s.History())
	}
	if s.Lookup("h0") != nil {
		t.Fatal("history overflow on restore should release IDs")
	}
}

func TestEntryElapsedBookkeeping(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e := &Entry{State: StateStarted, Played: start}

	e.FixSofar(start.Add(10 * time.Second))
	if e.Sofar != 10 {
		t.Fatalf("sofar = %d, want 10", e.Sofar)
	}

	e.MarkPaused(start.Add(15 * time.Second))
	e.State = StatePaused
	e.FixSofar(start.Add(100 * time.Second))
	if e.Sofar != 15 {
		t.Fatalf("paused sofar = %d, want 15", e.Sofar)
	}

	e.MarkResumed(start.Add(200 * time.Second))
	e.State = StateStarted
	e.FixSofar(start.Add(205 * time.Second))
	if e.Sofar != 20 {
		t.Fatalf("resumed sofar = %d, want 20", e.Sofar)
	}

	e.MarkPaused(start.Add(210 * time.Second))
	if e.UpToPause != 25 {
		t.Fatalf("second pause uptopause = %d, want 25", e.UpToPause)
	}
}

func TestStateAndOriginNames(t *testing.T) {
	for s := StateUnplayed; s <= StateQuitting; s++ {
		got, err := ParseState(s.String())
		if err != nil || got != s {
			t.Fatalf("ParseState(%q) = %v, %v", s.String(), got, err)
		}
	}
	if _, err := ParseOrigin("robot"); err == nil {
		t.Fatal("expected unknown origin to fail")
	}
	if !StateScratched.Terminal() || StatePaused.Terminal() {
		t.Fatal("unexpected Terminal results")
	}
}
