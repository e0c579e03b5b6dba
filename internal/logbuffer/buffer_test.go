package logbuffer

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRingKeepsNewest(t *testing.T) {
	b := New(3)
	for i, msg := range []string{"a", "b", "c", "d"} {
		b.Add(Entry{Message: msg, Time: time.Unix(int64(i), 0)})
	}
	if b.Len() != 3 {
		t.Fatalf("len = %d", b.Len())
	}
	got := b.Query(Filter{})
	if len(got) != 3 || got[0].Message != "b" || got[2].Message != "d" {
		t.Fatalf("unexpected entries %+v", got)
	}
	got = b.Query(Filter{Limit: 2})
	if len(got) != 2 || got[0].Message != "c" || got[1].Message != "d" {
		t.Fatalf("limit should keep the newest, got %+v", got)
	}
}

func TestWriterCapturesZerologEvents(t *testing.T) {
	b := New(10)
	logger := zerolog.New(NewWriter(b)).With().Timestamp().Logger()

	logger.Info().Str("component", "scheduler").Str("id", "abc").Str("track", "/m/a.ogg").Msg("playing")
	logger.Warn().Str("component", "supervisor").Msg("player failed")
	logger.Info().Str("component", "scheduler").Str("id", "def").Msg("Queued")

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "all", filter: Filter{}, want: []string{"playing", "player failed", "Queued"}},
		{name: "level", filter: Filter{Level: "warn"}, want: []string{"player failed"}},
		{name: "component", filter: Filter{Component: "scheduler"}, want: []string{"playing", "Queued"}},
		{name: "entry", filter: Filter{EntryID: "abc"}, want: []string{"playing"}},
		{name: "search", filter: Filter{Search: "queued"}, want: []string{"Queued"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Query(tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].Message != tt.want[i] {
					t.Fatalf("entry %d = %q, want %q", i, got[i].Message, tt.want[i])
				}
			}
		})
	}

	first := b.Query(Filter{EntryID: "abc"})[0]
	if first.Fields["track"] != "/m/a.ogg" || first.Time.IsZero() {
		t.Fatalf("unexpected entry %+v", first)
	}
}

func TestWriterIgnoresNonJSON(t *testing.T) {
	b := New(4)
	n, err := NewWriter(b).Write([]byte("plain text\n"))
	if err != nil || n != len("plain text\n") {
		t.Fatalf("write = %d, %v", n, err)
	}
	if b.Len() != 0 {
		t.Fatal("non-JSON line should not be captured")
	}
}
