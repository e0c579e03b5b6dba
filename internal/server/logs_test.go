package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/friendsincode/grimnir_jukebox/internal/config"
	"github.com/friendsincode/grimnir_jukebox/internal/logbuffer"
	"github.com/rs/zerolog"
)

func TestLogEndpoint(t *testing.T) {
	buf := logbuffer.New(16)
	now := time.Now()
	buf.Add(logbuffer.Entry{Time: now, Level: "info", Message: "playing", Component: "scheduler", EntryID: "e1"})
	buf.Add(logbuffer.Entry{Time: now, Level: "warn", Message: "player failed", Component: "scheduler", EntryID: "e2"})
	buf.Add(logbuffer.Entry{Time: now, Level: "info", Message: "finished", Component: "scheduler", EntryID: "e1"})

	srv := New(&config.Config{HTTPBind: "127.0.0.1"}, &fakeStatus{}, zerolog.Nop())
	srv.SetLogs(buf)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	tests := []struct {
		query string
		code  int
		want  []string
	}{
		{query: "", code: http.StatusOK, want: []string{"playing", "player failed", "finished"}},
		{query: "?id=e1", code: http.StatusOK, want: []string{"playing", "finished"}},
		{query: "?level=warn", code: http.StatusOK, want: []string{"player failed"}},
		{query: "?limit=1", code: http.StatusOK, want: []string{"finished"}},
		{query: "?id=nobody", code: http.StatusOK, want: []string{}},
		{query: "?limit=x", code: http.StatusBadRequest},
		{query: "?since=yesterday", code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp := get(t, ts.URL+"/api/v1/log"+tt.query)
		if resp.StatusCode != tt.code {
			resp.Body.Close()
			t.Fatalf("%q: status = %d, want %d", tt.query, resp.StatusCode, tt.code)
		}
		if tt.code != http.StatusOK {
			resp.Body.Close()
			continue
		}
		var got []logbuffer.Entry
		err := json.NewDecoder(resp.Body).Decode(&got)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("%q: decode: %v", tt.query, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("%q: got %d entries, want %d", tt.query, len(got), len(tt.want))
		}
		for i := range got {
			if got[i].Message != tt.want[i] {
				t.Fatalf("%q: entry %d = %q, want %q", tt.query, i, got[i].Message, tt.want[i])
			}
		}
	}
}

func TestLogEndpointDisabled(t *testing.T) {
	ts := newTestServer(&fakeStatus{})
	defer ts.Close()

	resp := get(t, ts.URL+"/api/v1/log")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
