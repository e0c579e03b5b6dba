package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/friendsincode/grimnir_jukebox/internal/config"
	"github.com/friendsincode/grimnir_jukebox/internal/queue"
	"github.com/friendsincode/grimnir_jukebox/internal/scheduler"
	"github.com/rs/zerolog"
)

type fakeStatus struct {
	playing *queue.Entry
	queued  []queue.Entry
	history []queue.Entry
	err     error
}

func (f *fakeStatus) Playing(context.Context) (*queue.Entry, error) { return f.playing, f.err }
func (f *fakeStatus) Queue(context.Context) ([]queue.Entry, error)   { return f.queued, f.err }
func (f *fakeStatus) History(context.Context) ([]queue.Entry, error) { return f.history, f.err }
func (f *fakeStatus) State(context.Context) (bool, bool, error)      { return true, false, f.err }

func newTestServer(status Status) *httptest.Server {
	srv := New(&config.Config{HTTPBind: "127.0.0.1", HTTPPort: 0}, status, zerolog.Nop())
	return httptest.NewServer(srv.Handler())
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

func TestHealthzAndSecurityHeaders(t *testing.T) {
	ts := newTestServer(&fakeStatus{})
	defer ts.Close()

	resp := get(t, ts.URL+"/healthz")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options=%q", got)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options=%q", got)
	}
	if got := resp.Header.Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("unexpected HSTS on plain HTTP: %q", got)
	}
}

func TestHSTSBehindTLSProxy(t *testing.T) {
	h := securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Fatalf("Strict-Transport-Security=%q", got)
	}
}

func TestStatusEndpoints(t *testing.T) {
	played := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	status := &fakeStatus{
		playing: &queue.Entry{ID: "p1", Track: "/m/a.ogg", Origin: queue.OriginUser, State: queue.StateStarted, Played: played, Sofar: 12},
		queued: []queue.Entry{
			{ID: "q1", Track: "/m/b.ogg", Submitter: "alice", Origin: queue.OriginUser},
			{ID: "q2", Track: "/m/c.ogg", Origin: queue.OriginRandom},
		},
		history: []queue.Entry{{ID: "h1", Track: "/m/z.ogg", State: queue.StateScratched, Scratched: "bob"}},
	}
	ts := newTestServer(status)
	defer ts.Close()

	resp := get(t, ts.URL+"/api/v1/playing")
	var playing entryView
	if err := json.NewDecoder(resp.Body).Decode(&playing); err != nil {
		t.Fatalf("decode playing: %v", err)
	}
	resp.Body.Close()
	if playing.ID != "p1" || playing.State != "started" || playing.Sofar != 12 || playing.Played == nil {
		t.Fatalf("unexpected playing %+v", playing)
	}

	resp = get(t, ts.URL+"/api/v1/queue")
	var queued []entryView
	if err := json.NewDecoder(resp.Body).Decode(&queued); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	resp.Body.Close()
	if len(queued) != 2 || queued[0].Submitter != "alice" || queued[1].Origin != "random" {
		t.Fatalf("unexpected queue %+v", queued)
	}

	resp = get(t, ts.URL+"/api/v1/history")
	var history []entryView
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	resp.Body.Close()
	if len(history) != 1 || history[0].ScratchedBy != "bob" || history[0].State != "scratched" {
		t.Fatalf("unexpected history %+v", history)
	}

	resp = get(t, ts.URL+"/api/v1/state")
	var state map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	resp.Body.Close()
	if !state["playing"] || state["random_play"] {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestNothingPlayingAndStopped(t *testing.T) {
	status := &fakeStatus{}
	ts := newTestServer(status)
	defer ts.Close()

	resp := get(t, ts.URL+"/api/v1/playing")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	status.err = scheduler.ErrStopped
	resp = get(t, ts.URL+"/api/v1/queue")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}
