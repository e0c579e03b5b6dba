/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/friendsincode/grimnir_jukebox/internal/queue"
	"github.com/friendsincode/grimnir_jukebox/internal/scheduler"
)

type entryView struct {
	ID          string     `json:"id"`
	Track       string     `json:"track"`
	Submitter   string     `json:"submitter,omitempty"`
	Origin      string     `json:"origin"`
	State       string     `json:"state"`
	When        time.Time  `json:"when"`
	Played      *time.Time `json:"played,omitempty"`
	Sofar       int64      `json:"sofar"`
	ScratchedBy string     `json:"scratched_by,omitempty"`
	WaitStatus  int        `json:"wait_status,omitempty"`
}

func viewOf(e queue.Entry) entryView {
	v := entryView{
		ID:          e.ID,
		Track:       e.Track,
		Submitter:   e.Submitter,
		Origin:      e.Origin.String(),
		State:       e.State.String(),
		When:        e.When,
		Sofar:       e.Sofar,
		ScratchedBy: e.Scratched,
		WaitStatus:  e.WaitStatus,
	}
	if !e.Played.IsZero() {
		played := e.Played
		v.Played = &played
	}
	return v
}

func viewsOf(entries []queue.Entry) []entryView {
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, viewOf(e))
	}
	return out
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	playing, random, err := s.status.State(r.Context())
	if err != nil {
		s.statusError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"playing": playing, "random_play": random})
}

func (s *Server) handlePlaying(w http.ResponseWriter, r *http.Request) {
	e, err := s.status.Playing(r.Context())
	if err != nil {
		s.statusError(w, err)
		return
	}
	if e == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(*e))
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	entries, err := s.status.Queue(r.Context())
	if err != nil {
		s.statusError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(entries))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.status.History(r.Context())
	if err != nil {
		s.statusError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(entries))
}

func (s *Server) statusError(w http.ResponseWriter, err error) {
	if errors.Is(err, scheduler.ErrStopped) {
		writeError(w, http.StatusServiceUnavailable, "stopped")
		return
	}
	s.logger.Error().Err(err).Msg("reading scheduler status")
	writeError(w, http.StatusInternalServerError, "internal_error")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
