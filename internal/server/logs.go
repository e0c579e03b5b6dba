/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/grimnir_jukebox/internal/logbuffer"
)

const defaultLogLimit = 200

// handleLog serves recent log events. Query parameters: level, component,
// id (queue entry), q (substring), since (RFC3339) and limit.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusNotFound, "log_buffer_disabled")
		return
	}

	q := r.URL.Query()
	filter := logbuffer.Filter{
		Level:     q.Get("level"),
		Component: q.Get("component"),
		EntryID:   q.Get("id"),
		Search:    q.Get("q"),
		Limit:     defaultLogLimit,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		filter.Since = t
	}

	entries := s.logs.Query(filter)
	if entries == nil {
		entries = []logbuffer.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
