/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps the most recent log events in memory so the
// status server can show what happened to a queue entry.
package logbuffer

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Entry is one captured log event.
type Entry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	EntryID   string         `json:"id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer is a fixed-size ring of log entries.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	head    int
	count   int
}

// New creates a buffer holding up to capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 2000
	}
	return &Buffer{entries: make([]Entry, capacity)}
}

// Add appends e, overwriting the oldest entry when full.
func (b *Buffer) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.head] = e
	b.head = (b.head + 1) % len(b.entries)
	if b.count < len(b.entries) {
		b.count++
	}
}

// Len returns the number of entries held.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	Level     string
	Component string
	EntryID   string
	Search    string
	Since     time.Time
	Limit     int // newest Limit matches; 0 means all
}

// Query returns matching entries, oldest first.
func (b *Buffer) Query(f Filter) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	search := strings.ToLower(f.Search)
	var out []Entry
	// Walk newest to oldest so Limit keeps the most recent.
	for i := 0; i < b.count; i++ {
		e := b.entries[(b.head-1-i+len(b.entries))%len(b.entries)]
		if f.Level != "" && e.Level != f.Level {
			continue
		}
		if f.Component != "" && e.Component != f.Component {
			continue
		}
		if f.EntryID != "" && e.EntryID != f.EntryID {
			continue
		}
		if !f.Since.IsZero() && e.Time.Before(f.Since) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(e.Message), search) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Writer feeds zerolog JSON output into a Buffer.
type Writer struct {
	buffer *Buffer
	now    func() time.Time
}

// NewWriter returns an io.Writer for zerolog.MultiLevelWriter.
func NewWriter(buffer *Buffer) *Writer {
	return &Writer{buffer: buffer, now: time.Now}
}

// Write captures one JSON log event. Lines that are not JSON objects are
// ignored; the write never fails so other writers are not disturbed.
func (w *Writer) Write(p []byte) (int, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err != nil {
		return len(p), nil
	}
	e := Entry{Time: w.now()}
	if v, ok := raw["level"].(string); ok {
		e.Level = v
		delete(raw, "level")
	}
	if v, ok := raw["message"].(string); ok {
		e.Message = v
		delete(raw, "message")
	}
	if v, ok := raw["component"].(string); ok {
		e.Component = v
		delete(raw, "component")
	}
	if v, ok := raw["id"].(string); ok {
		e.EntryID = v
		delete(raw, "id")
	}
	switch ts := raw["time"].(type) {
	case float64:
		e.Time = time.Unix(int64(ts), 0)
	case string:
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			e.Time = t
		}
	}
	delete(raw, "time")
	if len(raw) > 0 {
		e.Fields = raw
	}
	w.buffer.Add(e)
	return len(p), nil
}
