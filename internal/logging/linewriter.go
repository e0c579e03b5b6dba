/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"bytes"
	"sync"

	"github.com/rs/zerolog"
)

// maxLine caps how much of an unterminated line is buffered before it is flushed anyway.
const maxLine = 4096

// LineWriter turns a byte stream (typically a subprocess's stderr) into one
// log event per line. It is safe for concurrent use.
type LineWriter struct {
	mu     sync.Mutex
	logger zerolog.Logger
	level  zerolog.Level
	buf    []byte
}

// NewLineWriter returns a writer that logs each line at info level with the given tag.
func NewLineWriter(logger zerolog.Logger, tag string) *LineWriter {
	return &LineWriter{
		logger: logger.With().Str("tag", tag).Logger(),
		level:  zerolog.InfoLevel,
	}
}

// WithLevel changes the level lines are logged at.
func (w *LineWriter) WithLevel(level zerolog.Level) *LineWriter {
	w.level = level
	return w
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) >= maxLine {
		w.emit(w.buf)
		w.buf = w.buf[:0]
	}
	return len(p), nil
}

// Close flushes any trailing partial line.
func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
	return nil
}

func (w *LineWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	w.logger.WithLevel(w.level).Msg(string(line))
}
