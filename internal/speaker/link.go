/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package speaker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/friendsincode/grimnir_jukebox/internal/telemetry"
	"github.com/rs/zerolog"
)

// Link is a connection to the speaker. Sends may come from any goroutine;
// received messages are delivered on Messages, which is closed when the
// connection ends.
type Link struct {
	conn   net.Conn
	logger zerolog.Logger

	writeMu sync.Mutex
	msgs    chan Message
	done    chan struct{}
	once    sync.Once
}

// NewLink wraps an established connection and starts reading from it.
func NewLink(conn net.Conn, logger zerolog.Logger) *Link {
	l := &Link{
		conn:   conn,
		logger: logger.With().Str("component", "speaker").Logger(),
		msgs:   make(chan Message, 64),
		done:   make(chan struct{}),
	}
	go l.readLoop()
	return l
}

// Dial connects to a speaker listening on a unix socket.
func Dial(ctx context.Context, path string, logger zerolog.Logger) (*Link, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial speaker %s: %w", path, err)
	}
	return NewLink(conn, logger), nil
}

// Send writes one message.
func (l *Link) Send(m Message) error {
	b, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if _, err := l.conn.Write(b); err != nil {
		return fmt.Errorf("send %s to speaker: %w", m.Type, err)
	}
	telemetry.SpeakerMessages.WithLabelValues("out", m.Type.String()).Inc()
	l.logger.Debug().Str("type", m.Type.String()).Str("id", m.ID).Msg("sent speaker message")
	return nil
}

// Messages returns the channel of messages from the speaker.
func (l *Link) Messages() <-chan Message {
	return l.msgs
}

// Close closes the connection.
func (l *Link) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.conn.Close()
	})
	return err
}

func (l *Link) readLoop() {
	defer close(l.msgs)
	buf := make([]byte, MessageSize)
	for {
		if _, err := io.ReadFull(l.conn, buf); err != nil {
			select {
			case <-l.done:
			default:
				if errors.Is(err, io.EOF) {
					l.logger.Warn().Msg("speaker closed the connection")
				} else {
					l.logger.Error().Err(err).Msg("reading from speaker")
				}
			}
			return
		}
		var m Message
		if err := m.UnmarshalBinary(buf); err != nil {
			l.logger.Error().Err(err).Msg("bad speaker message")
			continue
		}
		telemetry.SpeakerMessages.WithLabelValues("in", m.Type.String()).Inc()
		select {
		case l.msgs <- m:
		case <-l.done:
			return
		}
	}
}
