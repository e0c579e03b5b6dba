/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package speaker

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// DefaultAckTimeout bounds the wait for the speaker to accept a stream.
const DefaultAckTimeout = 5 * time.Second

// StreamDialer opens the per-entry sockets raw decoders write PCM into.
type StreamDialer struct {
	Path       string
	AckTimeout time.Duration
}

// Open connects to the speaker's stream socket and announces id. The
// returned file is handed to the decoder as its standard output; the
// caller owns it and must close its copy once the decoder has started.
func (d StreamDialer) Open(ctx context.Context, id string) (*os.File, error) {
	if len(id) >= IDSize {
		return nil, fmt.Errorf("%w: %q", ErrIDTooLong, id)
	}
	timeout := d.AckTimeout
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", d.Path)
	if err != nil {
		return nil, fmt.Errorf("connect to speaker stream socket: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	hello := make([]byte, 4+len(id))
	binary.BigEndian.PutUint32(hello, uint32(len(id)))
	copy(hello[4:], id)
	if _, err := conn.Write(hello); err != nil {
		return nil, fmt.Errorf("announce stream %s: %w", id, err)
	}
	var ack [1]byte
	if _, err := io.ReadFull(conn, ack[:]); err != nil {
		return nil, fmt.Errorf("await speaker ack for %s: %w", id, err)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}

	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("speaker stream socket is %T, not a unix socket", conn)
	}
	f, err := uc.File()
	if err != nil {
		return nil, fmt.Errorf("stream socket file: %w", err)
	}
	return f, nil
}

// ReadStreamHello reads the announcement written by StreamDialer.Open and
// acknowledges it. It is the speaker's half of the handshake.
func ReadStreamHello(conn net.Conn) (string, error) {
	var n [4]byte
	if _, err := io.ReadFull(conn, n[:]); err != nil {
		return "", err
	}
	size := binary.BigEndian.Uint32(n[:])
	if size >= IDSize {
		return "", ErrIDTooLong
	}
	id := make([]byte, size)
	if _, err := io.ReadFull(conn, id); err != nil {
		return "", err
	}
	if _, err := conn.Write([]byte{0}); err != nil {
		return "", err
	}
	return string(id), nil
}
