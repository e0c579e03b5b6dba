/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package speaker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Type identifies a speaker message.
type Type uint32

// Messages sent to the speaker.
const (
	Play Type = iota + 1
	Pause
	Resume
	Cancel
	Reload
)

// Messages received from the speaker.
const (
	Paused Type = iota + 128
	Finished
	Stillborn
	Playing
	Unknown
	Arrived
)

var typeNames = map[Type]string{
	Play:      "play",
	Pause:     "pause",
	Resume:    "resume",
	Cancel:    "cancel",
	Reload:    "reload",
	Paused:    "paused",
	Finished:  "finished",
	Stillborn: "stillborn",
	Playing:   "playing",
	Unknown:   "unknown",
	Arrived:   "arrived",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

const (
	// IDSize is the width of the NUL-padded ID field.
	IDSize = 24
	// MessageSize is the encoded size of every message.
	MessageSize = 4 + 8 + IDSize
)

var (
	ErrIDTooLong  = errors.New("speaker: id too long")
	ErrShortFrame = errors.New("speaker: short message")
)

// Message is one fixed-size speaker protocol message. Data carries the
// seconds played for Playing and Paused.
type Message struct {
	Type Type
	Data int64
	ID   string
}

// MarshalBinary encodes m big-endian: type, data, then the ID padded with
// NULs. The ID must leave room for a terminating NUL.
func (m Message) MarshalBinary() ([]byte, error) {
	if len(m.ID) >= IDSize {
		return nil, fmt.Errorf("%w: %q", ErrIDTooLong, m.ID)
	}
	b := make([]byte, MessageSize)
	binary.BigEndian.PutUint32(b[0:4], uint32(m.Type))
	binary.BigEndian.PutUint64(b[4:12], uint64(m.Data))
	copy(b[12:], m.ID)
	return b, nil
}

// UnmarshalBinary decodes a message produced by MarshalBinary.
func (m *Message) UnmarshalBinary(b []byte) error {
	if len(b) < MessageSize {
		return ErrShortFrame
	}
	m.Type = Type(binary.BigEndian.Uint32(b[0:4]))
	m.Data = int64(binary.BigEndian.Uint64(b[4:12]))
	id := b[12:MessageSize]
	if i := bytes.IndexByte(id, 0); i >= 0 {
		id = id[:i]
	}
	m.ID = string(id)
	return nil
}
