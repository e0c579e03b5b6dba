/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus forwards local jukebox events to Redis and NATS so
// other processes can follow the queue without polling.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/friendsincode/grimnir_jukebox/internal/events"
	"github.com/google/uuid"
)

// Message is the envelope published for every event.
type Message struct {
	EventType  events.EventType `json:"event_type"`
	Payload    events.Payload   `json:"payload"`
	Timestamp  time.Time        `json:"timestamp"`
	InstanceID string           `json:"instance_id"`
	MessageID  string           `json:"message_id"`
}

// Publisher delivers encoded messages to an external broker.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, eventType string, data []byte) error
	Close() error
}

func newMessage(eventType events.EventType, payload events.Payload, instanceID string, now time.Time) Message {
	return Message{
		EventType:  eventType,
		Payload:    payload,
		Timestamp:  now,
		InstanceID: instanceID,
		MessageID:  uuid.NewString(),
	}
}

func (m Message) marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", m.EventType, err)
	}
	return data, nil
}

// DefaultPrefix is the channel or subject prefix used when none is configured.
const DefaultPrefix = "jukebox.events"

func subjectFor(prefix, eventType string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "." + eventType
}

// Unmarshal decodes a message published by a Forwarder.
func Unmarshal(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal event message: %w", err)
	}
	return &m, nil
}
