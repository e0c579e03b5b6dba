/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// Queue changes
	EventQueued        EventType = "queue.added"
	EventRemoved       EventType = "queue.removed"
	EventMoved         EventType = "queue.moved"
	EventRecentAdded   EventType = "recent.added"
	EventRecentRemoved EventType = "recent.removed"

	// Playback
	EventPlaying   EventType = "playback.playing"
	EventCompleted EventType = "playback.completed"
	EventFailed    EventType = "playback.failed"
	EventScratched EventType = "playback.scratched"
	EventPaused    EventType = "playback.paused"
	EventResumed   EventType = "playback.resumed"

	// Global state toggles (playing / random play enabled)
	EventState EventType = "state"
)

// All lists every event type, for subscribers that forward everything.
var All = []EventType{
	EventQueued, EventRemoved, EventMoved, EventRecentAdded, EventRecentRemoved,
	EventPlaying, EventCompleted, EventFailed, EventScratched, EventPaused, EventResumed,
	EventState,
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 32)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Slow subscribers miss events rather
// than stalling the publisher. A nil bus discards everything.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.subs[eventType] = subs
	close(sub)
}
