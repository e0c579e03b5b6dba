/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/friendsincode/grimnir_jukebox/internal/events"
	"github.com/rs/zerolog"
)

// Forwarder copies every event from the local bus to its publishers.
// Publishers are handed the event type and add their own prefix.
type Forwarder struct {
	bus        *events.Bus
	pubs       []Publisher
	instanceID string
	timeout    time.Duration
	logger     zerolog.Logger
	now        func() time.Time
}

// NewForwarder creates a forwarder. With no publishers Run just drains
// the bus until cancelled.
func NewForwarder(bus *events.Bus, instanceID string, logger zerolog.Logger, pubs ...Publisher) *Forwarder {
	return &Forwarder{
		bus:        bus,
		pubs:       pubs,
		instanceID: instanceID,
		timeout:    2 * time.Second,
		logger:     logger.With().Str("component", "eventbus").Logger(),
		now:        time.Now,
	}
}

// Run forwards events until ctx is cancelled, then closes the publishers.
func (f *Forwarder) Run(ctx context.Context) error {
	type event struct {
		eventType events.EventType
		payload   events.Payload
	}
	merged := make(chan event, 64)
	var wg sync.WaitGroup
	subs := make([]events.Subscriber, len(events.All))
	for i, et := range events.All {
		sub := f.bus.Subscribe(et)
		subs[i] = sub
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range sub {
				select {
				case merged <- event{et, p}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	defer func() {
		for i, et := range events.All {
			f.bus.Unsubscribe(et, subs[i])
		}
		wg.Wait()
		for _, p := range f.pubs {
			if err := p.Close(); err != nil {
				f.logger.Warn().Err(err).Str("publisher", p.Name()).Msg("closing publisher")
			}
		}
	}()

	f.logger.Info().Int("publishers", len(f.pubs)).Str("instance", f.instanceID).Msg("event forwarder started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-merged:
			f.forward(ctx, ev.eventType, ev.payload)
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, eventType events.EventType, payload events.Payload) {
	if len(f.pubs) == 0 {
		return
	}
	data, err := newMessage(eventType, payload, f.instanceID, f.now()).marshal()
	if err != nil {
		f.logger.Error().Err(err).Msg("encoding event")
		return
	}
	subject := string(eventType)
	for _, p := range f.pubs {
		pctx, cancel := context.WithTimeout(ctx, f.timeout)
		err := p.Publish(pctx, subject, data)
		cancel()
		if err != nil {
			f.logger.Warn().Err(err).Str("publisher", p.Name()).Str("subject", subject).Msg("forwarding event")
			continue
		}
		f.logger.Debug().Str("publisher", p.Name()).Str("subject", subject).Msg("event forwarded")
	}
}
