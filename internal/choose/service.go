/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package choose

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/friendsincode/grimnir_jukebox/internal/telemetry"
	"github.com/rs/zerolog"
)

// Global preferences holding extra tag constraints.
const (
	GlobalRequiredTags   = "required-tags"
	GlobalProhibitedTags = "prohibited-tags"
)

// Corpus is the track database as seen by the chooser.
type Corpus interface {
	// Scan calls fn for every track. A non-nil error from fn stops the scan
	// and is returned.
	Scan(ctx context.Context, fn func(Candidate) error) error
	// GlobalPref returns a global preference, or "" when unset.
	GlobalPref(key string) (string, error)
}

// Service picks random tracks from a corpus.
type Service struct {
	corpus Corpus
	logger zerolog.Logger
	rng    io.Reader
	now    func() time.Time

	mu     sync.RWMutex
	policy Policy
}

// Option configures a Service.
type Option func(*Service)

// WithRand replaces the crypto/rand default randomness source.
func WithRand(r io.Reader) Option {
	return func(s *Service) { s.rng = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a chooser over corpus.
func NewService(corpus Corpus, policy Policy, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		corpus: corpus,
		logger: logger.With().Str("component", "chooser").Logger(),
		rng:    rand.Reader,
		now:    time.Now,
		policy: policy,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPolicy replaces the weight policy for subsequent passes.
func (s *Service) SetPolicy(p Policy) {
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()
}

// Pick runs one selection pass and returns the chosen track. live is the
// set of tracks already queued, playing or in history; it must not be
// modified during the call.
func (s *Service) Pick(ctx context.Context, live map[string]struct{}) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "choose", "choose.pick")
	defer span.End()
	start := time.Now()
	defer func() { telemetry.ChooserDuration.Observe(time.Since(start).Seconds()) }()

	policy, err := s.passPolicy()
	if err != nil {
		telemetry.RecordError(span, err)
		return "", err
	}

	picker := NewPicker(s.rng)
	err = s.corpus.Scan(ctx, func(c Candidate) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !c.InCollection {
			s.logger.Info().Str("track", c.Track).Msg("found track not in any collection")
		}
		return picker.Offer(c, policy.Weight(c, live))
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return "", fmt.Errorf("scan tracks: %w", err)
	}

	telemetry.ChooserEligible.Set(float64(picker.Eligible()))
	telemetry.AddSpanAttributes(span, map[string]any{
		"chooser.eligible":     picker.Eligible(),
		"chooser.total_weight": strconv.FormatUint(picker.Total(), 10),
	})

	winner, err := picker.Winner()
	if err != nil {
		if !errors.Is(err, ErrNoCandidate) {
			telemetry.RecordError(span, err)
		}
		return "", err
	}
	s.logger.Debug().
		Str("track", winner.Track).
		Int("eligible", picker.Eligible()).
		Uint64("total_weight", picker.Total()).
		Msg("picked random track")
	return winner.Track, nil
}

// passPolicy snapshots the configured policy and merges in the tag
// constraints held as global preferences.
func (s *Service) passPolicy() (Policy, error) {
	s.mu.RLock()
	p := s.policy
	s.mu.RUnlock()

	required, err := s.corpus.GlobalPref(GlobalRequiredTags)
	if err != nil {
		return Policy{}, fmt.Errorf("get %s: %w", GlobalRequiredTags, err)
	}
	prohibited, err := s.corpus.GlobalPref(GlobalProhibitedTags)
	if err != nil {
		return Policy{}, fmt.Errorf("get %s: %w", GlobalProhibitedTags, err)
	}
	p.RequiredTags = MergeTags(p.RequiredTags, ParseTags(required))
	p.ProhibitedTags = MergeTags(p.ProhibitedTags, ParseTags(prohibited))
	p.Now = s.now()
	return p, nil
}
