/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package choose

import (
	"errors"
	"io"
	"iter"
	"math"
)

// ErrNoCandidate means no track had a nonzero weight. Callers treat it as
// "nothing to add this time", not as a failure.
var ErrNoCandidate = errors.New("no tracks match random choice criteria")

// ErrWeightOverflow is returned when the running total no longer fits.
var ErrWeightOverflow = errors.New("total track weight overflows")

// Picker performs an online weighted selection: after any number of
// offers, each offered candidate is the winner with probability equal to
// its weight over the total. Only the running total and the tentative
// winner are kept.
type Picker struct {
	rng      io.Reader
	total    uint64
	eligible int
	winner   Candidate
	found    bool
}

// NewPicker returns a picker drawing randomness from rng.
func NewPicker(rng io.Reader) *Picker {
	return &Picker{rng: rng}
}

// Offer considers c with weight w.
func (p *Picker) Offer(c Candidate, w uint64) error {
	if w == 0 {
		return nil
	}
	if p.total > math.MaxUint64-w {
		return ErrWeightOverflow
	}
	p.total += w
	p.eligible++
	r, err := Uniform(p.rng, p.total)
	if err != nil {
		return err
	}
	if r < w {
		p.winner = c
		p.found = true
	}
	return nil
}

// Winner returns the selected candidate, or ErrNoCandidate.
func (p *Picker) Winner() (Candidate, error) {
	if !p.found {
		return Candidate{}, ErrNoCandidate
	}
	return p.winner, nil
}

// Total is the sum of all offered weights.
func (p *Picker) Total() uint64 { return p.total }

// Eligible is the number of candidates offered with nonzero weight.
func (p *Picker) Eligible() int { return p.eligible }

// Select runs a complete pass over candidates.
func Select(rng io.Reader, candidates iter.Seq[Candidate], weight func(Candidate) uint64) (Candidate, error) {
	p := NewPicker(rng)
	var err error
	candidates(func(c Candidate) bool {
		err = p.Offer(c, weight(c))
		return err == nil
	})
	if err != nil {
		return Candidate{}, err
	}
	return p.Winner()
}
