/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package choose

import (
	"strconv"
	"strings"
	"time"
)

// BaseWeight is the weight of an ordinary eligible track.
const BaseWeight uint64 = 90000

// Track preference keys consulted by the weight function.
const (
	PrefPickAtRandom = "pick_at_random"
	PrefPlayedTime   = "played_time"
	PrefTags         = "tags"
	PrefWeight       = "weight"
)

// Candidate is one track as seen by a selection pass.
type Candidate struct {
	Track string
	// InCollection is false when no configured collection root contains
	// the track, which happens between a configuration edit and a rescan.
	InCollection bool
	Alias        bool
	Prefs        map[string]string
	Noticed      time.Time
}

// Policy holds the tunables of the weight function.
type Policy struct {
	ReplayMin      time.Duration
	NewBias        uint64
	NewBiasAge     time.Duration
	RequiredTags   []string
	ProhibitedTags []string

	// Now is the reference time for replay and recency checks.
	Now time.Time
}

// Weight returns the relative selection weight of c. Zero means the track
// is not eligible. live holds the tracks of every live queue entry.
func (p Policy) Weight(c Candidate, live map[string]struct{}) uint64 {
	if !c.InCollection || c.Alias {
		return 0
	}
	if c.Prefs[PrefPickAtRandom] == "0" {
		return 0
	}
	if s, ok := c.Prefs[PrefPlayedTime]; ok {
		if last, err := strconv.ParseInt(s, 10, 64); err == nil {
			if p.Now.Before(time.Unix(last, 0).Add(p.ReplayMin)) {
				return 0
			}
		}
	}
	if _, ok := live[c.Track]; ok {
		return 0
	}

	tags := ParseTags(c.Prefs[PrefTags])
	if intersects(tags, p.ProhibitedTags) {
		return 0
	}
	if len(p.RequiredTags) > 0 && !intersects(tags, p.RequiredTags) {
		return 0
	}

	if s, ok := c.Prefs[PrefWeight]; ok {
		if w, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64); err == nil {
			return w
		}
	}
	if p.NewBias > 0 && !c.Noticed.IsZero() && p.Now.Sub(c.Noticed) < p.NewBiasAge {
		return p.NewBias
	}
	return BaseWeight
}

// ParseTags splits a comma-separated tag list, trimming and lowercasing
// each tag and dropping empty ones.
func ParseTags(s string) []string {
	var tags []string
	for _, tag := range strings.Split(s, ",") {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// MergeTags returns the union of the given tag lists, normalised.
func MergeTags(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, tag := range list {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			out = append(out, tag)
		}
	}
	return out
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
