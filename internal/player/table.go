/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"errors"
	"fmt"
	"strings"

	"github.com/friendsincode/grimnir_jukebox/internal/config"
	"github.com/gobwas/glob"
)

// Binding is one row of the player table.
type Binding struct {
	Pattern string
	Module  string
	Player  Player
	Args    []string
	Tag     string

	match glob.Glob
}

// Raw reports whether the bound player decodes for the speaker.
func (b *Binding) Raw() bool {
	return b != nil && b.Player.Kind() == Raw
}

// Table maps track names to players. The first matching row wins.
type Table struct {
	bindings []*Binding
}

// NewTable compiles the configured player rows.
func NewTable(specs []config.PlayerSpec) (*Table, error) {
	t := &Table{}
	var errs []error
	for i, spec := range specs {
		g, err := glob.Compile(spec.Pattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("players[%d]: pattern %q: %w", i, spec.Pattern, err))
			continue
		}
		p, err := Lookup(spec.Module)
		if err != nil {
			errs = append(errs, fmt.Errorf("players[%d]: %w", i, err))
			continue
		}
		t.bindings = append(t.bindings, &Binding{
			Pattern: spec.Pattern,
			Module:  spec.Module,
			Player:  p,
			Args:    append([]string(nil), spec.Args...),
			Tag:     tagFor(spec),
			match:   g,
		})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return t, nil
}

// Match returns the binding for track, or nil when no row matches.
func (t *Table) Match(track string) *Binding {
	if t == nil {
		return nil
	}
	for _, b := range t.bindings {
		if b.match.Match(track) {
			return b
		}
	}
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.bindings)
}

// tagFor names log output after the command when there is one.
func tagFor(spec config.PlayerSpec) string {
	for _, arg := range spec.Args {
		if !strings.HasPrefix(arg, "-") {
			return arg
		}
	}
	return spec.Module
}
