/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package player resolves tracks to the modules that play them.
//
// A module either renders audio itself (Standalone) or decodes to raw PCM
// on standard output for the speaker process to render (Raw). Modules are
// registered by name and chosen per track through a pattern table.
package player

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/friendsincode/grimnir_jukebox/internal/supervisor"
)

// Kind says who produces the sound.
type Kind int

const (
	Standalone Kind = iota
	Raw
)

func (k Kind) String() string {
	if k == Raw {
		return "raw"
	}
	return "standalone"
}

// Player builds the command line for one track.
type Player interface {
	Kind() Kind
	Command(args []string, track, path string) (argv, env []string, err error)
}

// Pauser is implemented by standalone players that can pause themselves.
type Pauser interface {
	Pause(p supervisor.Process) error
	Resume(p supervisor.Process) error
}

// Factory creates a Player.
type Factory func() Player

// ErrUnknownModule is returned by Lookup for an unregistered module name.
var ErrUnknownModule = errors.New("unknown player module")

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a module available under name, replacing any previous one.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Lookup creates the module registered under name.
func Lookup(name string) (Player, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownModule, name)
	}
	return f(), nil
}

// Modules lists registered module names.
func Modules() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
