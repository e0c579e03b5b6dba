/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"
)

// Playback defaults.
const (
	DefaultHistory    = 60
	DefaultQueuePad   = 10
	DefaultReplayMin  = 8 * time.Hour
	DefaultNewBias    = 4500000
	DefaultNewBiasAge = 7 * 24 * time.Hour
	DefaultSignal     = "SIGKILL"
	DefaultDevice     = "/dev/snd/pcmC0D0p"
)

// PlayerSpec maps a track name pattern to a player module and its arguments.
type PlayerSpec struct {
	Pattern string   `yaml:"pattern"`
	Module  string   `yaml:"module"`
	Args    []string `yaml:"args"`
}

// Playback is the scheduling configuration read from the playback file.
type Playback struct {
	Collections    []string      `yaml:"collections"`
	Players        []PlayerSpec  `yaml:"players"`
	Scratch        []string      `yaml:"scratch"`
	QueuePad       int           `yaml:"queue_pad"`
	History        int           `yaml:"history"`
	ReplayMin      time.Duration `yaml:"replay_min"`
	NewBias        uint64        `yaml:"new_bias"`
	NewBiasAge     time.Duration `yaml:"new_bias_age"`
	Signal         string        `yaml:"signal"`
	Device         string        `yaml:"device"`
	RequiredTags   []string      `yaml:"required_tags"`
	ProhibitedTags []string      `yaml:"prohibited_tags"`

	// KillSignal is Signal resolved to a number.
	KillSignal syscall.Signal `yaml:"-"`
}

// DefaultPlayback returns a playback configuration with no players.
func DefaultPlayback() *Playback {
	return &Playback{
		QueuePad:   DefaultQueuePad,
		History:    DefaultHistory,
		ReplayMin:  DefaultReplayMin,
		NewBias:    DefaultNewBias,
		NewBiasAge: DefaultNewBiasAge,
		Signal:     DefaultSignal,
		Device:     DefaultDevice,
		KillSignal: syscall.SIGKILL,
	}
}

// LoadPlayback reads and validates the playback file. An empty path yields the defaults.
func LoadPlayback(path string) (*Playback, error) {
	if path == "" {
		return DefaultPlayback(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read playback file: %w", err)
	}
	pb, err := ParsePlayback(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pb, nil
}

// ParsePlayback decodes YAML over the defaults and validates the result.
func ParsePlayback(data []byte) (*Playback, error) {
	pb := DefaultPlayback()
	if err := yaml.Unmarshal(data, pb); err != nil {
		return nil, fmt.Errorf("parse playback file: %w", err)
	}
	if err := pb.validate(); err != nil {
		return nil, err
	}
	return pb, nil
}

func (pb *Playback) validate() error {
	var errs []error
	if pb.QueuePad < 0 {
		errs = append(errs, fmt.Errorf("queue_pad must not be negative"))
	}
	if pb.History < 1 {
		errs = append(errs, fmt.Errorf("history must be at least 1"))
	}
	if pb.ReplayMin < 0 || pb.NewBiasAge < 0 {
		errs = append(errs, fmt.Errorf("replay_min and new_bias_age must not be negative"))
	}
	for i, p := range pb.Players {
		if p.Pattern == "" {
			errs = append(errs, fmt.Errorf("players[%d]: pattern is required", i))
		}
		if p.Module == "" {
			errs = append(errs, fmt.Errorf("players[%d]: module is required", i))
		}
	}
	sig, err := ParseSignal(pb.Signal)
	if err != nil {
		errs = append(errs, err)
	}
	pb.KillSignal = sig
	return errors.Join(errs...)
}

// ParseSignal accepts a signal name with or without the SIG prefix, or a number.
func ParseSignal(name string) (syscall.Signal, error) {
	name = strings.TrimSpace(name)
	if n, err := strconv.Atoi(name); err == nil {
		if n <= 0 || n >= 65 {
			return 0, fmt.Errorf("signal %d out of range", n)
		}
		return syscall.Signal(n), nil
	}
	upper := strings.ToUpper(name)
	if !strings.HasPrefix(upper, "SIG") {
		upper = "SIG" + upper
	}
	sig := unix.SignalNum(upper)
	if sig == 0 {
		return 0, fmt.Errorf("unknown signal %q", name)
	}
	return sig, nil
}
