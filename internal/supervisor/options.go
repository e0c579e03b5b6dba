/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package supervisor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadOption is returned for an unrecognised leading option in a player command line.
var ErrBadOption = errors.New("unknown player option")

// Options are the leading options consumed from a player command line.
type Options struct {
	// WaitForDevice delays the start until the output device can be opened.
	WaitForDevice bool
	// Device overrides the default device to wait for.
	Device string
}

// ParseOptions consumes leading options up to and including "--" and
// returns the remaining arguments unchanged.
func ParseOptions(args []string) (Options, []string, error) {
	var opts Options
	i := 0
	for i < len(args) && strings.HasPrefix(args[i], "-") {
		arg := args[i]
		if arg == "--" {
			i++
			break
		}
		if arg == "--wait-for-device" {
			opts.WaitForDevice = true
			i++
			continue
		}
		if device, ok := strings.CutPrefix(arg, "--wait-for-device="); ok {
			opts.WaitForDevice = true
			opts.Device = device
			i++
			continue
		}
		return Options{}, nil, fmt.Errorf("%w %s", ErrBadOption, arg)
	}
	return opts, args[i:], nil
}
