/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"errors"
	"strings"
	"syscall"

	"github.com/friendsincode/grimnir_jukebox/internal/supervisor"
)

var errNoCommand = errors.New("player needs a command")

func init() {
	Register("exec", func() Player { return execPlayer{kind: Standalone} })
	Register("execraw", func() Player { return execPlayer{kind: Raw} })
	Register("execpause", func() Player { return stopContPlayer{} })
	Register("shell", func() Player { return shellPlayer{} })
}

// execPlayer runs args with the track's path appended.
type execPlayer struct {
	kind Kind
}

func (p execPlayer) Kind() Kind { return p.kind }

func (p execPlayer) Command(args []string, track, path string) ([]string, []string, error) {
	if len(args) == 0 {
		return nil, nil, errNoCommand
	}
	argv := make([]string, 0, len(args)+1)
	argv = append(argv, args...)
	argv = append(argv, path)
	return argv, []string{"TRACK=" + track}, nil
}

// stopContPlayer is an exec player paused by stopping its process group.
type stopContPlayer struct {
	execPlayer
}

func (stopContPlayer) Pause(p supervisor.Process) error {
	return p.Signal(syscall.SIGSTOP)
}

func (stopContPlayer) Resume(p supervisor.Process) error {
	return p.Signal(syscall.SIGCONT)
}

// shellPlayer hands the joined arguments to sh -c with the path in $TRACK.
type shellPlayer struct{}

func (shellPlayer) Kind() Kind { return Standalone }

func (shellPlayer) Command(args []string, track, path string) ([]string, []string, error) {
	if len(args) == 0 {
		return nil, nil, errNoCommand
	}
	return []string{"sh", "-c", strings.Join(args, " ")}, []string{"TRACK=" + path, "TRACK_NAME=" + track}, nil
}
