/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package supervisor

import (
	"fmt"
	"syscall"
)

// Exit reports the end of a supervised process.
type Exit struct {
	EntryID string
	Process Process
	Code    int
	Signal  syscall.Signal // zero unless the process was killed by a signal
	Err     error          // set when the process could not be started at all
}

// Success reports whether the process ran and exited with status zero.
func (e Exit) Success() bool {
	return e.Err == nil && e.Code == 0 && e.Signal == 0
}

// Status encodes the exit the way wait(2) does.
func (e Exit) Status() int {
	if e.Signal != 0 {
		return int(e.Signal) & 0x7f
	}
	return (e.Code & 0xff) << 8
}

func (e Exit) String() string {
	switch {
	case e.Err != nil:
		return "failed to start: " + e.Err.Error()
	case e.Signal != 0:
		return fmt.Sprintf("killed by signal %d (%s)", int(e.Signal), e.Signal)
	case e.Code != 0:
		return fmt.Sprintf("exited with status %d", e.Code)
	default:
		return "exited normally"
	}
}
