/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package choose

import (
	"errors"
	"fmt"
	"io"
	"math/bits"
)

// Uniform returns a uniformly distributed integer in [0, limit) using bytes
// read from r. Draws below the slop are rejected so there is no modulo bias.
func Uniform(r io.Reader, limit uint64) (uint64, error) {
	if limit == 0 {
		return 0, errors.New("uniform: zero limit")
	}
	if limit == 1 {
		return 0, nil
	}
	nbi := bits.Len64(limit)
	// slop is 2^nbi - limit.
	slop := -limit
	if nbi < 64 {
		slop = uint64(1)<<uint(nbi) - limit
	}
	nby := (nbi + 7) / 8
	var mask byte = 0xff
	if rem := nbi % 8; rem != 0 {
		mask = byte(1<<rem) - 1
	}

	var buf [8]byte
	for {
		if _, err := io.ReadFull(r, buf[8-nby:]); err != nil {
			return 0, fmt.Errorf("uniform: read random bytes: %w", err)
		}
		buf[8-nby] &= mask
		var v uint64
		for _, b := range buf[8-nby:] {
			v = v<<8 | uint64(b)
		}
		if v >= slop {
			return v - slop, nil
		}
	}
}
