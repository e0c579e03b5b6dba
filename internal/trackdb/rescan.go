/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package trackdb

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/friendsincode/grimnir_jukebox/internal/choose"
)

// RescanStats summarises one rescan.
type RescanStats struct {
	Roots    int
	Seen     int
	Added    int
	Removed  int
	Duration time.Duration
}

// Rescan walks every collection root, records tracks it has not seen
// before and forgets tracks under those roots that have vanished. Aliases
// pointing at a forgotten track are forgotten with it.
func (d *DB) Rescan(ctx context.Context) (RescanStats, error) {
	start := time.Now()
	d.mu.RLock()
	roots := append([]string(nil), d.roots...)
	d.mu.RUnlock()

	stats := RescanStats{Roots: len(roots)}
	seen := make(map[string]bool)
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				d.logger.Warn().Err(err).Str("path", path).Msg("rescan: skipping unreadable path")
				if entry != nil && entry.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if !entry.Type().IsRegular() {
				return nil
			}
			seen[path] = true
			stats.Seen++
			added, err := d.AddTrack(path)
			if err != nil {
				return err
			}
			if added {
				stats.Added++
				d.logger.Debug().Str("track", path).Msg("rescan: new track")
			}
			return nil
		})
		if err != nil {
			return stats, fmt.Errorf("rescan %s: %w", root, err)
		}
	}

	var gone []string
	forgotten := make(map[string]bool)
	err := d.Scan(ctx, func(c choose.Candidate) error {
		if c.Alias || !c.InCollection || seen[c.Track] {
			return nil
		}
		gone = append(gone, c.Track)
		forgotten[c.Track] = true
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("rescan: list tracks: %w", err)
	}
	var aliases []string
	err = d.Scan(ctx, func(c choose.Candidate) error {
		if !c.Alias {
			return nil
		}
		target, err := d.Resolve(c.Track)
		if err != nil {
			return err
		}
		if forgotten[target] {
			aliases = append(aliases, c.Track)
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("rescan: list aliases: %w", err)
	}
	for _, track := range append(gone, aliases...) {
		if err := d.RemoveTrack(track); err != nil {
			return stats, err
		}
		stats.Removed++
	}

	stats.Duration = time.Since(start)
	d.logger.Info().
		Int("roots", stats.Roots).
		Int("seen", stats.Seen).
		Int("added", stats.Added).
		Int("removed", stats.Removed).
		Dur("duration", stats.Duration).
		Msg("rescan complete")
	return stats, nil
}
