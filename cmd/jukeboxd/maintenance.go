/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_jukebox/internal/db"
	"github.com/friendsincode/grimnir_jukebox/internal/trackdb"
)

// maintenance compacts the track database and refreshes pool metrics
// until ctx is cancelled.
func maintenance(ctx context.Context, tracks *trackdb.DB, database *gorm.DB) {
	gc := time.NewTicker(10 * time.Minute)
	defer gc.Stop()
	stats := time.NewTicker(30 * time.Second)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-gc.C:
			if err := tracks.GC(); err != nil {
				logger.Warn().Err(err).Msg("track database GC")
			}
		case <-stats.C:
			db.UpdateConnectionMetrics(database)
		}
	}
}
