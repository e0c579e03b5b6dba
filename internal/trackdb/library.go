/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package trackdb

import (
	"context"
	"time"

	"github.com/friendsincode/grimnir_jukebox/internal/choose"
)

// Library joins the track database with a chooser; it is what the
// scheduler consumes.
type Library struct {
	*DB
	Chooser *choose.Service
}

// NewLibrary pairs db with chooser.
func NewLibrary(db *DB, chooser *choose.Service) *Library {
	return &Library{DB: db, Chooser: chooser}
}

// RandomTrack picks one track that is not in live.
func (l *Library) RandomTrack(ctx context.Context, live map[string]struct{}) (string, error) {
	return l.Chooser.Pick(ctx, live)
}

// MarkPlayed records the start time of track. Aliases are resolved first
// so the played time lands on the track the chooser sees.
func (l *Library) MarkPlayed(track string, when time.Time) error {
	if canonical, err := l.DB.Resolve(track); err == nil {
		track = canonical
	}
	return l.DB.MarkPlayed(track, when)
}
