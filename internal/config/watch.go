/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// WatchPlayback re-reads the playback file whenever it changes and hands each
// valid result to onChange. Invalid edits are logged and skipped. The
// containing directory is watched so that editors which replace the file by
// rename are noticed. WatchPlayback blocks until ctx is cancelled.
func WatchPlayback(ctx context.Context, path string, logger zerolog.Logger, onChange func(*Playback)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	logger = logger.With().Str("component", "config-watch").Str("file", abs).Logger()
	logger.Debug().Msg("watching playback file")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			pb, err := LoadPlayback(abs)
			if err != nil {
				logger.Error().Err(err).Msg("playback file reload failed")
				continue
			}
			logger.Info().Msg("playback file changed")
			onChange(pb)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("watcher error")
		}
	}
}
