/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/friendsincode/grimnir_jukebox/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the queue and play log tables.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.QueueEntry{},
		&models.PlayLog{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
