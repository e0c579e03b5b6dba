/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// Queue lists persisted in QueueEntry.List.
const (
	QueueListPending = "queue"
	QueueListRecent  = "recent"
)

// QueueEntry is one persisted row of the pending queue or the recent history.
type QueueEntry struct {
	ID          uint   `gorm:"primaryKey"`
	List        string `gorm:"type:varchar(8);index:idx_queue_list_position"`
	Position    int    `gorm:"index:idx_queue_list_position"`
	EntryID     string `gorm:"type:varchar(32)"`
	Track       string `gorm:"type:text"`
	Submitter   string `gorm:"type:varchar(128)"`
	Origin      string `gorm:"type:varchar(16)"`
	State       string `gorm:"type:varchar(16)"`
	QueuedAt    time.Time
	PlayedAt    *time.Time
	Sofar       int64
	ScratchedBy string `gorm:"type:varchar(128)"`
	WaitStatus  int
}

// TableName keeps the table name stable.
func (QueueEntry) TableName() string { return "queue_entries" }

// PlayLog is an append-only record of every track that left the playing slot.
type PlayLog struct {
	ID          string    `gorm:"type:varchar(36);primaryKey"`
	EntryID     string    `gorm:"type:varchar(32);index"`
	Track       string    `gorm:"type:text"`
	Submitter   string    `gorm:"type:varchar(128)"`
	Origin      string    `gorm:"type:varchar(16)"`
	State       string    `gorm:"type:varchar(16);index"`
	ScratchedBy string    `gorm:"type:varchar(128)"`
	StartedAt   time.Time `gorm:"index"`
	EndedAt     time.Time
	WaitStatus  int
}

// TableName keeps the table name stable.
func (PlayLog) TableName() string { return "play_log" }
