package db

import (
	"testing"
	"time"

	"github.com/friendsincode/grimnir_jukebox/internal/config"
	"github.com/friendsincode/grimnir_jukebox/internal/models"
)

func TestConnectMigrateSQLite(t *testing.T) {
	cfg := &config.Config{DBBackend: config.DatabaseSQLite, DBDSN: ":memory:"}
	database, err := Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer Close(database)

	if err := RegisterCallbacks(database); err != nil {
		t.Fatalf("register callbacks: %v", err)
	}
	if err := Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	row := models.QueueEntry{
		List:     models.QueueListPending,
		EntryID:  "abc",
		Track:    "/m/a.ogg",
		Origin:   "user",
		State:    "unplayed",
		QueuedAt: time.Now(),
	}
	if err := database.Create(&row).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var count int64
	if err := database.Model(&models.QueueEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d", count)
	}
	UpdateConnectionMetrics(database)
}

func TestConnectRejectsUnknownBackend(t *testing.T) {
	if _, err := Connect(&config.Config{DBBackend: "oracle", DBDSN: "x"}); err == nil {
		t.Fatal("expected error")
	}
}
