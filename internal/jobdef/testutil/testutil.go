package testutil

import (
	"testing"

	"github.com/caesium-cloud/batch/internal/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SampleManifest is a baseline batch manifest used across jobdef and cmd tests.
const SampleManifest = `
apiVersion: v1
kind: Batch
metadata:
  name: nightly
jobs:
  - name: extract
    kind: etl
    maxRetries: 2
    refreshInterval: 10m
    command: ["true"]
    tests:
      - name: output-present
        command: ["true"]
  - name: transform
    kind: etl
    dependsOn: [extract]
    command: ["true"]
  - name: prune
    kind: admin
    dependsOn: [transform]
    action: prune-history
    retention: 720h
`

// OpenTestDB returns an in-memory sqlite DB with migrations applied.
func OpenTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}

	if err := db.AutoMigrate(models.All...); err != nil {
		tb.Fatalf("migrate: %v", err)
	}

	return db
}

// CloseDB closes the underlying sql.DB if available.
func CloseDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// AssertCount asserts a count for the provided model using the supplied DB.
func AssertCount(tb testing.TB, db *gorm.DB, model any, expected int64) {
	tb.Helper()

	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil {
		tb.Fatalf("count: %v", err)
	}
	if count != expected {
		tb.Fatalf("expected %d records, got %d", expected, count)
	}
}
