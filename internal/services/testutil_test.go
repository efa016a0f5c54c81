package services

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/animastudio/aihub/internal/models"
)

// newTestDB opens an isolated in-memory database migrated with the full
// schema. Each test gets its own named shared-cache DB so the connection
// pool never splits state across connections.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(&models.CacheEntry{}, &models.CacheBody{}, &models.UsageCounter{}, &models.GenerationLog{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}
