package logics

import (
	"fmt"
	"strings"
	"testing"

	"authsec-server/configs"
	"authsec-server/internal/repositories"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTest wires an isolated in-memory database and quiet config so each
// test starts from a clean slate.
func setupTest(t *testing.T) *gorm.DB {
	t.Helper()

	configs.Logger = zap.NewNop()
	configs.Configs = configs.Tconfigs{}
	configs.Configs.Secrets.SessionSecret = "test-session-secret-for-unit-tests"
	configs.Configs.Security.ApplyDefaults()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := repositories.AutoMigrateInOrder(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	repositories.DBS = repositories.Dbs{Postgres: db}
	return db
}
