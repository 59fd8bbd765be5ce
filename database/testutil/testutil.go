// Package testutil opens throwaway in-memory sqlite databases for
// repository tests.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/kbukum/medscribe/database"
	"github.com/kbukum/medscribe/logger"
)

var seq atomic.Int64

// Open returns a migrated in-memory database private to the test. It is
// closed when the test ends.
func Open(t testing.TB, models ...interface{}) *database.DB {
	t.Helper()

	cfg := database.Config{
		Driver:       database.DriverSQLite,
		DSN:          fmt.Sprintf("file:medscribe_test_%d?mode=memory&cache=shared", seq.Add(1)),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		MaxRetries:   1,
		LogLevel:     "silent",
	}
	db, err := database.Open(context.Background(), cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}
