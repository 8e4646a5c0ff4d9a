// Package testutil provides database helpers for integration tests. Tests
// that need Postgres are gated on TEST_DATABASE_URL and skip themselves when
// it is unset, so the pure-logic suites still run everywhere.
package testutil

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tournament-enrollment-system/models"
)

var (
	openOnce sync.Once
	shared   *gorm.DB
	openErr  error
)

// DB returns a migrated database handle, or skips the test when
// TEST_DATABASE_URL is not configured. The handle is shared across tests in a
// binary; callers isolate themselves with Reset.
func DB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	openOnce.Do(func() {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			openErr = err
			return
		}
		if err := models.Migrate(db); err != nil {
			openErr = err
			return
		}
		shared = db
	})
	if openErr != nil {
		t.Fatalf("test database: %v", openErr)
	}
	return shared
}

var tables = []string{
	"audit_events",
	"tournament_results",
	"credit_transactions",
	"badges",
	"tournament_participations",
	"bookings",
	"enrollments",
	"user_licenses",
	"user_accounts",
	"sessions",
	"tournaments",
}

// Reset truncates every table so the test starts from an empty database.
func Reset(t *testing.T, db *gorm.DB) {
	t.Helper()
	for _, table := range tables {
		if err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error; err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
}
