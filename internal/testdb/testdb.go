//go:build integration

// Package testdb connects integration tests to a real archive database.
// Tests using it are skipped unless ADFORGE_TEST_DATABASE_URL (or
// DATABASE_URL) points at a Postgres instance.
package testdb

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/phrazzld/adforge/internal/config"
	"github.com/phrazzld/adforge/internal/platform/logger"
	"github.com/phrazzld/adforge/internal/platform/postgres"
	"github.com/stretchr/testify/require"
)

// Environment variables consulted for the test database, in order.
const (
	EnvTestDatabaseURL = "ADFORGE_TEST_DATABASE_URL"
	EnvDatabaseURL     = "DATABASE_URL"
)

// GetTestDatabaseURL returns the configured test database URL or "".
func GetTestDatabaseURL() string {
	for _, key := range []string{EnvTestDatabaseURL, EnvDatabaseURL} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// IsCI reports whether the tests run in a CI environment.
func IsCI() bool {
	return os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != ""
}

// GetTestDB opens and migrates the test database, skipping the test when none
// is configured. In CI a missing database fails the test instead.
func GetTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := GetTestDatabaseURL()
	if dbURL == "" {
		if IsCI() {
			t.Fatalf("%s must be set in CI", EnvTestDatabaseURL)
		}
		t.Skipf("%s not set; skipping database test", EnvTestDatabaseURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := postgres.Open(ctx, config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	})
	require.NoError(t, err, "failed to connect to %s", maskDatabaseURL(dbURL))
	t.Cleanup(func() { _ = db.Close() })

	l, _ := logger.NewTestLogger()
	require.NoError(t, postgres.Migrate(ctx, db, l), "failed to migrate test database")
	return db
}

// CleanupJobs removes the archives of jobIDs when the test finishes, so
// parallel tests only need distinct job ids.
func CleanupJobs(t *testing.T, db *sql.DB, jobIDs ...string) {
	t.Helper()
	t.Cleanup(func() {
		for _, id := range jobIDs {
			if _, err := db.Exec("DELETE FROM job_archives WHERE job_id = $1", id); err != nil {
				t.Logf("failed to clean up archive %s: %v", id, err)
			}
		}
	})
}

func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}
