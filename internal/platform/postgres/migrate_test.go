package postgres

import (
	"testing"

	"github.com/phrazzld/adforge/internal/platform/logger"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	log, _ := logger.NewTestLogger()
	require.NoError(t, configureGoose(log))

	migrations, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, int64(1), migrations[0].Version)

	for i := 1; i < len(migrations); i++ {
		assert.Greater(t, migrations[i].Version, migrations[i-1].Version)
	}
}

func TestGooseLogger(t *testing.T) {
	log, buf := logger.NewTestLogger()
	l := gooseLogger{logger: log}

	l.Printf("OK   %s (%d)", "00001_create_job_archives.sql", 12)
	l.Fatalf("failed to run migration %d", 2)

	out := buf.String()
	assert.Contains(t, out, "OK   00001_create_job_archives.sql (12)")
	assert.Contains(t, out, "failed to run migration 2")
}
