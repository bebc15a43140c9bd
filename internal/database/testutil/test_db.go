package testutil

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/invoicereminder/internal/database"
)

// TestDBOption customises the behaviour of MustOpenTestDB.
type TestDBOption func(*testDBConfig)

type testDBConfig struct {
	autoMigrate bool
	shared      bool
	onDisk      bool
}

// WithAutoMigrate enables automatic schema migration after opening the test database.
func WithAutoMigrate() TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.autoMigrate = true
	}
}

// WithSharedMemory opens the process-wide shared in-memory database instead of an isolated one.
func WithSharedMemory() TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.shared = true
	}
}

// WithFileStorage backs the test database with a WAL-mode file in t.TempDir so that
// several connections can write concurrently.
func WithFileStorage() TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.onDisk = true
	}
}

// MustOpenTestDB opens an in-memory SQLite database for tests, applying optional migrations.
// Each call gets its own database unless WithSharedMemory is given.
// The returned connection is automatically closed via t.Cleanup.
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	cfg := testDBConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	dbCfg := database.Config{Driver: "sqlite"}
	switch {
	case cfg.onDisk:
		dbCfg.Path = filepath.Join(t.TempDir(), "test.db")
	case !cfg.shared:
		name := strings.ReplaceAll(uuid.NewString(), "-", "")
		dbCfg.DSN = fmt.Sprintf("file:test_%s?mode=memory&cache=shared&_foreign_keys=1", name)
	}

	db, err := database.Open(dbCfg)
	require.NoError(t, err)

	if cfg.autoMigrate {
		require.NoError(t, database.Migrate(db))
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
