package tank

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/oilfox-bridge/internal/infrastructure/database"
	"github.com/nerrad567/oilfox-bridge/migrations"
)

// setupTestRepo opens a migrated database in a temporary directory.
func setupTestRepo(t *testing.T) (*SQLiteRepository, *database.DB) {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "tank.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck // Test cleanup
	})

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return NewSQLiteRepository(db.DB), db
}

func int64Ptr(v int64) *int64 { return &v }
