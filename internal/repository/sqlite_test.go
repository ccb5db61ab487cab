package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Shivanand-hulikatti/limited-claim/internal/database"
)

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		t.Helper()
		db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "claims.db"))
		if err != nil {
			t.Fatalf("OpenSQLite() error = %v", err)
		}
		s := NewSQLiteStore(db)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
