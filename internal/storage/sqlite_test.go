package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenSQLiteBootstrapsTables(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "flowparam.db")
	db, err := OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	var name string
	if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?;", "param_history").Scan(&name); err != nil {
		t.Fatalf("table param_history missing: %v", err)
	}

	for _, index := range []string{"param_history_created_at_idx", "param_history_step_key_idx"} {
		if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?;", index).Scan(&name); err != nil {
			t.Fatalf("index %q missing: %v", index, err)
		}
	}
}

func TestOpenSQLiteCreatesParentDirectory(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "nested", "flowparam.db")
	db, err := OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	_ = db.Close()
}

func TestOpenSQLiteRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := OpenSQLite(context.Background(), ""); err == nil {
		t.Fatal("OpenSQLite should reject an empty path")
	}
}
