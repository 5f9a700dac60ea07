package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// writeMigrationPair writes an NNN_name.up.sql / .down.sql pair into dir.
func writeMigrationPair(t *testing.T, dir string, version int, name, up, down string) {
	t.Helper()
	base := filepath.Join(dir, fmt.Sprintf("%03d_%s", version, name))
	if err := os.WriteFile(base+".up.sql", []byte(up), 0o644); err != nil {
		t.Fatalf("write up migration: %v", err)
	}
	if err := os.WriteFile(base+".down.sql", []byte(down), 0o644); err != nil {
		t.Fatalf("write down migration: %v", err)
	}
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrationManager_UpAppliesFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	writeMigrationPair(t, dir, 1, "create_widgets",
		"CREATE TABLE widgets (id INTEGER PRIMARY KEY);",
		"DROP TABLE widgets;")
	writeMigrationPair(t, dir, 2, "add_widget_name",
		"ALTER TABLE widgets ADD COLUMN name TEXT;",
		"")

	db := newTestDB(t)
	mgr, err := NewMigrationManager(db, dir)
	if err != nil {
		t.Fatalf("NewMigrationManager: %v", err)
	}
	defer mgr.Close()

	if err := mgr.Up(); err != nil {
		t.Fatalf("Up: %v", err)
	}

	if _, err := db.Exec("INSERT INTO widgets (id, name) VALUES (1, 'gadget')"); err != nil {
		t.Fatalf("expected widgets.name column to exist after migration 2: %v", err)
	}

	version, dirty, err := mgr.Version()
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected version 2, got %d", version)
	}
	if dirty {
		t.Fatalf("expected dirty=false")
	}
}

func TestMigrationManager_UpIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeMigrationPair(t, dir, 1, "create_widgets",
		"CREATE TABLE widgets (id INTEGER PRIMARY KEY);",
		"DROP TABLE widgets;")

	db := newTestDB(t)
	mgr, err := NewMigrationManager(db, dir)
	if err != nil {
		t.Fatalf("NewMigrationManager: %v", err)
	}
	defer mgr.Close()

	if err := mgr.Up(); err != nil {
		t.Fatalf("first Up: %v", err)
	}
	if err := mgr.Up(); err != nil {
		t.Fatalf("second Up should be a no-op, got: %v", err)
	}

	version, _, err := mgr.Version()
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected version to stay at 1 after a repeated Up, got %d", version)
	}
}

func TestMigrationManager_DownRollsBackToEmpty(t *testing.T) {
	dir := t.TempDir()
	writeMigrationPair(t, dir, 1, "create_widgets",
		"CREATE TABLE widgets (id INTEGER PRIMARY KEY);",
		"DROP TABLE widgets;")

	db := newTestDB(t)
	mgr, err := NewMigrationManager(db, dir)
	if err != nil {
		t.Fatalf("NewMigrationManager: %v", err)
	}
	defer mgr.Close()

	if err := mgr.Up(); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mgr.Down(); err != nil {
		t.Fatalf("Down: %v", err)
	}

	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='widgets'").Scan(&name)
	if err == nil {
		t.Fatalf("expected widgets table to be dropped by Down")
	}

	if _, _, err := mgr.Version(); err != ErrNoMigration {
		t.Fatalf("expected ErrNoMigration after rolling everything back, got %v", err)
	}
}

func TestMigrationManager_VersionBeforeAnyMigrationIsErrNoMigration(t *testing.T) {
	dir := t.TempDir()
	writeMigrationPair(t, dir, 1, "create_widgets", "CREATE TABLE widgets (id INTEGER PRIMARY KEY);", "DROP TABLE widgets;")

	db := newTestDB(t)
	mgr, err := NewMigrationManager(db, dir)
	if err != nil {
		t.Fatalf("NewMigrationManager: %v", err)
	}
	defer mgr.Close()

	if _, _, err := mgr.Version(); err != ErrNoMigration {
		t.Fatalf("expected ErrNoMigration, got %v", err)
	}
}

func TestNewMigrationManager_MissingDirectoryErrors(t *testing.T) {
	db := newTestDB(t)
	if _, err := NewMigrationManager(db, filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Fatalf("expected an error for a nonexistent migrations directory")
	}
}
