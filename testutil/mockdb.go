package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

const (
	createCursorDiskKV = `CREATE TABLE IF NOT EXISTS cursorDiskKV (key TEXT PRIMARY KEY, value TEXT)`
	createItemTable    = `CREATE TABLE IF NOT EXISTS ItemTable (key TEXT PRIMARY KEY, value TEXT)`
)

// CreateInMemoryDB creates an in-memory SQLite database with the
// cursorDiskKV and ItemTable tables
func CreateInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)
	createTables(t, db)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// CreateVSCDB creates a state.vscdb style database file at path and returns
// a writable handle to it. The handle is closed when the test ends.
func CreateVSCDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create database directory: %v", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	createTables(t, db)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createTables(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, stmt := range []string{createCursorDiskKV, createItemTable} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to create table: %v", err)
		}
	}
}

// InsertDiskKV inserts a cursorDiskKV row
func InsertDiskKV(t *testing.T, db *sql.DB, key, value string) {
	t.Helper()
	if _, err := db.Exec("INSERT OR REPLACE INTO cursorDiskKV (key, value) VALUES (?, ?)", key, value); err != nil {
		t.Fatalf("Failed to insert cursorDiskKV row %s: %v", key, err)
	}
}

// InsertItem inserts an ItemTable row
func InsertItem(t *testing.T, db *sql.DB, key, value string) {
	t.Helper()
	if _, err := db.Exec("INSERT OR REPLACE INTO ItemTable (key, value) VALUES (?, ?)", key, value); err != nil {
		t.Fatalf("Failed to insert ItemTable row %s: %v", key, err)
	}
}

// InsertItemJSON marshals v into an ItemTable row
func InsertItemJSON(t *testing.T, db *sql.DB, key string, v interface{}) {
	t.Helper()
	InsertItem(t, db, key, string(JSONMarshal(t, v)))
}

// InsertDiskKVJSON marshals v into a cursorDiskKV row
func InsertDiskKVJSON(t *testing.T, db *sql.DB, key string, v interface{}) {
	t.Helper()
	InsertDiskKV(t, db, key, string(JSONMarshal(t, v)))
}
