package internal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// OpenDatabase opens a SQLite database in read-only mode
func OpenDatabase(path string) (*sql.DB, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	dsn := (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=ro"}).String()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StorageError{Path: path, Op: "open", Err: err}
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StorageError{Path: path, Op: "open", Err: fmt.Errorf("database ping failed: %w", err)}
	}

	return db, nil
}

// KeyValuePair represents a key-value row from ItemTable or cursorDiskKV
type KeyValuePair struct {
	Key   string
	Value string
}

// ListTables returns the names of the tables in db
func ListTables(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table'")
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	tables := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		tables[name] = true
	}
	return tables, rows.Err()
}

// QueryCursorDiskKV queries the cursorDiskKV table with a LIKE pattern
func QueryCursorDiskKV(db *sql.DB, pattern string) ([]KeyValuePair, error) {
	return queryPairs(db, "SELECT key, value FROM cursorDiskKV WHERE key LIKE ? AND value IS NOT NULL ORDER BY key", pattern)
}

// QueryCursorDiskKVContaining returns rows whose key matches one of the
// prefixes and whose value contains needle as a literal substring.
func QueryCursorDiskKVContaining(db *sql.DB, prefixes []string, needle string) ([]KeyValuePair, error) {
	var pairs []KeyValuePair
	for _, prefix := range prefixes {
		found, err := queryPairs(db,
			"SELECT key, value FROM cursorDiskKV WHERE key LIKE ? AND value IS NOT NULL AND instr(value, ?) > 0 ORDER BY key",
			prefix+"%", needle)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, found...)
	}
	return pairs, nil
}

// GetCursorDiskKV returns the value stored under an exact key.
func GetCursorDiskKV(db *sql.DB, key string) (string, bool, error) {
	return getValue(db, "SELECT value FROM cursorDiskKV WHERE key = ?", key)
}

// GetItemTable returns the value stored under an exact ItemTable key.
func GetItemTable(db *sql.DB, key string) (string, bool, error) {
	return getValue(db, "SELECT value FROM ItemTable WHERE key = ?", key)
}

// GetItemTableJSON decodes the ItemTable value under key into v. It reports
// false when the key is absent or the value is not valid JSON.
func GetItemTableJSON(db *sql.DB, key string, v interface{}) (bool, error) {
	value, ok, err := GetItemTable(db, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(value), v); err != nil {
		LogDebug("ItemTable %s: %v", key, err)
		return false, nil
	}
	return true, nil
}

// QueryItemTableLike returns ItemTable rows whose key matches any of the
// LIKE patterns.
func QueryItemTableLike(db *sql.DB, patterns ...string) ([]KeyValuePair, error) {
	seen := make(map[string]bool)
	var pairs []KeyValuePair
	for _, pattern := range patterns {
		found, err := queryPairs(db, "SELECT key, value FROM ItemTable WHERE key LIKE ? AND value IS NOT NULL ORDER BY key", pattern)
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			if seen[p.Key] {
				continue
			}
			seen[p.Key] = true
			pairs = append(pairs, p)
		}
	}
	return pairs, nil
}

func getValue(db *sql.DB, query, key string) (string, bool, error) {
	var value sql.NullString
	err := db.QueryRow(query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query failed: %w", err)
	}
	if !value.Valid {
		return "", false, nil
	}
	return value.String, true, nil
}

func queryPairs(db *sql.DB, query string, args ...interface{}) ([]KeyValuePair, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var pairs []KeyValuePair
	for rows.Next() {
		var pair KeyValuePair
		var value sql.NullString
		if err := rows.Scan(&pair.Key, &value); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		if value.Valid {
			pair.Value = value.String
			pairs = append(pairs, pair)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return pairs, nil
}
