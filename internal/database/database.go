package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// GetStats returns aggregate counts across all projects.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	queries := []struct {
		dest  *int
		query string
	}{
		{&s.Projects, "SELECT COUNT(*) FROM projects"},
		{&s.TotalPosts, "SELECT COUNT(*) FROM discovered_posts"},
		{&s.RelevantPosts, "SELECT COUNT(*) FROM discovered_posts WHERE filter_status = 'relevant'"},
		{&s.TotalComments, "SELECT COUNT(*) FROM comments"},
		{&s.DraftComments, "SELECT COUNT(*) FROM comments WHERE status = 'draft'"},
		{&s.PostedComments, "SELECT COUNT(*) FROM comments WHERE status = 'posted'"},
		{&s.ExternalTasks, "SELECT COUNT(*) FROM external_tasks"},
	}
	for _, q := range queries {
		if err := db.conn.QueryRow(q.query).Scan(q.dest); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// marshalList encodes a string slice as JSON for TEXT column storage.
// nil and empty slices both store as NULL.
func marshalList(items []string) *string {
	if len(items) == 0 {
		return nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

// unmarshalList decodes a JSON TEXT column back into a string slice.
func unmarshalList(raw *string) []string {
	if raw == nil || *raw == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(*raw), &items); err != nil {
		return nil
	}
	return items
}
