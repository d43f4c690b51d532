// Package counter is a small persistent counter store backed by SQLite.
// Counters are grouped into namespaces; a Store is scoped to one
// namespace and must be closed after use so pending writes are committed
// before anything that depends on them (like a reboot) happens.
package counter

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

type Store struct {
	mu        sync.Mutex
	db        *sql.DB
	namespace string
}

// Open opens (creating if needed) the counter database at dbPath scoped
// to the given namespace.
func Open(dbPath, namespace string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create counter directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open counter database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS counters (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (namespace, key)
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize counter database: %w", err)
	}

	return &Store{db: db, namespace: namespace}, nil
}

// GetUint returns the counter for key, or def if it has never been written
func (s *Store) GetUint(key string, def uint) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value uint
	err := s.db.QueryRow(
		"SELECT value FROM counters WHERE namespace = ? AND key = ?",
		s.namespace, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	return value, nil
}

// PutUint writes the counter for key. The write is durable once PutUint
// returns; SQLite commits each statement.
func (s *Store) PutUint(key string, value uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO counters (namespace, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value`,
		s.namespace, key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to write counter %s: %w", key, err)
	}
	return nil
}

// Close releases the database. Must be called before a restart so the
// file is consistent on the next boot.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
