// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httpcache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/seqlab/negscan/pkg/types"
)

const dbFile = "negscan_api_cache.db"

// SQLiteStore is the durable Store used by the CLI. One row per
// request fingerprint; writes overwrite, last write wins.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the cache database under dir.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS responses (
		key TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		status INTEGER NOT NULL,
		headers TEXT NOT NULL,
		body TEXT NOT NULL,
		saved_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("executing schema statement: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(key string) (*types.CacheEntry, bool, error) {
	var (
		entry      types.CacheEntry
		headersRaw string
		savedAtRaw string
	)
	err := s.db.QueryRow(
		`SELECT url, status, headers, body, saved_at FROM responses WHERE key = ?`, key,
	).Scan(&entry.URL, &entry.StatusCode, &headersRaw, &entry.Body, &savedAtRaw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}

	if err := json.Unmarshal([]byte(headersRaw), &entry.Headers); err != nil {
		// Treat a corrupt row as a miss rather than failing the call.
		return nil, false, nil
	}
	savedAt, err := time.Parse(time.RFC3339Nano, savedAtRaw)
	if err != nil {
		return nil, false, nil
	}
	entry.SavedAt = savedAt
	return &entry, true, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(key string, entry *types.CacheEntry) error {
	headersJSON, err := json.Marshal(entry.Headers)
	if err != nil {
		return fmt.Errorf("encoding headers: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO responses (key, url, status, headers, body, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			url=excluded.url, status=excluded.status, headers=excluded.headers,
			body=excluded.body, saved_at=excluded.saved_at`,
		key, entry.URL, entry.StatusCode, string(headersJSON), entry.Body,
		entry.SavedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// EvictExpired implements Store.
func (s *SQLiteStore) EvictExpired(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(
		`DELETE FROM responses WHERE saved_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("evicting expired entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Clear implements Store.
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM responses`); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Count returns the number of stored entries.
func (s *SQLiteStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT count(*) FROM responses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return n, nil
}
