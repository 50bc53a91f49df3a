// Package cache is the read-through response cache for GET-shaped requests.
//
// Entries are keyed by (apiBase, path) and hold the last-known-good
// response body. The cache is only consulted when a live GET fails; it
// has no TTL and is never proactively expired.
package cache

import (
	"database/sql"
	"log/slog"
	"time"
)

// Cache stores the last successful response per (apiBase, path).
type Cache struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a Cache over the shared local database.
func New(db *sql.DB, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{db: db, logger: logger}
}

// Put unconditionally overwrites the entry for (apiBase, path).
func (c *Cache) Put(apiBase, path string, payload []byte) error {
	_, err := c.db.Exec(
		`INSERT INTO cache(api_base, path, updated_at, payload) VALUES(?, ?, ?, ?)
		 ON CONFLICT(api_base, path) DO UPDATE SET
		   updated_at = excluded.updated_at,
		   payload = excluded.payload`,
		apiBase, path, time.Now().Unix(), payload,
	)
	return err
}

// Get returns the cached payload for (apiBase, path). Missing or
// unreadable entries are reported as absent, never as errors.
func (c *Cache) Get(apiBase, path string) ([]byte, bool) {
	var payload []byte
	err := c.db.QueryRow(
		`SELECT payload FROM cache WHERE api_base = ? AND path = ?`,
		apiBase, path,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache read failed", "path", path, "error", err)
		return nil, false
	}
	return payload, true
}

// Clear drops every cached entry.
func (c *Cache) Clear() error {
	_, err := c.db.Exec(`DELETE FROM cache`)
	return err
}
