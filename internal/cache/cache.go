// Package cache is a persistent key-value cache with per-entry TTL, backed
// by SQLite. The chat services use it to keep conversation lists and unread
// counts warm across daemon restarts.
package cache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/cache/migrations"
)

// Cache wraps a SQLite connection for the app-owned cache.db.
type Cache struct {
	db *sql.DB
}

// Open creates a SQLite-backed cache with WAL mode and runs pending
// migrations.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping cache db: %w", err)
	}
	c := &Cache{db: db}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) migrate() error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(c.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migration instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Set stores a value under key for the given TTL, replacing any previous
// entry.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) error {
	now := time.Now().UnixMilli()
	expires := now + ttl.Milliseconds()
	_, err := c.db.Exec(`
		INSERT INTO kv (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		key, value, expires, now)
	return err
}

// Get returns the value for key, or ok=false when the key is absent or its
// TTL has lapsed. Expired entries are left for PurgeExpired.
func (c *Cache) Get(key string) ([]byte, bool, error) {
	var value []byte
	var expires int64
	err := c.db.QueryRow(`SELECT value, expires_at FROM kv WHERE key = ?`, key).
		Scan(&value, &expires)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if expires <= time.Now().UnixMilli() {
		return nil, false, nil
	}
	return value, true, nil
}

// Delete removes a key. Absent keys are not an error.
func (c *Cache) Delete(key string) error {
	_, err := c.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

// PurgeExpired removes every entry whose TTL has lapsed and returns the
// number removed.
func (c *Cache) PurgeExpired() (int64, error) {
	res, err := c.db.Exec(`DELETE FROM kv WHERE expires_at <= ?`, time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
