package repository

import (
	"database/sql"
	"time"
)

// CacheRepository is the sqlite-backed implementation of metadata.Cache
// (internal/metadata/cache.go), keyed on the cache_entries table's
// key/value/expires_at columns. It is defined here, not in internal/metadata,
// so the metadata package never depends on the persistence layer — only the
// reverse.
type CacheRepository struct {
	db *sql.DB
}

func NewCacheRepository(db *sql.DB) *CacheRepository {
	return &CacheRepository{db: db}
}

// Get returns ok=false both when the key is absent and when it has expired;
// an expired row is opportunistically deleted rather than left to rot.
func (c *CacheRepository) Get(key string) (string, bool, error) {
	var value string
	var expiresAt string
	err := c.db.QueryRow(`SELECT value, expires_at FROM cache_entries WHERE key = ?`, key).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	expiry, err := time.Parse(dateLayout, expiresAt)
	if err != nil || time.Now().After(expiry) {
		_, _ = c.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
		return "", false, nil
	}
	return value, true, nil
}

func (c *CacheRepository) Set(key, value string, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl).Format(dateLayout)
	_, err := c.db.Exec(`
		INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	return err
}

// Purge deletes every expired row. Nothing runs it on a schedule; otherwise
// an expired row is only removed when Get meets it.
func (c *CacheRepository) Purge() (int64, error) {
	result, err := c.db.Exec(`DELETE FROM cache_entries WHERE expires_at < ?`, time.Now().Format(dateLayout))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
