package metadata

import "time"

// Cache is the key/value store consulted by every detail fetch. It is
// satisfied by the repository layer's cache table; resolver code never
// depends on the repository package directly, avoiding an import cycle.
type Cache interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string, ttl time.Duration) error
	Delete(key string) error
}

const (
	detailCacheTTL     = 24 * time.Hour
	collectionCacheTTL = 7 * 24 * time.Hour
)
