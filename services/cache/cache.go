package cache

import (
	"time"
)

// CacheService stores anti-bot block keys shared across pipeline processes.
// When the marketplace pushes back, a block key with the configured block
// time is set; every session checks it before navigating again.
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}
