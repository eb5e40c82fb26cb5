package cache

import (
	"errors"
	"sync"
	"time"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("cache: miss")

// MemoryService is a process-local CacheService used when no memcache
// address is configured. Block keys then only protect the current run.
type MemoryService struct {
	mu    sync.Mutex
	items map[string]memoryItem
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryService creates an in-process cache service
func NewMemoryService() *MemoryService {
	return &MemoryService{items: make(map[string]memoryItem)}
}

// Get retrieves a value, expiring it lazily
func (m *MemoryService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		delete(m.items, key)
		return nil, ErrCacheMiss
	}
	return item.value, nil
}

// Set stores a value with an expiration time
func (m *MemoryService) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if expiration > 0 {
		expiresAt = time.Now().Add(expiration)
	}
	m.items[key] = memoryItem{value: value, expiresAt: expiresAt}
	return nil
}

// Delete removes a value
func (m *MemoryService) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
