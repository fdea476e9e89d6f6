package blogsync

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Storage is the local persistence primitive. Implementations are synchronous
// and local-only; Get reports a missing key with ok == false and a nil error.
type Storage interface {
	Set(key string, value []byte) error
	Get(key string) (value []byte, ok bool, err error)
	Delete(keys ...string) error
	Keys(prefix string) ([]string, error)
	Close() error
}

// ============================================================================
// MemoryStorage
// ============================================================================

// MemoryStorage is a goroutine-safe in-memory Storage.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStorage creates a new in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string][]byte)}
}

func (s *MemoryStorage) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStorage) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemoryStorage) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

func (s *MemoryStorage) Keys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStorage) Close() error { return nil }

// Len returns the number of stored keys.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// ============================================================================
// TTLStore
// ============================================================================

const (
	cacheKeyPrefix       = "cache_"
	cacheExpiryKeyPrefix = "cache_expiry_"
)

// TTLStore is the expiring tier on top of a Storage. Each id is stored under
// cache_<id> with its deadline (unix millis) under cache_expiry_<id>. An id
// without an expiry key never expires.
type TTLStore struct {
	storage Storage
	now     func() time.Time
}

// NewTTLStore wraps storage. now may be nil.
func NewTTLStore(storage Storage, now func() time.Time) *TTLStore {
	if now == nil {
		now = time.Now
	}
	return &TTLStore{storage: storage, now: now}
}

// Storage returns the underlying fast tier.
func (t *TTLStore) Storage() Storage { return t.storage }

func valueKey(id string) string  { return cacheKeyPrefix + id }
func expiryKey(id string) string { return cacheExpiryKeyPrefix + id }

// Set writes value and its deadline. ttl <= 0 stores without expiry.
func (t *TTLStore) Set(id string, value []byte, ttl time.Duration) error {
	if err := t.storage.Set(valueKey(id), value); err != nil {
		return err
	}
	if ttl <= 0 {
		return t.storage.Delete(expiryKey(id))
	}
	return t.storage.Set(expiryKey(id), []byte(strconv.FormatInt(deadlineMillis(t.now().Add(ttl)), 10)))
}

// deadlineMillis rounds up to the next millisecond so an entry never expires
// before its full ttl has passed.
func deadlineMillis(deadline time.Time) int64 {
	ms := deadline.UnixMilli()
	if time.UnixMilli(ms).Before(deadline) {
		ms++
	}
	return ms
}

// Replace rewrites the value of id without touching its deadline.
func (t *TTLStore) Replace(id string, value []byte) error {
	return t.storage.Set(valueKey(id), value)
}

// Get returns the value of id. Values whose deadline has passed are deleted and
// reported missing; a value read exactly at its deadline is still live.
func (t *TTLStore) Get(id string) ([]byte, bool, error) {
	deadline, hasDeadline, err := t.ExpiresAt(id)
	if err != nil {
		return nil, false, err
	}
	if hasDeadline && t.now().After(deadline) {
		return nil, false, t.Delete(id)
	}
	return t.storage.Get(valueKey(id))
}

// ExpiresAt returns the deadline of id, if any.
func (t *TTLStore) ExpiresAt(id string) (time.Time, bool, error) {
	raw, ok, err := t.storage.Get(expiryKey(id))
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		// A corrupt deadline is treated as already expired.
		return time.Time{}, true, nil
	}
	return time.UnixMilli(ms), true, nil
}

// Delete removes id and its deadline.
func (t *TTLStore) Delete(id string) error {
	return t.storage.Delete(valueKey(id), expiryKey(id))
}

// IDs lists every stored id, expired or not.
func (t *TTLStore) IDs() ([]string, error) {
	keys, err := t.storage.Keys(cacheKeyPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, cacheExpiryKeyPrefix) {
			continue
		}
		ids = append(ids, strings.TrimPrefix(k, cacheKeyPrefix))
	}
	return ids, nil
}

// Expired lists the ids whose deadline is before now.
func (t *TTLStore) Expired(now time.Time) ([]string, error) {
	keys, err := t.storage.Keys(cacheExpiryKeyPrefix)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, k := range keys {
		id := strings.TrimPrefix(k, cacheExpiryKeyPrefix)
		deadline, _, err := t.ExpiresAt(id)
		if err != nil {
			return nil, err
		}
		if now.After(deadline) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
