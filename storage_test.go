package blogsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()

	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	require.False(t, ok)

	value := []byte("hello")
	require.NoError(t, s.Set("a", value))
	value[0] = 'j'

	got, ok, err := s.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", string(got))

	require.NoError(t, s.Set("ab", []byte("1")))
	require.NoError(t, s.Set("b", []byte("2")))
	keys, err := s.Keys("a")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "ab"}, keys)

	require.NoError(t, s.Delete("a", "missing"))
	require.Equal(t, 2, s.Len())
}

func TestTTLStoreExpiry(t *testing.T) {
	clock := newFakeClock()
	ttl := NewTTLStore(NewMemoryStorage(), clock.Now)

	require.NoError(t, ttl.Set("blog_1", []byte(`{"a":1}`), time.Second))
	deadline, ok, err := ttl.ExpiresAt("blog_1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, clock.Now().Add(time.Second).UnixMilli(), deadline.UnixMilli())

	got, ok, err := ttl.Get("blog_1")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"a":1}`, string(got))

	clock.Advance(time.Second)
	_, ok, err = ttl.Get("blog_1")
	require.NoError(t, err)
	require.True(t, ok, "live at exactly storedAt+ttl")

	clock.Advance(time.Millisecond)
	_, ok, err = ttl.Get("blog_1")
	require.NoError(t, err)
	require.False(t, ok)

	keys, err := ttl.Storage().Keys("")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestTTLStoreSubMillisecondDeadlineNeverExpiresEarly(t *testing.T) {
	clock := newFakeClock()
	clock.Advance(700 * time.Microsecond)
	storedAt := clock.Now()
	ttl := NewTTLStore(NewMemoryStorage(), clock.Now)
	require.NoError(t, ttl.Set("x", []byte("1"), time.Second))

	deadline, ok, err := ttl.ExpiresAt("x")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, deadline.Before(storedAt.Add(time.Second)))

	clock.Advance(999600 * time.Microsecond)
	_, ok, err = ttl.Get("x")
	require.NoError(t, err)
	require.True(t, ok)

	expired, err := ttl.Expired(storedAt.Add(time.Second))
	require.NoError(t, err)
	require.Empty(t, expired)

	clock.Advance(2 * time.Millisecond)
	_, ok, err = ttl.Get("x")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTTLStoreReplaceKeepsDeadline(t *testing.T) {
	clock := newFakeClock()
	ttl := NewTTLStore(NewMemoryStorage(), clock.Now)

	require.NoError(t, ttl.Set("x", []byte("1"), time.Minute))
	clock.Advance(30 * time.Second)
	require.NoError(t, ttl.Replace("x", []byte("2")))

	clock.Advance(31 * time.Second)
	_, ok, err := ttl.Get("x")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTTLStoreWithoutExpiry(t *testing.T) {
	clock := newFakeClock()
	ttl := NewTTLStore(NewMemoryStorage(), clock.Now)

	require.NoError(t, ttl.Set("x", []byte("1"), time.Minute))
	require.NoError(t, ttl.Set("x", []byte("2"), 0))
	_, ok, err := ttl.ExpiresAt("x")
	require.NoError(t, err)
	require.False(t, ok)

	clock.Advance(24 * time.Hour)
	got, ok, err := ttl.Get("x")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2", string(got))
}

func TestTTLStoreIDsAndExpired(t *testing.T) {
	clock := newFakeClock()
	storage := NewMemoryStorage()
	ttl := NewTTLStore(storage, clock.Now)

	require.NoError(t, ttl.Set("a", []byte("1"), time.Second))
	require.NoError(t, ttl.Set("b", []byte("2"), time.Hour))
	require.NoError(t, ttl.Set("c", []byte("3"), 0))
	require.NoError(t, storage.Set("unrelated", []byte("x")))

	ids, err := ttl.IDs()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b", "c"}, ids)

	clock.Advance(2 * time.Second)
	expired, err := ttl.Expired(clock.Now())
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, expired)
}

func TestTTLStoreCorruptDeadlineIsExpired(t *testing.T) {
	storage := NewMemoryStorage()
	ttl := NewTTLStore(storage, nil)

	require.NoError(t, storage.Set("cache_x", []byte("1")))
	require.NoError(t, storage.Set("cache_expiry_x", []byte("not-a-number")))

	_, ok, err := ttl.Get("x")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 0, storage.Len())
}
