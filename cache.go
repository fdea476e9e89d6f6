package blogsync

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Cache defaults.
const (
	DefaultCacheMaxSize     int64 = 50 << 20
	DefaultHeadroomFraction       = 0.1
	DefaultSweepInterval          = time.Hour
	DefaultCacheTTL               = 24 * time.Hour
)

// NoHeadroom disables headroom: eviction frees only what the incoming entry
// needs. A zero HeadroomFraction means DefaultHeadroomFraction.
const NoHeadroom = -1.0

const (
	blogKeyPrefix          = "blog_"
	blogPageKeyPrefix      = "blogs_page_"
	reservedCacheKeyPrefix = "expiry_"
)

// CacheEntry is the persisted form of a cached value.
type CacheEntry struct {
	Data           json.RawMessage `json:"data"`
	StoredAt       time.Time       `json:"storedAt"`
	SizeBytes      int64           `json:"sizeBytes"`
	AccessCount    int             `json:"accessCount"`
	LastAccessedAt time.Time       `json:"lastAccessedAt"`
	TTL            time.Duration   `json:"ttl"`
	Seq            uint64          `json:"seq"`
}

// CacheStats is a point-in-time view of cache counters.
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
	TotalSize int64 `json:"totalSize"`
	MaxSize   int64 `json:"maxSize"`
}

// HitRate returns hits / (hits + misses), or 0 before any read.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// CacheOptions configures a CacheManager. Zero fields take defaults.
type CacheOptions struct {
	MaxSize int64 `validate:"gte=0"`
	// HeadroomFraction of MaxSize is kept free after an eviction run. Zero
	// takes the default; set NoHeadroom to turn it off.
	HeadroomFraction float64       `validate:"gte=0,lt=1"`
	SweepInterval    time.Duration `validate:"gte=0"`
	DefaultTTL       time.Duration `validate:"gte=0"`

	Logger  *zap.Logger
	Metrics *Metrics
	Now     func() time.Time
	Cron    *cron.Cron
}

func (o *CacheOptions) defaults() {
	if o.MaxSize == 0 {
		o.MaxSize = DefaultCacheMaxSize
	}
	switch o.HeadroomFraction {
	case 0:
		o.HeadroomFraction = DefaultHeadroomFraction
	case NoHeadroom:
		o.HeadroomFraction = 0
	}
	if o.SweepInterval == 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	if o.DefaultTTL == 0 {
		o.DefaultTTL = DefaultCacheTTL
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type cacheMeta struct {
	size       int64
	storedAt   time.Time
	lastAccess time.Time
	seq        uint64
}

// CacheManager is a size-bounded, expiring LRU cache persisted through a
// TTLStore. The in-memory index mirrors the persisted entries so that the
// sum of entry sizes always equals the tracked total.
type CacheManager struct {
	ttl     *TTLStore
	opts    CacheOptions
	log     *zap.Logger
	metrics *Metrics
	now     func() time.Time

	mu        sync.Mutex
	index     map[string]*cacheMeta
	totalSize int64
	nextSeq   uint64
	hits      int64
	misses    int64
	evictions int64

	cron    *cron.Cron
	started bool
}

// NewCacheManager creates a cache over storage. Call Init before use.
func NewCacheManager(storage Storage, opts *CacheOptions) (*CacheManager, error) {
	var o CacheOptions
	if opts != nil {
		o = *opts
	}
	o.defaults()
	if err := validateStruct(o); err != nil {
		return nil, err
	}
	c := &CacheManager{
		ttl:     NewTTLStore(storage, o.Now),
		opts:    o,
		log:     o.Logger.With(zap.String("module", "cache")),
		metrics: o.Metrics,
		now:     o.Now,
		index:   make(map[string]*cacheMeta),
		cron:    o.Cron,
	}
	if c.cron == nil {
		c.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return c, nil
}

// TTL returns the expiring tier backing the cache.
func (c *CacheManager) TTL() *TTLStore { return c.ttl }

// Init rebuilds the index from storage, dropping expired and corrupt entries.
func (c *CacheManager) Init() error {
	ids, err := c.ttl.IDs()
	if err != nil {
		return fmt.Errorf("list cache entries: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]*cacheMeta, len(ids))
	c.totalSize = 0
	c.nextSeq = 0

	for _, id := range ids {
		raw, ok, err := c.ttl.Get(id)
		if err != nil {
			c.log.Warn("load cache entry", zap.String("key", id), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		var entry CacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			c.log.Warn("dropping corrupt cache entry", zap.String("key", id), zap.Error(err))
			c.deleteStored(id)
			continue
		}
		entry.SizeBytes = int64(len(entry.Data))
		c.index[id] = &cacheMeta{
			size:       entry.SizeBytes,
			storedAt:   entry.StoredAt,
			lastAccess: entry.LastAccessedAt,
			seq:        entry.Seq,
		}
		c.totalSize += entry.SizeBytes
		if entry.Seq >= c.nextSeq {
			c.nextSeq = entry.Seq + 1
		}
	}
	if c.totalSize > c.opts.MaxSize {
		c.evictLocked(0)
	}
	c.reportUsageLocked()
	c.log.Debug("cache index rebuilt", zap.Int("entries", len(c.index)), zap.Int64("bytes", c.totalSize))
	return nil
}

// Start schedules the periodic expiry sweep.
func (c *CacheManager) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	schedule := "@every " + c.opts.SweepInterval.String()
	if _, err := c.cron.AddFunc(schedule, func() {
		n, err := c.SweepExpired()
		if err != nil {
			c.log.Warn("cache sweep failed", zap.Error(err))
		}
		if n > 0 {
			c.log.Debug("cache sweep", zap.Int("removed", n))
		}
	}); err != nil {
		return err
	}
	c.cron.Start()
	c.started = true
	return nil
}

// Stop halts the sweep scheduler and waits for a running sweep.
func (c *CacheManager) Stop() {
	c.mu.Lock()
	started := c.started
	c.started = false
	c.mu.Unlock()
	if started {
		<-c.cron.Stop().Done()
	}
}

func checkCacheKey(key string) error {
	if key == "" {
		return invalidArgument("cache key is empty")
	}
	if strings.HasPrefix(key, reservedCacheKeyPrefix) {
		return invalidArgument("cache key %q uses reserved prefix %q", key, reservedCacheKeyPrefix)
	}
	return nil
}

// Put stores entity under key for ttl (DefaultTTL when ttl <= 0), evicting
// least recently used entries when the cache would exceed MaxSize.
func (c *CacheManager) Put(key string, entity any, ttl time.Duration) error {
	if err := checkCacheKey(key); err != nil {
		return err
	}
	data, err := json.Marshal(entity)
	if err != nil {
		return invalidArgument("encode cache value: %v", err)
	}
	size := int64(len(data))
	if size > c.opts.MaxSize {
		return fmt.Errorf("%w: %d > %d bytes", ErrEntryTooLarge, size, c.opts.MaxSize)
	}
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.index[key]; ok {
		c.totalSize -= old.size
		delete(c.index, key)
	}
	if c.totalSize+size > c.opts.MaxSize {
		c.evictLocked(size)
	}

	now := c.now()
	entry := CacheEntry{
		Data:           data,
		StoredAt:       now,
		SizeBytes:      size,
		AccessCount:    1,
		LastAccessedAt: now,
		TTL:            ttl,
		Seq:            c.nextSeq,
	}
	c.nextSeq++
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := c.ttl.Set(key, raw, ttl); err != nil {
		c.log.Warn("persist cache entry", zap.String("key", key), zap.Error(err))
		c.deleteStored(key)
		c.reportUsageLocked()
		return fmt.Errorf("persist cache entry %q: %w", key, err)
	}
	c.index[key] = &cacheMeta{size: size, storedAt: now, lastAccess: now, seq: entry.Seq}
	c.totalSize += size
	c.reportUsageLocked()
	return nil
}

// evictLocked removes entries in LRU order until incoming more bytes fit
// under the headroom target.
func (c *CacheManager) evictLocked(incoming int64) {
	limit := int64(float64(c.opts.MaxSize) * (1 - c.opts.HeadroomFraction))
	if limit < incoming {
		limit = c.opts.MaxSize
	}

	keys := make([]string, 0, len(c.index))
	for k := range c.index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := c.index[keys[i]], c.index[keys[j]]
		if !a.lastAccess.Equal(b.lastAccess) {
			return a.lastAccess.Before(b.lastAccess)
		}
		if !a.storedAt.Equal(b.storedAt) {
			return a.storedAt.Before(b.storedAt)
		}
		return a.seq < b.seq
	})

	evicted := 0
	for _, k := range keys {
		if c.totalSize+incoming <= limit {
			break
		}
		c.totalSize -= c.index[k].size
		delete(c.index, k)
		c.deleteStored(k)
		evicted++
	}
	c.evictions += int64(evicted)
	c.metrics.cacheEvicted(evicted)
	if evicted > 0 {
		c.log.Debug("cache eviction", zap.Int("evicted", evicted), zap.Int64("bytes", c.totalSize))
	}
}

// Get returns the cached bytes for key. A hit refreshes the entry's LRU
// position, which is persisted so ordering survives a restart.
func (c *CacheManager) Get(key string) (json.RawMessage, bool) {
	if checkCacheKey(key) != nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, ok, err := c.ttl.Get(key)
	if err != nil {
		c.log.Warn("read cache entry", zap.String("key", key), zap.Error(err))
		ok = false
	}
	if !ok {
		result := "miss"
		if _, indexed := c.index[key]; indexed {
			result = "expired"
			c.forgetLocked(key)
		}
		c.misses++
		c.metrics.cacheRead(result)
		return nil, false
	}

	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.log.Warn("dropping corrupt cache entry", zap.String("key", key), zap.Error(err))
		c.forgetLocked(key)
		c.deleteStored(key)
		c.misses++
		c.metrics.cacheRead("miss")
		return nil, false
	}

	now := c.now()
	entry.AccessCount++
	entry.LastAccessedAt = now
	if updated, err := json.Marshal(entry); err == nil {
		if err := c.ttl.Replace(key, updated); err != nil {
			c.log.Warn("persist cache access", zap.String("key", key), zap.Error(err))
		}
	}
	if meta, ok := c.index[key]; ok {
		meta.lastAccess = now
	} else {
		// Written by another handle on the same storage.
		size := int64(len(entry.Data))
		c.index[key] = &cacheMeta{size: size, storedAt: entry.StoredAt, lastAccess: now, seq: entry.Seq}
		c.totalSize += size
		c.reportUsageLocked()
	}
	c.hits++
	c.metrics.cacheRead("hit")
	return entry.Data, true
}

// GetAs decodes the cached value for key into T. Undecodable values count as
// a miss.
func GetAs[T any](c *CacheManager, key string) (T, bool) {
	var v T
	data, ok := c.Get(key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		c.log.Warn("decode cached value", zap.String("key", key), zap.Error(err))
		var zero T
		return zero, false
	}
	return v, true
}

// Invalidate removes key. Missing keys are ignored.
func (c *CacheManager) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forgetLocked(key)
	c.deleteStored(key)
	c.reportUsageLocked()
}

// InvalidatePrefix removes every entry whose key starts with prefix and
// returns how many were removed.
func (c *CacheManager) InvalidatePrefix(prefix string) int {
	ids, err := c.ttl.IDs()
	if err != nil {
		c.log.Warn("list cache entries", zap.Error(err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[string]struct{})
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			seen[id] = struct{}{}
		}
	}
	for id := range c.index {
		if strings.HasPrefix(id, prefix) {
			seen[id] = struct{}{}
		}
	}
	for id := range seen {
		c.forgetLocked(id)
		c.deleteStored(id)
	}
	c.reportUsageLocked()
	return len(seen)
}

// Clear removes every entry and resets size and statistics.
func (c *CacheManager) Clear() error {
	ids, err := c.ttl.IDs()
	if err != nil {
		return fmt.Errorf("list cache entries: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var errs error
	for _, id := range ids {
		errs = multierr.Append(errs, c.ttl.Delete(id))
	}
	c.index = make(map[string]*cacheMeta)
	c.totalSize = 0
	c.hits, c.misses, c.evictions = 0, 0, 0
	c.reportUsageLocked()
	return errs
}

// SweepExpired removes every entry whose TTL has elapsed.
func (c *CacheManager) SweepExpired() (int, error) {
	ids, err := c.ttl.Expired(c.now())
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var errs error
	removed := 0
	for _, id := range ids {
		if err := c.ttl.Delete(id); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		c.forgetLocked(id)
		removed++
	}
	c.reportUsageLocked()
	return removed, errs
}

// Stats returns the current counters.
func (c *CacheManager) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.index),
		TotalSize: c.totalSize,
		MaxSize:   c.opts.MaxSize,
	}
}

func (c *CacheManager) forgetLocked(key string) {
	if meta, ok := c.index[key]; ok {
		c.totalSize -= meta.size
		delete(c.index, key)
	}
}

func (c *CacheManager) deleteStored(key string) {
	if err := c.ttl.Delete(key); err != nil {
		c.log.Warn("delete cache entry", zap.String("key", key), zap.Error(err))
	}
}

func (c *CacheManager) reportUsageLocked() {
	c.metrics.cacheUsage(len(c.index), c.totalSize)
}

// ============================================================================
// Blog helpers
// ============================================================================

// PutBlog caches a single blog under its id.
func (c *CacheManager) PutBlog(blog Blog, ttl time.Duration) error {
	if blog.ID == "" {
		return invalidArgument("blog id is empty")
	}
	return c.Put(blogKeyPrefix+blog.ID, blog, ttl)
}

// GetBlog returns the cached blog with id.
func (c *CacheManager) GetBlog(id string) (Blog, bool) {
	return GetAs[Blog](c, blogKeyPrefix+id)
}

// InvalidateBlog drops the cached blog with id.
func (c *CacheManager) InvalidateBlog(id string) {
	c.Invalidate(blogKeyPrefix + id)
}

// PutBlogPage caches a listing page under a caller-chosen key such as
// "page=1&limit=10".
func (c *CacheManager) PutBlogPage(key string, page BlogPage, ttl time.Duration) error {
	return c.Put(blogPageKeyPrefix+key, page, ttl)
}

// GetBlogPage returns a cached listing page.
func (c *CacheManager) GetBlogPage(key string) (BlogPage, bool) {
	return GetAs[BlogPage](c, blogPageKeyPrefix+key)
}

// InvalidateBlogLists drops every cached listing page.
func (c *CacheManager) InvalidateBlogLists() int {
	return c.InvalidatePrefix(blogPageKeyPrefix)
}

// BlogEvents delivers backend change notifications.
type BlogEvents interface {
	OnBlogEvent(fn func(BlogEvent)) (unsubscribe func())
}

// InvalidateOnEvents drops affected entries whenever events reports a change.
func (c *CacheManager) InvalidateOnEvents(events BlogEvents) (unsubscribe func()) {
	return events.OnBlogEvent(func(ev BlogEvent) {
		switch ev.Type {
		case BlogEventUpdated, BlogEventDeleted, BlogEventCreated:
		default:
			return
		}
		if ev.BlogID != "" {
			c.InvalidateBlog(ev.BlogID)
		}
		n := c.InvalidateBlogLists()
		c.log.Debug("cache invalidated by event",
			zap.String("event", ev.Type), zap.String("blog_id", ev.BlogID), zap.Int("pages", n))
	})
}
