// Package cache provides an in-memory response cache with per-entry TTL,
// strict LRU eviction by last access, and hit/miss accounting.
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTTL is the baseline lifetime for a cached reply.
	DefaultTTL = 30 * time.Minute

	// CommonQuestionTTL applies to replies for allowlisted common questions,
	// which change rarely and are asked often.
	CommonQuestionTTL = 2 * time.Hour

	// DefaultCapacity bounds the number of live entries.
	DefaultCapacity = 100
)

// commonQuestions is the substring allowlist that earns a longer TTL.
// This is the only place query content influences cache policy.
var commonQuestions = []string{
	"what is fafsa",
	"what is the fafsa",
	"when is the deadline",
	"what documents",
	"how do i apply",
	"am i eligible",
	"what is efc",
	"what is sai",
	"how long does",
}

// Entry is one cached value with its bookkeeping fields.
type Entry struct {
	Value          any
	CreatedAt      time.Time
	TTL            time.Duration
	AccessCount    int
	LastAccessedAt time.Time
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Entries          int     `json:"entries"`
	Hits             int64   `json:"hits"`
	Misses           int64   `json:"misses"`
	HitRate          float64 `json:"hit_rate"`
	ApproxMemoryByte int64   `json:"approx_memory_bytes"`
}

// Cache is a bounded TTL+LRU store. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front = most recently accessed
	capacity int
	hits     int64
	misses   int64
	sweep    time.Duration
	now      func() time.Time
}

type node struct {
	key   string
	entry *Entry
	size  int64
}

// New creates a Cache with the given capacity. Capacity <= 0 uses the default.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		sweep:    5 * time.Minute,
		now:      time.Now,
	}
}

// Key derives the cache key for a query under a user scope. Normalization is
// lowercase plus trim; the scope isolates guest and signed-in responses.
// Callers must pass already-sanitized query text.
func Key(query, userID string) string {
	scope := "global"
	if userID != "" {
		scope = "user:" + userID
	}
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(scope + "\x00" + normalized))
	return fmt.Sprintf("%s:%x", scope, sum[:16])
}

// TTLFor returns the TTL policy for a query: the longer common-question TTL
// when the normalized query contains an allowlisted phrase, else the default.
func TTLFor(query string) time.Duration {
	normalized := strings.ToLower(strings.TrimSpace(query))
	for _, phrase := range commonQuestions {
		if strings.Contains(normalized, phrase) {
			return CommonQuestionTTL
		}
	}
	return DefaultTTL
}

// Set inserts or overwrites an entry. If ttl <= 0 the default TTL applies.
// At capacity, the least-recently-accessed entry is evicted first.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.entries[key]; ok {
		n := el.Value.(*node)
		n.entry = &Entry{Value: value, CreatedAt: now, TTL: ttl, LastAccessedAt: now}
		n.size = approxSize(key, value)
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}

	n := &node{
		key:   key,
		entry: &Entry{Value: value, CreatedAt: now, TTL: ttl, LastAccessedAt: now},
		size:  approxSize(key, value),
	}
	c.entries[key] = c.order.PushFront(n)
}

// Get returns the cached value, or nil and false when the key is absent or
// expired. Expired entries are deleted on touch. A hit refreshes the LRU
// position and access bookkeeping.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	n := el.Value.(*node)
	if c.expired(n.entry) {
		c.remove(el)
		c.misses++
		return nil, false
	}

	n.entry.AccessCount++
	n.entry.LastAccessedAt = c.now()
	c.order.MoveToFront(el)
	c.hits++
	return n.entry.Value, true
}

// Has reports whether a live entry exists for key, with the same expiry
// semantics as Get but without touching hit/miss counters or LRU order.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.expired(el.Value.(*node).entry) {
		c.remove(el)
		return false
	}
	return true
}

// Cleanup sweeps all expired entries and returns how many were removed.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*list.Element
	for el := c.order.Front(); el != nil; el = el.Next() {
		if c.expired(el.Value.(*node).entry) {
			expired = append(expired, el)
		}
	}
	for _, el := range expired {
		c.remove(el)
	}
	return len(expired)
}

// Stats returns a snapshot of entry count, hit/miss counters, and an
// approximate memory footprint.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var mem int64
	for el := c.order.Front(); el != nil; el = el.Next() {
		mem += el.Value.(*node).size
	}

	total := c.hits + c.misses
	var rate float64
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Entries:          c.order.Len(),
		Hits:             c.hits,
		Misses:           c.misses,
		HitRate:          rate,
		ApproxMemoryByte: mem,
	}
}

// Run sweeps expired entries on a fixed interval until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := c.Cleanup(); removed > 0 {
				slog.Debug("cache sweep", "removed", removed)
			}
		}
	}
}

func (c *Cache) expired(e *Entry) bool {
	return c.now().Sub(e.CreatedAt) > e.TTL
}

func (c *Cache) evictOldest() {
	if el := c.order.Back(); el != nil {
		c.remove(el)
	}
}

func (c *Cache) remove(el *list.Element) {
	n := el.Value.(*node)
	delete(c.entries, n.key)
	c.order.Remove(el)
}

// approxSize estimates an entry's memory footprint. Only string-ish payloads
// are measured precisely; everything else gets a flat struct overhead.
func approxSize(key string, value any) int64 {
	const overhead = 128
	size := int64(len(key)) + overhead
	switch v := value.(type) {
	case string:
		size += int64(len(v))
	case fmt.Stringer:
		size += int64(len(v.String()))
	case interface{ ApproxSize() int64 }:
		size += v.ApproxSize()
	}
	return size
}
