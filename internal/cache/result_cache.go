package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/shieldfi/walletmon/internal/observability"
)

// Config sizes a ResultCache.
type Config struct {
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

func DefaultConfig() Config {
	return Config{MaxEntries: 200, TTL: 60 * time.Second}
}

type entry[V any] struct {
	value   V
	expires time.Time
}

// ResultCache is a bounded TTL cache keyed by string. When full, the least
// recently used entry is evicted. Expired entries are dropped when read.
type ResultCache[V any] struct {
	name       string
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu     sync.Mutex
	lru    *simplelru.LRU[string, entry[V]]
	hits   int64
	misses int64
}

// New creates a cache. name labels its metrics.
func New[V any](name string, cfg Config) *ResultCache[V] {
	def := DefaultConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	lru, err := simplelru.NewLRU[string, entry[V]](cfg.MaxEntries, nil)
	if err != nil {
		panic(fmt.Sprintf("cache: create lru: %v", err))
	}
	return &ResultCache[V]{
		name:       name,
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		now:        time.Now,
		lru:        lru,
	}
}

// Get returns the value for key if present and unexpired.
func (c *ResultCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if ok && c.now().After(e.expires) {
		c.lru.Remove(key)
		ok = false
	}
	if !ok {
		c.misses++
		observability.CacheLookups.WithLabelValues(c.name, "miss").Inc()
		var zero V
		return zero, false
	}
	c.hits++
	observability.CacheLookups.WithLabelValues(c.name, "hit").Inc()
	return e.value, true
}

// Set stores value under key with a fresh TTL.
func (c *ResultCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry[V]{value: value, expires: c.now().Add(c.ttl)})
}

// Invalidate drops key, if present.
func (c *ResultCache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Size       int     `json:"size"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

func (c *ResultCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Stats{
		Size:       c.lru.Len(),
		MaxEntries: c.maxEntries,
		Hits:       c.hits,
		Misses:     c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		st.HitRate = float64(c.hits) / float64(total)
	}
	return st
}
