package keys

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var cmacCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "erx_cmac_cache_hits_total",
	Help: "CMAC key cache lookups by outcome.",
}, []string{"outcome"})

func init() {
	prometheus.MustRegister(cmacCacheHits)
}

type cacheKey struct {
	category CmacCategory
	day      string
}

type cacheEntry struct {
	key      CmacKey
	validDay time.Time
}

// CmacCache caches pseudonymization keys per (category, day). An entry stays
// usable for its valid day plus the configured grace window, so hashes written
// shortly before a day boundary can still be matched; after that it is
// evicted and the key must be re-acquired from the store.
type CmacCache struct {
	mu      sync.Mutex
	grace   time.Duration
	entries map[cacheKey]cacheEntry
	now     func() time.Time
}

// NewCmacCache creates a cache whose entries expire grace after the end of
// their valid day.
func NewCmacCache(grace time.Duration) *CmacCache {
	return &CmacCache{
		grace:   grace,
		entries: make(map[cacheKey]cacheEntry),
		now:     time.Now,
	}
}

// Grace returns the configured grace window.
func (c *CmacCache) Grace() time.Duration { return c.grace }

// Get returns the cached key for (category, day) if present and not expired.
func (c *CmacCache) Get(category CmacCategory, validDate time.Time) (CmacKey, bool) {
	day := ValidDay(validDate)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked()

	entry, ok := c.entries[cacheKey{category, day.Format("2006-01-02")}]
	if !ok {
		cmacCacheHits.WithLabelValues("miss").Inc()
		return nil, false
	}
	cmacCacheHits.WithLabelValues("hit").Inc()
	return entry.key, true
}

// Put stores the key for (category, day).
func (c *CmacCache) Put(category CmacCategory, validDate time.Time, key CmacKey) {
	day := ValidDay(validDate)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{category, day.Format("2006-01-02")}] = cacheEntry{key: key, validDay: day}
}

// Len returns the number of live entries, evicting expired ones first.
func (c *CmacCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked()
	return len(c.entries)
}

func (c *CmacCache) evictLocked() {
	deadline := c.now()
	for k, entry := range c.entries {
		// usable window: [validDay, validDay+24h+grace)
		if entry.validDay.Add(24*time.Hour + c.grace).Before(deadline) {
			delete(c.entries, k)
		}
	}
}
