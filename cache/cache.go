package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/prospect/models"
)

// entry holds a cached response with its creation timestamp.
type entry struct {
	response  *models.SearchResponse
	createdAt time.Time
}

// Cache is a simple in-memory cache for search responses. Identical
// queries within the max-age window are served without touching the
// provider or the scrape queue. Safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
}

// New creates a new Cache with the given maximum number of entries.
// A background goroutine runs every 5 minutes to evict expired entries
// (older than 1 hour).
func New(maxEntries int) *Cache {
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
	}

	go c.cleanupLoop()
	return c
}

// Key derives a cache key from everything that affects the response:
// the tenant, the query, the limit, the filters and the scrape formats.
// The tenant is part of the key because per-tenant overrides change the
// response for the same request fields.
func Key(tenantID string, req *models.SearchRequest) string {
	h := sha256.New()
	for _, part := range []string{
		tenantID,
		req.Query,
		strconv.Itoa(req.Limit),
		req.TBS,
		req.Lang,
		req.Country,
		req.Location,
		req.Filter,
		strings.Join(req.Formats, ","),
	} {
		h.Write([]byte(part))
		h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a cached response if it exists and is younger than
// maxAge. If maxAge <= 0, no cache lookup is performed. Returns the
// response and whether it was a cache hit.
func (c *Cache) Get(key string, maxAge time.Duration) (*models.SearchResponse, bool) {
	if maxAge <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if time.Since(e.createdAt) > maxAge {
		return nil, false
	}

	return e.response, true
}

// Set stores a response in the cache. If the cache is at capacity,
// a random entry is evicted to make room.
func (c *Cache) Set(key string, resp *models.SearchResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict one random entry if at capacity (map iteration is random in Go).
	if len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		response:  resp,
		createdAt: time.Now(),
	}
}

// cleanupLoop evicts entries older than 1 hour every 5 minutes.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-1 * time.Hour)
		c.mu.Lock()
		for k, e := range c.store {
			if e.createdAt.Before(cutoff) {
				delete(c.store, k)
			}
		}
		c.mu.Unlock()
	}
}
