package icsfeed

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/maypok86/otter/v2"
)

// cacheEntry holds a fetched feed body plus the validators needed for
// conditional refetching.
type cacheEntry struct {
	Body         []byte
	ETag         string
	LastModified string
	FetchedAt    time.Time
}

// feedCache keeps recent feed bodies in memory so unchanged feeds are
// revalidated with If-None-Match / If-Modified-Since instead of
// re-downloaded, and so a flaky upstream can be served from the last
// good copy.
type feedCache struct {
	cache *otter.Cache[string, cacheEntry]
}

func newFeedCache(ttl time.Duration) *feedCache {
	return &feedCache{
		cache: otter.Must(&otter.Options[string, cacheEntry]{
			MaximumSize:      1_000,
			ExpiryCalculator: otter.ExpiryWriting[string, cacheEntry](ttl),
		}),
	}
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (c *feedCache) get(url string) (cacheEntry, bool) {
	return c.cache.GetIfPresent(cacheKey(url))
}

func (c *feedCache) set(url string, entry cacheEntry) {
	entry.FetchedAt = time.Now()
	c.cache.Set(cacheKey(url), entry)
}
