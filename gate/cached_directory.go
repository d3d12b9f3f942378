package gate

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedDirectory wraps a ResourceDirectory with a size-bounded TTL cache.
// Only resource metadata (name -> id, category) is cached; sessions, grants
// and ownership are always read fresh.
type CachedDirectory struct {
	inner ResourceDirectory
	cache *expirable.LRU[string, Resource]
}

// NewCachedDirectory wraps inner. size bounds the number of cached names and
// ttl is how long an entry lives before it is fetched again.
func NewCachedDirectory(inner ResourceDirectory, size int, ttl time.Duration) *CachedDirectory {
	if size <= 0 {
		size = 256
	}
	return &CachedDirectory{
		inner: inner,
		cache: expirable.NewLRU[string, Resource](size, nil, ttl),
	}
}

// FindResourceByName returns the cached resource or fetches it from inner.
// Misses are not cached so a newly registered resource is seen immediately.
func (d *CachedDirectory) FindResourceByName(ctx context.Context, name string) (*Resource, error) {
	if r, ok := d.cache.Get(name); ok {
		return &r, nil
	}
	r, err := d.inner.FindResourceByName(ctx, name)
	if err != nil || r == nil {
		return r, err
	}
	d.cache.Add(name, *r)
	return r, nil
}

// Invalidate drops a single resource name.
func (d *CachedDirectory) Invalidate(name string) {
	d.cache.Remove(name)
}

// InvalidateAll clears the cache.
func (d *CachedDirectory) InvalidateAll() {
	d.cache.Purge()
}
