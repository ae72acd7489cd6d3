package compose

import (
	"context"
	"sync"

	"github.com/fabricpilot/vanctl/internal/store"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmoiron/sqlx"
)

// Cache is a copy-on-build LRU of BuildResults, invalidated explicitly on
// application delete and refilled whenever a build runs (§9: "Cached
// applications (C10) -> a copy-on-build LRU with explicit invalidation;
// never mutate a cached Application after publication"). A BuildResult is
// only ever replaced wholesale by a fresh Build/Publish pair -- nothing
// reaches back into a published *instance tree and edits it.
type Cache struct {
	mu    sync.Mutex
	inner *lru.Cache[string, *BuildResult]
}

// NewCache creates a cache holding up to size built applications.
func NewCache(size int) (*Cache, error) {
	inner, err := lru.New[string, *BuildResult](size)
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner}, nil
}

// Get returns the cached build for applicationID, if present.
func (c *Cache) Get(applicationID string) (*BuildResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Get(applicationID)
}

// Publish stores a freshly built application graph, evicting any prior
// entry under the same id.
func (c *Cache) Publish(applicationID string, built *BuildResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(applicationID, built)
}

// Invalidate drops applicationID's cached build.
func (c *Cache) Invalidate(applicationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Remove(applicationID)
}

// CachedBuild returns the cached BuildResult for applicationID if one is
// present, otherwise runs Build and publishes the result before returning
// it. cache may be nil, in which case every call builds directly.
func CachedBuild(ctx context.Context, q sqlx.ExtContext, cache *Cache, applicationID string) (*BuildResult, error) {
	if cache != nil {
		if built, ok := cache.Get(applicationID); ok {
			return built, nil
		}
	}
	built, err := Build(ctx, q, applicationID)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		cache.Publish(applicationID, built)
	}
	return built, nil
}

// DeleteApplication removes an application and invalidates its cached
// build in one step, so a concurrent CachedBuild call can never resurrect
// a deleted application's stale graph from the cache.
func DeleteApplication(ctx context.Context, q sqlx.ExtContext, cache *Cache, applicationID string) error {
	if err := store.DeleteApplication(ctx, q, applicationID); err != nil {
		return err
	}
	if cache != nil {
		cache.Invalidate(applicationID)
	}
	return nil
}
