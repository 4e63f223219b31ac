package data

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CameraCache wraps CameraModel's address lookups with a bounded LRU cache,
// so a camera that reconnects frequently does not round-trip the store on
// every classification.
type CameraCache struct {
	cameras CameraModel
	cache   *lru.Cache[string, *Camera]
}

// NewCameraCache builds a cache holding up to size resolved addresses.
func NewCameraCache(cameras CameraModel, size int) (*CameraCache, error) {
	c, err := lru.New[string, *Camera](size)
	if err != nil {
		return nil, err
	}
	return &CameraCache{cameras: cameras, cache: c}, nil
}

func (c *CameraCache) ByExactAddress(ctx context.Context, addr string) (*Camera, error) {
	if cam, ok := c.cache.Get(addr); ok {
		return cam, nil
	}
	cam, err := c.cameras.GetByExactAddress(ctx, addr)
	if err != nil {
		return nil, err
	}
	c.cache.Add(addr, cam)
	return cam, nil
}

func (c *CameraCache) ByWildcardHost(ctx context.Context, host string) (*Camera, error) {
	key := host + wildcardSuffix
	if cam, ok := c.cache.Get(key); ok {
		return cam, nil
	}
	cam, err := c.cameras.GetByWildcardHost(ctx, host)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cam)
	return cam, nil
}

// Invalidate drops any cached entry for a camera's address. The cache does
// not observe camera deletion or deactivation by itself: an entry stays
// until Invalidate removes it or the LRU evicts it.
func (c *CameraCache) Invalidate(addr string) {
	c.cache.Remove(addr)
}
