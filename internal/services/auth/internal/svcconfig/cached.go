package svcconfig

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cached keeps successful lookups of the wrapped store for ttl. Misses are
// not cached so a newly added configuration is picked up on the next login.
type Cached struct {
	next  Store
	ttl   time.Duration
	cache *ristretto.Cache[string, ProviderConfig]
}

func NewCached(next Store, ttl time.Duration) *Cached {
	c, err := ristretto.NewCache(&ristretto.Config[string, ProviderConfig]{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to create service config cache: %v", err))
	}

	return &Cached{
		next:  next,
		ttl:   ttl,
		cache: c,
	}
}

func (c *Cached) Get(ctx context.Context, service string) (ProviderConfig, error) {
	if cfg, ok := c.cache.Get(service); ok {
		return cfg, nil
	}

	cfg, err := c.next.Get(ctx, service)
	if err != nil {
		return ProviderConfig{}, err
	}

	c.cache.SetWithTTL(service, cfg, 1, c.ttl)
	return cfg, nil
}

// Wait blocks until pending cache writes are applied.
func (c *Cached) Wait() {
	c.cache.Wait()
}

func (c *Cached) Close() {
	c.cache.Close()
}
