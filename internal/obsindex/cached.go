package obsindex

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"neodisc/internal/domain"
	"neodisc/internal/metrics"
)

// Cached memoizes successful lookups. Discovery location and tracklet
// assembly issue the same key lookups for an object, so the second round is
// served from memory. Errors are never cached.
//
// The cache holds at most maxEntries results. A full cache first drops its
// expired entries and, if none had expired, starts over empty.
type Cached struct {
	next       Index
	cache      *cache.Cache
	maxEntries int
	metrics    *metrics.Metrics
}

// NewCached wraps next with a lookup cache whose entries expire after ttl.
// m may be nil.
func NewCached(next Index, ttl time.Duration, maxEntries int, m *metrics.Metrics) *Cached {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Cached{
		next:       next,
		cache:      cache.New(ttl, 2*ttl),
		maxEntries: maxEntries,
		metrics:    m,
	}
}

// Len is the number of cached results, expired ones included until the
// next cleanup.
func (c *Cached) Len() int {
	return c.cache.ItemCount()
}

func (c *Cached) LookupByPermanent(ctx context.Context, id string) ([]domain.Observation, error) {
	return c.get(ctx, KindPermanent, id)
}

func (c *Cached) LookupByProvisional(ctx context.Context, id string) ([]domain.Observation, error) {
	return c.get(ctx, KindProvisional, id)
}

func (c *Cached) LookupByTracklet(ctx context.Context, id string) ([]domain.Observation, error) {
	return c.get(ctx, KindTracklet, id)
}

// Flush drops every cached entry.
func (c *Cached) Flush() {
	c.cache.Flush()
}

func (c *Cached) get(ctx context.Context, kind, id string) ([]domain.Observation, error) {
	key := kind + "\x00" + id
	if v, ok := c.cache.Get(key); ok {
		if c.metrics != nil {
			c.metrics.RecordCacheHit(kind)
		}
		return clone(v.([]domain.Observation)), nil
	}
	obs, err := lookup(ctx, c.next, kind, id)
	if err != nil {
		return nil, err
	}
	c.makeRoom()
	c.cache.SetDefault(key, clone(obs))
	return obs, nil
}

func (c *Cached) makeRoom() {
	if c.cache.ItemCount() < c.maxEntries {
		return
	}
	c.cache.DeleteExpired()
	if c.cache.ItemCount() >= c.maxEntries {
		c.cache.Flush()
	}
}

func clone(obs []domain.Observation) []domain.Observation {
	if obs == nil {
		return nil
	}
	return append(make([]domain.Observation, 0, len(obs)), obs...)
}
