package datasets

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/interfaces"
	"github.com/patrickmn/go-cache"
)

var (
	_ interfaces.Registry    = (*CachedRegistry)(nil)
	_ interfaces.PriceSource = (*CachedPrices)(nil)
)

// DefaultCacheTTL is how long live query results are reused.
const DefaultCacheTTL = 6 * time.Hour

// CachedRegistry memoizes successful registry queries. Failures are never
// cached so an outage clears as soon as the dataset answers again.
type CachedRegistry struct {
	next  interfaces.Registry
	cache *cache.Cache
}

// NewCachedRegistry wraps next with a TTL cache.
func NewCachedRegistry(next interfaces.Registry, ttl time.Duration) *CachedRegistry {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedRegistry{next: next, cache: cache.New(ttl, 2*ttl)}
}

// SearchByBrand implements interfaces.Registry
func (c *CachedRegistry) SearchByBrand(ctx context.Context, term string, limit int) ([]entities.RegistryRecord, error) {
	return c.lookup(ctx, "brand", term, limit, c.next.SearchByBrand)
}

// SearchByIngredient implements interfaces.Registry
func (c *CachedRegistry) SearchByIngredient(ctx context.Context, term string, limit int) ([]entities.RegistryRecord, error) {
	return c.lookup(ctx, "ingredient", term, limit, c.next.SearchByIngredient)
}

type searchFunc func(context.Context, string, int) ([]entities.RegistryRecord, error)

func (c *CachedRegistry) lookup(ctx context.Context, kind, term string, limit int, fetch searchFunc) ([]entities.RegistryRecord, error) {
	key := fmt.Sprintf("%s|%d|%s", kind, limit, strings.ToUpper(strings.TrimSpace(term)))
	if v, ok := c.cache.Get(key); ok {
		if records, ok := v.([]entities.RegistryRecord); ok {
			return slices.Clone(records), nil
		}
	}

	records, err := fetch(ctx, term, limit)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, slices.Clone(records))
	return records, nil
}

// ItemCount returns the number of cached queries.
func (c *CachedRegistry) ItemCount() int {
	return c.cache.ItemCount()
}

// CachedPrices memoizes successful price lookups per registry id.
type CachedPrices struct {
	next  interfaces.PriceSource
	cache *cache.Cache
}

// NewCachedPrices wraps next with a TTL cache.
func NewCachedPrices(next interfaces.PriceSource, ttl time.Duration) *CachedPrices {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedPrices{next: next, cache: cache.New(ttl, 2*ttl)}
}

// PricesFor implements interfaces.PriceSource
func (c *CachedPrices) PricesFor(ctx context.Context, registryID string) ([]entities.PriceRecord, error) {
	if v, ok := c.cache.Get(registryID); ok {
		if rows, ok := v.([]entities.PriceRecord); ok {
			return slices.Clone(rows), nil
		}
	}

	rows, err := c.next.PricesFor(ctx, registryID)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(registryID, slices.Clone(rows))
	return rows, nil
}

// ItemCount returns the number of cached registry ids.
func (c *CachedPrices) ItemCount() int {
	return c.cache.ItemCount()
}
