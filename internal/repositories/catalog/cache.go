package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/vine/pkg/fingerprint"
	"github.com/Ramsey-B/vine/pkg/matching"
	"github.com/Ramsey-B/vine/pkg/metrics"
	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/redis"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

const cachePrefix = "vine:catalog:"

// CachedCatalog is a read-through Redis cache in front of a Catalog. Cache
// failures fall through to the underlying catalog.
type CachedCatalog struct {
	next   matching.Catalog
	client *redis.Client
	ttl    time.Duration
	logger ectologger.Logger
}

func NewCachedCatalog(next matching.Catalog, client *redis.Client, ttl time.Duration, logger ectologger.Logger) *CachedCatalog {
	return &CachedCatalog{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *CachedCatalog) Ping(ctx context.Context) error {
	return c.next.Ping(ctx)
}

func (c *CachedCatalog) GetProduct(ctx context.Context, id string) (*models.CatalogProduct, error) {
	return c.next.GetProduct(ctx, id)
}

func (c *CachedCatalog) FindByGTIN(ctx context.Context, gtin string) ([]models.CatalogProduct, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.CachedCatalog.FindByGTIN")
	defer span.End()

	return c.readThrough(ctx, cachePrefix+"gtin:"+gtin, func() ([]models.CatalogProduct, error) {
		return c.next.FindByGTIN(ctx, gtin)
	})
}

func (c *CachedCatalog) FindCandidates(ctx context.Context, keys matching.BlockingKeys, limit int) ([]models.CatalogProduct, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.CachedCatalog.FindCandidates")
	defer span.End()

	key := cachePrefix + "block:" + fingerprint.Strings(strings.Join(keys.Keys, ","), keys.Country, strconv.Itoa(limit))
	return c.readThrough(ctx, key, func() ([]models.CatalogProduct, error) {
		return c.next.FindCandidates(ctx, keys, limit)
	})
}

// Invalidate drops every cached catalog read, used after a reindex.
func (c *CachedCatalog) Invalidate(ctx context.Context) error {
	n, err := c.client.DelPrefix(ctx, cachePrefix)
	if err != nil {
		return err
	}
	c.logger.WithContext(ctx).WithField("keys", n).Info("Invalidated catalog cache")
	return nil
}

func (c *CachedCatalog) readThrough(ctx context.Context, key string, load func() ([]models.CatalogProduct, error)) ([]models.CatalogProduct, error) {
	log := c.logger.WithContext(ctx).WithField("cache_key", key)

	raw, err := c.client.Get(ctx, key)
	switch {
	case err == nil:
		var products []models.CatalogProduct
		if jerr := json.Unmarshal(raw, &products); jerr == nil {
			metrics.CatalogCacheRequests.WithLabelValues("hit").Inc()
			return products, nil
		}
		log.Warn("Discarding unreadable catalog cache entry")
	case errors.Is(err, redis.Nil):
	default:
		log.WithError(err).Warn("Catalog cache read failed")
	}
	metrics.CatalogCacheRequests.WithLabelValues("miss").Inc()

	products, err := load()
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(products); err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl); err != nil {
			log.WithError(err).Warn("Catalog cache write failed")
		}
	}
	return products, nil
}
