// Package catalog caches the list of networks supported by the faucet.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fabriguespe/xmtp-faucet-bot/internal/kv"
	"github.com/fabriguespe/xmtp-faucet-bot/internal/metrics"
	"github.com/fabriguespe/xmtp-faucet-bot/internal/reqid"
	"github.com/fabriguespe/xmtp-faucet-bot/pkg/models"
	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"
)

const (
	// CacheKey is the store key holding the JSON-encoded CatalogRecord.
	CacheKey = "supported-networks"
	// StaleAfter is the window used by IsStale.
	StaleAfter = 5 * time.Minute
)

// ErrCatalogUnavailable is returned when the catalog had to be refreshed and
// the faucet service could not be reached.
var ErrCatalogUnavailable = errors.New("network catalog unavailable")

// Fetcher loads the full network list from the faucet service.
type Fetcher interface {
	GetNetworks(ctx context.Context) ([]models.Network, error)
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics records lookups on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// Cache serves the supported networks from a key-value store and refreshes
// the stored snapshot from the faucet service when it is missing or stale.
// Snapshots are always written whole.
type Cache struct {
	store   kv.Store
	fetcher Fetcher
	now     func() time.Time
	metrics *metrics.Metrics
	group   singleflight.Group
}

// New creates a catalog cache.
func New(store kv.Store, fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		store:   store,
		fetcher: fetcher,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsStale reports whether rec must be replaced before use.
// A record is stale only when its sync time lies more than StaleAfter past now,
// so a record written by this process never expires on its own.
// TODO: confirm with the faucet owners whether snapshots older than StaleAfter
// should refresh instead (now - lastSyncedAt > StaleAfter).
func IsStale(rec *models.CatalogRecord, now time.Time) bool {
	return rec.LastSyncedAt > now.Add(StaleAfter).UnixMilli()
}

// Networks returns the supported networks in service order.
func (c *Cache) Networks(ctx context.Context) ([]models.Network, error) {
	logger := reqid.Logger(ctx)

	raw, ok, err := c.store.Get(ctx, CacheKey)
	if err != nil {
		c.metrics.CatalogLookup(metrics.SourceError)
		return nil, fmt.Errorf("read catalog cache: %w", err)
	}

	if ok {
		var rec models.CatalogRecord
		switch err := json.Unmarshal([]byte(raw), &rec); {
		case err != nil:
			logger.Warn().Err(err).Str("key", CacheKey).Msg("Discarding undecodable catalog snapshot")
		case IsStale(&rec, c.now()):
			logger.Debug().Int64("lastSyncedAt", rec.LastSyncedAt).Msg("Catalog snapshot is stale")
		default:
			c.metrics.CatalogLookup(metrics.SourceCache)
			if rec.SupportedNetworks == nil {
				return []models.Network{}, nil
			}
			return rec.SupportedNetworks, nil
		}
	}

	return c.Refresh(ctx)
}

// Refresh fetches the network list from the service and overwrites the
// stored snapshot. Concurrent refreshes share one service call, which is not
// cancelled by any single caller; each caller still returns when its own ctx ends.
func (c *Cache) Refresh(ctx context.Context) ([]models.Network, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(CacheKey, func() (any, error) {
		fresh, err := c.fetcher.GetNetworks(shared)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
		}

		rec := models.NewCatalogRecord(fresh, c.now())
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode catalog snapshot: %w", err)
		}
		if err := c.store.Set(shared, CacheKey, string(data)); err != nil {
			// The fresh list is still good for this message.
			reqid.Logger(shared).Warn().Err(err).Str("key", CacheKey).Msg("Failed to store catalog snapshot")
		}

		reqid.Logger(shared).Info().Int("networks", len(rec.SupportedNetworks)).Msg("Catalog refreshed")
		return rec.SupportedNetworks, nil
	})

	select {
	case <-ctx.Done():
		c.metrics.CatalogLookup(metrics.SourceError)
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			c.metrics.CatalogLookup(metrics.SourceError)
			return nil, res.Err
		}
		c.metrics.CatalogLookup(metrics.SourceRefresh)
		return res.Val.([]models.Network), nil
	}
}
