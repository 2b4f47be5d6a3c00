// Package threat maintains the indicator-of-compromise index and enriches
// security events against it. Lookups are cache-aside: a small in-process
// LRU in front of Redis in front of the durable store.
package threat

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"argus/core"
	"argus/metrics"
	"argus/storage"
)

const (
	// iocCacheTTL bounds staleness in both cache tiers. A deactivated
	// indicator keeps matching for at most this long.
	iocCacheTTL = time.Hour

	// hotCacheSize bounds the in-process tier.
	hotCacheSize = 4096
)

// Index answers IOC lookups and accepts intelligence feed updates.
type Index struct {
	hot    *expirable.LRU[string, *core.IOC]
	cache  *core.RedisCache
	store  storage.IOCStore
	logger *zap.SugaredLogger
}

// NewIndex builds the index. cache may be nil to run without the Redis tier.
func NewIndex(store storage.IOCStore, cache *core.RedisCache, logger *zap.SugaredLogger) *Index {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Index{
		hot:    expirable.NewLRU[string, *core.IOC](hotCacheSize, nil, iocCacheTTL),
		cache:  cache,
		store:  store,
		logger: logger,
	}
}

// Upsert validates and persists an indicator, then refreshes both cache
// tiers so the new confidence is visible immediately.
func (idx *Index) Upsert(ctx context.Context, ioc *core.IOC) error {
	if err := ioc.Validate(); err != nil {
		return err
	}
	ioc.Value = core.NormalizeIOCValue(ioc.Type, ioc.Value)

	if err := idx.store.UpsertIOC(ctx, ioc); err != nil {
		return err
	}

	key := ioc.Key()
	idx.hot.Add(key, ioc)
	if idx.cache != nil {
		if err := idx.cache.Set(ctx, core.GetIOCCacheKey(ioc.Type, ioc.Value), ioc, iocCacheTTL); err != nil {
			idx.logger.Warnw("failed to cache IOC", "key", key, "error", err)
		}
	}

	idx.logger.Infow("IOC upserted",
		"type", ioc.Type, "value", ioc.Value,
		"threat_type", ioc.ThreatType, "confidence", ioc.Confidence)
	return nil
}

// Lookup returns the active indicator for (type, value), or nil when none
// is known. Misses are not cached: an indicator added a moment later must
// match on the next lookup.
func (idx *Index) Lookup(ctx context.Context, iocType core.IOCType, value string) (*core.IOC, error) {
	key := core.IOCKey(iocType, value)

	if ioc, ok := idx.hot.Get(key); ok {
		metrics.CacheHits.WithLabelValues("ioc_hot").Inc()
		return ioc, nil
	}
	metrics.CacheMisses.WithLabelValues("ioc_hot").Inc()

	if idx.cache != nil {
		var ioc core.IOC
		found, err := idx.cache.Get(ctx, core.GetIOCCacheKey(iocType, value), &ioc)
		if err != nil {
			// Redis trouble degrades to the durable store
			idx.logger.Warnw("IOC cache read failed", "key", key, "error", err)
		} else if found {
			idx.hot.Add(key, &ioc)
			return &ioc, nil
		}
	}

	ioc, err := idx.store.LookupIOC(ctx, iocType, value)
	if err != nil {
		if errors.Is(err, storage.ErrIOCNotFound) {
			return nil, nil
		}
		return nil, err
	}

	idx.hot.Add(key, ioc)
	if idx.cache != nil {
		if err := idx.cache.Set(ctx, core.GetIOCCacheKey(iocType, value), ioc, iocCacheTTL); err != nil {
			idx.logger.Warnw("failed to cache IOC", "key", key, "error", err)
		}
	}
	return ioc, nil
}
