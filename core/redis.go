package core

import (
	"context"
	"encoding/json"
	"time"

	"argus/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache provides a Redis-backed cache for frequently accessed data:
// IOC lookups, incident snapshots and containment-reason records. Writes are
// last-writer-wins; no locking is applied at this layer.
type RedisCache struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

// NewRedisCache creates a new Redis cache instance.
func NewRedisCache(addr, password string, db, poolSize int, logger *zap.SugaredLogger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	return &RedisCache{
		client: client,
		logger: logger,
	}
}

// NewRedisCacheFromClient wraps an existing client. Used by tests with
// miniredis.
func NewRedisCacheFromClient(client *redis.Client, logger *zap.SugaredLogger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RedisCache{client: client, logger: logger}
}

// Ping tests the Redis connection.
func (rc *RedisCache) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Set stores a value in the cache with expiration.
func (rc *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		rc.logger.Errorf("Failed to marshal cache value for key %s: %v", key, err)
		metrics.CacheErrors.WithLabelValues("redis", "marshal").Inc()
		return err
	}

	err = rc.client.Set(ctx, key, data, expiration).Err()
	if err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "set").Inc()
	}
	return err
}

// Get retrieves a value from the cache. Returns (false, nil) on a miss.
func (rc *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := rc.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			metrics.CacheMisses.WithLabelValues("redis").Inc()
			return false, nil
		}
		rc.logger.Errorf("Failed to get cache value for key %s: %v", key, err)
		metrics.CacheErrors.WithLabelValues("redis", "get").Inc()
		return false, err
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		rc.logger.Errorf("Failed to unmarshal cache value for key %s: %v", key, err)
		metrics.CacheErrors.WithLabelValues("redis", "unmarshal").Inc()
		return false, err
	}

	metrics.CacheHits.WithLabelValues("redis").Inc()
	return true, nil
}

// Delete removes a key from the cache.
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	return rc.client.Del(ctx, key).Err()
}

// Exists checks if a key exists in the cache.
func (rc *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := rc.client.Exists(ctx, key).Result()
	return count > 0, err
}

// Cache key prefixes for different data types.
const (
	CacheKeyIOCPrefix         = "ioc:"
	CacheKeyIncidentPrefix    = "incident:"
	CacheKeyIsolationPrefix   = "isolation:"
	CacheKeyQuarantinePrefix  = "quarantine:"
	CacheKeyRevocationPrefix  = "access_revoked:"
	CacheKeyFirewallPrefix    = "firewall:"
	CacheKeyCorrelationPrefix = "correlation:"
)

// GetIOCCacheKey generates a cache key for threat intel indicators.
func GetIOCCacheKey(iocType IOCType, value string) string {
	return CacheKeyIOCPrefix + IOCKey(iocType, value)
}

// GetIncidentCacheKey generates a cache key for incident snapshots.
func GetIncidentCacheKey(incidentID string) string {
	return CacheKeyIncidentPrefix + incidentID
}

// GetContainmentReasonKey generates a cache key for containment reason
// records. prefix is one of CacheKeyIsolationPrefix, CacheKeyQuarantinePrefix
// or CacheKeyRevocationPrefix.
func GetContainmentReasonKey(prefix, ref string) string {
	return prefix + ref
}

// GetFirewallPolicyKey generates a cache key for a device's firewall policy
// record.
func GetFirewallPolicyKey(deviceRef string) string {
	return CacheKeyFirewallPrefix + deviceRef
}

// GetCorrelationCacheKey generates a cache key for cached correlations.
func GetCorrelationCacheKey(correlationID string) string {
	return CacheKeyCorrelationPrefix + correlationID
}
