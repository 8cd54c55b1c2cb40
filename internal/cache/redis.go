package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stwalsh4118/siteplan/internal/logger"
)

const redisPrefix = "siteplan:"

// Redis is the shared cache tier. Values are JSON with a TTL. Region
// invalidation is left to the version in the key: once a region is promoted
// its old keys are never read again and expire on their own.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// OpenRedis connects a client. An empty addr returns nil.
func OpenRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// NewRedis wraps a client as a cache tier.
func NewRedis(client *redis.Client, ttl time.Duration, log *logger.Logger) *Redis {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Redis{client: client, ttl: ttl, log: log.WithComponent("cache")}
}

// Get reads an entry. Errors other than a missing key are logged and count
// as a miss.
func (r *Redis) Get(ctx context.Context, key Key) (*Entry, bool) {
	raw, err := r.client.Get(ctx, redisPrefix+key.String()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("Redis cache read failed", map[string]interface{}{
				"key":   key.String(),
				"error": err.Error(),
			})
		}
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		r.log.Warn("Discarding undecodable cache entry", map[string]interface{}{
			"key":   key.String(),
			"error": err.Error(),
		})
		return nil, false
	}
	return &e, true
}

// Set writes an entry. Failures are logged; the cache is best effort.
func (r *Redis) Set(ctx context.Context, key Key, e *Entry) {
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, redisPrefix+key.String(), raw, r.ttl).Err(); err != nil {
		r.log.Warn("Redis cache write failed", map[string]interface{}{
			"key":   key.String(),
			"error": err.Error(),
		})
	}
}

// InvalidateRegion is a no-op; see Redis.
func (r *Redis) InvalidateRegion(context.Context, string) {}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
