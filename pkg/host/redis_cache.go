package host

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"github.com/aminofox/hlsplay/pkg/requester"
	"github.com/aminofox/hlsplay/pkg/urlutil"
)

// RedisResourceCache wraps any requester.Fetcher and serves previously
// fetched bytes for an unchanged URL from Redis, decorator-style, for a
// configurable TTL. It is purely an
// optimization: a cache miss or a Redis outage falls through to the
// wrapped Fetcher, and nothing here touches the Requester's retry/backoff
// semantics.
type RedisResourceCache struct {
	client     *redis.Client
	underlying requester.Fetcher
	keyPrefix  string
	ttl        time.Duration
}

// NewRedisResourceCache creates a RedisResourceCache fronting underlying.
func NewRedisResourceCache(client *redis.Client, underlying requester.Fetcher, keyPrefix string, ttl time.Duration) *RedisResourceCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisResourceCache{client: client, underlying: underlying, keyPrefix: keyPrefix, ttl: ttl}
}

// Fetch serves url's bytes from Redis if cached, else delegates to the
// underlying Fetcher and populates the cache on success.
func (c *RedisResourceCache) Fetch(ctx context.Context, url urlutil.Url) ([]byte, error) {
	key := c.cacheKey(url)

	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		return data, nil
	}

	data, err := c.underlying.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	// Best-effort: a cache-write failure must not fail the fetch itself.
	_ = c.client.Set(ctx, key, data, c.ttl).Err()

	return data, nil
}

func (c *RedisResourceCache) cacheKey(url urlutil.Url) string {
	sum := blake2b.Sum256([]byte(url.String()))
	return c.keyPrefix + hex.EncodeToString(sum[:16])
}

var _ requester.Fetcher = (*RedisResourceCache)(nil)
