package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultCacheTTL is how long a cached retrieval result stays valid.
const DefaultCacheTTL = 5 * time.Minute

// CachedCoordinator wraps a Coordinator with a Redis result cache.
// Cache errors degrade to a fresh retrieval pass; they are logged and
// never surfaced to the caller.
type CachedCoordinator struct {
	inner  *Coordinator
	client redis.UniversalClient
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedCoordinator wraps inner with a Redis cache. TTL <= 0 falls
// back to DefaultCacheTTL.
func NewCachedCoordinator(inner *Coordinator, client redis.UniversalClient, ttl time.Duration, logger zerolog.Logger) *CachedCoordinator {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedCoordinator{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "retrieval_cache").Logger(),
	}
}

// Retrieve returns cached results when available, otherwise delegates
// to the wrapped coordinator and caches the outcome. Passes with
// strategy failures are not cached, so a transient backend outage does
// not pin degraded results for the TTL.
func (c *CachedCoordinator) Retrieve(ctx context.Context, q Query) ([]Result, []Failure, error) {
	key := cacheKey(q)

	if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var results []Result
		if err := json.Unmarshal(cached, &results); err == nil {
			c.logger.Debug().Str("user_id", q.UserID).Msg("retrieval cache hit")
			return results, nil, nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding malformed cache entry")
	} else if err != redis.Nil {
		c.logger.Warn().Err(err).Msg("cache read failed")
	}

	results, failures, err := c.inner.Retrieve(ctx, q)
	if err != nil {
		return nil, failures, err
	}

	if len(failures) == 0 {
		payload, err := json.Marshal(results)
		if err == nil {
			if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
				c.logger.Warn().Err(err).Msg("cache write failed")
			}
		}
	}

	return results, failures, nil
}

// Invalidate drops all cached retrieval results for a user. Called
// after memory writes so stale candidates do not outlive the change.
func (c *CachedCoordinator) Invalidate(ctx context.Context, userID string) error {
	iter := c.client.Scan(ctx, 0, "retrieval:"+userID+":*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func cacheKey(q Query) string {
	sum := sha256.Sum256([]byte(q.Text))
	return "retrieval:" + q.UserID + ":" + hex.EncodeToString(sum[:16])
}
