// Package cache is a small Redis-backed response cache for the read
// endpoints. Cache failures are logged and treated as misses; they never
// reach a caller.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// MeetingPatterns are the key patterns invalidated whenever a meeting
// artifact changes.
var MeetingPatterns = []string{"api:/meetings*"}

type Cache struct {
	rdb    *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

func New(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{rdb: rdb, logger: logger, ttl: ttl}
}

// Get unmarshals a cached value into dest, reporting whether it was found.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	payload, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		c.logger.Warn("cache entry undecodable", "key", key, "error", err)
		return false
	}
	return true
}

// Set stores a value under key with the cache TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache set marshal failed", "key", key, "error", err)
		return
	}
	if err := c.rdb.SetEx(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// DeletePattern removes every key matching pattern and returns how many
// were deleted.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) int {
	var deleted int
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn("cache delete failed", "key", iter.Val(), "error", err)
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("cache scan failed", "pattern", pattern, "error", err)
	}
	return deleted
}

// InvalidateMeetings drops all cached meeting reads.
func (c *Cache) InvalidateMeetings(ctx context.Context) {
	for _, pattern := range MeetingPatterns {
		if n := c.DeletePattern(ctx, pattern); n > 0 {
			c.logger.Info("invalidated cache entries", "pattern", pattern, "count", n)
		}
	}
}

// RequestKey derives a cache key from the request path and sorted query
// parameters. The "api:<path>" prefix keeps keys matchable by
// MeetingPatterns; the hash keeps them short.
func RequestKey(r *http.Request) string {
	params := make([]string, 0, len(r.URL.Query()))
	for k, vs := range r.URL.Query() {
		for _, v := range vs {
			params = append(params, k+"="+v)
		}
	}
	sort.Strings(params)
	sum := md5.Sum([]byte(fmt.Sprintf("%v", params)))
	return fmt.Sprintf("api:%s:%s", r.URL.Path, hex.EncodeToString(sum[:]))
}
