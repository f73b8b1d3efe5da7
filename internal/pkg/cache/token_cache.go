package cache

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// TokenCache keeps provider access tokens in Redis until shortly before they
// expire. A miss or a Redis failure only costs a fresh token exchange.
type TokenCache struct {
	rdb *redis.Client
}

func NewTokenCache(rdb *redis.Client) *TokenCache {
	return &TokenCache{rdb: rdb}
}

func (c *TokenCache) GetToken(ctx context.Context, key string) (string, bool) {
	token, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warnf("[Cache] Token lookup failed: %v", err)
		}
		return "", false
	}
	return token, token != ""
}

func (c *TokenCache) SetToken(ctx context.Context, key, token string, ttl time.Duration) {
	if ttl <= 0 || token == "" {
		return
	}
	if err := c.rdb.Set(ctx, key, token, ttl).Err(); err != nil {
		log.Warnf("[Cache] Token store failed: %v", err)
	}
}
