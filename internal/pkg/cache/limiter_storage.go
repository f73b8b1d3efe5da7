package cache

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/BarberFox/internal/pkg/env"
)

// limiterDatabase keeps rate limiter keys apart from the cache (DB 0).
const limiterDatabase = 1

// NewLimiterStorage returns Redis storage for fiber's limiter middleware on
// the same server as the cache. It returns nil when the cache is unreachable,
// which makes the limiter fall back to in-memory counting.
func NewLimiterStorage() fiber.Storage {
	cacheClient := GetClient()
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		if err := cacheClient.Ping(ctx).Err(); err != nil {
			return nil
		}
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		// Prefer password from the underlying client if present
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: limiterDatabase,
		Reset:    false,
	})
}
