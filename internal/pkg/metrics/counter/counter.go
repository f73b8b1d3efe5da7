package counter

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	billingTotalsKey = "billing:counters"
	billingDailyKey  = "billing:counters:"
	dailyRetention   = 35 * 24 * time.Hour
)

// BillingCounters counts billing events in Redis hashes, one all-time hash
// plus one hash per UTC day.
type BillingCounters struct {
	rdb *redis.Client
	now func() time.Time
}

func NewBillingCounters(rdb *redis.Client) *BillingCounters {
	return &BillingCounters{rdb: rdb, now: time.Now}
}

func dailyKey(day time.Time) string {
	return billingDailyKey + day.UTC().Format("2006-01-02")
}

// Incr increments field in both hashes. Failures are logged only.
func (c *BillingCounters) Incr(ctx context.Context, field string) {
	day := dailyKey(c.now())
	pipe := c.rdb.TxPipeline()
	pipe.HIncrBy(ctx, billingTotalsKey, field, 1)
	pipe.HIncrBy(ctx, day, field, 1)
	pipe.Expire(ctx, day, dailyRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warnf("[Counter] Failed to increment %s: %v", field, err)
	}
}

// Stats is a snapshot of the all-time and today's counters.
type Stats struct {
	Totals map[string]int64 `json:"totals"`
	Today  map[string]int64 `json:"today"`
	Day    string           `json:"day"`
}

func (c *BillingCounters) Stats(ctx context.Context) (*Stats, error) {
	now := c.now().UTC()
	totals, err := c.readHash(ctx, billingTotalsKey)
	if err != nil {
		return nil, err
	}
	today, err := c.readHash(ctx, dailyKey(now))
	if err != nil {
		return nil, err
	}
	return &Stats{Totals: totals, Today: today, Day: now.Format("2006-01-02")}, nil
}

func (c *BillingCounters) readHash(ctx context.Context, key string) (map[string]int64, error) {
	data, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for k, v := range data {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}
