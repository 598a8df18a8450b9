package currency

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedProvider fronts a RateProvider with a Redis cache. Cache failures
// are logged and fall through to the inner provider.
type CachedProvider struct {
	client *redis.Client
	next   RateProvider
	ttl    time.Duration
}

func NewCachedProvider(client *redis.Client, next RateProvider) *CachedProvider {
	return &CachedProvider{
		client: client,
		next:   next,
		ttl:    15 * time.Minute,
	}
}

func (c *CachedProvider) Rate(ctx context.Context, code string) (float64, error) {
	key := cacheKey(code)

	val, err := c.client.Get(ctx, key).Result()
	if err == nil {
		rate, parseErr := strconv.ParseFloat(val, 64)
		if parseErr == nil {
			return rate, nil
		}
		log.Printf("corrupt cached rate for %s: %v", code, parseErr)
	} else if !errors.Is(err, redis.Nil) {
		log.Printf("redis get error: %v", err)
	}

	rate, err := c.next.Rate(ctx, code)
	if err != nil {
		return 0, err
	}

	if setErr := c.client.Set(ctx, key, strconv.FormatFloat(rate, 'f', -1, 64), c.ttl).Err(); setErr != nil {
		log.Printf("redis set error: %v", setErr)
	}

	return rate, nil
}

func cacheKey(code string) string {
	return fmt.Sprintf("rate:%s", code)
}
