package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
)

const productCostKeyPrefix = "costing:product-cost:"

type RedisProductCostCache struct {
	client *redis.Client
}

func NewRedisProductCostCache(addr string, password string, db int) *RedisProductCostCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisProductCostCache{client: client}
}

// Client exposes the underlying connection so the order locker can share it.
func (c *RedisProductCostCache) Client() *redis.Client {
	return c.client
}

func (c *RedisProductCostCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisProductCostCache) Close() error {
	return c.client.Close()
}

func (c *RedisProductCostCache) Get(ctx context.Context, productID string) (*domain.ProductCostCache, bool, error) {
	val, err := c.client.Get(ctx, productCostKeyPrefix+productID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var entry domain.ProductCostCache
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, false, err
	}
	return &entry, true, nil
}

func (c *RedisProductCostCache) Set(ctx context.Context, value *domain.ProductCostCache, ttl time.Duration) error {
	if value == nil || value.ProductID == "" {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, productCostKeyPrefix+value.ProductID, payload, ttl).Err()
}
