package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
)

func newMiniredisCache(t *testing.T) (*RedisProductCostCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	c := NewRedisProductCostCache(srv.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	return c, srv
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c, srv := newMiniredisCache(t)
	ctx := context.Background()
	calculated := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	err := c.Set(ctx, &domain.ProductCostCache{
		ProductID:        "prd-1",
		UnitCost:         decimal.RequireFromString("0.3168"),
		Method:           domain.CostingWAC,
		LastCalculatedAt: calculated,
	}, 5*time.Minute)
	if err != nil {
		t.Fatalf("set: %v", err)
	}

	key := productCostKeyPrefix + "prd-1"
	if !srv.Exists(key) {
		t.Fatalf("expected key %s in redis, have %v", key, srv.Keys())
	}
	if ttl := srv.TTL(key); ttl != 5*time.Minute {
		t.Fatalf("expected 5m ttl, got %s", ttl)
	}

	got, ok, err := c.Get(ctx, "prd-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !got.UnitCost.Equal(decimal.RequireFromString("0.3168")) || got.Method != domain.CostingWAC {
		t.Fatalf("unexpected cached value %+v", got)
	}
	if !got.LastCalculatedAt.Equal(calculated) {
		t.Fatalf("expected calculated at %s, got %s", calculated, got.LastCalculatedAt)
	}

	srv.FastForward(6 * time.Minute)
	if _, ok, err := c.Get(ctx, "prd-1"); err != nil || ok {
		t.Fatalf("expected miss after ttl, ok=%v err=%v", ok, err)
	}
}

func TestRedisCacheMissAndCorruptEntry(t *testing.T) {
	c, srv := newMiniredisCache(t)
	ctx := context.Background()

	if got, ok, err := c.Get(ctx, "prd-unknown"); err != nil || ok || got != nil {
		t.Fatalf("expected clean miss, got %+v ok=%v err=%v", got, ok, err)
	}

	if err := srv.Set(productCostKeyPrefix+"prd-2", "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}
	if _, ok, err := c.Get(ctx, "prd-2"); err == nil || ok {
		t.Fatalf("expected decode error for corrupt entry, ok=%v err=%v", ok, err)
	}
}

func TestRedisCacheSetIgnoresEmptyProduct(t *testing.T) {
	c, srv := newMiniredisCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, nil, time.Minute); err != nil {
		t.Fatalf("nil value: %v", err)
	}
	if err := c.Set(ctx, &domain.ProductCostCache{UnitCost: decimal.NewFromInt(1)}, time.Minute); err != nil {
		t.Fatalf("empty product id: %v", err)
	}
	if keys := srv.Keys(); len(keys) != 0 {
		t.Fatalf("expected nothing written, got %v", keys)
	}
}

func TestRedisCachePingFailsWhenServerDown(t *testing.T) {
	c, srv := newMiniredisCache(t)
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err == nil {
		t.Fatalf("expected ping to fail once the server is gone")
	}
}
