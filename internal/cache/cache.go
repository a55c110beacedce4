package cache

import (
	"context"
	"time"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
)

// ProductCostCache is a read-through cache in front of the stored product cost.
type ProductCostCache interface {
	Get(ctx context.Context, productID string) (*domain.ProductCostCache, bool, error)
	Set(ctx context.Context, value *domain.ProductCostCache, ttl time.Duration) error
}

type NoopProductCostCache struct{}

func (NoopProductCostCache) Get(_ context.Context, _ string) (*domain.ProductCostCache, bool, error) {
	return nil, false, nil
}

func (NoopProductCostCache) Set(_ context.Context, _ *domain.ProductCostCache, _ time.Duration) error {
	return nil
}
