package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
	"github.com/fnsdeividy/base-arch-sub000/internal/xid"
)

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	sku := strings.ToUpper(strings.TrimSpace(req.SKU))
	name := strings.TrimSpace(req.Name)
	if sku == "" || name == "" {
		return nil, fmt.Errorf("%w: sku and name are required", store.ErrInvalidInput)
	}
	unit, err := parseUnit(req.BaseUnit)
	if err != nil {
		return nil, err
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:       xid.New("prd"),
		SKU:      sku,
		Name:     name,
		BaseUnit: unit,
		Active:   true,
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "product_created", "product", created.ID, created.SKU)
	return created, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, strings.TrimSpace(id))
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if sku := trimOptional(req.SKU); sku != nil {
		if *sku == "" {
			return nil, fmt.Errorf("%w: sku cannot be empty", store.ErrInvalidInput)
		}
		product.SKU = strings.ToUpper(*sku)
	}
	if name := trimOptional(req.Name); name != nil {
		if *name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", store.ErrInvalidInput)
		}
		product.Name = *name
	}
	if req.BaseUnit != nil {
		unit, err := parseUnit(*req.BaseUnit)
		if err != nil {
			return nil, err
		}
		product.BaseUnit = unit
	}
	if req.Active != nil {
		product.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, *product)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "product_updated", "product", saved.ID, saved.SKU)
	return saved, nil
}

// GetProductCost reads through the cache. A miss falls back to the stored
// value and refills the cache.
func (s *Service) GetProductCost(ctx context.Context, productID string) (*domain.ProductCostCache, error) {
	productID = strings.TrimSpace(productID)
	cached, ok, err := s.cache.Get(ctx, productID)
	if err != nil {
		s.log.WithFields(logrus.Fields{"action": "cost_cache_get", "entity_id": productID}).Warn(err.Error())
	}
	if ok {
		return cached, nil
	}

	stored, err := s.repo.GetProductCost(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if _, perr := s.repo.GetProduct(ctx, productID); perr != nil {
				return nil, perr
			}
			return nil, fmt.Errorf("%w: product %s has no finished production yet", store.ErrNotFound, productID)
		}
		return nil, err
	}
	s.refreshCostCache(ctx, stored)
	return stored, nil
}

func (s *Service) refreshCostCache(ctx context.Context, entry *domain.ProductCostCache) {
	if err := s.cache.Set(ctx, entry, s.cacheTTL); err != nil {
		s.log.WithFields(logrus.Fields{"action": "cost_cache_set", "entity_id": entry.ProductID}).Warn(err.Error())
	}
}

func (s *Service) ListFinishedGoods(ctx context.Context, filter store.FinishedGoodsFilter) ([]domain.FinishedGoodsInventory, error) {
	return s.repo.ListFinishedGoods(ctx, filter)
}
