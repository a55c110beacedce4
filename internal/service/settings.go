package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
)

// effectiveSettings returns the saved settings, or the configured defaults
// when none were saved yet.
func (s *Service) effectiveSettings(ctx context.Context, q store.Querier) (domain.ProductionSettings, error) {
	saved, err := q.GetSettings(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return s.defaults, nil
	}
	if err != nil {
		return domain.ProductionSettings{}, err
	}
	return *saved, nil
}

func (s *Service) GetSettings(ctx context.Context) (domain.ProductionSettings, error) {
	return s.effectiveSettings(ctx, s.repo)
}

// UpdateSettings changes the defaults for orders created afterwards.
// Existing orders keep their snapshot.
func (s *Service) UpdateSettings(ctx context.Context, req domain.SettingsUpdateRequest) (domain.ProductionSettings, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.ProductionSettings{}, err
	}

	var saved domain.ProductionSettings
	err := s.repo.InTx(ctx, func(q store.Querier) error {
		current, err := s.effectiveSettings(ctx, q)
		if err != nil {
			return err
		}
		if req.CostingMethod != nil {
			method := domain.CostingMethod(*req.CostingMethod)
			if !method.Valid() {
				return fmt.Errorf("%w: costing_method must be fifo or wac", store.ErrInvalidInput)
			}
			current.CostingMethod = method
		}
		if req.DefaultOverheadPercent != nil {
			if req.DefaultOverheadPercent.IsNegative() {
				return fmt.Errorf("%w: default_overhead_percent cannot be negative", store.ErrInvalidInput)
			}
			current.DefaultOverheadPercent = *req.DefaultOverheadPercent
		}
		if req.DefaultPackagingCost != nil {
			if req.DefaultPackagingCost.IsNegative() {
				return fmt.Errorf("%w: default_packaging_cost cannot be negative", store.ErrInvalidInput)
			}
			current.DefaultPackagingCost = *req.DefaultPackagingCost
		}
		current.UpdatedAt = s.now()
		if err := q.SaveSettings(ctx, current); err != nil {
			return err
		}
		saved = current
		return nil
	})
	if err != nil {
		return domain.ProductionSettings{}, err
	}
	s.logAudit(ctx, "settings_updated", "production_settings", "default",
		fmt.Sprintf("method=%s overhead=%s packaging=%s", saved.CostingMethod, saved.DefaultOverheadPercent, saved.DefaultPackagingCost))
	return saved, nil
}
