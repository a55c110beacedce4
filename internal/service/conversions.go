package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
	"github.com/fnsdeividy/base-arch-sub000/internal/units"
	"github.com/fnsdeividy/base-arch-sub000/internal/xid"
)

func (s *Service) CreateUnitConversion(ctx context.Context, req domain.UnitConversionCreateRequest) (*domain.UnitConversion, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if !req.Factor.IsPositive() {
		return nil, fmt.Errorf("%w: factor must be positive", store.ErrInvalidInput)
	}
	from, err := parseUnit(req.FromUnit)
	if err != nil {
		return nil, err
	}
	to, err := parseUnit(req.ToUnit)
	if err != nil {
		return nil, err
	}
	if from == to {
		return nil, fmt.Errorf("%w: from_unit and to_unit must differ", store.ErrInvalidInput)
	}

	materialID := strings.TrimSpace(req.MaterialID)
	if materialID != "" {
		if _, err := s.repo.GetMaterial(ctx, materialID); err != nil {
			return nil, err
		}
	}

	created, err := s.repo.CreateUnitConversion(ctx, domain.UnitConversion{
		ID:         xid.New("ucv"),
		MaterialID: materialID,
		FromUnit:   from,
		ToUnit:     to,
		Factor:     req.Factor,
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "unit_conversion_created", "unit_conversion", created.ID,
		fmt.Sprintf("%s->%s x%s material=%s", created.FromUnit, created.ToUnit, created.Factor, created.MaterialID))
	return created, nil
}

func (s *Service) ListUnitConversions(ctx context.Context, filter store.UnitConversionFilter) ([]domain.UnitConversion, error) {
	return s.repo.ListUnitConversions(ctx, filter)
}

func (s *Service) DeleteUnitConversion(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteUnitConversion(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "unit_conversion_deleted", "unit_conversion", id, "")
	return nil
}

// Convert changes qty between units. Without a target unit the quantity is
// normalized to the canonical unit of its family. A request density wins
// over the material's stored one.
func (s *Service) Convert(ctx context.Context, req domain.ConvertRequest) (*domain.ConvertResponse, error) {
	if req.Qty.IsNegative() {
		return nil, fmt.Errorf("%w: qty cannot be negative", store.ErrInvalidInput)
	}
	from, err := parseUnit(req.FromUnit)
	if err != nil {
		return nil, err
	}

	subj := units.Subject{MaterialID: strings.TrimSpace(req.MaterialID), Density: req.Density}
	if subj.MaterialID != "" {
		material, err := s.repo.GetMaterial(ctx, subj.MaterialID)
		if err != nil {
			return nil, err
		}
		if subj.Density == nil {
			subj.Density = material.Density
		}
	}

	conv := s.converter(s.repo)
	var result decimal.Decimal
	var to domain.Unit
	if strings.TrimSpace(req.ToUnit) == "" {
		result, to, err = conv.NormalizeToBase(ctx, req.Qty, from, subj)
	} else {
		to, err = parseUnit(req.ToUnit)
		if err != nil {
			return nil, err
		}
		result, err = conv.Convert(ctx, req.Qty, from, to, subj)
	}
	if err != nil {
		return nil, err
	}

	return &domain.ConvertResponse{Qty: req.Qty, FromUnit: from, Result: result, ToUnit: to}, nil
}
