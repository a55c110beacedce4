package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fnsdeividy/base-arch-sub000/internal/costing"
	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
	"github.com/fnsdeividy/base-arch-sub000/internal/units"
	"github.com/fnsdeividy/base-arch-sub000/internal/xid"
)

var maxWastePercent = decimal.NewFromInt(100)

func validWaste(waste decimal.Decimal) error {
	if waste.IsNegative() || waste.GreaterThan(maxWastePercent) {
		return fmt.Errorf("%w: waste_percent must be between 0 and 100", store.ErrInvalidInput)
	}
	return nil
}

func (s *Service) CreateBOM(ctx context.Context, req domain.BOMCreateRequest) (*domain.ProductBOM, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if !req.Qty.IsPositive() {
		return nil, fmt.Errorf("%w: qty must be positive", store.ErrInvalidInput)
	}
	if err := validWaste(req.WastePercent); err != nil {
		return nil, err
	}
	unit, err := parseUnit(req.Unit)
	if err != nil {
		return nil, err
	}

	var created *domain.ProductBOM
	err = s.repo.InTx(ctx, func(q store.Querier) error {
		product, err := q.GetProduct(ctx, strings.TrimSpace(req.ProductID))
		if err != nil {
			return err
		}
		material, err := q.GetMaterial(ctx, strings.TrimSpace(req.MaterialID))
		if err != nil {
			return err
		}
		if _, err := s.converter(q).Convert(ctx, req.Qty, unit, material.BaseUnit, subjectOf(*material)); err != nil {
			return err
		}
		created, err = q.CreateBOM(ctx, domain.ProductBOM{
			ID:           xid.New("bom"),
			ProductID:    product.ID,
			MaterialID:   material.ID,
			Qty:          req.Qty,
			Unit:         unit,
			WastePercent: req.WastePercent,
			Notes:        strings.TrimSpace(req.Notes),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "bom_created", "product_bom", created.ID,
		fmt.Sprintf("product=%s material=%s qty=%s %s", created.ProductID, created.MaterialID, created.Qty, created.Unit))
	return created, nil
}

func (s *Service) ListBOM(ctx context.Context, filter store.BOMFilter) ([]domain.ProductBOM, error) {
	return s.repo.ListBOM(ctx, filter)
}

func (s *Service) UpdateBOM(ctx context.Context, id string, req domain.BOMUpdateRequest) (*domain.ProductBOM, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	var saved *domain.ProductBOM
	err := s.repo.InTx(ctx, func(q store.Querier) error {
		entry, err := q.GetBOM(ctx, id)
		if err != nil {
			return err
		}
		if req.Qty != nil {
			if !req.Qty.IsPositive() {
				return fmt.Errorf("%w: qty must be positive", store.ErrInvalidInput)
			}
			entry.Qty = *req.Qty
		}
		if req.WastePercent != nil {
			if err := validWaste(*req.WastePercent); err != nil {
				return err
			}
			entry.WastePercent = *req.WastePercent
		}
		if req.Unit != nil {
			unit, err := parseUnit(*req.Unit)
			if err != nil {
				return err
			}
			material, err := q.GetMaterial(ctx, entry.MaterialID)
			if err != nil {
				return err
			}
			if _, err := s.converter(q).Convert(ctx, entry.Qty, unit, material.BaseUnit, subjectOf(*material)); err != nil {
				return err
			}
			entry.Unit = unit
		}
		if notes := trimOptional(req.Notes); notes != nil {
			entry.Notes = *notes
		}
		saved, err = q.UpdateBOM(ctx, *entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "bom_updated", "product_bom", saved.ID, "")
	return saved, nil
}

func (s *Service) DeleteBOM(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteBOM(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "bom_deleted", "product_bom", id, "")
	return nil
}

// ScaleRecipe scales a product's BOM, written for BaseRecipeSize of the
// product base unit, to the target output.
func (s *Service) ScaleRecipe(ctx context.Context, productID string, targetQty decimal.Decimal, targetUnitRaw string) (*domain.RecipeScale, error) {
	return s.scaleRecipe(ctx, s.repo, productID, targetQty, targetUnitRaw)
}

func (s *Service) scaleRecipe(ctx context.Context, q store.Querier, productID string, targetQty decimal.Decimal, targetUnitRaw string) (*domain.RecipeScale, error) {
	if !targetQty.IsPositive() {
		return nil, fmt.Errorf("%w: target quantity must be positive", store.ErrInvalidInput)
	}
	product, err := q.GetProduct(ctx, strings.TrimSpace(productID))
	if err != nil {
		return nil, err
	}
	targetUnit, err := parseUnitOr(targetUnitRaw, product.BaseUnit)
	if err != nil {
		return nil, err
	}
	inBase, err := s.converter(q).Convert(ctx, targetQty, targetUnit, product.BaseUnit, units.Subject{})
	if err != nil {
		return nil, err
	}

	entries, err := q.ListBOM(ctx, store.BOMFilter{ProductID: product.ID})
	if err != nil {
		return nil, err
	}

	factor := costing.ScalingFactor(inBase)
	names := make(map[string]string, len(entries))
	lines := make([]domain.MaterialRequirement, 0, len(entries))
	for _, entry := range entries {
		scaled, final := costing.ScaleLine(entry.Qty, entry.WastePercent, factor)
		lines = append(lines, domain.MaterialRequirement{
			MaterialID:   entry.MaterialID,
			MaterialName: s.getMaterialName(ctx, q, names, entry.MaterialID),
			BaseQty:      entry.Qty,
			ScaledQty:    scaled,
			WastePercent: entry.WastePercent,
			FinalQty:     final,
			Unit:         entry.Unit,
		})
	}

	return &domain.RecipeScale{
		ProductID:     product.ID,
		TargetQty:     targetQty,
		TargetUnit:    targetUnit,
		ScalingFactor: factor,
		Lines:         lines,
	}, nil
}
