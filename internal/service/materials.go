package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
	"github.com/fnsdeividy/base-arch-sub000/internal/xid"
)

func (s *Service) CreateMaterial(ctx context.Context, req domain.MaterialCreateRequest) (*domain.Material, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", store.ErrInvalidInput)
	}
	unit, err := parseUnit(req.BaseUnit)
	if err != nil {
		return nil, err
	}
	if req.Density != nil && !req.Density.IsPositive() {
		return nil, fmt.Errorf("%w: density must be positive", store.ErrInvalidInput)
	}
	if req.MinStock.IsNegative() {
		return nil, fmt.Errorf("%w: min_stock cannot be negative", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateMaterial(ctx, domain.Material{
		ID:       xid.New("mat"),
		Name:     name,
		SKU:      strings.ToUpper(strings.TrimSpace(req.SKU)),
		BaseUnit: unit,
		Density:  req.Density,
		MinStock: req.MinStock,
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "material_created", "material", created.ID, created.Name)
	return created, nil
}

func (s *Service) GetMaterial(ctx context.Context, id string) (*domain.Material, error) {
	return s.repo.GetMaterial(ctx, strings.TrimSpace(id))
}

func (s *Service) ListMaterials(ctx context.Context, filter store.MaterialFilter) ([]domain.Material, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repo.ListMaterials(ctx, filter)
}

// UpdateMaterial refuses a base unit or density change that would leave
// stock or recipe lines of the material unconvertible.
func (s *Service) UpdateMaterial(ctx context.Context, id string, req domain.MaterialUpdateRequest) (*domain.Material, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	var saved *domain.Material
	err := s.repo.InTx(ctx, func(q store.Querier) error {
		material, err := q.GetMaterial(ctx, strings.TrimSpace(id))
		if err != nil {
			return err
		}
		prevUnit, prevDensity := material.BaseUnit, material.Density

		if name := trimOptional(req.Name); name != nil {
			if *name == "" {
				return fmt.Errorf("%w: name cannot be empty", store.ErrInvalidInput)
			}
			material.Name = *name
		}
		if sku := trimOptional(req.SKU); sku != nil {
			material.SKU = strings.ToUpper(*sku)
		}
		if req.BaseUnit != nil {
			unit, err := parseUnit(*req.BaseUnit)
			if err != nil {
				return err
			}
			material.BaseUnit = unit
		}
		switch {
		case req.ClearDensity:
			material.Density = nil
		case req.Density != nil:
			if !req.Density.IsPositive() {
				return fmt.Errorf("%w: density must be positive", store.ErrInvalidInput)
			}
			material.Density = req.Density
		}
		if req.MinStock != nil {
			if req.MinStock.IsNegative() {
				return fmt.Errorf("%w: min_stock cannot be negative", store.ErrInvalidInput)
			}
			material.MinStock = *req.MinStock
		}

		if material.BaseUnit != prevUnit || !sameDensity(material.Density, prevDensity) {
			if err := s.checkMaterialConvertible(ctx, q, *material); err != nil {
				return err
			}
		}

		saved, err = q.UpdateMaterial(ctx, *material)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "material_updated", "material", saved.ID, saved.Name)
	return saved, nil
}

// checkMaterialConvertible converts every active batch and BOM line of the
// material into its base unit using the material's density.
func (s *Service) checkMaterialConvertible(ctx context.Context, q store.Querier, material domain.Material) error {
	conv := s.converter(q)
	subj := subjectOf(material)

	for _, status := range []domain.BatchStatus{domain.BatchAvailable, domain.BatchReserved} {
		batches, err := q.ListBatches(ctx, store.BatchFilter{MaterialID: material.ID, Status: status})
		if err != nil {
			return err
		}
		for _, b := range batches {
			if _, err := conv.Convert(ctx, b.Quantity, b.Unit, material.BaseUnit, subj); err != nil {
				return fmt.Errorf("%w: batch %s in %s cannot be converted to %s: %v", store.ErrConflict, b.ID, b.Unit, material.BaseUnit, err)
			}
		}
	}

	entries, err := q.ListBOM(ctx, store.BOMFilter{MaterialID: material.ID})
	if err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := conv.Convert(ctx, e.Qty, e.Unit, material.BaseUnit, subj); err != nil {
			return fmt.Errorf("%w: bom entry %s in %s cannot be converted to %s: %v", store.ErrConflict, e.ID, e.Unit, material.BaseUnit, err)
		}
	}
	return nil
}

func sameDensity(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// DeleteMaterial refuses while a recipe uses the material or stock of it is
// still available or reserved.
func (s *Service) DeleteMaterial(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	err := s.repo.InTx(ctx, func(q store.Querier) error {
		if _, err := q.GetMaterial(ctx, id); err != nil {
			return err
		}
		inBOM, err := q.CountBOMByMaterial(ctx, id)
		if err != nil {
			return err
		}
		if inBOM > 0 {
			return fmt.Errorf("%w: material is used by %d BOM entries", store.ErrConflict, inBOM)
		}
		active, err := q.CountActiveBatches(ctx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return fmt.Errorf("%w: material has %d batches in stock", store.ErrConflict, active)
		}
		return q.DeleteMaterial(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, "material_deleted", "material", id, "")
	return nil
}

// stockLot is a batch with its free quantity in its own unit and in the
// unit a requirement is expressed in.
type stockLot struct {
	batch   domain.MaterialBatch
	free    decimal.Decimal
	freeReq decimal.Decimal
}

// materialStock lists available batches of a material oldest first.
// own adds back quantities reserved by the calling order, keyed by batch.
func (s *Service) materialStock(ctx context.Context, q store.Querier, material domain.Material, reqUnit domain.Unit, own map[string]decimal.Decimal, forUpdate bool) ([]stockLot, decimal.Decimal, error) {
	batches, err := q.ListAvailableBatches(ctx, material.ID, forUpdate)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if len(own) > 0 {
		seen := make(map[string]bool, len(batches))
		for _, b := range batches {
			seen[b.ID] = true
		}
		// Fully reserved batches leave the available list; pull ours back in.
		for batchID := range own {
			if seen[batchID] {
				continue
			}
			b, err := q.GetBatch(ctx, batchID)
			if err != nil {
				return nil, decimal.Zero, err
			}
			batches = append(batches, *b)
		}
		sortBatchesFIFO(batches)
	}

	conv := s.converter(q)
	subj := subjectOf(material)
	lots := make([]stockLot, 0, len(batches))
	total := decimal.Zero
	for _, b := range batches {
		free := b.FreeQty()
		if extra, ok := own[b.ID]; ok {
			free = free.Add(extra)
		}
		if !free.IsPositive() {
			continue
		}
		inReq, err := conv.Convert(ctx, free, b.Unit, reqUnit, subj)
		if err != nil {
			return nil, decimal.Zero, err
		}
		lots = append(lots, stockLot{batch: b, free: free, freeReq: inReq})
		total = total.Add(inReq)
	}
	return lots, total, nil
}

// CheckMaterialAvailability compares free stock with a required quantity
// given in unit (defaults to the material base unit).
func (s *Service) CheckMaterialAvailability(ctx context.Context, materialID string, required decimal.Decimal, unitRaw string) (*domain.MaterialAvailability, error) {
	if required.IsNegative() {
		return nil, fmt.Errorf("%w: required quantity cannot be negative", store.ErrInvalidInput)
	}
	material, err := s.repo.GetMaterial(ctx, materialID)
	if err != nil {
		return nil, err
	}
	unit, err := parseUnitOr(unitRaw, material.BaseUnit)
	if err != nil {
		return nil, err
	}
	return s.materialAvailability(ctx, s.repo, *material, required, unit, nil)
}

func (s *Service) materialAvailability(ctx context.Context, q store.Querier, material domain.Material, required decimal.Decimal, unit domain.Unit, own map[string]decimal.Decimal) (*domain.MaterialAvailability, error) {
	lots, total, err := s.materialStock(ctx, q, material, unit, own, false)
	if err != nil {
		return nil, err
	}

	out := &domain.MaterialAvailability{
		MaterialID:   material.ID,
		MaterialName: material.Name,
		Required:     required,
		Available:    total,
		Shortfall:    decimal.Max(decimal.Zero, required.Sub(total)),
		Unit:         unit,
		Batches:      make([]domain.BatchAvailability, 0, len(lots)),
	}
	switch {
	case total.GreaterThanOrEqual(required):
		out.Status = domain.AvailabilityAvailable
	case total.IsPositive():
		out.Status = domain.AvailabilityPartial
	default:
		out.Status = domain.AvailabilityUnavailable
	}
	for _, lot := range lots {
		out.Batches = append(out.Batches, domain.BatchAvailability{
			BatchID:    lot.batch.ID,
			ReceivedAt: lot.batch.ReceivedAt,
			Qty:        lot.freeReq,
			UnitCost:   lot.batch.UnitCost,
		})
	}
	return out, nil
}

// GetLowStockMaterials lists materials whose on-hand quantity across
// available batches, in the material base unit, is at or below their
// minimum. Reservations do not lower the figure.
func (s *Service) GetLowStockMaterials(ctx context.Context) ([]domain.LowStockMaterial, error) {
	materials, err := s.repo.ListMaterials(ctx, store.MaterialFilter{})
	if err != nil {
		return nil, err
	}

	conv := s.converter(s.repo)
	out := make([]domain.LowStockMaterial, 0)
	for _, material := range materials {
		batches, err := s.repo.ListAvailableBatches(ctx, material.ID, false)
		if err != nil {
			return nil, err
		}
		total := decimal.Zero
		for _, b := range batches {
			qty, err := conv.Convert(ctx, b.Quantity, b.Unit, material.BaseUnit, subjectOf(material))
			if err != nil {
				return nil, err
			}
			total = total.Add(qty)
		}
		if total.LessThanOrEqual(material.MinStock) {
			out = append(out, domain.LowStockMaterial{
				Material:   material,
				TotalStock: total,
				Unit:       material.BaseUnit,
			})
		}
	}
	return out, nil
}
