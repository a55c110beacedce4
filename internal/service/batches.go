package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
	"github.com/fnsdeividy/base-arch-sub000/internal/xid"
)

func (s *Service) CreateBatch(ctx context.Context, req domain.BatchCreateRequest) (*domain.MaterialBatch, error) {
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}
	if req.UnitCost.IsNegative() {
		return nil, fmt.Errorf("%w: unit_cost cannot be negative", store.ErrInvalidInput)
	}
	unit, err := parseUnit(req.Unit)
	if err != nil {
		return nil, err
	}

	var expiresAt *time.Time
	if raw := strings.TrimSpace(req.ExpiresAt); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("%w: expires_at must be YYYY-MM-DD", store.ErrInvalidInput)
		}
		expiresAt = &parsed
	}
	receivedAt := s.now()
	if raw := strings.TrimSpace(req.ReceivedAt); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: received_at must be RFC3339", store.ErrInvalidInput)
		}
		receivedAt = parsed.UTC()
	}

	var created *domain.MaterialBatch
	err = s.repo.InTx(ctx, func(q store.Querier) error {
		material, err := q.GetMaterial(ctx, strings.TrimSpace(req.MaterialID))
		if err != nil {
			return err
		}
		// Stock must be expressible in the material's own unit.
		if _, err := s.converter(q).Convert(ctx, req.Quantity, unit, material.BaseUnit, subjectOf(*material)); err != nil {
			return err
		}
		created, err = q.CreateBatch(ctx, domain.MaterialBatch{
			ID:              xid.New("bat"),
			MaterialID:      material.ID,
			InitialQuantity: req.Quantity,
			Quantity:        req.Quantity,
			Unit:            unit,
			UnitCost:        req.UnitCost,
			TotalCost:       req.Quantity.Mul(req.UnitCost),
			Supplier:        strings.TrimSpace(req.Supplier),
			LotNumber:       strings.TrimSpace(req.LotNumber),
			ExpiresAt:       expiresAt,
			ReceivedAt:      receivedAt,
			Status:          domain.BatchAvailable,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "batch_received", "material_batch", created.ID,
		fmt.Sprintf("material=%s qty=%s %s unit_cost=%s", created.MaterialID, created.Quantity, created.Unit, created.UnitCost))
	return created, nil
}

func (s *Service) GetBatch(ctx context.Context, id string) (*domain.MaterialBatch, error) {
	return s.repo.GetBatch(ctx, strings.TrimSpace(id))
}

func (s *Service) ListBatches(ctx context.Context, filter store.BatchFilter) ([]domain.MaterialBatch, error) {
	switch filter.Status {
	case "", domain.BatchAvailable, domain.BatchReserved, domain.BatchConsumed:
	default:
		return nil, fmt.Errorf("%w: unknown batch status %q", store.ErrInvalidInput, filter.Status)
	}
	return s.repo.ListBatches(ctx, filter)
}

// DeleteBatch removes a batch that never fed production and holds no reservation.
func (s *Service) DeleteBatch(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	err := s.repo.InTx(ctx, func(q store.Querier) error {
		batch, err := q.GetBatch(ctx, id)
		if err != nil {
			return err
		}
		if batch.Status == domain.BatchConsumed {
			return fmt.Errorf("%w: batch is consumed", store.ErrConflict)
		}
		if batch.ReservedQty.IsPositive() {
			return fmt.Errorf("%w: batch is reserved by a production order", store.ErrConflict)
		}
		used, err := q.CountConsumptionsByBatch(ctx, id)
		if err != nil {
			return err
		}
		if used > 0 {
			return fmt.Errorf("%w: batch has %d consumption records", store.ErrConflict, used)
		}
		return q.DeleteBatch(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, "batch_deleted", "material_batch", id, "")
	return nil
}

func sortBatchesFIFO(batches []domain.MaterialBatch) {
	slices.SortStableFunc(batches, func(a, b domain.MaterialBatch) int {
		if c := a.ReceivedAt.Compare(b.ReceivedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
