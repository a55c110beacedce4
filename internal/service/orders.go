package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fnsdeividy/base-arch-sub000/internal/costing"
	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
	"github.com/fnsdeividy/base-arch-sub000/internal/units"
	"github.com/fnsdeividy/base-arch-sub000/internal/xid"
)

// batchCode builds {PRE}{YYMMDD}{seq}: the first three letters of the
// product name, the creation date and a per-product daily sequence.
func batchCode(productName string, at time.Time, seq int) string {
	prefix := make([]rune, 0, 3)
	for _, r := range productName {
		if len(prefix) == 3 {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			prefix = append(prefix, unicode.ToUpper(r))
		}
	}
	for len(prefix) < 3 {
		prefix = append(prefix, 'X')
	}
	return fmt.Sprintf("%s%s%03d", string(prefix), at.UTC().Format("060102"), seq)
}

func (s *Service) CreateProductionOrder(ctx context.Context, req domain.ProductionOrderCreateRequest) (*domain.ProductionOrder, error) {
	if !req.PlannedOutputQty.IsPositive() {
		return nil, fmt.Errorf("%w: planned_output_qty must be positive", store.ErrInvalidInput)
	}

	var created *domain.ProductionOrder
	err := s.repo.InTx(ctx, func(q store.Querier) error {
		product, err := q.GetProduct(ctx, strings.TrimSpace(req.ProductID))
		if err != nil {
			return err
		}
		if !product.Active {
			return fmt.Errorf("%w: product %s is inactive", store.ErrInvalidInput, product.SKU)
		}
		unit, err := parseUnitOr(req.PlannedOutputUnit, product.BaseUnit)
		if err != nil {
			return err
		}
		if _, err := s.converter(q).Convert(ctx, req.PlannedOutputQty, unit, product.BaseUnit, units.Subject{}); err != nil {
			return err
		}

		settings, err := s.effectiveSettings(ctx, q)
		if err != nil {
			return err
		}
		method := settings.CostingMethod
		if raw := strings.TrimSpace(req.CostingMethod); raw != "" {
			method = domain.CostingMethod(strings.ToLower(raw))
			if !method.Valid() {
				return fmt.Errorf("%w: costing_method must be fifo or wac", store.ErrInvalidInput)
			}
		}
		overhead := settings.DefaultOverheadPercent
		if req.OverheadPercent != nil {
			if req.OverheadPercent.IsNegative() {
				return fmt.Errorf("%w: overhead_percent cannot be negative", store.ErrInvalidInput)
			}
			overhead = *req.OverheadPercent
		}
		packaging := settings.DefaultPackagingCost
		if req.PackagingCostPerOutputUnit != nil {
			if req.PackagingCostPerOutputUnit.IsNegative() {
				return fmt.Errorf("%w: packaging_cost_per_output_unit cannot be negative", store.ErrInvalidInput)
			}
			packaging = *req.PackagingCostPerOutputUnit
		}

		now := s.now()
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		sameDay, err := q.CountOrdersForProductOn(ctx, product.ID, dayStart, dayStart.AddDate(0, 0, 1))
		if err != nil {
			return err
		}

		created, err = q.CreateProductionOrder(ctx, domain.ProductionOrder{
			ID:                         xid.New("po"),
			ProductID:                  product.ID,
			PlannedOutputQty:           req.PlannedOutputQty,
			PlannedOutputUnit:          unit,
			Status:                     domain.OrderDraft,
			CostingMethodSnapshot:      method,
			OverheadPercent:            overhead,
			PackagingCostPerOutputUnit: packaging,
			BatchCode:                  batchCode(product.Name, now, sameDay+1),
			Notes:                      strings.TrimSpace(req.Notes),
			CreatedAt:                  now,
			UpdatedAt:                  now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderTransition(created.Status, created.CostingMethodSnapshot)
	s.logAudit(ctx, "production_order_created", "production_order", created.ID,
		fmt.Sprintf("batch=%s qty=%s %s method=%s", created.BatchCode, created.PlannedOutputQty, created.PlannedOutputUnit, created.CostingMethodSnapshot))
	return created, nil
}

func (s *Service) GetProductionOrder(ctx context.Context, id string) (*domain.ProductionOrder, error) {
	return s.repo.GetProductionOrder(ctx, strings.TrimSpace(id))
}

func (s *Service) ListProductionOrders(ctx context.Context, filter store.OrderFilter) ([]domain.ProductionOrder, error) {
	switch filter.Status {
	case "", domain.OrderDraft, domain.OrderInProgress, domain.OrderFinished, domain.OrderCanceled:
	default:
		return nil, fmt.Errorf("%w: unknown order status %q", store.ErrInvalidInput, filter.Status)
	}
	return s.repo.ListProductionOrders(ctx, filter)
}

// UpdateProductionOrder edits a draft. Once started the plan is fixed.
func (s *Service) UpdateProductionOrder(ctx context.Context, id string, req domain.ProductionOrderUpdateRequest) (*domain.ProductionOrder, error) {
	var saved *domain.ProductionOrder
	err := s.withOrderLock(ctx, id, func() error {
		return s.repo.InTx(ctx, func(q store.Querier) error {
			order, err := q.LockProductionOrder(ctx, id)
			if err != nil {
				return err
			}
			if order.Status != domain.OrderDraft {
				return fmt.Errorf("%w: only draft orders can be edited, order is %s", store.ErrInvalidInput, order.Status)
			}

			if req.PlannedOutputQty != nil {
				if !req.PlannedOutputQty.IsPositive() {
					return fmt.Errorf("%w: planned_output_qty must be positive", store.ErrInvalidInput)
				}
				order.PlannedOutputQty = *req.PlannedOutputQty
			}
			if req.PlannedOutputUnit != nil {
				product, err := q.GetProduct(ctx, order.ProductID)
				if err != nil {
					return err
				}
				unit, err := parseUnitOr(*req.PlannedOutputUnit, product.BaseUnit)
				if err != nil {
					return err
				}
				if _, err := s.converter(q).Convert(ctx, order.PlannedOutputQty, unit, product.BaseUnit, units.Subject{}); err != nil {
					return err
				}
				order.PlannedOutputUnit = unit
			}
			if req.OverheadPercent != nil {
				if req.OverheadPercent.IsNegative() {
					return fmt.Errorf("%w: overhead_percent cannot be negative", store.ErrInvalidInput)
				}
				order.OverheadPercent = *req.OverheadPercent
			}
			if req.PackagingCostPerOutputUnit != nil {
				if req.PackagingCostPerOutputUnit.IsNegative() {
					return fmt.Errorf("%w: packaging_cost_per_output_unit cannot be negative", store.ErrInvalidInput)
				}
				order.PackagingCostPerOutputUnit = *req.PackagingCostPerOutputUnit
			}
			if notes := trimOptional(req.Notes); notes != nil {
				order.Notes = *notes
			}

			saved, err = q.UpdateProductionOrder(ctx, *order)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "production_order_updated", "production_order", saved.ID, "")
	return saved, nil
}

// CheckOrderAvailability reports stock for an order's planned output.
// Quantities the order already reserved count as available to it.
func (s *Service) CheckOrderAvailability(ctx context.Context, orderID string) (*domain.OrderAvailability, error) {
	order, err := s.repo.GetProductionOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	own, err := s.ownReservations(ctx, s.repo, order.ID)
	if err != nil {
		return nil, err
	}
	materials, err := s.orderAvailability(ctx, s.repo, order, own)
	if err != nil {
		return nil, err
	}

	out := &domain.OrderAvailability{ProductionOrderID: order.ID, CanStart: order.Status == domain.OrderDraft, Materials: materials}
	for _, m := range materials {
		if m.Status == domain.AvailabilityUnavailable {
			out.CanStart = false
		}
	}
	return out, nil
}

func (s *Service) orderAvailability(ctx context.Context, q store.Querier, order *domain.ProductionOrder, own map[string]decimal.Decimal) ([]domain.MaterialAvailability, error) {
	reqs, err := s.calculateMaterialConsumptions(ctx, q, order.ProductID, order.PlannedOutputQty, string(order.PlannedOutputUnit))
	if err != nil {
		return nil, err
	}
	out := make([]domain.MaterialAvailability, 0, len(reqs))
	for _, req := range reqs {
		material, err := q.GetMaterial(ctx, req.MaterialID)
		if err != nil {
			return nil, err
		}
		avail, err := s.materialAvailability(ctx, q, *material, req.FinalQty, req.Unit, own)
		if err != nil {
			return nil, err
		}
		out = append(out, *avail)
	}
	return out, nil
}

// StartProduction moves a draft order to in_progress. A material with no
// free stock at all blocks the start. FIFO orders reserve their batches
// oldest first, as much as is free.
func (s *Service) StartProduction(ctx context.Context, orderID string) (*domain.ProductionOrder, error) {
	var started *domain.ProductionOrder
	reserved := 0
	err := s.withOrderLock(ctx, orderID, func() error {
		reserved = 0
		return s.repo.InTx(ctx, func(q store.Querier) error {
			order, err := q.LockProductionOrder(ctx, orderID)
			if err != nil {
				return err
			}
			if order.Status != domain.OrderDraft {
				return fmt.Errorf("%w: only draft orders can start, order is %s", store.ErrInvalidInput, order.Status)
			}

			materials, err := s.orderAvailability(ctx, q, order, nil)
			if err != nil {
				return err
			}
			missing := make([]string, 0)
			for _, m := range materials {
				if m.Status == domain.AvailabilityUnavailable {
					missing = append(missing, m.MaterialName)
				}
			}
			if len(missing) > 0 {
				return fmt.Errorf("%w: materials unavailable: %s", store.ErrConflict, strings.Join(missing, ", "))
			}

			now := s.now()
			if order.CostingMethodSnapshot == domain.CostingFIFO {
				for _, m := range materials {
					n, err := s.reserveMaterial(ctx, q, order.ID, m, now)
					if err != nil {
						return err
					}
					reserved += n
				}
			}

			order.Status = domain.OrderInProgress
			order.StartedAt = &now
			started, err = q.UpdateProductionOrder(ctx, *order)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderTransition(started.Status, started.CostingMethodSnapshot)
	s.logAudit(ctx, "production_started", "production_order", started.ID,
		fmt.Sprintf("batch=%s reservations=%d", started.BatchCode, reserved))
	return started, nil
}

func (s *Service) reserveMaterial(ctx context.Context, q store.Querier, orderID string, avail domain.MaterialAvailability, at time.Time) (int, error) {
	material, err := q.GetMaterial(ctx, avail.MaterialID)
	if err != nil {
		return 0, err
	}
	lots, _, err := s.materialStock(ctx, q, *material, avail.Unit, nil, true)
	if err != nil {
		return 0, err
	}

	conv := s.converter(q)
	remaining := avail.Required
	count := 0
	for _, lot := range lots {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, lot.freeReq)
		batchQty := lot.free
		if take.LessThan(lot.freeReq) {
			batchQty, err = conv.Convert(ctx, take, avail.Unit, lot.batch.Unit, subjectOf(*material))
			if err != nil {
				return 0, err
			}
			batchQty = decimal.Min(batchQty, lot.free)
		}
		if !batchQty.IsPositive() {
			continue
		}
		if _, err := q.ReserveBatchQty(ctx, lot.batch.ID, batchQty, at); err != nil {
			return 0, fmt.Errorf("reserve batch %s: %w", lot.batch.ID, err)
		}
		if err := q.CreateReservation(ctx, domain.BatchReservation{
			ID:                xid.New("rsv"),
			ProductionOrderID: orderID,
			BatchID:           lot.batch.ID,
			MaterialID:        material.ID,
			Qty:               batchQty,
			CreatedAt:         at,
		}); err != nil {
			return 0, err
		}
		remaining = remaining.Sub(take)
		count++
	}
	return count, nil
}

// releaseReservations hands an order's reserved quantities back to their batches.
func (s *Service) releaseReservations(ctx context.Context, q store.Querier, orderID string, at time.Time) (int, error) {
	reservations, err := q.ListReservationsByOrder(ctx, orderID)
	if err != nil {
		return 0, err
	}
	for _, r := range reservations {
		if _, err := q.ReleaseBatchQty(ctx, r.BatchID, r.Qty, at); err != nil {
			return 0, fmt.Errorf("release batch %s: %w", r.BatchID, err)
		}
	}
	if len(reservations) == 0 {
		return 0, nil
	}
	return len(reservations), q.DeleteReservationsByOrder(ctx, orderID)
}

// FinishProduction consumes stock for the actual output and books its cost.
// Consumption, order totals, finished goods and the product cost are
// written in one transaction; any failure leaves everything as it was.
func (s *Service) FinishProduction(ctx context.Context, orderID string, req domain.FinishProductionRequest) (*domain.FinishProductionResponse, error) {
	if !req.ActualOutputQty.IsPositive() {
		return nil, fmt.Errorf("%w: actual_output_qty must be positive", store.ErrInvalidInput)
	}

	began := time.Now()
	var out *domain.FinishProductionResponse
	var costEntry domain.ProductCostCache
	err := s.withOrderLock(ctx, orderID, func() error {
		return s.repo.InTx(ctx, func(q store.Querier) error {
			order, err := q.LockProductionOrder(ctx, orderID)
			if err != nil {
				return err
			}
			if order.Status != domain.OrderInProgress {
				return fmt.Errorf("%w: only in_progress orders can finish, order is %s", store.ErrInvalidInput, order.Status)
			}

			now := s.now()
			if _, err := s.releaseReservations(ctx, q, order.ID, now); err != nil {
				return err
			}

			reqs, err := s.calculateMaterialConsumptions(ctx, q, order.ProductID, req.ActualOutputQty, string(order.PlannedOutputUnit))
			if err != nil {
				return err
			}
			plans, materialCost, err := s.planMaterials(ctx, q, reqs, order.CostingMethodSnapshot, nil, true)
			if err != nil {
				return err
			}
			cost, err := costing.Calculate(materialCost, req.ActualOutputQty, order.PackagingCostPerOutputUnit, order.OverheadPercent)
			if err != nil {
				return err
			}

			allocations := make([]domain.MaterialAllocation, 0, len(plans))
			for _, plan := range plans {
				if err := s.consumeMaterials(ctx, q, order.ID, plan, now); err != nil {
					return err
				}
				allocations = append(allocations, plan.allocation)
			}

			order.Status = domain.OrderFinished
			order.FinishedAt = &now
			order.ActualOutputQty = req.ActualOutputQty
			order.MaterialCost = cost.MaterialCost
			order.PackagingCost = cost.PackagingCost
			order.OverheadCost = cost.OverheadCost
			order.TotalCost = cost.TotalCost
			order.UnitCost = cost.UnitCost
			if notes := strings.TrimSpace(req.Notes); notes != "" {
				order.Notes = strings.TrimSpace(order.Notes + "\n" + notes)
			}
			finished, err := q.UpdateProductionOrder(ctx, *order)
			if err != nil {
				return err
			}

			goods, err := q.CreateFinishedGoods(ctx, domain.FinishedGoodsInventory{
				ID:                xid.New("fg"),
				ProductID:         order.ProductID,
				ProductionOrderID: order.ID,
				Qty:               req.ActualOutputQty,
				Unit:              order.PlannedOutputUnit,
				UnitCost:          cost.UnitCost,
				BatchCode:         order.BatchCode,
				CreatedAt:         now,
			})
			if err != nil {
				return err
			}

			costEntry, err = s.updateProductCostCache(ctx, q, order.ProductID, cost.UnitCost, order.CostingMethodSnapshot, now)
			if err != nil {
				return err
			}

			out = &domain.FinishProductionResponse{
				Order:         *finished,
				Cost:          cost,
				Allocations:   allocations,
				FinishedGoods: *goods,
			}
			return nil
		})
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{"action": "finish_production", "entity_id": orderID}).Debugf("finish rejected: %v", err)
		return nil, err
	}

	s.refreshCostCache(ctx, &costEntry)
	s.metrics.ProductionFinished(out.Order.ProductID, out.Order.CostingMethodSnapshot, out.Cost, time.Since(began))
	s.metrics.OrderTransition(out.Order.Status, out.Order.CostingMethodSnapshot)
	s.logAudit(ctx, "production_finished", "production_order", out.Order.ID,
		fmt.Sprintf("batch=%s output=%s %s total=%s unit=%s", out.Order.BatchCode, out.Order.ActualOutputQty, out.Order.PlannedOutputUnit, out.Cost.TotalCost, out.Cost.UnitCost))
	return out, nil
}

// CancelProduction stops a draft or in_progress order and returns any
// reserved stock.
func (s *Service) CancelProduction(ctx context.Context, orderID string, req domain.CancelProductionRequest) (*domain.ProductionOrder, error) {
	var canceled *domain.ProductionOrder
	released := 0
	err := s.withOrderLock(ctx, orderID, func() error {
		released = 0
		return s.repo.InTx(ctx, func(q store.Querier) error {
			order, err := q.LockProductionOrder(ctx, orderID)
			if err != nil {
				return err
			}
			if order.Status.Terminal() {
				return fmt.Errorf("%w: order is already %s", store.ErrInvalidInput, order.Status)
			}

			now := s.now()
			if order.Status == domain.OrderInProgress {
				released, err = s.releaseReservations(ctx, q, order.ID, now)
				if err != nil {
					return err
				}
			}

			order.Status = domain.OrderCanceled
			order.CanceledAt = &now
			if reason := strings.TrimSpace(req.Reason); reason != "" {
				order.Notes = strings.TrimSpace(order.Notes + "\ncanceled: " + reason)
			}
			canceled, err = q.UpdateProductionOrder(ctx, *order)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderTransition(canceled.Status, canceled.CostingMethodSnapshot)
	s.logAudit(ctx, "production_canceled", "production_order", canceled.ID,
		fmt.Sprintf("batch=%s released=%d reason=%s", canceled.BatchCode, released, strings.TrimSpace(req.Reason)))
	return canceled, nil
}

// GetCostBreakdown explains a finished order's cost from its consumption records.
func (s *Service) GetCostBreakdown(ctx context.Context, orderID string) (*domain.CostBreakdown, error) {
	order, err := s.repo.GetProductionOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderFinished {
		return nil, fmt.Errorf("%w: cost breakdown needs a finished order, order is %s", store.ErrInvalidInput, order.Status)
	}
	product, err := s.repo.GetProduct(ctx, order.ProductID)
	if err != nil {
		return nil, err
	}
	consumptions, err := s.repo.ListConsumptionsByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string)
	lines := make([]domain.CostBreakdownLine, 0, len(consumptions))
	for _, c := range consumptions {
		line := domain.CostBreakdownLine{
			MaterialID:      c.MaterialID,
			MaterialName:    s.getMaterialName(ctx, s.repo, names, c.MaterialID),
			BatchID:         c.BatchID,
			Qty:             c.Qty,
			Unit:            c.Unit,
			UnitCostApplied: c.UnitCostApplied,
			TotalCost:       c.TotalCost,
		}
		if c.BatchID != "" {
			if batch, err := s.repo.GetBatch(ctx, c.BatchID); err == nil {
				line.LotNumber = batch.LotNumber
			}
		}
		lines = append(lines, line)
	}

	return &domain.CostBreakdown{
		Order:   *order,
		Product: *product,
		Cost: domain.ProductionCost{
			MaterialCost:  order.MaterialCost,
			PackagingCost: order.PackagingCost,
			OverheadCost:  order.OverheadCost,
			TotalCost:     order.TotalCost,
			UnitCost:      order.UnitCost,
		},
		Materials: lines,
	}, nil
}
