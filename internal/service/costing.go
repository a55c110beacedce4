package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fnsdeividy/base-arch-sub000/internal/costing"
	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
	"github.com/fnsdeividy/base-arch-sub000/internal/xid"
)

// CalculateMaterialConsumptions scales the product BOM to an output quantity.
func (s *Service) CalculateMaterialConsumptions(ctx context.Context, productID string, outputQty decimal.Decimal, outputUnit string) ([]domain.MaterialRequirement, error) {
	return s.calculateMaterialConsumptions(ctx, s.repo, productID, outputQty, outputUnit)
}

func (s *Service) calculateMaterialConsumptions(ctx context.Context, q store.Querier, productID string, outputQty decimal.Decimal, outputUnit string) ([]domain.MaterialRequirement, error) {
	scale, err := s.scaleRecipe(ctx, q, productID, outputQty, outputUnit)
	if err != nil {
		return nil, err
	}
	if len(scale.Lines) == 0 {
		return nil, fmt.Errorf("%w: product %s has no BOM", store.ErrInvalidInput, scale.ProductID)
	}
	return scale.Lines, nil
}

// batchDraw is physical stock taken from one batch.
type batchDraw struct {
	batch    domain.MaterialBatch
	qty      decimal.Decimal // requirement unit
	batchQty decimal.Decimal // batch unit
}

type materialPlan struct {
	material   domain.Material
	allocation domain.MaterialAllocation
	draws      []batchDraw
}

// planMaterial allocates one requirement. Stock always leaves oldest batch
// first; method only decides the price put on it.
func (s *Service) planMaterial(ctx context.Context, q store.Querier, req domain.MaterialRequirement, method domain.CostingMethod, own map[string]decimal.Decimal, forUpdate bool) (*materialPlan, error) {
	material, err := q.GetMaterial(ctx, req.MaterialID)
	if err != nil {
		return nil, err
	}
	lots, _, err := s.materialStock(ctx, q, *material, req.Unit, own, forUpdate)
	if err != nil {
		return nil, err
	}

	costLots := make([]costing.Lot, 0, len(lots))
	byID := make(map[string]stockLot, len(lots))
	for _, lot := range lots {
		costLots = append(costLots, costing.Lot{
			ID:         lot.batch.ID,
			ReceivedAt: lot.batch.ReceivedAt,
			Available:  lot.freeReq,
			UnitCost:   lot.free.Mul(lot.batch.UnitCost).Div(lot.freeReq),
		})
		byID[lot.batch.ID] = lot
	}

	draws, err := costing.AllocateFIFO(req.FinalQty, costLots)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", material.Name, err)
	}

	conv := s.converter(q)
	plan := &materialPlan{
		material: *material,
		allocation: domain.MaterialAllocation{
			MaterialID:  material.ID,
			RequiredQty: req.FinalQty,
			Unit:        req.Unit,
			Method:      method,
		},
		draws: make([]batchDraw, 0, len(draws)),
	}
	for _, d := range draws {
		lot := byID[d.LotID]
		batchQty := lot.free
		if !d.Exhausted {
			batchQty, err = conv.Convert(ctx, d.Qty, req.Unit, lot.batch.Unit, subjectOf(*material))
			if err != nil {
				return nil, err
			}
			batchQty = decimal.Min(batchQty, lot.free)
		}
		plan.draws = append(plan.draws, batchDraw{batch: lot.batch, qty: d.Qty, batchQty: batchQty})
	}

	switch method {
	case domain.CostingWAC:
		avg, total, err := costing.AllocateWAC(req.FinalQty, costLots)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", material.Name, err)
		}
		plan.allocation.Draws = []domain.BatchAllocation{{
			Qty:       req.FinalQty,
			Unit:      req.Unit,
			UnitCost:  avg,
			TotalCost: total,
		}}
		plan.allocation.TotalCost = total
	default:
		total := decimal.Zero
		plan.allocation.Draws = make([]domain.BatchAllocation, 0, len(plan.draws))
		for _, d := range plan.draws {
			lineCost := d.batchQty.Mul(d.batch.UnitCost)
			plan.allocation.Draws = append(plan.allocation.Draws, domain.BatchAllocation{
				BatchID:   d.batch.ID,
				LotNumber: d.batch.LotNumber,
				Qty:       d.qty,
				Unit:      req.Unit,
				BatchQty:  d.batchQty,
				BatchUnit: d.batch.Unit,
				UnitCost:  lineCost.Div(d.qty),
				TotalCost: lineCost,
			})
			total = total.Add(lineCost)
		}
		plan.allocation.TotalCost = total
	}
	return plan, nil
}

func (s *Service) planMaterials(ctx context.Context, q store.Querier, reqs []domain.MaterialRequirement, method domain.CostingMethod, own map[string]decimal.Decimal, forUpdate bool) ([]*materialPlan, decimal.Decimal, error) {
	plans := make([]*materialPlan, 0, len(reqs))
	materialCost := decimal.Zero
	for _, req := range reqs {
		plan, err := s.planMaterial(ctx, q, req, method, own, forUpdate)
		if err != nil {
			return nil, decimal.Zero, err
		}
		plans = append(plans, plan)
		materialCost = materialCost.Add(plan.allocation.TotalCost)
	}
	return plans, materialCost, nil
}

// consumeMaterials takes the planned stock out of its batches and records
// what was consumed at which cost. FIFO records one row per batch drawn;
// WAC records a single row per material at the average cost.
func (s *Service) consumeMaterials(ctx context.Context, q store.Querier, orderID string, plan *materialPlan, at time.Time) error {
	for _, d := range plan.draws {
		if _, err := q.DecrementBatch(ctx, d.batch.ID, d.batchQty, at); err != nil {
			return fmt.Errorf("consume batch %s: %w", d.batch.ID, err)
		}
	}

	for _, draw := range plan.allocation.Draws {
		if err := q.CreateConsumption(ctx, domain.ProductionConsumption{
			ID:                xid.New("cns"),
			ProductionOrderID: orderID,
			MaterialID:        plan.material.ID,
			BatchID:           draw.BatchID,
			Qty:               draw.Qty,
			Unit:              draw.Unit,
			UnitCostApplied:   draw.UnitCost,
			TotalCost:         draw.TotalCost,
			CreatedAt:         at,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) updateProductCostCache(ctx context.Context, q store.Querier, productID string, unitCost decimal.Decimal, method domain.CostingMethod, at time.Time) (domain.ProductCostCache, error) {
	entry := domain.ProductCostCache{
		ProductID:        productID,
		UnitCost:         unitCost,
		Method:           method,
		LastCalculatedAt: at,
	}
	return entry, q.UpsertProductCost(ctx, entry)
}

// EstimateOrderCost prices an open order at its planned output against
// current stock. Nothing is reserved or consumed.
func (s *Service) EstimateOrderCost(ctx context.Context, orderID string) (*domain.CostEstimate, error) {
	order, err := s.repo.GetProductionOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() {
		return nil, fmt.Errorf("%w: order is %s", store.ErrInvalidInput, order.Status)
	}

	own, err := s.ownReservations(ctx, s.repo, order.ID)
	if err != nil {
		return nil, err
	}
	reqs, err := s.calculateMaterialConsumptions(ctx, s.repo, order.ProductID, order.PlannedOutputQty, string(order.PlannedOutputUnit))
	if err != nil {
		return nil, err
	}
	plans, materialCost, err := s.planMaterials(ctx, s.repo, reqs, order.CostingMethodSnapshot, own, false)
	if err != nil {
		return nil, err
	}
	cost, err := costing.Calculate(materialCost, order.PlannedOutputQty, order.PackagingCostPerOutputUnit, order.OverheadPercent)
	if err != nil {
		return nil, err
	}

	out := &domain.CostEstimate{
		ProductionOrderID: order.ID,
		Method:            order.CostingMethodSnapshot,
		OutputQty:         order.PlannedOutputQty,
		OutputUnit:        order.PlannedOutputUnit,
		Cost:              cost,
		Allocations:       make([]domain.MaterialAllocation, 0, len(plans)),
	}
	for _, plan := range plans {
		out.Allocations = append(out.Allocations, plan.allocation)
	}
	return out, nil
}

// ownReservations sums an order's reserved quantities per batch.
func (s *Service) ownReservations(ctx context.Context, q store.Querier, orderID string) (map[string]decimal.Decimal, error) {
	reservations, err := q.ListReservationsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	own := make(map[string]decimal.Decimal, len(reservations))
	for _, r := range reservations {
		own[r.BatchID] = own[r.BatchID].Add(r.Qty)
	}
	return own, nil
}
