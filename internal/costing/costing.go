// Package costing holds the arithmetic of production costing: recipe
// scaling, FIFO draws, weighted average cost and the cost rollup. It never
// touches storage; callers load lots and persist results.
package costing

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
)

// BaseRecipeSize is the output quantity, in the product base unit, that BOM lines are written for.
var BaseRecipeSize = decimal.NewFromInt(100)

var hundred = decimal.NewFromInt(100)

// ScalingFactor converts a target output already expressed in the product base unit.
func ScalingFactor(targetInBase decimal.Decimal) decimal.Decimal {
	return targetInBase.Div(BaseRecipeSize)
}

// ScaleLine returns the scaled quantity and the quantity including waste.
func ScaleLine(qty, wastePercent, factor decimal.Decimal) (scaled, final decimal.Decimal) {
	scaled = qty.Mul(factor)
	final = scaled.Mul(decimal.NewFromInt(1).Add(wastePercent.Div(hundred)))
	return scaled, final
}

// Lot is a batch seen in the unit of the requirement being allocated.
type Lot struct {
	ID         string
	ReceivedAt time.Time
	Available  decimal.Decimal
	UnitCost   decimal.Decimal
}

type Draw struct {
	LotID     string
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
	TotalCost decimal.Decimal
	// Exhausted is set when the draw takes everything the lot had.
	Exhausted bool
}

func compareLots(a, b Lot) int {
	if c := a.ReceivedAt.Compare(b.ReceivedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// AllocateFIFO draws required from the oldest lots first. Older lots are
// always drained before a newer one is touched.
func AllocateFIFO(required decimal.Decimal, lots []Lot) ([]Draw, error) {
	if required.IsNegative() {
		return nil, fmt.Errorf("%w: negative requirement", store.ErrInvalidInput)
	}
	ordered := slices.Clone(lots)
	slices.SortStableFunc(ordered, compareLots)

	total := decimal.Zero
	for _, lot := range ordered {
		if lot.Available.IsPositive() {
			total = total.Add(lot.Available)
		}
	}
	if total.LessThan(required) {
		return nil, fmt.Errorf("%w: required %s, available %s", store.ErrInsufficientStock, required, total)
	}

	remaining := required
	draws := make([]Draw, 0, len(ordered))
	for _, lot := range ordered {
		if !remaining.IsPositive() {
			break
		}
		if !lot.Available.IsPositive() {
			continue
		}
		take := decimal.Min(lot.Available, remaining)
		draws = append(draws, Draw{
			LotID:     lot.ID,
			Qty:       take,
			UnitCost:  lot.UnitCost,
			TotalCost: take.Mul(lot.UnitCost),
			Exhausted: take.Equal(lot.Available),
		})
		remaining = remaining.Sub(take)
	}
	return draws, nil
}

// WeightedAverage returns sum(q*c)/sum(q) over lots with stock.
func WeightedAverage(lots []Lot) (decimal.Decimal, error) {
	qty := decimal.Zero
	value := decimal.Zero
	for _, lot := range lots {
		if !lot.Available.IsPositive() {
			continue
		}
		qty = qty.Add(lot.Available)
		value = value.Add(lot.Available.Mul(lot.UnitCost))
	}
	if qty.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: no stock to average", store.ErrInsufficientStock)
	}
	return value.Div(qty), nil
}

// AllocateWAC prices required at the weighted average of all lots.
func AllocateWAC(required decimal.Decimal, lots []Lot) (unitCost, totalCost decimal.Decimal, err error) {
	available := decimal.Zero
	for _, lot := range lots {
		if lot.Available.IsPositive() {
			available = available.Add(lot.Available)
		}
	}
	if available.LessThan(required) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: required %s, available %s", store.ErrInsufficientStock, required, available)
	}
	avg, err := WeightedAverage(lots)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return avg, required.Mul(avg), nil
}

// Calculate rolls material, packaging and overhead into totals.
func Calculate(materialCost, outputQty, packagingPerUnit, overheadPercent decimal.Decimal) (domain.ProductionCost, error) {
	if !outputQty.IsPositive() {
		return domain.ProductionCost{}, fmt.Errorf("%w: output quantity must be positive", store.ErrInvalidInput)
	}
	packaging := packagingPerUnit.Mul(outputQty)
	overhead := materialCost.Mul(overheadPercent).Div(hundred)
	total := materialCost.Add(packaging).Add(overhead)
	return domain.ProductionCost{
		MaterialCost:  materialCost,
		PackagingCost: packaging,
		OverheadCost:  overhead,
		TotalCost:     total,
		UnitCost:      total.Div(outputQty),
	}, nil
}
