package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AvailabilityStatus string

const (
	AvailabilityAvailable   AvailabilityStatus = "available"
	AvailabilityPartial     AvailabilityStatus = "partial"
	AvailabilityUnavailable AvailabilityStatus = "unavailable"
)

// MaterialRequirement is one scaled BOM line expressed in the BOM unit.
type MaterialRequirement struct {
	MaterialID   string          `json:"material_id"`
	MaterialName string          `json:"material_name"`
	BaseQty      decimal.Decimal `json:"base_qty"`
	ScaledQty    decimal.Decimal `json:"scaled_qty"`
	WastePercent decimal.Decimal `json:"waste_percent"`
	FinalQty     decimal.Decimal `json:"final_qty"`
	Unit         Unit            `json:"unit"`
}

type RecipeScale struct {
	ProductID     string                `json:"product_id"`
	TargetQty     decimal.Decimal       `json:"target_qty"`
	TargetUnit    Unit                  `json:"target_unit"`
	ScalingFactor decimal.Decimal       `json:"scaling_factor"`
	Lines         []MaterialRequirement `json:"lines"`
}

type BatchAvailability struct {
	BatchID    string          `json:"batch_id"`
	ReceivedAt time.Time       `json:"received_at"`
	Qty        decimal.Decimal `json:"qty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

type MaterialAvailability struct {
	MaterialID   string              `json:"material_id"`
	MaterialName string              `json:"material_name"`
	Required     decimal.Decimal     `json:"required"`
	Available    decimal.Decimal     `json:"available"`
	Shortfall    decimal.Decimal     `json:"shortfall"`
	Unit         Unit                `json:"unit"`
	Status       AvailabilityStatus  `json:"status"`
	Batches      []BatchAvailability `json:"batches"`
}

type OrderAvailability struct {
	ProductionOrderID string                 `json:"production_order_id"`
	CanStart          bool                   `json:"can_start"`
	Materials         []MaterialAvailability `json:"materials"`
}

type LowStockMaterial struct {
	Material   Material        `json:"material"`
	TotalStock decimal.Decimal `json:"total_stock"`
	Unit       Unit            `json:"unit"`
}

// BatchAllocation is one draw against a batch. An empty BatchID marks a
// weighted-average draw spread across the material's stock.
type BatchAllocation struct {
	BatchID   string          `json:"batch_id,omitempty"`
	LotNumber string          `json:"lot_number,omitempty"`
	Qty       decimal.Decimal `json:"qty"`
	Unit      Unit            `json:"unit"`
	BatchQty  decimal.Decimal `json:"batch_qty"`
	BatchUnit Unit            `json:"batch_unit"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

type MaterialAllocation struct {
	MaterialID  string            `json:"material_id"`
	RequiredQty decimal.Decimal   `json:"required_qty"`
	Unit        Unit              `json:"unit"`
	Method      CostingMethod     `json:"method"`
	Draws       []BatchAllocation `json:"draws"`
	TotalCost   decimal.Decimal   `json:"total_cost"`
}

type ProductionCost struct {
	MaterialCost  decimal.Decimal `json:"material_cost"`
	PackagingCost decimal.Decimal `json:"packaging_cost"`
	OverheadCost  decimal.Decimal `json:"overhead_cost"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
}

type CostBreakdownLine struct {
	MaterialID      string          `json:"material_id"`
	MaterialName    string          `json:"material_name"`
	BatchID         string          `json:"batch_id,omitempty"`
	LotNumber       string          `json:"lot_number,omitempty"`
	Qty             decimal.Decimal `json:"qty"`
	Unit            Unit            `json:"unit"`
	UnitCostApplied decimal.Decimal `json:"unit_cost_applied"`
	TotalCost       decimal.Decimal `json:"total_cost"`
}

type CostBreakdown struct {
	Order     ProductionOrder     `json:"order"`
	Product   Product             `json:"product"`
	Cost      ProductionCost      `json:"cost"`
	Materials []CostBreakdownLine `json:"materials"`
}

type FinishProductionResponse struct {
	Order         ProductionOrder        `json:"order"`
	Cost          ProductionCost         `json:"cost"`
	Allocations   []MaterialAllocation   `json:"allocations"`
	FinishedGoods FinishedGoodsInventory `json:"finished_goods"`
}

// CostEstimate prices an order against current stock without consuming it.
type CostEstimate struct {
	ProductionOrderID string               `json:"production_order_id"`
	Method            CostingMethod        `json:"method"`
	OutputQty         decimal.Decimal      `json:"output_qty"`
	OutputUnit        Unit                 `json:"output_unit"`
	Cost              ProductionCost       `json:"cost"`
	Allocations       []MaterialAllocation `json:"allocations"`
}
