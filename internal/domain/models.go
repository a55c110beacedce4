package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Unit string

const (
	UnitMilligram  Unit = "mg"
	UnitGram       Unit = "g"
	UnitKilogram   Unit = "kg"
	UnitMilliliter Unit = "ml"
	UnitLiter      Unit = "l"
	UnitPiece      Unit = "unit"
)

type CostingMethod string

const (
	CostingFIFO CostingMethod = "fifo"
	CostingWAC  CostingMethod = "wac"
)

func (m CostingMethod) Valid() bool {
	return m == CostingFIFO || m == CostingWAC
}

type BatchStatus string

const (
	BatchAvailable BatchStatus = "available"
	BatchReserved  BatchStatus = "reserved"
	BatchConsumed  BatchStatus = "consumed"
)

type OrderStatus string

const (
	OrderDraft      OrderStatus = "draft"
	OrderInProgress OrderStatus = "in_progress"
	OrderFinished   OrderStatus = "finished"
	OrderCanceled   OrderStatus = "canceled"
)

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderFinished || s == OrderCanceled
}

type Product struct {
	ID        string    `json:"id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	BaseUnit  Unit      `json:"base_unit"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Material struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	SKU       string           `json:"sku,omitempty"`
	BaseUnit  Unit             `json:"base_unit"`
	Density   *decimal.Decimal `json:"density,omitempty"` // g/ml
	MinStock  decimal.Decimal  `json:"min_stock"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// MaterialBatch is a received lot. Quantity is what remains on hand;
// ReservedQty is the part of it held by in-progress FIFO orders.
type MaterialBatch struct {
	ID              string          `json:"id"`
	MaterialID      string          `json:"material_id"`
	InitialQuantity decimal.Decimal `json:"initial_quantity"`
	Quantity        decimal.Decimal `json:"quantity"`
	ReservedQty     decimal.Decimal `json:"reserved_qty"`
	Unit            Unit            `json:"unit"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	Supplier        string          `json:"supplier,omitempty"`
	LotNumber       string          `json:"lot_number,omitempty"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
	ReceivedAt      time.Time       `json:"received_at"`
	Status          BatchStatus     `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// FreeQty is the quantity that can still be reserved or consumed.
func (b MaterialBatch) FreeQty() decimal.Decimal {
	if b.Status != BatchAvailable {
		return decimal.Zero
	}
	free := b.Quantity.Sub(b.ReservedQty)
	if free.IsNegative() {
		return decimal.Zero
	}
	return free
}

type BatchReservation struct {
	ID                string          `json:"id"`
	ProductionOrderID string          `json:"production_order_id"`
	BatchID           string          `json:"batch_id"`
	MaterialID        string          `json:"material_id"`
	Qty               decimal.Decimal `json:"qty"`
	CreatedAt         time.Time       `json:"created_at"`
}

type ProductBOM struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"product_id"`
	MaterialID   string          `json:"material_id"`
	Qty          decimal.Decimal `json:"qty"`
	Unit         Unit            `json:"unit"`
	WastePercent decimal.Decimal `json:"waste_percent"`
	Notes        string          `json:"notes,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// UnitConversion with an empty MaterialID applies to every material.
type UnitConversion struct {
	ID         string          `json:"id"`
	MaterialID string          `json:"material_id,omitempty"`
	FromUnit   Unit            `json:"from_unit"`
	ToUnit     Unit            `json:"to_unit"`
	Factor     decimal.Decimal `json:"factor"`
	CreatedAt  time.Time       `json:"created_at"`
}

type ProductionOrder struct {
	ID                         string          `json:"id"`
	ProductID                  string          `json:"product_id"`
	PlannedOutputQty           decimal.Decimal `json:"planned_output_qty"`
	PlannedOutputUnit          Unit            `json:"planned_output_unit"`
	ActualOutputQty            decimal.Decimal `json:"actual_output_qty"`
	Status                     OrderStatus     `json:"status"`
	CostingMethodSnapshot      CostingMethod   `json:"costing_method_snapshot"`
	OverheadPercent            decimal.Decimal `json:"overhead_percent"`
	PackagingCostPerOutputUnit decimal.Decimal `json:"packaging_cost_per_output_unit"`
	MaterialCost               decimal.Decimal `json:"material_cost"`
	PackagingCost              decimal.Decimal `json:"packaging_cost"`
	OverheadCost               decimal.Decimal `json:"overhead_cost"`
	TotalCost                  decimal.Decimal `json:"total_cost"`
	UnitCost                   decimal.Decimal `json:"unit_cost"`
	BatchCode                  string          `json:"batch_code"`
	Notes                      string          `json:"notes,omitempty"`
	CreatedAt                  time.Time       `json:"created_at"`
	UpdatedAt                  time.Time       `json:"updated_at"`
	StartedAt                  *time.Time      `json:"started_at,omitempty"`
	FinishedAt                 *time.Time      `json:"finished_at,omitempty"`
	CanceledAt                 *time.Time      `json:"canceled_at,omitempty"`
}

type ProductionConsumption struct {
	ID                string          `json:"id"`
	ProductionOrderID string          `json:"production_order_id"`
	MaterialID        string          `json:"material_id"`
	BatchID           string          `json:"batch_id,omitempty"`
	Qty               decimal.Decimal `json:"qty"`
	Unit              Unit            `json:"unit"`
	UnitCostApplied   decimal.Decimal `json:"unit_cost_applied"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	CreatedAt         time.Time       `json:"created_at"`
}

type FinishedGoodsInventory struct {
	ID                string          `json:"id"`
	ProductID         string          `json:"product_id"`
	ProductionOrderID string          `json:"production_order_id"`
	Qty               decimal.Decimal `json:"qty"`
	Unit              Unit            `json:"unit"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	BatchCode         string          `json:"batch_code"`
	CreatedAt         time.Time       `json:"created_at"`
}

type ProductCostCache struct {
	ProductID        string          `json:"product_id"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	Method           CostingMethod   `json:"method"`
	LastCalculatedAt time.Time       `json:"last_calculated_at"`
}

type ProductionSettings struct {
	CostingMethod          CostingMethod   `json:"costing_method"`
	DefaultOverheadPercent decimal.Decimal `json:"default_overhead_percent"`
	DefaultPackagingCost   decimal.Decimal `json:"default_packaging_cost"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Actor struct {
	Username string
	Role     string
}

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)
