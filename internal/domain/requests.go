package domain

import "github.com/shopspring/decimal"

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type OperatorCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=64"`
	Password string `json:"password" validate:"required,min=6"`
}

type OperatorUser struct {
	Username  string `json:"username"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

type ProductCreateRequest struct {
	SKU      string `json:"sku" validate:"required,max=64"`
	Name     string `json:"name" validate:"required,max=200"`
	BaseUnit string `json:"base_unit" validate:"required"`
}

type ProductUpdateRequest struct {
	SKU      *string `json:"sku,omitempty" validate:"omitempty,max=64"`
	Name     *string `json:"name,omitempty" validate:"omitempty,max=200"`
	BaseUnit *string `json:"base_unit,omitempty"`
	Active   *bool   `json:"active,omitempty"`
}

type MaterialCreateRequest struct {
	Name     string           `json:"name" validate:"required,max=200"`
	SKU      string           `json:"sku" validate:"max=64"`
	BaseUnit string           `json:"base_unit" validate:"required"`
	Density  *decimal.Decimal `json:"density,omitempty" validate:"omitempty,gt=0"`
	MinStock decimal.Decimal  `json:"min_stock" validate:"gte=0"`
}

type MaterialUpdateRequest struct {
	Name         *string          `json:"name,omitempty" validate:"omitempty,max=200"`
	SKU          *string          `json:"sku,omitempty" validate:"omitempty,max=64"`
	BaseUnit     *string          `json:"base_unit,omitempty"`
	Density      *decimal.Decimal `json:"density,omitempty" validate:"omitempty,gt=0"`
	ClearDensity bool             `json:"clear_density,omitempty"`
	MinStock     *decimal.Decimal `json:"min_stock,omitempty" validate:"omitempty,gte=0"`
}

// BatchCreateRequest dates: ExpiresAt is YYYY-MM-DD, ReceivedAt is RFC3339 and defaults to now.
type BatchCreateRequest struct {
	MaterialID string          `json:"material_id" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity" validate:"gt=0"`
	Unit       string          `json:"unit" validate:"required"`
	UnitCost   decimal.Decimal `json:"unit_cost" validate:"gte=0"`
	Supplier   string          `json:"supplier" validate:"max=200"`
	LotNumber  string          `json:"lot_number" validate:"max=100"`
	ExpiresAt  string          `json:"expires_at"`
	ReceivedAt string          `json:"received_at"`
}

type BOMCreateRequest struct {
	ProductID    string          `json:"product_id" validate:"required"`
	MaterialID   string          `json:"material_id" validate:"required"`
	Qty          decimal.Decimal `json:"qty" validate:"gt=0"`
	Unit         string          `json:"unit" validate:"required"`
	WastePercent decimal.Decimal `json:"waste_percent" validate:"gte=0,lte=100"`
	Notes        string          `json:"notes" validate:"max=500"`
}

type BOMUpdateRequest struct {
	Qty          *decimal.Decimal `json:"qty,omitempty" validate:"omitempty,gt=0"`
	Unit         *string          `json:"unit,omitempty"`
	WastePercent *decimal.Decimal `json:"waste_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	Notes        *string          `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type UnitConversionCreateRequest struct {
	MaterialID string          `json:"material_id"`
	FromUnit   string          `json:"from_unit" validate:"required"`
	ToUnit     string          `json:"to_unit" validate:"required"`
	Factor     decimal.Decimal `json:"factor" validate:"gt=0"`
}

type ConvertRequest struct {
	Qty        decimal.Decimal  `json:"qty" validate:"gte=0"`
	FromUnit   string           `json:"from_unit" validate:"required"`
	ToUnit     string           `json:"to_unit"`
	MaterialID string           `json:"material_id"`
	Density    *decimal.Decimal `json:"density,omitempty" validate:"omitempty,gt=0"`
}

type ConvertResponse struct {
	Qty      decimal.Decimal `json:"qty"`
	FromUnit Unit            `json:"from_unit"`
	Result   decimal.Decimal `json:"result"`
	ToUnit   Unit            `json:"to_unit"`
}

type ProductionOrderCreateRequest struct {
	ProductID                  string           `json:"product_id" validate:"required"`
	PlannedOutputQty           decimal.Decimal  `json:"planned_output_qty" validate:"gt=0"`
	PlannedOutputUnit          string           `json:"planned_output_unit"`
	CostingMethod              string           `json:"costing_method" validate:"omitempty,oneof=fifo wac"`
	OverheadPercent            *decimal.Decimal `json:"overhead_percent,omitempty" validate:"omitempty,gte=0"`
	PackagingCostPerOutputUnit *decimal.Decimal `json:"packaging_cost_per_output_unit,omitempty" validate:"omitempty,gte=0"`
	Notes                      string           `json:"notes" validate:"max=500"`
}

type ProductionOrderUpdateRequest struct {
	PlannedOutputQty           *decimal.Decimal `json:"planned_output_qty,omitempty" validate:"omitempty,gt=0"`
	PlannedOutputUnit          *string          `json:"planned_output_unit,omitempty"`
	OverheadPercent            *decimal.Decimal `json:"overhead_percent,omitempty" validate:"omitempty,gte=0"`
	PackagingCostPerOutputUnit *decimal.Decimal `json:"packaging_cost_per_output_unit,omitempty" validate:"omitempty,gte=0"`
	Notes                      *string          `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type FinishProductionRequest struct {
	ActualOutputQty decimal.Decimal `json:"actual_output_qty" validate:"gt=0"`
	Notes           string          `json:"notes" validate:"max=500"`
}

type CancelProductionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type SettingsUpdateRequest struct {
	CostingMethod          *string          `json:"costing_method,omitempty" validate:"omitempty,oneof=fifo wac"`
	DefaultOverheadPercent *decimal.Decimal `json:"default_overhead_percent,omitempty" validate:"omitempty,gte=0"`
	DefaultPackagingCost   *decimal.Decimal `json:"default_packaging_cost,omitempty" validate:"omitempty,gte=0"`
}
