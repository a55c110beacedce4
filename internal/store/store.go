package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// MaterialFilter: Search set -> case-insensitive substring match on name or SKU.
type MaterialFilter struct {
	Search string
}

// BatchFilter: each set field is an equality constraint.
type BatchFilter struct {
	MaterialID string
	Status     domain.BatchStatus
}

// BOMFilter: each set field is an equality constraint.
type BOMFilter struct {
	ProductID  string
	MaterialID string
}

// UnitConversionFilter: MaterialID set -> rows of that material only;
// GlobalOnly -> rows without a material. MaterialID wins when both are set.
type UnitConversionFilter struct {
	MaterialID string
	GlobalOnly bool
}

// OrderFilter: ProductID and Status are equality constraints; Limit <= 0 means 100.
type OrderFilter struct {
	ProductID string
	Status    domain.OrderStatus
	Limit     int
}

// FinishedGoodsFilter: each set field is an equality constraint.
type FinishedGoodsFilter struct {
	ProductID         string
	ProductionOrderID string
}

// Querier is the set of operations available both on the repository and
// inside a transaction started with InTx.
type Querier interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	CreateMaterial(ctx context.Context, material domain.Material) (*domain.Material, error)
	GetMaterial(ctx context.Context, id string) (*domain.Material, error)
	ListMaterials(ctx context.Context, filter MaterialFilter) ([]domain.Material, error)
	UpdateMaterial(ctx context.Context, material domain.Material) (*domain.Material, error)
	DeleteMaterial(ctx context.Context, id string) error
	CountBOMByMaterial(ctx context.Context, materialID string) (int, error)
	CountActiveBatches(ctx context.Context, materialID string) (int, error)

	CreateBatch(ctx context.Context, batch domain.MaterialBatch) (*domain.MaterialBatch, error)
	GetBatch(ctx context.Context, id string) (*domain.MaterialBatch, error)
	ListBatches(ctx context.Context, filter BatchFilter) ([]domain.MaterialBatch, error)
	// ListAvailableBatches returns batches in status available ordered by
	// received_at then id. forUpdate locks the rows until the transaction ends.
	ListAvailableBatches(ctx context.Context, materialID string, forUpdate bool) ([]domain.MaterialBatch, error)
	// DecrementBatch removes qty from a batch only if that much is free.
	// A batch that reaches zero becomes consumed. Lost races return ErrConflict.
	DecrementBatch(ctx context.Context, id string, qty decimal.Decimal, at time.Time) (*domain.MaterialBatch, error)
	// ReserveBatchQty holds qty of the batch's free quantity. A fully held batch becomes reserved.
	ReserveBatchQty(ctx context.Context, id string, qty decimal.Decimal, at time.Time) (*domain.MaterialBatch, error)
	ReleaseBatchQty(ctx context.Context, id string, qty decimal.Decimal, at time.Time) (*domain.MaterialBatch, error)
	DeleteBatch(ctx context.Context, id string) error
	CountConsumptionsByBatch(ctx context.Context, batchID string) (int, error)

	CreateReservation(ctx context.Context, reservation domain.BatchReservation) error
	ListReservationsByOrder(ctx context.Context, orderID string) ([]domain.BatchReservation, error)
	DeleteReservationsByOrder(ctx context.Context, orderID string) error

	CreateBOM(ctx context.Context, entry domain.ProductBOM) (*domain.ProductBOM, error)
	GetBOM(ctx context.Context, id string) (*domain.ProductBOM, error)
	ListBOM(ctx context.Context, filter BOMFilter) ([]domain.ProductBOM, error)
	UpdateBOM(ctx context.Context, entry domain.ProductBOM) (*domain.ProductBOM, error)
	DeleteBOM(ctx context.Context, id string) error

	CreateUnitConversion(ctx context.Context, conv domain.UnitConversion) (*domain.UnitConversion, error)
	ListUnitConversions(ctx context.Context, filter UnitConversionFilter) ([]domain.UnitConversion, error)
	// FindUnitConversion looks up the exact from->to row. An empty materialID means global.
	FindUnitConversion(ctx context.Context, materialID string, from, to domain.Unit) (*domain.UnitConversion, error)
	DeleteUnitConversion(ctx context.Context, id string) error

	CreateProductionOrder(ctx context.Context, order domain.ProductionOrder) (*domain.ProductionOrder, error)
	GetProductionOrder(ctx context.Context, id string) (*domain.ProductionOrder, error)
	// LockProductionOrder reads the order and holds a row lock for the rest of the transaction.
	LockProductionOrder(ctx context.Context, id string) (*domain.ProductionOrder, error)
	ListProductionOrders(ctx context.Context, filter OrderFilter) ([]domain.ProductionOrder, error)
	UpdateProductionOrder(ctx context.Context, order domain.ProductionOrder) (*domain.ProductionOrder, error)
	CountOrdersForProductOn(ctx context.Context, productID string, from time.Time, to time.Time) (int, error)

	CreateConsumption(ctx context.Context, consumption domain.ProductionConsumption) error
	ListConsumptionsByOrder(ctx context.Context, orderID string) ([]domain.ProductionConsumption, error)

	CreateFinishedGoods(ctx context.Context, entry domain.FinishedGoodsInventory) (*domain.FinishedGoodsInventory, error)
	ListFinishedGoods(ctx context.Context, filter FinishedGoodsFilter) ([]domain.FinishedGoodsInventory, error)

	UpsertProductCost(ctx context.Context, entry domain.ProductCostCache) error
	GetProductCost(ctx context.Context, productID string) (*domain.ProductCostCache, error)

	GetSettings(ctx context.Context) (*domain.ProductionSettings, error)
	SaveSettings(ctx context.Context, settings domain.ProductionSettings) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	Querier
	// InTx runs fn in one transaction. Any error from fn rolls everything back.
	InTx(ctx context.Context, fn func(q Querier) error) error
}
