package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
)

func seedBatch(t *testing.T, s *Store, qty string) domain.MaterialBatch {
	t.Helper()
	ctx := context.Background()
	if _, err := s.CreateMaterial(ctx, domain.Material{ID: "mat-1", Name: "Flour", BaseUnit: domain.UnitKilogram}); err != nil {
		t.Fatalf("create material: %v", err)
	}
	batch, err := s.CreateBatch(ctx, domain.MaterialBatch{
		ID:              "batch-1",
		MaterialID:      "mat-1",
		InitialQuantity: decimal.RequireFromString(qty),
		Quantity:        decimal.RequireFromString(qty),
		Unit:            domain.UnitKilogram,
		UnitCost:        decimal.NewFromInt(2),
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	return *batch
}

func TestInTxRollsBackOnError(t *testing.T) {
	s := New()
	seedBatch(t, s, "10")
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(q store.Querier) error {
		if _, err := q.DecrementBatch(ctx, "batch-1", decimal.NewFromInt(4), time.Now().UTC()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	batch, err := s.GetBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if !batch.Quantity.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected rollback to keep 10, got %s", batch.Quantity)
	}
}

func TestInTxCommits(t *testing.T) {
	s := New()
	seedBatch(t, s, "10")
	ctx := context.Background()

	err := s.InTx(ctx, func(q store.Querier) error {
		_, err := q.DecrementBatch(ctx, "batch-1", decimal.NewFromInt(10), time.Now().UTC())
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	batch, _ := s.GetBatch(ctx, "batch-1")
	if !batch.Quantity.IsZero() || batch.Status != domain.BatchConsumed {
		t.Fatalf("expected consumed empty batch, got %+v", batch)
	}
}

func TestReserveAndDecrementAreConditional(t *testing.T) {
	s := New()
	seedBatch(t, s, "5")
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := s.ReserveBatchQty(ctx, "batch-1", decimal.NewFromInt(3), now); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := s.DecrementBatch(ctx, "batch-1", decimal.NewFromInt(3), now); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict when reserved stock is drawn, got %v", err)
	}
	batch, err := s.ReserveBatchQty(ctx, "batch-1", decimal.NewFromInt(2), now)
	if err != nil {
		t.Fatalf("reserve rest: %v", err)
	}
	if batch.Status != domain.BatchReserved {
		t.Fatalf("expected fully held batch to be reserved, got %s", batch.Status)
	}
	if !batch.FreeQty().IsZero() {
		t.Fatalf("expected no free quantity, got %s", batch.FreeQty())
	}

	batch, err = s.ReleaseBatchQty(ctx, "batch-1", decimal.NewFromInt(5), now)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if batch.Status != domain.BatchAvailable || !batch.ReservedQty.IsZero() {
		t.Fatalf("expected release to restore availability, got %+v", batch)
	}
}

func TestSettingsNotFoundUntilSaved(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.GetSettings(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.SaveSettings(ctx, domain.ProductionSettings{CostingMethod: domain.CostingWAC}); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	got, err := s.GetSettings(ctx)
	if err != nil || got.CostingMethod != domain.CostingWAC {
		t.Fatalf("unexpected settings %+v err %v", got, err)
	}
}

func TestBatchCodeUniquePerProduct(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, p := range []domain.Product{
		{ID: "prd-1", SKU: "BRD-01", Name: "Bread", BaseUnit: domain.UnitPiece, Active: true},
		{ID: "prd-2", SKU: "BRD-02", Name: "Bread Rolls", BaseUnit: domain.UnitPiece, Active: true},
	} {
		if _, err := s.CreateProduct(ctx, p); err != nil {
			t.Fatalf("create product %s: %v", p.ID, err)
		}
	}

	order := func(id, productID string) domain.ProductionOrder {
		return domain.ProductionOrder{
			ID:               id,
			ProductID:        productID,
			PlannedOutputQty: decimal.NewFromInt(10),
			Status:           domain.OrderDraft,
			BatchCode:        "BRE260314001",
		}
	}
	if _, err := s.CreateProductionOrder(ctx, order("po-1", "prd-1")); err != nil {
		t.Fatalf("first order: %v", err)
	}
	if _, err := s.CreateProductionOrder(ctx, order("po-2", "prd-2")); err != nil {
		t.Fatalf("same code for another product should be accepted: %v", err)
	}
	if _, err := s.CreateProductionOrder(ctx, order("po-3", "prd-1")); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for a repeated code on one product, got %v", err)
	}
}
