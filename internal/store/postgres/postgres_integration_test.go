package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
)

func TestBatchDecrementIsConditionalAndTransactional(t *testing.T) {
	databaseURL := os.Getenv("COSTING_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set COSTING_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	stamp := time.Now().UnixNano()
	materialID := fmt.Sprintf("mat-it-%d", stamp)
	batchID := fmt.Sprintf("batch-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM material_batches WHERE id = $1`, batchID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM materials WHERE id = $1`, materialID)
	})

	if _, err := s.CreateMaterial(ctx, domain.Material{
		ID:       materialID,
		Name:     fmt.Sprintf("Flour IT %d", stamp),
		BaseUnit: domain.UnitKilogram,
		MinStock: decimal.NewFromInt(1),
	}); err != nil {
		t.Fatalf("create material: %v", err)
	}
	ten := decimal.NewFromInt(10)
	if _, err := s.CreateBatch(ctx, domain.MaterialBatch{
		ID:              batchID,
		MaterialID:      materialID,
		InitialQuantity: ten,
		Quantity:        ten,
		Unit:            domain.UnitKilogram,
		UnitCost:        decimal.NewFromInt(2),
		TotalCost:       decimal.NewFromInt(20),
		ReceivedAt:      time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	boom := errors.New("boom")
	err = s.InTx(ctx, func(q store.Querier) error {
		if _, err := q.ListAvailableBatches(ctx, materialID, true); err != nil {
			return err
		}
		if _, err := q.DecrementBatch(ctx, batchID, decimal.NewFromInt(4), time.Now().UTC()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	batch, err := s.GetBatch(ctx, batchID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if !batch.Quantity.Equal(ten) {
		t.Fatalf("expected rollback to keep 10, got %s", batch.Quantity)
	}

	if _, err := s.DecrementBatch(ctx, batchID, decimal.NewFromInt(11), time.Now().UTC()); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on overdraw, got %v", err)
	}
	batch, err = s.DecrementBatch(ctx, batchID, ten, time.Now().UTC())
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if batch.Status != domain.BatchConsumed || !batch.Quantity.IsZero() {
		t.Fatalf("expected consumed batch, got %+v", batch)
	}
}
