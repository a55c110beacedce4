package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
)

const batchColumns = `id, material_id, initial_quantity, quantity, reserved_qty, unit, unit_cost, total_cost,
	supplier, lot_number, expires_at, received_at, status, created_at, updated_at`

func scanBatch(row scanner) (*domain.MaterialBatch, error) {
	var b domain.MaterialBatch
	var unit, status string
	var supplier, lot sql.NullString
	var expires sql.NullTime
	if err := row.Scan(
		&b.ID, &b.MaterialID, &b.InitialQuantity, &b.Quantity, &b.ReservedQty, &unit, &b.UnitCost, &b.TotalCost,
		&supplier, &lot, &expires, &b.ReceivedAt, &status, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, noRows(err)
	}
	b.Unit = domain.Unit(unit)
	b.Status = domain.BatchStatus(status)
	b.Supplier = supplier.String
	b.LotNumber = lot.String
	b.ExpiresAt = timePtr(expires)
	b.ReceivedAt = b.ReceivedAt.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

func collectBatches(rows *sql.Rows) ([]domain.MaterialBatch, error) {
	defer rows.Close()
	batches := make([]domain.MaterialBatch, 0, 16)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

func (s *Store) CreateBatch(ctx context.Context, batch domain.MaterialBatch) (*domain.MaterialBatch, error) {
	if batch.ID == "" || batch.MaterialID == "" || !batch.Quantity.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if batch.Status == "" {
		batch.Status = domain.BatchAvailable
	}
	now := time.Now().UTC()
	if batch.ReceivedAt.IsZero() {
		batch.ReceivedAt = now
	}
	row := s.q.QueryRowContext(ctx, `
		INSERT INTO material_batches (
			id, material_id, initial_quantity, quantity, reserved_qty, unit, unit_cost, total_cost,
			supplier, lot_number, expires_at, received_at, status, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,0,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
		RETURNING `+batchColumns,
		batch.ID, batch.MaterialID, batch.InitialQuantity, batch.Quantity, string(batch.Unit), batch.UnitCost, batch.TotalCost,
		nullIfEmpty(batch.Supplier), nullIfEmpty(batch.LotNumber), nullDate(batch.ExpiresAt), batch.ReceivedAt, string(batch.Status), now)
	created, err := scanBatch(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return created, nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (*domain.MaterialBatch, error) {
	return scanBatch(s.q.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM material_batches WHERE id = $1`, id))
}

func (s *Store) ListBatches(ctx context.Context, filter store.BatchFilter) ([]domain.MaterialBatch, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM material_batches
		WHERE ($1 = '' OR material_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY received_at, id
	`, filter.MaterialID, string(filter.Status))
	if err != nil {
		return nil, err
	}
	return collectBatches(rows)
}

func (s *Store) ListAvailableBatches(ctx context.Context, materialID string, forUpdate bool) ([]domain.MaterialBatch, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM material_batches
		WHERE material_id = $1 AND status = 'available'
		ORDER BY received_at, id`+s.lockClause(forUpdate), materialID)
	if err != nil {
		return nil, err
	}
	return collectBatches(rows)
}

// conditionalBatchUpdate runs a guarded UPDATE. No row back means either the
// batch is gone or the guard failed; the two are told apart with a lookup.
func (s *Store) conditionalBatchUpdate(ctx context.Context, id string, query string, args ...any) (*domain.MaterialBatch, error) {
	updated, err := scanBatch(s.q.QueryRowContext(ctx, query, args...))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, mapErr(err)
	}
	if _, err := s.GetBatch(ctx, id); err != nil {
		return nil, err
	}
	return nil, store.ErrConflict
}

func (s *Store) DecrementBatch(ctx context.Context, id string, qty decimal.Decimal, at time.Time) (*domain.MaterialBatch, error) {
	if !qty.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	return s.conditionalBatchUpdate(ctx, id, `
		UPDATE material_batches
		SET quantity = quantity - $2,
			status = CASE WHEN quantity - $2 = 0 THEN 'consumed' ELSE status END,
			updated_at = $3
		WHERE id = $1 AND status = 'available' AND quantity - reserved_qty >= $2
		RETURNING `+batchColumns, id, qty, at)
}

func (s *Store) ReserveBatchQty(ctx context.Context, id string, qty decimal.Decimal, at time.Time) (*domain.MaterialBatch, error) {
	if !qty.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	return s.conditionalBatchUpdate(ctx, id, `
		UPDATE material_batches
		SET reserved_qty = reserved_qty + $2,
			status = CASE WHEN reserved_qty + $2 = quantity THEN 'reserved' ELSE status END,
			updated_at = $3
		WHERE id = $1 AND status = 'available' AND quantity - reserved_qty >= $2
		RETURNING `+batchColumns, id, qty, at)
}

func (s *Store) ReleaseBatchQty(ctx context.Context, id string, qty decimal.Decimal, at time.Time) (*domain.MaterialBatch, error) {
	if !qty.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	return s.conditionalBatchUpdate(ctx, id, `
		UPDATE material_batches
		SET reserved_qty = reserved_qty - $2,
			status = CASE WHEN status = 'reserved' AND quantity > 0 THEN 'available' ELSE status END,
			updated_at = $3
		WHERE id = $1 AND reserved_qty >= $2
		RETURNING `+batchColumns, id, qty, at)
}

func (s *Store) DeleteBatch(ctx context.Context, id string) error {
	return expectOne(s.q.ExecContext(ctx, `DELETE FROM material_batches WHERE id = $1`, id))
}

func (s *Store) CountConsumptionsByBatch(ctx context.Context, batchID string) (int, error) {
	return count(ctx, s.q, `SELECT count(*) FROM production_consumptions WHERE batch_id = $1`, batchID)
}

func (s *Store) CreateReservation(ctx context.Context, reservation domain.BatchReservation) error {
	if reservation.ID == "" || reservation.ProductionOrderID == "" || reservation.BatchID == "" {
		return store.ErrInvalidInput
	}
	if reservation.CreatedAt.IsZero() {
		reservation.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO batch_reservations (id, production_order_id, batch_id, material_id, qty, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, reservation.ID, reservation.ProductionOrderID, reservation.BatchID, reservation.MaterialID, reservation.Qty, reservation.CreatedAt)
	return mapErr(err)
}

func (s *Store) ListReservationsByOrder(ctx context.Context, orderID string) ([]domain.BatchReservation, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, production_order_id, batch_id, material_id, qty, created_at
		FROM batch_reservations
		WHERE production_order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.BatchReservation, 0, 8)
	for rows.Next() {
		var r domain.BatchReservation
		if err := rows.Scan(&r.ID, &r.ProductionOrderID, &r.BatchID, &r.MaterialID, &r.Qty, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteReservationsByOrder(ctx context.Context, orderID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM batch_reservations WHERE production_order_id = $1`, orderID)
	return err
}
