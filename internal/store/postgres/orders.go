package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
)

const orderColumns = `id, product_id, planned_output_qty, planned_output_unit, actual_output_qty, status,
	costing_method_snapshot, overhead_percent, packaging_cost_per_output_unit,
	material_cost, packaging_cost, overhead_cost, total_cost, unit_cost,
	batch_code, notes, created_at, updated_at, started_at, finished_at, canceled_at`

func scanOrder(row scanner) (*domain.ProductionOrder, error) {
	var o domain.ProductionOrder
	var plannedUnit, status, method string
	var notes sql.NullString
	var started, finished, canceled sql.NullTime
	if err := row.Scan(
		&o.ID, &o.ProductID, &o.PlannedOutputQty, &plannedUnit, &o.ActualOutputQty, &status,
		&method, &o.OverheadPercent, &o.PackagingCostPerOutputUnit,
		&o.MaterialCost, &o.PackagingCost, &o.OverheadCost, &o.TotalCost, &o.UnitCost,
		&o.BatchCode, &notes, &o.CreatedAt, &o.UpdatedAt, &started, &finished, &canceled,
	); err != nil {
		return nil, noRows(err)
	}
	o.PlannedOutputUnit = domain.Unit(plannedUnit)
	o.Status = domain.OrderStatus(status)
	o.CostingMethodSnapshot = domain.CostingMethod(method)
	o.Notes = notes.String
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	o.StartedAt = timePtr(started)
	o.FinishedAt = timePtr(finished)
	o.CanceledAt = timePtr(canceled)
	return &o, nil
}

func (s *Store) CreateProductionOrder(ctx context.Context, order domain.ProductionOrder) (*domain.ProductionOrder, error) {
	if order.ID == "" || order.ProductID == "" {
		return nil, store.ErrInvalidInput
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	row := s.q.QueryRowContext(ctx, `
		INSERT INTO production_orders (
			id, product_id, planned_output_qty, planned_output_unit, actual_output_qty, status,
			costing_method_snapshot, overhead_percent, packaging_cost_per_output_unit,
			material_cost, packaging_cost, overhead_cost, total_cost, unit_cost,
			batch_code, notes, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$17)
		RETURNING `+orderColumns,
		order.ID, order.ProductID, order.PlannedOutputQty, string(order.PlannedOutputUnit), order.ActualOutputQty, string(order.Status),
		string(order.CostingMethodSnapshot), order.OverheadPercent, order.PackagingCostPerOutputUnit,
		order.MaterialCost, order.PackagingCost, order.OverheadCost, order.TotalCost, order.UnitCost,
		order.BatchCode, nullIfEmpty(order.Notes), order.CreatedAt)
	created, err := scanOrder(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return created, nil
}

func (s *Store) GetProductionOrder(ctx context.Context, id string) (*domain.ProductionOrder, error) {
	return scanOrder(s.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM production_orders WHERE id = $1`, id))
}

func (s *Store) LockProductionOrder(ctx context.Context, id string) (*domain.ProductionOrder, error) {
	return scanOrder(s.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM production_orders WHERE id = $1`+s.lockClause(true), id))
}

func (s *Store) ListProductionOrders(ctx context.Context, filter store.OrderFilter) ([]domain.ProductionOrder, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM production_orders
		WHERE ($1 = '' OR product_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, filter.ProductID, string(filter.Status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.ProductionOrder, 0, limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *Store) UpdateProductionOrder(ctx context.Context, order domain.ProductionOrder) (*domain.ProductionOrder, error) {
	row := s.q.QueryRowContext(ctx, `
		UPDATE production_orders
		SET planned_output_qty = $2, planned_output_unit = $3, actual_output_qty = $4, status = $5,
			overhead_percent = $6, packaging_cost_per_output_unit = $7,
			material_cost = $8, packaging_cost = $9, overhead_cost = $10, total_cost = $11, unit_cost = $12,
			notes = $13, started_at = $14, finished_at = $15, canceled_at = $16, updated_at = now()
		WHERE id = $1
		RETURNING `+orderColumns,
		order.ID, order.PlannedOutputQty, string(order.PlannedOutputUnit), order.ActualOutputQty, string(order.Status),
		order.OverheadPercent, order.PackagingCostPerOutputUnit,
		order.MaterialCost, order.PackagingCost, order.OverheadCost, order.TotalCost, order.UnitCost,
		nullIfEmpty(order.Notes), nullTime(order.StartedAt), nullTime(order.FinishedAt), nullTime(order.CanceledAt))
	saved, err := scanOrder(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return saved, nil
}

func (s *Store) CountOrdersForProductOn(ctx context.Context, productID string, from time.Time, to time.Time) (int, error) {
	return count(ctx, s.q, `
		SELECT count(*) FROM production_orders
		WHERE product_id = $1 AND created_at >= $2 AND created_at < $3
	`, productID, from, to)
}

func (s *Store) CreateConsumption(ctx context.Context, c domain.ProductionConsumption) error {
	if c.ID == "" || c.ProductionOrderID == "" || c.MaterialID == "" {
		return store.ErrInvalidInput
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO production_consumptions (
			id, production_order_id, material_id, batch_id, qty, unit, unit_cost_applied, total_cost, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, c.ID, c.ProductionOrderID, c.MaterialID, nullIfEmpty(c.BatchID), c.Qty, string(c.Unit), c.UnitCostApplied, c.TotalCost, c.CreatedAt)
	return mapErr(err)
}

func (s *Store) ListConsumptionsByOrder(ctx context.Context, orderID string) ([]domain.ProductionConsumption, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, production_order_id, material_id, batch_id, qty, unit, unit_cost_applied, total_cost, created_at
		FROM production_consumptions
		WHERE production_order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ProductionConsumption, 0, 8)
	for rows.Next() {
		var c domain.ProductionConsumption
		var batchID sql.NullString
		var unit string
		if err := rows.Scan(&c.ID, &c.ProductionOrderID, &c.MaterialID, &batchID, &c.Qty, &unit, &c.UnitCostApplied, &c.TotalCost, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.BatchID = batchID.String
		c.Unit = domain.Unit(unit)
		c.CreatedAt = c.CreatedAt.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateFinishedGoods(ctx context.Context, entry domain.FinishedGoodsInventory) (*domain.FinishedGoodsInventory, error) {
	if entry.ID == "" || entry.ProductID == "" || entry.ProductionOrderID == "" {
		return nil, store.ErrInvalidInput
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO finished_goods_inventory (id, product_id, production_order_id, qty, unit, unit_cost, batch_code, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ProductID, entry.ProductionOrderID, entry.Qty, string(entry.Unit), entry.UnitCost, entry.BatchCode, entry.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &entry, nil
}

func (s *Store) ListFinishedGoods(ctx context.Context, filter store.FinishedGoodsFilter) ([]domain.FinishedGoodsInventory, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, product_id, production_order_id, qty, unit, unit_cost, batch_code, created_at
		FROM finished_goods_inventory
		WHERE ($1 = '' OR product_id = $1)
			AND ($2 = '' OR production_order_id = $2)
		ORDER BY created_at DESC, id DESC
	`, filter.ProductID, filter.ProductionOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.FinishedGoodsInventory, 0, 16)
	for rows.Next() {
		var e domain.FinishedGoodsInventory
		var unit string
		if err := rows.Scan(&e.ID, &e.ProductID, &e.ProductionOrderID, &e.Qty, &unit, &e.UnitCost, &e.BatchCode, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Unit = domain.Unit(unit)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) UpsertProductCost(ctx context.Context, entry domain.ProductCostCache) error {
	if entry.ProductID == "" || entry.UnitCost.IsNegative() {
		return store.ErrInvalidInput
	}
	if entry.LastCalculatedAt.IsZero() {
		entry.LastCalculatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO product_cost_cache (product_id, unit_cost, method, last_calculated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (product_id)
		DO UPDATE SET unit_cost = EXCLUDED.unit_cost, method = EXCLUDED.method, last_calculated_at = EXCLUDED.last_calculated_at
	`, entry.ProductID, entry.UnitCost, string(entry.Method), entry.LastCalculatedAt)
	return mapErr(err)
}

func (s *Store) GetProductCost(ctx context.Context, productID string) (*domain.ProductCostCache, error) {
	var entry domain.ProductCostCache
	var method string
	err := s.q.QueryRowContext(ctx, `
		SELECT product_id, unit_cost, method, last_calculated_at
		FROM product_cost_cache
		WHERE product_id = $1
	`, productID).Scan(&entry.ProductID, &entry.UnitCost, &method, &entry.LastCalculatedAt)
	if err != nil {
		return nil, noRows(err)
	}
	entry.Method = domain.CostingMethod(method)
	entry.LastCalculatedAt = entry.LastCalculatedAt.UTC()
	return &entry, nil
}

func (s *Store) GetSettings(ctx context.Context) (*domain.ProductionSettings, error) {
	var settings domain.ProductionSettings
	var method string
	err := s.q.QueryRowContext(ctx, `
		SELECT costing_method, default_overhead_percent, default_packaging_cost, updated_at
		FROM production_settings
		WHERE id = 1
	`).Scan(&method, &settings.DefaultOverheadPercent, &settings.DefaultPackagingCost, &settings.UpdatedAt)
	if err != nil {
		return nil, noRows(err)
	}
	settings.CostingMethod = domain.CostingMethod(method)
	settings.UpdatedAt = settings.UpdatedAt.UTC()
	return &settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.ProductionSettings) error {
	if !settings.CostingMethod.Valid() {
		return store.ErrInvalidInput
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO production_settings (id, costing_method, default_overhead_percent, default_packaging_cost, updated_at)
		VALUES (1,$1,$2,$3,$4)
		ON CONFLICT (id)
		DO UPDATE SET costing_method = EXCLUDED.costing_method,
			default_overhead_percent = EXCLUDED.default_overhead_percent,
			default_packaging_cost = EXCLUDED.default_packaging_cost,
			updated_at = EXCLUDED.updated_at
	`, string(settings.CostingMethod), settings.DefaultOverheadPercent, settings.DefaultPackagingCost, settings.UpdatedAt)
	return err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" || entry.Action == "" {
		return store.ErrInvalidInput
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	var fromArg, toArg any
	if !from.IsZero() {
		fromArg = from
	}
	if !to.IsZero() {
		toArg = to
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, fromArg, toArg, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleOperator
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES (lower(trim($1)),$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	if username == "" || password == "" {
		return store.ErrInvalidInput
	}
	return expectOne(s.q.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = lower(trim($1))
	`, username, password))
}
