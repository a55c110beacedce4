package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
)

const productColumns = `id, sku, name, base_unit, active, created_at, updated_at`

func scanProduct(row scanner) (*domain.Product, error) {
	var p domain.Product
	var baseUnit string
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &baseUnit, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, noRows(err)
	}
	p.BaseUnit = domain.Unit(baseUnit)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.SKU == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	row := s.q.QueryRowContext(ctx, `
		INSERT INTO products (id, sku, name, base_unit, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
		RETURNING `+productColumns,
		product.ID, product.SKU, product.Name, string(product.BaseUnit), product.Active, now)
	created, err := scanProduct(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return scanProduct(s.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	row := s.q.QueryRowContext(ctx, `
		UPDATE products
		SET sku = $2, name = $3, base_unit = $4, active = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.SKU, product.Name, string(product.BaseUnit), product.Active)
	saved, err := scanProduct(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return saved, nil
}

const materialColumns = `id, name, sku, base_unit, density, min_stock, created_at, updated_at`

func scanMaterial(row scanner) (*domain.Material, error) {
	var m domain.Material
	var sku sql.NullString
	var baseUnit string
	var density decimal.NullDecimal
	if err := row.Scan(&m.ID, &m.Name, &sku, &baseUnit, &density, &m.MinStock, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, noRows(err)
	}
	m.SKU = sku.String
	m.BaseUnit = domain.Unit(baseUnit)
	if density.Valid {
		d := density.Decimal
		m.Density = &d
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}

func densityArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}

func (s *Store) CreateMaterial(ctx context.Context, material domain.Material) (*domain.Material, error) {
	if material.ID == "" || material.Name == "" || material.BaseUnit == "" {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	row := s.q.QueryRowContext(ctx, `
		INSERT INTO materials (id, name, sku, base_unit, density, min_stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
		RETURNING `+materialColumns,
		material.ID, material.Name, nullIfEmpty(material.SKU), string(material.BaseUnit), densityArg(material.Density), material.MinStock, now)
	created, err := scanMaterial(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return created, nil
}

func (s *Store) GetMaterial(ctx context.Context, id string) (*domain.Material, error) {
	return scanMaterial(s.q.QueryRowContext(ctx, `SELECT `+materialColumns+` FROM materials WHERE id = $1`, id))
}

func (s *Store) ListMaterials(ctx context.Context, filter store.MaterialFilter) ([]domain.Material, error) {
	query := `SELECT ` + materialColumns + ` FROM materials`
	args := []any{}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query += ` WHERE name ILIKE $1 OR sku ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY name`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	materials := make([]domain.Material, 0, 32)
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		materials = append(materials, *m)
	}
	return materials, rows.Err()
}

func (s *Store) UpdateMaterial(ctx context.Context, material domain.Material) (*domain.Material, error) {
	row := s.q.QueryRowContext(ctx, `
		UPDATE materials
		SET name = $2, sku = $3, base_unit = $4, density = $5, min_stock = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+materialColumns,
		material.ID, material.Name, nullIfEmpty(material.SKU), string(material.BaseUnit), densityArg(material.Density), material.MinStock)
	saved, err := scanMaterial(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return saved, nil
}

func (s *Store) DeleteMaterial(ctx context.Context, id string) error {
	return expectOne(s.q.ExecContext(ctx, `DELETE FROM materials WHERE id = $1`, id))
}

func (s *Store) CountBOMByMaterial(ctx context.Context, materialID string) (int, error) {
	return count(ctx, s.q, `SELECT count(*) FROM product_bom WHERE material_id = $1`, materialID)
}

func (s *Store) CountActiveBatches(ctx context.Context, materialID string) (int, error) {
	return count(ctx, s.q, `
		SELECT count(*) FROM material_batches
		WHERE material_id = $1 AND status IN ('available', 'reserved')
	`, materialID)
}

const bomColumns = `id, product_id, material_id, qty, unit, waste_percent, notes, created_at, updated_at`

func scanBOM(row scanner) (*domain.ProductBOM, error) {
	var e domain.ProductBOM
	var unit string
	var notes sql.NullString
	if err := row.Scan(&e.ID, &e.ProductID, &e.MaterialID, &e.Qty, &unit, &e.WastePercent, &notes, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, noRows(err)
	}
	e.Unit = domain.Unit(unit)
	e.Notes = notes.String
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func (s *Store) CreateBOM(ctx context.Context, entry domain.ProductBOM) (*domain.ProductBOM, error) {
	if entry.ID == "" || entry.ProductID == "" || entry.MaterialID == "" {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	row := s.q.QueryRowContext(ctx, `
		INSERT INTO product_bom (id, product_id, material_id, qty, unit, waste_percent, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
		RETURNING `+bomColumns,
		entry.ID, entry.ProductID, entry.MaterialID, entry.Qty, string(entry.Unit), entry.WastePercent, nullIfEmpty(entry.Notes), now)
	created, err := scanBOM(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return created, nil
}

func (s *Store) GetBOM(ctx context.Context, id string) (*domain.ProductBOM, error) {
	return scanBOM(s.q.QueryRowContext(ctx, `SELECT `+bomColumns+` FROM product_bom WHERE id = $1`, id))
}

func (s *Store) ListBOM(ctx context.Context, filter store.BOMFilter) ([]domain.ProductBOM, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+bomColumns+`
		FROM product_bom
		WHERE ($1 = '' OR product_id = $1)
			AND ($2 = '' OR material_id = $2)
		ORDER BY created_at, id
	`, filter.ProductID, filter.MaterialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.ProductBOM, 0, 16)
	for rows.Next() {
		e, err := scanBOM(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (s *Store) UpdateBOM(ctx context.Context, entry domain.ProductBOM) (*domain.ProductBOM, error) {
	row := s.q.QueryRowContext(ctx, `
		UPDATE product_bom
		SET qty = $2, unit = $3, waste_percent = $4, notes = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+bomColumns,
		entry.ID, entry.Qty, string(entry.Unit), entry.WastePercent, nullIfEmpty(entry.Notes))
	return scanBOM(row)
}

func (s *Store) DeleteBOM(ctx context.Context, id string) error {
	return expectOne(s.q.ExecContext(ctx, `DELETE FROM product_bom WHERE id = $1`, id))
}

const conversionColumns = `id, material_id, from_unit, to_unit, factor, created_at`

func scanConversion(row scanner) (*domain.UnitConversion, error) {
	var c domain.UnitConversion
	var materialID sql.NullString
	var from, to string
	if err := row.Scan(&c.ID, &materialID, &from, &to, &c.Factor, &c.CreatedAt); err != nil {
		return nil, noRows(err)
	}
	c.MaterialID = materialID.String
	c.FromUnit = domain.Unit(from)
	c.ToUnit = domain.Unit(to)
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) CreateUnitConversion(ctx context.Context, conv domain.UnitConversion) (*domain.UnitConversion, error) {
	if conv.ID == "" || conv.FromUnit == "" || conv.ToUnit == "" || !conv.Factor.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	row := s.q.QueryRowContext(ctx, `
		INSERT INTO unit_conversions (id, material_id, from_unit, to_unit, factor, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
		RETURNING `+conversionColumns,
		conv.ID, nullIfEmpty(conv.MaterialID), string(conv.FromUnit), string(conv.ToUnit), conv.Factor)
	created, err := scanConversion(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return created, nil
}

func (s *Store) ListUnitConversions(ctx context.Context, filter store.UnitConversionFilter) ([]domain.UnitConversion, error) {
	query := `SELECT ` + conversionColumns + ` FROM unit_conversions`
	args := []any{}
	switch {
	case filter.MaterialID != "":
		query += ` WHERE material_id = $1`
		args = append(args, filter.MaterialID)
	case filter.GlobalOnly:
		query += ` WHERE material_id IS NULL`
	}
	query += ` ORDER BY coalesce(material_id, ''), from_unit, to_unit`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.UnitConversion, 0, 16)
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) FindUnitConversion(ctx context.Context, materialID string, from, to domain.Unit) (*domain.UnitConversion, error) {
	return scanConversion(s.q.QueryRowContext(ctx, `
		SELECT `+conversionColumns+`
		FROM unit_conversions
		WHERE coalesce(material_id, '') = $1 AND from_unit = $2 AND to_unit = $3
	`, materialID, string(from), string(to)))
}

func (s *Store) DeleteUnitConversion(ctx context.Context, id string) error {
	return expectOne(s.q.ExecContext(ctx, `DELETE FROM unit_conversions WHERE id = $1`, id))
}
