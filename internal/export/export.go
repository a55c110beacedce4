// Package export renders finished-order cost breakdowns as spreadsheets.
package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
)

const (
	summarySheet   = "Summary"
	materialsSheet = "Materials"
)

// CostBreakdownFileName is the download name for an order's workbook.
func CostBreakdownFileName(b *domain.CostBreakdown) string {
	at := b.Order.UpdatedAt
	if b.Order.FinishedAt != nil {
		at = *b.Order.FinishedAt
	}
	return fmt.Sprintf("cost_%s_%s.xlsx", b.Order.BatchCode, at.UTC().Format("20060102"))
}

// CostBreakdownWorkbook writes a two-sheet workbook: order totals and one
// row per consumption line. Decimals are written as text so no precision
// is lost to float cells.
func CostBreakdownWorkbook(b *domain.CostBreakdown) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), summarySheet); err != nil {
		return nil, err
	}
	summary := [][]interface{}{
		{"field", "value"},
		{"production_order_id", b.Order.ID},
		{"batch_code", b.Order.BatchCode},
		{"product_sku", b.Product.SKU},
		{"product_name", b.Product.Name},
		{"costing_method", string(b.Order.CostingMethodSnapshot)},
		{"actual_output_qty", b.Order.ActualOutputQty.String()},
		{"output_unit", string(b.Order.PlannedOutputUnit)},
		{"material_cost", b.Cost.MaterialCost.String()},
		{"packaging_cost", b.Cost.PackagingCost.String()},
		{"overhead_cost", b.Cost.OverheadCost.String()},
		{"total_cost", b.Cost.TotalCost.String()},
		{"unit_cost", b.Cost.UnitCost.String()},
	}
	if err := writeRows(f, summarySheet, summary); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(materialsSheet); err != nil {
		return nil, err
	}
	rows := make([][]interface{}, 0, len(b.Materials)+1)
	rows = append(rows, []interface{}{
		"material_id",
		"material_name",
		"batch_id",
		"lot_number",
		"qty",
		"unit",
		"unit_cost_applied",
		"total_cost",
	})
	for _, line := range b.Materials {
		rows = append(rows, []interface{}{
			line.MaterialID,
			line.MaterialName,
			line.BatchID,
			line.LotNumber,
			line.Qty.String(),
			string(line.Unit),
			line.UnitCostApplied.String(),
			line.TotalCost.String(),
		})
	}
	if err := writeRows(f, materialsSheet, rows); err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
