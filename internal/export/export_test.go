package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
)

func TestCostBreakdownWorkbook(t *testing.T) {
	finishedAt := time.Date(2026, 3, 14, 16, 0, 0, 0, time.UTC)
	breakdown := &domain.CostBreakdown{
		Order: domain.ProductionOrder{
			ID:                    "po-1",
			BatchCode:             "BRE260314001",
			CostingMethodSnapshot: domain.CostingFIFO,
			ActualOutputQty:       decimal.NewFromInt(100),
			PlannedOutputUnit:     domain.UnitPiece,
			FinishedAt:            &finishedAt,
		},
		Product: domain.Product{ID: "prd-1", SKU: "BRD-01", Name: "Bread"},
		Cost: domain.ProductionCost{
			MaterialCost:  decimal.RequireFromString("26"),
			PackagingCost: decimal.RequireFromString("5"),
			OverheadCost:  decimal.RequireFromString("2.6"),
			TotalCost:     decimal.RequireFromString("33.6"),
			UnitCost:      decimal.RequireFromString("0.336"),
		},
		Materials: []domain.CostBreakdownLine{
			{MaterialID: "mat-1", MaterialName: "Flour", BatchID: "bat-1", LotNumber: "LOT-A", Qty: decimal.NewFromInt(10), Unit: domain.UnitKilogram, UnitCostApplied: decimal.NewFromInt(2), TotalCost: decimal.NewFromInt(20)},
			{MaterialID: "mat-1", MaterialName: "Flour", BatchID: "bat-2", LotNumber: "LOT-B", Qty: decimal.NewFromInt(2), Unit: domain.UnitKilogram, UnitCostApplied: decimal.NewFromInt(3), TotalCost: decimal.NewFromInt(6)},
		},
	}

	data, err := CostBreakdownWorkbook(breakdown)
	if err != nil {
		t.Fatalf("workbook failed: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("reopen workbook failed: %v", err)
	}
	defer func() { _ = f.Close() }()

	total, err := f.GetCellValue(summarySheet, "B12")
	if err != nil {
		t.Fatalf("read total failed: %v", err)
	}
	if total != "33.6" {
		t.Fatalf("expected total 33.6, got %q", total)
	}

	rows, err := f.GetRows(materialsSheet)
	if err != nil {
		t.Fatalf("read materials failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus two lines, got %d rows", len(rows))
	}
	if rows[1][3] != "LOT-A" || rows[2][7] != "6" {
		t.Fatalf("unexpected material rows: %v", rows)
	}

	if name := CostBreakdownFileName(breakdown); name != "cost_BRE260314001_20260314.xlsx" {
		t.Fatalf("unexpected file name: %s", name)
	}
}
