package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
)

func TestRecorderCountsTransitions(t *testing.T) {
	r := New()
	r.OrderTransition(domain.OrderInProgress, domain.CostingFIFO)
	r.OrderTransition(domain.OrderInProgress, domain.CostingFIFO)
	r.OrderTransition(domain.OrderFinished, domain.CostingWAC)

	if got := testutil.ToFloat64(r.transitions.WithLabelValues("in_progress", "fifo")); got != 2 {
		t.Fatalf("expected 2 in_progress transitions, got %v", got)
	}

	r.ProductionFinished("prod-1", domain.CostingWAC, domain.ProductionCost{
		MaterialCost: decimal.NewFromInt(26),
		UnitCost:     decimal.RequireFromString("3.25"),
	}, 20*time.Millisecond)
	if got := testutil.ToFloat64(r.unitCost.WithLabelValues("prod-1", "wac")); got != 3.25 {
		t.Fatalf("expected unit cost gauge 3.25, got %v", got)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.OrderTransition(domain.OrderCanceled, domain.CostingFIFO)
	r.HTTPRequest("GET", "200")
	if r.Registry() != nil {
		t.Fatalf("expected nil registry")
	}
}
