package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
)

// Recorder is nil-safe: every method on a nil *Recorder is a no-op.
type Recorder struct {
	registry     *prometheus.Registry
	transitions  *prometheus.CounterVec
	unitCost     *prometheus.GaugeVec
	materialCost *prometheus.CounterVec
	finishTime   prometheus.Histogram
	httpRequests *prometheus.CounterVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "costing",
			Name:      "production_order_transitions_total",
			Help:      "Production order status transitions.",
		}, []string{"status", "method"}),
		unitCost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "costing",
			Name:      "product_unit_cost",
			Help:      "Latest calculated unit cost per product.",
		}, []string{"product_id", "method"}),
		materialCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "costing",
			Name:      "material_cost_consumed_total",
			Help:      "Material cost consumed by finished production orders.",
		}, []string{"method"}),
		finishTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "costing",
			Name:      "finish_production_seconds",
			Help:      "Time spent in the finish production transaction.",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "costing",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.transitions,
		r.unitCost,
		r.materialCost,
		r.finishTime,
		r.httpRequests,
	)
	return r
}

func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) OrderTransition(status domain.OrderStatus, method domain.CostingMethod) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(string(status), string(method)).Inc()
}

func (r *Recorder) ProductionFinished(productID string, method domain.CostingMethod, cost domain.ProductionCost, took time.Duration) {
	if r == nil {
		return
	}
	r.unitCost.WithLabelValues(productID, string(method)).Set(toFloat(cost.UnitCost))
	r.materialCost.WithLabelValues(string(method)).Add(toFloat(cost.MaterialCost))
	r.finishTime.Observe(took.Seconds())
}

func (r *Recorder) HTTPRequest(method string, code string) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, code).Inc()
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
