package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/export"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Products

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := a.decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if err := a.decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleProductCost(w http.ResponseWriter, r *http.Request) {
	cost, err := a.service.GetProductCost(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cost": cost})
}

// Materials

func (a *API) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	materials, err := a.service.ListMaterials(r.Context(), store.MaterialFilter{
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"materials": materials})
}

func (a *API) handleCreateMaterial(w http.ResponseWriter, r *http.Request) {
	var req domain.MaterialCreateRequest
	if err := a.decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	material, err := a.service.CreateMaterial(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"material": material})
}

func (a *API) handleGetMaterial(w http.ResponseWriter, r *http.Request) {
	material, err := a.service.GetMaterial(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"material": material})
}

func (a *API) handleUpdateMaterial(w http.ResponseWriter, r *http.Request) {
	var req domain.MaterialUpdateRequest
	if err := a.decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	material, err := a.service.UpdateMaterial(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"material": material})
}

func (a *API) handleDeleteMaterial(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteMaterial(r.Context(), r.PathValue("id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMaterialAvailability(w http.ResponseWriter, r *http.Request) {
	qty, err := parseDecimalParam(r.URL.Query().Get("qty"), "qty")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	availability, err := a.service.CheckMaterialAvailability(r.Context(), r.PathValue("id"), qty, r.URL.Query().Get("unit"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"availability": availability})
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	materials, err := a.service.GetLowStockMaterials(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"materials": materials})
}

// Batches

func (a *API) handleListBatches(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	batches, err := a.service.ListBatches(r.Context(), store.BatchFilter{
		MaterialID: strings.TrimSpace(query.Get("material_id")),
		Status:     domain.BatchStatus(strings.TrimSpace(query.Get("status"))),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (a *API) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchCreateRequest
	if err := a.decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	batch, err := a.service.CreateBatch(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"batch": batch})
}

func (a *API) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := a.service.GetBatch(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": batch})
}

func (a *API) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteBatch(r.Context(), r.PathValue("id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Bill of materials

func (a *API) handleListBOM(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	lines, err := a.service.ListBOM(r.Context(), store.BOMFilter{
		ProductID:  strings.TrimSpace(query.Get("product_id")),
		MaterialID: strings.TrimSpace(query.Get("material_id")),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bom": lines})
}

func (a *API) handleCreateBOM(w http.ResponseWriter, r *http.Request) {
	var req domain.BOMCreateRequest
	if err := a.decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	line, err := a.service.CreateBOM(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"bom": line})
}

func (a *API) handleUpdateBOM(w http.ResponseWriter, r *http.Request) {
	var req domain.BOMUpdateRequest
	if err := a.decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	line, err := a.service.UpdateBOM(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bom": line})
}

func (a *API) handleDeleteBOM(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteBOM(r.Context(), r.PathValue("id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleScaleRecipe(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	qty, err := parseDecimalParam(query.Get("qty"), "qty")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	scale, err := a.service.ScaleRecipe(r.Context(), strings.TrimSpace(query.Get("product_id")), qty, query.Get("unit"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recipe": scale})
}

// Unit conversions

func (a *API) handleListConversions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	conversions, err := a.service.ListUnitConversions(r.Context(), store.UnitConversionFilter{
		MaterialID: strings.TrimSpace(query.Get("material_id")),
		GlobalOnly: query.Get("global") == "true",
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversions": conversions})
}

func (a *API) handleCreateConversion(w http.ResponseWriter, r *http.Request) {
	var req domain.UnitConversionCreateRequest
	if err := a.decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	conversion, err := a.service.CreateUnitConversion(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"conversion": conversion})
}

func (a *API) handleDeleteConversion(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteUnitConversion(r.Context(), r.PathValue("id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req domain.ConvertRequest
	if err := a.decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	result, err := a.service.Convert(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Production orders

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	orders, err := a.service.ListProductionOrders(r.Context(), store.OrderFilter{
		ProductID: strings.TrimSpace(query.Get("product_id")),
		Status:    domain.OrderStatus(strings.TrimSpace(query.Get("status"))),
		Limit:     parsePositiveLimit(query.Get("limit"), 100, 500),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductionOrderCreateRequest
	if err := a.decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	order, err := a.service.CreateProductionOrder(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.GetProductionOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductionOrderUpdateRequest
	if err := a.decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	order, err := a.service.UpdateProductionOrder(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleStartOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.StartProduction(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleFinishOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.FinishProductionRequest
	if err := a.decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	resp, err := a.service.FinishProduction(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.CancelProductionRequest
	if r.ContentLength != 0 {
		if err := a.decodeBody(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	order, err := a.service.CancelProduction(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleOrderAvailability(w http.ResponseWriter, r *http.Request) {
	availability, err := a.service.CheckOrderAvailability(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availability)
}

func (a *API) handleCostEstimate(w http.ResponseWriter, r *http.Request) {
	estimate, err := a.service.EstimateOrderCost(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}

func (a *API) handleCostBreakdown(w http.ResponseWriter, r *http.Request) {
	breakdown, err := a.service.GetCostBreakdown(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

func (a *API) handleCostBreakdownExport(w http.ResponseWriter, r *http.Request) {
	breakdown, err := a.service.GetCostBreakdown(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	data, err := export.CostBreakdownWorkbook(breakdown)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.CostBreakdownFileName(breakdown)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *API) handleFinishedGoods(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	goods, err := a.service.ListFinishedGoods(r.Context(), store.FinishedGoodsFilter{
		ProductID:         strings.TrimSpace(query.Get("product_id")),
		ProductionOrderID: strings.TrimSpace(query.Get("production_order_id")),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"finished_goods": goods})
}

// Settings and audit

func (a *API) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.service.GetSettings(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

func (a *API) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req domain.SettingsUpdateRequest
	if err := a.decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	settings, err := a.service.UpdateSettings(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	to := time.Now().UTC()
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		parsed, err := parseTimeParam(raw, true)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		to = parsed
	}
	from := to.Add(-7 * 24 * time.Hour)
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		parsed, err := parseTimeParam(raw, false)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		from = parsed
	}
	limit := parsePositiveLimit(query.Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), from, to, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// parseTimeParam accepts RFC3339 or YYYY-MM-DD. A bare date used as an
// upper bound covers the whole day.
func parseTimeParam(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid time %q", store.ErrInvalidInput, raw)
	}
	if endOfDay {
		return day.Add(24 * time.Hour), nil
	}
	return day, nil
}

// Users

func (a *API) handleListOperators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"operators": a.auth.ListOperators(r.Context())})
}

func (a *API) handleCreateOperator(w http.ResponseWriter, r *http.Request) {
	var req domain.OperatorCreateRequest
	if err := a.decodeBody(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	operator, err := a.auth.CreateOperator(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"operator": operator})
}
