package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/logger"
	"github.com/fnsdeividy/base-arch-sub000/internal/metrics"
	"github.com/fnsdeividy/base-arch-sub000/internal/service"
	"github.com/fnsdeividy/base-arch-sub000/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	lg := logger.Discard()
	rec := metrics.New()
	svc := service.New(repo, service.Options{Logger: lg, Metrics: rec})
	auth, err := NewAuthManager(context.Background(), AuthConfig{
		Secret:   "test-secret-key",
		TokenTTL: time.Hour,
		Logger:   logrus.NewEntry(lg),
	}, repo)
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	return New(svc, auth, "*", lg, rec)
}

type client struct {
	t       *testing.T
	handler http.Handler
	token   string
	csrf    string
}

func newClient(t *testing.T, api *API, username, password string) *client {
	t.Helper()
	handler := api.Handler()
	return &client{
		t:       t,
		handler: handler,
		token:   login(t, handler, username, password),
		csrf:    fetchCSRFToken(t, handler),
	}
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-CSRF-Token", c.csrf)
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func (c *client) expect(method, path string, body any, status int, dest any) {
	c.t.Helper()
	rec := c.do(method, path, body)
	if rec.Code != status {
		c.t.Fatalf("%s %s: expected %d, got %d (body: %s)", method, path, status, rec.Code, rec.Body.String())
	}
	if dest != nil {
		if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
			c.t.Fatalf("%s %s: decode body: %v", method, path, err)
		}
	}
}

func login(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("%s login failed, status %d", username, res.Code)
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.AccessToken
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestOperatorCannotWriteCatalog(t *testing.T) {
	api := newTestAPI(t)
	operator := newClient(t, api, "operator", "operator123")

	operator.expect(http.MethodPost, "/api/v1/production/materials", map[string]any{
		"name":      "Flour",
		"base_unit": "kg",
		"min_stock": "1",
	}, http.StatusForbidden, nil)
	operator.expect(http.MethodGet, "/api/v1/production/materials", nil, http.StatusOK, nil)
	operator.expect(http.MethodGet, "/api/v1/users/operators", nil, http.StatusForbidden, nil)
}

func TestValidationErrorsListFields(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")

	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	admin.expect(http.MethodPost, "/api/v1/production/materials", map[string]any{
		"name":      "",
		"base_unit": "kg",
		"min_stock": "-1",
	}, http.StatusBadRequest, &body)

	if body.Fields["name"] != "required" || body.Fields["min_stock"] != "gte" {
		t.Fatalf("unexpected validation fields: %+v", body.Fields)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")

	admin.expect(http.MethodPost, "/api/v1/products", map[string]any{
		"sku":       "BRD-01",
		"name":      "Bread",
		"base_unit": "unit",
		"price":     "3",
	}, http.StatusBadRequest, nil)
}

func TestErrorStatusMapping(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")

	admin.expect(http.MethodGet, "/api/v1/production/materials/mat-missing", nil, http.StatusNotFound, nil)
	admin.expect(http.MethodPost, "/api/v1/production/unit-conversions/convert", map[string]any{
		"qty":       "1",
		"from_unit": "kg",
		"to_unit":   "l",
	}, http.StatusUnprocessableEntity, nil)
	admin.expect(http.MethodPost, "/api/v1/production/unit-conversions/convert", map[string]any{
		"qty":       "1",
		"from_unit": "cup",
		"to_unit":   "l",
	}, http.StatusBadRequest, nil)

	var converted domain.ConvertResponse
	admin.expect(http.MethodPost, "/api/v1/production/unit-conversions/convert", map[string]any{
		"qty":       "1.5",
		"from_unit": "kg",
		"to_unit":   "g",
	}, http.StatusOK, &converted)
	if !converted.Result.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("expected 1500 g, got %s", converted.Result)
	}
}

func TestProductionFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")
	operator := newClient(t, api, "operator", "operator123")

	var productResp struct {
		Product domain.Product `json:"product"`
	}
	admin.expect(http.MethodPost, "/api/v1/products", map[string]any{
		"sku":       "brd-01",
		"name":      "Bread",
		"base_unit": "unit",
	}, http.StatusCreated, &productResp)
	product := productResp.Product

	var materialResp struct {
		Material domain.Material `json:"material"`
	}
	admin.expect(http.MethodPost, "/api/v1/production/materials", map[string]any{
		"name":      "Flour",
		"base_unit": "kg",
		"min_stock": "1",
	}, http.StatusCreated, &materialResp)
	flour := materialResp.Material

	admin.expect(http.MethodPost, "/api/v1/production/bom", map[string]any{
		"product_id":  product.ID,
		"material_id": flour.ID,
		"qty":         "12",
		"unit":        "kg",
	}, http.StatusCreated, nil)

	operator.expect(http.MethodPost, "/api/v1/production/batches", map[string]any{
		"material_id": flour.ID,
		"quantity":    "10",
		"unit":        "kg",
		"unit_cost":   "2",
		"lot_number":  "LOT-A",
		"received_at": "2026-01-01T08:00:00Z",
	}, http.StatusCreated, nil)
	operator.expect(http.MethodPost, "/api/v1/production/batches", map[string]any{
		"material_id": flour.ID,
		"quantity":    "5000",
		"unit":        "g",
		"unit_cost":   "0.003",
		"lot_number":  "LOT-B",
		"received_at": "2026-01-02T08:00:00Z",
	}, http.StatusCreated, nil)

	var scaleResp struct {
		Recipe domain.RecipeScale `json:"recipe"`
	}
	operator.expect(http.MethodGet, "/api/v1/production/bom/scale?product_id="+product.ID+"&qty=50", nil, http.StatusOK, &scaleResp)
	if len(scaleResp.Recipe.Lines) != 1 || !scaleResp.Recipe.Lines[0].FinalQty.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("unexpected recipe scale: %+v", scaleResp.Recipe)
	}

	var orderResp struct {
		Order domain.ProductionOrder `json:"order"`
	}
	operator.expect(http.MethodPost, "/api/v1/production/orders", map[string]any{
		"product_id":                     product.ID,
		"planned_output_qty":             "100",
		"costing_method":                 "fifo",
		"overhead_percent":               "10",
		"packaging_cost_per_output_unit": "0.05",
	}, http.StatusCreated, &orderResp)
	orderPath := "/api/v1/production/orders/" + orderResp.Order.ID

	var estimate domain.CostEstimate
	operator.expect(http.MethodGet, orderPath+"/cost-estimate", nil, http.StatusOK, &estimate)
	if !estimate.Cost.TotalCost.Equal(decimal.RequireFromString("33.6")) {
		t.Fatalf("expected estimated total 33.6, got %s", estimate.Cost.TotalCost)
	}

	operator.expect(http.MethodGet, orderPath+"/cost-breakdown", nil, http.StatusBadRequest, nil)
	operator.expect(http.MethodPost, orderPath+"/start", nil, http.StatusOK, nil)
	operator.expect(http.MethodPost, orderPath+"/start", nil, http.StatusBadRequest, nil)

	var finished domain.FinishProductionResponse
	operator.expect(http.MethodPost, orderPath+"/finish", map[string]any{
		"actual_output_qty": "100",
	}, http.StatusOK, &finished)
	if !finished.Cost.MaterialCost.Equal(decimal.NewFromInt(26)) {
		t.Fatalf("expected material cost 26, got %s", finished.Cost.MaterialCost)
	}
	if !finished.Cost.UnitCost.Equal(decimal.RequireFromString("0.336")) {
		t.Fatalf("expected unit cost 0.336, got %s", finished.Cost.UnitCost)
	}
	if finished.Order.Status != domain.OrderFinished {
		t.Fatalf("expected finished order, got %s", finished.Order.Status)
	}

	var breakdown domain.CostBreakdown
	operator.expect(http.MethodGet, orderPath+"/cost-breakdown", nil, http.StatusOK, &breakdown)
	if len(breakdown.Materials) != 2 || breakdown.Materials[0].LotNumber != "LOT-A" {
		t.Fatalf("unexpected breakdown lines: %+v", breakdown.Materials)
	}

	rec := operator.do(http.MethodGet, orderPath+"/cost-breakdown/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export failed: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("unexpected export content type %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), finished.Order.BatchCode) {
		t.Fatalf("expected batch code in file name, got %q", rec.Header().Get("Content-Disposition"))
	}
	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("open exported workbook: %v", err)
	}
	defer func() { _ = book.Close() }()

	var costResp struct {
		Cost domain.ProductCostCache `json:"cost"`
	}
	operator.expect(http.MethodGet, "/api/v1/products/"+product.ID+"/cost", nil, http.StatusOK, &costResp)
	if !costResp.Cost.UnitCost.Equal(decimal.RequireFromString("0.336")) {
		t.Fatalf("expected cached unit cost 0.336, got %s", costResp.Cost.UnitCost)
	}

	var goods struct {
		FinishedGoods []domain.FinishedGoodsInventory `json:"finished_goods"`
	}
	operator.expect(http.MethodGet, "/api/v1/production/finished-goods?product_id="+product.ID, nil, http.StatusOK, &goods)
	if len(goods.FinishedGoods) != 1 {
		t.Fatalf("expected one finished goods row, got %d", len(goods.FinishedGoods))
	}

	var logs struct {
		Logs []domain.AuditLog `json:"logs"`
	}
	admin.expect(http.MethodGet, "/api/v1/production/audit-logs?from=2000-01-01", nil, http.StatusOK, &logs)
	if len(logs.Logs) == 0 {
		t.Fatalf("expected audit entries after a production run")
	}
}

func TestMaterialDeleteAndLowStock(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")

	var materialResp struct {
		Material domain.Material `json:"material"`
	}
	admin.expect(http.MethodPost, "/api/v1/production/materials", map[string]any{
		"name":      "Sugar",
		"base_unit": "kg",
		"min_stock": "2",
	}, http.StatusCreated, &materialResp)

	var low struct {
		Materials []domain.LowStockMaterial `json:"materials"`
	}
	admin.expect(http.MethodGet, "/api/v1/production/materials/low-stock", nil, http.StatusOK, &low)
	if len(low.Materials) != 1 {
		t.Fatalf("expected sugar to be low on stock, got %+v", low.Materials)
	}

	var availability struct {
		Availability domain.MaterialAvailability `json:"availability"`
	}
	admin.expect(http.MethodGet, "/api/v1/production/materials/"+materialResp.Material.ID+"/availability?qty=1&unit=kg", nil, http.StatusOK, &availability)
	if availability.Availability.Status != domain.AvailabilityUnavailable {
		t.Fatalf("expected unavailable, got %s", availability.Availability.Status)
	}

	admin.expect(http.MethodDelete, "/api/v1/production/materials/"+materialResp.Material.ID, nil, http.StatusNoContent, nil)
	admin.expect(http.MethodGet, "/api/v1/production/materials/"+materialResp.Material.ID, nil, http.StatusNotFound, nil)
}

func TestSettingsAndOperators(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")

	var settingsResp struct {
		Settings domain.ProductionSettings `json:"settings"`
	}
	admin.expect(http.MethodPut, "/api/v1/production/settings", map[string]any{
		"costing_method":           "wac",
		"default_overhead_percent": "12.5",
	}, http.StatusOK, &settingsResp)
	if settingsResp.Settings.CostingMethod != domain.CostingWAC {
		t.Fatalf("expected wac, got %s", settingsResp.Settings.CostingMethod)
	}
	admin.expect(http.MethodPut, "/api/v1/production/settings", map[string]any{
		"costing_method": "lifo",
	}, http.StatusBadRequest, nil)

	admin.expect(http.MethodPost, "/api/v1/users/operators", map[string]any{
		"username": "baker01",
		"password": "pass1234",
	}, http.StatusCreated, nil)
	admin.expect(http.MethodPost, "/api/v1/users/operators", map[string]any{
		"username": "baker01",
		"password": "pass1234",
	}, http.StatusConflict, nil)

	var operators struct {
		Operators []domain.OperatorUser `json:"operators"`
	}
	admin.expect(http.MethodGet, "/api/v1/users/operators", nil, http.StatusOK, &operators)
	if len(operators.Operators) != 2 {
		t.Fatalf("expected seeded and new operator, got %+v", operators.Operators)
	}

	login(t, api.Handler(), "baker01", "pass1234")
}

func TestMetricsEndpointExposesHTTPRequests(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "costing_http_requests_total") {
		t.Fatalf("expected http request counter in metrics output")
	}
}
