package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
)

func TestSecurityHeadersAcrossRoutes(t *testing.T) {
	handler := newTestAPI(t).Handler()
	routes := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodOptions, "/api/v1/production/materials", http.StatusNoContent},
		{http.MethodGet, "/api/v1/production/materials", http.StatusUnauthorized},
	}
	want := map[string]string{
		"X-Content-Type-Options":      "nosniff",
		"X-Frame-Options":             "DENY",
		"Referrer-Policy":             "strict-origin-when-cross-origin",
		"Access-Control-Allow-Origin": "*",
	}

	for _, route := range routes {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(route.method, route.path, nil))
		if res.Code != route.status {
			t.Fatalf("%s %s: expected %d, got %d", route.method, route.path, route.status, res.Code)
		}
		for header, value := range want {
			if got := res.Header().Get(header); got != value {
				t.Fatalf("%s %s: expected %s %q, got %q", route.method, route.path, header, value, got)
			}
		}
	}
}

func TestLoginLimiterKeysByClientAddress(t *testing.T) {
	handler := newTestAPI(t).Handler()
	attempt := func(addr, password string) int {
		body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: password})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = addr
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		return res.Code
	}

	for i := 1; i <= 5; i++ {
		if code := attempt("10.0.0.7:4000", "wrong-pass"); code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401, got %d", i, code)
		}
	}
	if code := attempt("10.0.0.7:4001", "admin123"); code != http.StatusTooManyRequests {
		t.Fatalf("a new source port from the same host should stay limited, got %d", code)
	}
	if code := attempt("10.0.0.8:4000", "admin123"); code != http.StatusOK {
		t.Fatalf("another host should not share the limit, got %d", code)
	}
}

func TestOversizedMaterialPayloadRejected(t *testing.T) {
	api := newTestAPI(t)
	admin := newClient(t, api, "admin", "admin123")
	body := fmt.Sprintf(`{"name":"%s","base_unit":"kg"}`, strings.Repeat("f", (1<<20)+512))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/production/materials", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+admin.token)
	req.Header.Set("X-CSRF-Token", admin.csrf)
	res := httptest.NewRecorder()

	admin.handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a body over 1MiB, got %d", res.Code)
	}
}

func TestMutationWithoutCSRFTokenRejected(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "admin", "admin123")

	body, _ := json.Marshal(domain.ProductCreateRequest{SKU: "BRD-01", Name: "Bread", BaseUnit: "unit"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()

	handler.ServeHTTP(res, req)

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf token, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/production/materials/mat-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", "forged")
	res = httptest.NewRecorder()

	handler.ServeHTTP(res, req)

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with forged csrf token, got %d", res.Code)
	}
}

func TestCSRFTokenRoundTrip(t *testing.T) {
	api := newTestAPI(t)
	current := api.generateCSRFToken()
	if !api.validateCSRFToken(current) {
		t.Fatalf("expected current token to validate")
	}
	if api.validateCSRFToken("") {
		t.Fatalf("expected empty token to be rejected")
	}
}

func TestParsePositiveLimit(t *testing.T) {
	cases := map[string]int{
		"":        50,
		"25":      25,
		"9999":    200,
		"0":       50,
		"-3":      50,
		"invalid": 50,
	}
	for raw, want := range cases {
		if got := parsePositiveLimit(raw, 50, 200); got != want {
			t.Fatalf("parsePositiveLimit(%q): expected %d, got %d", raw, want, got)
		}
	}
}

// fetchCSRFToken calls the CSRF token endpoint and returns the token string.
func fetchCSRFToken(t *testing.T, handler http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("csrf-token endpoint returned status %d", res.Code)
	}
	var payload map[string]string
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode csrf-token response failed: %v", err)
	}
	tok := payload["csrf_token"]
	if strings.TrimSpace(tok) == "" {
		t.Fatalf("expected non-empty csrf_token in response")
	}
	return tok
}
