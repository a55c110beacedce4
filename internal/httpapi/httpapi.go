package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/logger"
	"github.com/fnsdeividy/base-arch-sub000/internal/metrics"
	"github.com/fnsdeividy/base-arch-sub000/internal/service"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
	"github.com/fnsdeividy/base-arch-sub000/internal/units"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
	validate      *validator.Validate
	log           *logrus.Entry
	metrics       *metrics.Recorder
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, lg *logrus.Logger, rec *metrics.Recorder) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
		validate:      newValidator(),
		log:           lg.WithField("module", "httpapi"),
		metrics:       rec,
	}
}

// newValidator lets decimal fields use the numeric tags (gt, gte, lte).
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	bucket := time.Now().UTC().Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken accepts tokens from the current or the previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	currentBucket := time.Now().UTC().Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(currentBucket))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(prevBucket)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	admin := domain.RoleAdmin
	staff := []string{domain.RoleAdmin, domain.RoleOperator}

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.Handle("GET /metrics", a.metrics.Handler())
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("GET /api/v1/products", a.requireAuth(a.handleListProducts, staff...))
	mux.HandleFunc("POST /api/v1/products", a.requireAuth(a.handleCreateProduct, admin))
	mux.HandleFunc("GET /api/v1/products/{id}", a.requireAuth(a.handleGetProduct, staff...))
	mux.HandleFunc("PATCH /api/v1/products/{id}", a.requireAuth(a.handleUpdateProduct, admin))
	mux.HandleFunc("GET /api/v1/products/{id}/cost", a.requireAuth(a.handleProductCost, staff...))

	mux.HandleFunc("GET /api/v1/production/materials", a.requireAuth(a.handleListMaterials, staff...))
	mux.HandleFunc("POST /api/v1/production/materials", a.requireAuth(a.handleCreateMaterial, admin))
	mux.HandleFunc("GET /api/v1/production/materials/low-stock", a.requireAuth(a.handleLowStock, staff...))
	mux.HandleFunc("GET /api/v1/production/materials/{id}", a.requireAuth(a.handleGetMaterial, staff...))
	mux.HandleFunc("PATCH /api/v1/production/materials/{id}", a.requireAuth(a.handleUpdateMaterial, admin))
	mux.HandleFunc("DELETE /api/v1/production/materials/{id}", a.requireAuth(a.handleDeleteMaterial, admin))
	mux.HandleFunc("GET /api/v1/production/materials/{id}/availability", a.requireAuth(a.handleMaterialAvailability, staff...))

	mux.HandleFunc("GET /api/v1/production/batches", a.requireAuth(a.handleListBatches, staff...))
	mux.HandleFunc("POST /api/v1/production/batches", a.requireAuth(a.handleCreateBatch, staff...))
	mux.HandleFunc("GET /api/v1/production/batches/{id}", a.requireAuth(a.handleGetBatch, staff...))
	mux.HandleFunc("DELETE /api/v1/production/batches/{id}", a.requireAuth(a.handleDeleteBatch, admin))

	mux.HandleFunc("GET /api/v1/production/bom", a.requireAuth(a.handleListBOM, staff...))
	mux.HandleFunc("POST /api/v1/production/bom", a.requireAuth(a.handleCreateBOM, admin))
	mux.HandleFunc("GET /api/v1/production/bom/scale", a.requireAuth(a.handleScaleRecipe, staff...))
	mux.HandleFunc("PATCH /api/v1/production/bom/{id}", a.requireAuth(a.handleUpdateBOM, admin))
	mux.HandleFunc("DELETE /api/v1/production/bom/{id}", a.requireAuth(a.handleDeleteBOM, admin))

	mux.HandleFunc("GET /api/v1/production/unit-conversions", a.requireAuth(a.handleListConversions, staff...))
	mux.HandleFunc("POST /api/v1/production/unit-conversions", a.requireAuth(a.handleCreateConversion, admin))
	mux.HandleFunc("POST /api/v1/production/unit-conversions/convert", a.requireAuth(a.handleConvert, staff...))
	mux.HandleFunc("DELETE /api/v1/production/unit-conversions/{id}", a.requireAuth(a.handleDeleteConversion, admin))

	mux.HandleFunc("GET /api/v1/production/orders", a.requireAuth(a.handleListOrders, staff...))
	mux.HandleFunc("POST /api/v1/production/orders", a.requireAuth(a.handleCreateOrder, staff...))
	mux.HandleFunc("GET /api/v1/production/orders/{id}", a.requireAuth(a.handleGetOrder, staff...))
	mux.HandleFunc("PATCH /api/v1/production/orders/{id}", a.requireAuth(a.handleUpdateOrder, staff...))
	mux.HandleFunc("POST /api/v1/production/orders/{id}/start", a.requireAuth(a.handleStartOrder, staff...))
	mux.HandleFunc("POST /api/v1/production/orders/{id}/finish", a.requireAuth(a.handleFinishOrder, staff...))
	mux.HandleFunc("POST /api/v1/production/orders/{id}/cancel", a.requireAuth(a.handleCancelOrder, staff...))
	mux.HandleFunc("GET /api/v1/production/orders/{id}/availability", a.requireAuth(a.handleOrderAvailability, staff...))
	mux.HandleFunc("GET /api/v1/production/orders/{id}/cost-estimate", a.requireAuth(a.handleCostEstimate, staff...))
	mux.HandleFunc("GET /api/v1/production/orders/{id}/cost-breakdown", a.requireAuth(a.handleCostBreakdown, staff...))
	mux.HandleFunc("GET /api/v1/production/orders/{id}/cost-breakdown/export", a.requireAuth(a.handleCostBreakdownExport, staff...))

	mux.HandleFunc("GET /api/v1/production/finished-goods", a.requireAuth(a.handleFinishedGoods, staff...))
	mux.HandleFunc("GET /api/v1/production/settings", a.requireAuth(a.handleGetSettings, staff...))
	mux.HandleFunc("PUT /api/v1/production/settings", a.requireAuth(a.handleUpdateSettings, admin))
	mux.HandleFunc("GET /api/v1/production/audit-logs", a.requireAuth(a.handleAuditLogs, admin))

	mux.HandleFunc("GET /api/v1/users/operators", a.requireAuth(a.handleListOperators, admin))
	mux.HandleFunc("POST /api/v1/users/operators", a.requireAuth(a.handleCreateOperator, admin))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a token for the X-CSRF-Token header of mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF writes a 403 and returns false when a state-changing request
// carries no valid token.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.metrics.HTTPRequest(r.Method, strconv.Itoa(rec.status))
		a.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(startedAt).Milliseconds(),
		}).Info("request")
	})
}

// decodeBody decodes the JSON body and runs struct validation on it.
func (a *API) decodeBody(r *http.Request, dest any) error {
	if err := decodeJSON(r, dest); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	return a.validate.Struct(dest)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func parseDecimalParam(raw string, name string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s must be a number", store.ErrInvalidInput, name)
	}
	return d, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, units.ErrUnsupportedConversion):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrInvalidInput), errors.Is(err, units.ErrUnknownUnit):
		return http.StatusBadRequest
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// fail maps a service error to its status code. Validation failures carry
// the offending fields and their failed tags.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": fields,
		})
		return
	}

	status := statusFor(err)
	if status >= 500 {
		logger.LogError(a.log, "httpapi", r.Method+" "+r.URL.Path, r.PathValue("id"), err)
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies never carry internal details.
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
