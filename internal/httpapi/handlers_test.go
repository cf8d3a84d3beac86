package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tokopos/backend/internal/cache"
	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/service"
	"tokopos/backend/internal/store/memory"
)

// newTestAPI builds a full API with a seeded in-memory store, real AuthManager
// and real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopSummaryCache{})
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func loginAs(t *testing.T, api *API, username string, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("login as %s failed, status %d (body: %s)", username, res.Code, res.Body.String())
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if payload.AccessToken == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.AccessToken
}

func doJSON(t *testing.T, api *API, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodGet, "/healthz", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")
	if token == "" {
		t.Fatalf("expected non-empty token")
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: "admin",
		Password: "wrongpassword",
	})
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestProductsRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodGet, "/api/v1/products", "", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}
}

func TestProductsListWithToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "employee", "employee123")

	res := doJSON(t, api, http.MethodGet, "/api/v1/products", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}

	var body struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Products) == 0 {
		t.Fatalf("expected seeded products in response")
	}
}

func TestEmployeeCannotCreateProduct(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "employee", "employee123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/products", token, domain.ProductCreateRequest{
		Name:      "Produk Baru",
		SellCents: 5000,
	})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for employee, got %d", res.Code)
	}
}

func TestAdminCanCreateProduct(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/products", token, domain.ProductCreateRequest{
		Name:      "Produk Baru",
		Category:  "grocery",
		CostCents: 3000,
		SellCents: 5000,
		StockQty:  10,
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestSaleThenUndoRoundTrip(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "employee", "employee123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"product_id": "prd-mie-01",
		"qty":        2,
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 for sale, got %d (body: %s)", res.Code, res.Body.String())
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/undo", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for undo, got %d (body: %s)", res.Code, res.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true after undoing a sale, got %v", body)
	}
}

func TestUndoEmptySlotIsBenign(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "employee", "employee123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/undo", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty undo slot, got %d", res.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != false {
		t.Fatalf("expected ok:false for empty slot, got %v", body)
	}
}

func TestSaleInsufficientStockReturnsConflict(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "employee", "employee123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"product_id": "prd-mie-01",
		"qty":        1000000,
	})
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestMonthlyRestockRequiresAdminRole(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "employee", "employee123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/inventory/monthly-restock", token, domain.MonthlyRestockRequest{
		Updates: []domain.RestockUpdate{{ProductID: "prd-mie-01", NewQty: 500}},
	})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for employee, got %d", res.Code)
	}
}

func TestRestockDetailsUnknownTransaction(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "employee", "employee123")

	res := doJSON(t, api, http.MethodGet, "/api/v1/transactions/txn-nope/restock-details", token, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestDashboardSummary(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "employee", "employee123")

	res := doJSON(t, api, http.MethodGet, "/api/v1/dashboard/summary?window=week", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, ok := body["totals"]; !ok {
		t.Fatalf("expected totals in summary, got %v", body)
	}
}

func TestDashboardExportCSV(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	res := doJSON(t, api, http.MethodGet, "/api/v1/dashboard/export?report=products&format=csv", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	if ct := res.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if res.Header().Get("Content-Disposition") == "" {
		t.Fatalf("expected attachment disposition")
	}
}

func TestDashboardExportXLSX(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	res := doJSON(t, api, http.MethodGet, "/api/v1/dashboard/export?format=xlsx", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if res.Body.Len() == 0 {
		t.Fatalf("expected non-empty workbook body")
	}
}

func TestDashboardExportRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "employee", "employee123")

	res := doJSON(t, api, http.MethodGet, "/api/v1/dashboard/export", token, nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for employee, got %d", res.Code)
	}
}

func TestServiceIncomeEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "employee", "employee123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/finance/income", token, domain.ServiceIncomeRequest{
		ServiceIDs:   []string{"svc-cukur-01"},
		CustomerName: "Ibu Sari",
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestUsersEndpointCreatesEmployee(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	res := doJSON(t, api, http.MethodPost, "/api/v1/users", token, domain.UserCreateRequest{
		Username: "kasirbaru",
		Password: "pass1234",
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}

	// The new account can log in right away.
	loginAs(t, api, "kasirbaru", "pass1234")
}
