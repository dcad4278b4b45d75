package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"warungku/backend/internal/analytics"
	"warungku/backend/internal/domain"
	"warungku/backend/internal/service"
	"warungku/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.New()
	engine := analytics.NewEngine(nil, 0)
	svc := service.New(repo, engine)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
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
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", api.generateCSRFToken())
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

// registerAndLoginOwner creates a shop with an owner and returns the owner's
// token plus the shop id.
func registerAndLoginOwner(t *testing.T, api *API, shopName string) (string, string) {
	t.Helper()

	rec := doJSON(t, api, http.MethodPost, "/api/auth/register/owner", "", map[string]string{
		"shop_name":         shopName,
		"username":          "owner1",
		"password":          "rahasia1",
		"employee_password": "gabung1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register owner: %d %s", rec.Code, rec.Body.String())
	}
	var registered domain.RegisterResponse
	decodeBody(t, rec, &registered)

	rec = doJSON(t, api, http.MethodPost, "/api/auth/login/owner", "", map[string]string{
		"shop_name": shopName,
		"username":  "owner1",
		"password":  "rahasia1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login owner: %d %s", rec.Code, rec.Body.String())
	}
	var login domain.LoginResponse
	decodeBody(t, rec, &login)
	return login.AccessToken, registered.ShopID
}

func registerAndLoginEmployee(t *testing.T, api *API, shopName string, username string) string {
	t.Helper()

	rec := doJSON(t, api, http.MethodPost, "/api/auth/register/employee", "", map[string]string{
		"shop_name":         shopName,
		"username":          username,
		"password":          "rahasia1",
		"employee_password": "gabung1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register employee: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/auth/login/employee", "", map[string]string{
		"shop_name": shopName,
		"username":  username,
		"password":  "rahasia1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login employee: %d %s", rec.Code, rec.Body.String())
	}
	var login domain.LoginResponse
	decodeBody(t, rec, &login)
	return login.AccessToken
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestRegisterLoginRoundTrip(t *testing.T) {
	api := newTestAPI(t)

	token, shopID := registerAndLoginOwner(t, api, "Warung Tes")
	if token == "" || shopID == "" {
		t.Fatalf("expected token and shop id")
	}

	// Owner cannot log in through the employee endpoint.
	rec := doJSON(t, api, http.MethodPost, "/api/auth/login/employee", "", map[string]string{
		"shop_name": "Warung Tes",
		"username":  "owner1",
		"password":  "rahasia1",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for role mismatch, got %d", rec.Code)
	}
}

func TestRegisterEmployeeNeedsShopSecret(t *testing.T) {
	api := newTestAPI(t)
	registerAndLoginOwner(t, api, "Warung Tes")

	rec := doJSON(t, api, http.MethodPost, "/api/auth/register/employee", "", map[string]string{
		"shop_name":         "Warung Tes",
		"username":          "kasir1",
		"password":          "rahasia1",
		"employee_password": "salah123",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong employee password, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestSalesRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodPost, "/api/pending-sales/create", "", map[string]any{
		"shop_id": "shop-x",
		"items":   []map[string]any{{"product_id": "p", "quantity": 1}},
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	ownerToken, shopID := registerAndLoginOwner(t, api, "Warung Tes")
	employeeToken := registerAndLoginEmployee(t, api, "Warung Tes", "kasir1")

	rec := doJSON(t, api, http.MethodPost, "/api/catalog/products", ownerToken, map[string]any{
		"shop_id":     shopID,
		"section":     "Minuman",
		"name":        "Kopi Sachet",
		"price_cents": 2500,
		"quantity":    10,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before section exists, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/catalog/sections", ownerToken, map[string]string{
		"shop_id":      shopID,
		"section_name": "Minuman",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add section: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/catalog/products", ownerToken, map[string]any{
		"shop_id":     shopID,
		"section":     "Minuman",
		"name":        "Kopi Sachet",
		"price_cents": 2500,
		"quantity":    10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add product: %d %s", rec.Code, rec.Body.String())
	}
	var productResp struct {
		Product domain.Product `json:"product"`
	}
	decodeBody(t, rec, &productResp)

	rec = doJSON(t, api, http.MethodPost, "/api/pending-sales/create", employeeToken, map[string]any{
		"shop_id": shopID,
		"items":   []map[string]any{{"product_id": productResp.Product.ID, "quantity": 2}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: %d %s", rec.Code, rec.Body.String())
	}
	var saleResp struct {
		Sale domain.SaleView `json:"sale"`
	}
	decodeBody(t, rec, &saleResp)
	if saleResp.Sale.TotalCents != 5000 {
		t.Fatalf("expected total 5000, got %d", saleResp.Sale.TotalCents)
	}

	// Only the creator confirms; the owner gets 403.
	rec = doJSON(t, api, http.MethodPost, "/api/pending-sales/confirm/"+saleResp.Sale.ID, ownerToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-creator confirm, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/pending-sales/confirm/"+saleResp.Sale.ID, employeeToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: %d %s", rec.Code, rec.Body.String())
	}

	// Confirming again conflicts.
	rec = doJSON(t, api, http.MethodPost, "/api/pending-sales/confirm/"+saleResp.Sale.ID, employeeToken, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for double confirm, got %d", rec.Code)
	}

	// Completed sales cannot be deleted.
	rec = doJSON(t, api, http.MethodDelete, "/api/pending-sales/delete/"+saleResp.Sale.ID, ownerToken, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 deleting completed sale, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/analytics/shop/"+shopID, ownerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("analytics: %d %s", rec.Code, rec.Body.String())
	}
	var analyticsResp domain.ShopAnalytics
	decodeBody(t, rec, &analyticsResp)
	if analyticsResp.SaleCount != 1 || analyticsResp.TotalRevenueCents != 5000 {
		t.Fatalf("unexpected analytics: %+v", analyticsResp)
	}
}

func TestSaleCreationIsEmployeeOnly(t *testing.T) {
	api := newTestAPI(t)

	ownerToken, shopID := registerAndLoginOwner(t, api, "Warung Tes")

	rec := doJSON(t, api, http.MethodPost, "/api/pending-sales/create", ownerToken, map[string]any{
		"shop_id": shopID,
		"items":   []map[string]any{{"product_id": "prd-x", "quantity": 1}},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for owner sale creation, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestRestockIsOwnerOnly(t *testing.T) {
	api := newTestAPI(t)

	ownerToken, shopID := registerAndLoginOwner(t, api, "Warung Tes")
	employeeToken := registerAndLoginEmployee(t, api, "Warung Tes", "kasir1")

	rec := doJSON(t, api, http.MethodPost, "/api/catalog/sections", ownerToken, map[string]string{
		"shop_id":      shopID,
		"section_name": "Minuman",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add section: %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, api, http.MethodPost, "/api/catalog/products", ownerToken, map[string]any{
		"shop_id":     shopID,
		"section":     "Minuman",
		"name":        "Kopi Sachet",
		"price_cents": 2500,
		"quantity":    10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add product: %d %s", rec.Code, rec.Body.String())
	}
	var productResp struct {
		Product domain.Product `json:"product"`
	}
	decodeBody(t, rec, &productResp)

	rec = doJSON(t, api, http.MethodPost, "/api/catalog/products/"+productResp.Product.ID+"/restock", employeeToken, map[string]int{"delta": 5})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for employee restock, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/catalog/products/"+productResp.Product.ID+"/restock", ownerToken, map[string]int{"delta": 5})
	if rec.Code != http.StatusOK {
		t.Fatalf("owner restock: %d %s", rec.Code, rec.Body.String())
	}
}

func TestCrossShopAccessDenied(t *testing.T) {
	api := newTestAPI(t)

	_, shopID := registerAndLoginOwner(t, api, "Warung Satu")

	rec := doJSON(t, api, http.MethodPost, "/api/auth/register/owner", "", map[string]string{
		"shop_name":         "Warung Dua",
		"username":          "owner1",
		"password":          "rahasia1",
		"employee_password": "gabung1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register second shop: %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, api, http.MethodPost, "/api/auth/login/owner", "", map[string]string{
		"shop_name": "Warung Dua",
		"username":  "owner1",
		"password":  "rahasia1",
	})
	var otherLogin domain.LoginResponse
	decodeBody(t, rec, &otherLogin)

	rec = doJSON(t, api, http.MethodGet, "/api/pending-sales/shop/"+shopID, otherLogin.AccessToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 cross-shop, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestProfileUpdate(t *testing.T) {
	api := newTestAPI(t)
	token, _ := registerAndLoginOwner(t, api, "Warung Tes")

	rec := doJSON(t, api, http.MethodPatch, "/api/users/me", token, map[string]string{
		"about": "menjual kebutuhan harian",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update profile: %d %s", rec.Code, rec.Body.String())
	}
	var body struct {
		User domain.User `json:"user"`
	}
	decodeBody(t, rec, &body)
	if body.User.About != "menjual kebutuhan harian" {
		t.Fatalf("expected about saved, got %q", body.User.About)
	}
}

func TestLoginRateLimit(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	// The loginLimiter allows 5 attempts per minute per client.
	payload, _ := json.Marshal(map[string]string{
		"shop_name": "none",
		"username":  "owner1",
		"password":  "badpass",
	})

	var lastCode int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login/owner", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after 6 attempts, got %d", lastCode)
	}
}
