package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestCSRFRequiredOnMutatingRequests(t *testing.T) {
	api := newTestAPI(t)
	token, shopID := registerAndLoginOwner(t, api, "Warung Tes")

	body, _ := json.Marshal(map[string]string{
		"shop_id":      shopID,
		"section_name": "Minuman",
	})

	// Without a CSRF token the request is rejected even with valid auth.
	req := httptest.NewRequest(http.MethodPost, "/api/catalog/sections", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/catalog/sections", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", fetchCSRFToken(t, api))
	res = httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 with CSRF token, got %d (%s)", res.Code, res.Body.String())
	}
}

func TestCSRFExemptAuthPaths(t *testing.T) {
	api := newTestAPI(t)

	// Registration works without any CSRF token.
	body, _ := json.Marshal(map[string]string{
		"shop_name":         "Warung Tes",
		"username":          "owner1",
		"password":          "rahasia1",
		"employee_password": "gabung1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register/owner", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusCreated {
		t.Fatalf("expected register to be CSRF-exempt, got %d (%s)", res.Code, res.Body.String())
	}
}

func TestCSRFTokenValidatesAcrossHourBucket(t *testing.T) {
	api := newTestAPI(t)

	current := api.generateCSRFToken()
	if !api.validateCSRFToken(current) {
		t.Fatalf("expected current-hour token to validate")
	}
	if api.validateCSRFToken("bogus-token") {
		t.Fatalf("expected bogus token to be rejected")
	}
	if api.validateCSRFToken("") {
		t.Fatalf("expected empty token to be rejected")
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"shop_name":"x","username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login/owner", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestUnknownJSONFieldsRejected(t *testing.T) {
	api := newTestAPI(t)

	body := `{"shop_name":"Warung","username":"owner1","password":"rahasia1","extra_field":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login/owner", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", res.Code)
	}
}

func TestUnclassifiedErrorsMapTo500(t *testing.T) {
	err := fmt.Errorf("pq: connection refused (dsn postgres://user:secret@db/warungku)")
	if got := statusForError(err); got != http.StatusInternalServerError {
		t.Fatalf("expected 500 for storage failure, got %d", got)
	}

	// The 500 path masks the message so connection strings never reach clients.
	rec := httptest.NewRecorder()
	writeError(rec, statusForError(err), err)
	if strings.Contains(rec.Body.String(), "secret") {
		t.Fatalf("expected masked body, got %q", rec.Body.String())
	}
}

func TestInternalErrorsAreMasked(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusInternalServerError, fmt.Errorf("connection to 10.0.0.5 refused"))

	var payload map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	msg, _ := payload["error"].(string)
	if strings.Contains(msg, "10.0.0.5") {
		t.Fatalf("expected internal detail to be masked, got %q", msg)
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	if got := parsePositiveLimit("9999", 50, 200); got != 200 {
		t.Fatalf("expected capped limit 200, got %d", got)
	}
	if got := parsePositiveLimit("", 50, 200); got != 50 {
		t.Fatalf("expected fallback limit 50, got %d", got)
	}
	if got := parsePositiveLimit("invalid", 50, 200); got != 50 {
		t.Fatalf("expected fallback on invalid input, got %d", got)
	}
}

// fetchCSRFToken calls the CSRF token endpoint and returns the token string.
func fetchCSRFToken(t *testing.T, api *API) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/csrf-token", nil)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
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
