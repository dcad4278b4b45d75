package httpapi

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"warungku/backend/internal/domain"
	"warungku/backend/internal/store"
	"warungku/backend/internal/store/memory"
)

func newTestAuth(t *testing.T) (*AuthManager, *memory.Store) {
	t.Helper()
	repo := memory.New()
	return NewAuthManager("test-secret", time.Hour, repo), repo
}

func TestRegisterOwnerHashesPasswords(t *testing.T) {
	auth, repo := newTestAuth(t)
	ctx := context.Background()

	resp, err := auth.RegisterOwner(ctx, domain.RegisterOwnerRequest{
		ShopName:         "Warung Tes",
		Username:         "owner1",
		Password:         "rahasia1",
		EmployeePassword: "gabung1",
	})
	if err != nil {
		t.Fatalf("register owner failed: %v", err)
	}

	owner, err := repo.GetUserByID(ctx, resp.UserID)
	if err != nil {
		t.Fatalf("load owner: %v", err)
	}
	if owner.PasswordHash == "rahasia1" {
		t.Fatalf("expected owner password to be hashed")
	}
	if !strings.HasPrefix(owner.PasswordHash, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", owner.PasswordHash)
	}

	shop, err := repo.GetShopByID(ctx, resp.ShopID)
	if err != nil {
		t.Fatalf("load shop: %v", err)
	}
	if shop.EmployeePasswordHash == "gabung1" || !strings.HasPrefix(shop.EmployeePasswordHash, "$2") {
		t.Fatalf("expected employee password to be hashed, got %s", shop.EmployeePasswordHash)
	}
}

func TestRegisterOwnerValidation(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.RegisterOwnerRequest
	}{
		{"short username", domain.RegisterOwnerRequest{ShopName: "Warung", Username: "ab", Password: "rahasia1", EmployeePassword: "gabung1"}},
		{"username with space", domain.RegisterOwnerRequest{ShopName: "Warung", Username: "owner satu", Password: "rahasia1", EmployeePassword: "gabung1"}},
		{"short password", domain.RegisterOwnerRequest{ShopName: "Warung", Username: "owner1", Password: "abc", EmployeePassword: "gabung1"}},
		{"short employee password", domain.RegisterOwnerRequest{ShopName: "Warung", Username: "owner1", Password: "rahasia1", EmployeePassword: "abc"}},
		{"empty shop name", domain.RegisterOwnerRequest{ShopName: "  ", Username: "owner1", Password: "rahasia1", EmployeePassword: "gabung1"}},
	}
	for _, tc := range cases {
		if _, err := auth.RegisterOwner(ctx, tc.req); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestRegisterOwnerDuplicateShopName(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	req := domain.RegisterOwnerRequest{
		ShopName:         "Warung Tes",
		Username:         "owner1",
		Password:         "rahasia1",
		EmployeePassword: "gabung1",
	}
	if _, err := auth.RegisterOwner(ctx, req); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if _, err := auth.RegisterOwner(ctx, req); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate shop name, got %v", err)
	}
}

func TestRegisterEmployeeChecksShopSecret(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	if _, err := auth.RegisterOwner(ctx, domain.RegisterOwnerRequest{
		ShopName:         "Warung Tes",
		Username:         "owner1",
		Password:         "rahasia1",
		EmployeePassword: "gabung1",
	}); err != nil {
		t.Fatalf("register owner failed: %v", err)
	}

	_, err := auth.RegisterEmployee(ctx, domain.RegisterEmployeeRequest{
		ShopName:         "Warung Tes",
		Username:         "kasir1",
		Password:         "rahasia1",
		EmployeePassword: "salah123",
	})
	if !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for wrong employee password, got %v", err)
	}

	if _, err := auth.RegisterEmployee(ctx, domain.RegisterEmployeeRequest{
		ShopName:         "Warung Tes",
		Username:         "kasir1",
		Password:         "rahasia1",
		EmployeePassword: "gabung1",
	}); err != nil {
		t.Fatalf("register employee with correct secret failed: %v", err)
	}
}

func TestLoginRejectsRoleMismatch(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	if _, err := auth.RegisterOwner(ctx, domain.RegisterOwnerRequest{
		ShopName:         "Warung Tes",
		Username:         "owner1",
		Password:         "rahasia1",
		EmployeePassword: "gabung1",
	}); err != nil {
		t.Fatalf("register owner failed: %v", err)
	}

	req := domain.LoginRequest{ShopName: "Warung Tes", Username: "owner1", Password: "rahasia1"}

	if _, err := auth.Login(ctx, req, domain.RoleOwner); err != nil {
		t.Fatalf("owner login failed: %v", err)
	}
	if _, err := auth.Login(ctx, req, domain.RoleEmployee); err == nil {
		t.Fatalf("expected owner login via employee role to fail")
	} else if err.Error() != "invalid credentials" {
		t.Fatalf("role mismatch must not leak detail, got %q", err.Error())
	}

	wrong := req
	wrong.Password = "salah123"
	if _, err := auth.Login(ctx, wrong, domain.RoleOwner); err == nil || err.Error() != "invalid credentials" {
		t.Fatalf("expected generic invalid credentials, got %v", err)
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	auth, repo := newTestAuth(t)
	ctx := context.Background()

	resp, err := auth.RegisterOwner(ctx, domain.RegisterOwnerRequest{
		ShopName:         "Warung Tes",
		Username:         "owner1",
		Password:         "rahasia1",
		EmployeePassword: "gabung1",
	})
	if err != nil {
		t.Fatalf("register owner failed: %v", err)
	}

	login, err := auth.Login(ctx, domain.LoginRequest{ShopName: "Warung Tes", Username: "owner1", Password: "rahasia1"}, domain.RoleOwner)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	user, err := auth.ParseToken(ctx, login.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if user.ID != resp.UserID || user.Role != domain.RoleOwner || user.ShopID != resp.ShopID {
		t.Fatalf("unexpected token user: %+v", user)
	}

	// A token signed with another secret is rejected.
	other := NewAuthManager("another-secret", time.Hour, repo)
	if _, err := other.ParseToken(ctx, login.AccessToken); err == nil {
		t.Fatalf("expected token from different secret to be rejected")
	}
}

func TestIsPasswordHash(t *testing.T) {
	if isPasswordHash("rahasia1") {
		t.Fatalf("plain text must not count as a hash")
	}
	hashed, err := hashPassword("rahasia1")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !isPasswordHash(hashed) {
		t.Fatalf("expected bcrypt output to be recognized as a hash")
	}
	if !verifyPassword(hashed, "rahasia1") {
		t.Fatalf("expected password to verify against its hash")
	}
	if verifyPassword(hashed, "salah123") {
		t.Fatalf("wrong password must not verify")
	}
}
