package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"warungku/backend/internal/domain"
	"warungku/backend/internal/store"
)

// AccountStore is the slice of the repository the auth layer needs.
type AccountStore interface {
	CreateShop(ctx context.Context, shop domain.Shop) (*domain.Shop, error)
	GetShopByName(ctx context.Context, name string) (*domain.Shop, error)
	GetShopByID(ctx context.Context, shopID string) (*domain.Shop, error)
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByShopAndUsername(ctx context.Context, shopID string, username string) (*domain.User, error)
	GetUserByID(ctx context.Context, userID string) (*domain.User, error)
}

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	accounts AccountStore
}

type shopCustomClaims struct {
	jwtlib.RegisteredClaims
	Shop string `json:"shop"`
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, accounts AccountStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 7 * 24 * time.Hour
	}

	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		accounts: accounts,
	}
}

// RegisterOwner creates a shop together with its owner account. The shop's
// employee password is the shared secret later employee registrations must
// present.
func (a *AuthManager) RegisterOwner(ctx context.Context, req domain.RegisterOwnerRequest) (domain.RegisterResponse, error) {
	shopName := strings.TrimSpace(req.ShopName)
	if shopName == "" {
		return domain.RegisterResponse{}, fmt.Errorf("%w: shop name required", store.ErrInvalidInput)
	}
	username, err := validUsername(req.Username)
	if err != nil {
		return domain.RegisterResponse{}, err
	}
	if err := validPassword(req.Password); err != nil {
		return domain.RegisterResponse{}, err
	}
	if err := validPassword(req.EmployeePassword); err != nil {
		return domain.RegisterResponse{}, fmt.Errorf("%w: employee password must be at least 6 characters", store.ErrInvalidInput)
	}

	employeeHash, err := hashPassword(req.EmployeePassword)
	if err != nil {
		return domain.RegisterResponse{}, fmt.Errorf("failed to hash password")
	}
	ownerHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.RegisterResponse{}, fmt.Errorf("failed to hash password")
	}

	shop, err := a.accounts.CreateShop(ctx, domain.Shop{
		Name:                 shopName,
		EmployeePasswordHash: employeeHash,
		Sections:             []string{},
	})
	if err != nil {
		return domain.RegisterResponse{}, err
	}

	owner, err := a.accounts.CreateUser(ctx, domain.User{
		ShopID:       shop.ID,
		Username:     username,
		PasswordHash: ownerHash,
		Role:         domain.RoleOwner,
	})
	if err != nil {
		return domain.RegisterResponse{}, err
	}

	return domain.RegisterResponse{ShopID: shop.ID, UserID: owner.ID}, nil
}

// RegisterEmployee joins an existing shop. The caller must present the shop's
// employee password.
func (a *AuthManager) RegisterEmployee(ctx context.Context, req domain.RegisterEmployeeRequest) (domain.RegisterResponse, error) {
	username, err := validUsername(req.Username)
	if err != nil {
		return domain.RegisterResponse{}, err
	}
	if err := validPassword(req.Password); err != nil {
		return domain.RegisterResponse{}, err
	}

	shop, err := a.accounts.GetShopByName(ctx, req.ShopName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.RegisterResponse{}, fmt.Errorf("%w: shop not found", store.ErrNotFound)
		}
		return domain.RegisterResponse{}, err
	}
	if !verifyPassword(shop.EmployeePasswordHash, req.EmployeePassword) {
		return domain.RegisterResponse{}, fmt.Errorf("%w: employee password mismatch", store.ErrForbidden)
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.RegisterResponse{}, fmt.Errorf("failed to hash password")
	}

	employee, err := a.accounts.CreateUser(ctx, domain.User{
		ShopID:       shop.ID,
		Username:     username,
		PasswordHash: passwordHash,
		Role:         domain.RoleEmployee,
	})
	if err != nil {
		return domain.RegisterResponse{}, err
	}

	return domain.RegisterResponse{ShopID: shop.ID, UserID: employee.ID}, nil
}

// Login authenticates a user against their shop and issues a token scoped to
// the requested role. An owner cannot log in through the employee endpoint and
// vice versa.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest, role string) (domain.LoginResponse, error) {
	shop, err := a.accounts.GetShopByName(ctx, req.ShopName)
	if err != nil {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	user, err := a.accounts.GetUserByShopAndUsername(ctx, shop.ID, req.Username)
	if err != nil {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if !verifyPassword(user.PasswordHash, req.Password) {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if user.Role != role {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(user.ID, shop.ID, user.Role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		UserID:      user.ID,
		ShopID:      shop.ID,
		Role:        user.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(ctx context.Context, tokenStr string) (domain.Actor, error) {
	claims := &shopCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}

	user, err := a.accounts.GetUserByID(ctx, sub)
	if err != nil {
		return domain.Actor{}, errors.New("unknown user")
	}
	if user.ShopID != claims.Shop || user.Role != claims.Role {
		return domain.Actor{}, errors.New("token no longer matches user")
	}

	return domain.Actor{ID: user.ID, Username: user.Username, ShopID: user.ShopID, Role: user.Role}, nil
}

func (a *AuthManager) sign(userID string, shopID string, role string, expiresAt time.Time) (string, error) {
	claims := shopCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "warungku",
		},
		Shop: shopID,
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func validUsername(raw string) (string, error) {
	username := strings.ToLower(strings.TrimSpace(raw))
	if len(username) < 4 {
		return "", fmt.Errorf("%w: username must be at least 4 characters", store.ErrInvalidInput)
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return "", fmt.Errorf("%w: username must not contain spaces", store.ErrInvalidInput)
	}
	return username, nil
}

func validPassword(password string) error {
	if strings.TrimSpace(password) == "" || len(password) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalidInput)
	}
	return nil
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
