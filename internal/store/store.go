package store

import (
	"context"
	"errors"
	"time"

	"warungku/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrSaleCompleted     = errors.New("sale already completed")
	ErrForbidden         = errors.New("forbidden")
)

type Repository interface {
	CreateShop(ctx context.Context, shop domain.Shop) (*domain.Shop, error)
	GetShopByID(ctx context.Context, shopID string) (*domain.Shop, error)
	GetShopByName(ctx context.Context, name string) (*domain.Shop, error)
	AddShopSection(ctx context.Context, shopID string, section string) ([]string, error)
	RemoveShopSection(ctx context.Context, shopID string, section string) ([]string, error)

	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByID(ctx context.Context, userID string) (*domain.User, error)
	GetUserByShopAndUsername(ctx context.Context, shopID string, username string) (*domain.User, error)
	UpdateUserProfile(ctx context.Context, userID string, req domain.ProfileUpdateRequest) (*domain.User, error)
	ListUsersByShop(ctx context.Context, shopID string) ([]domain.User, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, productID string) (*domain.Product, error)
	ListProductsBySection(ctx context.Context, shopID string, section string) ([]domain.Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	UpdateProductPrice(ctx context.Context, productID string, priceCents int64) (*domain.Product, error)
	AdjustProductStock(ctx context.Context, productID string, delta int) (*domain.Product, error)

	CreatePendingSale(ctx context.Context, sale domain.PendingSale) (*domain.PendingSale, error)
	GetSaleByID(ctx context.Context, saleID string) (*domain.PendingSale, error)
	ListSalesByShop(ctx context.Context, shopID string) ([]domain.PendingSale, error)
	ListCompletedSales(ctx context.Context, shopID string) ([]domain.PendingSale, error)
	DeletePendingSale(ctx context.Context, saleID string) error
	// ConfirmPendingSale re-validates stock, decrements product quantities,
	// credits the employee's selling points and flips the sale to completed,
	// all atomically. The status transition is guarded so concurrent confirms
	// succeed at most once.
	ConfirmPendingSale(ctx context.Context, saleID string, employeeID string, at time.Time) (*domain.PendingSale, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, shopID string, limit int) ([]domain.AuditLog, error)
}
