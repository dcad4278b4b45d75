package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"warungku/backend/internal/analytics"
	"warungku/backend/internal/domain"
	"warungku/backend/internal/store"
	"warungku/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo      store.Repository
	analytics *analytics.Engine
}

func New(repo store.Repository, analyticsEngine *analytics.Engine) *Service {
	if analyticsEngine == nil {
		analyticsEngine = analytics.NewEngine(nil, 0)
	}

	return &Service{
		repo:      repo,
		analytics: analyticsEngine,
	}
}

// requireShopMember checks the caller belongs to the shop it is operating on.
func requireShopMember(ctx context.Context, shopID string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: authentication required", store.ErrForbidden)
	}
	if actor.ShopID != shopID {
		return domain.Actor{}, fmt.Errorf("%w: shop access denied", store.ErrForbidden)
	}
	return actor, nil
}

func requireShopOwner(ctx context.Context, shopID string) (domain.Actor, error) {
	actor, err := requireShopMember(ctx, shopID)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role != domain.RoleOwner {
		return domain.Actor{}, fmt.Errorf("%w: owner role required", store.ErrForbidden)
	}
	return actor, nil
}

func requireShopEmployee(ctx context.Context, shopID string) (domain.Actor, error) {
	actor, err := requireShopMember(ctx, shopID)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role != domain.RoleEmployee {
		return domain.Actor{}, fmt.Errorf("%w: employee role required", store.ErrForbidden)
	}
	return actor, nil
}

func (s *Service) CreatePendingSale(ctx context.Context, req domain.PendingSaleCreateRequest) (domain.SaleView, error) {
	actor, err := requireShopEmployee(ctx, req.ShopID)
	if err != nil {
		return domain.SaleView{}, err
	}

	if len(req.Items) == 0 {
		return domain.SaleView{}, fmt.Errorf("%w: sale needs at least one item", store.ErrInvalidInput)
	}
	normalized, err := normalizeSaleItems(req.Items)
	if err != nil {
		return domain.SaleView{}, err
	}

	items := make([]domain.SaleItem, 0, len(normalized))
	points := 0
	for _, line := range normalized {
		product, err := s.repo.GetProductByID(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.SaleView{}, fmt.Errorf("%w: product not found: %s", store.ErrNotFound, line.ProductID)
			}
			return domain.SaleView{}, err
		}
		if product.ShopID != req.ShopID {
			return domain.SaleView{}, fmt.Errorf("%w: product not found: %s", store.ErrNotFound, line.ProductID)
		}
		if !product.PriceSet {
			return domain.SaleView{}, fmt.Errorf("%w: product %q has no price set", store.ErrInvalidInput, product.Name)
		}
		// Advisory check only. Stock is not decremented until confirmation,
		// which re-validates under a lock.
		if product.Quantity < line.Quantity {
			return domain.SaleView{}, fmt.Errorf("%w for %s", store.ErrInsufficientStock, product.Name)
		}

		items = append(items, domain.SaleItem{
			ProductID:        product.ID,
			ProductName:      product.Name,
			Quantity:         line.Quantity,
			PriceAtSaleCents: product.PriceCents,
		})
		points += line.Quantity
	}

	sale := domain.PendingSale{
		ID:            xid.New("sale"),
		ShopID:        req.ShopID,
		EmployeeID:    actor.ID,
		Items:         items,
		PointsAwarded: points,
		Status:        domain.SaleStatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	created, err := s.repo.CreatePendingSale(ctx, sale)
	if err != nil {
		return domain.SaleView{}, err
	}

	s.logAudit(ctx, req.ShopID, "sale_create", "sale", created.ID, fmt.Sprintf("items=%d,points=%d,total=%d", len(created.Items), created.PointsAwarded, created.TotalCents()))

	return toSaleView(*created), nil
}

// ListShopSales lists a shop's sales newest first. status filters to
// "pending" or "completed"; empty means both.
func (s *Service) ListShopSales(ctx context.Context, shopID string, status string) ([]domain.SaleView, error) {
	if _, err := requireShopMember(ctx, shopID); err != nil {
		return nil, err
	}
	if status != "" && status != domain.SaleStatusPending && status != domain.SaleStatusCompleted {
		return nil, fmt.Errorf("%w: unknown sale status %q", store.ErrInvalidInput, status)
	}

	sales, err := s.repo.ListSalesByShop(ctx, shopID)
	if err != nil {
		return nil, err
	}

	views := make([]domain.SaleView, 0, len(sales))
	for _, sale := range sales {
		if status != "" && sale.Status != status {
			continue
		}
		views = append(views, toSaleView(sale))
	}
	return views, nil
}

func (s *Service) ConfirmPendingSale(ctx context.Context, saleID string) (domain.SaleView, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SaleView{}, fmt.Errorf("%w: authentication required", store.ErrForbidden)
	}

	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return domain.SaleView{}, err
	}
	if sale.ShopID != actor.ShopID {
		return domain.SaleView{}, store.ErrNotFound
	}

	confirmed, err := s.repo.ConfirmPendingSale(ctx, saleID, actor.ID, time.Now().UTC())
	if err != nil {
		return domain.SaleView{}, err
	}

	if err := s.analytics.Invalidate(ctx, confirmed.ShopID); err != nil {
		log.Printf("[service] WARN: failed to invalidate analytics cache shop=%s: %v", confirmed.ShopID, err)
	}

	s.logAudit(ctx, confirmed.ShopID, "sale_confirm", "sale", confirmed.ID, fmt.Sprintf("points=%d,total=%d", confirmed.PointsAwarded, confirmed.TotalCents()))

	return toSaleView(*confirmed), nil
}

func (s *Service) DeletePendingSale(ctx context.Context, saleID string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: authentication required", store.ErrForbidden)
	}

	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return err
	}
	if sale.ShopID != actor.ShopID {
		return store.ErrNotFound
	}
	if actor.Role != domain.RoleOwner && sale.EmployeeID != actor.ID {
		return fmt.Errorf("%w: only the owner or the creator can delete a sale", store.ErrForbidden)
	}

	if err := s.repo.DeletePendingSale(ctx, saleID); err != nil {
		return err
	}

	s.logAudit(ctx, sale.ShopID, "sale_delete", "sale", sale.ID, fmt.Sprintf("status=%s", sale.Status))
	return nil
}

func (s *Service) ShopAnalytics(ctx context.Context, shopID string) (domain.ShopAnalytics, error) {
	if _, err := requireShopMember(ctx, shopID); err != nil {
		return domain.ShopAnalytics{}, err
	}
	if _, err := s.repo.GetShopByID(ctx, shopID); err != nil {
		return domain.ShopAnalytics{}, err
	}

	completed, err := s.repo.ListCompletedSales(ctx, shopID)
	if err != nil {
		return domain.ShopAnalytics{}, err
	}
	users, err := s.repo.ListUsersByShop(ctx, shopID)
	if err != nil {
		return domain.ShopAnalytics{}, err
	}

	return s.analytics.Analyze(ctx, shopID, completed, users), nil
}

func (s *Service) GetProfile(ctx context.Context) (domain.User, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.User{}, fmt.Errorf("%w: authentication required", store.ErrForbidden)
	}

	user, err := s.repo.GetUserByID(ctx, actor.ID)
	if err != nil {
		return domain.User{}, err
	}
	return *user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, req domain.ProfileUpdateRequest) (domain.User, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.User{}, fmt.Errorf("%w: authentication required", store.ErrForbidden)
	}

	updated, err := s.repo.UpdateUserProfile(ctx, actor.ID, req)
	if err != nil {
		return domain.User{}, err
	}

	s.logAudit(ctx, updated.ShopID, "profile_update", "user", updated.ID, fmt.Sprintf("username=%s", updated.Username))
	return *updated, nil
}

// normalizeSaleItems merges duplicate product lines, preserving first-seen
// order. Any line with a blank product id or non-positive quantity rejects
// the whole request; partial sales are never created from bad input.
func normalizeSaleItems(items []domain.SaleItemRequest) ([]domain.SaleItemRequest, error) {
	aggregated := make(map[string]int, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return nil, fmt.Errorf("%w: sale item is missing a product id", store.ErrInvalidInput)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity for product %s must be positive", store.ErrInvalidInput, id)
		}
		if _, seen := aggregated[id]; !seen {
			order = append(order, id)
		}
		aggregated[id] += item.Quantity
	}

	result := make([]domain.SaleItemRequest, 0, len(order))
	for _, id := range order {
		result = append(result, domain.SaleItemRequest{ProductID: id, Quantity: aggregated[id]})
	}
	return result, nil
}

func toSaleView(sale domain.PendingSale) domain.SaleView {
	return domain.SaleView{PendingSale: sale, TotalCents: sale.TotalCents()}
}

func (s *Service) ListAuditLogs(ctx context.Context, shopID string, limit int) ([]domain.AuditLog, error) {
	if _, err := requireShopOwner(ctx, shopID); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, shopID, limit)
}

func (s *Service) logAudit(ctx context.Context, shopID string, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ShopID:        shopID,
		ActorID:       actor.ID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
