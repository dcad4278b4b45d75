package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"warungku/backend/internal/domain"
	"warungku/backend/internal/store"
	"warungku/backend/internal/xid"
)

func (s *Service) ListSections(ctx context.Context, shopID string) ([]string, error) {
	if _, err := requireShopMember(ctx, shopID); err != nil {
		return nil, err
	}

	shop, err := s.repo.GetShopByID(ctx, shopID)
	if err != nil {
		return nil, err
	}
	return shop.Sections, nil
}

func (s *Service) AddSection(ctx context.Context, req domain.SectionRequest) ([]string, error) {
	if _, err := requireShopOwner(ctx, req.ShopID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.SectionName)
	if name == "" {
		return nil, fmt.Errorf("%w: section name required", store.ErrInvalidInput)
	}

	sections, err := s.repo.AddShopSection(ctx, req.ShopID, name)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, req.ShopID, "section_add", "section", name, "")
	return sections, nil
}

func (s *Service) DeleteSection(ctx context.Context, req domain.SectionRequest) ([]string, error) {
	if _, err := requireShopOwner(ctx, req.ShopID); err != nil {
		return nil, err
	}

	sections, err := s.repo.RemoveShopSection(ctx, req.ShopID, strings.TrimSpace(req.SectionName))
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, req.ShopID, "section_delete", "section", req.SectionName, "products removed with section")
	return sections, nil
}

func (s *Service) AddProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := requireShopMember(ctx, req.ShopID)
	if err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Section = strings.TrimSpace(req.Section)
	if req.Name == "" || req.Section == "" {
		return domain.Product{}, fmt.Errorf("%w: product name and section required", store.ErrInvalidInput)
	}
	if req.Quantity < 0 {
		return domain.Product{}, fmt.Errorf("%w: quantity cannot be negative", store.ErrInvalidInput)
	}
	if err := s.requireSection(ctx, req.ShopID, req.Section); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		ID:              xid.New("prd"),
		ShopID:          req.ShopID,
		Section:         req.Section,
		Name:            req.Name,
		Description:     strings.TrimSpace(req.Description),
		Quantity:        req.Quantity,
		ImageURL:        strings.TrimSpace(req.ImageURL),
		AddedByRole:     actor.Role,
		AddedByUsername: actor.Username,
		CreatedAt:       time.Now().UTC(),
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Product{}, fmt.Errorf("%w: price must be positive", store.ErrInvalidInput)
		}
		product.PriceCents = *req.PriceCents
		product.PriceSet = true
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, req.ShopID, "product_add", "product", created.ID, fmt.Sprintf("name=%s,section=%s,qty=%d,price_set=%t", created.Name, created.Section, created.Quantity, created.PriceSet))
	return *created, nil
}

func (s *Service) ListProductsBySection(ctx context.Context, shopID string, section string) ([]domain.Product, error) {
	if _, err := requireShopMember(ctx, shopID); err != nil {
		return nil, err
	}

	if err := s.requireSection(ctx, shopID, section); err != nil {
		return nil, err
	}

	return s.repo.ListProductsBySection(ctx, shopID, section)
}

// requireSection verifies the section is part of the shop's catalog.
func (s *Service) requireSection(ctx context.Context, shopID string, section string) error {
	shop, err := s.repo.GetShopByID(ctx, shopID)
	if err != nil {
		return err
	}
	for _, name := range shop.Sections {
		if name == section {
			return nil
		}
	}
	return fmt.Errorf("%w: section not found in shop", store.ErrNotFound)
}

func (s *Service) DeleteProduct(ctx context.Context, productID string) error {
	product, err := s.getShopProduct(ctx, productID)
	if err != nil {
		return err
	}
	if _, err := requireShopOwner(ctx, product.ShopID); err != nil {
		return err
	}

	if err := s.repo.DeleteProduct(ctx, productID); err != nil {
		return err
	}

	s.logAudit(ctx, product.ShopID, "product_delete", "product", product.ID, fmt.Sprintf("name=%s", product.Name))
	return nil
}

func (s *Service) UpdateProductPrice(ctx context.Context, productID string, req domain.ProductPriceUpdateRequest) (domain.Product, error) {
	product, err := s.getShopProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if _, err := requireShopOwner(ctx, product.ShopID); err != nil {
		return domain.Product{}, err
	}
	if req.PriceCents < 1 {
		return domain.Product{}, fmt.Errorf("%w: price must be positive", store.ErrInvalidInput)
	}

	updated, err := s.repo.UpdateProductPrice(ctx, productID, req.PriceCents)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, updated.ShopID, "product_price_update", "product", updated.ID, fmt.Sprintf("old=%d,new=%d", product.PriceCents, updated.PriceCents))
	return *updated, nil
}

func (s *Service) RestockProduct(ctx context.Context, productID string, req domain.RestockRequest) (domain.Product, error) {
	product, err := s.getShopProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if _, err := requireShopOwner(ctx, product.ShopID); err != nil {
		return domain.Product{}, err
	}
	if req.Delta == 0 {
		return domain.Product{}, fmt.Errorf("%w: delta cannot be zero", store.ErrInvalidInput)
	}

	updated, err := s.repo.AdjustProductStock(ctx, productID, req.Delta)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, updated.ShopID, "product_restock", "product", updated.ID, fmt.Sprintf("delta=%d,qty=%d", req.Delta, updated.Quantity))
	return *updated, nil
}

// getShopProduct loads a product and hides it behind ErrNotFound when the
// caller belongs to a different shop.
func (s *Service) getShopProduct(ctx context.Context, productID string) (*domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: authentication required", store.ErrForbidden)
	}

	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: product not found: %s", store.ErrNotFound, productID)
		}
		return nil, err
	}
	if product.ShopID != actor.ShopID {
		return nil, fmt.Errorf("%w: product not found: %s", store.ErrNotFound, productID)
	}
	return product, nil
}
