package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"warungku/backend/internal/domain"
	"warungku/backend/internal/store"
	"warungku/backend/internal/xid"
)

type Store struct {
	mu             sync.RWMutex
	shopsByID      map[string]domain.Shop
	shopIDByName   map[string]string
	usersByID      map[string]domain.User
	userIDByLogin  map[string]string
	productsByID   map[string]domain.Product
	salesByID      map[string]domain.PendingSale
	auditLogs      []domain.AuditLog
}

func New() *Store {
	return &Store{
		shopsByID:     make(map[string]domain.Shop),
		shopIDByName:  make(map[string]string),
		usersByID:     make(map[string]domain.User),
		userIDByLogin: make(map[string]string),
		productsByID:  make(map[string]domain.Product),
		salesByID:     make(map[string]domain.PendingSale),
		auditLogs:     make([]domain.AuditLog, 0, 128),
	}
}

// NewSeeded builds a store with a demo shop, owner and employee for dev mode.
// Credentials come from SEED_OWNER_PASSWORD / SEED_EMPLOYEE_PASSWORD; hardcoded
// dev defaults are used otherwise, with a warning. Production deployments set
// DATABASE_URL and never hit this path.
func NewSeeded() *Store {
	s := New()

	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	employeePwd := envOr("SEED_EMPLOYEE_PASSWORD", "employee123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_EMPLOYEE_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_OWNER_PASSWORD and SEED_EMPLOYEE_PASSWORD to override.")
	}

	now := time.Now().UTC()
	shopSecret := mustHash("rahasia-toko")
	shop := domain.Shop{
		ID:                   "shop-demo",
		Name:                 "Warung Demo",
		EmployeePasswordHash: shopSecret,
		Sections:             []string{"Minuman", "Makanan", "Rumah Tangga"},
		CreatedAt:            now,
	}
	s.shopsByID[shop.ID] = shop
	s.shopIDByName[strings.ToLower(shop.Name)] = shop.ID

	for _, u := range []struct {
		id       string
		username string
		password string
		role     string
	}{
		{"usr-demo-owner", "owner", ownerPwd, domain.RoleOwner},
		{"usr-demo-employee", "budi", employeePwd, domain.RoleEmployee},
	} {
		user := domain.User{
			ID:           u.id,
			ShopID:       shop.ID,
			Username:     u.username,
			PasswordHash: mustHash(u.password),
			Role:         u.role,
			CreatedAt:    now,
		}
		s.usersByID[user.ID] = user
		s.userIDByLogin[loginKey(shop.ID, user.Username)] = user.ID
	}

	products := []domain.Product{
		{ID: "prd-demo-kopi", Section: "Minuman", Name: "Kopi Sachet", PriceCents: 2600, PriceSet: true, Quantity: 120},
		{ID: "prd-demo-teh", Section: "Minuman", Name: "Teh Celup", PriceCents: 9800, PriceSet: true, Quantity: 80},
		{ID: "prd-demo-mie", Section: "Makanan", Name: "Mie Goreng Instan", PriceCents: 3500, PriceSet: true, Quantity: 200},
		{ID: "prd-demo-sabun", Section: "Rumah Tangga", Name: "Sabun Mandi", PriceCents: 7400, PriceSet: true, Quantity: 40},
	}
	for _, p := range products {
		p.ShopID = shop.ID
		p.AddedByRole = domain.RoleOwner
		p.AddedByUsername = "owner"
		p.CreatedAt = now
		s.productsByID[p.ID] = p
	}

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func mustHash(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed password: %v", err)
	}
	return string(hash)
}

func loginKey(shopID string, username string) string {
	return shopID + "::" + strings.ToLower(username)
}

func (s *Store) CreateShop(_ context.Context, shop domain.Shop) (*domain.Shop, error) {
	if strings.TrimSpace(shop.Name) == "" || shop.EmployeePasswordHash == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nameKey := strings.ToLower(strings.TrimSpace(shop.Name))
	if _, exists := s.shopIDByName[nameKey]; exists {
		return nil, fmt.Errorf("%w: shop name already taken", store.ErrConflict)
	}
	if shop.ID == "" {
		shop.ID = xid.New("shop")
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = time.Now().UTC()
	}
	if shop.Sections == nil {
		shop.Sections = []string{}
	}

	s.shopsByID[shop.ID] = cloneShop(shop)
	s.shopIDByName[nameKey] = shop.ID
	created := cloneShop(shop)
	return &created, nil
}

func (s *Store) GetShopByID(_ context.Context, shopID string) (*domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shop, ok := s.shopsByID[shopID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := cloneShop(shop)
	return &copied, nil
}

func (s *Store) GetShopByName(_ context.Context, name string) (*domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shopID, ok := s.shopIDByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := cloneShop(s.shopsByID[shopID])
	return &copied, nil
}

func (s *Store) AddShopSection(_ context.Context, shopID string, section string) ([]string, error) {
	section = strings.TrimSpace(section)
	if section == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	shop, ok := s.shopsByID[shopID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if slices.Contains(shop.Sections, section) {
		return nil, fmt.Errorf("%w: section already exists", store.ErrConflict)
	}
	shop.Sections = append(shop.Sections, section)
	s.shopsByID[shopID] = shop

	result := make([]string, len(shop.Sections))
	copy(result, shop.Sections)
	return result, nil
}

func (s *Store) RemoveShopSection(_ context.Context, shopID string, section string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shop, ok := s.shopsByID[shopID]
	if !ok {
		return nil, store.ErrNotFound
	}
	idx := slices.Index(shop.Sections, section)
	if idx < 0 {
		return nil, fmt.Errorf("%w: section not found in shop", store.ErrNotFound)
	}
	shop.Sections = slices.Delete(shop.Sections, idx, idx+1)
	s.shopsByID[shopID] = shop

	// Products in the removed section go away with it.
	for id, product := range s.productsByID {
		if product.ShopID == shopID && product.Section == section {
			delete(s.productsByID, id)
		}
	}

	result := make([]string, len(shop.Sections))
	copy(result, shop.Sections)
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.PasswordHash == "" || user.ShopID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.shopsByID[user.ShopID]; !ok {
		return nil, store.ErrNotFound
	}
	key := loginKey(user.ShopID, username)
	if _, exists := s.userIDByLogin[key]; exists {
		return nil, fmt.Errorf("%w: username already exists in shop", store.ErrConflict)
	}

	user.Username = username
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.Role == "" {
		user.Role = domain.RoleEmployee
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.usersByID[user.ID] = user
	s.userIDByLogin[key] = user.ID
	created := user
	return &created, nil
}

func (s *Store) GetUserByID(_ context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByID[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := user
	return &copied, nil
}

func (s *Store) GetUserByShopAndUsername(_ context.Context, shopID string, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.userIDByLogin[loginKey(shopID, username)]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := s.usersByID[userID]
	return &copied, nil
}

func (s *Store) UpdateUserProfile(_ context.Context, userID string, req domain.ProfileUpdateRequest) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByID[userID]
	if !ok {
		return nil, store.ErrNotFound
	}

	if req.Username != nil {
		username := strings.ToLower(strings.TrimSpace(*req.Username))
		if username == "" {
			return nil, store.ErrInvalidInput
		}
		if username != user.Username {
			newKey := loginKey(user.ShopID, username)
			if _, taken := s.userIDByLogin[newKey]; taken {
				return nil, fmt.Errorf("%w: username already exists in shop", store.ErrConflict)
			}
			delete(s.userIDByLogin, loginKey(user.ShopID, user.Username))
			s.userIDByLogin[newKey] = user.ID
			user.Username = username
		}
	}
	if req.About != nil {
		user.About = strings.TrimSpace(*req.About)
	}
	if req.ProfilePicture != nil {
		user.ProfilePicture = strings.TrimSpace(*req.ProfilePicture)
	}

	s.usersByID[userID] = user
	copied := user
	return &copied, nil
}

func (s *Store) ListUsersByShop(_ context.Context, shopID string) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, 16)
	for _, user := range s.usersByID {
		if user.ShopID == shopID {
			users = append(users, user)
		}
	}
	slices.SortFunc(users, func(a, b domain.User) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ShopID == "" || strings.TrimSpace(product.Name) == "" || product.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.PriceSet && product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	shop, ok := s.shopsByID[product.ShopID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !slices.Contains(shop.Sections, product.Section) {
		return nil, fmt.Errorf("%w: section not found in shop", store.ErrNotFound)
	}

	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.productsByID[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.productsByID[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := product
	return &copied, nil
}

func (s *Store) ListProductsBySection(_ context.Context, shopID string, section string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, 32)
	for _, product := range s.productsByID {
		if product.ShopID == shopID && product.Section == section {
			products = append(products, product)
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) DeleteProduct(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.productsByID[productID]; !ok {
		return store.ErrNotFound
	}
	delete(s.productsByID, productID)
	return nil
}

func (s *Store) UpdateProductPrice(_ context.Context, productID string, priceCents int64) (*domain.Product, error) {
	if priceCents < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.productsByID[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.PriceCents = priceCents
	product.PriceSet = true
	s.productsByID[productID] = product
	copied := product
	return &copied, nil
}

func (s *Store) AdjustProductStock(_ context.Context, productID string, delta int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.productsByID[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	next := product.Quantity + delta
	if next < 0 {
		return nil, fmt.Errorf("%w: stock cannot be negative", store.ErrInvalidInput)
	}
	product.Quantity = next
	s.productsByID[productID] = product
	copied := product
	return &copied, nil
}

func (s *Store) CreatePendingSale(_ context.Context, sale domain.PendingSale) (*domain.PendingSale, error) {
	if sale.ShopID == "" || sale.EmployeeID == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusPending
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	s.salesByID[sale.ID] = cloneSale(sale)
	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) GetSaleByID(_ context.Context, saleID string) (*domain.PendingSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := cloneSale(sale)
	return &copied, nil
}

func (s *Store) ListSalesByShop(_ context.Context, shopID string) ([]domain.PendingSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listSalesLocked(shopID, ""), nil
}

func (s *Store) ListCompletedSales(_ context.Context, shopID string) ([]domain.PendingSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listSalesLocked(shopID, domain.SaleStatusCompleted), nil
}

func (s *Store) listSalesLocked(shopID string, status string) []domain.PendingSale {
	sales := make([]domain.PendingSale, 0, 32)
	for _, sale := range s.salesByID {
		if sale.ShopID != shopID {
			continue
		}
		if status != "" && sale.Status != status {
			continue
		}
		sales = append(sales, cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.PendingSale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return sales
}

func (s *Store) DeletePendingSale(_ context.Context, saleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[saleID]
	if !ok {
		return store.ErrNotFound
	}
	if sale.Status == domain.SaleStatusCompleted {
		return store.ErrSaleCompleted
	}
	delete(s.salesByID, saleID)
	return nil
}

func (s *Store) ConfirmPendingSale(_ context.Context, saleID string, employeeID string, at time.Time) (*domain.PendingSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.Status != domain.SaleStatusPending {
		return nil, store.ErrSaleCompleted
	}
	if sale.EmployeeID != employeeID {
		return nil, fmt.Errorf("%w: only the creator can confirm this sale", store.ErrForbidden)
	}

	// Re-validate against live stock before mutating anything, summing
	// per product so duplicate lines cannot drive a quantity negative.
	required := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		product, exists := s.productsByID[item.ProductID]
		if !exists || product.ShopID != sale.ShopID {
			return nil, fmt.Errorf("%w: product not found: %s", store.ErrNotFound, item.ProductID)
		}
		required[item.ProductID] += item.Quantity
		if product.Quantity < required[item.ProductID] {
			return nil, fmt.Errorf("%w for %s", store.ErrInsufficientStock, product.Name)
		}
	}

	for _, item := range sale.Items {
		product := s.productsByID[item.ProductID]
		product.Quantity -= item.Quantity
		s.productsByID[item.ProductID] = product
	}

	employee, ok := s.usersByID[sale.EmployeeID]
	if ok {
		employee.SellingPoints += sale.PointsAwarded
		s.usersByID[sale.EmployeeID] = employee
	}

	confirmedAt := at.UTC()
	sale.Status = domain.SaleStatusCompleted
	sale.ConfirmedAt = &confirmedAt
	s.salesByID[saleID] = cloneSale(sale)

	copied := cloneSale(sale)
	return &copied, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, shopID string, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		if s.auditLogs[i].ShopID == shopID {
			result = append(result, s.auditLogs[i])
		}
	}
	return result, nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneShop(src domain.Shop) domain.Shop {
	dup := src
	sections := make([]string, len(src.Sections))
	copy(sections, src.Sections)
	dup.Sections = sections
	return dup
}

func cloneSale(src domain.PendingSale) domain.PendingSale {
	dup := src
	items := make([]domain.SaleItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	if src.ConfirmedAt != nil {
		confirmed := src.ConfirmedAt.UTC()
		dup.ConfirmedAt = &confirmed
	}
	return dup
}
