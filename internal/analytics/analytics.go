package analytics

import (
	"context"
	"slices"
	"time"

	"warungku/backend/internal/cache"
	"warungku/backend/internal/domain"
)

// Engine aggregates completed sales into per-shop analytics. Results are
// cached per shop and invalidated whenever a sale is confirmed.
type Engine struct {
	cache    cache.AnalyticsCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.AnalyticsCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopAnalyticsCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

func cacheKey(shopID string) string {
	return "analytics:" + shopID
}

// Analyze returns the analytics snapshot for a shop, serving from cache when
// a fresh entry exists. sales must contain only completed sales.
func (e *Engine) Analyze(ctx context.Context, shopID string, sales []domain.PendingSale, users []domain.User) domain.ShopAnalytics {
	key := cacheKey(shopID)
	if cached, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		return *cached
	}

	result := Compute(shopID, sales, users)
	_ = e.cache.Set(ctx, key, &result, e.cacheTTL)
	return result
}

// Invalidate drops the cached snapshot for a shop.
func (e *Engine) Invalidate(ctx context.Context, shopID string) error {
	return e.cache.Del(ctx, cacheKey(shopID))
}

// Compute builds the analytics snapshot from scratch. A shop with no
// completed sales yields zero counts and empty, non-nil collections.
func Compute(shopID string, sales []domain.PendingSale, users []domain.User) domain.ShopAnalytics {
	usernameByID := make(map[string]string, len(users))
	for _, user := range users {
		usernameByID[user.ID] = user.Username
	}

	result := domain.ShopAnalytics{
		ShopID:               shopID,
		ProductSales:         make(map[string]int),
		TopProducts:          []string{},
		TopProductIDs:        []string{},
		EmployeeRevenue:      make(map[string]int64),
		TopEmployees:         []string{},
		EmployeeProductSales: make(map[string]map[string]int),
		EmployeePoints:       []domain.LeaderboardEntry{},
		Leaderboard:          []domain.LeaderboardEntry{},
		GeneratedAt:          time.Now().UTC().Format(time.RFC3339),
	}

	unitsByProductID := make(map[string]int)
	nameByProductID := make(map[string]string)

	for _, sale := range sales {
		result.SaleCount++
		seller := usernameByID[sale.EmployeeID]
		if seller == "" {
			seller = sale.EmployeeID
		}
		for _, item := range sale.Items {
			revenue := int64(item.Quantity) * item.PriceAtSaleCents
			result.TotalItemsSold += item.Quantity
			result.TotalRevenueCents += revenue
			result.ProductSales[item.ProductName] += item.Quantity
			result.EmployeeRevenue[seller] += revenue
			unitsByProductID[item.ProductID] += item.Quantity
			nameByProductID[item.ProductID] = item.ProductName

			perProduct := result.EmployeeProductSales[seller]
			if perProduct == nil {
				perProduct = make(map[string]int)
				result.EmployeeProductSales[seller] = perProduct
			}
			perProduct[item.ProductName] += item.Quantity
		}
	}

	// Top products are ranked per product id so two listings that share a
	// name never merge; TopProducts and TopProductIDs stay parallel.
	result.TopProductIDs = maxKeys(unitsByProductID)
	slices.SortFunc(result.TopProductIDs, func(a, b string) int {
		if nameByProductID[a] != nameByProductID[b] {
			if nameByProductID[a] < nameByProductID[b] {
				return -1
			}
			return 1
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	for _, id := range result.TopProductIDs {
		result.TopProducts = append(result.TopProducts, nameByProductID[id])
	}
	result.TopEmployees = maxKeys(result.EmployeeRevenue)

	// EmployeePoints is the full employee roster ranked by points, zero-sale
	// employees included; Leaderboard is its top five.
	result.EmployeePoints = employeePoints(users)
	result.Leaderboard = result.EmployeePoints
	if len(result.Leaderboard) > 5 {
		result.Leaderboard = result.Leaderboard[:5]
	}
	return result
}

// maxKeys returns every key that holds the maximum value, sorted. A tie means
// multiple entries, not an arbitrary winner.
func maxKeys[V int | int64](m map[string]V) []string {
	keys := []string{}
	var best V
	for key, value := range m {
		switch {
		case len(keys) == 0 || value > best:
			keys = []string{key}
			best = value
		case value == best:
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}

func employeePoints(users []domain.User) []domain.LeaderboardEntry {
	ranked := make([]domain.LeaderboardEntry, 0, len(users))
	for _, user := range users {
		if user.Role == domain.RoleOwner {
			continue
		}
		ranked = append(ranked, domain.LeaderboardEntry{
			Username:      user.Username,
			SellingPoints: user.SellingPoints,
		})
	}
	slices.SortFunc(ranked, func(a, b domain.LeaderboardEntry) int {
		if a.SellingPoints != b.SellingPoints {
			return b.SellingPoints - a.SellingPoints
		}
		if a.Username < b.Username {
			return -1
		}
		if a.Username > b.Username {
			return 1
		}
		return 0
	})
	return ranked
}
