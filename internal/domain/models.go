package domain

import "time"

type Shop struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	EmployeePasswordHash string    `json:"-"`
	Sections             []string  `json:"sections"`
	CreatedAt            time.Time `json:"created_at"`
}

type User struct {
	ID             string    `json:"id"`
	ShopID         string    `json:"shop_id"`
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"`
	Role           string    `json:"role"`
	About          string    `json:"about,omitempty"`
	ProfilePicture string    `json:"profile_picture,omitempty"`
	SellingPoints  int       `json:"selling_points"`
	CreatedAt      time.Time `json:"created_at"`
}

type Product struct {
	ID              string    `json:"id"`
	ShopID          string    `json:"shop_id"`
	Section         string    `json:"section"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	PriceCents      int64     `json:"price_cents"`
	PriceSet        bool      `json:"price_set"`
	Quantity        int       `json:"quantity"`
	ImageURL        string    `json:"image_url,omitempty"`
	AddedByRole     string    `json:"added_by_role,omitempty"`
	AddedByUsername string    `json:"added_by_username,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// SaleItem is a line of a pending sale. PriceAtSaleCents is frozen when the
// sale is created; later catalog price changes never alter it.
type SaleItem struct {
	ProductID        string `json:"product_id"`
	ProductName      string `json:"product_name"`
	Quantity         int    `json:"quantity"`
	PriceAtSaleCents int64  `json:"price_at_sale_cents"`
}

type PendingSale struct {
	ID            string     `json:"id"`
	ShopID        string     `json:"shop_id"`
	EmployeeID    string     `json:"employee_id"`
	Items         []SaleItem `json:"items"`
	PointsAwarded int        `json:"points_awarded"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
}

// TotalCents is computed from the frozen line prices, never stored.
func (s PendingSale) TotalCents() int64 {
	total := int64(0)
	for _, item := range s.Items {
		total += int64(item.Quantity) * item.PriceAtSaleCents
	}
	return total
}

type SaleView struct {
	PendingSale
	TotalCents int64 `json:"total_cents"`
}

type SaleItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PendingSaleCreateRequest struct {
	ShopID string            `json:"shop_id"`
	Items  []SaleItemRequest `json:"items"`
}

type RegisterOwnerRequest struct {
	ShopName         string `json:"shop_name"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	EmployeePassword string `json:"employee_password"`
}

type RegisterEmployeeRequest struct {
	ShopName         string `json:"shop_name"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	EmployeePassword string `json:"employee_password"`
}

type RegisterResponse struct {
	ShopID string `json:"shop_id"`
	UserID string `json:"user_id"`
}

type LoginRequest struct {
	ShopName string `json:"shop_name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	ShopID      string `json:"shop_id"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type ProfileUpdateRequest struct {
	Username       *string `json:"username,omitempty"`
	About          *string `json:"about,omitempty"`
	ProfilePicture *string `json:"profile_picture,omitempty"`
}

type SectionRequest struct {
	ShopID      string `json:"shop_id"`
	SectionName string `json:"section_name"`
}

type SectionsResponse struct {
	Sections []string `json:"sections"`
}

type ProductCreateRequest struct {
	ShopID      string `json:"shop_id"`
	Section     string `json:"section"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  *int64 `json:"price_cents,omitempty"`
	Quantity    int    `json:"quantity"`
	ImageURL    string `json:"image_url"`
}

type ProductPriceUpdateRequest struct {
	PriceCents int64 `json:"price_cents"`
}

type RestockRequest struct {
	Delta int `json:"delta"`
}

type LeaderboardEntry struct {
	Username      string `json:"username"`
	SellingPoints int    `json:"selling_points"`
}

type ShopAnalytics struct {
	ShopID               string                    `json:"shop_id"`
	SaleCount            int                       `json:"sale_count"`
	TotalItemsSold       int                       `json:"total_items_sold"`
	TotalRevenueCents    int64                     `json:"total_revenue_cents"`
	ProductSales         map[string]int            `json:"product_sales"`
	TopProducts          []string                  `json:"top_products"`
	TopProductIDs        []string                  `json:"top_product_ids"`
	EmployeeRevenue      map[string]int64          `json:"employee_revenue_cents"`
	TopEmployees         []string                  `json:"top_employees"`
	EmployeeProductSales map[string]map[string]int `json:"employee_product_sales"`
	EmployeePoints       []LeaderboardEntry        `json:"employee_points"`
	Leaderboard          []LeaderboardEntry        `json:"leaderboard"`
	GeneratedAt          string                    `json:"generated_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ShopID        string    `json:"shop_id"`
	ActorID       string    `json:"actor_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// Actor identifies the authenticated caller attached to a request context.
type Actor struct {
	ID       string
	Username string
	ShopID   string
	Role     string
}

const (
	RoleOwner    = "owner"
	RoleEmployee = "employee"
)

const (
	SaleStatusPending   = "pending"
	SaleStatusCompleted = "completed"
)
