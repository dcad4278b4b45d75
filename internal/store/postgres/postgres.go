package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"warungku/backend/internal/domain"
	"warungku/backend/internal/store"
	"warungku/backend/internal/xid"
)

// Store is the PostgreSQL-backed repository used in deployed environments.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS shops (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			employee_password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS shops_name_lower_idx ON shops (LOWER(name))`,
		`CREATE TABLE IF NOT EXISTS shop_sections (
			shop_id TEXT NOT NULL REFERENCES shops(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			position INT NOT NULL DEFAULT 0,
			PRIMARY KEY (shop_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			shop_id TEXT NOT NULL REFERENCES shops(id) ON DELETE CASCADE,
			username TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			about TEXT NOT NULL DEFAULT '',
			profile_picture TEXT NOT NULL DEFAULT '',
			selling_points INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (shop_id, username)
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			shop_id TEXT NOT NULL REFERENCES shops(id) ON DELETE CASCADE,
			section TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price_cents BIGINT NOT NULL DEFAULT 0,
			price_set BOOLEAN NOT NULL DEFAULT FALSE,
			quantity INT NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			image_url TEXT NOT NULL DEFAULT '',
			added_by_role TEXT NOT NULL DEFAULT '',
			added_by_username TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS products_shop_section_idx ON products (shop_id, section)`,
		`CREATE TABLE IF NOT EXISTS pending_sales (
			id TEXT PRIMARY KEY,
			shop_id TEXT NOT NULL REFERENCES shops(id) ON DELETE CASCADE,
			employee_id TEXT NOT NULL,
			points_awarded INT NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			confirmed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS pending_sales_shop_idx ON pending_sales (shop_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS pending_sale_items (
			sale_id TEXT NOT NULL REFERENCES pending_sales(id) ON DELETE CASCADE,
			line_no INT NOT NULL,
			product_id TEXT NOT NULL,
			product_name TEXT NOT NULL,
			quantity INT NOT NULL,
			price_at_sale_cents BIGINT NOT NULL,
			PRIMARY KEY (sale_id, line_no)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			shop_id TEXT NOT NULL,
			actor_id TEXT NOT NULL DEFAULT '',
			actor_username TEXT NOT NULL DEFAULT '',
			actor_role TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL DEFAULT '',
			entity_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS audit_logs_shop_idx ON audit_logs (shop_id, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func (s *Store) CreateShop(ctx context.Context, shop domain.Shop) (*domain.Shop, error) {
	name := strings.TrimSpace(shop.Name)
	if name == "" || shop.EmployeePasswordHash == "" {
		return nil, store.ErrInvalidInput
	}
	if shop.ID == "" {
		shop.ID = xid.New("shop")
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = time.Now().UTC()
	}
	shop.Name = name

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO shops (id, name, employee_password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		shop.ID, shop.Name, shop.EmployeePasswordHash, shop.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: shop name already taken", store.ErrConflict)
		}
		return nil, err
	}
	for i, section := range shop.Sections {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO shop_sections (shop_id, name, position) VALUES ($1, $2, $3)`,
			shop.ID, section, i)
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	if shop.Sections == nil {
		shop.Sections = []string{}
	}
	return &shop, nil
}

func (s *Store) GetShopByID(ctx context.Context, shopID string) (*domain.Shop, error) {
	return s.getShop(ctx, `SELECT id, name, employee_password_hash, created_at FROM shops WHERE id = $1`, shopID)
}

func (s *Store) GetShopByName(ctx context.Context, name string) (*domain.Shop, error) {
	return s.getShop(ctx, `SELECT id, name, employee_password_hash, created_at FROM shops WHERE LOWER(name) = LOWER($1)`, strings.TrimSpace(name))
}

func (s *Store) getShop(ctx context.Context, query string, arg any) (*domain.Shop, error) {
	var shop domain.Shop
	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&shop.ID, &shop.Name, &shop.EmployeePasswordHash, &shop.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sections, err := s.listSections(ctx, shop.ID)
	if err != nil {
		return nil, err
	}
	shop.Sections = sections
	return &shop, nil
}

func (s *Store) listSections(ctx context.Context, shopID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM shop_sections WHERE shop_id = $1 ORDER BY position, name`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sections := make([]string, 0, 8)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		sections = append(sections, name)
	}
	return sections, rows.Err()
}

func (s *Store) AddShopSection(ctx context.Context, shopID string, section string) ([]string, error) {
	section = strings.TrimSpace(section)
	if section == "" {
		return nil, store.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shop_sections (shop_id, name, position)
		 VALUES ($1, $2, (SELECT COALESCE(MAX(position), -1) + 1 FROM shop_sections WHERE shop_id = $1))`,
		shopID, section)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: section already exists", store.ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return s.listSections(ctx, shopID)
}

func (s *Store) RemoveShopSection(ctx context.Context, shopID string, section string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM shop_sections WHERE shop_id = $1 AND name = $2`, shopID, section)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: section not found in shop", store.ErrNotFound)
	}
	// Products in the removed section go away with it.
	_, err = tx.ExecContext(ctx,
		`DELETE FROM products WHERE shop_id = $1 AND section = $2`, shopID, section)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.listSections(ctx, shopID)
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.PasswordHash == "" || user.ShopID == "" {
		return nil, store.ErrInvalidInput
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, shop_id, username, password_hash, role, about, profile_picture, selling_points, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.ShopID, user.Username, user.PasswordHash, user.Role,
		user.About, user.ProfilePicture, user.SellingPoints, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: username already exists in shop", store.ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

const userColumns = `id, shop_id, username, password_hash, role, about, profile_picture, selling_points, created_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var user domain.User
	err := row.Scan(&user.ID, &user.ShopID, &user.Username, &user.PasswordHash,
		&user.Role, &user.About, &user.ProfilePicture, &user.SellingPoints, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (*domain.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

func (s *Store) GetUserByShopAndUsername(ctx context.Context, shopID string, username string) (*domain.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE shop_id = $1 AND username = LOWER($2)`,
		shopID, strings.TrimSpace(username)))
}

func (s *Store) UpdateUserProfile(ctx context.Context, userID string, req domain.ProfileUpdateRequest) (*domain.User, error) {
	if req.Username != nil && strings.TrimSpace(*req.Username) == "" {
		return nil, store.ErrInvalidInput
	}

	var username any
	if req.Username != nil {
		username = strings.ToLower(strings.TrimSpace(*req.Username))
	}
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`UPDATE users SET
			username = COALESCE($2, username),
			about = COALESCE($3, about),
			profile_picture = COALESCE($4, profile_picture)
		 WHERE id = $1
		 RETURNING `+userColumns,
		userID, username, req.About, req.ProfilePicture))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: username already exists in shop", store.ErrConflict)
		}
		return nil, err
	}
	return user, nil
}

func (s *Store) ListUsersByShop(ctx context.Context, shopID string) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE shop_id = $1 ORDER BY username`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, 16)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

const productColumns = `id, shop_id, section, name, description, price_cents, price_set, quantity, image_url, added_by_role, added_by_username, created_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.ShopID, &p.Section, &p.Name, &p.Description,
		&p.PriceCents, &p.PriceSet, &p.Quantity, &p.ImageURL,
		&p.AddedByRole, &p.AddedByUsername, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ShopID == "" || strings.TrimSpace(product.Name) == "" || product.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.PriceSet && product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	var sectionExists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM shop_sections WHERE shop_id = $1 AND name = $2)`,
		product.ShopID, product.Section).Scan(&sectionExists)
	if err != nil {
		return nil, err
	}
	if !sectionExists {
		return nil, fmt.Errorf("%w: section not found in shop", store.ErrNotFound)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO products (id, shop_id, section, name, description, price_cents, price_set, quantity, image_url, added_by_role, added_by_username, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		product.ID, product.ShopID, product.Section, product.Name, product.Description,
		product.PriceCents, product.PriceSet, product.Quantity, product.ImageURL,
		product.AddedByRole, product.AddedByUsername, product.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductByID(ctx context.Context, productID string) (*domain.Product, error) {
	return scanProduct(s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, productID))
}

func (s *Store) ListProductsBySection(ctx context.Context, shopID string, section string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE shop_id = $1 AND section = $2 ORDER BY name, id`,
		shopID, section)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *Store) DeleteProduct(ctx context.Context, productID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateProductPrice(ctx context.Context, productID string, priceCents int64) (*domain.Product, error) {
	if priceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	return scanProduct(s.db.QueryRowContext(ctx,
		`UPDATE products SET price_cents = $2, price_set = TRUE WHERE id = $1 RETURNING `+productColumns,
		productID, priceCents))
}

func (s *Store) AdjustProductStock(ctx context.Context, productID string, delta int) (*domain.Product, error) {
	product, err := scanProduct(s.db.QueryRowContext(ctx,
		`UPDATE products SET quantity = quantity + $2 WHERE id = $1 AND quantity + $2 >= 0 RETURNING `+productColumns,
		productID, delta))
	if errors.Is(err, store.ErrNotFound) {
		// Distinguish a missing product from a rejected negative adjustment.
		var exists bool
		if scanErr := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); scanErr != nil {
			return nil, scanErr
		}
		if exists {
			return nil, fmt.Errorf("%w: stock cannot be negative", store.ErrInvalidInput)
		}
		return nil, store.ErrNotFound
	}
	return product, err
}

func (s *Store) CreatePendingSale(ctx context.Context, sale domain.PendingSale) (*domain.PendingSale, error) {
	if sale.ShopID == "" || sale.EmployeeID == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusPending
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO pending_sales (id, shop_id, employee_id, points_awarded, status, created_at, confirmed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sale.ID, sale.ShopID, sale.EmployeeID, sale.PointsAwarded, sale.Status,
		sale.CreatedAt, nullTime(sale.ConfirmedAt))
	if err != nil {
		return nil, err
	}
	for i, item := range sale.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pending_sale_items (sale_id, line_no, product_id, product_name, quantity, price_at_sale_cents)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			sale.ID, i, item.ProductID, item.ProductName, item.Quantity, item.PriceAtSaleCents)
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

const saleColumns = `id, shop_id, employee_id, points_awarded, status, created_at, confirmed_at`

func scanSale(row interface{ Scan(...any) error }) (*domain.PendingSale, error) {
	var sale domain.PendingSale
	var confirmedAt sql.NullTime
	err := row.Scan(&sale.ID, &sale.ShopID, &sale.EmployeeID, &sale.PointsAwarded,
		&sale.Status, &sale.CreatedAt, &confirmedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time.UTC()
		sale.ConfirmedAt = &t
	}
	return &sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, saleID string) (*domain.PendingSale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx,
		`SELECT `+saleColumns+` FROM pending_sales WHERE id = $1`, saleID))
	if err != nil {
		return nil, err
	}
	items, err := s.listSaleItems(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return sale, nil
}

func (s *Store) listSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, product_name, quantity, price_at_sale_cents
		 FROM pending_sale_items WHERE sale_id = $1 ORDER BY line_no`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 4)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &item.PriceAtSaleCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) ListSalesByShop(ctx context.Context, shopID string) ([]domain.PendingSale, error) {
	return s.listSales(ctx,
		`SELECT `+saleColumns+` FROM pending_sales WHERE shop_id = $1 ORDER BY created_at DESC, id DESC`, shopID)
}

func (s *Store) ListCompletedSales(ctx context.Context, shopID string) ([]domain.PendingSale, error) {
	return s.listSales(ctx,
		`SELECT `+saleColumns+` FROM pending_sales WHERE shop_id = $1 AND status = 'completed' ORDER BY created_at DESC, id DESC`, shopID)
}

func (s *Store) listSales(ctx context.Context, query string, shopID string) ([]domain.PendingSale, error) {
	rows, err := s.db.QueryContext(ctx, query, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.PendingSale, 0, 32)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range sales {
		items, err := s.listSaleItems(ctx, sales[i].ID)
		if err != nil {
			return nil, err
		}
		sales[i].Items = items
	}
	return sales, nil
}

func (s *Store) DeletePendingSale(ctx context.Context, saleID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_sales WHERE id = $1 AND status = 'pending'`, saleID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var status string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM pending_sales WHERE id = $1`, saleID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		return store.ErrSaleCompleted
	}
	return nil
}

func (s *Store) ConfirmPendingSale(ctx context.Context, saleID string, employeeID string, at time.Time) (*domain.PendingSale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := scanSale(tx.QueryRowContext(ctx,
		`SELECT `+saleColumns+` FROM pending_sales WHERE id = $1 FOR UPDATE`, saleID))
	if err != nil {
		return nil, err
	}
	if sale.Status != domain.SaleStatusPending {
		return nil, store.ErrSaleCompleted
	}
	if sale.EmployeeID != employeeID {
		return nil, fmt.Errorf("%w: only the creator can confirm this sale", store.ErrForbidden)
	}

	items, err := listSaleItemsTx(ctx, tx, saleID)
	if err != nil {
		return nil, err
	}
	sale.Items = items

	// Lock and re-validate every product row before decrementing anything.
	// Demand is summed per product so duplicate lines in one sale cannot pass
	// validation individually and drive the quantity negative; the table's
	// CHECK (quantity >= 0) backstops the same invariant.
	required := make(map[string]int, len(items))
	for _, item := range items {
		var name string
		var quantity int
		err := tx.QueryRowContext(ctx,
			`SELECT name, quantity FROM products WHERE id = $1 AND shop_id = $2 FOR UPDATE`,
			item.ProductID, sale.ShopID).Scan(&name, &quantity)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: product not found: %s", store.ErrNotFound, item.ProductID)
		}
		if err != nil {
			return nil, err
		}
		required[item.ProductID] += item.Quantity
		if quantity < required[item.ProductID] {
			return nil, fmt.Errorf("%w for %s", store.ErrInsufficientStock, name)
		}
	}
	for _, item := range items {
		_, err := tx.ExecContext(ctx,
			`UPDATE products SET quantity = quantity - $2 WHERE id = $1`,
			item.ProductID, item.Quantity)
		if err != nil {
			return nil, err
		}
	}

	confirmedAt := at.UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE pending_sales SET status = 'completed', confirmed_at = $2 WHERE id = $1 AND status = 'pending'`,
		saleID, confirmedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrSaleCompleted
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET selling_points = selling_points + $2 WHERE id = $1`,
		sale.EmployeeID, sale.PointsAwarded)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	sale.Status = domain.SaleStatusCompleted
	sale.ConfirmedAt = &confirmedAt
	return sale, nil
}

func listSaleItemsTx(ctx context.Context, tx *sql.Tx, saleID string) ([]domain.SaleItem, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT product_id, product_name, quantity, price_at_sale_cents
		 FROM pending_sale_items WHERE sale_id = $1 ORDER BY line_no`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 4)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &item.PriceAtSaleCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, shop_id, actor_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.ShopID, entry.ActorID, entry.ActorUsername, entry.ActorRole,
		entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, shopID string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, shop_id, actor_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		 FROM audit_logs WHERE shop_id = $1 ORDER BY created_at DESC LIMIT $2`, shopID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ShopID, &entry.ActorID, &entry.ActorUsername,
			&entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID,
			&entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
