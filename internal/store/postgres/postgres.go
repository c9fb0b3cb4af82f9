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

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
)

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

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// NextSequence advances the per-category counter in a single upsert so two
// concurrent callers can never observe the same value. The CASE arm resets
// the counter to 1 whenever the stored reset date differs from date.
func (s *Store) NextSequence(ctx context.Context, category string, date string) (int64, error) {
	category = strings.ToUpper(strings.TrimSpace(category))
	if category == "" || date == "" {
		return 0, fmt.Errorf("%w: sequence category and date required", store.ErrConflict)
	}

	var value int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sequence_counters (category, current_value, last_reset_date, updated_at)
		VALUES ($1, 1, $2, now())
		ON CONFLICT (category)
		DO UPDATE SET
			current_value = CASE
				WHEN sequence_counters.last_reset_date = EXCLUDED.last_reset_date
				THEN sequence_counters.current_value + 1
				ELSE 1
			END,
			last_reset_date = EXCLUDED.last_reset_date,
			updated_at = now()
		RETURNING current_value
	`, category, date).Scan(&value)
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, name, category, price_cents, stock, COALESCE(sku,''), status, created_at, updated_at
		FROM products
		WHERE status = $1
		ORDER BY product_id
	`, domain.ProductStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) ListProductsWithVariants(ctx context.Context) ([]domain.ProductWithVariants, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT variant_id, product_id, name, price_cents, stock, COALESCE(sku,''), status, created_at, updated_at
		FROM product_variants
		WHERE status = $1
		ORDER BY variant_id
	`, domain.ProductStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byProduct := make(map[string][]domain.Variant, len(products))
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		byProduct[v.ProductID] = append(byProduct[v.ProductID], v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.ProductWithVariants, 0, len(products))
	for _, p := range products {
		variants := byProduct[p.ProductID]
		if variants == nil {
			variants = make([]domain.Variant, 0)
		}
		out = append(out, domain.ProductWithVariants{Product: p, Variants: variants})
	}
	return out, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ProductID == "" || product.Name == "" || product.PriceCents < 0 || product.Stock < 0 {
		return nil, fmt.Errorf("%w: invalid product", store.ErrConflict)
	}

	product.Status = domain.ProductStatusActive
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (product_id, name, category, price_cents, stock, sku, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, product.ProductID, product.Name, product.Category, product.PriceCents, product.Stock, nullIfEmpty(product.SKU), product.Status, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: product name %q already exists", store.ErrConflict, product.Name)
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, productID string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT product_id, name, category, price_cents, stock, COALESCE(sku,''), status, created_at, updated_at
		FROM products
		WHERE product_id = $1 AND status <> $2
	`, productID, domain.ProductStatusDeleted)

	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) FindActiveProductByName(ctx context.Context, name string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT product_id, name, category, price_cents, stock, COALESCE(sku,''), status, created_at, updated_at
		FROM products
		WHERE lower(name) = lower($1) AND status <> $2
		LIMIT 1
	`, name, domain.ProductStatusDeleted)

	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ProductID == "" || product.Name == "" || product.PriceCents < 0 || product.Stock < 0 {
		return nil, fmt.Errorf("%w: invalid product", store.ErrConflict)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price_cents = $4, stock = $5, sku = $6, updated_at = now()
		WHERE product_id = $1 AND status <> $7
	`, product.ProductID, product.Name, product.Category, product.PriceCents, product.Stock, nullIfEmpty(product.SKU), domain.ProductStatusDeleted)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: product name %q already exists", store.ErrConflict, product.Name)
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("product %s: %w", product.ProductID, store.ErrNotFound)
	}

	return s.GetProductByID(ctx, product.ProductID)
}

func (s *Store) SoftDeleteProduct(ctx context.Context, productID string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET status = $2, deleted_at = $3, updated_at = now()
		WHERE product_id = $1 AND status <> $2
	`, productID, domain.ProductStatusDeleted, at.UTC())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE product_variants
		SET status = $2, updated_at = now()
		WHERE product_id = $1 AND status <> $2
	`, productID, domain.ProductStatusDeleted)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) CreateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error) {
	if variant.VariantID == "" || variant.Name == "" || variant.PriceCents < 0 || variant.Stock < 0 {
		return nil, fmt.Errorf("%w: invalid variant", store.ErrConflict)
	}
	if _, err := s.GetProductByID(ctx, variant.ProductID); err != nil {
		return nil, err
	}

	variant.Status = domain.ProductStatusActive
	if variant.CreatedAt.IsZero() {
		variant.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_variants (variant_id, product_id, name, price_cents, stock, sku, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, variant.VariantID, variant.ProductID, variant.Name, variant.PriceCents, variant.Stock, nullIfEmpty(variant.SKU), variant.Status, variant.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: variant %s", store.ErrConflict, variant.VariantID)
		}
		return nil, err
	}

	created := variant
	return &created, nil
}

func (s *Store) ListVariantsByProduct(ctx context.Context, productID string) ([]domain.Variant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT variant_id, product_id, name, price_cents, stock, COALESCE(sku,''), status, created_at, updated_at
		FROM product_variants
		WHERE product_id = $1 AND status = $2
		ORDER BY variant_id
	`, productID, domain.ProductStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	variants := make([]domain.Variant, 0, 8)
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return variants, nil
}

func (s *Store) UpdateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error) {
	if variant.VariantID == "" || variant.Name == "" || variant.PriceCents < 0 || variant.Stock < 0 {
		return nil, fmt.Errorf("%w: invalid variant", store.ErrConflict)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE product_variants
		SET name = $2, price_cents = $3, stock = $4, sku = $5, updated_at = now()
		WHERE variant_id = $1 AND status <> $6
	`, variant.VariantID, variant.Name, variant.PriceCents, variant.Stock, nullIfEmpty(variant.SKU), domain.ProductStatusDeleted)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("variant %s: %w", variant.VariantID, store.ErrNotFound)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT variant_id, product_id, name, price_cents, stock, COALESCE(sku,''), status, created_at, updated_at
		FROM product_variants
		WHERE variant_id = $1
	`, variant.VariantID)
	updated, err := scanVariant(row)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteVariant(ctx context.Context, variantID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE product_variants
		SET status = $2, updated_at = now()
		WHERE variant_id = $1 AND status <> $2
	`, variantID, domain.ProductStatusDeleted)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("variant %s: %w", variantID, store.ErrNotFound)
	}
	return nil
}

// CommitSale re-resolves every line inside one serializable transaction.
// The stock decrement carries its own guard (stock >= qty in the WHERE
// clause), so a concurrent sale that drained the row between the read and
// the write shows up as zero rows affected and rolls the whole sale back.
func (s *Store) CommitSale(ctx context.Context, tx domain.Transaction, items []domain.SaleItemRequest) (*domain.Transaction, error) {
	if tx.TransactionID == "" || len(items) == 0 {
		return nil, fmt.Errorf("%w: invalid sale", store.ErrConflict)
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	lines := make([]domain.TransactionItem, 0, len(items))
	total := int64(0)
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be positive", store.ErrConflict)
		}

		var name string
		var priceCents int64
		var stock int
		err := pgTx.QueryRowContext(ctx, `
			SELECT name, price_cents, stock
			FROM products
			WHERE product_id = $1 AND status = $2
			FOR UPDATE
		`, item.ProductID, domain.ProductStatusActive).Scan(&name, &priceCents, &stock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
			}
			return nil, err
		}
		if stock < item.Quantity {
			return nil, fmt.Errorf("%w for %s", store.ErrInsufficientStock, name)
		}

		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $1, updated_at = now()
			WHERE product_id = $2 AND status = $3 AND stock >= $1
		`, item.Quantity, item.ProductID, domain.ProductStatusActive)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w for %s", store.ErrInsufficientStock, name)
		}

		subtotal := priceCents * int64(item.Quantity)
		lines = append(lines, domain.TransactionItem{
			ProductID:      item.ProductID,
			ProductName:    name,
			UnitPriceCents: priceCents,
			Quantity:       item.Quantity,
			SubtotalCents:  subtotal,
		})
		total += subtotal
	}

	tx.Items = lines
	tx.TotalAmountCents = total
	if tx.Status == "" {
		tx.Status = domain.TxStatusCompleted
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (transaction_id, total_amount_cents, payment_method, cashier_id, cashier_name, customer_name, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, tx.TransactionID, tx.TotalAmountCents, tx.PaymentMethod, nullIfEmpty(tx.CashierID), nullIfEmpty(tx.CashierName), nullIfEmpty(tx.CustomerName), tx.Status, tx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: transaction %s", store.ErrConflict, tx.TransactionID)
		}
		return nil, err
	}

	for _, line := range tx.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, product_id, product_name, unit_price_cents, qty, subtotal_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, tx.TransactionID, line.ProductID, line.ProductName, line.UnitPriceCents, line.Quantity, line.SubtotalCents)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, total_amount_cents, payment_method, COALESCE(cashier_id,''),
			COALESCE(cashier_name,''), COALESCE(customer_name,''), status, created_at
		FROM transactions
		ORDER BY created_at DESC, transaction_id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.TransactionID, &tx.TotalAmountCents, &tx.PaymentMethod, &tx.CashierID, &tx.CashierName, &tx.CustomerName, &tx.Status, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.CreatedAt = tx.CreatedAt.UTC()
		transactions = append(transactions, tx)
		ids = append(ids, tx.TransactionID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemsByTx, err := s.loadTransactionItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range transactions {
		transactions[i].Items = itemsByTx[transactions[i].TransactionID]
	}
	return transactions, nil
}

func (s *Store) GetTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := s.db.QueryRowContext(ctx, `
		SELECT transaction_id, total_amount_cents, payment_method, COALESCE(cashier_id,''),
			COALESCE(cashier_name,''), COALESCE(customer_name,''), status, created_at
		FROM transactions
		WHERE transaction_id = $1
	`, transactionID).Scan(&tx.TransactionID, &tx.TotalAmountCents, &tx.PaymentMethod, &tx.CashierID, &tx.CashierName, &tx.CustomerName, &tx.Status, &tx.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", transactionID, store.ErrNotFound)
		}
		return nil, err
	}
	tx.CreatedAt = tx.CreatedAt.UTC()

	itemsByTx, err := s.loadTransactionItems(ctx, []string{transactionID})
	if err != nil {
		return nil, err
	}
	tx.Items = itemsByTx[transactionID]
	return &tx, nil
}

func (s *Store) loadTransactionItems(ctx context.Context, ids []string) (map[string][]domain.TransactionItem, error) {
	out := make(map[string][]domain.TransactionItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, product_id, product_name, unit_price_cents, qty, subtotal_cents
		FROM transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY id ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var txID string
		var item domain.TransactionItem
		if err := rows.Scan(&txID, &item.ProductID, &item.ProductName, &item.UnitPriceCents, &item.Quantity, &item.SubtotalCents); err != nil {
			return nil, err
		}
		out[txID] = append(out[txID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SalesByPeriod(ctx context.Context, granularity store.Granularity, from time.Time, to time.Time) ([]domain.PeriodSales, error) {
	var format string
	switch granularity {
	case store.GranularityWeek:
		format = `IYYY-"W"IW`
	case store.GranularityMonth:
		format = "YYYY-MM"
	default:
		format = "YYYY-MM-DD"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', $1) AS period,
			COALESCE(SUM(total_amount_cents),0)::bigint,
			COUNT(*)::bigint
		FROM transactions
		WHERE created_at >= $2 AND created_at < $3
		GROUP BY period
		ORDER BY period
	`, format, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	periods := make([]domain.PeriodSales, 0, 32)
	for rows.Next() {
		var p domain.PeriodSales
		if err := rows.Scan(&p.Period, &p.TotalSalesCents, &p.TransactionCount); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return periods, nil
}

func (s *Store) BestSellers(ctx context.Context, limit int) ([]domain.BestSeller, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, MIN(product_name),
			COALESCE(SUM(qty),0)::bigint,
			COALESCE(SUM(subtotal_cents),0)::bigint
		FROM transaction_items
		GROUP BY product_id
		ORDER BY 3 DESC, product_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	best := make([]domain.BestSeller, 0, limit)
	for rows.Next() {
		var b domain.BestSeller
		if err := rows.Scan(&b.ProductID, &b.ProductName, &b.TotalQuantity, &b.RevenueCents); err != nil {
			return nil, err
		}
		best = append(best, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return best, nil
}

func (s *Store) DashboardStats(ctx context.Context, now time.Time) (domain.DashboardStats, error) {
	var stats domain.DashboardStats
	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_amount_cents),0)::bigint, COUNT(*)::bigint
		FROM transactions
		WHERE created_at >= $1 AND created_at < $2
	`, dayStart, dayEnd).Scan(&stats.TodaySalesCents, &stats.TodayTransactions)
	if err != nil {
		return stats, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint,
			COALESCE(SUM(CASE WHEN stock < $2 THEN 1 ELSE 0 END),0)::bigint
		FROM products
		WHERE status = $1
	`, domain.ProductStatusActive, domain.LowStockThreshold).Scan(&stats.TotalProducts, &stats.LowStockProducts)
	if err != nil {
		return stats, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint
		FROM employees
		WHERE status = $1
	`, domain.EmployeeStatusActive).Scan(&stats.TotalEmployees)
	if err != nil {
		return stats, err
	}

	return stats, nil
}

func (s *Store) CreateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error) {
	if employee.EmployeeID == "" || employee.Username == "" {
		return nil, fmt.Errorf("%w: invalid employee", store.ErrConflict)
	}
	if employee.CreatedAt.IsZero() {
		employee.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (employee_id, name, username, email, password_hash, role, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, employee.EmployeeID, employee.Name, strings.ToLower(employee.Username), strings.ToLower(employee.Email), employee.PasswordHash, employee.Role, employee.Status, employee.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: username or email already exists", store.ErrConflict)
		}
		return nil, err
	}

	created := employee
	return &created, nil
}

func (s *Store) FindEmployeeByUsername(ctx context.Context, username string) (*domain.Employee, error) {
	var e domain.Employee
	err := s.db.QueryRowContext(ctx, `
		SELECT employee_id, name, username, COALESCE(email,''), password_hash, role, status, created_at
		FROM employees
		WHERE username = lower($1)
	`, username).Scan(&e.EmployeeID, &e.Name, &e.Username, &e.Email, &e.PasswordHash, &e.Role, &e.Status, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT employee_id, name, username, COALESCE(email,''), password_hash, role, status, created_at
		FROM employees
		ORDER BY employee_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	employees := make([]domain.Employee, 0, 16)
	for rows.Next() {
		var e domain.Employee
		if err := rows.Scan(&e.EmployeeID, &e.Name, &e.Username, &e.Email, &e.PasswordHash, &e.Role, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return employees, nil
}

func (s *Store) SetEmployeeStatus(ctx context.Context, employeeID string, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE employees
		SET status = $2, updated_at = now()
		WHERE employee_id = $1
	`, employeeID, status)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("employee %s: %w", employeeID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, session domain.Session) error {
	if session.SessionID == "" || session.Token == "" {
		return fmt.Errorf("%w: invalid session", store.ErrConflict)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, username, role, token, issued_at, expires_at, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, session.SessionID, session.UserID, session.Username, session.Role, session.Token, session.IssuedAt, session.ExpiresAt, session.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: session %s", store.ErrConflict, session.SessionID)
		}
		return err
	}
	return nil
}

func (s *Store) FindSessionByToken(ctx context.Context, token string) (*domain.Session, error) {
	var session domain.Session
	var revokedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, user_id, username, role, token, issued_at, expires_at, status, revoked_at
		FROM sessions
		WHERE token = $1
	`, token).Scan(&session.SessionID, &session.UserID, &session.Username, &session.Role, &session.Token, &session.IssuedAt, &session.ExpiresAt, &session.Status, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	session.IssuedAt = session.IssuedAt.UTC()
	session.ExpiresAt = session.ExpiresAt.UTC()
	if revokedAt.Valid {
		at := revokedAt.Time.UTC()
		session.RevokedAt = &at
	}
	return &session, nil
}

func (s *Store) RevokeSession(ctx context.Context, token string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = $2, revoked_at = $3
		WHERE token = $1
	`, token, domain.SessionStatusInactive, at.UTC())
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var updatedAt sql.NullTime
	err := row.Scan(&p.ProductID, &p.Name, &p.Category, &p.PriceCents, &p.Stock, &p.SKU, &p.Status, &p.CreatedAt, &updatedAt)
	if err != nil {
		return p, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	if updatedAt.Valid {
		at := updatedAt.Time.UTC()
		p.UpdatedAt = &at
	}
	return p, nil
}

func scanVariant(row rowScanner) (domain.Variant, error) {
	var v domain.Variant
	var updatedAt sql.NullTime
	err := row.Scan(&v.VariantID, &v.ProductID, &v.Name, &v.PriceCents, &v.Stock, &v.SKU, &v.Status, &v.CreatedAt, &updatedAt)
	if err != nil {
		return v, err
	}
	v.CreatedAt = v.CreatedAt.UTC()
	if updatedAt.Valid {
		at := updatedAt.Time.UTC()
		v.UpdatedAt = &at
	}
	return v, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
