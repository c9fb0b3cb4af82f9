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

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/seqid"
	"tokopos/backend/internal/store"
)

type seqCounter struct {
	lastResetDate string
	currentValue  int64
}

type Store struct {
	mu           sync.RWMutex
	sequences    map[string]*seqCounter
	products     map[string]domain.Product
	variants     map[string]domain.Variant
	transactions map[string]*domain.Transaction
	txOrder      []string
	employees    map[string]domain.Employee
	sessions     map[string]domain.Session

	// commitFault, when set, is invoked after each successful stock
	// decrement during CommitSale with the number of lines applied so far.
	// Tests use it to force a mid-commit failure and assert compensation.
	commitFault func(applied int) error
}

func New() *Store {
	return &Store{
		sequences:    make(map[string]*seqCounter),
		products:     make(map[string]domain.Product),
		variants:     make(map[string]domain.Variant),
		transactions: make(map[string]*domain.Transaction),
		txOrder:      make([]string, 0, 128),
		employees:    make(map[string]domain.Employee),
		sessions:     make(map[string]domain.Session),
	}
}

// NewSeeded returns a store preloaded with a small catalog and the two seed
// accounts used in dev/demo mode. Seed credentials come from
// SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded dev defaults are
// used with a warning when unset. Production deployments use PostgreSQL.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	date := seqid.DateStamp(now)

	for _, p := range []struct {
		name       string
		category   string
		priceCents int64
		stock      int
		sku        string
	}{
		{"Mie Goreng Instan", "grocery", 3500, 120, "SKU-MIE-01"},
		{"Telur 10 Butir", "grocery", 26500, 80, "SKU-TELUR-01"},
		{"Susu UHT 1L", "dairy", 18900, 60, "SKU-SUSU-01"},
		{"Kopi Sachet", "beverage", 2600, 200, "SKU-KOPI-01"},
		{"Air Mineral 600ml", "beverage", 3900, 150, "SKU-AIR-01"},
		{"Roti Tawar", "bakery", 17800, 40, "SKU-ROTI-01"},
	} {
		id := seqid.Format(seqid.CategoryProduct, date, s.nextSequenceLocked(seqid.CategoryProduct, date))
		s.products[id] = domain.Product{
			ProductID:  id,
			Name:       p.name,
			Category:   p.category,
			PriceCents: p.priceCents,
			Stock:      p.stock,
			SKU:        p.sku,
			Status:     domain.ProductStatusActive,
			CreatedAt:  now,
		}
	}

	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	for _, e := range []struct {
		name     string
		username string
		password string
		role     string
	}{
		{"Administrator", "admin", adminPwd, domain.RoleAdmin},
		{"Kasir Satu", "cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(e.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", e.username, err)
		}
		id := seqid.Format(seqid.CategoryEmployee, date, s.nextSequenceLocked(seqid.CategoryEmployee, date))
		s.employees[id] = domain.Employee{
			EmployeeID:   id,
			Name:         e.name,
			Username:     e.username,
			Email:        e.username + "@tokopos.local",
			PasswordHash: string(hash),
			Role:         e.role,
			Status:       domain.EmployeeStatusActive,
			CreatedAt:    now,
		}
	}

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) NextSequence(_ context.Context, category string, date string) (int64, error) {
	if category == "" || date == "" {
		return 0, fmt.Errorf("%w: sequence category and date required", store.ErrConflict)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSequenceLocked(category, date), nil
}

func (s *Store) nextSequenceLocked(category string, date string) int64 {
	counter, ok := s.sequences[category]
	if !ok || counter.lastResetDate != date {
		s.sequences[category] = &seqCounter{lastResetDate: date, currentValue: 1}
		return 1
	}
	counter.currentValue++
	return counter.currentValue
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Status == domain.ProductStatusDeleted {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return products, nil
}

func (s *Store) ListProductsWithVariants(ctx context.Context) ([]domain.ProductWithVariants, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ProductWithVariants, 0, len(products))
	for _, p := range products {
		entry := domain.ProductWithVariants{Product: p, Variants: make([]domain.Variant, 0, 4)}
		for _, v := range s.variants {
			if v.ProductID == p.ProductID && v.Status != domain.ProductStatusDeleted {
				entry.Variants = append(entry.Variants, v)
			}
		}
		slices.SortFunc(entry.Variants, func(a, b domain.Variant) int {
			return strings.Compare(a.VariantID, b.VariantID)
		})
		out = append(out, entry)
	}
	return out, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ProductID == "" || product.Name == "" || product.PriceCents < 0 || product.Stock < 0 {
		return nil, fmt.Errorf("%w: invalid product", store.ErrConflict)
	}
	if _, exists := s.products[product.ProductID]; exists {
		return nil, fmt.Errorf("%w: product id %s", store.ErrConflict, product.ProductID)
	}
	for _, existing := range s.products {
		if existing.Status != domain.ProductStatusDeleted && strings.EqualFold(existing.Name, product.Name) {
			return nil, fmt.Errorf("%w: product name %q already exists", store.ErrConflict, product.Name)
		}
	}

	product.Status = domain.ProductStatusActive
	s.products[product.ProductID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[productID]
	if !exists || product.Status == domain.ProductStatusDeleted {
		return nil, fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) FindActiveProductByName(_ context.Context, name string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.Status != domain.ProductStatusDeleted && strings.EqualFold(p.Name, name) {
			copyProduct := p
			return &copyProduct, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ProductID]
	if !exists || existing.Status == domain.ProductStatusDeleted {
		return nil, fmt.Errorf("product %s: %w", product.ProductID, store.ErrNotFound)
	}
	for id, other := range s.products {
		if id == product.ProductID || other.Status == domain.ProductStatusDeleted {
			continue
		}
		if strings.EqualFold(other.Name, product.Name) {
			return nil, fmt.Errorf("%w: product name %q already exists", store.ErrConflict, product.Name)
		}
	}

	product.CreatedAt = existing.CreatedAt
	product.Status = existing.Status
	s.products[product.ProductID] = product
	updated := product
	return &updated, nil
}

func (s *Store) SoftDeleteProduct(_ context.Context, productID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists || product.Status == domain.ProductStatusDeleted {
		return fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}

	deletedAt := at.UTC()
	product.Status = domain.ProductStatusDeleted
	product.DeletedAt = &deletedAt
	s.products[productID] = product

	for id, v := range s.variants {
		if v.ProductID == productID {
			v.Status = domain.ProductStatusDeleted
			s.variants[id] = v
		}
	}
	return nil
}

func (s *Store) CreateVariant(_ context.Context, variant domain.Variant) (*domain.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, exists := s.products[variant.ProductID]
	if !exists || parent.Status == domain.ProductStatusDeleted {
		return nil, fmt.Errorf("product %s: %w", variant.ProductID, store.ErrNotFound)
	}
	if variant.VariantID == "" || variant.Name == "" || variant.PriceCents < 0 || variant.Stock < 0 {
		return nil, fmt.Errorf("%w: invalid variant", store.ErrConflict)
	}

	variant.Status = domain.ProductStatusActive
	s.variants[variant.VariantID] = variant
	created := variant
	return &created, nil
}

func (s *Store) ListVariantsByProduct(_ context.Context, productID string) ([]domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	variants := make([]domain.Variant, 0, 8)
	for _, v := range s.variants {
		if v.ProductID == productID && v.Status != domain.ProductStatusDeleted {
			variants = append(variants, v)
		}
	}
	slices.SortFunc(variants, func(a, b domain.Variant) int {
		return strings.Compare(a.VariantID, b.VariantID)
	})
	return variants, nil
}

func (s *Store) UpdateVariant(_ context.Context, variant domain.Variant) (*domain.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.variants[variant.VariantID]
	if !exists || existing.Status == domain.ProductStatusDeleted {
		return nil, fmt.Errorf("variant %s: %w", variant.VariantID, store.ErrNotFound)
	}

	variant.ProductID = existing.ProductID
	variant.CreatedAt = existing.CreatedAt
	variant.Status = existing.Status
	s.variants[variant.VariantID] = variant
	updated := variant
	return &updated, nil
}

func (s *Store) DeleteVariant(_ context.Context, variantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.variants[variantID]
	if !exists || existing.Status == domain.ProductStatusDeleted {
		return fmt.Errorf("variant %s: %w", variantID, store.ErrNotFound)
	}
	existing.Status = domain.ProductStatusDeleted
	s.variants[variantID] = existing
	return nil
}

// CommitSale runs the two-phase commit: per-line compare-and-decrement,
// then the transaction insert. Any line failure (inactive product, stock
// short at write time, injected fault) compensates the decrements already
// applied, in reverse order, and leaves no trace of the sale.
func (s *Store) CommitSale(_ context.Context, tx domain.Transaction, items []domain.SaleItemRequest) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.TransactionID == "" || len(items) == 0 {
		return nil, fmt.Errorf("%w: invalid sale", store.ErrConflict)
	}

	type appliedLine struct {
		productID string
		qty       int
	}
	applied := make([]appliedLine, 0, len(items))
	compensate := func() {
		for i := len(applied) - 1; i >= 0; i-- {
			p := s.products[applied[i].productID]
			p.Stock += applied[i].qty
			s.products[applied[i].productID] = p
		}
	}

	lines := make([]domain.TransactionItem, 0, len(items))
	total := int64(0)
	for _, item := range items {
		if item.Quantity < 1 {
			compensate()
			return nil, fmt.Errorf("%w: quantity must be positive", store.ErrConflict)
		}
		product, exists := s.products[item.ProductID]
		if !exists || product.Status != domain.ProductStatusActive {
			compensate()
			return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
		if product.Stock < item.Quantity {
			compensate()
			return nil, fmt.Errorf("%w for %s", store.ErrInsufficientStock, product.Name)
		}

		product.Stock -= item.Quantity
		s.products[item.ProductID] = product
		applied = append(applied, appliedLine{productID: item.ProductID, qty: item.Quantity})

		subtotal := product.PriceCents * int64(item.Quantity)
		lines = append(lines, domain.TransactionItem{
			ProductID:      item.ProductID,
			ProductName:    product.Name,
			UnitPriceCents: product.PriceCents,
			Quantity:       item.Quantity,
			SubtotalCents:  subtotal,
		})
		total += subtotal

		if s.commitFault != nil {
			if err := s.commitFault(len(applied)); err != nil {
				compensate()
				return nil, err
			}
		}
	}

	tx.Items = lines
	tx.TotalAmountCents = total
	if tx.Status == "" {
		tx.Status = domain.TxStatusCompleted
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	txCopy := cloneTransaction(&tx)
	s.transactions[tx.TransactionID] = txCopy
	s.txOrder = append(s.txOrder, tx.TransactionID)

	return cloneTransaction(txCopy), nil
}

func (s *Store) ListTransactions(_ context.Context, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, 0, limit)
	for i := len(s.txOrder) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *cloneTransaction(s.transactions[s.txOrder[i]]))
	}
	return out, nil
}

func (s *Store) GetTransactionByID(_ context.Context, transactionID string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[transactionID]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, store.ErrNotFound)
	}
	return cloneTransaction(tx), nil
}

func (s *Store) SalesByPeriod(_ context.Context, granularity store.Granularity, from time.Time, to time.Time) ([]domain.PeriodSales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := make(map[string]*domain.PeriodSales)
	for _, tx := range s.transactions {
		at := tx.CreatedAt.UTC()
		if at.Before(from) || !at.Before(to) {
			continue
		}
		key := periodKey(granularity, at)
		bucket, ok := buckets[key]
		if !ok {
			bucket = &domain.PeriodSales{Period: key}
			buckets[key] = bucket
		}
		bucket.TotalSalesCents += tx.TotalAmountCents
		bucket.TransactionCount++
	}

	out := make([]domain.PeriodSales, 0, len(buckets))
	for _, bucket := range buckets {
		out = append(out, *bucket)
	}
	slices.SortFunc(out, func(a, b domain.PeriodSales) int {
		return strings.Compare(a.Period, b.Period)
	})
	return out, nil
}

func periodKey(granularity store.Granularity, at time.Time) string {
	switch granularity {
	case store.GranularityWeek:
		year, week := at.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case store.GranularityMonth:
		return at.Format("2006-01")
	default:
		return at.Format("2006-01-02")
	}
}

func (s *Store) BestSellers(_ context.Context, limit int) ([]domain.BestSeller, error) {
	if limit < 1 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	byProduct := make(map[string]*domain.BestSeller)
	for _, tx := range s.transactions {
		for _, line := range tx.Items {
			entry, ok := byProduct[line.ProductID]
			if !ok {
				entry = &domain.BestSeller{ProductID: line.ProductID, ProductName: line.ProductName}
				byProduct[line.ProductID] = entry
			}
			entry.TotalQuantity += int64(line.Quantity)
			entry.RevenueCents += line.SubtotalCents
		}
	}

	ranked := make([]domain.BestSeller, 0, len(byProduct))
	for _, entry := range byProduct {
		ranked = append(ranked, *entry)
	}
	slices.SortFunc(ranked, func(a, b domain.BestSeller) int {
		if a.TotalQuantity != b.TotalQuantity {
			if a.TotalQuantity > b.TotalQuantity {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ProductID, b.ProductID)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func (s *Store) DashboardStats(_ context.Context, now time.Time) (domain.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	var stats domain.DashboardStats
	for _, tx := range s.transactions {
		at := tx.CreatedAt.UTC()
		if at.Before(dayStart) || !at.Before(dayEnd) {
			continue
		}
		stats.TodaySalesCents += tx.TotalAmountCents
		stats.TodayTransactions++
	}
	for _, p := range s.products {
		if p.Status != domain.ProductStatusActive {
			continue
		}
		stats.TotalProducts++
		if p.Stock < domain.LowStockThreshold {
			stats.LowStockProducts++
		}
	}
	for _, e := range s.employees {
		if e.Status == domain.EmployeeStatusActive {
			stats.TotalEmployees++
		}
	}
	return stats, nil
}

func (s *Store) CreateEmployee(_ context.Context, employee domain.Employee) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if employee.EmployeeID == "" || employee.Username == "" {
		return nil, fmt.Errorf("%w: invalid employee", store.ErrConflict)
	}
	for _, existing := range s.employees {
		if strings.EqualFold(existing.Username, employee.Username) || (employee.Email != "" && strings.EqualFold(existing.Email, employee.Email)) {
			return nil, fmt.Errorf("%w: username or email already exists", store.ErrConflict)
		}
	}

	s.employees[employee.EmployeeID] = employee
	created := employee
	return &created, nil
}

func (s *Store) FindEmployeeByUsername(_ context.Context, username string) (*domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.employees {
		if strings.EqualFold(e.Username, username) {
			copyEmployee := e
			return &copyEmployee, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListEmployees(_ context.Context) ([]domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employees := make([]domain.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		employees = append(employees, e)
	}
	slices.SortFunc(employees, func(a, b domain.Employee) int {
		return strings.Compare(a.EmployeeID, b.EmployeeID)
	})
	return employees, nil
}

func (s *Store) SetEmployeeStatus(_ context.Context, employeeID string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	employee, exists := s.employees[employeeID]
	if !exists {
		return fmt.Errorf("employee %s: %w", employeeID, store.ErrNotFound)
	}
	employee.Status = status
	s.employees[employeeID] = employee
	return nil
}

func (s *Store) CreateSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.SessionID == "" || session.Token == "" {
		return fmt.Errorf("%w: invalid session", store.ErrConflict)
	}
	s.sessions[session.Token] = session
	return nil
}

func (s *Store) FindSessionByToken(_ context.Context, token string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	copySession := session
	return &copySession, nil
}

func (s *Store) RevokeSession(_ context.Context, token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return store.ErrNotFound
	}
	revokedAt := at.UTC()
	session.Status = domain.SessionStatusInactive
	session.RevokedAt = &revokedAt
	s.sessions[token] = session
	return nil
}

func cloneTransaction(tx *domain.Transaction) *domain.Transaction {
	clone := *tx
	clone.Items = make([]domain.TransactionItem, len(tx.Items))
	copy(clone.Items, tx.Items)
	return &clone
}
