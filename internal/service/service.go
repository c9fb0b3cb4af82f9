package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tokopos/backend/internal/cache"
	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/seqid"
	"tokopos/backend/internal/store"
)

type principalContextKey struct{}

func WithPrincipal(ctx context.Context, principal domain.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(domain.Principal)
	return principal, ok
}

const dashboardCacheKey = "dashboard:stats"

type Service struct {
	repo         store.Repository
	stats        cache.StatsCache
	dashboardTTL time.Duration
}

func New(repo store.Repository, stats cache.StatsCache, dashboardTTL time.Duration) *Service {
	if stats == nil {
		stats = cache.NoopStatsCache{}
	}
	if dashboardTTL <= 0 {
		dashboardTTL = 30 * time.Second
	}

	return &Service{
		repo:         repo,
		stats:        stats,
		dashboardTTL: dashboardTTL,
	}
}

// allocateID reserves the next value in the category's daily counter and
// renders it. Allocation happens before the owning record is committed, so
// a failed commit leaves a gap in the sequence rather than a duplicate.
func (s *Service) allocateID(ctx context.Context, category string) (string, error) {
	date := seqid.DateStamp(time.Now())
	value, err := s.repo.NextSequence(ctx, category, date)
	if err != nil {
		return "", err
	}
	return seqid.Format(category, date, value), nil
}

func requireAdmin(ctx context.Context) error {
	principal, ok := PrincipalFromContext(ctx)
	if !ok || principal.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}
	return nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.ProductWithVariants, error) {
	return s.repo.ListProductsWithVariants(ctx)
}

func (s *Service) GetProduct(ctx context.Context, productID string) (domain.ProductWithVariants, error) {
	product, err := s.repo.GetProductByID(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.ProductWithVariants{}, err
	}
	variants, err := s.repo.ListVariantsByProduct(ctx, product.ProductID)
	if err != nil {
		return domain.ProductWithVariants{}, err
	}
	return domain.ProductWithVariants{Product: *product, Variants: variants}, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))

	if messages := validateProductFields(req.Name, req.PriceCents, req.Stock); len(messages) > 0 {
		return domain.Product{}, &domain.ValidationError{Messages: messages}
	}

	if _, err := s.repo.FindActiveProductByName(ctx, req.Name); err == nil {
		return domain.Product{}, fmt.Errorf("%w: product name %q already exists", store.ErrConflict, req.Name)
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Product{}, err
	}

	productID, err := s.allocateID(ctx, seqid.CategoryProduct)
	if err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ProductID:  productID,
		Name:       req.Name,
		Category:   req.Category,
		PriceCents: req.PriceCents,
		Stock:      req.Stock,
		SKU:        req.SKU,
		Status:     domain.ProductStatusActive,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return domain.Product{}, err
	}

	log.Printf("[service] product created id=%s name=%s price=%d stock=%d", created.ProductID, created.Name, created.PriceCents, created.Stock)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.PriceCents != nil {
		updated.PriceCents = *req.PriceCents
	}
	if req.Stock != nil {
		updated.Stock = *req.Stock
	}
	if req.SKU != nil {
		updated.SKU = strings.ToUpper(strings.TrimSpace(*req.SKU))
	}

	if messages := validateProductFields(updated.Name, updated.PriceCents, updated.Stock); len(messages) > 0 {
		return domain.Product{}, &domain.ValidationError{Messages: messages}
	}
	if req.Name != nil && !strings.EqualFold(updated.Name, existing.Name) {
		if other, err := s.repo.FindActiveProductByName(ctx, updated.Name); err == nil && other.ProductID != existing.ProductID {
			return domain.Product{}, fmt.Errorf("%w: product name %q already exists", store.ErrConflict, updated.Name)
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			return domain.Product{}, err
		}
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	log.Printf("[service] product updated id=%s", saved.ProductID)
	return *saved, nil
}

// DeleteProduct soft-deletes: the product disappears from listings and new
// sales but its id stays resolvable from historical transaction snapshots.
func (s *Service) DeleteProduct(ctx context.Context, productID string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	if err := s.repo.SoftDeleteProduct(ctx, strings.TrimSpace(productID), time.Now()); err != nil {
		return err
	}
	log.Printf("[service] product deleted id=%s", productID)
	return nil
}

func (s *Service) CreateVariant(ctx context.Context, productID string, req domain.VariantCreateRequest) (domain.Variant, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Variant{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if messages := validateProductFields(req.Name, req.PriceCents, req.Stock); len(messages) > 0 {
		return domain.Variant{}, &domain.ValidationError{Messages: messages}
	}

	variantID, err := s.allocateID(ctx, seqid.CategoryVariant)
	if err != nil {
		return domain.Variant{}, err
	}

	created, err := s.repo.CreateVariant(ctx, domain.Variant{
		VariantID:  variantID,
		ProductID:  strings.TrimSpace(productID),
		Name:       req.Name,
		PriceCents: req.PriceCents,
		Stock:      req.Stock,
		SKU:        strings.ToUpper(strings.TrimSpace(req.SKU)),
		Status:     domain.ProductStatusActive,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return domain.Variant{}, err
	}
	return *created, nil
}

func (s *Service) ListVariants(ctx context.Context, productID string) ([]domain.Variant, error) {
	if _, err := s.repo.GetProductByID(ctx, strings.TrimSpace(productID)); err != nil {
		return nil, err
	}
	return s.repo.ListVariantsByProduct(ctx, strings.TrimSpace(productID))
}

func (s *Service) UpdateVariant(ctx context.Context, variantID string, req domain.VariantUpdateRequest) (domain.Variant, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Variant{}, err
	}

	existing, err := s.findVariant(ctx, strings.TrimSpace(variantID))
	if err != nil {
		return domain.Variant{}, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.PriceCents != nil {
		updated.PriceCents = *req.PriceCents
	}
	if req.Stock != nil {
		updated.Stock = *req.Stock
	}
	if req.SKU != nil {
		updated.SKU = strings.ToUpper(strings.TrimSpace(*req.SKU))
	}
	if messages := validateProductFields(updated.Name, updated.PriceCents, updated.Stock); len(messages) > 0 {
		return domain.Variant{}, &domain.ValidationError{Messages: messages}
	}

	saved, err := s.repo.UpdateVariant(ctx, updated)
	if err != nil {
		return domain.Variant{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteVariant(ctx context.Context, variantID string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeleteVariant(ctx, strings.TrimSpace(variantID))
}

func (s *Service) findVariant(ctx context.Context, variantID string) (*domain.Variant, error) {
	// The repository keys variants by product for listing; resolve via the
	// flattened product list.
	products, err := s.repo.ListProductsWithVariants(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		for _, v := range p.Variants {
			if v.VariantID == variantID {
				variant := v
				return &variant, nil
			}
		}
	}
	return nil, fmt.Errorf("variant %s: %w", variantID, store.ErrNotFound)
}

// CreateSale validates the request shape, reserves a transaction id, and
// hands the sale to the repository. Product resolution, price snapshots,
// stock guards and the final insert all happen inside CommitSale so the
// sale is all-or-nothing even under concurrent requests.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Transaction, error) {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return domain.Transaction{}, fmt.Errorf("authentication required")
	}

	messages := make([]string, 0, 4)
	if len(req.Items) == 0 {
		messages = append(messages, "items must not be empty")
	}
	for i, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			messages = append(messages, fmt.Sprintf("items[%d]: product_id is required", i))
		}
		if item.Quantity < 1 {
			messages = append(messages, fmt.Sprintf("items[%d]: quantity must be at least 1", i))
		}
	}

	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		method = domain.PaymentCash
	}
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentDigital:
	default:
		messages = append(messages, fmt.Sprintf("payment_method %q is not supported", req.PaymentMethod))
	}

	if len(messages) > 0 {
		return domain.Transaction{}, &domain.ValidationError{Messages: messages}
	}

	transactionID, err := s.allocateID(ctx, seqid.CategoryTransaction)
	if err != nil {
		return domain.Transaction{}, err
	}

	committed, err := s.repo.CommitSale(ctx, domain.Transaction{
		TransactionID: transactionID,
		PaymentMethod: method,
		CashierID:     principal.UserID,
		CashierName:   principal.Username,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		Status:        domain.TxStatusCompleted,
		CreatedAt:     time.Now().UTC(),
	}, req.Items)
	if err != nil {
		return domain.Transaction{}, err
	}

	log.Printf("[service] sale committed id=%s total=%d items=%d cashier=%s", committed.TransactionID, committed.TotalAmountCents, len(committed.Items), principal.Username)
	return *committed, nil
}

func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx, limit)
}

func (s *Service) GetSale(ctx context.Context, transactionID string) (domain.Transaction, error) {
	tx, err := s.repo.GetTransactionByID(ctx, strings.TrimSpace(transactionID))
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

// SalesReport returns per-period rollups over a trailing window sized to
// the granularity: 7 days, 8 weeks or 12 months.
func (s *Service) SalesReport(ctx context.Context, granularity store.Granularity) ([]domain.PeriodSales, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	var from time.Time
	switch granularity {
	case store.GranularityWeek:
		from = to.AddDate(0, 0, -7*8)
	case store.GranularityMonth:
		from = to.AddDate(0, -12, 0)
	default:
		granularity = store.GranularityDay
		from = to.AddDate(0, 0, -7)
	}

	return s.repo.SalesByPeriod(ctx, granularity, from, to)
}

func (s *Service) BestSellers(ctx context.Context, limit int) ([]domain.BestSeller, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.BestSellers(ctx, limit)
}

func (s *Service) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	if _, ok := PrincipalFromContext(ctx); !ok {
		return domain.DashboardStats{}, fmt.Errorf("authentication required")
	}

	if cached, found, err := s.stats.Get(ctx, dashboardCacheKey); err != nil {
		log.Printf("[service] WARN: dashboard cache read failed: %v", err)
	} else if found {
		return *cached, nil
	}

	stats, err := s.repo.DashboardStats(ctx, time.Now())
	if err != nil {
		return domain.DashboardStats{}, err
	}

	if err := s.stats.Set(ctx, dashboardCacheKey, &stats, s.dashboardTTL); err != nil {
		log.Printf("[service] WARN: dashboard cache write failed: %v", err)
	}
	return stats, nil
}

func (s *Service) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListEmployees(ctx)
}

// GetEmployee looks up a single employee by id. The repository keys
// employees by username for the login path, so id lookups scan the full
// list, which stays small.
func (s *Service) GetEmployee(ctx context.Context, employeeID string) (domain.Employee, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Employee{}, err
	}

	employees, err := s.repo.ListEmployees(ctx)
	if err != nil {
		return domain.Employee{}, err
	}
	id := strings.TrimSpace(employeeID)
	for _, employee := range employees {
		if employee.EmployeeID == id {
			return employee, nil
		}
	}
	return domain.Employee{}, fmt.Errorf("employee %s: %w", id, store.ErrNotFound)
}

func (s *Service) DeactivateEmployee(ctx context.Context, employeeID string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.SetEmployeeStatus(ctx, strings.TrimSpace(employeeID), domain.EmployeeStatusInactive)
}

func validateProductFields(name string, priceCents int64, stock int) []string {
	messages := make([]string, 0, 3)
	if len(name) < 2 {
		messages = append(messages, "name must be at least 2 characters")
	}
	if priceCents < 0 {
		messages = append(messages, "price_cents must not be negative")
	}
	if stock < 0 {
		messages = append(messages, "stock must not be negative")
	}
	return messages
}
