package store

import (
	"context"
	"errors"
	"time"

	"tokopos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
)

// Repository is the single source of truth for all state, including
// concurrency control: sequence allocation and stock decrements are atomic
// conditional writes inside the implementation, never read-then-write from
// the caller's side.
type Repository interface {
	// NextSequence atomically advances the counter for category. If the
	// stored reset date differs from date, the counter restarts at 1.
	NextSequence(ctx context.Context, category string, date string) (int64, error)

	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListProductsWithVariants(ctx context.Context) ([]domain.ProductWithVariants, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, productID string) (*domain.Product, error)
	FindActiveProductByName(ctx context.Context, name string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// SoftDeleteProduct flips status to deleted and cascades to the
	// product's variants. The row survives for historical transactions.
	SoftDeleteProduct(ctx context.Context, productID string, at time.Time) error

	CreateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error)
	ListVariantsByProduct(ctx context.Context, productID string) ([]domain.Variant, error)
	UpdateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error)
	DeleteVariant(ctx context.Context, variantID string) error

	// CommitSale applies the all-or-nothing commit for a sale: it
	// re-resolves every line's product (must be active), re-reads price,
	// captures name/price snapshots, computes subtotals and the total, and
	// applies stock decrements plus the transaction insert as one unit.
	// A decrement only succeeds while stock covers the requested quantity;
	// on any line failure nothing is left applied.
	CommitSale(ctx context.Context, tx domain.Transaction, items []domain.SaleItemRequest) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error)
	GetTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error)

	SalesByPeriod(ctx context.Context, granularity Granularity, from time.Time, to time.Time) ([]domain.PeriodSales, error)
	BestSellers(ctx context.Context, limit int) ([]domain.BestSeller, error)
	DashboardStats(ctx context.Context, now time.Time) (domain.DashboardStats, error)

	CreateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error)
	FindEmployeeByUsername(ctx context.Context, username string) (*domain.Employee, error)
	ListEmployees(ctx context.Context) ([]domain.Employee, error)
	SetEmployeeStatus(ctx context.Context, employeeID string, status string) error

	CreateSession(ctx context.Context, session domain.Session) error
	FindSessionByToken(ctx context.Context, token string) (*domain.Session, error)
	RevokeSession(ctx context.Context, token string, at time.Time) error
}

type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)
