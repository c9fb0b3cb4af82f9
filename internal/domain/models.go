package domain

import (
	"strings"
	"time"
)

type Product struct {
	ProductID  string     `json:"product_id"`
	Name       string     `json:"name"`
	Category   string     `json:"category"`
	PriceCents int64      `json:"price_cents"`
	Stock      int        `json:"stock"`
	SKU        string     `json:"sku,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

type ProductCreateRequest struct {
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
	SKU        string `json:"sku,omitempty"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	Category   *string `json:"category,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	Stock      *int    `json:"stock,omitempty"`
	SKU        *string `json:"sku,omitempty"`
}

type Variant struct {
	VariantID  string     `json:"variant_id"`
	ProductID  string     `json:"product_id"`
	Name       string     `json:"name"`
	PriceCents int64      `json:"price_cents"`
	Stock      int        `json:"stock"`
	SKU        string     `json:"sku,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

type VariantCreateRequest struct {
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
	SKU        string `json:"sku,omitempty"`
}

type VariantUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	Stock      *int    `json:"stock,omitempty"`
	SKU        *string `json:"sku,omitempty"`
}

type ProductWithVariants struct {
	Product
	Variants []Variant `json:"variants"`
}

// SaleItemRequest is one product+quantity line in a sale request.
type SaleItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type SaleCreateRequest struct {
	Items         []SaleItemRequest `json:"items"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	CustomerName  string            `json:"customer_name,omitempty"`
}

// TransactionItem is an immutable snapshot of a product at sale time.
// ProductName and UnitPriceCents are captured at commit and do not change
// when the catalog is edited later.
type TransactionItem struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

type Transaction struct {
	TransactionID    string            `json:"transaction_id"`
	Items            []TransactionItem `json:"items"`
	TotalAmountCents int64             `json:"total_amount_cents"`
	PaymentMethod    string            `json:"payment_method"`
	CashierID        string            `json:"cashier_id"`
	CashierName      string            `json:"cashier_name"`
	CustomerName     string            `json:"customer_name,omitempty"`
	Status           string            `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
}

type PeriodSales struct {
	Period           string `json:"period"`
	TotalSalesCents  int64  `json:"total_sales_cents"`
	TransactionCount int64  `json:"transaction_count"`
}

type BestSeller struct {
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	TotalQuantity int64  `json:"total_quantity"`
	RevenueCents  int64  `json:"revenue_cents"`
}

type DashboardStats struct {
	TodaySalesCents   int64 `json:"today_sales_cents"`
	TodayTransactions int64 `json:"today_transactions"`
	TotalProducts     int64 `json:"total_products"`
	LowStockProducts  int64 `json:"low_stock_products"`
	TotalEmployees    int64 `json:"total_employees"`
}

type Employee struct {
	EmployeeID   string    `json:"employee_id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	User      LoginUser `json:"user"`
	ExpiresAt string    `json:"expires_at"`
}

type LoginUser struct {
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
}

type Session struct {
	SessionID string     `json:"session_id"`
	UserID    string     `json:"user_id"`
	Username  string     `json:"username"`
	Role      string     `json:"role"`
	Token     string     `json:"token"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	Status    string     `json:"status"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Principal is the authenticated actor attached to a request context.
type Principal struct {
	UserID   string
	Username string
	Role     string
}

// ValidationError carries per-field validation messages and is surfaced to
// callers as a 400 with the full list.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

const (
	ProductStatusActive  = "active"
	ProductStatusDeleted = "deleted"
)

const (
	EmployeeStatusActive   = "active"
	EmployeeStatusInactive = "inactive"
)

const (
	SessionStatusActive   = "active"
	SessionStatusInactive = "inactive"
)

const TxStatusCompleted = "completed"

const (
	PaymentCash    = "cash"
	PaymentCard    = "card"
	PaymentDigital = "digital"
)

// LowStockThreshold is the stock level below which a product counts as
// low-stock on the dashboard.
const LowStockThreshold = 10
