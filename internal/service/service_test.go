package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tokopos/backend/internal/cache"
	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/store/memory"
)

func adminCtx() context.Context {
	return WithPrincipal(context.Background(), domain.Principal{
		UserID:   "EMP-20240501-0001",
		Username: "admin",
		Role:     domain.RoleAdmin,
	})
}

func cashierCtx() context.Context {
	return WithPrincipal(context.Background(), domain.Principal{
		UserID:   "EMP-20240501-0002",
		Username: "cashier",
		Role:     domain.RoleCashier,
	})
}

func newTestService() *Service {
	return New(memory.New(), cache.NoopStatsCache{}, time.Second)
}

func mustCreateProduct(t *testing.T, svc *Service, name string, priceCents int64, stock int) domain.Product {
	t.Helper()
	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:       name,
		Category:   "test",
		PriceCents: priceCents,
		Stock:      stock,
	})
	if err != nil {
		t.Fatalf("create product %s: %v", name, err)
	}
	return product
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(cashierCtx(), domain.ProductCreateRequest{
		Name:       "Kopi Sachet",
		PriceCents: 2600,
		Stock:      10,
	})
	if err == nil || !strings.Contains(err.Error(), "admin role required") {
		t.Fatalf("expected admin requirement, got %v", err)
	}
}

func TestCreateProductCollectsValidationMessages(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:       "x",
		PriceCents: -1,
		Stock:      -2,
	})
	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(validationErr.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %v", validationErr.Messages)
	}
}

func TestCreateProductAssignsSequentialIDs(t *testing.T) {
	svc := newTestService()

	first := mustCreateProduct(t, svc, "Kopi Sachet", 2600, 100)
	second := mustCreateProduct(t, svc, "Teh Celup", 1800, 50)

	if !strings.HasPrefix(first.ProductID, "PRD-") || !strings.HasSuffix(first.ProductID, "-0001") {
		t.Fatalf("unexpected first id: %s", first.ProductID)
	}
	if !strings.HasSuffix(second.ProductID, "-0002") {
		t.Fatalf("unexpected second id: %s", second.ProductID)
	}
}

func TestCreateProductRejectsDuplicateName(t *testing.T) {
	svc := newTestService()
	mustCreateProduct(t, svc, "Kopi Sachet", 2600, 100)

	_, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:       "kopi sachet",
		PriceCents: 3000,
		Stock:      5,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUpdateProductAppliesPartialFields(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, "Kopi Sachet", 2600, 100)

	newPrice := int64(2900)
	updated, err := svc.UpdateProduct(adminCtx(), product.ProductID, domain.ProductUpdateRequest{
		PriceCents: &newPrice,
	})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.PriceCents != 2900 {
		t.Fatalf("expected price 2900, got %d", updated.PriceCents)
	}
	if updated.Name != "Kopi Sachet" {
		t.Fatalf("name should be untouched, got %s", updated.Name)
	}
}

func TestDeleteProductHidesFromListingAndSales(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, "Kopi Sachet", 2600, 100)

	if err := svc.DeleteProduct(adminCtx(), product.ProductID); err != nil {
		t.Fatalf("delete product: %v", err)
	}

	listed, err := svc.ListProducts(adminCtx())
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected empty listing, got %d products", len(listed))
	}

	_, err = svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{ProductID: product.ProductID, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for deleted product, got %v", err)
	}
}

func TestCreateSaleComputesTotalAndDecrementsStock(t *testing.T) {
	svc := newTestService()
	kopi := mustCreateProduct(t, svc, "Kopi Sachet", 2600, 100)
	teh := mustCreateProduct(t, svc, "Teh Celup", 1800, 50)

	tx, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{
			{ProductID: kopi.ProductID, Quantity: 3},
			{ProductID: teh.ProductID, Quantity: 2},
		},
		PaymentMethod: domain.PaymentCard,
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if !strings.HasPrefix(tx.TransactionID, "TXN-") {
		t.Fatalf("unexpected transaction id: %s", tx.TransactionID)
	}
	if tx.TotalAmountCents != 3*2600+2*1800 {
		t.Fatalf("unexpected total: %d", tx.TotalAmountCents)
	}
	if tx.CashierName != "cashier" {
		t.Fatalf("expected cashier snapshot, got %s", tx.CashierName)
	}

	after, err := svc.GetProduct(cashierCtx(), kopi.ProductID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != 97 {
		t.Fatalf("expected stock 97, got %d", after.Stock)
	}
}

func TestCreateSaleDefaultsToCashPayment(t *testing.T) {
	svc := newTestService()
	kopi := mustCreateProduct(t, svc, "Kopi Sachet", 2600, 100)

	tx, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{ProductID: kopi.ProductID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if tx.PaymentMethod != domain.PaymentCash {
		t.Fatalf("expected cash default, got %s", tx.PaymentMethod)
	}
}

func TestCreateSaleAllowsRepeatedProductLines(t *testing.T) {
	svc := newTestService()
	kopi := mustCreateProduct(t, svc, "Kopi Sachet", 1000, 10)

	tx, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{
			{ProductID: kopi.ProductID, Quantity: 2},
			{ProductID: kopi.ProductID, Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if len(tx.Items) != 2 {
		t.Fatalf("expected both lines on the receipt, got %d", len(tx.Items))
	}
	if tx.TotalAmountCents != 5000 {
		t.Fatalf("expected total 5000, got %d", tx.TotalAmountCents)
	}

	after, err := svc.GetProduct(cashierCtx(), kopi.ProductID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != 5 {
		t.Fatalf("expected stock 5 after both lines, got %d", after.Stock)
	}
}

func TestCreateSaleValidatesRequestShape(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{
			{ProductID: "", Quantity: 0},
		},
		PaymentMethod: "barter",
	})
	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(validationErr.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %v", validationErr.Messages)
	}
}

func TestCreateSaleRejectsInsufficientStock(t *testing.T) {
	svc := newTestService()
	kopi := mustCreateProduct(t, svc, "Kopi Sachet", 2600, 2)

	_, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{ProductID: kopi.ProductID, Quantity: 3}},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestCreateSaleRequiresAuthentication(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateSale(context.Background(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{ProductID: "PRD-20240501-0001", Quantity: 1}},
	})
	if err == nil || !strings.Contains(err.Error(), "authentication required") {
		t.Fatalf("expected authentication requirement, got %v", err)
	}
}

func TestSalesReportRequiresAdmin(t *testing.T) {
	svc := newTestService()

	if _, err := svc.SalesReport(cashierCtx(), store.GranularityDay); err == nil {
		t.Fatal("expected admin requirement for reports")
	}
	if _, err := svc.BestSellers(cashierCtx(), 5); err == nil {
		t.Fatal("expected admin requirement for bestsellers")
	}
}

func TestSalesReportAggregatesCommittedSales(t *testing.T) {
	svc := newTestService()
	kopi := mustCreateProduct(t, svc, "Kopi Sachet", 2600, 100)

	for i := 0; i < 3; i++ {
		if _, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
			Items: []domain.SaleItemRequest{{ProductID: kopi.ProductID, Quantity: 2}},
		}); err != nil {
			t.Fatalf("create sale: %v", err)
		}
	}

	periods, err := svc.SalesReport(adminCtx(), store.GranularityDay)
	if err != nil {
		t.Fatalf("sales report: %v", err)
	}
	if len(periods) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(periods))
	}
	if periods[0].TransactionCount != 3 || periods[0].TotalSalesCents != 3*2*2600 {
		t.Fatalf("unexpected bucket: %+v", periods[0])
	}
}

type countingStatsCache struct {
	stats  *domain.DashboardStats
	reads  int
	writes int
}

func (c *countingStatsCache) Get(_ context.Context, _ string) (*domain.DashboardStats, bool, error) {
	c.reads++
	if c.stats == nil {
		return nil, false, nil
	}
	return c.stats, true, nil
}

func (c *countingStatsCache) Set(_ context.Context, _ string, value *domain.DashboardStats, _ time.Duration) error {
	c.writes++
	c.stats = value
	return nil
}

func TestDashboardStatsUsesCache(t *testing.T) {
	statsCache := &countingStatsCache{}
	svc := New(memory.New(), statsCache, time.Minute)
	mustCreateProduct(t, svc, "Kopi Sachet", 2600, 100)

	first, err := svc.DashboardStats(cashierCtx())
	if err != nil {
		t.Fatalf("dashboard stats: %v", err)
	}
	if first.TotalProducts != 1 {
		t.Fatalf("expected 1 product, got %d", first.TotalProducts)
	}
	if statsCache.writes != 1 {
		t.Fatalf("expected cache write after miss, got %d", statsCache.writes)
	}

	mustCreateProduct(t, svc, "Teh Celup", 1800, 50)
	second, err := svc.DashboardStats(cashierCtx())
	if err != nil {
		t.Fatalf("dashboard stats: %v", err)
	}
	if second.TotalProducts != 1 {
		t.Fatalf("expected cached value, got %d products", second.TotalProducts)
	}
}

func TestVariantLifecycle(t *testing.T) {
	svc := newTestService()
	kopi := mustCreateProduct(t, svc, "Kopi Sachet", 2600, 100)

	variant, err := svc.CreateVariant(adminCtx(), kopi.ProductID, domain.VariantCreateRequest{
		Name:       "Kopi Sachet Jumbo",
		PriceCents: 4800,
		Stock:      30,
	})
	if err != nil {
		t.Fatalf("create variant: %v", err)
	}
	if !strings.HasPrefix(variant.VariantID, "VAR-") {
		t.Fatalf("unexpected variant id: %s", variant.VariantID)
	}

	newPrice := int64(5200)
	updated, err := svc.UpdateVariant(adminCtx(), variant.VariantID, domain.VariantUpdateRequest{PriceCents: &newPrice})
	if err != nil {
		t.Fatalf("update variant: %v", err)
	}
	if updated.PriceCents != 5200 {
		t.Fatalf("expected price 5200, got %d", updated.PriceCents)
	}

	if err := svc.DeleteVariant(adminCtx(), variant.VariantID); err != nil {
		t.Fatalf("delete variant: %v", err)
	}
	variants, err := svc.ListVariants(cashierCtx(), kopi.ProductID)
	if err != nil {
		t.Fatalf("list variants: %v", err)
	}
	if len(variants) != 0 {
		t.Fatalf("expected no variants, got %d", len(variants))
	}
}
