package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/seqid"
	"tokopos/backend/internal/store"
)

func seedProduct(t *testing.T, s *Store, id string, priceCents int64, stock int) {
	t.Helper()
	_, err := s.CreateProduct(context.Background(), domain.Product{
		ProductID:  id,
		Name:       "product " + id,
		Category:   "test",
		PriceCents: priceCents,
		Stock:      stock,
		Status:     domain.ProductStatusActive,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed product %s: %v", id, err)
	}
}

func TestNextSequenceConcurrentAllocationsAreDistinct(t *testing.T) {
	s := New()
	ctx := context.Background()

	const n = 200
	results := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.NextSequence(ctx, seqid.CategoryTransaction, "20240501")
			if err != nil {
				t.Errorf("NextSequence: %v", err)
				return
			}
			results <- v
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool, n)
	for v := range results {
		if seen[v] {
			t.Fatalf("duplicate sequence value %d", v)
		}
		seen[v] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d allocations, got %d", n, len(seen))
	}
	for v := int64(1); v <= n; v++ {
		if !seen[v] {
			t.Fatalf("gap in sequence: missing %d", v)
		}
	}
}

func TestNextSequenceResetsWhenDateChanges(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.NextSequence(ctx, seqid.CategoryProduct, "20240501"); err != nil {
			t.Fatalf("NextSequence: %v", err)
		}
	}
	v, err := s.NextSequence(ctx, seqid.CategoryProduct, "20240502")
	if err != nil {
		t.Fatalf("NextSequence: %v", err)
	}
	if v != 1 {
		t.Fatalf("expected counter to restart at 1 on new date, got %d", v)
	}
}

func TestNextSequenceCountersAreIndependentPerCategory(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.NextSequence(ctx, seqid.CategoryProduct, "20240501"); err != nil {
		t.Fatalf("NextSequence: %v", err)
	}
	if _, err := s.NextSequence(ctx, seqid.CategoryProduct, "20240501"); err != nil {
		t.Fatalf("NextSequence: %v", err)
	}
	v, err := s.NextSequence(ctx, seqid.CategoryTransaction, "20240501")
	if err != nil {
		t.Fatalf("NextSequence: %v", err)
	}
	if v != 1 {
		t.Fatalf("expected TXN counter untouched by PRD allocations, got %d", v)
	}
}

func TestCommitSaleConcurrentOversellIsRejected(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedProduct(t, s, "PRD-20240501-0001", 1000, 5)

	items := []domain.SaleItemRequest{{ProductID: "PRD-20240501-0001", Quantity: 3}}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		txID := seqid.Format(seqid.CategoryTransaction, "20240501", int64(i+1))
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := s.CommitSale(ctx, domain.Transaction{TransactionID: id, PaymentMethod: domain.PaymentCash}, items)
			errs <- err
		}(txID)
	}
	wg.Wait()
	close(errs)

	var failures, successes int
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		if !errors.Is(err, store.ErrInsufficientStock) {
			t.Fatalf("unexpected error: %v", err)
		}
		failures++
	}
	if successes != 1 || failures != 1 {
		t.Fatalf("expected exactly one success and one stock rejection, got %d/%d", successes, failures)
	}

	product, err := s.GetProductByID(ctx, "PRD-20240501-0001")
	if err != nil {
		t.Fatalf("GetProductByID: %v", err)
	}
	if product.Stock != 2 {
		t.Fatalf("expected final stock 2, got %d", product.Stock)
	}
}

func TestCommitSaleMidCommitFailureRollsBackDecrements(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedProduct(t, s, "PRD-20240501-0001", 1000, 10)
	seedProduct(t, s, "PRD-20240501-0002", 2000, 10)

	injected := errors.New("storage fault")
	s.commitFault = func(applied int) error {
		if applied == 1 {
			return injected
		}
		return nil
	}

	_, err := s.CommitSale(ctx, domain.Transaction{TransactionID: "TXN-20240501-0001", PaymentMethod: domain.PaymentCash}, []domain.SaleItemRequest{
		{ProductID: "PRD-20240501-0001", Quantity: 4},
		{ProductID: "PRD-20240501-0002", Quantity: 2},
	})
	if !errors.Is(err, injected) {
		t.Fatalf("expected injected fault, got %v", err)
	}

	for _, id := range []string{"PRD-20240501-0001", "PRD-20240501-0002"} {
		product, err := s.GetProductByID(ctx, id)
		if err != nil {
			t.Fatalf("GetProductByID %s: %v", id, err)
		}
		if product.Stock != 10 {
			t.Fatalf("expected stock restored to 10 for %s, got %d", id, product.Stock)
		}
	}
	if _, err := s.GetTransactionByID(ctx, "TXN-20240501-0001"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no transaction record after rollback, got %v", err)
	}
}

func TestCommitSaleLineFailureRollsBackEarlierLines(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedProduct(t, s, "PRD-20240501-0001", 1000, 10)
	seedProduct(t, s, "PRD-20240501-0002", 2000, 1)

	_, err := s.CommitSale(ctx, domain.Transaction{TransactionID: "TXN-20240501-0001", PaymentMethod: domain.PaymentCash}, []domain.SaleItemRequest{
		{ProductID: "PRD-20240501-0001", Quantity: 4},
		{ProductID: "PRD-20240501-0002", Quantity: 5},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	product, err := s.GetProductByID(ctx, "PRD-20240501-0001")
	if err != nil {
		t.Fatalf("GetProductByID: %v", err)
	}
	if product.Stock != 10 {
		t.Fatalf("expected first line rolled back to 10, got %d", product.Stock)
	}
}

func TestCommitSaleSnapshotsSurviveCatalogEdits(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedProduct(t, s, "PRD-20240501-0001", 1500, 10)

	tx, err := s.CommitSale(ctx, domain.Transaction{TransactionID: "TXN-20240501-0001", PaymentMethod: domain.PaymentCash}, []domain.SaleItemRequest{
		{ProductID: "PRD-20240501-0001", Quantity: 2},
	})
	if err != nil {
		t.Fatalf("CommitSale: %v", err)
	}
	if tx.TotalAmountCents != 3000 {
		t.Fatalf("expected total 3000, got %d", tx.TotalAmountCents)
	}

	product, err := s.GetProductByID(ctx, "PRD-20240501-0001")
	if err != nil {
		t.Fatalf("GetProductByID: %v", err)
	}
	product.PriceCents = 9999
	product.Name = "renamed"
	if _, err := s.UpdateProduct(ctx, *product); err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}

	stored, err := s.GetTransactionByID(ctx, "TXN-20240501-0001")
	if err != nil {
		t.Fatalf("GetTransactionByID: %v", err)
	}
	if stored.Items[0].UnitPriceCents != 1500 {
		t.Fatalf("snapshot price changed: %d", stored.Items[0].UnitPriceCents)
	}
	if stored.Items[0].ProductName != "product PRD-20240501-0001" {
		t.Fatalf("snapshot name changed: %s", stored.Items[0].ProductName)
	}
}

func TestCommitSaleRejectsDeletedProduct(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedProduct(t, s, "PRD-20240501-0001", 1000, 10)
	if err := s.SoftDeleteProduct(ctx, "PRD-20240501-0001", time.Now()); err != nil {
		t.Fatalf("SoftDeleteProduct: %v", err)
	}

	_, err := s.CommitSale(ctx, domain.Transaction{TransactionID: "TXN-20240501-0001", PaymentMethod: domain.PaymentCash}, []domain.SaleItemRequest{
		{ProductID: "PRD-20240501-0001", Quantity: 1},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for deleted product, got %v", err)
	}
}

func TestSoftDeleteCascadesToVariants(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedProduct(t, s, "PRD-20240501-0001", 1000, 10)

	_, err := s.CreateVariant(ctx, domain.Variant{
		VariantID:  "VAR-20240501-0001",
		ProductID:  "PRD-20240501-0001",
		Name:       "large",
		PriceCents: 1200,
		Stock:      5,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateVariant: %v", err)
	}

	if err := s.SoftDeleteProduct(ctx, "PRD-20240501-0001", time.Now()); err != nil {
		t.Fatalf("SoftDeleteProduct: %v", err)
	}

	variants, err := s.ListVariantsByProduct(ctx, "PRD-20240501-0001")
	if err != nil {
		t.Fatalf("ListVariantsByProduct: %v", err)
	}
	if len(variants) != 0 {
		t.Fatalf("expected no active variants after cascade, got %d", len(variants))
	}
}

func TestSalesByPeriodBucketsByDay(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedProduct(t, s, "PRD-20240501-0001", 1000, 100)

	times := []time.Time{
		time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 17, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
	}
	for i, at := range times {
		_, err := s.CommitSale(ctx, domain.Transaction{
			TransactionID: seqid.Format(seqid.CategoryTransaction, seqid.DateStamp(at), int64(i+1)),
			PaymentMethod: domain.PaymentCash,
			CreatedAt:     at,
		}, []domain.SaleItemRequest{{ProductID: "PRD-20240501-0001", Quantity: 2}})
		if err != nil {
			t.Fatalf("CommitSale: %v", err)
		}
	}

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
	periods, err := s.SalesByPeriod(ctx, store.GranularityDay, from, to)
	if err != nil {
		t.Fatalf("SalesByPeriod: %v", err)
	}
	if len(periods) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(periods))
	}
	if periods[0].Period != "2024-05-01" || periods[0].TransactionCount != 2 || periods[0].TotalSalesCents != 4000 {
		t.Fatalf("unexpected first bucket: %+v", periods[0])
	}
	if periods[1].Period != "2024-05-02" || periods[1].TransactionCount != 1 {
		t.Fatalf("unexpected second bucket: %+v", periods[1])
	}
}

func TestBestSellersRankedByQuantity(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedProduct(t, s, "PRD-20240501-0001", 1000, 100)
	seedProduct(t, s, "PRD-20240501-0002", 500, 100)

	_, err := s.CommitSale(ctx, domain.Transaction{TransactionID: "TXN-20240501-0001", PaymentMethod: domain.PaymentCash}, []domain.SaleItemRequest{
		{ProductID: "PRD-20240501-0001", Quantity: 2},
		{ProductID: "PRD-20240501-0002", Quantity: 7},
	})
	if err != nil {
		t.Fatalf("CommitSale: %v", err)
	}

	best, err := s.BestSellers(ctx, 5)
	if err != nil {
		t.Fatalf("BestSellers: %v", err)
	}
	if len(best) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(best))
	}
	if best[0].ProductID != "PRD-20240501-0002" || best[0].TotalQuantity != 7 {
		t.Fatalf("unexpected top seller: %+v", best[0])
	}
	if best[0].RevenueCents != 3500 {
		t.Fatalf("unexpected revenue: %d", best[0].RevenueCents)
	}
}

func TestDashboardStatsCountsTodayOnly(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedProduct(t, s, "PRD-20240501-0001", 1000, 100)
	seedProduct(t, s, "PRD-20240501-0002", 1000, 3)

	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)

	for i, at := range []time.Time{now.Add(-time.Hour), yesterday} {
		_, err := s.CommitSale(ctx, domain.Transaction{
			TransactionID: seqid.Format(seqid.CategoryTransaction, seqid.DateStamp(at), int64(i+1)),
			PaymentMethod: domain.PaymentCash,
			CreatedAt:     at,
		}, []domain.SaleItemRequest{{ProductID: "PRD-20240501-0001", Quantity: 1}})
		if err != nil {
			t.Fatalf("CommitSale: %v", err)
		}
	}

	stats, err := s.DashboardStats(ctx, now)
	if err != nil {
		t.Fatalf("DashboardStats: %v", err)
	}
	if stats.TodayTransactions != 1 || stats.TodaySalesCents != 1000 {
		t.Fatalf("unexpected today stats: %+v", stats)
	}
	if stats.TotalProducts != 2 {
		t.Fatalf("expected 2 products, got %d", stats.TotalProducts)
	}
	if stats.LowStockProducts != 1 {
		t.Fatalf("expected 1 low-stock product, got %d", stats.LowStockProducts)
	}
}

func TestCreateEmployeeRejectsDuplicateUsername(t *testing.T) {
	s := New()
	ctx := context.Background()

	employee := domain.Employee{
		EmployeeID: "EMP-20240501-0001",
		Name:       "First",
		Username:   "kasir",
		Email:      "kasir@tokopos.local",
		Role:       domain.RoleCashier,
		Status:     domain.EmployeeStatusActive,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := s.CreateEmployee(ctx, employee); err != nil {
		t.Fatalf("CreateEmployee: %v", err)
	}

	dup := employee
	dup.EmployeeID = "EMP-20240501-0002"
	dup.Email = "other@tokopos.local"
	if _, err := s.CreateEmployee(ctx, dup); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRevokeSessionFlipsStatus(t *testing.T) {
	s := New()
	ctx := context.Background()

	session := domain.Session{
		SessionID: "SES-20240501-0001",
		UserID:    "EMP-20240501-0001",
		Username:  "admin",
		Role:      domain.RoleAdmin,
		Token:     "token-abc",
		IssuedAt:  time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
		Status:    domain.SessionStatusActive,
	}
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.RevokeSession(ctx, "token-abc", time.Now()); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}

	stored, err := s.FindSessionByToken(ctx, "token-abc")
	if err != nil {
		t.Fatalf("FindSessionByToken: %v", err)
	}
	if stored.Status != domain.SessionStatusInactive || stored.RevokedAt == nil {
		t.Fatalf("expected revoked session, got %+v", stored)
	}
}
