package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"salestrack/backend/internal/domain"
	"salestrack/backend/internal/metrics"
	"salestrack/backend/internal/store"
	"salestrack/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	return New(repo, metrics.NoopMetrics{}, "main-store"), repo
}

func createSale(t *testing.T, svc *Service, items ...domain.SaleItemRequest) *domain.Transaction {
	t.Helper()
	sale, err := svc.CreateSale(context.Background(), domain.SaleCreateRequest{
		CashierID:     "cashier-1",
		PaymentMethod: "cash",
		Items:         items,
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	return sale
}

func stockOf(t *testing.T, repo *memory.Store, sku string) int {
	t.Helper()
	p, err := repo.GetProduct(context.Background(), sku)
	if err != nil {
		t.Fatalf("get product %s failed: %v", sku, err)
	}
	return p.StockQty
}

func TestCreateSaleSnapshotsCatalog(t *testing.T) {
	svc, repo := newTestService()

	sale := createSale(t, svc, domain.SaleItemRequest{SKU: "SKU-MIE-01", Qty: 2})

	if sale.Status != domain.TxStatusPending {
		t.Fatalf("expected pending status, got %s", sale.Status)
	}
	if sale.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected pending payment status, got %s", sale.PaymentStatus)
	}
	if len(sale.Items) != 1 {
		t.Fatalf("expected 1 line, got %d", len(sale.Items))
	}
	line := sale.Items[0]
	if line.Name != "Mie Goreng Instan" || line.UnitPriceCents != 3500 {
		t.Fatalf("expected catalog snapshot on line, got name=%q price=%d", line.Name, line.UnitPriceCents)
	}
	if line.StockApplied {
		t.Fatalf("pending line must not be stock-applied")
	}
	if sale.SubtotalCents != 7000 || sale.TotalCents != 7000 {
		t.Fatalf("expected subtotal=total=7000, got subtotal=%d total=%d", sale.SubtotalCents, sale.TotalCents)
	}
	if got := stockOf(t, repo, "SKU-MIE-01"); got != 120 {
		t.Fatalf("creation must not touch stock, got %d", got)
	}
}

func TestCreateSaleTotalsWithDiscountAndTax(t *testing.T) {
	svc, _ := newTestService()

	sale, err := svc.CreateSale(context.Background(), domain.SaleCreateRequest{
		CashierID:     "cashier-1",
		PaymentMethod: "card",
		DiscountCents: 500,
		TaxCents:      350,
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-MIE-01", Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if want := int64(7000 - 500 - 350); sale.TotalCents != want {
		t.Fatalf("expected total %d, got %d", want, sale.TotalCents)
	}
}

func TestCreateSaleHonoursRequestUnitPrice(t *testing.T) {
	svc, _ := newTestService()

	sale := createSale(t, svc, domain.SaleItemRequest{SKU: "SKU-KOPI-01", Qty: 3, UnitPriceCents: 2000})

	if sale.Items[0].UnitPriceCents != 2000 {
		t.Fatalf("expected request price to win, got %d", sale.Items[0].UnitPriceCents)
	}
	if sale.SubtotalCents != 6000 {
		t.Fatalf("expected subtotal 6000, got %d", sale.SubtotalCents)
	}
}

func TestCreateSaleValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.SaleCreateRequest
		want error
	}{
		{
			name: "empty items",
			req:  domain.SaleCreateRequest{CashierID: "c", Items: nil},
			want: store.ErrValidation,
		},
		{
			name: "missing cashier",
			req: domain.SaleCreateRequest{Items: []domain.SaleItemRequest{
				{SKU: "SKU-MIE-01", Qty: 1},
			}},
			want: store.ErrValidation,
		},
		{
			name: "zero quantity",
			req: domain.SaleCreateRequest{CashierID: "c", Items: []domain.SaleItemRequest{
				{SKU: "SKU-MIE-01", Qty: 0},
			}},
			want: store.ErrValidation,
		},
		{
			name: "unknown sku",
			req: domain.SaleCreateRequest{CashierID: "c", Items: []domain.SaleItemRequest{
				{SKU: "SKU-NOPE-99", Qty: 1},
			}},
			want: store.ErrNotFound,
		},
		{
			name: "discount exceeds subtotal",
			req: domain.SaleCreateRequest{CashierID: "c", DiscountCents: 999999, Items: []domain.SaleItemRequest{
				{SKU: "SKU-MIE-01", Qty: 1},
			}},
			want: store.ErrValidation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateSale(ctx, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCompleteSaleDecrementsStockOnce(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	sale := createSale(t, svc,
		domain.SaleItemRequest{SKU: "SKU-MIE-01", Qty: 3},
		domain.SaleItemRequest{SKU: "SKU-TEH-01", Qty: 1},
	)

	completed, err := svc.CompleteSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if completed.Status != domain.TxStatusCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}
	if completed.PaymentStatus != domain.PaymentStatusCompleted {
		t.Fatalf("expected completed payment status, got %s", completed.PaymentStatus)
	}
	for _, line := range completed.Items {
		if !line.StockApplied {
			t.Fatalf("expected line %s to be stock-applied", line.SKU)
		}
	}
	if got := stockOf(t, repo, "SKU-MIE-01"); got != 117 {
		t.Fatalf("expected stock 117, got %d", got)
	}
	if got := stockOf(t, repo, "SKU-TEH-01"); got != 119 {
		t.Fatalf("expected stock 119, got %d", got)
	}
}

func TestCompleteSaleInsufficientStockTouchesNothing(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	repo.SetProduct(domain.Product{SKU: "SKU-LOW-01", Name: "Barang Langka", UnitPriceCents: 5000, StockQty: 1})

	sale := createSale(t, svc,
		domain.SaleItemRequest{SKU: "SKU-MIE-01", Qty: 2},
		domain.SaleItemRequest{SKU: "SKU-LOW-01", Qty: 2},
	)

	_, err := svc.CompleteSale(ctx, sale.ID)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	if got := stockOf(t, repo, "SKU-MIE-01"); got != 120 {
		t.Fatalf("failed completion must not touch stock, got %d", got)
	}
	if got := stockOf(t, repo, "SKU-LOW-01"); got != 1 {
		t.Fatalf("failed completion must not touch stock, got %d", got)
	}

	reloaded, err := svc.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	if reloaded.Status != domain.TxStatusPending {
		t.Fatalf("sale must stay pending, got %s", reloaded.Status)
	}
}

func TestCompleteSaleTwice(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	sale := createSale(t, svc, domain.SaleItemRequest{SKU: "SKU-MIE-01", Qty: 1})
	if _, err := svc.CompleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("first complete failed: %v", err)
	}

	_, err := svc.CompleteSale(ctx, sale.ID)
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state on second complete, got %v", err)
	}
	if got := stockOf(t, repo, "SKU-MIE-01"); got != 119 {
		t.Fatalf("stock must be decremented exactly once, got %d", got)
	}
}

func TestCancelPendingSaleLeavesStockAlone(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	sale := createSale(t, svc, domain.SaleItemRequest{SKU: "SKU-SUSU-01", Qty: 4})

	cancelled, err := svc.CancelSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != domain.TxStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if cancelled.PaymentStatus != domain.PaymentStatusRefunded {
		t.Fatalf("expected refunded payment status, got %s", cancelled.PaymentStatus)
	}
	if got := stockOf(t, repo, "SKU-SUSU-01"); got != 120 {
		t.Fatalf("cancelling a pending sale must not touch stock, got %d", got)
	}
}

func TestCancelCompletedSaleRestoresStock(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	sale := createSale(t, svc, domain.SaleItemRequest{SKU: "SKU-ROTI-01", Qty: 5})
	if _, err := svc.CompleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if got := stockOf(t, repo, "SKU-ROTI-01"); got != 115 {
		t.Fatalf("expected stock 115 after completion, got %d", got)
	}

	cancelled, err := svc.CancelSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != domain.TxStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	for _, line := range cancelled.Items {
		if line.StockApplied {
			t.Fatalf("restored line %s must not stay stock-applied", line.SKU)
		}
	}
	if got := stockOf(t, repo, "SKU-ROTI-01"); got != 120 {
		t.Fatalf("expected stock restored to 120, got %d", got)
	}
}

func TestCancelCancelledSale(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	sale := createSale(t, svc, domain.SaleItemRequest{SKU: "SKU-GULA-01", Qty: 2})
	if _, err := svc.CompleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if _, err := svc.CancelSale(ctx, sale.ID); err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}

	_, err := svc.CancelSale(ctx, sale.ID)
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state on second cancel, got %v", err)
	}
	if got := stockOf(t, repo, "SKU-GULA-01"); got != 120 {
		t.Fatalf("stock must be restored exactly once, got %d", got)
	}
}

func TestConcurrentCompletionHasSingleWinner(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	sale := createSale(t, svc, domain.SaleItemRequest{SKU: "SKU-AIR-01", Qty: 2})

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CompleteSale(ctx, sale.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrInvalidState):
		default:
			t.Fatalf("unexpected completion error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if got := stockOf(t, repo, "SKU-AIR-01"); got != 118 {
		t.Fatalf("stock must be decremented exactly once, got %d", got)
	}

	// The surviving record must still be cancellable with a full restore.
	if _, err := svc.CancelSale(ctx, sale.ID); err != nil {
		t.Fatalf("cancel after racy completion failed: %v", err)
	}
	if got := stockOf(t, repo, "SKU-AIR-01"); got != 120 {
		t.Fatalf("expected full restore to 120, got %d", got)
	}
}

func TestUpdateSaleRecomputesTotals(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	sale := createSale(t, svc, domain.SaleItemRequest{SKU: "SKU-MIE-01", Qty: 1})

	newItems := []domain.SaleItemRequest{
		{SKU: "SKU-KOPI-01", Qty: 4},
	}
	discount := int64(400)
	updated, err := svc.UpdateSale(ctx, sale.ID, domain.SaleUpdateRequest{
		Items:         &newItems,
		DiscountCents: &discount,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if len(updated.Items) != 1 || updated.Items[0].SKU != "SKU-KOPI-01" {
		t.Fatalf("expected replaced item list, got %+v", updated.Items)
	}
	if updated.SubtotalCents != 4*2600 {
		t.Fatalf("expected subtotal %d, got %d", 4*2600, updated.SubtotalCents)
	}
	if want := int64(4*2600 - 400); updated.TotalCents != want {
		t.Fatalf("expected total %d, got %d", want, updated.TotalCents)
	}
}

func TestUpdateSaleRejectsNonPending(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	sale := createSale(t, svc, domain.SaleItemRequest{SKU: "SKU-MIE-01", Qty: 1})
	if _, err := svc.CompleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	notes := "late edit"
	_, err := svc.UpdateSale(ctx, sale.ID, domain.SaleUpdateRequest{Notes: &notes})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestDeleteSaleRules(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	pending := createSale(t, svc, domain.SaleItemRequest{SKU: "SKU-MIE-01", Qty: 1})
	if err := svc.DeleteSale(ctx, domain.SaleDeleteRequest{TransactionID: pending.ID}); err != nil {
		t.Fatalf("deleting a pending sale failed: %v", err)
	}
	if _, err := svc.GetSale(ctx, pending.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	done := createSale(t, svc, domain.SaleItemRequest{SKU: "SKU-MIE-01", Qty: 1})
	if _, err := svc.CompleteSale(ctx, done.ID); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	err := svc.DeleteSale(ctx, domain.SaleDeleteRequest{TransactionID: done.ID})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state deleting a completed sale, got %v", err)
	}

	if err := svc.DeleteSale(ctx, domain.SaleDeleteRequest{TransactionID: done.ID, Force: true}); err != nil {
		t.Fatalf("force delete failed: %v", err)
	}
	if _, err := svc.GetSale(ctx, done.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after force delete, got %v", err)
	}
}

func TestForceCompleteSkipsStockCheck(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	repo.SetProduct(domain.Product{SKU: "SKU-LOW-01", Name: "Barang Langka", UnitPriceCents: 5000, StockQty: 1})
	sale := createSale(t, svc, domain.SaleItemRequest{SKU: "SKU-LOW-01", Qty: 3})

	completed, err := svc.ForceCompleteSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("force complete failed: %v", err)
	}
	if completed.Status != domain.TxStatusCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}
	if got := stockOf(t, repo, "SKU-LOW-01"); got != 0 {
		t.Fatalf("expected stock clamped at zero, got %d", got)
	}
}

func TestGetSaleNotFound(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.GetSale(context.Background(), "tx-missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
