package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"salestrack/backend/internal/domain"
	"salestrack/backend/internal/metrics"
	"salestrack/backend/internal/store"
	"salestrack/backend/internal/xid"
)

// Service owns the sale lifecycle: creation, completion, cancellation,
// update and deletion. Stock is decremented exactly once on the
// pending->completed transition and restored exactly once on
// completed->cancelled; no other transition touches stock. All status
// changes go through the repository's compare-and-set primitive, so two
// actors racing on the same sale (an operator and the recovery sweep)
// resolve to one winner and one ErrConflict.
type Service struct {
	repo           store.Repository
	metrics        metrics.Metrics
	defaultStoreID string
}

func New(repo store.Repository, m metrics.Metrics, defaultStoreID string) *Service {
	if m == nil {
		m = metrics.NoopMetrics{}
	}
	if defaultStoreID == "" {
		defaultStoreID = "main-store"
	}

	return &Service{
		repo:           repo,
		metrics:        m,
		defaultStoreID: defaultStoreID,
	}
}

func (s *Service) GetSale(ctx context.Context, id string) (*domain.Transaction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, store.ErrValidation
	}
	return s.repo.GetSale(ctx, id)
}

// CreateSale persists a new pending sale. Product name and unit price are
// snapshotted per line via the catalog so later edits never rewrite history.
// Stock is neither checked nor reserved here: a pending sale is a cart that
// may be abandoned, and reserving stock for it would need its own expiry
// mechanism.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (*domain.Transaction, error) {
	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	req.CashierID = strings.TrimSpace(req.CashierID)
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cash"
	}
	if req.CashierID == "" {
		return nil, fmt.Errorf("%w: cashier id required", store.ErrValidation)
	}

	lines, subtotal, err := s.buildLines(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	discount, tax, total, err := computeTotals(subtotal, req.DiscountCents, req.TaxCents)
	if err != nil {
		return nil, err
	}

	tx := domain.Transaction{
		ID:            xid.New("tx"),
		StoreID:       req.StoreID,
		CustomerID:    strings.TrimSpace(req.CustomerID),
		CashierID:     req.CashierID,
		Items:         lines,
		SubtotalCents: subtotal,
		DiscountCents: discount,
		TaxCents:      tax,
		TotalCents:    total,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: domain.PaymentStatusPending,
		Status:        domain.TxStatusPending,
		Notes:         strings.TrimSpace(req.Notes),
		CreatedAt:     time.Now().UTC(),
	}

	created, err := s.repo.InsertSale(ctx, tx)
	if err != nil {
		return nil, err
	}

	s.metrics.SaleCreated()
	return created, nil
}

// CompleteSale fulfils a pending sale. The availability check is
// all-or-nothing: if any line cannot be covered, no stock is touched and the
// sale stays pending.
func (s *Service) CompleteSale(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.complete(ctx, id, true, metrics.SourceManual)
}

// ForceCompleteSale is the recovery sweep's entry point. It deliberately
// skips the stock-sufficiency check that CompleteSale enforces: abandoned
// carts are reconciled even when stock has since run out, with decrements
// clamped at zero. Whether this asymmetry is the intended reconciliation
// policy or a latent oversell is an open product question; it is preserved
// here, not fixed.
func (s *Service) ForceCompleteSale(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.complete(ctx, id, false, metrics.SourceSweep)
}

func (s *Service) complete(ctx context.Context, id string, enforceStock bool, source string) (*domain.Transaction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, store.ErrValidation
	}

	tx, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TxStatusPending {
		return nil, fmt.Errorf("%w: cannot complete sale in status %s", store.ErrInvalidState, tx.Status)
	}

	if enforceStock {
		for _, line := range tx.Items {
			product, err := s.repo.GetProduct(ctx, line.SKU)
			if err != nil {
				return nil, err
			}
			if product.StockQty < line.Qty {
				return nil, fmt.Errorf("%w: sku %s has %d, need %d", store.ErrInsufficientStock, line.SKU, product.StockQty, line.Qty)
			}
		}
	}

	// Decrement stock line by line, claiming each line's applied flag as an
	// ownership token. A racer that decremented the same line but failed to
	// claim the flag undoes its own decrement, so every line nets exactly
	// one application no matter how many completers run.
	owned := make([]domain.OrderLine, 0, len(tx.Items))
	for _, line := range tx.Items {
		if line.StockApplied {
			continue
		}
		if _, err := s.repo.AdjustStock(ctx, line.SKU, -line.Qty); err != nil {
			s.reverseApplied(ctx, tx.ID, owned)
			return nil, err
		}
		if err := s.repo.SetLineStockApplied(ctx, tx.ID, line.SKU, true); err != nil {
			if _, restoreErr := s.repo.AdjustStock(ctx, line.SKU, line.Qty); restoreErr != nil {
				log.Printf("[service] WARN: failed to restore stock for sku=%s tx=%s: %v", line.SKU, tx.ID, restoreErr)
			}
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			s.reverseApplied(ctx, tx.ID, owned)
			return nil, err
		}
		owned = append(owned, line)
	}

	updated, err := s.repo.TransitionStatus(ctx, id, domain.TxStatusPending, domain.TxStatusCompleted, domain.PaymentStatusCompleted)
	if err != nil {
		// Losing the compare-and-set race means another actor already
		// transitioned this sale. If the winner completed it, our owned
		// decrements are exactly the ones the completed sale needs, so they
		// stand. Any other winner means no decrement should survive, so the
		// owned lines are unwound.
		if current, getErr := s.repo.GetSale(ctx, id); getErr != nil || current.Status != domain.TxStatusCompleted {
			s.reverseApplied(ctx, id, owned)
		}
		if errors.Is(err, store.ErrConflict) {
			s.metrics.SaleConflict("complete")
			return nil, fmt.Errorf("%w: sale %s was transitioned concurrently", store.ErrConflict, id)
		}
		return nil, err
	}

	s.metrics.SaleCompleted(source)
	return updated, nil
}

// CancelSale cancels a pending or completed sale. For completed sales the
// status transition happens first and the winner restores stock, so a
// duplicate cancel can never restore twice.
func (s *Service) CancelSale(ctx context.Context, id string) (*domain.Transaction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, store.ErrValidation
	}

	tx, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}

	switch tx.Status {
	case domain.TxStatusPending:
		updated, err := s.repo.TransitionStatus(ctx, id, domain.TxStatusPending, domain.TxStatusCancelled, domain.PaymentStatusRefunded)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				s.metrics.SaleConflict("cancel")
			}
			return nil, err
		}
		s.metrics.SaleCancelled(domain.TxStatusPending)
		return updated, nil

	case domain.TxStatusCompleted:
		updated, err := s.repo.TransitionStatus(ctx, id, domain.TxStatusCompleted, domain.TxStatusCancelled, domain.PaymentStatusRefunded)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				s.metrics.SaleConflict("cancel")
			}
			return nil, err
		}
		for i, line := range updated.Items {
			if !line.StockApplied {
				continue
			}
			if _, err := s.repo.AdjustStock(ctx, line.SKU, line.Qty); err != nil {
				log.Printf("[service] WARN: failed to restore stock for sku=%s tx=%s: %v", line.SKU, id, err)
				continue
			}
			if err := s.repo.SetLineStockApplied(ctx, id, line.SKU, false); err != nil {
				log.Printf("[service] WARN: failed to clear applied flag for sku=%s tx=%s: %v", line.SKU, id, err)
				continue
			}
			updated.Items[i].StockApplied = false
		}
		s.metrics.SaleCancelled(domain.TxStatusCompleted)
		return updated, nil

	default:
		return nil, fmt.Errorf("%w: cannot cancel sale in status %s", store.ErrInvalidState, tx.Status)
	}
}

// UpdateSale patches a pending sale. Replacing items re-resolves product
// snapshots and recomputes totals exactly as creation does.
func (s *Service) UpdateSale(ctx context.Context, id string, req domain.SaleUpdateRequest) (*domain.Transaction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, store.ErrValidation
	}

	tx, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TxStatusPending {
		return nil, fmt.Errorf("%w: cannot update sale in status %s", store.ErrInvalidState, tx.Status)
	}

	updated := *tx
	if req.Items != nil {
		lines, subtotal, err := s.buildLines(ctx, *req.Items)
		if err != nil {
			return nil, err
		}
		updated.Items = lines
		updated.SubtotalCents = subtotal
	}
	if req.CustomerID != nil {
		updated.CustomerID = strings.TrimSpace(*req.CustomerID)
	}
	if req.PaymentMethod != nil {
		method := strings.TrimSpace(*req.PaymentMethod)
		if method == "" {
			return nil, fmt.Errorf("%w: payment method cannot be blank", store.ErrValidation)
		}
		updated.PaymentMethod = method
	}
	if req.DiscountCents != nil {
		updated.DiscountCents = *req.DiscountCents
	}
	if req.TaxCents != nil {
		updated.TaxCents = *req.TaxCents
	}
	if req.Notes != nil {
		updated.Notes = strings.TrimSpace(*req.Notes)
	}

	discount, tax, total, err := computeTotals(updated.SubtotalCents, updated.DiscountCents, updated.TaxCents)
	if err != nil {
		return nil, err
	}
	updated.DiscountCents = discount
	updated.TaxCents = tax
	updated.TotalCents = total

	saved, err := s.repo.UpdatePendingSale(ctx, updated)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.metrics.SaleConflict("update")
		}
		return nil, err
	}
	return saved, nil
}

// DeleteSale hard-deletes a pending sale; pending sales have no stock
// effect, so nothing needs compensating. Deleting any other status requires
// the explicit Force override and erases completed history.
func (s *Service) DeleteSale(ctx context.Context, req domain.SaleDeleteRequest) error {
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	if req.TransactionID == "" {
		return store.ErrValidation
	}

	tx, err := s.repo.GetSale(ctx, req.TransactionID)
	if err != nil {
		return err
	}
	if tx.Status != domain.TxStatusPending {
		if !req.Force {
			return fmt.Errorf("%w: cannot delete sale in status %s", store.ErrInvalidState, tx.Status)
		}
		log.Printf("[service] WARN: force-deleting sale %s in status %s", tx.ID, tx.Status)
	}

	return s.repo.DeleteSale(ctx, req.TransactionID, req.Force)
}

func (s *Service) buildLines(ctx context.Context, items []domain.SaleItemRequest) ([]domain.OrderLine, int64, error) {
	if len(items) == 0 {
		return nil, 0, fmt.Errorf("%w: item list cannot be empty", store.ErrValidation)
	}

	lines := make([]domain.OrderLine, 0, len(items))
	subtotal := int64(0)
	for _, item := range items {
		item.SKU = strings.ToUpper(strings.TrimSpace(item.SKU))
		if item.SKU == "" || item.Qty < 1 {
			return nil, 0, fmt.Errorf("%w: every line needs a sku and a positive quantity", store.ErrValidation)
		}
		if item.UnitPriceCents < 0 || item.DiscountCents < 0 {
			return nil, 0, fmt.Errorf("%w: negative price or discount on sku %s", store.ErrValidation, item.SKU)
		}

		product, err := s.repo.GetProduct(ctx, item.SKU)
		if err != nil {
			return nil, 0, err
		}

		unitPrice := item.UnitPriceCents
		if unitPrice == 0 {
			unitPrice = product.UnitPriceCents
		}
		gross := int64(item.Qty) * unitPrice
		if item.DiscountCents > gross {
			return nil, 0, fmt.Errorf("%w: line discount exceeds line total on sku %s", store.ErrValidation, item.SKU)
		}

		lines = append(lines, domain.OrderLine{
			SKU:            item.SKU,
			Name:           product.Name,
			Qty:            item.Qty,
			UnitPriceCents: unitPrice,
			DiscountCents:  item.DiscountCents,
			TotalCents:     gross - item.DiscountCents,
		})
		subtotal += gross
	}

	return lines, subtotal, nil
}

// reverseApplied undoes the stock decrements owned by a failed completion,
// newest first, releasing each line's flag along the way.
func (s *Service) reverseApplied(ctx context.Context, txID string, owned []domain.OrderLine) {
	for i := len(owned) - 1; i >= 0; i-- {
		line := owned[i]
		if _, err := s.repo.AdjustStock(ctx, line.SKU, line.Qty); err != nil {
			log.Printf("[service] WARN: failed to reverse stock decrement sku=%s tx=%s: %v", line.SKU, txID, err)
			continue
		}
		if err := s.repo.SetLineStockApplied(ctx, txID, line.SKU, false); err != nil {
			log.Printf("[service] WARN: failed to clear applied flag sku=%s tx=%s: %v", line.SKU, txID, err)
		}
	}
}

func computeTotals(subtotal int64, discount int64, tax int64) (int64, int64, int64, error) {
	if discount < 0 || tax < 0 {
		return 0, 0, 0, fmt.Errorf("%w: discount and tax must be non-negative", store.ErrValidation)
	}
	if discount > subtotal {
		return 0, 0, 0, fmt.Errorf("%w: discount exceeds subtotal", store.ErrValidation)
	}
	total := subtotal - discount - tax
	if total < 0 {
		return 0, 0, 0, fmt.Errorf("%w: total would be negative", store.ErrValidation)
	}
	return discount, tax, total, nil
}
