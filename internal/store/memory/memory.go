package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"salestrack/backend/internal/domain"
	"salestrack/backend/internal/store"
)

type Store struct {
	mu        sync.RWMutex
	products  map[string]domain.Product
	salesByID map[string]*domain.Transaction
}

func New() *Store {
	return &Store{
		products:  make(map[string]domain.Product),
		salesByID: make(map[string]*domain.Transaction),
	}
}

// NewSeeded returns a store pre-loaded with a small demo catalog. Every
// product starts with 120 units on hand.
func NewSeeded() *Store {
	products := []domain.Product{
		{SKU: "SKU-MIE-01", Name: "Mie Goreng Instan", UnitPriceCents: 3500},
		{SKU: "SKU-TELUR-01", Name: "Telur 10 Butir", UnitPriceCents: 26500},
		{SKU: "SKU-SUSU-01", Name: "Susu UHT 1L", UnitPriceCents: 18900},
		{SKU: "SKU-ROTI-01", Name: "Roti Tawar", UnitPriceCents: 17800},
		{SKU: "SKU-KOPI-01", Name: "Kopi Sachet", UnitPriceCents: 2600},
		{SKU: "SKU-GULA-01", Name: "Gula 1kg", UnitPriceCents: 17400},
		{SKU: "SKU-TEH-01", Name: "Teh Celup", UnitPriceCents: 9800},
		{SKU: "SKU-AIR-01", Name: "Air Mineral 600ml", UnitPriceCents: 3900},
	}

	s := New()
	for _, p := range products {
		p.StockQty = 120
		s.products[p.SKU] = p
	}
	return s
}

// SetProduct inserts or replaces a product, for seeding tests.
func (s *Store) SetProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.SKU] = p
}

func (s *Store) GetProduct(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[sku]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := p
	return &copied, nil
}

func (s *Store) AdjustStock(_ context.Context, sku string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[sku]
	if !ok {
		return 0, store.ErrNotFound
	}
	next := p.StockQty + delta
	if next < 0 {
		next = 0
	}
	p.StockQty = next
	s.products[sku] = p
	return next, nil
}

func (s *Store) InsertSale(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		return nil, store.ErrValidation
	}
	if _, exists := s.salesByID[tx.ID]; exists {
		return nil, fmt.Errorf("sale %s already exists", tx.ID)
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.UpdatedAt = tx.CreatedAt

	copied := cloneSale(&tx)
	s.salesByID[tx.ID] = copied
	return cloneSale(copied), nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(tx), nil
}

func (s *Store) UpdatePendingSale(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.salesByID[tx.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if existing.Status != domain.TxStatusPending {
		return nil, store.ErrConflict
	}

	tx.Status = existing.Status
	tx.PaymentStatus = existing.PaymentStatus
	tx.CreatedAt = existing.CreatedAt
	tx.UpdatedAt = time.Now().UTC()

	copied := cloneSale(&tx)
	s.salesByID[tx.ID] = copied
	return cloneSale(copied), nil
}

func (s *Store) TransitionStatus(_ context.Context, id string, from string, to string, paymentStatus string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if tx.Status != from {
		return nil, store.ErrConflict
	}

	tx.Status = to
	tx.PaymentStatus = paymentStatus
	tx.UpdatedAt = time.Now().UTC()
	return cloneSale(tx), nil
}

func (s *Store) SetLineStockApplied(_ context.Context, txID string, sku string, applied bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.salesByID[txID]
	if !ok {
		return store.ErrNotFound
	}
	for i := range tx.Items {
		if tx.Items[i].SKU == sku {
			if tx.Items[i].StockApplied == applied {
				return store.ErrConflict
			}
			tx.Items[i].StockApplied = applied
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) DeleteSale(_ context.Context, id string, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.salesByID[id]
	if !ok {
		return store.ErrNotFound
	}
	if tx.Status != domain.TxStatusPending && !force {
		return store.ErrInvalidState
	}
	delete(s.salesByID, id)
	return nil
}

func (s *Store) ListPendingOlderThan(_ context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Transaction, 0, 16)
	for _, tx := range s.salesByID {
		if tx.Status != domain.TxStatusPending {
			continue
		}
		if !tx.CreatedAt.Before(cutoff) {
			continue
		}
		matched = append(matched, *cloneSale(tx))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) GetPendingStats(_ context.Context, now time.Time) (domain.PendingStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.PendingStats{}
	var oldest *domain.Transaction
	for _, tx := range s.salesByID {
		if tx.Status != domain.TxStatusPending {
			continue
		}
		stats.TotalPending++
		age := now.Sub(tx.CreatedAt)
		if age > time.Hour {
			stats.OlderThan1h++
		}
		if age > 3*time.Hour {
			stats.OlderThan3h++
		}
		if oldest == nil || tx.CreatedAt.Before(oldest.CreatedAt) {
			oldest = tx
		}
	}
	if oldest != nil {
		stats.Oldest = &domain.OldestPending{
			TransactionID: oldest.ID,
			TotalCents:    oldest.TotalCents,
			Age:           now.Sub(oldest.CreatedAt),
		}
	}
	return stats, nil
}

func cloneSale(src *domain.Transaction) *domain.Transaction {
	copied := *src
	copied.Items = make([]domain.OrderLine, len(src.Items))
	copy(copied.Items, src.Items)
	return &copied
}
