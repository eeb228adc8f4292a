package store

import (
	"context"
	"errors"
	"time"

	"salestrack/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state for operation")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("status conflict")
	ErrValidation        = errors.New("validation failed")
)

// Repository is the persistence contract for sales and product stock.
//
// TransitionStatus is the compare-and-set primitive the lifecycle engine is
// built on: it succeeds only when the sale's current status equals `from`.
// Every status change goes through it; a plain read-then-write of the status
// field would reintroduce lost-update bugs between a human operator and the
// recovery sweep racing on the same id.
type Repository interface {
	GetProduct(ctx context.Context, sku string) (*domain.Product, error)
	// AdjustStock applies delta atomically for one product and returns the
	// new quantity. Decrements clamp at zero rather than failing; callers
	// that must not oversell check availability before decrementing.
	AdjustStock(ctx context.Context, sku string, delta int) (int, error)

	InsertSale(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	GetSale(ctx context.Context, id string) (*domain.Transaction, error)
	// UpdatePendingSale replaces the mutable fields of a sale, conditional
	// on its status still being pending. Returns ErrConflict otherwise.
	UpdatePendingSale(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	// TransitionStatus moves the sale from `from` to `to`, also setting
	// paymentStatus, iff the current status equals `from`. Returns the
	// updated record, ErrNotFound if the id is unknown, or ErrConflict if
	// another actor changed the status first.
	TransitionStatus(ctx context.Context, id string, from string, to string, paymentStatus string) (*domain.Transaction, error)
	// SetLineStockApplied persists the per-line stock-adjustment flag so an
	// interrupted completion can be resumed or compensated exactly once.
	// The write is conditional on the flag currently holding the opposite
	// value; ErrConflict otherwise. This makes the flag an ownership token:
	// of any number of racing completers, exactly one owns each line's
	// decrement.
	SetLineStockApplied(ctx context.Context, txID string, sku string, applied bool) error
	// DeleteSale hard-deletes a sale. Only pending sales may be deleted
	// unless force is set.
	DeleteSale(ctx context.Context, id string, force bool) error

	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error)
	GetPendingStats(ctx context.Context, now time.Time) (domain.PendingStats, error)
}
