package domain

import "time"

type Product struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	StockQty       int    `json:"stock_qty"`
}

// OrderLine is a line of a sale. Name and UnitPriceCents are snapshots taken
// at creation time so completed history is immune to later catalog edits.
// StockApplied records whether this line's stock decrement has been applied,
// so an interrupted completion can be finished or reversed deterministically.
type OrderLine struct {
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	DiscountCents  int64  `json:"discount_cents"`
	TotalCents     int64  `json:"total_cents"`
	StockApplied   bool   `json:"stock_applied"`
}

type Transaction struct {
	ID            string      `json:"id"`
	StoreID       string      `json:"store_id"`
	CustomerID    string      `json:"customer_id,omitempty"`
	CashierID     string      `json:"cashier_id"`
	Items         []OrderLine `json:"items"`
	SubtotalCents int64       `json:"subtotal_cents"`
	DiscountCents int64       `json:"discount_cents"`
	TaxCents      int64       `json:"tax_cents"`
	TotalCents    int64       `json:"total_cents"`
	PaymentMethod string      `json:"payment_method"`
	PaymentStatus string      `json:"payment_status"`
	Status        string      `json:"status"`
	Notes         string      `json:"notes,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type SaleItemRequest struct {
	SKU            string `json:"sku"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents,omitempty"`
	DiscountCents  int64  `json:"discount_cents,omitempty"`
}

type SaleCreateRequest struct {
	StoreID       string            `json:"store_id"`
	CustomerID    string            `json:"customer_id,omitempty"`
	CashierID     string            `json:"cashier_id"`
	PaymentMethod string            `json:"payment_method"`
	DiscountCents int64             `json:"discount_cents"`
	TaxCents      int64             `json:"tax_cents"`
	Notes         string            `json:"notes,omitempty"`
	Items         []SaleItemRequest `json:"items"`
}

type SaleUpdateRequest struct {
	Items         *[]SaleItemRequest `json:"items,omitempty"`
	CustomerID    *string            `json:"customer_id,omitempty"`
	PaymentMethod *string            `json:"payment_method,omitempty"`
	DiscountCents *int64             `json:"discount_cents,omitempty"`
	TaxCents      *int64             `json:"tax_cents,omitempty"`
	Notes         *string            `json:"notes,omitempty"`
}

type SaleDeleteRequest struct {
	TransactionID string `json:"transaction_id"`
	// Force hard-deletes a non-pending sale. This destroys completed history
	// and is an administrative escape hatch, not part of the normal flow.
	Force bool `json:"force"`
}

// OldestPending describes the oldest pending sale for operational visibility.
type OldestPending struct {
	TransactionID string        `json:"transaction_id"`
	TotalCents    int64         `json:"total_cents"`
	Age           time.Duration `json:"age"`
}

type PendingStats struct {
	TotalPending int            `json:"total_pending"`
	OlderThan1h  int            `json:"older_than_1h"`
	OlderThan3h  int            `json:"older_than_3h"`
	Oldest       *OldestPending `json:"oldest,omitempty"`
}

// SweepResult summarizes one force-completion pass over stale pending sales.
type SweepResult struct {
	Completed int `json:"completed"`
	Errors    int `json:"errors"`
}

const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusCancelled = "cancelled"
	// TxStatusVoided exists for administrative overrides outside the
	// lifecycle engine; no engine transition produces it.
	TxStatusVoided = "voided"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)
