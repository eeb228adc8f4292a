package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"salestrack/backend/internal/domain"
	"salestrack/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetProduct(ctx context.Context, sku string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT sku, name, unit_price_cents, stock_qty
		FROM products
		WHERE sku = $1
	`, sku).Scan(&product.SKU, &product.Name, &product.UnitPriceCents, &product.StockQty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

// AdjustStock applies delta atomically, clamping the result at zero. The
// clamp happens inside the UPDATE so concurrent adjustments never observe a
// negative quantity.
func (s *Store) AdjustStock(ctx context.Context, sku string, delta int) (int, error) {
	var qty int
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock_qty = GREATEST(stock_qty + $2, 0), updated_at = now()
		WHERE sku = $1
		RETURNING stock_qty
	`, sku, delta).Scan(&qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return qty, nil
}

func (s *Store) InsertSale(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" || len(tx.Items) == 0 {
		return nil, store.ErrValidation
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.UpdatedAt = tx.CreatedAt

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, store_id, customer_id, cashier_id, subtotal_cents, discount_cents,
			tax_cents, total_cents, payment_method, payment_status, status, notes,
			created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, tx.ID, tx.StoreID, nullIfEmpty(tx.CustomerID), tx.CashierID, tx.SubtotalCents,
		tx.DiscountCents, tx.TaxCents, tx.TotalCents, tx.PaymentMethod, tx.PaymentStatus,
		tx.Status, tx.Notes, tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		return nil, err
	}

	for _, line := range tx.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, sku, name, qty, unit_price_cents, discount_cents, total_cents, stock_applied)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, tx.ID, line.SKU, line.Name, line.Qty, line.UnitPriceCents, line.DiscountCents, line.TotalCents, line.StockApplied)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := tx
	return &created, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, err := s.getSaleHeader(ctx, id)
	if err != nil {
		return nil, err
	}

	items, err := s.getSaleItems(ctx, id)
	if err != nil {
		return nil, err
	}
	tx.Items = items

	return tx, nil
}

func (s *Store) getSaleHeader(ctx context.Context, id string) (*domain.Transaction, error) {
	var tx domain.Transaction
	var customerID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, customer_id, cashier_id, subtotal_cents, discount_cents,
			tax_cents, total_cents, payment_method, payment_status, status, notes,
			created_at, updated_at
		FROM transactions
		WHERE id = $1
	`, id).Scan(
		&tx.ID,
		&tx.StoreID,
		&customerID,
		&tx.CashierID,
		&tx.SubtotalCents,
		&tx.DiscountCents,
		&tx.TaxCents,
		&tx.TotalCents,
		&tx.PaymentMethod,
		&tx.PaymentStatus,
		&tx.Status,
		&tx.Notes,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if customerID.Valid {
		tx.CustomerID = customerID.String
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.UpdatedAt = tx.UpdatedAt.UTC()
	return &tx, nil
}

func (s *Store) getSaleItems(ctx context.Context, id string) ([]domain.OrderLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, qty, unit_price_cents, discount_cents, total_cents, stock_applied
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.OrderLine, 0, 8)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.SKU, &line.Name, &line.Qty, &line.UnitPriceCents, &line.DiscountCents, &line.TotalCents, &line.StockApplied); err != nil {
			return nil, err
		}
		items = append(items, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// UpdatePendingSale rewrites a sale's mutable fields and its item list, but
// only while the row is still pending. The status predicate makes the write
// conditional; losing it to a concurrent transition surfaces as ErrConflict.
func (s *Store) UpdatePendingSale(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	res, err := pgTx.ExecContext(ctx, `
		UPDATE transactions
		SET customer_id = $2, payment_method = $3, subtotal_cents = $4,
			discount_cents = $5, tax_cents = $6, total_cents = $7, notes = $8,
			updated_at = now()
		WHERE id = $1 AND status = $9
	`, tx.ID, nullIfEmpty(tx.CustomerID), tx.PaymentMethod, tx.SubtotalCents,
		tx.DiscountCents, tx.TaxCents, tx.TotalCents, tx.Notes, domain.TxStatusPending)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, s.missingOrConflict(ctx, tx.ID)
	}

	_, err = pgTx.ExecContext(ctx, `DELETE FROM transaction_items WHERE transaction_id = $1`, tx.ID)
	if err != nil {
		return nil, err
	}
	for _, line := range tx.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, sku, name, qty, unit_price_cents, discount_cents, total_cents, stock_applied)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, tx.ID, line.SKU, line.Name, line.Qty, line.UnitPriceCents, line.DiscountCents, line.TotalCents, line.StockApplied)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return s.GetSale(ctx, tx.ID)
}

// TransitionStatus performs the compare-and-set at the heart of the
// lifecycle: the status predicate in the WHERE clause means exactly one of
// any number of concurrent writers observes a row change. Everyone else gets
// ErrConflict and must compensate.
func (s *Store) TransitionStatus(ctx context.Context, id string, from string, to string, paymentStatus string) (*domain.Transaction, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $3, payment_status = $4, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, to, paymentStatus)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, s.missingOrConflict(ctx, id)
	}

	return s.GetSale(ctx, id)
}

// SetLineStockApplied flips the per-line flag, conditional on it currently
// holding the opposite value. A zero-row update on an existing line means
// another actor flipped it first.
func (s *Store) SetLineStockApplied(ctx context.Context, txID string, sku string, applied bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transaction_items
		SET stock_applied = $3
		WHERE transaction_id = $1 AND sku = $2 AND stock_applied <> $3
	`, txID, sku, applied)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		err := s.db.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM transaction_items WHERE transaction_id = $1 AND sku = $2
			)
		`, txID, sku).Scan(&exists)
		if err != nil {
			return err
		}
		if exists {
			return store.ErrConflict
		}
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSale(ctx context.Context, id string, force bool) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `DELETE FROM transaction_items WHERE transaction_id = $1`, id)
	if err != nil {
		return err
	}

	res, err := pgTx.ExecContext(ctx, `
		DELETE FROM transactions
		WHERE id = $1 AND (status = $2 OR $3)
	`, id, domain.TxStatusPending, force)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, headerErr := s.getSaleHeader(ctx, id); headerErr == nil {
			return store.ErrInvalidState
		}
		return store.ErrNotFound
	}

	return pgTx.Commit()
}

func (s *Store) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 500
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, customer_id, cashier_id, subtotal_cents, discount_cents,
			tax_cents, total_cents, payment_method, payment_status, status, notes,
			created_at, updated_at
		FROM transactions
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3
	`, domain.TxStatusPending, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Transaction, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		var tx domain.Transaction
		var customerID sql.NullString
		if err := rows.Scan(
			&tx.ID,
			&tx.StoreID,
			&customerID,
			&tx.CashierID,
			&tx.SubtotalCents,
			&tx.DiscountCents,
			&tx.TaxCents,
			&tx.TotalCents,
			&tx.PaymentMethod,
			&tx.PaymentStatus,
			&tx.Status,
			&tx.Notes,
			&tx.CreatedAt,
			&tx.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if customerID.Valid {
			tx.CustomerID = customerID.String
		}
		tx.CreatedAt = tx.CreatedAt.UTC()
		tx.UpdatedAt = tx.UpdatedAt.UTC()
		sales = append(sales, tx)
		ids = append(ids, tx.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return sales, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, sku, name, qty, unit_price_cents, discount_cents, total_cents, stock_applied
		FROM transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY id ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	itemMap := make(map[string][]domain.OrderLine, len(ids))
	for itemRows.Next() {
		var txID string
		var line domain.OrderLine
		if err := itemRows.Scan(&txID, &line.SKU, &line.Name, &line.Qty, &line.UnitPriceCents, &line.DiscountCents, &line.TotalCents, &line.StockApplied); err != nil {
			return nil, err
		}
		itemMap[txID] = append(itemMap[txID], line)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	for i := range sales {
		sales[i].Items = itemMap[sales[i].ID]
	}
	return sales, nil
}

func (s *Store) GetPendingStats(ctx context.Context, now time.Time) (domain.PendingStats, error) {
	var stats domain.PendingStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*)::bigint,
			COALESCE(SUM(CASE WHEN created_at < $2 THEN 1 ELSE 0 END),0)::bigint,
			COALESCE(SUM(CASE WHEN created_at < $3 THEN 1 ELSE 0 END),0)::bigint
		FROM transactions
		WHERE status = $1
	`, domain.TxStatusPending, now.Add(-time.Hour), now.Add(-3*time.Hour)).Scan(
		&stats.TotalPending,
		&stats.OlderThan1h,
		&stats.OlderThan3h,
	)
	if err != nil {
		return stats, err
	}
	if stats.TotalPending == 0 {
		return stats, nil
	}

	var oldest domain.OldestPending
	var createdAt time.Time
	err = s.db.QueryRowContext(ctx, `
		SELECT id, total_cents, created_at
		FROM transactions
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT 1
	`, domain.TxStatusPending).Scan(&oldest.TransactionID, &oldest.TotalCents, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return stats, nil
		}
		return stats, err
	}
	oldest.Age = now.Sub(createdAt.UTC())
	stats.Oldest = &oldest

	return stats, nil
}

// missingOrConflict disambiguates a zero-row conditional update: either the
// sale does not exist, or it exists in a status the predicate rejected.
func (s *Store) missingOrConflict(ctx context.Context, id string) error {
	if _, err := s.getSaleHeader(ctx, id); err != nil {
		return err
	}
	return store.ErrConflict
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
