package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/calico-commerce/storefront/internal/domain/order"
)

type orderRepo struct {
	// db is set outside transactions so Mutate can open its own; inside a
	// checkout transaction only q is set.
	db *sql.DB
	q  querier
}

const orderColumns = `
	id, number, user_id, items,
	subtotal, tax, shipping_cost, discount, total,
	status, payment_method, payment_status, intent_id, transaction_id,
	payment_amount, paid_at, refunded_at,
	shipping, tracking_carrier, tracking_number, notes, stock_restored,
	created_at, updated_at, processing_at, shipped_at, delivered_at, cancelled_at`

func (r *orderRepo) Insert(ctx context.Context, o *order.Order) error {
	itemsJSON, shippingJSON, notesJSON, err := encodeOrder(o)
	if err != nil {
		return err
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7, $8, $9,
		        $10, $11, $12, $13, $14,
		        $15, $16, $17,
		        $18, $19, $20, $21, $22,
		        $23, $24, $25, $26, $27, $28)`,
		o.ID, o.Number, o.UserID, itemsJSON,
		o.Subtotal, o.Tax, o.ShippingCost, o.Discount, o.Total,
		o.Status, o.Payment.Method, o.Payment.Status, o.Payment.IntentID, o.Payment.TransactionID,
		o.Payment.Amount, nullTime(o.Payment.PaidAt), nullTime(o.Payment.RefundedAt),
		shippingJSON, o.Tracking.Carrier, o.Tracking.Number, notesJSON, o.StockRestored,
		o.CreatedAt, o.UpdatedAt, nullTime(o.ProcessingAt), nullTime(o.ShippedAt),
		nullTime(o.DeliveredAt), nullTime(o.CancelledAt))
	if isUniqueViolation(err) {
		return order.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("postgres: insert order: %w", err)
	}
	return nil
}

func (r *orderRepo) Get(ctx context.Context, id string) (*order.Order, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (r *orderRepo) FindByIntentID(ctx context.Context, intentID string) (*order.Order, error) {
	if intentID == "" {
		return nil, order.ErrNotFound
	}
	row := r.q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE intent_id = $1`, intentID)
	return scanOrder(row)
}

func (r *orderRepo) List(ctx context.Context, f order.Filter) ([]*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	var args []any
	if f.UserID != "" {
		args = append(args, f.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var out []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate orders: %w", err)
	}
	return out, nil
}

// Mutate serializes concurrent writers on the order row with
// SELECT ... FOR UPDATE, applies fn, and persists the result in the same
// transaction. An error from fn rolls the lock back without writing.
func (r *orderRepo) Mutate(ctx context.Context, id string, fn func(*order.Order) error) (*order.Order, error) {
	if r.db == nil {
		return mutate(ctx, r.q, id, fn)
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("postgres: begin tx: %w", err)
	}
	o, err := mutate(ctx, tx, id, fn)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("postgres: commit tx: %w", err)
	}
	return o, nil
}

func mutate(ctx context.Context, q querier, id string, fn func(*order.Order) error) (*order.Order, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}

	if err := fn(o); err != nil {
		return nil, err
	}

	itemsJSON, shippingJSON, notesJSON, err := encodeOrder(o)
	if err != nil {
		return nil, err
	}
	_, err = q.ExecContext(ctx, `
		UPDATE orders SET
			status = $2, payment_method = $3, payment_status = $4,
			intent_id = $5, transaction_id = $6, payment_amount = $7,
			paid_at = $8, refunded_at = $9,
			shipping = $10, tracking_carrier = $11, tracking_number = $12,
			notes = $13, stock_restored = $14, items = $15,
			updated_at = $16, processing_at = $17, shipped_at = $18,
			delivered_at = $19, cancelled_at = $20
		WHERE id = $1`,
		o.ID, o.Status, o.Payment.Method, o.Payment.Status,
		o.Payment.IntentID, o.Payment.TransactionID, o.Payment.Amount,
		nullTime(o.Payment.PaidAt), nullTime(o.Payment.RefundedAt),
		shippingJSON, o.Tracking.Carrier, o.Tracking.Number,
		notesJSON, o.StockRestored, itemsJSON,
		o.UpdatedAt, nullTime(o.ProcessingAt), nullTime(o.ShippedAt),
		nullTime(o.DeliveredAt), nullTime(o.CancelledAt))
	if err != nil {
		return nil, fmt.Errorf("postgres: update order: %w", err)
	}
	return o, nil
}

func encodeOrder(o *order.Order) (items, shipping, notes []byte, err error) {
	if items, err = json.Marshal(o.Items); err != nil {
		return nil, nil, nil, fmt.Errorf("postgres: encode order items: %w", err)
	}
	if shipping, err = json.Marshal(o.Shipping); err != nil {
		return nil, nil, nil, fmt.Errorf("postgres: encode order shipping: %w", err)
	}
	ns := o.Notes
	if ns == nil {
		ns = []string{}
	}
	if notes, err = json.Marshal(ns); err != nil {
		return nil, nil, nil, fmt.Errorf("postgres: encode order notes: %w", err)
	}
	return items, shipping, notes, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o            order.Order
		itemsJSON    []byte
		shippingJSON []byte
		notesJSON    []byte
		paidAt       sql.NullTime
		refundedAt   sql.NullTime
		processingAt sql.NullTime
		shippedAt    sql.NullTime
		deliveredAt  sql.NullTime
		cancelledAt  sql.NullTime
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &itemsJSON,
		&o.Subtotal, &o.Tax, &o.ShippingCost, &o.Discount, &o.Total,
		&o.Status, &o.Payment.Method, &o.Payment.Status, &o.Payment.IntentID, &o.Payment.TransactionID,
		&o.Payment.Amount, &paidAt, &refundedAt,
		&shippingJSON, &o.Tracking.Carrier, &o.Tracking.Number, &notesJSON, &o.StockRestored,
		&o.CreatedAt, &o.UpdatedAt, &processingAt, &shippedAt, &deliveredAt, &cancelledAt)
	if isNoRows(err) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scan order: %w", err)
	}

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("postgres: decode order items: %w", err)
	}
	if err := json.Unmarshal(shippingJSON, &o.Shipping); err != nil {
		return nil, fmt.Errorf("postgres: decode order shipping: %w", err)
	}
	if err := json.Unmarshal(notesJSON, &o.Notes); err != nil {
		return nil, fmt.Errorf("postgres: decode order notes: %w", err)
	}

	o.Payment.PaidAt = timeOf(paidAt)
	o.Payment.RefundedAt = timeOf(refundedAt)
	o.ProcessingAt = timeOf(processingAt)
	o.ShippedAt = timeOf(shippedAt)
	o.DeliveredAt = timeOf(deliveredAt)
	o.CancelledAt = timeOf(cancelledAt)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
