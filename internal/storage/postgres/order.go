package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baminaj/storefront/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders
		(id, customer_id, customer_email, customer_name, items, total,
		 payment_ref, transaction_id, status, validated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	orderColumns = `id, customer_id, customer_email, customer_name, items, total,
		payment_ref, transaction_id, status, validated, dispensed_by, dispensed_at, created_at`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_id = $1 ORDER BY created_at DESC`

	listAllOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`

	listOrderIDsSQL = `SELECT id FROM orders`

	// The WHERE clause is the compare-and-swap: the dispense fields apply
	// only while validated is still false, so concurrent terminals cannot
	// both succeed.
	markDispensedSQL = `UPDATE orders
		SET validated = TRUE, status = $4, dispensed_by = $2, dispensed_at = $3
		WHERE id = $1 AND validated = FALSE`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Items are serialized to JSON for storage in
// the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.CustomerID, o.CustomerEmail, o.CustomerName, itemsJSON, o.Total,
		o.PaymentRef, o.TransactionID, string(o.Status), o.Validated, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	return nil
}

// GetByID returns a single order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByCustomerSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for customer %q: %w", customerID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListAll returns every order, newest first. Staff surface only.
func (r *OrderRepository) ListAll(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listAllOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListIDs returns every order id. Used to seed the scan prefilter.
func (r *OrderRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listOrderIDsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing order ids: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	})
}

// MarkDispensed applies the pending -> completed transition if and only if
// the stored validated flag is still false. A zero-row update is classified
// by a follow-up read: missing row means order.ErrNotFound, an existing row
// means another terminal already dispensed and the caller gets
// order.ErrConflict.
func (r *OrderRepository) MarkDispensed(ctx context.Context, id, staffID string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, markDispensedSQL, id, staffID, at, string(order.StatusCompleted))
	if err != nil {
		return fmt.Errorf("marking order %q dispensed: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("classifying failed dispense of %q: %w", id, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrConflict
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o           order.Order
		itemsJSON   []byte
		status      string
		dispensedBy *string
		dispensedAt *time.Time
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.CustomerEmail, &o.CustomerName, &itemsJSON, &o.Total,
		&o.PaymentRef, &o.TransactionID, &status, &o.Validated, &dispensedBy, &dispensedAt,
		&o.CreatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return order.Order{}, fmt.Errorf("unmarshaling items for order %q: %w", o.ID, err)
	}
	o.Status = order.Status(status)
	if dispensedBy != nil {
		o.DispensedBy = *dispensedBy
	}
	o.DispensedAt = dispensedAt
	return o, nil
}
