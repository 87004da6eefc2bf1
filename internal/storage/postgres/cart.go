package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baminaj/storefront/internal/domain/cart"
)

const (
	loadCartSQL = `SELECT lines FROM carts WHERE customer_id = $1`

	saveCartSQL = `INSERT INTO carts (customer_id, lines, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_id) DO UPDATE SET
			lines = EXCLUDED.lines,
			updated_at = EXCLUDED.updated_at`

	clearCartSQL = `DELETE FROM carts WHERE customer_id = $1`
)

var _ cart.Store = (*CartStore)(nil)

// CartStore implements cart.Store backed by PostgreSQL. Lines are stored as
// a JSONB document per customer.
type CartStore struct {
	pool *pgxpool.Pool
}

// NewCartStore returns a CartStore that uses the given pool.
func NewCartStore(pool *pgxpool.Pool) *CartStore {
	return &CartStore{pool: pool}
}

// Load returns the customer's cart. A customer with no stored row gets an
// empty cart, not an error.
func (s *CartStore) Load(ctx context.Context, customerID string) (*cart.Cart, error) {
	var linesJSON []byte
	err := s.pool.QueryRow(ctx, loadCartSQL, customerID).Scan(&linesJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &cart.Cart{CustomerID: customerID}, nil
		}
		return nil, fmt.Errorf("loading cart for %q: %w", customerID, err)
	}

	var lines []cart.Line
	if err := json.Unmarshal(linesJSON, &lines); err != nil {
		return nil, fmt.Errorf("unmarshaling cart for %q: %w", customerID, err)
	}
	return &cart.Cart{CustomerID: customerID, Lines: lines}, nil
}

// Save replaces the customer's stored cart.
func (s *CartStore) Save(ctx context.Context, c *cart.Cart) error {
	linesJSON, err := json.Marshal(c.Lines)
	if err != nil {
		return fmt.Errorf("marshaling cart lines: %w", err)
	}

	_, err = s.pool.Exec(ctx, saveCartSQL, c.CustomerID, linesJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving cart for %q: %w", c.CustomerID, err)
	}
	return nil
}

// Clear removes the customer's stored cart. Clearing an absent cart is a
// no-op.
func (s *CartStore) Clear(ctx context.Context, customerID string) error {
	_, err := s.pool.Exec(ctx, clearCartSQL, customerID)
	if err != nil {
		return fmt.Errorf("clearing cart for %q: %w", customerID, err)
	}
	return nil
}
