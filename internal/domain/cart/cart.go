package cart

import (
	"context"

	"github.com/shopspring/decimal"
)

// Line is a single cart entry. ClientPrice is whatever the customer's session
// last saw for the product; it is carried for display only and is never read
// by settlement code.
type Line struct {
	ProductID   string
	Quantity    int
	ClientPrice decimal.Decimal
}

// Cart is the explicitly owned session cart for one customer. It is a value
// passed into checkout, not ambient state.
type Cart struct {
	CustomerID string
	Lines      []Line
}

// Empty reports whether the cart has no lines.
func (c Cart) Empty() bool {
	return len(c.Lines) == 0
}

// Store persists carts between visits with clear load/save boundaries.
type Store interface {
	Load(ctx context.Context, customerID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Clear(ctx context.Context, customerID string) error
}
