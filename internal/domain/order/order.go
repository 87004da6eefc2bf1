package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status tracks where an order is in its pickup lifecycle.
type Status string

const (
	// StatusPendingPickup is the state of every freshly paid order.
	StatusPendingPickup Status = "pending_pickup"
	// StatusCompleted means the goods were dispensed at the counter.
	StatusCompleted Status = "completed"
)

// Item is a single order line with its catalog-verified unit price.
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// LineTotal returns quantity times the verified unit price.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is a persisted record of a completed payment awaiting physical
// pickup. Created exactly once after a successful charge, mutated exactly
// once (pending -> completed) at the counter, never deleted by this core.
//
// Invariants: Total equals the sum of verified line totals at creation time;
// Validated, Status, DispensedBy and DispensedAt move together and only
// forward; ID is immutable and is the sole lookup key for both the receipt
// view and the staff scanner.
type Order struct {
	ID            string
	CustomerID    string
	CustomerEmail string
	CustomerName  string
	Items         []Item
	Total         decimal.Decimal
	PaymentRef    string
	TransactionID string
	Status        Status
	Validated     bool
	DispensedBy   string
	DispensedAt   *time.Time
	CreatedAt     time.Time
}

// Repository defines persistence operations for orders. MarkDispensed is the
// compare-and-swap the pickup validator relies on: it applies the dispense
// fields only while the stored validated flag is still false, failing with
// ErrConflict when another terminal won the race. Multiple staff terminals
// are independent processes, so this conditional write is the only mutual
// exclusion in the system.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
	MarkDispensed(ctx context.Context, id, staffID string, at time.Time) error
}
