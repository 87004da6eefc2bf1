// Package pickup implements the staff-side validation flow: scanning a
// pickup identifier, presenting the order, and performing the one-time
// dispense transition.
package pickup

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/baminaj/storefront/internal/domain/order"
)

// Dispense performs the pending -> completed transition for an order.
//
// The sequence is deliberate and must not be simplified: a fresh read (never
// a possibly-stale in-memory copy), a refusal when the order is already
// validated, then a conditional write that only applies while validated is
// still false. A lost race surfaces as *order.ConflictError naming the
// terminal that won, not as success and not as a generic failure.
func Dispense(ctx context.Context, orders order.Repository, orderID, staffID string, now time.Time) (*order.Order, error) {
	o, err := orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if o.Validated {
		at := now
		if o.DispensedAt != nil {
			at = *o.DispensedAt
		}
		return nil, &order.AlreadyDispensedError{By: o.DispensedBy, At: at}
	}

	if err := orders.MarkDispensed(ctx, orderID, staffID, now); err != nil {
		if errors.Is(err, order.ErrConflict) {
			// Another terminal won between our read and our write. Re-read to
			// report who, falling back to a bare conflict if even that fails.
			winner, rerr := orders.GetByID(ctx, orderID)
			if rerr == nil && winner.Validated && winner.DispensedAt != nil {
				return nil, &order.ConflictError{By: winner.DispensedBy, At: *winner.DispensedAt}
			}
			return nil, err
		}
		return nil, err
	}

	// Prefer the post-transition state from the store so callers present what
	// was actually committed. The conditional write already succeeded though,
	// so if the confirmation read fails the hand-off must still be reported
	// as done; patch the snapshot locally rather than surface an error for a
	// dispense that happened.
	final, err := orders.GetByID(ctx, orderID)
	if err != nil {
		o.Validated = true
		o.Status = order.StatusCompleted
		o.DispensedBy = staffID
		o.DispensedAt = &now
		return o, nil
	}
	return final, nil
}
