package order

import (
	"fmt"
	"time"
)

// Sentinel errors for checkout validation and repository outcomes.
var (
	ErrEmptyCart        = fmt.Errorf("cart is empty")
	ErrNotFound         = fmt.Errorf("order not found")
	ErrConflict         = fmt.Errorf("order was modified concurrently")
	ErrPaymentFailed    = fmt.Errorf("payment failed")
	ErrPaymentCancelled = fmt.Errorf("payment cancelled")
)

// ProductUnavailableError indicates a cart line references a product that is
// no longer in the catalog. The whole checkout aborts before payment.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is no longer available", e.ProductID)
}

// InvalidQuantityError indicates a cart line has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// PostPaymentError means the gateway captured the payment but the order could
// not be persisted. Money has moved with no receipt to show for it, so this
// must stay distinct from ErrPaymentFailed for operators to reconcile.
type PostPaymentError struct {
	TxRef         string
	TransactionID string
	Err           error
}

func (e *PostPaymentError) Error() string {
	return fmt.Sprintf("payment %s captured but order not recorded: %v", e.TxRef, e.Err)
}

func (e *PostPaymentError) Unwrap() error { return e.Err }

// AlreadyDispensedError reports a dispense attempt on an order that a fresh
// read showed as already validated. It carries who dispensed it and when so
// staff see the prior hand-off instead of a silent success.
type AlreadyDispensedError struct {
	By string
	At time.Time
}

func (e *AlreadyDispensedError) Error() string {
	return fmt.Sprintf("order already dispensed by %s at %s", e.By, e.At.Format(time.RFC3339))
}

// ConflictError reports a dispense attempt that lost the conditional-update
// race to another terminal between the fresh read and the write.
type ConflictError struct {
	By string
	At time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("order was dispensed concurrently by %s at %s", e.By, e.At.Format(time.RFC3339))
}
