// Package payment defines the black-box payment gateway collaborator. The
// storefront invokes it exactly once per checkout attempt and consumes the
// result synchronously; provider detail stays behind the Gateway interface.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// Status is the normalised outcome of a charge attempt.
type Status string

const (
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Customer identifies the paying customer to the provider.
type Customer struct {
	ID    string
	Email string
	Name  string
	Phone string
}

// ChargeRequest describes a single charge for the verified order total.
type ChargeRequest struct {
	// Reference is the merchant-side transaction reference, unique per attempt.
	Reference string
	Amount    decimal.Decimal
	Currency  string
	Customer  Customer
}

// ChargeResult reports the provider's decision plus its transaction handles.
type ChargeResult struct {
	Status        Status
	TxRef         string
	TransactionID string
}

// Gateway collects payment and reports success or failure. Implementations
// must honour ctx cancellation and enforce their own request timeout.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}
