package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/baminaj/storefront/internal/domain/cart"
	"github.com/baminaj/storefront/internal/domain/payment"
)

// Customer is the authenticated identity a checkout runs on behalf of.
type Customer struct {
	ID    string
	Email string
	Name  string
	Phone string
}

// CheckoutRequest holds the input for a checkout attempt.
type CheckoutRequest struct {
	Customer Customer
	Cart     cart.Cart
}

// Service orchestrates price verification, the payment gateway, and the
// order repository to turn a cart into a persisted order.
type Service struct {
	verifier *PriceVerifier
	gateway  payment.Gateway
	orders   Repository
	carts    cart.Store
	currency string
}

// NewService creates an order Service with the required collaborators.
func NewService(
	verifier *PriceVerifier,
	gateway payment.Gateway,
	orders Repository,
	carts cart.Store,
	currency string,
) *Service {
	return &Service{
		verifier: verifier,
		gateway:  gateway,
		orders:   orders,
		carts:    carts,
		currency: currency,
	}
}

// Checkout runs the order creation pipeline: verify prices against the
// catalog, charge exactly the verified total, persist the order, clear the
// cart. Each step hard-depends on the previous one succeeding.
//
// Exactly one order is created per successful payment and none on any
// failure branch, with one deliberate exception: a persistence failure after
// a captured payment returns *PostPaymentError carrying the gateway
// references, so operators can reconcile the charge by hand.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	items, total, err := s.verifier.Verify(ctx, req.Cart.Lines)
	if err != nil {
		return nil, err
	}

	orderID := uuid.New().String()

	result, err := s.gateway.Charge(ctx, payment.ChargeRequest{
		Reference: orderID,
		Amount:    total,
		Currency:  s.currency,
		Customer: payment.Customer{
			ID:    req.Customer.ID,
			Email: req.Customer.Email,
			Name:  req.Customer.Name,
			Phone: req.Customer.Phone,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "charge")
	}

	switch result.Status {
	case payment.StatusSuccessful:
	case payment.StatusCancelled:
		return nil, ErrPaymentCancelled
	default:
		return nil, ErrPaymentFailed
	}

	o := &Order{
		ID:            orderID,
		CustomerID:    req.Customer.ID,
		CustomerEmail: req.Customer.Email,
		CustomerName:  req.Customer.Name,
		Items:         items,
		Total:         total,
		PaymentRef:    result.TxRef,
		TransactionID: result.TransactionID,
		Status:        StatusPendingPickup,
		Validated:     false,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, &PostPaymentError{
			TxRef:         result.TxRef,
			TransactionID: result.TransactionID,
			Err:           err,
		}
	}

	// The order exists and the customer has a receipt; a stale cart is a
	// blemish, not an inconsistency, so a failed clear only gets logged.
	if err := s.carts.Clear(ctx, req.Customer.ID); err != nil {
		zctx.From(ctx).Warn("clear cart after checkout",
			zap.String("customer_id", req.Customer.ID),
			zap.Error(err),
		)
	}

	return o, nil
}
