package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/baminaj/storefront/internal/domain/cart"
	"github.com/baminaj/storefront/internal/domain/order"
)

type checkoutBody struct {
	customer order.Customer
	items    []cart.Line
}

// postCheckout turns a cart into a paid order. The request may carry explicit
// items; when it doesn't, the customer's stored cart is used.
func (h *Handler) postCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := zctx.From(ctx)

	body, err := decodeCheckout(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lines := body.items
	if len(lines) == 0 {
		stored, err := h.carts.Load(ctx, body.customer.ID)
		if err != nil {
			lg.Error("Load cart for checkout", zap.String("customer_id", body.customer.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		lines = stored.Lines
	}

	o, err := h.checkout.Checkout(ctx, order.CheckoutRequest{
		Customer: body.customer,
		Cart:     cart.Cart{CustomerID: body.customer.ID, Lines: lines},
	})
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}

	h.metrics.OrdersCreated.Add(ctx, 1)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// writeCheckoutError maps checkout failures onto the API contract. A payment
// captured without a recorded order is a 502 distinct from an ordinary
// payment decline so clients don't prompt the customer to pay again.
func (h *Handler) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	lg := zctx.From(ctx)

	var (
		unavailable *order.ProductUnavailableError
		badQty      *order.InvalidQuantityError
		postPayment *order.PostPaymentError
	)
	switch {
	case errors.Is(err, order.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, "cart is empty")
	case errors.As(err, &badQty):
		writeError(w, http.StatusBadRequest, badQty.Error())
	case errors.As(err, &unavailable):
		writeError(w, http.StatusConflict, unavailable.Error())
	case errors.Is(err, order.ErrPaymentCancelled):
		h.metrics.PaymentFailures.Add(ctx, 1)
		writeError(w, http.StatusPaymentRequired, "payment cancelled")
	case errors.Is(err, order.ErrPaymentFailed):
		h.metrics.PaymentFailures.Add(ctx, 1)
		writeError(w, http.StatusPaymentRequired, "payment failed")
	case errors.As(err, &postPayment):
		lg.Error("Payment captured but order not recorded",
			zap.String("tx_ref", postPayment.TxRef),
			zap.String("transaction_id", postPayment.TransactionID),
			zap.Error(postPayment.Err),
		)
		writeError(w, http.StatusBadGateway,
			"payment was captured but the order could not be recorded; do not retry payment, contact support with reference "+postPayment.TxRef)
	default:
		lg.Error("Checkout", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeCheckout(r *http.Request) (*checkoutBody, error) {
	d := jx.Decode(r.Body, 4096)

	var body checkoutBody
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "customer":
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				var err error
				switch string(key) {
				case "id":
					body.customer.ID, err = d.Str()
				case "email":
					body.customer.Email, err = d.Str()
				case "name":
					body.customer.Name, err = d.Str()
				case "phone":
					body.customer.Phone, err = d.Str()
				default:
					err = d.Skip()
				}
				return err
			})
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				line, err := decodeCartLine(d)
				if err != nil {
					return err
				}
				body.items = append(body.items, line)
				return nil
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}

	if body.customer.ID == "" {
		return nil, errors.New("customer.id is required")
	}
	if body.customer.Email == "" {
		return nil, errors.New("customer.email is required")
	}
	return &body, nil
}
