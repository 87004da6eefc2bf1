package order

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baminaj/storefront/internal/domain/cart"
	"github.com/baminaj/storefront/internal/domain/payment"
	"github.com/baminaj/storefront/internal/domain/product"
)

type catalogStub struct {
	products map[string]product.Product
}

func (c *catalogStub) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	return out, nil
}

func (c *catalogStub) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (c *catalogStub) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type gatewayStub struct {
	result  *payment.ChargeResult
	err     error
	calls   int
	lastReq payment.ChargeRequest
}

func (g *gatewayStub) Charge(_ context.Context, req payment.ChargeRequest) (*payment.ChargeResult, error) {
	g.calls++
	g.lastReq = req
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

type orderRepoStub struct {
	created   []*Order
	createErr error
}

func (r *orderRepoStub) Create(_ context.Context, o *Order) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.created = append(r.created, o)
	return nil
}

func (r *orderRepoStub) GetByID(_ context.Context, id string) (*Order, error) {
	for _, o := range r.created {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, ErrNotFound
}

func (r *orderRepoStub) ListByCustomer(_ context.Context, _ string) ([]Order, error) {
	return nil, nil
}

func (r *orderRepoStub) ListAll(_ context.Context) ([]Order, error) { return nil, nil }

func (r *orderRepoStub) MarkDispensed(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

type cartStoreStub struct {
	cleared  []string
	clearErr error
}

func (s *cartStoreStub) Load(_ context.Context, customerID string) (*cart.Cart, error) {
	return &cart.Cart{CustomerID: customerID}, nil
}

func (s *cartStoreStub) Save(_ context.Context, _ *cart.Cart) error { return nil }

func (s *cartStoreStub) Clear(_ context.Context, customerID string) error {
	if s.clearErr != nil {
		return s.clearErr
	}
	s.cleared = append(s.cleared, customerID)
	return nil
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testCatalog() *catalogStub {
	return &catalogStub{products: map[string]product.Product{
		"gas-12kg":      {ID: "gas-12kg", Name: "12kg Gas Refill", Price: price("15000")},
		"lighter-click": {ID: "lighter-click", Name: "Click Gas Lighter", Price: price("1200")},
	}}
}

func checkoutRequest(lines ...cart.Line) CheckoutRequest {
	return CheckoutRequest{
		Customer: Customer{
			ID:    "cust-1",
			Email: "ada@example.com",
			Name:  "Ada Obi",
			Phone: "+2348000000000",
		},
		Cart: cart.Cart{CustomerID: "cust-1", Lines: lines},
	}
}

func TestCheckoutChargesVerifiedTotal(t *testing.T) {
	t.Parallel()

	gateway := &gatewayStub{result: &payment.ChargeResult{
		Status:        payment.StatusSuccessful,
		TxRef:         "tx-ref-1",
		TransactionID: "285959875",
	}}
	repo := &orderRepoStub{}
	carts := &cartStoreStub{}
	svc := NewService(NewPriceVerifier(testCatalog()), gateway, repo, carts, "NGN")

	// The client-held prices are garbage on purpose; the charge must use the
	// catalog total.
	o, err := svc.Checkout(context.Background(), checkoutRequest(
		cart.Line{ProductID: "gas-12kg", Quantity: 2, ClientPrice: price("1")},
		cart.Line{ProductID: "lighter-click", Quantity: 1, ClientPrice: price("0.01")},
	))
	require.NoError(t, err)
	require.NotNil(t, o)

	require.Equal(t, 1, gateway.calls)
	assert.True(t, gateway.lastReq.Amount.Equal(price("31200")), "charged %s", gateway.lastReq.Amount)
	assert.Equal(t, "NGN", gateway.lastReq.Currency)
	assert.Equal(t, o.ID, gateway.lastReq.Reference)
	assert.Equal(t, "ada@example.com", gateway.lastReq.Customer.Email)

	require.Len(t, repo.created, 1)
	assert.Equal(t, StatusPendingPickup, o.Status)
	assert.False(t, o.Validated)
	assert.True(t, o.Total.Equal(price("31200")))
	assert.Equal(t, "tx-ref-1", o.PaymentRef)
	assert.Equal(t, "285959875", o.TransactionID)
	require.Len(t, o.Items, 2)
	assert.True(t, o.Items[0].UnitPrice.Equal(price("15000")))
	assert.Equal(t, 2, o.Items[0].Quantity)

	assert.Equal(t, []string{"cust-1"}, carts.cleared)
}

func TestCheckoutEmptyCart(t *testing.T) {
	t.Parallel()

	gateway := &gatewayStub{}
	repo := &orderRepoStub{}
	svc := NewService(NewPriceVerifier(testCatalog()), gateway, repo, &cartStoreStub{}, "NGN")

	_, err := svc.Checkout(context.Background(), checkoutRequest())
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, gateway.calls)
	assert.Empty(t, repo.created)
}

func TestCheckoutInvalidQuantity(t *testing.T) {
	t.Parallel()

	gateway := &gatewayStub{}
	svc := NewService(NewPriceVerifier(testCatalog()), gateway, &orderRepoStub{}, &cartStoreStub{}, "NGN")

	_, err := svc.Checkout(context.Background(), checkoutRequest(
		cart.Line{ProductID: "gas-12kg", Quantity: 0},
	))

	var invalidErr *InvalidQuantityError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, "gas-12kg", invalidErr.ProductID)
	assert.Zero(t, gateway.calls)
}

func TestCheckoutProductUnavailable(t *testing.T) {
	t.Parallel()

	gateway := &gatewayStub{}
	repo := &orderRepoStub{}
	svc := NewService(NewPriceVerifier(testCatalog()), gateway, repo, &cartStoreStub{}, "NGN")

	_, err := svc.Checkout(context.Background(), checkoutRequest(
		cart.Line{ProductID: "gas-12kg", Quantity: 1},
		cart.Line{ProductID: "discontinued", Quantity: 1},
	))

	var unavailable *ProductUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "discontinued", unavailable.ProductID)
	assert.Zero(t, gateway.calls, "payment must not run for an unavailable product")
	assert.Empty(t, repo.created)
}

func TestCheckoutPaymentOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  payment.Status
		wantErr error
	}{
		{"failed", payment.StatusFailed, ErrPaymentFailed},
		{"cancelled", payment.StatusCancelled, ErrPaymentCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := &orderRepoStub{}
			carts := &cartStoreStub{}
			gateway := &gatewayStub{result: &payment.ChargeResult{Status: tt.status, TxRef: "tx"}}
			svc := NewService(NewPriceVerifier(testCatalog()), gateway, repo, carts, "NGN")

			_, err := svc.Checkout(context.Background(), checkoutRequest(
				cart.Line{ProductID: "gas-12kg", Quantity: 1},
			))
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, repo.created, "no order may exist without a successful payment")
			assert.Empty(t, carts.cleared)
		})
	}
}

func TestCheckoutGatewayError(t *testing.T) {
	t.Parallel()

	gateway := &gatewayStub{err: assert.AnError}
	repo := &orderRepoStub{}
	svc := NewService(NewPriceVerifier(testCatalog()), gateway, repo, &cartStoreStub{}, "NGN")

	_, err := svc.Checkout(context.Background(), checkoutRequest(
		cart.Line{ProductID: "gas-12kg", Quantity: 1},
	))
	require.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, repo.created)
}

func TestCheckoutPersistFailureAfterCapture(t *testing.T) {
	t.Parallel()

	gateway := &gatewayStub{result: &payment.ChargeResult{
		Status:        payment.StatusSuccessful,
		TxRef:         "tx-ref-9",
		TransactionID: "900001",
	}}
	repo := &orderRepoStub{createErr: assert.AnError}
	carts := &cartStoreStub{}
	svc := NewService(NewPriceVerifier(testCatalog()), gateway, repo, carts, "NGN")

	_, err := svc.Checkout(context.Background(), checkoutRequest(
		cart.Line{ProductID: "gas-12kg", Quantity: 1},
	))

	var postPayment *PostPaymentError
	require.ErrorAs(t, err, &postPayment)
	assert.Equal(t, "tx-ref-9", postPayment.TxRef)
	assert.Equal(t, "900001", postPayment.TransactionID)
	require.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, carts.cleared, "cart survives so the customer can retry")
}

func TestCheckoutCartClearFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	gateway := &gatewayStub{result: &payment.ChargeResult{Status: payment.StatusSuccessful, TxRef: "tx"}}
	repo := &orderRepoStub{}
	carts := &cartStoreStub{clearErr: assert.AnError}
	svc := NewService(NewPriceVerifier(testCatalog()), gateway, repo, carts, "NGN")

	o, err := svc.Checkout(context.Background(), checkoutRequest(
		cart.Line{ProductID: "lighter-click", Quantity: 3},
	))
	require.NoError(t, err)
	require.NotNil(t, o)
	require.Len(t, repo.created, 1)
}

func TestVerifyRoundsTotal(t *testing.T) {
	t.Parallel()

	catalog := &catalogStub{products: map[string]product.Product{
		"odd": {ID: "odd", Name: "Odd Priced Item", Price: price("33.335")},
	}}
	verifier := NewPriceVerifier(catalog)

	items, total, err := verifier.Verify(context.Background(), []cart.Line{
		{ProductID: "odd", Quantity: 3},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, total.Equal(price("100.01")), "got total %s", total)
}
