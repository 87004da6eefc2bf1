package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/baminaj/storefront/internal/domain/auth"
	"github.com/baminaj/storefront/internal/domain/cart"
	"github.com/baminaj/storefront/internal/domain/order"
	"github.com/baminaj/storefront/internal/domain/payment"
	"github.com/baminaj/storefront/internal/domain/pickup"
	"github.com/baminaj/storefront/internal/domain/product"
	"github.com/baminaj/storefront/internal/notify"
	"github.com/baminaj/storefront/internal/receipt"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID map[string]product.Product
}

func (m *mockProductRepo) List(context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockCartStore struct {
	mu    sync.Mutex
	carts map[string][]cart.Line
}

func newMockCartStore() *mockCartStore {
	return &mockCartStore{carts: make(map[string][]cart.Line)}
}

func (m *mockCartStore) Load(_ context.Context, customerID string) (*cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &cart.Cart{CustomerID: customerID, Lines: m.carts[customerID]}, nil
}

func (m *mockCartStore) Save(_ context.Context, c *cart.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[c.CustomerID] = c.Lines
	return nil
}

func (m *mockCartStore) Clear(_ context.Context, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, customerID)
	return nil
}

// mockOrderRepo implements the repository with an in-memory conditional
// update, so dispense races behave like the real store.
type mockOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]*order.Order
	createErr error
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]*order.Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) ListByCustomer(_ context.Context, customerID string) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.orders {
		if o.CustomerID == customerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) ListAll(context.Context) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockOrderRepo) MarkDispensed(_ context.Context, id, staffID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Validated {
		return order.ErrConflict
	}
	o.Validated = true
	o.Status = order.StatusCompleted
	o.DispensedBy = staffID
	o.DispensedAt = &at
	return nil
}

type mockGateway struct {
	status payment.Status
	err    error
	calls  int
}

func (m *mockGateway) Charge(_ context.Context, req payment.ChargeRequest) (*payment.ChargeResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &payment.ChargeResult{
		Status:        m.status,
		TxRef:         req.Reference,
		TransactionID: "tx-1",
	}, nil
}

type mockAPIKeyRepo struct {
	keys map[string]*auth.APIKeyInfo
}

func (m *mockAPIKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	k, ok := m.keys[hash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return k, nil
}

// --- Fixture ---

const (
	testPepper      = "test-pepper"
	customerKey     = "customer-api-key"
	staffKey        = "staff-api-key"
	testGasID       = "gas-12kg"
	testCustomerID  = "customer-1"
	testGasPriceNGN = 15000
)

type fixture struct {
	handler *Handler
	router  http.Handler
	orders  *mockOrderRepo
	carts   *mockCartStore
	gateway *mockGateway
	hub     *notify.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	products := &mockProductRepo{byID: map[string]product.Product{
		testGasID: {
			ID:       testGasID,
			Name:     "12kg Gas Refill",
			Price:    decimal.NewFromInt(testGasPriceNGN),
			Category: "gas",
			ImageRef: "images/gas-12kg.jpg",
		},
	}}
	carts := newMockCartStore()
	orders := newMockOrderRepo()
	gateway := &mockGateway{status: payment.StatusSuccessful}
	hub := notify.NewHub()

	prefilter := pickup.NewPrefilter(1000)
	prefilter.SetHealthy(false) // degraded: every code goes to the store

	renderer, err := receipt.NewRenderer(receipt.Config{
		StoreName:      "Baminaj Signature Store",
		PickupLocation: "Victoria Island, Lagos",
		Currency:       "NGN",
	})
	require.NoError(t, err)

	metrics, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	svc := order.NewService(order.NewPriceVerifier(products), gateway, orders, carts, "NGN")
	h := NewHandler(products, carts, orders, svc, hub, prefilter, renderer, metrics)

	keys := &mockAPIKeyRepo{keys: map[string]*auth.APIKeyInfo{
		auth.HashKey([]byte(testPepper), customerKey): {
			ID: "k1", KeyHash: auth.HashKey([]byte(testPepper), customerKey),
			Name: "storefront", Scopes: []string{auth.ScopeOrders},
		},
		auth.HashKey([]byte(testPepper), staffKey): {
			ID: "k2", KeyHash: auth.HashKey([]byte(testPepper), staffKey),
			Name: "counter-1", Scopes: []string{auth.ScopePickup},
		},
	}}

	return &fixture{
		handler: h,
		router:  h.Routes(NewSecurity(keys, []byte(testPepper))),
		orders:  orders,
		carts:   carts,
		gateway: gateway,
		hub:     hub,
	}
}

func (f *fixture) do(t *testing.T, method, path, apiKey, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if apiKey != "" {
		req.Header.Set("api_key", apiKey)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) seedOrder(t *testing.T, id string) *order.Order {
	t.Helper()
	o := &order.Order{
		ID:            id,
		CustomerID:    testCustomerID,
		CustomerEmail: "amina@example.com",
		CustomerName:  "Amina Bello",
		Items: []order.Item{
			{ProductID: testGasID, Name: "12kg Gas Refill", Quantity: 2, UnitPrice: decimal.NewFromInt(testGasPriceNGN)},
		},
		Total:         decimal.NewFromInt(2 * testGasPriceNGN),
		PaymentRef:    id,
		TransactionID: "tx-1",
		Status:        order.StatusPendingPickup,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, f.orders.Create(context.Background(), o))
	return o
}

// --- Authentication and scopes ---

func TestAuth_MissingKey(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/products", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_UnknownKey(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/products", "no-such-key", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_WrongScope(t *testing.T) {
	f := newFixture(t)

	// Staff key cannot use the storefront surface.
	w := f.do(t, http.MethodGet, "/products", staffKey, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Customer key cannot use the terminal surface.
	w = f.do(t, http.MethodGet, "/staff/orders", customerKey, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// --- Catalog ---

func TestListProducts(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/products", customerKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"gas-12kg"`)
	assert.Contains(t, w.Body.String(), `"price":15000.00`)
}

func TestGetProduct_NotFound(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/products/nope", customerKey, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not found")
}

// --- Cart ---

func TestCart_PutAndGet(t *testing.T) {
	f := newFixture(t)

	put := f.do(t, http.MethodPut, "/cart", customerKey,
		`{"customer_id":"customer-1","items":[{"product_id":"gas-12kg","quantity":2,"client_price":15000}]}`)
	require.Equal(t, http.StatusOK, put.Code)

	get := f.do(t, http.MethodGet, "/cart?customer_id=customer-1", customerKey, "")
	require.Equal(t, http.StatusOK, get.Code)
	assert.Contains(t, get.Body.String(), `"product_id":"gas-12kg"`)
	assert.Contains(t, get.Body.String(), `"quantity":2`)
}

func TestCart_PutWithoutCustomerID(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPut, "/cart", customerKey, `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Checkout ---

const checkoutJSON = `{
	"customer": {"id": "customer-1", "email": "amina@example.com", "name": "Amina Bello"},
	"items": [{"product_id": "gas-12kg", "quantity": 2, "client_price": 1}]
}`

func TestCheckout_Success(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/checkout", customerKey, checkoutJSON)
	require.Equal(t, http.StatusCreated, w.Code)

	// The charged and stored total is the verified catalog total, not the
	// client's claimed price.
	assert.Contains(t, w.Body.String(), `"total":30000.00`)
	assert.Contains(t, w.Body.String(), `"status":"pending_pickup"`)
	assert.Contains(t, w.Body.String(), `"validated":false`)
	assert.Equal(t, 1, f.gateway.calls)
}

func TestCheckout_UsesStoredCartWhenNoItems(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.carts.Save(context.Background(), &cart.Cart{
		CustomerID: testCustomerID,
		Lines:      []cart.Line{{ProductID: testGasID, Quantity: 1}},
	}))

	w := f.do(t, http.MethodPost, "/checkout", customerKey,
		`{"customer":{"id":"customer-1","email":"amina@example.com"}}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"total":15000.00`)

	// Checkout clears the stored cart.
	c, err := f.carts.Load(context.Background(), testCustomerID)
	require.NoError(t, err)
	assert.Empty(t, c.Lines)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/checkout", customerKey,
		`{"customer":{"id":"customer-1","email":"amina@example.com"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, f.gateway.calls)
}

func TestCheckout_ProductUnavailable(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/checkout", customerKey,
		`{"customer":{"id":"customer-1","email":"amina@example.com"},"items":[{"product_id":"discontinued","quantity":1}]}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "no longer available")

	// Payment is never attempted for an unavailable product.
	assert.Equal(t, 0, f.gateway.calls)
	assert.Empty(t, f.orders.orders)
}

func TestCheckout_PaymentFailed(t *testing.T) {
	f := newFixture(t)
	f.gateway.status = payment.StatusFailed

	w := f.do(t, http.MethodPost, "/checkout", customerKey, checkoutJSON)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Empty(t, f.orders.orders)
}

func TestCheckout_PaymentCancelled(t *testing.T) {
	f := newFixture(t)
	f.gateway.status = payment.StatusCancelled

	w := f.do(t, http.MethodPost, "/checkout", customerKey, checkoutJSON)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "cancelled")
}

func TestCheckout_PostPaymentFailure(t *testing.T) {
	f := newFixture(t)
	f.orders.createErr = context.DeadlineExceeded

	w := f.do(t, http.MethodPost, "/checkout", customerKey, checkoutJSON)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "do not retry payment")
}

// --- Orders ---

func TestGetOrder(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, "order-1")

	w := f.do(t, http.MethodGet, "/orders/"+o.ID, customerKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"order-1"`)

	w = f.do(t, http.MethodGet, "/orders/absent", customerKey, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "order-1")
	f.seedOrder(t, "order-2")

	w := f.do(t, http.MethodGet, "/orders?customer_id="+testCustomerID, customerKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "order-1")
	assert.Contains(t, w.Body.String(), "order-2")
}

func TestGetReceipt(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, "order-1")

	w := f.do(t, http.MethodGet, "/orders/"+o.ID+"/receipt", customerKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, w.Body.String(), "Baminaj Signature Store")
	assert.Contains(t, w.Body.String(), "order-1")

	qr := f.do(t, http.MethodGet, "/orders/"+o.ID+"/receipt/qr.png", customerKey, "")
	require.Equal(t, http.StatusOK, qr.Code)
	assert.Equal(t, "image/png", qr.Header().Get("Content-Type"))
}

// --- Live status events ---

func TestOrderEvents(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, "order-1")

	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/orders/"+o.ID+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("api_key", customerKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		var sb strings.Builder
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			sb.WriteString(line)
			if line == "\n" {
				return sb.String()
			}
		}
	}

	first := readEvent()
	assert.Contains(t, first, `"status":"pending_pickup"`)

	// A committed dispense shows up on the stream.
	at := time.Now().UTC()
	require.NoError(t, f.orders.MarkDispensed(context.Background(), o.ID, "counter-1", at))
	updated, err := f.orders.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	f.hub.Publish(*updated)

	second := readEvent()
	assert.Contains(t, second, `"status":"completed"`)
	assert.Contains(t, second, `"dispensed_by":"counter-1"`)
}

func TestOrderEvents_NotFound(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/orders/absent/events", customerKey, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- Staff terminal ---

func TestStaffScanAndDispense(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, "order-1")

	scan := f.do(t, http.MethodPost, "/staff/scan", staffKey,
		`{"terminal":"t1","code":"order-1"}`)
	require.Equal(t, http.StatusOK, scan.Code)
	assert.Contains(t, scan.Body.String(), `"state":"found"`)
	assert.Contains(t, scan.Body.String(), `"id":"order-1"`)

	dispense := f.do(t, http.MethodPost, "/staff/orders/"+o.ID+"/dispense", staffKey, "")
	require.Equal(t, http.StatusOK, dispense.Code)
	assert.Contains(t, dispense.Body.String(), `"status":"completed"`)
	assert.Contains(t, dispense.Body.String(), `"dispensed_by":"counter-1"`)

	// A second dispense is refused, naming the original hand-off.
	again := f.do(t, http.MethodPost, "/staff/orders/"+o.ID+"/dispense", staffKey, "")
	assert.Equal(t, http.StatusConflict, again.Code)
	assert.Contains(t, again.Body.String(), "counter-1")
}

func TestStaffScan_NotFound(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/staff/scan", staffKey,
		`{"terminal":"t1","code":"garbage"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"not_found"`)
}

func TestStaffScan_ThenReset(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "order-1")

	scan := f.do(t, http.MethodPost, "/staff/scan", staffKey,
		`{"terminal":"t1","code":"order-1"}`)
	require.Equal(t, http.StatusOK, scan.Code)

	reset := f.do(t, http.MethodPost, "/staff/scan/reset", staffKey, `{"terminal":"t1"}`)
	require.Equal(t, http.StatusOK, reset.Code)
	assert.Contains(t, reset.Body.String(), `"state":"idle"`)
}

func TestStaffDispense_NotFound(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/staff/orders/absent/dispense", staffKey, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStaffListOrders(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "order-1")

	w := f.do(t, http.MethodGet, "/staff/orders", staffKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "order-1")
}
