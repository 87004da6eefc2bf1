// Package api implements the HTTP surface: catalog and cart endpoints,
// checkout, order reads with live status events, receipts, and the staff
// pickup terminal.
package api

import (
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/baminaj/storefront/internal/domain/auth"
	"github.com/baminaj/storefront/internal/domain/cart"
	"github.com/baminaj/storefront/internal/domain/order"
	"github.com/baminaj/storefront/internal/domain/pickup"
	"github.com/baminaj/storefront/internal/domain/product"
	"github.com/baminaj/storefront/internal/notify"
	"github.com/baminaj/storefront/internal/receipt"
)

// Handler serves the storefront API, delegating business logic to the
// injected domain collaborators.
type Handler struct {
	products  product.Repository
	carts     cart.Store
	orders    order.Repository
	checkout  *order.Service
	hub       *notify.Hub
	prefilter *pickup.Prefilter
	receipts  *receipt.Renderer
	metrics   *Metrics

	// Scan terminal sessions, keyed by terminal id. The handler mutex only
	// guards the map; each session has its own lock.
	mu        sync.Mutex
	terminals map[string]*terminalSession
}

// terminalSession serializes requests for one terminal; the session state
// machine itself is single-threaded.
type terminalSession struct {
	mu sync.Mutex
	v  *pickup.Validator
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	carts cart.Store,
	orders order.Repository,
	checkout *order.Service,
	hub *notify.Hub,
	prefilter *pickup.Prefilter,
	receipts *receipt.Renderer,
	metrics *Metrics,
) *Handler {
	return &Handler{
		products:  products,
		carts:     carts,
		orders:    orders,
		checkout:  checkout,
		hub:       hub,
		prefilter: prefilter,
		receipts:  receipts,
		metrics:   metrics,
		terminals: make(map[string]*terminalSession),
	}
}

// Routes builds the API router. All routes require an authenticated API key;
// the storefront surface needs the orders scope and the terminal surface the
// pickup scope.
func (h *Handler) Routes(sec *Security) chi.Router {
	r := chi.NewRouter()
	r.Use(sec.Authenticate)

	r.Group(func(r chi.Router) {
		r.Use(RequireScope(auth.ScopeOrders))

		r.Get("/products", h.listProducts)
		r.Get("/products/{productID}", h.getProduct)

		r.Get("/cart", h.getCart)
		r.Put("/cart", h.putCart)

		r.Post("/checkout", h.postCheckout)

		r.Get("/orders", h.listOrders)
		r.Get("/orders/{orderID}", h.getOrder)
		r.Get("/orders/{orderID}/events", h.orderEvents)
		r.Get("/orders/{orderID}/receipt", h.getReceipt)
		r.Get("/orders/{orderID}/receipt/qr.png", h.getReceiptQR)
	})

	r.Route("/staff", func(r chi.Router) {
		r.Use(RequireScope(auth.ScopePickup))

		r.Get("/orders", h.staffListOrders)
		r.Post("/scan", h.staffScan)
		r.Post("/scan/reset", h.staffScanReset)
		r.Post("/orders/{orderID}/dispense", h.staffDispense)
	})

	return r
}

// terminal returns the scan session for a terminal id, creating it on first
// use.
func (h *Handler) terminal(id string) *terminalSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.terminals[id]
	if !ok {
		s = &terminalSession{v: pickup.NewValidator(h.orders, h.prefilter)}
		h.terminals[id] = s
	}
	return s
}
