// Package notify implements the status notifier: per-order fan-out of
// committed snapshots to live subscribers (the customer's open receipt view).
package notify

import (
	"sync"

	"github.com/baminaj/storefront/internal/domain/order"
)

// Subscription is one subscriber's live feed of order snapshots. Delivery is
// latest-state coalescing: a subscriber that falls behind skips intermediate
// states and reads the most recent one, matching the contract that
// intermediate states are not guaranteed observable.
type Subscription struct {
	hub     *Hub
	orderID string
	ch      chan order.Order
}

// Updates returns the snapshot channel. It is closed after Cancel.
func (s *Subscription) Updates() <-chan order.Order {
	return s.ch
}

// Cancel detaches the subscription. No deliveries happen afterwards and the
// underlying record is unaffected. Cancel is idempotent.
func (s *Subscription) Cancel() {
	s.hub.cancel(s)
}

// Hub fans committed order snapshots out to subscribers keyed by order id.
// Publishes arrive from the storage change feed in commit order; Publish
// never blocks, so one stuck subscriber cannot stall the feed.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers a live feed for one order id.
func (h *Hub) Subscribe(orderID string) *Subscription {
	s := &Subscription{
		hub:     h,
		orderID: orderID,
		ch:      make(chan order.Order, 1),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[orderID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[orderID] = set
	}
	set[s] = struct{}{}
	return s
}

// Publish delivers a fresh snapshot to every active subscriber of o.ID,
// replacing any undelivered older snapshot.
func (h *Hub) Publish(o order.Order) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[o.ID] {
		select {
		case s.ch <- o:
		default:
			// Subscriber hasn't consumed the previous snapshot; drop it in
			// favour of the newer state.
			select {
			case <-s.ch:
			default:
			}
			s.ch <- o
		}
	}
}

func (h *Hub) cancel(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[s.orderID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.orderID)
	}
	close(s.ch)
}
