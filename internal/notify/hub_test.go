package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baminaj/storefront/internal/domain/order"
)

func snapshot(id string, status order.Status) order.Order {
	return order.Order{ID: id, Status: status}
}

func receiveOne(t *testing.T, sub *Subscription) order.Order {
	t.Helper()
	select {
	case o, ok := <-sub.Updates():
		require.True(t, ok, "channel closed unexpectedly")
		return o
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return order.Order{}
	}
}

func TestHubDeliversSnapshot(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	sub := hub.Subscribe("ord-1")
	defer sub.Cancel()

	hub.Publish(snapshot("ord-1", order.StatusPendingPickup))

	got := receiveOne(t, sub)
	assert.Equal(t, "ord-1", got.ID)
	assert.Equal(t, order.StatusPendingPickup, got.Status)
}

func TestHubCoalescesToLatest(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	sub := hub.Subscribe("ord-1")
	defer sub.Cancel()

	// A subscriber that fell behind must see the newest state, not a stale
	// intermediate one.
	hub.Publish(snapshot("ord-1", order.StatusPendingPickup))
	hub.Publish(snapshot("ord-1", order.StatusCompleted))

	got := receiveOne(t, sub)
	assert.Equal(t, order.StatusCompleted, got.Status)

	select {
	case o := <-sub.Updates():
		t.Fatalf("unexpected second delivery: %+v", o)
	default:
	}
}

func TestHubIsolatesOrders(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	sub := hub.Subscribe("ord-1")
	defer sub.Cancel()

	hub.Publish(snapshot("ord-2", order.StatusCompleted))

	select {
	case o := <-sub.Updates():
		t.Fatalf("received snapshot for another order: %+v", o)
	default:
	}
}

func TestHubFansOut(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	a := hub.Subscribe("ord-1")
	defer a.Cancel()
	b := hub.Subscribe("ord-1")
	defer b.Cancel()

	hub.Publish(snapshot("ord-1", order.StatusCompleted))

	assert.Equal(t, order.StatusCompleted, receiveOne(t, a).Status)
	assert.Equal(t, order.StatusCompleted, receiveOne(t, b).Status)
}

func TestHubCancel(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	sub := hub.Subscribe("ord-1")
	sub.Cancel()

	_, ok := <-sub.Updates()
	assert.False(t, ok, "channel must be closed after cancel")

	// Cancel is idempotent and a publish after cancel must not panic on the
	// closed channel.
	sub.Cancel()
	hub.Publish(snapshot("ord-1", order.StatusCompleted))
}
