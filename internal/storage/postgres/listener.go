package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/baminaj/storefront/internal/domain/order"
)

const orderChangesChannel = "order_changes"

// OrderListener follows the orders change feed. The schema trigger emits
// pg_notify(order_changes, id) for every insert and update; notifications
// are delivered only after the writing transaction commits, so snapshots
// fetched here always reflect committed state, in commit order.
type OrderListener struct {
	pool   *pgxpool.Pool
	orders *OrderRepository

	// OnChange receives the committed snapshot of every changed order.
	OnChange func(o order.Order)
	// OnSync receives every committed order id after each (re)connect,
	// before OnStateChange(true). Orders committed while the feed was down
	// produce no notification, so consumers that mirror the id set must
	// rebuild it from this backfill rather than trust deltas alone.
	OnSync func(ids []string)
	// OnStateChange reports feed health: false when the listening connection
	// is lost, true once LISTEN is re-established and OnSync has run.
	OnStateChange func(healthy bool)

	retryDelay time.Duration
}

// NewOrderListener creates a listener over the given pool.
func NewOrderListener(pool *pgxpool.Pool, orders *OrderRepository) *OrderListener {
	return &OrderListener{
		pool:       pool,
		orders:     orders,
		retryDelay: 3 * time.Second,
	}
}

// Run listens for order change notifications until ctx is cancelled. A lost
// connection is reported through OnStateChange and retried; Run only returns
// on context cancellation.
func (l *OrderListener) Run(ctx context.Context) error {
	lg := zctx.From(ctx)
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lg.Warn("Order change feed interrupted, reconnecting",
			zap.Error(err),
			zap.Duration("retry_delay", l.retryDelay),
		)
		l.setHealthy(false)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}
}

func (l *OrderListener) listen(ctx context.Context) error {
	pc, err := l.pool.Acquire(ctx)
	if err != nil {
		return errors.Wrap(err, "acquire listener connection")
	}
	// The connection is dedicated to LISTEN for its whole lifetime, so take
	// it out of the pool and tear it down rather than release it.
	conn := pc.Hijack()
	defer conn.Close(context.WithoutCancel(ctx))

	if _, err := conn.Exec(ctx, "LISTEN "+orderChangesChannel); err != nil {
		return errors.Wrap(err, "listen")
	}

	// Backfill after LISTEN is active: anything committed from here on is
	// covered by a notification, so the two together leave no gap.
	if l.OnSync != nil {
		ids, err := l.orders.ListIDs(ctx)
		if err != nil {
			return errors.Wrap(err, "backfill order ids")
		}
		l.OnSync(ids)
	}
	l.setHealthy(true)
	zctx.From(ctx).Info("Order change feed connected")

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return errors.Wrap(err, "wait for notification")
		}
		l.dispatch(ctx, n.Payload)
	}
}

func (l *OrderListener) dispatch(ctx context.Context, orderID string) {
	if l.OnChange == nil {
		return
	}
	o, err := l.orders.GetByID(ctx, orderID)
	if err != nil {
		zctx.From(ctx).Warn("Fetching changed order failed",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		return
	}
	l.OnChange(*o)
}

func (l *OrderListener) setHealthy(healthy bool) {
	if l.OnStateChange != nil {
		l.OnStateChange(healthy)
	}
}
