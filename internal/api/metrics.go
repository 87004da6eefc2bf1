package api

import (
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the counters the handlers report business events on.
type Metrics struct {
	OrdersCreated     metric.Int64Counter
	PaymentFailures   metric.Int64Counter
	Scans             metric.Int64Counter
	DispenseConflicts metric.Int64Counter
}

// NewMetrics registers the handler counters on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	ordersCreated, err := meter.Int64Counter("storefront.orders_created",
		metric.WithDescription("Orders created by successful checkouts"))
	if err != nil {
		return nil, errors.Wrap(err, "orders_created counter")
	}
	paymentFailures, err := meter.Int64Counter("storefront.payment_failures",
		metric.WithDescription("Checkouts rejected by the payment gateway"))
	if err != nil {
		return nil, errors.Wrap(err, "payment_failures counter")
	}
	scans, err := meter.Int64Counter("storefront.pickup_scans",
		metric.WithDescription("Codes scanned at pickup terminals"))
	if err != nil {
		return nil, errors.Wrap(err, "pickup_scans counter")
	}
	dispenseConflicts, err := meter.Int64Counter("storefront.dispense_conflicts",
		metric.WithDescription("Dispense attempts that lost to a concurrent terminal"))
	if err != nil {
		return nil, errors.Wrap(err, "dispense_conflicts counter")
	}

	return &Metrics{
		OrdersCreated:     ordersCreated,
		PaymentFailures:   paymentFailures,
		Scans:             scans,
		DispenseConflicts: dispenseConflicts,
	}, nil
}
