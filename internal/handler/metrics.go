package handler

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/xenking/bazaar/internal/handler"

type metrics struct {
	ordersPlaced    metric.Int64Counter
	ordersRejected  metric.Int64Counter
	ordersCancelled metric.Int64Counter
	statusChanges   metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(meterName)

	var (
		m   metrics
		err error
	)
	if m.ordersPlaced, err = meter.Int64Counter("bazaar.orders.placed",
		metric.WithDescription("Orders created from carts"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.placed")
	}
	if m.ordersRejected, err = meter.Int64Counter("bazaar.orders.rejected",
		metric.WithDescription("Order placements rejected, by reason"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.rejected")
	}
	if m.ordersCancelled, err = meter.Int64Counter("bazaar.orders.cancelled",
		metric.WithDescription("Orders cancelled by customers"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.cancelled")
	}
	if m.statusChanges, err = meter.Int64Counter("bazaar.orders.status_changes",
		metric.WithDescription("Fulfillment status changes, by target status"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.status_changes")
	}
	return &m, nil
}

func (m *metrics) rejected(ctx context.Context, reason string) {
	m.ordersRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *metrics) statusChanged(ctx context.Context, status string) {
	m.statusChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
