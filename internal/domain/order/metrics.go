package order

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/franchise-orders/internal/failure"
)

const instrumentationName = "github.com/xenking/franchise-orders/internal/domain/order"

type metrics struct {
	operations metric.Int64Counter
	duration   metric.Float64Histogram
}

func newMetrics(mp metric.MeterProvider, lg *zap.Logger) *metrics {
	meter := mp.Meter(instrumentationName)

	var m metrics
	var err error
	m.operations, err = meter.Int64Counter(
		"orders.operations",
		metric.WithDescription("Order engine operations by outcome"),
	)
	if err != nil {
		lg.Warn("Unable to register operations counter", zap.Error(err))
	}
	m.duration, err = meter.Float64Histogram(
		"orders.operation.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Order engine operation latency"),
	)
	if err != nil {
		lg.Warn("Unable to register duration histogram", zap.Error(err))
	}
	return &m
}

func (m *metrics) record(ctx context.Context, op string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(failure.KindOf(err))
	}
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	)
	if m.operations != nil {
		m.operations.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
	}
}
