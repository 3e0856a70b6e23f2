package cache

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/grocery-agent-core/server/pkg/telemetry"
)

type gatewayMetrics struct {
	lookups metric.Int64Counter
	writes  metric.Int64Counter
}

func newGatewayMetrics() *gatewayMetrics {
	meter := otel.Meter(telemetry.InstrumentationName)
	// instrument creation only fails on invalid names; the returned no-op
	// instrument is still safe to use
	lookups, _ := meter.Int64Counter("cache.lookups",
		metric.WithDescription("Semantic cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	writes, _ := meter.Int64Counter("cache.writes",
		metric.WithDescription("Semantic cache writes by result"),
		metric.WithUnit("{write}"),
	)
	return &gatewayMetrics{lookups: lookups, writes: writes}
}

func (m *gatewayMetrics) lookup(ctx context.Context, result string) {
	m.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *gatewayMetrics) write(ctx context.Context, result string) {
	m.writes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
