package reconcile

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/livetrack/mapview/internal/reconcile"

type metrics struct {
	passes    metric.Int64Counter
	failures  metric.Int64Counter
	mutations metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	m := otel.Meter(instrumentationName)
	var (
		out metrics
		err error
	)
	out.passes, err = m.Int64Counter(
		"reconcile.passes",
		metric.WithDescription("Total reconciliation passes"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating passes counter: %w", err)
	}
	out.failures, err = m.Int64Counter(
		"reconcile.failures",
		metric.WithDescription("Reconciliation passes stopped by a surface error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failures counter: %w", err)
	}
	out.mutations, err = m.Int64Counter(
		"reconcile.mutations",
		metric.WithDescription("Surface mutations issued, by entity kind and operation"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating mutations counter: %w", err)
	}
	return &out, nil
}

func (m *metrics) record(ctx context.Context, r Result, err error) {
	m.passes.Add(ctx, 1)
	if err != nil {
		m.failures.Add(ctx, 1)
	}
	for op, counts := range map[string]Counts{"add": r.Added, "update": r.Updated, "remove": r.Removed} {
		for kind, n := range counts {
			m.mutations.Add(ctx, int64(n), metric.WithAttributes(
				attribute.String("kind", kind.String()),
				attribute.String("op", op),
			))
		}
	}
}
