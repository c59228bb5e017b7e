// Package telemetry holds the OpenTelemetry instruments shared by matching
// and resolution.
//
// Instruments are created once from a Meter and a Tracer and passed down
// explicitly. Every method is safe on a nil *Instruments, which records
// nothing, so callers never need to check whether telemetry is configured.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Instrumentation scope name.
const Scope = "github.com/cadseer/naming"

// Metric names.
const (
	MetricMatched   = "naming.match.parts"
	MetricAmbiguous = "naming.match.ambiguous"
	MetricFallback  = "naming.match.fallback"
	MetricResolved  = "naming.resolve.items"
	MetricHops      = "naming.resolve.lineage_hops"
)

// Resolution outcomes recorded with MetricResolved.
const (
	OutcomeDirect   = "direct"
	OutcomeAncestor = "ancestor"
	OutcomeDropped  = "dropped"
)

// Instruments bundles the tracer and metric instruments.
type Instruments struct {
	tracer    trace.Tracer
	matched   metric.Int64Counter
	ambiguous metric.Int64Counter
	fallback  metric.Int64Counter
	resolved  metric.Int64Counter
	hops      metric.Int64Histogram
}

// New creates the instruments. Either argument may be nil to disable that
// half of the telemetry.
func New(meter metric.Meter, tracer trace.Tracer) (*Instruments, error) {
	inst := &Instruments{tracer: tracer}
	if meter == nil {
		return inst, nil
	}

	var err error
	inst.matched, err = meter.Int64Counter(
		MetricMatched,
		metric.WithDescription("Parts identified, by matching strategy"),
		metric.WithUnit("{part}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create matched counter: %w", err)
	}

	inst.ambiguous, err = meter.Int64Counter(
		MetricAmbiguous,
		metric.WithDescription("Ambiguous matches skipped, by matching strategy"),
		metric.WithUnit("{part}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ambiguous counter: %w", err)
	}

	inst.fallback, err = meter.Int64Counter(
		MetricFallback,
		metric.WithDescription("Parts given a fresh identifier with no lineage"),
		metric.WithUnit("{part}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create fallback counter: %w", err)
	}

	inst.resolved, err = meter.Int64Counter(
		MetricResolved,
		metric.WithDescription("Referenced identifiers resolved, by outcome"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create resolved counter: %w", err)
	}

	inst.hops, err = meter.Int64Histogram(
		MetricHops,
		metric.WithDescription("Ancestor hops needed to resolve a referenced identifier"),
		metric.WithUnit("{hop}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create hops histogram: %w", err)
	}

	return inst, nil
}

// Tracer returns the configured tracer, or a no-op tracer.
func (i *Instruments) Tracer() trace.Tracer {
	if i == nil || i.tracer == nil {
		return noop.NewTracerProvider().Tracer(Scope)
	}
	return i.tracer
}

// Start opens a span.
func (i *Instruments) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return i.Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// Matched records n parts identified by strategy.
func (i *Instruments) Matched(ctx context.Context, strategy string, n int) {
	if i == nil || i.matched == nil || n == 0 {
		return
	}
	i.matched.Add(ctx, int64(n), metric.WithAttributes(attribute.String("strategy", strategy)))
}

// Ambiguous records n ambiguous candidates skipped by strategy.
func (i *Instruments) Ambiguous(ctx context.Context, strategy string, n int) {
	if i == nil || i.ambiguous == nil || n == 0 {
		return
	}
	i.ambiguous.Add(ctx, int64(n), metric.WithAttributes(attribute.String("strategy", strategy)))
}

// Fallback records n parts named by the fallback.
func (i *Instruments) Fallback(ctx context.Context, n int) {
	if i == nil || i.fallback == nil || n == 0 {
		return
	}
	i.fallback.Add(ctx, int64(n))
}

// Resolved records one resolved item with its outcome and lineage hop count.
func (i *Instruments) Resolved(ctx context.Context, outcome string, hops int) {
	if i == nil {
		return
	}
	if i.resolved != nil {
		i.resolved.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if i.hops != nil && outcome != OutcomeDropped {
		i.hops.Record(ctx, int64(hops))
	}
}
