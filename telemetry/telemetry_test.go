package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestInstrumentsRecord(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	inst, err := New(mp.Meter(Scope), nil)
	require.NoError(t, err)

	inst.Matched(ctx, "direct", 3)
	inst.Matched(ctx, "derived", 2)
	inst.Ambiguous(ctx, "derived", 1)
	inst.Fallback(ctx, 4)
	inst.Resolved(ctx, OutcomeDirect, 0)
	inst.Resolved(ctx, OutcomeAncestor, 2)
	inst.Resolved(ctx, OutcomeDropped, 0)

	metrics := collect(t, reader)
	assert.Equal(t, int64(5), sumOf(t, metrics[MetricMatched]))
	assert.Equal(t, int64(1), sumOf(t, metrics[MetricAmbiguous]))
	assert.Equal(t, int64(4), sumOf(t, metrics[MetricFallback]))
	assert.Equal(t, int64(3), sumOf(t, metrics[MetricResolved]))

	hist, ok := metrics[MetricHops].Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count, "dropped items record no hops")
}

func TestNilInstrumentsAreSafe(t *testing.T) {
	ctx := context.Background()
	var inst *Instruments
	assert.NotPanics(t, func() {
		inst.Matched(ctx, "direct", 1)
		inst.Ambiguous(ctx, "direct", 1)
		inst.Fallback(ctx, 1)
		inst.Resolved(ctx, OutcomeDirect, 0)
		_, span := inst.Start(ctx, "noop")
		span.End()
	})

	meterless, err := New(nil, nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() { meterless.Matched(ctx, "direct", 1) })
}

func TestStartUsesTracer(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	inst, err := New(nil, tp.Tracer(Scope))
	require.NoError(t, err)

	_, span := inst.Start(context.Background(), "naming.test")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "naming.test", ended[0].Name())
}
