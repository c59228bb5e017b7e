package naming

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/cadseer/naming/config"
	"github.com/cadseer/naming/ident"
	"github.com/cadseer/naming/pick"
	"github.com/cadseer/naming/project"
	"github.com/cadseer/naming/resolve"
	"github.com/cadseer/naming/telemetry"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, err := New(append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

// bracket builds a project with a box and a split of its first edge.
func bracket(t *testing.T, svc *Service) (*project.Project, *project.Box, *project.Split) {
	t.Helper()
	ctx := context.Background()
	p := svc.NewProject()
	box := project.NewBox(2, 1, 1)
	require.NoError(t, p.Add(box))
	require.NoError(t, p.Update(ctx))

	r, _ := p.Result(box.ID())
	edge, ok := r.Anchor("edge.00")
	require.True(t, ok)
	split := project.NewSplit(box.ID(), pick.New(box.ID(), p.History(), pick.SelectPart, edge), "cut")
	require.NoError(t, p.Add(split))
	require.NoError(t, p.Update(ctx))
	return p, box, split
}

func TestServiceDefaults(t *testing.T) {
	svc := newService(t)
	assert.Equal(t, config.BackendMemory, svc.Config().Store.GetBackend())
	assert.Equal(t, resolve.DefaultPolicy().String(), svc.Resolver().Policy().String())
	assert.NotNil(t, svc.Store())
}

func TestServicePersistsHistory(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	p, _, split := bracket(t, svc)

	require.NoError(t, svc.SaveHistory(ctx, "bracket", p.History()))
	back, err := svc.LoadHistory(ctx, "bracket")
	require.NoError(t, err)
	assert.True(t, p.History().Equal(back))

	require.NoError(t, svc.SaveReference(ctx, "bracket", "split.edge", split.Edge))
	names, err := svc.ListReferences(ctx, "bracket")
	require.NoError(t, err)
	assert.Equal(t, []string{"split.edge"}, names)

	ref, err := svc.LoadReference(ctx, "bracket", "split.edge")
	require.NoError(t, err)

	// A reference read back resolves against the live project.
	set, err := svc.Resolve(ctx, ref, p.Payload(), resolve.WithTarget(split.ID()))
	require.NoError(t, err)
	assert.Len(t, set.IDs(), 2)

	require.NoError(t, svc.DeleteReference(ctx, "bracket", "split.edge"))
	_, err = svc.LoadReference(ctx, "bracket", "split.edge")
	assert.ErrorIs(t, err, &Error{Kind: KindNotFound})
}

func TestServiceNotFound(t *testing.T) {
	svc := newService(t)
	_, err := svc.LoadHistory(context.Background(), "missing")
	assert.ErrorIs(t, err, &Error{Op: "Service.LoadHistory", Kind: KindNotFound})

	err = svc.SaveReference(context.Background(), "a/b", "x", pick.WholeShape(ident.NewFeature()))
	assert.ErrorIs(t, err, &Error{Kind: KindValidation})
}

func TestServiceResolveUnresolvable(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	p, box, _ := bracket(t, svc)

	r, _ := p.Result(box.ID())
	face, _ := r.Anchor("face.zmax")
	ref := pick.New(box.ID(), p.History(), pick.SelectPart, face)
	require.NoError(t, p.Remove(box.ID()))

	set, err := svc.Resolve(ctx, ref, p.Payload())
	assert.Nil(t, set)
	require.Error(t, err)
	assert.ErrorIs(t, err, &Error{Kind: KindUnresolvable})
	assert.ErrorIs(t, err, resolve.ErrUnresolvable)
	assert.Equal(t, resolve.FeatureGone, resolve.ReasonOf(err))

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "feature_gone", e.Context["reason"])
}

func TestServiceConfiguredPolicy(t *testing.T) {
	fatal := "via_ancestor > 0"
	cfg := &config.Config{Resolve: &config.ResolveConfig{Fatal: &fatal}}
	svc := newService(t, WithConfig(cfg))
	assert.Contains(t, svc.Resolver().Policy().String(), "via_ancestor > 0")
}

func TestServiceRejectsBadConfig(t *testing.T) {
	_, err := New(WithLogger(quietLogger()), WithConfig(&config.Config{
		Store: &config.StoreConfig{Backend: "tape"},
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, &Error{Kind: KindConfiguration})

	_, err = New(WithLogger(quietLogger()), WithConfigPath(t.TempDir()))
	assert.ErrorIs(t, err, config.ErrNoConfig)
}

func TestServiceConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "store:\n  backend: badger\n  path: " + filepath.Join(dir, "db") + "\nhistory:\n  compact_keep: 1\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(yaml), 0o600))

	svc := newService(t, WithConfigPath(dir))
	assert.Equal(t, config.BackendBadger, svc.Config().Store.GetBackend())
	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestServiceRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{Store: &config.StoreConfig{Backend: config.BackendRedis, RedisURL: "redis://" + mr.Addr()}}
	svc := newService(t, WithConfig(cfg))
	p, _, _ := bracket(t, svc)

	require.NoError(t, svc.SaveHistory(context.Background(), "bracket", p.History()))
	assert.True(t, mr.Exists("naming:bracket:history"))
}

func TestServiceTelemetry(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	svc := newService(t,
		WithTracer(tp.Tracer(telemetry.Scope)),
		WithMeter(mp.Meter(telemetry.Scope)))
	p, box, _ := bracket(t, svc)

	r, _ := p.Result(box.ID())
	edge, _ := r.Anchor("edge.01")
	_, err := svc.Resolve(context.Background(), pick.New(box.ID(), p.History(), pick.SelectPart, edge), p.Payload())
	require.NoError(t, err)

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "naming.resolve")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var metrics []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			metrics = append(metrics, m.Name)
		}
	}
	assert.Contains(t, metrics, telemetry.MetricResolved)
}

func TestServiceClosed(t *testing.T) {
	svc, err := New(WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())

	_, err = svc.LoadHistory(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestServiceHealth(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	assert.True(t, svc.Health(ctx).IsHealthy())

	mr := miniredis.RunT(t)
	cfg := &config.Config{Store: &config.StoreConfig{Backend: config.BackendRedis, RedisURL: "redis://" + mr.Addr()}}
	rsvc := newService(t, WithConfig(cfg))
	status := rsvc.Health(ctx)
	assert.True(t, status.IsHealthy(), status.String())

	require.NoError(t, svc.Close())
	assert.True(t, svc.Health(ctx).IsUnhealthy())
}

func TestEndpointAddress(t *testing.T) {
	assert.Equal(t, "localhost:2379", endpointAddress("http://localhost:2379"))
	assert.Equal(t, "10.0.0.1:2379", endpointAddress("10.0.0.1:2379"))
}
