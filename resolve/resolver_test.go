package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/cadseer/naming/diag"
	"github.com/cadseer/naming/feature"
	"github.com/cadseer/naming/history"
	"github.com/cadseer/naming/ident"
	"github.com/cadseer/naming/match"
	"github.com/cadseer/naming/pick"
	"github.com/cadseer/naming/telemetry"
	"github.com/cadseer/naming/topo"
	"github.com/cadseer/naming/topo/synth"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// model is a tiny hand-driven project: a box and the features built on it.
type model struct {
	t       *testing.T
	g       *history.Graph
	results map[ident.FeatureID]*feature.Result
	removed []ident.FeatureID

	box   ident.FeatureID
	shape *synth.Shape
	roles map[string]*synth.Part
}

func newModel(t *testing.T) *model {
	t.Helper()
	m := &model{
		t:       t,
		g:       history.New(history.WithLogger(quietLogger())),
		results: make(map[ident.FeatureID]*feature.Result),
		box:     ident.NewFeature(),
	}
	m.shape, m.roles = synth.Box(2, 1, 1)
	e := feature.Begin(m.box, m.shape, nil, feature.WithLogger(quietLogger()))
	for role, part := range m.roles {
		if part.Kind() == topo.Wire {
			continue
		}
		_, err := e.BindAnchor(role, part)
		require.NoError(t, err)
	}
	e.Match(context.Background(), match.Plan{{Kind: match.OuterBoundary}})
	m.commit(e.Finish(context.Background()))
	return m
}

func (m *model) commit(r *feature.Result) {
	m.t.Helper()
	require.False(m.t, r.Degraded, "%v", r.Diagnostics)
	m.results[r.Feature] = r
	m.g.AppendLedger(r.Feature, r.Ledger)
}

// derive evaluates a feature that consumed the box through hist.
func (m *model) derive(f ident.FeatureID, shape topo.Shape, hist topo.Modifier, prev *feature.Result) *feature.Result {
	m.t.Helper()
	e := feature.Begin(f, shape, prev, feature.WithLogger(quietLogger()))
	e.Consume("base", m.results[m.box], hist)
	e.Match(context.Background(), match.DefaultPlan("base"))
	r := e.Finish(context.Background())
	m.commit(r)
	return r
}

func (m *model) anchor(role string) ident.ID {
	id, ok := m.results[m.box].Anchor(role)
	require.True(m.t, ok, role)
	return id
}

func (m *model) payload() *feature.Payload {
	return feature.NewPayload(m.g, m.results, m.removed...)
}

func newResolver() *Resolver {
	return New(WithLogger(quietLogger()))
}

func TestResolveInOrigin(t *testing.T) {
	m := newModel(t)
	edge := m.anchor("edge.00")
	ref := pick.New(m.box, m.g, pick.SelectPart, edge)

	set, err := newResolver().Resolve(context.Background(), ref, m.payload())
	require.NoError(t, err)
	assert.Equal(t, []ident.ID{edge}, set.IDs())
	assert.Equal(t, OK, set.Verdict)
	assert.Empty(t, set.Diagnostics)
}

func TestResolveOneOfThreeSplit(t *testing.T) {
	m := newModel(t)
	split := ident.NewFeature()
	cut, hist := synth.SplitEdge(m.shape, m.roles["edge.00"], "(1,0,0)")
	res := m.derive(split, cut, hist, nil)

	ref := pick.New(m.box, m.g, pick.SelectPart, m.anchor("edge.00"), m.anchor("edge.01"), m.anchor("edge.02"))
	set, err := newResolver().Resolve(context.Background(), ref, m.payload(), WithTarget(split))
	require.NoError(t, err)

	require.Len(t, set.Items, 3)
	assert.Len(t, set.Items[0].IDs, 2)
	assert.Len(t, set.Items[1].IDs, 1)
	assert.Len(t, set.Items[2].IDs, 1)
	assert.Equal(t, split, set.Target)
	assert.Equal(t, 1, set.Diagnostics.Count(diag.CodeSplit))

	halves := hist.Modified(m.roles["edge.00"])
	parts := set.Parts(res.Graph)
	assert.Len(t, parts, 4)
	for _, h := range halves {
		id, ok := res.Graph.IdentifierOf(h)
		require.True(t, ok)
		assert.Contains(t, set.Items[0].IDs, id)
	}
	for _, it := range set.Items[1:] {
		part, ok := res.Graph.Lookup(it.IDs[0])
		require.True(t, ok)
		assert.Equal(t, topo.Edge, part.Kind())
	}
}

func TestResolveDeletedEdge(t *testing.T) {
	m := newModel(t)
	cutter := ident.NewFeature()
	cut, hist := synth.RemovePart(m.shape, m.roles["edge.03"])
	m.derive(cutter, cut, hist, nil)

	ref := pick.New(m.box, m.g, pick.SelectPart, m.anchor("edge.03"))
	set, err := newResolver().Resolve(context.Background(), ref, m.payload(), WithTarget(cutter))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvable)
	assert.Equal(t, NothingResolved, ReasonOf(err))

	require.NotNil(t, set)
	assert.Empty(t, set.IDs())
	assert.True(t, set.Items[0].Dropped())
	assert.True(t, set.Diagnostics.Has(diag.CodeDropped))
	assert.Equal(t, Fatal, set.Verdict)
}

func TestResolvePartialDrop(t *testing.T) {
	m := newModel(t)
	cutter := ident.NewFeature()
	cut, hist := synth.RemovePart(m.shape, m.roles["edge.03"])
	m.derive(cutter, cut, hist, nil)

	ref := pick.New(m.box, m.g, pick.SelectPart, m.anchor("edge.03"), m.anchor("edge.01"))
	set, err := newResolver().Resolve(context.Background(), ref, m.payload(), WithTarget(cutter))
	require.NoError(t, err)
	assert.Equal(t, Warn, set.Verdict)
	assert.Len(t, set.IDs(), 1)
	assert.Equal(t, Counts{Requested: 2, Resolved: 1, Dropped: 1}, set.Counts())
}

func TestResolveViaAncestor(t *testing.T) {
	m := newModel(t)
	f := ident.NewFeature()
	same, _ := synth.Box(2, 1, 1)
	first := m.derive(f, same, nil, nil)

	face, ok := first.Graph.IdentifierOf(m.roles["face.zmax"])
	require.True(t, ok)
	ref := pick.New(f, m.g, pick.SelectPart, face)

	// Re-evaluated without its previous result, the feature names everything
	// afresh; only the lineage through the box connects old and new.
	second := m.derive(f, same, nil, nil)
	now, ok := second.Graph.IdentifierOf(m.roles["face.zmax"])
	require.True(t, ok)
	require.NotEqual(t, face, now)

	set, err := newResolver().Resolve(context.Background(), ref, m.payload())
	require.NoError(t, err)
	require.Len(t, set.Items, 1)
	assert.Equal(t, []ident.ID{now}, set.Items[0].IDs)
	assert.True(t, set.Items[0].ViaAncestor)
	assert.Equal(t, 1, set.Items[0].Hops)
	assert.True(t, set.Diagnostics.Has(diag.CodeViaAncestor))

	// Compaction drops the superseded node; its fragment still leads back.
	assert.Positive(t, m.g.Compact(1))
	require.False(t, m.g.Has(history.Node{Feature: f, ID: face}))
	set, err = newResolver().Resolve(context.Background(), ref, m.payload())
	require.NoError(t, err)
	assert.Equal(t, []ident.ID{now}, set.IDs())
}

func TestResolveTrimmedHalfIsDropped(t *testing.T) {
	ctx := context.Background()
	m := newModel(t)
	split := ident.NewFeature()
	cut, hist := synth.SplitEdge(m.shape, m.roles["edge.00"], "(1,0,0)")
	sres := m.derive(split, cut, hist, nil)

	halves := hist.Modified(m.roles["edge.00"])
	require.Len(t, halves, 2)
	left, ok := sres.Graph.IdentifierOf(halves[0])
	require.True(t, ok)
	right, ok := sres.Graph.IdentifierOf(halves[1])
	require.True(t, ok)

	// A second feature trims the left half away. The right half shares its
	// ancestor, the box edge, and must not stand in for it.
	trim := ident.NewFeature()
	rest, thist := synth.RemovePart(cut, halves[0].(*synth.Part))
	e := feature.Begin(trim, rest, nil, feature.WithLogger(quietLogger()))
	e.Consume("base", sres, thist)
	e.Match(ctx, match.DefaultPlan("base"))
	m.commit(e.Finish(ctx))

	ref := pick.New(split, m.g, pick.SelectPart, left)
	set, err := newResolver().Resolve(ctx, ref, m.payload(), WithTarget(trim))
	require.Error(t, err)
	assert.Equal(t, NothingResolved, ReasonOf(err))
	require.NotNil(t, set)
	assert.Empty(t, set.IDs())
	assert.False(t, set.Items[0].ViaAncestor)

	kept := pick.New(split, m.g, pick.SelectPart, right)
	set, err = newResolver().Resolve(ctx, kept, m.payload(), WithTarget(trim))
	require.NoError(t, err)
	require.Len(t, set.IDs(), 1)
	assert.False(t, set.Items[0].ViaAncestor)
	assert.NotEqual(t, left, set.IDs()[0])
}

func TestResolveWholeShape(t *testing.T) {
	m := newModel(t)
	set, err := newResolver().Resolve(context.Background(), pick.WholeShape(m.box), m.payload())
	require.NoError(t, err)
	assert.Equal(t, []ident.ID{m.results[m.box].Root()}, set.IDs())
	assert.Equal(t, m.anchor("compound"), set.IDs()[0])
}

func TestResolveFeatureGone(t *testing.T) {
	m := newModel(t)
	ref := pick.New(m.box, m.g, pick.SelectPart, m.anchor("edge.00"))

	m.removed = append(m.removed, m.box)
	_, err := newResolver().Resolve(context.Background(), ref, m.payload())
	assert.Equal(t, FeatureGone, ReasonOf(err))
	assert.ErrorIs(t, err, &Unresolvable{Reason: FeatureGone})

	m.removed = nil
	m.g.RemoveFeature(m.box)
	_, err = newResolver().Resolve(context.Background(), ref, m.payload())
	assert.Equal(t, FeatureGone, ReasonOf(err))
}

func TestResolveNotEvaluated(t *testing.T) {
	m := newModel(t)
	ref := pick.New(m.box, m.g, pick.SelectPart, m.anchor("edge.00"))

	set, err := newResolver().Resolve(context.Background(), ref, m.payload(), WithTarget(ident.NewFeature()))
	assert.Nil(t, set)
	assert.Equal(t, NotEvaluated, ReasonOf(err))
	assert.False(t, errors.Is(err, &Unresolvable{Reason: FeatureGone}))
}

func TestResolveIdempotent(t *testing.T) {
	m := newModel(t)
	split := ident.NewFeature()
	cut, hist := synth.SplitEdge(m.shape, m.roles["edge.00"], "(1,0,0)")
	m.derive(split, cut, hist, nil)

	r := newResolver()
	ref := pick.New(m.box, m.g, pick.SelectPart, m.anchor("edge.00"))
	first, err := r.Resolve(context.Background(), ref, m.payload(), WithTarget(split))
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), ref, m.payload(), WithTarget(split))
	require.NoError(t, err)
	assert.Equal(t, first.Items, second.Items)

	// Reconverted references resolve to themselves.
	fresh := Reconvert(first, m.g)
	assert.Equal(t, split, fresh.Origin)
	again, err := r.Resolve(context.Background(), fresh, m.payload())
	require.NoError(t, err)
	assert.Equal(t, first.IDs(), again.IDs())
}

func TestReconvertKeepsSelection(t *testing.T) {
	m := newModel(t)
	ref := pick.New(m.box, m.g, pick.SelectParameter, m.anchor("face.zmax"))
	ref.U, ref.V, ref.Tag = 0.5, 0.25, "face"
	set, err := newResolver().Resolve(context.Background(), ref, m.payload())
	require.NoError(t, err)

	fresh := Reconvert(set, m.g)
	assert.Equal(t, pick.SelectParameter, fresh.Selection)
	assert.Equal(t, 0.5, fresh.U)
	assert.Equal(t, 0.25, fresh.V)
	assert.Equal(t, "face", fresh.Tag)

	whole, err := newResolver().Resolve(context.Background(), pick.WholeShape(m.box), m.payload())
	require.NoError(t, err)
	assert.True(t, Reconvert(whole, m.g).IsWholeShape())
}

func TestResolveRejectedByPolicy(t *testing.T) {
	m := newModel(t)
	cutter := ident.NewFeature()
	cut, hist := synth.RemovePart(m.shape, m.roles["edge.03"])
	m.derive(cutter, cut, hist, nil)

	strict, err := NewPolicy("dropped > 0", "")
	require.NoError(t, err)
	r := New(WithLogger(quietLogger()), WithPolicy(strict))

	ref := pick.New(m.box, m.g, pick.SelectPart, m.anchor("edge.03"), m.anchor("edge.01"))
	set, err := r.Resolve(context.Background(), ref, m.payload(), WithTarget(cutter))
	assert.Equal(t, Rejected, ReasonOf(err))
	require.NotNil(t, set)
	assert.Len(t, set.IDs(), 1)
}

func TestResolveSpan(t *testing.T) {
	m := newModel(t)
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	inst, err := telemetry.New(nil, tp.Tracer(telemetry.Scope))
	require.NoError(t, err)

	r := New(WithLogger(quietLogger()), WithInstruments(inst))
	ref := pick.New(m.box, m.g, pick.SelectPart, m.anchor("edge.00"))
	_, err = r.Resolve(context.Background(), ref, m.payload())
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "naming.resolve", spans[0].Name())
}

func TestUnresolvableError(t *testing.T) {
	f := ident.NewFeature()
	err := fmt.Errorf("wrap: %w", &Unresolvable{Reason: NotEvaluated, Feature: f, Reference: pick.WholeShape(f)})
	assert.ErrorIs(t, err, ErrUnresolvable)
	assert.Equal(t, NotEvaluated, ReasonOf(err))
	assert.Contains(t, err.Error(), "feature not evaluated")
	assert.Zero(t, ReasonOf(errors.New("other")))
	assert.Equal(t, "reason(9)", Reason(9).String())
}
