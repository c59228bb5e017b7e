package feature

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadseer/naming/diag"
	"github.com/cadseer/naming/history"
	"github.com/cadseer/naming/ident"
	"github.com/cadseer/naming/match"
	"github.com/cadseer/naming/topo/synth"
)

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// boxRoles are the anchored roles of a box feature. Wires are left to the
// outer boundary strategy.
func boxRoles() []string {
	roles := []string{"compound", "solid", "shell"}
	for _, side := range synth.BoxFaces {
		roles = append(roles, "face."+side)
	}
	for i := 0; i < 12; i++ {
		roles = append(roles, fmt.Sprintf("edge.%02d", i))
	}
	for i := 0; i < 8; i++ {
		roles = append(roles, fmt.Sprintf("vertex.%d", i))
	}
	return roles
}

func evalBox(t *testing.T, f ident.FeatureID, size float64, prev *Result) *Result {
	t.Helper()
	shape, parts := synth.Box(size, 1, 1)
	e := Begin(f, shape, prev, quiet())
	for _, role := range boxRoles() {
		_, err := e.BindAnchor(role, parts[role])
		require.NoError(t, err, role)
	}
	e.Match(context.Background(), match.Plan{{Kind: match.Direct}, {Kind: match.OuterBoundary}})
	return e.Finish(context.Background())
}

func TestBoxAnchorsStable(t *testing.T) {
	f := ident.NewFeature()
	first := evalBox(t, f, 1, nil)
	second := evalBox(t, f, 2, first)

	for _, r := range []*Result{first, second} {
		assert.NotNil(t, r.Shape)
		assert.Nil(t, r.Ledger.Prior(), "finished ledgers drop their prior")
		assert.False(t, r.Degraded)
		assert.Empty(t, r.Diagnostics.Errors())
		assert.Zero(t, r.Report.Fallback)
	}

	for _, role := range boxRoles() {
		a, ok := first.Anchor(role)
		require.True(t, ok)
		b, ok := second.Anchor(role)
		require.True(t, ok)
		assert.Equal(t, a, b, role)
		assert.Equal(t, ident.DeriveAnchor(f, role), a)
		assert.False(t, second.Ledger.HasTarget(b), "%s has no records", role)
		assert.True(t, second.Ledger.IsAnchored(b))
	}
	assert.Len(t, second.Ledger.Anchored(), 29)

	// Only the six outer wires carry records, each from its previous self.
	records := second.Ledger.Records()
	require.Len(t, records, 6)
	for _, r := range records {
		assert.Equal(t, r.Source, r.Target)
		assert.True(t, first.Graph.HasID(r.Source))
	}
}

func TestFinishPrunesDangling(t *testing.T) {
	shape, _ := synth.Box(1, 1, 1)
	e := Begin(ident.NewFeature(), shape, nil, quiet())
	ghost := ident.New()
	e.Ledger().Insert(ident.Nil, ghost)
	e.Match(context.Background(), nil)

	r := e.Finish(context.Background())
	assert.True(t, r.Diagnostics.Has(diag.CodeDangling))
	assert.False(t, r.Ledger.HasTarget(ghost))
	assert.False(t, r.Degraded)
	assert.True(t, r.Graph.Frozen())
}

func TestFinishUnknownSource(t *testing.T) {
	shape, parts := synth.Box(1, 1, 1)
	e := Begin(ident.NewFeature(), shape, nil, quiet())
	id := ident.New()
	require.NoError(t, e.Graph().Assign(parts["solid"], id))
	e.Ledger().Insert(ident.New(), id)
	e.Match(context.Background(), nil)

	r := e.Finish(context.Background())
	assert.True(t, r.Diagnostics.Has(diag.CodeUnknownSource))
	assert.True(t, r.Degraded)
	for _, d := range r.Diagnostics {
		assert.Equal(t, r.Feature, d.Feature)
	}
}

func TestFinishMissingRecord(t *testing.T) {
	shape, parts := synth.Box(1, 1, 1)
	e := Begin(ident.NewFeature(), shape, nil, quiet())
	require.NoError(t, e.Graph().Assign(parts["solid"], ident.New()))
	e.Match(context.Background(), nil)

	r := e.Finish(context.Background())
	assert.Equal(t, 1, r.Diagnostics.Count(diag.CodeNoRecord))
	assert.True(t, r.Degraded)
}

func TestFinishTwicePanics(t *testing.T) {
	shape, _ := synth.Box(1, 1, 1)
	e := Begin(ident.NewFeature(), shape, nil, quiet())
	e.Match(context.Background(), nil)
	e.Finish(context.Background())
	assert.Panics(t, func() { e.Finish(context.Background()) })
}

func TestConsumeSplit(t *testing.T) {
	base := evalBox(t, ident.NewFeature(), 2, nil)
	shape, parts := synth.Box(2, 1, 1)
	cut, hist := synth.SplitEdge(shape, parts["edge.00"], "(1,0,0)")

	e := Begin(ident.NewFeature(), cut, nil, quiet())
	e.Consume("base", base, hist)
	report := e.Match(context.Background(), match.DefaultPlan("base"))
	r := e.Finish(context.Background())

	assert.Zero(t, report.Fallback)
	assert.False(t, r.Degraded)
	assert.Empty(t, r.Diagnostics.Errors())

	edge, _ := base.Anchor("edge.00")
	assert.Len(t, r.Ledger.Evolve(edge), 3)
	for _, rec := range r.Ledger.Records() {
		require.False(t, rec.Source.IsNil())
		assert.True(t, base.Graph.HasID(rec.Source))
	}
}

func TestBindAnchorUnknownPart(t *testing.T) {
	shape, _ := synth.Box(1, 1, 1)
	_, other := synth.Box(3, 3, 3)
	e := Begin(ident.NewFeature(), shape, nil, quiet())
	_, err := e.BindAnchor("face.xmax", other["face.xmax"])
	assert.Error(t, err)
}

func TestPayload(t *testing.T) {
	f, gone := ident.NewFeature(), ident.NewFeature()
	r := evalBox(t, f, 1, nil)
	g := history.New()
	g.AppendLedger(f, r.Ledger)

	p := NewPayload(g, map[ident.FeatureID]*Result{f: r}, gone)
	got, ok := p.Result(f)
	require.True(t, ok)
	assert.Same(t, r, got)
	assert.Equal(t, []ident.FeatureID{f}, p.Features())
	assert.True(t, p.Removed(gone))
	assert.False(t, p.Removed(f))

	g.RemoveFeature(f)
	assert.True(t, p.Removed(f))
	assert.NotNil(t, p.History())
}
