// Package storetest holds the behavior every store.Store backend must share.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadseer/naming/evolve"
	"github.com/cadseer/naming/history"
	"github.com/cadseer/naming/ident"
	"github.com/cadseer/naming/pick"
	"github.com/cadseer/naming/store"
)

// Graph returns a small two-feature history graph.
func Graph() (*history.Graph, ident.FeatureID, ident.ID) {
	g := history.New()
	fa, fb := ident.NewFeature(), ident.NewFeature()
	a, b := ident.New(), ident.New()

	la := evolve.NewLedger(nil)
	la.Insert(ident.Nil, a)
	g.AppendLedger(fa, la)

	lb := evolve.NewLedger(nil)
	lb.Insert(a, b)
	lb.Anchor(ident.DeriveAnchor(fb, "face.top"))
	g.AppendLedger(fb, lb)
	return g, fb, b
}

// Run exercises s. s must be empty.
func Run(t *testing.T, s store.Store) {
	ctx := context.Background()

	t.Run("history round trip", func(t *testing.T) {
		g, _, _ := Graph()
		require.NoError(t, s.SaveHistory(ctx, "bracket", g))

		back, err := s.LoadHistory(ctx, "bracket")
		require.NoError(t, err)
		assert.True(t, g.Equal(back))

		// Saving again replaces the snapshot.
		g2, _, _ := Graph()
		require.NoError(t, s.SaveHistory(ctx, "bracket", g2))
		back, err = s.LoadHistory(ctx, "bracket")
		require.NoError(t, err)
		assert.True(t, g2.Equal(back))
	})

	t.Run("history not found", func(t *testing.T) {
		_, err := s.LoadHistory(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("references", func(t *testing.T) {
		g, fb, b := Graph()
		ref := pick.New(fb, g, pick.SelectPart, b)
		ref.Tag = "edge"

		require.NoError(t, s.SaveReference(ctx, "hinge", "fillet.edge", ref))
		require.NoError(t, s.SaveReference(ctx, "hinge", "blend.face", pick.WholeShape(fb)))
		require.NoError(t, s.SaveReference(ctx, "other", "x", pick.WholeShape(fb)))

		names, err := s.ListReferences(ctx, "hinge")
		require.NoError(t, err)
		assert.Equal(t, []string{"blend.face", "fillet.edge"}, names)

		back, err := s.LoadReference(ctx, "hinge", "fillet.edge")
		require.NoError(t, err)
		assert.Equal(t, ref.Origin, back.Origin)
		assert.Equal(t, ref.IDs, back.IDs)
		assert.Equal(t, "edge", back.Tag)
		assert.Equal(t, ref.Fragment.Nodes(), back.Fragment.Nodes())

		require.NoError(t, s.DeleteReference(ctx, "hinge", "fillet.edge"))
		_, err = s.LoadReference(ctx, "hinge", "fillet.edge")
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.DeleteReference(ctx, "hinge", "fillet.edge"), store.ErrNotFound)

		names, err = s.ListReferences(ctx, "hinge")
		require.NoError(t, err)
		assert.Equal(t, []string{"blend.face"}, names)
	})

	t.Run("empty list", func(t *testing.T) {
		names, err := s.ListReferences(ctx, "nothing")
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("invalid names", func(t *testing.T) {
		err := s.SaveReference(ctx, "", "x", pick.WholeShape(ident.NewFeature()))
		assert.ErrorIs(t, err, store.ErrInvalidName)
	})
}
