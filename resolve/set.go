package resolve

import (
	"github.com/cadseer/naming/diag"
	"github.com/cadseer/naming/ident"
	"github.com/cadseer/naming/partgraph"
	"github.com/cadseer/naming/pick"
	"github.com/cadseer/naming/topo"
)

// Item is the outcome for one selected identifier.
type Item struct {
	// Requested is the identifier as captured, nil for whole-shape
	// references.
	Requested ident.ID

	// IDs are the current identifiers in the target feature, sorted. Empty
	// means the item was dropped.
	IDs []ident.ID

	// ViaAncestor is set when IDs were found through an ancestor in the
	// reference's fragment rather than from Requested itself.
	ViaAncestor bool

	// Hops is the fragment distance of the ancestor that resolved the item.
	Hops int
}

// Dropped reports whether the item resolved to nothing.
func (it Item) Dropped() bool {
	return len(it.IDs) == 0
}

// Set is a resolved reference.
type Set struct {
	Reference *pick.Reference

	// Target is the feature the identifiers belong to.
	Target ident.FeatureID

	Items       []Item
	Diagnostics diag.List

	// Verdict is the policy's judgement of the set.
	Verdict Verdict
}

// IDs returns every resolved identifier once, sorted.
func (s *Set) IDs() []ident.ID {
	all := make(ident.Set)
	for _, it := range s.Items {
		for _, id := range it.IDs {
			all.Add(id)
		}
	}
	return all.Sorted()
}

// Counts summarizes a set for policies and logs.
type Counts struct {
	Requested   int
	Resolved    int
	Dropped     int
	Ambiguous   int
	ViaAncestor int
}

// Counts tallies the items. Resolved counts items, not identifiers.
func (s *Set) Counts() Counts {
	c := Counts{Requested: len(s.Items)}
	for _, it := range s.Items {
		switch {
		case it.Dropped():
			c.Dropped++
			continue
		case len(it.IDs) > 1:
			c.Ambiguous++
		}
		c.Resolved++
		if it.ViaAncestor {
			c.ViaAncestor++
		}
	}
	return c
}

// Parts looks the resolved identifiers up in g, skipping any it lacks.
func (s *Set) Parts(g *partgraph.Graph) []topo.Part {
	ids := s.IDs()
	out := make([]topo.Part, 0, len(ids))
	for _, id := range ids {
		if p, ok := g.Lookup(id); ok {
			out = append(out, p)
		}
	}
	return out
}
