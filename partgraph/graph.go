// Package partgraph holds the identified sub-parts of one evaluated aggregate.
//
// A Graph is built from a kernel shape, filled in by the matching strategies
// of the owning feature, and frozen once naming is complete. After Freeze it
// is read-only and may be shared with downstream features without copying.
//
// Frozen graphs satisfy two invariants when Freeze reports no violations:
// every identifier maps to exactly one part, and every part has exactly one
// non-nil identifier.
package partgraph

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"slices"

	"github.com/cadseer/naming/diag"
	"github.com/cadseer/naming/ident"
	"github.com/cadseer/naming/topo"
)

var (
	// ErrUnknownPart is returned when a part is not in the graph.
	ErrUnknownPart = errors.New("partgraph: unknown part")

	// ErrNilID is returned when the nil identifier is assigned.
	ErrNilID = errors.New("partgraph: nil identifier")

	// ErrRebound is returned when a part that already had an identifier is
	// assigned a different one. The new identifier is kept.
	ErrRebound = errors.New("partgraph: part rebound")

	// ErrAnchorConflict is returned when an anchor name is bound to a second,
	// different identifier.
	ErrAnchorConflict = errors.New("partgraph: anchor already bound")
)

// LedgerView is the part of an evolution ledger Freeze needs to check that
// every identifier has lineage.
type LedgerView interface {
	HasTarget(id ident.ID) bool
	IsAnchored(id ident.ID) bool
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger used for rebinding warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		g.logger = logger
	}
}

type node struct {
	part     topo.Part
	id       ident.ID
	parents  []int
	children []int
}

// Graph maps identifiers to parts of one aggregate.
type Graph struct {
	nodes   []node
	byHash  map[uint64][]int
	byID    map[ident.ID][]int
	outer   map[int]int
	anchors map[string]ident.ID
	frozen  bool
	logger  *slog.Logger
}

// New enumerates every distinct part reachable from the root of shape. All
// parts start without an identifier.
func New(shape topo.Shape, opts ...Option) *Graph {
	g := &Graph{
		byHash:  make(map[uint64][]int),
		byID:    make(map[ident.ID][]int),
		outer:   make(map[int]int),
		anchors: make(map[string]ident.ID),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	root := shape.Root()
	if root == nil {
		return g
	}
	g.add(root)
	for i := 0; i < len(g.nodes); i++ {
		p := g.nodes[i].part
		for _, c := range shape.Children(p) {
			ci, ok := g.find(c)
			if !ok {
				ci = g.add(c)
			}
			if !slices.Contains(g.nodes[i].children, ci) {
				g.nodes[i].children = append(g.nodes[i].children, ci)
				g.nodes[ci].parents = append(g.nodes[ci].parents, i)
			}
		}
		if p.Kind() == topo.Face {
			if w, ok := shape.OuterBoundary(p); ok {
				if wi, ok := g.find(w); ok {
					g.outer[i] = wi
				}
			}
		}
	}
	return g
}

func (g *Graph) add(p topo.Part) int {
	i := len(g.nodes)
	g.nodes = append(g.nodes, node{part: p})
	h := p.Hash()
	g.byHash[h] = append(g.byHash[h], i)
	return i
}

func (g *Graph) find(p topo.Part) (int, bool) {
	if p == nil {
		return 0, false
	}
	for _, i := range g.byHash[p.Hash()] {
		if g.nodes[i].part.Same(p) {
			return i, true
		}
	}
	return 0, false
}

// Len returns the number of parts.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Frozen reports whether Freeze has been called.
func (g *Graph) Frozen() bool {
	return g.frozen
}

// Assign binds id to part. Assigning after Freeze panics.
func (g *Graph) Assign(part topo.Part, id ident.ID) error {
	if g.frozen {
		panic("partgraph: assign on frozen graph")
	}
	if id.IsNil() {
		return ErrNilID
	}
	i, ok := g.find(part)
	if !ok {
		return ErrUnknownPart
	}
	n := &g.nodes[i]
	if n.id == id {
		return nil
	}

	var err error
	if !n.id.IsNil() {
		g.logger.Warn("part rebound",
			slog.String("kind", part.Kind().String()),
			slog.String("old", n.id.String()),
			slog.String("new", id.String()))
		g.unindex(n.id, i)
		err = fmt.Errorf("%w: %s replaced by %s", ErrRebound, n.id.Short(), id.Short())
	}
	n.id = id
	g.byID[id] = append(g.byID[id], i)
	return err
}

func (g *Graph) unindex(id ident.ID, i int) {
	rest := slices.DeleteFunc(g.byID[id], func(j int) bool { return j == i })
	if len(rest) == 0 {
		delete(g.byID, id)
		return
	}
	g.byID[id] = rest
}

// Lookup returns the part carrying id.
func (g *Graph) Lookup(id ident.ID) (topo.Part, bool) {
	idx := g.byID[id]
	if len(idx) == 0 {
		return nil, false
	}
	return g.nodes[idx[0]].part, true
}

// IdentifierOf returns the identifier of part. The second result is false
// when the part is unknown or has no identifier yet.
func (g *Graph) IdentifierOf(part topo.Part) (ident.ID, bool) {
	i, ok := g.find(part)
	if !ok || g.nodes[i].id.IsNil() {
		return ident.Nil, false
	}
	return g.nodes[i].id, true
}

// Has reports whether part belongs to the graph.
func (g *Graph) Has(part topo.Part) bool {
	_, ok := g.find(part)
	return ok
}

// HasID reports whether some part carries id.
func (g *Graph) HasID(id ident.ID) bool {
	return len(g.byID[id]) > 0
}

// RootPart returns the outermost part, or nil for an empty graph.
func (g *Graph) RootPart() topo.Part {
	if len(g.nodes) == 0 {
		return nil
	}
	return g.nodes[0].part
}

// Root returns the identifier of the outermost part.
func (g *Graph) Root() ident.ID {
	if len(g.nodes) == 0 {
		return ident.Nil
	}
	return g.nodes[0].id
}

// AllParts yields the parts of the given kinds, or every part when no kind is
// given, in enumeration order. The sequence can be ranged over repeatedly.
func (g *Graph) AllParts(kinds ...topo.Kind) iter.Seq[topo.Part] {
	return func(yield func(topo.Part) bool) {
		for _, n := range g.nodes {
			if len(kinds) > 0 && !slices.Contains(kinds, n.part.Kind()) {
				continue
			}
			if !yield(n.part) {
				return
			}
		}
	}
}

// Unidentified yields the parts of the given kinds that have no identifier.
func (g *Graph) Unidentified(kinds ...topo.Kind) iter.Seq[topo.Part] {
	return func(yield func(topo.Part) bool) {
		for _, n := range g.nodes {
			if !n.id.IsNil() {
				continue
			}
			if len(kinds) > 0 && !slices.Contains(kinds, n.part.Kind()) {
				continue
			}
			if !yield(n.part) {
				return
			}
		}
	}
}

// Complete reports whether every part has an identifier.
func (g *Graph) Complete() bool {
	for _, n := range g.nodes {
		if n.id.IsNil() {
			return false
		}
	}
	return true
}

// IDs returns every bound identifier, sorted.
func (g *Graph) IDs() []ident.ID {
	out := slices.Collect(maps.Keys(g.byID))
	ident.Sort(out)
	return out
}

// Parents returns every ancestor of part with the given kind, nearest first.
func (g *Graph) Parents(part topo.Part, kind topo.Kind) []topo.Part {
	i, ok := g.find(part)
	if !ok {
		return nil
	}
	return g.walk(i, kind, func(n *node) []int { return n.parents })
}

// Children returns every descendant of part with the given kind, nearest
// first.
func (g *Graph) Children(part topo.Part, kind topo.Kind) []topo.Part {
	i, ok := g.find(part)
	if !ok {
		return nil
	}
	return g.walk(i, kind, func(n *node) []int { return n.children })
}

func (g *Graph) walk(start int, kind topo.Kind, next func(*node) []int) []topo.Part {
	var out []topo.Part
	seen := map[int]bool{start: true}
	queue := []int{start}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		for _, j := range next(&g.nodes[i]) {
			if seen[j] {
				continue
			}
			seen[j] = true
			if g.nodes[j].part.Kind() == kind {
				out = append(out, g.nodes[j].part)
			}
			queue = append(queue, j)
		}
	}
	return out
}

// OuterBoundary returns the outer wire of face.
func (g *Graph) OuterBoundary(face topo.Part) (topo.Part, bool) {
	i, ok := g.find(face)
	if !ok {
		return nil, false
	}
	w, ok := g.outer[i]
	if !ok {
		return nil, false
	}
	return g.nodes[w].part, true
}

// BindAnchor binds a semantic role of the feature to id.
func (g *Graph) BindAnchor(name string, id ident.ID) error {
	if g.frozen {
		panic("partgraph: bind anchor on frozen graph")
	}
	if id.IsNil() {
		return ErrNilID
	}
	if existing, ok := g.anchors[name]; ok && existing != id {
		return fmt.Errorf("%w: %q", ErrAnchorConflict, name)
	}
	g.anchors[name] = id
	return nil
}

// Anchor returns the identifier bound to name.
func (g *Graph) Anchor(name string) (ident.ID, bool) {
	id, ok := g.anchors[name]
	return id, ok
}

// Anchors returns a copy of the anchor table.
func (g *Graph) Anchors() map[string]ident.ID {
	return maps.Clone(g.anchors)
}

// Freeze checks the graph and makes it read-only. It never fails: each
// violation is returned as a diagnostic. When l is nil the lineage check is
// skipped.
func (g *Graph) Freeze(l LedgerView) diag.List {
	var out diag.List
	for _, n := range g.nodes {
		if n.id.IsNil() {
			out = append(out, diag.New(diag.CodeUnidentified, ident.Nil, "%s has no identifier", n.part.Kind()))
		}
	}
	for _, id := range g.IDs() {
		idx := g.byID[id]
		if len(idx) > 1 {
			out = append(out, diag.New(diag.CodeDuplicate, id, "identifier bound to %d parts", len(idx)))
		}
		if l != nil && !l.HasTarget(id) && !l.IsAnchored(id) {
			out = append(out, diag.New(diag.CodeNoRecord, id, "%s has no evolution record", g.nodes[idx[0]].part.Kind()))
		}
	}
	names := slices.Sorted(maps.Keys(g.anchors))
	for _, name := range names {
		id := g.anchors[name]
		if !g.HasID(id) {
			out = append(out, diag.New(diag.CodeAnchorUnbound, id, "anchor %q names no part", name))
		}
	}
	g.frozen = true
	return out
}

// Stats summarizes a graph for logs and dumps.
type Stats struct {
	ByKind       map[topo.Kind]int
	Unidentified int
	Duplicates   int
	Anchors      int
}

// Stats counts parts by kind and reports naming gaps.
func (g *Graph) Stats() Stats {
	s := Stats{ByKind: make(map[topo.Kind]int), Anchors: len(g.anchors)}
	for _, n := range g.nodes {
		s.ByKind[n.part.Kind()]++
		if n.id.IsNil() {
			s.Unidentified++
		}
	}
	for _, idx := range g.byID {
		if len(idx) > 1 {
			s.Duplicates++
		}
	}
	return s
}
