// Package history keeps the lineage of every identifier in a project.
//
// The Graph is the union of all features' evolution ledgers. A node is an
// identifier as it exists in one feature; an edge says that a target came
// from a source. Appending a feature's new ledger supersedes the feature's
// previous one: the feature's live identifiers become the new ledger's, but
// edges from earlier evaluations stay, so references captured long ago can
// still be walked forward. Compact trims old evaluations once they are no
// longer needed.
//
// Features read the graph through View, which never mutates. The dependency
// layer owns the Graph and is its only writer.
package history

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/cadseer/naming/diag"
	"github.com/cadseer/naming/evolve"
	"github.com/cadseer/naming/ident"
)

// Node is an identifier within a feature.
type Node struct {
	Feature ident.FeatureID
	ID      ident.ID
}

func (n Node) String() string {
	return n.Feature.Short() + "/" + n.ID.Short()
}

// View is the read-only face of a Graph handed to evaluating features.
type View interface {
	// ResolveForward returns the live identifiers of feature that descend
	// from id, including id itself when it is live there. A zero feature
	// means any feature.
	ResolveForward(feature ident.FeatureID, id ident.ID) []ident.ID

	// ResolveBackward returns the identifiers of feature that id descends
	// from. A zero feature means any feature.
	ResolveBackward(feature ident.FeatureID, id ident.ID) []ident.ID

	// Forward is ResolveForward starting from one node only.
	Forward(from Node, feature ident.FeatureID) []ident.ID

	// CreateFragment captures the lineage of ids in feature.
	CreateFragment(feature ident.FeatureID, ids ...ident.ID) *Fragment

	Has(n Node) bool
	IsLive(n Node) bool
	Live(feature ident.FeatureID) []ident.ID
	Known(feature ident.FeatureID) bool
	Removed(feature ident.FeatureID) bool
	Epoch(feature ident.FeatureID) int
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		g.logger = logger
	}
}

// WithFragmentDepth bounds how many ancestor levels CreateFragment captures.
// Zero, the default, captures the full ancestry.
func WithFragmentDepth(depth int) Option {
	return func(g *Graph) {
		g.fragmentDepth = depth
	}
}

type edge struct {
	from, to Node
	// feature owns the edge: the feature whose ledger produced it, or the
	// target feature for links.
	feature ident.FeatureID
	epoch   int
	link    bool
}

type edgeKey struct {
	from, to Node
}

type featureState struct {
	epoch   int
	seq     int
	ledger  *evolve.Ledger
	live    ident.Set
	removed bool
}

// Graph is the project-wide lineage graph. Methods are safe for concurrent
// use; the scheduler is still expected to be the only writer.
type Graph struct {
	mu       sync.RWMutex
	features map[ident.FeatureID]*featureState
	nodes    map[Node]struct{}
	owners   map[ident.ID][]ident.FeatureID
	edges    []edge
	index    map[edgeKey]int
	out      map[Node][]int
	in       map[Node][]int
	seq      int

	fragmentDepth int
	logger        *slog.Logger
}

// New returns an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		features: make(map[ident.FeatureID]*featureState),
		nodes:    make(map[Node]struct{}),
		owners:   make(map[ident.ID][]ident.FeatureID),
		index:    make(map[edgeKey]int),
		out:      make(map[Node][]int),
		in:       make(map[Node][]int),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AppendReport describes one AppendLedger call.
type AppendReport struct {
	Feature ident.FeatureID
	Epoch   int
	Edges   int

	// Orphans lists record sources that no feature in the graph owns.
	Orphans     []ident.ID
	Diagnostics diag.List
}

// AppendLedger installs l as the current ledger of feature, superseding the
// previous one. Cost is linear in the size of l.
func (g *Graph) AppendLedger(feature ident.FeatureID, l *evolve.Ledger) AppendReport {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.features[feature]
	if !ok {
		st = &featureState{}
		g.features[feature] = st
	}
	g.seq++
	st.epoch++
	st.seq = g.seq
	st.ledger = l
	st.live = l.Live()
	st.removed = false

	report := AppendReport{Feature: feature, Epoch: st.epoch}
	for id := range st.live {
		g.addNode(Node{Feature: feature, ID: id})
	}
	for _, r := range l.Records() {
		if r.Source.IsNil() {
			continue
		}
		from, ok := g.locate(feature, r.Source)
		if !ok {
			report.Orphans = append(report.Orphans, r.Source)
			report.Diagnostics = append(report.Diagnostics,
				diag.New(diag.CodeOrphanSource, r.Source, "source of %s is not in the history", r.Target.Short()))
			continue
		}
		g.addEdge(from, Node{Feature: feature, ID: r.Target}, feature, st.epoch, false)
		report.Edges++
	}
	if len(report.Orphans) > 0 {
		g.logger.Warn("ledger sources missing from history",
			slog.String("feature", feature.String()),
			slog.Int("count", len(report.Orphans)))
	}
	report.Diagnostics = report.Diagnostics.WithFeature(feature)
	return report
}

// locate finds the node that a record source of feature refers to: the
// feature's own earlier identifier, or else the identifier in the most
// recently appended other feature that owns it.
func (g *Graph) locate(feature ident.FeatureID, id ident.ID) (Node, bool) {
	own := Node{Feature: feature, ID: id}
	if _, ok := g.nodes[own]; ok {
		return own, true
	}
	var best Node
	bestSeq := -1
	for _, f := range g.owners[id] {
		if f == feature {
			continue
		}
		st := g.features[f]
		if st == nil || st.seq <= bestSeq {
			continue
		}
		best, bestSeq = Node{Feature: f, ID: id}, st.seq
	}
	return best, bestSeq >= 0
}

func (g *Graph) addNode(n Node) {
	if _, ok := g.nodes[n]; ok {
		return
	}
	g.nodes[n] = struct{}{}
	g.owners[n.ID] = append(g.owners[n.ID], n.Feature)
}

func (g *Graph) addEdge(from, to Node, feature ident.FeatureID, epoch int, link bool) {
	g.addNode(from)
	g.addNode(to)
	key := edgeKey{from: from, to: to}
	if i, ok := g.index[key]; ok {
		g.edges[i].epoch = epoch
		g.edges[i].feature = feature
		return
	}
	i := len(g.edges)
	g.edges = append(g.edges, edge{from: from, to: to, feature: feature, epoch: epoch, link: link})
	g.index[key] = i
	g.out[from] = append(g.out[from], i)
	g.in[to] = append(g.in[to], i)
}

// Link adds a cross-feature edge, as when a feature adopts another's output
// under its own identifiers.
func (g *Graph) Link(from, to Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	epoch := 0
	if st, ok := g.features[to.Feature]; ok {
		epoch = st.epoch
	}
	g.addEdge(from, to, to.Feature, epoch, true)
}

// RemoveFeature marks feature as removed. Its nodes stay for lineage but
// are no longer live.
func (g *Graph) RemoveFeature(feature ident.FeatureID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.features[feature]; ok {
		st.removed = true
	}
}

// Rewire maps each live identifier of a removed feature to its single
// ancestor in parent. Identifiers with no or several ancestors there are left
// out. Consumers of the removed feature use the mapping to re-parent their
// references onto parent.
func (g *Graph) Rewire(removed, parent ident.FeatureID) map[ident.ID]ident.ID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[ident.ID]ident.ID)
	st, ok := g.features[removed]
	if !ok {
		return out
	}
	for id := range st.live {
		anc := g.walk([]Node{{Feature: removed, ID: id}}, g.in, func(e edge) Node { return e.from }, func(n Node) bool {
			return n.Feature == parent
		}, true)
		if len(anc) == 1 {
			out[id] = anc[0]
		}
	}
	return out
}

// ResolveForward implements View.
func (g *Graph) ResolveForward(feature ident.FeatureID, id ident.ID) []ident.ID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.forward(g.startNodes(id), feature)
}

// Forward implements View.
func (g *Graph) Forward(from Node, feature ident.FeatureID) []ident.ID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodes[from]; !ok {
		return nil
	}
	return g.forward([]Node{from}, feature)
}

func (g *Graph) forward(starts []Node, feature ident.FeatureID) []ident.ID {
	return g.walk(starts, g.out, func(e edge) Node { return e.to }, func(n Node) bool {
		return (feature.IsZero() || n.Feature == feature) && g.isLive(n)
	}, false)
}

// ResolveBackward implements View.
func (g *Graph) ResolveBackward(feature ident.FeatureID, id ident.ID) []ident.ID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.walk(g.startNodes(id), g.in, func(e edge) Node { return e.from }, func(n Node) bool {
		return feature.IsZero() || n.Feature == feature
	}, true)
}

func (g *Graph) startNodes(id ident.ID) []Node {
	starts := make([]Node, 0, len(g.owners[id]))
	for _, f := range g.owners[id] {
		starts = append(starts, Node{Feature: f, ID: id})
	}
	return starts
}

// walk traverses adjacency from starts and returns the sorted identifiers of
// visited nodes accepted by keep. Starting nodes are considered unless
// skipStarts is set.
func (g *Graph) walk(starts []Node, adj map[Node][]int, next func(edge) Node, keep func(Node) bool, skipStarts bool) []ident.ID {
	found := make(ident.Set)
	seen := make(map[Node]bool, len(starts))
	queue := make([]Node, 0, len(starts))
	for _, s := range starts {
		seen[s] = true
		queue = append(queue, s)
		if !skipStarts && keep(s) {
			found.Add(s.ID)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, i := range adj[n] {
			m := next(g.edges[i])
			if seen[m] {
				continue
			}
			seen[m] = true
			if keep(m) {
				found.Add(m.ID)
			}
			queue = append(queue, m)
		}
	}
	return found.Sorted()
}

func (g *Graph) isLive(n Node) bool {
	st, ok := g.features[n.Feature]
	return ok && !st.removed && st.live.Has(n.ID)
}

// Has implements View.
func (g *Graph) Has(n Node) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[n]
	return ok
}

// IsLive implements View.
func (g *Graph) IsLive(n Node) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.isLive(n)
}

// Live implements View.
func (g *Graph) Live(feature ident.FeatureID) []ident.ID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st, ok := g.features[feature]
	if !ok || st.removed {
		return nil
	}
	return st.live.Sorted()
}

// Known implements View.
func (g *Graph) Known(feature ident.FeatureID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.features[feature]
	return ok
}

// Removed implements View.
func (g *Graph) Removed(feature ident.FeatureID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st, ok := g.features[feature]
	return ok && st.removed
}

// Epoch implements View. It is zero for unknown features.
func (g *Graph) Epoch(feature ident.FeatureID) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if st, ok := g.features[feature]; ok {
		return st.epoch
	}
	return 0
}

// Ledger returns the current ledger of feature.
func (g *Graph) Ledger(feature ident.FeatureID) (*evolve.Ledger, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st, ok := g.features[feature]
	if !ok {
		return nil, false
	}
	return st.ledger, true
}

// Features returns every known feature in append order.
func (g *Graph) Features() []ident.FeatureID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.featuresBySeq()
}

func (g *Graph) featuresBySeq() []ident.FeatureID {
	out := make([]ident.FeatureID, 0, len(g.features))
	for f := range g.features {
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b ident.FeatureID) int {
		return g.features[a].seq - g.features[b].seq
	})
	return out
}

// Stats summarizes the graph.
type Stats struct {
	Features int
	Nodes    int
	Edges    int
	Live     int
}

// Stats counts features, nodes, edges and live nodes.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := Stats{Features: len(g.features), Nodes: len(g.nodes), Edges: len(g.edges)}
	for n := range g.nodes {
		if g.isLive(n) {
			s.Live++
		}
	}
	return s
}

// Compact drops edges that belong to evaluations at least keepEpochs older
// than their feature's current one, and edges of removed features, then
// drops nodes that are neither live nor touched by a remaining edge. It
// returns the number of edges dropped. Links are kept.
func (g *Graph) Compact(keepEpochs int) int {
	if keepEpochs < 1 {
		keepEpochs = 1
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	kept := make([]edge, 0, len(g.edges))
	for _, e := range g.edges {
		st := g.features[e.feature]
		stale := st != nil && (st.removed || st.epoch-e.epoch >= keepEpochs)
		if stale && !e.link {
			continue
		}
		kept = append(kept, e)
	}
	dropped := len(g.edges) - len(kept)
	if dropped == 0 {
		return 0
	}

	g.edges = nil
	g.index = make(map[edgeKey]int, len(kept))
	g.out = make(map[Node][]int)
	g.in = make(map[Node][]int)
	for _, e := range kept {
		g.addEdge(e.from, e.to, e.feature, e.epoch, e.link)
	}

	for n := range g.nodes {
		if g.isLive(n) || len(g.out[n]) > 0 || len(g.in[n]) > 0 {
			continue
		}
		delete(g.nodes, n)
		owners := slices.DeleteFunc(g.owners[n.ID], func(f ident.FeatureID) bool { return f == n.Feature })
		if len(owners) == 0 {
			delete(g.owners, n.ID)
		} else {
			g.owners[n.ID] = owners
		}
	}
	g.logger.Debug("history compacted", slog.Int("edges_dropped", dropped), slog.Int("edges", len(g.edges)))
	return dropped
}

func (g *Graph) String() string {
	s := g.Stats()
	return fmt.Sprintf("history(%d features, %d nodes, %d edges)", s.Features, s.Nodes, s.Edges)
}

// Nodes returns every node, grouped by feature in append order and sorted by
// identifier within a feature.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	g.sortNodes(out)
	return out
}

func (g *Graph) sortNodes(nodes []Node) {
	seq := func(f ident.FeatureID) int {
		if st, ok := g.features[f]; ok {
			return st.seq
		}
		return 0
	}
	slices.SortFunc(nodes, func(a, b Node) int {
		if c := seq(a.Feature) - seq(b.Feature); c != 0 {
			return c
		}
		if c := a.Feature.Compare(b.Feature); c != 0 {
			return c
		}
		return a.ID.Compare(b.ID)
	})
}
