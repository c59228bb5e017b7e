package match

import (
	"log/slog"
	"slices"

	"github.com/cadseer/naming/diag"
	"github.com/cadseer/naming/ident"
	"github.com/cadseer/naming/partgraph"
	"github.com/cadseer/naming/topo"
)

// input returns the consumed input named by the strategy.
func (st *stage) input() (Input, bool) {
	in, ok := st.env.Inputs[st.strategy.Input]
	if !ok || in.Graph == nil {
		st.env.logger().Warn("strategy names an unknown input",
			slog.String("strategy", st.strategy.String()))
		return Input{}, false
	}
	return in, true
}

// source returns the graph the strategy compares against and whether its
// identifiers belong to this feature.
func (st *stage) source() (*partgraph.Graph, bool, bool) {
	if st.strategy.Input == "" {
		if st.env.Previous == nil {
			return nil, false, false
		}
		return st.env.Previous, true, true
	}
	in, ok := st.input()
	return in.Graph, false, ok
}

// carry names part after source. Within the same feature the identifier is
// kept as is; from an input a new identifier is minted with lineage to it.
func (st *stage) carry(part topo.Part, source ident.ID, same bool) {
	if same {
		if st.env.Graph.HasID(source) {
			st.ambiguous(source, "identifier already bound to another %s", part.Kind())
			return
		}
		if st.bind(part, source) {
			st.env.Ledger.Insert(source, source)
		}
		return
	}
	st.bind(part, st.env.Ledger.Mint(source, st.env.Graph.HasID))
}

func (st *stage) named(part topo.Part) bool {
	_, ok := st.env.Graph.IdentifierOf(part)
	return ok
}

func direct(st *stage) {
	prev := st.env.Previous
	if prev == nil {
		return
	}
	for p := range prev.AllParts() {
		if !st.strategy.accepts(p.Kind()) || !st.env.Graph.Has(p) || st.named(p) {
			continue
		}
		id, ok := prev.IdentifierOf(p)
		if !ok {
			continue
		}
		st.carry(p, id, true)
	}
}

func passthrough(st *stage) {
	in, ok := st.input()
	if !ok {
		return
	}
	for p := range in.Graph.AllParts() {
		if !st.strategy.accepts(p.Kind()) || !st.env.Graph.Has(p) || st.named(p) {
			continue
		}
		src, ok := in.Graph.IdentifierOf(p)
		if !ok {
			continue
		}
		targets := st.env.Ledger.Evolve(src)
		switch {
		case len(targets) > 1:
			st.ambiguous(src, "source already evolved into %d parts", len(targets))
		case len(targets) == 1:
			if st.env.Graph.HasID(targets[0]) {
				st.ambiguous(src, "evolved identifier already bound")
				continue
			}
			st.bind(p, targets[0])
		default:
			st.carry(p, src, false)
		}
	}
}

func kindUnique(st *stage) {
	src, same, ok := st.source()
	if !ok {
		return
	}
	for _, k := range topo.Kinds {
		if !st.strategy.accepts(k) {
			continue
		}
		before := slices.Collect(src.AllParts(k))
		now := slices.Collect(st.env.Graph.AllParts(k))
		if len(before) != 1 || len(now) != 1 || st.named(now[0]) {
			continue
		}
		id, ok := src.IdentifierOf(before[0])
		if !ok {
			continue
		}
		st.carry(now[0], id, same)
	}
}

func modified(st *stage) {
	in, ok := st.input()
	if !ok {
		return
	}
	if in.Modifier == nil {
		st.env.logger().Debug("input has no kernel history", slog.String("input", st.strategy.Input))
		return
	}
	for old := range in.Graph.AllParts() {
		src, ok := in.Graph.IdentifierOf(old)
		if !ok {
			continue
		}
		produced := slices.Concat(in.Modifier.Modified(old), in.Modifier.Generated(old))
		for _, p := range produced {
			if !st.strategy.accepts(p.Kind()) || !st.env.Graph.Has(p) {
				continue
			}
			if cur, named := st.env.Graph.IdentifierOf(p); named {
				// Several old parts merged into this one.
				st.env.Ledger.Insert(src, cur)
				continue
			}
			st.carry(p, src, false)
		}
	}
}

func outerBoundary(st *stage) {
	if !st.strategy.accepts(topo.Wire) {
		return
	}
	for _, face := range slices.Collect(st.env.Graph.AllParts(topo.Face)) {
		fid, ok := st.env.Graph.IdentifierOf(face)
		if !ok {
			continue
		}
		wire, ok := st.env.Graph.OuterBoundary(face)
		if !ok || st.named(wire) {
			continue
		}
		wid := ident.Derive(ident.OuterBoundary, fid)
		if st.env.Graph.HasID(wid) {
			st.ambiguous(wid, "outer wire identifier already bound")
			continue
		}
		if st.bind(wire, wid) {
			st.env.Ledger.Insert(st.outerSource(fid, wid), wid)
		}
	}
}

// outerSource finds the lineage of a derived outer wire: the same identifier
// in the previous evaluation, or the outer wire of the face's source.
func (st *stage) outerSource(face, wire ident.ID) ident.ID {
	if st.env.Previous != nil && st.env.Previous.HasID(wire) {
		return wire
	}
	for _, s := range st.env.Ledger.Devolve(face) {
		if s.IsNil() {
			continue
		}
		if cand := ident.Derive(ident.OuterBoundary, s); st.env.sourceHas(cand) {
			return cand
		}
	}
	return ident.Nil
}

func derived(st *stage) {
	st.derive(topo.Edge, topo.Face, ident.EdgeFromFaces)
	st.derive(topo.Vertex, topo.Edge, ident.VertexFromEdges)
}

// derive names unidentified parts of kind from the identifiers of all their
// ancestors of parentKind. Parts sharing an ancestor set are told apart by
// enumeration order.
func (st *stage) derive(kind, parentKind topo.Kind, ns ident.Namespace) {
	if !st.strategy.accepts(kind) {
		return
	}
	type candidate struct {
		part topo.Part
		base ident.ID
		id   ident.ID
	}
	var cands []candidate
	count := make(map[ident.ID]int)
	for _, p := range slices.Collect(st.env.Graph.Unidentified(kind)) {
		parents := st.env.Graph.Parents(p, parentKind)
		if len(parents) == 0 {
			continue
		}
		ids := make([]ident.ID, 0, len(parents))
		for _, q := range parents {
			id, ok := st.env.Graph.IdentifierOf(q)
			if !ok {
				break
			}
			ids = append(ids, id)
		}
		if len(ids) != len(parents) {
			continue
		}
		base := ident.Derive(ns, ids...)
		c := candidate{part: p, base: base, id: base}
		if n := count[base]; n > 0 {
			c.id = base.Salt(n)
		}
		count[base]++
		cands = append(cands, c)
	}

	reported := make(ident.Set)
	for _, c := range cands {
		if count[c.base] > 1 && reported.Add(c.base) {
			st.ambiguous(c.base, "%d %ss share one %s set, named by enumeration order", count[c.base], kind, parentKind)
		}
		if st.env.Graph.HasID(c.id) {
			st.ambiguous(c.id, "derived identifier already bound")
			continue
		}
		if !st.bind(c.part, c.id) {
			continue
		}
		src := ident.Nil
		if st.env.Previous != nil && st.env.Previous.HasID(c.id) {
			src = c.id
		}
		st.env.Ledger.Insert(src, c.id)
	}
}

func sharedBoundary(st *stage) {
	src, same, ok := st.source()
	if !ok {
		return
	}
	st.shared(src, same, topo.Edge, topo.Face)
	st.shared(src, same, topo.Vertex, topo.Edge)
}

// shared names a part of kind after the single part of the source graph
// that lies under the counterparts of all its parentKind ancestors.
func (st *stage) shared(src *partgraph.Graph, same bool, kind, parentKind topo.Kind) {
	if !st.strategy.accepts(kind) {
		return
	}
	for _, p := range slices.Collect(st.env.Graph.Unidentified(kind)) {
		parents := st.env.Graph.Parents(p, parentKind)
		if len(parents) < 2 {
			continue
		}
		var common ident.Set
		for _, q := range parents {
			qid, ok := st.env.Graph.IdentifierOf(q)
			if !ok {
				common = nil
				break
			}
			kids := st.counterpartChildren(src, qid, kind)
			if common == nil {
				common = kids
			} else {
				common = intersect(common, kids)
			}
			if common.Len() == 0 {
				break
			}
		}
		switch {
		case common.Len() == 1:
			st.carry(p, common.Sorted()[0], same)
		case common.Len() > 1:
			st.ambiguous(ident.Nil, "%d source %ss shared by the same %ss", common.Len(), kind, parentKind)
		}
	}
}

// counterpartChildren maps a current identifier to its counterparts in src
// and returns the identifiers of their descendants of kind.
func (st *stage) counterpartChildren(src *partgraph.Graph, id ident.ID, kind topo.Kind) ident.Set {
	counterparts := make([]ident.ID, 0, 2)
	if src.HasID(id) {
		counterparts = append(counterparts, id)
	}
	for _, d := range st.env.Ledger.Devolve(id) {
		if !d.IsNil() && d != id && src.HasID(d) {
			counterparts = append(counterparts, d)
		}
	}
	out := make(ident.Set)
	for _, c := range counterparts {
		part, _ := src.Lookup(c)
		for _, k := range src.Children(part, kind) {
			if kid, ok := src.IdentifierOf(k); ok {
				out.Add(kid)
			}
		}
	}
	return out
}

func intersect(a, b ident.Set) ident.Set {
	out := make(ident.Set)
	for id := range a {
		if b.Has(id) {
			out.Add(id)
		}
	}
	return out
}

func fallback(st *stage) {
	for _, p := range slices.Collect(st.env.Graph.Unidentified()) {
		id := st.env.Ledger.Mint(ident.Nil, nil)
		if st.bind(p, id) {
			st.diags = append(st.diags, diag.New(diag.CodeFallback, id, "%s named without lineage", p.Kind()))
		}
	}
	if st.matched > 0 {
		st.env.logger().Warn("parts named by fallback",
			slog.String("feature", st.env.Feature.String()),
			slog.Int("count", st.matched))
	}
}
