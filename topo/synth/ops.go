package synth

import (
	"fmt"

	"github.com/cadseer/naming/topo"
)

// SplitEdge cuts edge in two at a new vertex keyed at. It returns the new
// shape and the kernel history of the cut: both halves are modified from
// edge and the new vertex is generated from it.
func SplitEdge(s *Shape, edge *Part, at string) (*Shape, *History) {
	b := Edit(s)
	ends := s.Children(edge)
	if len(ends) != 2 {
		panic(fmt.Sprintf("synth: split %s: edge has %d vertices", edge, len(ends)))
	}
	mid := b.Part(topo.Vertex, at)
	lo := ends[0].(*Part)
	hi := ends[1].(*Part)
	left := b.Part(topo.Edge, lo.key+"-"+at)
	right := b.Part(topo.Edge, at+"-"+hi.key)
	b.Add(left, b.Part(topo.Vertex, lo.key), mid)
	b.Add(right, mid, b.Part(topo.Vertex, hi.key))
	b.Replace(b.Part(topo.Edge, edge.key), left, right)

	h := NewHistory().Modify(edge, left, right).Generate(edge, mid)
	return b.Build(b.Part(s.root.kind, s.root.key)), h
}

// RemovePart deletes part from s, as when a boolean cuts it away. The
// returned history has no entry for part.
func RemovePart(s *Shape, part *Part) (*Shape, *History) {
	b := Edit(s)
	b.Remove(b.Part(part.kind, part.key))
	return b.Build(b.Part(s.root.kind, s.root.key)), NewHistory()
}
