package history

import (
	"fmt"
	"math"

	"github.com/cadseer/naming/ident"
	"github.com/cadseer/naming/wire"
)

// Step is a fragment edge between two local node indices: Child descends
// from Parent.
type Step struct {
	Child  uint32
	Parent uint32
}

// Fragment is a self-contained copy of the ancestry of a few identifiers.
// Nodes live in an arena and are referred to by local index; global tokens
// appear only at the boundary (Node, Nodes, the codec). A reference keeps a
// fragment so it can still be resolved after the history graph forgets the
// nodes it was captured from.
type Fragment struct {
	nodes   []Node
	index   map[Node]uint32
	parents [][]uint32
	steps   []Step
	roots   []uint32
}

// NewFragment returns an empty fragment.
func NewFragment() *Fragment {
	return &Fragment{index: make(map[Node]uint32)}
}

func (f *Fragment) add(n Node) (uint32, bool) {
	if i, ok := f.index[n]; ok {
		return i, false
	}
	i := uint32(len(f.nodes))
	f.nodes = append(f.nodes, n)
	f.parents = append(f.parents, nil)
	f.index[n] = i
	return i, true
}

func (f *Fragment) addRoot(n Node) (uint32, bool) {
	i, fresh := f.add(n)
	for _, r := range f.roots {
		if r == i {
			return i, fresh
		}
	}
	f.roots = append(f.roots, i)
	return i, fresh
}

func (f *Fragment) link(child, parent uint32) {
	for _, p := range f.parents[child] {
		if p == parent {
			return
		}
	}
	f.parents[child] = append(f.parents[child], parent)
	f.steps = append(f.steps, Step{Child: child, Parent: parent})
}

// Len returns the number of nodes.
func (f *Fragment) Len() int {
	if f == nil {
		return 0
	}
	return len(f.nodes)
}

// Node returns the node at local index i.
func (f *Fragment) Node(i uint32) Node {
	return f.nodes[i]
}

// Nodes returns a copy of the arena in index order.
func (f *Fragment) Nodes() []Node {
	if f == nil {
		return nil
	}
	return append([]Node(nil), f.nodes...)
}

// Steps returns a copy of the edges in insertion order.
func (f *Fragment) Steps() []Step {
	if f == nil {
		return nil
	}
	return append([]Step(nil), f.steps...)
}

// Roots returns the local indices of the captured identifiers.
func (f *Fragment) Roots() []uint32 {
	if f == nil {
		return nil
	}
	return append([]uint32(nil), f.roots...)
}

// Root finds the root holding id.
func (f *Fragment) Root(id ident.ID) (uint32, bool) {
	if f == nil {
		return 0, false
	}
	for _, r := range f.roots {
		if f.nodes[r].ID == id {
			return r, true
		}
	}
	return 0, false
}

// Has reports whether n is in the fragment.
func (f *Fragment) Has(n Node) bool {
	if f == nil {
		return false
	}
	_, ok := f.index[n]
	return ok
}

// Levels returns the ancestors of the node at index i grouped by distance,
// nearest first. The node itself is not included.
func (f *Fragment) Levels(i uint32) [][]Node {
	if f == nil || int(i) >= len(f.nodes) {
		return nil
	}
	var levels [][]Node
	seen := map[uint32]bool{i: true}
	frontier := []uint32{i}
	for len(frontier) > 0 {
		var next []uint32
		var level []Node
		for _, c := range frontier {
			for _, p := range f.parents[c] {
				if seen[p] {
					continue
				}
				seen[p] = true
				next = append(next, p)
				level = append(level, f.nodes[p])
			}
		}
		if len(level) > 0 {
			levels = append(levels, level)
		}
		frontier = next
	}
	return levels
}

// Merge copies other into f. Roots of other become roots of f.
func (f *Fragment) Merge(other *Fragment) {
	if other == nil {
		return
	}
	local := make([]uint32, len(other.nodes))
	for i, n := range other.nodes {
		local[i], _ = f.add(n)
	}
	for _, s := range other.steps {
		f.link(local[s.Child], local[s.Parent])
	}
	for _, r := range other.roots {
		f.addRoot(other.nodes[r])
	}
}

// CreateFragment implements View. Each identifier of feature becomes a root;
// its ancestors are copied up to the configured depth.
func (g *Graph) CreateFragment(feature ident.FeatureID, ids ...ident.ID) *Fragment {
	g.mu.RLock()
	defer g.mu.RUnlock()

	type item struct {
		index uint32
		depth int
	}
	f := NewFragment()
	var queue []item
	for _, id := range ids {
		i, fresh := f.addRoot(Node{Feature: feature, ID: id})
		if fresh {
			queue = append(queue, item{index: i})
		}
	}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if g.fragmentDepth > 0 && it.depth >= g.fragmentDepth {
			continue
		}
		for _, e := range g.in[f.nodes[it.index]] {
			p, fresh := f.add(g.edges[e].from)
			f.link(it.index, p)
			if fresh {
				queue = append(queue, item{index: p, depth: it.depth + 1})
			}
		}
	}
	return f
}

// Fragment message fields.
//
//	message Fragment {
//	  repeated Node   nodes = 1;
//	  repeated Step   steps = 2;
//	  repeated uint32 roots = 3;
//	}
//	message Node { bytes feature = 1; bytes id = 2; }
//	message Step { uint32 child = 1; uint32 parent = 2; }
const (
	fragNodes = 1
	fragSteps = 2
	fragRoots = 3

	nodeFeature = 1
	nodeID      = 2

	stepChild  = 1
	stepParent = 2
)

// MarshalBinary encodes the fragment. Equal fragments built in the same
// order encode to equal bytes.
func (f *Fragment) MarshalBinary() ([]byte, error) {
	return f.AppendBinary(nil), nil
}

// AppendBinary appends the encoding of f to b.
func (f *Fragment) AppendBinary(b []byte) []byte {
	if f == nil {
		return b
	}
	var msg []byte
	for _, n := range f.nodes {
		msg = appendNode(msg[:0], n)
		b = wire.AppendBytes(b, fragNodes, msg)
	}
	for _, s := range f.steps {
		msg = wire.AppendVarint(msg[:0], stepChild, uint64(s.Child))
		msg = wire.AppendVarint(msg, stepParent, uint64(s.Parent))
		b = wire.AppendBytes(b, fragSteps, msg)
	}
	for _, r := range f.roots {
		b = wire.AppendVarint(b, fragRoots, uint64(r))
	}
	return b
}

func appendNode(b []byte, n Node) []byte {
	b = wire.AppendFeature(b, nodeFeature, n.Feature)
	return wire.AppendID(b, nodeID, n.ID)
}

func decodeNode(b []byte) (Node, error) {
	var n Node
	err := wire.Walk(b, func(fd wire.Field) error {
		var err error
		switch fd.Num {
		case nodeFeature:
			n.Feature, err = fd.Feature()
		case nodeID:
			n.ID, err = fd.ID()
		}
		return err
	})
	return n, err
}

// DecodeFragment decodes a fragment written by MarshalBinary.
func DecodeFragment(b []byte) (*Fragment, error) {
	f := NewFragment()
	var steps []Step
	var roots []uint32
	err := wire.Walk(b, func(fd wire.Field) error {
		switch fd.Num {
		case fragNodes:
			n, err := decodeNode(fd.Bytes)
			if err != nil {
				return err
			}
			if _, fresh := f.add(n); !fresh {
				return fmt.Errorf("%w: duplicate fragment node %s", wire.ErrMalformed, n)
			}
		case fragSteps:
			var s Step
			err := wire.Walk(fd.Bytes, func(sf wire.Field) error {
				var err error
				switch sf.Num {
				case stepChild:
					s.Child, err = fragmentIndex(sf.Int)
				case stepParent:
					s.Parent, err = fragmentIndex(sf.Int)
				}
				return err
			})
			if err != nil {
				return err
			}
			steps = append(steps, s)
		case fragRoots:
			i, err := fragmentIndex(fd.Int)
			if err != nil {
				return err
			}
			roots = append(roots, i)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	size := uint32(len(f.nodes))
	for _, s := range steps {
		if s.Child >= size || s.Parent >= size {
			return nil, fmt.Errorf("%w: fragment step out of range", wire.ErrMalformed)
		}
		f.link(s.Child, s.Parent)
	}
	for _, r := range roots {
		if r >= size {
			return nil, fmt.Errorf("%w: fragment root out of range", wire.ErrMalformed)
		}
		f.addRoot(f.nodes[r])
	}
	return f, nil
}

func fragmentIndex(v uint64) (uint32, error) {
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: fragment index %d", wire.ErrMalformed, v)
	}
	return uint32(v), nil
}
