// Package synth is a small in-memory kernel that implements the topo
// interfaces over hand-built topology.
//
// Parts are identified structurally by kind and a geometric key, so two
// builders that produce the same key produce the same part, as a real kernel
// would for an unchanged entity. It backs the command line demo and the
// package tests; it does no geometry.
package synth

import (
	"hash/fnv"

	"github.com/cadseer/naming/topo"
)

// Part is a synthetic kernel handle.
type Part struct {
	kind topo.Kind
	key  string
}

// Kind implements topo.Part.
func (p *Part) Kind() topo.Kind { return p.kind }

// Key returns the geometric key.
func (p *Part) Key() string { return p.key }

// Hash implements topo.Part.
func (p *Part) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(signature(p)))
	return h.Sum64()
}

// Same implements topo.Part.
func (p *Part) Same(other topo.Part) bool {
	q, ok := other.(*Part)
	return ok && q.kind == p.kind && q.key == p.key
}

func (p *Part) String() string {
	return signature(p)
}

func signature(p *Part) string {
	return p.kind.String() + ":" + p.key
}

func signatureOf(p topo.Part) (string, bool) {
	sp, ok := p.(*Part)
	if !ok || sp == nil {
		return "", false
	}
	return signature(sp), true
}

// Builder assembles a Shape. Parts are deduplicated by kind and key so shared
// edges and vertices are the same handle wherever they are used.
type Builder struct {
	parts    map[string]*Part
	children map[string][]*Part
	outer    map[string]*Part
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		parts:    make(map[string]*Part),
		children: make(map[string][]*Part),
		outer:    make(map[string]*Part),
	}
}

// Part returns the part with the given kind and key, creating it on first use.
func (b *Builder) Part(kind topo.Kind, key string) *Part {
	p := &Part{kind: kind, key: key}
	sig := signature(p)
	if existing, ok := b.parts[sig]; ok {
		return existing
	}
	b.parts[sig] = p
	return p
}

// Lookup returns the part with the given kind and key if the builder has it.
func (b *Builder) Lookup(kind topo.Kind, key string) (*Part, bool) {
	p, ok := b.parts[signature(&Part{kind: kind, key: key})]
	return p, ok
}

// Add appends children to parent.
func (b *Builder) Add(parent *Part, children ...*Part) *Builder {
	sig := signature(parent)
	b.children[sig] = append(b.children[sig], children...)
	return b
}

// Outer records wire as the outer boundary of face and adds it as a child.
func (b *Builder) Outer(face, wire *Part) *Builder {
	b.outer[signature(face)] = wire
	return b.Add(face, wire)
}

// Edit returns a builder holding a copy of s, to be changed into the result
// of some operation on s.
func Edit(s *Shape) *Builder {
	b := NewBuilder()
	var visit func(p topo.Part) *Part
	visit = func(p topo.Part) *Part {
		sp := p.(*Part)
		sig := signature(sp)
		if existing, ok := b.parts[sig]; ok {
			return existing
		}
		np := b.Part(sp.kind, sp.key)
		for _, c := range s.Children(p) {
			b.Add(np, visit(c))
		}
		if w, ok := s.outer[sig]; ok {
			b.outer[sig] = visit(w)
		}
		return np
	}
	visit(s.root)
	return b
}

// Replace substitutes with for old in every parent, including as an outer
// boundary. Replacing with nothing removes old.
func (b *Builder) Replace(old *Part, with ...*Part) *Builder {
	oldSig := signature(old)
	for parent, kids := range b.children {
		var out []*Part
		for _, k := range kids {
			if signature(k) != oldSig {
				out = append(out, k)
				continue
			}
			for _, w := range with {
				if !containsSig(out, w) {
					out = append(out, w)
				}
			}
		}
		b.children[parent] = out
	}
	for face, w := range b.outer {
		if signature(w) != oldSig {
			continue
		}
		if len(with) == 0 {
			delete(b.outer, face)
		} else {
			b.outer[face] = with[0]
		}
	}
	return b
}

// Remove drops old from every parent.
func (b *Builder) Remove(old *Part) *Builder {
	return b.Replace(old)
}

// Rekey replaces old with a part of the same kind under a new key that keeps
// old's children, as when an entity moves but its topology does not change.
func (b *Builder) Rekey(old *Part, key string) *Part {
	np := b.Part(old.kind, key)
	b.Add(np, b.children[signature(old)]...)
	if w, ok := b.outer[signature(old)]; ok {
		b.outer[signature(np)] = w
	}
	b.Replace(old, np)
	return np
}

func containsSig(parts []*Part, p *Part) bool {
	for _, q := range parts {
		if signature(q) == signature(p) {
			return true
		}
	}
	return false
}

// Build freezes the builder into a Shape rooted at root.
func (b *Builder) Build(root *Part) *Shape {
	s := &Shape{
		root:     root,
		children: make(map[string][]topo.Part, len(b.children)),
		outer:    make(map[string]topo.Part, len(b.outer)),
	}
	for sig, kids := range b.children {
		out := make([]topo.Part, len(kids))
		for i, k := range kids {
			out[i] = k
		}
		s.children[sig] = out
	}
	for sig, w := range b.outer {
		s.outer[sig] = w
	}
	return s
}

// Shape is an immutable synthetic aggregate.
type Shape struct {
	root     *Part
	children map[string][]topo.Part
	outer    map[string]topo.Part
}

// Root implements topo.Shape.
func (s *Shape) Root() topo.Part { return s.root }

// Children implements topo.Shape.
func (s *Shape) Children(p topo.Part) []topo.Part {
	sig, ok := signatureOf(p)
	if !ok {
		return nil
	}
	return s.children[sig]
}

// OuterBoundary implements topo.Shape.
func (s *Shape) OuterBoundary(face topo.Part) (topo.Part, bool) {
	sig, ok := signatureOf(face)
	if !ok {
		return nil, false
	}
	w, ok := s.outer[sig]
	return w, ok
}

// History records the generated/modified relation of one synthetic
// operation. It implements topo.Modifier.
type History struct {
	modified  map[string][]topo.Part
	generated map[string][]topo.Part
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{
		modified:  make(map[string][]topo.Part),
		generated: make(map[string][]topo.Part),
	}
}

// Modify records that old became each of parts.
func (h *History) Modify(old *Part, parts ...*Part) *History {
	for _, p := range parts {
		h.modified[signature(old)] = append(h.modified[signature(old)], p)
	}
	return h
}

// Generate records that old generated each of parts.
func (h *History) Generate(old *Part, parts ...*Part) *History {
	for _, p := range parts {
		h.generated[signature(old)] = append(h.generated[signature(old)], p)
	}
	return h
}

// Modified implements topo.Modifier.
func (h *History) Modified(old topo.Part) []topo.Part {
	sig, ok := signatureOf(old)
	if !ok {
		return nil
	}
	return h.modified[sig]
}

// Generated implements topo.Modifier.
func (h *History) Generated(old topo.Part) []topo.Part {
	sig, ok := signatureOf(old)
	if !ok {
		return nil
	}
	return h.generated[sig]
}
