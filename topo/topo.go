// Package topo declares the contract between the naming subsystem and the
// geometry kernel.
//
// The kernel owns the actual boundary representation. Naming only needs to
// enumerate sub-parts of a result, test two handles for structural identity,
// and ask which new parts an operation produced from an old one. Everything
// here is an interface; the kernel adapter implements it.
package topo

import (
	"fmt"
	"strings"
)

// Kind is the topological kind of a part, ordered from the outermost
// aggregate to the innermost point.
type Kind uint8

const (
	Compound Kind = iota
	CompSolid
	Solid
	Shell
	Face
	Wire
	Edge
	Vertex
)

// Kinds lists every kind in aggregate-to-point order.
var Kinds = []Kind{Compound, CompSolid, Solid, Shell, Face, Wire, Edge, Vertex}

var kindNames = [...]string{"compound", "compsolid", "solid", "shell", "face", "wire", "edge", "vertex"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// ParseKind converts a kind name back into a Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("topo: unknown kind %q", s)
}

// Part is an opaque handle to one kernel sub-element.
type Part interface {
	// Kind returns the topological kind.
	Kind() Kind

	// Hash is consistent with Same: parts that are the same hash equally.
	Hash() uint64

	// Same reports structural identity: same underlying entity, same location.
	Same(other Part) bool
}

// Shape is one evaluated aggregate.
type Shape interface {
	// Root returns the outermost part.
	Root() Part

	// Children returns the direct sub-parts of p. Shared sub-parts appear
	// under every parent that uses them.
	Children(p Part) []Part

	// OuterBoundary returns the outer wire of a face.
	OuterBoundary(face Part) (Part, bool)
}

// Modifier answers the kernel's history query for one operation: which parts
// of the result were modified from, or generated by, a part of an input.
type Modifier interface {
	Modified(old Part) []Part
	Generated(old Part) []Part
}
