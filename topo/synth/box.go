package synth

import (
	"fmt"

	"github.com/cadseer/naming/topo"
)

// Box face roles, in the order they are built.
var BoxFaces = []string{"xmin", "xmax", "ymin", "ymax", "zmin", "zmax"}

// Box builds an axis-aligned block with one corner at the origin and returns
// it together with the semantic role of every part: "compound", "solid",
// "shell", "face.<side>", "wire.<side>", "edge.00".."edge.11" and
// "vertex.0".."vertex.7". Keys carry positions and dimensions, so boxes of
// different sizes share only the vertices and edges that did not move.
func Box(length, width, height float64) (*Shape, map[string]*Part) {
	b := NewBuilder()
	roles := make(map[string]*Part, 35)
	size := [3]float64{length, width, height}

	// Corner i has coordinate bit a set when i&(1<<a) != 0.
	var corners [8]*Part
	for i := range corners {
		var c [3]float64
		for a := 0; a < 3; a++ {
			if i&(1<<a) != 0 {
				c[a] = size[a]
			}
		}
		corners[i] = b.Part(topo.Vertex, fmt.Sprintf("(%g,%g,%g)", c[0], c[1], c[2]))
		roles[fmt.Sprintf("vertex.%d", i)] = corners[i]
	}

	type edgeRef struct {
		part   *Part
		lo, hi int
	}
	var edges []edgeRef
	for a := 0; a < 3; a++ {
		for i := 0; i < 8; i++ {
			if i&(1<<a) != 0 {
				continue
			}
			j := i | 1<<a
			e := b.Part(topo.Edge, corners[i].key+"-"+corners[j].key)
			b.Add(e, corners[i], corners[j])
			roles[fmt.Sprintf("edge.%02d", len(edges))] = e
			edges = append(edges, edgeRef{part: e, lo: i, hi: j})
		}
	}

	shell := b.Part(topo.Shell, fmt.Sprintf("box(%g,%g,%g)", length, width, height))
	for fi, side := range BoxFaces {
		axis, high := fi/2, fi%2 == 1
		at := 0.0
		if high {
			at = size[axis]
		}
		face := b.Part(topo.Face, fmt.Sprintf("plane %c=%g [%g,%g,%g]", "xyz"[axis], at, length, width, height))
		wire := b.Part(topo.Wire, "loop "+face.key)
		for _, e := range edges {
			onFace := func(corner int) bool { return (corner&(1<<axis) != 0) == high }
			if onFace(e.lo) && onFace(e.hi) {
				b.Add(wire, e.part)
			}
		}
		b.Outer(face, wire)
		b.Add(shell, face)
		roles["face."+side] = face
		roles["wire."+side] = wire
	}

	solid := b.Part(topo.Solid, shell.key)
	b.Add(solid, shell)
	compound := b.Part(topo.Compound, shell.key)
	b.Add(compound, solid)

	roles["shell"] = shell
	roles["solid"] = solid
	roles["compound"] = compound
	return b.Build(compound), roles
}
