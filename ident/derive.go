package ident

import (
	"slices"

	"github.com/google/uuid"
)

// Namespace scopes a family of derived identifiers so that the same inputs
// produce different identifiers for different purposes.
type Namespace uuid.UUID

// Derivation namespaces. The values are fixed forever: changing one would
// rename every derived part in every saved project.
var (
	// OuterBoundary names the outer wire of a face from the face identifier.
	OuterBoundary = Namespace(uuid.MustParse("0b7c6f8e-2a51-5d0e-9c3e-1f6a4d2b8e01"))

	// EdgeFromFaces names an edge from the set of faces bounding it.
	EdgeFromFaces = Namespace(uuid.MustParse("5e2d9a40-7c13-5b8f-a6d1-3c9e0f4b7a22"))

	// VertexFromEdges names a vertex from the set of edges meeting at it.
	VertexFromEdges = Namespace(uuid.MustParse("c41f0e7b-98a2-5e6d-b3f0-7d2a1c5e9b43"))

	// AnchorName names a primitive's semantic role within a feature.
	AnchorName = Namespace(uuid.MustParse("9a3e5c1d-4f70-5a2b-8e9c-6b1d0f3a7c64"))
)

// Derive computes a deterministic identifier from ids within ns. The input
// order does not matter: ids are sorted before hashing, so a set of parents
// always yields the same child.
func Derive(ns Namespace, ids ...ID) ID {
	sorted := slices.Clone(ids)
	Sort(sorted)
	data := make([]byte, 0, len(sorted)*TokenSize)
	for _, id := range sorted {
		data = id.AppendToken(data)
	}
	return ID(uuid.NewSHA1(uuid.UUID(ns), data))
}

// DeriveAnchor computes the identifier bound to a named anchor of a feature.
// The same feature and name always yield the same identifier, so anchors
// survive re-evaluation and reload without any stored state.
func DeriveAnchor(feature FeatureID, name string) ID {
	data := feature.AppendToken(make([]byte, 0, TokenSize+len(name)))
	data = append(data, name...)
	return ID(uuid.NewSHA1(uuid.UUID(AnchorName), data))
}
