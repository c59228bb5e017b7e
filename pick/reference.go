// Package pick holds references: durable selections of parts.
//
// A Reference records which feature a selection was made on, the identifiers
// selected there, and a lineage fragment copied out of the history graph at
// capture time. Resolving it later (package resolve) walks that lineage
// forward to whatever the selected parts have become.
//
// A Reference with no identifiers selects the whole aggregate of its origin.
package pick

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cadseer/naming/history"
	"github.com/cadseer/naming/ident"
	"github.com/cadseer/naming/topo"
)

// Selection says what part of the selected entity the user meant.
type Selection uint8

const (
	// SelectPart selects the parts themselves.
	SelectPart Selection = iota
	SelectStartPoint
	SelectEndPoint
	SelectMidPoint
	SelectCenterPoint

	// SelectParameter selects the point at (U, V) on an edge or face.
	SelectParameter
)

var selectionNames = []string{
	SelectPart:        "part",
	SelectStartPoint:  "start_point",
	SelectEndPoint:    "end_point",
	SelectMidPoint:    "mid_point",
	SelectCenterPoint: "center_point",
	SelectParameter:   "parameter",
}

func (s Selection) String() string {
	if int(s) < len(selectionNames) {
		return selectionNames[s]
	}
	return fmt.Sprintf("selection(%d)", s)
}

// ParseSelection converts a selection name into a Selection.
func ParseSelection(name string) (Selection, error) {
	for i, n := range selectionNames {
		if n == name {
			return Selection(i), nil
		}
	}
	return 0, fmt.Errorf("pick: unknown selection %q", name)
}

// Reference is a durable selection.
type Reference struct {
	// Origin is the feature the selection was made on.
	Origin ident.FeatureID

	// IDs are the selected identifiers in Origin. Empty means the whole
	// aggregate.
	IDs []ident.ID

	// Fragment is the lineage of IDs at capture time. It may be nil.
	Fragment *history.Fragment

	Selection Selection

	// U and V parameterize SelectParameter.
	U, V float64

	// Tag names the feature input the reference feeds.
	Tag string

	// Kinds restricts resolution to parts of these kinds. Empty means the
	// kind each identifier had in Origin.
	Kinds []topo.Kind
}

// New captures a reference to ids of origin, copying their lineage out of
// view.
func New(origin ident.FeatureID, view history.View, sel Selection, ids ...ident.ID) *Reference {
	r := &Reference{
		Origin:    origin,
		IDs:       slices.Clone(ids),
		Selection: sel,
	}
	if view != nil && len(ids) > 0 {
		r.Fragment = view.CreateFragment(origin, ids...)
	}
	return r
}

// WholeShape returns a reference to the entire aggregate of origin.
func WholeShape(origin ident.FeatureID) *Reference {
	return &Reference{Origin: origin}
}

// IsWholeShape reports whether r selects the entire aggregate.
func (r *Reference) IsWholeShape() bool {
	return len(r.IDs) == 0
}

// Clone returns a deep copy of r. The fragment is shared; fragments are not
// modified after capture.
func (r *Reference) Clone() *Reference {
	c := *r
	c.IDs = slices.Clone(r.IDs)
	c.Kinds = slices.Clone(r.Kinds)
	return &c
}

// OfKind sets Kinds and returns r.
func (r *Reference) OfKind(kinds ...topo.Kind) *Reference {
	r.Kinds = kinds
	return r
}

// Retarget moves r onto feature, replacing each identifier found in mapping.
// It returns how many identifiers were replaced. The fragment is kept so
// identifiers without a mapping can still be found through their lineage.
func (r *Reference) Retarget(feature ident.FeatureID, mapping map[ident.ID]ident.ID) int {
	n := 0
	for i, id := range r.IDs {
		if fresh, ok := mapping[id]; ok {
			r.IDs[i] = fresh
			n++
		}
	}
	r.Origin = feature
	return n
}

func (r *Reference) String() string {
	var sb strings.Builder
	sb.WriteString(r.Origin.Short())
	if r.Tag != "" {
		sb.WriteString("(" + r.Tag + ")")
	}
	if r.IsWholeShape() {
		sb.WriteString(":*")
	} else {
		sb.WriteString(":[")
		for i, id := range r.IDs {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(id.Short())
		}
		sb.WriteByte(']')
	}
	if r.Selection != SelectPart {
		sb.WriteString(" " + r.Selection.String())
	}
	if r.Selection == SelectParameter {
		fmt.Fprintf(&sb, "(%g,%g)", r.U, r.V)
	}
	return sb.String()
}
