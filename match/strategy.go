// Package match assigns identifiers to the parts of a new evaluation.
//
// A Strategy is a tagged value, not an interface: its Kind selects one of a
// fixed set of algorithms and Run dispatches on it. Each feature type owns a
// Plan, an explicit priority-ordered list of strategies. Strategies run in
// plan order until every part has an identifier; Fallback always runs last
// and guarantees completion.
//
// Matching never fails. Ambiguity is skipped and reported, and anything left
// over is named by the fallback with a warning.
package match

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cadseer/naming/topo"
)

// Kind selects a matching algorithm.
type Kind uint8

const (
	// Direct carries identifiers of structurally identical parts over from
	// the previous evaluation of the same feature.
	Direct Kind = iota + 1

	// Passthrough names parts that are identical to a part of a consumed
	// input, with lineage to the input identifier.
	Passthrough

	// KindUnique matches the single part of a kind before and now.
	KindUnique

	// Modified follows the kernel's generated/modified history of a
	// consumed input.
	Modified

	// OuterBoundary names a face's outer wire from the face identifier.
	OuterBoundary

	// Derived names edges from their faces and vertices from their edges.
	Derived

	// SharedBoundary maps an edge to the single edge shared by the source
	// counterparts of its two faces, and a vertex likewise from its edges.
	SharedBoundary

	// Fallback gives every remaining part a fresh identifier.
	Fallback
)

var kindNames = map[Kind]string{
	Direct:         "direct",
	Passthrough:    "passthrough",
	KindUnique:     "kind_unique",
	Modified:       "modified",
	OuterBoundary:  "outer_boundary",
	Derived:        "derived",
	SharedBoundary: "shared_boundary",
	Fallback:       "fallback",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", k)
}

// ParseKind converts a strategy name into a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("match: unknown strategy %q", s)
}

// Strategy is one step of a Plan.
type Strategy struct {
	Kind Kind

	// Input names the consumed input to match against. Passthrough and
	// Modified require it. For KindUnique and SharedBoundary an empty Input
	// means the previous evaluation of the same feature.
	Input string

	// Kinds restricts the strategy to parts of these kinds. Empty means all
	// kinds the strategy handles.
	Kinds []topo.Kind
}

func (s Strategy) String() string {
	if s.Input == "" {
		return s.Kind.String()
	}
	return s.Kind.String() + ":" + s.Input
}

func (s Strategy) accepts(k topo.Kind) bool {
	return len(s.Kinds) == 0 || slices.Contains(s.Kinds, k)
}

// Validate checks that the strategy is well formed.
func (s Strategy) Validate() error {
	switch s.Kind {
	case Passthrough, Modified:
		if s.Input == "" {
			return fmt.Errorf("match: %s requires an input", s.Kind)
		}
	case Direct, OuterBoundary, Derived, Fallback:
		if s.Input != "" {
			return fmt.Errorf("match: %s takes no input", s.Kind)
		}
	case KindUnique, SharedBoundary:
	default:
		return fmt.Errorf("match: invalid strategy kind %d", s.Kind)
	}
	return nil
}

// ParseStrategy parses the text form "kind[:input]".
func ParseStrategy(text string) (Strategy, error) {
	name, input, _ := strings.Cut(strings.TrimSpace(text), ":")
	k, err := ParseKind(name)
	if err != nil {
		return Strategy{}, err
	}
	s := Strategy{Kind: k, Input: input}
	if err := s.Validate(); err != nil {
		return Strategy{}, err
	}
	return s, nil
}

// Plan is the priority-ordered strategy list of a feature type.
type Plan []Strategy

// ParsePlan parses a list of "kind[:input]" strings.
func ParsePlan(items []string) (Plan, error) {
	plan := make(Plan, 0, len(items))
	for _, item := range items {
		s, err := ParseStrategy(item)
		if err != nil {
			return nil, err
		}
		plan = append(plan, s)
	}
	return plan, nil
}

// Strings returns the text form of every step.
func (p Plan) Strings() []string {
	out := make([]string, len(p))
	for i, s := range p {
		out[i] = s.String()
	}
	return out
}

// DefaultPlan is the plan used when a feature type configures none. Inputs
// are tried in the given order.
func DefaultPlan(inputs ...string) Plan {
	plan := Plan{{Kind: Direct}}
	for _, in := range inputs {
		plan = append(plan,
			Strategy{Kind: Passthrough, Input: in},
			Strategy{Kind: Modified, Input: in},
			Strategy{Kind: KindUnique, Input: in},
		)
	}
	return append(plan,
		Strategy{Kind: KindUnique},
		Strategy{Kind: OuterBoundary},
		Strategy{Kind: Derived},
		Strategy{Kind: SharedBoundary},
		Strategy{Kind: Fallback},
	)
}

// withFallback returns p with a trailing Fallback if it lacks one.
func (p Plan) withFallback() Plan {
	if len(p) > 0 && p[len(p)-1].Kind == Fallback {
		return p
	}
	out := slices.Clone(p)
	out = slices.DeleteFunc(out, func(s Strategy) bool { return s.Kind == Fallback })
	return append(out, Strategy{Kind: Fallback})
}
