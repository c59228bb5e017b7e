package feature

import (
	"maps"
	"slices"

	"github.com/cadseer/naming/history"
	"github.com/cadseer/naming/ident"
)

// Payload is what the dependency layer hands a feature before it evaluates:
// the results of its upstream features, a read-only view of the project
// history, and the set of features removed since references were captured.
type Payload struct {
	history history.View
	results map[ident.FeatureID]*Result
	removed map[ident.FeatureID]struct{}
}

// NewPayload assembles a payload. results is copied.
func NewPayload(view history.View, results map[ident.FeatureID]*Result, removed ...ident.FeatureID) *Payload {
	p := &Payload{
		history: view,
		results: maps.Clone(results),
		removed: make(map[ident.FeatureID]struct{}, len(removed)),
	}
	if p.results == nil {
		p.results = make(map[ident.FeatureID]*Result)
	}
	for _, f := range removed {
		p.removed[f] = struct{}{}
	}
	return p
}

// History returns the history view.
func (p *Payload) History() history.View {
	return p.history
}

// Result returns the upstream result of feature.
func (p *Payload) Result(feature ident.FeatureID) (*Result, bool) {
	r, ok := p.results[feature]
	return r, ok
}

// Features returns the upstream features, sorted.
func (p *Payload) Features() []ident.FeatureID {
	return slices.SortedFunc(maps.Keys(p.results), ident.FeatureID.Compare)
}

// Removed reports whether feature has been removed from the project.
func (p *Payload) Removed(feature ident.FeatureID) bool {
	if _, ok := p.removed[feature]; ok {
		return true
	}
	return p.history != nil && p.history.Removed(feature)
}
