package project

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/cadseer/naming/feature"
	"github.com/cadseer/naming/ident"
	"github.com/cadseer/naming/match"
	"github.com/cadseer/naming/pick"
	"github.com/cadseer/naming/resolve"
	"github.com/cadseer/naming/telemetry"
	"github.com/cadseer/naming/topo"
)

// Parent is one upstream feature consumed under an input name.
type Parent struct {
	Input   string
	Feature ident.FeatureID
}

// Feature is a modeling operation scheduled by a Project.
type Feature interface {
	ID() ident.FeatureID

	// Kind names the feature type. Plans are configured per kind.
	Kind() string

	Parents() []Parent

	// References returns the references the feature holds into its
	// parents. The project retargets them when a parent is removed.
	References() []*pick.Reference

	// Reparent replaces the parent old with parent.
	Reparent(old, parent ident.FeatureID)

	// Evaluate builds the feature's shape and names it.
	Evaluate(ctx context.Context, env *Env) (*feature.Result, error)
}

// Base carries the bookkeeping shared by all features.
type Base struct {
	id      ident.FeatureID
	kind    string
	parents []Parent
}

// NewBase returns the bookkeeping of a fresh feature of kind.
func NewBase(kind string, parents ...Parent) Base {
	return Base{id: ident.NewFeature(), kind: kind, parents: parents}
}

func (b *Base) ID() ident.FeatureID { return b.id }
func (b *Base) Kind() string        { return b.kind }
func (b *Base) Parents() []Parent   { return slices.Clone(b.parents) }

// Reparent implements Feature.
func (b *Base) Reparent(old, parent ident.FeatureID) {
	for i := range b.parents {
		if b.parents[i].Feature == old {
			b.parents[i].Feature = parent
		}
	}
}

// Parent returns the parent consumed under input.
func (b *Base) Parent(input string) (ident.FeatureID, bool) {
	for _, p := range b.parents {
		if p.Input == input {
			return p.Feature, true
		}
	}
	return ident.FeatureID{}, false
}

// Env is what a feature sees while it evaluates.
type Env struct {
	Feature ident.FeatureID

	// Payload holds the results of every evaluated upstream feature.
	Payload *feature.Payload

	// Prev is the feature's previous result, nil on the first evaluation.
	Prev *feature.Result

	Plan        match.Plan
	Resolver    *resolve.Resolver
	Logger      *slog.Logger
	Instruments *telemetry.Instruments
}

// Begin opens the naming of shape.
func (e *Env) Begin(shape topo.Shape) *feature.Evaluation {
	return feature.Begin(e.Feature, shape, e.Prev,
		feature.WithLogger(e.Logger),
		feature.WithInstruments(e.Instruments))
}

// Input returns the result of parent.
func (e *Env) Input(parent ident.FeatureID) (*feature.Result, error) {
	r, ok := e.Payload.Result(parent)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrParentMissing, parent.Short())
	}
	return r, nil
}

// Resolve resolves ref into target. A fatal verdict is an error.
func (e *Env) Resolve(ctx context.Context, ref *pick.Reference, target ident.FeatureID) (*resolve.Set, error) {
	set, err := e.Resolver.Resolve(ctx, ref, e.Payload, resolve.WithTarget(target))
	if err != nil {
		return set, fmt.Errorf("resolve %s: %w", ref, err)
	}
	return set, nil
}
