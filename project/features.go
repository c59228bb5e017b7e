package project

import (
	"context"
	"errors"
	"fmt"

	"github.com/cadseer/naming/feature"
	"github.com/cadseer/naming/ident"
	"github.com/cadseer/naming/pick"
	"github.com/cadseer/naming/resolve"
	"github.com/cadseer/naming/topo"
	"github.com/cadseer/naming/topo/synth"
)

// Feature kinds built into the project.
const (
	KindBox   = "box"
	KindSplit = "split"
	KindTrim  = "trim"
)

// Box is a primitive block. Every part except the wires is an anchor, so
// its identifiers survive any change of size.
type Box struct {
	Base
	Length, Width, Height float64
}

// NewBox returns a box of the given size.
func NewBox(length, width, height float64) *Box {
	return &Box{Base: NewBase(KindBox), Length: length, Width: width, Height: height}
}

func (b *Box) References() []*pick.Reference { return nil }

// Evaluate implements Feature.
func (b *Box) Evaluate(ctx context.Context, env *Env) (*feature.Result, error) {
	if b.Length <= 0 || b.Width <= 0 || b.Height <= 0 {
		return nil, fmt.Errorf("box: invalid size %gx%gx%g", b.Length, b.Width, b.Height)
	}
	shape, roles := synth.Box(b.Length, b.Width, b.Height)
	e := env.Begin(shape)
	for role, part := range roles {
		if part.Kind() == topo.Wire {
			continue
		}
		if _, err := e.BindAnchor(role, part); err != nil {
			return nil, fmt.Errorf("box: anchor %s: %w", role, err)
		}
	}
	e.Match(ctx, env.Plan)
	return e.Finish(ctx), nil
}

// Split cuts one edge of its base in two at a new vertex.
type Split struct {
	Base

	// Edge picks the edge to cut in the base feature.
	Edge *pick.Reference

	// At keys the new vertex.
	At string
}

// NewSplit returns a feature cutting edge of base at.
func NewSplit(base ident.FeatureID, edge *pick.Reference, at string) *Split {
	return &Split{Base: NewBase(KindSplit, Parent{Input: "base", Feature: base}), Edge: edge, At: at}
}

func (s *Split) References() []*pick.Reference { return []*pick.Reference{s.Edge} }

// Evaluate implements Feature.
func (s *Split) Evaluate(ctx context.Context, env *Env) (*feature.Result, error) {
	in, set, part, err := pickOne(ctx, env, &s.Base, s.Edge, topo.Edge)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	shape, err := synthShape(in)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	cut, hist := synth.SplitEdge(shape, part, s.At)

	e := env.Begin(cut)
	e.Consume("base", in, hist)
	e.Match(ctx, env.Plan)
	r := e.Finish(ctx)
	s.Edge = resolve.Reconvert(set, env.Payload.History())
	return r, nil
}

// Trim removes one part of its base, as a boolean cutting it away would.
type Trim struct {
	Base
	Part *pick.Reference
}

// NewTrim returns a feature removing part from base.
func NewTrim(base ident.FeatureID, part *pick.Reference) *Trim {
	return &Trim{Base: NewBase(KindTrim, Parent{Input: "base", Feature: base}), Part: part}
}

func (t *Trim) References() []*pick.Reference { return []*pick.Reference{t.Part} }

// Evaluate implements Feature.
func (t *Trim) Evaluate(ctx context.Context, env *Env) (*feature.Result, error) {
	in, set, part, err := pickOne(ctx, env, &t.Base, t.Part)
	if err != nil {
		return nil, fmt.Errorf("trim: %w", err)
	}
	shape, err := synthShape(in)
	if err != nil {
		return nil, fmt.Errorf("trim: %w", err)
	}
	rest, hist := synth.RemovePart(shape, part)

	e := env.Begin(rest)
	e.Consume("base", in, hist)
	e.Match(ctx, env.Plan)
	r := e.Finish(ctx)
	t.Part = resolve.Reconvert(set, env.Payload.History())
	return r, nil
}

// pickOne resolves ref into the base parent and returns the single part it
// names there. When a split left several candidates the first one of an
// accepted kind in identifier order wins.
func pickOne(ctx context.Context, env *Env, b *Base, ref *pick.Reference, kinds ...topo.Kind) (*feature.Result, *resolve.Set, *synth.Part, error) {
	base, ok := b.Parent("base")
	if !ok {
		return nil, nil, nil, errors.New("no base input")
	}
	in, err := env.Input(base)
	if err != nil {
		return nil, nil, nil, err
	}
	set, err := env.Resolve(ctx, ref, base)
	if err != nil {
		return nil, nil, nil, err
	}
	ids := set.IDs()
	ident.Sort(ids)
	for _, id := range ids {
		p, ok := in.Graph.Lookup(id)
		if !ok || (len(kinds) > 0 && !containsKind(kinds, p.Kind())) {
			continue
		}
		sp, ok := p.(*synth.Part)
		if !ok {
			return nil, nil, nil, fmt.Errorf("part %s is not editable", p)
		}
		if len(ids) > 1 {
			env.Logger.WarnContext(ctx, "reference is ambiguous, using first candidate",
				"reference", ref.String(), "candidates", len(ids), "picked", id.Short())
		}
		return in, set, sp, nil
	}
	return nil, nil, nil, fmt.Errorf("reference %s names no usable part", ref)
}

func containsKind(kinds []topo.Kind, k topo.Kind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

func synthShape(r *feature.Result) (*synth.Shape, error) {
	s, ok := r.Shape.(*synth.Shape)
	if !ok {
		return nil, fmt.Errorf("shape of %s is not editable", r.Feature.Short())
	}
	return s, nil
}
