// Package resolve maps references captured in the past onto the current
// model.
//
// Each selected identifier is walked forward through the history graph to
// the live identifiers of the target feature. When nothing live descends from
// it, the reference's lineage fragment is replayed: its ancestors are tried
// nearest first and the first level with live descendants wins. Items that
// still resolve to nothing are dropped with a diagnostic; the rest of the
// reference survives. A reference only fails as a whole, with
// *Unresolvable, when its feature is gone or not evaluated, when every item
// dropped, or when the owner's Policy says so.
package resolve

import (
	"context"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cadseer/naming/diag"
	"github.com/cadseer/naming/feature"
	"github.com/cadseer/naming/history"
	"github.com/cadseer/naming/ident"
	"github.com/cadseer/naming/partgraph"
	"github.com/cadseer/naming/pick"
	"github.com/cadseer/naming/telemetry"
	"github.com/cadseer/naming/topo"
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithInstruments sets the telemetry instruments.
func WithInstruments(inst *telemetry.Instruments) Option {
	return func(r *Resolver) {
		r.instruments = inst
	}
}

// WithPolicy sets the policy that judges every resolved set. Without one,
// DefaultPolicy is used.
func WithPolicy(p *Policy) Option {
	return func(r *Resolver) {
		r.policy = p
	}
}

// Resolver resolves references. It holds no per-call state and is safe for
// concurrent use.
type Resolver struct {
	logger      *slog.Logger
	instruments *telemetry.Instruments
	policy      *Policy
}

// New returns a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	if r.policy == nil {
		r.policy = DefaultPolicy()
	}
	return r
}

// Policy returns the policy in use.
func (r *Resolver) Policy() *Policy {
	return r.policy
}

type callConfig struct {
	target ident.FeatureID
}

// CallOption adjusts a single Resolve call.
type CallOption func(*callConfig)

// WithTarget resolves into feature instead of the reference's origin. The
// target is normally a feature downstream of the origin.
func WithTarget(feature ident.FeatureID) CallOption {
	return func(c *callConfig) {
		c.target = feature
	}
}

// Resolve maps ref onto the current model described by p.
//
// On success the set's Verdict is OK or Warn. When some items resolved but
// the policy is fatal, or when every item dropped, the set is returned
// together with an *Unresolvable so the caller can still report what was
// found.
func (r *Resolver) Resolve(ctx context.Context, ref *pick.Reference, p *feature.Payload, opts ...CallOption) (*Set, error) {
	cfg := callConfig{target: ref.Origin}
	for _, opt := range opts {
		opt(&cfg)
	}
	target := cfg.target

	ctx, span := r.instruments.Start(ctx, "naming.resolve",
		attribute.String("origin", ref.Origin.String()),
		attribute.String("target", target.String()),
		attribute.Int("requested", len(ref.IDs)))
	defer span.End()

	fail := func(reason Reason, f ident.FeatureID, set *Set) (*Set, error) {
		err := &Unresolvable{Reason: reason, Feature: f, Reference: ref}
		span.SetStatus(codes.Error, reason.String())
		r.logger.WarnContext(ctx, "reference unresolvable",
			slog.String("reference", ref.String()),
			slog.String("reason", reason.String()))
		return set, err
	}

	view := p.History()
	for _, f := range []ident.FeatureID{ref.Origin, target} {
		if p.Removed(f) {
			return fail(FeatureGone, f, nil)
		}
	}
	if view == nil || view.Epoch(target) == 0 {
		return fail(NotEvaluated, target, nil)
	}

	set := &Set{Reference: ref, Target: target}
	if ref.IsWholeShape() {
		res, ok := p.Result(target)
		if !ok {
			return fail(NotEvaluated, target, nil)
		}
		set.Items = []Item{{IDs: []ident.ID{res.Root()}}}
		r.instruments.Resolved(ctx, telemetry.OutcomeDirect, 0)
	} else {
		var targetGraph *partgraph.Graph
		if res, ok := p.Result(target); ok {
			targetGraph = res.Graph
		}
		for _, id := range ref.IDs {
			keep := kindFilter(r.kindsOf(ref, p, id), targetGraph)
			set.Items = append(set.Items, r.item(ctx, ref, view, target, id, keep, &set.Diagnostics))
		}
	}
	set.Diagnostics = set.Diagnostics.WithFeature(target)

	counts := set.Counts()
	span.SetAttributes(
		attribute.Int("resolved", counts.Resolved),
		attribute.Int("dropped", counts.Dropped),
		attribute.Int("via_ancestor", counts.ViaAncestor))

	verdict, err := r.policy.Evaluate(counts)
	if err != nil {
		r.logger.ErrorContext(ctx, "resolution policy failed", slog.Any("error", err))
	}
	set.Verdict = verdict

	if counts.Resolved == 0 {
		return fail(NothingResolved, target, set)
	}
	if verdict == Fatal {
		return fail(Rejected, target, set)
	}
	if verdict == Warn {
		r.logger.WarnContext(ctx, "reference partially resolved",
			slog.String("reference", ref.String()),
			slog.Int("dropped", counts.Dropped),
			slog.Int("via_ancestor", counts.ViaAncestor))
	}
	span.SetStatus(codes.Ok, "")
	return set, nil
}

// kindsOf returns the kinds id may resolve to: the reference's own, or the
// kind id has in the origin's current result.
func (r *Resolver) kindsOf(ref *pick.Reference, p *feature.Payload, id ident.ID) []topo.Kind {
	if len(ref.Kinds) > 0 {
		return ref.Kinds
	}
	res, ok := p.Result(ref.Origin)
	if !ok {
		return nil
	}
	if part, ok := res.Graph.Lookup(id); ok {
		return []topo.Kind{part.Kind()}
	}
	return nil
}

// kindFilter drops identifiers of g whose part is not of one of kinds. With
// no kinds or no graph it keeps everything.
func kindFilter(kinds []topo.Kind, g *partgraph.Graph) func([]ident.ID) []ident.ID {
	return func(ids []ident.ID) []ident.ID {
		if len(kinds) == 0 || g == nil {
			return ids
		}
		return slices.DeleteFunc(ids, func(id ident.ID) bool {
			part, ok := g.Lookup(id)
			return ok && !slices.Contains(kinds, part.Kind())
		})
	}
}

func (r *Resolver) item(ctx context.Context, ref *pick.Reference, view history.View, target ident.FeatureID, id ident.ID, keep func([]ident.ID) []ident.ID, diags *diag.List) Item {
	it := Item{Requested: id}
	node := history.Node{Feature: ref.Origin, ID: id}
	it.IDs = keep(view.Forward(node, target))

	// A node still live in its origin whose descendants are all gone was
	// deleted downstream and is dropped. Only superseded or compacted nodes
	// fall back to their ancestors.
	if len(it.IDs) == 0 && !view.IsLive(node) {
		if root, ok := ref.Fragment.Root(id); ok {
			for depth, level := range ref.Fragment.Levels(root) {
				found := make(ident.Set)
				for _, n := range level {
					for _, cur := range view.Forward(n, target) {
						found.Add(cur)
					}
				}
				if ids := keep(found.Sorted()); len(ids) > 0 {
					it.IDs = ids
					it.ViaAncestor = true
					it.Hops = depth + 1
					break
				}
			}
		}
	}

	switch {
	case it.Dropped():
		*diags = append(*diags, diag.New(diag.CodeDropped, id, "no live descendant in %s", target.Short()))
		r.instruments.Resolved(ctx, telemetry.OutcomeDropped, 0)
		return it
	case it.ViaAncestor:
		*diags = append(*diags, diag.New(diag.CodeViaAncestor, id, "resolved through an ancestor %d hops back", it.Hops))
		r.instruments.Resolved(ctx, telemetry.OutcomeAncestor, it.Hops)
	default:
		r.instruments.Resolved(ctx, telemetry.OutcomeDirect, 0)
	}
	if len(it.IDs) > 1 {
		*diags = append(*diags, diag.New(diag.CodeSplit, id, "resolved to %d identifiers", len(it.IDs)))
	}
	return it
}

// Reconvert captures a fresh reference to the identifiers of set, so the
// lineage it carries starts from the current model. Selection details of
// the original reference are kept.
func Reconvert(set *Set, view history.View) *pick.Reference {
	orig := set.Reference
	if orig.IsWholeShape() {
		ref := pick.WholeShape(set.Target)
		ref.Tag = orig.Tag
		return ref
	}
	ref := pick.New(set.Target, view, orig.Selection, set.IDs()...)
	ref.U, ref.V, ref.Tag = orig.U, orig.V, orig.Tag
	ref.Kinds = slices.Clone(orig.Kinds)
	return ref
}
