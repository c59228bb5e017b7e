// Package project schedules feature evaluation for a small parametric model.
//
// A Project owns the features, their latest results and the history graph.
// Update evaluates dirty features serially in dependency order and appends
// each new ledger to the history, so every feature sees a consistent view of
// its upstream. Remove takes a feature out of the chain and retargets the
// references of its consumers onto its own parent.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/cadseer/naming/feature"
	"github.com/cadseer/naming/history"
	"github.com/cadseer/naming/ident"
	"github.com/cadseer/naming/match"
	"github.com/cadseer/naming/resolve"
	"github.com/cadseer/naming/telemetry"
)

var (
	ErrUnknownFeature = errors.New("project: unknown feature")
	ErrDuplicate      = errors.New("project: feature already added")
	ErrParentMissing  = errors.New("project: parent not evaluated")
)

// Option configures a Project.
type Option func(*Project)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Project) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithInstruments(inst *telemetry.Instruments) Option {
	return func(p *Project) {
		p.instruments = inst
	}
}

// WithPlan sets the matching plan of features of kind.
func WithPlan(kind string, plan match.Plan) Option {
	return func(p *Project) {
		p.plans[kind] = plan
	}
}

// WithResolver sets the resolver used by features.
func WithResolver(r *resolve.Resolver) Option {
	return func(p *Project) {
		if r != nil {
			p.resolver = r
		}
	}
}

// WithHistory starts the project from an existing graph, such as one read
// back from a store.
func WithHistory(g *history.Graph) Option {
	return func(p *Project) {
		if g != nil {
			p.history = g
		}
	}
}

// WithCompaction compacts the history after every Update, keeping keep
// superseded epochs per feature. Zero disables compaction.
func WithCompaction(keep int) Option {
	return func(p *Project) {
		p.compactKeep = keep
	}
}

// Project is a chain of features and their naming state. It is not safe for
// concurrent mutation.
type Project struct {
	features map[ident.FeatureID]Feature
	order    []ident.FeatureID
	results  map[ident.FeatureID]*feature.Result
	failed   map[ident.FeatureID]error
	dirty    map[ident.FeatureID]bool
	removed  []ident.FeatureID

	history     *history.Graph
	resolver    *resolve.Resolver
	plans       map[string]match.Plan
	compactKeep int

	logger      *slog.Logger
	instruments *telemetry.Instruments
}

// New returns an empty project.
func New(opts ...Option) *Project {
	p := &Project{
		features: make(map[ident.FeatureID]Feature),
		results:  make(map[ident.FeatureID]*feature.Result),
		failed:   make(map[ident.FeatureID]error),
		dirty:    make(map[ident.FeatureID]bool),
		plans:    make(map[string]match.Plan),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.history == nil {
		p.history = history.New(history.WithLogger(p.logger))
	}
	if p.resolver == nil {
		p.resolver = resolve.New(resolve.WithLogger(p.logger), resolve.WithInstruments(p.instruments))
	}
	return p
}

// Add appends f. Its parents must already be in the project, which keeps
// insertion order a valid evaluation order.
func (p *Project) Add(f Feature) error {
	id := f.ID()
	if _, ok := p.features[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, id.Short())
	}
	for _, parent := range f.Parents() {
		if _, ok := p.features[parent.Feature]; !ok {
			return fmt.Errorf("%w: parent %s of %s", ErrUnknownFeature, parent.Feature.Short(), id.Short())
		}
	}
	p.features[id] = f
	p.order = append(p.order, id)
	p.dirty[id] = true
	return nil
}

// Touch marks a feature for re-evaluation after its parameters changed.
func (p *Project) Touch(id ident.FeatureID) error {
	if _, ok := p.features[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFeature, id.Short())
	}
	p.dirty[id] = true
	return nil
}

// Update evaluates every dirty feature and every feature downstream of one.
// A failing feature keeps no result and fails its consumers in turn. The
// joined errors of all failures are returned.
func (p *Project) Update(ctx context.Context) error {
	var errs []error
	evaluated := 0
	for _, id := range p.order {
		f := p.features[id]
		if !p.dirty[id] && !p.upstreamDirty(f) {
			continue
		}
		p.dirty[id] = true
		if err := p.evaluate(ctx, f); err != nil {
			errs = append(errs, err)
		}
		evaluated++
	}
	clear(p.dirty)

	if p.compactKeep > 0 {
		if n := p.history.Compact(p.compactKeep); n > 0 {
			p.logger.DebugContext(ctx, "history compacted", slog.Int("edges", n))
		}
	}
	p.logger.InfoContext(ctx, "project updated",
		slog.Int("evaluated", evaluated),
		slog.Int("failed", len(errs)))
	return errors.Join(errs...)
}

func (p *Project) upstreamDirty(f Feature) bool {
	for _, parent := range f.Parents() {
		if p.dirty[parent.Feature] {
			return true
		}
	}
	return false
}

func (p *Project) evaluate(ctx context.Context, f Feature) error {
	id := f.ID()
	delete(p.failed, id)
	for _, parent := range f.Parents() {
		if _, ok := p.results[parent.Feature]; !ok {
			return p.fail(id, fmt.Errorf("%w: %s", ErrParentMissing, parent.Feature.Short()))
		}
	}

	env := &Env{
		Feature:     id,
		Payload:     feature.NewPayload(p.history, p.results, p.removed...),
		Prev:        p.results[id],
		Plan:        p.plan(f),
		Resolver:    p.resolver,
		Logger:      p.logger.With(slog.String("feature", id.Short()), slog.String("kind", f.Kind())),
		Instruments: p.instruments,
	}
	r, err := f.Evaluate(ctx, env)
	if err != nil {
		return p.fail(id, err)
	}
	p.results[id] = r
	report := p.history.AppendLedger(id, r.Ledger)
	if len(report.Orphans) > 0 {
		p.logger.WarnContext(ctx, "ledger references unknown sources",
			slog.String("feature", id.Short()),
			slog.Int("orphans", len(report.Orphans)))
	}
	return nil
}

func (p *Project) fail(id ident.FeatureID, err error) error {
	delete(p.results, id)
	err = fmt.Errorf("feature %s: %w", id.Short(), err)
	p.failed[id] = err
	return err
}

func (p *Project) plan(f Feature) match.Plan {
	if plan, ok := p.plans[f.Kind()]; ok {
		return plan
	}
	var inputs []string
	for _, parent := range f.Parents() {
		inputs = append(inputs, parent.Input)
	}
	return match.DefaultPlan(inputs...)
}

// Remove takes a feature out of the chain. Consumers are re-parented onto
// its first parent and their references retargeted through the history, so
// identifiers the removed feature only carried over keep resolving. The
// consumers are re-evaluated on the next Update.
func (p *Project) Remove(id ident.FeatureID) error {
	f, ok := p.features[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFeature, id.Short())
	}
	var grand ident.FeatureID
	if parents := f.Parents(); len(parents) > 0 {
		grand = parents[0].Feature
	}

	var mapping map[ident.ID]ident.ID
	if !grand.IsZero() {
		mapping = p.history.Rewire(id, grand)
	}
	for _, cid := range p.order {
		child := p.features[cid]
		if !consumes(child, id) {
			continue
		}
		if grand.IsZero() {
			p.logger.Warn("consumer loses its input",
				slog.String("feature", cid.Short()),
				slog.String("removed", id.Short()))
			p.dirty[cid] = true
			continue
		}
		child.Reparent(id, grand)
		for _, ref := range child.References() {
			if ref.Origin == id {
				ref.Retarget(grand, mapping)
			}
		}
		p.dirty[cid] = true
	}

	p.history.RemoveFeature(id)
	p.removed = append(p.removed, id)
	delete(p.features, id)
	delete(p.results, id)
	delete(p.failed, id)
	delete(p.dirty, id)
	p.order = slices.DeleteFunc(p.order, func(x ident.FeatureID) bool { return x == id })
	p.logger.Info("feature removed",
		slog.String("feature", id.Short()),
		slog.Int("rewired", len(mapping)))
	return nil
}

func consumes(f Feature, id ident.FeatureID) bool {
	for _, parent := range f.Parents() {
		if parent.Feature == id {
			return true
		}
	}
	return false
}

// Result returns the latest result of a feature.
func (p *Project) Result(id ident.FeatureID) (*feature.Result, bool) {
	r, ok := p.results[id]
	return r, ok
}

// Err returns the error of the feature's last evaluation.
func (p *Project) Err(id ident.FeatureID) error {
	return p.failed[id]
}

// Feature returns a feature by id.
func (p *Project) Feature(id ident.FeatureID) (Feature, bool) {
	f, ok := p.features[id]
	return f, ok
}

// Features returns the features in evaluation order.
func (p *Project) Features() []Feature {
	out := make([]Feature, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.features[id])
	}
	return out
}

// History returns the project's history graph.
func (p *Project) History() *history.Graph {
	return p.history
}

// Payload returns a read-only view of the current results.
func (p *Project) Payload() *feature.Payload {
	return feature.NewPayload(p.history, p.results, p.removed...)
}

// Resolver returns the resolver features use.
func (p *Project) Resolver() *resolve.Resolver {
	return p.resolver
}
