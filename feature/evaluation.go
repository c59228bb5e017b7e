// Package feature drives the naming side of one feature evaluation.
//
// An Evaluation is opened with Begin once the kernel has produced the new
// shape. The feature binds its semantic anchors, declares which upstream
// results it consumed, runs its matching plan and calls Finish. The Result
// it gets back is immutable: the part graph is frozen and the ledger is ready
// to be appended to the project history.
//
// Naming problems never reject geometry. Finish records every violation as a
// diagnostic and marks the result Degraded.
package feature

import (
	"context"
	"log/slog"

	"github.com/cadseer/naming/diag"
	"github.com/cadseer/naming/evolve"
	"github.com/cadseer/naming/ident"
	"github.com/cadseer/naming/match"
	"github.com/cadseer/naming/partgraph"
	"github.com/cadseer/naming/telemetry"
	"github.com/cadseer/naming/topo"
)

// Result is the naming outcome of one evaluation.
type Result struct {
	Feature ident.FeatureID

	// Shape is the geometry the feature produced.
	Shape topo.Shape

	// Graph is frozen.
	Graph *partgraph.Graph

	// Ledger holds the evolution records of this evaluation.
	Ledger *evolve.Ledger

	// Report is the summary of every Match call.
	Report match.Report

	Diagnostics diag.List

	// Degraded is set when the result violates a naming invariant. The
	// geometry is still usable but references into it may not resolve.
	Degraded bool
}

// Root returns the identifier of the whole aggregate.
func (r *Result) Root() ident.ID {
	return r.Graph.Root()
}

// Anchor returns the identifier bound to a semantic role.
func (r *Result) Anchor(name string) (ident.ID, bool) {
	return r.Graph.Anchor(name)
}

// Option configures an Evaluation.
type Option func(*Evaluation)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluation) {
		e.logger = logger
	}
}

// WithInstruments sets the telemetry instruments passed to matching.
func WithInstruments(inst *telemetry.Instruments) Option {
	return func(e *Evaluation) {
		e.instruments = inst
	}
}

// Evaluation is the in-progress naming of one feature evaluation. It is not
// safe for concurrent use.
type Evaluation struct {
	feature ident.FeatureID
	shape   topo.Shape
	graph   *partgraph.Graph
	ledger  *evolve.Ledger
	prev    *Result
	inputs  map[string]match.Input
	report  match.Report
	diags   diag.List
	done    bool

	logger      *slog.Logger
	instruments *telemetry.Instruments
}

// Begin opens the evaluation of feature for the freshly computed shape. prev
// is the result of the feature's previous evaluation, or nil on the first
// one.
func Begin(feature ident.FeatureID, shape topo.Shape, prev *Result, opts ...Option) *Evaluation {
	e := &Evaluation{
		feature: feature,
		shape:   shape,
		prev:    prev,
		inputs:  make(map[string]match.Input),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	var prior *evolve.Ledger
	if prev != nil {
		prior = prev.Ledger
	}
	e.graph = partgraph.New(shape, partgraph.WithLogger(e.logger))
	e.ledger = evolve.NewLedger(prior)
	return e
}

// Feature returns the feature being evaluated.
func (e *Evaluation) Feature() ident.FeatureID {
	return e.feature
}

// Graph returns the part graph being named.
func (e *Evaluation) Graph() *partgraph.Graph {
	return e.graph
}

// Ledger returns the ledger being filled.
func (e *Evaluation) Ledger() *evolve.Ledger {
	return e.ledger
}

// Consume registers an upstream result under the input name used by the
// feature's plan. mod answers the kernel's generated/modified queries for the
// operation applied to that input and may be nil.
func (e *Evaluation) Consume(name string, r *Result, mod topo.Modifier) {
	e.inputs[name] = match.Input{Feature: r.Feature, Graph: r.Graph, Modifier: mod}
}

// BindAnchor names part after a semantic role of the feature. The identifier
// depends only on the feature and the role, so it is the same in every
// evaluation and needs no evolution record.
func (e *Evaluation) BindAnchor(name string, part topo.Part) (ident.ID, error) {
	id := ident.DeriveAnchor(e.feature, name)
	if err := e.graph.Assign(part, id); err != nil {
		e.diags = append(e.diags, diag.New(diag.CodeRebound, id, "anchor %q: %v", name, err))
		if !e.graph.Has(part) {
			return ident.Nil, err
		}
	}
	if err := e.graph.BindAnchor(name, id); err != nil {
		return ident.Nil, err
	}
	e.ledger.Anchor(id)
	return id, nil
}

// Match runs plan over the parts that are still unidentified.
func (e *Evaluation) Match(ctx context.Context, plan match.Plan) match.Report {
	env := &match.Env{
		Feature:     e.feature,
		Graph:       e.graph,
		Ledger:      e.ledger,
		Inputs:      e.inputs,
		Logger:      e.logger,
		Instruments: e.instruments,
	}
	if e.prev != nil {
		env.Previous = e.prev.Graph
	}
	report := match.Run(ctx, env, plan)
	e.report.Stages = append(e.report.Stages, report.Stages...)
	e.report.Fallback += report.Fallback
	e.report.Diagnostics = append(e.report.Diagnostics, report.Diagnostics...)
	return report
}

// Finish prunes records whose targets did not survive, freezes the part
// graph and checks lineage. Calling Finish twice is a programming error.
func (e *Evaluation) Finish(ctx context.Context) *Result {
	if e.done {
		panic("feature: evaluation finished twice")
	}
	e.done = true

	diags := append(diag.List{}, e.report.Diagnostics...)
	diags = append(diags, e.diags...)
	diags = append(diags, e.pruneDangling()...)
	diags = append(diags, e.checkSources()...)
	diags = append(diags, e.graph.Freeze(e.ledger)...)
	diags = diags.WithFeature(e.feature)
	e.ledger.ReleasePrior()

	r := &Result{
		Feature:     e.feature,
		Shape:       e.shape,
		Graph:       e.graph,
		Ledger:      e.ledger,
		Report:      e.report,
		Diagnostics: diags,
		Degraded:    len(diags.Errors()) > 0 || diags.Has(diag.CodeUnknownSource),
	}
	if r.Degraded {
		e.logger.WarnContext(ctx, "feature naming degraded",
			slog.String("feature", e.feature.String()),
			slog.Int("errors", len(diags.Errors())))
	}
	diags.Log(ctx, e.logger)
	return r
}

func (e *Evaluation) pruneDangling() diag.List {
	var out diag.List
	seen := make(ident.Set)
	for _, r := range e.ledger.Records() {
		if !e.graph.HasID(r.Target) && seen.Add(r.Target) {
			out = append(out, diag.New(diag.CodeDangling, r.Target, "record target is not in the part graph"))
		}
	}
	if len(out) > 0 {
		e.ledger.Retain(e.graph.HasID)
	}
	return out
}

// checkSources reports records whose source existed neither in the previous
// evaluation nor in a consumed input.
func (e *Evaluation) checkSources() diag.List {
	var out diag.List
	seen := make(ident.Set)
	for _, r := range e.ledger.Records() {
		if r.Source.IsNil() || e.known(r.Source) || !seen.Add(r.Source) {
			continue
		}
		out = append(out, diag.New(diag.CodeUnknownSource, r.Source, "source of %s did not exist before", r.Target.Short()))
	}
	return out
}

func (e *Evaluation) known(id ident.ID) bool {
	if e.prev != nil && e.prev.Graph.HasID(id) {
		return true
	}
	for _, in := range e.inputs {
		if in.Graph.HasID(id) {
			return true
		}
	}
	return false
}
