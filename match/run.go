package match

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cadseer/naming/diag"
	"github.com/cadseer/naming/evolve"
	"github.com/cadseer/naming/ident"
	"github.com/cadseer/naming/partgraph"
	"github.com/cadseer/naming/telemetry"
	"github.com/cadseer/naming/topo"
)

// Input is one consumed upstream result.
type Input struct {
	Feature ident.FeatureID

	// Graph is the frozen part graph of the input.
	Graph *partgraph.Graph

	// Modifier answers generated/modified queries for the operation that
	// consumed this input. It may be nil.
	Modifier topo.Modifier
}

// Env is everything the strategies read and write for one evaluation.
type Env struct {
	Feature ident.FeatureID

	// Graph is the part graph being named.
	Graph *partgraph.Graph

	// Ledger receives the evolution records.
	Ledger *evolve.Ledger

	// Previous is the frozen part graph of the previous evaluation of the
	// same feature, or nil on first evaluation.
	Previous *partgraph.Graph

	// Inputs maps input names used by plans to consumed results.
	Inputs map[string]Input

	Logger      *slog.Logger
	Instruments *telemetry.Instruments
}

// sourceHas reports whether id existed before this evaluation.
func (e *Env) sourceHas(id ident.ID) bool {
	if e.Previous != nil && e.Previous.HasID(id) {
		return true
	}
	for _, in := range e.Inputs {
		if in.Graph != nil && in.Graph.HasID(id) {
			return true
		}
	}
	return false
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// StageResult reports one strategy's work.
type StageResult struct {
	Strategy  Strategy
	Matched   int
	Ambiguous int
	Duration  time.Duration
}

// Report summarizes a Run.
type Report struct {
	Stages      []StageResult
	Fallback    int
	Diagnostics diag.List
}

// Matched returns the parts identified by every stage except the fallback.
func (r Report) Matched() int {
	n := 0
	for _, s := range r.Stages {
		if s.Strategy.Kind != Fallback {
			n += s.Matched
		}
	}
	return n
}

// stage accumulates the outcome of one strategy.
type stage struct {
	env      *Env
	strategy Strategy
	matched  int
	ambig    int
	diags    diag.List
}

func (s *stage) bind(part topo.Part, id ident.ID) bool {
	if err := s.env.Graph.Assign(part, id); err != nil {
		s.diags = append(s.diags, diag.New(diag.CodeRebound, id, "%s: %v", s.strategy, err))
		return false
	}
	s.matched++
	return true
}

func (s *stage) ambiguous(id ident.ID, format string, args ...any) {
	s.ambig++
	d := diag.New(diag.CodeAmbiguous, id, format, args...)
	d.Message = s.strategy.String() + ": " + d.Message
	s.diags = append(s.diags, d)
	s.env.logger().Debug("ambiguous match skipped",
		slog.String("strategy", s.strategy.String()),
		slog.String("id", id.String()),
		slog.String("detail", d.Message))
}

// Run applies plan to env until every part of env.Graph has an identifier.
// A Fallback step is appended when the plan lacks one, so on return the graph
// is complete.
func Run(ctx context.Context, env *Env, plan Plan) Report {
	ctx, span := env.Instruments.Start(ctx, "naming.match",
		attribute.String("feature", env.Feature.String()),
		attribute.Int("parts", env.Graph.Len()))
	defer span.End()

	var report Report
	for _, strategy := range plan.withFallback() {
		if env.Graph.Complete() {
			break
		}
		if err := strategy.Validate(); err != nil {
			env.logger().Warn("invalid strategy skipped", slog.String("strategy", strategy.String()), slog.Any("error", err))
			continue
		}

		start := time.Now()
		st := &stage{env: env, strategy: strategy}
		apply(st)

		report.Stages = append(report.Stages, StageResult{
			Strategy:  strategy,
			Matched:   st.matched,
			Ambiguous: st.ambig,
			Duration:  time.Since(start),
		})
		report.Diagnostics = append(report.Diagnostics, st.diags...)
		if strategy.Kind == Fallback {
			report.Fallback = st.matched
			env.Instruments.Fallback(ctx, st.matched)
		} else {
			env.Instruments.Matched(ctx, strategy.Kind.String(), st.matched)
		}
		env.Instruments.Ambiguous(ctx, strategy.Kind.String(), st.ambig)
	}

	report.Diagnostics = report.Diagnostics.WithFeature(env.Feature)
	span.SetAttributes(
		attribute.Int("matched", report.Matched()),
		attribute.Int("fallback", report.Fallback))
	if report.Fallback > 0 {
		span.SetStatus(codes.Error, "fallback identifiers minted")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return report
}

func apply(st *stage) {
	switch st.strategy.Kind {
	case Direct:
		direct(st)
	case Passthrough:
		passthrough(st)
	case KindUnique:
		kindUnique(st)
	case Modified:
		modified(st)
	case OuterBoundary:
		outerBoundary(st)
	case Derived:
		derived(st)
	case SharedBoundary:
		sharedBoundary(st)
	case Fallback:
		fallback(st)
	}
}
