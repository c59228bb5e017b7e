package resolve

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Verdict is a policy's judgement of a resolved set.
type Verdict int

const (
	OK Verdict = iota
	Warn
	Fatal
)

func (v Verdict) String() string {
	switch v {
	case OK:
		return "ok"
	case Warn:
		return "warn"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Default policy expressions.
const (
	DefaultFatal = "resolved == 0"
	DefaultWarn  = "dropped > 0"
)

// Policy decides how a feature reacts to a partial resolution. Its two rules
// are CEL expressions over the integer variables requested, resolved,
// dropped, ambiguous and via_ancestor. Fatal is checked first. An empty rule
// never fires.
type Policy struct {
	fatal, warn         cel.Program
	fatalExpr, warnExpr string
}

// NewPolicy compiles the fatal and warn rules.
func NewPolicy(fatal, warn string) (*Policy, error) {
	env, err := cel.NewEnv(
		cel.Variable("requested", cel.IntType),
		cel.Variable("resolved", cel.IntType),
		cel.Variable("dropped", cel.IntType),
		cel.Variable("ambiguous", cel.IntType),
		cel.Variable("via_ancestor", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("resolve: policy environment: %w", err)
	}
	p := &Policy{fatalExpr: fatal, warnExpr: warn}
	if p.fatal, err = compile(env, fatal); err != nil {
		return nil, fmt.Errorf("resolve: fatal rule: %w", err)
	}
	if p.warn, err = compile(env, warn); err != nil {
		return nil, fmt.Errorf("resolve: warn rule: %w", err)
	}
	return p, nil
}

// DefaultPolicy is fatal when nothing resolved and warns on any drop.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(DefaultFatal, DefaultWarn)
	if err != nil {
		panic(err)
	}
	return p
}

func compile(env *cel.Env, expr string) (cel.Program, error) {
	if expr == "" {
		return nil, nil
	}
	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return nil, iss.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%q is %s, want bool", expr, ast.OutputType())
	}
	return env.Program(ast)
}

// Evaluate judges c.
func (p *Policy) Evaluate(c Counts) (Verdict, error) {
	vars := map[string]any{
		"requested":    int64(c.Requested),
		"resolved":     int64(c.Resolved),
		"dropped":      int64(c.Dropped),
		"ambiguous":    int64(c.Ambiguous),
		"via_ancestor": int64(c.ViaAncestor),
	}
	if hit, err := fire(p.fatal, vars); err != nil {
		return Fatal, fmt.Errorf("resolve: fatal rule %q: %w", p.fatalExpr, err)
	} else if hit {
		return Fatal, nil
	}
	if hit, err := fire(p.warn, vars); err != nil {
		return Warn, fmt.Errorf("resolve: warn rule %q: %w", p.warnExpr, err)
	} else if hit {
		return Warn, nil
	}
	return OK, nil
}

func fire(prg cel.Program, vars map[string]any) (bool, error) {
	if prg == nil {
		return false, nil
	}
	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result %v is not a bool", out)
	}
	return b, nil
}

func (p *Policy) String() string {
	return fmt.Sprintf("fatal: %q, warn: %q", p.fatalExpr, p.warnExpr)
}
