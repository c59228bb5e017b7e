// Package diag carries naming anomalies out of evaluation and resolution.
//
// Naming problems never abort geometry. Freezing a part graph, running the
// matching strategies and resolving references all report what went wrong
// as a List of Diagnostics that the owning feature can log, surface to the
// user, or hand to a policy.
package diag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cadseer/naming/ident"
)

// Severity ranks a diagnostic.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Code identifies the kind of anomaly.
type Code string

const (
	// CodeUnidentified: a part has no identifier after matching.
	CodeUnidentified Code = "unidentified_part"

	// CodeDuplicate: one identifier is bound to more than one part.
	CodeDuplicate Code = "duplicate_identifier"

	// CodeNoRecord: a current identifier is neither the target of an
	// evolution record nor anchor bound.
	CodeNoRecord Code = "missing_record"

	// CodeDangling: an evolution record targets an identifier that is not in
	// the final part graph. The record is pruned.
	CodeDangling Code = "dangling_record"

	// CodeUnknownSource: an evolution record's source did not exist in the
	// previous evaluation or any consumed input.
	CodeUnknownSource Code = "unknown_source"

	// CodeAnchorUnbound: an anchor names an identifier that no part carries.
	CodeAnchorUnbound Code = "anchor_unbound"

	// CodeRebound: a part was assigned a second identifier; the last one won.
	CodeRebound Code = "rebound_part"

	// CodeAmbiguous: a matching strategy found more than one candidate.
	CodeAmbiguous Code = "ambiguous_match"

	// CodeFallback: a part received a fresh identifier with no lineage.
	CodeFallback Code = "fallback_identifier"

	// CodeOrphanSource: the history graph could not place a record's source.
	CodeOrphanSource Code = "orphan_source"

	// CodeDropped: a referenced identifier resolved to nothing.
	CodeDropped Code = "reference_dropped"

	// CodeViaAncestor: a referenced identifier was resolved through an
	// ancestor in its lineage fragment rather than directly.
	CodeViaAncestor Code = "resolved_via_ancestor"

	// CodeSplit: a referenced identifier resolved to more than one current
	// identifier.
	CodeSplit Code = "reference_split"
)

// DefaultSeverity returns the severity used by New for code.
func DefaultSeverity(code Code) Severity {
	switch code {
	case CodeUnidentified, CodeDuplicate, CodeNoRecord, CodeAnchorUnbound:
		return SeverityError
	case CodeDangling, CodeViaAncestor, CodeSplit:
		return SeverityInfo
	default:
		return SeverityWarning
	}
}

// Diagnostic is one reported anomaly.
type Diagnostic struct {
	Code     Code            `json:"code"`
	Severity Severity        `json:"severity"`
	Feature  ident.FeatureID `json:"feature,omitempty"`
	ID       ident.ID        `json:"id,omitempty"`
	Message  string          `json:"message"`
}

// New builds a diagnostic with the default severity for code.
func New(code Code, id ident.ID, format string, args ...any) Diagnostic {
	return Diagnostic{
		Code:     code,
		Severity: DefaultSeverity(code),
		ID:       id,
		Message:  fmt.Sprintf(format, args...),
	}
}

func (d Diagnostic) String() string {
	if d.ID.IsNil() {
		return fmt.Sprintf("%s %s: %s", d.Severity, d.Code, d.Message)
	}
	return fmt.Sprintf("%s %s [%s]: %s", d.Severity, d.Code, d.ID.Short(), d.Message)
}

// List is an ordered collection of diagnostics.
type List []Diagnostic

// Has reports whether any diagnostic carries code.
func (l List) Has(code Code) bool {
	return l.Count(code) > 0
}

// Count returns the number of diagnostics carrying code.
func (l List) Count(code Code) int {
	n := 0
	for _, d := range l {
		if d.Code == code {
			n++
		}
	}
	return n
}

// Errors returns the diagnostics of error severity.
func (l List) Errors() List {
	var out List
	for _, d := range l {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// WithFeature stamps every diagnostic that has no feature yet.
func (l List) WithFeature(f ident.FeatureID) List {
	for i := range l {
		if l[i].Feature.IsZero() {
			l[i].Feature = f
		}
	}
	return l
}

// Log writes each diagnostic to logger at the level matching its severity.
func (l List) Log(ctx context.Context, logger *slog.Logger) {
	for _, d := range l {
		level := slog.LevelInfo
		switch d.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityError:
			level = slog.LevelError
		}
		attrs := []slog.Attr{slog.String("code", string(d.Code))}
		if !d.Feature.IsZero() {
			attrs = append(attrs, slog.String("feature", d.Feature.String()))
		}
		if !d.ID.IsNil() {
			attrs = append(attrs, slog.String("id", d.ID.String()))
		}
		logger.LogAttrs(ctx, level, d.Message, attrs...)
	}
}
