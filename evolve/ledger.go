// Package evolve records how identifiers of one feature evaluation relate to
// identifiers that existed before it.
//
// A Ledger is a set of (source, target) records produced while matching the
// parts of a new evaluation. The source is an identifier from the previous
// evaluation of the same feature or from a consumed input; it is nil when the
// target has no prior identity. One source may evolve into several targets
// (split) and several sources may devolve from one target (merge).
//
// Anchor-bound identifiers are listed separately. They are stable by
// construction and carry no records.
package evolve

import (
	"github.com/cadseer/naming/ident"
)

// Record is one lineage edge.
type Record struct {
	Source ident.ID
	Target ident.ID
}

// Ledger is the evolution record set of one feature evaluation. The zero
// value is not usable; call NewLedger.
type Ledger struct {
	records  []Record
	index    map[Record]struct{}
	bySource map[ident.ID][]int
	byTarget map[ident.ID][]int

	anchored []ident.ID
	anchors  ident.Set

	prior *Ledger
}

// NewLedger returns an empty ledger. prior is the ledger of the previous
// evaluation of the same feature, or nil. Mint consults it so that
// re-evaluation hands out the same identifiers for the same sources.
func NewLedger(prior *Ledger) *Ledger {
	return &Ledger{
		index:    make(map[Record]struct{}),
		bySource: make(map[ident.ID][]int),
		byTarget: make(map[ident.ID][]int),
		anchors:  make(ident.Set),
		prior:    prior,
	}
}

// Prior returns the ledger passed to NewLedger, or nil once released.
func (l *Ledger) Prior() *Ledger {
	return l.prior
}

// ReleasePrior drops the reference to the prior ledger. Mint no longer reuses
// identifiers afterwards.
func (l *Ledger) ReleasePrior() {
	l.prior = nil
}

// Insert adds the record (source, target) and reports whether it was new.
// A nil target is a programming error.
func (l *Ledger) Insert(source, target ident.ID) bool {
	if target.IsNil() {
		panic("evolve: record with nil target")
	}
	r := Record{Source: source, Target: target}
	if _, ok := l.index[r]; ok {
		return false
	}
	i := len(l.records)
	l.records = append(l.records, r)
	l.index[r] = struct{}{}
	l.bySource[source] = append(l.bySource[source], i)
	l.byTarget[target] = append(l.byTarget[target], i)
	return true
}

// Mint returns an identifier for a new part that came from source, inserts
// the record, and returns the target. If the prior ledger evolved source into
// an identifier that is not in use and this ledger has not handed out, that
// identifier is reused; otherwise a fresh one is generated. Nil sources never
// reuse.
func (l *Ledger) Mint(source ident.ID, inUse func(ident.ID) bool) ident.ID {
	if l.prior != nil && !source.IsNil() {
		for _, cand := range l.prior.Evolve(source) {
			if l.HasTarget(cand) || (inUse != nil && inUse(cand)) {
				continue
			}
			l.Insert(source, cand)
			return cand
		}
	}
	id := ident.New()
	l.Insert(source, id)
	return id
}

// Anchor marks id as anchor bound.
func (l *Ledger) Anchor(id ident.ID) {
	if l.anchors.Add(id) {
		l.anchored = append(l.anchored, id)
	}
}

// IsAnchored reports whether id is anchor bound.
func (l *Ledger) IsAnchored(id ident.ID) bool {
	return l.anchors.Has(id)
}

// Anchored returns the anchor-bound identifiers in insertion order.
func (l *Ledger) Anchored() []ident.ID {
	return append([]ident.ID(nil), l.anchored...)
}

// Evolve returns the targets recorded for source, in insertion order.
func (l *Ledger) Evolve(source ident.ID) []ident.ID {
	idx := l.bySource[source]
	out := make([]ident.ID, len(idx))
	for i, j := range idx {
		out[i] = l.records[j].Target
	}
	return out
}

// Devolve returns the sources recorded for target, in insertion order.
func (l *Ledger) Devolve(target ident.ID) []ident.ID {
	idx := l.byTarget[target]
	out := make([]ident.ID, len(idx))
	for i, j := range idx {
		out[i] = l.records[j].Source
	}
	return out
}

// HasSource reports whether any record starts at source.
func (l *Ledger) HasSource(source ident.ID) bool {
	return len(l.bySource[source]) > 0
}

// HasTarget reports whether any record ends at target.
func (l *Ledger) HasTarget(target ident.ID) bool {
	return len(l.byTarget[target]) > 0
}

// Has reports whether the exact record exists.
func (l *Ledger) Has(source, target ident.ID) bool {
	_, ok := l.index[Record{Source: source, Target: target}]
	return ok
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	return len(l.records)
}

// Records returns a copy of the records in insertion order.
func (l *Ledger) Records() []Record {
	return append([]Record(nil), l.records...)
}

// Targets returns every identifier that is the target of a record.
func (l *Ledger) Targets() ident.Set {
	out := make(ident.Set, len(l.byTarget))
	for id := range l.byTarget {
		out.Add(id)
	}
	return out
}

// Live returns the identifiers this ledger vouches for: record targets plus
// anchored identifiers.
func (l *Ledger) Live() ident.Set {
	out := l.Targets()
	for _, id := range l.anchored {
		out.Add(id)
	}
	return out
}

// Retain drops every record whose target keep rejects and returns how many
// were dropped.
func (l *Ledger) Retain(keep func(target ident.ID) bool) int {
	kept := l.records[:0:0]
	for _, r := range l.records {
		if keep(r.Target) {
			kept = append(kept, r)
		}
	}
	dropped := len(l.records) - len(kept)
	if dropped > 0 {
		l.rebuild(kept)
	}
	return dropped
}

// Replace rewrites every record sourced at stale to be sourced at fresh and
// returns how many records changed. It is used when the feature that owned
// stale is removed and its consumers are re-parented.
func (l *Ledger) Replace(stale, fresh ident.ID) int {
	n := 0
	out := make([]Record, 0, len(l.records))
	for _, r := range l.records {
		if r.Source == stale {
			r.Source = fresh
			n++
		}
		out = append(out, r)
	}
	if n > 0 {
		l.rebuild(out)
	}
	return n
}

func (l *Ledger) rebuild(records []Record) {
	l.records = nil
	l.index = make(map[Record]struct{}, len(records))
	l.bySource = make(map[ident.ID][]int)
	l.byTarget = make(map[ident.ID][]int)
	for _, r := range records {
		l.Insert(r.Source, r.Target)
	}
}
