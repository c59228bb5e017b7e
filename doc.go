// Package naming keeps references to the topology of a parametric solid
// model valid while the model is re-evaluated.
//
// A feature's geometry is rebuilt from scratch on every evaluation, so the
// kernel's own handles to faces, edges and vertices mean nothing across
// evaluations. This module gives every part a durable identifier and records
// how identifiers evolve, so a reference taken once can be followed to the
// parts it means in any later model.
//
// # Packages
//
// The subsystem is split along the lifecycle of one evaluation:
//
//   - ident: identifiers, feature identifiers and derived anchor identifiers.
//   - topo: the kernel-facing part and shape interfaces. topo/synth is a
//     small in-memory kernel used by tests and the demo.
//   - partgraph: the identified topology of one evaluation result.
//   - evolve: the ledger of (source, target) identifier records.
//   - match: the strategies that name a fresh shape from its inputs.
//   - feature: one evaluation, from Begin to a frozen Result.
//   - history: the project-wide lineage graph built from every ledger.
//   - pick: references into a feature's result.
//   - resolve: following a reference to the current model, and the policy
//     that judges the outcome.
//   - project: a serial scheduler that evaluates features in dependency order.
//   - store: persistence of history snapshots and references in badger,
//     Redis or etcd.
//
// # Getting Started
//
//	svc, err := naming.New(naming.WithConfigPath("naming.yaml"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Close()
//
//	p := svc.NewProject()
//	box := project.NewBox(2, 1, 1)
//	_ = p.Add(box)
//	if err := p.Update(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	r, _ := p.Result(box.ID())
//	edge, _ := r.Anchor("edge.00")
//	ref := pick.New(box.ID(), p.History(), pick.SelectPart, edge)
//	set, err := svc.Resolve(ctx, ref, p.Payload())
//
// # Errors
//
// Service methods return *Error values categorized by Kind. Unresolvable
// references also match resolve.ErrUnresolvable and carry the partial
// resolution set, so callers can report what was still found.
package naming
