package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cadseer/naming"
	"github.com/cadseer/naming/pick"
	"github.com/cadseer/naming/project"
	"github.com/cadseer/naming/resolve"
)

// Names of the references the demo saves.
const (
	demoEdgeRef = "split.edge"
	demoFaceRef = "box.top"
)

func newDemoCmd(a *app) *cobra.Command {
	var length float64
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Build a box, split an edge, resize the box and save the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(func(svc *naming.Service) error {
				return demo(cmd.Context(), cmd.OutOrStdout(), svc, a.project, length)
			})
		},
	}
	cmd.Flags().Float64Var(&length, "length", 3, "box length after the resize")
	return cmd
}

func demo(ctx context.Context, w io.Writer, svc *naming.Service, name string, length float64) error {
	p := svc.NewProject()
	box := project.NewBox(2, 1, 1)
	if err := p.Add(box); err != nil {
		return err
	}
	if err := p.Update(ctx); err != nil {
		return err
	}

	r, _ := p.Result(box.ID())
	edge, ok := r.Anchor("edge.00")
	if !ok {
		return fmt.Errorf("demo: box has no edge.00")
	}
	face, ok := r.Anchor("face.zmax")
	if !ok {
		return fmt.Errorf("demo: box has no face.zmax")
	}
	split := project.NewSplit(box.ID(), pick.New(box.ID(), p.History(), pick.SelectPart, edge), "cut")
	if err := p.Add(split); err != nil {
		return err
	}
	top := pick.New(box.ID(), p.History(), pick.SelectPart, face)
	if err := p.Update(ctx); err != nil {
		return err
	}
	fmt.Fprintf(w, "box %s, split %s\n", box.ID().Short(), split.ID().Short())

	box.Length = length
	if err := p.Touch(box.ID()); err != nil {
		return err
	}
	if err := p.Update(ctx); err != nil {
		return err
	}

	for _, named := range []struct {
		name string
		ref  *pick.Reference
	}{{demoEdgeRef, split.Edge}, {demoFaceRef, top}} {
		set, err := svc.Resolve(ctx, named.ref, p.Payload(), resolve.WithTarget(split.ID()))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s -> %d part(s) in split (%s)\n", named.name, named.ref, len(set.IDs()), set.Verdict)
		if err := svc.SaveReference(ctx, name, named.name, named.ref); err != nil {
			return err
		}
	}

	if err := svc.SaveHistory(ctx, name, p.History()); err != nil {
		return err
	}
	st := p.History().Stats()
	fmt.Fprintf(w, "saved project %q: %d features, %d nodes, %d edges\n", name, st.Features, st.Nodes, st.Edges)
	return nil
}
