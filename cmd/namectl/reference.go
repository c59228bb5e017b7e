package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cadseer/naming"
	"github.com/cadseer/naming/feature"
	"github.com/cadseer/naming/ident"
	"github.com/cadseer/naming/resolve"
)

func newReferenceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reference",
		Aliases: []string{"ref"},
		Short:   "Manage saved references",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the saved references of a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(func(svc *naming.Service) error {
				names, err := svc.ListReferences(cmd.Context(), a.project)
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show NAME",
		Short: "Print a saved reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(func(svc *naming.Service) error {
				ref, err := svc.LoadReference(cmd.Context(), a.project, args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "reference %s\n", ref)
				fmt.Fprintf(w, "origin    %s\n", ref.Origin)
				for _, id := range ref.IDs {
					fmt.Fprintf(w, "id        %s\n", id)
				}
				if ref.Fragment != nil {
					fmt.Fprintf(w, "lineage   %d node(s)\n", ref.Fragment.Len())
				}
				return nil
			})
		},
	}

	var target string
	res := &cobra.Command{
		Use:   "resolve NAME",
		Short: "Resolve a saved reference against the saved history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(func(svc *naming.Service) error {
				ctx := cmd.Context()
				ref, err := svc.LoadReference(ctx, a.project, args[0])
				if err != nil {
					return err
				}
				g, err := svc.LoadHistory(ctx, a.project)
				if err != nil {
					return err
				}
				var opts []resolve.CallOption
				if target != "" {
					f, err := ident.ParseFeature(target)
					if err != nil {
						return err
					}
					opts = append(opts, resolve.WithTarget(f))
				}
				set, err := svc.Resolve(ctx, ref, feature.NewPayload(g, nil), opts...)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, it := range set.Items {
					via := ""
					if it.ViaAncestor {
						via = fmt.Sprintf(" via ancestor (%d hops)", it.Hops)
					}
					fmt.Fprintf(w, "%s -> %d id(s)%s\n", it.Requested.Short(), len(it.IDs), via)
					for _, id := range it.IDs {
						fmt.Fprintf(w, "  %s\n", id)
					}
				}
				fmt.Fprintf(w, "verdict %s\n", set.Verdict)
				return nil
			})
		},
	}
	res.Flags().StringVar(&target, "target", "", "feature to resolve into; defaults to the reference origin")

	del := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a saved reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(func(svc *naming.Service) error {
				return svc.DeleteReference(cmd.Context(), a.project, args[0])
			})
		},
	}

	cmd.AddCommand(list, show, res, del)
	return cmd
}
