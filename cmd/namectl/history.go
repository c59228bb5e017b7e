package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cadseer/naming"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the saved history graph of a project",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print per-feature epochs and graph totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(func(svc *naming.Service) error {
				g, err := svc.LoadHistory(cmd.Context(), a.project)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, f := range g.Features() {
					state := ""
					if g.Removed(f) {
						state = " removed"
					}
					fmt.Fprintf(w, "%s epoch %d live %d%s\n", f.Short(), g.Epoch(f), len(g.Live(f)), state)
				}
				st := g.Stats()
				fmt.Fprintf(w, "features %d nodes %d edges %d live %d\n", st.Features, st.Nodes, st.Edges, st.Live)
				return nil
			})
		},
	}

	dot := &cobra.Command{
		Use:   "dot",
		Short: "Write the history graph in Graphviz form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(func(svc *naming.Service) error {
				g, err := svc.LoadHistory(cmd.Context(), a.project)
				if err != nil {
					return err
				}
				return g.WriteDOT(cmd.OutOrStdout())
			})
		},
	}

	cmd.AddCommand(show, dot)
	return cmd
}
