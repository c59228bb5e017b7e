package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cadseer/naming"
	"github.com/cadseer/naming/health"
)

func newHealthCmd(a *app) *cobra.Command {
	var maxDead float64
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the store and the saved history of a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(func(svc *naming.Service) error {
				ctx := cmd.Context()
				checks := []health.Status{svc.Health(ctx)}
				g, err := svc.LoadHistory(ctx, a.project)
				switch {
				case err == nil:
					checks = append(checks, health.HistoryCheck(g, maxDead))
				case !errors.Is(err, &naming.Error{Kind: naming.KindNotFound}):
					return err
				}

				w := cmd.OutOrStdout()
				for _, c := range checks {
					fmt.Fprintln(w, c)
				}
				status := health.Combine(checks...)
				fmt.Fprintln(w, status)
				if status.IsUnhealthy() {
					return fmt.Errorf("namectl: %s", status.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&maxDead, "max-dead", 0.5, "fraction of dead history nodes reported as degraded")
	return cmd
}
