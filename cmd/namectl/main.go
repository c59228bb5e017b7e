// Command namectl inspects the naming state kept in a store: saved history
// graphs and references. The demo command builds a small model, edits it and
// saves the result so the other commands have something to show.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cadseer/naming"
)

type app struct {
	configPath string
	project    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "namectl",
		Short:         "Inspect persistent naming state",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to naming.yaml or a directory holding it")
	root.PersistentFlags().StringVarP(&a.project, "project", "p", "demo", "project name in the store")

	root.AddCommand(newDemoCmd(a), newHistoryCmd(a), newReferenceCmd(a), newHealthCmd(a))
	return root
}

// run opens the naming service, calls fn and closes the service.
func (a *app) run(fn func(svc *naming.Service) error) error {
	var opts []naming.Option
	if a.configPath != "" {
		opts = append(opts, naming.WithConfigPath(a.configPath))
	}
	svc, err := naming.New(opts...)
	if err != nil {
		return err
	}
	defer naming.CloseWithLog(svc, svc.Logger(), "naming service")
	return fn(svc)
}
