package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	runtimesvc "github.com/lexcodex/schemals/internal/schemals/runtime"
)

func newInspectCmd() *cobra.Command {
	opts := reportOptions{Symbols: true, References: true}
	var failOnError bool
	cmd := &cobra.Command{
		Use:   "inspect [paths...]",
		Short: "Analyse schema files and print symbols, references and diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRuntime(cmd, func(ctx context.Context, rt *runtimesvc.Runtime) error {
				paths := args
				if len(paths) == 0 {
					paths = []string{rt.Config.Workspace}
				}
				sched, err := rt.Analyse(ctx, paths)
				if err != nil {
					return err
				}
				opts.Root = rt.Config.Workspace
				totals := renderReport(cmd.OutOrStdout(), sched, opts)
				if failOnError && totals.Errors > 0 {
					return fmt.Errorf("%s found", plural(totals.Errors, "error"))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&opts.Symbols, "symbols", true, "Print declarations")
	cmd.Flags().BoolVar(&opts.References, "references", true, "Print references and their targets")
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "Exit non-zero when any document has errors")
	return cmd
}
