package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	runtimesvc "github.com/lexcodex/schemals/internal/schemals/runtime"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index [dir]",
		Short: "Analyse a workspace and export the index into SQLite",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithRuntime(cmd, func(ctx context.Context, rt *runtimesvc.Runtime) error {
				root := rt.Config.Workspace
				if len(args) == 1 {
					root = args[0]
				}
				sched, err := rt.Analyse(ctx, []string{root})
				if err != nil {
					return err
				}
				summary, err := rt.ExportSnapshot(ctx, sched)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d documents, %d symbols, %d references, %d edges, %d diagnostics\n",
					rt.Config.SnapshotPath, summary.Documents, summary.Symbols, summary.References, summary.Edges, summary.Diagnostics)
				return nil
			})
		},
	}
	return cmd
}
