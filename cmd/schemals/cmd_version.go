package main

import (
	"fmt"

	"github.com/spf13/cobra"

	runtimesvc "github.com/lexcodex/schemals/internal/schemals/runtime"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "schemals %s\n", runtimesvc.Version)
			return nil
		},
	}
}
