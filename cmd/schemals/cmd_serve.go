package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	runtimesvc "github.com/lexcodex/schemals/internal/schemals/runtime"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the language server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, cfg.MetricsAddr)
		},
	}
	cmd.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Serve /metrics and the status API on this address")
	return cmd
}

func runServe(cmd *cobra.Command, addr string) error {
	return runWithRuntime(cmd, func(ctx context.Context, rt *runtimesvc.Runtime) error {
		if addr == "" {
			addr = rt.Config.MetricsAddr
		}
		if addr != "" {
			stop, err := rt.StartAPI(ctx, addr)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = stop(shutdownCtx)
			}()
		}
		err := rt.ServeStdio(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}
