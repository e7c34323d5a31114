package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	runtimesvc "github.com/lexcodex/schemals/internal/schemals/runtime"
)

var cfg runtimesvc.Config

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg = runtimesvc.DefaultConfig()
	root := &cobra.Command{
		Use:           "schemals",
		Short:         "Language server for Vespa schema files",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, "")
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&cfg.Workspace, "workspace", cfg.Workspace, "Workspace root")
	flags.StringVar(&cfg.ConfigPath, "config", "", "Workspace config file (default <workspace>/.schemals.yaml)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	flags.StringVar(&cfg.LogPath, "log-file", "", "Also write logs to this file")
	flags.BoolVar(&cfg.Scan, "scan", cfg.Scan, "Track the workspace's schema files")
	flags.BoolVar(&cfg.Watch, "watch", cfg.Watch, "Re-analyse schema files changed on disk")
	flags.StringSliceVar(&cfg.Include, "include", nil, "File globs to track (default *.sd)")
	flags.StringSliceVar(&cfg.Exclude, "exclude", nil, "Directory names to skip")
	flags.IntVar(&cfg.Workers, "workers", 0, "Parallel file reads during scans")
	flags.StringVar(&cfg.SnapshotPath, "snapshot", "", "Snapshot database path (default <workspace>/.schemals/index.db)")

	root.AddCommand(newServeCmd(), newInspectCmd(), newIndexCmd(), newVersionCmd())
	return root
}

// flagOverrides re-applies the flags the user set explicitly so they win
// over the workspace config file.
func flagOverrides(cmd *cobra.Command) func(*runtimesvc.Config) {
	set := cfg
	return func(c *runtimesvc.Config) {
		flags := cmd.Flags()
		if flags.Changed("log-level") {
			c.LogLevel = set.LogLevel
		}
		if flags.Changed("log-format") {
			c.LogFormat = set.LogFormat
		}
		if flags.Changed("scan") {
			c.Scan = set.Scan
		}
		if flags.Changed("watch") {
			c.Watch = set.Watch
		}
		if flags.Changed("include") {
			c.Include = set.Include
		}
		if flags.Changed("exclude") {
			c.Exclude = set.Exclude
		}
		if flags.Changed("workers") {
			c.Workers = set.Workers
		}
		if flags.Changed("snapshot") {
			c.SnapshotPath = set.SnapshotPath
		}
		if flags.Changed("metrics-addr") {
			c.MetricsAddr = set.MetricsAddr
		}
	}
}

func runWithRuntime(cmd *cobra.Command, fn func(context.Context, *runtimesvc.Runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := runtimesvc.New(ctx, cfg, flagOverrides(cmd))
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}
