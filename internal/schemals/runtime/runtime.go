package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/lexcodex/schemals/framework/ast"
	"github.com/lexcodex/schemals/framework/document"
	"github.com/lexcodex/schemals/framework/index"
	"github.com/lexcodex/schemals/framework/telemetry"
	"github.com/lexcodex/schemals/framework/workspace"
	"github.com/lexcodex/schemals/persistence"
	"github.com/lexcodex/schemals/server"
)

// Version is stamped by the build.
var Version = "dev"

// Runtime wires the language server, the status API and the offline
// commands to one logger and metrics registry.
type Runtime struct {
	Config    Config
	Logger    *slog.Logger
	Metrics   *telemetry.Metrics
	Index     *index.Index
	Server    *server.LSPServer
	Workspace WorkspaceConfig

	logFile io.Closer

	serverMu     sync.Mutex
	serverCancel context.CancelFunc
}

// New builds a runtime. The workspace config file is applied over cfg, then
// overrides run so explicitly set flags win over the file.
func New(ctx context.Context, cfg Config, overrides ...func(*Config)) (*Runtime, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	workspaceCfg, loadErr := LoadWorkspaceConfig(cfg.ConfigPath)
	if loadErr == nil {
		cfg.Apply(workspaceCfg)
	} else {
		workspaceCfg = WorkspaceConfig{}
	}
	for _, override := range overrides {
		override(&cfg)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	var out io.Writer = os.Stderr
	var logFile *os.File
	if cfg.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log: %w", err)
		}
		logFile = f
		out = io.MultiWriter(os.Stderr, f)
	}
	level, _ := cfg.Level()
	logger := NewLogger(out, level, cfg.LogFormat)
	if loadErr != nil && !errors.Is(loadErr, os.ErrNotExist) {
		logger.Warn("workspace config load failed", "path", cfg.ConfigPath, "error", loadErr)
	}

	metrics := telemetry.NewMetrics()
	idx := index.New(index.WithLogger(logger))
	srv := server.NewLSPServer(idx, server.Options{
		Name:        "schemals",
		Version:     Version,
		Scan:        cfg.Scan,
		Watch:       cfg.Watch,
		Workspace:   cfg.WorkspaceOptions(),
		SymbolLimit: cfg.SymbolLimit,
	}, logger, document.WithMetrics(metrics))

	rt := &Runtime{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Index:     idx,
		Server:    srv,
		Workspace: workspaceCfg,
	}
	if logFile != nil {
		rt.logFile = logFile
	}
	return rt, nil
}

// NewLogger builds the text or JSON slog handler used by every component.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Close releases resources managed by runtime.
func (r *Runtime) Close() error {
	if r.logFile != nil {
		return r.logFile.Close()
	}
	return nil
}

// ServeStdio runs the language server over the process's stdin and stdout.
func (r *Runtime) ServeStdio(ctx context.Context) error {
	return r.Server.Serve(ctx, Stdio(os.Stdin, os.Stdout))
}

type stdio struct {
	io.ReadCloser
	out io.WriteCloser
}

func (s stdio) Write(p []byte) (int, error) { return s.out.Write(p) }

func (s stdio) Close() error {
	return errors.Join(s.ReadCloser.Close(), s.out.Close())
}

// Stdio joins a reader and writer into one JSON-RPC stream.
func Stdio(in io.ReadCloser, out io.WriteCloser) io.ReadWriteCloser {
	return stdio{ReadCloser: in, out: out}
}

// StartAPI launches the HTTP status API. The returned stop function shuts
// the server down using the provided context.
func (r *Runtime) StartAPI(ctx context.Context, addr string) (func(context.Context) error, error) {
	r.serverMu.Lock()
	defer r.serverMu.Unlock()
	if r.serverCancel != nil {
		return nil, errors.New("api server already running")
	}
	if addr == "" {
		addr = r.Config.MetricsAddr
	}
	if addr == "" {
		return nil, errors.New("api address required")
	}
	api := &server.APIServer{Scheduler: r.Server.Scheduler(), Metrics: r.Metrics, Logger: r.Logger}
	serverCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		errCh <- api.ServeContext(serverCtx, addr)
	}()
	r.serverCancel = cancel
	stopFn := func(shutdownCtx context.Context) error {
		r.serverMu.Lock()
		if r.serverCancel == nil {
			r.serverMu.Unlock()
			return nil
		}
		r.serverCancel()
		r.serverCancel = nil
		r.serverMu.Unlock()
		select {
		case err := <-errCh:
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case <-shutdownCtx.Done():
			return shutdownCtx.Err()
		}
	}
	return stopFn, nil
}

// APIRunning reports whether the HTTP status API is active.
func (r *Runtime) APIRunning() bool {
	r.serverMu.Lock()
	defer r.serverMu.Unlock()
	return r.serverCancel != nil
}

// Analyse builds a standalone scheduler over paths. Directories are scanned
// with the workspace settings; files are tracked whatever their extension.
func (r *Runtime) Analyse(ctx context.Context, paths []string) (*document.Scheduler, error) {
	sched := document.NewScheduler(index.New(index.WithLogger(r.Logger)),
		document.WithLogger(r.Logger), document.WithMetrics(r.Metrics))
	detector := ast.NewLanguageDetector()
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			n, err := workspace.Load(ctx, sched, path, r.Config.WorkspaceOptions())
			if err != nil {
				return nil, err
			}
			r.Logger.Debug("workspace analysed", "root", path, "documents", n)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		uri := workspace.PathToURI(path)
		if err := sched.OpenDocument(ctx, uri, detector.Detect(path), 0, string(data)); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// ExportSnapshot writes the scheduler's committed state to the snapshot
// database, replacing any previous export.
func (r *Runtime) ExportSnapshot(ctx context.Context, sched *document.Scheduler) (persistence.SaveSummary, error) {
	if err := os.MkdirAll(filepath.Dir(r.Config.SnapshotPath), 0o755); err != nil {
		return persistence.SaveSummary{}, fmt.Errorf("create snapshot directory: %w", err)
	}
	store, err := persistence.NewSnapshotStore(r.Config.SnapshotPath)
	if err != nil {
		return persistence.SaveSummary{}, fmt.Errorf("open snapshot: %w", err)
	}
	defer store.Close()
	summary, err := store.Save(ctx, sched)
	if err != nil {
		return summary, fmt.Errorf("save snapshot: %w", err)
	}
	r.Logger.Info("snapshot exported", "path", r.Config.SnapshotPath, "documents", summary.Documents, "symbols", summary.Symbols)
	return summary, nil
}
