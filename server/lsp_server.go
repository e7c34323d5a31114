package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/jsonrpc2"
	"go.lsp.dev/protocol"

	"github.com/lexcodex/schemals/framework/ast"
	"github.com/lexcodex/schemals/framework/document"
	"github.com/lexcodex/schemals/framework/index"
	"github.com/lexcodex/schemals/framework/query"
	"github.com/lexcodex/schemals/framework/workspace"
)

// Options configures the language server.
type Options struct {
	Name    string
	Version string
	// Scan tracks the workspace's schema files on initialized.
	Scan bool
	// Watch re-tracks schema files changed on disk.
	Watch     bool
	Workspace workspace.Options
	// SymbolLimit caps workspace/symbol results; zero means unlimited.
	SymbolLimit int
}

// LSPServer answers editor requests against the document scheduler.
type LSPServer struct {
	opts      Options
	logger    *slog.Logger
	sched     *document.Scheduler
	sessionID string

	mu       sync.Mutex
	conn     *jsonrpc2.Conn
	root     string
	shutdown bool
	watcher  *workspace.Watcher
	stop     context.CancelFunc
}

// InitializeResult partial struct.
type InitializeResult struct {
	Capabilities map[string]interface{} `json:"capabilities"`
	ServerInfo   *ServerInfo            `json:"serverInfo,omitempty"`
}

// ServerInfo names the server to the client.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// NewLSPServer builds a server instance over idx. The scheduler options are
// applied to the server's scheduler, which reports analyses back to it.
func NewLSPServer(idx *index.Index, opts Options, logger *slog.Logger, schedOpts ...document.Option) *LSPServer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Name == "" {
		opts.Name = "schemals"
	}
	s := &LSPServer{
		opts:      opts,
		logger:    logger,
		sessionID: uuid.NewString(),
	}
	schedOpts = append(schedOpts, document.WithLogger(logger), document.WithListener(s))
	s.sched = document.NewScheduler(idx, schedOpts...)
	return s
}

// Scheduler exposes the server's document scheduler.
func (s *LSPServer) Scheduler() *document.Scheduler {
	return s.sched
}

// Serve runs the JSON-RPC session over rwc until the client exits, the
// stream closes, or ctx is cancelled.
func (s *LSPServer) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(s.handle))
	s.setConn(conn)
	s.logger.Info("language server started", "session", s.sessionID)

	var err error
	select {
	case <-conn.DisconnectNotify():
	case <-ctx.Done():
		err = ctx.Err()
		_ = conn.Close()
	}
	s.stopWatcher()
	s.logger.Info("language server stopped", "session", s.sessionID)
	return err
}

func (s *LSPServer) setConn(conn *jsonrpc2.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		s.conn = conn
	}
}

func (s *LSPServer) connection() *jsonrpc2.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// handle dispatches one message. Notification errors are logged here since
// the client never sees them.
func (s *LSPServer) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	s.setConn(conn)
	result, err := s.dispatch(ctx, conn, req)
	if err != nil && req.Notif {
		s.logger.Warn("notification failed", "method", req.Method, "error", err)
		return nil, nil
	}
	return result, toRPCError(err)
}

func (s *LSPServer) dispatch(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	if s.isShutdown() && req.Method != "exit" {
		if req.Notif {
			return nil, nil
		}
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidRequest, Message: "server is shutting down"}
	}
	switch req.Method {
	case "initialize":
		var params protocol.InitializeParams
		if err := decode(req, &params); err != nil {
			return nil, err
		}
		return s.Initialize(params)
	case "initialized":
		s.Initialized(ctx)
		return nil, nil
	case "shutdown":
		s.Shutdown()
		return nil, nil
	case "exit":
		return nil, conn.Close()
	case "textDocument/didOpen":
		var params protocol.DidOpenTextDocumentParams
		if err := decode(req, &params); err != nil {
			return nil, err
		}
		item := params.TextDocument
		return nil, s.TextDocumentDidOpen(ctx, string(item.URI), string(item.LanguageID), item.Version, item.Text)
	case "textDocument/didChange":
		var params protocol.DidChangeTextDocumentParams
		if err := decode(req, &params); err != nil {
			return nil, err
		}
		if len(params.ContentChanges) == 0 {
			return nil, nil
		}
		text := params.ContentChanges[len(params.ContentChanges)-1].Text
		return nil, s.TextDocumentDidChange(ctx, string(params.TextDocument.URI), params.TextDocument.Version, text)
	case "textDocument/didClose":
		var params protocol.DidCloseTextDocumentParams
		if err := decode(req, &params); err != nil {
			return nil, err
		}
		return nil, s.TextDocumentDidClose(ctx, string(params.TextDocument.URI))
	case "textDocument/definition":
		var params protocol.DefinitionParams
		if err := decode(req, &params); err != nil {
			return nil, err
		}
		return s.Definition(params.TextDocument.URI, params.Position), nil
	case "textDocument/references":
		var params protocol.ReferenceParams
		if err := decode(req, &params); err != nil {
			return nil, err
		}
		return s.References(params.TextDocument.URI, params.Position, params.Context.IncludeDeclaration), nil
	case "textDocument/hover":
		var params protocol.HoverParams
		if err := decode(req, &params); err != nil {
			return nil, err
		}
		return s.Hover(params.TextDocument.URI, params.Position), nil
	case "textDocument/documentSymbol":
		var params protocol.DocumentSymbolParams
		if err := decode(req, &params); err != nil {
			return nil, err
		}
		return s.DocumentSymbols(params.TextDocument.URI), nil
	case "workspace/symbol":
		var params protocol.WorkspaceSymbolParams
		if err := decode(req, &params); err != nil {
			return nil, err
		}
		return s.WorkspaceSymbols(params.Query), nil
	}
	if req.Notif {
		return nil, nil
	}
	return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not supported: " + req.Method}
}

func decode(req *jsonrpc2.Request, v interface{}) error {
	if req.Params == nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(*req.Params, v); err != nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

func toRPCError(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if errors.Is(err, document.ErrUnknownDocument) {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	return &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
}

func (s *LSPServer) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// Initialize handles the LSP initialize request.
func (s *LSPServer) Initialize(params protocol.InitializeParams) (*InitializeResult, error) {
	root := ""
	switch {
	case params.RootURI != "":
		root, _ = workspace.URIToPath(string(params.RootURI))
	case len(params.WorkspaceFolders) > 0:
		root, _ = workspace.URIToPath(string(params.WorkspaceFolders[0].URI))
	case params.RootPath != "":
		root = params.RootPath
	}
	s.mu.Lock()
	s.root = root
	s.mu.Unlock()

	client := ""
	if params.ClientInfo != nil {
		client = params.ClientInfo.Name
	}
	s.logger.Info("initialize", "client", client, "root", root, "session", s.sessionID)
	return &InitializeResult{
		Capabilities: map[string]interface{}{
			"textDocumentSync": map[string]interface{}{
				"openClose": true,
				"change":    int(protocol.TextDocumentSyncKindFull),
			},
			"definitionProvider":      true,
			"referencesProvider":      true,
			"hoverProvider":           true,
			"documentSymbolProvider":  true,
			"workspaceSymbolProvider": true,
		},
		ServerInfo: &ServerInfo{Name: s.opts.Name, Version: s.opts.Version},
	}, nil
}

// Initialized tracks the workspace's schema files and starts the watcher.
func (s *LSPServer) Initialized(ctx context.Context) {
	s.mu.Lock()
	root := s.root
	s.mu.Unlock()
	if root == "" {
		return
	}
	if s.opts.Scan {
		n, err := workspace.Load(ctx, s.sched, root, s.opts.Workspace)
		if err != nil {
			s.logger.Warn("workspace scan failed", "root", root, "error", err)
		} else {
			s.logger.Info("workspace scanned", "root", root, "documents", n)
		}
	}
	if s.opts.Watch {
		s.startWatcher(root)
	}
}

func (s *LSPServer) startWatcher(root string) {
	w, err := workspace.NewWatcher(root, s.opts.Workspace, s.sched, s.logger)
	if err != nil {
		s.logger.Warn("file watching disabled", "root", root, "error", err)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.watcher, s.stop = w, cancel
	s.mu.Unlock()
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("watcher stopped", "error", err)
		}
	}()
}

func (s *LSPServer) stopWatcher() {
	s.mu.Lock()
	w, stop := s.watcher, s.stop
	s.watcher, s.stop = nil, nil
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	if w != nil {
		_ = w.Close()
	}
}

// Shutdown stops background work; later requests are refused.
func (s *LSPServer) Shutdown() {
	s.stopWatcher()
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
}

// TextDocumentDidOpen analyses an opened document.
func (s *LSPServer) TextDocumentDidOpen(ctx context.Context, uri, languageID string, version int32, text string) error {
	return s.sched.OpenDocument(ctx, uri, languageID, version, text)
}

// TextDocumentDidChange re-analyses a changed document with full text sync.
func (s *LSPServer) TextDocumentDidChange(ctx context.Context, uri string, version int32, text string) error {
	return s.sched.ChangeDocument(ctx, uri, version, text)
}

// TextDocumentDidClose drops an open document. A schema file that still
// exists on disk falls back to its saved content.
func (s *LSPServer) TextDocumentDidClose(ctx context.Context, uri string) error {
	if err := s.sched.CloseDocument(ctx, uri); err != nil {
		return err
	}
	path, ok := workspace.URIToPath(uri)
	if !ok || !s.opts.Scan || !s.opts.Workspace.Matches(path) {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	s.sched.TrackDocument(ctx, uri, string(data))
	return nil
}

// Definition returns the declaration of the symbol at pos.
func (s *LSPServer) Definition(uri protocol.DocumentURI, pos protocol.Position) []protocol.Location {
	var locs []query.Location
	s.sched.View(func(v document.View) {
		locs = query.Definition(v, string(uri), fromPosition(pos))
	})
	return toLocations(locs)
}

// References returns the uses of the symbol at pos.
func (s *LSPServer) References(uri protocol.DocumentURI, pos protocol.Position, includeDeclaration bool) []protocol.Location {
	var locs []query.Location
	s.sched.View(func(v document.View) {
		locs = query.References(v, string(uri), fromPosition(pos), includeDeclaration)
	})
	return toLocations(locs)
}

// Hover describes the symbol at pos, or returns nil.
func (s *LSPServer) Hover(uri protocol.DocumentURI, pos protocol.Position) *protocol.Hover {
	var (
		info query.HoverInfo
		ok   bool
	)
	s.sched.View(func(v document.View) {
		info, ok = query.Hover(v, string(uri), fromPosition(pos))
	})
	if !ok {
		return nil
	}
	rng := toRange(info.Range)
	return &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.Markdown, Value: info.Markdown()},
		Range:    &rng,
	}
}

// DocumentSymbols returns the declaration outline of a document.
func (s *LSPServer) DocumentSymbols(uri protocol.DocumentURI) []protocol.DocumentSymbol {
	doc, ok := s.sched.GetDocument(string(uri))
	if !ok {
		return []protocol.DocumentSymbol{}
	}
	return toDocumentSymbols(query.Outline(doc))
}

// WorkspaceSymbols searches declarations across documents.
func (s *LSPServer) WorkspaceSymbols(q string) []protocol.SymbolInformation {
	syms := query.WorkspaceSymbols(s.sched.Index(), q, s.opts.SymbolLimit)
	out := make([]protocol.SymbolInformation, 0, len(syms))
	for _, sym := range syms {
		out = append(out, protocol.SymbolInformation{
			Name: sym.Name,
			Kind: symbolKind(sym.Kind),
			Location: protocol.Location{
				URI:   protocol.DocumentURI(sym.URI),
				Range: toRange(sym.Range),
			},
		})
	}
	return out
}

// OnAnalyzed publishes the diagnostics of a committed analysis.
func (s *LSPServer) OnAnalyzed(doc *document.Document) {
	s.publish(doc.URI, doc.Diagnostics)
}

// OnRemoved clears the diagnostics of a removed document.
func (s *LSPServer) OnRemoved(uri string) {
	s.publish(uri, nil)
}

func (s *LSPServer) publish(uri string, diags []document.Diagnostic) {
	conn := s.connection()
	if conn == nil {
		return
	}
	params := protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentURI(uri),
		Diagnostics: toDiagnostics(diags),
	}
	if err := conn.Notify(context.Background(), "textDocument/publishDiagnostics", params); err != nil {
		s.logger.Debug("publish diagnostics failed", "uri", uri, "error", err)
	}
}

func fromPosition(p protocol.Position) ast.Position {
	return ast.Position{Line: int(p.Line), Character: int(p.Character)}
}
