package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"

	"github.com/lexcodex/schemals/framework/index"
	"github.com/lexcodex/schemals/framework/workspace"
)

const srcA = `schema a {
    document a {
        field x type int {}
    }
}
`

const srcB = `schema b inherits a {
    document b inherits a {}
    rank-profile p {
        first-phase { expression: x + 1 }
    }
}
`

type client struct {
	conn *jsonrpc2.Conn

	mu    sync.Mutex
	diags map[string][]protocol.Diagnostic
}

func (c *client) diagnostics(uri string) ([]protocol.Diagnostic, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.diags[uri]
	return d, ok
}

// startSession connects a client to a server over an in-memory pipe.
func startSession(t *testing.T, opts Options) (*client, *LSPServer, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := NewLSPServer(index.New(), opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	serverSide, clientSide := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, serverSide) }()

	c := &client{diags: make(map[string][]protocol.Diagnostic)}
	handler := jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
		if req.Method == "textDocument/publishDiagnostics" {
			var params protocol.PublishDiagnosticsParams
			if err := json.Unmarshal(*req.Params, &params); err != nil {
				return nil, err
			}
			c.mu.Lock()
			c.diags[string(params.URI)] = params.Diagnostics
			c.mu.Unlock()
		}
		return nil, nil
	})
	c.conn = jsonrpc2.NewConn(ctx, jsonrpc2.NewBufferedStream(clientSide, jsonrpc2.VSCodeObjectCodec{}), handler)
	t.Cleanup(func() { _ = c.conn.Close() })
	return c, srv, done
}

func position(line, char uint32) protocol.TextDocumentPositionParams {
	return protocol.TextDocumentPositionParams{Position: protocol.Position{Line: line, Character: char}}
}

func at(uri string, line, char uint32) protocol.TextDocumentPositionParams {
	p := position(line, char)
	p.TextDocument = protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri)}
	return p
}

func TestLSPSession(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.sd"), []byte(srcA), 0o644))
	uriA := workspace.PathToURI(filepath.Join(root, "a.sd"))
	uriB := workspace.PathToURI(filepath.Join(root, "b.sd"))

	c, _, done := startSession(t, Options{Scan: true, Version: "test"})
	ctx := context.Background()

	var init InitializeResult
	require.NoError(t, c.conn.Call(ctx, "initialize", protocol.InitializeParams{
		RootURI:    protocol.DocumentURI(workspace.PathToURI(root)),
		ClientInfo: &protocol.ClientInfo{Name: "test"},
	}, &init))
	assert.Equal(t, true, init.Capabilities["definitionProvider"])
	assert.Equal(t, "test", init.ServerInfo.Version)
	require.NoError(t, c.conn.Notify(ctx, "initialized", &protocol.InitializedParams{}))

	require.NoError(t, c.conn.Notify(ctx, "textDocument/didOpen", protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: protocol.DocumentURI(uriB), LanguageID: "vespaSchema", Version: 1, Text: srcB},
	}))

	// Definition of x in b.sd lands in the scanned a.sd.
	var locs []protocol.Location
	require.NoError(t, c.conn.Call(ctx, "textDocument/definition", protocol.DefinitionParams{
		TextDocumentPositionParams: at(uriB, 3, 34),
	}, &locs))
	require.Len(t, locs, 1)
	assert.Equal(t, uriA, string(locs[0].URI))
	assert.Equal(t, protocol.Range{
		Start: protocol.Position{Line: 2, Character: 14},
		End:   protocol.Position{Line: 2, Character: 15},
	}, locs[0].Range)

	var refs []protocol.Location
	require.NoError(t, c.conn.Call(ctx, "textDocument/references", protocol.ReferenceParams{
		TextDocumentPositionParams: at(uriA, 2, 14),
		Context:                    protocol.ReferenceContext{IncludeDeclaration: true},
	}, &refs))
	require.Len(t, refs, 2)
	assert.Equal(t, uriA, string(refs[0].URI))
	assert.Equal(t, uriB, string(refs[1].URI))

	var hover protocol.Hover
	require.NoError(t, c.conn.Call(ctx, "textDocument/hover", protocol.HoverParams{
		TextDocumentPositionParams: at(uriB, 3, 34),
	}, &hover))
	assert.Contains(t, hover.Contents.Value, "field x type int")

	var outline []protocol.DocumentSymbol
	require.NoError(t, c.conn.Call(ctx, "textDocument/documentSymbol", protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uriB)},
	}, &outline))
	require.Len(t, outline, 1)
	assert.Equal(t, "b", outline[0].Name)
	assert.Equal(t, protocol.SymbolKindNamespace, outline[0].Kind)

	var found []protocol.SymbolInformation
	require.NoError(t, c.conn.Call(ctx, "workspace/symbol", protocol.WorkspaceSymbolParams{Query: "x"}, &found))
	require.Len(t, found, 1)
	assert.Equal(t, protocol.SymbolKindField, found[0].Kind)

	require.Eventually(t, func() bool {
		d, ok := c.diagnostics(uriB)
		return ok && len(d) == 0
	}, 2*time.Second, 10*time.Millisecond)

	// An edit that breaks the reference publishes a diagnostic.
	require.NoError(t, c.conn.Notify(ctx, "textDocument/didChange", protocol.DidChangeTextDocumentParams{
		TextDocument:   protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uriB)}, Version: 2},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: "schema b inherits a {\n    rank-profile p { first-phase { expression: nope } }\n}\n"}},
	}))
	require.Eventually(t, func() bool {
		d, _ := c.diagnostics(uriB)
		return len(d) == 1 && d[0].Code == "unresolved-reference"
	}, 2*time.Second, 10*time.Millisecond)

	// Changes to unopened documents are reported in the log, not to the client.
	require.NoError(t, c.conn.Notify(ctx, "textDocument/didChange", protocol.DidChangeTextDocumentParams{
		TextDocument:   protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: "file:///elsewhere.sd"}, Version: 2},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: "schema z {}"}},
	}))

	require.NoError(t, c.conn.Notify(ctx, "textDocument/didClose", protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uriB)},
	}))
	require.Eventually(t, func() bool {
		d, _ := c.diagnostics(uriB)
		return len(d) == 0
	}, 2*time.Second, 10*time.Millisecond)

	err := c.conn.Call(ctx, "textDocument/formatting", map[string]string{}, nil)
	var rpcErr *jsonrpc2.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, int64(jsonrpc2.CodeMethodNotFound), rpcErr.Code)

	require.NoError(t, c.conn.Call(ctx, "shutdown", nil, nil))
	err = c.conn.Call(ctx, "textDocument/definition", protocol.DefinitionParams{TextDocumentPositionParams: at(uriB, 0, 0)}, &locs)
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, int64(jsonrpc2.CodeInvalidRequest), rpcErr.Code)

	require.NoError(t, c.conn.Notify(ctx, "exit", nil))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit")
	}
}

func TestCloseFallsBackToDiskContent(t *testing.T) {
	root := t.TempDir()
	pathA := filepath.Join(root, "a.sd")
	require.NoError(t, os.WriteFile(pathA, []byte(srcA), 0o644))
	uriA := workspace.PathToURI(pathA)

	c, srv, _ := startSession(t, Options{Scan: true})
	ctx := context.Background()
	require.NoError(t, c.conn.Call(ctx, "initialize", protocol.InitializeParams{RootURI: protocol.DocumentURI(workspace.PathToURI(root))}, nil))
	require.NoError(t, c.conn.Notify(ctx, "initialized", &protocol.InitializedParams{}))

	edited := "schema a {\n    document a {\n        field unsaved type int {}\n    }\n}\n"
	require.NoError(t, c.conn.Notify(ctx, "textDocument/didOpen", protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: protocol.DocumentURI(uriA), LanguageID: "vespaSchema", Version: 1, Text: edited},
	}))
	require.NoError(t, c.conn.Notify(ctx, "textDocument/didClose", protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uriA)},
	}))
	// A request round trip orders the checks after the notifications.
	var found []protocol.SymbolInformation
	require.NoError(t, c.conn.Call(ctx, "workspace/symbol", protocol.WorkspaceSymbolParams{Query: "x"}, &found))

	doc, ok := srv.Scheduler().GetDocument(uriA)
	require.True(t, ok)
	assert.False(t, doc.Open)
	assert.Equal(t, srcA, doc.Text)
	require.Len(t, found, 1)
	assert.Equal(t, "x", found[0].Name)
}

func TestDecodeRejectsMissingParams(t *testing.T) {
	err := decode(&jsonrpc2.Request{Method: "textDocument/hover"}, &protocol.HoverParams{})
	var rpcErr *jsonrpc2.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, int64(jsonrpc2.CodeInvalidParams), rpcErr.Code)
}
