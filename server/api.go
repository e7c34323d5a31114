package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lexcodex/schemals/framework/document"
	"github.com/lexcodex/schemals/framework/index"
	"github.com/lexcodex/schemals/framework/query"
	"github.com/lexcodex/schemals/framework/telemetry"
)

// APIServer exposes the index state over HTTP for inspection while an
// editor session runs.
type APIServer struct {
	Scheduler *document.Scheduler
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
}

// DocumentStatus summarises one committed document.
type DocumentStatus struct {
	URI         string `json:"uri"`
	Version     int32  `json:"version"`
	Open        bool   `json:"open"`
	Generation  uint64 `json:"generation"`
	Symbols     int    `json:"symbols"`
	Errors      int    `json:"errors"`
	Diagnostics int    `json:"diagnostics"`
}

// StatusResponse describes the index.
type StatusResponse struct {
	Documents []DocumentStatus `json:"documents"`
	Stats     index.Stats      `json:"stats"`
	Cycles    [][]string       `json:"cycles,omitempty"`
}

// SymbolResponse is one workspace symbol match.
type SymbolResponse struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	URI    string `json:"uri"`
	Line   int    `json:"line"`
	Detail string `json:"detail,omitempty"`
}

// Serve starts listening on the provided address.
func (s *APIServer) Serve(addr string) error {
	return s.ServeContext(context.Background(), addr)
}

// ServeContext allows the caller to control shutdown via context cancellation.
func (s *APIServer) ServeContext(ctx context.Context, addr string) error {
	server := s.newHTTPServer(addr)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	if s.Logger != nil {
		s.Logger.Info("API listening", "addr", addr)
	}
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *APIServer) newHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Handler routes the API endpoints.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/symbols", s.handleSymbols)
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics.Handler())
	}
	return mux
}

func (s *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var resp StatusResponse
	for _, doc := range s.Scheduler.Documents() {
		resp.Documents = append(resp.Documents, DocumentStatus{
			URI:         doc.URI,
			Version:     doc.Version,
			Open:        doc.Open,
			Generation:  doc.Generation(),
			Symbols:     doc.Table.Len(),
			Errors:      doc.ErrorCount(),
			Diagnostics: len(doc.Diagnostics),
		})
	}
	idx := s.Scheduler.Index()
	resp.Stats = idx.Stats()
	resp.Cycles = idx.Cycles()
	writeJSON(w, resp)
}

func (s *APIServer) handleSymbols(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	syms := query.WorkspaceSymbols(s.Scheduler.Index(), r.URL.Query().Get("q"), limit)
	resp := make([]SymbolResponse, 0, len(syms))
	for _, sym := range syms {
		resp = append(resp, SymbolResponse{
			Name:   sym.Name,
			Kind:   sym.Kind.String(),
			URI:    sym.URI,
			Line:   sym.Range.Start.Line + 1,
			Detail: sym.Detail,
		})
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
