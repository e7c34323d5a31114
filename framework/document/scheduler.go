package document

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lexcodex/schemals/framework/ast"
	"github.com/lexcodex/schemals/framework/index"
	"github.com/lexcodex/schemals/framework/resolve"
	"github.com/lexcodex/schemals/framework/symbols"
	"github.com/lexcodex/schemals/framework/telemetry"
)

// Triggers label pipeline runs in logs and metrics.
const (
	TriggerOpen    = "open"
	TriggerChange  = "change"
	TriggerClose   = "close"
	TriggerTrack   = "track"
	TriggerCascade = "cascade"
)

// Listener observes committed analyses. Callbacks run on the pipeline
// goroutine after the commit is visible and must not call back into the
// scheduler's lifecycle methods.
type Listener interface {
	OnAnalyzed(doc *Document)
	OnRemoved(uri string)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithListener registers the commit observer.
func WithListener(l Listener) Option {
	return func(s *Scheduler) { s.listener = l }
}

// WithParsers replaces the parser registry.
func WithParsers(r *ast.ParserRegistry) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.parsers = r
		}
	}
}

// Scheduler owns the document set and drives the analysis pipeline: parse,
// identify definitions, identify references, resolve, commit. Runs are
// serialized; every commit is guarded by a per-document stamp so a run
// superseded by a newer request is discarded instead of committed.
//
// Thread Safety:
//
//	Lifecycle methods may be called from any goroutine; they queue on the
//	pipeline lock. Readers use GetDocument or View and never observe a
//	document whose table is not yet installed in the index.
type Scheduler struct {
	pipeline sync.Mutex

	mu     sync.RWMutex
	docs   map[string]*Document
	stamps map[string]uint64
	seq    uint64

	idx      *index.Index
	parsers  *ast.ParserRegistry
	detector *ast.LanguageDetector
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
	listener Listener

	// beforeCommit runs between resolution and the stamp check.
	beforeCommit func(uri string)
}

// NewScheduler builds a scheduler over idx.
func NewScheduler(idx *index.Index, opts ...Option) *Scheduler {
	if idx == nil {
		idx = index.New()
	}
	s := &Scheduler{
		docs:     make(map[string]*Document),
		stamps:   make(map[string]uint64),
		idx:      idx,
		parsers:  ast.NewParserRegistry(),
		detector: ast.NewLanguageDetector(),
		logger:   slog.Default(),
		tracer:   telemetry.Tracer("document"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Index returns the global symbol index.
func (s *Scheduler) Index() *index.Index {
	return s.idx
}

// request describes one pipeline run.
type request struct {
	uri        string
	languageID string
	version    int32
	text       string
	open       bool
	stamp      uint64
	trigger    string
	wave       string
	// reuse carries the previous parse when only dependencies changed.
	reuse *Document
}

// OpenDocument registers uri as open and analyses it. Re-opening an open or
// tracked document replaces it.
func (s *Scheduler) OpenDocument(ctx context.Context, uri, languageID string, version int32, text string) error {
	stamp := s.bump(uri)
	s.process(ctx, request{
		uri:        uri,
		languageID: languageID,
		version:    version,
		text:       text,
		open:       true,
		stamp:      stamp,
		trigger:    TriggerOpen,
	})
	return nil
}

// ChangeDocument replaces the text of an open document and re-analyses it
// and every document depending on it.
func (s *Scheduler) ChangeDocument(ctx context.Context, uri string, version int32, text string) error {
	s.mu.Lock()
	doc, ok := s.docs[uri]
	if !ok || !doc.Open {
		s.mu.Unlock()
		return &UnknownDocumentError{URI: uri}
	}
	stamp := s.bumpLocked(uri)
	s.mu.Unlock()

	s.process(ctx, request{
		uri:        uri,
		languageID: doc.LanguageID,
		version:    version,
		text:       text,
		open:       true,
		stamp:      stamp,
		trigger:    TriggerChange,
	})
	return nil
}

// CloseDocument removes an open document and its symbols. References in
// other documents that resolved into it become unresolved.
func (s *Scheduler) CloseDocument(ctx context.Context, uri string) error {
	s.mu.Lock()
	doc, ok := s.docs[uri]
	if !ok || !doc.Open {
		s.mu.Unlock()
		return &UnknownDocumentError{URI: uri}
	}
	s.bumpLocked(uri)
	s.mu.Unlock()

	s.remove(ctx, uri, TriggerClose)
	return nil
}

// TrackDocument analyses a document that is not open in an editor, such as
// a schema file found in the workspace. Open documents are left untouched.
func (s *Scheduler) TrackDocument(ctx context.Context, uri, text string) {
	s.mu.Lock()
	if doc, ok := s.docs[uri]; ok && doc.Open {
		s.mu.Unlock()
		return
	}
	stamp := s.bumpLocked(uri)
	s.mu.Unlock()

	s.process(ctx, request{
		uri:        uri,
		languageID: s.detector.Detect(uri),
		text:       text,
		stamp:      stamp,
		trigger:    TriggerTrack,
	})
}

// UntrackDocument drops a tracked document. Open documents are left
// untouched.
func (s *Scheduler) UntrackDocument(ctx context.Context, uri string) {
	s.mu.Lock()
	doc, ok := s.docs[uri]
	if !ok || doc.Open {
		s.mu.Unlock()
		return
	}
	s.bumpLocked(uri)
	s.mu.Unlock()

	s.remove(ctx, uri, TriggerTrack)
}

// GetDocument returns the committed snapshot of uri.
func (s *Scheduler) GetDocument(uri string) (*Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uri]
	return doc, ok
}

// Documents returns all committed documents ordered by URI.
func (s *Scheduler) Documents() []*Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Document, 0, len(s.docs))
	for _, uri := range s.idx.Documents() {
		if doc, ok := s.docs[uri]; ok {
			out = append(out, doc)
		}
	}
	return out
}

// View is a consistent read of documents and index. It is only valid inside
// the callback passed to Scheduler.View.
type View struct {
	docs map[string]*Document
	idx  *index.Index
}

// Document returns the committed snapshot of uri.
func (v View) Document(uri string) (*Document, bool) {
	doc, ok := v.docs[uri]
	return doc, ok
}

// Index returns the index as of the view.
func (v View) Index() *index.Index {
	return v.idx
}

// View runs fn while no analysis can commit, so documents and index agree.
func (s *Scheduler) View(fn func(View)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(View{docs: s.docs, idx: s.idx})
}

func (s *Scheduler) bump(uri string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bumpLocked(uri)
}

func (s *Scheduler) bumpLocked(uri string) uint64 {
	s.seq++
	s.stamps[uri] = s.seq
	return s.seq
}

func (s *Scheduler) stamp(uri string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stamps[uri]
}

// process runs one request and the cascade it causes.
func (s *Scheduler) process(ctx context.Context, req request) {
	s.pipeline.Lock()
	defer s.pipeline.Unlock()

	req.wave = uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "Scheduler.process", trace.WithAttributes(
		attribute.String("uri", req.uri),
		attribute.String("trigger", req.trigger),
		attribute.String("wave", req.wave),
	))
	defer span.End()

	res, ok := s.run(ctx, req)
	if !ok {
		return
	}
	seeds := append(s.idx.DependentsOf(req.uri), res.Woken...)
	s.cascade(ctx, req.wave, req.uri, seeds)
}

// remove deletes a document and re-analyses the documents depending on it.
func (s *Scheduler) remove(ctx context.Context, uri, trigger string) {
	s.pipeline.Lock()
	defer s.pipeline.Unlock()

	wave := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "Scheduler.remove", trace.WithAttributes(
		attribute.String("uri", uri),
		attribute.String("trigger", trigger),
		attribute.String("wave", wave),
	))
	defer span.End()

	s.mu.Lock()
	dependents := s.idx.DependentsOf(uri)
	s.idx.RemoveDocument(uri)
	delete(s.docs, uri)
	s.publishCountsLocked()
	s.mu.Unlock()

	s.logger.Debug("document removed", "uri", uri, "trigger", trigger, "wave", wave, "dependents", len(dependents))
	if s.listener != nil {
		s.listener.OnRemoved(uri)
	}
	s.cascade(ctx, wave, uri, dependents)
}

// cascade re-analyses the pending documents in dependency order, so a
// document reading through another's inherits chain runs after it. The
// order is recomputed after every commit because a run may change edges.
// Each document runs at most once per wave, so dependency cycles terminate.
// The origin may run once more when a cycle leads back to it, which updates
// its cycle state.
func (s *Scheduler) cascade(ctx context.Context, wave, origin string, seeds []string) {
	done := make(map[string]bool)
	pending := make(map[string]bool)
	enqueue := func(uris []string) {
		for _, uri := range uris {
			if !done[uri] {
				pending[uri] = true
			}
		}
	}
	enqueue(seeds)
	analysed := 0
	for len(pending) > 0 {
		uris := make([]string, 0, len(pending))
		for uri := range pending {
			uris = append(uris, uri)
		}
		uri := s.idx.AnalysisOrder(uris)[0]
		delete(pending, uri)
		done[uri] = true

		s.mu.RLock()
		doc, ok := s.docs[uri]
		stamp := s.stamps[uri]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		res, committed := s.run(ctx, request{
			uri:        uri,
			languageID: doc.LanguageID,
			version:    doc.Version,
			text:       doc.Text,
			open:       doc.Open,
			stamp:      stamp,
			trigger:    TriggerCascade,
			wave:       wave,
			reuse:      doc,
		})
		if !committed {
			continue
		}
		analysed++
		enqueue(s.idx.DependentsOf(uri))
		enqueue(res.Woken)
	}
	s.metrics.RecordCascade(analysed)
	if analysed > 0 {
		s.logger.Debug("cascade finished", "origin", origin, "wave", wave, "documents", analysed)
	}
}

// run analyses one document and commits it unless its stamp moved.
func (s *Scheduler) run(ctx context.Context, req request) (index.CommitResult, bool) {
	start := time.Now()
	_, span := s.tracer.Start(ctx, "Scheduler.run", trace.WithAttributes(
		attribute.String("uri", req.uri),
		attribute.String("trigger", req.trigger),
	))
	defer span.End()

	tree, syntax, hash := s.parse(req)
	generation := s.idx.NextGeneration()
	defs := symbols.IdentifyDefinitions(req.uri, generation, tree)
	table := symbols.IdentifyReferences(defs, tree)
	res := resolve.New(s.idx.Overlay(table), table).Resolve()
	table = table.Bind(res.Bindings)

	if s.beforeCommit != nil {
		s.beforeCommit(req.uri)
	}

	s.mu.Lock()
	if s.stamps[req.uri] != req.stamp {
		s.mu.Unlock()
		s.metrics.RecordRun(req.trigger, telemetry.OutcomeStale, time.Since(start))
		s.logger.Debug("analysis discarded", "uri", req.uri, "version", req.version, "error", ErrStaleAnalysis)
		span.SetAttributes(attribute.Bool("stale", true))
		return index.CommitResult{}, false
	}
	result := s.idx.Commit(index.Commit{Table: table, Edges: res.Edges, Waiting: res.Waiting})
	var cycle []string
	if len(res.Cyclic) > 0 {
		cycle = s.idx.CycleOf(req.uri)
	}
	doc := &Document{
		URI:          req.uri,
		LanguageID:   req.languageID,
		Version:      req.version,
		Text:         req.text,
		Hash:         hash,
		Open:         req.open,
		Tree:         tree,
		SyntaxErrors: syntax,
		Table:        table,
		Diagnostics:  buildDiagnostics(syntax, table, res, cycle),
	}
	s.docs[req.uri] = doc
	s.publishCountsLocked()
	s.mu.Unlock()

	s.metrics.RecordRun(req.trigger, telemetry.OutcomeCommitted, time.Since(start))
	s.metrics.RecordUnresolved(len(res.Unresolved))
	s.logger.Debug("analysis committed",
		"uri", req.uri,
		"version", req.version,
		"trigger", req.trigger,
		"wave", req.wave,
		"generation", generation,
		"symbols", table.Len(),
		"unresolved", len(res.Unresolved),
		"woken", len(result.Woken),
	)
	if s.listener != nil {
		s.listener.OnAnalyzed(doc)
	}
	return result, true
}

// parse returns the syntax tree for a request, reusing the previous tree
// when the text is unchanged.
func (s *Scheduler) parse(req request) (*ast.Node, []ast.SyntaxError, string) {
	hash := ast.HashContent(req.text)
	if req.reuse != nil && req.reuse.Hash == hash && req.reuse.Tree != nil {
		return req.reuse.Tree, req.reuse.SyntaxErrors, hash
	}
	parser, ok := s.parsers.GetParser(req.languageID)
	if !ok {
		parser, ok = s.parsers.GetParser(s.detector.Detect(req.uri))
	}
	if !ok {
		parser = ast.NewSchemaParser()
	}
	parsed := parser.Parse(req.text)
	return parsed.Root, parsed.Errors, hash
}

func (s *Scheduler) publishCountsLocked() {
	if s.metrics == nil {
		return
	}
	open := 0
	for _, doc := range s.docs {
		if doc.Open {
			open++
		}
	}
	s.metrics.SetDocuments(open, len(s.docs)-open)
}
