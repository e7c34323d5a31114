package index

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lexcodex/schemals/framework/symbols"
)

// Match is a declaration found by name together with its lookup key.
type Match struct {
	Symbol symbols.Symbol
	Ref    symbols.SymbolRef
}

type declKey struct {
	uri string
	id  symbols.ID
}

// Stats summarises the index contents.
type Stats struct {
	Documents    int
	Declarations int
	References   int
	Resolved     int
	Edges        int
	Cycles       int
	ByKind       map[symbols.Kind]int
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger used for index events.
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Index) {
		if logger != nil {
			idx.logger = logger
		}
	}
}

// Index is the process-wide symbol index: every committed document table,
// a by-name multimap of declarations, an inverse reference map and the
// dependency graph.
//
// Thread Safety:
//
//	Index is safe for concurrent use. Writers replace whole documents under
//	the write lock, so readers never observe a half-updated document.
type Index struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	docs     map[string]*symbols.Table
	byName   map[string][]declKey
	incoming map[symbols.SymbolRef][]declKey
	graph    *Graph

	// waiting maps a global name to the documents that failed to resolve
	// it; waitingFor is the inverse used for purging.
	waiting    map[string]map[string]struct{}
	waitingFor map[string][]string

	// pinned holds edges added through UpdateDependencyEdge. Commit keeps
	// them next to the edges found by analysis.
	pinned map[string][]Edge

	generation atomic.Uint64
}

// New constructs an empty index.
func New(opts ...Option) *Index {
	idx := &Index{
		logger:     slog.Default(),
		docs:       make(map[string]*symbols.Table),
		byName:     make(map[string][]declKey),
		incoming:   make(map[symbols.SymbolRef][]declKey),
		graph:      NewGraph(),
		waiting:    make(map[string]map[string]struct{}),
		waitingFor: make(map[string][]string),
		pinned:     make(map[string][]Edge),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// NextGeneration reserves a generation for a new analysis. Generations are
// unique across documents and strictly increasing.
func (idx *Index) NextGeneration() uint64 {
	return idx.generation.Add(1)
}

// ReplaceDocumentSymbols atomically swaps the table of a document. All by-name
// entries of the previous table are purged before the new ones are inserted.
func (idx *Index) ReplaceDocumentSymbols(table *symbols.Table) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.replaceLocked(table)
}

func (idx *Index) replaceLocked(table *symbols.Table) {
	uri := table.URI()
	idx.purgeLocked(uri)
	idx.docs[uri] = table
	for _, decl := range table.Declarations() {
		idx.byName[decl.Name] = append(idx.byName[decl.Name], declKey{uri: uri, id: decl.ID})
	}
	for _, b := range table.Resolutions() {
		idx.incoming[b.Target] = append(idx.incoming[b.Target], declKey{uri: uri, id: b.Ref})
	}
}

func (idx *Index) purgeLocked(uri string) {
	old, ok := idx.docs[uri]
	if !ok {
		return
	}
	for _, decl := range old.Declarations() {
		idx.byName[decl.Name] = dropURI(idx.byName[decl.Name], uri)
		if len(idx.byName[decl.Name]) == 0 {
			delete(idx.byName, decl.Name)
		}
	}
	for _, b := range old.Resolutions() {
		idx.incoming[b.Target] = dropURI(idx.incoming[b.Target], uri)
		if len(idx.incoming[b.Target]) == 0 {
			delete(idx.incoming, b.Target)
		}
	}
	delete(idx.docs, uri)
}

func dropURI(keys []declKey, uri string) []declKey {
	kept := keys[:0]
	for _, k := range keys {
		if k.uri != uri {
			kept = append(kept, k)
		}
	}
	return kept
}

// Commit is the result of one analysis run, applied as a unit.
type Commit struct {
	Table *symbols.Table
	Edges []Edge
	// Waiting lists global names the document failed to resolve.
	Waiting []string
}

// CommitResult reports follow-up work for the caller.
type CommitResult struct {
	// Woken lists documents that were waiting for a name the committed
	// document declares.
	Woken []string
	// CycleChanged is set when the committed edges altered cycle membership.
	CycleChanged bool
}

// Commit installs the table, the document's outgoing edges and its waiting
// names in one step.
func (idx *Index) Commit(c Commit) CommitResult {
	uri := c.Table.URI()
	idx.mu.Lock()
	defer idx.mu.Unlock()

	before := len(idx.graph.Cycles())
	wasCyclic := idx.graph.Cyclic(uri)
	idx.replaceLocked(c.Table)
	edges := append(append([]Edge(nil), c.Edges...), idx.pinned[uri]...)
	idx.graph.SetEdges(uri, edges)
	idx.setWaitingLocked(uri, c.Waiting)

	var res CommitResult
	woken := make(map[string]struct{})
	for _, decl := range c.Table.Declarations() {
		if decl.Kind != symbols.KindSchema && decl.Kind != symbols.KindDocument {
			continue
		}
		for waiter := range idx.waiting[decl.Name] {
			if waiter != uri {
				woken[waiter] = struct{}{}
			}
		}
	}
	for w := range woken {
		res.Woken = append(res.Woken, w)
	}
	sort.Strings(res.Woken)
	res.CycleChanged = before != len(idx.graph.Cycles()) || wasCyclic != idx.graph.Cyclic(uri)
	if res.CycleChanged && idx.graph.Cyclic(uri) {
		idx.logger.Warn("dependency cycle", "uri", uri, "members", idx.graph.Cycle(uri))
	}
	return res
}

func (idx *Index) setWaitingLocked(uri string, names []string) {
	for _, name := range idx.waitingFor[uri] {
		delete(idx.waiting[name], uri)
		if len(idx.waiting[name]) == 0 {
			delete(idx.waiting, name)
		}
	}
	delete(idx.waitingFor, uri)
	for _, name := range names {
		set := idx.waiting[name]
		if set == nil {
			set = make(map[string]struct{})
			idx.waiting[name] = set
		}
		if _, dup := set[uri]; dup {
			continue
		}
		set[uri] = struct{}{}
		idx.waitingFor[uri] = append(idx.waitingFor[uri], name)
	}
}

// RemoveDocument deletes a document's table, outgoing edges (pinned ones
// included) and waiting names. References in other documents that targeted it read as unresolved
// from now on.
func (idx *Index) RemoveDocument(uri string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, ok := idx.docs[uri]
	idx.purgeLocked(uri)
	idx.graph.ClearEdges(uri)
	delete(idx.pinned, uri)
	idx.setWaitingLocked(uri, nil)
	return ok
}

// Table returns the committed table of a document.
func (idx *Index) Table(uri string) (*symbols.Table, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	t, ok := idx.docs[uri]
	return t, ok
}

// Documents returns the URIs with committed tables, sorted.
func (idx *Index) Documents() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.docs))
	for uri := range idx.docs {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}

// LookupByName returns declarations named name that match mask. Results
// from fromURI come first, then by URI, then in declaration order.
func (idx *Index) LookupByName(name, fromURI string, mask symbols.KindMask) []Match {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.lookupLocked(name, fromURI, mask, "")
}

// lookupLocked skips entries of the excluded URI, which an overlay replaces.
func (idx *Index) lookupLocked(name, fromURI string, mask symbols.KindMask, exclude string) []Match {
	var out []Match
	for _, k := range idx.byName[name] {
		if k.uri == exclude {
			continue
		}
		table := idx.docs[k.uri]
		sym, ok := table.Symbol(k.id)
		if !ok || !mask.Has(sym.Kind) {
			continue
		}
		out = append(out, Match{Symbol: sym, Ref: sym.Ref(table.Generation())})
	}
	SortMatches(out, fromURI)
	return out
}

// SortMatches orders matches with fromURI first, then by URI and ID.
func SortMatches(matches []Match, fromURI string) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].Symbol, matches[j].Symbol
		if (a.URI == fromURI) != (b.URI == fromURI) {
			return a.URI == fromURI
		}
		if a.URI != b.URI {
			return a.URI < b.URI
		}
		return a.ID < b.ID
	})
}

// Symbol returns the declaration a ref points at if it is still committed.
func (idx *Index) Symbol(ref symbols.SymbolRef) (symbols.Symbol, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.symbolLocked(ref)
}

func (idx *Index) symbolLocked(ref symbols.SymbolRef) (symbols.Symbol, bool) {
	table, ok := idx.docs[ref.URI]
	if !ok || table.Generation() != ref.Generation {
		return symbols.Symbol{}, false
	}
	sym, ok := table.Symbol(ref.ID)
	if !ok || !sym.IsDeclaration() {
		return symbols.Symbol{}, false
	}
	return sym, true
}

// Target returns the current declaration a committed reference resolves to.
// Stale bindings, whose target document was re-analysed or closed, read as
// unresolved.
func (idx *Index) Target(uri string, id symbols.ID) (symbols.Symbol, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	table, ok := idx.docs[uri]
	if !ok {
		return symbols.Symbol{}, false
	}
	ref, ok := table.Resolution(id)
	if !ok {
		return symbols.Symbol{}, false
	}
	return idx.symbolLocked(ref)
}

// ReferencesTo returns every committed reference bound to the declaration,
// ordered by URI and position.
func (idx *Index) ReferencesTo(ref symbols.SymbolRef) []symbols.Symbol {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if _, ok := idx.symbolLocked(ref); !ok {
		return nil
	}
	var out []symbols.Symbol
	for _, k := range idx.incoming[ref] {
		if sym, ok := idx.docs[k.uri].Symbol(k.id); ok {
			out = append(out, sym)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].URI != out[j].URI {
			return out[i].URI < out[j].URI
		}
		return out[i].Range.Start.Before(out[j].Range.Start)
	})
	return out
}

// UpdateDependencyEdge adds or removes one edge and recomputes cycles. An
// added edge is pinned: it survives later commits of from until it is
// removed here or from is removed from the index. Removing an edge found by
// analysis lasts until from is next committed.
func (idx *Index) UpdateDependencyEdge(from, to string, kind EdgeKind, present bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e := Edge{To: to, Kind: kind}
	var kept []Edge
	for _, have := range idx.pinned[from] {
		if have != e {
			kept = append(kept, have)
		}
	}
	if present {
		kept = append(kept, e)
	}
	if len(kept) == 0 {
		delete(idx.pinned, from)
	} else {
		idx.pinned[from] = kept
	}
	idx.graph.SetEdge(from, to, kind, present)
}

// DependentsOf returns the documents that transitively depend on uri,
// nearest first.
func (idx *Index) DependentsOf(uri string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.graph.Dependents(uri)
}

// AnalysisOrder sorts uris so every document comes after the documents it
// depends on. See Graph.Order.
func (idx *Index) AnalysisOrder(uris []string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.graph.Order(uris)
}

// Dependencies returns the outgoing edges of uri.
func (idx *Index) Dependencies(uri string) []Edge {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.graph.Edges(uri)
}

// InheritedDocuments returns the documents uri inherits, in declaration order.
func (idx *Index) InheritedDocuments(uri string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.graph.Targets(uri, EdgeInherits)
}

// Reaches reports whether from inherits to, directly or transitively.
func (idx *Index) Reaches(from, to string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.graph.Reaches(from, to)
}

// EdgeCyclic reports whether the inherits edge from -> to lies on a cycle.
func (idx *Index) EdgeCyclic(from, to string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.graph.EdgeCyclic(from, to)
}

// CycleOf returns the members of the inherits cycle through uri.
func (idx *Index) CycleOf(uri string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.graph.Cycle(uri)
}

// Cycles returns all inherits cycles.
func (idx *Index) Cycles() [][]string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.graph.Cycles()
}

// WaitingOn returns the documents waiting for a declaration of name.
func (idx *Index) WaitingOn(name string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.waiting[name]))
	for uri := range idx.waiting[name] {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}

// Search returns declarations whose name contains query, case-insensitively,
// ordered by name, URI and declaration order. A limit <= 0 means no limit.
func (idx *Index) Search(query string, limit int) []Match {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	needle := strings.ToLower(query)
	var names []string
	for name := range idx.byName {
		if strings.Contains(strings.ToLower(name), needle) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	var out []Match
	for _, name := range names {
		for _, m := range idx.lookupLocked(name, "", 0, "") {
			out = append(out, m)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

// Stats returns counters describing the index.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	st := Stats{
		Documents: len(idx.docs),
		Edges:     idx.graph.EdgeCount(),
		Cycles:    len(idx.graph.Cycles()),
		ByKind:    make(map[symbols.Kind]int),
	}
	for _, table := range idx.docs {
		for _, decl := range table.Declarations() {
			st.Declarations++
			st.ByKind[decl.Kind]++
		}
		st.References += len(table.References())
		for _, b := range table.Resolutions() {
			if _, ok := idx.symbolLocked(b.Target); ok {
				st.Resolved++
			}
		}
	}
	return st
}
