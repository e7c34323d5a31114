package resolve

import (
	"github.com/lexcodex/schemals/framework/index"
	"github.com/lexcodex/schemals/framework/symbols"
)

// Source is the read view the resolver works against. *index.Overlay
// satisfies it with the pending table standing in for its document.
type Source interface {
	Table(uri string) (*symbols.Table, bool)
	LookupByName(name, fromURI string, mask symbols.KindMask) []index.Match
	InheritedDocuments(uri string) []string
	Reaches(from, to string) bool
	EdgeCyclic(from, to string) bool
}

// Result is the outcome of resolving one table.
type Result struct {
	Bindings []symbols.Binding
	// Edges are the document's outgoing dependencies, in declaration order.
	Edges []index.Edge
	// Waiting lists global names that did not resolve.
	Waiting []string
	// Unresolved lists references left without a target.
	Unresolved []symbols.Symbol
	// Cyclic lists inherits references whose target document inherits this
	// one back; lookups do not follow them.
	Cyclic []symbols.Symbol
}

type memoKey struct {
	scope symbols.ID
	name  string
	mask  symbols.KindMask
}

type memoEntry struct {
	match index.Match
	found bool
	busy  bool
}

type constructKey struct {
	uri string
	id  symbols.ID
}

// Resolver binds the references of one pending table. A Resolver is used
// for one analysis run; its memo is discarded with it.
type Resolver struct {
	src       Source
	table     *symbols.Table
	uri       string
	memo      map[memoKey]*memoEntry
	globals   map[symbols.ID]index.Match
	inherited []string
}

// New returns a resolver for table reading other documents through src.
func New(src Source, table *symbols.Table) *Resolver {
	return &Resolver{
		src:     src,
		table:   table,
		uri:     table.URI(),
		memo:    make(map[memoKey]*memoEntry),
		globals: make(map[symbols.ID]index.Match),
	}
}

// Resolve binds every reference of the table.
//
// Schema and document names are looked up by name across documents, which
// yields the document's dependency edges. Every other reference walks its
// scope chain innermost first, including constructs its enclosing
// declarations inherit, then the document root, then the inherited
// documents in declaration order. Inherited documents that inherit this one
// back are skipped, so cyclic chains end unresolved instead of looping.
func (r *Resolver) Resolve() Result {
	var res Result
	refs := r.table.References()

	waiting := make(map[string]bool)
	seenInherited := make(map[string]bool)
	for _, ref := range refs {
		if !ref.Global() {
			continue
		}
		matches := r.src.LookupByName(ref.Name, r.uri, ref.Accepts)
		if len(matches) == 0 {
			if !waiting[ref.Name] {
				waiting[ref.Name] = true
				res.Waiting = append(res.Waiting, ref.Name)
			}
			continue
		}
		target := matches[0]
		r.globals[ref.ID] = target
		kind := index.EdgeReferences
		if ref.Context.IsInherits() {
			kind = index.EdgeInherits
		}
		res.Edges = append(res.Edges, index.Edge{To: target.Symbol.URI, Kind: kind})
		if kind != index.EdgeInherits || target.Symbol.URI == r.uri {
			if kind == index.EdgeInherits {
				res.Cyclic = append(res.Cyclic, ref)
			}
			continue
		}
		if r.src.Reaches(target.Symbol.URI, r.uri) {
			res.Cyclic = append(res.Cyclic, ref)
			continue
		}
		if !seenInherited[target.Symbol.URI] {
			seenInherited[target.Symbol.URI] = true
			r.inherited = append(r.inherited, target.Symbol.URI)
		}
	}

	for _, ref := range refs {
		match, ok := r.resolveRef(ref)
		if !ok {
			res.Unresolved = append(res.Unresolved, ref)
			continue
		}
		res.Bindings = append(res.Bindings, symbols.Binding{Ref: ref.ID, Target: match.Ref})
	}
	return res
}

func (r *Resolver) resolveRef(ref symbols.Symbol) (index.Match, bool) {
	if ref.Global() {
		m, ok := r.globals[ref.ID]
		return m, ok
	}
	return r.lookup(ref.Scope, ref.Name, ref.Accepts)
}

// lookup resolves name from scope in the pending table, memoized per run.
func (r *Resolver) lookup(scope symbols.ID, name string, mask symbols.KindMask) (index.Match, bool) {
	key := memoKey{scope: scope, name: name, mask: mask}
	if e, ok := r.memo[key]; ok {
		// A busy entry means the lookup re-entered itself through an
		// inheritance cycle; that path yields nothing.
		return e.match, e.found && !e.busy
	}
	entry := &memoEntry{busy: true}
	r.memo[key] = entry
	entry.match, entry.found = r.lookupUncached(scope, name, mask)
	entry.busy = false
	return entry.match, entry.found
}

func (r *Resolver) lookupUncached(scope symbols.ID, name string, mask symbols.KindMask) (index.Match, bool) {
	visited := make(map[constructKey]bool)
	for s := scope; s != symbols.RootScope; s = r.table.Parent(s) {
		if m, ok := r.inTable(r.table, s, name, mask); ok {
			return m, true
		}
		if decl, _ := r.table.Symbol(s); decl.Kind.Inheritable() {
			if m, ok := r.inInheritedConstructs(r.table, s, name, mask, visited); ok {
				return m, true
			}
		}
	}
	if m, ok := r.inTable(r.table, symbols.RootScope, name, mask); ok {
		return m, true
	}
	visitedDocs := map[string]bool{r.uri: true}
	for _, uri := range r.inherited {
		if m, ok := r.inDocument(uri, name, mask, visitedDocs); ok {
			return m, true
		}
	}
	return index.Match{}, false
}

func (r *Resolver) inTable(t *symbols.Table, scope symbols.ID, name string, mask symbols.KindMask) (index.Match, bool) {
	ids := t.Lookup(scope, name, mask)
	if len(ids) == 0 {
		return index.Match{}, false
	}
	sym, _ := t.Symbol(ids[0])
	return index.Match{Symbol: sym, Ref: sym.Ref(t.Generation())}, true
}

// inDocument searches the root scope of uri and then, recursively, the
// documents it inherits. Cyclic edges and visited documents are skipped.
func (r *Resolver) inDocument(uri, name string, mask symbols.KindMask, visited map[string]bool) (index.Match, bool) {
	if visited[uri] {
		return index.Match{}, false
	}
	visited[uri] = true
	t, ok := r.src.Table(uri)
	if !ok {
		return index.Match{}, false
	}
	if m, ok := r.inTable(t, symbols.RootScope, name, mask); ok {
		return m, true
	}
	for _, next := range r.src.InheritedDocuments(uri) {
		if r.src.EdgeCyclic(uri, next) {
			continue
		}
		if m, ok := r.inDocument(next, name, mask, visited); ok {
			return m, true
		}
	}
	return index.Match{}, false
}

// inInheritedConstructs searches the constructs a declaration inherits, such
// as a rank profile's parent profiles, depth first in clause order.
func (r *Resolver) inInheritedConstructs(t *symbols.Table, decl symbols.ID, name string, mask symbols.KindMask, visited map[constructKey]bool) (index.Match, bool) {
	key := constructKey{uri: t.URI(), id: decl}
	if visited[key] {
		return index.Match{}, false
	}
	visited[key] = true
	for _, refID := range t.Inherits(decl) {
		parent, parentTable, ok := r.parentConstruct(t, refID)
		if !ok {
			continue
		}
		if m, ok := r.inTable(parentTable, parent.ID, name, mask); ok {
			return m, true
		}
		if m, ok := r.inInheritedConstructs(parentTable, parent.ID, name, mask, visited); ok {
			return m, true
		}
	}
	return index.Match{}, false
}

// parentConstruct returns the target of an inherits reference. References of
// the pending table resolve through this run; others use their committed
// binding, which must still point at a live generation.
func (r *Resolver) parentConstruct(t *symbols.Table, refID symbols.ID) (symbols.Symbol, *symbols.Table, bool) {
	var target symbols.SymbolRef
	if t == r.table {
		ref, ok := t.Symbol(refID)
		if !ok || ref.Global() {
			return symbols.Symbol{}, nil, false
		}
		m, ok := r.lookup(ref.Scope, ref.Name, ref.Accepts)
		if !ok {
			return symbols.Symbol{}, nil, false
		}
		target = m.Ref
	} else {
		ref, ok := t.Resolution(refID)
		if !ok {
			return symbols.Symbol{}, nil, false
		}
		target = ref
	}
	targetTable, ok := r.src.Table(target.URI)
	if !ok || targetTable.Generation() != target.Generation {
		return symbols.Symbol{}, nil, false
	}
	sym, ok := targetTable.Symbol(target.ID)
	if !ok {
		return symbols.Symbol{}, nil, false
	}
	return sym, targetTable, true
}
