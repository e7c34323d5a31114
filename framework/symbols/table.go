package symbols

import (
	"fmt"
	"sort"

	"github.com/lexcodex/schemals/framework/ast"
)

// Table holds the symbols of one analysis of one document. A table is
// built by IdentifyDefinitions and IdentifyReferences, bound by the
// resolver, and then committed; committed tables are never modified.
type Table struct {
	uri        string
	generation uint64
	syms       []Symbol
	decls      int

	byScope     map[ID]map[string][]ID
	transparent map[ID][]ID
	declOf      map[*ast.Node]ID
	byNode      map[*ast.Node]ID
	owned       map[ID][]ID
	resolved    map[ID]SymbolRef
	problems    []Problem
}

func newTable(uri string, generation uint64) *Table {
	return &Table{
		uri:         uri,
		generation:  generation,
		byScope:     make(map[ID]map[string][]ID),
		transparent: make(map[ID][]ID),
		declOf:      make(map[*ast.Node]ID),
		byNode:      make(map[*ast.Node]ID),
		owned:       make(map[ID][]ID),
		resolved:    make(map[ID]SymbolRef),
	}
}

// NewEmptyTable returns a table with no symbols, used for documents whose
// analysis has not produced a tree.
func NewEmptyTable(uri string, generation uint64) *Table {
	return newTable(uri, generation)
}

// clone copies the mutable parts of t. Declaration structures are shared
// because the reference pass never adds declarations.
func (t *Table) clone() *Table {
	c := &Table{
		uri:         t.uri,
		generation:  t.generation,
		syms:        append([]Symbol(nil), t.syms...),
		decls:       t.decls,
		byScope:     t.byScope,
		transparent: t.transparent,
		declOf:      t.declOf,
		byNode:      make(map[*ast.Node]ID, len(t.byNode)),
		owned:       make(map[ID][]ID, len(t.owned)),
		resolved:    make(map[ID]SymbolRef, len(t.resolved)),
		problems:    append([]Problem(nil), t.problems...),
	}
	for n, id := range t.byNode {
		c.byNode[n] = id
	}
	for id, refs := range t.owned {
		c.owned[id] = append([]ID(nil), refs...)
	}
	for id, ref := range t.resolved {
		c.resolved[id] = ref
	}
	return c
}

// URI returns the owning document.
func (t *Table) URI() string { return t.uri }

// Generation returns the analysis generation the table was built for.
func (t *Table) Generation() uint64 { return t.generation }

// Len returns the number of symbols.
func (t *Table) Len() int { return len(t.syms) }

// Symbol returns the symbol with the given ID.
func (t *Table) Symbol(id ID) (Symbol, bool) {
	if id < 0 || int(id) >= len(t.syms) {
		return Symbol{}, false
	}
	return t.syms[id], true
}

// Declarations returns the declaration symbols in source order.
func (t *Table) Declarations() []Symbol {
	return append([]Symbol(nil), t.syms[:t.decls]...)
}

// References returns the reference symbols in source order.
func (t *Table) References() []Symbol {
	return append([]Symbol(nil), t.syms[t.decls:]...)
}

// Problems returns duplicate-declaration diagnostics.
func (t *Table) Problems() []Problem {
	return append([]Problem(nil), t.problems...)
}

// AtNode returns the symbol introduced or used at a syntax node.
func (t *Table) AtNode(n *ast.Node) (Symbol, bool) {
	id, ok := t.byNode[n]
	if !ok {
		return Symbol{}, false
	}
	return t.syms[id], true
}

// Parent returns the scope enclosing the given scope.
func (t *Table) Parent(scope ID) ID {
	if scope == RootScope {
		return RootScope
	}
	if sym, ok := t.Symbol(scope); ok {
		return sym.Scope
	}
	return RootScope
}

// Lookup returns declarations named name directly in scope, followed by
// those inside transparent children of scope, in declaration order.
func (t *Table) Lookup(scope ID, name string, mask KindMask) []ID {
	var out []ID
	for _, id := range t.byScope[scope][name] {
		if mask.Has(t.syms[id].Kind) {
			out = append(out, id)
		}
	}
	for _, child := range t.transparent[scope] {
		out = append(out, t.Lookup(child, name, mask)...)
	}
	return out
}

// Inherits returns the references of the inherits clause of a declaration.
func (t *Table) Inherits(decl ID) []ID {
	return append([]ID(nil), t.owned[decl]...)
}

// DeclarationsNamed returns every declaration with the given name in source
// order, regardless of scope.
func (t *Table) DeclarationsNamed(name string, mask KindMask) []Symbol {
	var out []Symbol
	for _, sym := range t.syms[:t.decls] {
		if sym.Name == name && mask.Has(sym.Kind) {
			out = append(out, sym)
		}
	}
	return out
}

// Resolution returns the recorded target of a reference. The target is not
// validated; callers holding a committed table go through the index.
func (t *Table) Resolution(id ID) (SymbolRef, bool) {
	ref, ok := t.resolved[id]
	return ref, ok
}

// Resolutions returns all recorded bindings ordered by reference ID.
func (t *Table) Resolutions() []Binding {
	out := make([]Binding, 0, len(t.resolved))
	for id, ref := range t.resolved {
		out = append(out, Binding{Ref: id, Target: ref})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out
}

// Binding pairs a reference with its resolved declaration.
type Binding struct {
	Ref    ID
	Target SymbolRef
}

// Bind records resolutions on a copy of t. Tables are bound once, between
// reference identification and commit.
func (t *Table) Bind(bindings []Binding) *Table {
	c := t.clone()
	for _, b := range bindings {
		sym, ok := c.Symbol(b.Ref)
		if !ok || sym.Role != RoleReference || b.Target.IsZero() {
			continue
		}
		c.resolved[b.Ref] = b.Target
	}
	return c
}

func (t *Table) declare(sym Symbol, node, name *ast.Node) ID {
	id := ID(len(t.syms))
	sym.ID = id
	sym.Role = RoleDeclaration
	sym.URI = t.uri
	sym.Owner = NoOwner
	scoped := t.byScope[sym.Scope]
	if scoped == nil {
		scoped = make(map[string][]ID)
		t.byScope[sym.Scope] = scoped
	}
	for _, prior := range scoped[sym.Name] {
		first := t.syms[prior]
		if first.Kind == sym.Kind {
			sym.Duplicate = true
			t.problems = append(t.problems, Problem{
				Range:   sym.Range,
				Code:    CodeDuplicate,
				Message: fmt.Sprintf("duplicate %s '%s'; first declared at line %d", sym.Kind, sym.Name, first.Range.Start.Line+1),
			})
			break
		}
	}
	scoped[sym.Name] = append(scoped[sym.Name], id)
	if transparent(sym.Kind) {
		t.transparent[sym.Scope] = append(t.transparent[sym.Scope], id)
	}
	t.syms = append(t.syms, sym)
	t.decls = len(t.syms)
	t.declOf[node] = id
	t.byNode[name] = id
	return id
}

func (t *Table) reference(sym Symbol, node *ast.Node) ID {
	id := ID(len(t.syms))
	sym.ID = id
	sym.Role = RoleReference
	sym.URI = t.uri
	t.syms = append(t.syms, sym)
	t.byNode[node] = id
	if sym.Owner != NoOwner {
		t.owned[sym.Owner] = append(t.owned[sym.Owner], id)
	}
	return id
}
