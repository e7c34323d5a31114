// Package query answers position-based questions against committed
// documents: what symbol is under the cursor, where it is declared, who uses
// it, and what to show on hover.
package query

import (
	"fmt"
	"path"
	"strings"

	"github.com/lexcodex/schemals/framework/ast"
	"github.com/lexcodex/schemals/framework/document"
	"github.com/lexcodex/schemals/framework/index"
	"github.com/lexcodex/schemals/framework/symbols"
)

// Source is a consistent read of documents and index. document.View
// satisfies it.
type Source interface {
	Document(uri string) (*document.Document, bool)
	Index() *index.Index
}

// Location is a range within a document.
type Location struct {
	URI   string
	Range ast.Range
}

// Result is the symbol found at a position.
type Result struct {
	Symbol symbols.Symbol
	// Target is the declaration the symbol resolves to: the symbol itself
	// for declarations, the live resolution for references.
	Target   symbols.Symbol
	Resolved bool
}

// ResolveAt returns the declaration or reference under pos. Positions on
// whitespace, punctuation, keywords or unknown documents yield no result.
func ResolveAt(src Source, uri string, pos ast.Position) (Result, bool) {
	doc, ok := src.Document(uri)
	if !ok {
		return Result{}, false
	}
	sym, ok := doc.SymbolAt(pos)
	if !ok {
		return Result{}, false
	}
	res := Result{Symbol: sym}
	if sym.IsDeclaration() {
		res.Target, res.Resolved = sym, true
		return res, true
	}
	res.Target, res.Resolved = src.Index().Target(uri, sym.ID)
	return res, true
}

// Definition returns the declaration location of the symbol at pos. A
// declaration points at itself; unresolved references yield nothing.
func Definition(src Source, uri string, pos ast.Position) []Location {
	res, ok := ResolveAt(src, uri, pos)
	if !ok || !res.Resolved {
		return nil
	}
	return []Location{{URI: res.Target.URI, Range: res.Target.Range}}
}

// References returns every committed reference bound to the declaration at
// pos, ordered by document and position. With includeDeclaration the
// declaration itself comes first.
func References(src Source, uri string, pos ast.Position, includeDeclaration bool) []Location {
	res, ok := ResolveAt(src, uri, pos)
	if !ok || !res.Resolved {
		return nil
	}
	decl := res.Target
	table, ok := src.Index().Table(decl.URI)
	if !ok {
		return nil
	}
	var out []Location
	if includeDeclaration {
		out = append(out, Location{URI: decl.URI, Range: decl.Range})
	}
	for _, ref := range src.Index().ReferencesTo(decl.Ref(table.Generation())) {
		out = append(out, Location{URI: ref.URI, Range: ref.Range})
	}
	return out
}

// HoverInfo is the content shown for the symbol under the cursor.
type HoverInfo struct {
	Range    ast.Range
	Symbol   symbols.Symbol
	Target   symbols.Symbol
	Resolved bool
}

// Hover describes the symbol at pos.
func Hover(src Source, uri string, pos ast.Position) (HoverInfo, bool) {
	res, ok := ResolveAt(src, uri, pos)
	if !ok {
		return HoverInfo{}, false
	}
	return HoverInfo{
		Range:    res.Symbol.Range,
		Symbol:   res.Symbol,
		Target:   res.Target,
		Resolved: res.Resolved,
	}, true
}

// Markdown renders the hover as a fenced signature plus its origin.
func (h HoverInfo) Markdown() string {
	if !h.Resolved {
		return fmt.Sprintf("unresolved %s `%s`", h.Symbol.Accepts, h.Symbol.Name)
	}
	var b strings.Builder
	b.WriteString("```" + ast.LanguageSchema + "\n")
	b.WriteString(signature(h.Target))
	b.WriteString("\n```")
	if h.Target.URI != h.Symbol.URI {
		fmt.Fprintf(&b, "\n\nDeclared in `%s` at line %d", path.Base(h.Target.URI), h.Target.Range.Start.Line+1)
	}
	return b.String()
}

func signature(sym symbols.Symbol) string {
	if sym.Detail != "" {
		return sym.Detail
	}
	return sym.Kind.String() + " " + sym.Name
}
