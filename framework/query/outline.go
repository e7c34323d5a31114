package query

import (
	"github.com/lexcodex/schemals/framework/document"
	"github.com/lexcodex/schemals/framework/index"
	"github.com/lexcodex/schemals/framework/symbols"
)

// OutlineNode is one declaration with the declarations nested in it.
type OutlineNode struct {
	Symbol   symbols.Symbol
	Children []*OutlineNode
}

// Outline returns the declaration tree of a document in source order.
func Outline(doc *document.Document) []*OutlineNode {
	if doc == nil || doc.Table == nil {
		return nil
	}
	decls := doc.Table.Declarations()
	nodes := make(map[symbols.ID]*OutlineNode, len(decls))
	var roots []*OutlineNode
	for _, decl := range decls {
		n := &OutlineNode{Symbol: decl}
		nodes[decl.ID] = n
		if parent, ok := nodes[decl.Scope]; ok {
			parent.Children = append(parent.Children, n)
			continue
		}
		roots = append(roots, n)
	}
	return roots
}

// WorkspaceSymbols returns declarations across all documents whose name
// contains query, case-insensitively.
func WorkspaceSymbols(idx *index.Index, query string, limit int) []symbols.Symbol {
	matches := idx.Search(query, limit)
	out := make([]symbols.Symbol, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Symbol)
	}
	return out
}
