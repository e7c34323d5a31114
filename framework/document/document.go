package document

import (
	"github.com/lexcodex/schemals/framework/ast"
	"github.com/lexcodex/schemals/framework/symbols"
)

// Document is the committed state of one open or tracked file. A Document
// is never mutated after the scheduler publishes it; every analysis builds a
// new one.
type Document struct {
	URI        string
	LanguageID string
	Version    int32
	Text       string
	Hash       string
	// Open is false for documents tracked from disk but not open in an editor.
	Open bool

	Tree         *ast.Node
	SyntaxErrors []ast.SyntaxError
	Table        *symbols.Table
	Diagnostics  []Diagnostic
}

// Generation returns the generation of the document's symbol table.
func (d *Document) Generation() uint64 {
	if d == nil || d.Table == nil {
		return 0
	}
	return d.Table.Generation()
}

// SymbolAt returns the declaration or reference occupying pos. Positions on
// whitespace, punctuation or keywords yield no symbol.
func (d *Document) SymbolAt(pos ast.Position) (symbols.Symbol, bool) {
	if d == nil || d.Tree == nil {
		return symbols.Symbol{}, false
	}
	n := d.Tree.NodeAt(pos)
	if n == nil {
		return symbols.Symbol{}, false
	}
	return d.Table.AtNode(n)
}

// ErrorCount returns the number of error-severity diagnostics.
func (d *Document) ErrorCount() int {
	n := 0
	for _, diag := range d.Diagnostics {
		if diag.Severity == SeverityError {
			n++
		}
	}
	return n
}
