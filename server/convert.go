package server

import (
	"go.lsp.dev/protocol"

	"github.com/lexcodex/schemals/framework/ast"
	"github.com/lexcodex/schemals/framework/document"
	"github.com/lexcodex/schemals/framework/query"
	"github.com/lexcodex/schemals/framework/symbols"
)

func toPosition(p ast.Position) protocol.Position {
	return protocol.Position{Line: uint32(p.Line), Character: uint32(p.Character)}
}

func toRange(r ast.Range) protocol.Range {
	return protocol.Range{Start: toPosition(r.Start), End: toPosition(r.End)}
}

func toLocations(locs []query.Location) []protocol.Location {
	out := make([]protocol.Location, 0, len(locs))
	for _, loc := range locs {
		out = append(out, protocol.Location{URI: protocol.DocumentURI(loc.URI), Range: toRange(loc.Range)})
	}
	return out
}

func toDiagnostics(diags []document.Diagnostic) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(diags))
	for _, d := range diags {
		out = append(out, protocol.Diagnostic{
			Range:    toRange(d.Range),
			Severity: protocol.DiagnosticSeverity(d.Severity),
			Code:     d.Code,
			Source:   document.Source,
			Message:  d.Message,
		})
	}
	return out
}

func toDocumentSymbols(nodes []*query.OutlineNode) []protocol.DocumentSymbol {
	out := make([]protocol.DocumentSymbol, 0, len(nodes))
	for _, n := range nodes {
		sym := n.Symbol
		out = append(out, protocol.DocumentSymbol{
			Name:           sym.Name,
			Detail:         sym.Detail,
			Kind:           symbolKind(sym.Kind),
			Range:          toRange(sym.Span),
			SelectionRange: toRange(sym.Range),
			Children:       toDocumentSymbols(n.Children),
		})
	}
	return out
}

var symbolKinds = map[symbols.Kind]protocol.SymbolKind{
	symbols.KindSchema:          protocol.SymbolKindNamespace,
	symbols.KindDocument:        protocol.SymbolKindClass,
	symbols.KindField:           protocol.SymbolKindField,
	symbols.KindStruct:          protocol.SymbolKindStruct,
	symbols.KindAnnotation:      protocol.SymbolKindInterface,
	symbols.KindFieldset:        protocol.SymbolKindArray,
	symbols.KindRankProfile:     protocol.SymbolKindModule,
	symbols.KindFunction:        protocol.SymbolKindFunction,
	symbols.KindParameter:       protocol.SymbolKindVariable,
	symbols.KindInput:           protocol.SymbolKindProperty,
	symbols.KindConstant:        protocol.SymbolKindConstant,
	symbols.KindDocumentSummary: protocol.SymbolKindObject,
	symbols.KindSummaryField:    protocol.SymbolKindField,
}

func symbolKind(k symbols.Kind) protocol.SymbolKind {
	if kind, ok := symbolKinds[k]; ok {
		return kind
	}
	return protocol.SymbolKindVariable
}
