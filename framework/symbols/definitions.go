package symbols

import (
	"strings"

	"github.com/lexcodex/schemals/framework/ast"
)

var declKinds = map[ast.NodeKind]Kind{
	ast.NodeSchema:          KindSchema,
	ast.NodeDocument:        KindDocument,
	ast.NodeField:           KindField,
	ast.NodeStruct:          KindStruct,
	ast.NodeAnnotation:      KindAnnotation,
	ast.NodeFieldset:        KindFieldset,
	ast.NodeRankProfile:     KindRankProfile,
	ast.NodeFunction:        KindFunction,
	ast.NodeParameter:       KindParameter,
	ast.NodeInput:           KindInput,
	ast.NodeConstant:        KindConstant,
	ast.NodeDocumentSummary: KindDocumentSummary,
	ast.NodeSummary:         KindSummaryField,
}

// IdentifyDefinitions is the first analysis pass. It returns a table with
// one declaration per declaring construct of the tree, each scoped to its
// nearest enclosing declaration. The tree is not modified.
func IdentifyDefinitions(uri string, generation uint64, root *ast.Node) *Table {
	t := newTable(uri, generation)
	if root != nil {
		defineIn(t, root, RootScope)
	}
	return t
}

func defineIn(t *Table, n *ast.Node, scope ID) {
	inner := scope
	if kind, ok := declKinds[n.Kind]; ok {
		if name := n.Name(); name != nil {
			inner = t.declare(Symbol{
				Name:   name.Text,
				Kind:   kind,
				Range:  name.Range,
				Span:   n.Range,
				Scope:  scope,
				Detail: detail(kind, n),
			}, n, name)
		}
	}
	for _, child := range n.Children {
		switch child.Kind {
		case ast.NodeName, ast.NodeReference, ast.NodeInherits, ast.NodeType, ast.NodeExpression, ast.NodeFieldList:
			continue
		}
		defineIn(t, child, inner)
	}
}

// detail renders the declaration header shown on hover.
func detail(kind Kind, n *ast.Node) string {
	var b strings.Builder
	name := n.Name().Text
	switch kind {
	case KindInput:
		b.WriteString("query(" + name + ")")
	case KindParameter:
		b.WriteString("parameter " + name)
	case KindFunction:
		b.WriteString("function " + name + "(")
		first := true
		for _, child := range n.Children {
			if child.Kind != ast.NodeParameter || child.Name() == nil {
				continue
			}
			if !first {
				b.WriteString(", ")
			}
			b.WriteString(child.Name().Text)
			first = false
		}
		b.WriteString(")")
	default:
		b.WriteString(kind.String() + " " + name)
	}
	if typ := n.Child(ast.NodeType); typ != nil && typ.Text != "" {
		if kind == KindField || kind == KindSummaryField {
			b.WriteString(" type")
		}
		b.WriteString(" " + typ.Text)
	}
	if inh := n.Child(ast.NodeInherits); inh != nil {
		var parents []string
		for _, ref := range inh.Children {
			parents = append(parents, ref.Text)
		}
		if len(parents) > 0 {
			b.WriteString(" inherits " + strings.Join(parents, ", "))
		}
	}
	return b.String()
}
