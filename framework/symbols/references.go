package symbols

import "github.com/lexcodex/schemals/framework/ast"

// IdentifyReferences is the second analysis pass. It walks the same tree
// given to IdentifyDefinitions and returns a new table that extends defs
// with one reference symbol per identifier in a use position, tagged with
// its enclosing scope. No resolution happens here.
func IdentifyReferences(defs *Table, root *ast.Node) *Table {
	t := defs.clone()
	if root != nil {
		referencesIn(t, root, RootScope)
	}
	return t
}

func referencesIn(t *Table, n *ast.Node, scope ID) {
	inner := scope
	owner := NoOwner
	if id, ok := t.declOf[n]; ok {
		inner = id
		owner = id
	}
	for _, child := range n.Children {
		switch child.Kind {
		case ast.NodeName:
		case ast.NodeInherits:
			// The parent of an inherits clause is looked up from where the
			// inheriting construct lives, not from inside it.
			for _, ref := range child.Children {
				if ref.Kind == ast.NodeReference {
					addReference(t, ref, scope, owner)
				}
			}
		case ast.NodeReference:
			addReference(t, child, inner, NoOwner)
		default:
			referencesIn(t, child, inner)
		}
	}
}

func addReference(t *Table, n *ast.Node, scope, owner ID) {
	t.reference(Symbol{
		Name:    n.Text,
		Range:   n.Range,
		Scope:   scope,
		Context: n.Ref,
		Accepts: accepts(n.Ref),
		Owner:   owner,
	}, n)
}
