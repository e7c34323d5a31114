package ast

// NodeKind enumerates concrete syntax constructs of a schema file.
type NodeKind uint8

const (
	NodeFile NodeKind = iota
	NodeSchema
	NodeDocument
	NodeField
	NodeStruct
	NodeAnnotation
	NodeFieldset
	NodeRankProfile
	NodeFunction
	NodeParameter
	NodeInputs
	NodeInput
	NodeConstants
	NodeConstant
	NodeDocumentSummary
	NodeSummary
	NodeInherits
	NodeType
	NodeFieldList
	NodePhase
	NodeExpression
	NodeProperty
	NodeBlock

	// NodeName is the identifier introduced by a declaring construct.
	NodeName
	// NodeReference is an identifier in a use position; Ref says which.
	NodeReference
)

var nodeKindNames = [...]string{
	NodeFile:            "file",
	NodeSchema:          "schema",
	NodeDocument:        "document",
	NodeField:           "field",
	NodeStruct:          "struct",
	NodeAnnotation:      "annotation",
	NodeFieldset:        "fieldset",
	NodeRankProfile:     "rank-profile",
	NodeFunction:        "function",
	NodeParameter:       "parameter",
	NodeInputs:          "inputs",
	NodeInput:           "input",
	NodeConstants:       "constants",
	NodeConstant:        "constant",
	NodeDocumentSummary: "document-summary",
	NodeSummary:         "summary",
	NodeInherits:        "inherits",
	NodeType:            "type",
	NodeFieldList:       "field-list",
	NodePhase:           "phase",
	NodeExpression:      "expression",
	NodeProperty:        "property",
	NodeBlock:           "block",
	NodeName:            "name",
	NodeReference:       "reference",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return "unknown"
}

// RefContext records the grammatical position a reference occurs in. The
// reference identifier maps it to the symbol kinds the use may bind to.
type RefContext uint8

const (
	RefNone RefContext = iota
	RefSchemaInherits
	RefDocumentInherits
	RefStructInherits
	RefAnnotationInherits
	RefProfileInherits
	RefSummaryInherits
	RefTypeName
	RefDocumentReference
	RefAnnotationReference
	RefFieldName
	RefExprIdent
	RefExprFunction
	RefExprAttribute
	RefExprQuery
	RefExprConstant
)

// IsInherits reports whether the reference names the parent of an inherits clause.
func (c RefContext) IsInherits() bool {
	switch c {
	case RefSchemaInherits, RefDocumentInherits, RefStructInherits,
		RefAnnotationInherits, RefProfileInherits, RefSummaryInherits:
		return true
	}
	return false
}

// Node is one element of the concrete syntax tree. Trees are immutable once
// returned by a parser and may be shared between readers.
type Node struct {
	Kind     NodeKind
	Range    Range
	Text     string
	Ref      RefContext
	Children []*Node
	Parent   *Node
}

func (n *Node) add(child *Node) {
	if child == nil {
		return
	}
	n.Children = append(n.Children, child)
}

// Name returns the declaring identifier of n, if any.
func (n *Node) Name() *Node {
	if n == nil {
		return nil
	}
	for _, child := range n.Children {
		if child.Kind == NodeName {
			return child
		}
	}
	return nil
}

// Child returns the first direct child of the given kind.
func (n *Node) Child(kind NodeKind) *Node {
	if n == nil {
		return nil
	}
	for _, child := range n.Children {
		if child.Kind == kind {
			return child
		}
	}
	return nil
}

// Walk visits n and its descendants depth-first in source order. Returning
// false from fn skips the children of that node.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, child := range n.Children {
		Walk(child, fn)
	}
}

// NodeAt returns the innermost node whose range contains pos. Among
// overlapping candidates the deepest wins, then the earliest.
func (n *Node) NodeAt(pos Position) *Node {
	found, _ := n.nodeAt(pos, 0)
	return found
}

func (n *Node) nodeAt(pos Position, depth int) (*Node, int) {
	if n == nil || !n.Range.Contains(pos) {
		return nil, -1
	}
	best, bestDepth := n, depth
	for _, child := range n.Children {
		if found, d := child.nodeAt(pos, depth+1); found != nil && d > bestDepth {
			best, bestDepth = found, d
		}
	}
	return best, bestDepth
}

func link(n *Node) {
	for _, child := range n.Children {
		child.Parent = n
		link(child)
	}
}
