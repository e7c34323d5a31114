package symbols

import (
	"fmt"

	"github.com/lexcodex/schemals/framework/ast"
)

// ID identifies a symbol within one table. IDs are ordinals: declarations
// first in source order, then references in source order.
type ID int

// RootScope is the scope of top-level declarations.
const RootScope ID = -1

// NoOwner marks references that are not part of an inherits clause.
const NoOwner ID = -1

// Symbol is a declaration or reference occurrence in one document.
type Symbol struct {
	ID    ID
	Name  string
	Role  Role
	URI   string
	Range ast.Range
	Scope ID

	// Declaration fields.
	Kind      Kind
	Span      ast.Range
	Detail    string
	Duplicate bool

	// Reference fields.
	Context ast.RefContext
	Accepts KindMask
	Owner   ID
}

// IsDeclaration reports whether s was introduced by a declaring construct.
func (s Symbol) IsDeclaration() bool {
	return s.Role == RoleDeclaration
}

// Global reports whether the reference names a schema or document type,
// which are found by name across the workspace instead of by scope.
func (s Symbol) Global() bool {
	return s.Role == RoleReference && s.Accepts != 0 && s.Accepts&^globalMask == 0
}

// Ref returns a lookup key for s within a table of the given generation.
func (s Symbol) Ref(generation uint64) SymbolRef {
	return SymbolRef{URI: s.URI, ID: s.ID, Generation: generation}
}

func (s Symbol) String() string {
	if s.Role == RoleReference {
		return fmt.Sprintf("ref %s@%s (%s)", s.Name, s.Range.Start, s.Accepts)
	}
	return fmt.Sprintf("%s %s@%s", s.Kind, s.Name, s.Range.Start)
}

// SymbolRef is a non-owning key to a declaration. It is only meaningful
// while the document's table of the same generation is committed; a key
// with an older generation reads as unresolved.
type SymbolRef struct {
	URI        string
	ID         ID
	Generation uint64
}

// IsZero reports whether the ref is unset.
func (r SymbolRef) IsZero() bool {
	return r.URI == ""
}

func (r SymbolRef) String() string {
	return fmt.Sprintf("%s#%d@%d", r.URI, r.ID, r.Generation)
}

// Problem is a semantic diagnostic found while building a table.
type Problem struct {
	Range   ast.Range
	Code    string
	Message string
}

// Diagnostic codes.
const (
	CodeDuplicate  = "duplicate-declaration"
	CodeUnresolved = "unresolved-reference"
)

// accepts maps a reference context to the kinds it may bind to.
func accepts(ctx ast.RefContext) KindMask {
	switch ctx {
	case ast.RefSchemaInherits:
		return MaskOf(KindSchema)
	case ast.RefDocumentInherits, ast.RefDocumentReference:
		return MaskOf(KindDocument)
	case ast.RefStructInherits:
		return MaskOf(KindStruct)
	case ast.RefAnnotationInherits, ast.RefAnnotationReference:
		return MaskOf(KindAnnotation)
	case ast.RefProfileInherits:
		return MaskOf(KindRankProfile)
	case ast.RefSummaryInherits:
		return MaskOf(KindDocumentSummary)
	case ast.RefTypeName:
		return MaskOf(KindStruct, KindAnnotation)
	case ast.RefFieldName:
		return MaskOf(KindField)
	case ast.RefExprIdent:
		return MaskOf(KindParameter, KindFunction, KindConstant, KindField)
	case ast.RefExprFunction:
		return MaskOf(KindFunction)
	case ast.RefExprAttribute:
		return MaskOf(KindField)
	case ast.RefExprQuery:
		return MaskOf(KindInput)
	case ast.RefExprConstant:
		return MaskOf(KindConstant)
	}
	return 0
}

// Inheritable reports whether an inherits clause on a declaration of this
// kind extends its scope into the parent construct.
func (k Kind) Inheritable() bool {
	switch k {
	case KindRankProfile, KindStruct, KindAnnotation, KindDocumentSummary:
		return true
	}
	return false
}

// transparent lists declaration kinds whose members are visible from the
// enclosing scope: a document's fields belong to the schema's namespace.
func transparent(k Kind) bool {
	return k == KindSchema || k == KindDocument
}
