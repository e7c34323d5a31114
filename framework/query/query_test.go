package query

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/schemals/framework/ast"
	"github.com/lexcodex/schemals/framework/document"
)

const (
	uriA = "file:///ws/a.sd"
	uriB = "file:///ws/b.sd"
)

const srcA = `schema a {
    document a {
        field x type int {}
    }
}
`

const srcB = `schema b inherits a {
    document b inherits a {
        field title type string {}
    }
    rank-profile p {
        function boost(w) { expression: w * attribute(x) }
        first-phase { expression: x + boost(2) }
    }
}
`

func pos(line, char int) ast.Position {
	return ast.Position{Line: line, Character: char}
}

func setup(t *testing.T) *document.Scheduler {
	t.Helper()
	ctx := context.Background()
	s := document.NewScheduler(nil)
	require.NoError(t, s.OpenDocument(ctx, uriA, ast.LanguageSchema, 1, srcA))
	require.NoError(t, s.OpenDocument(ctx, uriB, ast.LanguageSchema, 1, srcB))
	return s
}

func definition(s *document.Scheduler, uri string, p ast.Position) (out []Location) {
	s.View(func(v document.View) { out = Definition(v, uri, p) })
	return out
}

func references(s *document.Scheduler, uri string, p ast.Position, decl bool) (out []Location) {
	s.View(func(v document.View) { out = References(v, uri, p, decl) })
	return out
}

func hover(s *document.Scheduler, uri string, p ast.Position) (out HoverInfo, ok bool) {
	s.View(func(v document.View) { out, ok = Hover(v, uri, p) })
	return out, ok
}

var xDecl = Location{URI: uriA, Range: ast.Range{Start: pos(2, 14), End: pos(2, 15)}}

func TestDefinitionOfInheritedField(t *testing.T) {
	s := setup(t)
	// x in "first-phase { expression: x + boost(2) }"
	assert.Equal(t, []Location{xDecl}, definition(s, uriB, pos(6, 34)))
	assert.Empty(t, definition(s, uriB, pos(6, 35)), "the character after an identifier is outside it")
}

func TestNoSymbolOnPunctuationNextToIdentifier(t *testing.T) {
	s := setup(t)
	// "w * attribute(x)" in the function body.
	w := []Location{{URI: uriB, Range: ast.Range{Start: pos(5, 23), End: pos(5, 24)}}}
	assert.Equal(t, w, definition(s, uriB, pos(5, 40)))
	assert.Empty(t, definition(s, uriB, pos(5, 42)), "operator")
	// "boost(2)": the parenthesis after the call name.
	assert.NotEmpty(t, definition(s, uriB, pos(6, 42)))
	assert.Empty(t, definition(s, uriB, pos(6, 43)))
	_, ok := hover(s, uriB, pos(6, 43))
	assert.False(t, ok)
}

func TestDefinitionForEveryResolvedReference(t *testing.T) {
	s := setup(t)
	doc, ok := s.GetDocument(uriB)
	require.True(t, ok)
	require.NotEmpty(t, doc.Table.References())
	for _, ref := range doc.Table.References() {
		target, ok := s.Index().Target(uriB, ref.ID)
		require.True(t, ok, "reference %s", ref)
		assert.Equal(t, []Location{{URI: target.URI, Range: target.Range}}, definition(s, uriB, ref.Range.Start), "reference %s", ref)
	}
}

func TestDefinitionOnDeclarationPointsAtItself(t *testing.T) {
	s := setup(t)
	assert.Equal(t, []Location{xDecl}, definition(s, uriA, pos(2, 14)))
}

func TestNoSymbolAtWhitespaceOrKeyword(t *testing.T) {
	s := setup(t)
	assert.Empty(t, definition(s, uriB, pos(6, 2)))
	assert.Empty(t, definition(s, uriB, pos(0, 2)), "keyword")
	assert.Empty(t, definition(s, "file:///ws/none.sd", pos(0, 0)))
	_, ok := hover(s, uriB, pos(5, 0))
	assert.False(t, ok)
}

func TestDefinitionAfterRename(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	require.NoError(t, s.ChangeDocument(ctx, uriA, 2, strings.Replace(srcA, "field x", "field y", 1)))
	assert.Empty(t, definition(s, uriB, pos(6, 34)))

	require.NoError(t, s.ChangeDocument(ctx, uriA, 3, srcA))
	assert.Equal(t, []Location{xDecl}, definition(s, uriB, pos(6, 34)))
}

func TestReferences(t *testing.T) {
	s := setup(t)
	// attribute(x) in the function and the bare x in first-phase.
	want := []Location{
		{URI: uriB, Range: ast.Range{Start: pos(5, 54), End: pos(5, 55)}},
		{URI: uriB, Range: ast.Range{Start: pos(6, 34), End: pos(6, 35)}},
	}
	assert.Equal(t, want, references(s, uriA, pos(2, 14), false))
	assert.Equal(t, want, references(s, uriB, pos(6, 34), false), "from a use of x")
	assert.Equal(t, append([]Location{xDecl}, want...), references(s, uriA, pos(2, 14), true))

	require.NoError(t, s.CloseDocument(context.Background(), uriB))
	assert.Empty(t, references(s, uriA, pos(2, 14), false))
}

func TestHover(t *testing.T) {
	s := setup(t)

	h, ok := hover(s, uriB, pos(6, 34))
	require.True(t, ok)
	assert.True(t, h.Resolved)
	assert.Equal(t, ast.Range{Start: pos(6, 34), End: pos(6, 35)}, h.Range)
	assert.Equal(t, "```vespaSchema\nfield x type int\n```\n\nDeclared in `a.sd` at line 3", h.Markdown())

	h, ok = hover(s, uriB, pos(6, 40))
	require.True(t, ok)
	assert.Equal(t, "```vespaSchema\nfunction boost(w)\n```", h.Markdown())

	require.NoError(t, s.CloseDocument(context.Background(), uriA))
	h, ok = hover(s, uriB, pos(6, 34))
	require.True(t, ok)
	assert.False(t, h.Resolved)
	assert.Contains(t, h.Markdown(), "unresolved")
}

func TestOutline(t *testing.T) {
	s := setup(t)
	doc, _ := s.GetDocument(uriB)
	roots := Outline(doc)
	require.Len(t, roots, 1)
	schema := roots[0]
	assert.Equal(t, "b", schema.Symbol.Name)
	require.Len(t, schema.Children, 2)
	assert.Equal(t, "title", schema.Children[0].Children[0].Symbol.Name)
	profile := schema.Children[1]
	assert.Equal(t, "p", profile.Symbol.Name)
	require.Len(t, profile.Children, 1)
	assert.Equal(t, "boost", profile.Children[0].Symbol.Name)
	assert.Equal(t, "w", profile.Children[0].Children[0].Symbol.Name)
}

func TestWorkspaceSymbols(t *testing.T) {
	s := setup(t)
	var names []string
	for _, sym := range WorkspaceSymbols(s.Index(), "T", 0) {
		names = append(names, sym.Name)
	}
	assert.Equal(t, []string{"boost", "title"}, names)
	assert.Len(t, WorkspaceSymbols(s.Index(), "", 1), 1)
}
