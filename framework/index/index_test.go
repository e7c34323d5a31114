package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/schemals/framework/ast"
	"github.com/lexcodex/schemals/framework/symbols"
)

func buildTable(t *testing.T, idx *Index, uri, src string) *symbols.Table {
	t.Helper()
	result := ast.NewSchemaParser().Parse(src)
	require.Empty(t, result.Errors)
	defs := symbols.IdentifyDefinitions(uri, idx.NextGeneration(), result.Root)
	return symbols.IdentifyReferences(defs, result.Root)
}

func TestLookupByNamePrefersCallerDocument(t *testing.T) {
	idx := New()
	idx.ReplaceDocumentSymbols(buildTable(t, idx, "file:///a.sd", "schema a { document a { field count type int {} } }"))
	idx.ReplaceDocumentSymbols(buildTable(t, idx, "file:///b.sd", "schema b { document b { field count type long {} } }"))

	fromB := idx.LookupByName("count", "file:///b.sd", 0)
	require.Len(t, fromB, 2)
	assert.Equal(t, "file:///b.sd", fromB[0].Symbol.URI)
	assert.Equal(t, "file:///a.sd", fromB[1].Symbol.URI)

	fromA := idx.LookupByName("count", "file:///a.sd", 0)
	require.Len(t, fromA, 2)
	assert.Equal(t, "file:///a.sd", fromA[0].Symbol.URI)

	elsewhere := idx.LookupByName("count", "file:///c.sd", symbols.MaskOf(symbols.KindField))
	require.Len(t, elsewhere, 2)
	assert.Equal(t, "file:///a.sd", elsewhere[0].Symbol.URI, "other documents order by URI")

	assert.Empty(t, idx.LookupByName("count", "", symbols.MaskOf(symbols.KindStruct)))
}

func TestReplaceDocumentSymbolsPurgesPriorEntries(t *testing.T) {
	idx := New()
	uri := "file:///a.sd"
	idx.ReplaceDocumentSymbols(buildTable(t, idx, uri, "schema a { document a { field x type int {} } }"))
	require.Len(t, idx.LookupByName("x", uri, 0), 1)

	idx.ReplaceDocumentSymbols(buildTable(t, idx, uri, "schema a { document a { field y type int {} } }"))
	assert.Empty(t, idx.LookupByName("x", uri, 0))
	assert.Len(t, idx.LookupByName("y", uri, 0), 1)

	// Replacing twice with identical text leaves one entry per declaration.
	idx.ReplaceDocumentSymbols(buildTable(t, idx, uri, "schema a { document a { field y type int {} } }"))
	assert.Len(t, idx.LookupByName("y", uri, 0), 1)
	assert.Equal(t, 3, idx.Stats().Declarations)
}

func TestSymbolRefsGoStaleOnReplace(t *testing.T) {
	idx := New()
	uri := "file:///a.sd"
	first := buildTable(t, idx, uri, "schema a { document a { field x type int {} } }")
	idx.ReplaceDocumentSymbols(first)
	ref := idx.LookupByName("x", uri, 0)[0].Ref

	_, ok := idx.Symbol(ref)
	require.True(t, ok)

	idx.ReplaceDocumentSymbols(buildTable(t, idx, uri, "schema a { document a { field x type int {} } }"))
	_, ok = idx.Symbol(ref)
	assert.False(t, ok, "a ref into an older generation is unresolved")

	idx.RemoveDocument(uri)
	assert.Empty(t, idx.LookupByName("x", "", 0))
	assert.Empty(t, idx.Documents())
}

func TestCommitBindsReferencesAndEdges(t *testing.T) {
	idx := New()
	a := "file:///a.sd"
	b := "file:///b.sd"
	tableA := buildTable(t, idx, a, "schema a { document a { field x type int {} } }")
	idx.Commit(Commit{Table: tableA})
	target := idx.LookupByName("x", b, 0)[0]

	tableB := buildTable(t, idx, b, "schema b inherits a { rank-profile p { first-phase { expression: x } } }")
	refs := tableB.References()
	require.Len(t, refs, 2)
	bound := tableB.Bind([]symbols.Binding{{Ref: refs[1].ID, Target: target.Ref}})

	res := idx.Commit(Commit{Table: bound, Edges: []Edge{{To: a, Kind: EdgeInherits}}})
	assert.Empty(t, res.Woken)
	assert.Equal(t, []string{b}, idx.DependentsOf(a))
	assert.Equal(t, []string{a}, idx.InheritedDocuments(b))

	got, ok := idx.Target(b, refs[1].ID)
	require.True(t, ok)
	assert.Equal(t, "x", got.Name)
	assert.Equal(t, a, got.URI)

	users := idx.ReferencesTo(target.Ref)
	require.Len(t, users, 1)
	assert.Equal(t, b, users[0].URI)

	idx.RemoveDocument(a)
	_, ok = idx.Target(b, refs[1].ID)
	assert.False(t, ok, "closing the target document unresolves the reference")
	table, ok := idx.Table(b)
	require.True(t, ok)
	assert.Len(t, table.References(), 2, "the reference itself persists")
	assert.Empty(t, idx.ReferencesTo(target.Ref))
}

func TestCommitWakesWaitingDocuments(t *testing.T) {
	idx := New()
	b := "file:///b.sd"
	idx.Commit(Commit{
		Table:   buildTable(t, idx, b, "schema b inherits a { }"),
		Waiting: []string{"a", "a"},
	})
	assert.Equal(t, []string{b}, idx.WaitingOn("a"))

	res := idx.Commit(Commit{Table: buildTable(t, idx, "file:///a.sd", "schema a { }")})
	assert.Equal(t, []string{b}, res.Woken)

	idx.Commit(Commit{Table: buildTable(t, idx, b, "schema b inherits a { }")})
	assert.Empty(t, idx.WaitingOn("a"))
}

func TestCommitReportsCycles(t *testing.T) {
	idx := New()
	a, b := "file:///a.sd", "file:///b.sd"
	res := idx.Commit(Commit{Table: buildTable(t, idx, a, "schema a inherits b { }"), Edges: []Edge{{To: b, Kind: EdgeInherits}}})
	assert.False(t, res.CycleChanged)

	res = idx.Commit(Commit{Table: buildTable(t, idx, b, "schema b inherits a { }"), Edges: []Edge{{To: a, Kind: EdgeInherits}}})
	assert.True(t, res.CycleChanged)
	assert.Equal(t, []string{a, b}, idx.CycleOf(a))
	assert.True(t, idx.EdgeCyclic(a, b))
	assert.Equal(t, 1, idx.Stats().Cycles)

	idx.UpdateDependencyEdge(b, a, EdgeInherits, false)
	assert.Empty(t, idx.Cycles())
}

func TestPinnedEdgesSurviveCommits(t *testing.T) {
	idx := New()
	a, b := "file:///a.sd", "file:///b.sd"
	idx.Commit(Commit{Table: buildTable(t, idx, a, "schema a { }")})
	idx.Commit(Commit{Table: buildTable(t, idx, b, "schema b { }")})

	idx.UpdateDependencyEdge(b, a, EdgeReferences, true)
	assert.Equal(t, []string{b}, idx.DependentsOf(a))

	idx.Commit(Commit{Table: buildTable(t, idx, b, "schema b { }")})
	assert.Equal(t, []Edge{{To: a, Kind: EdgeReferences}}, idx.Dependencies(b), "re-analysis keeps the added edge")

	idx.Commit(Commit{Table: buildTable(t, idx, b, "schema b inherits a { }"), Edges: []Edge{{To: a, Kind: EdgeInherits}}})
	assert.Equal(t, []Edge{{To: a, Kind: EdgeInherits}, {To: a, Kind: EdgeReferences}}, idx.Dependencies(b))

	idx.UpdateDependencyEdge(b, a, EdgeReferences, false)
	idx.Commit(Commit{Table: buildTable(t, idx, b, "schema b { }")})
	assert.Empty(t, idx.Dependencies(b))

	idx.UpdateDependencyEdge(b, a, EdgeReferences, true)
	idx.RemoveDocument(b)
	idx.Commit(Commit{Table: buildTable(t, idx, b, "schema b { }")})
	assert.Empty(t, idx.Dependencies(b), "removal drops pinned edges")
}

func TestOverlayShadowsCommittedTable(t *testing.T) {
	idx := New()
	uri := "file:///a.sd"
	idx.Commit(Commit{Table: buildTable(t, idx, uri, "schema a { document a { field x type int {} } }")})

	pending := buildTable(t, idx, uri, "schema a { document a { field y type int {} } }")
	view := idx.Overlay(pending)

	assert.Empty(t, view.LookupByName("x", uri, 0))
	matches := view.LookupByName("y", uri, 0)
	require.Len(t, matches, 1)
	assert.Equal(t, pending.Generation(), matches[0].Ref.Generation)

	table, ok := view.Table(uri)
	require.True(t, ok)
	assert.Same(t, pending, table)

	// The committed index is untouched until Commit.
	assert.Len(t, idx.LookupByName("x", uri, 0), 1)
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	idx := New()
	idx.ReplaceDocumentSymbols(buildTable(t, idx, "file:///a.sd", "schema a { document a { field Title type string {} field subtitle type string {} field body type string {} } }"))

	matches := idx.Search("title", 0)
	require.Len(t, matches, 2)
	assert.Equal(t, "Title", matches[0].Symbol.Name)
	assert.Equal(t, "subtitle", matches[1].Symbol.Name)
	assert.Len(t, idx.Search("", 1), 1)
}
