package document

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/schemals/framework/ast"
	"github.com/lexcodex/schemals/framework/symbols"
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
    document b inherits a {}
    rank-profile p {
        first-phase { expression: x + 1 }
    }
}
`

// xUse is the position of x in the expression of srcB.
var xUse = ast.Position{Line: 3, Character: 34}

func openDoc(t *testing.T, s *Scheduler, uri, text string) *Document {
	t.Helper()
	require.NoError(t, s.OpenDocument(context.Background(), uri, ast.LanguageSchema, 1, text))
	doc, ok := s.GetDocument(uri)
	require.True(t, ok)
	return doc
}

func slice(text string, r ast.Range) string {
	lines := strings.Split(text, "\n")
	if r.Start.Line != r.End.Line {
		return ""
	}
	return lines[r.Start.Line][r.Start.Character:r.End.Character]
}

func targetAt(t *testing.T, s *Scheduler, uri string, pos ast.Position) (symbols.Symbol, bool) {
	t.Helper()
	doc, ok := s.GetDocument(uri)
	require.True(t, ok)
	ref, ok := doc.SymbolAt(pos)
	require.True(t, ok, "no symbol at %s", pos)
	require.Equal(t, symbols.RoleReference, ref.Role)
	return s.Index().Target(uri, ref.ID)
}

func codes(diags []Diagnostic) []string {
	var out []string
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}

type recorder struct {
	mu       sync.Mutex
	analyzed []string
	removed  []string
}

func (r *recorder) OnAnalyzed(doc *Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyzed = append(r.analyzed, doc.URI)
}

func (r *recorder) OnRemoved(uri string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, uri)
}

func TestOpenDeclaresEachConstructOnce(t *testing.T) {
	const src = `schema music {
    document music {
        field title type string {}
        field year type int {}
        struct person { field name type string {} }
    }
    fieldset all { fields: title }
    rank-profile base {
        inputs { query(q) double }
        function score(w) { expression: w * attribute(year) }
    }
    document-summary short { summary title {} }
}
`
	s := NewScheduler(nil)
	doc := openDoc(t, s, "file:///ws/music.sd", src)

	var names []string
	for _, decl := range doc.Table.Declarations() {
		names = append(names, decl.Kind.String()+" "+decl.Name)
		assert.Equal(t, decl.Name, slice(src, decl.Range), "range of %s", decl.Name)
		assert.True(t, decl.Span.Encloses(decl.Range), "span of %s", decl.Name)
	}
	assert.Equal(t, []string{
		"schema music",
		"document music",
		"field title",
		"field year",
		"struct person",
		"field name",
		"fieldset all",
		"rank-profile base",
		"input q",
		"function score",
		"parameter w",
		"document-summary short",
		"summary title",
	}, names)
	assert.Empty(t, doc.Diagnostics)
	assert.True(t, doc.Open)
	assert.Equal(t, int32(1), doc.Version)
}

func TestReopenReplacesDocument(t *testing.T) {
	s := NewScheduler(nil)
	openDoc(t, s, uriA, srcA)
	first, _ := s.GetDocument(uriA)

	require.NoError(t, s.OpenDocument(context.Background(), uriA, ast.LanguageSchema, 7, strings.Replace(srcA, "x", "z", 1)))
	doc, ok := s.GetDocument(uriA)
	require.True(t, ok)
	assert.Equal(t, int32(7), doc.Version)
	assert.Greater(t, doc.Generation(), first.Generation())
	assert.Empty(t, s.Index().LookupByName("x", uriA, symbols.KindField.Mask()))
	assert.Len(t, s.Index().LookupByName("z", uriA, symbols.KindField.Mask()), 1)
}

func TestChangeUnknownDocument(t *testing.T) {
	s := NewScheduler(nil)
	err := s.ChangeDocument(context.Background(), uriA, 2, srcA)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownDocument))

	var unknown *UnknownDocumentError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, uriA, unknown.URI)

	assert.ErrorIs(t, s.CloseDocument(context.Background(), uriA), ErrUnknownDocument)

	s.TrackDocument(context.Background(), uriA, srcA)
	assert.ErrorIs(t, s.ChangeDocument(context.Background(), uriA, 2, srcA), ErrUnknownDocument,
		"tracked documents are not open")
}

// state captures the index contents of a document without generations.
type state struct {
	Decls       []symbols.Symbol
	Refs        []symbols.Symbol
	Targets     map[symbols.ID]string
	Diagnostics []Diagnostic
}

func snapshot(t *testing.T, s *Scheduler, uri string) state {
	t.Helper()
	doc, ok := s.GetDocument(uri)
	require.True(t, ok)
	st := state{
		Decls:       doc.Table.Declarations(),
		Refs:        doc.Table.References(),
		Targets:     make(map[symbols.ID]string),
		Diagnostics: doc.Diagnostics,
	}
	for _, ref := range st.Refs {
		if target, ok := s.Index().Target(uri, ref.ID); ok {
			st.Targets[ref.ID] = target.URI + "#" + target.Name
		}
	}
	return st
}

func TestChangeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	once := NewScheduler(nil)
	openDoc(t, once, uriA, srcA)
	openDoc(t, once, uriB, srcB)
	require.NoError(t, once.ChangeDocument(ctx, uriB, 2, srcB))

	twice := NewScheduler(nil)
	openDoc(t, twice, uriA, srcA)
	openDoc(t, twice, uriB, srcB)
	require.NoError(t, twice.ChangeDocument(ctx, uriB, 2, srcB))
	require.NoError(t, twice.ChangeDocument(ctx, uriB, 3, srcB))

	assert.Equal(t, snapshot(t, once, uriB), snapshot(t, twice, uriB))
	assert.Equal(t, snapshot(t, once, uriA), snapshot(t, twice, uriA))
	assert.Equal(t, once.Index().Stats(), twice.Index().Stats())
}

func TestEveryResolvedReferenceTargetsLiveDeclaration(t *testing.T) {
	s := NewScheduler(nil)
	openDoc(t, s, uriA, srcA)
	doc := openDoc(t, s, uriB, srcB)

	for _, ref := range doc.Table.References() {
		target, ok := s.Index().Target(uriB, ref.ID)
		require.True(t, ok, "reference %s", ref)
		assert.True(t, target.IsDeclaration())
		table, ok := s.Index().Table(target.URI)
		require.True(t, ok)
		live, ok := table.Symbol(target.ID)
		require.True(t, ok)
		assert.Equal(t, target, live)
	}
}

func TestRenameCascadesToDependents(t *testing.T) {
	ctx := context.Background()
	s := NewScheduler(nil)
	openDoc(t, s, uriA, srcA)
	openDoc(t, s, uriB, srcB)

	decl, ok := targetAt(t, s, uriB, xUse)
	require.True(t, ok)
	assert.Equal(t, uriA, decl.URI)
	assert.Equal(t, ast.Range{Start: ast.Position{Line: 2, Character: 14}, End: ast.Position{Line: 2, Character: 15}}, decl.Range)

	require.NoError(t, s.ChangeDocument(ctx, uriA, 2, strings.Replace(srcA, "field x", "field y", 1)))
	_, ok = targetAt(t, s, uriB, xUse)
	assert.False(t, ok, "x no longer exists in a.sd")
	b, _ := s.GetDocument(uriB)
	assert.Contains(t, codes(b.Diagnostics), symbols.CodeUnresolved)
	assert.Equal(t, int32(1), b.Version, "cascade keeps the dependent's version")

	require.NoError(t, s.ChangeDocument(ctx, uriB, 2, strings.Replace(srcB, "x + 1", "y + 1", 1)))
	decl, ok = targetAt(t, s, uriB, xUse)
	require.True(t, ok)
	assert.Equal(t, "y", decl.Name)
	b, _ = s.GetDocument(uriB)
	assert.Empty(t, b.Diagnostics)
}

func TestCloseUnresolvesButKeepsReferences(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s := NewScheduler(nil, WithListener(rec))
	openDoc(t, s, uriA, srcA)
	before := openDoc(t, s, uriB, srcB)

	require.NoError(t, s.CloseDocument(ctx, uriA))
	_, ok := s.GetDocument(uriA)
	assert.False(t, ok)
	_, ok = s.Index().Table(uriA)
	assert.False(t, ok)

	after, ok := s.GetDocument(uriB)
	require.True(t, ok)
	assert.Equal(t, len(before.Table.References()), len(after.Table.References()))
	_, ok = targetAt(t, s, uriB, xUse)
	assert.False(t, ok)
	assert.Empty(t, after.Table.Resolutions())
	assert.Equal(t, []string{uriB}, s.Index().WaitingOn("a"))

	assert.Equal(t, []string{uriA}, rec.removed)
	assert.Equal(t, []string{uriA, uriB, uriB}, rec.analyzed)
}

func TestOutOfOrderOpenResolvesWhenParentArrives(t *testing.T) {
	s := NewScheduler(nil)
	b := openDoc(t, s, uriB, srcB)
	assert.Contains(t, codes(b.Diagnostics), symbols.CodeUnresolved)

	openDoc(t, s, uriA, srcA)
	decl, ok := targetAt(t, s, uriB, xUse)
	require.True(t, ok)
	assert.Equal(t, uriA, decl.URI)
	b, _ = s.GetDocument(uriB)
	assert.Empty(t, b.Diagnostics)
}

func TestDependencyCycleTerminates(t *testing.T) {
	const cycA = "schema a inherits b {\n    rank-profile p { first-phase { expression: y } }\n}\n"
	const cycB = "schema b inherits a {\n    document b { field y type int {} }\n}\n"
	s := NewScheduler(nil)
	openDoc(t, s, uriA, cycA)
	openDoc(t, s, uriB, cycB)

	a, _ := s.GetDocument(uriA)
	b, _ := s.GetDocument(uriB)
	assert.Contains(t, codes(a.Diagnostics), CodeCycle)
	assert.Contains(t, codes(b.Diagnostics), CodeCycle)
	assert.Equal(t, []string{uriA, uriB}, s.Index().CycleOf(uriA))

	_, ok := targetAt(t, s, uriA, ast.Position{Line: 1, Character: 47})
	assert.False(t, ok, "resolution does not follow a cyclic edge")

	// Editing a cycle member re-analyses the other member once.
	require.NoError(t, s.ChangeDocument(context.Background(), uriA, 2, cycA))
	assert.Equal(t, []string{uriA, uriB}, s.Index().CycleOf(uriB))

	// Breaking the cycle lets the reference resolve.
	require.NoError(t, s.ChangeDocument(context.Background(), uriB, 2, "schema b {\n    document b { field y type int {} }\n}\n"))
	decl, ok := targetAt(t, s, uriA, ast.Position{Line: 1, Character: 47})
	require.True(t, ok)
	assert.Equal(t, uriB, decl.URI)
	assert.Empty(t, s.Index().Cycles())
}

func TestCascadeRunsIntermediatesFirst(t *testing.T) {
	const (
		uriBase = "file:///ws/a.sd"
		uriTop  = "file:///ws/d.sd"
		uriMid  = "file:///ws/x.sd"
	)
	const srcBase = `schema a {
    document a {}
    rank-profile base {
        function f() { expression: 1 }
    }
}
`
	const srcMid = `schema x inherits a {
    document x inherits a {}
    rank-profile mid inherits base {}
}
`
	const srcTop = `schema d inherits x {
    document d inherits x {
        field owner type reference<a> {}
    }
    rank-profile top inherits mid {
        first-phase { expression: f }
    }
}
`
	fUse := ast.Position{Line: 5, Character: 34}
	ctx := context.Background()
	rec := &recorder{}
	s := NewScheduler(nil, WithListener(rec))
	openDoc(t, s, uriBase, srcBase)
	openDoc(t, s, uriMid, srcMid)
	openDoc(t, s, uriTop, srcTop)

	decl, ok := targetAt(t, s, uriTop, fUse)
	require.True(t, ok)
	assert.Equal(t, uriBase, decl.URI)

	// d.sd sits as near to a.sd as x.sd does and sorts first, but reads
	// a.sd's profile through x.sd's.
	assert.ElementsMatch(t, []string{uriTop, uriMid}, s.Index().DependentsOf(uriBase))
	assert.Equal(t, []string{uriMid, uriTop}, s.Index().AnalysisOrder([]string{uriTop, uriMid}))

	rec.analyzed = nil
	require.NoError(t, s.ChangeDocument(ctx, uriBase, 2, srcBase))
	assert.Equal(t, []string{uriBase, uriMid, uriTop}, rec.analyzed)

	decl, ok = targetAt(t, s, uriTop, fUse)
	require.True(t, ok, "f still resolves after a.sd is re-sent unchanged")
	assert.Equal(t, uriBase, decl.URI)
	top, _ := s.GetDocument(uriTop)
	assert.NotContains(t, codes(top.Diagnostics), symbols.CodeUnresolved)
}

func TestStaleRunIsDiscarded(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s := NewScheduler(nil, WithListener(rec))
	openDoc(t, s, uriA, srcA)

	var once sync.Once
	done := make(chan error, 1)
	s.beforeCommit = func(uri string) {
		once.Do(func() {
			prev := s.stamp(uri)
			go func() { done <- s.ChangeDocument(ctx, uriA, 3, "schema a { document a { field v3 type int {} } }") }()
			for s.stamp(uri) == prev {
				// The newer request registers its stamp before queueing on
				// the pipeline.
			}
		})
	}
	require.NoError(t, s.ChangeDocument(ctx, uriA, 2, "schema a { document a { field v2 type int {} } }"))
	require.NoError(t, <-done)

	doc, ok := s.GetDocument(uriA)
	require.True(t, ok)
	assert.Equal(t, int32(3), doc.Version)
	assert.Empty(t, s.Index().LookupByName("v2", uriA, 0))
	assert.Len(t, s.Index().LookupByName("v3", uriA, 0), 1)
	assert.Equal(t, []string{uriA, uriA}, rec.analyzed, "version 2 never commits")
}

func TestTrackedDocuments(t *testing.T) {
	ctx := context.Background()
	s := NewScheduler(nil)
	s.TrackDocument(ctx, uriA, srcA)
	openDoc(t, s, uriB, srcB)

	a, ok := s.GetDocument(uriA)
	require.True(t, ok)
	assert.False(t, a.Open)
	_, ok = targetAt(t, s, uriB, xUse)
	assert.True(t, ok)

	// Opening takes over a tracked document; tracking leaves it alone.
	openDoc(t, s, uriA, srcA)
	s.TrackDocument(ctx, uriA, "schema a {}")
	s.UntrackDocument(ctx, uriA)
	a, ok = s.GetDocument(uriA)
	require.True(t, ok)
	assert.True(t, a.Open)
	assert.Equal(t, srcA, a.Text)

	s.TrackDocument(ctx, "file:///ws/c.sd", "schema c {}")
	s.UntrackDocument(ctx, "file:///ws/c.sd")
	_, ok = s.GetDocument("file:///ws/c.sd")
	assert.False(t, ok)
}

func TestDiagnostics(t *testing.T) {
	s := NewScheduler(nil)
	doc := openDoc(t, s, "file:///ws/d.sd", `schema d {
    document d {
        field t type int {}
        field t type long {}
        field p type missing {}
    }
    rank-profile r {
        first-phase { expression: unknownFeature }
    }
}
}
`)
	find := func(code, name string) Diagnostic {
		t.Helper()
		for _, d := range doc.Diagnostics {
			if d.Code == code && strings.Contains(d.Message, "'"+name+"'") {
				return d
			}
		}
		t.Fatalf("no %s diagnostic for %s in %v", code, name, doc.Diagnostics)
		return Diagnostic{}
	}

	dup := find(symbols.CodeDuplicate, "t")
	assert.Equal(t, SeverityError, dup.Severity)
	assert.Equal(t, 3, dup.Range.Start.Line)

	missing := find(symbols.CodeUnresolved, "missing")
	assert.Equal(t, SeverityError, missing.Severity)

	feature := find(symbols.CodeUnresolved, "unknownFeature")
	assert.Equal(t, SeverityWarning, feature.Severity, "expression identifiers may be rank features")

	require.Len(t, doc.SyntaxErrors, 1)
	assert.Contains(t, codes(doc.Diagnostics), CodeSyntax)
	assert.Equal(t, 3, doc.ErrorCount())
}

func TestViewIsConsistent(t *testing.T) {
	s := NewScheduler(nil)
	openDoc(t, s, uriA, srcA)
	s.View(func(v View) {
		doc, ok := v.Document(uriA)
		require.True(t, ok)
		table, ok := v.Index().Table(uriA)
		require.True(t, ok)
		assert.Same(t, doc.Table, table)
	})
	docs := s.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, uriA, docs[0].URI)
}
