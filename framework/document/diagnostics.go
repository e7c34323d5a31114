package document

import (
	"fmt"
	"path"
	"strings"

	"github.com/lexcodex/schemals/framework/ast"
	"github.com/lexcodex/schemals/framework/resolve"
	"github.com/lexcodex/schemals/framework/symbols"
)

// Severity follows the editor protocol numbering.
type Severity int

const (
	SeverityError       Severity = 1
	SeverityWarning     Severity = 2
	SeverityInformation Severity = 3
	SeverityHint        Severity = 4
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "info"
	default:
		return "hint"
	}
}

// Diagnostic codes beyond those the symbol table reports.
const (
	CodeSyntax = "syntax-error"
	CodeCycle  = "dependency-cycle"
)

// Source is the diagnostic source shown by editors.
const Source = "schemals"

// Diagnostic is one problem attached to a document.
type Diagnostic struct {
	Range    ast.Range
	Severity Severity
	Code     string
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s [%s] %s", d.Range.Start, d.Severity, d.Code, d.Message)
}

// buildDiagnostics collects syntax errors, duplicate declarations,
// unresolved references and dependency cycles of one analysis.
func buildDiagnostics(syntax []ast.SyntaxError, table *symbols.Table, res resolve.Result, cycle []string) []Diagnostic {
	var out []Diagnostic
	for _, e := range syntax {
		out = append(out, Diagnostic{Range: e.Range, Severity: SeverityError, Code: CodeSyntax, Message: e.Message})
	}
	for _, p := range table.Problems() {
		out = append(out, Diagnostic{Range: p.Range, Severity: SeverityError, Code: p.Code, Message: p.Message})
	}
	for _, ref := range res.Cyclic {
		members := cycle
		if len(members) == 0 {
			members = []string{ref.URI}
		}
		out = append(out, Diagnostic{
			Range:    ref.Range,
			Severity: SeverityError,
			Code:     CodeCycle,
			Message:  fmt.Sprintf("inheritance cycle through %s: %s", ref.Name, describeCycle(members)),
		})
	}
	for _, ref := range res.Unresolved {
		severity := SeverityWarning
		if structural(ref) {
			severity = SeverityError
		}
		out = append(out, Diagnostic{
			Range:    ref.Range,
			Severity: severity,
			Code:     symbols.CodeUnresolved,
			Message:  fmt.Sprintf("cannot resolve %s '%s'", ref.Accepts, ref.Name),
		})
	}
	return out
}

// structural references name schema constructs; expression identifiers may
// also be rank features the expression scanner does not know, so those are
// only warnings.
func structural(ref symbols.Symbol) bool {
	switch ref.Context {
	case ast.RefExprIdent, ast.RefExprFunction:
		return false
	}
	return true
}

func describeCycle(uris []string) string {
	names := make([]string, 0, len(uris))
	for _, uri := range uris {
		names = append(names, path.Base(uri))
	}
	return strings.Join(names, " -> ")
}
