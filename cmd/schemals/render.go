package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lexcodex/schemals/framework/ast"
	"github.com/lexcodex/schemals/framework/document"
	"github.com/lexcodex/schemals/framework/workspace"
)

var (
	colorPrimary   = lipgloss.Color("39")
	colorSecondary = lipgloss.Color("86")
	colorSuccess   = lipgloss.Color("42")
	colorWarning   = lipgloss.Color("220")
	colorError     = lipgloss.Color("196")
	colorDim       = lipgloss.Color("241")

	filePathStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorSecondary)

	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorPrimary)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	resolvedStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	summaryBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)
)

// reportOptions selects the sections printed per document.
type reportOptions struct {
	Root       string
	Symbols    bool
	References bool
}

// reportTotals counts what a report printed.
type reportTotals struct {
	Documents  int
	Symbols    int
	References int
	Unresolved int
	Errors     int
	Warnings   int
}

// renderReport writes every committed document of sched and returns the
// totals across them.
func renderReport(w io.Writer, sched *document.Scheduler, opts reportOptions) reportTotals {
	var totals reportTotals
	sched.View(func(v document.View) {
		for _, uri := range v.Index().Documents() {
			doc, ok := v.Document(uri)
			if !ok {
				continue
			}
			renderDocument(w, v, doc, opts, &totals)
		}
	})
	fmt.Fprintln(w, summaryBoxStyle.Render(fmt.Sprintf("%d documents  %d symbols  %d references (%d unresolved)  %s  %s",
		totals.Documents, totals.Symbols, totals.References, totals.Unresolved,
		plural(totals.Errors, "error"), plural(totals.Warnings, "warning"))))
	return totals
}

func renderDocument(w io.Writer, v document.View, doc *document.Document, opts reportOptions, totals *reportTotals) {
	decls := doc.Table.Declarations()
	refs := doc.Table.References()
	totals.Documents++
	totals.Symbols += len(decls)
	totals.References += len(refs)

	fmt.Fprintf(w, "%s %s\n", filePathStyle.Render(displayPath(doc.URI, opts.Root)),
		dimStyle.Render(fmt.Sprintf("(%d symbols, %d references)", len(decls), len(refs))))

	if opts.Symbols && len(decls) > 0 {
		fmt.Fprintln(w, "  "+sectionHeaderStyle.Render("Symbols"))
		for _, sym := range decls {
			line := fmt.Sprintf("    %-16s %-24s %s", sym.Kind, sym.Name, position(sym.Range.Start))
			if sym.Detail != "" && sym.Detail != sym.Kind.String()+" "+sym.Name {
				line += "  " + dimStyle.Render(sym.Detail)
			}
			fmt.Fprintln(w, line)
		}
	}

	unresolved := 0
	var refLines []string
	for _, ref := range refs {
		target, ok := v.Index().Target(doc.URI, ref.ID)
		if !ok {
			unresolved++
			refLines = append(refLines, fmt.Sprintf("    %-24s %-8s %s", ref.Name, position(ref.Range.Start), warningStyle.Render("unresolved")))
			continue
		}
		refLines = append(refLines, fmt.Sprintf("    %-24s %-8s %s", ref.Name, position(ref.Range.Start),
			resolvedStyle.Render("-> "+displayPath(target.URI, opts.Root)+":"+position(target.Range.Start))))
	}
	totals.Unresolved += unresolved
	if opts.References && len(refLines) > 0 {
		fmt.Fprintln(w, "  "+sectionHeaderStyle.Render("References"))
		fmt.Fprintln(w, strings.Join(refLines, "\n"))
	}

	if len(doc.Diagnostics) > 0 {
		fmt.Fprintln(w, "  "+sectionHeaderStyle.Render("Diagnostics"))
		for _, d := range doc.Diagnostics {
			label := d.Severity.String()
			switch d.Severity {
			case document.SeverityError:
				totals.Errors++
				label = errorStyle.Render(fmt.Sprintf("%-7s", label))
			case document.SeverityWarning:
				totals.Warnings++
				label = warningStyle.Render(fmt.Sprintf("%-7s", label))
			default:
				label = fmt.Sprintf("%-7s", label)
			}
			fmt.Fprintf(w, "    %s %-8s %s %s\n", label, position(d.Range.Start), d.Message, dimStyle.Render("["+d.Code+"]"))
		}
	}
	fmt.Fprintln(w)
}

// position formats p one-based, the way editors show it.
func position(p ast.Position) string {
	return fmt.Sprintf("%d:%d", p.Line+1, p.Character+1)
}

func displayPath(uri, root string) string {
	path, ok := workspace.URIToPath(uri)
	if !ok {
		return uri
	}
	if root != "" {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return path
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
