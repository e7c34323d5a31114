package ast

import (
	"fmt"
	"sort"
)

// Parser converts document text into a syntax tree. Implementations must be
// deterministic pure functions of the text and must always return a tree,
// reporting problems as syntax errors rather than failing.
type Parser interface {
	Parse(content string) *ParseResult
	Language() string
}

// ParseResult captures the tree and the syntax errors met while building it.
type ParseResult struct {
	Root   *Node
	Errors []SyntaxError
}

// SyntaxError is a parser diagnostic; analysis continues on the partial tree.
type SyntaxError struct {
	Range   Range  `json:"range"`
	Message string `json:"message"`
}

func (e SyntaxError) Error() string {
	return fmt.Sprintf("%s: %s", e.Range.Start, e.Message)
}

// ParserRegistry keeps parser implementations keyed by language.
type ParserRegistry struct {
	parsers map[string]Parser
}

// NewParserRegistry constructs a registry with the schema parser installed.
func NewParserRegistry() *ParserRegistry {
	pr := &ParserRegistry{parsers: make(map[string]Parser)}
	pr.Register(NewSchemaParser())
	return pr
}

// Register adds a parser keyed by its Language.
func (pr *ParserRegistry) Register(parser Parser) {
	if parser == nil {
		return
	}
	pr.parsers[parser.Language()] = parser
}

// GetParser retrieves a parser by language identifier.
func (pr *ParserRegistry) GetParser(language string) (Parser, bool) {
	parser, ok := pr.parsers[language]
	return parser, ok
}

// SupportedLanguages returns all registered languages, sorted.
func (pr *ParserRegistry) SupportedLanguages() []string {
	langs := make([]string, 0, len(pr.parsers))
	for lang := range pr.parsers {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}
