package ast

import "fmt"

// SchemaParser parses Vespa schema (.sd) files.
type SchemaParser struct{}

// NewSchemaParser returns the schema parser.
func NewSchemaParser() *SchemaParser {
	return &SchemaParser{}
}

// Language implements Parser.
func (sp *SchemaParser) Language() string {
	return LanguageSchema
}

// Parse implements Parser. It never fails: malformed input yields a partial
// tree plus syntax errors.
func (sp *SchemaParser) Parse(content string) *ParseResult {
	toks, lexErrs := Lex(content)
	p := &schemaParser{src: content, toks: toks, errs: lexErrs}
	eof := toks[len(toks)-1]
	root := &Node{Kind: NodeFile, Range: Range{End: eof.Range.End}}
	for !p.eof() {
		if p.atPunct("}") {
			tok := p.next()
			p.errorf(tok.Range, "unexpected %s", tok.describe())
			continue
		}
		root.add(p.statement(blockFile))
	}
	link(root)
	return &ParseResult{Root: root, Errors: p.errs}
}

// blockContext says which construct's body is being parsed; keywords are
// only special inside the bodies that give them meaning.
type blockContext uint8

const (
	blockFile blockContext = iota
	blockSchema
	blockDocument
	blockStruct
	blockField
	blockFieldset
	blockProfile
	blockFunction
	blockPhase
	blockSummary
	blockSummaryField
	blockGeneric
)

var primitiveTypes = map[string]bool{
	"string": true, "int": true, "long": true, "bool": true, "byte": true,
	"float": true, "double": true, "float16": true, "bfloat16": true, "int8": true,
	"position": true, "predicate": true, "raw": true, "uri": true,
}

type schemaParser struct {
	src  string
	toks []Token
	pos  int
	last Token
	errs []SyntaxError
}

func (p *schemaParser) peek() Token {
	return p.toks[p.pos]
}

func (p *schemaParser) peekAt(n int) Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *schemaParser) next() Token {
	tok := p.toks[p.pos]
	if tok.Kind != TokenEOF {
		p.pos++
		p.last = tok
	}
	return tok
}

func (p *schemaParser) eof() bool {
	return p.peek().Kind == TokenEOF
}

func (p *schemaParser) atPunct(text string) bool {
	tok := p.peek()
	return tok.Kind == TokenPunct && tok.Text == text
}

func (p *schemaParser) atWord(text string) bool {
	tok := p.peek()
	return tok.Kind == TokenWord && tok.Text == text
}

func (p *schemaParser) errorf(r Range, format string, args ...any) {
	p.errs = append(p.errs, SyntaxError{Range: r, Message: fmt.Sprintf(format, args...)})
}

func (p *schemaParser) expectPunct(text string) bool {
	if p.atPunct(text) {
		p.next()
		return true
	}
	tok := p.peek()
	p.errorf(tok.Range, "expected '%s', found %s", text, tok.describe())
	return false
}

func (p *schemaParser) finish(n *Node) *Node {
	n.Range.End = p.last.Range.End
	if n.Range.End.Before(n.Range.Start) {
		n.Range.End = n.Range.Start
	}
	return n
}

func tokenNode(kind NodeKind, tok Token) *Node {
	return &Node{Kind: kind, Range: tok.Range, Text: tok.Text}
}

func refNode(ref RefContext, tok Token) *Node {
	return &Node{Kind: NodeReference, Ref: ref, Range: tok.Range, Text: tok.Text}
}

func (p *schemaParser) statement(ctx blockContext) *Node {
	tok := p.peek()
	if tok.Kind != TokenWord {
		p.next()
		if tok.Kind != TokenIllegal {
			p.errorf(tok.Range, "unexpected %s", tok.describe())
		}
		return nil
	}
	nextTok := p.peekAt(1)
	nextIsName := nextTok.Kind == TokenWord
	switch tok.Text {
	case "schema", "search":
		if ctx == blockFile {
			return p.declaration(NodeSchema, RefSchemaInherits, blockSchema)
		}
	case "document":
		if ctx == blockFile || ctx == blockSchema {
			return p.declaration(NodeDocument, RefDocumentInherits, blockDocument)
		}
	case "struct":
		if nextIsName {
			return p.declaration(NodeStruct, RefStructInherits, blockStruct)
		}
	case "annotation":
		if nextIsName {
			return p.declaration(NodeAnnotation, RefAnnotationInherits, blockStruct)
		}
	case "rank-profile":
		return p.declaration(NodeRankProfile, RefProfileInherits, blockProfile)
	case "document-summary":
		return p.declaration(NodeDocumentSummary, RefSummaryInherits, blockSummary)
	case "fieldset":
		return p.declaration(NodeFieldset, RefNone, blockFieldset)
	case "field":
		if nextIsName {
			return p.field()
		}
	case "function", "macro":
		if ctx == blockProfile {
			return p.function()
		}
	case "inputs":
		if ctx == blockProfile {
			return p.valueList(NodeInputs, NodeInput, "query")
		}
	case "constants":
		if ctx == blockProfile {
			return p.valueList(NodeConstants, NodeConstant, "constant")
		}
	case "constant":
		if (ctx == blockFile || ctx == blockSchema) && nextIsName {
			return p.legacyConstant()
		}
	case "first-phase", "second-phase", "global-phase":
		if ctx == blockProfile {
			return p.phase()
		}
	case "expression":
		if ctx == blockPhase || ctx == blockFunction {
			return p.expression()
		}
	case "summary-features", "match-features", "rank-features":
		if ctx == blockProfile {
			return p.expression()
		}
	case "summary":
		if (ctx == blockSummary || ctx == blockField) && nextIsName {
			return p.summary()
		}
	case "fields":
		if ctx == blockFieldset {
			return p.fieldList(tok.Text)
		}
	case "source":
		if ctx == blockSummaryField || ctx == blockField {
			return p.fieldList(tok.Text)
		}
	}
	return p.generic(ctx)
}

// declaration parses `KEYWORD NAME [inherits A, B] { BODY }`.
func (p *schemaParser) declaration(kind NodeKind, inherits RefContext, body blockContext) *Node {
	kw := p.next()
	n := &Node{Kind: kind, Range: Range{Start: kw.Range.Start}}
	if tok := p.peek(); tok.Kind == TokenWord && tok.Text != "inherits" {
		n.add(tokenNode(NodeName, p.next()))
	} else {
		p.errorf(tok.Range, "expected name after '%s', found %s", kw.Text, tok.describe())
	}
	if inherits != RefNone && p.atWord("inherits") {
		n.add(p.inherits(inherits))
	}
	p.block(n, body)
	return p.finish(n)
}

func (p *schemaParser) inherits(ref RefContext) *Node {
	kw := p.next()
	n := &Node{Kind: NodeInherits, Range: Range{Start: kw.Range.Start}, Text: kw.Text}
	for {
		tok := p.peek()
		if tok.Kind != TokenWord {
			p.errorf(tok.Range, "expected name after 'inherits', found %s", tok.describe())
			break
		}
		n.add(refNode(ref, p.next()))
		if !p.atPunct(",") {
			break
		}
		p.next()
	}
	return p.finish(n)
}

// block parses `{ BODY }` into parent. A missing brace is reported and the
// declaration is left without a body.
func (p *schemaParser) block(parent *Node, ctx blockContext) {
	if !p.expectPunct("{") {
		return
	}
	for !p.eof() && !p.atPunct("}") {
		parent.add(p.statement(ctx))
	}
	if p.eof() {
		p.errorf(p.peek().Range, "expected '}' to close '%s', found end of file", parent.Kind)
		return
	}
	p.next()
}

// field parses `field NAME type TYPE [{ BODY }]`.
func (p *schemaParser) field() *Node {
	kw := p.next()
	n := &Node{Kind: NodeField, Range: Range{Start: kw.Range.Start}}
	n.add(tokenNode(NodeName, p.next()))
	if p.atWord("type") {
		p.next()
		n.add(p.typeExpr())
	} else {
		p.errorf(p.peek().Range, "expected 'type' after field name, found %s", p.peek().describe())
	}
	if p.atPunct("{") {
		p.block(n, blockField)
	}
	return p.finish(n)
}

func (p *schemaParser) typeExpr() *Node {
	start := p.peek()
	n := &Node{Kind: NodeType, Range: Range{Start: start.Range.Start}}
	p.typeInto(n)
	if p.pos > 0 && p.last.End > start.Offset {
		n.Text = p.src[start.Offset:p.last.End]
	}
	return p.finish(n)
}

func (p *schemaParser) typeInto(n *Node) {
	tok := p.peek()
	if tok.Kind != TokenWord {
		p.errorf(tok.Range, "expected type, found %s", tok.describe())
		return
	}
	p.next()
	switch tok.Text {
	case "array", "weightedset":
		if p.expectPunct("<") {
			p.typeInto(n)
			p.expectPunct(">")
		}
	case "map":
		if p.expectPunct("<") {
			p.typeInto(n)
			p.expectPunct(",")
			p.typeInto(n)
			p.expectPunct(">")
		}
	case "reference", "annotationreference":
		ref := RefDocumentReference
		if tok.Text == "annotationreference" {
			ref = RefAnnotationReference
		}
		if p.expectPunct("<") {
			if target := p.peek(); target.Kind == TokenWord {
				n.add(refNode(ref, p.next()))
			} else {
				p.errorf(target.Range, "expected name in %s<>, found %s", tok.Text, target.describe())
			}
			p.expectPunct(">")
		}
	case "tensor":
		if p.atPunct("<") {
			p.skipBalanced("<", ">")
		}
		if p.atPunct("(") {
			p.skipBalanced("(", ")")
		}
	default:
		if !primitiveTypes[tok.Text] {
			n.add(refNode(RefTypeName, tok))
		}
	}
}

// skipBalanced consumes an open token through its matching close token.
func (p *schemaParser) skipBalanced(open, close string) {
	openTok := p.next()
	depth := 1
	for !p.eof() {
		tok := p.next()
		if tok.Kind != TokenPunct {
			continue
		}
		switch tok.Text {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return
			}
		}
	}
	p.errorf(openTok.Range, "unbalanced '%s'", open)
}

// function parses `function [inline] NAME(PARAMS) { BODY }`.
func (p *schemaParser) function() *Node {
	kw := p.next()
	n := &Node{Kind: NodeFunction, Range: Range{Start: kw.Range.Start}, Text: kw.Text}
	if p.atWord("inline") && p.peekAt(1).Kind == TokenWord {
		p.next()
	}
	if tok := p.peek(); tok.Kind == TokenWord {
		n.add(tokenNode(NodeName, p.next()))
	} else {
		p.errorf(tok.Range, "expected function name, found %s", tok.describe())
	}
	if p.expectPunct("(") {
		for !p.eof() && !p.atPunct(")") && !p.atPunct("{") {
			tok := p.next()
			switch {
			case tok.Kind == TokenWord:
				param := &Node{Kind: NodeParameter, Range: tok.Range}
				param.add(tokenNode(NodeName, tok))
				n.add(param)
			case tok.Kind == TokenPunct && tok.Text == ",":
			default:
				p.errorf(tok.Range, "unexpected %s in parameter list", tok.describe())
			}
		}
		p.expectPunct(")")
	}
	p.block(n, blockFunction)
	return p.finish(n)
}

// valueList parses the inputs and constants blocks of a rank profile, whose
// entries are `wrap(NAME) TYPE [: VALUE]` or `NAME TYPE [: VALUE]`.
func (p *schemaParser) valueList(kind, entry NodeKind, wrap string) *Node {
	kw := p.next()
	n := &Node{Kind: kind, Range: Range{Start: kw.Range.Start}, Text: kw.Text}
	if !p.expectPunct("{") {
		return p.finish(n)
	}
	for !p.eof() && !p.atPunct("}") {
		start := p.next()
		if start.Kind != TokenWord {
			p.errorf(start.Range, "unexpected %s in %s", start.describe(), kw.Text)
			continue
		}
		item := &Node{Kind: entry, Range: Range{Start: start.Range.Start}}
		nameTok := start
		if start.Text == wrap && p.atPunct("(") {
			p.next()
			if tok := p.peek(); tok.Kind == TokenWord {
				nameTok = p.next()
			} else {
				p.errorf(tok.Range, "expected name in %s(), found %s", wrap, tok.describe())
			}
			p.expectPunct(")")
		}
		item.add(tokenNode(NodeName, nameTok))
		line := p.last.Range.End.Line
		if tok := p.peek(); tok.Kind == TokenWord && tok.Range.Start.Line == line {
			item.add(p.typeExpr())
		}
		if p.atPunct(":") && p.peek().Range.Start.Line == p.last.Range.End.Line {
			colon := p.next()
			p.captureLine(colon.Range.End.Line)
		}
		n.add(p.finish(item))
	}
	if p.eof() {
		p.errorf(p.peek().Range, "expected '}' to close '%s', found end of file", kw.Text)
	} else {
		p.next()
	}
	return p.finish(n)
}

// legacyConstant parses a schema-level `constant NAME { file: ...; type: ... }`.
func (p *schemaParser) legacyConstant() *Node {
	kw := p.next()
	n := &Node{Kind: NodeConstant, Range: Range{Start: kw.Range.Start}}
	n.add(tokenNode(NodeName, p.next()))
	p.block(n, blockGeneric)
	return p.finish(n)
}

func (p *schemaParser) phase() *Node {
	kw := p.next()
	n := &Node{Kind: NodePhase, Range: Range{Start: kw.Range.Start}, Text: kw.Text}
	p.block(n, blockPhase)
	return p.finish(n)
}

// expression parses `KEY: EXPR` up to the end of the line or `KEY { EXPR }`
// and scans the captured text for references.
func (p *schemaParser) expression() *Node {
	kw := p.next()
	n := &Node{Kind: NodeExpression, Range: Range{Start: kw.Range.Start}}
	var first, last int
	switch {
	case p.atPunct(":"):
		colon := p.next()
		first, last = p.captureLine(colon.Range.End.Line)
	case p.atPunct("{"):
		first, last = p.captureBraces()
	default:
		p.errorf(p.peek().Range, "expected ':' or '{' after '%s', found %s", kw.Text, p.peek().describe())
		return p.finish(n)
	}
	if first >= 0 {
		start := p.toks[first]
		n.Text = p.src[start.Offset:p.toks[last].End]
		for _, ref := range ScanExpression(n.Text, start.Range.Start) {
			n.add(ref)
		}
	}
	return p.finish(n)
}

// captureLine consumes the tokens of a value that starts on line and returns
// the indices of its first and last tokens, or -1 when the value is empty.
// Braces may carry the value past the end of the line.
func (p *schemaParser) captureLine(line int) (int, int) {
	first, last := -1, -1
	depth := 0
	for !p.eof() {
		tok := p.peek()
		if depth == 0 && tok.Range.Start.Line != line {
			break
		}
		if tok.Kind == TokenPunct {
			if tok.Text == "{" {
				depth++
			} else if tok.Text == "}" {
				if depth == 0 {
					break
				}
				depth--
			}
		}
		if first < 0 {
			first = p.pos
		}
		last = p.pos
		p.next()
	}
	return first, last
}

// captureBraces consumes `{ ... }` and returns the indices of the first and
// last tokens inside the braces, or -1 when the braces are empty.
func (p *schemaParser) captureBraces() (int, int) {
	open := p.next()
	first, last := -1, -1
	depth := 0
	for !p.eof() {
		tok := p.peek()
		if tok.Kind == TokenPunct && tok.Text == "}" {
			if depth == 0 {
				p.next()
				return first, last
			}
			depth--
		} else if tok.Kind == TokenPunct && tok.Text == "{" {
			depth++
		}
		if first < 0 {
			first = p.pos
		}
		last = p.pos
		p.next()
	}
	p.errorf(open.Range, "expected '}' to close expression, found end of file")
	return first, last
}

// summary parses `summary NAME [type TYPE] [{ BODY }]`.
func (p *schemaParser) summary() *Node {
	kw := p.next()
	n := &Node{Kind: NodeSummary, Range: Range{Start: kw.Range.Start}}
	n.add(tokenNode(NodeName, p.next()))
	if p.atWord("type") {
		p.next()
		n.add(p.typeExpr())
	}
	if p.atPunct("{") {
		p.block(n, blockSummaryField)
	}
	return p.finish(n)
}

// fieldList parses `KEY: a, b, c` where every entry names a field.
func (p *schemaParser) fieldList(key string) *Node {
	kw := p.next()
	n := &Node{Kind: NodeFieldList, Range: Range{Start: kw.Range.Start}, Text: key}
	if !p.expectPunct(":") {
		return p.finish(n)
	}
	line := p.last.Range.End.Line
	for !p.eof() {
		tok := p.peek()
		if tok.Range.Start.Line != line || tok.Kind != TokenWord {
			break
		}
		n.add(refNode(RefFieldName, p.next()))
		if !p.atPunct(",") {
			break
		}
		p.next()
		line = p.last.Range.End.Line
	}
	return p.finish(n)
}

// generic keeps any other statement as an opaque property or block: a key
// with optional header words on the same line, then `: VALUE` or `{ BODY }`.
func (p *schemaParser) generic(ctx blockContext) *Node {
	key := p.next()
	n := &Node{Kind: NodeProperty, Range: Range{Start: key.Range.Start}, Text: key.Text}
	for !p.eof() {
		tok := p.peek()
		if tok.Range.Start.Line != key.Range.Start.Line {
			break
		}
		if tok.Kind == TokenPunct && (tok.Text == ":" || tok.Text == "{" || tok.Text == "}") {
			break
		}
		p.next()
	}
	switch {
	case p.atPunct(":"):
		colon := p.next()
		p.captureLine(colon.Range.End.Line)
	case p.atPunct("{"):
		n.Kind = NodeBlock
		body := blockGeneric
		if ctx == blockField || ctx == blockStruct {
			body = blockField
		}
		p.block(n, body)
	}
	return p.finish(n)
}
