package ast

import (
	"fmt"
	"unicode/utf8"
)

// TokenKind classifies lexical tokens of a schema file.
type TokenKind uint8

const (
	TokenEOF TokenKind = iota
	TokenWord
	TokenNumber
	TokenString
	TokenPunct
	TokenIllegal
)

func (k TokenKind) String() string {
	switch k {
	case TokenEOF:
		return "end of file"
	case TokenWord:
		return "word"
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenPunct:
		return "punctuation"
	default:
		return "illegal"
	}
}

// Token is one lexeme with both its byte span and its editor range.
type Token struct {
	Kind   TokenKind
	Text   string
	Range  Range
	Offset int
	End    int
}

func (t Token) describe() string {
	if t.Kind == TokenEOF {
		return "end of file"
	}
	return fmt.Sprintf("%q", t.Text)
}

// lexer walks the source once, tracking UTF-16 columns.
type lexer struct {
	src    string
	offset int
	line   int
	col    int
	tokens []Token
	errs   []SyntaxError
}

// Lex splits src into tokens. The returned slice always ends with TokenEOF.
// Comments (# and //) and whitespace are dropped.
func Lex(src string) ([]Token, []SyntaxError) {
	lx := &lexer{src: src}
	lx.run()
	return lx.tokens, lx.errs
}

func (lx *lexer) pos() Position {
	return Position{Line: lx.line, Character: lx.col}
}

func (lx *lexer) peekByte(n int) byte {
	if lx.offset+n >= len(lx.src) {
		return 0
	}
	return lx.src[lx.offset+n]
}

// step consumes one rune and advances the editor position.
func (lx *lexer) step() {
	r, size := utf8.DecodeRuneInString(lx.src[lx.offset:])
	lx.offset += size
	if r == '\n' {
		lx.line++
		lx.col = 0
		return
	}
	lx.col += utf16Len(r)
}

func (lx *lexer) emit(kind TokenKind, start int, startPos Position) {
	lx.tokens = append(lx.tokens, Token{
		Kind:   kind,
		Text:   lx.src[start:lx.offset],
		Range:  Range{Start: startPos, End: lx.pos()},
		Offset: start,
		End:    lx.offset,
	})
}

func (lx *lexer) run() {
	for lx.offset < len(lx.src) {
		c := lx.src[lx.offset]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			lx.step()
		case c == '#' || (c == '/' && lx.peekByte(1) == '/'):
			for lx.offset < len(lx.src) && lx.src[lx.offset] != '\n' {
				lx.step()
			}
		case isWordStart(c):
			start, startPos := lx.offset, lx.pos()
			for lx.offset < len(lx.src) && isWordPart(lx.src[lx.offset]) {
				lx.step()
			}
			lx.emit(TokenWord, start, startPos)
		case isDigit(c):
			lx.number()
		case c == '"' || c == '\'':
			lx.str(c)
		case c < utf8.RuneSelf:
			start, startPos := lx.offset, lx.pos()
			lx.step()
			lx.emit(TokenPunct, start, startPos)
		default:
			start, startPos := lx.offset, lx.pos()
			lx.step()
			lx.emit(TokenIllegal, start, startPos)
			lx.errs = append(lx.errs, SyntaxError{
				Range:   Range{Start: startPos, End: lx.pos()},
				Message: fmt.Sprintf("unexpected character %q", lx.src[start:lx.offset]),
			})
		}
	}
	p := lx.pos()
	lx.tokens = append(lx.tokens, Token{Kind: TokenEOF, Range: Range{Start: p, End: p}, Offset: len(lx.src), End: len(lx.src)})
}

func (lx *lexer) number() {
	start, startPos := lx.offset, lx.pos()
	for lx.offset < len(lx.src) && isDigit(lx.src[lx.offset]) {
		lx.step()
	}
	if lx.peekByte(0) == '.' && isDigit(lx.peekByte(1)) {
		lx.step()
		for lx.offset < len(lx.src) && isDigit(lx.src[lx.offset]) {
			lx.step()
		}
	}
	if c := lx.peekByte(0); c == 'e' || c == 'E' {
		next := lx.peekByte(1)
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(lx.peekByte(2))) {
			lx.step()
			lx.step()
			for lx.offset < len(lx.src) && isDigit(lx.src[lx.offset]) {
				lx.step()
			}
		}
	}
	lx.emit(TokenNumber, start, startPos)
}

func (lx *lexer) str(quote byte) {
	start, startPos := lx.offset, lx.pos()
	lx.step()
	for lx.offset < len(lx.src) {
		c := lx.src[lx.offset]
		if c == '\\' && lx.offset+1 < len(lx.src) {
			lx.step()
			lx.step()
			continue
		}
		if c == '\n' {
			break
		}
		lx.step()
		if c == quote {
			lx.emit(TokenString, start, startPos)
			return
		}
	}
	lx.emit(TokenString, start, startPos)
	lx.errs = append(lx.errs, SyntaxError{
		Range:   Range{Start: startPos, End: lx.pos()},
		Message: "unterminated string literal",
	})
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// isWordPart admits '-' so that keywords such as rank-profile and names such
// as my-profile lex as one word. Ranking expressions use their own scanner.
func isWordPart(c byte) bool {
	return isWordStart(c) || isDigit(c) || c == '-'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func utf16Len(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}

// advancePosition moves p over text, counting UTF-16 units per line.
func advancePosition(p Position, text string) Position {
	for _, r := range text {
		if r == '\n' {
			p.Line++
			p.Character = 0
			continue
		}
		p.Character += utf16Len(r)
	}
	return p
}
