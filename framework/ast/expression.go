package ast

import "unicode/utf8"

// fieldFeatures take a field name as their first argument.
var fieldFeatures = map[string]bool{
	"attribute": true, "bm25": true, "nativeRank": true, "fieldMatch": true,
	"fieldLength": true, "matches": true, "fieldTermMatch": true,
	"nativeFieldMatch": true, "nativeProximity": true, "nativeAttributeMatch": true,
	"attributeMatch": true, "textSimilarity": true, "elementCompleteness": true,
	"elementSimilarity": true, "freshness": true, "age": true, "dotProduct": true,
	"nativeDotProduct": true, "closestDistance": true,
}

// labelFeatures take either `field, NAME` or `label, NAME`.
var labelFeatures = map[string]bool{
	"closeness": true, "distance": true, "closest": true,
}

// opaqueCalls have arguments that are model names, file paths or loop
// variables rather than expressions.
var opaqueCalls = map[string]bool{
	"onnx": true, "onnxModel": true, "onnx_vespa": true, "lightgbm": true,
	"xgboost": true, "foreach": true, "term": true, "queryTermCount": true,
	"itemRawScore": true, "rawScore": true, "firstPhaseRank": true,
	"tokenInputIds": true, "tokenTypeIds": true, "tokenAttentionMask": true,
}

// builtinCalls are functions of the expression language itself.
var builtinCalls = map[string]bool{
	"if": true, "sqrt": true, "pow": true, "log": true, "log10": true, "exp": true,
	"abs": true, "ceil": true, "floor": true, "round": true, "sigmoid": true,
	"tanh": true, "cos": true, "sin": true, "tan": true, "acos": true, "asin": true,
	"atan": true, "atan2": true, "cosh": true, "sinh": true, "max": true, "min": true,
	"fmod": true, "ldexp": true, "relu": true, "elu": true, "erf": true, "bit": true,
	"hamming": true, "isNan": true, "map": true, "join": true, "merge": true,
	"map_subspaces": true, "filter_subspaces": true, "cell_order": true, "top": true,
	"unpack_bits": true, "xw_plus_b": true, "diag": true, "range": true,
	"random": true, "sum": true, "avg": true, "count": true, "prod": true,
	"median": true, "tensorFromWeightedSet": true, "tensorFromLabels": true,
	"now": true, "nativeRank": true,
}

// dimensionCalls take dimension names after their leading tensor arguments.
// The value is the number of leading arguments that are expressions.
var dimensionCalls = map[string]int{
	"reduce": 1, "rename": 1, "argmax": 1, "argmin": 1, "softmax": 1,
	"l1_normalize": 1, "l2_normalize": 1, "cell_cast": 1, "expand": 1,
	"concat": 2, "matmul": 2, "cosine_similarity": 2, "euclidean_distance": 2,
}

// bareBuiltins are rank features and literals usable without arguments.
var bareBuiltins = map[string]bool{
	"true": true, "false": true, "in": true, "firstPhase": true, "secondPhase": true,
	"relevanceScore": true, "now": true, "random": true, "nativeRank": true,
	"nativeFieldMatch": true, "nativeProximity": true, "nativeAttributeMatch": true,
	"queryTermCount": true, "nan": true, "inf": true,
}

type exprToken struct {
	ident bool
	text  string
	rng   Range
}

// region hides bare identifiers between two token indices: lambda
// parameters, generator dimensions, or every identifier when names is nil.
type region struct {
	from, until int
	names       map[string]bool
}

// ScanExpression finds the references inside ranking expression text that
// starts at base. Every returned node is a NodeReference.
func ScanExpression(text string, base Position) []*Node {
	s := &exprScanner{toks: lexExpression(text, base)}
	s.run()
	return s.refs
}

func lexExpression(text string, base Position) []exprToken {
	var toks []exprToken
	pos := base
	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			pos = advancePosition(pos, text[i:i+1])
			i++
		case c == '#' || (c == '/' && i+1 < len(text) && text[i+1] == '/'):
			j := i
			for j < len(text) && text[j] != '\n' {
				j++
			}
			pos = advancePosition(pos, text[i:j])
			i = j
		case isWordStart(c):
			j := i + 1
			for j < len(text) && (isWordStart(text[j]) || isDigit(text[j])) {
				j++
			}
			end := advancePosition(pos, text[i:j])
			toks = append(toks, exprToken{ident: true, text: text[i:j], rng: Range{Start: pos, End: end}})
			pos, i = end, j
		case isDigit(c):
			j := i + 1
			for j < len(text) && (isDigit(text[j]) || text[j] == '.') {
				j++
			}
			if j < len(text) && (text[j] == 'e' || text[j] == 'E') {
				j++
				if j < len(text) && (text[j] == '+' || text[j] == '-') {
					j++
				}
				for j < len(text) && isDigit(text[j]) {
					j++
				}
			}
			pos, i = advancePosition(pos, text[i:j]), j
		case c == '"' || c == '\'':
			j := i + 1
			for j < len(text) && text[j] != c && text[j] != '\n' {
				if text[j] == '\\' {
					j++
				}
				j++
			}
			if j < len(text) && text[j] == c {
				j++
			}
			if j > len(text) {
				j = len(text)
			}
			pos, i = advancePosition(pos, text[i:j]), j
		default:
			_, size := utf8.DecodeRuneInString(text[i:])
			end := advancePosition(pos, text[i:i+size])
			toks = append(toks, exprToken{text: text[i : i+size], rng: Range{Start: pos, End: end}})
			pos, i = end, i+size
		}
	}
	return toks
}

type exprScanner struct {
	toks    []exprToken
	regions []region
	refs    []*Node
}

func (s *exprScanner) punct(i int, text string) bool {
	return i >= 0 && i < len(s.toks) && !s.toks[i].ident && s.toks[i].text == text
}

func (s *exprScanner) ident(i int) bool {
	return i >= 0 && i < len(s.toks) && s.toks[i].ident
}

// closing returns the index of the token matching the opener at i, or the
// last index when the expression is unbalanced.
func (s *exprScanner) closing(i int) int {
	open := s.toks[i].text
	var closeText string
	switch open {
	case "(":
		closeText = ")"
	case "<":
		closeText = ">"
	default:
		closeText = "}"
	}
	depth := 0
	for j := i; j < len(s.toks); j++ {
		if s.toks[j].ident {
			continue
		}
		switch s.toks[j].text {
		case open:
			depth++
		case closeText:
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return len(s.toks) - 1
}

func (s *exprScanner) hidden(name string, i int) bool {
	for _, r := range s.regions {
		if i >= r.from && i <= r.until && (r.names == nil || r.names[name]) {
			return true
		}
	}
	return false
}

func (s *exprScanner) emit(ref RefContext, i int) {
	t := s.toks[i]
	s.refs = append(s.refs, &Node{Kind: NodeReference, Ref: ref, Range: t.rng, Text: t.text})
}

// argRef emits ref for the single identifier argument of the call opened at
// open, if the argument is an identifier.
func (s *exprScanner) argRef(ref RefContext, open int) {
	if s.ident(open+1) && (s.punct(open+2, ")") || s.punct(open+2, ",") || s.punct(open+2, ".")) {
		s.emit(ref, open+1)
	}
}

func (s *exprScanner) run() {
	braces := 0
	for i := 0; i < len(s.toks); i++ {
		t := s.toks[i]
		if !t.ident {
			switch t.text {
			case "{":
				braces++
			case "}":
				if braces > 0 {
					braces--
				}
			}
			continue
		}
		if s.punct(i-1, ".") || braces > 0 {
			continue
		}
		if t.text == "tensor" {
			i = s.tensorType(i)
			continue
		}
		if !s.punct(i+1, "(") {
			if bareBuiltins[t.text] || s.hidden(t.text, i) || s.punct(i+1, ":") {
				continue
			}
			s.emit(RefExprIdent, i)
			continue
		}
		open := i + 1
		end := s.closing(open)
		switch {
		case fieldFeatures[t.text]:
			s.argRef(RefExprAttribute, open)
			i = end
		case labelFeatures[t.text]:
			if s.ident(open+1) && s.toks[open+1].text == "field" && s.punct(open+2, ",") && s.ident(open+3) {
				s.emit(RefExprAttribute, open+3)
			}
			i = end
		case t.text == "query":
			s.argRef(RefExprQuery, open)
			i = end
		case t.text == "constant":
			s.argRef(RefExprConstant, open)
			i = end
		case opaqueCalls[t.text]:
			i = end
		case s.lambda(i, end):
			i = end
		case dimensionCalls[t.text] > 0:
			s.hideTrailingArgs(open, end, dimensionCalls[t.text])
			i = open
		case builtinCalls[t.text]:
			i = open
		default:
			if !s.hidden(t.text, i) {
				s.emit(RefExprFunction, i)
			}
			i = open
		}
	}
}

// lambda recognizes `f(a, b)(BODY)` and hides its parameters inside BODY.
func (s *exprScanner) lambda(i, paramsEnd int) bool {
	if s.toks[i].text != "f" || !s.punct(paramsEnd+1, "(") {
		return false
	}
	names := make(map[string]bool)
	for j := i + 2; j < paramsEnd; j++ {
		if s.toks[j].ident {
			names[s.toks[j].text] = true
		} else if s.toks[j].text != "," {
			return false
		}
	}
	s.regions = append(s.regions, region{from: paramsEnd + 1, until: s.closing(paramsEnd + 1), names: names})
	return true
}

// hideTrailingArgs hides identifiers in the arguments after the first lead
// arguments of the call opened at open.
func (s *exprScanner) hideTrailingArgs(open, end, lead int) {
	depth, commas := 0, 0
	for j := open; j < end; j++ {
		if s.toks[j].ident {
			continue
		}
		switch s.toks[j].text {
		case "(", "{", "[":
			depth++
		case ")", "}", "]":
			depth--
		case ",":
			if depth == 1 {
				commas++
				if commas == lead {
					s.regions = append(s.regions, region{from: j, until: end})
					return
				}
			}
		}
	}
}

// tensorType skips a `tensor<cell>(dims)` type. A generator body following
// it sees the dimension names as local variables.
func (s *exprScanner) tensorType(i int) int {
	j := i
	if s.punct(j+1, "<") {
		j = s.closing(j + 1)
	}
	if !s.punct(j+1, "(") {
		return j
	}
	dimsEnd := s.closing(j + 1)
	dims := make(map[string]bool)
	for k := j + 2; k < dimsEnd; k++ {
		if s.ident(k) && (s.punct(k+1, "[") || s.punct(k+1, "{")) {
			dims[s.toks[k].text] = true
		}
	}
	if s.punct(dimsEnd+1, "(") {
		s.regions = append(s.regions, region{from: dimsEnd + 1, until: s.closing(dimsEnd + 1), names: dims})
	}
	return dimsEnd
}
