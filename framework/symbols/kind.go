package symbols

import "strings"

// Kind is the closed set of schema concepts a declaration can introduce.
type Kind uint8

const (
	KindSchema Kind = iota
	KindDocument
	KindField
	KindStruct
	KindAnnotation
	KindFieldset
	KindRankProfile
	KindFunction
	KindParameter
	KindInput
	KindConstant
	KindDocumentSummary
	KindSummaryField

	kindCount
)

var kindNames = [kindCount]string{
	KindSchema:          "schema",
	KindDocument:        "document",
	KindField:           "field",
	KindStruct:          "struct",
	KindAnnotation:      "annotation",
	KindFieldset:        "fieldset",
	KindRankProfile:     "rank-profile",
	KindFunction:        "function",
	KindParameter:       "parameter",
	KindInput:           "input",
	KindConstant:        "constant",
	KindDocumentSummary: "document-summary",
	KindSummaryField:    "summary",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return "unknown"
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(name string) (Kind, bool) {
	for k := Kind(0); k < kindCount; k++ {
		if kindNames[k] == name {
			return k, true
		}
	}
	return 0, false
}

// Mask returns the single-kind mask for k.
func (k Kind) Mask() KindMask {
	return 1 << k
}

// KindMask is a set of kinds. The zero mask accepts every kind.
type KindMask uint32

// MaskOf builds a mask from kinds.
func MaskOf(kinds ...Kind) KindMask {
	var m KindMask
	for _, k := range kinds {
		m |= k.Mask()
	}
	return m
}

// Has reports whether k is in the mask. An empty mask matches everything.
func (m KindMask) Has(k Kind) bool {
	return m == 0 || m&k.Mask() != 0
}

func (m KindMask) String() string {
	if m == 0 {
		return "any"
	}
	var names []string
	for k := Kind(0); k < kindCount; k++ {
		if m&k.Mask() != 0 {
			names = append(names, k.String())
		}
	}
	return strings.Join(names, "|")
}

// globalMask covers kinds that are looked up across documents by name
// rather than through the scope chain.
const globalMask = KindMask(1<<KindSchema | 1<<KindDocument)

// Role distinguishes declarations from uses.
type Role uint8

const (
	RoleDeclaration Role = iota
	RoleReference
)

func (r Role) String() string {
	if r == RoleReference {
		return "reference"
	}
	return "declaration"
}
