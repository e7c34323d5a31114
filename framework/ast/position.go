package ast

import "fmt"

// Position is a zero-based line and UTF-16 column, matching LSP clients.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range spans Start to End, end exclusive.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Before reports whether p sorts strictly before other.
func (p Position) Before(other Position) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Character < other.Character
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Character)
}

// Contains reports whether the character at pos lies within the range. A
// cursor on the character right after the range is outside it.
func (r Range) Contains(pos Position) bool {
	return !pos.Before(r.Start) && pos.Before(r.End)
}

// Encloses reports whether other lies completely within r.
func (r Range) Encloses(other Range) bool {
	return !other.Start.Before(r.Start) && !r.End.Before(other.End)
}

// IsZero reports whether the range was never set.
func (r Range) IsZero() bool {
	return r == Range{}
}

func (r Range) String() string {
	return fmt.Sprintf("%s-%s", r.Start, r.End)
}
