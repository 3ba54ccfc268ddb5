// Package loc carries source positions and diagnostic shapes shared by the
// lexer, parser, resolver and printer. It has no dependency on any of them,
// so every layer can report errors without importing back into the core.
package loc

// Loc is the 0-based byte offset of a position from the start of a file.
type Loc struct {
	Start int
}

// Range is a Loc plus a byte length, e.g. the span of an offending token.
type Range struct {
	Loc Loc
	Len int
}

func (r Range) End() int {
	return r.Loc.Start + r.Len
}
