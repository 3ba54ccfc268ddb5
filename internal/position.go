package chtl

import "fmt"

// Position identifies a single byte in a source file, already expanded into
// the line/column pair a diagnostic needs. Lengths are derived by callers
// from two Positions (or a Position plus a byte count), never stored here.
type Position struct {
	File   string
	Line   int // 1-based
	Column int // 1-based, counted in bytes
	Offset int // 0-based byte offset from the start of File
}

func (p Position) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}
