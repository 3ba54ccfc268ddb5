// Package handler collects diagnostics for a single compilation. It is a
// plain struct threaded through the lexer, parser, resolver and printer —
// never package-level state — the way spec.md §9 requires for the
// Compilation context and the teacher's own handler.Handler models.
package handler

import (
	"errors"
	"strings"

	"github.com/chtl-lang/chtl/internal/loc"
)

// Handler accumulates diagnostics in source order, split by severity so a
// compilation can ask "did anything fail" (spec.md §7: success means no
// lexical/syntactic/resolution/module errors) without losing warnings.
type Handler struct {
	sourcetext string
	filename   string
	lineStarts []int

	errors   []error
	warnings []error
	infos    []error
	hints    []error

	// merged holds diagnostics pulled in from another file's Handler (an
	// imported .chtl file parses under its own Handler, scoped to its own
	// source text for line/column resolution; internal/driver folds that
	// Handler's already-resolved messages in here via Merge).
	merged []loc.DiagnosticMessage
}

// NewHandler builds a Handler for a single file's source text, precomputing
// line-start offsets so Range->line/column resolution is O(log n).
func NewHandler(sourcetext string, filename string) *Handler {
	h := &Handler{
		sourcetext: sourcetext,
		filename:   filename,
		errors:     make([]error, 0),
		warnings:   make([]error, 0),
		infos:      make([]error, 0),
		hints:      make([]error, 0),
	}
	h.lineStarts = append(h.lineStarts, 0)
	for i, c := range sourcetext {
		if c == '\n' {
			h.lineStarts = append(h.lineStarts, i+1)
		}
	}
	return h
}

func (h *Handler) HasErrors() bool {
	if len(h.errors) > 0 {
		return true
	}
	for _, m := range h.merged {
		if m.Severity == loc.ErrorSeverity {
			return true
		}
	}
	return false
}

// Merge folds another file's already-resolved diagnostics into h, for
// imports: the imported file parses under its own Handler (scoped to its
// own source text), and internal/driver merges that Handler's output into
// the importer's so a single Result carries every file's diagnostics.
func (h *Handler) Merge(other *Handler) {
	h.merged = append(h.merged, other.Diagnostics()...)
}

func (h *Handler) AppendError(err error) {
	if err != nil {
		h.errors = append(h.errors, err)
	}
}

func (h *Handler) AppendWarning(err error) {
	if err != nil {
		h.warnings = append(h.warnings, err)
	}
}

func (h *Handler) AppendInfo(err error) {
	if err != nil {
		h.infos = append(h.infos, err)
	}
}

func (h *Handler) AppendHint(err error) {
	if err != nil {
		h.hints = append(h.hints, err)
	}
}

func (h *Handler) Errors() []loc.DiagnosticMessage {
	msgs := make([]loc.DiagnosticMessage, 0, len(h.errors))
	for _, err := range h.errors {
		msgs = append(msgs, h.toMessage(loc.ErrorSeverity, err))
	}
	for _, m := range h.merged {
		if m.Severity == loc.ErrorSeverity {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

func (h *Handler) Warnings() []loc.DiagnosticMessage {
	msgs := make([]loc.DiagnosticMessage, 0, len(h.warnings))
	for _, err := range h.warnings {
		msgs = append(msgs, h.toMessage(loc.WarningSeverity, err))
	}
	for _, m := range h.merged {
		if m.Severity == loc.WarningSeverity {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

// Diagnostics returns every collected diagnostic, errors first, in the
// order spec.md §7 requires ("all diagnostics are surfaced in source
// order" is honored within each severity bucket; callers that need a
// single source-ordered stream should sort by Location).
func (h *Handler) Diagnostics() []loc.DiagnosticMessage {
	msgs := make([]loc.DiagnosticMessage, 0, len(h.errors)+len(h.warnings)+len(h.infos)+len(h.hints)+len(h.merged))
	for _, err := range h.errors {
		msgs = append(msgs, h.toMessage(loc.ErrorSeverity, err))
	}
	for _, m := range h.merged {
		if m.Severity == loc.ErrorSeverity {
			msgs = append(msgs, m)
		}
	}
	for _, err := range h.warnings {
		msgs = append(msgs, h.toMessage(loc.WarningSeverity, err))
	}
	for _, m := range h.merged {
		if m.Severity == loc.WarningSeverity {
			msgs = append(msgs, m)
		}
	}
	for _, err := range h.infos {
		msgs = append(msgs, h.toMessage(loc.InformationSeverity, err))
	}
	for _, m := range h.merged {
		if m.Severity == loc.InformationSeverity {
			msgs = append(msgs, m)
		}
	}
	for _, err := range h.hints {
		msgs = append(msgs, h.toMessage(loc.HintSeverity, err))
	}
	for _, m := range h.merged {
		if m.Severity == loc.HintSeverity {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

func (h *Handler) toMessage(severity loc.DiagnosticSeverity, err error) loc.DiagnosticMessage {
	var rangedError *loc.ErrorWithRange
	if errors.As(err, &rangedError) {
		line, col := h.lineAndColumn(rangedError.Range.Loc.Start)
		message := rangedError.ToMessage(&loc.DiagnosticLocation{
			File:   h.filename,
			Line:   line,
			Column: col,
			Length: rangedError.Range.Len,
		})
		message.Severity = severity
		return message
	}
	return loc.DiagnosticMessage{Severity: severity, Text: err.Error()}
}

// lineAndColumn resolves a 0-based byte offset to a 1-based line/column
// pair, binary-searching the precomputed line starts.
func (h *Handler) lineAndColumn(offset int) (line, column int) {
	lo, hi := 0, len(h.lineStarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if h.lineStarts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	lineStart := h.lineStarts[lo]
	column = offset - lineStart + 1
	if column < 1 {
		column = 1
	}
	return lo + 1, column
}

// Summary renders every diagnostic as a single newline-joined string,
// convenient for tests and for cmd/chtlc's non-colorized fallback.
func (h *Handler) Summary() string {
	var b strings.Builder
	for _, msg := range h.Diagnostics() {
		b.WriteString(msg.String())
		b.WriteByte('\n')
	}
	return b.String()
}
