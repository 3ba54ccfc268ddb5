package transform

import (
	"fmt"
	"strings"

	chtl "github.com/chtl-lang/chtl/internal"
	"github.com/chtl-lang/chtl/internal/handler"
	"github.com/chtl-lang/chtl/internal/loc"
)

// HoistedRule is one local-style rule lifted from an element's style{}
// block to the document-level CSS output (spec.md §4.K, §4.L "CSS").
type HoistedRule struct {
	Selector   string
	Properties []chtl.Attribute // insertion order, last-write-wins already applied
}

// ScopeResult collects everything local-style automation produced, for the
// printer to consume: hoisted CSS rules in document order. Inline style
// text is not collected here; it is set directly on each element's "style"
// attribute.
type ScopeResult struct {
	Rules []HoistedRule
}

// scoper's counter mints "chtl-<n>" class names for the "&" fallback case,
// a per-call struct field instead of package state since ScopeLocalStyles is
// called once per compilation (mirrors the teacher's injectScopedClass,
// generalized from a single fixed opts.Scope suffix to a per-compilation
// counter).
type scoper struct {
	config  *chtl.Configuration
	handler *handler.Handler
	counter int
	result  ScopeResult
}

// ScopeLocalStyles walks doc, applying spec.md §4.K to every element with a
// style{} child, and returns the hoisted CSS rules for the generator.
// script{} children are not processed: no class or id is added for them,
// whatever the DISABLE_SCRIPT_AUTO_ADD_* options say.
func ScopeLocalStyles(doc *chtl.Node, config *chtl.Configuration, h *handler.Handler) ScopeResult {
	s := &scoper{config: config, handler: h}
	chtl.Walk(doc, func(n *chtl.Node) {
		if n.Type != chtl.ElementNode {
			return
		}
		for _, c := range n.Children() {
			switch c.Type {
			case chtl.StyleNode:
				s.scopeStyleBlock(n, c, false)
			case chtl.ScriptNode:
				// script bodies carry no nested StyleNode children to scan,
				// so there is nothing to hoist; no auto class/id is added.
			}
		}
	})
	return s.result
}

// scopeStyleBlock implements the element-local half of spec.md §4.K for
// one style{} node: direct properties become the inline style, selector
// rules hoist to CSS and may inject class/id.
func (s *scoper) scopeStyleBlock(el, style *chtl.Node, forScript bool) {
	var inline []chtl.Attribute
	for _, c := range style.Children() {
		switch c.Type {
		case chtl.PropertyNode:
			if len(c.Attr) == 0 {
				continue
			}
			inline = setLastWriteWins(inline, c.Attr[0])
		case chtl.SelectorNode:
			s.scopeSelectorRule(el, c, forScript)
		}
	}
	if len(inline) > 0 {
		el.SetAttribute(chtl.Attribute{Key: "style", Val: renderInlineStyle(inline), Type: chtl.LiteralAttribute})
	}
}

func setLastWriteWins(attrs []chtl.Attribute, a chtl.Attribute) []chtl.Attribute {
	for i, existing := range attrs {
		if existing.Key == a.Key {
			attrs[i] = a
			return attrs
		}
	}
	return append(attrs, a)
}

func renderInlineStyle(attrs []chtl.Attribute) string {
	var b strings.Builder
	for i, a := range attrs {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(a.Key)
		b.WriteString(": ")
		b.WriteString(a.Val)
		b.WriteString(";")
	}
	return b.String()
}

// scopeSelectorRule handles one `.name { ... }` / `#name { ... }` /
// `&...{ ... }` rule inside a style block.
func (s *scoper) scopeSelectorRule(el, rule *chtl.Node, forScript bool) {
	selector := s.resolveContextSelector(el, rule.SelectorText, forScript)

	disableClass := s.config.DisableStyleAutoAddClass
	disableID := s.config.DisableStyleAutoAddID
	if forScript {
		disableClass = s.config.DisableScriptAutoAddClass
		disableID = s.config.DisableScriptAutoAddID
	}

	switch {
	case strings.HasPrefix(rule.SelectorText, "."):
		name := strings.TrimPrefix(rule.SelectorText, ".")
		if !disableClass {
			el.AddClass(name)
		}
	case strings.HasPrefix(rule.SelectorText, "#"):
		name := strings.TrimPrefix(rule.SelectorText, "#")
		if el.ID != "" && el.ID != name {
			s.handler.AppendWarning(&loc.ErrorWithRange{
				Code: loc.WARNING_AUTO_ID_SUPPRESSED,
				Text: fmt.Sprintf("element already has id %q; auto id %q from style block suppressed", el.ID, name),
			})
		} else if !disableID {
			el.ID = name
		}
	}

	s.result.Rules = append(s.result.Rules, HoistedRule{
		Selector:   selector,
		Properties: collectProperties(rule),
	})

	for _, nested := range rule.Children() {
		if nested.Type == chtl.SelectorNode {
			s.scopeSelectorRule(el, nested, forScript)
		}
	}
}

func collectProperties(rule *chtl.Node) []chtl.Attribute {
	var props []chtl.Attribute
	for _, c := range rule.Children() {
		if c.Type == chtl.PropertyNode && len(c.Attr) > 0 {
			props = setLastWriteWins(props, c.Attr[0])
		}
	}
	return props
}

// resolveContextSelector expands a leading "&" to the element's effective
// selector (spec.md §4.K): first class, then id, else mints "chtl-<n>" and
// adds it to the element's classes.
func (s *scoper) resolveContextSelector(el *chtl.Node, selectorText string, forScript bool) string {
	if !strings.HasPrefix(selectorText, "&") {
		return rawSelectorForRule(selectorText)
	}
	suffix := strings.TrimPrefix(selectorText, "&")
	base := s.effectiveSelector(el, forScript)
	return base + suffix
}

func (s *scoper) effectiveSelector(el *chtl.Node, forScript bool) string {
	if len(el.Classes) > 0 {
		return "." + el.Classes[0]
	}
	if el.ID != "" {
		return "#" + el.ID
	}
	disableClass := s.config.DisableStyleAutoAddClass
	if forScript {
		disableClass = s.config.DisableScriptAutoAddClass
	}
	s.counter++
	auto := fmt.Sprintf("chtl-%d", s.counter)
	if !disableClass {
		el.AddClass(auto)
	}
	return "." + auto
}

// rawSelectorForRule turns a ".name"/"#name"/bare-tag/pseudo selector into
// its literal CSS form; class/id selectors are already written with their
// sigil by the parser's readSelectorText.
func rawSelectorForRule(selectorText string) string {
	return selectorText
}
