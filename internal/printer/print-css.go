package printer

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	chtl "github.com/chtl-lang/chtl/internal"
	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// cssRule is one selector's property set, keyed by selector text so the
// same selector appearing twice (two elements hoisting ".card", or a
// hoisted rule and an Origin @Style rule sharing a selector) merges with
// last-write-wins per property, in first-occurrence selector order
// (spec.md §4.L "CSS").
type cssRule struct {
	selector string
	props    []chtl.Attribute
}

func (r *cssRule) set(key, val string) {
	for i, p := range r.props {
		if p.Key == key {
			r.props[i].Val = val
			return
		}
	}
	r.props = append(r.props, chtl.Attribute{Key: key, Val: val})
}

// renderCSS builds the document-level CSS channel: hoisted local-style
// rules first, then any module-level Template @Style reference that was
// explicitly spliced into the document (its properties have no selector of
// their own, so they are rendered under `:root`, the nearest CSS equivalent
// of "a property set with no element"), then Origin @Style rules whose
// selector did not merge into one of those.
func (p *printer) renderCSS(doc *chtl.Node) string {
	order := []string{}
	bySelector := map[string]*cssRule{}
	add := func(selector string, attrs []chtl.Attribute) {
		r, ok := bySelector[selector]
		if !ok {
			r = &cssRule{selector: selector}
			bySelector[selector] = r
			order = append(order, selector)
		}
		for _, a := range attrs {
			r.set(a.Key, p.lateSubstitute(a.Val, a.Pos))
		}
	}

	for _, hr := range p.hoisted {
		add(hr.Selector, hr.Properties)
	}

	var rootProps []chtl.Attribute
	for _, c := range doc.Children() {
		if c.Type == chtl.PropertyNode {
			rootProps = append(rootProps, c.Attr...)
		}
	}
	if len(rootProps) > 0 {
		add(":root", rootProps)
	}

	// Merge Origin rules into bySelector before any rule is written, so a
	// shared selector's Origin properties land in the already-known rule.
	var tail strings.Builder
	for _, origin := range collectOriginStyles(doc) {
		mergeOrAppendOrigin(&tail, origin, bySelector, order)
	}

	var sb strings.Builder
	for _, selector := range order {
		r := bySelector[selector]
		sb.WriteString(selector)
		sb.WriteString(" {\n")
		for _, p := range r.props {
			fmt.Fprintf(&sb, "  %s: %s;\n", p.Key, p.Val)
		}
		sb.WriteString("}\n")
	}
	sb.WriteString(tail.String())

	return sb.String()
}

func collectOriginStyles(doc *chtl.Node) []string {
	var out []string
	chtl.Walk(doc, func(n *chtl.Node) {
		if n.Type == chtl.OriginNode && n.OriginType == "Style" {
			out = append(out, n.Data)
		}
	})
	return out
}

// mergeOrAppendOrigin tries to parse raw as a flat sequence of
// `selector { prop: value; ... }` rules using the CSS tokenizer, merging
// any selector it recognizes into the already-built rule set (so a
// `.card { color: red; }` written inside `[Origin] @Style` merges with a
// hoisted `.card` rule from an element's style block, last-write-wins per
// property, per spec.md §4.L). Anything the tokenizer can't cleanly
// attribute to a simple rule (at-rules, nesting, nested comments spanning
// a brace) is appended verbatim instead of being dropped.
func mergeOrAppendOrigin(sb *strings.Builder, raw string, bySelector map[string]*cssRule, order []string) {
	rules, remainder, ok := parseFlatRules(raw)
	if !ok {
		sb.WriteString(raw)
		sb.WriteString("\n")
		return
	}
	for _, r := range rules {
		existing, known := bySelector[r.selector]
		if !known {
			// A selector only Origin CSS defines: append it verbatim in
			// its own position rather than silently dropping it from the
			// ordered rule emission above.
			sb.WriteString(r.selector)
			sb.WriteString(" {\n")
			for _, p := range r.props {
				fmt.Fprintf(sb, "  %s: %s;\n", p.Key, p.Val)
			}
			sb.WriteString("}\n")
			continue
		}
		for _, p := range r.props {
			existing.set(p.Key, p.Val)
		}
		_ = order
	}
	if remainder != "" {
		sb.WriteString(remainder)
		sb.WriteString("\n")
	}
}

// parseFlatRules does a best-effort tokenization of raw into flat
// `selector { decl; decl; } selector { ... }` rules using
// tdewolff/parse/v2's CSS lexer. ok is false (and rules/remainder unused)
// the moment an at-rule, nested brace, or lexer error is seen, since those
// shapes cannot be safely merged by selector without a real CSS AST.
func parseFlatRules(raw string) (rules []cssRule, remainder string, ok bool) {
	l := css.NewLexer(parse.NewInput(bytes.NewReader([]byte(raw))))
	var selector strings.Builder
	var cur *cssRule
	depth := 0
	var declKey, declVal strings.Builder
	inValue := false

	flushDecl := func() {
		if cur == nil {
			return
		}
		key := strings.TrimSpace(declKey.String())
		val := strings.TrimSpace(declVal.String())
		if key != "" {
			cur.props = append(cur.props, chtl.Attribute{Key: key, Val: val})
		}
		declKey.Reset()
		declVal.Reset()
		inValue = false
	}

	for {
		tt, data := l.Next()
		switch tt {
		case css.ErrorToken:
			if err := l.Err(); err == nil || err == io.EOF {
				if depth == 0 && strings.TrimSpace(selector.String()) == "" {
					return rules, "", len(rules) > 0
				}
			}
			return nil, raw, false
		case css.AtKeywordToken:
			return nil, raw, false
		case css.LeftBraceToken:
			if depth > 0 {
				return nil, raw, false // nested blocks aren't a flat rule
			}
			depth++
			cur = &cssRule{selector: strings.TrimSpace(selector.String())}
			selector.Reset()
		case css.RightBraceToken:
			if depth == 0 {
				return nil, raw, false
			}
			flushDecl()
			depth--
			if cur != nil {
				rules = append(rules, *cur)
				cur = nil
			}
		case css.ColonToken:
			if depth > 0 {
				inValue = true
				continue
			}
			selector.Write(data)
		case css.SemicolonToken:
			if depth > 0 {
				flushDecl()
				continue
			}
		default:
			switch {
			case depth == 0:
				selector.Write(data)
			case inValue:
				declVal.Write(data)
			default:
				declKey.Write(data)
			}
		}
	}
}
