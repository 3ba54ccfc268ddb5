package printer

import (
	"fmt"
	"strings"

	chtl "github.com/chtl-lang/chtl/internal"
	"github.com/chtl-lang/chtl/internal/loc"
)

// htmlEscaper mirrors spec.md §4.L's fixed escape set (& < > " ') rather
// than the broader golang.org/x/net/html escaper, which also escapes
// characters CHTL's grammar has no use for (e.g. U+00A0).
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// printDocument walks doc and appends HTML to p.html, collecting script{}
// bodies into p.js as it goes (spec.md §4.L "JavaScript").
func (p *printer) printDocument(doc *chtl.Node) {
	for _, c := range doc.Children() {
		p.printNode(c)
	}
}

func (p *printer) printNode(n *chtl.Node) {
	switch n.Type {
	case chtl.ElementNode:
		p.printElement(n)
	case chtl.TextNode:
		p.printText(n)
	case chtl.CommentNode:
		p.printf("<!--%s-->", n.Data)
	case chtl.OriginNode:
		if n.OriginType == "JavaScript" {
			p.appendJSBody(n.Data)
			return
		}
		if n.OriginType == "Style" {
			return // collected by renderCSS
		}
		p.printOrigin(n)
	case chtl.ScriptNode:
		p.collectScript(n)
	case chtl.StyleNode:
		// Local styles were already consumed by component K; nothing left
		// for the HTML channel to emit for a style{} block itself.
	default:
		for _, c := range n.Children() {
			p.printNode(c)
		}
	}
}

func (p *printer) printText(n *chtl.Node) {
	text := p.lateSubstitute(n.Data, n.Pos)
	if n.IsRaw {
		p.print(text)
		return
	}
	p.print(escapeHTML(text))
}

func (p *printer) printOrigin(n *chtl.Node) {
	switch n.OriginType {
	case "Html":
		p.print(n.Data)
	case "Style", "JavaScript":
		// Handled by the CSS/JS channels respectively; the HTML channel
		// never emits these bodies inline.
	default:
		// A user-defined origin type with no known channel: pass through
		// verbatim at its position, same as @Html (spec.md §4.L).
		p.print(n.Data)
	}
}

func (p *printer) printElement(n *chtl.Node) {
	tag := n.Tag
	p.printf("<%s", tag)

	if cls := n.ClassAttr(); cls != "" {
		p.printf(` class="%s"`, escapeHTML(cls))
	}
	if n.ID != "" {
		p.printf(` id="%s"`, escapeHTML(n.ID))
	}
	for _, a := range n.Attr {
		if a.Key == "class" || a.Key == "id" {
			continue
		}
		p.printf(` %s="%s"`, a.Key, escapeHTML(p.lateSubstitute(a.Val, a.Pos)))
	}

	selfClosing := n.SelfClosing || chtl.IsSelfClosing(tag)
	if !chtl.IsHTMLElement(tag) {
		p.handler.AppendWarning(&loc.ErrorWithRange{
			Code:  loc.WARNING_UNKNOWN_HTML_ELEMENT,
			Text:  fmt.Sprintf("%q is not a known HTML element", tag),
			Range: loc.Range{Loc: loc.Loc{Start: n.Pos.Offset}, Len: len(tag) + 1},
		})
	}
	if selfClosing {
		p.print(" />")
		return
	}
	p.print(">")
	for _, c := range n.Children() {
		p.printNode(c)
	}
	p.printf("</%s>", tag)
}
