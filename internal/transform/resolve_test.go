package transform

import (
	"testing"

	chtl "github.com/chtl-lang/chtl/internal"
	"github.com/chtl-lang/chtl/internal/handler"
)

func resolveSource(t *testing.T, source string) (*chtl.Node, *handler.Handler) {
	t.Helper()
	registry := chtl.NewRegistry()
	config := chtl.DefaultConfiguration()
	doc, h := chtl.Parse([]byte(source), "test.chtl", chtl.ParserOptions{AllowPartial: true}, registry, chtl.NewScopeManager(), config)
	if h.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", h.Diagnostics())
	}
	doc = Resolve(doc, registry, config, h)
	return doc, h
}

func childTags(n *chtl.Node) []string {
	var tags []string
	for _, c := range n.Children() {
		if c.Type == chtl.ElementNode {
			tags = append(tags, c.Tag)
		}
	}
	return tags
}

// TestResolveCustomSpecializationOnEmbeddedReference exercises spec.md
// end-to-end scenario 5: a Custom whose body is a single embedded
// base-element reference, followed by a delete-by-index and an
// insert-after specialization. The ops must reach the base element's own
// children, not look for a sibling at the custom's own top level.
func TestResolveCustomSpecializationOnEmbeddedReference(t *testing.T) {
	src := `[Template] @Element Card { div { div{} div{} div{} } }
[Custom] @Element C2 { @Element Card; delete div[1]; insert after div[0] { span{} } }
body { @Element C2; }`
	doc, h := resolveSource(t, src)
	if h.HasErrors() {
		t.Fatalf("unexpected resolve errors: %v", h.Diagnostics())
	}

	body := findByTag(doc, "body")
	if body == nil {
		t.Fatalf("expected a body element in %v", doc)
	}
	outer := findByTag(body, "div")
	if outer == nil {
		t.Fatalf("expected C2 to expand to an outer div")
	}

	got := childTags(outer)
	want := []string{"div", "span", "div"}
	if len(got) != len(want) {
		t.Fatalf("outer div children = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("outer div children = %v, want %v", got, want)
		}
	}
	if len(outer.Children()) != 3 {
		t.Errorf("expected exactly 3 children after delete+insert, got %d", len(outer.Children()))
	}
}

// TestResolveCustomDeleteInheritance confirms a Custom's own `delete @K
// Parent;` removes that parent from its linearized body without touching
// the parent's own definition (spec.md §4.J's specialization ops, and
// CustomNode.hpp's removeInheritance semantics).
func TestResolveCustomDeleteInheritance(t *testing.T) {
	src := `[Template] @Style Base { color: red; }
[Template] @Style Other { font-size: 12px; }
[Custom] @Style Mixed { inherit @Style Base; inherit @Style Other; delete @Style Base; }
div { style { @Style Mixed; } }`
	doc, h := resolveSource(t, src)
	if h.HasErrors() {
		t.Fatalf("unexpected resolve errors: %v", h.Diagnostics())
	}

	div := findByTag(doc, "div")
	if div == nil {
		t.Fatalf("expected a div element")
	}
	styleNode := findByType(div, chtl.StyleNode)
	if styleNode == nil {
		t.Fatalf("expected a style node under div")
	}

	var sawColor, sawFontSize bool
	chtl.Walk(styleNode, func(c *chtl.Node) {
		if c.Type != chtl.PropertyNode {
			return
		}
		if _, ok := c.Attribute("color"); ok {
			sawColor = true
		}
		if _, ok := c.Attribute("font-size"); ok {
			sawFontSize = true
		}
	})
	if sawColor {
		t.Errorf("expected Base's color property to be excluded by delete @Style Base;")
	}
	if !sawFontSize {
		t.Errorf("expected Other's font-size property to survive")
	}
}

func findByTag(n *chtl.Node, tag string) *chtl.Node {
	var found *chtl.Node
	chtl.Walk(n, func(c *chtl.Node) {
		if found == nil && c.Type == chtl.ElementNode && c.Tag == tag {
			found = c
		}
	})
	return found
}

func findByType(n *chtl.Node, typ chtl.NodeType) *chtl.Node {
	var found *chtl.Node
	chtl.Walk(n, func(c *chtl.Node) {
		if found == nil && c.Type == typ {
			found = c
		}
	})
	return found
}
