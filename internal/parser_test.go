package chtl

import (
	"testing"

	"github.com/chtl-lang/chtl/internal/handler"
)

// parse is a small test helper wiring up a fresh Registry/ScopeManager/
// Configuration the way internal/driver does for a single file, since the
// parser is never meaningfully exercised without them (template/custom
// declarations register straight into the Registry as they are parsed).
func parse(t *testing.T, source string) (*Node, *handler.Handler) {
	t.Helper()
	registry := NewRegistry()
	doc, h := Parse([]byte(source), "test.chtl", ParserOptions{AllowPartial: true}, registry, NewScopeManager(), DefaultConfiguration())
	return doc, h
}

func findByTag(n *Node, tag string) *Node {
	var found *Node
	Walk(n, func(c *Node) {
		if found == nil && c.Type == ElementNode && c.Tag == tag {
			found = c
		}
	})
	return found
}

func findByType(n *Node, typ NodeType) *Node {
	var found *Node
	Walk(n, func(c *Node) {
		if found == nil && c.Type == typ {
			found = c
		}
	})
	return found
}

func TestParseBasicElementAndText(t *testing.T) {
	// spec.md end-to-end scenario 1.
	doc, h := parse(t, `html { body { div { id: x; text { "hi" } } } }`)
	if h.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", h.Diagnostics())
	}

	div := findByTag(doc, "div")
	if div == nil {
		t.Fatalf("expected a div element in %v", doc)
	}
	if div.ID != "x" {
		t.Errorf("div.ID = %q, want %q", div.ID, "x")
	}

	text := findByType(div, TextNode)
	if text == nil {
		t.Fatalf("expected a text node under div")
	}
	if text.Data != "hi" {
		t.Errorf("text.Data = %q, want %q", text.Data, "hi")
	}
}

func TestParseStyleBlockMarksHasStyle(t *testing.T) {
	// spec.md end-to-end scenario 2.
	doc, h := parse(t, `div { style { .box { color: red; } } }`)
	if h.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", h.Diagnostics())
	}

	div := findByTag(doc, "div")
	if div == nil {
		t.Fatalf("expected a div element")
	}
	if !div.HasStyle {
		t.Errorf("expected div.HasStyle to be true")
	}
	if findByType(div, StyleNode) == nil {
		t.Errorf("expected a style node under div")
	}
}

func TestParseTemplateDeclRegistersIntoRegistry(t *testing.T) {
	registry := NewRegistry()
	doc, h := Parse([]byte(`[Template] @Style Base { color: red; }`), "test.chtl", ParserOptions{AllowPartial: true}, registry, NewScopeManager(), DefaultConfiguration())
	if h.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", h.Diagnostics())
	}
	// A Template declaration registers straight into the Registry and never
	// survives into the Document tree (see node.go's NodeType doc comment).
	for _, c := range doc.Children() {
		if c.Type != CommentNode && c.Type != OperationNode {
			t.Errorf("expected no Template node in the document tree, found %s", c.Type)
		}
	}
	if _, ok := registry.LookupTemplate(KindStyle, "Base"); !ok {
		t.Errorf("expected Base to be registered as a @Style template")
	}
}

func TestParseCustomSpecializationOps(t *testing.T) {
	// spec.md end-to-end scenario 5, parser-level: confirms delete/insert
	// ops are recorded on the Custom entity rather than applied eagerly
	// (that happens later, in component J's resolver).
	registry := NewRegistry()
	src := `[Template] @Element Card { div { div{} div{} div{} } }
[Custom]  @Element C2 { @Element Card; delete div[1]; insert after div[0] { span{} } }`
	_, h := Parse([]byte(src), "test.chtl", ParserOptions{AllowPartial: true}, registry, NewScopeManager(), DefaultConfiguration())
	if h.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", h.Diagnostics())
	}
	custom, ok := registry.LookupCustom(KindElement, "C2")
	if !ok {
		t.Fatalf("expected C2 to be registered as a @Element custom")
	}
	if len(custom.Ops) != 2 {
		t.Fatalf("expected 2 specialization ops, got %d: %+v", len(custom.Ops), custom.Ops)
	}
	if custom.Ops[0].Kind != DeleteProperty {
		t.Errorf("Ops[0].Kind = %v, want DeleteProperty (bare `delete div[1];` is an element delete-by-selector)", custom.Ops[0].Kind)
	}
	if custom.Ops[1].Kind != Insert || custom.Ops[1].Position != After {
		t.Errorf("Ops[1] = %+v, want an After Insert", custom.Ops[1])
	}
}

func TestParseDeleteInheritanceOpIsQualified(t *testing.T) {
	registry := NewRegistry()
	src := `[Namespace] ns {
	[Template] @Style A { color: red; }
	[Custom] @Style B { inherit @Style A; delete @Style A; }
}`
	_, h := Parse([]byte(src), "test.chtl", ParserOptions{AllowPartial: true}, registry, NewScopeManager(), DefaultConfiguration())
	if h.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", h.Diagnostics())
	}
	custom, ok := registry.LookupCustom(KindStyle, "ns.B")
	if !ok {
		t.Fatalf("expected ns.B to be registered as a @Style custom")
	}
	if len(custom.Inherits) != 1 || custom.Inherits[0] != "ns.A" {
		t.Fatalf("expected Inherits = [ns.A], got %v", custom.Inherits)
	}
	var deleteOp *SpecOp
	for i := range custom.Ops {
		if custom.Ops[i].Kind == DeleteInheritance {
			deleteOp = &custom.Ops[i]
		}
	}
	if deleteOp == nil {
		t.Fatalf("expected a DeleteInheritance op, got %+v", custom.Ops)
	}
	if deleteOp.Name != "ns.A" {
		t.Errorf("DeleteInheritance.Name = %q, want the namespace-qualified %q to match Inherits", deleteOp.Name, "ns.A")
	}
}

func TestParseNamedOriginUseSiteIsDeferred(t *testing.T) {
	// A bodyless `[Origin] @Type Name;` is a use-site reference, not an
	// eager lookup — see DESIGN.md's "Referencing a named Origin after the
	// fact". It must parse successfully even though nothing named "Reset"
	// has been registered yet in this same-file parse.
	doc, h := parse(t, `div { [Origin] @Style Reset; }`)
	if h.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", h.Diagnostics())
	}
	ref := findByType(doc, ReferenceNode)
	if ref == nil {
		t.Fatalf("expected a deferred ReferenceNode for the named Origin use-site")
	}
	if ref.RefKind != "Origin" || ref.RefName != "Reset" {
		t.Errorf("ref = %+v, want RefKind=Origin RefName=Reset", ref)
	}
}

func TestParseImportAliasIsCarried(t *testing.T) {
	doc, h := parse(t, `[Import] @Style from "reset.css" as reset;`)
	if h.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", h.Diagnostics())
	}
	var importNode *Node
	for _, c := range doc.Children() {
		if c.Type == OperationNode && c.Data == "import:@Style" {
			importNode = c
		}
	}
	if importNode == nil {
		t.Fatalf("expected an import:@Style operation node, got %v", doc.Children())
	}
	if importNode.OriginName != "reset" {
		t.Errorf("OriginName (alias carrier) = %q, want %q", importNode.OriginName, "reset")
	}
}

func TestParseContextSelectorInsideStyleBlock(t *testing.T) {
	// spec.md end-to-end scenario 3.
	doc, h := parse(t, `div { id: m; style { &:hover { color: blue; } } }`)
	if h.HasErrors() {
		t.Fatalf("unexpected parse errors: %v", h.Diagnostics())
	}
	sel := findByType(doc, SelectorNode)
	if sel == nil {
		t.Fatalf("expected a selector node for the &:hover rule")
	}
	if sel.SelectorText != "&:hover" {
		t.Errorf("SelectorText = %q, want %q", sel.SelectorText, "&:hover")
	}
}

func TestParseUnknownBracketedTagRecoversWithAllowPartial(t *testing.T) {
	doc, h := parse(t, `[NotARealBlock] foo { bar: 1; }
div { id: ok; }`)
	if !h.HasErrors() {
		t.Fatalf("expected an error for the unknown bracketed tag")
	}
	if findByTag(doc, "div") == nil {
		t.Errorf("expected parsing to recover and still produce the trailing div")
	}
}
