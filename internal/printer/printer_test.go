package printer_test

import (
	"strings"
	"testing"

	chtl "github.com/chtl-lang/chtl/internal"
	"github.com/chtl-lang/chtl/internal/printer"
	"github.com/chtl-lang/chtl/internal/transform"
	"github.com/google/go-cmp/cmp"
)

func compile(t *testing.T, source string) printer.Result {
	t.Helper()
	registry := chtl.NewRegistry()
	scope := chtl.NewScopeManager()
	config := chtl.DefaultConfiguration()
	doc, h := chtl.Parse([]byte(source), "test.chtl", chtl.ParserOptions{}, registry, scope, config)
	if h.HasErrors() {
		t.Fatalf("parse errors: %v", h.Errors())
	}
	doc = transform.Resolve(doc, registry, config, h)
	if h.HasErrors() {
		t.Fatalf("resolve errors: %v", h.Errors())
	}
	scoped := transform.ScopeLocalStyles(doc, config, h)
	return printer.Generate(doc, registry, config, scoped, h, printer.Options{})
}

func TestGenerateSimpleElement(t *testing.T) {
	result := compile(t, `div { text { "hello" } }`)
	want := "<div>hello</div>"
	if diff := cmp.Diff(want, strings.TrimSpace(result.HTML)); diff != "" {
		t.Errorf("HTML mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateSelfClosingElement(t *testing.T) {
	result := compile(t, `img { src = "a.png"; }`)
	if !strings.Contains(result.HTML, "<img") || !strings.HasSuffix(strings.TrimSpace(result.HTML), "/>") {
		t.Errorf("expected self-closing <img />, got %q", result.HTML)
	}
}

func TestGenerateHoistedClassRule(t *testing.T) {
	result := compile(t, `div { style { .card { color: red; } } }`)
	if !strings.Contains(result.HTML, `class="card"`) {
		t.Errorf("expected auto class card on element, got HTML %q", result.HTML)
	}
	if !strings.Contains(result.CSS, ".card {") || !strings.Contains(result.CSS, "color: red;") {
		t.Errorf("expected hoisted .card rule in CSS, got %q", result.CSS)
	}
}

func TestGenerateEscapesAttributesAndText(t *testing.T) {
	result := compile(t, `div { title = "a & b < c"; text { "<script>" } }`)
	if !strings.Contains(result.HTML, "a &amp; b &lt; c") {
		t.Errorf("expected escaped attribute value, got %q", result.HTML)
	}
	if !strings.Contains(result.HTML, "&lt;script&gt;") {
		t.Errorf("expected escaped text node, got %q", result.HTML)
	}
}

func TestGenerateScriptWrappedInIIFE(t *testing.T) {
	result := compile(t, `div { script { var x = 1; } }`)
	if !strings.Contains(result.JS, "(function () {") {
		t.Errorf("expected IIFE wrapper for non-exporting script, got %q", result.JS)
	}
}

func TestGenerateScriptWithExportsNotWrapped(t *testing.T) {
	result := compile(t, `div { script { export const x = 1; } }`)
	if strings.Contains(result.JS, "(function () {") {
		t.Errorf("script with top-level export must not be IIFE-wrapped, got %q", result.JS)
	}
}

func TestGenerateOriginHtmlPassthrough(t *testing.T) {
	result := compile(t, `[Origin] @Html { <b>raw</b> }`)
	if !strings.Contains(result.HTML, "<b>raw</b>") {
		t.Errorf("expected verbatim Origin @Html passthrough, got %q", result.HTML)
	}
}

func TestDumpJSONRoundTrips(t *testing.T) {
	registry := chtl.NewRegistry()
	scope := chtl.NewScopeManager()
	config := chtl.DefaultConfiguration()
	doc, h := chtl.Parse([]byte("div {}"), "test.chtl", chtl.ParserOptions{}, registry, scope, config)
	if h.HasErrors() {
		t.Fatalf("parse errors: %v", h.Errors())
	}
	data, err := printer.DumpJSON(doc)
	if err != nil {
		t.Fatalf("DumpJSON error: %v", err)
	}
	if !strings.Contains(string(data), `"type":"Document"`) {
		t.Errorf("expected document root in dump, got %q", data)
	}
}
