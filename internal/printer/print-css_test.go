package printer_test

import (
	"strings"
	"testing"
)

func TestGenerateOriginStyleMergesWithHoistedSelector(t *testing.T) {
	result := compile(t, `
		div { style { .card { color: red; } } }
		[Origin] @Style { .card { border: 1px solid black; } .extra { margin: 0; } }
	`)
	if !strings.Contains(result.CSS, "color: red;") || !strings.Contains(result.CSS, "border: 1px solid black;") {
		t.Errorf("expected .card rule to merge hoisted and Origin properties, got %q", result.CSS)
	}
	if !strings.Contains(result.CSS, ".extra {") {
		t.Errorf("expected Origin-only selector .extra to appear, got %q", result.CSS)
	}
}

func TestGenerateOriginStyleWithAtRuleFallsBackToVerbatim(t *testing.T) {
	result := compile(t, `[Origin] @Style { @media (min-width: 600px) { .card { color: blue; } } }`)
	if !strings.Contains(result.CSS, "@media") {
		t.Errorf("expected at-rule body to be passed through verbatim, got %q", result.CSS)
	}
}
