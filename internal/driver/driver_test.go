package driver_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chtl-lang/chtl/internal/driver"
)

// writeFiles materializes a small file tree under a fresh temp directory,
// since ModuleLoader.Resolve stats real paths rather than going through an
// injectable filesystem.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestCompileImportsChtlFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"main.chtl":   `[Import] @Chtl from "button.chtl"; div { @Element Button; }`,
		"button.chtl": `[Template] @Element Button { button { text { "click" } } }`,
	})
	result, err := driver.Compile(filepath.Join(dir, "main.chtl"), driver.Options{WorkingDir: dir})
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	if !result.Success() {
		t.Fatalf("expected success, diagnostics: %v", result.Diagnostics)
	}
	if !strings.Contains(result.HTML, "<button>click</button>") {
		t.Errorf("expected imported template expansion in HTML, got %q", result.HTML)
	}
}

func TestCompileDetectsCircularImport(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.chtl": `[Import] @Chtl from "b.chtl";`,
		"b.chtl": `[Import] @Chtl from "a.chtl";`,
	})
	result, err := driver.Compile(filepath.Join(dir, "a.chtl"), driver.Options{WorkingDir: dir})
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	if result.Success() {
		t.Fatalf("expected circular import to fail compilation")
	}
	found := false
	for _, d := range result.Diagnostics {
		if strings.Contains(d.Text, "circular import") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a circular-import diagnostic, got %v", result.Diagnostics)
	}
}

func TestCompileImportsRawStyleUnderAlias(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"main.chtl": `[Import] @Style from "reset.css" as reset;
[Origin] @Style reset;`,
		"reset.css": `body { margin: 0; }`,
	})
	result, err := driver.Compile(filepath.Join(dir, "main.chtl"), driver.Options{WorkingDir: dir})
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	if !result.Success() {
		t.Fatalf("expected success, diagnostics: %v", result.Diagnostics)
	}
	if !strings.Contains(result.CSS, "body {") || !strings.Contains(result.CSS, "margin: 0;") {
		t.Errorf("expected raw-imported stylesheet content in CSS, got %q", result.CSS)
	}
}

func TestCompileMissingImportReportsFileNotFound(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"main.chtl": `[Import] @Chtl from "missing.chtl";`,
	})
	result, err := driver.Compile(filepath.Join(dir, "main.chtl"), driver.Options{WorkingDir: dir})
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	if result.Success() {
		t.Fatalf("expected missing import to fail compilation")
	}
}
