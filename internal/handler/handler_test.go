package handler_test

import (
	"testing"

	"github.com/chtl-lang/chtl/internal/handler"
	"github.com/chtl-lang/chtl/internal/loc"
)

func TestMergeFoldsInChildDiagnostics(t *testing.T) {
	parent := handler.NewHandler("parent source", "parent.chtl")
	parent.AppendError(&loc.ErrorWithRange{Code: loc.ERROR_UNEXPECTED_TOKEN, Text: "parent error"})

	child := handler.NewHandler("child source", "child.chtl")
	child.AppendError(&loc.ErrorWithRange{Code: loc.ERROR_UNDEFINED_REFERENCE, Text: "child error"})
	child.AppendWarning(&loc.ErrorWithRange{Code: loc.WARNING_UNRESOLVED_VARIABLE, Text: "child warning"})

	parent.Merge(child)

	if !parent.HasErrors() {
		t.Fatalf("expected parent.HasErrors() to be true after merging a failing child")
	}
	errs := parent.Errors()
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors after merge, got %d: %v", len(errs), errs)
	}

	all := parent.Diagnostics()
	var sawChildWarning bool
	for _, d := range all {
		if d.Text == "child warning" && d.Severity == loc.WarningSeverity {
			sawChildWarning = true
		}
	}
	if !sawChildWarning {
		t.Errorf("expected child warning to be present in merged diagnostics, got %v", all)
	}
}

func TestMergeOnCleanChildLeavesParentUnaffected(t *testing.T) {
	parent := handler.NewHandler("parent source", "parent.chtl")
	child := handler.NewHandler("child source", "child.chtl")

	parent.Merge(child)

	if parent.HasErrors() {
		t.Errorf("merging a clean child must not introduce errors")
	}
	if len(parent.Diagnostics()) != 0 {
		t.Errorf("expected no diagnostics, got %v", parent.Diagnostics())
	}
}
