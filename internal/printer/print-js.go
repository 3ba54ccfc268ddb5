package printer

import (
	"fmt"

	chtl "github.com/chtl-lang/chtl/internal"
	"github.com/chtl-lang/chtl/internal/js_scanner"
	"github.com/chtl-lang/chtl/internal/loc"
)

// collectScript appends one script{} body to the JS channel, invoking the
// CHTL-JS hook first and then wrapping in an IIFE unless the body exports
// top-level bindings a wrapper would hide (spec.md §4.L "JavaScript", §6
// "CHTL-JS hook").
func (p *printer) collectScript(n *chtl.Node) {
	raw := n.Data
	env := ScriptEnv{
		ElementID:    enclosingID(n),
		ElementClass: enclosingClass(n),
		Config:       p.config,
		Registry:     p.registry,
	}

	js := raw
	if p.opts.ScriptHook != nil {
		js = p.runHook(raw, env)
	}

	p.appendJSBody(js)
}

// runHook invokes the CHTL-JS sub-compiler and folds its diagnostics into
// the handler; errors abort only this script body's contribution, per
// spec.md §7's "resolution errors abort their enclosing node" policy.
func (p *printer) runHook(raw string, env ScriptEnv) string {
	js, diags := p.opts.ScriptHook(raw, env)
	failed := false
	for _, d := range diags {
		msg := d
		if msg.Severity == loc.ErrorSeverity {
			p.handler.AppendError(fmt.Errorf("%s", msg.Text))
			failed = true
		} else {
			p.handler.AppendWarning(fmt.Errorf("%s", msg.Text))
		}
	}
	if failed {
		return ""
	}
	return js
}

func (p *printer) appendJSBody(js string) {
	if js == "" {
		return
	}
	if js_scanner.HasExports([]byte(js)) {
		p.printlnJS(js)
		return
	}
	p.printlnJS("(function () {")
	p.printlnJS(js)
	p.printlnJS("})();")
}

func enclosingID(n *chtl.Node) string {
	if n.Parent != nil {
		return n.Parent.ID
	}
	return ""
}

func enclosingClass(n *chtl.Node) string {
	if n.Parent != nil {
		return n.Parent.ClassAttr()
	}
	return ""
}
