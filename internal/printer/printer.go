// Package printer is the code generator (component L, spec.md §4.L): it
// walks a resolved document and emits the HTML/CSS/JS tri-channel output.
// The package also provides DumpJSON, a JSON dump of the AST, which
// Generate does not call.
package printer

import (
	"fmt"
	"regexp"
	"strings"

	chtl "github.com/chtl-lang/chtl/internal"
	"github.com/chtl-lang/chtl/internal/handler"
	"github.com/chtl-lang/chtl/internal/loc"
	"github.com/chtl-lang/chtl/internal/transform"
)

// ScriptEnv is passed to the CHTL-JS hook for every script{} body
// (spec.md §6 "CHTL-JS hook").
type ScriptEnv struct {
	ElementID    string
	ElementClass string
	Config       *chtl.Configuration
	Registry     *chtl.Registry
}

// ScriptHook is the externally provided CHTL-JS sub-compiler contract:
// transform(source, context) -> (js, diagnostics). A nil hook means
// script bodies pass through unchanged (spec.md §6).
type ScriptHook func(raw string, env ScriptEnv) (js string, diagnostics []loc.DiagnosticMessage)

// Options configures one Generate call.
type Options struct {
	ScriptHook  ScriptHook
	LineEnding  string // default "\n", per spec.md §6
	IndexOffset int    // Configuration.IndexInitialCount, for ordinal selectors already resolved upstream; not read by Generate or DumpJSON
}

// Result is the three generated channels. Diagnostics raised during
// generation itself (mostly late variable-substitution warnings) go to the
// Handler passed to Generate.
type Result struct {
	HTML string
	CSS  string
	JS   string
}

type printer struct {
	opts     Options
	registry *chtl.Registry
	config   *chtl.Configuration
	handler  *handler.Handler
	html     strings.Builder
	js       strings.Builder
	hoisted  []transform.HoistedRule
	varRef   *regexp.Regexp
}

var groupRefExp = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\(\s*([A-Za-z_][A-Za-z0-9_]*)\s*(?:=\s*([^)]*))?\)`)

// Generate walks doc (already passed through component J's Resolve and
// component K's ScopeLocalStyles) and emits HTML, CSS and JS.
func Generate(doc *chtl.Node, registry *chtl.Registry, config *chtl.Configuration, scoped transform.ScopeResult, h *handler.Handler, opts Options) Result {
	if opts.LineEnding == "" {
		opts.LineEnding = "\n"
	}
	p := &printer{opts: opts, registry: registry, config: config, handler: h, hoisted: scoped.Rules, varRef: groupRefExp}
	p.printDocument(doc)
	css := p.renderCSS(doc)
	return Result{
		HTML: normalizeLineEndings(p.html.String(), opts.LineEnding),
		CSS:  normalizeLineEndings(css, opts.LineEnding),
		JS:   normalizeLineEndings(p.js.String(), opts.LineEnding),
	}
}

func normalizeLineEndings(s, ending string) string {
	if ending == "\n" {
		return s
	}
	return strings.ReplaceAll(s, "\n", ending)
}

func (p *printer) print(s string)                       { p.html.WriteString(s) }
func (p *printer) printf(format string, a ...interface{}) { p.html.WriteString(fmt.Sprintf(format, a...)) }

func (p *printer) printJS(s string)  { p.js.WriteString(s) }
func (p *printer) printlnJS(s string) { p.js.WriteString(s); p.js.WriteString("\n") }

// lateSubstitute resolves any Group(name) text surviving into a final
// string value at emission time (spec.md §4.L "Variable-reference late
// substitution"). Component J already resolves every VariableRefAttribute
// eagerly; this catches raw text that never passed through that attribute
// path (e.g. a literal written directly inside a text node) and is the last
// chance before the bytes leave the compiler. It is applied to text nodes,
// HTML attribute values and CSS property values; [Origin] bodies are
// emitted without it.
func (p *printer) lateSubstitute(s string, pos chtl.Position) string {
	if !strings.Contains(s, "(") {
		return s
	}
	return p.varRef.ReplaceAllStringFunc(s, func(match string) string {
		sub := p.varRef.FindStringSubmatch(match)
		group, name, def := sub[1], sub[2], sub[3]
		resolved := p.registry.LookupEither(chtl.KindVar, group)
		var body *chtl.Node
		if resolved.Custom != nil {
			body = resolved.Custom.Body
		} else if resolved.Template != nil {
			body = resolved.Template.Body
		}
		if body != nil {
			for _, prop := range body.Children() {
				if prop.Type != chtl.PropertyNode {
					continue
				}
				if val, ok := prop.Attribute(name); ok {
					return val.Val
				}
			}
		}
		if def != "" {
			return def
		}
		p.handler.AppendWarning(&loc.ErrorWithRange{
			Code: loc.WARNING_UNRESOLVED_VARIABLE,
			Text: fmt.Sprintf("variable %s(%s) could not be resolved", group, name),
			Range: loc.Range{Loc: loc.Loc{Start: pos.Offset}, Len: len(match)},
		})
		return match
	})
}
