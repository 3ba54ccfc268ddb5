// Package driver is the top-level compilation entry point (spec.md §5/§7):
// it owns one Registry/ScopeManager/Configuration per compilation and
// wires lexing, parsing, import resolution, the Template/Custom resolver
// (component J), local-style automation (component K) and the generator
// (component L) into the single `(outputs, diagnostics)` contract. It sits
// above `internal` the way the teacher's root `main.go` sits above
// `internal`/`transform` as the only place that is allowed to import all
// three without creating an import cycle (`internal/transform` and
// `internal/printer` both import `internal`, so the glue code cannot live
// inside `internal` itself).
package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chtl "github.com/chtl-lang/chtl/internal"
	"github.com/chtl-lang/chtl/internal/handler"
	"github.com/chtl-lang/chtl/internal/loc"
	"github.com/chtl-lang/chtl/internal/printer"
	"github.com/chtl-lang/chtl/internal/transform"
)

// Options configures one compilation (spec.md §6 "CLI").
type Options struct {
	ScriptHook         printer.ScriptHook
	LineEnding         string
	OfficialModuleRoot string
	WorkingDir         string
	ReadFile           func(path string) ([]byte, error)
}

// Result is what a compilation produces: the three generated channels
// plus every diagnostic raised across all phases, grouped by severity
// (errors first) as handler.Diagnostics returns them (spec.md §7).
type Result struct {
	HTML        string
	CSS         string
	JS          string
	Diagnostics []loc.DiagnosticMessage
}

// Success reports spec.md §7's success criterion: no error-severity
// diagnostic of kind lexical, syntactic, resolution, or module/IO.
func (r Result) Success() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == loc.ErrorSeverity {
			return false
		}
	}
	return true
}

// Compile reads, lexes, parses and resolves entryFile (recursively loading
// its imports), then generates HTML/CSS/JS.
func Compile(entryFile string, opts Options) (Result, error) {
	if opts.ReadFile == nil {
		opts.ReadFile = os.ReadFile
	}
	source, err := opts.ReadFile(entryFile)
	if err != nil {
		return Result{}, fmt.Errorf("reading %s: %w", entryFile, err)
	}
	return CompileSource(source, entryFile, opts)
}

// CompileSource is Compile for source already in memory (e.g. from a REPL
// or editor integration rather than a file on disk).
func CompileSource(source []byte, filename string, opts Options) (Result, error) {
	registry := chtl.NewRegistry()
	config := chtl.DefaultConfiguration()
	loader := chtl.NewModuleLoader(registry, config)
	if opts.OfficialModuleRoot != "" {
		loader.OfficialModuleRoot = opts.OfficialModuleRoot
	}
	if opts.WorkingDir != "" {
		loader.WorkingDir = opts.WorkingDir
	}
	if opts.ReadFile != nil {
		loader.ReadFile = opts.ReadFile
	}

	c := &compilation{registry: registry, config: config, loader: loader, opts: opts}
	doc, h, err := c.parseAndLoad(source, filename)
	if err != nil {
		// The entry file itself cannot legitimately cycle (the active chain
		// is empty when it starts), but Enter is defensive regardless of
		// call site.
		h = handler.NewHandler(string(source), filename)
		h.AppendError(&loc.ErrorWithRange{Code: loc.ERROR_CIRCULAR_IMPORT, Text: err.Error()})
		return Result{Diagnostics: h.Diagnostics()}, nil
	}

	doc = transform.Resolve(doc, registry, config, h)
	scoped := transform.ScopeLocalStyles(doc, config, h)
	gen := printer.Generate(doc, registry, config, scoped, h, printer.Options{
		ScriptHook: opts.ScriptHook,
		LineEnding: opts.LineEnding,
	})

	return Result{
		HTML:        gen.HTML,
		CSS:         gen.CSS,
		JS:          gen.JS,
		Diagnostics: h.Diagnostics(),
	}, nil
}

type compilation struct {
	registry *chtl.Registry
	config   *chtl.Configuration
	loader   *chtl.ModuleLoader
	opts     Options
}

// parseAndLoad parses one file and depth-first resolves every [Import] it
// declares before returning (spec.md §4.H, §5 "Ordering between sibling
// imports is strictly document order. Dependency loading is depth-first").
// It pushes filename onto the loader's active chain for the duration of the
// call — including for the entry file — so a cycle anywhere in the import
// graph (not just a direct A-imports-B-imports-A pair) is caught by Enter
// before this file is ever marked loaded; marking loaded only happens once
// the whole subtree has finished, so a diamond import (two siblings
// importing the same third file) still short-circuits via registry.IsLoaded
// in importChtl without tripping the cycle check.
func (c *compilation) parseAndLoad(source []byte, filename string) (*chtl.Node, *handler.Handler, error) {
	if err := c.loader.Enter(filename); err != nil {
		return nil, nil, err
	}
	defer c.loader.Leave()

	doc, h := chtl.Parse(source, filename, chtl.ParserOptions{AllowPartial: true}, c.registry, chtl.NewScopeManager(), c.config)

	dir := filepath.Dir(filename)
	for _, n := range importNodes(doc) {
		c.resolveImport(n, dir, h)
	}

	c.registry.MarkLoaded(filename)
	c.loader.MarkLoaded(filename)
	return doc, h, nil
}

// importNodes collects the top-level [Import] operation nodes the parser
// emitted (parseImportDecl produces an OperationNode tagged "import:<kind>").
func importNodes(doc *chtl.Node) []*chtl.Node {
	var out []*chtl.Node
	for _, c := range doc.Children() {
		if c.Type == chtl.OperationNode && strings.HasPrefix(c.Data, "import:") {
			out = append(out, c)
		}
	}
	return out
}

func (c *compilation) resolveImport(n *chtl.Node, importingDir string, h *handler.Handler) {
	kindName := strings.TrimPrefix(n.Data, "import:")
	logicalPath := n.RefName
	if logicalPath == "" {
		return
	}

	resolvedPath, err := c.loader.Resolve(logicalPath, importingDir)
	if err != nil {
		h.AppendError(&loc.ErrorWithRange{
			Code:  loc.ERROR_FILE_NOT_FOUND,
			Text:  fmt.Sprintf("import %q could not be resolved: %s", logicalPath, err),
			Range: loc.Range{Loc: loc.Loc{Start: n.Pos.Offset}},
		})
		return
	}

	switch kindName {
	case "@Chtl":
		c.importChtl(resolvedPath, n, h)
	case "@Html", "@Style", "@JavaScript":
		c.importRaw(resolvedPath, kindName, n, h)
	case "@Config":
		c.importConfig(resolvedPath, h)
	case "@CJmod":
		// A packaged JS-extension module is opaque to this core
		// (spec.md §4.H): only its exported names would matter, and
		// nothing downstream currently consumes CJMOD exports, so
		// resolving the path is enough to mark it loaded.
		c.registry.MarkLoaded(resolvedPath)
	case "[Template]", "[Custom]", "[Origin]":
		c.importSelective(resolvedPath, n, h)
	}
}

// importChtl implements `@Chtl from "P"`: lex + parse P, registering its
// top-level declarations under the current namespace (spec.md §4.H).
func (c *compilation) importChtl(resolvedPath string, n *chtl.Node, h *handler.Handler) {
	if c.registry.IsLoaded(resolvedPath) {
		return
	}

	data, err := c.opts.readFile()(resolvedPath)
	if err != nil {
		h.AppendError(&loc.ErrorWithRange{
			Code:  loc.ERROR_FILE_UNREADABLE,
			Text:  fmt.Sprintf("could not read %s: %s", resolvedPath, err),
			Range: loc.Range{Loc: loc.Loc{Start: n.Pos.Offset}},
		})
		return
	}
	_, childHandler, err := c.parseAndLoad(data, resolvedPath)
	if err != nil {
		h.AppendError(&loc.ErrorWithRange{
			Code:  loc.ERROR_CIRCULAR_IMPORT,
			Text:  err.Error(),
			Range: loc.Range{Loc: loc.Loc{Start: n.Pos.Offset}},
		})
		return
	}
	h.Merge(childHandler)
}

// importRaw implements `@Html|@Style|@JavaScript from "P"`: the file is
// read as raw text and registered as an anonymous Origin under the alias
// or file-stem name (spec.md §4.H).
func (c *compilation) importRaw(resolvedPath, kindName string, n *chtl.Node, h *handler.Handler) {
	data, err := c.opts.readFile()(resolvedPath)
	if err != nil {
		h.AppendError(&loc.ErrorWithRange{
			Code:  loc.ERROR_FILE_UNREADABLE,
			Text:  fmt.Sprintf("could not read %s: %s", resolvedPath, err),
			Range: loc.Range{Loc: loc.Loc{Start: n.Pos.Offset}},
		})
		return
	}
	originType := map[string]string{"@Html": "Html", "@Style": "Style", "@JavaScript": "JavaScript"}[kindName]
	name := n.OriginName // the alias, if `as alias` was written
	if name == "" {
		name = stemName(resolvedPath)
	}
	c.registry.RegisterOrigin(&chtl.OriginEntity{Name: name, Type: originType, RawText: string(data)})
	c.registry.MarkLoaded(resolvedPath)
}

// importConfig implements `@Config from "P"`: P is a Configuration
// document; parsing it populates Configuration options the same way an
// inline [Configuration] block would, and those are merged into the
// active configuration (spec.md §4.H, §4.I).
func (c *compilation) importConfig(resolvedPath string, h *handler.Handler) {
	data, err := c.opts.readFile()(resolvedPath)
	if err != nil {
		h.AppendError(&loc.ErrorWithRange{
			Code: loc.ERROR_FILE_UNREADABLE,
			Text: fmt.Sprintf("could not read %s: %s", resolvedPath, err),
		})
		return
	}
	imported := chtl.DefaultConfiguration()
	_, _ = chtl.Parse(data, resolvedPath, chtl.ParserOptions{AllowPartial: true}, chtl.NewRegistry(), chtl.NewScopeManager(), imported)
	c.config.Merge(imported)
	c.registry.MarkLoaded(resolvedPath)
}

// importSelective implements the `[Template|Custom|Origin] @K Name from
// "P"` form: P is loaded transiently (its own declarations never escape
// into the importer's registry) except for the single named entity, which
// is registered the way a directly-written declaration would be.
func (c *compilation) importSelective(resolvedPath string, n *chtl.Node, h *handler.Handler) {
	data, err := c.opts.readFile()(resolvedPath)
	if err != nil {
		h.AppendError(&loc.ErrorWithRange{
			Code: loc.ERROR_FILE_UNREADABLE,
			Text: fmt.Sprintf("could not read %s: %s", resolvedPath, err),
		})
		return
	}
	transient := chtl.NewRegistry()
	_, _ = chtl.Parse(data, resolvedPath, chtl.ParserOptions{AllowPartial: true}, transient, chtl.NewScopeManager(), chtl.DefaultConfiguration())

	kindName := strings.TrimPrefix(n.Data, "import:")
	name := n.SelectorText
	switch kindName {
	case "[Template]":
		for _, kind := range []chtl.EntityKind{chtl.KindStyle, chtl.KindElement, chtl.KindVar} {
			if t, ok := transient.LookupTemplate(kind, name); ok {
				c.registry.RegisterTemplate(t)
			}
		}
	case "[Custom]":
		for _, kind := range []chtl.EntityKind{chtl.KindStyle, chtl.KindElement, chtl.KindVar} {
			if t, ok := transient.LookupCustom(kind, name); ok {
				c.registry.RegisterCustom(t)
			}
		}
	case "[Origin]":
		if o, ok := transient.LookupOrigin(name); ok {
			c.registry.RegisterOrigin(o)
		}
	}
}

func (o Options) readFile() func(string) ([]byte, error) {
	if o.ReadFile != nil {
		return o.ReadFile
	}
	return os.ReadFile
}

func stemName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
