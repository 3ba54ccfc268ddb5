package chtl

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ImportKind is the tag on an Import record (spec.md §4.H).
type ImportKind int

const (
	ImportHTML ImportKind = iota
	ImportStyle
	ImportJavaScript
	ImportChtl
	ImportCJmod
	ImportConfig
	ImportSelectiveTemplate
	ImportSelectiveCustom
	ImportSelectiveOrigin
)

func (k ImportKind) String() string {
	switch k {
	case ImportHTML:
		return "@Html"
	case ImportStyle:
		return "@Style"
	case ImportJavaScript:
		return "@JavaScript"
	case ImportChtl:
		return "@Chtl"
	case ImportCJmod:
		return "@CJmod"
	case ImportConfig:
		return "@Config"
	case ImportSelectiveTemplate:
		return "[Template]"
	case ImportSelectiveCustom:
		return "[Custom]"
	case ImportSelectiveOrigin:
		return "[Origin]"
	}
	return "Invalid"
}

// ImportRecord is the (kind, logical_path, resolved_file_path?, alias?,
// namespace_path, resolved_node?) tuple spec.md §4 names.
type ImportRecord struct {
	Kind          ImportKind
	LogicalPath   string
	ResolvedPath  string
	Alias         string
	Namespace     string
	SelectiveName string // set for the [Template]|[Custom]|[Origin] selective forms
	Pos           Position
}

// CircularImportError names both files in the offending cycle.
type CircularImportError struct {
	From, To string
}

func (e *CircularImportError) Error() string {
	return fmt.Sprintf("circular import: %s imports %s, which is already being loaded", e.From, e.To)
}

// ModuleInfo is the parsed `info/<name>.chtl`'s `[Info]`/`[Export]` pair
// (spec.md §4.H "Packaged module format").
type ModuleInfo struct {
	Name             string
	Version          string
	Description      string
	Author           string
	License          string
	Category         string
	MinCHTLVersion   string
	MaxCHTLVersion   string
	Dependencies     []string
	Exports          map[string]bool // empty/nil means export everything
}

// ModuleLoader implements component H: search-path resolution, `.cmod`
// extraction, and the load() lifecycle. It is a plain struct threaded
// through a Compilation, not package state, mirroring Registry/ScopeManager.
type ModuleLoader struct {
	OfficialModuleRoot string // fixed compiler-provided "module/" root
	WorkingDir         string
	CacheRoot          string // extraction cache for .cmod archives

	registry *Registry
	config   *Configuration

	loadedFiles map[string]bool
	activeChain []string // stack of canonical paths currently being loaded
	extracted   map[string]string // content hash -> extraction dir, for idempotent reuse

	ReadFile func(path string) ([]byte, error)
}

func NewModuleLoader(registry *Registry, config *Configuration) *ModuleLoader {
	return &ModuleLoader{
		WorkingDir:  ".",
		CacheRoot:   filepath.Join(os.TempDir(), "chtl-cache"),
		registry:    registry,
		config:      config,
		loadedFiles: map[string]bool{},
		extracted:   map[string]string{},
		ReadFile:    os.ReadFile,
	}
}

// searchRoots returns the three ordered locations spec.md §4.H's "Search
// order for non-absolute paths" names.
func (l *ModuleLoader) searchRoots(importingFileDir string) []string {
	var roots []string
	if l.OfficialModuleRoot != "" {
		roots = append(roots, l.OfficialModuleRoot)
	}
	roots = append(roots, filepath.Join(l.WorkingDir, "module"))
	roots = append(roots, importingFileDir)
	return roots
}

// Resolve finds the file a logical import path refers to, applying the
// `.cmod` > `.chtl` extension preference and the `chtl::` official-module
// prefix.
func (l *ModuleLoader) Resolve(logicalPath, importingFileDir string) (string, error) {
	official := strings.HasPrefix(logicalPath, "chtl::")
	bare := strings.TrimPrefix(logicalPath, "chtl::")

	if filepath.IsAbs(bare) {
		if fileExists(bare) {
			return bare, nil
		}
		return "", fmt.Errorf("import not found: %s", logicalPath)
	}

	roots := l.searchRoots(importingFileDir)
	if official {
		roots = []string{l.OfficialModuleRoot}
	}

	candidates := make([]string, 0, 4)
	hasExt := filepath.Ext(bare) != ""
	for _, root := range roots {
		if root == "" {
			continue
		}
		if hasExt {
			candidates = append(candidates, filepath.Join(root, bare))
			continue
		}
		candidates = append(candidates, filepath.Join(root, bare+".cmod"))
		candidates = append(candidates, filepath.Join(root, bare+".chtl"))
	}
	for _, c := range candidates {
		if fileExists(c) {
			return c, nil
		}
	}
	// fall back to a glob search within each root, for nested sub-modules.
	for _, root := range roots {
		if root == "" {
			continue
		}
		matches, _ := doublestar.Glob(os.DirFS(root), "**/"+filepath.Base(bare)+".{cmod,chtl}")
		if len(matches) > 0 {
			return filepath.Join(root, matches[0]), nil
		}
	}
	return "", fmt.Errorf("import not found: %s", logicalPath)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// canonicalPath makes path absolute and resolves `.`/`..` so
// loadedFiles/activeChain compare cleanly regardless of how the path was
// spelled at the call site. Symlinks are not resolved.
func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// Enter pushes path onto the active loading chain, failing with
// CircularImportError if it is already present (spec.md §4.H step 3).
func (l *ModuleLoader) Enter(path string) error {
	canon := canonicalPath(path)
	for _, active := range l.activeChain {
		if active == canon {
			from := ""
			if len(l.activeChain) > 0 {
				from = l.activeChain[len(l.activeChain)-1]
			}
			return &CircularImportError{From: from, To: canon}
		}
	}
	l.activeChain = append(l.activeChain, canon)
	return nil
}

func (l *ModuleLoader) Leave() {
	if len(l.activeChain) == 0 {
		return
	}
	l.activeChain = l.activeChain[:len(l.activeChain)-1]
}

func (l *ModuleLoader) IsLoaded(path string) bool {
	return l.loadedFiles[canonicalPath(path)]
}

func (l *ModuleLoader) MarkLoaded(path string) {
	l.loadedFiles[canonicalPath(path)] = true
}

// ExtractCmod unpacks a `.cmod` zip archive into an idempotent cache
// directory: repeated extraction of the same archive content reuses the
// same directory rather than leaking a new one per compile.
func (l *ModuleLoader) ExtractCmod(archivePath string) (string, error) {
	data, err := l.ReadFile(archivePath)
	if err != nil {
		return "", err
	}
	contentHash := HashFromSource(string(data))
	if dir, ok := l.extracted[contentHash]; ok {
		return dir, nil
	}
	dir := filepath.Join(l.CacheRoot, cacheDirName(contentHash))
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		l.extracted[contentHash] = dir
		return dir, nil
	}

	// Extract into a uniquely-named scratch directory and rename it into
	// place once complete, the way the original CMODLoader stages through
	// a temp file before committing (CMODLoader.cpp's tempInfoPath): a
	// crash mid-extraction, or a second concurrent compile racing the
	// same archive, then never observes a half-populated content-hash
	// directory.
	staging := filepath.Join(l.CacheRoot, cacheDirName(""))
	zr, err := zip.NewReader(strings.NewReader(string(data)), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("invalid .cmod archive %s: %w", archivePath, err)
	}
	for _, f := range zr.File {
		target := filepath.Join(staging, f.Name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", err
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		out, err := os.Create(target)
		if err != nil {
			rc.Close()
			return "", err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return "", copyErr
		}
	}
	if err := os.Rename(staging, dir); err != nil {
		os.RemoveAll(staging)
		if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
			l.extracted[contentHash] = dir
			return dir, nil
		}
		return "", fmt.Errorf("committing extracted module to %s: %w", dir, err)
	}
	l.extracted[contentHash] = dir
	return dir, nil
}

// ParseModuleInfo reads the recognized keys from an `info/<name>.chtl`
// file's `[Info]`/`[Export]` blocks. It does a small bespoke scan rather
// than a full lex+parse: `[Info]`/`[Export]` bodies are flat key=value (or
// bare-name) lists, not general CHTL syntax.
func ParseModuleInfo(source string) (*ModuleInfo, error) {
	info := &ModuleInfo{Exports: map[string]bool{}}
	inInfo, inExport := false, false
	for _, rawLine := range strings.Split(source, "\n") {
		line := strings.TrimSpace(rawLine)
		switch {
		case strings.HasPrefix(line, "[Info]"):
			inInfo, inExport = true, false
			continue
		case strings.HasPrefix(line, "[Export]"):
			inInfo, inExport = false, true
			continue
		case line == "}":
			inInfo, inExport = false, false
			continue
		case line == "" || line == "{":
			continue
		}
		switch {
		case inInfo:
			key, value, ok := splitInfoAssignment(line)
			if !ok {
				continue
			}
			switch key {
			case "name":
				info.Name = value
			case "version":
				info.Version = value
			case "description":
				info.Description = value
			case "author":
				info.Author = value
			case "license":
				info.License = value
			case "category":
				info.Category = value
			case "minCHTLVersion":
				info.MinCHTLVersion = value
			case "maxCHTLVersion":
				info.MaxCHTLVersion = value
			case "dependencies":
				for _, dep := range strings.Split(value, ",") {
					dep = strings.TrimSpace(dep)
					if dep != "" {
						info.Dependencies = append(info.Dependencies, dep)
					}
				}
			}
		case inExport:
			name := strings.TrimSuffix(strings.TrimSpace(line), ";")
			if name != "" {
				info.Exports[name] = true
			}
		}
	}
	return info, nil
}

func splitInfoAssignment(line string) (key, value string, ok bool) {
	line = strings.TrimSuffix(line, ";")
	i := strings.Index(line, "=")
	if i < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:i])
	value = strings.TrimSpace(line[i+1:])
	value = strings.Trim(value, `"'`)
	return key, value, true
}

// CanExport reports whether name is visible outside a module per its
// parsed [Export] block (nil/empty block means "export everything").
func (m *ModuleInfo) CanExport(name string) bool {
	if len(m.Exports) == 0 {
		return true
	}
	return m.Exports[name]
}
