package chtl

import (
	"fmt"
	"strings"
)

// EntityKind is the style/element/var axis of Template and Custom
// entities (spec.md §3).
type EntityKind int

const (
	KindStyle EntityKind = iota
	KindElement
	KindVar
)

func (k EntityKind) String() string {
	switch k {
	case KindStyle:
		return "Style"
	case KindElement:
		return "Element"
	case KindVar:
		return "Var"
	}
	return "Invalid"
}

func ParseEntityKind(s string) (EntityKind, bool) {
	switch s {
	case "Style":
		return KindStyle, true
	case "Element":
		return KindElement, true
	case "Var":
		return KindVar, true
	}
	return 0, false
}

// TemplateEntity is the (name, kind, namespace, inheritance, params, body)
// tuple spec.md §3 defines. CustomEntity embeds it and adds specialization.
type TemplateEntity struct {
	Name          string
	Kind          EntityKind
	Namespace     string
	Inherits      []string // qualified names, in "inherit" declaration order
	Params        map[string]string
	RequiredParams []string
	IsAbstract    bool
	Body          *Node
	declOrder     int // registration order, used to break Template/Custom bare-name ties
}

func (t *TemplateEntity) Qualified() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// CustomEntity is a Template entity plus specialization operations.
type CustomEntity struct {
	TemplateEntity
	Ops                  []SpecOp
	AllowsSpecialization bool
}

// OriginEntity is a raw pass-through block (spec.md §3).
type OriginEntity struct {
	Name      string
	Type      string // Html | Style | JavaScript | a user-defined type
	Namespace string
	RawText   string
}

func (o *OriginEntity) Qualified() string {
	if o.Namespace == "" {
		return o.Name
	}
	return o.Namespace + "." + o.Name
}

// ConflictError is returned when a qualified name collides within the
// same (category, kind) pair (spec.md §3 invariant 3).
type ConflictError struct {
	Category string
	Name     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting registration: %s %q is already defined", e.Category, e.Name)
}

// Registry is the process-wide — but never actually global — store spec.md
// §3/§4.F describes: per the Design Notes, it is a plain struct threaded
// explicitly as part of a Compilation value, one per compilation, never
// shared (spec.md §5).
type Registry struct {
	templates map[EntityKind]map[string]*TemplateEntity
	customs   map[EntityKind]map[string]*CustomEntity
	origins   map[string]*OriginEntity
	loadedFiles map[string]bool
	namespaces  map[string]*Namespace
	currentNamespace string
	declCounter int
}

// Namespace is a `.`-joined path with parent/children/exports.
type Namespace struct {
	Name     string
	Parent   string
	Children []string
	Exports  map[string]bool // empty/nil means "export everything"
}

func NewRegistry() *Registry {
	r := &Registry{
		templates:   map[EntityKind]map[string]*TemplateEntity{KindStyle: {}, KindElement: {}, KindVar: {}},
		customs:     map[EntityKind]map[string]*CustomEntity{KindStyle: {}, KindElement: {}, KindVar: {}},
		origins:     map[string]*OriginEntity{},
		loadedFiles: map[string]bool{},
		namespaces:  map[string]*Namespace{"": {Name: ""}},
	}
	return r
}

func (r *Registry) CurrentNamespace() string { return r.currentNamespace }

func (r *Registry) PushNamespace(name string) (pop func()) {
	prev := r.currentNamespace
	qualified := name
	if prev != "" {
		qualified = prev + "." + name
	}
	if _, ok := r.namespaces[qualified]; !ok {
		r.namespaces[qualified] = &Namespace{Name: qualified, Parent: prev}
		if parent, ok := r.namespaces[prev]; ok {
			parent.Children = append(parent.Children, qualified)
		}
	}
	r.currentNamespace = qualified
	return func() { r.currentNamespace = prev }
}

func (r *Registry) qualify(name string) string {
	if r.currentNamespace == "" {
		return name
	}
	return r.currentNamespace + "." + name
}

// RegisterTemplate adds t under its qualified name, rejecting duplicates
// within the same (Template, kind) pair.
func (r *Registry) RegisterTemplate(t *TemplateEntity) error {
	t.Namespace = r.currentNamespace
	qn := t.Qualified()
	m := r.templates[t.Kind]
	if _, exists := m[qn]; exists {
		return &ConflictError{Category: "Template " + t.Kind.String(), Name: qn}
	}
	r.declCounter++
	t.declOrder = r.declCounter
	m[qn] = t
	return nil
}

// RegisterCustom adds c under its qualified name, rejecting duplicates
// within the same (Custom, kind) pair. A Custom and a Template of the same
// qualified name may coexist (spec.md §4.J "Conflict policy") — they are
// different categories.
func (r *Registry) RegisterCustom(c *CustomEntity) error {
	c.Namespace = r.currentNamespace
	qn := c.Qualified()
	m := r.customs[c.Kind]
	if _, exists := m[qn]; exists {
		return &ConflictError{Category: "Custom " + c.Kind.String(), Name: qn}
	}
	r.declCounter++
	c.declOrder = r.declCounter
	m[qn] = c
	return nil
}

// RegisterOrigin adds a named origin. Anonymous origins (Name == "") are
// never registered for lookup — they are inlined at their use-site by the
// parser — so no conflict check applies to them.
func (r *Registry) RegisterOrigin(o *OriginEntity) error {
	if o.Name == "" {
		return nil
	}
	o.Namespace = r.currentNamespace
	qn := o.Qualified()
	if _, exists := r.origins[qn]; exists {
		return &ConflictError{Category: "Origin", Name: qn}
	}
	r.origins[qn] = o
	return nil
}

// lookupQualifiedThenBare tries the qualified name in the current
// namespace first, then falls back to the bare global name, per spec.md
// §4.F.
func lookupQualifiedThenBare[V any](m map[string]V, currentNamespace, name string) (V, bool) {
	if currentNamespace != "" {
		if v, ok := m[currentNamespace+"."+name]; ok {
			return v, true
		}
	}
	v, ok := m[name]
	return v, ok
}

func (r *Registry) LookupTemplate(kind EntityKind, name string) (*TemplateEntity, bool) {
	return lookupQualifiedThenBare(r.templates[kind], r.currentNamespace, name)
}

func (r *Registry) LookupCustom(kind EntityKind, name string) (*CustomEntity, bool) {
	return lookupQualifiedThenBare(r.customs[kind], r.currentNamespace, name)
}

func (r *Registry) LookupOrigin(name string) (*OriginEntity, bool) {
	return lookupQualifiedThenBare(r.origins, r.currentNamespace, name)
}

// ResolvedEntity is the outcome of resolving a bare "@K Name" reference
// that might be a Template, a Custom, or both.
type ResolvedEntity struct {
	Template *TemplateEntity
	Custom   *CustomEntity
	// Ambiguous is true when both a Template and a Custom exist under the
	// same bare name; whichever of the two was declared later (by
	// registration order) wins, with a warning — spec.md §4.J and §9's
	// first Open Question, preserved explicitly rather than silently
	// picking one.
	Ambiguous bool
}

// LookupEither resolves a bare reference against both the Template and
// Custom tables for kind, implementing the "last declared wins, with a
// warning" policy. Which one is "last declared" is tracked by
// TemplateEntity's declOrder field, set at registration; ties (equal
// order, impossible in practice since
// each registration advances the counter) fall back to Custom winning.
func (r *Registry) LookupEither(kind EntityKind, name string) ResolvedEntity {
	tmpl, hasTmpl := r.LookupTemplate(kind, name)
	custom, hasCustom := r.LookupCustom(kind, name)
	switch {
	case hasTmpl && hasCustom:
		if tmpl.declOrder > custom.declOrder {
			return ResolvedEntity{Template: tmpl, Ambiguous: true}
		}
		return ResolvedEntity{Custom: custom, Ambiguous: true}
	case hasTmpl:
		return ResolvedEntity{Template: tmpl}
	case hasCustom:
		return ResolvedEntity{Custom: custom}
	}
	return ResolvedEntity{}
}

func (r *Registry) MarkLoaded(canonicalPath string) { r.loadedFiles[canonicalPath] = true }
func (r *Registry) IsLoaded(canonicalPath string) bool { return r.loadedFiles[canonicalPath] }
func (r *Registry) LoadedFiles() []string {
	out := make([]string, 0, len(r.loadedFiles))
	for f := range r.loadedFiles {
		out = append(out, f)
	}
	return out
}

// splitQualified splits a `.`-joined qualified name into its namespace
// path and local name.
func splitQualified(qualified string) (namespace, local string) {
	i := strings.LastIndex(qualified, ".")
	if i < 0 {
		return "", qualified
	}
	return qualified[:i], qualified[i+1:]
}
