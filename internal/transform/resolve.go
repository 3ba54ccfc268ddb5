// Package transform implements the Template/Custom resolver (component J)
// and local-style automation (component K): the two passes that run after
// parsing and before generation, modeled on the teacher's transform
// package shape — small top-level functions, a depth-first walk, mutation
// in place, diagnostics threaded through a handler.Handler rather than
// returned as errors.
package transform

import (
	"fmt"
	"strconv"
	"strings"

	chtl "github.com/chtl-lang/chtl/internal"
	"github.com/chtl-lang/chtl/internal/handler"
	"github.com/chtl-lang/chtl/internal/loc"
)

// Resolve walks doc in document order, expanding every ReferenceNode use-site
// against registry, applying inheritance linearization and specialization,
// then substituting `Group(name)` variable references. It mutates doc in
// place and also returns it, matching the teacher's Transform signature.
func Resolve(doc *chtl.Node, registry *chtl.Registry, config *chtl.Configuration, h *handler.Handler) *chtl.Node {
	r := &resolver{registry: registry, config: config, handler: h}
	r.resolveChildren(doc)
	r.substituteVariables(doc)
	return doc
}

type resolver struct {
	registry *chtl.Registry
	config   *chtl.Configuration
	handler  *handler.Handler
}

func (r *resolver) errorAt(pos chtl.Position, code loc.DiagnosticCode, msg string) {
	r.handler.AppendError(&loc.ErrorWithRange{
		Code:  code,
		Text:  msg,
		Range: loc.Range{Loc: loc.Loc{Start: pos.Offset}},
	})
}

func (r *resolver) warnAt(pos chtl.Position, code loc.DiagnosticCode, msg string) {
	r.handler.AppendWarning(&loc.ErrorWithRange{
		Code:  code,
		Text:  msg,
		Range: loc.Range{Loc: loc.Loc{Start: pos.Offset}},
	})
}

// resolveChildren replaces every ReferenceNode child of n (recursively)
// with its expansion. It iterates over a snapshot of children since
// expansion splices new siblings in place of the reference.
func (r *resolver) resolveChildren(n *chtl.Node) {
	for _, c := range n.Children() {
		if c.Type == chtl.ReferenceNode {
			if c.RefKind == "Origin" {
				r.expandOriginReference(n, c)
				continue
			}
			r.expandReference(n, c)
			continue
		}
		r.resolveChildren(c)
	}
}

// expandOriginReference resolves a bodyless `[Origin] @Type Name;`
// use-site (parser.go's parseOriginDecl), replacing it with an OriginNode
// carrying the named entity's raw text — by the time this pass runs,
// every `[Import]` has already been resolved by internal/driver, so the
// registry lookup here always sees imported origins.
func (r *resolver) expandOriginReference(parent, ref *chtl.Node) {
	o, ok := r.registry.LookupOrigin(ref.RefName)
	if !ok {
		r.errorAt(ref.Pos, loc.ERROR_UNDEFINED_REFERENCE, fmt.Sprintf("undefined origin %q", ref.RefName))
		parent.RemoveChild(ref)
		return
	}
	resolved := &chtl.Node{Type: chtl.OriginNode, Pos: ref.Pos, OriginType: o.Type, OriginName: o.Name, IsRaw: true, Data: o.RawText}
	parent.InsertBefore(resolved, ref)
	parent.RemoveChild(ref)
}

// expandReference resolves one use-site and splices its expansion into
// parent in place of ref (spec.md §4.J step 6).
func (r *resolver) expandReference(parent, ref *chtl.Node) {
	kind, ok := chtl.ParseEntityKind(ref.RefKind)
	if !ok {
		r.errorAt(ref.Pos, loc.ERROR_UNEXPECTED_TOKEN, fmt.Sprintf("unknown reference kind @%s", ref.RefKind))
		parent.RemoveChild(ref)
		return
	}
	resolved := r.registry.LookupEither(kind, ref.RefName)
	if resolved.Template == nil && resolved.Custom == nil {
		r.errorAt(ref.Pos, loc.ERROR_UNDEFINED_REFERENCE, fmt.Sprintf("undefined reference @%s %s", ref.RefKind, ref.RefName))
		parent.RemoveChild(ref)
		return
	}
	if resolved.Ambiguous {
		r.warnAt(ref.Pos, loc.WARNING_AMBIGUOUS_BARE_REFERENCE, fmt.Sprintf("@%s %s is defined as both a Template and a Custom; the later declaration wins", ref.RefKind, ref.RefName))
	}

	var merged *chtl.Node
	var ops []chtl.SpecOp
	if resolved.Custom != nil {
		var err error
		ops = resolved.Custom.Ops
		merged, err = r.linearize(&resolved.Custom.TemplateEntity, map[string]bool{}, deletedParents(ops))
		if err != nil {
			r.errorAt(ref.Pos, loc.ERROR_CIRCULAR_INHERITANCE, err.Error())
			parent.RemoveChild(ref)
			return
		}
	} else {
		var err error
		merged, err = r.linearize(resolved.Template, map[string]bool{}, nil)
		if err != nil {
			r.errorAt(ref.Pos, loc.ERROR_CIRCULAR_INHERITANCE, err.Error())
			parent.RemoveChild(ref)
			return
		}
	}

	// Expand any reference embedded in the linearized body (e.g. a Custom
	// whose own body is just `@Element Card;` rather than an `inherit`)
	// before applying delete/insert/replace ops: those ops select against
	// actual element children by tag, and must see Card's expanded <div>s
	// rather than the still-unexpanded reference node.
	r.resolveChildren(merged)

	merged = r.applySpecOps(merged, ops)

	// Any inline specialization children attached directly at the use-site
	// (parseTypedReference's trailing "{ ... }" form) apply last.
	if inlineOps := extractInlineOps(ref); len(inlineOps) > 0 {
		merged = r.applySpecOps(merged, inlineOps)
	}

	if kind == chtl.KindVar {
		// Var templates are value sources only; they never expand into the
		// tree (spec.md §4.J step 6).
		parent.RemoveChild(ref)
		return
	}

	for _, child := range merged.Children() {
		merged.RemoveChild(child)
		parent.InsertBefore(child, ref)
		r.resolveChildren(child)
	}
	parent.RemoveChild(ref)
}

// extractInlineOps reads specialization ops that were attached as children
// of a ReferenceNode by the parser's inline `@Element Box { ... }` form.
// Only Operation nodes are treated as ops; anything else was already an
// error at parse time.
func extractInlineOps(ref *chtl.Node) []chtl.SpecOp {
	var ops []chtl.SpecOp
	for _, c := range ref.Children() {
		if c.Type != chtl.OperationNode {
			continue
		}
		switch c.Data {
		case "delete":
			ops = append(ops, chtl.SpecOp{Kind: chtl.DeleteProperty, Name: c.RefName, Pos: c.Pos})
		case "insert":
			ops = append(ops, chtl.SpecOp{Kind: chtl.Insert, Selector: c.SelectorText, Subtree: c.FirstChild, Pos: c.Pos})
		case "replace":
			ops = append(ops, chtl.SpecOp{Kind: chtl.ReplaceElement, Selector: c.SelectorText, Subtree: c.FirstChild, Pos: c.Pos})
		}
	}
	return ops
}

// linearize builds the parent-first, duplicate-removed-by-first-occurrence
// chain (spec.md §4.J step 3) and returns a single Document fragment with
// every ancestor's body concatenated, current definition's own body last.
// skip names parents to exclude from t's own Inherits list (a Custom's
// `delete <Parent>;` specialization, per the original's
// CustomNode::removeInheritance, which erases directly from the custom's own
// inheritance chain rather than reshaping any ancestor's); it only applies at
// this call's own level, so recursive calls for t's parents always pass nil.
func (r *resolver) linearize(t *chtl.TemplateEntity, visiting map[string]bool, skip map[string]bool) (*chtl.Node, error) {
	qn := t.Qualified()
	if visiting[qn] {
		return nil, fmt.Errorf("circular inheritance involving %s", qn)
	}
	visiting[qn] = true

	merged := &chtl.Node{Type: chtl.DocumentNode}
	seen := map[string]bool{}
	for _, parentName := range t.Inherits {
		if seen[parentName] || skip[parentName] {
			continue
		}
		seen[parentName] = true
		parentEntity, ok := r.lookupByQualified(t.Kind, parentName)
		if !ok {
			r.errorAt(t.Body.Pos, loc.ERROR_SPECIALIZATION_TARGET_MISSING, fmt.Sprintf("inherited entity %s not found", parentName))
			continue
		}
		parentMerged, err := r.linearize(parentEntity, visiting, nil)
		if err != nil {
			return nil, err
		}
		appendCloned(merged, parentMerged)
	}
	appendCloned(merged, t.Body)
	delete(visiting, qn)
	return merged, nil
}

// deletedParents collects the parent names named by a Custom's own
// DeleteInheritance ops, for linearize's skip set.
func deletedParents(ops []chtl.SpecOp) map[string]bool {
	var skip map[string]bool
	for _, op := range ops {
		if op.Kind != chtl.DeleteInheritance {
			continue
		}
		if skip == nil {
			skip = map[string]bool{}
		}
		skip[op.Name] = true
	}
	return skip
}

func (r *resolver) lookupByQualified(kind chtl.EntityKind, qualified string) (*chtl.TemplateEntity, bool) {
	if tmpl, ok := r.registry.LookupTemplate(kind, localName(qualified)); ok {
		return tmpl, true
	}
	if custom, ok := r.registry.LookupCustom(kind, localName(qualified)); ok {
		return &custom.TemplateEntity, true
	}
	return nil, false
}

func localName(qualified string) string {
	i := strings.LastIndex(qualified, ".")
	if i < 0 {
		return qualified
	}
	return qualified[i+1:]
}

// appendCloned appends shallow clones of src's children to dst, applying
// last-write-wins for PropertyNode/Attribute keys that already appear in
// dst — the override semantics spec.md §4.J step 3 requires.
func appendCloned(dst, src *chtl.Node) {
	if src == nil {
		return
	}
	for _, c := range src.Children() {
		clone := cloneNode(c)
		if clone.Type == chtl.PropertyNode {
			if replaceExistingProperty(dst, clone) {
				continue
			}
		}
		dst.AppendChild(clone)
	}
}

// replaceExistingProperty overwrites an existing PropertyNode in dst with
// the same key, returning true if one was found (last-write-wins).
func replaceExistingProperty(dst, clone *chtl.Node) bool {
	if len(clone.Attr) == 0 {
		return false
	}
	key := clone.Attr[0].Key
	for _, existing := range dst.Children() {
		if existing.Type != chtl.PropertyNode || len(existing.Attr) == 0 {
			continue
		}
		if existing.Attr[0].Key == key {
			existing.Attr[0] = clone.Attr[0]
			return true
		}
	}
	return false
}

// cloneNode makes a detached, recursive copy of n so the same Template
// body can be spliced at multiple use-sites without aliasing.
func cloneNode(n *chtl.Node) *chtl.Node {
	clone := &chtl.Node{
		Type: n.Type, Pos: n.Pos, Tag: n.Tag, SelfClosing: n.SelfClosing,
		ID: n.ID, HasStyle: n.HasStyle, HasScript: n.HasScript,
		Data: n.Data, IsRaw: n.IsRaw, OriginType: n.OriginType, OriginName: n.OriginName,
		RefKind: n.RefKind, RefName: n.RefName, RefVarGroup: n.RefVarGroup,
		RefVarName: n.RefVarName, RefVarDefault: n.RefVarDefault, HasVarDefault: n.HasVarDefault,
		SelectorText: n.SelectorText, Namespace: n.Namespace,
	}
	clone.Classes = append([]string(nil), n.Classes...)
	clone.Attr = append([]chtl.Attribute(nil), n.Attr...)
	for _, c := range n.Children() {
		clone.AppendChild(cloneNode(c))
	}
	return clone
}

// applySpecOps applies Custom specialization ops to merged, in source
// order (spec.md §4.J step 5).
func (r *resolver) applySpecOps(merged *chtl.Node, ops []chtl.SpecOp) *chtl.Node {
	target := specializationTarget(merged)
	for _, op := range ops {
		switch op.Kind {
		case chtl.DeleteProperty:
			r.deleteProperty(target, op.Name)
		case chtl.DeleteInheritance:
			// handled before linearization (deletedParents), since it
			// removes a parent from the custom's own Inherits list rather
			// than editing the already-merged fragment.
		case chtl.Insert:
			r.insertAt(target, op)
		case chtl.ReplaceElement:
			r.replaceAt(target, op)
		case chtl.ModifyProperty:
			r.modifyProperty(target, op.Name, op.Value)
		}
	}
	return merged
}

// specializationTarget returns the node whose Children() a Custom's
// delete/insert/replace/modify ops actually address. Usually that's merged
// itself, but when a custom's body is just one embedded base-element
// reference (e.g. `@Element Card;` with no surrounding literal elements),
// resolveChildren expansion leaves merged with a single wrapping root
// element rather than the element's own content — per spec.md's end-to-end
// scenario 5, `delete div[1]; insert after div[0] { ... }` address that
// root's children, not the singleton top level wrapping it.
func specializationTarget(merged *chtl.Node) *chtl.Node {
	children := merged.Children()
	if len(children) == 1 && children[0].Type == chtl.ElementNode {
		return children[0]
	}
	return merged
}

// deleteProperty implements a Custom's bare `delete X;` op, which is
// overloaded (parser.go's parseSpecOp): inside a @Style custom X is a CSS
// property name, inside an @Element custom X is a child selector ("div",
// "div[1]", "*"). The two bodies never mix PropertyNode and ElementNode
// children, so which one target holds decides how X is read. target is
// already resolved through specializationTarget by the caller.
func (r *resolver) deleteProperty(merged *chtl.Node, name string) {
	if hasElementChildren(merged) {
		r.deleteSelector(merged, name)
		return
	}
	for _, c := range merged.Children() {
		if c.Type == chtl.PropertyNode {
			if _, ok := c.Attribute(name); ok {
				merged.RemoveChild(c)
			}
			continue
		}
		if _, ok := c.Attribute(name); ok {
			c.RemoveAttribute(name)
		}
	}
}

func (r *resolver) modifyProperty(merged *chtl.Node, name, value string) {
	for _, c := range merged.Children() {
		if c.Type == chtl.PropertyNode {
			if _, ok := c.Attribute(name); ok {
				c.SetAttribute(chtl.Attribute{Key: name, Val: value, Type: chtl.LiteralAttribute})
				return
			}
		}
	}
	prop := &chtl.Node{Type: chtl.PropertyNode}
	prop.SetAttribute(chtl.Attribute{Key: name, Val: value, Type: chtl.LiteralAttribute})
	merged.AppendChild(prop)
}

// selectorMatches implements spec.md §4.J's "bare tag (matches by tag name
// and ordinal — see INDEX_INITIAL_COUNT), or `*` (all children)".
func selectorMatches(children []*chtl.Node, selector string, base int) []*chtl.Node {
	if selector == "*" || selector == "" {
		return children
	}
	tag := selector
	wantIndex := -1
	if i := strings.Index(selector, "["); i >= 0 && strings.HasSuffix(selector, "]") {
		tag = selector[:i]
		if n, err := strconv.Atoi(selector[i+1 : len(selector)-1]); err == nil {
			wantIndex = n
		}
	}
	var matches []*chtl.Node
	ordinal := base
	for _, c := range children {
		if c.Tag != tag {
			continue
		}
		if wantIndex < 0 || ordinal == wantIndex {
			matches = append(matches, c)
		}
		ordinal++
	}
	return matches
}

// hasElementChildren reports whether any of merged's direct children is an
// element, distinguishing an @Element custom's body from a @Style custom's
// (whose children are PropertyNode/SelectorNode only) for deleteProperty.
func hasElementChildren(merged *chtl.Node) bool {
	for _, c := range merged.Children() {
		if c.Type == chtl.ElementNode {
			return true
		}
	}
	return false
}

// deleteSelector removes every child matching a bare tag, "tag[n]", or "*"
// selector (spec.md §4.J's element-custom delete form, end-to-end
// scenario 5).
func (r *resolver) deleteSelector(merged *chtl.Node, selector string) {
	for _, target := range selectorMatches(merged.Children(), selector, r.config.IndexInitialCount) {
		merged.RemoveChild(target)
	}
}

func (r *resolver) insertAt(merged *chtl.Node, op chtl.SpecOp) {
	children := merged.Children()
	targets := selectorMatches(children, op.Selector, r.config.IndexInitialCount)
	subtree := op.Subtree
	if subtree == nil {
		return
	}
	nodesToInsert := subtree.Children()

	switch op.Position {
	case chtl.AtTop:
		var first *chtl.Node
		if len(children) > 0 {
			first = children[0]
		}
		for _, n := range nodesToInsert {
			merged.InsertBefore(cloneNode(n), first)
		}
	case chtl.AtBottom:
		for _, n := range nodesToInsert {
			merged.AppendChild(cloneNode(n))
		}
	case chtl.Before:
		for _, target := range targets {
			for _, n := range nodesToInsert {
				merged.InsertBefore(cloneNode(n), target)
			}
		}
	case chtl.After:
		for _, target := range targets {
			var next *chtl.Node = target.NextSibling
			for _, n := range nodesToInsert {
				merged.InsertBefore(cloneNode(n), next)
			}
		}
	case chtl.Replace:
		for _, target := range targets {
			if len(nodesToInsert) == 0 {
				merged.RemoveChild(target)
				continue
			}
			merged.InsertBefore(cloneNode(nodesToInsert[0]), target)
			merged.RemoveChild(target)
			for _, n := range nodesToInsert[1:] {
				merged.AppendChild(cloneNode(n))
			}
		}
	}
}

func (r *resolver) replaceAt(merged *chtl.Node, op chtl.SpecOp) {
	op.Position = chtl.Replace
	r.insertAt(merged, op)
}

// substituteVariables resolves every VariableRefAttribute value of the
// form "Group(name)" or "Group(name = default)" against a KindVar
// Template/Custom entity (spec.md §4.J step 4). Substitution is eager and
// string-level.
func (r *resolver) substituteVariables(n *chtl.Node) {
	for i, a := range n.Attr {
		if a.Type != chtl.VariableRefAttribute {
			continue
		}
		n.Attr[i].Val = r.resolveVariable(a)
		n.Attr[i].Type = chtl.LiteralAttribute
	}
	for _, c := range n.Children() {
		r.substituteVariables(c)
	}
}

func (r *resolver) resolveVariable(a chtl.Attribute) string {
	group, name, def, hasDef := parseVarReference(a.Val)
	resolved := r.registry.LookupEither(chtl.KindVar, group)
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
			if val, ok := prop.Attribute(name); ok && val.Key == name {
				return val.Val
			}
		}
	}
	if hasDef {
		return def
	}
	r.warnAt(a.Pos, loc.WARNING_UNRESOLVED_VARIABLE, fmt.Sprintf("variable %s(%s) could not be resolved", group, name))
	return ""
}

// parseVarReference parses the "Group(name)" / "Group(name = default)"
// text a VariableRefAttribute carries (written by parseVarGroupReference).
func parseVarReference(raw string) (group, name, def string, hasDef bool) {
	open := strings.Index(raw, "(")
	close := strings.LastIndex(raw, ")")
	if open < 0 || close < 0 || close < open {
		return raw, "", "", false
	}
	group = raw[:open]
	inner := raw[open+1 : close]
	if eq := strings.Index(inner, "="); eq >= 0 {
		name = strings.TrimSpace(inner[:eq])
		def = strings.TrimSpace(inner[eq+1:])
		hasDef = true
		return
	}
	name = strings.TrimSpace(inner)
	return
}
