package chtl

import (
	"fmt"
	"strings"

	"github.com/chtl-lang/chtl/internal/handler"
	"github.com/chtl-lang/chtl/internal/loc"
	"github.com/dlclark/regexp2"
)

// pseudoElementPattern distinguishes a pseudo-class (":hover") from a
// pseudo-element ("::before") prefix with a single lookahead-free regex,
// the way the teacher reaches for a library regex instead of hand-rolling
// backtracking for this kind of "is the next char also a colon" check.
var pseudoElementPattern = regexp2.MustCompile(`^::`, regexp2.None)

// ParserOptions configures the parser's error-recovery behavior
// (spec.md §4.E "Error recovery").
type ParserOptions struct {
	AllowPartial bool
}

// ParseError is the (position, token, message) triple spec.md §4.E names.
type ParseError struct {
	Pos     Position
	Token   Token
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s (near %s)", e.Pos, e.Message, e.Token)
}

// parser is a recursive-descent parser with one-token lookahead (two-token
// only for the "at top"/"at bottom" compound keyword).
type parser struct {
	tokens  []Token
	pos     int
	opts    ParserOptions
	handler *handler.Handler
	source  []byte

	registry *Registry
	scope    *ScopeManager
	config   *Configuration
	state    stateMachine

	// currentElement tracks the nearest enclosing element while its body is
	// parsed. No parser code reads it: "&" selectors and specialization
	// targets are resolved later, in internal/transform.
	currentElement *Node
}

// Parser is the public entry point: lex then parse, returning a Document
// Node plus whatever the Handler collected. A Document is always returned,
// possibly missing subtrees where recovery discarded a construct; the
// parser always recovers, and opts.AllowPartial is not consulted.
func Parse(source []byte, filename string, opts ParserOptions, registry *Registry, scope *ScopeManager, config *Configuration) (*Node, *handler.Handler) {
	h := handler.NewHandler(string(source), filename)
	tokens := Lex(source, filename, h, config.Aliases)
	p := &parser{
		tokens:   tokens,
		opts:     opts,
		handler:  h,
		source:   source,
		registry: registry,
		scope:    scope,
		config:   config,
	}
	doc := p.parseDocument()
	return doc, h
}

func (p *parser) peek() Token  { return p.tokens[p.pos] }
func (p *parser) peekAt(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}
func (p *parser) advance() Token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}
func (p *parser) atEOF() bool { return p.peek().Kind == EOFKind }

// relexFromCurrent re-tokenizes source from the current token's byte
// offset onward using the just-updated alias table, splicing the result in
// place of the remaining token stream. Parse lexes the whole file up front
// with the alias table fixed at call time, so a same-file `[Name]` block
// (spec.md §4.I, "applied during lexing of subsequent input") can only
// reach the tokenizer by re-lexing everything after it; this keeps the
// pull-all lexer otherwise unchanged and is cheap since `[Name]` blocks are
// rare (re-scanning only the consumed prefix for line/column bookkeeping).
func (p *parser) relexFromCurrent() {
	offset := p.peek().Pos.Offset
	filename := p.peek().Pos.File
	l := &lexer{src: p.source, filename: filename, line: 1, handler: p.handler, aliases: p.config.Aliases}
	for i := 0; i < offset; i++ {
		if p.source[i] == '\n' {
			l.line++
			l.lineStart = i + 1
		}
	}
	l.pos = offset
	var rest []Token
	for {
		tok := l.next()
		rest = append(rest, tok)
		if tok.Kind == EOFKind {
			break
		}
	}
	p.tokens = append(p.tokens[:p.pos:p.pos], rest...)
}

func (p *parser) errorAt(tok Token, code loc.DiagnosticCode, msg string) {
	p.handler.AppendError(&loc.ErrorWithRange{
		Code:  code,
		Text:  msg,
		Range: loc.Range{Loc: loc.Loc{Start: tok.Pos.Offset}, Len: len(tok.Lexeme)},
	})
}

// expectPunct consumes a punctuator with the given lexeme, recording an
// error and resynchronizing if it is missing.
func (p *parser) expectPunct(lexeme string) bool {
	if p.peek().Kind == PunctKind && p.peek().Lexeme == lexeme {
		p.advance()
		return true
	}
	p.errorAt(p.peek(), loc.ERROR_UNEXPECTED_TOKEN, fmt.Sprintf("expected %q, found %s", lexeme, p.peek()))
	p.resync()
	return false
}

// resync skips tokens until one of `; } ] EOF`, per spec.md §4.E.
func (p *parser) resync() {
	for !p.atEOF() {
		t := p.peek()
		if t.Kind == PunctKind && (t.Lexeme == ";" || t.Lexeme == "}" || t.Lexeme == "]") {
			p.advance()
			return
		}
		p.advance()
	}
}

func (p *parser) isPunct(lexeme string) bool {
	t := p.peek()
	return t.Kind == PunctKind && t.Lexeme == lexeme
}

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.Kind == KeywordKind && t.Lexeme == word
}

func (p *parser) isBlockTag(tag string) bool {
	t := p.peek()
	return t.Kind == BlockTagKind && t.Lexeme == tag
}

// --- Document / top level -------------------------------------------------

func (p *parser) parseDocument() *Node {
	doc := &Node{Type: DocumentNode}
	p.currentElement = nil
	for !p.atEOF() {
		child := p.parseTopLevel()
		if child != nil {
			doc.AppendChild(child)
		}
	}
	return doc
}

// parseTopLevel dispatches on the current token for every construct legal
// at document scope or inside a [Namespace] body (spec.md §4.E).
func (p *parser) parseTopLevel() *Node {
	t := p.peek()
	switch {
	case t.Kind == LineCommentKind || t.Kind == BlockCommentKind:
		p.advance()
		return nil
	case t.Kind == GeneratorCommentKind:
		p.advance()
		return &Node{Type: CommentNode, Data: t.Lexeme, Pos: t.Pos}
	case p.isBlockTag("Template"):
		return p.parseTemplateDecl()
	case p.isBlockTag("Custom"):
		return p.parseCustomDecl()
	case p.isBlockTag("Origin"):
		return p.parseOriginDecl()
	case p.isBlockTag("Import"):
		return p.parseImportDecl()
	case p.isBlockTag("Configuration"):
		return p.parseConfigurationDecl()
	case p.isBlockTag("Namespace"):
		return p.parseNamespaceDecl()
	case p.isKeyword("use"):
		return p.parseUseDirective()
	case t.Kind == HTMLElementKind || t.Kind == IdentKind:
		return p.parseElement()
	default:
		p.errorAt(t, loc.ERROR_UNEXPECTED_TOKEN, fmt.Sprintf("unexpected %s at top level", t))
		p.resync()
		return nil
	}
}

// --- use directive ---------------------------------------------------------

func (p *parser) parseUseDirective() *Node {
	p.advance() // "use"
	// `use html5;` selects the HTML5 doctype; other `use K` forms select a
	// default keyword-set variant. The parser only needs to consume and
	// record it; generation decides the effect.
	word := ""
	if p.peek().Kind == KeywordKind || p.peek().Kind == IdentKind {
		word = p.advance().Lexeme
	}
	p.expectPunct(";")
	return &Node{Type: OperationNode, Data: "use " + word}
}

// --- Elements ---------------------------------------------------------------

func (p *parser) parseElement() *Node {
	tag := p.advance()
	n := &Node{Type: ElementNode, Tag: tag.Lexeme, Pos: tag.Pos, SelfClosing: isSelfClosing(tag.Lexeme)}
	if err := p.state.push(frame{State: StateElement, Context: ContextElementBody}); err != nil {
		p.errorAt(tag, loc.ERROR_ILLEGAL_CONSTRUCT, err.Error())
	}
	prevElement := p.currentElement
	p.currentElement = n
	p.scope.Push(tag.Lexeme, ContextElementBody)

	if p.expectPunct("{") {
		for !p.isPunct("}") && !p.atEOF() {
			child := p.parseElementBodyItem(n)
			if child != nil {
				n.AppendChild(child)
			}
		}
		p.expectPunct("}")
	}

	p.scope.Pop()
	p.currentElement = prevElement
	p.state.pop()
	return n
}

// parseElementBodyItem parses one construct legal inside an element,
// Template, or Custom body (spec.md §4.E).
func (p *parser) parseElementBodyItem(owner *Node) *Node {
	t := p.peek()
	switch {
	case t.Kind == LineCommentKind || t.Kind == BlockCommentKind:
		p.advance()
		return nil
	case t.Kind == GeneratorCommentKind:
		p.advance()
		return &Node{Type: CommentNode, Data: t.Lexeme, Pos: t.Pos}
	case p.isKeyword("text"):
		return p.parseTextBlock()
	case p.isKeyword("style"):
		return p.parseStyleBlock(owner)
	case p.isKeyword("script"):
		return p.parseScriptBlock()
	case p.isBlockTag("Origin"):
		return p.parseOriginDecl()
	case p.isKeyword("inherit"):
		return p.parseInherit()
	case p.isKeyword("delete"):
		return p.parseDelete()
	case p.isKeyword("insert"):
		return p.parseInsert()
	case p.isKeyword("replace"):
		return p.parseReplace()
	case t.Kind == TypePrefixKind:
		return p.parseTypedReference()
	case t.Kind == HTMLElementKind || t.Kind == IdentKind:
		if p.isAttributeAssignment() {
			if owner == nil {
				// Template, Custom and spec-op bodies have no owning element:
				// a `name: value;` line there is a property the resolver splices.
				return p.parseCSSProperty()
			}
			p.parseAttributeAssignment(owner)
			return nil
		}
		return p.parseElement()
	default:
		p.errorAt(t, loc.ERROR_UNEXPECTED_TOKEN, fmt.Sprintf("unexpected %s inside element body", t))
		p.resync()
		return nil
	}
}

// isAttributeAssignment looks one token ahead to distinguish `name: value;`
// / `name = value;` from a nested element declaration with the same
// leading identifier shape.
func (p *parser) isAttributeAssignment() bool {
	next := p.peekAt(1)
	return next.Kind == PunctKind && (next.Lexeme == ":" || next.Lexeme == "=")
}

func (p *parser) parseAttributeAssignment(owner *Node) {
	key := p.advance()
	p.advance() // ':' or '='
	val := p.parseAttributeValue()
	val.Key = key.Lexeme
	owner.SetAttribute(val)
	if key.Lexeme == "class" && val.Type != VariableRefAttribute {
		for _, c := range strings.Fields(val.Val) {
			owner.AddClass(c)
		}
	}
	if key.Lexeme == "id" && val.Type != VariableRefAttribute {
		owner.ID = val.Val
	}
	p.expectPunct(";")
}

// parseAttributeValue parses the value grammar spec.md §4.E's "Attribute
// parsing" names: quoted string, unquoted literal, number, Group(name)
// variable reference, or a typed-block reference.
func (p *parser) parseAttributeValue() Attribute {
	t := p.peek()
	switch {
	case t.Kind == StringKind:
		p.advance()
		return Attribute{Val: t.Lexeme, Type: LiteralAttribute, Pos: t.Pos}
	case t.Kind == NumberKind:
		p.advance()
		return Attribute{Val: t.Lexeme, Type: NumberAttribute, Pos: t.Pos}
	case t.Kind == IdentKind && p.peekAt(1).Kind == PunctKind && p.peekAt(1).Lexeme == "(":
		return p.parseVarGroupReference(t)
	case t.Kind == TypePrefixKind:
		ref := p.parseTypedReference()
		return Attribute{Val: ref.RefName, Type: TypedBlockAttribute, Pos: t.Pos}
	default:
		p.advance()
		return Attribute{Val: t.Lexeme, Type: UnquotedAttribute, Pos: t.Pos}
	}
}

// parseVarGroupReference parses `Group(name)` or `Group(name = default)`.
func (p *parser) parseVarGroupReference(group Token) Attribute {
	p.advance() // group name
	p.expectPunct("(")
	name := ""
	if p.peek().Kind == IdentKind || p.peek().Kind == HTMLElementKind {
		name = p.advance().Lexeme
	}
	a := Attribute{Type: VariableRefAttribute, Pos: group.Pos}
	a.Val = group.Lexeme + "(" + name
	if p.isPunct("=") {
		p.advance()
		def := p.parseAttributeValue()
		a.Val += " = " + def.Val
	}
	a.Val += ")"
	p.expectPunct(")")
	return a
}

// --- text / style / script ---------------------------------------------------

func (p *parser) parseTextBlock() *Node {
	kw := p.advance() // "text"
	n := &Node{Type: TextNode, Pos: kw.Pos}
	if p.expectPunct("{") {
		var b strings.Builder
		for !p.isPunct("}") && !p.atEOF() {
			t := p.peek()
			if t.Kind == StringKind || t.Kind == UnquotedLiteralKind || t.Kind == IdentKind || t.Kind == NumberKind || t.Kind == HTMLElementKind {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(t.Lexeme)
				p.advance()
				continue
			}
			if t.Kind == PunctKind && t.Lexeme == ";" {
				p.advance()
				continue
			}
			break
		}
		n.Data = b.String()
		p.expectPunct("}")
	}
	return n
}

func (p *parser) parseStyleBlock(owner *Node) *Node {
	kw := p.advance() // "style"
	n := &Node{Type: StyleNode, Pos: kw.Pos}
	if owner != nil {
		owner.HasStyle = true
	}
	p.state.push(frame{State: StateStyleBlock, Context: ContextStyleBody})
	if p.expectPunct("{") {
		for !p.isPunct("}") && !p.atEOF() {
			child := p.parseStyleBodyItem()
			if child != nil {
				n.AppendChild(child)
			}
		}
		p.expectPunct("}")
	}
	p.state.pop()
	return n
}

// parseStyleBodyItem parses one property, selector block, or typed
// reference inside a style{} body.
func (p *parser) parseStyleBodyItem() *Node {
	t := p.peek()
	switch {
	case t.Kind == LineCommentKind || t.Kind == BlockCommentKind:
		p.advance()
		return nil
	case t.Kind == TypePrefixKind:
		return p.parseTypedReference()
	case t.Kind == PunctKind && (t.Lexeme == "." || t.Lexeme == "#" || t.Lexeme == "&" || t.Lexeme == ":"):
		return p.parseSelectorRule()
	case t.Kind == IdentKind || t.Kind == HTMLElementKind:
		if p.peekAt(1).Kind == PunctKind && p.peekAt(1).Lexeme == "{" {
			return p.parseSelectorRule()
		}
		return p.parseCSSProperty()
	default:
		p.errorAt(t, loc.ERROR_UNEXPECTED_TOKEN, fmt.Sprintf("unexpected %s inside style block", t))
		p.resync()
		return nil
	}
}

func (p *parser) parseCSSProperty() *Node {
	key := p.advance()
	n := &Node{Type: PropertyNode, Pos: key.Pos}
	if p.isPunct(":") || p.isPunct("=") {
		p.advance()
	}
	// A CSS value of exactly "Group(name)"/"Group(name = default)" is a
	// variable reference (spec.md §4.J step 4), same grammar as
	// parseAttributeValue's case below — reuse parseVarGroupReference so it
	// reaches component J's substituteVariables as a VariableRefAttribute
	// instead of being flattened into a space-joined literal.
	if p.peek().Kind == IdentKind && p.peekAt(1).Kind == PunctKind && p.peekAt(1).Lexeme == "(" {
		val := p.parseVarGroupReference(p.peek())
		val.Key = key.Lexeme
		n.SetAttribute(val)
		if p.isPunct(";") {
			p.advance()
		}
		return n
	}
	var vals []string
	for !p.isPunct(";") && !p.isPunct("}") && !p.atEOF() {
		vals = append(vals, p.advance().Lexeme)
	}
	if p.isPunct(";") {
		p.advance()
	}
	n.SetAttribute(Attribute{Key: key.Lexeme, Val: strings.Join(vals, " "), Type: LiteralAttribute, Pos: key.Pos})
	return n
}

// parseSelectorRule parses the selector prefix spec.md §4.E names
// (`.`, `#`, element name, `&`, `:`/`::`) and the nested property block.
func (p *parser) parseSelectorRule() *Node {
	start := p.peek()
	selector := p.readSelectorText()
	n := &Node{Type: SelectorNode, SelectorText: selector, Pos: start.Pos}
	if p.expectPunct("{") {
		for !p.isPunct("}") && !p.atEOF() {
			child := p.parseStyleBodyItem()
			if child != nil {
				n.AppendChild(child)
			}
		}
		p.expectPunct("}")
	}
	return n
}

// readSelectorText consumes the raw text of a CSS-ish selector up to its
// opening brace, using regexp2 to tell a pseudo-element ("::before") apart
// from a pseudo-class (":hover") since both start with the same byte.
func (p *parser) readSelectorText() string {
	var b strings.Builder
	for !p.isPunct("{") && !p.atEOF() {
		t := p.peek()
		if t.Kind == PunctKind && t.Lexeme == ":" {
			rest := p.remainingSourceFrom(t.Pos.Offset)
			if matched, _ := pseudoElementPattern.MatchString(rest); matched {
				b.WriteString("::")
				p.advance()
				p.advance()
				continue
			}
		}
		b.WriteString(t.Lexeme)
		p.advance()
	}
	return strings.TrimSpace(b.String())
}

func (p *parser) remainingSourceFrom(offset int) string {
	if offset < 0 || offset >= len(p.source) {
		return ""
	}
	return string(p.source[offset:])
}

// parseScriptBlock captures the script{} body verbatim, per spec.md §4.E's
// "Raw capture": brace-counted, string-literal aware, from the opening '{'
// to the matching '}'.
func (p *parser) parseScriptBlock() *Node {
	kw := p.advance() // "script"
	n := &Node{Type: ScriptNode, Pos: kw.Pos, IsRaw: true}
	if !p.isPunct("{") {
		p.errorAt(p.peek(), loc.ERROR_UNEXPECTED_TOKEN, "expected '{' after script")
		return n
	}
	openOffset := p.peek().Pos.Offset
	span, endPos := captureRawSpan(p.source, openOffset)
	n.Data = span
	p.advanceTokensPast(endPos)
	return n
}

// captureRawSpan brace-counts from src[openBraceOffset] (which must be '{')
// to the matching '}', treating string-literal content as opaque so a
// brace inside a quoted string never affects the count. Returns the
// interior text (excluding the braces themselves) and the byte offset
// just past the closing brace.
func captureRawSpan(src []byte, openBraceOffset int) (string, int) {
	depth := 0
	i := openBraceOffset
	contentStart := openBraceOffset + 1
	for i < len(src) {
		c := src[i]
		switch c {
		case '"', '\'':
			quote := c
			i++
			for i < len(src) && src[i] != quote {
				if src[i] == '\\' && i+1 < len(src) {
					i++
				}
				i++
			}
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return string(src[contentStart:i]), i + 1
			}
		}
		i++
	}
	return string(src[contentStart:]), len(src)
}

// advanceTokensPast skips the token stream forward until it reaches a
// token whose offset is >= endOffset, keeping the token cursor consistent
// after a raw span capture bypassed normal tokenization of that span.
func (p *parser) advanceTokensPast(endOffset int) {
	for !p.atEOF() && p.peek().Pos.Offset < endOffset {
		p.advance()
	}
}

// --- Origin ------------------------------------------------------------------

func (p *parser) parseOriginDecl() *Node {
	kw := p.advance() // "[Origin]"
	originType := "Html"
	if p.peek().Kind == TypePrefixKind {
		originType = p.advance().Lexeme
		if !isBuiltinTypePrefix(originType) && p.config.DisableCustomOriginType && !p.config.OriginTypes[originType] {
			p.errorAt(kw, loc.ERROR_UNEXPECTED_TOKEN, fmt.Sprintf("custom origin type @%s is disabled", originType))
		}
	}
	name := ""
	if p.peek().Kind == IdentKind || p.peek().Kind == HTMLElementKind {
		name = p.advance().Lexeme
	}
	n := &Node{Type: OriginNode, Pos: kw.Pos, OriginType: originType, OriginName: name, IsRaw: true}
	if !p.isPunct("{") {
		// A named, bodyless `[Origin] @Type Name;` is a use-site: it emits
		// a previously registered or (not-yet-loaded) imported origin at
		// this position rather than declaring a new one. Resolution is
		// deferred to component J (resolve.go), since an import's target
		// origin may not be registered yet at the point the parser reaches
		// this token — imports are only resolved after the whole file has
		// been parsed (see internal/driver).
		if name != "" && p.isPunct(";") {
			p.advance()
			return &Node{Type: ReferenceNode, RefKind: "Origin", RefName: name, Pos: kw.Pos}
		}
		p.errorAt(p.peek(), loc.ERROR_UNEXPECTED_TOKEN, "expected '{' after [Origin]")
		return n
	}
	openOffset := p.peek().Pos.Offset
	span, endPos := captureRawSpan(p.source, openOffset)
	n.Data = span
	p.advanceTokensPast(endPos)

	if name != "" {
		p.registry.RegisterOrigin(&OriginEntity{Name: name, Type: originType, RawText: span})
	}
	return n
}

// --- Template / Custom declarations -----------------------------------------

func (p *parser) parseTemplateDecl() *Node {
	p.advance() // "[Template]"
	kind, name, ok := p.parseTypedName()
	if !ok {
		return nil
	}
	p.state.push(frame{State: StateTemplate, Context: ContextDefinitionBody})
	defer p.state.pop()

	t := &TemplateEntity{Name: name, Kind: kind, Params: map[string]string{}}
	body := &Node{Type: DocumentNode}
	if p.expectPunct("{") {
		for !p.isPunct("}") && !p.atEOF() {
			if p.isKeyword("inherit") {
				p.parseInheritInto(t)
				continue
			}
			child := p.parseElementBodyItem(nil)
			if child != nil {
				body.AppendChild(child)
			}
		}
		p.expectPunct("}")
	}
	t.Body = body
	if err := p.registry.RegisterTemplate(t); err != nil {
		p.errorAt(p.tokens[p.pos-1], loc.ERROR_CONFLICTING_REGISTRATION, err.Error())
	}
	return nil // Templates never become tree Nodes; only ReferenceNode use-sites do.
}

func (p *parser) parseCustomDecl() *Node {
	p.advance() // "[Custom]"
	kind, name, ok := p.parseTypedName()
	if !ok {
		return nil
	}
	p.state.push(frame{State: StateCustom, Context: ContextDefinitionBody})
	defer p.state.pop()

	c := &CustomEntity{TemplateEntity: TemplateEntity{Name: name, Kind: kind, Params: map[string]string{}}, AllowsSpecialization: true}
	body := &Node{Type: DocumentNode}
	if p.expectPunct("{") {
		for !p.isPunct("}") && !p.atEOF() {
			switch {
			case p.isKeyword("inherit"):
				p.parseInheritInto(&c.TemplateEntity)
			case p.isKeyword("delete"):
				c.Ops = append(c.Ops, p.parseSpecOp(SpecOpKindDelete))
			case p.isKeyword("insert"):
				c.Ops = append(c.Ops, p.parseSpecOp(SpecOpKindInsert))
			case p.isKeyword("replace"):
				c.Ops = append(c.Ops, p.parseSpecOp(SpecOpKindReplace))
			default:
				child := p.parseElementBodyItem(nil)
				if child != nil {
					body.AppendChild(child)
				}
			}
		}
		p.expectPunct("}")
	}
	c.Body = body
	if err := p.registry.RegisterCustom(c); err != nil {
		p.errorAt(p.tokens[p.pos-1], loc.ERROR_CONFLICTING_REGISTRATION, err.Error())
	}
	return nil
}

// parseTypedName parses the shared "@K Name" head of a Template/Custom
// declaration.
func (p *parser) parseTypedName() (EntityKind, string, bool) {
	if p.peek().Kind != TypePrefixKind {
		p.errorAt(p.peek(), loc.ERROR_UNEXPECTED_TOKEN, "expected @Style, @Element, or @Var")
		p.resync()
		return 0, "", false
	}
	kindTok := p.advance()
	kind, ok := ParseEntityKind(kindTok.Lexeme)
	if !ok {
		p.errorAt(kindTok, loc.ERROR_UNEXPECTED_TOKEN, fmt.Sprintf("unknown template/custom kind @%s", kindTok.Lexeme))
	}
	name := ""
	if p.peek().Kind == IdentKind || p.peek().Kind == HTMLElementKind {
		name = p.advance().Lexeme
	} else {
		p.errorAt(p.peek(), loc.ERROR_UNEXPECTED_TOKEN, "expected a name")
	}
	return kind, name, true
}

func (p *parser) parseInherit() *Node {
	kw := p.advance()
	kind, name, _ := p.parseTypedNameReference()
	p.expectPunct(";")
	return &Node{Type: OperationNode, Data: "inherit", RefKind: kind.String(), RefName: name, Pos: kw.Pos}
}

func (p *parser) parseInheritInto(t *TemplateEntity) {
	p.advance() // "inherit"
	_, name, _ := p.parseTypedNameReference()
	qualified := name
	if p.registry.currentNamespace != "" {
		qualified = p.registry.currentNamespace + "." + name
	}
	t.Inherits = append(t.Inherits, qualified)
	p.expectPunct(";")
}

// parseTypedNameReference parses "@K Name" where K is Style|Element|Var.
func (p *parser) parseTypedNameReference() (EntityKind, string, bool) {
	if p.peek().Kind != TypePrefixKind {
		p.errorAt(p.peek(), loc.ERROR_UNEXPECTED_TOKEN, "expected @Style, @Element, or @Var")
		return 0, "", false
	}
	kindTok := p.advance()
	kind, _ := ParseEntityKind(kindTok.Lexeme)
	name := ""
	if p.peek().Kind == IdentKind || p.peek().Kind == HTMLElementKind {
		name = p.advance().Lexeme
	}
	return kind, name, true
}

// parseTypedReference parses a bare use-site reference: "@Style Name",
// "@Element Name", or "@Var Name" (spec.md §4.J "use-site").
func (p *parser) parseTypedReference() *Node {
	kindTok := p.advance()
	n := &Node{Type: ReferenceNode, RefKind: kindTok.Lexeme, Pos: kindTok.Pos}
	if p.peek().Kind == IdentKind || p.peek().Kind == HTMLElementKind {
		n.RefName = p.advance().Lexeme
	}
	if p.isPunct("{") {
		// an inline specialization block following the reference, e.g.
		// `@Element Box { delete color; }` used directly in an element body.
		p.advance()
		for !p.isPunct("}") && !p.atEOF() {
			// specialization ops attached to an inline reference are
			// recorded as children for the resolver to apply.
			if child := p.parseElementBodyItem(n); child != nil {
				n.AppendChild(child)
			}
		}
		p.expectPunct("}")
	} else {
		p.expectPunct(";")
	}
	return n
}

// --- Specialization ops ------------------------------------------------------

const (
	SpecOpKindDelete  = DeleteProperty
	SpecOpKindInsert  = Insert
	SpecOpKindReplace = ReplaceElement
)

// parseSpecOp parses `delete P;`, `delete @Style S;`, `delete @K Name;`
// (inheritance removal), `insert (after|before|replace|at top|at bottom)
// selector { … }`, and `replace selector { … }`.
func (p *parser) parseSpecOp(kind SpecOpKind) SpecOp {
	start := p.advance() // delete | insert | replace
	op := SpecOp{Kind: kind, Pos: start.Pos}

	switch kind {
	case DeleteProperty:
		if p.peek().Kind == TypePrefixKind {
			_, name, _ := p.parseTypedNameReference()
			op.Kind = DeleteInheritance
			// Inherits entries are namespace-qualified (parseInheritInto);
			// match that here so `delete @Element Box;` removes the same
			// entry `inherit @Element Box;` added inside this namespace.
			if p.registry.currentNamespace != "" {
				name = p.registry.currentNamespace + "." + name
			}
			op.Name = name
			p.expectPunct(";")
			return op
		}
		// Shared with Insert/ReplaceElement's target grammar: a bare
		// property name ("color") and an element selector ("div", "div[1]",
		// "*") are lexically identical until the optional "[n]" suffix, so
		// one reader serves both; deleteProperty (component J) decides
		// which this is from what merged actually contains.
		op.Name = p.readSelectorToken()
		p.expectPunct(";")
		return op

	case Insert:
		op.Position = p.parseInsertPosition()
		op.Selector = p.readSelectorToken()
		op.Subtree = p.parseSpecOpBody()
		return op

	case ReplaceElement:
		op.Position = Replace
		op.Selector = p.readSelectorToken()
		op.Subtree = p.parseSpecOpBody()
		return op
	}
	return op
}

// parseInsertPosition parses "after|before|replace" or the compound
// "at top"/"at bottom" (spec.md's two-token lookahead case).
func (p *parser) parseInsertPosition() InsertPosition {
	if p.peek().Kind == IdentKind && p.peek().Lexeme == "at" && (p.peekAt(1).Lexeme == "top" || p.peekAt(1).Lexeme == "bottom") {
		p.advance() // "at"
	}
	switch {
	case p.isKeyword("after"):
		p.advance()
		return After
	case p.isKeyword("before"):
		p.advance()
		return Before
	case p.isKeyword("replace"):
		p.advance()
		return Replace
	case p.isKeyword("top"):
		p.advance()
		return AtTop
	case p.isKeyword("bottom"):
		p.advance()
		return AtBottom
	default:
		return After
	}
}

// readSelectorToken reads a specialization target selector: a bare tag,
// "tag[n]", or "*".
func (p *parser) readSelectorToken() string {
	var b strings.Builder
	if p.isPunct("*") {
		p.advance()
		return "*"
	}
	if p.peek().Kind == IdentKind || p.peek().Kind == HTMLElementKind {
		b.WriteString(p.advance().Lexeme)
	}
	if p.isPunct("[") {
		p.advance()
		b.WriteString("[")
		if p.peek().Kind == NumberKind {
			b.WriteString(p.advance().Lexeme)
		}
		p.expectPunct("]")
		b.WriteString("]")
	}
	return b.String()
}

func (p *parser) parseSpecOpBody() *Node {
	if !p.isPunct("{") {
		p.expectPunct(";")
		return nil
	}
	body := &Node{Type: DocumentNode}
	p.advance()
	for !p.isPunct("}") && !p.atEOF() {
		child := p.parseElementBodyItem(nil)
		if child != nil {
			body.AppendChild(child)
		}
	}
	p.expectPunct("}")
	return body
}

func (p *parser) parseDelete() *Node {
	op := p.parseSpecOp(DeleteProperty)
	return &Node{Type: OperationNode, Data: "delete", RefName: op.Name, Pos: op.Pos}
}

func (p *parser) parseInsert() *Node {
	op := p.parseSpecOp(Insert)
	n := &Node{Type: OperationNode, Data: "insert", SelectorText: op.Selector, Pos: op.Pos}
	if op.Subtree != nil {
		n.AppendChild(op.Subtree)
	}
	return n
}

func (p *parser) parseReplace() *Node {
	op := p.parseSpecOp(ReplaceElement)
	n := &Node{Type: OperationNode, Data: "replace", SelectorText: op.Selector, Pos: op.Pos}
	if op.Subtree != nil {
		n.AppendChild(op.Subtree)
	}
	return n
}

// --- Import / Configuration / Namespace -------------------------------------

func (p *parser) parseImportDecl() *Node {
	kw := p.advance() // "[Import]"
	rec := ImportRecord{Pos: kw.Pos, Namespace: p.registry.currentNamespace}

	switch {
	case p.isBlockTag("Template"), p.isBlockTag("Custom"), p.isBlockTag("Origin"):
		tagTok := p.advance()
		switch tagTok.Lexeme {
		case "Template":
			rec.Kind = ImportSelectiveTemplate
		case "Custom":
			rec.Kind = ImportSelectiveCustom
		case "Origin":
			rec.Kind = ImportSelectiveOrigin
		}
		if p.peek().Kind == TypePrefixKind {
			p.advance()
		}
		if p.peek().Kind == IdentKind || p.peek().Kind == HTMLElementKind {
			rec.SelectiveName = p.advance().Lexeme
		}
	case p.peek().Kind == TypePrefixKind:
		kindTok := p.advance()
		switch kindTok.Lexeme {
		case "Html":
			rec.Kind = ImportHTML
		case "Style":
			rec.Kind = ImportStyle
		case "JavaScript":
			rec.Kind = ImportJavaScript
		case "Chtl":
			rec.Kind = ImportChtl
		case "CJmod":
			rec.Kind = ImportCJmod
		case "Config":
			rec.Kind = ImportConfig
		}
	}

	if p.isKeyword("from") {
		p.advance()
	}
	if p.peek().Kind == StringKind {
		rec.LogicalPath = p.advance().Lexeme
	}
	if p.isKeyword("as") {
		p.advance()
		if p.peek().Kind == IdentKind || p.peek().Kind == HTMLElementKind {
			rec.Alias = p.advance().Lexeme
		}
	}
	p.expectPunct(";")
	// OriginName doubles here as the import alias (rec.Alias), and
	// SelectorText as the selective-import entity name (rec.SelectiveName,
	// e.g. the "Foo" in `[Import] [Template] @Style Foo from "p.chtl";`):
	// OperationNode never needs either for anything else, and it spares the
	// Node struct two fields that only a subset of import forms read.
	return &Node{Type: OperationNode, Data: "import:" + rec.Kind.String(), RefName: rec.LogicalPath, OriginName: rec.Alias, SelectorText: rec.SelectiveName, Pos: kw.Pos}
}

func (p *parser) parseConfigurationDecl() *Node {
	kw := p.advance() // "[Configuration]"
	cfg := DefaultConfiguration()
	if p.peek().Kind == TypePrefixKind && p.peek().Lexeme == "Config" {
		p.advance()
		if p.peek().Kind == IdentKind || p.peek().Kind == HTMLElementKind {
			cfg.Name = p.advance().Lexeme
		}
	}
	if p.expectPunct("{") {
		for !p.isPunct("}") && !p.atEOF() {
			switch {
			case p.isBlockTag("Name"):
				p.parseNameAliasBlock()
				// The aliases just defined must reach the tokenizer before
				// any later source is lexed, not just the token stream this
				// parser already produced.
				p.relexFromCurrent()
			case p.isBlockTag("OriginType"):
				p.parseOriginTypeBlock(cfg)
			case p.peek().Kind == IdentKind || p.peek().Kind == HTMLElementKind:
				key := p.advance().Lexeme
				if p.isPunct("=") {
					p.advance()
				}
				val := ""
				if !p.isPunct(";") {
					val = p.advance().Lexeme
				}
				cfg.ApplyOption(key, val)
				p.expectPunct(";")
			default:
				p.advance()
			}
		}
		p.expectPunct("}")
	}
	p.config.Merge(cfg)
	return &Node{Type: OperationNode, Data: "configuration:" + cfg.Name, Pos: kw.Pos}
}

// parseNameAliasBlock parses `[Name] { CUSTOM_STYLE = [@Style, @style, @CSS]; … }`.
func (p *parser) parseNameAliasBlock() {
	p.advance() // "[Name]"
	if !p.expectPunct("{") {
		return
	}
	for !p.isPunct("}") && !p.atEOF() {
		if p.peek().Kind != IdentKind && p.peek().Kind != HTMLElementKind {
			p.advance()
			continue
		}
		groupKind := p.advance().Lexeme
		p.expectPunct("=")
		p.expectPunct("[")
		var aliases []string
		for !p.isPunct("]") && !p.atEOF() {
			t := p.advance()
			if t.Kind == TypePrefixKind || t.Kind == KeywordKind || t.Kind == IdentKind || t.Kind == HTMLElementKind || t.Kind == BlockTagKind {
				aliases = append(aliases, t.Lexeme)
			}
			if p.isPunct(",") {
				p.advance()
			}
		}
		p.expectPunct("]")
		p.expectPunct(";")
		if len(aliases) > 0 {
			canonical := aliases[0]
			p.applyNameGroup(groupKind, canonical, aliases[1:])
		}
	}
	p.expectPunct("}")
}

// applyNameGroup routes a [Name] group to the right aliasTable bucket
// based on its "CUSTOM_STYLE"/"KEYWORD_TEXT"/... prefix.
func (p *parser) applyNameGroup(groupKind, canonical string, aliases []string) {
	switch {
	case strings.HasPrefix(groupKind, "CUSTOM_") || strings.HasPrefix(groupKind, "TEMPLATE_"):
		p.config.Aliases.DefineTypePrefixGroup(canonical, aliases)
	case strings.HasPrefix(groupKind, "KEYWORD_"):
		p.config.Aliases.DefineKeywordGroup(canonical, aliases)
	case strings.HasPrefix(groupKind, "BLOCK_"):
		p.config.Aliases.DefineBlockTagGroup(canonical, aliases)
	default:
		p.config.Aliases.DefineTypePrefixGroup(canonical, aliases)
	}
}

// parseOriginTypeBlock parses `[OriginType] { ORIGINTYPE_VUE = @Vue; … }`.
func (p *parser) parseOriginTypeBlock(cfg *Configuration) {
	p.advance() // "[OriginType]"
	if !p.expectPunct("{") {
		return
	}
	for !p.isPunct("}") && !p.atEOF() {
		if p.peek().Kind == IdentKind || p.peek().Kind == HTMLElementKind {
			p.advance() // ORIGINTYPE_<NAME>, value carries the actual type
		}
		p.expectPunct("=")
		if p.peek().Kind == TypePrefixKind {
			cfg.OriginTypes[p.advance().Lexeme] = true
		}
		p.expectPunct(";")
	}
	p.expectPunct("}")
}

func (p *parser) parseNamespaceDecl() *Node {
	kw := p.advance() // "[Namespace]"
	name := ""
	if p.peek().Kind == IdentKind || p.peek().Kind == HTMLElementKind {
		name = p.advance().Lexeme
	}
	pop := p.registry.PushNamespace(name)
	defer pop()
	p.state.push(frame{State: StateNamespace, Context: ContextDocument, Namespace: name})
	defer p.state.pop()

	n := &Node{Type: DocumentNode, Pos: kw.Pos, Namespace: p.registry.CurrentNamespace()}
	if p.expectPunct("{") {
		for !p.isPunct("}") && !p.atEOF() {
			child := p.parseTopLevel()
			if child != nil {
				n.AppendChild(child)
			}
		}
		p.expectPunct("}")
	}
	return n
}
