package chtl

import "golang.org/x/net/html/atom"

// TokenKind is the kind of a Token. Mirrors the teacher's TokenType but over
// CHTL's surface syntax instead of HTML's.
type TokenKind uint8

const (
	// ErrorKind means a lexical error occurred; Token.Lexeme holds the
	// offending text and the message goes to the Handler.
	ErrorKind TokenKind = iota
	EOFKind

	IdentKind           // a bare identifier, not matched against any registry
	HTMLElementKind      // an identifier that is also a known HTML5 element
	KeywordKind          // text style script inherit delete insert after before replace top bottom from as except use html5
	BlockTagKind         // [Template] [Custom] [Origin] [Import] [Configuration] [Namespace] [Name] [OriginType] [Info] [Export]
	TypePrefixKind       // @Style @Element @Var @Html @JavaScript @Chtl @CJmod @Config and user-defined @Vue, @React, ...

	StringKind           // quoted literal
	UnquotedLiteralKind  // bare run of [A-Za-z0-9_-]
	NumberKind           // integer or decimal

	LineCommentKind      // // ...
	BlockCommentKind     // /* ... */
	GeneratorCommentKind // -- ... (participates in output)

	PunctKind // { } [ ] ( ) ; , : = . # & @ *
)

func (k TokenKind) String() string {
	switch k {
	case ErrorKind:
		return "Error"
	case EOFKind:
		return "EOF"
	case IdentKind:
		return "Ident"
	case HTMLElementKind:
		return "HTMLElement"
	case KeywordKind:
		return "Keyword"
	case BlockTagKind:
		return "BlockTag"
	case TypePrefixKind:
		return "TypePrefix"
	case StringKind:
		return "String"
	case UnquotedLiteralKind:
		return "UnquotedLiteral"
	case NumberKind:
		return "Number"
	case LineCommentKind:
		return "LineComment"
	case BlockCommentKind:
		return "BlockComment"
	case GeneratorCommentKind:
		return "GeneratorComment"
	case PunctKind:
		return "Punct"
	}
	return "Invalid"
}

// keywords is the fixed keyword table (spec.md §3). Values are irrelevant;
// only membership matters, the way the teacher's atom table is consulted
// purely for "is this a known name" lookups.
var keywords = map[string]bool{
	"text": true, "style": true, "script": true, "inherit": true,
	"delete": true, "insert": true, "after": true, "before": true,
	"replace": true, "top": true, "bottom": true, "from": true,
	"as": true, "except": true, "use": true, "html5": true,
}

// blockTags is the fixed bracketed-tag table.
var blockTags = map[string]bool{
	"Template": true, "Custom": true, "Origin": true, "Import": true,
	"Configuration": true, "Namespace": true, "Name": true,
	"OriginType": true, "Info": true, "Export": true,
}

// builtinTypePrefixes are recognized regardless of configuration.
var builtinTypePrefixes = map[string]bool{
	"Style": true, "Element": true, "Var": true, "Html": true,
	"JavaScript": true, "Chtl": true, "CJmod": true, "Config": true,
}

// selfClosingElements is the fixed HTML self-closing set (spec.md Glossary).
var selfClosingElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// keywordKind reports whether word is one of CHTL's reserved keywords.
func keywordKind(word string) (TokenKind, bool) {
	if keywords[word] {
		return KeywordKind, true
	}
	return 0, false
}

// blockKind reports whether a bracketed tag (without the brackets) is a
// known block tag, e.g. blockKind("Template") for the token "[Template]".
func blockKind(tag string) (TokenKind, bool) {
	if blockTags[tag] {
		return BlockTagKind, true
	}
	return 0, false
}

// typePrefixKind reports whether word (without the leading "@") is a type
// prefix. User-defined prefixes (@Vue, @React, ...) are accepted unless the
// active Configuration disables custom origin types — that check happens in
// the parser, which has access to the Configuration; this function only
// answers "is this syntactically shaped like a type prefix".
func typePrefixKind(word string) (TokenKind, bool) {
	if len(word) == 0 {
		return 0, false
	}
	if !isAlpha(rune(word[0])) {
		return 0, false
	}
	return TypePrefixKind, true
}

// isBuiltinTypePrefix reports whether word is one of the fixed @Style/etc
// prefixes as opposed to a user-defined origin type like @Vue.
func isBuiltinTypePrefix(word string) bool {
	return builtinTypePrefixes[word]
}

// isHTMLElement reports whether word names a standard HTML5 element, using
// the same atom table the teacher consults for tag identity.
func isHTMLElement(word string) bool {
	return atom.Lookup([]byte(word)) != 0
}

// isSelfClosing reports whether tag is in the fixed self-closing set.
func isSelfClosing(tag string) bool {
	return selfClosingElements[tag]
}

// IsSelfClosing is the exported form isSelfClosing, for the generator
// (component L), which lives in a separate package.
func IsSelfClosing(tag string) bool {
	return isSelfClosing(tag)
}

// IsHTMLElement is the exported form of isHTMLElement, for the generator.
func IsHTMLElement(word string) bool {
	return isHTMLElement(word)
}

func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentChar(r rune) bool {
	return isAlpha(r) || isDigit(r) || r == '_' || r == '-'
}
