package chtl

import (
	"reflect"
	"testing"

	"github.com/chtl-lang/chtl/internal/handler"
)

type tokenKindTest struct {
	name     string
	input    string
	expected []TokenKind
}

func lexKinds(t *testing.T, input string) []TokenKind {
	t.Helper()
	h := handler.NewHandler(input, "test.chtl")
	toks := Lex([]byte(input), "test.chtl", h, nil)
	kinds := make([]TokenKind, 0, len(toks))
	for _, tok := range toks {
		if tok.Kind == EOFKind {
			continue
		}
		kinds = append(kinds, tok.Kind)
	}
	return kinds
}

func runTokenKindTests(t *testing.T, cases []tokenKindTest) {
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got := lexKinds(t, tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Lex(%q) kinds = %v\nexpected = %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLexBasic(t *testing.T) {
	runTokenKindTests(t, []tokenKindTest{
		{"ident", "box", []TokenKind{IdentKind}},
		{"html element", "div", []TokenKind{HTMLElementKind}},
		{"keyword text", "text", []TokenKind{KeywordKind}},
		{"keyword style", "style", []TokenKind{KeywordKind}},
		{"block tag", "[Template]", []TokenKind{BlockTagKind}},
		{"type prefix", "@Style", []TokenKind{TypePrefixKind}},
		{"string double-quoted", `"hello"`, []TokenKind{StringKind}},
		{"string single-quoted", `'hello'`, []TokenKind{StringKind}},
		{"number integer", "42", []TokenKind{NumberKind}},
		{"number decimal", "3.14", []TokenKind{NumberKind}},
		{"line comment", "// a comment", []TokenKind{LineCommentKind}},
		{"block comment", "/* a comment */", []TokenKind{BlockCommentKind}},
		{"generator comment", "-- keep me", []TokenKind{GeneratorCommentKind}},
		{"punct brace", "{", []TokenKind{PunctKind}},
		{
			"element body skeleton",
			`div { style { color: red; } }`,
			[]TokenKind{
				HTMLElementKind, PunctKind,
				KeywordKind, PunctKind,
				IdentKind, PunctKind, IdentKind, PunctKind,
				PunctKind, PunctKind,
			},
		},
	})
}

func TestLexStringEscapes(t *testing.T) {
	h := handler.NewHandler(`"a\nb\"c"`, "test.chtl")
	toks := Lex([]byte(`"a\nb\"c"`), "test.chtl", h, nil)
	if toks[0].Kind != StringKind {
		t.Fatalf("expected StringKind, got %s", toks[0].Kind)
	}
	if toks[0].Lexeme != "a\nb\"c" {
		t.Errorf("Lexeme = %q, want %q", toks[0].Lexeme, "a\nb\"c")
	}
}

func TestLexUnterminatedStringReportsError(t *testing.T) {
	h := handler.NewHandler(`"unterminated`, "test.chtl")
	Lex([]byte(`"unterminated`), "test.chtl", h, nil)
	if !h.HasErrors() {
		t.Errorf("expected an error for an unterminated string literal")
	}
}

func TestLexUnterminatedBlockCommentReportsError(t *testing.T) {
	h := handler.NewHandler(`/* unterminated`, "test.chtl")
	Lex([]byte(`/* unterminated`), "test.chtl", h, nil)
	if !h.HasErrors() {
		t.Errorf("expected an error for an unterminated block comment")
	}
}

func TestLexUnknownBlockTagReportsError(t *testing.T) {
	h := handler.NewHandler(`[NotARealTag]`, "test.chtl")
	Lex([]byte(`[NotARealTag]`), "test.chtl", h, nil)
	if !h.HasErrors() {
		t.Errorf("expected an error for an unknown bracketed tag")
	}
}

func TestLexMalformedBlockTagReportsError(t *testing.T) {
	h := handler.NewHandler(`[Template`, "test.chtl")
	Lex([]byte(`[Template`), "test.chtl", h, nil)
	if !h.HasErrors() {
		t.Errorf("expected an error for a bracketed tag missing its closing ']'")
	}
}

func TestLexUnknownCharacterReportsError(t *testing.T) {
	h := handler.NewHandler("div ~ span", "test.chtl")
	toks := Lex([]byte("div ~ span"), "test.chtl", h, nil)
	if !h.HasErrors() {
		t.Errorf("expected an error for the unrecognized '~' character")
	}
	var sawError bool
	for _, tok := range toks {
		if tok.Kind == ErrorKind {
			sawError = true
		}
	}
	if !sawError {
		t.Errorf("expected an ErrorKind token in %v", toks)
	}
}

func TestLexKeywordAliasIsApplied(t *testing.T) {
	aliases := newAliasTable()
	aliases.DefineKeywordGroup("text", []string{"txt"})

	h := handler.NewHandler("txt", "test.chtl")
	toks := Lex([]byte("txt"), "test.chtl", h, aliases)
	if len(toks) == 0 || toks[0].Kind != KeywordKind {
		t.Fatalf("expected the aliased identifier to resolve to KeywordKind, got %v", toks)
	}
	if toks[0].Lexeme != "text" {
		t.Errorf("Lexeme = %q, want canonical %q", toks[0].Lexeme, "text")
	}
}

func TestLexTypePrefixAliasIsApplied(t *testing.T) {
	aliases := newAliasTable()
	aliases.DefineTypePrefixGroup("Style", []string{"Zs"})

	h := handler.NewHandler("@Zs", "test.chtl")
	toks := Lex([]byte("@Zs"), "test.chtl", h, aliases)
	if len(toks) == 0 || toks[0].Kind != TypePrefixKind {
		t.Fatalf("expected TypePrefixKind, got %v", toks)
	}
	if toks[0].Lexeme != "Style" {
		t.Errorf("Lexeme = %q, want canonical %q", toks[0].Lexeme, "Style")
	}
}

func TestLexEOFAlwaysTerminatesStream(t *testing.T) {
	h := handler.NewHandler("div", "test.chtl")
	toks := Lex([]byte("div"), "test.chtl", h, nil)
	if len(toks) == 0 || toks[len(toks)-1].Kind != EOFKind {
		t.Fatalf("expected a trailing EOFKind token, got %v", toks)
	}
}
