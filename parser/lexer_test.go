package parser

import (
	"testing"
)

func TestLexer_BasicTokens(t *testing.T) {
	input := "mov r0, #42"
	lexer := NewLexer(input, "test.gvasm")

	expected := []TokenType{
		TokenIdentifier, // mov
		TokenIdentifier, // r0
		TokenComma,
		TokenHash,
		TokenNumber,
		TokenEOF,
	}
	for i, want := range expected {
		tok := lexer.NextToken()
		if tok.Type != want {
			t.Errorf("token %d: expected %v, got %v (%q)", i, want, tok.Type, tok.Literal)
		}
	}
	if lexer.Errors().HasErrors() {
		t.Errorf("unexpected lexer errors: %v", lexer.Errors())
	}
}

func TestLexer_Numbers(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		isFloat bool
	}{
		{"42", 42, false},
		{"0x10", 16, false},
		{"0b1010", 10, false},
		{"0c17", 15, false},
		{"1_000_000", 1000000, false},
		{"0xFF_FF", 65535, false},
		{"1.5", 1.5, true},
		{"2e3", 2000, true},
		{"1.25e2", 125, true},
		{".5", 0.5, true},
	}
	for _, tt := range tests {
		lexer := NewLexer(tt.input, "test.gvasm")
		tok := lexer.NextToken()
		if tok.Type != TokenNumber {
			t.Errorf("%q: expected number, got %v", tt.input, tok.Type)
			continue
		}
		if tok.Num != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.input, tt.want, tok.Num)
		}
		if tok.IsFloat != tt.isFloat {
			t.Errorf("%q: expected isFloat=%v", tt.input, tt.isFloat)
		}
		if lexer.Errors().HasErrors() {
			t.Errorf("%q: unexpected errors: %v", tt.input, lexer.Errors())
		}
	}
}

func TestLexer_InvalidDigit(t *testing.T) {
	lexer := NewLexer("0b102", "test.gvasm")
	lexer.NextToken()
	if !lexer.Errors().HasErrors() {
		t.Error("expected a lex error for 0b102")
	}
}

func TestLexer_Strings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`'hello'`, "hello"},
		{`'it''s'`, "it's"},
		{`"tab\there"`, "tab\there"},
		{`"\x41\x42"`, "AB"},
		{`"A"`, "A"},
		{`"nul\0byte"`, "nul\x00byte"},
	}
	for _, tt := range tests {
		lexer := NewLexer(tt.input, "test.gvasm")
		tok := lexer.NextToken()
		if tok.Type != TokenString {
			t.Errorf("%s: expected string, got %v", tt.input, tok.Type)
			continue
		}
		if string(tok.Str) != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.input, tt.want, tok.Str)
		}
	}
}

func TestLexer_StringInterpolation(t *testing.T) {
	lexer := NewLexer(`"a${x + 1}b"`, "test.gvasm")
	tok := lexer.NextToken()
	if tok.Type != TokenString {
		t.Fatalf("expected string, got %v", tok.Type)
	}
	if len(tok.Parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(tok.Parts))
	}
	if string(tok.Parts[0].Text) != "a" || string(tok.Parts[2].Text) != "b" {
		t.Errorf("unexpected literal parts: %q %q", tok.Parts[0].Text, tok.Parts[2].Text)
	}
	if len(tok.Parts[1].Expr) != 3 {
		t.Errorf("expected 3 interpolation tokens, got %d", len(tok.Parts[1].Expr))
	}
}

func TestLexer_Labels(t *testing.T) {
	lexer := NewLexer("main: mov r0, #1\n@L1: mov r1, #2", "test.gvasm")

	tok := lexer.NextToken()
	if tok.Type != TokenLabel || tok.Literal != "main" || tok.AtLabel {
		t.Errorf("expected label main, got %v %q", tok.Type, tok.Literal)
	}
	// skip to next line
	for tok.Type != TokenNewline {
		tok = lexer.NextToken()
	}
	tok = lexer.NextToken()
	if tok.Type != TokenLabel || tok.Literal != "@L1" || !tok.AtLabel {
		t.Errorf("expected @L1 line-label, got %v %q", tok.Type, tok.Literal)
	}
}

func TestLexer_KeywordsAndDottedIdents(t *testing.T) {
	lexer := NewLexer(".arm\nmov.eq r0, r1\n.i8 S.b._bytes", "test.gvasm")
	var got []Token
	for {
		tok := lexer.NextToken()
		if tok.Type == TokenEOF {
			break
		}
		got = append(got, tok)
	}
	if got[0].Type != TokenKeyword || got[0].Literal != ".arm" {
		t.Errorf("expected keyword .arm, got %v %q", got[0].Type, got[0].Literal)
	}
	if got[2].Type != TokenIdentifier || got[2].Literal != "mov.eq" {
		t.Errorf("expected identifier mov.eq, got %v %q", got[2].Type, got[2].Literal)
	}
	var last Token
	for _, tok := range got {
		last = tok
	}
	if last.Type != TokenIdentifier || last.Literal != "S.b._bytes" {
		t.Errorf("expected identifier S.b._bytes, got %v %q", last.Type, last.Literal)
	}
}

func TestLexer_CommentsAndContinuation(t *testing.T) {
	input := "mov r0, #1 // comment\n/* block\ncomment */ mov r1, \\\n#2"
	lexer := NewLexer(input, "test.gvasm")
	var kinds []TokenType
	for {
		tok := lexer.NextToken()
		if tok.Type == TokenEOF {
			break
		}
		kinds = append(kinds, tok.Type)
	}
	want := []TokenType{
		TokenIdentifier, TokenIdentifier, TokenComma, TokenHash, TokenNumber, TokenNewline,
		TokenIdentifier, TokenIdentifier, TokenComma, TokenHash, TokenNumber,
	}
	if len(kinds) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %v", len(want), len(kinds), kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("token %d: expected %v, got %v", i, want[i], kinds[i])
		}
	}
}

func TestLexer_Semicolon(t *testing.T) {
	lexer := NewLexer("mov r0, #1 ; mov r1, #2", "test.gvasm")
	sawNewline := false
	for {
		tok := lexer.NextToken()
		if tok.Type == TokenEOF {
			break
		}
		if tok.Type == TokenNewline {
			sawNewline = true
		}
	}
	if !sawNewline {
		t.Error("expected ; to produce a statement separator")
	}
}

func TestLexer_Operators(t *testing.T) {
	lexer := NewLexer(">>> >> << <= >= == != && || ? :", "test.gvasm")
	want := []TokenType{
		TokenRShiftU, TokenRShift, TokenLShift, TokenLessEqual, TokenGreaterEqual,
		TokenEqualEqual, TokenNotEqual, TokenAndAnd, TokenOrOr, TokenQuestion, TokenColon,
	}
	for i, w := range want {
		tok := lexer.NextToken()
		if tok.Type != w {
			t.Errorf("token %d: expected %v, got %v", i, w, tok.Type)
		}
	}
}

func TestLexer_UnterminatedString(t *testing.T) {
	lexer := NewLexer(`"oops`, "test.gvasm")
	lexer.NextToken()
	if !lexer.Errors().HasErrors() {
		t.Error("expected an error for an unterminated string")
	}
}
