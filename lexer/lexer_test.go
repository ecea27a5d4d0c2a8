package lexer

import "testing"

func TestBasicTokens(t *testing.T) {
	input := []byte(`( ) { } , . - + ; / * ! != = == > >= < <=`)
	want := []Kind{
		LeftParen, RightParen, LeftBrace, RightBrace, Comma, Dot, Minus, Plus,
		Semicolon, Slash, Star, Bang, BangEqual, Equal, EqualEqual, Greater,
		GreaterEqual, Less, LessEqual, EOF,
	}

	l := New(input)
	for i, k := range want {
		tok := l.Next()
		if tok.Kind != k {
			t.Errorf("token[%d] kind = %v, want %v (lexeme %q)", i, tok.Kind, k, tok.Lexeme)
		}
	}
}

func TestKeywordsVsIdentifiers(t *testing.T) {
	input := []byte("class classify fun funny nil nilable")
	want := []struct {
		kind   Kind
		lexeme string
	}{
		{Class, "class"},
		{Identifier, "classify"},
		{Fun, "fun"},
		{Identifier, "funny"},
		{Nil, "nil"},
		{Identifier, "nilable"},
		{EOF, ""},
	}

	l := New(input)
	for i, exp := range want {
		tok := l.Next()
		if tok.Kind != exp.kind {
			t.Errorf("token[%d] kind = %v, want %v", i, tok.Kind, exp.kind)
		}
		if string(tok.Lexeme) != exp.lexeme {
			t.Errorf("token[%d] lexeme = %q, want %q", i, tok.Lexeme, exp.lexeme)
		}
	}
}

func TestNumbers(t *testing.T) {
	for _, tc := range []string{"0", "42", "3.14", "1234.5678"} {
		l := New([]byte(tc))
		tok := l.Next()
		if tok.Kind != Number || string(tok.Lexeme) != tc {
			t.Errorf("number %q: got kind=%v lexeme=%q", tc, tok.Kind, tok.Lexeme)
		}
	}
}

func TestNoTrailingOrLeadingDot(t *testing.T) {
	l := New([]byte("1. .5"))
	tok := l.Next()
	if tok.Kind != Number || string(tok.Lexeme) != "1" {
		t.Fatalf("got %v %q", tok.Kind, tok.Lexeme)
	}
	tok = l.Next()
	if tok.Kind != Dot {
		t.Fatalf("expected Dot, got %v", tok.Kind)
	}
	tok = l.Next()
	if tok.Kind != Dot {
		t.Fatalf("expected leading Dot before 5, got %v", tok.Kind)
	}
}

func TestStringLiteral(t *testing.T) {
	l := New([]byte(`"hello world"`))
	tok := l.Next()
	if tok.Kind != String || string(tok.Lexeme) != `"hello world"` {
		t.Fatalf("got %v %q", tok.Kind, tok.Lexeme)
	}
}

func TestStringSpansNewlinesAndCountsLines(t *testing.T) {
	l := New([]byte("\"a\nb\" nil"))
	tok := l.Next()
	if tok.Kind != String {
		t.Fatalf("expected String, got %v", tok.Kind)
	}
	tok = l.Next()
	if tok.Kind != Nil || tok.Line != 2 {
		t.Fatalf("expected Nil on line 2, got %v line %d", tok.Kind, tok.Line)
	}
}

func TestUnterminatedString(t *testing.T) {
	l := New([]byte(`"never closed`))
	tok := l.Next()
	if tok.Kind != Error {
		t.Fatalf("expected Error, got %v", tok.Kind)
	}
}

func TestCommentsSkipped(t *testing.T) {
	l := New([]byte("// a line comment\nvar /* inline */ x = 1;"))
	tok := l.Next()
	if tok.Kind != Var {
		t.Fatalf("expected Var, got %v (%q)", tok.Kind, tok.Lexeme)
	}
}

func TestUnterminatedBlockComment(t *testing.T) {
	l := New([]byte("/* never closed"))
	tok := l.Next()
	if tok.Kind != Error {
		t.Fatalf("expected Error, got %v", tok.Kind)
	}
}

func TestUnexpectedCharacter(t *testing.T) {
	l := New([]byte("@"))
	tok := l.Next()
	if tok.Kind != Error {
		t.Fatalf("expected Error, got %v", tok.Kind)
	}
}

func TestLineTracking(t *testing.T) {
	l := New([]byte("1\n2\n3"))
	for i, want := range []int{1, 2, 3} {
		tok := l.Next()
		if tok.Line != want {
			t.Errorf("token[%d] line = %d, want %d", i, tok.Line, want)
		}
	}
}
