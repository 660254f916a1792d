package compiler

import "testing"

func lexAll(t *testing.T, src string) []Token {
	t.Helper()
	lx, err := NewLexer(src)
	if err != nil {
		t.Fatalf("lex %q: %v", src, err)
	}
	var toks []Token
	for {
		tok := lx.NextToken()
		toks = append(toks, tok)
		if tok.Type == TokEOF {
			return toks
		}
	}
}

func tokenTypes(toks []Token) []TokenType {
	out := make([]TokenType, len(toks))
	for i, t := range toks {
		out[i] = t.Type
	}
	return out
}

func assertTypes(t *testing.T, src string, want []TokenType) {
	t.Helper()
	got := tokenTypes(lexAll(t, src))
	if len(got) != len(want) {
		t.Fatalf("lex %q: got %d tokens %v, want %d %v", src, len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("lex %q: token[%d] = %v, want %v", src, i, got[i], want[i])
		}
	}
}

func TestLexerPunctuation(t *testing.T) {
	assertTypes(t, "(){}[]:,.", []TokenType{
		TokLParen, TokRParen, TokLBrace, TokRBrace, TokLBracket, TokRBracket,
		TokColon, TokComma, TokDot, TokNewline, TokEOF,
	})
}

func TestLexerOperators(t *testing.T) {
	assertTypes(t, "+ - * ** / // % == != <= >= < >", []TokenType{
		TokPlus, TokMinus, TokStar, TokDoubleStar, TokSlash, TokDoubleSlash,
		TokPercent, TokEq, TokNe, TokLe, TokGe, TokLt, TokGt, TokNewline, TokEOF,
	})
}

func TestLexerKeywords(t *testing.T) {
	assertTypes(t, "def class if elif else return", []TokenType{
		TokDef, TokClass, TokIf, TokElif, TokElse, TokReturn, TokNewline, TokEOF,
	})
}

func TestLexerIntegerLiteral(t *testing.T) {
	toks := lexAll(t, "42")
	if toks[0].Type != TokInt || toks[0].Literal != "42" {
		t.Errorf("got %v, want INT(42)", toks[0])
	}
}

func TestLexerFloatLiteral(t *testing.T) {
	toks := lexAll(t, "3.14")
	if toks[0].Type != TokFloat || toks[0].Literal != "3.14" {
		t.Errorf("got %v, want FLOAT(3.14)", toks[0])
	}
}

func TestLexerStringLiteral(t *testing.T) {
	toks := lexAll(t, `"hello"`)
	if toks[0].Type != TokString {
		t.Errorf("got %v, want STRING", toks[0])
	}
}

func TestLexerIndentDedent(t *testing.T) {
	src := "if x:\n    y = 1\nz = 2\n"
	types := tokenTypes(lexAll(t, src))
	var sawIndent, sawDedent bool
	for _, tt := range types {
		if tt == TokIndent {
			sawIndent = true
		}
		if tt == TokDedent {
			sawDedent = true
		}
	}
	if !sawIndent {
		t.Errorf("expected an INDENT token in %v", types)
	}
	if !sawDedent {
		t.Errorf("expected a DEDENT token in %v", types)
	}
}

func TestLexerParenSuppressesNewline(t *testing.T) {
	src := "(1,\n2)"
	types := tokenTypes(lexAll(t, src))
	for _, tt := range types {
		if tt == TokRParen {
			break
		}
		if tt == TokNewline {
			t.Errorf("unexpected NEWLINE inside parens: %v", types)
		}
	}
}

func TestLexerNameToken(t *testing.T) {
	toks := lexAll(t, "foo_bar")
	if toks[0].Type != TokName || toks[0].Literal != "foo_bar" {
		t.Errorf("got %v, want NAME(foo_bar)", toks[0])
	}
}
