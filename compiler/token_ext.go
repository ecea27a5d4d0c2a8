package compiler

import "github.com/quill-lang/quill/lexer"

// lexeme returns t's source text as a string. Token lexemes are byte
// slices into the original source buffer; this is the only place the
// compiler copies them out.
func lexeme(t lexer.Token) string {
	return string(t.Lexeme)
}
