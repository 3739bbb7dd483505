package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/upplang/upp/lexer"
	"github.com/upplang/upp/token"
)

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestTokeniseSimpleDefinition(t *testing.T) {
	pool := token.NewPool()
	toks := lexer.Tokenise(`main :: () -> i32`, pool)

	assert.Equal(t, []token.Kind{
		token.IDENTIFIER, token.OPERATOR, token.PARENTHESIS, token.PARENTHESIS,
		token.OPERATOR, token.IDENTIFIER,
	}, kinds(toks))
	assert.Equal(t, token.DOUBLE_COLON, toks[1].Operator)
	assert.Equal(t, token.ARROW, toks[4].Operator)
}

func TestTokeniseKeywords(t *testing.T) {
	pool := token.NewPool()
	toks := lexer.Tokenise(`if x return else`, pool)
	assert.Equal(t, token.KEYWORD, toks[0].Kind)
	assert.Equal(t, token.IF, toks[0].Keyword)
	assert.Equal(t, token.IDENTIFIER, toks[1].Kind)
	assert.Equal(t, token.RETURN, toks[2].Keyword)
	assert.Equal(t, token.ELSE, toks[3].Keyword)
}

func TestTokeniseIdentifierInterning(t *testing.T) {
	pool := token.NewPool()
	a := lexer.Tokenise(`foo`, pool)
	b := lexer.Tokenise(`foo bar`, pool)
	assert.Same(t, a[0].Identifier, b[0].Identifier)
	assert.NotSame(t, a[0].Identifier, b[1].Identifier)
}

func TestTokeniseNumbers(t *testing.T) {
	pool := token.NewPool()
	toks := lexer.Tokenise(`1 2.5 10 .`, pool)
	assert.Equal(t, token.LIT_INTEGER, toks[0].Literal.Kind)
	assert.EqualValues(t, 1, toks[0].Literal.Integer)
	assert.Equal(t, token.LIT_FLOAT, toks[1].Literal.Kind)
	assert.InDelta(t, 2.5, toks[1].Literal.Float, 1e-9)
	assert.Equal(t, token.LIT_INTEGER, toks[2].Literal.Kind)
	assert.Equal(t, token.OPERATOR, toks[3].Kind)
	assert.Equal(t, token.DOT, toks[3].Operator)
}

func TestTokeniseInvalidNumberWithLetters(t *testing.T) {
	pool := token.NewPool()
	toks := lexer.Tokenise(`123abc`, pool)
	assert.Len(t, toks, 1)
	assert.Equal(t, token.INVALID, toks[0].Kind)
}

func TestTokeniseString(t *testing.T) {
	pool := token.NewPool()
	toks := lexer.Tokenise(`"hello\nworld"`, pool)
	assert.Equal(t, token.LITERAL, toks[0].Kind)
	assert.Equal(t, token.LIT_STRING, toks[0].Literal.Kind)
	assert.Equal(t, "hello\nworld", toks[0].Literal.String)
}

func TestTokeniseUnterminatedString(t *testing.T) {
	pool := token.NewPool()
	toks := lexer.Tokenise(`"unterminated`, pool)
	assert.Equal(t, token.INVALID, toks[0].Kind)
}

func TestTokeniseLineComment(t *testing.T) {
	pool := token.NewPool()
	toks := lexer.Tokenise(`x := 1 // a comment`, pool)
	assert.Equal(t, token.COMMENT, toks[len(toks)-1].Kind)
}

func TestTokeniseOperatorsLongestMatch(t *testing.T) {
	pool := token.NewPool()
	toks := lexer.Tokenise(`:= :=* :=~ *== *!= ~** ~* ~`, pool)
	want := []token.Operator{
		token.DEFINE_INFER, token.DEFINE_PTR, token.DEFINE_TILDE,
		token.PTR_EQ, token.PTR_NEQ, token.TILDE_PTR_PTR, token.TILDE_PTR, token.TILDE,
	}
	assert.Len(t, toks, len(want))
	for i, op := range want {
		assert.Equal(t, op, toks[i].Operator, "token %d", i)
	}
}

func TestTokeniseParenthesisKinds(t *testing.T) {
	pool := token.NewPool()
	toks := lexer.Tokenise(`([{}])`, pool)
	wantOpen := []bool{true, true, true, false, false, false}
	wantKind := []token.ParenKind{token.ROUND, token.SQUARE, token.CURLY, token.CURLY, token.SQUARE, token.ROUND}
	for i, tok := range toks {
		assert.Equal(t, token.PARENTHESIS, tok.Kind)
		assert.Equal(t, wantOpen[i], tok.Paren.IsOpen)
		assert.Equal(t, wantKind[i], tok.Paren.Kind)
	}
}
