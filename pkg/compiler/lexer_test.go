package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenTypes(t *testing.T, tokens []Token) []TokenType {
	t.Helper()
	var types []TokenType
	for _, tok := range tokens {
		types = append(types, tok.Type)
	}
	return types
}

func TestLexKeywordsAndIdentifiers(t *testing.T) {
	tokens, err := Lex("int x static extern return")
	require.NoError(t, err)
	assert.Equal(t, []TokenType{INT, IDENTIFIER, STATIC, EXTERN, RETURN, EOF}, tokenTypes(t, tokens))
}

func TestLexIntegerLiteralSuffixes(t *testing.T) {
	tokens, err := Lex("42 42L 42u 42UL")
	require.NoError(t, err)
	require.Len(t, tokens, 5)
	assert.Equal(t, INTEGER, tokens[0].Type)
	assert.Equal(t, INTEGER_LONG, tokens[1].Type)
	assert.Equal(t, INTEGER_UNS, tokens[2].Type)
	assert.Equal(t, INTEGER_ULONG, tokens[3].Type)
}

func TestLexFloatLiteralWithExponent(t *testing.T) {
	tokens, err := Lex("3.14 1e10 2.5e-3")
	require.NoError(t, err)
	require.Len(t, tokens, 4)
	for _, tok := range tokens[:3] {
		assert.Equal(t, FLOAT, tok.Type)
	}
}

func TestLexRejectsLSuffixOnFloat(t *testing.T) {
	_, err := Lex("1.5L")
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StageLex, ce.Stage)
}

func TestLexRejectsDuplicateSuffix(t *testing.T) {
	_, err := Lex("5LL")
	require.Error(t, err)
}

func TestLexOperatorsAndPunctuation(t *testing.T) {
	tokens, err := Lex("+ ++ += - -- -= << <<= >> >>= == != <= >=")
	require.NoError(t, err)
	want := []TokenType{
		PLUS, PLUS_PLUS, PLUS_ASSIGN, MINUS, MINUS_MINUS, MINUS_ASSIGN,
		SHL, SHL_ASSIGN, SHR, SHR_ASSIGN, EQUALS, NOT_EQ, LESS_EQ, GREATER_EQ, EOF,
	}
	assert.Equal(t, want, tokenTypes(t, tokens))
}

func TestLexStringLiteralWithEscapes(t *testing.T) {
	tokens, err := Lex(`"a\nb"`)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, STRING, tokens[0].Type)
	assert.Equal(t, "a\nb", tokens[0].Lexeme)
}

func TestLexCharLiteral(t *testing.T) {
	tokens, err := Lex(`'a'`)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, CHAR_LIT, tokens[0].Type)
}

func TestLexRejectsUnterminatedString(t *testing.T) {
	_, err := Lex(`"abc`)
	require.Error(t, err)
}

func TestLexRejectsUnterminatedBlockComment(t *testing.T) {
	_, err := Lex("/* oops")
	require.Error(t, err)
}

func TestLexSkipsLineAndBlockComments(t *testing.T) {
	tokens, err := Lex("int x; // trailing comment\n/* block */ int y;")
	require.NoError(t, err)
	assert.Equal(t, []TokenType{INT, IDENTIFIER, SEMICOLON, INT, IDENTIFIER, SEMICOLON, EOF}, tokenTypes(t, tokens))
}

func TestLexRejectsUnexpectedCharacter(t *testing.T) {
	_, err := Lex("int x = 1 @ 2;")
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StageLex, ce.Stage)
}

func TestLexTracksLineAndColumn(t *testing.T) {
	tokens, err := Lex("int\nx;")
	require.NoError(t, err)
	require.Len(t, tokens, 4)
	assert.Equal(t, 1, tokens[0].Line)
	assert.Equal(t, 2, tokens[1].Line)
}
