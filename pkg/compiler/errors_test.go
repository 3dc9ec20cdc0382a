package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageStringNames(t *testing.T) {
	assert.Equal(t, "lex error", StageLex.String())
	assert.Equal(t, "syntax error", StageSyntax.String())
	assert.Equal(t, "semantic error", StageSemantic.String())
	assert.Equal(t, "type error", StageType.String())
	assert.Equal(t, "internal error", StageInternal.String())
}

func TestCompileErrorIncludesPositionWhenKnown(t *testing.T) {
	err := lexError(3, 7, "unexpected character %q", '@')
	assert.Contains(t, err.Error(), "line 3")
	assert.Contains(t, err.Error(), "col 7")
	assert.Contains(t, err.Error(), "unexpected character '@'")
}

func TestCompileErrorOmitsPositionWhenZero(t *testing.T) {
	err := internalError("unreachable: %s", "bad state")
	assert.NotContains(t, err.Error(), "line 0")
	assert.Contains(t, err.Error(), "unreachable: bad state")
}

func TestErrorConstructorsTagCorrectStage(t *testing.T) {
	assert.Equal(t, StageLex, lexError(1, 1, "x").Stage)
	assert.Equal(t, StageSyntax, syntaxError(1, 1, "x").Stage)
	assert.Equal(t, StageSemantic, semanticError("x").Stage)
	assert.Equal(t, StageType, typeError("x").Stage)
	assert.Equal(t, StageInternal, internalError("x").Stage)
}

func TestCompileErrorSatisfiesErrorInterface(t *testing.T) {
	var err error = semanticError("redeclaration of %q", "x")
	assert.EqualError(t, &CompileError{Stage: StageSemantic, Message: "redeclaration of \"x\""}, err.Error())
}
