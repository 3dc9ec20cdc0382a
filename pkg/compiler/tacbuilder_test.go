package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTACFromSource(t *testing.T, src string) *TACProgram {
	t.Helper()
	tokens, err := Lex(src)
	require.NoError(t, err)
	prog, err := Parse(tokens)
	require.NoError(t, err)
	ctx := NewContext()
	require.NoError(t, ResolveProgram(prog, ctx))
	syms, err := TypeCheck(prog)
	require.NoError(t, err)
	tac, err := BuildTAC(prog, syms, ctx)
	require.NoError(t, err)
	return tac
}

func TestBuildTACEmitsBinaryForArithmetic(t *testing.T) {
	tac := buildTACFromSource(t, `int main(void) { return 2 + 3; }`)
	require.Len(t, tac.Functions, 1)
	fn := tac.Functions[0]
	assert.Equal(t, "main", fn.Name)
	assert.True(t, fn.Global)

	var sawBinary bool
	for _, instr := range fn.Body {
		if _, ok := instr.(TACBinary); ok {
			sawBinary = true
		}
	}
	assert.True(t, sawBinary)
}

func TestBuildTACShortCircuitsLogicalAnd(t *testing.T) {
	tac := buildTACFromSource(t, `
int main(void) {
    int x = 1;
    int y = 0;
    return x && y;
}
`)
	fn := tac.Functions[0]
	var sawJumpIfZero bool
	for _, instr := range fn.Body {
		if _, ok := instr.(TACJumpIfZero); ok {
			sawJumpIfZero = true
		}
	}
	assert.True(t, sawJumpIfZero, "expected short-circuit lowering of && to use a conditional jump")
}

func TestBuildTACLowersWhileLoopToLabelsAndJumps(t *testing.T) {
	tac := buildTACFromSource(t, `
int main(void) {
    int i = 0;
    while (i < 3) { i = i + 1; }
    return i;
}
`)
	fn := tac.Functions[0]
	var sawLabel, sawJump bool
	for _, instr := range fn.Body {
		switch instr.(type) {
		case TACLabel:
			sawLabel = true
		case TACJump:
			sawJump = true
		}
	}
	assert.True(t, sawLabel)
	assert.True(t, sawJump)
}

func TestBuildTACEmitsFunCallForCallExpression(t *testing.T) {
	tac := buildTACFromSource(t, `
int add(int a, int b) { return a + b; }
int main(void) { return add(1, 2); }
`)
	require.Len(t, tac.Functions, 2)
	var mainFn *TACFunctionDefinition
	for _, fn := range tac.Functions {
		if fn.Name == "main" {
			mainFn = fn
		}
	}
	require.NotNil(t, mainFn)

	var sawCall bool
	for _, instr := range mainFn.Body {
		if c, ok := instr.(TACFunCall); ok && c.Name == "add" {
			sawCall = true
		}
	}
	assert.True(t, sawCall)
}

func TestBuildTACCollectsStaticVariables(t *testing.T) {
	tac := buildTACFromSource(t, `
int counter = 5;
int uninitialized;

int next(void) { return counter; }
`)
	require.Len(t, tac.Statics, 2)
	byName := map[string]*TACStaticVariable{}
	for _, s := range tac.Statics {
		byName[s.Name] = s
	}
	require.Contains(t, byName, "counter")
	require.Contains(t, byName, "uninitialized")
	require.Len(t, byName["counter"].Init, 1)
	assert.Equal(t, uint64(5), byName["counter"].Init[0].Int)
	assert.Nil(t, byName["uninitialized"].Init)
}

func TestBuildTACLowersPointerLoadAndStore(t *testing.T) {
	tac := buildTACFromSource(t, `
int deref(int *p) { return *p; }
`)
	fn := tac.Functions[0]
	var sawLoad bool
	for _, instr := range fn.Body {
		if _, ok := instr.(TACLoad); ok {
			sawLoad = true
		}
	}
	assert.True(t, sawLoad)
}

func TestBuildTACLowersDoubleConversions(t *testing.T) {
	tac := buildTACFromSource(t, `
int truncate(double d) { return (int) d; }
`)
	fn := tac.Functions[0]
	var sawConvert bool
	for _, instr := range fn.Body {
		if _, ok := instr.(TACDoubleToInt); ok {
			sawConvert = true
		}
	}
	assert.True(t, sawConvert)
}
