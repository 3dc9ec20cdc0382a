package compiler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selectFromSource(t *testing.T, src string) (*AsmProgram, *AsmSymbolTable) {
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
	asmProg, asmSyms, err := SelectCode(tac, syms)
	require.NoError(t, err)
	return asmProg, asmSyms
}

func TestSelectCodeRecordsDefinedFunctions(t *testing.T) {
	_, asmSyms := selectFromSource(t, `
int add(int a, int b) { return a + b; }
int main(void) { return add(1, 2); }
`)
	entry, ok := asmSyms.Function("add")
	require.True(t, ok)
	assert.True(t, entry.Defined)

	entry, ok = asmSyms.Function("main")
	require.True(t, ok)
	assert.True(t, entry.Defined)

	_, ok = asmSyms.Function("missing")
	assert.False(t, ok)
}

func TestSelectCodeRecordsStaticObjectWidth(t *testing.T) {
	_, asmSyms := selectFromSource(t, `
int counter = 0;
long total = 0;

int next(void) { counter = counter + 1; return counter; }
`)
	obj, ok := asmSyms.Object("counter")
	require.True(t, ok)
	assert.Equal(t, 4, obj.Width)
	assert.True(t, obj.IsStatic)

	obj, ok = asmSyms.Object("total")
	require.True(t, ok)
	assert.Equal(t, 8, obj.Width)
}

func TestSelectCodeLowersArithmeticToAsmBinary(t *testing.T) {
	asmProg, _ := selectFromSource(t, `int main(void) { return 2 + 3; }`)
	require.Len(t, asmProg.Functions, 1)
	fn := asmProg.Functions[0]
	assert.Equal(t, "main", fn.Name)
	assert.True(t, fn.Global)

	var sawAdd bool
	for _, instr := range fn.Body {
		if b, ok := instr.(AsmBinary); ok && b.Op == OpAdd {
			sawAdd = true
		}
	}
	assert.True(t, sawAdd, "expected an AsmBinary add in %v", fn.Body)
}

func TestSelectCodeEmitsCallInstruction(t *testing.T) {
	asmProg, _ := selectFromSource(t, `
int add(int a, int b) { return a + b; }
int main(void) { return add(3, 4); }
`)
	require.Len(t, asmProg.Functions, 2)
	var mainFn *AsmFunction
	for _, fn := range asmProg.Functions {
		if fn.Name == "main" {
			mainFn = fn
		}
	}
	require.NotNil(t, mainFn)

	var sawCall bool
	for _, instr := range mainFn.Body {
		if c, ok := instr.(AsmCall); ok && c.Target == "add" {
			sawCall = true
		}
	}
	assert.True(t, sawCall, "expected a call to add in %v", mainFn.Body)
}

func TestSelectCodeAppendsNegateMaskOnlyWhenReferenced(t *testing.T) {
	withNeg, _ := selectFromSource(t, `
double negate(double x) { return -x; }
int main(void) { return (int) negate(1.0); }
`)
	var found bool
	for _, f := range withNeg.Floats {
		if f.Label == NegDoubleMaskLabel {
			found = true
			assert.Equal(t, negDoubleMaskBits, math.Float64bits(f.Value))
		}
	}
	assert.True(t, found, "expected NegDoubleMaskLabel in %v", withNeg.Floats)

	without, _ := selectFromSource(t, `int main(void) { return 1 + 2; }`)
	for _, f := range without.Floats {
		assert.NotEqual(t, NegDoubleMaskLabel, f.Label)
	}
}
