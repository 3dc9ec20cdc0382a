package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolve(t *testing.T, src string) (*Program, error) {
	t.Helper()
	tokens, err := Lex(src)
	require.NoError(t, err)
	prog, err := Parse(tokens)
	require.NoError(t, err)
	err = ResolveProgram(prog, NewContext())
	return prog, err
}

func TestResolveAlphaRenamesShadowedLocal(t *testing.T) {
	prog, err := resolve(t, `
int main(void) {
    int x = 1;
    { int x = 2; }
    return x;
}
`)
	require.NoError(t, err)
	fn := prog.Declarations[0].(*FunctionDeclaration)
	outer := fn.Body.Items[0].(DeclItem).Decl.(*VariableDeclaration)
	inner := fn.Body.Items[1].(StmtItem).Stmt.(*Block).Items[0].(DeclItem).Decl.(*VariableDeclaration)
	assert.NotEqual(t, outer.Name, inner.Name)

	ret := fn.Body.Items[2].(StmtItem).Stmt.(*Return)
	v := ret.Expr.(*Variable)
	assert.Equal(t, outer.Name, v.Name)
}

func TestResolveRejectsDuplicateDeclarationInSameScope(t *testing.T) {
	_, err := resolve(t, `
int main(void) {
    int x = 1;
    int x = 2;
    return x;
}
`)
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StageSemantic, ce.Stage)
}

func TestResolveRejectsUndeclaredIdentifier(t *testing.T) {
	_, err := resolve(t, `int main(void) { return y; }`)
	require.Error(t, err)
}

func TestResolveRejectsBreakOutsideLoop(t *testing.T) {
	_, err := resolve(t, `int main(void) { break; return 0; }`)
	require.Error(t, err)
}

func TestResolveRejectsContinueOutsideLoop(t *testing.T) {
	_, err := resolve(t, `int main(void) { continue; return 0; }`)
	require.Error(t, err)
}

func TestResolveRejectsGotoToUndefinedLabel(t *testing.T) {
	_, err := resolve(t, `int main(void) { goto nowhere; return 0; }`)
	require.Error(t, err)
}

func TestResolveAcceptsGotoToDefinedLabel(t *testing.T) {
	_, err := resolve(t, `
int main(void) {
    goto done;
    return 1;
done:
    return 0;
}
`)
	require.NoError(t, err)
}

func TestResolveAssignsLoopLabels(t *testing.T) {
	prog, err := resolve(t, `
int main(void) {
    while (1) { break; }
    return 0;
}
`)
	require.NoError(t, err)
	fn := prog.Declarations[0].(*FunctionDeclaration)
	whileStmt := fn.Body.Items[0].(StmtItem).Stmt.(*While)
	assert.NotEmpty(t, whileStmt.Label)
}

func TestResolveRejectsNestedFunctionDefinition(t *testing.T) {
	_, err := resolve(t, `
int outer(void) {
    int inner(void) { return 0; }
    return 0;
}
`)
	require.Error(t, err)
}

func TestResolveRejectsPrefixIncrementOfNonLvalue(t *testing.T) {
	_, err := resolve(t, `
int main(void) {
    int a = 1;
    int b = 2;
    return ++(a + b);
}
`)
	require.Error(t, err)
}

func TestResolveRejectsPrefixDecrementOfNonLvalue(t *testing.T) {
	_, err := resolve(t, `
int main(void) {
    int a = 1;
    return --(a * 2);
}
`)
	require.Error(t, err)
}

func TestResolveAcceptsPrefixIncrementOfVariable(t *testing.T) {
	_, err := resolve(t, `
int main(void) {
    int a = 1;
    return ++a;
}
`)
	require.NoError(t, err)
}
