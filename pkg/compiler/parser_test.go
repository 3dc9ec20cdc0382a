package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *Program {
	t.Helper()
	tokens, err := Lex(src)
	require.NoError(t, err)
	prog, err := Parse(tokens)
	require.NoError(t, err)
	return prog
}

func TestParseSimpleFunctionDefinition(t *testing.T) {
	prog := mustParse(t, `int main(void) { return 0; }`)
	require.Len(t, prog.Declarations, 1)
	fn, ok := prog.Declarations[0].(*FunctionDeclaration)
	require.True(t, ok)
	assert.Equal(t, "main", fn.Name)
	require.NotNil(t, fn.Body)
	require.Len(t, fn.Body.Items, 1)
}

func TestParseFunctionWithParams(t *testing.T) {
	prog := mustParse(t, `int add(int a, int b) { return a + b; }`)
	fn := prog.Declarations[0].(*FunctionDeclaration)
	assert.Equal(t, []string{"a", "b"}, fn.Params)
	assert.Equal(t, 2, len(fn.Type.Params))
}

func TestParsePointerAndArrayDeclarators(t *testing.T) {
	prog := mustParse(t, `
int sum(int *arr, int n) { return n; }
int values[4];
`)
	fn := prog.Declarations[0].(*FunctionDeclaration)
	assert.True(t, fn.Type.Params[0].IsPointer())

	arr := prog.Declarations[1].(*VariableDeclaration)
	assert.True(t, arr.Type.IsArray())
	assert.Equal(t, uint64(4), arr.Type.Count)
}

func TestParseIfElseAndWhile(t *testing.T) {
	prog := mustParse(t, `
int main(void) {
    int x = 0;
    if (x) { x = 1; } else { x = 2; }
    while (x) { x = x - 1; }
    return x;
}
`)
	fn := prog.Declarations[0].(*FunctionDeclaration)
	require.Len(t, fn.Body.Items, 4)

	ifStmt, ok := fn.Body.Items[1].(StmtItem).Stmt.(*If)
	require.True(t, ok)
	assert.NotNil(t, ifStmt.Else)

	_, ok = fn.Body.Items[2].(StmtItem).Stmt.(*While)
	assert.True(t, ok)
}

func TestParseForLoopWithDeclInit(t *testing.T) {
	prog := mustParse(t, `
int main(void) {
    for (int i = 0; i < 10; i = i + 1) { }
    return 0;
}
`)
	fn := prog.Declarations[0].(*FunctionDeclaration)
	forStmt, ok := fn.Body.Items[0].(StmtItem).Stmt.(*For)
	require.True(t, ok)
	require.NotNil(t, forStmt.Init)
	assert.NotNil(t, forStmt.Cond)
	assert.NotNil(t, forStmt.Update)
}

func TestParseSwitchWithCasesAndDefault(t *testing.T) {
	prog := mustParse(t, `
int main(void) {
    int x = 1;
    switch (x) {
        case 1: x = 10; break;
        case 2: x = 20; break;
        default: x = 0;
    }
    return x;
}
`)
	fn := prog.Declarations[0].(*FunctionDeclaration)
	_, ok := fn.Body.Items[1].(StmtItem).Stmt.(*Switch)
	assert.True(t, ok)
}

func TestParseOperatorPrecedence(t *testing.T) {
	prog := mustParse(t, `int main(void) { return 1 + 2 * 3; }`)
	fn := prog.Declarations[0].(*FunctionDeclaration)
	ret := fn.Body.Items[0].(StmtItem).Stmt.(*Return)
	bin, ok := ret.Expr.(*Binary)
	require.True(t, ok)
	assert.Equal(t, PLUS, bin.Op)
	rhs, ok := bin.RHS.(*Binary)
	require.True(t, ok)
	assert.Equal(t, STAR, rhs.Op)
}

func TestParseCompoundAssignmentAndTernary(t *testing.T) {
	prog := mustParse(t, `
int main(void) {
    int x = 1;
    x += 2;
    int y = x > 0 ? 1 : -1;
    return y;
}
`)
	fn := prog.Declarations[0].(*FunctionDeclaration)
	exprStmt := fn.Body.Items[1].(StmtItem).Stmt.(*ExpressionStatement)
	_, ok := exprStmt.Expr.(*CompoundAssignment)
	assert.True(t, ok)

	decl := fn.Body.Items[2].(DeclItem).Decl.(*VariableDeclaration)
	single := decl.Init.(*SingleInit)
	_, ok = single.Expr.(*Conditional)
	assert.True(t, ok)
}

func TestParseCastAndAddressOf(t *testing.T) {
	prog := mustParse(t, `
int main(void) {
    int x = 5;
    double d = (double) x;
    int *p = &x;
    return (int) d + *p;
}
`)
	fn := prog.Declarations[0].(*FunctionDeclaration)
	dDecl := fn.Body.Items[1].(DeclItem).Decl.(*VariableDeclaration)
	single := dDecl.Init.(*SingleInit)
	_, ok := single.Expr.(*Cast)
	assert.True(t, ok)

	pDecl := fn.Body.Items[2].(DeclItem).Decl.(*VariableDeclaration)
	pSingle := pDecl.Init.(*SingleInit)
	_, ok = pSingle.Expr.(*AddressOf)
	assert.True(t, ok)
}

func TestParseReportsSyntaxErrorOnMissingSemicolon(t *testing.T) {
	tokens, err := Lex(`int main(void) { return 0 }`)
	require.NoError(t, err)
	_, err = Parse(tokens)
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StageSyntax, ce.Stage)
}

func TestParseReportsSyntaxErrorOnUnclosedBlock(t *testing.T) {
	tokens, err := Lex(`int main(void) { return 0;`)
	require.NoError(t, err)
	_, err = Parse(tokens)
	require.Error(t, err)
}
