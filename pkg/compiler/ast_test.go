package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageString(t *testing.T) {
	assert.Equal(t, "static", StorageStatic.String())
	assert.Equal(t, "extern", StorageExtern.String())
	assert.Equal(t, "", StorageDefault.String())
}

func TestExprBaseTypeRoundTrip(t *testing.T) {
	c := &Constant{Value: ConstantValue{Kind: KInt, Int: 4}}
	assert.Nil(t, c.exprType())
	c.setType(Int())
	require.NotNil(t, c.exprType())
	assert.True(t, c.exprType().Equal(Int()))
}

func TestExprStringRendering(t *testing.T) {
	v := &Variable{Name: "x"}
	assert.Equal(t, "x", v.String())

	bin := &Binary{Op: PLUS, LHS: &Variable{Name: "a"}, RHS: &Variable{Name: "b"}}
	assert.Equal(t, "a", bin.LHS.String())
	assert.Contains(t, bin.String(), "a")
	assert.Contains(t, bin.String(), "b")

	call := &Call{Name: "add", Args: []Expr{&Variable{Name: "a"}, &Variable{Name: "b"}}}
	assert.Contains(t, call.String(), "add(")
}

func TestStmtStringRendering(t *testing.T) {
	ret := &Return{Expr: &Constant{Value: ConstantValue{Kind: KInt, Int: 0}}}
	assert.Equal(t, "return 0;", ret.String())

	ifStmt := &If{Cond: &Variable{Name: "x"}, Then: &Null{}}
	assert.Equal(t, "if (x) ;", ifStmt.String())

	ifElse := &If{Cond: &Variable{Name: "x"}, Then: &Null{}, Else: &Null{}}
	assert.Contains(t, ifElse.String(), "else")
}

func TestBlockItemWrapping(t *testing.T) {
	var items []BlockItem
	items = append(items, StmtItem{&Null{}})
	items = append(items, DeclItem{&VariableDeclaration{Name: "x", Type: Int()}})
	block := &Block{Items: items}
	assert.Equal(t, "{ 2 items }", block.String())
}

func TestDeclStringRendering(t *testing.T) {
	fn := &FunctionDeclaration{Name: "main", Type: FuncType(nil, Int())}
	assert.Contains(t, fn.String(), "main")

	v := &VariableDeclaration{Name: "x", Type: Int()}
	assert.Equal(t, "int x", v.String())
}

func TestInitializerTypeRoundTrip(t *testing.T) {
	init := &SingleInit{Expr: &Constant{Value: ConstantValue{Kind: KInt, Int: 1}}}
	assert.Nil(t, init.initType())
	init.setInitType(Int())
	require.NotNil(t, init.initType())
	assert.True(t, init.initType().Equal(Int()))
}
