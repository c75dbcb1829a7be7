package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/xmd/internal/ast"
)

func TestParseAssignment(t *testing.T) {
	prog, err := Parse("set a = 1")
	require.NoError(t, err)
	require.Len(t, prog.Statements, 1)
	asgn, ok := prog.Statements[0].(*ast.Assignment)
	require.True(t, ok)
	assert.Equal(t, "a", asgn.Name)
	assert.Equal(t, ast.AssignSet, asgn.Op)
}

func TestParsePlainIdentAssignment(t *testing.T) {
	prog, err := Parse("x = 1\ny += x")
	require.NoError(t, err)
	require.Len(t, prog.Statements, 2)
	_, ok := prog.Statements[0].(*ast.Assignment)
	assert.True(t, ok)
	second, ok := prog.Statements[1].(*ast.Assignment)
	require.True(t, ok)
	assert.Equal(t, ast.AssignAdd, second.Op)
}

func TestParseEqualityAcceptsSingleEquals(t *testing.T) {
	prog, err := Parse("if role = \"admin\" then print(role)")
	require.NoError(t, err)
	cond := prog.Statements[0].(*ast.Conditional)
	bin, ok := cond.Cond.(*ast.BinaryOp)
	require.True(t, ok)
	assert.Equal(t, ast.OpEq, bin.Op)
}

func TestParseIfElifElse(t *testing.T) {
	src := `if role == "admin"
  print("a")
elif role == "user"
  print("u")
else
  print("x")
endif`
	prog, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, prog.Statements, 1)
	cond := prog.Statements[0].(*ast.Conditional)
	require.Len(t, cond.Then, 1)
	require.Len(t, cond.Else, 1)
	elif, ok := cond.Else[0].(*ast.Conditional)
	require.True(t, ok)
	require.Len(t, elif.Else, 1)
}

func TestParseForRange(t *testing.T) {
	prog, err := Parse("for x in 1..3\n  print(x)\nendfor")
	require.NoError(t, err)
	loop := prog.Statements[0].(*ast.Loop)
	assert.Equal(t, ast.LoopForIn, loop.Kind)
	assert.Equal(t, "x", loop.VarName)
	rng, ok := loop.Iterable.(*ast.RangeExpr)
	require.True(t, ok)
	assert.NotNil(t, rng.From)
	assert.NotNil(t, rng.To)
}

func TestParseArrayLiteralAndIndex(t *testing.T) {
	prog, err := Parse(`set a = [1,2,3]
set first = a[0]`)
	require.NoError(t, err)
	require.Len(t, prog.Statements, 2)
	idx := prog.Statements[1].(*ast.Assignment).Value.(*ast.ArrayAccess)
	_, ok := idx.Array.(*ast.VariableRef)
	assert.True(t, ok)
}

func TestParseObjectLiteralAndAccess(t *testing.T) {
	prog, err := Parse(`set o = {name: "a", count: 1}
set first = o.name`)
	require.NoError(t, err)
	require.Len(t, prog.Statements, 2)
	obj := prog.Statements[0].(*ast.Assignment).Value.(*ast.ObjectLiteral)
	require.Len(t, obj.Entries, 2)
	assert.Equal(t, "name", obj.Entries[0].Key)
	assert.Equal(t, "count", obj.Entries[1].Key)
	access := prog.Statements[1].(*ast.Assignment).Value.(*ast.ObjectAccess)
	assert.Equal(t, "name", access.Key)
}

func TestParseEmptyObjectLiteral(t *testing.T) {
	prog, err := Parse(`set o = {}`)
	require.NoError(t, err)
	obj := prog.Statements[0].(*ast.Assignment).Value.(*ast.ObjectLiteral)
	assert.Len(t, obj.Entries, 0)
}

func TestParseJSONNamespaceCall(t *testing.T) {
	prog, err := Parse(`set s = json.stringify(a)`)
	require.NoError(t, err)
	call := prog.Statements[0].(*ast.Assignment).Value.(*ast.FunctionCall)
	assert.Equal(t, "json.stringify", call.Name)
}

func TestParseRecursionGuard(t *testing.T) {
	src := ""
	for i := 0; i < 200; i++ {
		src += "("
	}
	src += "1"
	for i := 0; i < 200; i++ {
		src += ")"
	}
	_, err := Parse("set a = " + src)
	require.Error(t, err)
}
