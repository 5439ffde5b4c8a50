package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/syntax"

	"github.com/rubiojr/enaml/source"
)

func span(l1, c1, l2, c2 int) source.Span {
	return source.Span{Start: source.Pos{Line: l1, Col: c1}, End: source.Pos{Line: l2, Col: c2}}
}

func TestFactoryRecordsOrigins(t *testing.T) {
	f := NewFactory("/src/main.enaml")
	sp := span(3, 5, 3, 20)

	call := f.DeclCall("new", []syntax.Expr{f.Ident("Label", sp)}, sp)
	dot, ok := call.Fn.(*syntax.DotExpr)
	require.True(t, ok)
	assert.Equal(t, DeclModule, dot.X.(*syntax.Ident).Name)
	assert.Equal(t, "new", dot.Name.Name)

	assert.Equal(t, sp, f.Origins()[call])
	assert.Equal(t, sp, f.Origins()[dot])
	assert.Equal(t, "/src/main.enaml", call.Lparen.Filename())
	assert.Equal(t, int32(3), call.Lparen.Line)
	assert.Equal(t, int32(5), call.Lparen.Col)
}

func TestFactoryDefEmptyBodyIsPass(t *testing.T) {
	f := NewFactory("x.enaml")
	d := f.Def("Main", nil, nil, span(1, 1, 1, 10))
	require.Len(t, d.Body, 1)
	br, ok := d.Body[0].(*syntax.BranchStmt)
	require.True(t, ok)
	assert.Equal(t, syntax.PASS, br.Token)
}

func TestFactoryLoadAliases(t *testing.T) {
	f := NewFactory("x.enaml")
	sp := span(1, 1, 1, 40)
	ld := f.Load("a.b", []ImportName{
		{Name: "Foo", Span: span(1, 15, 1, 18)},
		{Name: "Bar", Alias: "Baz", Span: span(1, 20, 1, 30)},
	}, sp, span(1, 6, 1, 9))

	assert.Equal(t, "a.b", ld.Module.Value)
	require.Len(t, ld.From, 2)
	assert.Same(t, ld.From[0], ld.To[0])
	assert.Equal(t, "Bar", ld.From[1].Name)
	assert.Equal(t, "Baz", ld.To[1].Name)
	assert.Equal(t, span(1, 6, 1, 9), f.Origins()[ld.Module])
}

func TestFactoryMethodDefCopies(t *testing.T) {
	f := NewFactory("x.enaml")
	sp := span(2, 5, 2, 20)
	orig := f.Def("greet", []syntax.Expr{f.Ident("name", sp)}, []syntax.Stmt{f.Pass(sp)}, sp)

	m := f.MethodDef(orig, sp)
	assert.NotSame(t, orig, m)
	require.Len(t, m.Params, 2)
	assert.Equal(t, "self", m.Params[0].(*syntax.Ident).Name)
	assert.Len(t, orig.Params, 1, "input is not mutated")
}
