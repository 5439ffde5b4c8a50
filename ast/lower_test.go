package ast_test

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/syntax"

	"github.com/rubiojr/enaml/ast"
	"github.com/rubiojr/enaml/diag"
	"github.com/rubiojr/enaml/parser"
)

var positionType = reflect.TypeOf(syntax.Position{})

// shape renders a host tree without positions or resolver annotations so
// that two trees can be compared node by node.
func shape(stmts []syntax.Stmt) string {
	var b strings.Builder
	dump(&b, reflect.ValueOf(stmts))
	return b.String()
}

func dump(b *strings.Builder, v reflect.Value) {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			b.WriteString("nil")
			return
		}
		dump(b, v.Elem())
	case reflect.Struct:
		b.WriteString(v.Type().Name())
		b.WriteString("{")
		for i := 0; i < v.NumField(); i++ {
			f := v.Type().Field(i)
			if f.PkgPath != "" || f.Type == positionType {
				continue
			}
			switch f.Name {
			case "Binding", "Function", "Options":
				continue
			}
			b.WriteString(f.Name + ":")
			dump(b, v.Field(i))
			b.WriteString(" ")
		}
		b.WriteString("}")
	case reflect.Slice:
		b.WriteString("[")
		for i := 0; i < v.Len(); i++ {
			dump(b, v.Index(i))
			b.WriteString(",")
		}
		b.WriteString("]")
	default:
		fmt.Fprintf(b, "%v", v)
	}
}

func lower(t *testing.T, src string) *ast.Lowered {
	t.Helper()
	mod, err := (&parser.Parser{}).Parse("test.enaml", []byte(src))
	require.NoError(t, err)
	low, err := ast.Lower(mod)
	require.NoError(t, err)
	return low
}

func host(t *testing.T, src string) []syntax.Stmt {
	t.Helper()
	f, err := parser.HostOptions().Parse("want.star", src, 0)
	require.NoError(t, err)
	return f.Stmts
}

func TestLowerMatchesHandWritten(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   string
	}{
		{
			name:   "from import",
			markup: "from enaml.widgets.api import Window, Label as L\n",
			want:   `load("enaml.widgets.api", "Window", L="Label")` + "\n",
		},
		{
			name:   "module import",
			markup: "import util\nimport a.b as ab\n",
			want:   "util = __import__(\"util\")\nab = __import__(\"a.b\")\n",
		},
		{
			name:   "host statements pass through",
			markup: "x = [i * 2 for i in range(3)]\ndef f(a, *args, **kw):\n    return a\n",
			want:   "x = [i * 2 for i in range(3)]\ndef f(a, *args, **kw):\n    return a\n",
		},
		{
			name: "enamldef with children",
			markup: "enamldef Main(Window): win:\n" +
				"    title = \"Hi\"\n" +
				"    Label: lbl:\n" +
				"        text << win.title\n" +
				"    api.Field:\n" +
				"        pass\n",
			want: "def Main(self):\n" +
				"    win = self\n" +
				"    __decl__.bind(self, \"title\", \"=\", lambda self: \"Hi\", None)\n" +
				"    lbl = __decl__.new(Label)\n" +
				"    __decl__.child(self, lbl)\n" +
				"    __decl__.bind(lbl, \"text\", \"<<\", lambda self: win.title, None)\n" +
				"    __child0 = __decl__.new(api.Field)\n" +
				"    __decl__.child(self, __child0)\n" +
				"Main = __decl__.enamldef(\"Main\", Window, Main)\n",
		},
		{
			name:   "empty enamldef",
			markup: "enamldef Empty(api.Container):\n    pass\n",
			want: "def Empty(self):\n" +
				"    pass\n" +
				"Empty = __decl__.enamldef(\"Empty\", api.Container, Empty)\n",
		},
		{
			name: "write-back operators",
			markup: "enamldef A(B):\n" +
				"    value >> model.value\n" +
				"    item := data[0]\n",
			want: "def A(self):\n" +
				"    __decl__.bind(self, \"value\", \">>\", lambda self: model.value, lambda self, __value: __decl__.setattr(model, \"value\", __value))\n" +
				"    __decl__.bind(self, \"item\", \":=\", lambda self: data[0], lambda self, __value: __decl__.setitem(data, 0, __value))\n" +
				"A = __decl__.enamldef(\"A\", B, A)\n",
		},
		{
			name: "notification handler",
			markup: "enamldef A(B):\n" +
				"    clicked :: print(\"x\")\n" +
				"    toggled ::\n" +
				"        n = 1\n" +
				"        print(n)\n",
			want: "def A(self):\n" +
				"    __decl__.bind(self, \"clicked\", \"::\", lambda self: print(\"x\"), None)\n" +
				"    def __toggled_0(self):\n" +
				"        n = 1\n" +
				"        print(n)\n" +
				"    __decl__.bind(self, \"toggled\", \"::\", __toggled_0, None)\n" +
				"A = __decl__.enamldef(\"A\", B, A)\n",
		},
		{
			name: "declarations",
			markup: "enamldef A(B):\n" +
				"    attr count: int = 0\n" +
				"    event clicked\n" +
				"    alias caption: lbl.text\n" +
				"    func bump(n):\n" +
				"        return n\n" +
				"    Label: lbl:\n" +
				"        pass\n",
			want: "def A(self):\n" +
				"    __decl__.attr(self, \"count\", \"attr\", int)\n" +
				"    __decl__.bind(self, \"count\", \"=\", lambda self: 0, None)\n" +
				"    __decl__.attr(self, \"clicked\", \"event\", None)\n" +
				"    __decl__.alias(self, \"caption\", lambda self: lbl, \"text\")\n" +
				"    def bump(self, n):\n" +
				"        return n\n" +
				"    __decl__.func(self, \"bump\", bump)\n" +
				"    lbl = __decl__.new(Label)\n" +
				"    __decl__.child(self, lbl)\n" +
				"A = __decl__.enamldef(\"A\", B, A)\n",
		},
		{
			name: "child ident shadowing a type",
			markup: "enamldef M(Window):\n" +
				"    Container: Label:\n" +
				"        pass\n" +
				"    Label:\n" +
				"        text = \"x\"\n",
			want: "__type0 = Label\n" +
				"def M(self):\n" +
				"    Label = __decl__.new(Container)\n" +
				"    __decl__.child(self, Label)\n" +
				"    __child0 = __decl__.new(__type0)\n" +
				"    __decl__.child(self, __child0)\n" +
				"    __decl__.bind(__child0, \"text\", \"=\", lambda self: \"x\", None)\n" +
				"M = __decl__.enamldef(\"M\", Window, M)\n",
		},
		{
			name: "template child shadowed by a method",
			markup: "template Row(kind):\n" +
				"    Container:\n" +
				"        func kind():\n" +
				"            return 1\n" +
				"        kind:\n" +
				"            pass\n",
			want: "def Row(kind):\n" +
				"    __type0 = kind\n" +
				"    def Row(self):\n" +
				"        def kind(self):\n" +
				"            return 1\n" +
				"        __decl__.func(self, \"kind\", kind)\n" +
				"        __child0 = __decl__.new(__type0)\n" +
				"        __decl__.child(self, __child0)\n" +
				"    return __decl__.enamldef(\"Row\", Container, Row)\n",
		},
		{
			name: "template",
			markup: "template Row(kind):\n" +
				"    Container:\n" +
				"        count = kind\n",
			want: "def Row(kind):\n" +
				"    def Row(self):\n" +
				"        __decl__.bind(self, \"count\", \"=\", lambda self: kind, None)\n" +
				"    return __decl__.enamldef(\"Row\", Container, Row)\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lower(t, tt.markup)
			assert.Equal(t, shape(host(t, tt.want)), shape(got.File.Stmts))
		})
	}
}

func TestLowerOperatorSwapChangesOnlyOperator(t *testing.T) {
	lowered := func(op string) string {
		return shape(lower(t, "enamldef A(B):\n    value "+op+" model.value\n").File.Stmts)
	}
	swap := func(s, from, to string) string {
		s = strings.Replace(s, fmt.Sprintf("Raw:%q", from), fmt.Sprintf("Raw:%q", to), 1)
		return strings.Replace(s, "Value:"+from+" ", "Value:"+to+" ", 1)
	}
	// Operators are grouped by whether they write back; within a group the
	// lowered trees differ only in the operator literal.
	groups := [][]string{{"=", "<<", "::"}, {">>", ":="}}
	for _, group := range groups {
		base := lowered(group[0])
		for _, op := range group[1:] {
			t.Run(group[0]+" to "+op, func(t *testing.T) {
				got := lowered(op)
				assert.NotEqual(t, base, got)
				assert.Equal(t, swap(base, group[0], op), got)
			})
		}
	}
	assert.NotContains(t, lowered("<<"), "__value")
	assert.Contains(t, lowered(">>"), "__value")
}

func TestLowerOperatorsAreDistinct(t *testing.T) {
	seen := map[string]ast.Operator{}
	for _, op := range ast.Operators {
		low := lower(t, "enamldef A(B):\n    value "+op.String()+" model.value\n")
		def := low.File.Stmts[0].(*syntax.DefStmt)
		call := def.Body[0].(*syntax.ExprStmt).X.(*syntax.CallExpr)
		kind := call.Args[2].(*syntax.Literal).Value.(string)
		_, dup := seen[kind]
		assert.False(t, dup, "operator %s lowered to a duplicate form", op)
		seen[kind] = op
	}
	assert.Len(t, seen, 5)
}

func TestLowerDoesNotMutateInput(t *testing.T) {
	src := "enamldef A(B):\n    func f():\n        return 1\n"
	mod, err := (&parser.Parser{}).Parse("test.enaml", []byte(src))
	require.NoError(t, err)
	fn := mod.Body[0].(*ast.EnamlDef).Body[0].(*ast.FuncDecl)
	_, err = ast.Lower(mod)
	require.NoError(t, err)
	assert.Empty(t, fn.Def.Params)
}

func TestLowerOrigins(t *testing.T) {
	src := "from m import X\n" +
		"\n" +
		"enamldef A(B):\n" +
		"    Label: lbl:\n" +
		"        text << 'x'\n"
	low := lower(t, src)
	def := low.File.Stmts[1].(*syntax.DefStmt)
	assert.Equal(t, 3, low.SpanOf(def).Start.Line)

	newChild := def.Body[0].(*syntax.AssignStmt)
	sp := low.SpanOf(newChild)
	assert.Equal(t, 4, sp.Start.Line)
	assert.Equal(t, 5, sp.Start.Col)

	bind := def.Body[2].(*syntax.ExprStmt)
	assert.Equal(t, 5, low.SpanOf(bind).Start.Line)

	lit := bind.X.(*syntax.CallExpr).Args[3].(*syntax.LambdaExpr).Body
	sp = low.SpanOf(lit)
	assert.Equal(t, 5, sp.Start.Line)
	assert.Equal(t, 17, sp.Start.Col)
}

func TestLowerErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
		line int
	}{
		{
			name: "duplicate identifier",
			src:  "enamldef A(B): a:\n    Label: a:\n        pass\n",
			msg:  `duplicate identifier "a" (first declared on line 1)`,
			line: 2,
		},
		{
			name: "duplicate child identifier",
			src:  "enamldef A(B):\n    Label: x:\n        Label: x:\n            pass\n",
			msg:  `duplicate identifier "x" (first declared on line 2)`,
			line: 3,
		},
		{
			name: "call as base type",
			src:  "enamldef A(make()):\n    pass\n",
			msg:  `base type of enamldef "A" must be a name or dotted name`,
			line: 1,
		},
		{
			name: "reserved name",
			src:  "enamldef A(B):\n    __x = 1\n",
			msg:  `identifier "__x" is reserved`,
			line: 2,
		},
		{
			name: "template without root",
			src:  "template T():\n    x = 1\n",
			msg:  `binding "x" outside a declaration object in template "T"`,
			line: 2,
		},
		{
			name: "template with two roots",
			src:  "template T():\n    A:\n        pass\n    B:\n        pass\n",
			msg:  `template "T" must declare exactly one root object, found 2`,
			line: 1,
		},
		{
			name: "update needs an attribute",
			src:  "enamldef A(B):\n    value >> model\n",
			msg:  `operator ">>" requires an attribute or item expression`,
			line: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, err := (&parser.Parser{}).Parse("test.enaml", []byte(tt.src))
			require.NoError(t, err)
			_, err = ast.Lower(mod)
			var le *diag.LoweringError
			require.True(t, errors.As(err, &le), "got %v", err)
			assert.Equal(t, tt.msg, le.Msg)
			assert.Equal(t, tt.line, le.Span.Start.Line)
			assert.Equal(t, "test.enaml", le.File)
		})
	}
}
