package ast

import (
	"fortio.org/safecast"
	"go.starlark.net/syntax"

	"github.com/rubiojr/enaml/source"
)

// DeclModule is the predeclared name of the runtime collaborator that
// lowered code calls into.
const DeclModule = "__decl__"

// ImportBuiltin is the predeclared function backing import statements.
const ImportBuiltin = "__import__"

// Factory centralizes host node creation for the lowering pass. Every node
// it creates is positioned at, and recorded against, the markup span it
// was synthesized from.
type Factory struct {
	path    *string
	origins map[syntax.Node]source.Span
}

// NewFactory returns a Factory positioning nodes in path.
func NewFactory(path string) *Factory {
	return &Factory{path: &path, origins: make(map[syntax.Node]source.Span)}
}

// Origins returns the span recorded for every synthesized node.
func (f *Factory) Origins() map[syntax.Node]source.Span { return f.origins }

func (f *Factory) pos(p source.Pos) syntax.Position {
	return syntax.MakePosition(f.path, safecast.MustConv[int32](p.Line), safecast.MustConv[int32](p.Col))
}

func (f *Factory) record(n syntax.Node, sp source.Span) {
	f.origins[n] = sp
}

// --- Expressions ---

// Ident creates a name reference.
func (f *Factory) Ident(name string, sp source.Span) *syntax.Ident {
	id := &syntax.Ident{NamePos: f.pos(sp.Start), Name: name}
	f.record(id, sp)
	return id
}

// None creates a reference to None.
func (f *Factory) None(sp source.Span) *syntax.Ident { return f.Ident("None", sp) }

// String creates a string literal.
func (f *Factory) String(s string, sp source.Span) *syntax.Literal {
	lit := &syntax.Literal{Token: syntax.STRING, TokenPos: f.pos(sp.Start), Raw: syntax.Quote(s, false), Value: s}
	f.record(lit, sp)
	return lit
}

// Dot creates x.name.
func (f *Factory) Dot(x syntax.Expr, name string, sp source.Span) *syntax.DotExpr {
	d := &syntax.DotExpr{X: x, Dot: f.pos(sp.Start), NamePos: f.pos(sp.Start), Name: f.Ident(name, sp)}
	f.record(d, sp)
	return d
}

// Path creates a dotted reference a.b.c from its parts.
func (f *Factory) Path(parts []string, sp source.Span) syntax.Expr {
	var x syntax.Expr = f.Ident(parts[0], sp)
	for _, p := range parts[1:] {
		x = f.Dot(x, p, sp)
	}
	return x
}

// Call creates fn(args...).
func (f *Factory) Call(fn syntax.Expr, args []syntax.Expr, sp source.Span) *syntax.CallExpr {
	c := &syntax.CallExpr{Fn: fn, Lparen: f.pos(sp.Start), Args: args, Rparen: f.pos(sp.End)}
	f.record(c, sp)
	return c
}

// DeclCall creates __decl__.method(args...).
func (f *Factory) DeclCall(method string, args []syntax.Expr, sp source.Span) *syntax.CallExpr {
	return f.Call(f.Dot(f.Ident(DeclModule, sp), method, sp), args, sp)
}

// Lambda creates lambda params: body.
func (f *Factory) Lambda(params []string, body syntax.Expr, sp source.Span) *syntax.LambdaExpr {
	l := &syntax.LambdaExpr{Lambda: f.pos(sp.Start), Params: f.params(params, sp), Body: body}
	f.record(l, sp)
	return l
}

func (f *Factory) params(names []string, sp source.Span) []syntax.Expr {
	out := make([]syntax.Expr, len(names))
	for i, n := range names {
		out[i] = f.Ident(n, sp)
	}
	return out
}

// --- Statements ---

// Assign creates lhs = rhs.
func (f *Factory) Assign(lhs, rhs syntax.Expr, sp source.Span) *syntax.AssignStmt {
	a := &syntax.AssignStmt{OpPos: f.pos(sp.Start), Op: syntax.EQ, LHS: lhs, RHS: rhs}
	f.record(a, sp)
	return a
}

// ExprStmt creates an expression statement.
func (f *Factory) ExprStmt(x syntax.Expr, sp source.Span) *syntax.ExprStmt {
	s := &syntax.ExprStmt{X: x}
	f.record(s, sp)
	return s
}

// Def creates def name(params): body. An empty body becomes pass.
func (f *Factory) Def(name string, params []syntax.Expr, body []syntax.Stmt, sp source.Span) *syntax.DefStmt {
	if len(body) == 0 {
		body = []syntax.Stmt{f.Pass(sp)}
	}
	d := &syntax.DefStmt{
		Def:    f.pos(sp.Start),
		Name:   f.Ident(name, sp),
		Lparen: f.pos(sp.Start),
		Params: params,
		Rparen: f.pos(sp.Start),
		Body:   body,
	}
	f.record(d, sp)
	return d
}

// Return creates return x.
func (f *Factory) Return(x syntax.Expr, sp source.Span) *syntax.ReturnStmt {
	r := &syntax.ReturnStmt{Return: f.pos(sp.Start), Result: x}
	f.record(r, sp)
	return r
}

// Pass creates a pass statement.
func (f *Factory) Pass(sp source.Span) *syntax.BranchStmt {
	b := &syntax.BranchStmt{Token: syntax.PASS, TokenPos: f.pos(sp.Start)}
	f.record(b, sp)
	return b
}

// Load creates load("module", local="name", ...) for the given names.
func (f *Factory) Load(module string, names []ImportName, sp, moduleSpan source.Span) *syntax.LoadStmt {
	ld := &syntax.LoadStmt{Load: f.pos(sp.Start), Module: f.String(module, moduleSpan), Rparen: f.pos(sp.End)}
	for _, n := range names {
		from := f.Ident(n.Name, n.Span)
		to := from
		if n.Alias != "" {
			to = f.Ident(n.Alias, n.Span)
		}
		ld.From = append(ld.From, from)
		ld.To = append(ld.To, to)
	}
	f.record(ld, sp)
	return ld
}

// --- Copy helpers ---

// MethodDef returns a shallow copy of def taking self as its first
// parameter.
func (f *Factory) MethodDef(def *syntax.DefStmt, sp source.Span) *syntax.DefStmt {
	cp := *def
	cp.Params = append([]syntax.Expr{f.Ident("self", sp)}, def.Params...)
	f.record(&cp, sp)
	return &cp
}
