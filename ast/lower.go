package ast

import (
	"fmt"
	"strings"

	"go.starlark.net/syntax"

	"github.com/rubiojr/enaml/diag"
	"github.com/rubiojr/enaml/source"
)

// Lowered is a host syntax tree produced from a markup module. Nodes
// synthesized by the lowering pass are mapped to the markup span they came
// from; host nodes carried over verbatim keep their original positions.
type Lowered struct {
	File    *syntax.File
	Src     *source.File
	Origins map[syntax.Node]source.Span
}

// SpanOf returns the markup span a lowered node originates from.
func (l *Lowered) SpanOf(n syntax.Node) source.Span {
	if sp, ok := l.Origins[n]; ok {
		return sp
	}
	start, end := n.Span()
	return HostSpan(l.Src, start, end)
}

// HostSpan converts a pair of host positions into a span of src.
func HostSpan(src *source.File, start, end syntax.Position) source.Span {
	if !start.IsValid() {
		return source.Span{}
	}
	if !end.IsValid() || end.Line < start.Line || (end.Line == start.Line && end.Col <= start.Col) {
		end = start
		end.Col++
	}
	if src == nil {
		return source.Span{
			Start: source.Pos{Line: int(start.Line), Col: int(start.Col)},
			End:   source.Pos{Line: int(end.Line), Col: int(end.Col)},
		}
	}
	return source.Span{
		Start: src.PosAt(int(start.Line), int(start.Col)),
		End:   src.PosAt(int(end.Line), int(end.Col)),
	}
}

// Lower validates mod and translates it into a host syntax tree that
// contains only host node types. The input tree is not mutated.
func Lower(mod *Module) (*Lowered, error) {
	if err := DefaultChecks.Run(mod); err != nil {
		return nil, err
	}
	l := &lowerer{f: NewFactory(mod.Path), mod: mod}
	var stmts []syntax.Stmt
	for _, n := range mod.Body {
		out, err := l.lowerTop(n)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, out...)
	}
	return &Lowered{
		File:    &syntax.File{Path: mod.Path, Stmts: stmts},
		Src:     mod.Src,
		Origins: l.f.Origins(),
	}, nil
}

type lowerer struct {
	f        *Factory
	mod      *Module
	children int
	hoisted  int
	types    int

	// locals are the names bound inside the builder being lowered;
	// prelude collects type references moved out of its scope.
	locals  map[string]bool
	prelude []syntax.Stmt
}

func (l *lowerer) errorf(sp source.Span, format string, args ...interface{}) error {
	return &diag.LoweringError{File: l.mod.Path, Span: sp, Msg: fmt.Sprintf(format, args...)}
}

func (l *lowerer) lowerTop(n Node) ([]syntax.Stmt, error) {
	f := l.f
	switch n := n.(type) {
	case *HostStmt:
		return []syntax.Stmt{n.Stmt}, nil
	case *ImportFrom:
		return []syntax.Stmt{f.Load(n.Module, n.Names, n.Span(), n.ModuleSpan)}, nil
	case *ImportModule:
		sp := n.Span()
		call := f.Call(f.Ident(ImportBuiltin, sp), []syntax.Expr{f.String(n.Module, sp)}, sp)
		return []syntax.Stmt{f.Assign(f.Ident(n.Local(), sp), call, sp)}, nil
	case *EnamlDef:
		return l.lowerEnamlDef(n)
	case *Template:
		return l.lowerTemplate(n)
	}
	return nil, l.errorf(n.Span(), "%T is not allowed at module level", n)
}

// lowerEnamlDef emits the builder function followed by the type
// registration:
//
//	def Name(self):
//	    ident = self
//	    ...
//	Name = __decl__.enamldef("Name", Base, Name)
func (l *lowerer) lowerEnamlDef(d *EnamlDef) ([]syntax.Stmt, error) {
	f := l.f
	sp := d.Span()
	prelude, builder, err := l.builder(d.Name, d.Ident, d.IdentSpan, d.Body, sp)
	if err != nil {
		return nil, err
	}
	register := f.DeclCall("enamldef", []syntax.Expr{
		f.String(d.Name, d.NameSpan),
		d.BaseType.Expr,
		f.Ident(d.Name, d.NameSpan),
	}, sp)
	return append(prelude, builder, f.Assign(f.Ident(d.Name, d.NameSpan), register, sp)), nil
}

// lowerTemplate emits a function that builds and returns a new type each
// time it is called with the template's parameters.
func (l *lowerer) lowerTemplate(t *Template) ([]syntax.Stmt, error) {
	f := l.f
	sp := t.Span()
	root := t.Body[0].(*ChildDecl)
	prelude, builder, err := l.builder(t.Name, root.Ident, root.IdentSpan, root.Body, root.Span())
	if err != nil {
		return nil, err
	}
	ret := f.Return(f.DeclCall("enamldef", []syntax.Expr{
		f.String(t.Name, t.NameSpan),
		f.Path(root.Type.Parts, root.Type.Span()),
		f.Ident(t.Name, t.NameSpan),
	}, root.HeaderSpan), sp)
	return []syntax.Stmt{f.Def(t.Name, t.Params, append(prelude, builder, ret), sp)}, nil
}

// builder lowers a declaration body into "def name(self): ...". Child
// type references whose leading name is also bound inside the builder
// are evaluated ahead of it, in the enclosing scope, and returned as the
// prelude.
func (l *lowerer) builder(name, ident string, identSpan source.Span, body []Node, sp source.Span) ([]syntax.Stmt, *syntax.DefStmt, error) {
	f := l.f
	l.locals = map[string]bool{}
	l.prelude = nil
	if ident != "" {
		l.locals[ident] = true
	}
	builderLocals(body, l.locals)

	var stmts []syntax.Stmt
	if ident != "" {
		stmts = append(stmts, f.Assign(f.Ident(ident, identSpan), f.Ident("self", identSpan), identSpan))
	}
	out, err := l.lowerBody("self", body)
	if err != nil {
		return nil, nil, err
	}
	stmts = append(stmts, out...)
	return l.prelude, f.Def(name, []syntax.Expr{f.Ident("self", sp)}, stmts, sp), nil
}

// builderLocals adds the names a body binds in its builder function:
// child identifiers and methods, at any depth.
func builderLocals(body []Node, locals map[string]bool) {
	for _, n := range body {
		switch n := n.(type) {
		case *ChildDecl:
			if n.Ident != "" {
				locals[n.Ident] = true
			}
			builderLocals(n.Body, locals)
		case *FuncDecl:
			locals[n.Def.Name.Name] = true
		}
	}
}

// typeRef returns the expression naming a child's type. A reference that
// a builder local would shadow is bound to a fresh name in the prelude.
func (l *lowerer) typeRef(t *TypeRef) syntax.Expr {
	f := l.f
	sp := t.Span()
	x := f.Path(t.Parts, sp)
	if !l.locals[t.Parts[0]] {
		return x
	}
	name := fmt.Sprintf("__type%d", l.types)
	l.types++
	l.prelude = append(l.prelude, f.Assign(f.Ident(name, sp), x, sp))
	return f.Ident(name, sp)
}

// lowerBody lowers the items of a declaration body against the object
// bound to the local variable target.
func (l *lowerer) lowerBody(target string, body []Node) ([]syntax.Stmt, error) {
	f := l.f
	var stmts []syntax.Stmt
	for _, n := range body {
		sp := n.Span()
		switch n := n.(type) {
		case *Binding:
			stmts = append(stmts, l.lowerBinding(target, n)...)
		case *AttrDecl:
			typ := syntax.Expr(f.None(sp))
			if n.Type != nil {
				typ = n.Type.Expr
			}
			call := f.DeclCall("attr", []syntax.Expr{
				f.Ident(target, n.NameSpan),
				f.String(n.Name, n.NameSpan),
				f.String(n.Keyword(), sp),
				typ,
			}, sp)
			stmts = append(stmts, f.ExprStmt(call, sp))
			if n.Default != nil {
				stmts = append(stmts, l.lowerBinding(target, n.Default)...)
			}
		case *AliasDecl:
			resolve := f.Lambda([]string{"self"}, f.Ident(n.Target, n.TargetSpan), n.TargetSpan)
			chain := strings.Join(n.Chain, ".")
			call := f.DeclCall("alias", []syntax.Expr{
				f.Ident(target, sp),
				f.String(n.Name, sp),
				resolve,
				f.String(chain, n.TargetSpan),
			}, sp)
			stmts = append(stmts, f.ExprStmt(call, sp))
		case *FuncDecl:
			def := f.MethodDef(n.Def, sp)
			call := f.DeclCall("func", []syntax.Expr{
				f.Ident(target, sp),
				f.String(def.Name.Name, sp),
				f.Ident(def.Name.Name, sp),
			}, sp)
			stmts = append(stmts, def, f.ExprStmt(call, sp))
		case *ChildDecl:
			out, err := l.lowerChild(target, n)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, out...)
		default:
			return nil, l.errorf(sp, "%T is not allowed in a declaration body", n)
		}
	}
	return stmts, nil
}

// lowerChild constructs the child, attaches it to its parent and lowers
// its body against it.
func (l *lowerer) lowerChild(parent string, c *ChildDecl) ([]syntax.Stmt, error) {
	f := l.f
	name := c.Ident
	if name == "" {
		name = fmt.Sprintf("__child%d", l.children)
		l.children++
	}
	hs := c.HeaderSpan
	stmts := []syntax.Stmt{
		f.Assign(f.Ident(name, hs), f.DeclCall("new", []syntax.Expr{l.typeRef(c.Type)}, hs), hs),
		f.ExprStmt(f.DeclCall("child", []syntax.Expr{f.Ident(parent, hs), f.Ident(name, hs)}, hs), hs),
	}
	body, err := l.lowerBody(name, c.Body)
	if err != nil {
		return nil, err
	}
	return append(stmts, body...), nil
}

// lowerBinding lowers every operator to the same call shape:
//
//	__decl__.bind(target, "name", "op", reader, writer)
//
// Only the operator literal depends on the operator. Statement handlers
// are hoisted into a function that is passed as the reader.
func (l *lowerer) lowerBinding(target string, b *Binding) []syntax.Stmt {
	f := l.f
	sp := b.Span()
	var stmts []syntax.Stmt
	var reader syntax.Expr
	if b.Handler != nil {
		name := fmt.Sprintf("__%s_%d", b.Name, l.hoisted)
		l.hoisted++
		body := make([]syntax.Stmt, len(b.Handler))
		for i, h := range b.Handler {
			body[i] = h.Stmt
		}
		stmts = append(stmts, f.Def(name, []syntax.Expr{f.Ident("self", b.OpSpan)}, body, sp))
		reader = f.Ident(name, b.OpSpan)
	} else {
		reader = f.Lambda([]string{"self"}, b.Expr.Expr, b.Expr.Span())
	}
	call := f.DeclCall("bind", []syntax.Expr{
		f.Ident(target, b.NameSpan),
		f.String(b.Name, b.NameSpan),
		f.String(b.Op.String(), b.OpSpan),
		reader,
		l.writer(b),
	}, sp)
	return append(stmts, f.ExprStmt(call, sp))
}

// writer returns the function that stores a new attribute value into the
// binding expression, or None for operators that never write.
func (l *lowerer) writer(b *Binding) syntax.Expr {
	f := l.f
	if !b.Op.Writes() || b.Expr == nil {
		return f.None(b.OpSpan)
	}
	sp := b.Expr.Span()
	var store syntax.Expr
	switch x := b.Expr.Expr.(type) {
	case *syntax.DotExpr:
		store = f.DeclCall("setattr", []syntax.Expr{x.X, f.String(x.Name.Name, sp), f.Ident("__value", sp)}, sp)
	case *syntax.IndexExpr:
		store = f.DeclCall("setitem", []syntax.Expr{x.X, x.Y, f.Ident("__value", sp)}, sp)
	default:
		return f.None(b.OpSpan)
	}
	return f.Lambda([]string{"self", "__value"}, store, sp)
}
