package compiler

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"go.starlark.net/syntax"

	"github.com/rubiojr/enaml/ast"
)

// Emit serializes a lowered tree to host source code and returns it with
// the table mapping generated positions back to markup spans.
func Emit(low *ast.Lowered) (string, *LocationTable) {
	p := &printer{w: newSrcWriter(), low: low, locs: &LocationTable{}}
	p.stmts(low.File.Stmts)
	return p.w.String(), p.locs
}

type printer struct {
	w    *srcWriter
	low  *ast.Lowered
	locs *LocationTable
}

// mark records that the code about to be written belongs to n.
func (p *printer) mark(n syntax.Node) {
	sp := p.low.SpanOf(n)
	if !sp.IsValid() {
		return
	}
	line, col := p.w.Pos()
	p.locs.add(line, col, sp)
}

func (p *printer) stmts(list []syntax.Stmt) {
	if len(list) == 0 {
		p.w.Write("pass")
		p.w.Newline()
		return
	}
	for _, s := range list {
		p.stmt(s)
	}
}

func (p *printer) block(list []syntax.Stmt) {
	p.w.Write(":")
	p.w.Newline()
	p.w.Indent()
	p.stmts(list)
	p.w.Dedent()
}

func (p *printer) stmt(s syntax.Stmt) {
	p.mark(s)
	switch st := s.(type) {
	case *syntax.ExprStmt:
		p.expr(st.X)
	case *syntax.AssignStmt:
		p.targets(st.LHS)
		p.w.Write(" ")
		p.mark(st)
		p.w.Write(st.Op.String())
		p.w.Write(" ")
		p.expr(st.RHS)
	case *syntax.ReturnStmt:
		p.w.Write("return")
		if st.Result != nil {
			p.w.Write(" ")
			p.expr(st.Result)
		}
	case *syntax.BranchStmt:
		p.w.Write(st.Token.String())
	case *syntax.LoadStmt:
		p.load(st)
	case *syntax.DefStmt:
		p.w.Write("def ")
		p.mark(st.Name)
		p.w.Write(st.Name.Name)
		p.w.Write("(")
		p.params(st.Params)
		p.w.Write(")")
		p.block(st.Body)
		return
	case *syntax.IfStmt:
		p.ifStmt(st, "if ")
		return
	case *syntax.ForStmt:
		p.w.Write("for ")
		p.targets(st.Vars)
		p.w.Write(" in ")
		p.expr(st.X)
		p.block(st.Body)
		return
	case *syntax.WhileStmt:
		p.w.Write("while ")
		p.expr(st.Cond)
		p.block(st.Body)
		return
	default:
		panic(fmt.Sprintf("emit: unexpected statement %T", s))
	}
	p.w.Newline()
}

func (p *printer) ifStmt(st *syntax.IfStmt, kw string) {
	p.w.Write(kw)
	p.expr(st.Cond)
	p.block(st.True)
	if len(st.False) == 0 {
		return
	}
	if elif, ok := st.False[0].(*syntax.IfStmt); ok && len(st.False) == 1 {
		p.mark(elif)
		p.ifStmt(elif, "elif ")
		return
	}
	p.w.Write("else")
	p.block(st.False)
}

func (p *printer) load(st *syntax.LoadStmt) {
	p.w.Write("load(")
	p.expr(st.Module)
	for i, to := range st.To {
		from := st.From[i]
		p.w.Write(", ")
		p.mark(to)
		if to.Name == from.Name {
			p.w.Write(syntax.Quote(from.Name, false))
			continue
		}
		p.w.Write(to.Name)
		p.w.Write("=")
		p.w.Write(syntax.Quote(from.Name, false))
	}
	p.w.Write(")")
}

// targets prints assignment and loop targets. An unparenthesized tuple
// stays unparenthesized.
func (p *printer) targets(x syntax.Expr) {
	t, ok := x.(*syntax.TupleExpr)
	if !ok || t.Lparen.IsValid() || len(t.List) < 2 {
		p.expr(x)
		return
	}
	p.mark(t)
	p.list(t.List)
}

func (p *printer) list(xs []syntax.Expr) {
	for i, x := range xs {
		if i > 0 {
			p.w.Write(", ")
		}
		p.expr(x)
	}
}

// params prints parameters and call arguments, which share the name=value,
// *args and **kwargs forms.
func (p *printer) params(xs []syntax.Expr) {
	for i, x := range xs {
		if i > 0 {
			p.w.Write(", ")
		}
		p.param(x)
	}
}

func (p *printer) param(x syntax.Expr) {
	switch a := x.(type) {
	case *syntax.BinaryExpr:
		if a.Op == syntax.EQ {
			p.mark(a)
			p.expr(a.X)
			p.w.Write("=")
			p.expr(a.Y)
			return
		}
	case *syntax.UnaryExpr:
		if a.Op == syntax.STAR || a.Op == syntax.STARSTAR {
			p.mark(a)
			p.w.Write(a.Op.String())
			if a.X != nil {
				p.expr(a.X)
			}
			return
		}
	}
	p.expr(x)
}

// operand prints x where it is an operand of another expression,
// parenthesizing it unless it binds tighter than any operator.
func (p *printer) operand(x syntax.Expr) {
	switch x.(type) {
	case *syntax.BinaryExpr, *syntax.UnaryExpr, *syntax.CondExpr, *syntax.LambdaExpr:
		p.w.Write("(")
		p.expr(x)
		p.w.Write(")")
	default:
		p.expr(x)
	}
}

func (p *printer) expr(x syntax.Expr) {
	p.mark(x)
	switch e := x.(type) {
	case *syntax.Ident:
		p.w.Write(e.Name)
	case *syntax.Literal:
		p.w.Write(literal(e))
	case *syntax.ParenExpr:
		p.w.Write("(")
		p.expr(e.X)
		p.w.Write(")")
	case *syntax.DotExpr:
		p.operand(e.X)
		p.mark(e)
		p.w.Write(".")
		p.w.Write(e.Name.Name)
	case *syntax.CallExpr:
		p.operand(e.Fn)
		p.mark(e)
		p.w.Write("(")
		p.params(e.Args)
		p.w.Write(")")
	case *syntax.IndexExpr:
		p.operand(e.X)
		p.mark(e)
		p.w.Write("[")
		p.expr(e.Y)
		p.w.Write("]")
	case *syntax.SliceExpr:
		p.operand(e.X)
		p.mark(e)
		p.w.Write("[")
		if e.Lo != nil {
			p.expr(e.Lo)
		}
		p.w.Write(":")
		if e.Hi != nil {
			p.expr(e.Hi)
		}
		if e.Step != nil {
			p.w.Write(":")
			p.expr(e.Step)
		}
		p.w.Write("]")
	case *syntax.ListExpr:
		p.w.Write("[")
		p.list(e.List)
		p.w.Write("]")
	case *syntax.TupleExpr:
		p.w.Write("(")
		p.list(e.List)
		if len(e.List) == 1 {
			p.w.Write(",")
		}
		p.w.Write(")")
	case *syntax.DictExpr:
		p.w.Write("{")
		for i, entry := range e.List {
			if i > 0 {
				p.w.Write(", ")
			}
			p.expr(entry)
		}
		p.w.Write("}")
	case *syntax.DictEntry:
		p.expr(e.Key)
		p.mark(e)
		p.w.Write(": ")
		p.expr(e.Value)
	case *syntax.Comprehension:
		p.comprehension(e)
	case *syntax.CondExpr:
		p.operand(e.True)
		p.w.Write(" if ")
		p.operand(e.Cond)
		p.w.Write(" else ")
		p.operand(e.False)
	case *syntax.LambdaExpr:
		p.w.Write("lambda")
		if len(e.Params) > 0 {
			p.w.Write(" ")
			p.params(e.Params)
		}
		p.w.Write(": ")
		p.expr(e.Body)
	case *syntax.UnaryExpr:
		switch e.Op {
		case syntax.NOT:
			p.w.Write("not ")
		default:
			p.w.Write(e.Op.String())
		}
		if e.X != nil {
			p.operand(e.X)
		}
	case *syntax.BinaryExpr:
		p.operand(e.X)
		p.w.Write(" ")
		p.mark(e)
		p.w.Write(e.Op.String())
		p.w.Write(" ")
		p.operand(e.Y)
	default:
		panic(fmt.Sprintf("emit: unexpected expression %T", x))
	}
}

func (p *printer) comprehension(c *syntax.Comprehension) {
	lb, rb := "[", "]"
	if c.Curly {
		lb, rb = "{", "}"
	}
	p.w.Write(lb)
	p.expr(c.Body)
	for _, clause := range c.Clauses {
		p.mark(clause)
		switch cl := clause.(type) {
		case *syntax.ForClause:
			p.w.Write(" for ")
			p.targets(cl.Vars)
			p.w.Write(" in ")
			p.operand(cl.X)
		case *syntax.IfClause:
			p.w.Write(" if ")
			p.operand(cl.Cond)
		}
	}
	p.w.Write(rb)
}

// literal returns the source form of a literal. The original spelling is
// kept unless it spans lines.
func literal(x *syntax.Literal) string {
	if x.Raw != "" && !strings.ContainsAny(x.Raw, "\n\r") {
		return x.Raw
	}
	switch v := x.Value.(type) {
	case string:
		return syntax.Quote(v, x.Token == syntax.BYTES)
	case int64:
		return strconv.FormatInt(v, 10)
	case *big.Int:
		return v.String()
	case float64:
		s := strconv.FormatFloat(v, 'g', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
		return s
	}
	return fmt.Sprint(x.Value)
}
