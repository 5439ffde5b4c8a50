package parser

import (
	"go.starlark.net/syntax"

	"github.com/rubiojr/enaml/ast"
	"github.com/rubiojr/enaml/scanner"
	"github.com/rubiojr/enaml/source"
)

// body parses a declaration body after its header colon:
//
//	'pass' NEWLINE | NEWLINE INDENT item+ DEDENT
//
// It returns the items and the end of the last token consumed.
func (p *parser) body() ([]ast.Node, source.Pos, error) {
	if tok := p.peek(); tok.IsKeyword("pass") {
		p.next()
		return nil, tok.Span.End, p.expectNewline()
	}
	if err := p.expectNewline(); err != nil {
		return nil, source.Pos{}, err
	}
	if _, err := p.expectKind(scanner.INDENT, "an indented block"); err != nil {
		return nil, source.Pos{}, err
	}
	var items []ast.Node
	for {
		tok := p.peek()
		if tok.Kind == scanner.DEDENT || tok.Kind == scanner.EOF {
			break
		}
		n, err := p.item()
		if err != nil {
			return nil, source.Pos{}, err
		}
		if n != nil {
			items = append(items, n)
		}
	}
	end := p.lastReal(0, p.i).Span.End
	p.next()
	return items, end, nil
}

func (p *parser) item() (ast.Node, error) {
	tok := p.peek()
	if tok.IsKeyword("pass") {
		p.next()
		return nil, p.expectNewline()
	}
	if tok.Kind != scanner.NAME {
		return nil, p.errorf(tok.Span, "", "unexpected %s in declaration body", tok.Describe())
	}
	next := p.peekAt(1)
	switch {
	case (tok.Text == "attr" || tok.Text == "event") && next.Kind == scanner.NAME:
		return p.attrDecl()
	case tok.Text == "alias" && next.Kind == scanner.NAME:
		return p.aliasDecl()
	case tok.Text == "func" && next.Kind == scanner.NAME:
		return p.funcDecl()
	case scanner.IsBindingOp(next):
		name := p.next()
		return p.binding(name)
	}
	return p.childDecl()
}

// childDecl parses dotted ':' [NAME ':'] body.
func (p *parser) childDecl() (*ast.ChildDecl, error) {
	first := p.peek()
	parts, typeSpan, err := p.dotted()
	if err != nil {
		return nil, err
	}
	if !p.peek().IsOp(":") {
		return nil, p.headerError(first, "':'")
	}
	colon := p.next()
	c := &ast.ChildDecl{Type: &ast.TypeRef{Parts: parts}}
	c.Type.SourceSpan = typeSpan
	c.HeaderSpan = source.Span{Start: first.Span.Start, End: colon.Span.End}
	id, ok, err := p.headerIdent(first)
	if err != nil {
		return nil, err
	}
	if ok {
		c.Ident, c.IdentSpan = id.Text, id.Span
		c.HeaderSpan.End = p.toks[p.i-1].Span.End
	}
	body, end, err := p.body()
	if err != nil {
		return nil, err
	}
	c.Body = body
	c.SourceSpan = source.Span{Start: first.Span.Start, End: end}
	return c, nil
}

// binding parses the operator and right-hand side following name.
//
//	op host_expr NEWLINE
//	'::' host_simple_stmts NEWLINE
//	'::' NEWLINE INDENT host_stmts DEDENT
func (p *parser) binding(name scanner.Token) (*ast.Binding, error) {
	opTok := p.next()
	op, ok := ast.ParseOperator(opTok.Text)
	if !ok {
		return nil, p.unexpected(opTok, "binding operator")
	}
	b := &ast.Binding{Name: name.Text, NameSpan: name.Span, Op: op, OpSpan: opTok.Span}
	if op == ast.OpNotify {
		if err := p.handler(b); err != nil {
			return nil, err
		}
	} else {
		end := p.lineEndIndex(p.i)
		if end == p.i {
			return nil, p.unexpected(p.peek(), "expression")
		}
		x, err := p.hostExpr(p.i, end)
		if err != nil {
			return nil, err
		}
		b.Expr = x
		p.i = end
		if err := p.expectNewline(); err != nil {
			return nil, err
		}
	}
	b.SourceSpan = source.Span{Start: name.Span.Start, End: p.lastReal(0, p.i).Span.End}
	return b, nil
}

// handler parses the right-hand side of a notification binding. A single
// expression statement is kept as an expression; anything else becomes a
// statement block.
func (p *parser) handler(b *ast.Binding) error {
	if p.peek().Kind == scanner.NEWLINE && p.peekAt(1).Kind == scanner.INDENT {
		p.next()
		indent := p.i
		end := p.blockEnd(indent)
		first := p.toks[indent+1]
		last := p.lastReal(indent+1, end)
		stmts, err := p.hostBlock(first, last.Span.End.Offset, scanner.Token{}, "")
		if err != nil {
			return err
		}
		b.Handler = p.wrapStmts(stmts)
		p.i = end
		return nil
	}
	end := p.lineEndIndex(p.i)
	if end == p.i {
		return p.unexpected(p.peek(), "expression or statement")
	}
	stmts, err := p.hostInline(p.toks[p.i], p.toks[end-1].Span.End.Offset)
	if err != nil {
		return err
	}
	p.i = end
	if err := p.expectNewline(); err != nil {
		return err
	}
	if len(stmts) == 1 {
		if es, ok := stmts[0].(*syntax.ExprStmt); ok {
			b.Expr = p.wrapExpr(es.X)
			return nil
		}
	}
	b.Handler = p.wrapStmts(stmts)
	return nil
}

// attrDecl parses ('attr' | 'event') NAME [':' type] [op rhs] NEWLINE.
func (p *parser) attrDecl() (*ast.AttrDecl, error) {
	kw := p.next()
	name := p.next()
	a := &ast.AttrDecl{Event: kw.Text == "event", Name: name.Text, NameSpan: name.Span}
	if p.peek().IsOp(":") {
		p.next()
		end := p.i
		depth := 0
		for ; end < len(p.toks); end++ {
			t := p.toks[end]
			if t.Kind == scanner.NEWLINE || t.Kind == scanner.EOF || (depth == 0 && scanner.IsBindingOp(t)) {
				break
			}
			switch {
			case t.IsOp("(") || t.IsOp("[") || t.IsOp("{"):
				depth++
			case t.IsOp(")") || t.IsOp("]") || t.IsOp("}"):
				depth--
			}
		}
		if end == p.i {
			return nil, p.unexpected(p.peek(), "type expression")
		}
		typ, err := p.hostExpr(p.i, end)
		if err != nil {
			return nil, err
		}
		a.Type = typ
		p.i = end
	}
	if tok := p.peek(); scanner.IsBindingOp(tok) {
		if a.Event {
			return nil, p.errorf(tok.Span, "", "event %q cannot have a default value", a.Name)
		}
		b, err := p.binding(name)
		if err != nil {
			return nil, err
		}
		a.Default = b
	} else if err := p.expectNewline(); err != nil {
		return nil, err
	}
	a.SourceSpan = source.Span{Start: kw.Span.Start, End: p.lastReal(0, p.i).Span.End}
	return a, nil
}

// aliasDecl parses 'alias' NAME [':' NAME ('.' NAME)*] NEWLINE.
func (p *parser) aliasDecl() (*ast.AliasDecl, error) {
	kw := p.next()
	name := p.next()
	a := &ast.AliasDecl{Name: name.Text, Target: name.Text, TargetSpan: name.Span}
	if p.peek().IsOp(":") {
		p.next()
		parts, sp, err := p.dotted()
		if err != nil {
			return nil, err
		}
		a.Target, a.TargetSpan, a.Chain = parts[0], sp, parts[1:]
	}
	if err := p.expectNewline(); err != nil {
		return nil, err
	}
	a.SourceSpan = source.Span{Start: kw.Span.Start, End: p.lastReal(0, p.i).Span.End}
	return a, nil
}

// funcDecl parses a method declaration. The host grammar parses it as a
// def after the keyword is swapped for one of equal width.
func (p *parser) funcDecl() (*ast.FuncDecl, error) {
	kw := p.peek()
	start := p.i
	end, err := p.stmtExtent(start)
	if err != nil {
		return nil, err
	}
	last := p.lastReal(start, end)
	stmts, err := p.hostBlock(kw, last.Span.End.Offset, kw, "def ")
	if err != nil {
		return nil, err
	}
	def, ok := stmts[0].(*syntax.DefStmt)
	if !ok || len(stmts) != 1 {
		return nil, p.errorf(kw.Span, "", "malformed func declaration")
	}
	p.i = end
	f := &ast.FuncDecl{Def: def}
	f.SourceSpan = source.Span{Start: kw.Span.Start, End: last.Span.End}
	return f, nil
}
