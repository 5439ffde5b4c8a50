package parser

import (
	"errors"

	"fortio.org/safecast"
	"go.starlark.net/syntax"

	"github.com/rubiojr/enaml/ast"
	"github.com/rubiojr/enaml/scanner"
	"github.com/rubiojr/enaml/source"
)

// wrapPrefix opens a synthetic block so an indented statement range can be
// handed to the host grammar. It occupies the line above the range.
const wrapPrefix = "if True:\n"

func structural(k scanner.Kind) bool {
	return k == scanner.NEWLINE || k == scanner.INDENT || k == scanner.DEDENT || k == scanner.EOF
}

// lastReal returns the last non-structural token in [start, end).
func (p *parser) lastReal(start, end int) scanner.Token {
	for j := end - 1; j >= start; j-- {
		if !structural(p.toks[j].Kind) {
			return p.toks[j]
		}
	}
	return p.toks[start]
}

// lineEndIndex returns the index of the NEWLINE ending the logical line
// that contains token i.
func (p *parser) lineEndIndex(i int) int {
	for j := i; j < len(p.toks); j++ {
		if k := p.toks[j].Kind; k == scanner.NEWLINE || k == scanner.EOF {
			return j
		}
	}
	return len(p.toks) - 1
}

// blockEnd returns the index just past the DEDENT matching the INDENT at i.
func (p *parser) blockEnd(i int) int {
	level := 0
	for j := i; j < len(p.toks); j++ {
		switch p.toks[j].Kind {
		case scanner.INDENT:
			level++
		case scanner.DEDENT:
			level--
			if level == 0 {
				return j + 1
			}
		case scanner.EOF:
			return j
		}
	}
	return len(p.toks) - 1
}

func continuesCompound(t scanner.Token) bool {
	return t.IsKeyword("elif") || t.IsKeyword("else")
}

// stmtExtent returns the index just past the host statement starting at
// token start, including any indented suites and elif/else clauses.
// Binding operators outside brackets are rejected.
func (p *parser) stmtExtent(start int) (int, error) {
	level, depth := 0, 0
	for j := start; j < len(p.toks); j++ {
		t := p.toks[j]
		switch {
		case t.Kind == scanner.EOF:
			return j, nil
		case t.Kind == scanner.INDENT:
			level++
		case t.Kind == scanner.DEDENT:
			level--
			if level <= 0 && !continuesCompound(p.toks[j+1]) {
				return j + 1, nil
			}
		case t.Kind == scanner.NEWLINE:
			if level > 0 || p.toks[j+1].Kind == scanner.INDENT || continuesCompound(p.toks[j+1]) {
				continue
			}
			return j + 1, nil
		case t.IsOp("(") || t.IsOp("[") || t.IsOp("{"):
			depth++
		case t.IsOp(")") || t.IsOp("]") || t.IsOp("}"):
			depth--
		case depth == 0 && (t.IsOp(":=") || t.IsOp("::")):
			return 0, p.errorf(t.Span, "", "binding operator %q outside a declaration block", t.Text)
		}
	}
	return len(p.toks) - 1, nil
}

// hostStatements parses one module-level host statement (which may hold
// several simple statements separated by semicolons).
func (p *parser) hostStatements() ([]ast.Node, error) {
	start := p.i
	end, err := p.stmtExtent(start)
	if err != nil {
		return nil, err
	}
	last := p.lastReal(start, end)
	stmts, err := p.hostBlock(p.toks[start], last.Span.End.Offset, scanner.Token{}, "")
	if err != nil {
		return nil, err
	}
	p.i = end
	nodes := make([]ast.Node, len(stmts))
	for i, h := range p.wrapStmts(stmts) {
		nodes[i] = h
	}
	return nodes, nil
}

// hostBlock parses the source from the line of first up to byte offset
// end as host statements. first must be the first token on its line. When
// kw is set its text is replaced by repl, which has the same width.
func (p *parser) hostBlock(first scanner.Token, end int, kw scanner.Token, repl string) ([]syntax.Stmt, error) {
	return p.hostRange(first.Span.Start.Offset, end, kw, repl, "")
}

// hostRange is hostBlock with an optional suffix appended to the content.
func (p *parser) hostRange(start, end int, kw scanner.Token, repl, suffix string) ([]syntax.Stmt, error) {
	pos := p.file.Pos(start)
	lineStart := p.file.LineStart(pos.Line)
	content := make([]byte, 0, len(wrapPrefix)+end-lineStart+len(suffix))
	wrapped := pos.Col > 1
	line := pos.Line
	if wrapped {
		content = append(content, wrapPrefix...)
		line--
	}
	at := len(content)
	content = append(content, p.file.Src[lineStart:end]...)
	if repl != "" {
		copy(content[at+kw.Span.Start.Offset-lineStart:], repl)
	}
	content = append(content, suffix...)
	portion := syntax.FilePortion{Content: content, FirstLine: safecast.MustConv[int32](line), FirstCol: 1}
	f, err := p.opts.Parse(p.file.Path, portion, 0)
	if err != nil {
		return nil, p.hostError(err, p.file.Span(start, end))
	}
	if wrapped {
		return f.Stmts[0].(*syntax.IfStmt).True, nil
	}
	return f.Stmts, nil
}

// hostInline parses simple statements that begin mid-line at first.
func (p *parser) hostInline(first scanner.Token, end int) ([]syntax.Stmt, error) {
	start := first.Span.Start
	portion := syntax.FilePortion{
		Content:   p.file.Src[start.Offset:end],
		FirstLine: safecast.MustConv[int32](start.Line),
		FirstCol:  safecast.MustConv[int32](start.Col),
	}
	f, err := p.opts.Parse(p.file.Path, portion, 0)
	if err != nil {
		return nil, p.hostError(err, p.file.Span(start.Offset, end))
	}
	return f.Stmts, nil
}

// hostExpr parses tokens [start, end) as one host expression.
func (p *parser) hostExpr(start, end int) (*ast.HostExpr, error) {
	first := p.toks[start]
	last := p.lastReal(start, end)
	sp := source.Span{Start: first.Span.Start, End: last.Span.End}
	portion := syntax.FilePortion{
		Content:   p.file.Src[sp.Start.Offset:sp.End.Offset],
		FirstLine: safecast.MustConv[int32](sp.Start.Line),
		FirstCol:  safecast.MustConv[int32](sp.Start.Col),
	}
	x, err := p.opts.ParseExpr(p.file.Path, portion, 0)
	if err != nil {
		return nil, p.hostError(err, sp)
	}
	h := &ast.HostExpr{Expr: x}
	h.SourceSpan = sp
	return h, nil
}

// hostError converts a host grammar error into a ParseError located in
// the markup file.
func (p *parser) hostError(err error, region source.Span) error {
	var se syntax.Error
	if errors.As(err, &se) && se.Pos.IsValid() {
		start := p.file.PosAt(int(se.Pos.Line), int(se.Pos.Col))
		end := start
		end.Col++
		end.Offset++
		return p.errorf(source.Span{Start: start, End: end}, "", "%s", se.Msg)
	}
	return p.errorf(region, "", "%v", err)
}

func (p *parser) wrapExpr(x syntax.Expr) *ast.HostExpr {
	start, end := x.Span()
	h := &ast.HostExpr{Expr: x}
	h.SourceSpan = ast.HostSpan(p.file, start, end)
	return h
}

func (p *parser) wrapStmts(stmts []syntax.Stmt) []*ast.HostStmt {
	out := make([]*ast.HostStmt, len(stmts))
	for i, s := range stmts {
		start, end := s.Span()
		h := &ast.HostStmt{Stmt: s}
		h.SourceSpan = ast.HostSpan(p.file, start, end)
		out[i] = h
	}
	return out
}
