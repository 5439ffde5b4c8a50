// Package parser implements the markup grammar. Declarations, bindings and
// imports are parsed here by recursive descent; embedded host statements
// and expressions are handed to the host grammar with their original
// positions.
package parser

import (
	"fmt"
	"os"
	"strings"

	"go.starlark.net/syntax"

	"github.com/rubiojr/enaml/ast"
	"github.com/rubiojr/enaml/diag"
	"github.com/rubiojr/enaml/scanner"
	"github.com/rubiojr/enaml/source"
)

// HostOptions returns the host dialect accepted in markup files.
func HostOptions() *syntax.FileOptions {
	return &syntax.FileOptions{
		Set:               true,
		While:             true,
		TopLevelControl:   true,
		GlobalReassign:    true,
		Recursion:         true,
		LoadBindsGlobally: true, // imported names are module attributes
	}
}

// Parser parses markup source into an extended tree.
type Parser struct {
	// Options selects the host dialect. Nil means HostOptions().
	Options *syntax.FileOptions
}

// Parse parses src, read from path.
func (p *Parser) Parse(path string, src []byte) (*ast.Module, error) {
	return p.ParseFile(source.NewFile(path, src))
}

// ParseFile parses an indexed source file.
func (p *Parser) ParseFile(file *source.File) (*ast.Module, error) {
	toks, err := scanner.Tokenize(file)
	if err != nil {
		return nil, err
	}
	opts := p.Options
	if opts == nil {
		opts = HostOptions()
	}
	ps := &parser{file: file, toks: toks, opts: opts}
	return ps.module()
}

// ParseFile reads and parses the markup file at path.
func ParseFile(path string) (*ast.Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return (&Parser{}).Parse(path, src)
}

type parser struct {
	file *source.File
	toks []scanner.Token
	i    int
	opts *syntax.FileOptions
}

func (p *parser) peek() scanner.Token { return p.peekAt(0) }

func (p *parser) peekAt(n int) scanner.Token {
	if p.i+n < len(p.toks) {
		return p.toks[p.i+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() scanner.Token {
	tok := p.peek()
	if p.i < len(p.toks)-1 {
		p.i++
	}
	return tok
}

func (p *parser) errorf(sp source.Span, expected, format string, args ...interface{}) error {
	return &diag.ParseError{File: p.file.Path, Span: sp, Msg: fmt.Sprintf(format, args...), Expected: expected}
}

func (p *parser) unexpected(tok scanner.Token, expected string) error {
	return p.errorf(tok.Span, expected, "unexpected %s", tok.Describe())
}

func (p *parser) expectOp(op string) (scanner.Token, error) {
	tok := p.peek()
	if !tok.IsOp(op) {
		return tok, p.unexpected(tok, fmt.Sprintf("'%s'", op))
	}
	return p.next(), nil
}

func (p *parser) expectKind(kind scanner.Kind, expected string) (scanner.Token, error) {
	tok := p.peek()
	if tok.Kind != kind {
		return tok, p.unexpected(tok, expected)
	}
	return p.next(), nil
}

func (p *parser) expectKeyword(kw string) error {
	if tok := p.peek(); !tok.IsKeyword(kw) {
		return p.unexpected(tok, fmt.Sprintf("'%s'", kw))
	}
	p.next()
	return nil
}

func (p *parser) expectNewline() error {
	_, err := p.expectKind(scanner.NEWLINE, "end of line")
	return err
}

// lineEnd returns the position where the logical line containing token
// index i ends: the start of its NEWLINE token.
func (p *parser) lineEnd(i int) source.Pos {
	for j := i; j < len(p.toks); j++ {
		if k := p.toks[j].Kind; k == scanner.NEWLINE || k == scanner.EOF {
			return p.toks[j].Span.Start
		}
	}
	return p.toks[len(p.toks)-1].Span.Start
}

// headerError reports a malformed declaration header. The span runs from
// the first header token to the end of the physical line.
func (p *parser) headerError(first scanner.Token, expected string) error {
	return p.headerErrorf(first, expected, "invalid syntax")
}

func (p *parser) headerErrorf(first scanner.Token, expected, format string, args ...interface{}) error {
	sp := source.Span{Start: first.Span.Start, End: p.lineEnd(p.i)}
	return p.errorf(sp, expected, format, args...)
}

// headerIdent parses the optional "NAME ':'" that may follow a header
// colon. Anything but the start of a body after the header is a malformed
// header.
func (p *parser) headerIdent(first scanner.Token) (scanner.Token, bool, error) {
	var id scanner.Token
	ok := false
	if p.peek().Kind == scanner.NAME {
		if !p.peekAt(1).IsOp(":") {
			return id, false, p.headerError(first, "':'")
		}
		id, ok = p.next(), true
		p.next()
	}
	if err := p.headerDone(first); err != nil {
		return id, false, err
	}
	return id, ok, nil
}

// headerDone checks that a body follows the header.
func (p *parser) headerDone(first scanner.Token) error {
	if tok := p.peek(); tok.Kind != scanner.NEWLINE && !tok.IsKeyword("pass") {
		return p.headerError(first, "end of line")
	}
	return nil
}

func (p *parser) module() (*ast.Module, error) {
	mod := &ast.Module{Path: p.file.Path, Src: p.file}
	mod.SourceSpan = p.file.Span(0, len(p.file.Src))
	for p.peek().Kind != scanner.EOF {
		tok := p.peek()
		var nodes []ast.Node
		var err error
		switch {
		case tok.Kind == scanner.NEWLINE:
			p.next()
			continue
		case tok.Kind == scanner.INDENT:
			return nil, p.errorf(tok.Span, "", "unexpected indent")
		case tok.IsKeyword("enamldef"):
			var n ast.Node
			n, err = p.enamldef()
			nodes = []ast.Node{n}
		case tok.IsKeyword("template"):
			var n ast.Node
			n, err = p.template()
			nodes = []ast.Node{n}
		case tok.IsKeyword("from"):
			var n ast.Node
			n, err = p.importFrom()
			nodes = []ast.Node{n}
		case tok.IsKeyword("import"):
			var n ast.Node
			n, err = p.importModule()
			nodes = []ast.Node{n}
		default:
			nodes, err = p.hostStatements()
		}
		if err != nil {
			return nil, err
		}
		mod.Body = append(mod.Body, nodes...)
	}
	return mod, nil
}

// dotted parses NAME ('.' NAME)*.
func (p *parser) dotted() ([]string, source.Span, error) {
	first, err := p.expectKind(scanner.NAME, "name")
	if err != nil {
		return nil, source.Span{}, err
	}
	parts := []string{first.Text}
	sp := first.Span
	for p.peek().IsOp(".") && p.peekAt(1).Kind == scanner.NAME {
		p.next()
		tok := p.next()
		parts = append(parts, tok.Text)
		sp.End = tok.Span.End
	}
	return parts, sp, nil
}

// matching returns the index of the bracket closing the one at index open.
func (p *parser) matching(open int) int {
	depth := 0
	for j := open; j < len(p.toks); j++ {
		switch t := p.toks[j]; {
		case t.IsOp("(") || t.IsOp("[") || t.IsOp("{"):
			depth++
		case t.IsOp(")") || t.IsOp("]") || t.IsOp("}"):
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return len(p.toks) - 1
}

// enamldef parses
//
//	'enamldef' NAME '(' base ')' ':' [NAME ':'] body
func (p *parser) enamldef() (*ast.EnamlDef, error) {
	kw := p.next()
	name := p.peek()
	if name.Kind != scanner.NAME {
		return nil, p.headerError(kw, "declaration name")
	}
	p.next()
	if !p.peek().IsOp("(") {
		return nil, p.headerError(kw, "'('")
	}
	p.next()
	rp := p.matching(p.i - 1)
	if rp == p.i {
		return nil, p.headerErrorf(kw, "base type", "enamldef %q requires a base type", name.Text)
	}
	base, err := p.hostExpr(p.i, rp)
	if err != nil {
		return nil, err
	}
	p.i = rp + 1
	if !p.peek().IsOp(":") {
		return nil, p.headerError(kw, "':'")
	}
	p.next()
	d := &ast.EnamlDef{Name: name.Text, NameSpan: name.Span, BaseType: base}
	id, ok, err := p.headerIdent(kw)
	if err != nil {
		return nil, err
	}
	if ok {
		d.Ident, d.IdentSpan = id.Text, id.Span
	}
	body, end, err := p.body()
	if err != nil {
		return nil, err
	}
	d.Body = body
	d.SourceSpan = source.Span{Start: kw.Span.Start, End: end}
	return d, nil
}

// template parses
//
//	'template' NAME '(' params ')' ':' body
func (p *parser) template() (*ast.Template, error) {
	kw := p.next()
	name := p.peek()
	if name.Kind != scanner.NAME {
		return nil, p.headerError(kw, "template name")
	}
	p.next()
	if !p.peek().IsOp("(") {
		return nil, p.headerError(kw, "'('")
	}
	p.next()
	rp := p.matching(p.i - 1)
	p.i = rp + 1
	colon := p.peek()
	if !colon.IsOp(":") {
		return nil, p.headerError(kw, "':'")
	}
	p.next()
	if err := p.headerDone(kw); err != nil {
		return nil, err
	}
	// Reuse the host grammar for the parameter list: the header becomes
	// "def     Name(params): pass" with every column unchanged.
	stmts, err := p.hostRange(kw.Span.Start.Offset, colon.Span.End.Offset, kw, "def     ", " pass")
	if err != nil {
		return nil, err
	}
	def, ok := stmts[0].(*syntax.DefStmt)
	if !ok || len(stmts) != 1 {
		return nil, p.errorf(kw.Span, "", "malformed template header")
	}
	t := &ast.Template{Name: name.Text, NameSpan: name.Span, Params: def.Params}
	body, end, err := p.body()
	if err != nil {
		return nil, err
	}
	t.Body = body
	t.SourceSpan = source.Span{Start: kw.Span.Start, End: end}
	return t, nil
}

// importFrom parses
//
//	'from' dotted 'import' (names | '(' names ')') NEWLINE
func (p *parser) importFrom() (*ast.ImportFrom, error) {
	kw := p.next()
	parts, modSpan, err := p.dotted()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("import"); err != nil {
		return nil, err
	}
	n := &ast.ImportFrom{Module: joinDots(parts), ModuleSpan: modSpan}
	if tok := p.peek(); tok.IsOp("*") {
		return nil, p.errorf(tok.Span, "", "wildcard imports are not supported")
	}
	paren := p.peek().IsOp("(")
	if paren {
		p.next()
	}
	for {
		if paren && p.peek().IsOp(")") && len(n.Names) > 0 {
			break
		}
		nameTok, err := p.expectKind(scanner.NAME, "imported name")
		if err != nil {
			return nil, err
		}
		in := ast.ImportName{Name: nameTok.Text, Span: nameTok.Span}
		if p.peek().IsKeyword("as") {
			p.next()
			alias, err := p.expectKind(scanner.NAME, "alias name")
			if err != nil {
				return nil, err
			}
			in.Alias = alias.Text
			in.Span.End = alias.Span.End
		}
		n.Names = append(n.Names, in)
		if !p.peek().IsOp(",") {
			break
		}
		p.next()
		if !paren && p.peek().Kind == scanner.NEWLINE {
			return nil, p.unexpected(p.peek(), "imported name")
		}
	}
	end := p.toks[p.i-1].Span.End
	if paren {
		rp, err := p.expectOp(")")
		if err != nil {
			return nil, err
		}
		end = rp.Span.End
	}
	if err := p.expectNewline(); err != nil {
		return nil, err
	}
	n.SourceSpan = source.Span{Start: kw.Span.Start, End: end}
	return n, nil
}

// importModule parses 'import' dotted ['as' NAME] NEWLINE.
func (p *parser) importModule() (*ast.ImportModule, error) {
	kw := p.next()
	parts, sp, err := p.dotted()
	if err != nil {
		return nil, err
	}
	n := &ast.ImportModule{Module: joinDots(parts)}
	if p.peek().IsKeyword("as") {
		p.next()
		alias, err := p.expectKind(scanner.NAME, "alias name")
		if err != nil {
			return nil, err
		}
		n.Alias = alias.Text
		sp.End = alias.Span.End
	} else if len(parts) > 1 {
		return nil, p.errorf(sp, "'as'", "dotted import %q needs an alias", n.Module)
	}
	if err := p.expectNewline(); err != nil {
		return nil, err
	}
	n.SourceSpan = source.Span{Start: kw.Span.Start, End: sp.End}
	return n, nil
}

func joinDots(parts []string) string { return strings.Join(parts, ".") }
