package ast

import (
	"strings"

	"go.starlark.net/syntax"

	"github.com/rubiojr/enaml/source"
)

// Node is the interface for all extended tree nodes.
type Node interface {
	Span() source.Span
	node()
}

// Base provides the source range shared by all nodes.
type Base struct {
	SourceSpan source.Span
}

func (b Base) Span() source.Span { return b.SourceSpan }

// Module is the root node of a parsed markup file.
type Module struct {
	Base
	Path string
	Src  *source.File
	Body []Node
}

func (m *Module) node() {}

// HostStmt wraps a statement parsed by the host grammar. The statement keeps
// its original positions.
type HostStmt struct {
	Base
	Stmt syntax.Stmt
}

func (h *HostStmt) node() {}

// HostExpr wraps an expression parsed by the host grammar.
type HostExpr struct {
	Base
	Expr syntax.Expr
}

func (h *HostExpr) node() {}

// ImportName is one name of a from-import.
type ImportName struct {
	Name  string
	Alias string
	Span  source.Span
}

// Local returns the name bound in the importing module.
func (n ImportName) Local() string {
	if n.Alias != "" {
		return n.Alias
	}
	return n.Name
}

// ImportFrom represents from module import a, b as c.
type ImportFrom struct {
	Base
	Module     string
	ModuleSpan source.Span
	Names      []ImportName
}

func (i *ImportFrom) node() {}

// ImportModule represents import module [as alias].
type ImportModule struct {
	Base
	Module string
	Alias  string
}

func (i *ImportModule) node() {}

// Local returns the name bound in the importing module.
func (i *ImportModule) Local() string {
	if i.Alias != "" {
		return i.Alias
	}
	return i.Module
}

// TypeRef is a dotted reference to a declarative type (e.g. api.Label).
type TypeRef struct {
	Base
	Parts []string
}

func (t *TypeRef) node() {}

func (t *TypeRef) String() string { return strings.Join(t.Parts, ".") }

// EnamlDef is a top-level declaration block:
//
//	enamldef Name(Base): ident:
//	    body
type EnamlDef struct {
	Base
	Name      string
	NameSpan  source.Span
	BaseType  *HostExpr
	Ident     string // optional
	IdentSpan source.Span
	Body      []Node
}

func (d *EnamlDef) node() {}

// ChildDecl declares a child object inside a declaration body.
type ChildDecl struct {
	Base
	Type       *TypeRef
	Ident      string // optional
	IdentSpan  source.Span
	HeaderSpan source.Span
	Body       []Node
}

func (c *ChildDecl) node() {}

// Binding attaches an expression to an attribute of the enclosing object.
// For OpNotify the right-hand side may be a statement block, held in
// Handler; otherwise Expr is set.
type Binding struct {
	Base
	Name     string
	NameSpan source.Span
	Op       Operator
	OpSpan   source.Span
	Expr     *HostExpr
	Handler  []*HostStmt
}

func (b *Binding) node() {}

// AttrDecl declares a new attribute (attr) or event (event) on the
// enclosing object, with an optional type and default binding.
type AttrDecl struct {
	Base
	Event    bool
	Name     string
	NameSpan source.Span
	Type     *HostExpr // optional
	Default  *Binding  // optional, attr only
}

func (a *AttrDecl) node() {}

// Keyword returns "attr" or "event".
func (a *AttrDecl) Keyword() string {
	if a.Event {
		return "event"
	}
	return "attr"
}

// AliasDecl exposes an identifier, or an attribute chain on it, as an
// attribute of the enclosing object.
type AliasDecl struct {
	Base
	Name       string
	Target     string
	TargetSpan source.Span
	Chain      []string
}

func (a *AliasDecl) node() {}

// FuncDecl declares a method on the enclosing object. Def is the host
// function as written, without the implicit self parameter.
type FuncDecl struct {
	Base
	Def *syntax.DefStmt
}

func (f *FuncDecl) node() {}

// Template is a parameterized declaration. Its body declares exactly one
// root object.
type Template struct {
	Base
	Name     string
	NameSpan source.Span
	Params   []syntax.Expr
	Body     []Node
}

func (t *Template) node() {}
