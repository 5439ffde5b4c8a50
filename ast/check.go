package ast

import (
	"fmt"
	"strings"
	"unicode"

	"go.starlark.net/syntax"

	"github.com/rubiojr/enaml/diag"
	"github.com/rubiojr/enaml/scanner"
	"github.com/rubiojr/enaml/source"
)

// Check validates a module without modifying it.
type Check interface {
	Name() string
	Check(mod *Module) error
}

// CheckChain runs checks in order, stopping at the first error.
type CheckChain []Check

// Run executes each check in sequence. Returns nil if all pass.
func (cc CheckChain) Run(mod *Module) error {
	for _, c := range cc {
		if err := c.Check(mod); err != nil {
			return err
		}
	}
	return nil
}

// DefaultChecks are the structural rules enforced before lowering.
var DefaultChecks = CheckChain{
	PlacementCheck{},
	TemplateRootCheck{},
	TypeRefCheck{},
	ReservedNameCheck{},
	UniqueIdentCheck{},
	WritableBindingCheck{},
}

func lowerErr(mod *Module, sp source.Span, format string, args ...interface{}) error {
	return &diag.LoweringError{File: mod.Path, Span: sp, Msg: fmt.Sprintf(format, args...)}
}

func describe(n Node) string {
	switch n := n.(type) {
	case *Binding:
		return fmt.Sprintf("binding %q", n.Name)
	case *AttrDecl:
		return fmt.Sprintf("%s %q", n.Keyword(), n.Name)
	case *AliasDecl:
		return fmt.Sprintf("alias %q", n.Name)
	case *FuncDecl:
		return fmt.Sprintf("func %q", n.Def.Name.Name)
	case *ChildDecl:
		return fmt.Sprintf("declaration of %s", n.Type)
	case *EnamlDef:
		return fmt.Sprintf("enamldef %q", n.Name)
	case *Template:
		return fmt.Sprintf("template %q", n.Name)
	case *HostStmt:
		return "host statement"
	case *ImportFrom, *ImportModule:
		return "import"
	}
	return fmt.Sprintf("%T", n)
}

// PlacementCheck rejects object-level items (bindings, attr, alias, func)
// outside an object body and module-level items inside one.
type PlacementCheck struct{}

func (PlacementCheck) Name() string { return "placement" }

func (c PlacementCheck) Check(mod *Module) error {
	for _, n := range mod.Body {
		switch n := n.(type) {
		case *HostStmt, *ImportFrom, *ImportModule:
		case *EnamlDef:
			if err := c.body(mod, n.Body); err != nil {
				return err
			}
		case *Template:
			for _, item := range n.Body {
				child, ok := item.(*ChildDecl)
				if !ok {
					return lowerErr(mod, item.Span(), "%s outside a declaration object in template %q", describe(item), n.Name)
				}
				if err := c.body(mod, child.Body); err != nil {
					return err
				}
			}
		default:
			return lowerErr(mod, n.Span(), "%s outside a declaration block", describe(n))
		}
	}
	return nil
}

func (c PlacementCheck) body(mod *Module, body []Node) error {
	for _, n := range body {
		switch n := n.(type) {
		case *Binding, *AttrDecl, *AliasDecl, *FuncDecl:
		case *ChildDecl:
			if err := c.body(mod, n.Body); err != nil {
				return err
			}
		default:
			return lowerErr(mod, n.Span(), "%s is not allowed in a declaration body", describe(n))
		}
	}
	return nil
}

// TemplateRootCheck requires every template to declare exactly one root
// object.
type TemplateRootCheck struct{}

func (TemplateRootCheck) Name() string { return "template-root" }

func (TemplateRootCheck) Check(mod *Module) error {
	for _, n := range mod.Body {
		t, ok := n.(*Template)
		if !ok {
			continue
		}
		if len(t.Body) != 1 {
			return lowerErr(mod, t.Span(), "template %q must declare exactly one root object, found %d", t.Name, len(t.Body))
		}
	}
	return nil
}

// TypeRefCheck requires base and child type references to be names or
// dotted names.
type TypeRefCheck struct{}

func (TypeRefCheck) Name() string { return "type-ref" }

func (TypeRefCheck) Check(mod *Module) error {
	var err error
	Walk(mod, func(n Node) bool {
		if err != nil {
			return false
		}
		switch n := n.(type) {
		case *EnamlDef:
			if n.BaseType == nil || !isDotted(n.BaseType.Expr) {
				sp := n.Span()
				if n.BaseType != nil {
					sp = n.BaseType.Span()
				}
				err = lowerErr(mod, sp, "base type of enamldef %q must be a name or dotted name", n.Name)
			}
		case *ChildDecl:
			if !validTypeRef(n.Type) {
				sp := n.HeaderSpan
				if n.Type != nil {
					sp = n.Type.Span()
				}
				err = lowerErr(mod, sp, "malformed type reference %q", typeRefString(n.Type))
			}
		}
		return true
	})
	return err
}

func isDotted(x syntax.Expr) bool {
	switch x := x.(type) {
	case *syntax.Ident:
		return true
	case *syntax.DotExpr:
		return isDotted(x.X)
	}
	return false
}

func typeRefString(t *TypeRef) string {
	if t == nil {
		return ""
	}
	return t.String()
}

func validTypeRef(t *TypeRef) bool {
	if t == nil || len(t.Parts) == 0 {
		return false
	}
	for _, p := range t.Parts {
		if !IsIdentifier(p) || scanner.IsKeyword(p) {
			return false
		}
	}
	return true
}

// IsIdentifier reports whether s is a syntactically valid identifier.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

// ReservedNameCheck rejects user names in the namespace used by generated
// code.
type ReservedNameCheck struct{}

func (ReservedNameCheck) Name() string { return "reserved-names" }

func (ReservedNameCheck) Check(mod *Module) error {
	var err error
	check := func(name string, sp source.Span) {
		if err == nil && strings.HasPrefix(name, "__") {
			err = lowerErr(mod, sp, "identifier %q is reserved", name)
		}
	}
	Walk(mod, func(n Node) bool {
		switch n := n.(type) {
		case *EnamlDef:
			check(n.Name, n.NameSpan)
			check(n.Ident, n.IdentSpan)
		case *Template:
			check(n.Name, n.NameSpan)
		case *ChildDecl:
			check(n.Ident, n.IdentSpan)
		case *Binding:
			check(n.Name, n.NameSpan)
		case *AttrDecl:
			check(n.Name, n.NameSpan)
		case *AliasDecl:
			check(n.Name, n.Span())
		case *FuncDecl:
			check(n.Def.Name.Name, n.Span())
		}
		return err == nil
	})
	return err
}

// UniqueIdentCheck rejects an identifier declared twice within one
// enamldef or template.
type UniqueIdentCheck struct{}

func (UniqueIdentCheck) Name() string { return "unique-idents" }

func (UniqueIdentCheck) Check(mod *Module) error {
	for _, n := range mod.Body {
		seen := map[string]source.Span{}
		var err error
		declare := func(name string, sp source.Span) {
			if err != nil || name == "" {
				return
			}
			if first, ok := seen[name]; ok {
				err = lowerErr(mod, sp, "duplicate identifier %q (first declared on line %d)", name, first.Start.Line)
				return
			}
			seen[name] = sp
		}
		switch d := n.(type) {
		case *EnamlDef:
			declare(d.Ident, d.IdentSpan)
		case *Template:
		default:
			continue
		}
		Walk(n, func(c Node) bool {
			if child, ok := c.(*ChildDecl); ok {
				declare(child.Ident, child.IdentSpan)
			}
			return err == nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// WritableBindingCheck requires operators that write back (>> and :=) to
// target an attribute or item expression, and only :: to carry statements.
type WritableBindingCheck struct{}

func (WritableBindingCheck) Name() string { return "writable-bindings" }

func (WritableBindingCheck) Check(mod *Module) error {
	var err error
	Walk(mod, func(n Node) bool {
		b, ok := n.(*Binding)
		if !ok || err != nil {
			return err == nil
		}
		if b.Handler != nil && b.Op != OpNotify {
			err = lowerErr(mod, b.OpSpan, "operator %q does not accept a statement block", b.Op)
			return false
		}
		if b.Handler == nil && b.Expr == nil {
			err = lowerErr(mod, b.Span(), "binding %q has no expression", b.Name)
			return false
		}
		if b.Op.Writes() {
			switch b.Expr.Expr.(type) {
			case *syntax.DotExpr, *syntax.IndexExpr:
			default:
				err = lowerErr(mod, b.Expr.Span(), "operator %q requires an attribute or item expression", b.Op)
			}
		}
		return err == nil
	})
	return err
}
