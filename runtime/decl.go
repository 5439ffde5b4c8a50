package runtime

import (
	"fmt"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/rubiojr/enaml/ast"
)

// Decl returns the __decl__ module that lowered markup calls into.
func Decl() *starlarkstruct.Module {
	fns := []*starlark.Builtin{
		starlark.NewBuiltin("new", declNew),
		starlark.NewBuiltin("child", declChild),
		starlark.NewBuiltin("bind", declBind),
		starlark.NewBuiltin("enamldef", declEnamlDef),
		starlark.NewBuiltin("attr", declAttr),
		starlark.NewBuiltin("alias", declAlias),
		starlark.NewBuiltin("func", declFunc),
		starlark.NewBuiltin("setattr", declSetAttr),
		starlark.NewBuiltin("setitem", declSetItem),
	}
	members := make(starlark.StringDict, len(fns))
	for _, fn := range fns {
		members[fn.Name()] = fn
	}
	return &starlarkstruct.Module{Name: ast.DeclModule, Members: members}
}

// Predeclared returns the names every markup file needs at run time.
func Predeclared() starlark.StringDict {
	return starlark.StringDict{ast.DeclModule: Decl()}
}

func asObject(fn string, v starlark.Value) (*Object, error) {
	o, ok := v.(*Object)
	if !ok {
		return nil, fmt.Errorf("%s: got %s, want a declarative object", fn, v.Type())
	}
	return o, nil
}

func asType(fn string, v starlark.Value) (*Type, error) {
	t, ok := v.(*Type)
	if !ok {
		return nil, fmt.Errorf("%s: %s is not a declarative type", fn, v.String())
	}
	return t, nil
}

// new(type) constructs an instance whose bindings are activated when its
// root is initialized.
func declNew(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var tv starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &tv); err != nil {
		return nil, err
	}
	t, err := asType(b.Name(), tv)
	if err != nil {
		return nil, err
	}
	return t.New(thread)
}

// child(parent, child)
func declChild(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pv, cv starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &pv, &cv); err != nil {
		return nil, err
	}
	parent, err := asObject(b.Name(), pv)
	if err != nil {
		return nil, err
	}
	child, err := asObject(b.Name(), cv)
	if err != nil {
		return nil, err
	}
	if err := parent.addChild(child); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.None, nil
}

// bind(target, name, op, reader, writer)
func declBind(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		tv          starlark.Value
		name, glyph string
		reader      starlark.Callable
		writer      starlark.Value
	)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 5, &tv, &name, &glyph, &reader, &writer); err != nil {
		return nil, err
	}
	target, err := asObject(b.Name(), tv)
	if err != nil {
		return nil, err
	}
	op, ok := ast.ParseOperator(glyph)
	if !ok {
		return nil, fmt.Errorf("%s: unknown operator %q", b.Name(), glyph)
	}
	bd := &binding{owner: target, name: name, op: op, reader: reader}
	if writer != starlark.None {
		w, ok := writer.(starlark.Callable)
		if !ok {
			return nil, fmt.Errorf("%s: writer is %s, want callable", b.Name(), writer.Type())
		}
		bd.writer = w
	}
	if err := target.addBinding(thread, bd); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

// enamldef(name, base, builder) returns a new type deriving from base.
func declEnamlDef(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		name    string
		bv      starlark.Value
		builder starlark.Callable
	)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 3, &name, &bv, &builder); err != nil {
		return nil, err
	}
	base, err := asType(b.Name(), bv)
	if err != nil {
		return nil, fmt.Errorf("%s %s: base %w", b.Name(), name, err)
	}
	return &Type{name: name, base: base, builder: builder}, nil
}

// attr(target, name, kind, type) declares an attribute or event.
func declAttr(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		tv         starlark.Value
		name, kind string
		typ        starlark.Value
	)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 4, &tv, &name, &kind, &typ); err != nil {
		return nil, err
	}
	target, err := asObject(b.Name(), tv)
	if err != nil {
		return nil, err
	}
	var event bool
	switch kind {
	case "attr":
	case "event":
		event = true
	default:
		return nil, fmt.Errorf("%s: unknown declaration kind %q", b.Name(), kind)
	}
	var dt *Type
	if t, ok := typ.(*Type); ok {
		dt = t
	}
	target.declare(name, event, starlark.None, dt)
	return starlark.None, nil
}

// alias(target, name, resolve, chain)
func declAlias(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		tv          starlark.Value
		name, chain string
		resolve     starlark.Callable
	)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 4, &tv, &name, &resolve, &chain); err != nil {
		return nil, err
	}
	target, err := asObject(b.Name(), tv)
	if err != nil {
		return nil, err
	}
	if _, ok := target.slots[name]; ok {
		return nil, fmt.Errorf("%s: %s already has an attribute %q", b.Name(), target.typ.name, name)
	}
	a := &alias{resolve: resolve}
	if chain != "" {
		a.chain = strings.Split(chain, ".")
	}
	target.aliases[name] = a
	return starlark.None, nil
}

// func(target, name, fn) attaches a method.
func declFunc(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		tv   starlark.Value
		name string
		fn   starlark.Callable
	)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 3, &tv, &name, &fn); err != nil {
		return nil, err
	}
	target, err := asObject(b.Name(), tv)
	if err != nil {
		return nil, err
	}
	target.methods[name] = fn
	return starlark.None, nil
}

// setattr(x, name, value) is the write half of `>>` and `:=` on an
// attribute expression.
func declSetAttr(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		x, v starlark.Value
		name string
	)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 3, &x, &name, &v); err != nil {
		return nil, err
	}
	if o, ok := x.(*Object); ok {
		return starlark.None, o.set(thread, name, v)
	}
	sf, ok := x.(starlark.HasSetField)
	if !ok {
		return nil, fmt.Errorf("%s: %s has no settable fields", b.Name(), x.Type())
	}
	return starlark.None, sf.SetField(name, v)
}

// setitem(x, key, value) is the write half of `>>` and `:=` on an index
// expression.
func declSetItem(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x, k, v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 3, &x, &k, &v); err != nil {
		return nil, err
	}
	switch c := x.(type) {
	case starlark.HasSetKey:
		return starlark.None, c.SetKey(k, v)
	case starlark.HasSetIndex:
		i, err := starlark.AsInt32(k)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		if i < 0 {
			i += c.Len()
		}
		if i < 0 || i >= c.Len() {
			return nil, fmt.Errorf("%s: index %d out of range", b.Name(), i)
		}
		return starlark.None, c.SetIndex(i, v)
	}
	return nil, fmt.Errorf("%s: %s does not support item assignment", b.Name(), x.Type())
}
