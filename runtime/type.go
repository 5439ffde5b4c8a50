// Package runtime is the reference collaborator that lowered markup calls
// into through the predeclared __decl__ module. It provides declarative
// types, live objects with observable attributes, the five binding
// operators and a small widget set.
package runtime

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
)

// AttrSpec declares an attribute of a native type.
type AttrSpec struct {
	Name    string
	Event   bool
	Default starlark.Value
}

// Attr declares a storing attribute with a default value.
func Attr(name string, def starlark.Value) AttrSpec {
	return AttrSpec{Name: name, Default: def}
}

// Event declares an attribute that notifies observers but stores nothing.
func Event(name string) AttrSpec {
	return AttrSpec{Name: name, Event: true}
}

// Type is a declarative type. Native types declare attributes in Go;
// markup types (enamldef, template) add a builder function that declares
// children, attributes and bindings on each new instance.
type Type struct {
	name    string
	base    *Type
	attrs   []AttrSpec
	builder starlark.Callable
}

var (
	_ starlark.Callable = (*Type)(nil)
	_ starlark.HasAttrs = (*Type)(nil)
)

// NewType returns a native type.
func NewType(name string, base *Type, attrs ...AttrSpec) *Type {
	return &Type{name: name, base: base, attrs: attrs}
}

func (t *Type) String() string        { return fmt.Sprintf("<declarative type %s>", t.name) }
func (t *Type) Type() string          { return "type" }
func (t *Type) Freeze()               {}
func (t *Type) Truth() starlark.Bool  { return starlark.True }
func (t *Type) Hash() (uint32, error) { return starlark.String(t.name).Hash() }
func (t *Type) Name() string          { return t.name }

// Base returns the type t derives from, or nil.
func (t *Type) Base() *Type { return t.base }

// Attrs returns the native attributes t declares itself, excluding those
// of its bases.
func (t *Type) Attrs() []AttrSpec { return append([]AttrSpec(nil), t.attrs...) }

// Is reports whether t is other or derives from it.
func (t *Type) Is(other *Type) bool {
	for x := t; x != nil; x = x.base {
		if x == other {
			return true
		}
	}
	return false
}

// chain returns t's ancestry, root first.
func (t *Type) chain() []*Type {
	var out []*Type
	for x := t; x != nil; x = x.base {
		out = append(out, x)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (t *Type) Attr(name string) (starlark.Value, error) {
	switch name {
	case "__name__":
		return starlark.String(t.name), nil
	case "base":
		if t.base == nil {
			return starlark.None, nil
		}
		return t.base, nil
	}
	return nil, nil
}

func (t *Type) AttrNames() []string {
	names := []string{"__name__", "base"}
	sort.Strings(names)
	return names
}

// CallInternal instantiates the type. Keyword arguments are assigned after
// the bindings are initialized.
func (t *Type) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("%s: unexpected positional arguments", t.name)
	}
	o, err := t.New(thread)
	if err != nil {
		return nil, err
	}
	if err := o.Initialize(thread); err != nil {
		return nil, err
	}
	for _, kv := range kwargs {
		name := string(kv[0].(starlark.String))
		if err := o.set(thread, name, kv[1]); err != nil {
			return nil, fmt.Errorf("%s: %w", t.name, err)
		}
	}
	return o, nil
}

// New constructs an uninitialized instance: attributes are declared and
// every builder in the ancestry has run, root first, but no binding has
// been evaluated yet.
func (t *Type) New(thread *starlark.Thread) (*Object, error) {
	o := newObject(t, thread)
	for _, x := range t.chain() {
		for _, a := range x.attrs {
			o.declare(a.Name, a.Event, a.Default, nil)
		}
		if x.builder == nil {
			continue
		}
		if _, err := starlark.Call(thread, x.builder, starlark.Tuple{o}, nil); err != nil {
			return nil, err
		}
	}
	return o, nil
}
