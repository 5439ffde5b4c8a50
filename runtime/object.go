package runtime

import (
	"fmt"
	"sort"
	"sync/atomic"

	"go.starlark.net/starlark"
)

var objectIDs atomic.Uint32

// observer is called after an attribute changed or an event fired.
type observer func(thread *starlark.Thread, value starlark.Value) error

type slot struct {
	value     starlark.Value
	event     bool
	kind      *Type // when set, values must be instances of kind
	observers []observer
}

type alias struct {
	resolve starlark.Callable
	chain   []string
}

// Object is a live instance of a declarative type. Objects remember the
// thread that constructed them: attribute reads are tracked and observers
// run on it.
type Object struct {
	id       uint32
	typ      *Type
	thread   *starlark.Thread
	parent   *Object
	children []*Object

	slots    map[string]*slot
	order    []string
	aliases  map[string]*alias
	methods  map[string]starlark.Callable
	bindings []*binding

	initialized bool
}

var (
	_ starlark.HasAttrs    = (*Object)(nil)
	_ starlark.HasSetField = (*Object)(nil)
)

func newObject(t *Type, thread *starlark.Thread) *Object {
	return &Object{
		id:      objectIDs.Add(1),
		typ:     t,
		thread:  thread,
		slots:   make(map[string]*slot),
		aliases: make(map[string]*alias),
		methods: make(map[string]starlark.Callable),
	}
}

func (o *Object) String() string        { return fmt.Sprintf("<%s object>", o.typ.name) }
func (o *Object) Type() string          { return o.typ.name }
func (o *Object) Freeze()               {}
func (o *Object) Truth() starlark.Bool  { return starlark.True }
func (o *Object) Hash() (uint32, error) { return o.id, nil }

// DeclType returns the object's declarative type.
func (o *Object) DeclType() *Type { return o.typ }

// Parent returns the object's parent, or nil for a root.
func (o *Object) Parent() *Object { return o.parent }

// Children returns the object's children in declaration order.
func (o *Object) Children() []*Object { return append([]*Object(nil), o.children...) }

// AttrOrder returns the names of storing attributes in declaration order.
func (o *Object) AttrOrder() []string {
	var out []string
	for _, name := range o.order {
		if !o.slots[name].event {
			out = append(out, name)
		}
	}
	return out
}

// Get returns the value of a storing attribute without tracking the read.
func (o *Object) Get(name string) (starlark.Value, bool) {
	s, ok := o.slots[name]
	if !ok || s.event {
		return nil, false
	}
	return s.value, true
}

// Set assigns an attribute, notifying observers on the object's thread.
func (o *Object) Set(name string, v starlark.Value) error {
	return o.set(o.thread, name, v)
}

// Fire notifies the observers of an event or attribute with v.
func (o *Object) Fire(name string, v starlark.Value) error {
	s, ok := o.slots[name]
	if !ok {
		return o.noSuchAttr(name)
	}
	return s.notify(o.thread, v)
}

func (o *Object) declare(name string, event bool, def starlark.Value, kind *Type) {
	if def == nil {
		def = starlark.None
	}
	if s, ok := o.slots[name]; ok {
		// A redeclaration in a derived type replaces the default and keeps
		// existing observers.
		s.event, s.kind = event, kind
		if !event {
			s.value = def
		}
		return
	}
	s := &slot{event: event, kind: kind}
	if !event {
		s.value = def
	}
	o.slots[name] = s
	o.order = append(o.order, name)
}

func (o *Object) has(name string) bool {
	_, ok := o.slots[name]
	if !ok {
		_, ok = o.aliases[name]
	}
	return ok
}

func (o *Object) addChild(c *Object) error {
	if c == o {
		return fmt.Errorf("%s cannot be its own child", o.typ.name)
	}
	if c.parent != nil {
		return fmt.Errorf("%s already has a parent", c.typ.name)
	}
	c.parent = o
	o.children = append(o.children, c)
	return nil
}

func (o *Object) Attr(name string) (starlark.Value, error) {
	if s, ok := o.slots[name]; ok {
		track(o, name)
		if s.event {
			return starlark.None, nil
		}
		return s.value, nil
	}
	if a, ok := o.aliases[name]; ok {
		return o.readAlias(a)
	}
	if fn, ok := o.methods[name]; ok {
		return o.bound(name, fn), nil
	}
	switch name {
	case "parent":
		if o.parent == nil {
			return starlark.None, nil
		}
		return o.parent, nil
	case "children":
		out := make(starlark.Tuple, len(o.children))
		for i, c := range o.children {
			out[i] = c
		}
		return out, nil
	}
	return nil, nil
}

func (o *Object) AttrNames() []string {
	names := []string{"children", "parent"}
	for name := range o.slots {
		names = append(names, name)
	}
	for name := range o.aliases {
		names = append(names, name)
	}
	for name := range o.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (o *Object) SetField(name string, v starlark.Value) error {
	return o.set(o.thread, name, v)
}

func (o *Object) set(thread *starlark.Thread, name string, v starlark.Value) error {
	if a, ok := o.aliases[name]; ok {
		return o.writeAlias(thread, name, a, v)
	}
	s, ok := o.slots[name]
	if !ok {
		if _, isMethod := o.methods[name]; isMethod {
			return fmt.Errorf("cannot assign to method %s.%s", o.typ.name, name)
		}
		return o.noSuchAttr(name)
	}
	if s.kind != nil && v != starlark.None {
		inst, ok := v.(*Object)
		if !ok || !inst.typ.Is(s.kind) {
			return fmt.Errorf("%s.%s requires a %s, got %s", o.typ.name, name, s.kind.name, v.Type())
		}
	}
	if s.event {
		return s.notify(thread, v)
	}
	if eq, err := starlark.Equal(s.value, v); err == nil && eq {
		return nil
	}
	s.value = v
	return s.notify(thread, v)
}

func (o *Object) noSuchAttr(name string) error {
	return starlark.NoSuchAttrError(fmt.Sprintf("%s has no attribute %q", o.typ.name, name))
}

func (s *slot) notify(thread *starlark.Thread, v starlark.Value) error {
	for _, obs := range append([]observer(nil), s.observers...) {
		if err := obs(thread, v); err != nil {
			return err
		}
	}
	return nil
}

func (o *Object) observe(name string, obs observer) error {
	s, ok := o.slots[name]
	if !ok {
		return o.noSuchAttr(name)
	}
	s.observers = append(s.observers, obs)
	return nil
}

func (o *Object) bound(name string, fn starlark.Callable) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		full := append(starlark.Tuple{o}, args...)
		return starlark.Call(thread, fn, full, kwargs)
	})
}

// aliasTarget resolves an alias to the object owning the final attribute
// of its chain and that attribute's name. An alias without a chain names
// the resolved value itself and has an empty attribute name.
func (o *Object) aliasTarget(a *alias) (starlark.Value, string, error) {
	v, err := starlark.Call(o.thread, a.resolve, starlark.Tuple{o}, nil)
	if err != nil {
		return nil, "", err
	}
	if len(a.chain) == 0 {
		return v, "", nil
	}
	for _, name := range a.chain[:len(a.chain)-1] {
		if v, err = getattr(v, name); err != nil {
			return nil, "", err
		}
	}
	return v, a.chain[len(a.chain)-1], nil
}

func (o *Object) readAlias(a *alias) (starlark.Value, error) {
	v, name, err := o.aliasTarget(a)
	if err != nil || name == "" {
		return v, err
	}
	return getattr(v, name)
}

func (o *Object) writeAlias(thread *starlark.Thread, alias string, a *alias, v starlark.Value) error {
	owner, name, err := o.aliasTarget(a)
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("cannot assign to alias %s.%s", o.typ.name, alias)
	}
	if obj, ok := owner.(*Object); ok {
		return obj.set(thread, name, v)
	}
	sf, ok := owner.(starlark.HasSetField)
	if !ok {
		return fmt.Errorf("cannot assign to alias %s.%s: %s has no fields", o.typ.name, alias, owner.Type())
	}
	return sf.SetField(name, v)
}

func getattr(v starlark.Value, name string) (starlark.Value, error) {
	ha, ok := v.(starlark.HasAttrs)
	if !ok {
		return nil, fmt.Errorf("%s has no .%s attribute", v.Type(), name)
	}
	x, err := ha.Attr(name)
	if err != nil {
		return nil, err
	}
	if x == nil {
		return nil, starlark.NoSuchAttrError(fmt.Sprintf("%s has no .%s attribute", v.Type(), name))
	}
	return x, nil
}
