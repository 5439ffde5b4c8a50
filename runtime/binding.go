package runtime

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/rubiojr/enaml/ast"
	"github.com/rubiojr/enaml/diag"
)

const trackerKey = "enaml.runtime.tracker"

type dep struct {
	obj  *Object
	name string
}

// tracker records the attributes read while a subscription evaluates.
type tracker struct {
	deps []dep
	seen map[dep]bool
}

func track(o *Object, name string) {
	if o.thread == nil {
		return
	}
	tr, _ := o.thread.Local(trackerKey).(*tracker)
	if tr == nil {
		return
	}
	d := dep{o, name}
	if !tr.seen[d] {
		tr.seen[d] = true
		tr.deps = append(tr.deps, d)
	}
}

// binding connects an attribute of owner to an expression or handler.
// reader evaluates the expression (or runs the handler) with owner as
// self; writer, when set, stores a new value into the expression.
type binding struct {
	owner  *Object
	name   string
	op     ast.Operator
	reader starlark.Callable
	writer starlark.Callable

	subscribed map[dep]bool
	busy       bool
}

func (b *binding) errorf(err error) error {
	return &diag.RuntimeBindingError{Type: b.owner.typ.name, Attr: b.name, Op: b.op.String(), Err: err}
}

// apply activates the binding. Every operator is dispatched here.
func (b *binding) apply(thread *starlark.Thread) error {
	switch b.op {
	case ast.OpAssign:
		v, err := b.read(thread)
		if err != nil {
			return err
		}
		return b.store(thread, v)
	case ast.OpSubscribe:
		return b.refresh(thread, nil)
	case ast.OpUpdate:
		return b.observeTarget(b.writeBack)
	case ast.OpDelegate:
		if err := b.refresh(thread, nil); err != nil {
			return err
		}
		return b.observeTarget(b.writeBack)
	case ast.OpNotify:
		return b.observeTarget(b.handle)
	}
	return b.errorf(fmt.Errorf("unknown binding operator %v", b.op))
}

func (b *binding) read(thread *starlark.Thread) (starlark.Value, error) {
	v, err := starlark.Call(thread, b.reader, starlark.Tuple{b.owner}, nil)
	if err != nil {
		return nil, b.errorf(err)
	}
	return v, nil
}

func (b *binding) store(thread *starlark.Thread, v starlark.Value) error {
	if err := b.owner.set(thread, b.name, v); err != nil {
		return b.errorf(err)
	}
	return nil
}

// refresh evaluates the expression while tracking its reads, stores the
// result and subscribes to every attribute read for the first time.
func (b *binding) refresh(thread *starlark.Thread, _ starlark.Value) error {
	if b.busy {
		return nil
	}
	b.busy = true
	defer func() { b.busy = false }()

	tr := &tracker{seen: make(map[dep]bool)}
	prev := thread.Local(trackerKey)
	thread.SetLocal(trackerKey, tr)
	v, err := b.read(thread)
	thread.SetLocal(trackerKey, prev)
	if err != nil {
		return err
	}
	for _, d := range tr.deps {
		if d.obj == b.owner && d.name == b.name {
			continue
		}
		if b.subscribed[d] {
			continue
		}
		if b.subscribed == nil {
			b.subscribed = make(map[dep]bool)
		}
		b.subscribed[d] = true
		if err := d.obj.observe(d.name, b.refresh); err != nil {
			return b.errorf(err)
		}
	}
	return b.store(thread, v)
}

// writeBack pushes a new attribute value into the expression.
func (b *binding) writeBack(thread *starlark.Thread, v starlark.Value) error {
	if b.busy || b.writer == nil {
		return nil
	}
	b.busy = true
	defer func() { b.busy = false }()
	if _, err := starlark.Call(thread, b.writer, starlark.Tuple{b.owner, v}, nil); err != nil {
		return b.errorf(err)
	}
	return nil
}

func (b *binding) handle(thread *starlark.Thread, _ starlark.Value) error {
	_, err := b.read(thread)
	return err
}

func (b *binding) observeTarget(obs observer) error {
	if err := b.owner.observe(b.name, obs); err != nil {
		return b.errorf(err)
	}
	return nil
}

// Initialize activates the bindings of o and then of its children, in
// declaration order. Initializing twice is a no-op.
func (o *Object) Initialize(thread *starlark.Thread) error {
	if o.initialized {
		return nil
	}
	o.initialized = true
	for _, b := range o.bindings {
		if err := b.apply(thread); err != nil {
			return err
		}
	}
	for _, c := range o.children {
		if err := c.Initialize(thread); err != nil {
			return err
		}
	}
	return nil
}

func (o *Object) addBinding(thread *starlark.Thread, b *binding) error {
	if !o.has(b.name) {
		return b.errorf(o.noSuchAttr(b.name))
	}
	if b.op.Writes() && b.writer == nil {
		return b.errorf(fmt.Errorf("operator %s needs an assignable expression", b.op))
	}
	o.bindings = append(o.bindings, b)
	if o.initialized {
		return b.apply(thread)
	}
	return nil
}
