// Package loader imports markup files as host modules. It keeps the import
// stack, detects cycles, executes compiled units on the importing thread
// and maps failures back to the markup that caused them.
package loader

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/rubiojr/enaml/ast"
	"github.com/rubiojr/enaml/compiler"
	"github.com/rubiojr/enaml/diag"
	"github.com/rubiojr/enaml/modules"
)

// activeKey marks a thread that is executing inside an import of a
// Context. Nested imports on that thread already hold the lock.
const activeKey = "enaml.loader.context"

// Module is an imported markup file or builtin module.
type Module struct {
	// Name is the name the module was first imported by.
	Name string
	// Path is the absolute markup path. It is empty for builtin modules.
	Path    string
	Globals starlark.StringDict
	Unit    *compiler.CompiledUnit
}

// Struct returns the module as a value, as bound by `import x as y`.
func (m *Module) Struct() *starlarkstruct.Module {
	return &starlarkstruct.Module{Name: m.Name, Members: m.Globals}
}

// Option configures a Context.
type Option func(*Context)

// WithSearchPath appends directories that dotted imports are resolved in.
func WithSearchPath(dirs ...string) Option {
	return func(c *Context) { c.finder.path = append(c.finder.path, dirs...) }
}

// WithTrace writes one line per import event to w.
func WithTrace(w io.Writer) Option {
	return func(c *Context) { c.trace = w }
}

// WithPredeclared adds names visible to every imported file, such as the
// runtime collaborator.
func WithPredeclared(d starlark.StringDict) Option {
	return func(c *Context) {
		for k, v := range d {
			c.predeclared[k] = v
		}
	}
}

// WithDiskCache persists compiled units in dc.
func WithDiskCache(dc *compiler.DiskCache) Option {
	return func(c *Context) { c.disk = dc }
}

// WithPrint sets the handler for the host print builtin. By default output
// goes to stderr.
func WithPrint(fn func(thread *starlark.Thread, msg string)) Option {
	return func(c *Context) { c.print = fn }
}

// Context owns one import universe: a compiler, the modules imported so
// far and the stack of files currently being imported. Contexts are
// independent of each other. A Context is safe for concurrent use;
// top-level imports are serialized.
type Context struct {
	mu          sync.Mutex
	compiler    *compiler.Compiler
	disk        *compiler.DiskCache
	finder      finder
	predeclared starlark.StringDict
	trace       io.Writer
	print       func(thread *starlark.Thread, msg string)

	stack   []string
	modules map[string]*Module
	units   map[string]*compiler.CompiledUnit
	closed  bool
}

// New returns a Context configured by opts.
func New(opts ...Option) *Context {
	c := &Context{
		predeclared: make(starlark.StringDict),
		modules:     make(map[string]*Module),
		units:       make(map[string]*compiler.CompiledUnit),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.predeclared[ast.ImportBuiltin] = starlark.NewBuiltin(ast.ImportBuiltin, c.importBuiltin)
	c.compiler = compiler.New(c.predeclared.Has)
	c.compiler.Disk = c.disk
	return c
}

// Compiler returns the compiler used for imports.
func (c *Context) Compiler() *compiler.Compiler { return c.compiler }

// Stack returns a copy of the current import stack, outermost first.
func (c *Context) Stack() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.stack...)
}

// NewThread returns a thread that resolves load statements and imports
// through c.
func (c *Context) NewThread(name string) *starlark.Thread {
	return &starlark.Thread{Name: name, Load: c.load, Print: c.print}
}

// ImportFile imports the markup file at path.
func (c *Context) ImportFile(path string) (*Module, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path %s: %w", path, err)
	}
	var m *Module
	thread := c.NewThread("import " + path)
	err = c.enter(thread, func() error {
		var err error
		m, err = c.importPath(thread, path, abs)
		return err
	})
	return m, err
}

// Import imports a module by name: a builtin module, or a markup file
// found through the search path.
func (c *Context) Import(name string) (*Module, error) {
	var m *Module
	thread := c.NewThread("import " + name)
	err := c.enter(thread, func() error {
		var err error
		m, err = c.importName(thread, name)
		return err
	})
	return m, err
}

// Close drops the modules and compiled units held by c. Imports after
// Close fail with ErrClosed.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range c.units {
		c.compiler.Invalidate(u.Path)
	}
	c.modules, c.units = nil, nil
	c.closed = true
	return nil
}

// enter runs fn with the context locked unless thread is already running
// an import of c.
func (c *Context) enter(thread *starlark.Thread, fn func() error) error {
	if thread.Local(activeKey) == c {
		return fn()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	thread.SetLocal(activeKey, c)
	defer thread.SetLocal(activeKey, nil)
	return fn()
}

// load implements the host load statement.
func (c *Context) load(thread *starlark.Thread, name string) (starlark.StringDict, error) {
	var m *Module
	err := c.enter(thread, func() error {
		var err error
		m, err = c.importName(thread, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m.Globals, nil
}

// importBuiltin backs `import a.b as c`, which lowers to
// c = __import__("a.b").
func (c *Context) importBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	var m *Module
	err := c.enter(thread, func() error {
		var err error
		m, err = c.importName(thread, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m.Struct(), nil
}

func (c *Context) importName(thread *starlark.Thread, name string) (*Module, error) {
	if bm, ok := modules.Get(name); ok {
		key := "builtin:" + name
		if m, ok := c.modules[key]; ok {
			return m, nil
		}
		c.tracef("import: %s (builtin)", name)
		m := &Module{Name: name, Globals: bm.Globals()}
		c.modules[key] = m
		return m, nil
	}
	dir := ""
	if n := len(c.stack); n > 0 {
		dir = filepath.Dir(c.stack[n-1])
	} else if wd, err := os.Getwd(); err == nil {
		dir = wd
	}
	abs, err := c.finder.find(name, dir)
	if err != nil {
		return nil, c.importError(name, "", err)
	}
	return c.importPath(thread, name, abs)
}

// importPath compiles and executes the file at abs. The path stays on the
// stack for the duration of its execution, including nested imports.
func (c *Context) importPath(thread *starlark.Thread, name, abs string) (*Module, error) {
	for i, p := range c.stack {
		if p == abs {
			cycle := append(append([]string(nil), c.stack[i:]...), abs)
			return nil, c.importError(name, abs, &diag.CyclicImportError{Cycle: cycle})
		}
	}
	c.stack = append(c.stack, abs)
	defer func() { c.stack = c.stack[:len(c.stack)-1] }()

	src, err := os.ReadFile(abs)
	if err != nil {
		return nil, c.importError(name, abs, err)
	}
	unit, hit, err := c.compiler.CompileCached(abs, src)
	if err != nil {
		return nil, c.importError(name, abs, err)
	}
	c.units[abs] = unit
	if m, ok := c.modules[abs]; ok && m.Unit == unit {
		return m, nil
	}
	if hit {
		c.tracef("import: %s (cached)", abs)
	} else {
		c.tracef("import: %s", abs)
	}

	globals, err := unit.Program.Init(thread, c.predeclared)
	if err != nil {
		return nil, c.importError(name, abs, err)
	}
	globals.Freeze()
	m := &Module{Name: name, Path: abs, Globals: globals, Unit: unit}
	c.modules[abs] = m
	return m, nil
}

func (c *Context) importError(name, path string, err error) error {
	return &ImportError{
		Name:  name,
		Path:  path,
		Stack: append([]string(nil), c.stack...),
		Err:   err,
	}
}

func (c *Context) tracef(format string, args ...interface{}) {
	if c.trace == nil {
		return
	}
	fmt.Fprintf(c.trace, format+"\n", args...)
}
