// Package modules is the registry of host-level modules that markup files
// can import by dotted name without a file on disk.
package modules

import (
	"fmt"
	"sort"
	"sync"

	"go.starlark.net/starlark"
)

// Module represents a builtin module that can be imported.
type Module struct {
	// Name is the dotted import name (e.g. "enaml.widgets.api").
	Name string
	// Doc is a one-line description shown by the CLI.
	Doc string
	// Members builds the module's globals. It is called once per import
	// context so that contexts never share mutable values.
	Members func() starlark.StringDict
}

var (
	mu       sync.RWMutex
	registry = make(map[string]*Module)
)

// Register adds a module to the global registry. Registering a name twice
// replaces the earlier module.
func Register(m *Module) {
	if m.Name == "" || m.Members == nil {
		panic(fmt.Sprintf("modules: invalid registration %+v", m))
	}
	mu.Lock()
	defer mu.Unlock()
	registry[m.Name] = m
}

// Get returns a registered module by name.
func Get(name string) (*Module, bool) {
	mu.RLock()
	defer mu.RUnlock()
	m, ok := registry[name]
	return m, ok
}

// Names returns sorted names of all registered modules.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Globals builds a fresh copy of the module's members.
func (m *Module) Globals() starlark.StringDict {
	g := m.Members()
	g.Freeze()
	return g
}
