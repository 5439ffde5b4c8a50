// Package compiler turns markup source into executable host programs. It
// drives the pipeline (tokenize, parse, lower, emit, host compile), caches
// the resulting units by path and content fingerprint and keeps the table
// that maps generated positions back to the markup.
package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/rubiojr/enaml/ast"
	"github.com/rubiojr/enaml/diag"
	"github.com/rubiojr/enaml/parser"
	"github.com/rubiojr/enaml/source"
)

// CompiledUnit is the immutable result of compiling one markup file.
type CompiledUnit struct {
	Path          string // absolute path of the markup file
	Fingerprint   string // SHA-256 of the source
	GeneratedName string // file name the generated code is compiled under
	Generated     string // generated host source
	Program       *starlark.Program
	Locations     *LocationTable
	Src           *source.File
}

// SpanAt maps a position in the generated code to the markup span it came
// from.
func (u *CompiledUnit) SpanAt(pos syntax.Position) (source.Span, bool) {
	if pos.Filename() != u.GeneratedName {
		return source.Span{}, false
	}
	return u.Locations.Lookup(int(pos.Line), int(pos.Col))
}

// Compiler orchestrates the full compilation pipeline. It is safe for
// concurrent use.
type Compiler struct {
	// Options selects the host dialect. Nil means parser.HostOptions().
	Options *syntax.FileOptions
	// Disk optionally persists units across processes.
	Disk *DiskCache

	isPredeclared func(string) bool
	cache         *unitCache
}

// New returns a compiler. isPredeclared reports the names generated code
// may use without defining them.
func New(isPredeclared func(string) bool) *Compiler {
	if isPredeclared == nil {
		isPredeclared = func(string) bool { return false }
	}
	return &Compiler{isPredeclared: isPredeclared, cache: newUnitCache()}
}

func (c *Compiler) options() *syntax.FileOptions {
	if c.Options != nil {
		return c.Options
	}
	return parser.HostOptions()
}

// Compile reads the markup file at path and compiles it.
func (c *Compiler) Compile(path string) (*CompiledUnit, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path %s: %w", path, err)
	}
	src, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", absPath, err)
	}
	return c.CompileSource(absPath, src)
}

// CompileSource compiles src as the content of the file at path. An
// unchanged source yields the previously compiled unit. Failures are
// returned as *diag.CompileError and never cached.
func (c *Compiler) CompileSource(path string, src []byte) (*CompiledUnit, error) {
	u, _, err := c.compile(path, src)
	return u, err
}

// CompileCached is CompileSource that also reports whether the unit came
// from the cache.
func (c *Compiler) CompileCached(path string, src []byte) (*CompiledUnit, bool, error) {
	return c.compile(path, src)
}

func (c *Compiler) compile(path string, src []byte) (*CompiledUnit, bool, error) {
	fp := source.Fingerprint(src)
	return c.cache.do(path, fp, func() (*CompiledUnit, error) {
		file := source.NewFile(path, src)
		if u, ok := c.fromDisk(file, fp); ok {
			return u, nil
		}
		u, err := c.build(file, fp)
		if err != nil {
			return nil, err
		}
		// A failed write only costs a recompile in the next process.
		_ = c.Disk.Put(u)
		return u, nil
	})
}

// Invalidate drops the cached unit of path.
func (c *Compiler) Invalidate(path string) { c.cache.invalidate(path) }

// CachedUnits returns the number of units held in memory.
func (c *Compiler) CachedUnits() int { return c.cache.len() }

// Lower parses and lowers src without compiling it.
func (c *Compiler) Lower(path string, src []byte) (*ast.Lowered, error) {
	file := source.NewFile(path, src)
	mod, err := (&parser.Parser{Options: c.options()}).ParseFile(file)
	if err != nil {
		return nil, diag.Normalize(err, file, diag.StageParse)
	}
	low, err := ast.Lower(mod)
	if err != nil {
		return nil, diag.Normalize(err, file, diag.StageLower)
	}
	return low, nil
}

func (c *Compiler) build(file *source.File, fp string) (*CompiledUnit, error) {
	low, err := c.Lower(file.Path, file.Src)
	if err != nil {
		return nil, err
	}
	gen, locs := Emit(low)
	u := &CompiledUnit{
		Path:          file.Path,
		Fingerprint:   fp,
		GeneratedName: GeneratedName(file.Path),
		Generated:     gen,
		Locations:     locs,
		Src:           file,
	}
	_, prog, err := starlark.SourceProgramOptions(c.options(), u.GeneratedName, gen, c.isPredeclared)
	if err != nil {
		return nil, u.hostError(err)
	}
	u.Program = prog
	return u, nil
}

func (c *Compiler) fromDisk(file *source.File, fp string) (*CompiledUnit, bool) {
	payload, ok, err := c.Disk.get(file.Path, fp)
	if err != nil || !ok {
		return nil, false
	}
	prog, err := starlark.CompiledProgram(bytes.NewReader(payload.Program))
	if err != nil {
		return nil, false
	}
	return &CompiledUnit{
		Path:          file.Path,
		Fingerprint:   fp,
		GeneratedName: GeneratedName(file.Path),
		Generated:     payload.Generated,
		Program:       prog,
		Locations:     NewLocationTable(payload.Locations),
		Src:           file,
	}, true
}

// hostError converts a failure to compile generated code into a
// diagnostic located in the markup file. Resolve errors (undefined names,
// misplaced control flow) are user errors; a syntax error means the
// emitter produced invalid code.
func (u *CompiledUnit) hostError(err error) error {
	d := diag.Diagnostic{File: u.Path, Message: err.Error(), Stage: diag.StageEmit}
	var pos syntax.Position
	var rl resolve.ErrorList
	var se syntax.Error
	switch {
	case errors.As(err, &rl):
		d.Stage = diag.StageResolve
		d.Message = rl[0].Msg
		pos = rl[0].Pos
	case errors.As(err, &se):
		d.Message = se.Msg
		pos = se.Pos
	}
	if pos.IsValid() {
		if sp, ok := u.SpanAt(pos); ok {
			d.Span = sp
		}
	}
	return &diag.CompileError{Diagnostic: d, Src: u.Src, Err: err}
}
