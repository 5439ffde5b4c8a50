package loader

import (
	"errors"

	"go.starlark.net/starlark"

	"github.com/rubiojr/enaml/compiler"
	"github.com/rubiojr/enaml/diag"
)

// Report renders err as a traceback against the markup files involved.
// Frames of executed generated code are mapped to the markup line they
// were generated from. A compile failure of an imported file is appended
// as the innermost frame, so the last frame always names the file that
// actually contains the error.
func (c *Context) Report(err error) *diag.Traceback {
	c.mu.Lock()
	defer c.mu.Unlock()

	tb := &diag.Traceback{}
	ee := innermostEvalError(err)
	if ee != nil {
		for _, fr := range ee.CallStack {
			if f, ok := c.frame(fr); ok {
				tb.Frames = append(tb.Frames, f)
			}
		}
	}

	var ce *diag.CompileError
	var cyc *diag.CyclicImportError
	var be *diag.RuntimeBindingError
	var nf *ImportError
	switch {
	case errors.As(err, &ce):
		inner := diag.ForCompileError(ce)
		tb.Frames = append(tb.Frames, inner.Frames...)
		tb.Kind, tb.Message = inner.Kind, inner.Message
	case errors.As(err, &cyc):
		tb.Kind, tb.Message = "CyclicImportError", cyc.Error()
	case errors.As(err, &be):
		tb.Kind, tb.Message = "RuntimeBindingError", be.Error()
	case ee != nil:
		tb.Kind, tb.Message = "Error", ee.Msg
	case errors.As(err, &nf) && errors.Is(err, ErrModuleNotFound):
		tb.Kind, tb.Message = "ImportError", nf.Err.Error()
	default:
		fallback := diag.FromError(err)
		tb.Frames = append(tb.Frames, fallback.Frames...)
		tb.Kind, tb.Message = fallback.Kind, fallback.Message
	}
	return tb
}

// innermostEvalError returns the deepest evaluation error in err's chain.
// Its call stack is the complete one: a nested import runs on the thread
// of its importer, so its frames include every importing file.
func innermostEvalError(err error) *starlark.EvalError {
	var found *starlark.EvalError
	for e := err; e != nil; e = errors.Unwrap(e) {
		if ee, ok := e.(*starlark.EvalError); ok {
			found = ee
		}
	}
	return found
}

// frame maps a host call frame to a traceback frame. Built-in frames are
// dropped.
func (c *Context) frame(fr starlark.CallFrame) (diag.Frame, bool) {
	file := fr.Pos.Filename()
	if file == "<builtin>" || !fr.Pos.IsValid() {
		return diag.Frame{}, false
	}
	name := fr.Name
	if name == "<toplevel>" {
		name = "<module>"
	}
	path, generated := compiler.SourceName(file)
	if !generated {
		return diag.HostFrame(file, int(fr.Pos.Line), name, nil), true
	}
	u, ok := c.units[path]
	if !ok {
		return diag.HostFrame(path, int(fr.Pos.Line), name, nil), true
	}
	line := int(fr.Pos.Line)
	if sp, ok := u.SpanAt(fr.Pos); ok {
		line = sp.Start.Line
	}
	return diag.HostFrame(u.Path, line, name, u.Src), true
}
