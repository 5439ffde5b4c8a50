// Package diag defines the error taxonomy of the markup compiler and the
// traceback format used to report failures against the original source.
package diag

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rubiojr/enaml/source"
)

// Stage names the pipeline step that produced a diagnostic.
type Stage string

const (
	StageLex     Stage = "lex"
	StageParse   Stage = "parse"
	StageLower   Stage = "lower"
	StageResolve Stage = "resolve"
	StageEmit    Stage = "emit"
)

// Kind returns the error kind printed on the last traceback line.
func (s Stage) Kind() string {
	switch s {
	case StageLex:
		return "LexError"
	case StageParse:
		return "ParseError"
	case StageLower:
		return "LoweringError"
	case StageResolve:
		return "ResolveError"
	default:
		return "CompileError"
	}
}

// Structural reports whether errors of this stage are markup-originated and
// rendered with a (line, column) header position.
func (s Stage) Structural() bool {
	return s == StageLex || s == StageParse || s == StageLower
}

// Diagnostic is the normalized form of any compile-stage failure.
type Diagnostic struct {
	File    string
	Span    source.Span
	Message string
	Stage   Stage
}

func (d Diagnostic) String() string {
	return located(d.File, d.Span, d.Message)
}

// Located is implemented by errors that point at a source range.
type Located interface {
	error
	Diagnostic() Diagnostic
}

func located(file string, span source.Span, msg string) string {
	if !span.Start.IsValid() {
		return fmt.Sprintf("%s: %s", file, msg)
	}
	return fmt.Sprintf("%s:%d:%d: %s", file, span.Start.Line, span.Start.Col, msg)
}

// LexError reports malformed input found by the tokenizer.
type LexError struct {
	File string
	Span source.Span
	Msg  string
}

func (e *LexError) Error() string { return located(e.File, e.Span, e.Msg) }

func (e *LexError) Diagnostic() Diagnostic {
	return Diagnostic{File: e.File, Span: e.Span, Message: e.Msg, Stage: StageLex}
}

// ParseError reports a token sequence that does not match the grammar.
// Expected, when set, names what the parser was looking for.
type ParseError struct {
	File     string
	Span     source.Span
	Msg      string
	Expected string
}

func (e *ParseError) Error() string { return located(e.File, e.Span, e.message()) }

func (e *ParseError) message() string {
	if e.Expected == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s (expected %s)", e.Msg, e.Expected)
}

func (e *ParseError) Diagnostic() Diagnostic {
	return Diagnostic{File: e.File, Span: e.Span, Message: e.message(), Stage: StageParse}
}

// LoweringError reports a tree that parsed but violates a structural rule.
type LoweringError struct {
	File string
	Span source.Span
	Msg  string
}

func (e *LoweringError) Error() string { return located(e.File, e.Span, e.Msg) }

func (e *LoweringError) Diagnostic() Diagnostic {
	return Diagnostic{File: e.File, Span: e.Span, Message: e.Msg, Stage: StageLower}
}

// CyclicImportError is raised when a file is imported while it is already
// being imported further up the stack. Cycle starts and ends with the
// repeated path.
type CyclicImportError struct {
	Cycle []string
}

func (e *CyclicImportError) Error() string {
	return "cyclic import: " + strings.Join(e.Cycle, " -> ")
}

// RuntimeBindingError reports a binding whose expression or handler failed
// while an object was initialized or updated.
type RuntimeBindingError struct {
	Type string
	Attr string
	Op   string
	Err  error
}

func (e *RuntimeBindingError) Error() string {
	return fmt.Sprintf("%s.%s %s: %v", e.Type, e.Attr, e.Op, e.Err)
}

func (e *RuntimeBindingError) Unwrap() error { return e.Err }

// CompileError is the single normalized error returned by the compiler for
// any stage failure. Err is the original stage error.
type CompileError struct {
	Diagnostic
	Src *source.File
	Err error
}

func (e *CompileError) Error() string { return e.Diagnostic.String() }

func (e *CompileError) Unwrap() error { return e.Err }

// Normalize converts a stage error into a *CompileError. Errors that are
// already normalized are returned unchanged; errors without a location are
// attributed to the whole file.
func Normalize(err error, src *source.File, fallback Stage) *CompileError {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce
	}
	var d Diagnostic
	var loc Located
	if errors.As(err, &loc) {
		d = loc.Diagnostic()
	} else {
		d = Diagnostic{Message: err.Error(), Stage: fallback}
		if src != nil {
			d.File = src.Path
		}
	}
	return &CompileError{Diagnostic: d, Src: src, Err: err}
}
