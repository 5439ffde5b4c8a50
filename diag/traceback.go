package diag

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/rubiojr/enaml/source"
)

// Frame is one entry of a traceback.
type Frame struct {
	File string
	Line int
	// Col is the last covered column of a header frame.
	Col int
	// Header frames print "line (L, C)" and have no function name.
	Header bool
	Name   string
	Source string
}

// Traceback is a rendered failure: frames from the outermost call inwards,
// then the error kind and message.
type Traceback struct {
	Frames  []Frame
	Kind    string
	Message string
}

// HeaderFrame builds the frame for a markup-originated diagnostic.
func HeaderFrame(d Diagnostic, src *source.File) Frame {
	line, col := d.Span.HeaderPos()
	f := Frame{File: d.File, Line: line, Col: col, Header: true}
	if src != nil {
		f.Source = src.Line(line)
	}
	return f
}

// HostFrame builds a frame in the host's single-line format.
func HostFrame(file string, line int, name string, src *source.File) Frame {
	f := Frame{File: file, Line: line, Name: name}
	if src != nil {
		f.Source = src.Line(line)
	}
	return f
}

// ForCompileError renders a compile failure that never reached execution.
func ForCompileError(ce *CompileError) *Traceback {
	tb := &Traceback{Kind: ce.Stage.Kind(), Message: ce.Message}
	if ce.Stage.Structural() {
		tb.Frames = append(tb.Frames, HeaderFrame(ce.Diagnostic, ce.Src))
	} else if ce.Span.Start.IsValid() {
		tb.Frames = append(tb.Frames, HostFrame(ce.File, ce.Span.Start.Line, "<module>", ce.Src))
	}
	return tb
}

// FromError renders err without any location information beyond what the
// error itself carries.
func FromError(err error) *Traceback {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ForCompileError(ce)
	}
	var cyc *CyclicImportError
	if errors.As(err, &cyc) {
		return &Traceback{Kind: "CyclicImportError", Message: cyc.Error()}
	}
	var be *RuntimeBindingError
	if errors.As(err, &be) {
		return &Traceback{Kind: "RuntimeBindingError", Message: be.Error()}
	}
	var loc Located
	if errors.As(err, &loc) {
		d := loc.Diagnostic()
		return &Traceback{Kind: d.Stage.Kind(), Message: d.Message, Frames: []Frame{HeaderFrame(d, nil)}}
	}
	return &Traceback{Kind: "Error", Message: err.Error()}
}

func (t *Traceback) String() string {
	var sb strings.Builder
	t.Fprint(&sb, false)
	return sb.String()
}

// Fprint writes the traceback to w, optionally with terminal colors.
func (t *Traceback) Fprint(w io.Writer, colored bool) {
	p := newPalette(colored)
	if len(t.Frames) > 0 {
		fmt.Fprintln(w, "Traceback (most recent call last):")
	}
	for _, f := range t.Frames {
		if f.Header {
			fmt.Fprintf(w, "  File %s, line (%d, %d)\n", p.file(fmt.Sprintf("%q", f.File)), f.Line, f.Col)
		} else {
			fmt.Fprintf(w, "  File %s, line %d, in %s\n", p.file(fmt.Sprintf("%q", f.File)), f.Line, f.Name)
		}
		if strings.TrimSpace(f.Source) == "" {
			continue
		}
		shown, caret := sourceLines(f.Source, f.Col)
		fmt.Fprintf(w, "    %s\n", shown)
		if f.Header {
			fmt.Fprintf(w, "    %s\n", p.caret(caret))
		}
	}
	fmt.Fprintf(w, "%s: %s\n", p.kind(t.Kind), t.Message)
}

// sourceLines strips leading indentation from line and returns it with a
// caret line pointing at rune column col of the unstripped line.
func sourceLines(line string, col int) (string, string) {
	trimmed := strings.TrimLeft(line, " \t")
	cut := utf8.RuneCountInString(line) - utf8.RuneCountInString(trimmed)
	runes := []rune(trimmed)
	idx := col - 1 - cut
	if idx < 0 {
		idx = 0
	}
	if idx > len(runes) {
		idx = len(runes)
	}
	pad := runewidth.StringWidth(string(runes[:idx]))
	return trimmed, strings.Repeat(" ", pad) + "^"
}

type palette struct {
	file  func(a ...interface{}) string
	kind  func(a ...interface{}) string
	caret func(a ...interface{}) string
}

func newPalette(colored bool) palette {
	mk := func(attrs ...color.Attribute) func(a ...interface{}) string {
		c := color.New(attrs...)
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return palette{
		file:  mk(color.Bold),
		kind:  mk(color.FgRed, color.Bold),
		caret: mk(color.FgGreen),
	}
}
