package compiler

import (
	"strings"
	"unicode/utf8"
)

const indentUnit = "    "

// srcWriter manages indented host source output for the emitter. It tracks
// the 1-based line and rune column of the next byte written so the printer
// can record where every node lands.
type srcWriter struct {
	sb     strings.Builder
	indent int
	line   int
	col    int
	bol    bool
}

func newSrcWriter() *srcWriter {
	return &srcWriter{line: 1, col: 1, bol: true}
}

// Write writes s at the current position, indenting first if a new line
// has just started. s may contain newlines (multi-line string literals).
func (w *srcWriter) Write(s string) {
	if s == "" {
		return
	}
	if w.bol {
		w.writeIndent()
	}
	w.sb.WriteString(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		w.line += strings.Count(s, "\n")
		w.col = utf8.RuneCountInString(s[i+1:]) + 1
		return
	}
	w.col += utf8.RuneCountInString(s)
}

// Newline ends the current line.
func (w *srcWriter) Newline() {
	w.sb.WriteByte('\n')
	w.line++
	w.col = 1
	w.bol = true
}

// Pos returns the position the next written byte will occupy.
func (w *srcWriter) Pos() (line, col int) {
	if w.bol {
		return w.line, w.indent*len(indentUnit) + 1
	}
	return w.line, w.col
}

func (w *srcWriter) writeIndent() {
	for range w.indent {
		w.sb.WriteString(indentUnit)
	}
	w.col = w.indent*len(indentUnit) + 1
	w.bol = false
}

// Indent increases the indentation level.
func (w *srcWriter) Indent() { w.indent++ }

// Dedent decreases the indentation level.
func (w *srcWriter) Dedent() { w.indent-- }

// String returns the accumulated output.
func (w *srcWriter) String() string { return w.sb.String() }
