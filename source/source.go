// Package source holds positions, spans and per-file line tables shared by
// the tokenizer, parser, lowering pass and diagnostics.
package source

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"modernc.org/token"
)

// Pos is a location in a source file. Line and Col are 1-based and Col
// counts runes, not bytes. Offset is the byte offset from the file start.
type Pos struct {
	Offset int
	Line   int
	Col    int
}

// IsValid reports whether p refers to a real location.
func (p Pos) IsValid() bool { return p.Line > 0 && p.Col > 0 }

func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Col) }

// Before reports whether p comes strictly before q.
func (p Pos) Before(q Pos) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Col < q.Col
}

// Span is the half-open range [Start, End).
type Span struct {
	Start Pos
	End   Pos
}

// IsValid reports whether both ends are valid and ordered.
func (s Span) IsValid() bool {
	return s.Start.IsValid() && s.End.IsValid() && !s.End.Before(s.Start)
}

// HeaderPos returns the (start line, last covered column) pair used when a
// diagnostic spans a header or declaration range.
func (s Span) HeaderPos() (line, col int) {
	col = s.End.Col - 1
	if col < 1 {
		col = 1
	}
	return s.Start.Line, col
}

func (s Span) String() string {
	return fmt.Sprintf("%s-%s", s.Start, s.End)
}

// File is an immutable source text with a line table.
type File struct {
	Path string
	Src  []byte

	lines *token.File
}

// NewFile wraps src, read from path, and indexes its lines.
func NewFile(path string, src []byte) *File {
	tf := token.NewFile(path, len(src))
	tf.SetLinesForContent(src)
	return &File{Path: path, Src: src, lines: tf}
}

// Fingerprint returns the hex SHA-256 digest of the file content.
func (f *File) Fingerprint() string {
	return Fingerprint(f.Src)
}

// Fingerprint returns the hex SHA-256 digest of src.
func Fingerprint(src []byte) string {
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:])
}

// LineCount returns the number of lines in the file.
func (f *File) LineCount() int { return f.lines.LineCount() }

// LineStart returns the byte offset of the first character of line n.
// It returns -1 for lines outside the file.
func (f *File) LineStart(n int) int {
	if n == f.lines.LineCount()+1 && f.endsWithNewline() {
		return len(f.Src)
	}
	if n < 1 || n > f.lines.LineCount() {
		return -1
	}
	return f.lines.Offset(f.lines.LineStart(n))
}

// Line returns the text of line n without its line terminator.
func (f *File) Line(n int) string {
	start := f.LineStart(n)
	if start < 0 {
		return ""
	}
	end := start
	for end < len(f.Src) && f.Src[end] != '\n' {
		end++
	}
	if end > start && f.Src[end-1] == '\r' {
		end--
	}
	return string(f.Src[start:end])
}

func (f *File) endsWithNewline() bool {
	return len(f.Src) > 0 && f.Src[len(f.Src)-1] == '\n'
}

// Pos converts a byte offset into a full position.
func (f *File) Pos(offset int) Pos {
	if offset < 0 {
		offset = 0
	}
	if offset > len(f.Src) {
		offset = len(f.Src)
	}
	if offset == len(f.Src) && (len(f.Src) == 0 || f.endsWithNewline()) {
		return Pos{Offset: offset, Line: f.lines.LineCount() + 1, Col: 1}
	}
	line := f.lines.Line(f.lines.Pos(offset))
	start := f.LineStart(line)
	return Pos{Offset: offset, Line: line, Col: utf8.RuneCount(f.Src[start:offset]) + 1}
}

// PosAt converts a (line, rune column) pair into a full position. Columns
// past the end of the line are clamped to the line terminator.
func (f *File) PosAt(line, col int) Pos {
	start := f.LineStart(line)
	if start < 0 {
		return Pos{Offset: len(f.Src), Line: line, Col: col}
	}
	off := start
	for c := 1; c < col && off < len(f.Src) && f.Src[off] != '\n'; c++ {
		_, size := utf8.DecodeRune(f.Src[off:])
		off += size
	}
	return Pos{Offset: off, Line: line, Col: col}
}

// Span builds a span from two byte offsets.
func (f *File) Span(start, end int) Span {
	return Span{Start: f.Pos(start), End: f.Pos(end)}
}
