package scanner

import (
	"fmt"

	"github.com/rubiojr/enaml/source"
)

// Kind classifies a token.
type Kind int

const (
	EOF Kind = iota
	NEWLINE
	INDENT
	DEDENT
	NAME
	NUMBER
	STRING
	KEYWORD
	OP
)

var kindNames = [...]string{
	EOF:     "EOF",
	NEWLINE: "NEWLINE",
	INDENT:  "INDENT",
	DEDENT:  "DEDENT",
	NAME:    "NAME",
	NUMBER:  "NUMBER",
	STRING:  "STRING",
	KEYWORD: "KEYWORD",
	OP:      "OP",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Token is one lexical unit with its exact source range.
type Token struct {
	Kind Kind
	Text string
	Span source.Span
}

// Is reports whether t has the given kind and literal text.
func (t Token) Is(kind Kind, text string) bool {
	return t.Kind == kind && t.Text == text
}

// IsOp reports whether t is the operator or delimiter op.
func (t Token) IsOp(op string) bool { return t.Is(OP, op) }

// IsKeyword reports whether t is the keyword kw.
func (t Token) IsKeyword(kw string) bool { return t.Is(KEYWORD, kw) }

func (t Token) String() string {
	switch t.Kind {
	case NEWLINE, INDENT, DEDENT, EOF:
		return fmt.Sprintf("%s %s", t.Span.Start, t.Kind)
	}
	return fmt.Sprintf("%s %s %q", t.Span.Start, t.Kind, t.Text)
}

// Describe returns a short human description used in parse errors.
func (t Token) Describe() string {
	switch t.Kind {
	case NEWLINE:
		return "end of line"
	case INDENT:
		return "indent"
	case DEDENT:
		return "dedent"
	case EOF:
		return "end of file"
	}
	return fmt.Sprintf("%q", t.Text)
}

// hostKeywords are the reserved words of the host grammar.
var hostKeywords = map[string]bool{
	"and": true, "break": true, "continue": true, "def": true, "elif": true,
	"else": true, "for": true, "if": true, "in": true, "lambda": true,
	"load": true, "not": true, "or": true, "pass": true, "return": true,
	"while": true,
}

// markupKeywords are reserved everywhere in markup files. attr, event,
// alias and func are contextual and scanned as names.
var markupKeywords = map[string]bool{
	"enamldef": true, "template": true, "from": true, "import": true, "as": true,
}

// IsKeyword reports whether name is reserved in markup files.
func IsKeyword(name string) bool {
	return hostKeywords[name] || markupKeywords[name]
}

// BindingOps are the glyphs that bind an attribute inside a declaration.
var BindingOps = []string{"=", "<<", ">>", ":=", "::"}

// IsBindingOp reports whether t is one of BindingOps.
func IsBindingOp(t Token) bool {
	if t.Kind != OP {
		return false
	}
	for _, op := range BindingOps {
		if t.Text == op {
			return true
		}
	}
	return false
}

// operators lists every operator and delimiter, grouped by length so that
// the scanner can apply maximal munch.
var operators = [...][]string{
	3: {"<<=", ">>=", "//=", "**="},
	2: {"**", "//", "<<", ">>", "<=", ">=", "==", "!=", "+=", "-=", "*=", "/=",
		"%=", "&=", "|=", "^=", ":=", "::", "->"},
	1: {"+", "-", "*", "/", "%", "&", "|", "^", "~", "<", ">", "(", ")", "[",
		"]", "{", "}", ",", ":", ".", ";", "=", "@"},
}

var closers = map[string]string{")": "(", "]": "[", "}": "{"}
