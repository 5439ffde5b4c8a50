// Package scanner tokenizes markup source. It applies the host language's
// lexical rules (comments, strings, implicit and explicit line joining,
// indentation) and adds the markup keywords and binding operators.
package scanner

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/rubiojr/enaml/diag"
	"github.com/rubiojr/enaml/source"
)

const tabWidth = 8

// Scanner produces tokens one at a time. The sequence can be restarted
// from the beginning with Reset.
type Scanner struct {
	file *source.File
	src  []byte

	off  int
	line int
	col  int

	indents     []int
	parens      []Token
	pending     []Token
	atLineStart bool
	lineHasToks bool
	done        bool
}

// New returns a scanner positioned at the start of file.
func New(file *source.File) *Scanner {
	s := &Scanner{file: file, src: file.Src}
	s.Reset()
	return s
}

// Tokenize scans the whole file. The returned slice always ends with EOF.
func Tokenize(file *source.File) ([]Token, error) {
	s := New(file)
	var toks []Token
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == EOF {
			return toks, nil
		}
	}
}

// Reset rewinds the scanner to the start of the file.
func (s *Scanner) Reset() {
	s.off = 0
	s.line, s.col = 1, 1
	s.indents = []int{0}
	s.parens = nil
	s.pending = nil
	s.atLineStart = true
	s.lineHasToks = false
	s.done = false
	if len(s.src) >= 3 && string(s.src[:3]) == "\xef\xbb\xbf" {
		s.off = 3
	}
}

func (s *Scanner) pos() source.Pos {
	return source.Pos{Offset: s.off, Line: s.line, Col: s.col}
}

func (s *Scanner) peek(n int) byte {
	if s.off+n < len(s.src) {
		return s.src[s.off+n]
	}
	return 0
}

func (s *Scanner) eof() bool { return s.off >= len(s.src) }

// advance consumes one rune.
func (s *Scanner) advance() {
	if s.eof() {
		return
	}
	r, size := utf8.DecodeRune(s.src[s.off:])
	s.off += size
	if r == '\n' {
		s.line++
		s.col = 1
		return
	}
	s.col++
}

// newlineLen returns the length of the line terminator at the cursor, or 0.
func (s *Scanner) newlineLen() int {
	switch {
	case s.peek(0) == '\n':
		return 1
	case s.peek(0) == '\r' && s.peek(1) == '\n':
		return 2
	}
	return 0
}

func (s *Scanner) errorf(start source.Pos, format string, args ...interface{}) error {
	end := start
	end.Col++
	end.Offset++
	return &diag.LexError{File: s.file.Path, Span: source.Span{Start: start, End: end}, Msg: fmt.Sprintf(format, args...)}
}

func (s *Scanner) token(kind Kind, start source.Pos) Token {
	return Token{Kind: kind, Text: string(s.src[start.Offset:s.off]), Span: source.Span{Start: start, End: s.pos()}}
}

// Next returns the next token. After EOF it keeps returning EOF.
func (s *Scanner) Next() (Token, error) {
	if len(s.pending) > 0 {
		tok := s.pending[0]
		s.pending = s.pending[1:]
		return tok, nil
	}
	if s.done {
		p := s.pos()
		return Token{Kind: EOF, Span: source.Span{Start: p, End: p}}, nil
	}
	for {
		if s.atLineStart && len(s.parens) == 0 {
			skip, err := s.indentation()
			if err != nil {
				return Token{}, err
			}
			if skip {
				continue
			}
			if len(s.pending) > 0 {
				return s.Next()
			}
		}
		switch c := s.peek(0); {
		case s.eof():
			return s.finish()
		case c == ' ' || c == '\t' || c == '\f' || (c == '\r' && s.peek(1) != '\n'):
			s.advance()
		case c == '\\' && (s.peek(1) == '\n' || (s.peek(1) == '\r' && s.peek(2) == '\n')):
			s.advance()
			for s.peek(0) != '\n' {
				s.advance()
			}
			s.advance()
		case c == '#':
			for !s.eof() && s.newlineLen() == 0 {
				s.advance()
			}
		case s.newlineLen() > 0:
			start := s.pos()
			n := s.newlineLen()
			for i := 0; i < n; i++ {
				s.advance()
			}
			if len(s.parens) > 0 {
				continue
			}
			s.atLineStart = true
			s.lineHasToks = false
			tok := s.token(NEWLINE, start)
			tok.Text = "\n"
			return tok, nil
		default:
			tok, err := s.scanToken()
			if err != nil {
				return Token{}, err
			}
			s.lineHasToks = true
			return tok, nil
		}
	}
}

// indentation measures the leading whitespace of a logical line and queues
// INDENT/DEDENT tokens. It reports skip=true for blank and comment-only
// lines, which never affect indentation.
func (s *Scanner) indentation() (skip bool, err error) {
	lineStart := s.pos()
	width := 0
measure:
	for {
		switch s.peek(0) {
		case ' ':
			width++
		case '\t':
			width = (width/tabWidth + 1) * tabWidth
		case '\f':
			width = 0
		default:
			break measure
		}
		s.advance()
	}
	if s.eof() {
		return false, nil
	}
	if s.peek(0) == '#' || s.newlineLen() > 0 {
		for !s.eof() && s.newlineLen() == 0 {
			s.advance()
		}
		for n := s.newlineLen(); n > 0; n-- {
			s.advance()
		}
		return true, nil
	}
	s.atLineStart = false
	top := s.indents[len(s.indents)-1]
	switch {
	case width > top:
		s.indents = append(s.indents, width)
		s.pending = append(s.pending, Token{Kind: INDENT, Span: source.Span{Start: lineStart, End: s.pos()}})
	case width < top:
		for width < s.indents[len(s.indents)-1] {
			s.indents = s.indents[:len(s.indents)-1]
			p := s.pos()
			s.pending = append(s.pending, Token{Kind: DEDENT, Span: source.Span{Start: p, End: p}})
		}
		if width != s.indents[len(s.indents)-1] {
			return false, s.errorf(s.pos(), "unindent does not match any outer indentation level")
		}
	}
	return false, nil
}

// finish emits the tokens that close the file: a final NEWLINE when the last
// line had content, one DEDENT per open block, then EOF.
func (s *Scanner) finish() (Token, error) {
	if len(s.parens) > 0 {
		open := s.parens[len(s.parens)-1]
		return Token{}, s.errorf(open.Span.Start, "unclosed %q", open.Text)
	}
	p := s.pos()
	if s.lineHasToks {
		s.pending = append(s.pending, Token{Kind: NEWLINE, Span: source.Span{Start: p, End: p}})
		s.lineHasToks = false
	}
	for len(s.indents) > 1 {
		s.indents = s.indents[:len(s.indents)-1]
		s.pending = append(s.pending, Token{Kind: DEDENT, Span: source.Span{Start: p, End: p}})
	}
	s.pending = append(s.pending, Token{Kind: EOF, Span: source.Span{Start: p, End: p}})
	s.done = true
	return s.Next()
}

func (s *Scanner) scanToken() (Token, error) {
	start := s.pos()
	c := s.peek(0)
	switch {
	case c == '"' || c == '\'':
		return s.scanString(start)
	case isDigit(c) || (c == '.' && isDigit(s.peek(1))):
		return s.scanNumber(start), nil
	case c == '_' || c >= utf8.RuneSelf || isLetter(c):
		if n := s.stringPrefixLen(); n > 0 {
			return s.scanString(start)
		}
		return s.scanName(start)
	}
	for n := 3; n >= 1; n-- {
		if s.off+n > len(s.src) {
			continue
		}
		text := string(s.src[s.off : s.off+n])
		for _, op := range operators[n] {
			if op != text {
				continue
			}
			for i := 0; i < n; i++ {
				s.advance()
			}
			tok := s.token(OP, start)
			return tok, s.trackBracket(tok)
		}
	}
	r, _ := utf8.DecodeRune(s.src[s.off:])
	return Token{}, s.errorf(start, "invalid character %q", r)
}

func (s *Scanner) trackBracket(tok Token) error {
	switch tok.Text {
	case "(", "[", "{":
		s.parens = append(s.parens, tok)
	case ")", "]", "}":
		if len(s.parens) == 0 {
			return s.errorf(tok.Span.Start, "unmatched %q", tok.Text)
		}
		open := s.parens[len(s.parens)-1]
		if open.Text != closers[tok.Text] {
			return s.errorf(tok.Span.Start, "closing %q does not match opening %q on line %d", tok.Text, open.Text, open.Span.Start.Line)
		}
		s.parens = s.parens[:len(s.parens)-1]
	}
	return nil
}

// stringPrefixLen returns the length of a string prefix (r, b, rb, br in
// any case) at the cursor when it is immediately followed by a quote.
func (s *Scanner) stringPrefixLen() int {
	lower := func(b byte) byte { return b | 0x20 }
	a, b := lower(s.peek(0)), lower(s.peek(1))
	isQuote := func(c byte) bool { return c == '"' || c == '\'' }
	switch {
	case (a == 'r' || a == 'b') && isQuote(s.peek(1)):
		return 1
	case ((a == 'r' && b == 'b') || (a == 'b' && b == 'r')) && isQuote(s.peek(2)):
		return 2
	}
	return 0
}

func (s *Scanner) scanString(start source.Pos) (Token, error) {
	for n := s.stringPrefixLen(); n > 0; n-- {
		s.advance()
	}
	q := s.peek(0)
	triple := s.peek(1) == q && s.peek(2) == q
	if triple {
		s.advance()
		s.advance()
	}
	s.advance()
	for {
		if s.eof() {
			return Token{}, s.errorf(start, "unterminated string literal")
		}
		c := s.peek(0)
		switch {
		case c == '\\':
			s.advance()
			s.advance()
		case triple && c == q && s.peek(1) == q && s.peek(2) == q:
			s.advance()
			s.advance()
			s.advance()
			return s.token(STRING, start), nil
		case !triple && c == q:
			s.advance()
			return s.token(STRING, start), nil
		case !triple && s.newlineLen() > 0:
			return Token{}, s.errorf(start, "unterminated string literal")
		default:
			s.advance()
		}
	}
}

func (s *Scanner) scanNumber(start source.Pos) Token {
	hex := s.peek(0) == '0' && (s.peek(1) == 'x' || s.peek(1) == 'X')
	for {
		c := s.peek(0)
		switch {
		case isDigit(c) || isLetter(c) || c == '_' || c == '.':
			s.advance()
			if !hex && (c == 'e' || c == 'E') && (s.peek(0) == '+' || s.peek(0) == '-') {
				s.advance()
			}
		default:
			return s.token(NUMBER, start)
		}
	}
}

func (s *Scanner) scanName(start source.Pos) (Token, error) {
	for !s.eof() {
		r, _ := utf8.DecodeRune(s.src[s.off:])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		s.advance()
	}
	if s.off == start.Offset {
		r, _ := utf8.DecodeRune(s.src[s.off:])
		return Token{}, s.errorf(start, "invalid character %q", r)
	}
	tok := s.token(NAME, start)
	if !norm.NFKC.IsNormalString(tok.Text) {
		return Token{}, s.errorf(start, "identifier %q is not in NFKC normal form (use %q)", tok.Text, norm.NFKC.String(tok.Text))
	}
	if IsKeyword(tok.Text) {
		tok.Kind = KEYWORD
	}
	return tok, nil
}

func isDigit(c byte) bool  { return '0' <= c && c <= '9' }
func isLetter(c byte) bool { return 'a' <= c|0x20 && c|0x20 <= 'z' }
