// Package doc extracts documentation from markup files.
//
// Declarations come from the parsed tree. Comments are read from the raw
// source since the tokenizer drops them. The extraction rule is simple:
// consecutive # lines immediately before an enamldef, template, attr,
// event, alias or func (no blank line gap) are attached as its doc
// comment. The first comment block of a file, when a blank line follows
// it, is the file-level doc.
package doc

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.starlark.net/syntax"

	"github.com/rubiojr/enaml/ast"
	"github.com/rubiojr/enaml/compiler"
	"github.com/rubiojr/enaml/parser"
	"github.com/rubiojr/enaml/source"
)

// FileDoc holds all extracted documentation for a markup file.
type FileDoc struct {
	Path  string
	Doc   string // file-level doc
	Decls []DeclDoc
}

// DeclDoc describes an enamldef or a template.
type DeclDoc struct {
	Kind    string   // "enamldef" or "template"
	Name    string
	Base    string   // base type as written; empty for templates
	Params  []string // template parameters as written
	Members []MemberDoc
	Doc     string
	Line    int // 1-based line of the header
}

// MemberDoc describes an attr, event, alias or func of a declaration.
type MemberDoc struct {
	Kind      string
	Name      string
	Signature string
	Doc       string
	Line      int
}

// Signature returns the header of d as it would be written.
func (d DeclDoc) Signature() string {
	if d.Kind == "template" {
		return "template " + d.Name + "(" + strings.Join(d.Params, ", ") + ")"
	}
	return "enamldef " + d.Name + "(" + d.Base + ")"
}

// ExtractFile reads a markup file and extracts its documentation.
func ExtractFile(path string) (*FileDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Extract(data, path)
}

// ExtractDir extracts the markup files of dir (non-recursive) in name
// order. The file docs are dropped; declarations are aggregated.
func ExtractDir(dir string) (*FileDoc, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && compiler.IsMarkupFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	result := &FileDoc{Path: dir}
	for _, name := range names {
		fd, err := ExtractFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		result.Decls = append(result.Decls, fd.Decls...)
	}
	return result, nil
}

// Extract parses src and returns its documentation. Files that do not
// parse return the parser's error.
func Extract(src []byte, path string) (*FileDoc, error) {
	file := source.NewFile(path, src)
	mod, err := (&parser.Parser{}).ParseFile(file)
	if err != nil {
		return nil, err
	}
	fd := &FileDoc{Path: path, Doc: fileDoc(file)}
	for _, n := range mod.Body {
		switch d := n.(type) {
		case *ast.EnamlDef:
			line := d.Span().Start.Line
			fd.Decls = append(fd.Decls, DeclDoc{
				Kind:    "enamldef",
				Name:    d.Name,
				Base:    spanText(file, d.BaseType.Span()),
				Members: members(file, d.Body),
				Doc:     commentAbove(file, line),
				Line:    line,
			})
		case *ast.Template:
			line := d.Span().Start.Line
			params := make([]string, len(d.Params))
			for i, p := range d.Params {
				params[i] = nodeText(file, p)
			}
			fd.Decls = append(fd.Decls, DeclDoc{
				Kind:   "template",
				Name:   d.Name,
				Params: params,
				Doc:    commentAbove(file, line),
				Line:   line,
			})
		}
	}
	return fd, nil
}

func members(file *source.File, body []ast.Node) []MemberDoc {
	var out []MemberDoc
	for _, n := range body {
		var m MemberDoc
		switch d := n.(type) {
		case *ast.AttrDecl:
			sig := d.Keyword() + " " + d.Name
			if d.Type != nil {
				sig += ": " + spanText(file, d.Type.Span())
			}
			if d.Default != nil && d.Default.Expr != nil {
				sig += " " + d.Default.Op.String() + " " + spanText(file, d.Default.Expr.Span())
			}
			m = MemberDoc{Kind: d.Keyword(), Name: d.Name, Signature: sig}
		case *ast.AliasDecl:
			sig := "alias " + d.Name
			target := strings.Join(append([]string{d.Target}, d.Chain...), ".")
			if target != d.Name {
				sig += ": " + target
			}
			m = MemberDoc{Kind: "alias", Name: d.Name, Signature: sig}
		case *ast.FuncDecl:
			params := make([]string, len(d.Def.Params))
			for i, p := range d.Def.Params {
				params[i] = nodeText(file, p)
			}
			name := d.Def.Name.Name
			m = MemberDoc{Kind: "func", Name: name, Signature: "func " + name + "(" + strings.Join(params, ", ") + ")"}
		default:
			continue
		}
		m.Line = n.Span().Start.Line
		m.Doc = commentAbove(file, m.Line)
		out = append(out, m)
	}
	return out
}

// commentAbove returns the # block that ends on the line before line.
func commentAbove(file *source.File, line int) string {
	var block []string
	for n := line - 1; n >= 1; n-- {
		text, ok := comment(file.Line(n))
		if !ok {
			break
		}
		block = append(block, text)
	}
	for i, j := 0, len(block)-1; i < j; i, j = i+1, j-1 {
		block[i], block[j] = block[j], block[i]
	}
	return strings.Join(block, "\n")
}

// fileDoc returns the leading # block when a blank line separates it from
// the code below.
func fileDoc(file *source.File) string {
	var block []string
	n := 1
	for ; n <= file.LineCount(); n++ {
		text, ok := comment(file.Line(n))
		if !ok {
			break
		}
		block = append(block, text)
	}
	if len(block) == 0 || strings.TrimSpace(file.Line(n)) != "" {
		return ""
	}
	return strings.Join(block, "\n")
}

func comment(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	return strings.TrimPrefix(trimmed[1:], " "), true
}

func nodeText(file *source.File, n syntax.Node) string {
	start, end := n.Span()
	return spanText(file, ast.HostSpan(file, start, end))
}

// spanText returns the source covered by sp with runs of whitespace
// collapsed, so multi-line expressions read as one line.
func spanText(file *source.File, sp source.Span) string {
	start, end := sp.Start.Offset, sp.End.Offset
	if start < 0 || end > len(file.Src) || start >= end {
		return ""
	}
	return strings.Join(strings.Fields(string(file.Src[start:end])), " ")
}

// LookupSymbol finds a declaration ("Main") or one of its members
// ("Main.title") by name.
func LookupSymbol(fd *FileDoc, name string) (doc string, signature string, found bool) {
	declName, member, hasMember := strings.Cut(name, ".")
	for _, d := range fd.Decls {
		if d.Name != declName {
			continue
		}
		if !hasMember {
			return d.Doc, d.Signature(), true
		}
		for _, m := range d.Members {
			if m.Name == member {
				return m.Doc, m.Signature, true
			}
		}
	}
	return "", "", false
}
