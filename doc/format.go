package doc

import (
	"fmt"
	"strings"

	"github.com/rubiojr/enaml/modules"
	"github.com/rubiojr/enaml/runtime"
)

// FormatFile formats a FileDoc for terminal display.
func FormatFile(fd *FileDoc) string {
	var sb strings.Builder

	if fd.Doc != "" {
		sb.WriteString(fd.Doc)
		sb.WriteString("\n\n")
	}

	for _, d := range fd.Decls {
		formatDecl(&sb, d)
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// FormatSymbol formats a single symbol lookup result.
func FormatSymbol(docStr, signature string) string {
	var sb strings.Builder
	sb.WriteString(signature)
	sb.WriteString("\n")
	if docStr != "" {
		sb.WriteString("    ")
		sb.WriteString(strings.ReplaceAll(docStr, "\n", "\n    "))
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatModule formats a builtin module for terminal display.
func FormatModule(m *modules.Module) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("module %s", m.Name))
	sb.WriteString("\n")
	if m.Doc != "" {
		sb.WriteString("    ")
		sb.WriteString(m.Doc)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	globals := m.Globals()
	for _, name := range globals.Keys() {
		t, ok := globals[name].(*runtime.Type)
		if !ok {
			sb.WriteString(fmt.Sprintf("%s = %s\n", name, globals[name].String()))
			continue
		}
		sb.WriteString(t.Name())
		if b := t.Base(); b != nil {
			sb.WriteString("(" + b.Name() + ")")
		}
		sb.WriteString("\n")
		for _, a := range t.Attrs() {
			if a.Event {
				sb.WriteString(fmt.Sprintf("    event %s\n", a.Name))
			} else {
				sb.WriteString(fmt.Sprintf("    attr %s = %s\n", a.Name, a.Default.String()))
			}
		}
	}

	return sb.String()
}

// FormatAllModules lists every registered builtin module.
func FormatAllModules() string {
	var sb strings.Builder
	names := modules.Names()
	width := 0
	for _, name := range names {
		width = max(width, len(name))
	}
	for _, name := range names {
		m, _ := modules.Get(name)
		sb.WriteString(fmt.Sprintf("%-*s  %s\n", width, name, m.Doc))
	}
	return sb.String()
}

func formatDecl(sb *strings.Builder, d DeclDoc) {
	sb.WriteString(d.Signature())
	sb.WriteString("\n")
	if d.Doc != "" {
		sb.WriteString("    ")
		sb.WriteString(strings.ReplaceAll(d.Doc, "\n", "\n    "))
		sb.WriteString("\n")
	}
	for _, m := range d.Members {
		sb.WriteString("    ")
		sb.WriteString(m.Signature)
		sb.WriteString("\n")
		if m.Doc != "" {
			sb.WriteString("        ")
			sb.WriteString(strings.ReplaceAll(m.Doc, "\n", "\n        "))
			sb.WriteString("\n")
		}
	}
}
