package compiler

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// Ext is the file extension of markup source files.
	Ext = ".enaml"
	// generatedSuffix marks the name under which generated host code is
	// compiled, so frames from it can be told apart from native code.
	generatedSuffix = ".star"
)

// IsMarkupFile returns true if the filename has the markup extension.
func IsMarkupFile(name string) bool {
	return strings.HasSuffix(name, Ext)
}

// TrimExt removes the markup extension from a filename.
func TrimExt(name string) string {
	return strings.TrimSuffix(name, Ext)
}

// FindMarkupFile looks for a markup file for a base path without
// extension. It returns the path if found, empty string otherwise.
func FindMarkupFile(basePath string) string {
	if p := basePath + Ext; fileExists(p) {
		return p
	}
	return ""
}

// GeneratedName returns the file name generated code for path is compiled
// under.
func GeneratedName(path string) string {
	return path + generatedSuffix
}

// SourceName reverses GeneratedName. It reports false for names that do
// not belong to generated code.
func SourceName(generated string) (string, bool) {
	if !strings.HasSuffix(generated, Ext+generatedSuffix) {
		return "", false
	}
	return strings.TrimSuffix(generated, generatedSuffix), true
}

// ModulePath converts a dotted module name to a relative markup path:
// "a.b" becomes "a/b.enaml".
func ModulePath(name string) string {
	return filepath.Join(strings.Split(name, ".")...) + Ext
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
