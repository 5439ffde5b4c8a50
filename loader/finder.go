package loader

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rubiojr/enaml/compiler"
)

// ErrModuleNotFound is wrapped by import failures for names that resolve
// to no file.
var ErrModuleNotFound = errors.New("module not found")

// finder maps import names to markup files.
type finder struct {
	path []string
}

// find resolves name to an absolute markup path. A dotted name "a.b" is
// looked up as a/b.enaml first next to the importing file (dir), then in
// each search path entry. A name that already carries the markup extension
// is taken as a file path relative to dir.
func (f *finder) find(name, dir string) (string, error) {
	if compiler.IsMarkupFile(name) {
		p := name
		if !filepath.IsAbs(p) && dir != "" {
			p = filepath.Join(dir, p)
		}
		if compiler.FindMarkupFile(compiler.TrimExt(p)) == "" {
			return "", fmt.Errorf("%w: %s", ErrModuleNotFound, p)
		}
		return filepath.Abs(p)
	}
	if !validName(name) {
		return "", fmt.Errorf("invalid module name %q", name)
	}
	rel := compiler.TrimExt(compiler.ModulePath(name))
	dirs := f.dirs(dir)
	for _, d := range dirs {
		if p := compiler.FindMarkupFile(filepath.Join(d, rel)); p != "" {
			return filepath.Abs(p)
		}
	}
	return "", fmt.Errorf("%w: %q (searched %s)", ErrModuleNotFound, name, strings.Join(dirs, ", "))
}

func (f *finder) dirs(dir string) []string {
	var dirs []string
	if dir != "" {
		dirs = append(dirs, dir)
	}
	for _, d := range f.path {
		if d != "" && d != dir {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" || part == ".." || strings.ContainsAny(part, `/\`) {
			return false
		}
	}
	return true
}
