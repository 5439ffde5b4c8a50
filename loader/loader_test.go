package loader_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"golang.org/x/sync/errgroup"

	"github.com/rubiojr/enaml/diag"
	"github.com/rubiojr/enaml/loader"
	"github.com/rubiojr/enaml/runtime"
)

// writeFiles creates files under a fresh directory and returns their
// absolute paths by name.
func writeFiles(t *testing.T, files map[string]string) (string, map[string]string) {
	t.Helper()
	dir := t.TempDir()
	paths := make(map[string]string, len(files))
	for name, src := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(src), 0o644))
		paths[name] = p
	}
	return dir, paths
}

func newContext(opts ...loader.Option) *loader.Context {
	return loader.New(append([]loader.Option{loader.WithPredeclared(runtime.Predeclared())}, opts...)...)
}

func TestNestedStructuralErrorNamesImportedFile(t *testing.T) {
	tests := []struct {
		name      string
		b         string
		line, col int
	}{
		{
			name: "enamldef header",
			b: "from enaml.widgets.api import Container\n" +
				"\n" +
				"x = 1\n" +
				"\n" +
				"enamldef MainWindowViews(Container)\n" +
				"    pass\n",
			line: 5, col: 35,
		},
		{
			name: "child header",
			b: "from enaml.widgets.api import Container, Label\n" +
				"\n" +
				"enamldef Main(Container):\n" +
				"    Label lbl\n",
			line: 4, col: 13,
		},
		{
			name: "child ident followed by extra name",
			b: "from enaml.widgets.api import Container, Label\n" +
				"\n" +
				"enamldef Main(Container):\n" +
				"    Label: lbl extra:\n" +
				"        pass\n",
			line: 4, col: 21,
		},
		{
			name: "enamldef without parentheses",
			b:    "enamldef Main Container:\n    pass\n",
			line: 1, col: 24,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, paths := writeFiles(t, map[string]string{
				"a.enaml": "from b import Main\n",
				"b.enaml": tt.b,
			})
			ctx := newContext()
			_, err := ctx.ImportFile(paths["a.enaml"])
			require.Error(t, err)

			var ce *diag.CompileError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, paths["b.enaml"], ce.File)
			assert.Equal(t, diag.StageParse, ce.Stage)

			var ie *loader.ImportError
			require.True(t, errors.As(err, &ie))
			assert.Equal(t, []string{paths["a.enaml"]}, ie.Stack)
			assert.Empty(t, ctx.Stack())

			tb := ctx.Report(err)
			require.NotEmpty(t, tb.Frames)
			first, last := tb.Frames[0], tb.Frames[len(tb.Frames)-1]
			assert.Equal(t, paths["a.enaml"], first.File)
			assert.Equal(t, 1, first.Line)
			assert.Equal(t, "<module>", first.Name)
			assert.Equal(t, paths["b.enaml"], last.File)
			assert.True(t, last.Header)
			assert.Equal(t, tt.line, last.Line)
			assert.Equal(t, tt.col, last.Col)
			assert.Equal(t, "ParseError", tb.Kind)

			out := tb.String()
			assert.Contains(t, out, `File "`+paths["b.enaml"]+`", line (`)
			assert.Contains(t, out, fmt.Sprintf("line (%d, %d)", tt.line, tt.col))
		})
	}
}

func TestInnerImportErrorKeepsFullStack(t *testing.T) {
	_, paths := writeFiles(t, map[string]string{
		"a.enaml": "from b import x\n",
		"b.enaml": "from c import x\n",
		"c.enaml": "enamldef C(\n",
	})
	ctx := newContext()
	_, err := ctx.ImportFile(paths["a.enaml"])
	require.Error(t, err)

	var stacks [][]string
	for e := error(err); e != nil; e = errors.Unwrap(e) {
		if ie, ok := e.(*loader.ImportError); ok {
			stacks = append(stacks, ie.Stack)
		}
	}
	assert.Equal(t, [][]string{
		{paths["a.enaml"]},
		{paths["a.enaml"], paths["b.enaml"]},
		{paths["a.enaml"], paths["b.enaml"], paths["c.enaml"]},
	}, stacks)
}

func TestCyclicImport(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		entry string
		cycle []string
	}{
		{
			name:  "self import",
			files: map[string]string{"s.enaml": "from s import x\nx = 1\n"},
			entry: "s.enaml",
			cycle: []string{"s.enaml", "s.enaml"},
		},
		{
			name: "transitive",
			files: map[string]string{
				"a.enaml": "from b import x\ny = 1\n",
				"b.enaml": "from a import y\nx = 1\n",
			},
			entry: "a.enaml",
			cycle: []string{"a.enaml", "b.enaml", "a.enaml"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.files["ok.enaml"] = "value = 42\n"
			_, paths := writeFiles(t, tt.files)
			ctx := newContext()

			_, err := ctx.ImportFile(paths[tt.entry])
			require.Error(t, err)
			var cyc *diag.CyclicImportError
			require.True(t, errors.As(err, &cyc))
			want := make([]string, len(tt.cycle))
			for i, name := range tt.cycle {
				want[i] = paths[name]
			}
			assert.Equal(t, want, cyc.Cycle)
			assert.Empty(t, ctx.Stack())

			tb := ctx.Report(err)
			assert.Equal(t, "CyclicImportError", tb.Kind)
			assert.Len(t, tb.Frames, len(tt.cycle)-1)

			m, err := ctx.ImportFile(paths["ok.enaml"])
			require.NoError(t, err)
			assert.Equal(t, starlark.MakeInt(42), m.Globals["value"])
		})
	}
}

func TestImportReusesModulesAndUnits(t *testing.T) {
	_, paths := writeFiles(t, map[string]string{
		"a.enaml": "from b import x\ny = len(x) + 1\n",
		"b.enaml": "x = [1]\n",
	})
	var trace strings.Builder
	ctx := newContext(loader.WithTrace(&trace))

	first, err := ctx.ImportFile(paths["a.enaml"])
	require.NoError(t, err)
	second, err := ctx.ImportFile(paths["a.enaml"])
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, starlark.MakeInt(2), first.Globals["y"])
	assert.Equal(t, 2, ctx.Compiler().CachedUnits())
	assert.Equal(t, "import: "+paths["a.enaml"]+"\nimport: "+paths["b.enaml"]+"\n", trace.String())

	require.NoError(t, os.WriteFile(paths["a.enaml"], []byte("from b import x\ny = len(x) + 2\n"), 0o644))
	third, err := ctx.ImportFile(paths["a.enaml"])
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Same(t, first.Globals["x"], third.Globals["x"], "unchanged dependency is not re-executed")
	assert.Equal(t, starlark.MakeInt(3), third.Globals["y"])
}

func TestRuntimeErrorTraceback(t *testing.T) {
	_, paths := writeFiles(t, map[string]string{
		"a.enaml": "from b import fail\n" +
			"\n" +
			"fail()\n",
		"b.enaml": "def fail():\n" +
			"    x = 1\n" +
			"    return x // 0\n",
	})
	ctx := newContext()
	_, err := ctx.ImportFile(paths["a.enaml"])
	require.Error(t, err)

	tb := ctx.Report(err)
	require.Len(t, tb.Frames, 2)
	assert.Equal(t, diag.Frame{File: paths["a.enaml"], Line: 3, Name: "<module>", Source: "fail()"}, tb.Frames[0])
	assert.Equal(t, diag.Frame{File: paths["b.enaml"], Line: 3, Name: "fail", Source: "    return x // 0"}, tb.Frames[1])
	assert.Equal(t, "Error", tb.Kind)
	assert.Equal(t, "floored division by zero", tb.Message)

	out := tb.String()
	assert.Contains(t, out, `File "`+paths["b.enaml"]+`", line 3, in fail`)
	assert.Contains(t, out, "    return x // 0\n")
}

func TestBindingErrorTraceback(t *testing.T) {
	_, paths := writeFiles(t, map[string]string{
		"main.enaml": "from enaml.widgets.api import Window\n" +
			"\n" +
			"enamldef Main(Window):\n" +
			"    title << \"x\" + 1\n" +
			"\n" +
			"Main()\n",
	})
	ctx := newContext()
	_, err := ctx.ImportFile(paths["main.enaml"])
	require.Error(t, err)

	tb := ctx.Report(err)
	assert.Equal(t, "RuntimeBindingError", tb.Kind)
	assert.Contains(t, tb.Message, "Main.title <<")
	require.Len(t, tb.Frames, 2)
	assert.Equal(t, 6, tb.Frames[0].Line)
	assert.Equal(t, "lambda", tb.Frames[1].Name)
	assert.Equal(t, 4, tb.Frames[1].Line)
	assert.Equal(t, paths["main.enaml"], tb.Frames[1].File)
}

func TestChildIdentDoesNotShadowType(t *testing.T) {
	_, paths := writeFiles(t, map[string]string{
		"shadow.enaml": "from enaml.widgets.api import Window, Container, Label\n" +
			"\n" +
			"enamldef Main(Window):\n" +
			"    Container: Label:\n" +
			"        pass\n" +
			"    Label:\n" +
			"        text = \"x\"\n" +
			"\n" +
			"main = Main()\n",
	})
	ctx := newContext()
	m, err := ctx.ImportFile(paths["shadow.enaml"])
	require.NoError(t, err)

	main, ok := m.Globals["main"].(*runtime.Object)
	require.True(t, ok)
	children := main.Children()
	require.Len(t, children, 2)
	assert.Same(t, runtime.Container, children[0].DeclType())
	assert.Same(t, runtime.Label, children[1].DeclType())
	text, ok := children[1].Get("text")
	require.True(t, ok)
	assert.Equal(t, starlark.String("x"), text)
}

func TestTopLevelCompileErrorReport(t *testing.T) {
	_, paths := writeFiles(t, map[string]string{
		"bad.enaml": "enamldef A(B):\n    Label lbl\n",
	})
	ctx := newContext()
	_, err := ctx.ImportFile(paths["bad.enaml"])
	require.Error(t, err)

	tb := ctx.Report(err)
	require.Len(t, tb.Frames, 1)
	assert.Equal(t, "Traceback (most recent call last):\n"+
		`  File "`+paths["bad.enaml"]+`", line (2, 13)`+"\n"+
		"    Label lbl\n"+
		"            ^\n"+
		"ParseError: invalid syntax (expected ':')\n", tb.String())
}

func TestImportBuiltinModule(t *testing.T) {
	var trace strings.Builder
	ctx := newContext(loader.WithTrace(&trace))

	m, err := ctx.Import(runtime.WidgetsModule)
	require.NoError(t, err)
	assert.Same(t, runtime.Label, m.Globals["Label"])
	assert.Empty(t, m.Path)
	assert.Equal(t, "import: enaml.widgets.api (builtin)\n", trace.String())

	_, paths := writeFiles(t, map[string]string{
		"alias.enaml": "import enaml.widgets.api as w\nL = w.Label\n",
	})
	am, err := ctx.ImportFile(paths["alias.enaml"])
	require.NoError(t, err)
	assert.Same(t, runtime.Label, am.Globals["L"])
}

func TestImportNotFound(t *testing.T) {
	ctx := newContext()
	_, err := ctx.Import("nope.missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, loader.ErrModuleNotFound))

	tb := ctx.Report(err)
	assert.Equal(t, "ImportError", tb.Kind)
	assert.Contains(t, tb.Message, `"nope.missing"`)
}

func TestSearchPath(t *testing.T) {
	lib, _ := writeFiles(t, map[string]string{
		"widgets/fancy.enaml": "from enaml.widgets.api import Label\n\n" +
			"enamldef Fancy(Label):\n" +
			"    text = \"fancy\"\n",
	})
	_, paths := writeFiles(t, map[string]string{
		"main.enaml": "from widgets.fancy import Fancy\n\nf = Fancy()\n",
	})

	_, err := newContext().ImportFile(paths["main.enaml"])
	require.ErrorIs(t, err, loader.ErrModuleNotFound)

	m, err := newContext(loader.WithSearchPath(lib)).ImportFile(paths["main.enaml"])
	require.NoError(t, err)
	obj, ok := m.Globals["f"].(*runtime.Object)
	require.True(t, ok)
	v, _ := obj.Get("text")
	assert.Equal(t, starlark.String("fancy"), v)
}

func TestConcurrentImportsShareModule(t *testing.T) {
	_, paths := writeFiles(t, map[string]string{
		"a.enaml": "from b import x\n",
		"b.enaml": "x = [1, 2, 3]\n",
	})
	ctx := newContext()
	mods := make([]*loader.Module, 8)
	var g errgroup.Group
	for i := range mods {
		g.Go(func() error {
			m, err := ctx.ImportFile(paths["a.enaml"])
			mods[i] = m
			return err
		})
	}
	require.NoError(t, g.Wait())
	for _, m := range mods[1:] {
		assert.Same(t, mods[0], m)
	}
}

func TestClose(t *testing.T) {
	_, paths := writeFiles(t, map[string]string{"a.enaml": "x = 1\n"})
	ctx := newContext()
	_, err := ctx.ImportFile(paths["a.enaml"])
	require.NoError(t, err)
	require.Equal(t, 1, ctx.Compiler().CachedUnits())

	require.NoError(t, ctx.Close())
	assert.Equal(t, 0, ctx.Compiler().CachedUnits())
	_, err = ctx.ImportFile(paths["a.enaml"])
	assert.ErrorIs(t, err, loader.ErrClosed)
	_, err = ctx.Import("enaml.widgets.api")
	assert.ErrorIs(t, err, loader.ErrClosed)
}
