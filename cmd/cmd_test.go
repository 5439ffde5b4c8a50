package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubiojr/enaml/config"
)

func writeFile(t *testing.T, dir, name, src string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(src), 0o644))
	return p
}

// runCLI runs the command line against a project in dir. A project file
// disabling colors is created unless the test wrote its own.
func runCLI(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	cfg := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(cfg); os.IsNotExist(err) {
		writeFile(t, dir, config.FileName, "[diagnostics]\ncolor = \"never\"\n")
	}
	var stdout, stderr bytes.Buffer
	a := &app{stdout: &stdout, stderr: &stderr}
	err := a.command("test").Run(context.Background(), append([]string{"enaml", "--config", cfg}, args...))
	return stdout.String(), stderr.String(), err
}

const window = `from enaml.widgets.api import Window, Label

enamldef Main(Window):
    title = "Hello"
    Label:
        text << self.parent.title.lower()
`

func TestRunInstantiatesMain(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "main.enaml", window)

	stdout, _, err := runCLI(t, dir, "run", "--main", "Main", main)
	require.NoError(t, err)
	want := `Main(name="", visible=True, enabled=True, title="Hello")` + "\n" +
		`  Label(name="", visible=True, enabled=True, text="hello")` + "\n"
	assert.Equal(t, want, stdout)
}

func TestRunUsesConfiguredMain(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app/main.enaml", "print(\"loaded\")\n")
	writeFile(t, dir, config.FileName, "main = \"app/main.enaml\"\n[diagnostics]\ncolor = \"never\"\n")

	stdout, _, err := runCLI(t, dir, "run")
	require.NoError(t, err)
	assert.Equal(t, "loaded\n", stdout)
}

func TestRunUnknownMain(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "main.enaml", window)

	_, _, err := runCLI(t, dir, "run", "--main", "Missing", main)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing is not defined")
}

func TestRunReportsImportedFileError(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "main.enaml", "from views import Main\n")
	views := writeFile(t, dir, "views.enaml", "from enaml.widgets.api import Window\n\nenamldef Main(Window)\n    pass\n")

	_, stderr, err := runCLI(t, dir, "run", main)
	require.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, "Traceback (most recent call last):\n")
	assert.Contains(t, stderr, `File "`+views+`", line (3, 21)`)
	assert.Contains(t, stderr, "ParseError: ")
}

func TestSearchPathFromEnvironment(t *testing.T) {
	t.Setenv("ENAML_PATH", "")
	dir, lib := t.TempDir(), t.TempDir()
	writeFile(t, lib, "shared/greeting.enaml", "text = \"from lib\"\n")
	main := writeFile(t, dir, "main.enaml", "from shared.greeting import text\nprint(text)\n")

	_, _, err := runCLI(t, dir, "run", main)
	require.ErrorIs(t, err, errReported)

	t.Setenv("ENAML_PATH", lib)
	stdout, stderr, err := runCLI(t, dir, "--verbose", "run", main)
	require.NoError(t, err)
	assert.Equal(t, "from lib\n", stdout)
	assert.Contains(t, stderr, "import: "+filepath.Join(lib, "shared", "greeting.enaml"))
}

func TestCheckReportsFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.enaml", window)
	writeFile(t, dir, "nested/also_ok.enaml", "x = 1\n")
	bad := writeFile(t, dir, "nested/bad.enaml", "enamldef Main(Window)\n    pass\n")

	_, stderr, err := runCLI(t, dir, "check", "-j", "2", dir)
	require.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, `File "`+bad+`", line (1, 21)`)
	assert.Contains(t, stderr, "3 files, 1 failed\n")

	require.NoError(t, os.Remove(bad))
	_, stderr, err = runCLI(t, dir, "check", dir)
	require.NoError(t, err)
	assert.Contains(t, stderr, "2 files, ok\n")
}

func TestCheckWithoutFiles(t *testing.T) {
	dir := t.TempDir()
	_, _, err := runCLI(t, dir, "check", filepath.Join(dir, "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot access")
}

func TestEmit(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "main.enaml", window)

	stdout, _, err := runCLI(t, dir, "emit", main)
	require.NoError(t, err)
	assert.Contains(t, stdout, `__decl__.bind(__child0, "text", "<<", lambda self: self.parent.title.lower(), None)`)
	assert.Contains(t, stdout, `Main = __decl__.enamldef("Main", Window, Main)`)
}

func TestDoc(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "main.enaml", "# The root.\nenamldef Main(Window):\n    # Clicks.\n    attr clicks = 0\n")

	stdout, _, err := runCLI(t, dir, "doc", main)
	require.NoError(t, err)
	assert.Equal(t, "enamldef Main(Window)\n    The root.\n    attr clicks = 0\n        Clicks.\n", stdout)

	stdout, _, err = runCLI(t, dir, "doc", main, "Main.clicks")
	require.NoError(t, err)
	assert.Equal(t, "attr clicks = 0\n    Clicks.\n", stdout)

	stdout, _, err = runCLI(t, dir, "doc", "enaml.widgets.api")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Window(Widget)\n    attr title = \"\"\n")

	_, _, err = runCLI(t, dir, "doc", "no.such.module")
	assert.Error(t, err)
}

func TestTokens(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "main.enaml", "enamldef Main(Window):\n    title := x\n")

	stdout, _, err := runCLI(t, dir, "tokens", main)
	require.NoError(t, err)
	assert.Contains(t, stdout, `1:1 KEYWORD "enamldef"`)
	assert.Contains(t, stdout, `2:11 OP ":="`)
	assert.Contains(t, stdout, "EOF")
}

func TestTokensLexError(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "main.enaml", "x = \"open\n")

	_, stderr, err := runCLI(t, dir, "--no-color", "tokens", main)
	require.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, "LexError: ")
}

func TestExamples(t *testing.T) {
	dir := t.TempDir()
	examples := filepath.Join("..", "examples")
	for _, name := range []string{"hello", "bindings", "template", "imports/main"} {
		t.Run(name, func(t *testing.T) {
			stdout, stderr, err := runCLI(t, dir, "run", "--main", "Main", filepath.Join(examples, name+".enaml"))
			require.NoError(t, err, stderr)
			assert.True(t, strings.HasPrefix(stdout, "Main("), stdout)
		})
	}

	_, stderr, err := runCLI(t, dir, "check", examples)
	require.NoError(t, err, stderr)
	assert.Contains(t, stderr, "5 files, ok\n")
}

func TestColorEnabled(t *testing.T) {
	var buf bytes.Buffer
	tests := []struct {
		mode    string
		noColor string
		want    bool
	}{
		{"always", "1", true},
		{"never", "", false},
		{"auto", "", false},
		{"auto", "1", false},
	}
	for _, tt := range tests {
		t.Run(tt.mode+"/"+tt.noColor, func(t *testing.T) {
			t.Setenv("NO_COLOR", tt.noColor)
			assert.Equal(t, tt.want, colorEnabled(tt.mode, &buf))
		})
	}
}

func TestCleanDropsDiskCache(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, config.FileName, "[cache]\ndisk = true\ndir = \"cache\"\n\n[diagnostics]\ncolor = \"never\"\n")
	main := writeFile(t, dir, "main.enaml", window)
	cacheDir := filepath.Join(dir, "cache")

	_, _, err := runCLI(t, dir, "check", main)
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Join(cacheDir, "units"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	stdout, _, err := runCLI(t, dir, "clean")
	require.NoError(t, err)
	assert.Equal(t, "removed "+cacheDir+"\n", stdout)
	_, err = os.Stat(filepath.Join(cacheDir, "units"))
	assert.True(t, os.IsNotExist(err))
}
