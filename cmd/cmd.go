package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	goruntime "runtime"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
	"go.starlark.net/starlark"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/rubiojr/enaml/compiler"
	"github.com/rubiojr/enaml/config"
	"github.com/rubiojr/enaml/diag"
	"github.com/rubiojr/enaml/doc"
	"github.com/rubiojr/enaml/loader"
	"github.com/rubiojr/enaml/modules"
	"github.com/rubiojr/enaml/runtime"
	"github.com/rubiojr/enaml/scanner"
	"github.com/rubiojr/enaml/source"
)

// errReported is returned by actions whose failure was already printed as a
// traceback.
var errReported = errors.New("errors reported")

// Execute runs the enaml CLI with the given version string.
func Execute(version string) {
	a := &app{stdout: os.Stdout, stderr: os.Stderr}
	if err := a.command(version).Run(context.Background(), os.Args); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

type app struct {
	stdout io.Writer
	stderr io.Writer
}

func (a *app) command(version string) *cli.Command {
	return &cli.Command{
		Name:                   "enaml",
		Usage:                  "Compile and run declarative markup files",
		Version:                version,
		UseShortOptionHandling: true,
		Writer:                 a.stdout,
		ErrWriter:              a.stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Project file (default: " + config.FileName + " found from the working directory)",
			},
			&cli.StringFlag{
				Name:    "path",
				Aliases: []string{"p"},
				Usage:   "Extra import directories, separated by the OS list separator",
				Sources: cli.EnvVars("ENAML_PATH"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Trace imports to stderr",
			},
			&cli.BoolFlag{
				Name:    "no-color",
				Aliases: []string{"C"},
				Usage:   "Disable ANSI color output",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Import a markup file and optionally instantiate a declaration",
				ArgsUsage: "[file.enaml]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "main",
						Aliases: []string{"m"},
						Usage:   "Declaration to instantiate and print",
					},
				},
				Action: a.runAction,
			},
			{
				Name:      "check",
				Usage:     "Compile markup files without running them",
				ArgsUsage: "<file.enaml | directory>...",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "jobs",
						Aliases: []string{"j"},
						Usage:   "Files compiled in parallel",
						Value:   goruntime.GOMAXPROCS(0),
					},
				},
				Action: a.checkAction,
			},
			{
				Name:      "emit",
				Usage:     "Output the generated host code",
				ArgsUsage: "<file.enaml>",
				Action:    a.emitAction,
			},
			{
				Name:      "doc",
				Usage:     "Show documentation of markup files and builtin modules",
				ArgsUsage: "[file.enaml [Symbol] | directory | module]",
				Action:    a.docAction,
			},
			{
				Name:   "clean",
				Usage:  "Remove the on-disk compiled unit cache",
				Action: a.cleanAction,
			},
			{
				Name:      "tokens",
				Usage:     "Dump the token stream of a markup file",
				ArgsUsage: "<file.enaml>",
				Action:    a.tokensAction,
			},
		},
	}
}

// session is the state shared by every command: the project configuration
// and a loader built from it.
type session struct {
	cfg     *config.Config
	loader  *loader.Context
	colored bool
}

// loadConfig reads the --config file, or the project file found from the
// working directory.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	if p := cmd.String("config"); p != "" {
		return config.Load(p)
	}
	return config.Discover(".")
}

func (a *app) open(cmd *cli.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	search := append(append([]string(nil), cfg.SearchPath...), config.SplitPathList(cmd.String("path"))...)
	opts := []loader.Option{
		loader.WithSearchPath(search...),
		loader.WithPredeclared(runtime.Predeclared()),
		loader.WithPrint(func(_ *starlark.Thread, msg string) {
			fmt.Fprintln(a.stdout, msg)
		}),
	}
	if cmd.Bool("verbose") {
		opts = append(opts, loader.WithTrace(a.stderr))
	}
	if cfg.Cache.Disk {
		dc, err := compiler.OpenDiskCache(cfg.Cache.Dir, "enaml")
		if err != nil {
			return nil, fmt.Errorf("opening disk cache: %w", err)
		}
		opts = append(opts, loader.WithDiskCache(dc))
	}

	mode := cfg.Diagnostics.Color
	if cmd.Bool("no-color") {
		mode = "never"
	}
	return &session{
		cfg:     cfg,
		loader:  loader.New(opts...),
		colored: colorEnabled(mode, a.stderr),
	}, nil
}

// report prints err as a traceback and returns errReported.
func (a *app) report(s *session, err error) error {
	s.loader.Report(err).Fprint(a.stderr, s.colored)
	return errReported
}

// colorEnabled resolves an auto/always/never setting for output written
// to w. NO_COLOR disables auto color.
func colorEnabled(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (a *app) runAction(ctx context.Context, cmd *cli.Command) error {
	s, err := a.open(cmd)
	if err != nil {
		return err
	}
	defer s.loader.Close()
	path := cmd.Args().First()
	if path == "" {
		path = s.cfg.Main
	}
	if path == "" {
		return fmt.Errorf("usage: enaml run [--main Name] <file.enaml>")
	}

	m, err := s.loader.ImportFile(path)
	if err != nil {
		return a.report(s, err)
	}
	name := cmd.String("main")
	if name == "" {
		return nil
	}
	fn, ok := m.Globals[name]
	if !ok {
		return fmt.Errorf("%s: %s is not defined", m.Path, name)
	}
	v, err := starlark.Call(s.loader.NewThread("main"), fn, nil, nil)
	if err != nil {
		return a.report(s, err)
	}
	if obj, ok := v.(*runtime.Object); ok {
		return runtime.Dump(a.stdout, obj)
	}
	fmt.Fprintln(a.stdout, v.String())
	return nil
}

func (a *app) checkAction(ctx context.Context, cmd *cli.Command) error {
	targets := cmd.Args().Slice()
	if len(targets) == 0 {
		targets = []string{"."}
	}
	files, err := collectFiles(targets)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no %s files found", compiler.Ext)
	}
	s, err := a.open(cmd)
	if err != nil {
		return err
	}
	defer s.loader.Close()

	// Failures are collected per file so that every file gets compiled.
	errs := make([]error, len(files))
	var g errgroup.Group
	if jobs := cmd.Int("jobs"); jobs > 0 {
		g.SetLimit(int(jobs))
	}
	for i, f := range files {
		g.Go(func() error {
			_, errs[i] = s.loader.Compiler().Compile(f)
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			s.loader.Report(err).Fprint(a.stderr, s.colored)
		}
	}

	ok, bad := color.New(color.FgGreen), color.New(color.FgRed)
	if s.colored {
		ok.EnableColor()
		bad.EnableColor()
	} else {
		ok.DisableColor()
		bad.DisableColor()
	}
	if failed > 0 {
		fmt.Fprintf(a.stderr, "%d files, %s\n", len(files), bad.Sprintf("%d failed", failed))
		return errReported
	}
	fmt.Fprintf(a.stderr, "%d files, %s\n", len(files), ok.Sprint("ok"))
	return nil
}

// collectFiles expands directories into the markup files below them.
func collectFiles(targets []string) ([]string, error) {
	var files []string
	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", target, err)
		}
		if !info.IsDir() {
			files = append(files, target)
			continue
		}
		err = filepath.WalkDir(target, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && compiler.IsMarkupFile(d.Name()) {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("reading directory %s: %w", target, err)
		}
	}
	return files, nil
}

func (a *app) emitAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() < 1 {
		return fmt.Errorf("usage: enaml emit <file.enaml>")
	}
	s, err := a.open(cmd)
	if err != nil {
		return err
	}
	defer s.loader.Close()
	u, err := s.loader.Compiler().Compile(cmd.Args().First())
	if err != nil {
		return a.report(s, err)
	}
	fmt.Fprint(a.stdout, u.Generated)
	return nil
}

func (a *app) tokensAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() < 1 {
		return fmt.Errorf("usage: enaml tokens <file.enaml>")
	}
	path := cmd.Args().First()
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	file := source.NewFile(abs, src)
	toks, err := scanner.Tokenize(file)
	if err != nil {
		colored := colorEnabled("auto", a.stderr) && !cmd.Bool("no-color")
		diag.ForCompileError(diag.Normalize(err, file, diag.StageLex)).Fprint(a.stderr, colored)
		return errReported
	}
	for _, tok := range toks {
		fmt.Fprintln(a.stdout, tok)
	}
	return nil
}

func (a *app) docAction(ctx context.Context, cmd *cli.Command) error {
	target := cmd.Args().First()
	if target == "" {
		fmt.Fprint(a.stdout, doc.FormatAllModules())
		return nil
	}
	if m, ok := modules.Get(target); ok {
		fmt.Fprint(a.stdout, doc.FormatModule(m))
		return nil
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("%s is neither a file nor a builtin module", target)
	}
	var fd *doc.FileDoc
	if info.IsDir() {
		fd, err = doc.ExtractDir(target)
	} else {
		fd, err = doc.ExtractFile(target)
	}
	if err != nil {
		return err
	}

	if symbol := cmd.Args().Get(1); symbol != "" {
		d, sig, ok := doc.LookupSymbol(fd, symbol)
		if !ok {
			return fmt.Errorf("%s: no symbol %s", target, symbol)
		}
		fmt.Fprint(a.stdout, doc.FormatSymbol(d, sig))
		return nil
	}
	fmt.Fprint(a.stdout, doc.FormatFile(fd))
	return nil
}

// cleanAction drops the compiled units of the configured disk cache,
// whether or not the cache is currently enabled.
func (a *app) cleanAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dc, err := compiler.OpenDiskCache(cfg.Cache.Dir, "enaml")
	if err != nil {
		return fmt.Errorf("opening disk cache: %w", err)
	}
	if err := dc.DropAll(); err != nil {
		return fmt.Errorf("failed to clear %q: %w", dc.Dir(), err)
	}
	fmt.Fprintf(a.stdout, "removed %s\n", dc.Dir())
	return nil
}
