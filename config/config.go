// Package config loads the optional enaml.toml project file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the project file looked up from the working directory
// upwards.
const FileName = "enaml.toml"

// Config is the decoded project file. Relative paths are resolved against
// Root.
type Config struct {
	// Path is the file the configuration was read from; empty when no
	// project file was found.
	Path string `toml:"-"`
	// Root is the directory containing Path.
	Root string `toml:"-"`

	SearchPath  []string          `toml:"search_path"`
	Main        string            `toml:"main"`
	Cache       CacheConfig       `toml:"cache"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
}

// CacheConfig controls the on-disk unit cache.
type CacheConfig struct {
	Disk bool   `toml:"disk"`
	Dir  string `toml:"dir"`
}

// DiagnosticsConfig controls traceback rendering.
type DiagnosticsConfig struct {
	// Color is "auto", "always" or "never".
	Color string `toml:"color"`
}

// Default returns the configuration used when there is no project file.
func Default() *Config {
	return &Config{Diagnostics: DiagnosticsConfig{Color: "auto"}}
}

// Find looks for FileName in startDir and its parents.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("resolving start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Discover loads the project file found from startDir, or the defaults.
func Discover(startDir string) (*Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// Load reads the project file at path.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	cfg.Path = abs
	cfg.Root = filepath.Dir(abs)
	switch cfg.Diagnostics.Color {
	case "auto", "always", "never":
	case "":
		cfg.Diagnostics.Color = "auto"
	default:
		return nil, fmt.Errorf("%s: [diagnostics].color must be auto, always or never, got %q", path, cfg.Diagnostics.Color)
	}
	for i, p := range cfg.SearchPath {
		cfg.SearchPath[i] = cfg.resolve(p)
	}
	if cfg.Main != "" {
		cfg.Main = cfg.resolve(cfg.Main)
	}
	if cfg.Cache.Dir != "" {
		cfg.Cache.Dir = cfg.resolve(cfg.Cache.Dir)
	}
	return cfg, nil
}

func (c *Config) resolve(p string) string {
	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) || c.Root == "" {
		return p
	}
	return filepath.Join(c.Root, p)
}

// SplitPathList splits an ENAML_PATH style list on the OS list separator,
// dropping empty entries.
func SplitPathList(s string) []string {
	var out []string
	for _, p := range filepath.SplitList(s) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
