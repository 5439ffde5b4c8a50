package compiler

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"go.starlark.net/starlark"
)

// Increment when diskPayload changes.
const diskCacheSchemaVersion uint16 = 1

// DiskCache persists compiled units across processes. A nil *DiskCache is
// a valid, always-missing cache. It is safe for concurrent use.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

type diskPayload struct {
	Schema      uint16
	Compiler    int
	Path        string
	Fingerprint string
	Generated   string
	Program     []byte
	Locations   []Location
}

// OpenDiskCache returns a disk cache in dir, or in the user cache
// directory for app when dir is empty.
func OpenDiskCache(dir, app string) (*DiskCache, error) {
	if dir == "" {
		base := os.Getenv("XDG_CACHE_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			base = filepath.Join(home, ".cache")
		}
		dir = filepath.Join(base, app)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *DiskCache) Dir() string { return c.dir }

func diskKey(path, fingerprint string) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(starlark.CompilerVersion)))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *DiskCache) pathFor(key string) string {
	return filepath.Join(c.dir, "units", key+".mp")
}

// Put writes u to the cache, replacing any previous entry atomically.
func (c *DiskCache) Put(u *CompiledUnit) error {
	if c == nil {
		return nil
	}
	var prog bytes.Buffer
	if err := u.Program.Write(&prog); err != nil {
		return err
	}
	payload := &diskPayload{
		Schema:      diskCacheSchemaVersion,
		Compiler:    starlark.CompilerVersion,
		Path:        u.Path,
		Fingerprint: u.Fingerprint,
		Generated:   u.Generated,
		Program:     prog.Bytes(),
		Locations:   u.Locations.Entries(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(diskKey(u.Path, u.Fingerprint))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := msgpack.NewEncoder(f).Encode(payload); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// get reads the entry for (path, fingerprint). Entries written by another
// schema or compiler version are reported as misses.
func (c *DiskCache) get(path, fingerprint string) (*diskPayload, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(diskKey(path, fingerprint)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var out diskPayload
	if err := msgpack.NewDecoder(f).Decode(&out); err != nil {
		return nil, false, err
	}
	if out.Schema != diskCacheSchemaVersion || out.Compiler != starlark.CompilerVersion ||
		out.Path != path || out.Fingerprint != fingerprint {
		return nil, false, nil
	}
	return &out, true, nil
}

// DropAll removes every cached unit.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(filepath.Join(c.dir, "units"))
}
